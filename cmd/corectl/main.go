// Command corectl drives a simulated storecore device from the
// command line: it can provision a mnemonic, change the PIN, inspect
// status, derive a seed, and drop into an interactive shell - useful
// for exercising the storage engine without real hardware attached.
package main

import (
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/ironvault/storecore/internal/devconfig"
	"github.com/ironvault/storecore/internal/flash"
	"github.com/ironvault/storecore/internal/securechip"
	"github.com/ironvault/storecore/internal/session"
	"github.com/ironvault/storecore/internal/storecore"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr *os.File) int {
	o := &ioStreams{out: stdout, errOut: stderr}

	globalFlags := flag.NewFlagSet("corectl", flag.ContinueOnError)
	globalFlags.SetOutput(&discard{})
	globalFlags.SetInterspersed(false)

	configPath := globalFlags.String("config", "", "Path to a HuJSON device config file")

	if len(args) == 0 {
		printGlobalHelp(o)

		return 1
	}

	if args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		printGlobalHelp(o)

		return 0
	}

	if err := globalFlags.Parse(args); err != nil {
		o.ErrPrintln("error:", err)

		return 1
	}

	remaining := globalFlags.Args()
	if len(remaining) == 0 {
		printGlobalHelp(o)

		return 1
	}

	cmdName := remaining[0]
	subArgs := remaining[1:]

	cfg := devconfig.Default()

	if *configPath != "" {
		loaded, err := devconfig.Load(*configPath)
		if err != nil {
			o.ErrPrintln("error:", err)

			return 1
		}

		cfg = loaded
	}

	cmds := buildCommands(cfg)

	cmd, ok := cmds[cmdName]
	if !ok {
		o.ErrPrintln("error: unknown command", cmdName)
		printGlobalHelp(o)

		return 1
	}

	return cmd.Run(o, subArgs)
}

type discard struct{}

func (*discard) Write(p []byte) (int, error) { return len(p), nil }

func printGlobalHelp(o *ioStreams) {
	o.Println("corectl manages a simulated device secret store.")
	o.Println()
	o.Println("Usage: corectl [--config file] <command> [args]")
	o.Println()
	o.Println("Commands:")

	for _, name := range commandOrder {
		o.Println(commandHelpLines[name])
	}
}

var commandOrder []string

var commandHelpLines = map[string]string{}

func buildCommands(cfg devconfig.Config) map[string]*command {
	cmds := map[string]*command{}

	register := func(c *command) {
		cmds[c.Name()] = c
		commandOrder = append(commandOrder, c.Name())
		commandHelpLines[c.Name()] = c.HelpLine()
	}

	register(cmdInit(cfg))
	register(cmdStatus(cfg))
	register(cmdWipe(cfg))
	register(cmdSetMnemonic(cfg))
	register(cmdLoadNode(cfg))
	register(cmdSetPIN(cfg))
	register(cmdSetPassphraseProtection(cfg))
	register(cmdGetSeed(cfg))
	register(cmdGetPubKey(cfg))
	register(cmdShell(cfg))

	return cmds
}

// openCore wires a Core from the config: a file-backed flash device, a
// SecretBackend chosen by cfg.Backend, and a fresh session cache.
func openCore(cfg devconfig.Config) (*storecore.Core, *flash.FileDevice, *session.Cache, error) {
	dev, err := flash.OpenFileDevice(cfg.FlashImagePath, cfg.FlashSize)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open flash image: %w", err)
	}

	var backend storecore.SecretBackend

	switch cfg.Backend {
	case devconfig.BackendSecureChip:
		backend = securechip.NewSecureChip(securechip.NewSimChip())
	default:
		backend = securechip.InMcu{}
	}

	sess := session.New()

	core, err := storecore.Open(dev, backend, sess)
	if err != nil {
		_ = dev.Close()

		return nil, nil, nil, err
	}

	return core, dev, sess, nil
}

func closeCore(dev *flash.FileDevice) {
	_ = dev.Flush()
	_ = dev.Close()
}
