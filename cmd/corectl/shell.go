package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/peterh/liner"

	flag "github.com/spf13/pflag"

	"github.com/ironvault/storecore/internal/devconfig"
	"github.com/ironvault/storecore/internal/flash"
	"github.com/ironvault/storecore/internal/session"
	"github.com/ironvault/storecore/internal/storecore"
)

func cmdShell(cfg devconfig.Config) *command {
	flags := flag.NewFlagSet("shell", flag.ContinueOnError)

	return &command{
		Flags: flags,
		Usage: "shell",
		Short: "Open an interactive session against the device",
		Exec: func(_ *ioStreams, _ []string) error {
			core, dev, sess, err := openCore(cfg)
			if err != nil {
				return err
			}
			defer closeCore(dev)

			repl := &shellREPL{core: core, dev: dev, session: sess}

			return repl.run()
		},
	}
}

// shellREPL is the interactive command loop for corectl shell,
// grounded on the rest of this codebase's own liner-backed REPLs.
type shellREPL struct {
	core    *storecore.Core
	dev     *flash.FileDevice
	session *session.Cache
	liner   *liner.State
}

func shellHistoryFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".corectl_history")
}

func (r *shellREPL) run() error {
	r.liner = liner.NewLiner()
	defer r.liner.Close()

	r.liner.SetCtrlCAborts(true)

	if f, err := os.Open(shellHistoryFile()); err == nil {
		r.liner.ReadHistory(f)
		f.Close()
	}

	fmt.Printf("corectl shell (backend=%s, uuid=%s)\n", r.core.BackendName(), r.core.UUID())
	fmt.Println("Type 'help' for available commands.")
	fmt.Println()

	for {
		line, err := r.liner.Prompt("corectl> ")
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				fmt.Println("\nBye!")

				break
			}

			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		r.liner.AppendHistory(line)

		parts := strings.Fields(line)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "exit", "quit", "q":
			r.saveHistory()

			return nil

		case "help", "?":
			r.printHelp()

		case "status":
			r.cmdStatus()

		case "checkpin":
			r.cmdCheckPIN(args)

		case "setpin":
			r.cmdSetPIN(args)

		case "getseed":
			r.cmdGetSeed(args)

		case "wipe":
			r.cmdWipe()

		case "clear", "cls":
			fmt.Print("\033[H\033[2J")

		default:
			fmt.Printf("Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}

	r.saveHistory()

	return nil
}

func (r *shellREPL) saveHistory() {
	if path := shellHistoryFile(); path != "" {
		if f, err := os.Create(path); err == nil {
			r.liner.WriteHistory(f)
			f.Close()
		}
	}
}

func (r *shellREPL) printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  status               show device status")
	fmt.Println("  checkpin <digits>    verify a PIN")
	fmt.Println("  setpin <digits>      set or change the PIN")
	fmt.Println("  getseed [passphrase] derive and print the seed as hex")
	fmt.Println("  wipe                 erase the device")
	fmt.Println("  exit                 leave the shell")
}

func (r *shellREPL) cmdStatus() {
	fmt.Printf("initialized: %t\n", r.core.Initialized())
	fmt.Printf("has pin:     %t\n", r.core.HasPIN())
	fmt.Printf("pin wait:    %ds\n", r.core.PinFailsRemainingWait())
	fmt.Printf("u2f counter: %d\n", r.core.U2FCounter())
}

func (r *shellREPL) cmdCheckPIN(args []string) {
	if len(args) == 0 {
		fmt.Println("usage: checkpin <digits>")

		return
	}

	ok, wait, err := r.core.CheckPIN(args[0])
	if err != nil {
		fmt.Println("error:", err)

		return
	}

	if ok {
		fmt.Println("pin ok")

		return
	}

	fmt.Printf("pin incorrect, wait %ds\n", wait)
}

func (r *shellREPL) cmdSetPIN(args []string) {
	digits := ""
	if len(args) > 0 {
		digits = args[0]
	}

	if err := r.core.SetPIN(digits); err != nil {
		fmt.Println("error:", err)
	}
}

func (r *shellREPL) cmdGetSeed(args []string) {
	passphrase := ""
	if len(args) > 0 {
		passphrase = args[0]
	}

	seed, err := r.session.GetSeed(r.core, passphrase, func(fraction float32) {
		fmt.Printf("\rderiving... %s%%", strconv.Itoa(int(fraction*100)))
	})
	if err != nil {
		fmt.Println("error:", err)

		return
	}

	defer zeroOut(seed)

	fmt.Printf("\n%x\n", seed)
}

func (r *shellREPL) cmdWipe() {
	if err := r.core.Wipe(); err != nil {
		fmt.Println("error:", err)
	}
}
