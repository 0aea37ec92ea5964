package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/ironvault/storecore/internal/cryptoutil"
	"github.com/ironvault/storecore/internal/devconfig"
	"github.com/ironvault/storecore/internal/storecore"
)

var errMnemonicRequired = errors.New("mnemonic is required")

var errNodeKeyMaterialSize = errors.New("chain-code and private-key must each be 32 bytes of hex")

func cmdInit(cfg devconfig.Config) *command {
	flags := flag.NewFlagSet("init", flag.ContinueOnError)
	strength := flags.Int("strength", 128, "Entropy strength in bits for a freshly generated mnemonic (128-256)")
	mnemonic := flags.String("mnemonic", "", "Use this mnemonic instead of generating a new one")
	passphraseProtection := flags.Bool("passphrase-protection", false, "Enable passphrase protection")

	return &command{
		Flags: flags,
		Usage: "init [flags]",
		Short: "Provision a fresh mnemonic and mark the device initialized",
		Exec: func(o *ioStreams, _ []string) error {
			words := *mnemonic

			if words == "" {
				generated, err := generateMnemonicWords(*strength)
				if err != nil {
					return err
				}

				words = generated
			}

			core, dev, _, err := openCore(cfg)
			if err != nil {
				return err
			}
			defer closeCore(dev)

			if err := core.SetMnemonic(words, *passphraseProtection); err != nil {
				return err
			}

			o.Println(words)

			return nil
		},
	}
}

func cmdStatus(cfg devconfig.Config) *command {
	flags := flag.NewFlagSet("status", flag.ContinueOnError)

	return &command{
		Flags: flags,
		Usage: "status",
		Short: "Print the device's current initialization status",
		Exec: func(o *ioStreams, _ []string) error {
			core, dev, _, err := openCore(cfg)
			if err != nil {
				return err
			}
			defer closeCore(dev)

			o.Printf("backend:     %s\n", core.BackendName())
			o.Printf("uuid:        %s\n", core.UUID())
			o.Printf("initialized: %t\n", core.Initialized())
			o.Printf("has pin:     %t\n", core.HasPIN())
			o.Printf("passphrase:  %t\n", core.PassphraseProtection())
			o.Printf("needs backup:%t\n", core.NeedsBackup())
			o.Printf("language:    %s\n", core.Language())
			o.Printf("u2f counter: %d\n", core.U2FCounter())
			o.Printf("pin wait:    %ds\n", core.PinFailsRemainingWait())

			return nil
		},
	}
}

func cmdWipe(cfg devconfig.Config) *command {
	flags := flag.NewFlagSet("wipe", flag.ContinueOnError)

	return &command{
		Flags: flags,
		Usage: "wipe",
		Short: "Erase the device back to its factory state",
		Exec: func(_ *ioStreams, _ []string) error {
			core, dev, _, err := openCore(cfg)
			if err != nil {
				return err
			}
			defer closeCore(dev)

			return core.Wipe()
		},
	}
}

func cmdSetMnemonic(cfg devconfig.Config) *command {
	flags := flag.NewFlagSet("set-mnemonic", flag.ContinueOnError)
	passphraseProtection := flags.Bool("passphrase-protection", false, "Enable passphrase protection")

	return &command{
		Flags: flags,
		Usage: "set-mnemonic <words...>",
		Short: "Stage and commit a specific mnemonic",
		Exec: func(_ *ioStreams, args []string) error {
			if len(args) == 0 {
				return errMnemonicRequired
			}

			core, dev, _, err := openCore(cfg)
			if err != nil {
				return err
			}
			defer closeCore(dev)

			return core.SetMnemonic(strings.Join(args, " "), *passphraseProtection)
		},
	}
}

func cmdLoadNode(cfg devconfig.Config) *command {
	flags := flag.NewFlagSet("load-node", flag.ContinueOnError)
	chainCodeHex := flags.String("chain-code", "", "32-byte chain code, hex-encoded")
	privateKeyHex := flags.String("private-key", "", "32-byte private key, hex-encoded")
	depth := flags.Uint32("depth", 0, "Node depth")
	fingerprint := flags.Uint32("fingerprint", 0, "Parent fingerprint")
	childNum := flags.Uint32("child-num", 0, "Child number")

	return &command{
		Flags: flags,
		Usage: "load-node [flags]",
		Short: "Import a pre-derived secp256k1 HD node in place of a mnemonic",
		Exec: func(_ *ioStreams, _ []string) error {
			var node storecore.HDNode

			chainCode, err := hex.DecodeString(*chainCodeHex)
			if err != nil {
				return err
			}

			privateKey, err := hex.DecodeString(*privateKeyHex)
			if err != nil {
				return err
			}

			if len(chainCode) != len(node.ChainCode) || len(privateKey) != len(node.PrivateKey) {
				return errNodeKeyMaterialSize
			}

			copy(node.ChainCode[:], chainCode)
			copy(node.PrivateKey[:], privateKey)
			node.HasPrivateKey = true
			node.Depth = *depth
			node.Fingerprint = *fingerprint
			node.ChildNum = *childNum

			core, dev, _, err := openCore(cfg)
			if err != nil {
				return err
			}
			defer closeCore(dev)

			return core.SetNode(node)
		},
	}
}

func cmdSetPIN(cfg devconfig.Config) *command {
	flags := flag.NewFlagSet("set-pin", flag.ContinueOnError)

	return &command{
		Flags: flags,
		Usage: "set-pin <digits>",
		Short: "Set or change the device PIN (empty string removes it)",
		Exec: func(_ *ioStreams, args []string) error {
			digits := ""
			if len(args) > 0 {
				digits = args[0]
			}

			core, dev, _, err := openCore(cfg)
			if err != nil {
				return err
			}
			defer closeCore(dev)

			return core.SetPIN(digits)
		},
	}
}

func cmdSetPassphraseProtection(cfg devconfig.Config) *command {
	flags := flag.NewFlagSet("set-passphrase-protection", flag.ContinueOnError)

	return &command{
		Flags: flags,
		Usage: "set-passphrase-protection <true|false>",
		Short: "Toggle passphrase protection",
		Exec: func(_ *ioStreams, args []string) error {
			if len(args) == 0 {
				return errors.New("corectl: expected true or false")
			}

			v, err := strconv.ParseBool(args[0])
			if err != nil {
				return err
			}

			core, dev, _, err := openCore(cfg)
			if err != nil {
				return err
			}
			defer closeCore(dev)

			return core.SetPassphraseProtection(v)
		},
	}
}

func cmdGetSeed(cfg devconfig.Config) *command {
	flags := flag.NewFlagSet("get-seed", flag.ContinueOnError)
	passphrase := flags.String("passphrase", "", "BIP-39 passphrase")

	return &command{
		Flags: flags,
		Usage: "get-seed [flags]",
		Short: "Derive and print the BIP-39 seed as hex",
		Exec: func(o *ioStreams, _ []string) error {
			core, dev, sess, err := openCore(cfg)
			if err != nil {
				return err
			}
			defer closeCore(dev)

			seed, err := sess.GetSeed(core, *passphrase, func(fraction float32) {
				o.ErrPrintln(fmt.Sprintf("deriving... %.0f%%", fraction*100))
			})
			if err != nil {
				return err
			}
			defer zeroOut(seed)

			o.Printf("%x\n", seed)

			return nil
		},
	}
}

func cmdGetPubKey(cfg devconfig.Config) *command {
	flags := flag.NewFlagSet("get-pubkey", flag.ContinueOnError)
	passphrase := flags.String("passphrase", "", "BIP-39 passphrase")

	return &command{
		Flags: flags,
		Usage: "get-pubkey [flags]",
		Short: "Derive and print the root secp256k1 public key as hex",
		Exec: func(o *ioStreams, _ []string) error {
			core, dev, sess, err := openCore(cfg)
			if err != nil {
				return err
			}
			defer closeCore(dev)

			pub, err := sess.GetRootPublicKey(core, *passphrase, func(fraction float32) {
				o.ErrPrintln(fmt.Sprintf("deriving... %.0f%%", fraction*100))
			})
			if err != nil {
				return err
			}

			o.Printf("%x\n", pub)

			return nil
		},
	}
}

func zeroOut(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

func generateMnemonicWords(strengthBits int) (string, error) {
	return cryptoutil.GenerateMnemonic(strengthBits)
}
