package main

import (
	"errors"
	"fmt"
	"strings"

	flag "github.com/spf13/pflag"
)

// command defines a corectl subcommand with unified help generation,
// mirroring the dispatch pattern the rest of this codebase's CLI uses.
type command struct {
	Flags *flag.FlagSet
	Usage string
	Short string
	Exec  func(o *ioStreams, args []string) error
}

func (c *command) Name() string {
	name, _, _ := strings.Cut(c.Usage, " ")

	return name
}

func (c *command) HelpLine() string {
	return fmt.Sprintf("  %-28s %s", c.Usage, c.Short)
}

func (c *command) PrintHelp(o *ioStreams) {
	o.Println("Usage: corectl", c.Usage)
	o.Println()
	o.Println(c.Short)

	if c.Flags != nil && c.Flags.HasFlags() {
		o.Println()
		o.Println("Flags:")

		var buf strings.Builder

		c.Flags.SetOutput(&buf)
		c.Flags.PrintDefaults()
		o.Printf("%s", buf.String())
	}
}

func (c *command) Run(o *ioStreams, args []string) int {
	c.Flags.SetOutput(&strings.Builder{})

	if err := c.Flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			c.PrintHelp(o)

			return 0
		}

		o.ErrPrintln("error:", err)

		return 1
	}

	if err := c.Exec(o, c.Flags.Args()); err != nil {
		o.ErrPrintln("error:", err)

		return 1
	}

	return 0
}
