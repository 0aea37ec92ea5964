package main

import (
	"fmt"
	"io"
)

// ioStreams bundles the two output streams a subcommand writes to.
type ioStreams struct {
	out    io.Writer
	errOut io.Writer
}

func (o *ioStreams) Println(a ...any) {
	_, _ = fmt.Fprintln(o.out, a...)
}

func (o *ioStreams) Printf(format string, a ...any) {
	_, _ = fmt.Fprintf(o.out, format, a...)
}

func (o *ioStreams) ErrPrintln(a ...any) {
	_, _ = fmt.Fprintln(o.errOut, a...)
}
