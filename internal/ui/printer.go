package ui

import (
	"fmt"
	"io"
	"os"
)

// Printer writes results to an output.
type Printer struct {
	out   io.Writer
	width int
}

// NewPrinter creates a Printer for w, or stdout when w is nil.
func NewPrinter(w io.Writer) *Printer {
	if w == nil {
		w = os.Stdout
	}
	return &Printer{out: w, width: TerminalWidth()}
}

// PrintResult writes r followed by a newline.
func (p *Printer) PrintResult(r Result) {
	_, _ = fmt.Fprintln(p.out, r.Render(p.width))
}

// Println writes plain text.
func (p *Printer) Println(a ...any) {
	_, _ = fmt.Fprintln(p.out, a...)
}
