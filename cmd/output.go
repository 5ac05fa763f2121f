package cmd

import (
	"fmt"
	"os"

	"github.com/fatih/color"
)

// statusLineFormat pads/truncates status lines to a fixed width so that
// successive carriage-return overwrites never leave stale trailing
// characters from a longer previous line.
const statusLineFormat = "\r%-80.80s"

// StatusLinePrinter prints dynamically updating single-line status to the
// console (used for --eta output), overwriting its own previous content on
// each call rather than scrolling.
type StatusLinePrinter struct {
	// UseStandardError routes output to standard error instead of standard
	// output; treesync uses this since --eta output must not interleave
	// with a --log FILE tee of stdout.
	UseStandardError bool
	nonEmpty         bool
}

// Print overwrites the status line with message.
func (p *StatusLinePrinter) Print(message string) {
	output := color.Output
	if p.UseStandardError {
		output = color.Error
	}
	fmt.Fprintf(output, statusLineFormat, message)
	p.nonEmpty = true
}

// BreakIfNonEmpty prints a trailing newline if the status line currently
// holds content, so that subsequent plain output starts on its own line.
func (p *StatusLinePrinter) BreakIfNonEmpty() {
	if p.nonEmpty {
		output := os.Stdout
		if p.UseStandardError {
			output = os.Stderr
		}
		fmt.Fprintln(output)
		p.nonEmpty = false
	}
}
