package cmd

import (
	"fmt"
	"os"

	"github.com/fatih/color"
)

// ConfigureColorOutput disables colorized output when the standard output
// stream can't render it, so piped and redirected command output stays free
// of escape sequences. On Windows this also covers mintty/Cygwin terminals,
// whose pseudo-console pipes don't process the sequences that classic
// consoles do.
func ConfigureColorOutput() {
	if !colorOutputSupported() {
		color.NoColor = true
	}
}

// StatusLinePrinter provides printing facilities for dynamically updating
// status lines in the console. It supports colorized printing.
type StatusLinePrinter struct {
	// UseStandardError causes the printer to use standard error for its
	// output instead of standard output (the default).
	UseStandardError bool
	// nonEmpty indicates whether or not the printer has printed any
	// non-empty content to the status line.
	nonEmpty bool
}

// Print prints a message to the status line, overwriting any existing
// content. Color escape sequences are supported. Messages will be truncated
// to a platform-dependent maximum length and padded appropriately.
func (p *StatusLinePrinter) Print(message string) {
	// Determine output stream.
	output := color.Output
	if p.UseStandardError {
		output = color.Error
	}

	// Print the message, prefixed with a carriage return to wipe out the
	// previous line (if any), at the platform's fixed status width.
	fmt.Fprintf(output, statusLineFormat, message)

	// Update our non-empty status. We're always non-empty after printing
	// because we print padding as well.
	p.nonEmpty = true
}

// Clear clears any content on the status line and moves the cursor back to
// the beginning of the line.
func (p *StatusLinePrinter) Clear() {
	// Write over any existing data.
	p.Print("")

	// Determine output stream.
	output := os.Stdout
	if p.UseStandardError {
		output = os.Stderr
	}

	// Wipe out any existing line.
	fmt.Fprint(output, "\r")

	// Update our non-empty status.
	p.nonEmpty = false
}

// BreakIfNonEmpty prints a newline character if the current line is
// non-empty.
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
