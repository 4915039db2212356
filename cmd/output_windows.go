//go:build windows
// +build windows

package cmd

import (
	"os"

	isatty "github.com/mattn/go-isatty"
)

// statusLineFormat is the status line format string. It's one column
// narrower than the default cmd.exe console so that carriage return wipes
// don't overflow onto the next line.
const statusLineFormat = "\r%-79.79s"

// colorOutputSupported indicates whether or not standard output can render
// colorized output. Classic consoles are handled by the color package's
// console writer, but mintty-based (Cygwin/MSYS) terminals present as pipes
// that pass escape sequences through unprocessed unless the command is
// relaunched under winpty, so color is disabled there.
func colorOutputSupported() bool {
	if isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		return false
	}
	return isatty.IsTerminal(os.Stdout.Fd())
}
