//go:build !windows
// +build !windows

package cmd

import (
	"os"

	isatty "github.com/mattn/go-isatty"
)

// statusLineFormat is the status line format string, sized to the default
// 80-column console.
const statusLineFormat = "\r%-80.80s"

// colorOutputSupported indicates whether or not standard output can render
// colorized output.
func colorOutputSupported() bool {
	return isatty.IsTerminal(os.Stdout.Fd())
}
