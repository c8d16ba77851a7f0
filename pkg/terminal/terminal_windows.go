//go:build windows

package terminal

import (
	"io"
	"os"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// getColorableWriter returns an ANSI escape sequence aware writer when
// stdout is a console, plain stdout otherwise.
func getColorableWriter() io.Writer {
	if isatty.IsTerminal(os.Stdout.Fd()) {
		return colorable.NewColorableStdout()
	}
	return os.Stdout
}
