package serial

import (
	"io"
	"os"
)

type stdio struct {
	io.Reader
	io.Writer
}

// Stdio uses the process stdin/stdout as the serial stream, which is
// handy when the bridge is run behind socat or from a terminal.
func Stdio() io.ReadWriter {
	return &stdio{Reader: os.Stdin, Writer: os.Stdout}
}
