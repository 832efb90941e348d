//go:build windows

package proc

import (
	"io"
	"os"
)

// openTerminal falls back to an anonymous pipe; Windows has no pty device.
// Children see a pipe and may block-buffer their output.
func openTerminal() (master io.ReadCloser, slave io.WriteCloser, err error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, nil, err
	}
	return r, w, nil
}
