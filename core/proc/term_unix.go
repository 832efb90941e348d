//go:build !windows

package proc

import (
	"io"

	"github.com/creack/pty"
)

// openTerminal allocates a pseudo-terminal pair. The master side is read by
// the parent, the slave side becomes the child's stdout.
func openTerminal() (master io.ReadCloser, slave io.WriteCloser, err error) {
	ptmx, tty, err := pty.Open()
	if err != nil {
		return nil, nil, err
	}
	return ptmx, tty, nil
}
