package sh

import (
	"io"
	"os"

	"github.com/subproc/gosh/core/proc"
)

// Handle is the running side of one spawned process. The default
// implementation is backed by a real child process; tests substitute
// scripted fakes through SpawnFunc.
type Handle interface {
	// Wait blocks until the process finishes and returns its exit code.
	// The error reports launch or plumbing failures, never a nonzero exit.
	Wait() (int, error)

	// Stdout and Stderr return captured output after Wait, or nil when the
	// stream was redirected.
	Stdout() []byte
	Stderr() []byte

	// Output streams chunks as they are produced. The channel closes when
	// output ends; non-streaming invocations close it without sends.
	Output() <-chan []byte

	Signal(sig os.Signal) error
	Terminate() error
	Kill() error
}

// SpawnFunc starts the process described by spec. Swapping it out is how
// the engine stays testable without real subprocesses.
type SpawnFunc func(spec *proc.Spec) (Handle, error)

func defaultSpawn(spec *proc.Spec) (Handle, error) {
	p, err := proc.Start(spec)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// chunkReader adapts a handle's output channel into an io.Reader so one
// command's stdout can feed the next command's stdin.
type chunkReader struct {
	ch   <-chan []byte
	rest []byte
}

func newChunkReader(ch <-chan []byte) *chunkReader {
	return &chunkReader{ch: ch}
}

func (r *chunkReader) Read(p []byte) (int, error) {
	for len(r.rest) == 0 {
		chunk, ok := <-r.ch
		if !ok {
			return 0, io.EOF
		}
		r.rest = chunk
	}
	n := copy(p, r.rest)
	r.rest = r.rest[n:]
	return n, nil
}
