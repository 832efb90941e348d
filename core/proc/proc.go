// Package proc spawns operating-system processes for the invocation engine
// and exposes their lifecycle through a small handle.
//
// Child stdout is routed through a pseudo-terminal so programs detect a
// terminal and line-buffer their output; stderr stays on a separate pipe
// unless the Spec merges it into stdout.
package proc

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
)

// Spec describes a single process to start.
type Spec struct {
	// Argv holds the full compiled command line; Argv[0] is the executable
	// path.
	Argv []string
	// Dir is the working directory, or "" for the caller's.
	Dir string
	// Env holds "key=value" pairs for the child environment.
	Env []string

	// Stdin supplies the child's standard input when non-nil.
	Stdin io.Reader

	// Stdout redirects standard output to a writer. When set, nothing is
	// captured for Proc.Stdout.
	Stdout io.Writer
	// OnStdout is called with each output chunk. When set, nothing is
	// captured for Proc.Stdout.
	OnStdout func(chunk []byte)

	// Stderr and OnStderr mirror Stdout and OnStdout for standard error.
	Stderr   io.Writer
	OnStderr func(chunk []byte)

	// MergeErr routes standard error into the standard output terminal.
	MergeErr bool

	// BufSize sets output chunk granularity: 0 emits raw reads, 1 emits
	// lines, larger values emit fixed-size chunks.
	BufSize int

	// Stream forwards output chunks to Proc.Output. The consumer must drain
	// the channel. When unset the channel only signals completion by
	// closing.
	Stream bool

	// Passthrough wires the child directly to the caller's stdio; nothing
	// is captured and no terminal is allocated.
	Passthrough bool

	// WaitOnStart makes Start block until the process completes.
	WaitOnStart bool
}

// Proc is a handle to one started process.
type Proc struct {
	cmd  *exec.Cmd
	spec *Spec

	ptmx io.ReadCloser // terminal master, nil in passthrough mode

	stdout *lockedBuffer // nil when redirected
	stderr *lockedBuffer

	// out delivers chunks when streaming and is closed once the output
	// terminal drains.
	out chan []byte
	// queue decouples the terminal reader from a slow or absent consumer.
	queue *chunkQueue

	readersDone chan struct{}

	waitOnce sync.Once
	waitCode int
	waitErr  error
}

// Start launches the process described by spec.
//
// Start errors (unlaunchable binary, bad working directory) are returned
// verbatim; a nonzero exit is not an error here, it is reported by Wait.
func Start(spec *Spec) (*Proc, error) {
	if len(spec.Argv) == 0 {
		return nil, errors.New("proc: empty command line")
	}

	cmd := exec.Command(spec.Argv[0], spec.Argv[1:]...)
	cmd.Dir = spec.Dir
	cmd.Env = spec.Env

	p := &Proc{
		cmd:         cmd,
		spec:        spec,
		out:         make(chan []byte),
		readersDone: make(chan struct{}),
	}

	if spec.Passthrough {
		cmd.Stdin = os.Stdin
		if spec.Stdin != nil {
			cmd.Stdin = spec.Stdin
		}
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if spec.MergeErr {
			cmd.Stderr = os.Stdout
		}
		if err := cmd.Start(); err != nil {
			return nil, err
		}
		close(p.out)
		close(p.readersDone)
		if spec.WaitOnStart {
			p.Wait()
		}
		return p, nil
	}

	ptmx, tty, err := openTerminal()
	if err != nil {
		return nil, err
	}
	p.ptmx = ptmx

	cmd.Stdin = spec.Stdin
	cmd.Stdout = tty
	switch {
	case spec.MergeErr:
		cmd.Stderr = tty
	case spec.Stderr != nil:
		cmd.Stderr = spec.Stderr
	case spec.OnStderr != nil:
		cmd.Stderr = writerFunc(spec.OnStderr)
	default:
		p.stderr = &lockedBuffer{}
		cmd.Stderr = p.stderr
	}

	if spec.Stdout == nil && spec.OnStdout == nil {
		p.stdout = &lockedBuffer{}
	}

	if err := cmd.Start(); err != nil {
		tty.Close()
		ptmx.Close()
		return nil, err
	}
	// Close the child side in the parent so reads on the master end when
	// the child exits.
	tty.Close()

	if spec.Stream {
		p.queue = newChunkQueue()
		go p.pump()
	}
	go p.readOutput()

	if spec.WaitOnStart {
		p.Wait()
	}
	return p, nil
}

// readOutput drains the terminal master until the child exits, dispatching
// chunks to the capture buffer, redirect target, and stream queue.
//
// Reading the master after the child has exited yields EIO on Linux; any
// read error is therefore treated as end of output.
func (p *Proc) readOutput() {
	defer func() {
		if p.queue != nil {
			p.queue.closeQueue()
		} else {
			close(p.out)
		}
		close(p.readersDone)
	}()

	emit := func(chunk []byte) {
		switch {
		case p.spec.OnStdout != nil:
			p.spec.OnStdout(chunk)
		case p.spec.Stdout != nil:
			p.spec.Stdout.Write(chunk)
		default:
			p.stdout.append(chunk)
		}
		if p.queue != nil {
			p.queue.push(chunk)
		}
	}

	switch {
	case p.spec.BufSize == 1:
		r := bufio.NewReader(p.ptmx)
		for {
			line, err := r.ReadBytes('\n')
			if len(line) > 0 {
				emit(line)
			}
			if err != nil {
				return
			}
		}
	case p.spec.BufSize > 1:
		buf := make([]byte, p.spec.BufSize)
		for {
			n, err := io.ReadFull(p.ptmx, buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				emit(chunk)
			}
			if err != nil {
				return
			}
		}
	default:
		buf := make([]byte, 4096)
		for {
			n, err := p.ptmx.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				emit(chunk)
			}
			if err != nil {
				return
			}
		}
	}
}

// pump feeds the output channel from the stream queue so that the terminal
// reader never blocks on a slow consumer, then closes the channel once the
// queue drains.
func (p *Proc) pump() {
	for {
		chunk, ok := p.queue.pop()
		if !ok {
			close(p.out)
			return
		}
		p.out <- chunk
	}
}

// Wait blocks until the process and its output readers finish, then returns
// the exit status. It is safe to call repeatedly; later calls return the
// cached outcome.
func (p *Proc) Wait() (int, error) {
	p.waitOnce.Do(func() {
		// Drain before reaping so the final output chunk is never lost.
		<-p.readersDone
		if p.ptmx != nil {
			p.ptmx.Close()
		}

		err := p.cmd.Wait()
		var exitErr *exec.ExitError
		switch {
		case err == nil:
			p.waitCode = 0
		case errors.As(err, &exitErr):
			p.waitCode = exitErr.ExitCode()
		default:
			p.waitErr = err
		}
	})
	return p.waitCode, p.waitErr
}

// Stdout returns the captured standard output, or nil when output was
// redirected or passed through. Only valid after Wait.
func (p *Proc) Stdout() []byte {
	if p.stdout == nil {
		return nil
	}
	return p.stdout.bytes()
}

// Stderr returns the captured standard error, or nil when it was redirected
// or merged into stdout. Only valid after Wait.
func (p *Proc) Stderr() []byte {
	if p.stderr == nil {
		return nil
	}
	return p.stderr.bytes()
}

// Output returns the channel of streamed output chunks. The channel closes
// once output is exhausted.
func (p *Proc) Output() <-chan []byte {
	return p.out
}

// Signal forwards sig to the process.
func (p *Proc) Signal(sig os.Signal) error {
	if p.cmd.Process == nil {
		return errors.New("proc: process not started")
	}
	return p.cmd.Process.Signal(sig)
}

// Terminate sends SIGTERM to the process.
func (p *Proc) Terminate() error {
	return p.Signal(syscall.SIGTERM)
}

// Kill forcibly stops the process.
func (p *Proc) Kill() error {
	if p.cmd.Process == nil {
		return errors.New("proc: process not started")
	}
	return p.cmd.Process.Kill()
}

// lockedBuffer is a mutex-guarded byte buffer; exec.Cmd and the terminal
// reader write from their own goroutines.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) append(p []byte) {
	b.Write(p)
}

// bytes returns a copy of the buffer. The result is never nil so callers
// can tell captured-but-empty output apart from redirected output.
func (b *lockedBuffer) bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]byte, b.buf.Len())
	copy(out, b.buf.Bytes())
	return out
}

type writerFunc func(p []byte)

func (f writerFunc) Write(p []byte) (int, error) {
	f(p)
	return len(p), nil
}

// chunkQueue is an unbounded FIFO of output chunks.
type chunkQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	chunks [][]byte
	closed bool
}

func newChunkQueue() *chunkQueue {
	q := &chunkQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *chunkQueue) push(chunk []byte) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.chunks = append(q.chunks, chunk)
	q.cond.Signal()
}

func (q *chunkQueue) closeQueue() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Signal()
}

// pop blocks until a chunk is available or the queue is closed and empty.
func (q *chunkQueue) pop() ([]byte, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.chunks) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.chunks) == 0 {
		return nil, false
	}
	chunk := q.chunks[0]
	q.chunks = q.chunks[1:]
	return chunk, true
}
