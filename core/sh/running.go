package sh

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/subproc/gosh/core/logger"
)

// RunMode describes the lifecycle an invocation follows.
type RunMode int

const (
	// ModeDeferred parks the command on the prefix stack instead of
	// running it; Close releases it.
	ModeDeferred RunMode = iota
	// ModeEagerBlocking spawns and waits before Invoke returns.
	ModeEagerBlocking
	// ModeEagerLazy spawns and returns immediately; Wait reaps.
	ModeEagerLazy
	// ModeStreaming spawns and delivers output through Iter.
	ModeStreaming
	// ModePiped spawns and delivers output to a downstream command.
	ModePiped
)

func (m RunMode) String() string {
	switch m {
	case ModeDeferred:
		return "deferred"
	case ModeEagerBlocking:
		return "blocking"
	case ModeEagerLazy:
		return "background"
	case ModeStreaming:
		return "streaming"
	case ModePiped:
		return "piped"
	}
	return fmt.Sprintf("RunMode(%d)", int(m))
}

// RunningCommand is one invocation of a Command. Depending on its mode it
// may already be finished, still running, or never started at all.
type RunningCommand struct {
	session *Session
	mode    RunMode
	argv    []string
	opts    *callOptions
	handle  Handle
	closers *listCloser

	waitOnce sync.Once
	waitErr  error
	exitCode int

	closeOnce sync.Once
}

// Mode reports the lifecycle this invocation follows.
func (rc *RunningCommand) Mode() RunMode {
	return rc.mode
}

// Argv returns a copy of the spawned command line, prefixes included.
func (rc *RunningCommand) Argv() []string {
	out := make([]string, len(rc.argv))
	copy(out, rc.argv)
	return out
}

// FullCmd renders the command line as a single string, as shown in exit
// errors and the event log.
func (rc *RunningCommand) FullCmd() string {
	return strings.Join(rc.argv, " ")
}

// Wait blocks until the process finishes. A nonzero exit returns the same
// *ExitError on every call; launch and plumbing failures are returned
// verbatim. Waiting on a deferred command is a no-op.
func (rc *RunningCommand) Wait() error {
	rc.waitOnce.Do(func() {
		if rc.handle == nil {
			return
		}
		code, err := rc.handle.Wait()
		if cerr := rc.closers.closeAll(); cerr != nil && err == nil {
			// Redirect targets that fail to close lose data; surface it.
			err = cerr
		}
		if err != nil {
			rc.waitErr = err
			return
		}

		rc.exitCode = code
		rc.session.Record(logger.InvocationResult{
			FullCmd:  rc.FullCmd(),
			ExitCode: code,
		})
		if code != 0 {
			rc.waitErr = newExitError(rc.FullCmd(), code, rc.handle.Stdout(), rc.handle.Stderr())
		}
	})
	return rc.waitErr
}

// ExitCode waits and returns the exit status. Nonzero exits are ordinary
// results here, not errors; only launch and plumbing failures are returned.
func (rc *RunningCommand) ExitCode() (int, error) {
	err := rc.Wait()
	var exitErr *ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return 0, err
	}
	return rc.exitCode, nil
}

// Stdout waits and returns captured standard output, or nil when it was
// redirected.
func (rc *RunningCommand) Stdout() []byte {
	rc.Wait()
	if rc.handle == nil {
		return nil
	}
	return rc.handle.Stdout()
}

// Stderr waits and returns captured standard error, or nil when it was
// redirected or merged.
func (rc *RunningCommand) Stderr() []byte {
	rc.Wait()
	if rc.handle == nil {
		return nil
	}
	return rc.handle.Stderr()
}

// Text waits and returns captured standard output as a string.
func (rc *RunningCommand) Text() string {
	return string(rc.Stdout())
}

// Int waits and parses the trimmed output as a base-10 integer.
func (rc *RunningCommand) Int() (int, error) {
	if err := rc.Wait(); err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(rc.Text()))
}

// Float waits and parses the trimmed output as a float.
func (rc *RunningCommand) Float() (float64, error) {
	if err := rc.Wait(); err != nil {
		return 0, err
	}
	return strconv.ParseFloat(strings.TrimSpace(rc.Text()), 64)
}

// Iter returns an iterator over output chunks. Chunk granularity follows
// the _bufsize option: lines by default. Cancel ctx to stop early.
func (rc *RunningCommand) Iter(ctx context.Context) *OutputIter {
	it := &OutputIter{rc: rc, ctx: ctx}
	if rc.handle == nil {
		it.done = true
		it.err = optionErrorf("cannot iterate a command that has not started")
	}
	return it
}

// Signal forwards sig to the process.
func (rc *RunningCommand) Signal(sig os.Signal) error {
	if rc.handle == nil {
		return optionErrorf("no process to signal")
	}
	return rc.handle.Signal(sig)
}

// Terminate asks the process to stop.
func (rc *RunningCommand) Terminate() error {
	if rc.handle == nil {
		return optionErrorf("no process to terminate")
	}
	return rc.handle.Terminate()
}

// Kill forcibly stops the process.
func (rc *RunningCommand) Kill() error {
	if rc.handle == nil {
		return optionErrorf("no process to kill")
	}
	return rc.handle.Kill()
}

// Close releases the invocation. For a deferred command it pops the prefix
// pushed by Invoke; for anything else it waits so redirect files are
// flushed and closed. Close is idempotent per effect.
func (rc *RunningCommand) Close() error {
	if rc.mode == ModeDeferred {
		rc.closeOnce.Do(func() {
			rc.session.popPrefix()
		})
		return nil
	}
	return rc.Wait()
}

// OutputIter walks the output of a streaming command chunk by chunk.
//
//	for it.Next() {
//		fmt.Print(it.Text())
//	}
//	if err := it.Err(); err != nil { ... }
type OutputIter struct {
	rc    *RunningCommand
	ctx   context.Context
	chunk []byte
	err   error
	done  bool
}

// Next advances to the next chunk. It returns false when output ends, the
// context is canceled, or the command fails; Err distinguishes.
func (it *OutputIter) Next() bool {
	if it.done {
		return false
	}
	select {
	case chunk, ok := <-it.rc.handle.Output():
		if !ok {
			it.done = true
			// The stream ended; surface a late nonzero exit here rather
			// than losing it.
			it.err = it.rc.Wait()
			return false
		}
		it.chunk = chunk
		return true
	case <-it.ctx.Done():
		it.done = true
		it.err = it.ctx.Err()
		return false
	}
}

// Chunk returns the current chunk. Valid until the next call to Next.
func (it *OutputIter) Chunk() []byte {
	return it.chunk
}

// Text returns the current chunk as a string.
func (it *OutputIter) Text() string {
	return string(it.chunk)
}

// Err reports why iteration stopped: nil on clean exhaustion, the context
// error on cancellation, or the command's exit error.
func (it *OutputIter) Err() error {
	return it.err
}

// listCloser collects redirect files opened for one invocation so they are
// all closed once the command finishes. A nil listCloser is inert.
type listCloser struct {
	mu      sync.Mutex
	closers []io.Closer
}

func (l *listCloser) add(c io.Closer) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closers = append(l.closers, c)
}

func (l *listCloser) closeAll() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	var first error
	for _, c := range l.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	l.closers = nil
	return first
}
