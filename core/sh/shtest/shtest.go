// Package shtest provides a scripted process backend so invocation logic
// can be exercised without spawning real subprocesses.
package shtest

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"

	"github.com/subproc/gosh/core/logger"
	"github.com/subproc/gosh/core/proc"
	"github.com/subproc/gosh/core/sh"
)

type NopEventRecorder struct{}

func (*NopEventRecorder) Record(event logger.Event) error {
	return nil
}

// Recorder captures events in memory for assertions.
type Recorder struct {
	mu     sync.Mutex
	events []logger.Event
}

func (r *Recorder) Record(event logger.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

// Events returns everything recorded so far.
func (r *Recorder) Events() []logger.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]logger.Event, len(r.events))
	copy(out, r.events)
	return out
}

// Outcome scripts the behavior of one spawned program.
type Outcome struct {
	// ExitCode is the status Wait reports.
	ExitCode int
	// Stdout and Stderr are the process output.
	Stdout []byte
	Stderr []byte
	// Chunks overrides how stdout is split for streaming and callbacks.
	// When nil, output splits by lines.
	Chunks [][]byte
	// Err makes the spawn itself fail, as an unlaunchable binary would.
	Err error
	// Filter, when set, computes stdout from whatever arrived on stdin.
	// Pipe tests use it to build pass-through stages.
	Filter func(stdin []byte) []byte
}

// Spawner is a scripted sh.SpawnFunc. Outcomes are keyed by program path
// or basename; unscripted programs succeed silently.
type Spawner struct {
	mu       sync.Mutex
	outcomes map[string]Outcome
	specs    []*proc.Spec
	stdins   [][]byte
	handles  []*Handle
}

func NewSpawner() *Spawner {
	return &Spawner{outcomes: make(map[string]Outcome)}
}

// Script registers the outcome for a program name.
func (s *Spawner) Script(name string, outcome Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes[name] = outcome
}

// Specs returns every spec spawned so far, in order.
func (s *Spawner) Specs() []*proc.Spec {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*proc.Spec, len(s.specs))
	copy(out, s.specs)
	return out
}

// LastSpec returns the most recent spawn, or nil.
func (s *Spawner) LastSpec() *proc.Spec {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.specs) == 0 {
		return nil
	}
	return s.specs[len(s.specs)-1]
}

// Stdins returns the bytes each spawn consumed from its stdin.
func (s *Spawner) Stdins() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.stdins))
	copy(out, s.stdins)
	return out
}

// Handles returns the handle for every successful spawn, in order.
func (s *Spawner) Handles() []*Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Handle, len(s.handles))
	copy(out, s.handles)
	return out
}

func (s *Spawner) outcomeFor(argv0 string) Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	if outcome, ok := s.outcomes[argv0]; ok {
		return outcome
	}
	if outcome, ok := s.outcomes[filepath.Base(argv0)]; ok {
		return outcome
	}
	return Outcome{}
}

// Spawn implements sh.SpawnFunc. It honors the Spec's redirect, merge,
// chunking, and streaming settings the same way the real backend does.
func (s *Spawner) Spawn(spec *proc.Spec) (sh.Handle, error) {
	var stdin []byte
	if spec.Stdin != nil {
		stdin, _ = io.ReadAll(spec.Stdin)
	}

	s.mu.Lock()
	s.specs = append(s.specs, spec)
	s.stdins = append(s.stdins, stdin)
	s.mu.Unlock()

	outcome := s.outcomeFor(spec.Argv[0])
	if outcome.Err != nil {
		return nil, outcome.Err
	}

	stdout := outcome.Stdout
	if outcome.Filter != nil {
		stdout = outcome.Filter(stdin)
	}
	stderr := outcome.Stderr
	if spec.MergeErr {
		stdout = append(append([]byte{}, stdout...), stderr...)
		stderr = nil
	}

	chunks := outcome.Chunks
	if chunks == nil {
		chunks = splitChunks(stdout, spec.BufSize)
	}

	h := &Handle{code: outcome.ExitCode}

	// Deliver stdout per the Spec: callback, writer, or capture.
	switch {
	case spec.OnStdout != nil:
		for _, chunk := range chunks {
			spec.OnStdout(chunk)
		}
	case spec.Stdout != nil:
		spec.Stdout.Write(stdout)
	case spec.Passthrough:
		// Inherited stdio captures nothing.
	default:
		h.stdout = append(make([]byte, 0, len(stdout)), stdout...)
	}

	switch {
	case spec.MergeErr, spec.Passthrough:
	case spec.OnStderr != nil:
		if len(stderr) > 0 {
			spec.OnStderr(stderr)
		}
	case spec.Stderr != nil:
		spec.Stderr.Write(stderr)
	default:
		h.stderr = append(make([]byte, 0, len(stderr)), stderr...)
	}

	if spec.Stream {
		h.out = make(chan []byte, len(chunks))
		for _, chunk := range chunks {
			h.out <- chunk
		}
	} else {
		h.out = make(chan []byte)
	}
	close(h.out)

	s.mu.Lock()
	s.handles = append(s.handles, h)
	s.mu.Unlock()
	return h, nil
}

// splitChunks mirrors the real backend's chunking: raw for 0, lines for 1,
// fixed sizes above that.
func splitChunks(out []byte, bufSize int) [][]byte {
	if len(out) == 0 {
		return nil
	}
	switch {
	case bufSize == 1:
		var chunks [][]byte
		for _, line := range bytes.SplitAfter(out, []byte("\n")) {
			if len(line) > 0 {
				chunks = append(chunks, line)
			}
		}
		return chunks
	case bufSize > 1:
		var chunks [][]byte
		for len(out) > 0 {
			n := bufSize
			if n > len(out) {
				n = len(out)
			}
			chunks = append(chunks, out[:n])
			out = out[n:]
		}
		return chunks
	default:
		return [][]byte{out}
	}
}

// Handle is the scripted counterpart of a running process.
type Handle struct {
	code   int
	stdout []byte
	stderr []byte
	out    chan []byte

	mu         sync.Mutex
	signals    []os.Signal
	terminated bool
	killed     bool
}

func (h *Handle) Wait() (int, error) { return h.code, nil }

func (h *Handle) Stdout() []byte { return h.stdout }

func (h *Handle) Stderr() []byte { return h.stderr }

func (h *Handle) Output() <-chan []byte { return h.out }

func (h *Handle) Signal(sig os.Signal) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.signals = append(h.signals, sig)
	return nil
}

func (h *Handle) Terminate() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.terminated = true
	return nil
}

func (h *Handle) Kill() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.killed = true
	return nil
}

// SignalsSeen returns every signal forwarded to the fake process.
func (h *Handle) SignalsSeen() []os.Signal {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]os.Signal, len(h.signals))
	copy(out, h.signals)
	return out
}

// Terminated reports whether Terminate was called.
func (h *Handle) Terminated() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.terminated
}

// Killed reports whether Kill was called.
func (h *Handle) Killed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.killed
}

// NewSession builds a deterministic session: in-memory filesystem with the
// named programs installed under /bin, a minimal environment, a scripted
// spawner, and a capturing recorder.
func NewSession(programs ...string) (*sh.Session, *Spawner, *Recorder) {
	fsys := afero.NewMemMapFs()
	fsys.MkdirAll("/bin", 0o755)
	fsys.MkdirAll("/home/jill", 0o755)
	fsys.MkdirAll("/tmp", 0o755)
	for _, name := range programs {
		afero.WriteFile(fsys, "/bin/"+name, []byte("#!/bin/true\n"), 0o755)
	}

	env := sh.NewEnv()
	env.Set("PATH", "/bin")
	env.Set("HOME", "/home/jill")
	env.Set("USER", "jill")

	spawner := NewSpawner()
	recorder := &Recorder{}
	session := sh.NewCustomSession(fsys, env, "/home/jill", nil, spawner.Spawn, recorder)
	return session, spawner, recorder
}
