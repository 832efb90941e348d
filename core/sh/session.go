package sh

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/afero"

	"github.com/subproc/gosh/core/config"
	"github.com/subproc/gosh/core/logger"
	"github.com/subproc/gosh/core/lookup"
)

// EventRecorder reports notable engine events to the structured log.
// *logger.SessionLogger implements it.
type EventRecorder interface {
	Record(event logger.Event) error
}

// Session owns everything an invocation needs: a filesystem, an
// environment, a working directory, aliases, the prefix stack, and the
// spawn function that actually starts processes.
//
// Sessions are safe for use from multiple goroutines.
type Session struct {
	fs       afero.Fs
	env      *Env
	aliases  map[string]string
	spawn    SpawnFunc
	recorder EventRecorder

	mtx sync.Mutex
	dir string
	// prefixes holds argument vectors pushed by with-blocks, oldest first.
	prefixes [][]string
}

// NewSession builds a session over the host OS: real filesystem, the
// process environment, and real subprocesses. The recorder may be nil to
// discard events.
func NewSession(cfg *config.Configuration, recorder EventRecorder) *Session {
	env := EnvFromList(os.Environ())
	if len(cfg.SearchPath) > 0 {
		env.Set("PATH", strings.Join(cfg.SearchPath, string(os.PathListSeparator)))
	}

	dir, err := os.Getwd()
	if err != nil {
		dir = "/"
	}

	aliases := make(map[string]string, len(cfg.Aliases))
	for name, expansion := range cfg.Aliases {
		aliases[name] = expansion
	}

	return &Session{
		fs:       afero.NewOsFs(),
		env:      env,
		aliases:  aliases,
		spawn:    defaultSpawn,
		recorder: recorder,
		dir:      dir,
	}
}

// NewCustomSession assembles a session from explicit parts. The remote
// listener and tests use it; NewSession wires the host defaults. A nil
// spawn falls back to real subprocesses.
func NewCustomSession(fsys afero.Fs, env *Env, dir string, aliases map[string]string, spawn SpawnFunc, recorder EventRecorder) *Session {
	if env == nil {
		env = NewEnv()
	}
	if spawn == nil {
		spawn = defaultSpawn
	}
	if aliases == nil {
		aliases = map[string]string{}
	}
	return &Session{
		fs:       fsys,
		env:      env,
		aliases:  aliases,
		spawn:    spawn,
		recorder: recorder,
		dir:      dir,
	}
}

// SetFs replaces the filesystem used for resolution and redirect targets.
func (s *Session) SetFs(fsys afero.Fs) {
	s.fs = fsys
}

// SetSpawn replaces the process backend.
func (s *Session) SetSpawn(spawn SpawnFunc) {
	s.spawn = spawn
}

// Fs returns the session filesystem.
func (s *Session) Fs() afero.Fs {
	return s.fs
}

// Env returns the live session environment.
func (s *Session) Env() *Env {
	return s.env
}

// Record forwards event to the session recorder, if any. Recording is best
// effort; a failing log never blocks an invocation.
func (s *Session) Record(event logger.Event) {
	if s.recorder == nil {
		return
	}
	_ = s.recorder.Record(event)
}

// Getwd returns the working directory commands run in.
func (s *Session) Getwd() string {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.dir
}

// Chdir moves the working directory, updating PWD and OLDPWD. Relative
// paths resolve against the current directory.
func (s *Session) Chdir(dir string) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	target := dir
	if !filepath.IsAbs(target) {
		target = filepath.Join(s.dir, target)
	}
	target = filepath.Clean(target)

	info, err := s.fs.Stat(target)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return &os.PathError{Op: "chdir", Path: target, Err: syscall.ENOTDIR}
	}

	s.env.Set("OLDPWD", s.dir)
	s.env.Set("PWD", target)
	s.dir = target
	return nil
}

// Alias returns the expansion configured for name.
func (s *Session) Alias(name string) (string, bool) {
	expansion, ok := s.aliases[name]
	return expansion, ok
}

// Command resolves name into an invocable command. Aliases expand first;
// an alias may carry leading arguments ("ll" -> "ls -la") which become
// baked arguments of the returned command. Unresolvable names produce a
// *CommandNotFoundError.
func (s *Session) Command(name string) (*Command, error) {
	program := name
	var bakedArgs []string
	if expansion, ok := s.aliases[name]; ok {
		fields := strings.Fields(expansion)
		if len(fields) > 0 {
			program = fields[0]
			bakedArgs = fields[1:]
		}
	}

	path, err := lookup.Resolve(s.fs, s.env.Get, program)
	if err != nil {
		s.Record(logger.ResolveFailure{Name: name, Error: err.Error()})
		return nil, &CommandNotFoundError{Name: name, Err: err}
	}

	return &Command{
		session:   s,
		path:      path,
		bakedArgs: bakedArgs,
	}, nil
}

// LookupName resolves a bare identifier the way the interactive surface
// does: names matching an exit kind ("ExitStatus_2") return the interned
// *ExitKind, anything else resolves as a command.
func (s *Session) LookupName(name string) (interface{}, error) {
	if kind, ok := ExitKindByName(name); ok {
		return kind, nil
	}
	return s.Command(name)
}

// Fork returns a session with copies of the environment, directory, and
// aliases but a fresh prefix stack. The filesystem, spawn function, and
// recorder are shared. The interactive loop forks for per-command
// environment assignments.
func (s *Session) Fork() *Session {
	s.mtx.Lock()
	dir := s.dir
	s.mtx.Unlock()

	aliases := make(map[string]string, len(s.aliases))
	for name, expansion := range s.aliases {
		aliases[name] = expansion
	}

	return &Session{
		fs:       s.fs,
		env:      s.env.Clone(),
		aliases:  aliases,
		spawn:    s.spawn,
		recorder: s.recorder,
		dir:      dir,
	}
}

// pushPrefix appends argv to the prefix stack.
func (s *Session) pushPrefix(argv []string) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.prefixes = append(s.prefixes, argv)
}

// popPrefix removes the most recently pushed prefix.
func (s *Session) popPrefix() {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if len(s.prefixes) == 0 {
		return
	}
	s.prefixes = s.prefixes[:len(s.prefixes)-1]
}

// prefixSnapshot flattens the current stack, oldest first, into the
// arguments that lead every spawned command line.
func (s *Session) prefixSnapshot() []string {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	var flat []string
	for _, argv := range s.prefixes {
		flat = append(flat, argv...)
	}
	return flat
}

// prefixDepth reports how many prefixes are active.
func (s *Session) prefixDepth() int {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return len(s.prefixes)
}
