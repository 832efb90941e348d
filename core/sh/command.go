package sh

import (
	"bytes"
	"io"
	"strings"

	"github.com/subproc/gosh/core/logger"
	"github.com/subproc/gosh/core/proc"
)

// Command is a resolved program plus any baked-in arguments and call
// options. Commands are immutable; Bake returns derived commands and
// Invoke starts processes.
type Command struct {
	session   *Session
	path      string
	bakedArgs []string
	bakedOpts Kwargs
}

// Path returns the resolved executable path.
func (c *Command) Path() string {
	return c.path
}

func (c *Command) String() string {
	if len(c.bakedArgs) == 0 {
		return c.path
	}
	return c.path + " " + strings.Join(c.bakedArgs, " ")
}

// Bake returns a new command with args compiled and appended to the
// receiver's baked arguments, and call options merged over the receiver's.
// The receiver is never modified, so one baked command can safely seed
// many variants:
//
//	git, _ := session.Command("git")
//	porcelain, _ := git.Bake("status", sh.Kwargs{"porcelain": true})
func (c *Command) Bake(args ...interface{}) (*Command, error) {
	positional, kwargs := splitArgs(args)
	opts, named, err := partitionKwargs(kwargs)
	if err != nil {
		return nil, err
	}

	compiled, err := compileArgs(positional, named)
	if err != nil {
		return nil, err
	}

	baked := make([]string, 0, len(c.bakedArgs)+len(compiled))
	baked = append(baked, c.bakedArgs...)
	baked = append(baked, compiled...)

	return &Command{
		session:   c.session,
		path:      c.path,
		bakedArgs: baked,
		bakedOpts: mergeOptions(c.bakedOpts, opts),
	}, nil
}

// Subcommand returns a command for a named subcommand of this program,
// such as "git commit".
func (c *Command) Subcommand(name string, args ...interface{}) (*Command, error) {
	return c.Bake(append([]interface{}{name}, args...)...)
}

// Prefix pushes this command, with args, onto the session prefix stack so
// it leads every later invocation. The returned release function pops the
// prefix and may be called more than once.
//
//	release, _ := sudo.Prefix()
//	defer release()
func (c *Command) Prefix(args ...interface{}) (func(), error) {
	withArgs := make([]interface{}, 0, len(args)+1)
	withArgs = append(withArgs, args...)
	withArgs = append(withArgs, Kwargs{optWith: true})

	rc, err := c.Invoke(withArgs...)
	if err != nil {
		return nil, err
	}
	return func() { rc.Close() }, nil
}

// Invoke runs the command. Positional arguments and Kwargs maps may be
// mixed freely; underscore-prefixed keys steer execution and the rest
// compile into program arguments, appended after any baked arguments.
//
// A leading *RunningCommand positional argument feeds its output into this
// command's stdin.
//
// The zero-option invocation blocks until the process finishes and returns
// a non-nil *ExitError when it exits nonzero. Backgrounded, piped, and
// iterated invocations return before completion; their failures surface
// from Wait.
func (c *Command) Invoke(args ...interface{}) (*RunningCommand, error) {
	positional, kwargs := splitArgs(args)
	callOpts, named, err := partitionKwargs(kwargs)
	if err != nil {
		return nil, err
	}

	// The merged map carries every explicitly provided key, baked or
	// per-call, which is exactly the set pair validation applies to.
	merged := mergeOptions(c.bakedOpts, callOpts)
	if err := validateOptionPairs(merged); err != nil {
		return nil, err
	}
	opts, err := buildCallOptions(merged)
	if err != nil {
		return nil, err
	}

	// A leading running command pipes into this one.
	var source *RunningCommand
	if len(positional) > 0 {
		if src, ok := positional[0].(*RunningCommand); ok {
			source = src
			positional = positional[1:]
			if src.opts != nil && src.opts.bg {
				opts.bg = true
			}
		}
	}

	compiled, err := compileArgs(positional, named)
	if err != nil {
		return nil, err
	}

	argv := make([]string, 0, 1+len(c.bakedArgs)+len(compiled))
	argv = append(argv, c.path)
	argv = append(argv, c.bakedArgs...)
	argv = append(argv, compiled...)

	// A with-invocation never spawns: it parks its argv on the prefix
	// stack until released.
	if opts.with {
		c.session.pushPrefix(argv)
		rc := &RunningCommand{
			session: c.session,
			mode:    ModeDeferred,
			argv:    argv,
			opts:    opts,
		}
		c.session.Record(logger.Invocation{
			Argv: argv,
			Mode: rc.mode.String(),
			Dir:  c.session.Getwd(),
		})
		return rc, nil
	}

	full := append(c.session.prefixSnapshot(), argv...)

	closers := &listCloser{}
	spec, err := c.buildSpec(full, opts, source, closers)
	if err != nil {
		closers.closeAll()
		return nil, err
	}

	rc := &RunningCommand{
		session: c.session,
		mode:    pickMode(opts),
		argv:    full,
		opts:    opts,
		closers: closers,
	}
	spec.Stream = rc.mode == ModePiped || rc.mode == ModeStreaming

	handle, err := c.session.spawn(spec)
	if err != nil {
		closers.closeAll()
		return nil, err
	}
	rc.handle = handle

	c.session.Record(logger.Invocation{
		Argv: full,
		Mode: rc.mode.String(),
		Dir:  spec.Dir,
	})

	if rc.mode == ModeEagerBlocking {
		return rc, rc.Wait()
	}
	return rc, nil
}

// pickMode chooses the lifecycle for an invocation; the first matching
// option wins.
func pickMode(opts *callOptions) RunMode {
	switch {
	case hasCallableSink(opts.out) || hasCallableSink(opts.err):
		return ModeEagerLazy
	case opts.piped:
		return ModePiped
	case opts.forIter:
		return ModeStreaming
	case opts.bg:
		return ModeEagerLazy
	default:
		return ModeEagerBlocking
	}
}

func hasCallableSink(v interface{}) bool {
	switch v.(type) {
	case func([]byte), func(string):
		return true
	}
	return false
}

// buildSpec translates merged call options into a process spec, opening
// redirect files on the session filesystem as needed.
func (c *Command) buildSpec(argv []string, opts *callOptions, source *RunningCommand, closers *listCloser) (*proc.Spec, error) {
	spec := &proc.Spec{
		Argv:        argv,
		Dir:         c.session.Getwd(),
		Env:         c.session.env.Environ(),
		MergeErr:    opts.errToOut,
		BufSize:     opts.bufSize,
		Passthrough: opts.fg,
	}

	stdin, err := c.resolveStdin(opts.in, source)
	if err != nil {
		return nil, err
	}
	spec.Stdin = stdin

	writer, callback, err := c.resolveSink(optOut, opts.out, closers)
	if err != nil {
		return nil, err
	}
	spec.Stdout = writer
	spec.OnStdout = callback

	writer, callback, err = c.resolveSink(optErr, opts.err, closers)
	if err != nil {
		return nil, err
	}
	spec.Stderr = writer
	spec.OnStderr = callback

	return spec, nil
}

// resolveStdin turns the _in option or an upstream command into a reader.
// A piped upstream streams; any other upstream is drained first so its
// failure surfaces here instead of as a confusing downstream error.
func (c *Command) resolveStdin(in interface{}, source *RunningCommand) (io.Reader, error) {
	if source != nil {
		if source.mode == ModePiped && source.handle != nil {
			return newChunkReader(source.handle.Output()), nil
		}
		if err := source.Wait(); err != nil {
			return nil, err
		}
		return bytes.NewReader(source.Stdout()), nil
	}

	switch x := in.(type) {
	case nil:
		return nil, nil
	case string:
		return strings.NewReader(x), nil
	case []byte:
		return bytes.NewReader(x), nil
	case io.Reader:
		return x, nil
	default:
		return nil, optionErrorf("option %q expects a string, []byte, or io.Reader, got %T", optIn, in)
	}
}

// resolveSink turns an _out or _err value into either a writer or a chunk
// callback. String values name files created on the session filesystem and
// closed when the command is waited on.
func (c *Command) resolveSink(key string, v interface{}, closers *listCloser) (io.Writer, func([]byte), error) {
	switch x := v.(type) {
	case nil:
		return nil, nil, nil
	case func([]byte):
		return nil, x, nil
	case func(string):
		return nil, func(chunk []byte) { x(string(chunk)) }, nil
	case io.Writer:
		return x, nil, nil
	case string:
		if x == "" {
			return nil, nil, optionErrorf("option %q filename must not be empty", key)
		}
		f, err := c.session.fs.Create(x)
		if err != nil {
			return nil, nil, err
		}
		closers.add(f)
		return f, nil, nil
	default:
		return nil, nil, optionErrorf("option %q expects a filename, io.Writer, or chunk callback, got %T", key, v)
	}
}
