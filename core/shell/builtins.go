package shell

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/pborman/getopt/v2"
)

// AllBuiltins holds every registered shell builtin, keyed by name.
// Builtins run inside the shell process; they shadow programs of the same
// name on the search path.
var AllBuiltins = make(map[string]Builtin)

// Frame is the stdio a builtin runs against; pipelines substitute buffers.
type Frame struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

type Builtin interface {
	Main(s *Shell, frame Frame, args []string) int
}

type BuiltinFunc func(s *Shell, frame Frame, args []string) int

func (f BuiltinFunc) Main(s *Shell, frame Frame, args []string) int {
	return f(s, frame, args)
}

var _ Builtin = (BuiltinFunc)(nil)

// Cd is the cd shell builtin.
func Cd(s *Shell, frame Frame, args []string) int {
	switch len(args) {
	case 1:
		args = append(args, s.session.Env().Get(EnvHome))
		fallthrough
	case 2:
		if err := s.session.Chdir(args[1]); err != nil {
			fmt.Fprintf(frame.Stderr, "%s: %v\n", args[0], err)
			return 1
		}
	default:
		fmt.Fprintf(frame.Stderr, "%s: too many arguments\n", args[0])
		return 1
	}
	return 0
}

// Which resolves each argument the way the invocation engine would,
// reporting builtins, aliases, and executable paths.
func Which(s *Shell, frame Frame, args []string) int {
	if len(args) < 2 {
		fmt.Fprintln(frame.Stderr, "usage: which NAME...")
		return 1
	}

	ret := 0
	for _, name := range args[1:] {
		if _, ok := AllBuiltins[name]; ok {
			fmt.Fprintf(frame.Stdout, "%s: shell builtin\n", name)
			continue
		}
		if expansion, ok := s.session.Alias(name); ok {
			fmt.Fprintf(frame.Stdout, "%s: aliased to %s\n", name, expansion)
			continue
		}
		cmd, err := s.session.Command(name)
		if err != nil {
			fmt.Fprintf(frame.Stderr, "%s not found\n", name)
			ret = 1
			continue
		}
		fmt.Fprintln(frame.Stdout, cmd.Path())
	}
	return ret
}

// Export sets NAME=value arguments in the session environment; with no
// arguments it lists the environment.
func Export(s *Shell, frame Frame, args []string) int {
	if len(args) == 1 {
		for _, kv := range s.session.Env().Environ() {
			fmt.Fprintf(frame.Stdout, "export %s\n", kv)
		}
		return 0
	}

	ret := 0
	for _, arg := range args[1:] {
		name, value, ok := strings.Cut(arg, "=")
		if name == "" {
			fmt.Fprintf(frame.Stderr, "export: %q: not a valid identifier\n", arg)
			ret = 1
			continue
		}
		if !ok {
			// Bare names re-export the current value; nothing to do since
			// every session variable is exported.
			continue
		}
		s.session.Env().Set(name, value)
	}
	return ret
}

// Unset removes variables from the session environment.
func Unset(s *Shell, frame Frame, args []string) int {
	opts := getopt.New()
	opts.Bool('v', "treat NAME as a variable")
	helpOpt := opts.BoolLong("help", 'h', "show help and exit")

	if err := opts.Getopt(args, nil); err != nil || *helpOpt {
		w := frame.Stderr
		if err != nil {
			fmt.Fprintln(w, err)
		}
		fmt.Fprintln(w, "usage: unset [-v] [NAME...]")
		fmt.Fprintln(w, "Unset shell variables.")
		return 1
	}

	for _, name := range opts.Args() {
		s.session.Env().Unset(name)
	}
	return 0
}

// History displays or clears the lines read so far.
func History(s *Shell, frame Frame, args []string) int {
	opts := getopt.New()
	clear := opts.Bool('c', "clear the history by deleting all entries")
	helpOpt := opts.BoolLong("help", 'h', "show help and exit")

	if err := opts.Getopt(args, nil); err != nil || *helpOpt {
		w := frame.Stderr
		if err != nil {
			fmt.Fprintln(w, err)
		}
		fmt.Fprintln(w, "Display or manipulate the history list.")
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Options:")
		opts.PrintOptions(w)
		return 1
	}

	if *clear {
		s.rl.Operation.ResetHistory()
		s.history = nil
		return 0
	}

	for i, line := range s.history {
		fmt.Fprintf(frame.Stdout, "% 5d  %s\n", i+1, line)
	}
	return 0
}

// Exit requests shell termination with an optional status.
func Exit(s *Shell, frame Frame, args []string) int {
	code := s.lastRet
	if len(args) > 1 {
		parsed, err := strconv.Atoi(args[1])
		if err != nil {
			fmt.Fprintf(frame.Stderr, "exit: %s: numeric argument required\n", args[1])
			parsed = 2
		}
		code = parsed
	}
	s.quit = true
	s.lastRet = code
	return code
}

// Help lists the registered builtins.
func Help(s *Shell, frame Frame, args []string) int {
	fmt.Fprintln(frame.Stdout, "These commands are defined internally, everything else runs as a program.")
	fmt.Fprintln(frame.Stdout)

	var names []string
	for name := range AllBuiltins {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Fprintln(frame.Stdout, strings.Join(names, "\n"))
	return 0
}

func init() {
	AllBuiltins["cd"] = BuiltinFunc(Cd)
	AllBuiltins["which"] = BuiltinFunc(Which)
	AllBuiltins["export"] = BuiltinFunc(Export)
	AllBuiltins["unset"] = BuiltinFunc(Unset)
	AllBuiltins["history"] = BuiltinFunc(History)
	AllBuiltins["exit"] = BuiltinFunc(Exit)
	AllBuiltins["help"] = BuiltinFunc(Help)
}
