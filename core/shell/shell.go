// Package shell is the interactive surface of the invocation engine: a
// readline loop that parses each input line as POSIX shell grammar and
// translates the supported forms onto sh.Session invocations.
//
// The grammar support is deliberately narrow: plain calls, pipelines,
// && and ||, output/input redirection, trailing &, and environment
// assignments. Anything fancier is a syntax error, not a silent no-op.
package shell

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/abiosoft/readline"
	"github.com/fatih/color"

	"github.com/subproc/gosh/core/config"
	"github.com/subproc/gosh/core/logger"
	"github.com/subproc/gosh/core/sh"
)

const (
	EnvHome     = "HOME"
	EnvPWD      = "PWD"
	EnvPath     = "PATH"
	EnvPrompt   = "PS1"
	EnvHostname = "HOSTNAME"
	EnvUser     = "USER"

	DefaultPrompt = `\u@\h:\w\$ `
)

// IO carries the streams and terminal callbacks one shell runs against.
// The zero callbacks mean "not a terminal, 80 columns".
type IO struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// Width reports the current terminal width.
	Width func() int
	// IsTTY reports whether the output is a terminal; it gates colored
	// error rendering and readline echo behavior.
	IsTTY func() bool
}

// Shell is one interactive session over an engine session.
type Shell struct {
	session *sh.Session
	cfg     *config.Configuration
	rl      *readline.Instance

	stdout io.Writer
	stderr io.Writer
	isTTY  func() bool

	lastRet int
	history []string
	quit    bool
}

// New builds a shell reading and writing streams. The caller owns the
// session; assignments and cd inside the shell mutate it.
func New(cfg *config.Configuration, session *sh.Session, streams IO) (*Shell, error) {
	if streams.Width == nil {
		streams.Width = func() int { return 80 }
	}
	if streams.IsTTY == nil {
		streams.IsTTY = func() bool { return false }
	}

	rlCfg := &readline.Config{
		Stdin:          readline.NewCancelableStdin(streams.Stdin),
		Stdout:         streams.Stdout,
		Stderr:         streams.Stderr,
		HistoryFile:    cfg.HistoryPath(),
		FuncGetWidth:   streams.Width,
		FuncIsTerminal: streams.IsTTY,
	}
	if err := rlCfg.Init(); err != nil {
		return nil, err
	}

	rl, err := readline.NewEx(rlCfg)
	if err != nil {
		return nil, err
	}

	shell := &Shell{
		session: session,
		cfg:     cfg,
		rl:      rl,
		stdout:  streams.Stdout,
		stderr:  streams.Stderr,
		isTTY:   streams.IsTTY,
	}
	shell.initEnv()
	return shell, nil
}

// init seeds prompt and identity variables the way login would.
func (s *Shell) initEnv() {
	env := s.session.Env()
	if _, ok := env.Lookup(EnvPrompt); !ok {
		prompt := s.cfg.Prompt
		if prompt == "" {
			prompt = DefaultPrompt
		}
		env.Set(EnvPrompt, prompt)
	}
	if _, ok := env.Lookup(EnvHostname); !ok {
		if host, err := os.Hostname(); err == nil {
			env.Set(EnvHostname, host)
		}
	}
	env.Set(EnvPWD, s.session.Getwd())
}

// SeedArgs exposes the invocation arguments to the session the way a login
// shell exposes script arguments: ARGV holds them joined, ARG0..ARGn hold
// each one.
func SeedArgs(session *sh.Session, args []string) {
	env := session.Env()
	env.Set("ARGV", strings.Join(args, " "))
	for i, arg := range args {
		env.Set("ARG"+strconv.Itoa(i), arg)
	}
}

// Banner writes the greeting shown before the first prompt.
func (s *Shell) Banner(version string) {
	fmt.Fprintf(s.stdout, "gosh %s, type 'help' for builtins and 'exit' to quit.\n", version)
}

// Run reads and executes lines until end of input or an exit request, and
// returns the final exit status.
func (s *Shell) Run() int {
	defer s.rl.Close()

	for !s.quit {
		s.rl.SetPrompt(s.prompt())
		line, err := s.rl.Readline()

		switch {
		case err == io.EOF:
			return s.lastRet // Input closed, quit.

		case err == readline.ErrInterrupt:
			// Interrupt clears the line.
			continue

		case err != nil:
			s.errorf("gosh: %v", err)
			return 1

		case strings.TrimSpace(line) == "":
			continue
		}

		s.history = append(s.history, line)
		s.session.Record(logger.ReplLine{Line: line})
		s.Interpret(line)
	}
	return s.lastRet
}

// Interpret parses and executes one line, returning the resulting status.
// Errors render to the shell's stderr, never to the caller.
func (s *Shell) Interpret(line string) int {
	if err := s.runLine(line); err != nil {
		s.errorf("gosh: %v", err)
		if s.lastRet == 0 {
			s.lastRet = 1
		}
	}
	return s.lastRet
}

// LastStatus reports the status of the most recent command, i.e. $?.
func (s *Shell) LastStatus() int {
	return s.lastRet
}

func (s *Shell) errorf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if s.isTTY() {
		msg = color.New(color.FgRed).Sprint(msg)
	}
	fmt.Fprintln(s.stderr, msg)
}

// prompt renders PS1 with \u, \h, \w, and \$ expanded and backslash
// escapes interpreted, so ANSI colored prompts from the config work.
func (s *Shell) prompt() string {
	env := s.session.Env()
	prompt := env.Get(EnvPrompt)
	if prompt == "" {
		prompt = DefaultPrompt
	}

	user := env.Get(EnvUser)
	prompt = strings.ReplaceAll(prompt, `\u`, user)
	prompt = strings.ReplaceAll(prompt, `\h`, env.Get(EnvHostname))

	pwd := s.session.Getwd()
	if home := env.Get(EnvHome); home != "" && strings.HasPrefix(pwd, home) {
		pwd = "~" + strings.TrimPrefix(pwd, home)
	}
	prompt = strings.ReplaceAll(prompt, `\w`, pwd)

	if user == "root" {
		prompt = strings.ReplaceAll(prompt, `\$`, "#")
	} else {
		prompt = strings.ReplaceAll(prompt, `\$`, "$")
	}

	return unescape(prompt)
}
