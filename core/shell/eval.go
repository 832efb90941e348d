package shell

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"mvdan.cc/sh/v3/syntax"

	"github.com/spf13/afero"

	"github.com/subproc/gosh/core/sh"
)

// execContext carries the streams and expansion state for one statement.
// Pipelines derive child contexts from it.
type execContext struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	// assigns holds per-command NAME=value pairs, visible to expansion but
	// not persisted unless the statement has no command word.
	assigns []assignment

	// opts accumulates call options from redirects and a trailing &.
	opts sh.Kwargs

	// pipeIn is the upstream of a pipeline stage: a *sh.RunningCommand for
	// an engine command, or []byte for buffered builtin output.
	pipeIn interface{}
	// pipeOut, when set, receives this stage's output instead of stdout.
	pipeOut *pipeResult
}

type assignment struct {
	name  string
	value string
}

// pipeResult is the handoff between two pipeline stages.
type pipeResult struct {
	rc  *sh.RunningCommand
	buf *bytes.Buffer
}

// value returns whatever the upstream stage produced.
func (p *pipeResult) value() interface{} {
	switch {
	case p.rc != nil:
		return p.rc
	case p.buf != nil:
		return p.buf.Bytes()
	}
	return []byte(nil)
}

func (s *Shell) runLine(line string) error {
	file, err := syntax.NewParser().Parse(strings.NewReader(line), "")
	if err != nil {
		return fmt.Errorf("syntax error: %v", err)
	}

	for _, stmt := range file.Stmts {
		ec := execContext{
			stdin:  s.rl.Config.Stdin,
			stdout: s.stdout,
			stderr: s.stderr,
			opts:   sh.Kwargs{},
		}
		if err := s.execStmt(ec, stmt); err != nil {
			return err
		}
	}
	return nil
}

func cloneOpts(opts sh.Kwargs) sh.Kwargs {
	out := make(sh.Kwargs, len(opts))
	for k, v := range opts {
		out[k] = v
	}
	return out
}

func syntaxErr(node syntax.Node) error {
	return fmt.Errorf("unsupported syntax near column %d", node.Pos().Col())
}

func (s *Shell) execStmt(ec execContext, stmt *syntax.Stmt) error {
	// Each statement gets its own option map so a redirect on one branch
	// of && or | never bleeds into the other.
	ec.opts = cloneOpts(ec.opts)

	if stmt.Background {
		ec.opts["_bg"] = true
	}
	if stmt.Negated {
		return syntaxErr(stmt)
	}

	for _, redirect := range stmt.Redirs {
		if err := s.applyRedirect(&ec, redirect); err != nil {
			return err
		}
	}

	switch cmd := stmt.Cmd.(type) {
	case *syntax.CallExpr:
		return s.execCall(ec, cmd)

	case *syntax.BinaryCmd:
		switch cmd.Op {
		case syntax.AndStmt:
			if err := s.execStmt(ec, cmd.X); err != nil {
				return err
			}
			if s.lastRet == 0 {
				return s.execStmt(ec, cmd.Y)
			}
			return nil

		case syntax.OrStmt:
			if err := s.execStmt(ec, cmd.X); err != nil {
				return err
			}
			if s.lastRet != 0 {
				return s.execStmt(ec, cmd.Y)
			}
			return nil

		case syntax.Pipe:
			result := &pipeResult{}
			xEc := ec
			xEc.pipeOut = result
			if err := s.execStmt(xEc, cmd.X); err != nil {
				return err
			}

			yEc := ec
			yEc.pipeIn = result.value()
			return s.execStmt(yEc, cmd.Y)

		default:
			return syntaxErr(stmt)
		}

	default:
		return syntaxErr(stmt)
	}
}

// applyRedirect translates one shell redirection into a call option:
// > and 2> become _out and _err, 2>&1 becomes _err_to_out, and < reads the
// named file into _in.
func (s *Shell) applyRedirect(ec *execContext, redirect *syntax.Redirect) error {
	from := ""
	if redirect.N != nil {
		from = redirect.N.Value
	}

	target, err := s.evalWord(*ec, redirect.Word)
	if err != nil {
		return err
	}

	switch redirect.Op {
	case syntax.RdrOut:
		if target == "" {
			return syntaxErr(redirect)
		}
		switch from {
		case "", "1":
			ec.opts["_out"] = target
		case "2":
			ec.opts["_err"] = target
		default:
			return syntaxErr(redirect)
		}
		return nil

	case syntax.DplOut:
		if from == "2" && target == "1" {
			ec.opts["_err_to_out"] = true
			return nil
		}
		return syntaxErr(redirect)

	case syntax.RdrIn:
		if from != "" && from != "0" {
			return syntaxErr(redirect)
		}
		contents, err := afero.ReadFile(s.session.Fs(), target)
		if err != nil {
			return err
		}
		ec.opts["_in"] = contents
		return nil

	default:
		return syntaxErr(redirect)
	}
}

func (s *Shell) execCall(ec execContext, call *syntax.CallExpr) error {
	assigns, err := s.evalAssigns(ec, call.Assigns)
	if err != nil {
		return err
	}
	ec.assigns = assigns

	var args []string
	for _, word := range call.Args {
		arg, err := s.evalWord(ec, word)
		if err != nil {
			return err
		}
		args = append(args, arg)
	}

	// A statement of bare assignments updates the session itself.
	if len(args) == 0 {
		for _, a := range assigns {
			s.session.Env().Set(a.name, a.value)
		}
		s.lastRet = 0
		return nil
	}

	if builtin, ok := AllBuiltins[args[0]]; ok {
		return s.execBuiltin(ec, builtin, args)
	}
	return s.execProgram(ec, args)
}

func (s *Shell) execBuiltin(ec execContext, builtin Builtin, args []string) error {
	if len(ec.opts) != 0 {
		return fmt.Errorf("%s: redirection and & are not supported for builtins", args[0])
	}

	frame := Frame{Stdin: ec.stdin, Stdout: ec.stdout, Stderr: ec.stderr}
	if b, ok := ec.pipeIn.([]byte); ok {
		frame.Stdin = bytes.NewReader(b)
	}
	if rc, ok := ec.pipeIn.(*sh.RunningCommand); ok {
		if err := rc.Wait(); err != nil && !isExitError(err) {
			return err
		}
		frame.Stdin = bytes.NewReader(rc.Stdout())
	}
	if ec.pipeOut != nil {
		buf := &bytes.Buffer{}
		ec.pipeOut.buf = buf
		frame.Stdout = buf
	}

	s.lastRet = builtin.Main(s, frame, args)
	return nil
}

func (s *Shell) execProgram(ec execContext, args []string) error {
	session := s.session
	if len(ec.assigns) > 0 {
		// Per-command assignments live on a forked session so they never
		// leak into the interactive environment.
		session = session.Fork()
		for _, a := range ec.assigns {
			session.Env().Set(a.name, a.value)
		}
	}

	cmd, err := session.Command(args[0])
	if err != nil {
		var notFound *sh.CommandNotFoundError
		if errors.As(err, &notFound) {
			s.errorf("gosh: %s: command not found", args[0])
			s.lastRet = 127
			return nil
		}
		return err
	}

	opts := ec.opts
	invokeArgs := make([]interface{}, 0, len(args)+2)
	switch in := ec.pipeIn.(type) {
	case *sh.RunningCommand:
		invokeArgs = append(invokeArgs, in)
	case []byte:
		opts["_in"] = in
	}
	for _, arg := range args[1:] {
		invokeArgs = append(invokeArgs, arg)
	}
	if ec.pipeOut != nil {
		opts["_piped"] = true
	}
	invokeArgs = append(invokeArgs, opts)

	rc, err := cmd.Invoke(invokeArgs...)
	if err != nil && !isExitError(err) {
		return err
	}

	if ec.pipeOut != nil {
		ec.pipeOut.rc = rc
		return nil
	}
	if opts["_bg"] == true {
		s.lastRet = 0
		return nil
	}

	if out := rc.Stdout(); len(out) > 0 {
		ec.stdout.Write(out)
	}
	if errOut := rc.Stderr(); len(errOut) > 0 {
		ec.stderr.Write(errOut)
	}

	code, err := rc.ExitCode()
	if err != nil {
		return err
	}
	s.lastRet = code
	return nil
}

func isExitError(err error) bool {
	var exitErr *sh.ExitError
	return errors.As(err, &exitErr)
}

// evalAssigns resolves NAME=value pairs left to right; each assignment is
// visible to the expansions that follow it.
func (s *Shell) evalAssigns(ec execContext, assigns []*syntax.Assign) ([]assignment, error) {
	var out []assignment
	for _, assign := range assigns {
		if assign.Name == nil {
			continue
		}
		scoped := ec
		scoped.assigns = out
		value, err := s.evalWord(scoped, assign.Value)
		if err != nil {
			return nil, err
		}
		out = append(out, assignment{name: assign.Name.Value, value: value})
	}
	return out, nil
}

func (s *Shell) evalWord(ec execContext, word *syntax.Word) (string, error) {
	if word == nil {
		return "", nil
	}
	var out strings.Builder
	for _, part := range word.Parts {
		evaled, err := s.evalWordPart(ec, part)
		if err != nil {
			return "", err
		}
		out.WriteString(evaled)
	}
	return out.String(), nil
}

func (s *Shell) evalWordPart(ec execContext, part syntax.WordPart) (string, error) {
	switch part := part.(type) {
	case *syntax.Lit:
		return part.Value, nil

	case *syntax.SglQuoted:
		return part.Value, nil

	case *syntax.DblQuoted:
		var out strings.Builder
		for _, sub := range part.Parts {
			evaled, err := s.evalWordPart(ec, sub)
			if err != nil {
				return "", err
			}
			out.WriteString(evaled)
		}
		return out.String(), nil

	case *syntax.ParamExp:
		if part.Param == nil {
			return "", syntaxErr(part)
		}
		return s.lookupVar(ec, part.Param.Value), nil

	default:
		return "", syntaxErr(part)
	}
}

// lookupVar resolves $NAME: shell specials first, then per-command
// assignments, then the session environment.
func (s *Shell) lookupVar(ec execContext, name string) string {
	switch name {
	case "?":
		return strconv.Itoa(s.lastRet)
	case "$":
		return strconv.Itoa(os.Getpid())
	}
	for i := len(ec.assigns) - 1; i >= 0; i-- {
		if ec.assigns[i].name == name {
			return ec.assigns[i].value
		}
	}
	return s.session.Env().Get(name)
}
