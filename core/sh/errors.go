package sh

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/subproc/gosh/core/lookup"
)

// truncateCap bounds how much captured output an exit error renders before
// eliding the rest.
const truncateCap = 750

// ExitKind identifies one nonzero exit status. Kinds are interned: every
// failure with the same code unwraps to the same value, so
//
//	errors.Is(err, sh.ExitStatus(2))
//
// matches any command that exited 2.
type ExitKind struct {
	Code int
}

func (k *ExitKind) Error() string {
	return fmt.Sprintf("ExitStatus_%d", k.Code)
}

var (
	exitKindsMu sync.Mutex
	exitKinds   = make(map[int]*ExitKind)
)

// ExitStatus returns the interned kind for code, creating it on first use.
func ExitStatus(code int) *ExitKind {
	exitKindsMu.Lock()
	defer exitKindsMu.Unlock()

	kind, ok := exitKinds[code]
	if !ok {
		kind = &ExitKind{Code: code}
		exitKinds[code] = kind
	}
	return kind
}

var exitKindName = regexp.MustCompile(`^ExitStatus_(\d+)$`)

// ExitKindByName resolves names like "ExitStatus_2" back to their interned
// kind. It reports false for anything else.
func ExitKindByName(name string) (*ExitKind, bool) {
	m := exitKindName.FindStringSubmatch(name)
	if m == nil {
		return nil, false
	}
	code, err := strconv.Atoi(m[1])
	if err != nil || code == 0 {
		return nil, false
	}
	return ExitStatus(code), true
}

// ExitError reports a command that ran to completion with a nonzero status.
// Stdout and Stderr hold whatever the invocation captured; a nil stream
// means it was redirected away and renders as "<redirected>".
type ExitError struct {
	Kind    *ExitKind
	FullCmd string
	Stdout  []byte
	Stderr  []byte
}

func newExitError(fullCmd string, code int, stdout, stderr []byte) *ExitError {
	return &ExitError{
		Kind:    ExitStatus(code),
		FullCmd: fullCmd,
		Stdout:  stdout,
		Stderr:  stderr,
	}
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s:\n\n  RAN: %q\n\n  STDOUT:\n%s\n\n  STDERR:\n%s",
		e.Kind.Error(),
		e.FullCmd,
		renderStream(e.Stdout, "e.Stdout"),
		renderStream(e.Stderr, "e.Stderr"))
}

// Unwrap exposes the interned kind so callers can match on the code alone.
func (e *ExitError) Unwrap() error {
	return e.Kind
}

// ExitCode returns the status the command exited with.
func (e *ExitError) ExitCode() int {
	return e.Kind.Code
}

func renderStream(stream []byte, field string) string {
	if stream == nil {
		return "<redirected>"
	}
	if len(stream) <= truncateCap {
		return string(stream)
	}
	return fmt.Sprintf("%s... (%d more, please see %s)",
		stream[:truncateCap], len(stream)-truncateCap, field)
}

// CommandNotFoundError reports a program name that could not be resolved to
// an executable.
type CommandNotFoundError struct {
	Name string
	Err  error
}

func (e *CommandNotFoundError) Error() string {
	return fmt.Sprintf("command not found: %s", e.Name)
}

// Unwrap exposes the resolver error, typically lookup.ErrNotFound.
func (e *CommandNotFoundError) Unwrap() error {
	if e.Err == nil {
		return lookup.ErrNotFound
	}
	return e.Err
}

// OptionError reports an invocation that could not be assembled: conflicting
// call options or arguments that do not parse into a command line.
type OptionError struct {
	Reason string
}

func (e *OptionError) Error() string {
	return e.Reason
}

func optionErrorf(format string, args ...interface{}) *OptionError {
	return &OptionError{Reason: fmt.Sprintf(format, args...)}
}

func incompatibleOptions(a, b string) *OptionError {
	return optionErrorf("option %q is incompatible with option %q", a, b)
}

// unbalancedQuoteError explains how to pass a literal double quote through
// the argument compiler, which quotes every value before re-splitting it.
func unbalancedQuoteError() *OptionError {
	var b strings.Builder
	b.WriteString("no closing quotation found in compiled arguments.\n")
	b.WriteString("Values are wrapped in double quotes before being split, so a literal\n")
	b.WriteString("double quote inside a value must be escaped twice:\n\n")
	b.WriteString("  incorrect: \"double quote: \\\"\"\n")
	b.WriteString("  correct:   \"double quote: \\\\\\\"\" or `double quote: \\\"`\n")
	return &OptionError{Reason: b.String()}
}
