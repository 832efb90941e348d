package logger

// LogEntry is one line of the event log. Exactly one event field is set
// per entry.
type LogEntry struct {
	// TimestampMicros is the time of the event in microseconds since the
	// UNIX epoch.
	TimestampMicros int64 `json:"timestamp_micros,omitempty"`
	// SessionID ties the entry to one interactive or remote session. It is
	// blank for entries produced outside any session.
	SessionID string `json:"session_id,omitempty"`

	SessionStart     *SessionStart     `json:"session_start,omitempty"`
	SessionEnd       *SessionEnd       `json:"session_end,omitempty"`
	LoginAttempt     *LoginAttempt     `json:"login_attempt,omitempty"`
	ResolveFailure   *ResolveFailure   `json:"resolve_failure,omitempty"`
	Invocation       *Invocation       `json:"invocation,omitempty"`
	InvocationResult *InvocationResult `json:"invocation_result,omitempty"`
	ReplLine         *ReplLine         `json:"repl_line,omitempty"`
	Panic            *Panic            `json:"panic,omitempty"`
}

// Event returns whichever payload is attached to the entry, or nil for an
// entry that carries none.
func (le *LogEntry) Event() Event {
	switch {
	case le.SessionStart != nil:
		return le.SessionStart
	case le.SessionEnd != nil:
		return le.SessionEnd
	case le.LoginAttempt != nil:
		return le.LoginAttempt
	case le.ResolveFailure != nil:
		return le.ResolveFailure
	case le.Invocation != nil:
		return le.Invocation
	case le.InvocationResult != nil:
		return le.InvocationResult
	case le.ReplLine != nil:
		return le.ReplLine
	case le.Panic != nil:
		return le.Panic
	}
	return nil
}

// Event is one loggable payload. Each event type knows which LogEntry
// field it occupies.
type Event interface {
	attach(le *LogEntry)
}

// SessionStart records the beginning of a session.
type SessionStart struct {
	// User is the local or authenticated remote user.
	User string `json:"user,omitempty"`
	// RemoteAddr is set for sessions served over the network.
	RemoteAddr string `json:"remote_addr,omitempty"`
	// Term is the client's terminal type, if known.
	Term string `json:"term,omitempty"`
}

func (e SessionStart) attach(le *LogEntry) { le.SessionStart = &e }

// SessionEnd records a session finishing with its final status.
type SessionEnd struct {
	ExitCode int `json:"exit_code"`
}

func (e SessionEnd) attach(le *LogEntry) { le.SessionEnd = &e }

// LoginAttempt records one authentication attempt against the remote
// listener.
type LoginAttempt struct {
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	// PublicKeyFingerprint is the SHA256 fingerprint of an offered key.
	PublicKeyFingerprint string `json:"public_key_fingerprint,omitempty"`
	RemoteAddr           string `json:"remote_addr,omitempty"`
	// Result is "success" or "failure".
	Result string `json:"result,omitempty"`
}

func (e LoginAttempt) attach(le *LogEntry) { le.LoginAttempt = &e }

// ResolveFailure records a program name that could not be resolved.
type ResolveFailure struct {
	Name  string `json:"name,omitempty"`
	Error string `json:"error,omitempty"`
}

func (e ResolveFailure) attach(le *LogEntry) { le.ResolveFailure = &e }

// Invocation records a command being started, or parked by a with-block.
type Invocation struct {
	// Argv is the full command line including prefixes.
	Argv []string `json:"argv,omitempty"`
	// Mode is the lifecycle of the invocation, e.g. "blocking" or "piped".
	Mode string `json:"mode,omitempty"`
	// Dir is the working directory the command ran in.
	Dir string `json:"dir,omitempty"`
}

func (e Invocation) attach(le *LogEntry) { le.Invocation = &e }

// InvocationResult records a command finishing.
type InvocationResult struct {
	FullCmd  string `json:"full_cmd,omitempty"`
	ExitCode int    `json:"exit_code"`
}

func (e InvocationResult) attach(le *LogEntry) { le.InvocationResult = &e }

// ReplLine records one line read by the interactive loop.
type ReplLine struct {
	Line string `json:"line,omitempty"`
}

func (e ReplLine) attach(le *LogEntry) { le.ReplLine = &e }

// Panic records a recovered panic so crashes in one session never take
// down the process silently.
type Panic struct {
	Context    string `json:"context,omitempty"`
	Stacktrace string `json:"stacktrace,omitempty"`
}

func (e Panic) attach(le *LogEntry) { le.Panic = &e }
