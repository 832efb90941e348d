package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// ReadJSONLinesLog parses a newline delimited JSON log.
func ReadJSONLinesLog(r io.Reader, handler func(le *LogEntry)) error {
	decoder := json.NewDecoder(r)
	for decoder.More() {
		var logEntry LogEntry
		if err := decoder.Decode(&logEntry); err != nil {
			return err
		}

		handler(&logEntry)
	}
	return nil
}

func NewBugReport() *BugReport {
	return &BugReport{
		ResolveFailures: NewPathCounter("name", "error"),
	}
}

// BugReport pulls events that likely point at engine or configuration
// problems.
type BugReport struct {
	LogEntries int

	ResolveFailures *PathCounter `json:"resolve_failures"`
	Panics          []*Panic     `json:"panics"`
}

func (r *BugReport) Update(le *LogEntry) {
	r.LogEntries++

	switch event := le.Event().(type) {
	case *Panic:
		r.Panics = append(r.Panics, event)
	case *ResolveFailure:
		r.ResolveFailures.Increment(event.Name, event.Error)
	}
}

type InteractionReport struct {
	// Map of sessionID -> interactions
	interactions map[string]*InteractiveSession
}

// InteractiveSession summarizes what one session did.
type InteractiveSession struct {
	User       string `json:"user,omitempty"`
	RemoteAddr string `json:"remote_addr,omitempty"`
	LogEntries int    `json:"log_entries"`
	ExitCode   int    `json:"exit_code"`

	Lines    []string `json:"lines,omitempty"`
	Commands []string `json:"commands,omitempty"`
}

func (i *InteractiveSession) Update(le *LogEntry) {
	i.LogEntries++

	switch event := le.Event().(type) {
	case *SessionStart:
		i.User = event.User
		i.RemoteAddr = event.RemoteAddr
	case *SessionEnd:
		i.ExitCode = event.ExitCode
	case *ReplLine:
		i.Lines = append(i.Lines, event.Line)
	case *Invocation:
		i.Commands = append(i.Commands, strings.Join(event.Argv, " "))
	}
}

func (i *InteractionReport) init() {
	if i.interactions == nil {
		i.interactions = make(map[string]*InteractiveSession)
	}
}

// MarshalJSON implemnts custom JSON marshaler.
func (i *InteractionReport) MarshalJSON() ([]byte, error) {
	i.init()

	return json.Marshal(i.interactions)
}

func (i *InteractionReport) Update(le *LogEntry) {
	i.init()

	sessionID := le.SessionID
	if sessionID == "" {
		return
	}
	report, ok := i.interactions[sessionID]
	if !ok {
		report = &InteractiveSession{}
		i.interactions[sessionID] = report
	}

	report.Update(le)
}

// Report holds statistics about the logged events.
type Report struct {
	LogEntries     int        `json:"log_entries"`
	InvalidEntries StrCounter `json:"unknown_log_entries,omitempty"`

	Session    SessionReport    `json:"session_report"`
	Login      LoginReport      `json:"login_report"`
	Invocation InvocationReport `json:"invocation_report"`
	Resolve    ResolveReport    `json:"resolve_report"`
	Panic      PanicReport      `json:"panic_report"`
}

func (r *Report) Update(le *LogEntry) {
	r.LogEntries++

	switch event := le.Event().(type) {
	case *SessionStart:
		r.Session.update(event)
	case *LoginAttempt:
		r.Login.update(event)
	case *Invocation:
		r.Invocation.update(event)
	case *InvocationResult:
		r.Invocation.updateResult(event)
	case *ResolveFailure:
		r.Resolve.update(event)
	case *Panic:
		r.Panic.update(event)
	case *SessionEnd, *ReplLine:
		// Ignore
	case nil:
		r.InvalidEntries.Increment("empty")
	default:
		r.InvalidEntries.Increment(fmt.Sprintf("%T", event))
	}
}

type SessionReport struct {
	Count int `json:"count"`
	// List of users and their counts.
	Users StrCounter `json:"users"`
	// List of remote addresses and their counts.
	RemoteAddrs StrCounter `json:"remote_addrs"`
}

func (r *SessionReport) update(s *SessionStart) {
	r.Count++
	r.Users.Increment(s.User)
	if s.RemoteAddr != "" {
		r.RemoteAddrs.Increment(s.RemoteAddr)
	}
}

type LoginReport struct {
	// List of passwords and their counts.
	Passwords StrCounter `json:"passwords"`
	// List of usernames and their counts.
	Usernames StrCounter `json:"usernames"`
	// List of login attempt results and their counts.
	Results StrCounter `json:"results"`
}

func (r *LoginReport) update(la *LoginAttempt) {
	r.Passwords.Increment(la.Password)
	r.Usernames.Increment(la.Username)
	r.Results.Increment(la.Result)
}

type InvocationReport struct {
	// Name of the invoked program.
	CommandNames StrCounter `json:"command_names"`
	// Lifecycle mode of each invocation.
	Modes StrCounter `json:"modes"`
	// Exit codes of completed invocations.
	ExitCodes StrCounter `json:"exit_codes"`
}

func (r *InvocationReport) update(inv *Invocation) {
	if len(inv.Argv) > 0 {
		r.CommandNames.Increment(inv.Argv[0])
	}
	r.Modes.Increment(inv.Mode)
}

func (r *InvocationReport) updateResult(res *InvocationResult) {
	r.ExitCodes.Increment(strconv.Itoa(res.ExitCode))
}

type ResolveReport struct {
	CommandNames StrCounter `json:"command_names"`
}

func (r *ResolveReport) update(rf *ResolveFailure) {
	r.CommandNames.Increment(rf.Name)
}

type PanicReport struct {
	Contexts []string `json:"contexts"`
}

func (r *PanicReport) update(p *Panic) {
	r.Contexts = append(r.Contexts, p.Context)
}

// StrCounter counts the number of strings seen.
type StrCounter struct {
	internal map[string]int
}

// Increment adds one to the given key.
func (s *StrCounter) Increment(toAdd string) {
	if s.internal == nil {
		s.internal = make(map[string]int)
	}

	s.internal[toAdd]++
}

// Count returns how many times key has been seen.
func (s *StrCounter) Count(key string) int {
	return s.internal[key]
}

// MarshalJSON implemnts custom JSON marshaler.
func (s StrCounter) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.internal)
}

func NewPathCounter(cols ...string) *PathCounter {
	return &PathCounter{
		cols:     cols,
		internal: make(map[string]int),
	}
}

// PathCounter counts the number of strings seen.
type PathCounter struct {
	cols     []string
	internal map[string]int
}

// Increment adds one to the given key.
func (ctr *PathCounter) Increment(toAdd ...string) {
	if len(toAdd) != len(ctr.cols) {
		panic("wrong number of columns to add")
	}

	ctr.internal[toKey(toAdd...)]++
}

// MarshalJSON implemnts custom JSON marshaler.
func (ctr *PathCounter) MarshalJSON() ([]byte, error) {
	type Count struct {
		Count  int               `json:"count"`
		Fields map[string]string `json:"event"`
		Path   string            `json:"-"`
	}

	var out []Count
	for k, v := range ctr.internal {
		count := Count{
			Count:  v,
			Path:   k,
			Fields: make(map[string]string),
		}

		splitPath := fromKey(k)
		for colNum, colVal := range ctr.cols {
			count.Fields[colVal] = splitPath[colNum]
		}

		out = append(out, count)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Count == out[j].Count {
			return out[i].Path < out[j].Path
		}
		return out[i].Count > out[j].Count
	})

	return json.Marshal(out)
}

func toKey(vals ...string) string {
	key, _ := json.Marshal(vals)
	return string(key)
}

func fromKey(key string) (out []string) {
	json.Unmarshal([]byte(key), &out)
	return
}
