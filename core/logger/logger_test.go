package logger

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJsonLinesRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	log := NewJsonLinesLogRecorder(&buf).NewSession()

	require.NoError(t, log.Record(SessionStart{User: "jill", RemoteAddr: "203.0.113.7:9999"}))
	require.NoError(t, log.Record(Invocation{Argv: []string{"/bin/ls", "-la"}, Mode: "blocking", Dir: "/home/jill"}))
	require.NoError(t, log.Record(InvocationResult{FullCmd: "/bin/ls -la", ExitCode: 0}))
	require.NoError(t, log.Record(ResolveFailure{Name: "gti", Error: "executable file not found"}))
	require.NoError(t, log.Record(SessionEnd{ExitCode: 2}))

	assert.Equal(t, 5, strings.Count(buf.String(), "\n"), "one line per entry")

	var entries []*LogEntry
	err := ReadJSONLinesLog(&buf, func(le *LogEntry) {
		entries = append(entries, le)
	})
	require.NoError(t, err)
	require.Len(t, entries, 5)

	for _, le := range entries {
		assert.Equal(t, log.SessionID(), le.SessionID)
		assert.NotZero(t, le.TimestampMicros)
		assert.NotNil(t, le.Event())
	}

	inv, ok := entries[1].Event().(*Invocation)
	require.True(t, ok)
	assert.Equal(t, []string{"/bin/ls", "-la"}, inv.Argv)
	assert.Equal(t, "blocking", inv.Mode)
}

func TestSessionlessEntriesHaveNoID(t *testing.T) {
	var buf bytes.Buffer
	log := NewJsonLinesLogRecorder(&buf).Sessionless()

	require.NoError(t, log.Record(Panic{Context: "startup", Stacktrace: "stack"}))

	var entries []*LogEntry
	require.NoError(t, ReadJSONLinesLog(&buf, func(le *LogEntry) {
		entries = append(entries, le)
	}))
	require.Len(t, entries, 1)
	assert.Empty(t, entries[0].SessionID)
}

func TestReportAggregates(t *testing.T) {
	var buf bytes.Buffer
	logger := NewJsonLinesLogRecorder(&buf)

	first := logger.NewSession()
	require.NoError(t, first.Record(SessionStart{User: "root", RemoteAddr: "198.51.100.4:51022"}))
	require.NoError(t, first.Record(LoginAttempt{Username: "root", Password: "hunter2", Result: "success"}))
	require.NoError(t, first.Record(Invocation{Argv: []string{"/usr/bin/uptime"}, Mode: "blocking"}))
	require.NoError(t, first.Record(InvocationResult{FullCmd: "/usr/bin/uptime", ExitCode: 0}))

	second := logger.NewSession()
	require.NoError(t, second.Record(SessionStart{User: "jill"}))
	require.NoError(t, second.Record(ReplLine{Line: "gti status"}))
	require.NoError(t, second.Record(ResolveFailure{Name: "gti", Error: "executable file not found"}))
	require.NoError(t, second.Record(Invocation{Argv: []string{"/bin/false"}, Mode: "blocking"}))
	require.NoError(t, second.Record(InvocationResult{FullCmd: "/bin/false", ExitCode: 1}))
	require.NoError(t, second.Record(SessionEnd{ExitCode: 1}))

	var report Report
	require.NoError(t, ReadJSONLinesLog(&buf, report.Update))

	assert.Equal(t, 10, report.LogEntries)
	assert.Equal(t, 2, report.Session.Count)
	assert.Equal(t, 1, report.Session.Users.Count("root"))
	assert.Equal(t, 1, report.Login.Passwords.Count("hunter2"))
	assert.Equal(t, 1, report.Invocation.CommandNames.Count("/bin/false"))
	assert.Equal(t, 1, report.Invocation.ExitCodes.Count("1"))
	assert.Equal(t, 1, report.Resolve.CommandNames.Count("gti"))
}

func TestInteractionReportGroupsBySession(t *testing.T) {
	var buf bytes.Buffer
	logger := NewJsonLinesLogRecorder(&buf)

	session := logger.NewSession()
	require.NoError(t, session.Record(SessionStart{User: "jill"}))
	require.NoError(t, session.Record(Invocation{Argv: []string{"/bin/ls", "-la"}}))
	require.NoError(t, logger.Sessionless().Record(Panic{Context: "serve"}))

	var report InteractionReport
	require.NoError(t, ReadJSONLinesLog(&buf, report.Update))

	out, err := report.MarshalJSON()
	require.NoError(t, err)
	assert.Contains(t, string(out), session.SessionID())
	assert.Contains(t, string(out), "/bin/ls -la")
}

func TestBugReportCollectsFailures(t *testing.T) {
	report := NewBugReport()

	le := &LogEntry{}
	ResolveFailure{Name: "gti", Error: "not found"}.attach(le)
	report.Update(le)

	le = &LogEntry{}
	Panic{Context: "repl", Stacktrace: "stack"}.attach(le)
	report.Update(le)

	assert.Equal(t, 2, report.LogEntries)
	require.Len(t, report.Panics, 1)
	assert.Equal(t, "repl", report.Panics[0].Context)

	out, err := report.ResolveFailures.MarshalJSON()
	require.NoError(t, err)
	assert.Contains(t, string(out), "gti")
}
