// Package logger is a standardized event logging framework for the
// invocation engine. Entries are newline delimited JSON, one event per
// entry, so logs stay greppable and replayable.
package logger
