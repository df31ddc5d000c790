// Package logging holds the slog plumbing shared by chronicle packages.
//
// Loggers are passed in, never looked up. A package that accepts a nil
// logger stays silent, and each package scopes its logger once with
// Component so that ComponentFilterHandler can route it. Only main decides
// format, destination and levels.
//
// The excerpt read and write paths do not log. Log points sit at lifecycle
// boundaries: open, segment growth, clear, close, archive transfer.
package logging

import "log/slog"

// ComponentKey is the attribute that names the emitting package.
const ComponentKey = "component"

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// Default returns logger, or a discarding logger when it is nil.
func Default(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return Discard()
	}
	return logger
}

// Component scopes logger to the named component, attaching attrs after the
// component key. A nil logger yields a discarding one.
func Component(logger *slog.Logger, name string, attrs ...any) *slog.Logger {
	return Default(logger).With(append([]any{ComponentKey, name}, attrs...)...)
}
