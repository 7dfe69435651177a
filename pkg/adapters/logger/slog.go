// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-trustd.
//
// go-trustd is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package logger

import (
	"log/slog"
	"os"
)

// SlogAdapter wraps a slog.Logger to implement the Logger interface
type SlogAdapter struct {
	logger *slog.Logger
	fields []Field
}

// SlogConfig configures the slog adapter
type SlogConfig struct {
	// Level is the minimum log level to output
	Level Level

	// Format selects "text" or "json" output; text is the default
	Format string

	// Handler overrides the handler entirely; Level and Format are then
	// ignored
	Handler slog.Handler
}

// NewSlogAdapter creates a new slog adapter writing to stderr.
func NewSlogAdapter(config *SlogConfig) *SlogAdapter {
	if config == nil {
		config = &SlogConfig{}
	}
	handler := config.Handler
	if handler == nil {
		opts := &slog.HandlerOptions{Level: levelToSlog(config.Level)}
		if config.Format == "json" {
			handler = slog.NewJSONHandler(os.Stderr, opts)
		} else {
			handler = slog.NewTextHandler(os.Stderr, opts)
		}
	}
	return &SlogAdapter{logger: slog.New(handler)}
}

// Default returns a text adapter at info level.
func Default() Logger {
	return NewSlogAdapter(nil)
}

// Debug logs a debug message
func (l *SlogAdapter) Debug(msg string, fields ...Field) {
	l.logger.Debug(msg, l.args(fields)...)
}

// Info logs an informational message
func (l *SlogAdapter) Info(msg string, fields ...Field) {
	l.logger.Info(msg, l.args(fields)...)
}

// Warn logs a warning message
func (l *SlogAdapter) Warn(msg string, fields ...Field) {
	l.logger.Warn(msg, l.args(fields)...)
}

// Error logs an error message
func (l *SlogAdapter) Error(msg string, fields ...Field) {
	l.logger.Error(msg, l.args(fields)...)
}

// Fatal logs an error message and terminates the process. Reserved for
// detected invariant violations that are not recoverable.
func (l *SlogAdapter) Fatal(msg string, fields ...Field) {
	l.logger.Error(msg, l.args(fields)...)
	os.Exit(2)
}

// With creates a child logger carrying the given fields.
func (l *SlogAdapter) With(fields ...Field) Logger {
	child := &SlogAdapter{logger: l.logger}
	child.fields = append(append([]Field{}, l.fields...), fields...)
	return child
}

func (l *SlogAdapter) args(fields []Field) []any {
	args := make([]any, 0, 2*(len(l.fields)+len(fields)))
	for _, f := range l.fields {
		args = append(args, f.Key, f.Value)
	}
	for _, f := range fields {
		args = append(args, f.Key, f.Value)
	}
	return args
}

func levelToSlog(l Level) slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
