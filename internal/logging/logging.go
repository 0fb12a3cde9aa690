/*
Copyright © 2026 Benny Powers <web@bennypowers.com>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

// Package logging provides the Logger interface shared by every resolve-
// and watch-path component, backed by a zap.SugaredLogger.
package logging

import (
	"go.uber.org/zap"
)

// Logger is the small interface the resolver and watch machinery log
// through, so tests can swap in a silent or capturing implementation.
type Logger interface {
	Warning(format string, args ...any)
	Debug(format string, args ...any)
}

// zapLogger adapts a zap.SugaredLogger to Logger.
type zapLogger struct {
	sugar *zap.SugaredLogger
}

// New builds a production zap logger (JSON to stderr, info level) wrapped
// as a Logger.
func New() (Logger, error) {
	z, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}
	return &zapLogger{sugar: z.Sugar()}, nil
}

// NewDevelopment builds a human-readable, debug-enabled zap logger, for
// CLI interactive use (depgraph watch).
func NewDevelopment() (Logger, error) {
	z, err := zap.NewDevelopment()
	if err != nil {
		return nil, err
	}
	return &zapLogger{sugar: z.Sugar()}, nil
}

func (l *zapLogger) Warning(format string, args ...any) {
	l.sugar.Warnf(format, args...)
}

func (l *zapLogger) Debug(format string, args ...any) {
	l.sugar.Debugf(format, args...)
}

// Nop is a Logger that discards everything, used by default in tests and
// library callers that don't want logging.
type Nop struct{}

func (Nop) Warning(format string, args ...any) {}
func (Nop) Debug(format string, args ...any)   {}
