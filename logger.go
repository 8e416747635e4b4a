// Copyright 2026 The krnl Authors
// SPDX-License-Identifier: BSD-3-Clause

package krnl

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/Leif-Rydenfalk/krnl/internal/engine"
)

// nopHandler is a slog.Handler that silently discards all log records.
// The Enabled method returns false so the caller skips message formatting
// entirely, making disabled logging effectively zero-cost.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

// newNopLogger creates a logger that silently discards all output.
func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr stores the active logger. Accessed atomically so that
// SetLogger can be called concurrently with logging from any goroutine.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(newNopLogger())
}

// SetLogger configures the logger for krnl and its internal packages.
// By default, krnl produces no log output. Pass nil to restore the
// default silent behavior.
//
// Log levels used by krnl:
//   - [slog.LevelDebug]: internal diagnostics (pipeline creation, buffer sizes)
//   - [slog.LevelInfo]: lifecycle events (device opened, artifact loaded)
//   - [slog.LevelWarn]: non-fatal issues (host fallback, release errors)
//
// SetLogger is safe for concurrent use.
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)
	engine.SetLogger(l)
}

// Logger returns the current logger used by krnl.
// It is safe for concurrent use.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}
