// Package logging builds the process logger: log/slog on top of zlog's
// console handler, which pretty-prints on a terminal and writes JSON
// otherwise.
package logging

import (
	"io"
	"log/slog"
	"strings"

	"github.com/UNO-SOFT/zlog/v2"
)

// New returns a logger writing to w. Debug records are only emitted when
// verbose is set or level is "debug".
func New(w io.Writer, level string, verbose bool) *slog.Logger {
	// zlog verbosity: 0 warn, 1 info, 2 debug.
	var vv zlog.VerboseVar
	_ = vv.Set("1")
	if verbose || strings.EqualFold(strings.TrimSpace(level), "debug") {
		_ = vv.Set("2")
	}
	return zlog.NewLogger(zlog.MaybeConsoleHandler(&vv, w)).SLog()
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
