// Package logx builds the structured loggers pimc and mclst use, adapted
// from telemetry/global-monitor/cmd/global-monitor/main.go's newLogger:
// github.com/lmittmann/tint's console handler, with a millisecond-precision
// UTC timestamp and empty string attrs elided. Unlike the teacher, a
// program's log destination may additionally be a file (spec.md §6's
// "Persisted state": an append-only text log, one record per line, named
// `<prefix>-YYYYMMDD-HHMMSS.log`), so this package adds a plain
// log/slog.JSONHandler sink for that case rather than tint's ANSI-colored
// console rendering.
package logx

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/lmittmann/tint"
)

// Options configures New.
type Options struct {
	Verbose bool
	Prefix  string // e.g. "pimc" or "mclst"
	Dir     string // if empty, only the console handler is used
	NoColor bool
}

// New builds the console (and, if Dir is set, file) slog.Logger.
func New(opts Options) (*slog.Logger, func() error, error) {
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}

	// Color is dropped on request and whenever stdout is not a terminal.
	noColor := opts.NoColor
	if fi, err := os.Stdout.Stat(); err != nil || fi.Mode()&os.ModeCharDevice == 0 {
		noColor = true
	}

	console := tint.NewHandler(os.Stdout, &tint.Options{
		Level:   level,
		NoColor: noColor,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Value = slog.StringValue(formatRFC3339Millis(a.Value.Time()))
			}
			if s, ok := a.Value.Any().(string); ok && s == "" {
				return slog.Attr{}
			}
			return a
		},
	})

	if opts.Dir == "" {
		return slog.New(console), func() error { return nil }, nil
	}

	name := fmt.Sprintf("%s-%s.log", opts.Prefix, time.Now().Format("20060102-150405"))
	f, err := os.OpenFile(filepath.Join(opts.Dir, name), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("logx: open log file: %w", err)
	}
	fileHandler := slog.NewJSONHandler(f, &slog.HandlerOptions{Level: level})

	return slog.New(multiHandler{console, fileHandler}), f.Close, nil
}

func formatRFC3339Millis(t time.Time) string {
	t = t.UTC()
	base := t.Format("2006-01-02T15:04:05")
	ms := t.Nanosecond() / 1_000_000
	return fmt.Sprintf("%s.%03dZ", base, ms)
}

// multiHandler fans every record out to each wrapped slog.Handler: the
// console gets tint's colorized single-line rendering, the file gets
// plain JSON, matching spec.md §6's "append-only text, one record per
// line" requirement without forcing the console to use that format too.
type multiHandler []slog.Handler

func (m multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m multiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, h := range m {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			return err
		}
	}
	return nil
}

func (m multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make(multiHandler, len(m))
	for i, h := range m {
		next[i] = h.WithAttrs(attrs)
	}
	return next
}

func (m multiHandler) WithGroup(name string) slog.Handler {
	next := make(multiHandler, len(m))
	for i, h := range m {
		next[i] = h.WithGroup(name)
	}
	return next
}
