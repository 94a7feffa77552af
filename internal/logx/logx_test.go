package logx

import (
	"context"
	"log/slog"
	"testing"
	"time"
)

func TestFormatRFC3339MillisPadsMilliseconds(t *testing.T) {
	ts := time.Date(2026, 7, 31, 12, 0, 0, 5_000_000, time.UTC)
	got := formatRFC3339Millis(ts)
	want := "2026-07-31T12:00:00.005Z"
	if got != want {
		t.Errorf("formatRFC3339Millis = %q, want %q", got, want)
	}
}

type countingHandler struct {
	level   slog.Level
	records int
}

func (h *countingHandler) Enabled(_ context.Context, level slog.Level) bool { return level >= h.level }
func (h *countingHandler) Handle(_ context.Context, _ slog.Record) error   { h.records++; return nil }
func (h *countingHandler) WithAttrs(_ []slog.Attr) slog.Handler            { return h }
func (h *countingHandler) WithGroup(_ string) slog.Handler                 { return h }

func TestMultiHandlerFansOutToEveryEnabledHandler(t *testing.T) {
	a := &countingHandler{level: slog.LevelInfo}
	b := &countingHandler{level: slog.LevelError}
	m := multiHandler{a, b}

	logger := slog.New(m)
	logger.Info("hello")
	logger.Error("boom")

	if a.records != 2 {
		t.Errorf("a.records = %d, want 2", a.records)
	}
	if b.records != 1 {
		t.Errorf("b.records = %d, want 1 (only the error record)", b.records)
	}
}
