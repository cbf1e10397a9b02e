package logutil

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestNewLoggerTraceLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, LevelTrace)

	logger.Log(t.Context(), LevelTrace, "tensor gebunden", "name", "down1.0.weight")

	out := buf.String()
	if !strings.Contains(out, "level=TRACE") {
		t.Errorf("Ausgabe enthaelt kein TRACE-Level: %q", out)
	}
	if !strings.Contains(out, "source=logutil_test.go:") {
		t.Errorf("Quellangabe sollte gekuerzt sein: %q", out)
	}
}

func TestTraceDisabled(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	slog.SetDefault(NewLogger(&buf, slog.LevelInfo))
	Trace("sollte nicht erscheinen")
	if buf.Len() != 0 {
		t.Errorf("Trace bei INFO-Level geschrieben: %q", buf.String())
	}

	slog.SetDefault(NewLogger(&buf, LevelTrace))
	Trace("sichtbar", "key", 1)
	if !strings.Contains(buf.String(), "msg=sichtbar") {
		t.Errorf("Trace bei TRACE-Level fehlt: %q", buf.String())
	}
}
