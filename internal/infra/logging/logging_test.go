package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"dialogue-orchestrator/internal/config"
)

func TestWith_AddsContextFields(t *testing.T) {
	var buf bytes.Buffer
	base := newWithWriter(config.LogConfig{Level: "debug", Format: "json"}, false, &buf)

	ctx := WithRoom(WithTraceID(context.Background(), "t-1"), "room-7")
	ctx = WithSessID(ctx, "s-1")
	With(ctx, base).Info().Msg("hello")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("log line is not json: %v (%q)", err, buf.String())
	}
	for k, want := range map[string]string{"trace_id": "t-1", "room": "room-7", "session_id": "s-1"} {
		if line[k] != want {
			t.Errorf("%s = %v, want %s", k, line[k], want)
		}
	}
	if TraceIDFrom(ctx) != "t-1" {
		t.Errorf("TraceIDFrom = %q", TraceIDFrom(ctx))
	}
}

func TestNew_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := newWithWriter(config.LogConfig{Level: "warn", Format: "json"}, false, &buf)
	l.Info().Msg("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered at warn level, got %q", buf.String())
	}
	l.Warn().Msg("kept")
	if buf.Len() == 0 {
		t.Fatal("warn should be written")
	}
}

func TestRedact(t *testing.T) {
	if got := Redact("short", false); got != "***" {
		t.Errorf("Redact short = %q", got)
	}
	if got := Redact("a longer utterance", false); got != "a lo...ce" {
		t.Errorf("Redact long = %q", got)
	}
	if got := Redact("anything", true); got != "anything" {
		t.Errorf("Redact dev = %q", got)
	}
}
