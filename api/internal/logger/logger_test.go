package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestWithContextAddsIDs(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(New(&buf, Config{Level: "debug", Format: "json"}))
	defer slog.SetDefault(prev)

	ctx := WithSessionID(WithRequestID(context.Background(), "req-1"), "sess-1")
	WithContext(ctx).Info("matched", "stage", "EXACT")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("bad json log line: %v (%s)", err, buf.String())
	}
	if rec["request_id"] != "req-1" || rec["session_id"] != "sess-1" || rec["stage"] != "EXACT" {
		t.Fatalf("unexpected record: %v", rec)
	}
	if RequestID(ctx) != "req-1" {
		t.Fatalf("RequestID() = %q", RequestID(ctx))
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
