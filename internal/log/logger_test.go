package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("Failed to decode JSON: %v (%q)", err, buf.String())
	}
	return out
}

func TestNewHonoursLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Level: "warn", Writer: &buf, Service: "armsd"})

	l.Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered at WARN, got %q", buf.String())
	}

	l.Warn("kept", "k", "v")
	out := decodeLine(t, &buf)
	if out["msg"] != "kept" || out["k"] != "v" || out["service"] != "armsd" {
		t.Errorf("unexpected record: %v", out)
	}
}

func TestNewTextFormat(t *testing.T) {
	var buf bytes.Buffer
	New(Options{Format: "TEXT", Writer: &buf}).Info("hello", "arm", "a")

	line := buf.String()
	if !strings.Contains(line, "msg=hello") || !strings.Contains(line, "arm=a") {
		t.Errorf("unexpected text record: %q", line)
	}
}

func TestSetupReplacesLogger(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() {
		current.Store(nil)
		slog.SetDefault(prev)
	})

	var first, second bytes.Buffer
	Setup(Options{Writer: &first})
	Get().Info("one")
	Setup(Options{Writer: &second})
	Get().Info("two")

	if !strings.Contains(first.String(), `"one"`) || strings.Contains(first.String(), `"two"`) {
		t.Errorf("first = %q", first.String())
	}
	if !strings.Contains(second.String(), `"two"`) {
		t.Errorf("second = %q", second.String())
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestWithArmAndDecision(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))

	WithDecision(WithArm(base, "subject-a"), "d-123").Info("picked")

	out := decodeLine(t, &buf)
	if out["arm"] != "subject-a" {
		t.Errorf("Expected arm 'subject-a', got %v", out["arm"])
	}
	if out["decision_id"] != "d-123" {
		t.Errorf("Expected decision_id 'd-123', got %v", out["decision_id"])
	}
}
