package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(WARN, false)
	l.SetOutput(&buf)

	l.Info("hidden")
	l.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("INFO line written at WARN level: %q", out)
	}
	if !strings.Contains(out, "WARN: shown") {
		t.Errorf("expected WARN line, got %q", out)
	}
}

func TestLoggerJSONWithFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(DEBUG, true)
	l.SetOutput(&buf)

	l.WithField("component", "devices").Info("enabled", Fields{"device": "RTX"})

	var entry LogEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("invalid JSON line %q: %v", buf.String(), err)
	}
	if entry.Level != "INFO" || entry.Message != "enabled" {
		t.Errorf("unexpected entry: %+v", entry)
	}
	if entry.Fields["component"] != "devices" || entry.Fields["device"] != "RTX" {
		t.Errorf("fields not merged: %+v", entry.Fields)
	}
}

func TestWithFieldSharesSink(t *testing.T) {
	var buf bytes.Buffer
	parent := NewLogger(INFO, false)
	child := parent.WithField("pass_id", "abc")
	parent.SetOutput(&buf)

	child.Info("from child")

	if !strings.Contains(buf.String(), "pass_id=abc") {
		t.Errorf("child did not write to parent sink: %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"debug":   DEBUG,
		"INFO":    INFO,
		"warning": WARN,
		"error":   ERROR,
		"bogus":   INFO,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
