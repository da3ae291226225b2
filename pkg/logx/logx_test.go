package logx

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestZeroLoggerIsSafe(t *testing.T) {
	t.Parallel()
	var l Logger
	if !l.IsZero() {
		t.Fatal("zero logger should report IsZero")
	}
	l.Info("nothing", String("k", "v"))
	if Nop().IsZero() {
		t.Fatal("Nop logger should not report IsZero")
	}
}

func TestWriterLoggerFields(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	l := NewWriter(&buf, "debug").With(String("comp", "scheduler"))
	l.Info("job fired", String("job_id", "abc"), Err(errors.New("boom")), Err(nil))

	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("log line is not JSON: %v (%q)", err, buf.String())
	}
	if m["message"] != "job fired" || m["comp"] != "scheduler" || m["job_id"] != "abc" || m["err"] != "boom" {
		t.Fatalf("unexpected log line: %v", m)
	}
	if c, _ := m["caller"].(string); !strings.HasPrefix(c, "logx_test.go:") {
		t.Fatalf("caller = %q", c)
	}
}

func TestWriterLoggerLevel(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	l := NewWriter(&buf, "warn")
	l.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered at warn level: %q", buf.String())
	}
	l.Warn("shown")
	if !strings.Contains(buf.String(), `"message":"shown"`) {
		t.Fatalf("warn should pass at warn level: %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{in: "", want: zerolog.InfoLevel},
		{in: " DEBUG ", want: zerolog.DebugLevel},
		{in: "Warning", want: zerolog.WarnLevel},
		{in: "trace", want: zerolog.TraceLevel},
		{in: "loud", want: zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in, zerolog.InfoLevel); got != tt.want {
			t.Fatalf("parseLevel(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestStackTraceNamesCaller(t *testing.T) {
	t.Parallel()
	st := StackTrace(2, 4)
	first, _, _ := strings.Cut(st, "\n")
	if !strings.Contains(first, "TestStackTraceNamesCaller") || !strings.Contains(first, "logx_test.go:") {
		t.Fatalf("first frame = %q", first)
	}
}

func TestFormatChatLine(t *testing.T) {
	t.Parallel()
	got := formatChatLine([]byte(`{"level":"warn","time":"x","message":"send failed","job_id":"j1","attempt":3}` + "\n"))
	want := "[WARN] send failed\n- attempt=3\n- job_id=j1"
	if got != want {
		t.Fatalf("formatChatLine = %q, want %q", got, want)
	}
	if got := formatChatLine([]byte("  plain text \n")); got != "plain text" {
		t.Fatalf("non-JSON line = %q", got)
	}
}
