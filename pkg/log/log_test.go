package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func newBufferLogger(level Level, formatter Formatter) (Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	l := NewLogger(
		WithLevel(level),
		WithFormatter(formatter),
		WithOutput(NewWriterOutput(&buf)),
	)
	return l, &buf
}

func TestTextFormatterIncludesFields(t *testing.T) {
	l, buf := newBufferLogger(InfoLevel, &TextFormatter{DisableTimestamp: true})
	l.Info("server started", Str("component", "http"), Int("port", 8080))

	out := buf.String()
	if !strings.Contains(out, "INFO") {
		t.Fatalf("missing level in output: %q", out)
	}
	if !strings.Contains(out, "server started") {
		t.Fatalf("missing message in output: %q", out)
	}
	if !strings.Contains(out, "component=http") || !strings.Contains(out, "port=8080") {
		t.Fatalf("missing fields in output: %q", out)
	}
}

func TestJSONFormatterRoundTrips(t *testing.T) {
	l, buf := newBufferLogger(DebugLevel, &JSONFormatter{})
	l.Debug("probe", Str("client", "c1"), Bool("active", true))

	var obj map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &obj); err != nil {
		t.Fatalf("unmarshal log line: %v", err)
	}
	if obj["msg"] != "probe" {
		t.Fatalf("want msg=probe, got %v", obj["msg"])
	}
	if obj["level"] != "DEBUG" {
		t.Fatalf("want level=DEBUG, got %v", obj["level"])
	}
	if obj["client"] != "c1" {
		t.Fatalf("want client=c1, got %v", obj["client"])
	}
	if obj["active"] != true {
		t.Fatalf("want active=true, got %v", obj["active"])
	}
}

func TestLevelGating(t *testing.T) {
	l, buf := newBufferLogger(WarnLevel, &TextFormatter{DisableTimestamp: true})
	l.Debug("dropped")
	l.Info("dropped too")
	l.Warn("kept")

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Fatalf("below-threshold lines were emitted: %q", out)
	}
	if !strings.Contains(out, "kept") {
		t.Fatalf("warn line missing: %q", out)
	}
}

func TestWithFieldsDoesNotMutateParent(t *testing.T) {
	parent, buf := newBufferLogger(InfoLevel, &TextFormatter{DisableTimestamp: true})
	child := parent.With(Str("component", "batcher"))

	child.Info("child line")
	parent.Info("parent line")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("want 2 lines, got %d: %q", len(lines), buf.String())
	}
	if !strings.Contains(lines[0], "component=batcher") {
		t.Fatalf("child line missing component: %q", lines[0])
	}
	if strings.Contains(lines[1], "component=batcher") {
		t.Fatalf("parent line inherited child field: %q", lines[1])
	}
}

func TestWithErrorAttachesField(t *testing.T) {
	l, buf := newBufferLogger(InfoLevel, &TextFormatter{DisableTimestamp: true})
	l.WithError(errors.New("boom")).Error("send failed")
	if !strings.Contains(buf.String(), "error=boom") {
		t.Fatalf("missing error field: %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want Level
		ok   bool
	}{
		{"debug", DebugLevel, true},
		{"INFO", InfoLevel, true},
		{"Warn", WarnLevel, true},
		{"warning", WarnLevel, true},
		{"error", ErrorLevel, true},
		{"fatal", FatalLevel, true},
		{"verbose", InfoLevel, false},
	}
	for _, tc := range cases {
		got, err := ParseLevel(tc.in)
		if tc.ok && err != nil {
			t.Fatalf("ParseLevel(%q): %v", tc.in, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("ParseLevel(%q): expected error", tc.in)
		}
		if tc.ok && got != tc.want {
			t.Fatalf("ParseLevel(%q)=%v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestApplyConfigDefaults(t *testing.T) {
	l, err := ApplyConfig(&Config{})
	if err != nil {
		t.Fatalf("apply empty config: %v", err)
	}
	if l.GetLevel() != InfoLevel {
		t.Fatalf("want default level info, got %v", l.GetLevel())
	}
}

func TestApplyConfigRejectsUnknownFormat(t *testing.T) {
	if _, err := ApplyConfig(&Config{Format: "xml"}); err == nil {
		t.Fatalf("expected error for unknown format")
	}
}

func TestTimestampPresentByDefault(t *testing.T) {
	l, buf := newBufferLogger(InfoLevel, &TextFormatter{})
	l.Info("stamped")
	year := time.Now().UTC().Format("2006")
	if !strings.Contains(buf.String(), year) {
		t.Fatalf("expected timestamp containing %q: %q", year, buf.String())
	}
}
