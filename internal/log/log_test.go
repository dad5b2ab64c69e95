package log

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel(LevelWarn)
	t.Cleanup(func() { SetLevel(LevelInfo) })

	Info("hidden", "k", 1)
	Warn("shown", "facility", "commons")
	Error("failed", errors.New("boom"), "id", 7)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("expected INFO line to be filtered, got %q", out)
	}
	if !strings.Contains(out, "[WARN] shown facility=commons") {
		t.Fatalf("expected WARN line, got %q", out)
	}
	if !strings.Contains(out, "[ERROR] failed err=boom id=7") {
		t.Fatalf("expected ERROR line with err first, got %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   LevelDebug,
		" WARN ":  LevelWarn,
		"error":   LevelError,
		"info":    LevelInfo,
		"verbose": LevelInfo,
		"":        LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q): expected %s, got %s", in, want, got)
		}
	}
}

func TestFormatKVsIgnoresOddTail(t *testing.T) {
	got := formatKVs("a", 1, "b")
	if got != " a=1" {
		t.Fatalf("expected %q, got %q", " a=1", got)
	}
}
