package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoggerRespectsLevel(t *testing.T) {
	l := New(WARN, "", "test", 10)
	defer l.Close()
	l.SetConsoleOutput(false)

	l.Debug("should be filtered")
	l.Warn("should appear")

	buf := l.GetBuffer()
	if len(buf) != 1 {
		t.Fatalf("expected exactly one buffered entry, got %d", len(buf))
	}
	if buf[0].Message != "should appear" {
		t.Errorf("got %q", buf[0].Message)
	}
}

func TestLoggerBufferIsBounded(t *testing.T) {
	l := New(TRACE, "", "test", 3)
	defer l.Close()
	l.SetConsoleOutput(false)

	for i := 0; i < 10; i++ {
		l.Info("entry")
	}
	if got := len(l.GetBuffer()); got != 3 {
		t.Errorf("expected buffer capped at 3, got %d", got)
	}
}

func TestLoggerWritesToFile(t *testing.T) {
	dir := t.TempDir()
	l := New(INFO, dir, "ippd", 10)
	l.SetConsoleOutput(false)
	l.Info("hello from test")
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "ippd.log"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(data), "hello from test") {
		t.Errorf("expected log file to contain the written entry, got %q", string(data))
	}
}

func TestLoggerCopyDumpsBuffer(t *testing.T) {
	l := New(INFO, "", "test", 10)
	defer l.Close()
	l.SetConsoleOutput(false)
	l.Info("buffered entry")

	var sb strings.Builder
	if err := l.Copy(&sb); err != nil {
		t.Fatalf("Copy: %v", err)
	}
	if !strings.Contains(sb.String(), "buffered entry") {
		t.Errorf("expected Copy to dump the in-memory buffer, got %q", sb.String())
	}
}

func TestWarnRateLimitedSuppressesRepeats(t *testing.T) {
	l := New(WARN, "", "test", 10)
	defer l.Close()
	l.SetConsoleOutput(false)

	l.WarnRateLimited("k", time.Hour, "first")
	l.WarnRateLimited("k", time.Hour, "second")

	buf := l.GetBuffer()
	if len(buf) != 1 {
		t.Fatalf("expected the second rate-limited call to be suppressed, got %d entries", len(buf))
	}
}

func TestLevelFromString(t *testing.T) {
	cases := map[string]Level{
		"ERROR": ERROR,
		"WARN":  WARN,
		"INFO":  INFO,
		"DEBUG": DEBUG,
		"TRACE": TRACE,
		"":      INFO,
		"bogus": INFO,
	}
	for s, want := range cases {
		if got := LevelFromString(s); got != want {
			t.Errorf("LevelFromString(%q) = %v, want %v", s, got, want)
		}
	}
}

func TestErrCallbackLogsAtErrorLevel(t *testing.T) {
	l := New(ERROR, "", "test", 10)
	defer l.Close()
	l.SetConsoleOutput(false)

	cb := l.ErrCallback()
	cb("device failure", nil)

	buf := l.GetBuffer()
	if len(buf) != 1 || buf[0].Level != ERROR {
		t.Fatalf("expected one ERROR-level entry, got %+v", buf)
	}
}
