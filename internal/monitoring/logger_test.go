package monitoring

import (
	"fmt"
	"strings"
	"testing"
)

func capture(t *testing.T) *[]string {
	t.Helper()
	original := Logf
	t.Cleanup(func() { Logf = original })

	var lines []string
	SetLogger(func(format string, v ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, v...))
	})
	return &lines
}

func TestSetLogger(t *testing.T) {
	lines := capture(t)

	Logf("hello %d", 42)
	if len(*lines) != 1 || (*lines)[0] != "hello 42" {
		t.Fatalf("custom logger not used, got %v", *lines)
	}

	// nil installs a no-op: nothing reaches the previous logger
	SetLogger(nil)
	Logf("muted")
	if len(*lines) != 1 {
		t.Errorf("no-op logger should not forward, got %v", *lines)
	}
}

func TestWarnf(t *testing.T) {
	lines := capture(t)

	Warnf("dropped %d", 3)
	if len(*lines) != 1 {
		t.Fatalf("expected one line, got %d", len(*lines))
	}
	got := (*lines)[0]
	if !strings.Contains(got, "dropped 3") {
		t.Errorf("warning text missing: %q", got)
	}
	if !strings.HasPrefix(got, "\033[93m") || !strings.HasSuffix(got, "\033[0m") {
		t.Errorf("warning not highlighted: %q", got)
	}
}

func TestPrefixed(t *testing.T) {
	lines := capture(t)

	logf := Prefixed("transmit")
	logf("sent %s", "ok")
	if (*lines)[0] != "[transmit] sent ok" {
		t.Errorf("got %q", (*lines)[0])
	}
}

func TestLogf_Default(t *testing.T) {
	if Logf == nil {
		t.Fatal("Logf should not be nil by default")
	}
}
