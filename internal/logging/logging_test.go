package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewLogfmtKeepsEventShape(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, "info", "logfmt")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	logger.Info("startup", "event", "ready", "port", 2222)
	out := buf.String()
	for _, want := range []string{"level=info", "msg=startup", "event=ready", "port=2222"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output %q missing %q", out, want)
		}
	}
}

func TestNewFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, "warn", "logfmt")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	logger.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("expected info to be filtered, got %q", buf.String())
	}
}

func TestNewRejectsUnknownInputs(t *testing.T) {
	if _, err := New(nil, "loud", "logfmt"); err == nil {
		t.Fatal("expected error for unknown level")
	}
	if _, err := New(nil, "info", "xml"); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestOrDefault(t *testing.T) {
	if OrDefault(nil) == nil {
		t.Fatal("OrDefault(nil) returned nil")
	}
	l := Discard()
	if OrDefault(l) != l {
		t.Fatal("OrDefault should return the given logger")
	}
}
