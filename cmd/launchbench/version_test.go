package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestPrintVersion(t *testing.T) {
	var buf bytes.Buffer
	printVersion(&buf)

	out := buf.String()
	if !strings.HasPrefix(out, "launchbench ") {
		t.Fatalf("expected the program name first, got: %s", out)
	}
	if !strings.Contains(out, "runtime:") {
		t.Fatalf("expected the Go runtime line, got: %s", out)
	}
	if !strings.Contains(out, "backends:") || !strings.Contains(out, "virtual") {
		t.Fatalf("expected the compiled-in backend list, got: %s", out)
	}
}
