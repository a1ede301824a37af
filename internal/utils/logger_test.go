package utils

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestStructuredLogging(t *testing.T) {
	var buf bytes.Buffer
	SetLoggerForTest(zerolog.New(&buf))

	Info("composite done", "product", "mug", "bytes", 42)
	Warn("cache miss", "key", "k")
	Error("load failed", "error", errors.New("boom"), "dangling")

	out := buf.String()
	for _, want := range []string{`"product":"mug"`, `"bytes":42`, `"key":"k"`, `"error":"boom"`, `"dangling":null`} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %s in %s", want, out)
		}
	}
}

func TestSetLogLevelFiltersAndFallsBack(t *testing.T) {
	var buf bytes.Buffer
	SetLoggerForTest(zerolog.New(&buf))

	SetLogLevel("error")
	Info("hidden")
	if strings.Contains(buf.String(), "hidden") {
		t.Fatalf("info must be filtered at error level")
	}

	SetLogLevel("not-a-level")
	Info("visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Fatalf("unknown level should fall back to info")
	}
}

func TestInitLoggerWritesFile(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "mockup.log")
	InitLogger(logFile, 1, 1, 1, false, "info")
	Info("hello", "k", "v")
	SetLoggerForTest(zerolog.New(&bytes.Buffer{}))
}
