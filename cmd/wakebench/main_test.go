//go:build linux

package main

import (
	"log/slog"
	"strings"
	"testing"

	"github.com/lmittmann/tint"
)

// TestProgressLogger_ResetsBetweenRuns verifies the quarter gate rearms when
// a new run restarts the counter, so rounds after the first still log.
func TestProgressLogger_ResetsBetweenRuns(t *testing.T) {
	var buf strings.Builder
	logger := slog.New(tint.NewHandler(&buf, &tint.Options{
		Level:   slog.LevelDebug,
		NoColor: true,
	}))
	cb := progressLogger(logger)

	for _, done := range []uint32{25, 50, 75, 100} {
		cb(done, 100)
	}
	first := strings.Count(buf.String(), "progress")
	if first != 4 {
		t.Fatalf("first run logged %d progress lines, want 4", first)
	}

	for _, done := range []uint32{25, 50, 75, 100} {
		cb(done, 100)
	}
	if got := strings.Count(buf.String(), "progress") - first; got != 4 {
		t.Errorf("second run logged %d progress lines, want 4", got)
	}
}

// TestProgressLogger_ZeroTotal verifies the zero guard.
func TestProgressLogger_ZeroTotal(t *testing.T) {
	var buf strings.Builder
	logger := slog.New(tint.NewHandler(&buf, &tint.Options{
		Level:   slog.LevelDebug,
		NoColor: true,
	}))
	cb := progressLogger(logger)

	cb(10, 0)
	if buf.Len() != 0 {
		t.Errorf("zero total logged %q, want nothing", buf.String())
	}
}
