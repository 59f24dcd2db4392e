package wakebench

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// TestSysctlToggle_ReadWrite round-trips through a temp file standing in
// for the procfs entry.
func TestSysctlToggle_ReadWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sched_feature")
	if err := os.WriteFile(path, []byte("1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	toggle := &SysctlToggle{Path: path, Settle: time.Millisecond}

	v, err := toggle.Read()
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if v != 1 {
		t.Errorf("Read = %d, want 1", v)
	}

	if err := toggle.Write(0); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := string(b); got != "0\n" {
		t.Errorf("file content = %q, want %q (single write, trailing newline)", got, "0\n")
	}

	if v, err = toggle.Read(); err != nil || v != 0 {
		t.Errorf("Read after write = %d, %v, want 0, nil", v, err)
	}
}

// TestSysctlToggle_Errors verifies failures carry the path.
func TestSysctlToggle_Errors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing")
	toggle := &SysctlToggle{Path: path, Settle: time.Millisecond}

	if _, err := toggle.Read(); err == nil || !strings.Contains(err.Error(), path) {
		t.Errorf("Read error = %v, want it to name %s", err, path)
	}
	if err := toggle.Write(1); err == nil || !strings.Contains(err.Error(), path) {
		t.Errorf("Write error = %v, want it to name %s", err, path)
	}
}

// TestSysctlToggle_ParseError verifies garbage content is a structured
// error, not a zero value.
func TestSysctlToggle_ParseError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage")
	if err := os.WriteFile(path, []byte("not a number\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	toggle := &SysctlToggle{Path: path}
	if _, err := toggle.Read(); err == nil {
		t.Error("expected parse error, got nil")
	}
}
