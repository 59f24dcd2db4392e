package wakebench

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultSysctlPath is the kernel tunable controlling the scheduler feature
// under comparison.
const DefaultSysctlPath = "/proc/sys/kernel/sched_poc_selector"

// DefaultSettleDelay is how long a write waits before returning, so the
// toggled setting has taken effect before measurement starts.
const DefaultSettleDelay = 50 * time.Millisecond

// FeatureToggle flips the scheduler feature under test. The benchmark
// treats the feature as an opaque on/off integer; implementations own the
// mechanism. Read reports the current value; Write sets it and does not
// return until the setting is live.
type FeatureToggle interface {
	Read() (int, error)
	Write(v int) error
}

// SysctlToggle drives the feature through a procfs sysctl file.
type SysctlToggle struct {
	Path   string        // Defaults to DefaultSysctlPath
	Settle time.Duration // Defaults to DefaultSettleDelay
}

func (t *SysctlToggle) path() string {
	if t.Path != "" {
		return t.Path
	}
	return DefaultSysctlPath
}

// Read returns the current sysctl value.
func (t *SysctlToggle) Read() (int, error) {
	b, err := os.ReadFile(t.path())
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", t.path(), err)
	}
	v, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", t.path(), err)
	}
	return v, nil
}

// Write sets the sysctl and sleeps the settle delay.
//
// The value and trailing newline go out in a single write(2). procfs
// handlers reject a follow-up write containing only "\n" with EINVAL, so
// splitting the output the way a buffered writer would is not an option.
func (t *SysctlToggle) Write(v int) error {
	f, err := os.OpenFile(t.path(), os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("open %s: %w", t.path(), err)
	}
	defer f.Close()

	if _, err := f.Write([]byte(strconv.Itoa(v) + "\n")); err != nil {
		return fmt.Errorf("write %s: %w", t.path(), err)
	}

	settle := t.Settle
	if settle == 0 {
		settle = DefaultSettleDelay
	}
	time.Sleep(settle)
	return nil
}
