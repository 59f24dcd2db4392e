//go:build linux

package wakebench

import (
	"fmt"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// execContext is the scoped ownership of a thread's CPU affinity and
// scheduling policy. CPU affinity and real-time priority are process-visible
// OS state; whoever mutates them must put them back. acquire saves the
// calling thread's current mask and attributes, release restores them, and
// release is safe to call exactly once on every exit path.
type execContext struct {
	origMask unix.CPUSet
	origAttr *unix.SchedAttr
}

// acquireExecContext pins the calling thread to cpu and elevates it to
// SCHED_FIFO at the given priority. The caller must be locked to its OS
// thread. Elevation failure (no CAP_SYS_NICE) is not fatal: the run
// proceeds with the normal policy at reduced measurement quality, and the
// returned error reports what was denied.
func acquireExecContext(cpu, priority int) (*execContext, error) {
	ec := &execContext{}

	if err := unix.SchedGetaffinity(0, &ec.origMask); err != nil {
		return nil, fmt.Errorf("sched_getaffinity: %w", err)
	}
	attr, err := unix.SchedGetAttr(0, 0)
	if err != nil {
		return nil, fmt.Errorf("sched_getattr: %w", err)
	}
	ec.origAttr = attr

	if err := pinThread(cpu); err != nil {
		ec.origAttr = nil
		return ec, fmt.Errorf("pin cpu %d: %w", cpu, err)
	}

	fifo := unix.SchedAttr{
		Size:     unix.SizeofSchedAttr,
		Policy:   unix.SCHED_FIFO,
		Priority: uint32(priority),
	}
	if err := unix.SchedSetAttr(0, &fifo, 0); err != nil {
		return ec, fmt.Errorf("sched_setattr(SCHED_FIFO): %w", err)
	}
	return ec, nil
}

// release restores the saved affinity mask and scheduling attributes.
func (ec *execContext) release() {
	if ec == nil {
		return
	}
	if ec.origAttr != nil {
		_ = unix.SchedSetAttr(0, ec.origAttr, 0)
	}
	_ = unix.SchedSetaffinity(0, &ec.origMask)
}

// pinThread restricts the calling thread to a single CPU.
func pinThread(cpu int) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(cpu)
	return unix.SchedSetaffinity(0, &set)
}

// currentCPU reports which CPU the calling thread last ran on. x/sys/unix
// carries no getcpu wrapper, so this is the raw syscall.
func currentCPU() int {
	var cpu, node uint32
	_, _, errno := unix.RawSyscall(unix.SYS_GETCPU,
		uintptr(unsafe.Pointer(&cpu)), uintptr(unsafe.Pointer(&node)), 0)
	if errno != 0 {
		return -1
	}
	return int(cpu)
}

// monotonicBase anchors all run timestamps. time.Since reads the monotonic
// clock through the vDSO, so stamping costs no syscall in the dispatch loop.
var monotonicBase = time.Now()

func nowNanos() uint64 {
	return uint64(time.Since(monotonicBase))
}

// busyWaitNanos spins until the deadline without sleeping. Sleeping would
// hand the CPU back to the scheduler under test and pollute the next
// dispatch with a wakeup of our own.
func busyWaitNanos(ns uint64) {
	deadline := nowNanos() + ns
	for nowNanos() < deadline {
	}
}

// spinBound is how many times boundedSpinWait polls before giving up.
// The bound is iteration-based, not a wall-clock deadline, to match the
// measurements this tool is compared against; on a heavily contended host
// it can expire before the condition holds.
const spinBound = 2000

// boundedSpinWait polls v until it becomes nonzero or the bound expires.
func boundedSpinWait(v *atomic.Int32) {
	for i := 0; i < spinBound; i++ {
		if v.Load() != 0 {
			return
		}
	}
}
