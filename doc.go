// Package wakebench measures kernel wake-up latency of blocked worker
// threads, A/B-compared between a scheduler feature toggle and the baseline
// scheduler.
//
// # Overview
//
// A dispatcher thread, pinned to CPU 0 and elevated to SCHED_FIFO, signals a
// set of worker threads through per-worker eventfd wake descriptors. Each
// worker blocks on its descriptor; the elapsed time between the dispatcher
// stamping the signal and the worker observing it is one wake-latency
// sample. Shadow threads chase each worker's CPU so the scheduler's
// placement decisions are evaluated against realistic per-core occupancy,
// and background burner threads keep the machine from being measured idle.
//
// The hard part is measuring microsecond-scale events from inside the same
// noisy, preemptible system: every cross-thread handoff outside the blocking
// wake itself is lock-free busy-waiting, because a futex or channel in the
// measured path would hand the scheduler under test extra wakeups to
// perform.
//
// # Architecture
//
// The package components:
//
//   - stats.go     - Robust aggregates and log2 latency histograms
//   - params.go    - CPU topology → thread-count derivation
//   - harness.go   - One timed dispatch/wake/shadow experiment (Linux)
//   - calibrate.go - Adaptive run sizing toward a target wall-clock phase
//   - compare.go   - Discard + alternating on/off rounds, verdict
//   - toggle.go    - The kernel feature toggle (sysctl)
//   - summary.go   - Final textual report
//
// # Quick Start
//
//	sys := wakebench.DetectSystem()
//	params := wakebench.ComputeParams(sys.NCPUs,
//	    wakebench.DefaultBackground(sys.PhysicalCores), 0)
//
//	harness := &wakebench.Harness{Params: params}
//	cal, err := wakebench.Calibrate(ctx, harness, wakebench.DefaultCalibrationConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	comparison := &wakebench.Comparison{
//	    Runner: harness,
//	    Toggle: &wakebench.SysctlToggle{},
//	}
//	result, err := comparison.Run(ctx, cal.Iterations, cal.Warmup)
//
// # Experiment Ordering
//
// Toggling a scheduler feature perturbs the system, and long sessions drift
// (thermal throttling, frequency scaling). The orchestrator therefore runs
// two discarded settle rounds first, then alternates which arm measures
// first on every round, so monotonic drift cancels instead of biasing one
// arm.
//
// # Process Requirements
//
// The harness mutates process-wide OS state (CPU affinity, SCHED_FIFO
// priority, locked memory) and restores all of it on every exit path,
// including cancellation. Without CAP_SYS_NICE it still runs, at reduced
// measurement quality.
//
// # Testing
//
// Statistics properties have exported assertion helpers:
//
//	func TestMyPipeline(t *testing.T) {
//	    s := wakebench.ComputeStatistics(samples)
//	    wakebench.AssertOrderedStatistics(t, s)
//	}
package wakebench
