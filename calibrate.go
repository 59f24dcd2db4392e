package wakebench

import (
	"context"
	"time"
)

// Runner executes one timed experiment of warmup+iterations rounds and
// returns the per-iteration latency samples in nanoseconds. The harness is
// the real implementation; calibration and comparison depend only on this.
type Runner interface {
	Run(ctx context.Context, iterations, warmup int) ([]uint64, error)
}

// CalibrationConfig controls how a measured phase is sized.
type CalibrationConfig struct {
	ProbeStart      int     // Initial probe iteration count
	ProbeMinSeconds float64 // Probe is trusted once it runs at least this long
	TargetSeconds   float64 // Desired wall-clock length of one measured phase
	WarmupRatio     float64 // Warmup rounds as a fraction of iterations
	MinIterations   int     // Lower clamp on the chosen count
	MaxIterations   int     // Upper clamp on the chosen count
}

// DefaultCalibrationConfig targets a ~5 second measured phase.
func DefaultCalibrationConfig() CalibrationConfig {
	return CalibrationConfig{
		ProbeStart:      50,
		ProbeMinSeconds: 1.0,
		TargetSeconds:   5.0,
		WarmupRatio:     0.2,
		MinIterations:   500,
		MaxIterations:   500_000,
	}
}

// CalibrationResult is the chosen run sizing plus probe diagnostics.
type CalibrationResult struct {
	Iterations  int
	Warmup      int
	ProbeMean   float64 // Trimmed mean of the final probe (µs)
	ProbeStddev float64 // Stddev of the final probe (µs)
}

// Calibrate discovers an iteration count whose measured phase lasts about
// cfg.TargetSeconds on this host, with no hard-coded assumption about host
// speed.
//
// Two phases. First an exponential probe: run small, and while the probe
// finishes under ProbeMinSeconds scale it up by at least 2x (more when the
// probe was very fast). Then a closed-form solve from the final probe's
// per-iteration wall-clock cost:
//
//	N × (1 + WarmupRatio) × perIter = TargetSeconds
//
// The probe guards against overshooting on slow machines, the solve against
// under-sampling on fast ones. N is clamped to
// [MinIterations, MaxIterations] and rounded to the nearest 100.
func Calibrate(ctx context.Context, r Runner, cfg CalibrationConfig) (CalibrationResult, error) {
	probeN := cfg.ProbeStart
	var (
		samples  []uint64
		elapsed  float64
		lastWarm int
	)

	for {
		if err := ctx.Err(); err != nil {
			return CalibrationResult{}, err
		}

		warmup := probeN / 5
		if warmup < 10 {
			warmup = 10
		}
		lastWarm = warmup

		start := time.Now()
		s, err := r.Run(ctx, probeN, warmup)
		if err != nil {
			return CalibrationResult{}, err
		}
		samples = s
		elapsed = time.Since(start).Seconds()

		if elapsed >= cfg.ProbeMinSeconds || probeN >= cfg.MaxIterations {
			break
		}
		factor := cfg.ProbeMinSeconds / elapsed * 1.5
		if factor < 2.0 {
			factor = 2.0
		}
		probeN = int(float64(probeN) * factor)
	}

	sr := ComputeStatistics(samples)

	// Wall-clock cost per round from the final probe, warmup included.
	perIter := elapsed / float64(probeN+lastWarm)

	n := cfg.MinIterations
	if perIter > 0 {
		n = int(cfg.TargetSeconds / ((1 + cfg.WarmupRatio) * perIter))
	}
	if n < cfg.MinIterations {
		n = cfg.MinIterations
	}
	if n > cfg.MaxIterations {
		n = cfg.MaxIterations
	}
	n = (n + 50) / 100 * 100

	warmup := int(float64(n) * cfg.WarmupRatio)
	if warmup < 100 {
		warmup = 100
	}

	return CalibrationResult{
		Iterations:  n,
		Warmup:      warmup,
		ProbeMean:   sr.TrimmedMean / 1000.0,
		ProbeStddev: sr.Stddev / 1000.0,
	}, nil
}
