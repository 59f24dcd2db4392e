package wakebench

import (
	"context"
	"fmt"
	"log/slog"
)

// DefaultRounds is the default number of measured comparison rounds.
const DefaultRounds = 4

// ArmResult accumulates one arm ("on" or "off") of the comparison: the
// per-round statistics, their merge, and the pooled histogram of every raw
// sample the arm produced.
type ArmResult struct {
	Rounds []SampleStatistics
	Merged SampleStatistics
	Hist   Histogram
}

// ComparisonResult holds both arms of an A/B session.
type ComparisonResult struct {
	On  ArmResult
	Off ArmResult
}

// Comparison sequences an A/B session: discard rounds to let the toggle's
// transient effects settle, then alternating measured rounds with the
// feature on and off.
type Comparison struct {
	Runner Runner
	Toggle FeatureToggle
	Logger *slog.Logger
	Rounds int // Measured rounds; 0 means DefaultRounds
}

func (c *Comparison) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// Run executes the full comparison. The feature's original setting is
// restored on every exit path, including cancellation and runner failure.
// On cancellation the partial result gathered so far is returned along with
// the context error.
//
// Round parity flips the measurement order (even rounds on→off, odd rounds
// off→on) so that monotonic drift across the session (thermal throttling,
// frequency scaling) cancels out instead of biasing whichever arm always
// ran second.
func (c *Comparison) Run(ctx context.Context, iterations, warmup int) (ComparisonResult, error) {
	rounds := c.Rounds
	if rounds <= 0 {
		rounds = DefaultRounds
	}

	var result ComparisonResult

	orig, err := c.Toggle.Read()
	if err != nil {
		return result, fmt.Errorf("feature toggle unreadable: %w", err)
	}
	defer func() {
		if werr := c.Toggle.Write(orig); werr != nil {
			c.logger().Warn("failed to restore feature setting", "value", orig, "err", werr)
		}
	}()

	// Discard rounds at 1/5 scale, one per arm. Toggling the feature can
	// perturb scheduler state for a while; these let it settle and their
	// samples are thrown away.
	discardIters := iterations / 5
	if discardIters < 500 {
		discardIters = 500
	}
	discardWarmup := warmup / 5
	if discardWarmup < 100 {
		discardWarmup = 100
	}
	for _, on := range []bool{true, false} {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		c.logger().Info("discard round", "feature_on", on, "iterations", discardIters)
		if err := c.runArm(ctx, nil, on, discardIters, discardWarmup); err != nil {
			return result, err
		}
	}

	for round := 0; round < rounds; round++ {
		order := []bool{true, false}
		if round%2 == 1 {
			order = []bool{false, true}
		}
		for _, on := range order {
			if ctx.Err() != nil {
				return c.finish(result), ctx.Err()
			}
			c.logger().Info("measured round",
				"round", round+1, "total_rounds", rounds, "feature_on", on)
			if err := c.runArm(ctx, &result, on, iterations, warmup); err != nil {
				return c.finish(result), err
			}
		}
	}

	return c.finish(result), nil
}

// runArm toggles the feature and runs one half-round. result == nil marks a
// discard round whose samples are dropped.
func (c *Comparison) runArm(ctx context.Context, result *ComparisonResult, on bool, iterations, warmup int) error {
	v := 0
	if on {
		v = 1
	}
	if err := c.Toggle.Write(v); err != nil {
		return fmt.Errorf("feature toggle: %w", err)
	}

	samples, err := c.Runner.Run(ctx, iterations, warmup)
	if err != nil {
		return err
	}
	if result == nil || len(samples) == 0 {
		return nil
	}

	arm := &result.Off
	if on {
		arm = &result.On
	}
	arm.Rounds = append(arm.Rounds, ComputeStatistics(samples))
	arm.Hist.Add(samples)
	return nil
}

// finish merges whatever per-round statistics each arm collected.
func (c *Comparison) finish(result ComparisonResult) ComparisonResult {
	if len(result.On.Rounds) > 0 {
		result.On.Merged = MergeStatistics(result.On.Rounds)
	}
	if len(result.Off.Rounds) > 0 {
		result.Off.Merged = MergeStatistics(result.Off.Rounds)
	}
	return result
}

// Outcome classifies a comparison.
type Outcome string

const (
	Improvement  Outcome = "IMPROVEMENT"  // Feature lowered wake latency
	Regression   Outcome = "REGRESSION"   // Feature raised wake latency
	Inconclusive Outcome = "INCONCLUSIVE" // Delta within the noise threshold
)

// inconclusiveBand is the |delta| below which a comparison is not called
// either way. Run-to-run variance on a busy host easily exceeds 1%.
const inconclusiveBand = 1.0

// Verdict is the classified outcome of an A/B session.
type Verdict struct {
	Outcome      Outcome
	DeltaPercent float64 // (on - off) / off × 100, on the trimmed mean
	Reason       string
}

// Classify compares the two merged arms. Lower latency is better, so a
// negative delta is an improvement. The trimmed mean decides: it is the
// aggregate least distorted by outlier wakes.
func Classify(on, off SampleStatistics) Verdict {
	if off.TrimmedMean <= 0 || on.Count == 0 || off.Count == 0 {
		return Verdict{
			Outcome: Inconclusive,
			Reason:  "insufficient samples in one or both arms",
		}
	}

	delta := (on.TrimmedMean - off.TrimmedMean) / off.TrimmedMean * 100

	v := Verdict{DeltaPercent: delta}
	switch {
	case delta <= -inconclusiveBand:
		v.Outcome = Improvement
		v.Reason = fmt.Sprintf("trimmed mean wake latency dropped %.1f%% with the feature on", -delta)
	case delta >= inconclusiveBand:
		v.Outcome = Regression
		v.Reason = fmt.Sprintf("trimmed mean wake latency rose %.1f%% with the feature on", delta)
	default:
		v.Outcome = Inconclusive
		v.Reason = fmt.Sprintf("delta %.1f%% is within the %.0f%% noise band", delta, inconclusiveBand)
	}
	return v
}
