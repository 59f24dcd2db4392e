package wakebench

import (
	"math"
	"testing"
)

// AssertOrderedStatistics verifies the ordering invariant every non-empty
// sample vector must satisfy: min ≤ p50 ≤ p99 ≤ max, with the trimmed mean
// inside [min, max].
func AssertOrderedStatistics(t *testing.T, s SampleStatistics) {
	t.Helper()

	if s.Count == 0 {
		t.Fatal("statistics computed from zero samples")
	}
	if s.Min > s.P50 || s.P50 > s.P99 || s.P99 > s.Max {
		t.Errorf("percentile ordering violated: min=%d p50=%d p99=%d max=%d",
			s.Min, s.P50, s.P99, s.Max)
	}
	if s.TrimmedMean < float64(s.Min) || s.TrimmedMean > float64(s.Max) {
		t.Errorf("trimmed mean %.2f outside [%d, %d]", s.TrimmedMean, s.Min, s.Max)
	}
}

// AssertHistogramComplete verifies the bucket fractions of a non-empty
// histogram sum to 1 within floating-point tolerance.
func AssertHistogramComplete(t *testing.T, h *Histogram) {
	t.Helper()

	var sum float64
	for b := 0; b < NumBuckets; b++ {
		sum += h.Fraction(b)
	}
	if h.Total == 0 {
		if sum != 0 {
			t.Errorf("empty histogram has nonzero fraction sum %v", sum)
		}
		return
	}
	if math.Abs(sum-1.0) > 1e-9 {
		t.Errorf("bucket fractions sum to %v, want 1.0", sum)
	}
}

// AssertParamsInvariant verifies that every CPU is accounted for exactly
// once by a parameter derivation.
func AssertParamsInvariant(t *testing.T, p RunParameters, ncpus int) {
	t.Helper()

	got := 1 + p.Background + p.Workers*(1+p.ShadowsPerWorker) + p.Idle
	if got != ncpus {
		t.Errorf("CPU accounting: 1+%d+%d*(1+%d)+%d = %d, want %d",
			p.Background, p.Workers, p.ShadowsPerWorker, p.Idle, got, ncpus)
	}
	if p.Workers < 1 {
		t.Errorf("workers = %d, want at least 1", p.Workers)
	}
}
