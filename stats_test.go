package wakebench

import (
	"math"
	"math/rand"
	"testing"
)

// TestComputeStatistics_Empty verifies the zero-value contract.
func TestComputeStatistics_Empty(t *testing.T) {
	s := ComputeStatistics(nil)
	if s != (SampleStatistics{}) {
		t.Errorf("empty input: got %+v, want zero value", s)
	}
}

// TestComputeStatistics_Ladder runs the 100-value ladder scenario:
// samples 100, 200, ..., 10000 ns.
func TestComputeStatistics_Ladder(t *testing.T) {
	samples := make([]uint64, 100)
	for i := range samples {
		samples[i] = uint64((i + 1) * 100)
	}

	s := ComputeStatistics(samples)
	AssertOrderedStatistics(t, s)

	if s.Min != 100 {
		t.Errorf("min = %d, want 100", s.Min)
	}
	if s.Max != 10000 {
		t.Errorf("max = %d, want 10000", s.Max)
	}
	if s.P50 != 5100 {
		t.Errorf("p50 = %d, want 5100 (index 50)", s.P50)
	}
	if s.P99 != 9900 {
		t.Errorf("p99 = %d, want 9900 (index 98)", s.P99)
	}
	if s.Count != 100 {
		t.Errorf("count = %d, want 100", s.Count)
	}
	if s.Mean != 5050 {
		t.Errorf("mean = %v, want 5050", s.Mean)
	}
	// Trimming drops exactly index 0 and index 99; the remaining ladder is
	// symmetric around the same mean.
	if s.TrimmedMean != 5050 {
		t.Errorf("trimmed mean = %v, want 5050", s.TrimmedMean)
	}
}

// TestComputeStatistics_PermutationInvariant verifies input order is
// irrelevant.
func TestComputeStatistics_PermutationInvariant(t *testing.T) {
	samples := make([]uint64, 500)
	rng := rand.New(rand.NewSource(7))
	for i := range samples {
		samples[i] = uint64(rng.Intn(100000))
	}

	want := ComputeStatistics(samples)

	shuffled := make([]uint64, len(samples))
	copy(shuffled, samples)
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	if got := ComputeStatistics(shuffled); got != want {
		t.Errorf("statistics changed under permutation:\n got %+v\nwant %+v", got, want)
	}
}

// TestComputeStatistics_SmallInputTrim verifies trimming is a no-op below
// 100 samples.
func TestComputeStatistics_SmallInputTrim(t *testing.T) {
	s := ComputeStatistics([]uint64{10, 20, 30, 99999})
	if s.TrimmedMean != s.Mean {
		t.Errorf("n<100: trimmed mean %v != mean %v", s.TrimmedMean, s.Mean)
	}
}

// TestMergeStatistics_SingleIdentity verifies merging one result reproduces
// it exactly.
func TestMergeStatistics_SingleIdentity(t *testing.T) {
	r := ComputeStatistics([]uint64{100, 300, 500, 700, 900, 1200})
	m := MergeStatistics([]SampleStatistics{r})

	if m.Mean != r.Mean || m.TrimmedMean != r.TrimmedMean {
		t.Errorf("merge([r]) means = %v/%v, want %v/%v", m.Mean, m.TrimmedMean, r.Mean, r.TrimmedMean)
	}
	if m.Min != r.Min || m.Max != r.Max || m.P50 != r.P50 || m.P99 != r.P99 {
		t.Errorf("merge([r]) order stats = %+v, want %+v", m, r)
	}
	if m.Count != r.Count {
		t.Errorf("merge([r]) count = %d, want %d", m.Count, r.Count)
	}
	// RMS of a single stddev round-trips through square and root; allow a
	// last-bit wobble.
	if math.Abs(m.Stddev-r.Stddev) > 1e-9*r.Stddev {
		t.Errorf("merge([r]) stddev = %v, want %v", m.Stddev, r.Stddev)
	}
}

// TestMergeStatistics_TwoRounds verifies round-equal averaging, RMS stddev,
// global min/max, and summed counts.
func TestMergeStatistics_TwoRounds(t *testing.T) {
	a := SampleStatistics{Mean: 400, TrimmedMean: 390, Stddev: 30, Min: 100, Max: 900, P50: 380, P99: 800, Count: 1000}
	b := SampleStatistics{Mean: 600, TrimmedMean: 610, Stddev: 40, Min: 200, Max: 1500, P50: 620, P99: 1400, Count: 500}

	m := MergeStatistics([]SampleStatistics{a, b})

	if m.Mean != 500 {
		t.Errorf("mean = %v, want 500", m.Mean)
	}
	if m.TrimmedMean != 500 {
		t.Errorf("trimmed mean = %v, want 500", m.TrimmedMean)
	}
	wantStddev := math.Sqrt((30*30 + 40*40) / 2.0)
	if math.Abs(m.Stddev-wantStddev) > 1e-9 {
		t.Errorf("stddev = %v, want %v", m.Stddev, wantStddev)
	}
	if m.Min != 100 || m.Max != 1500 {
		t.Errorf("min/max = %d/%d, want 100/1500", m.Min, m.Max)
	}
	if m.P50 != 500 || m.P99 != 1100 {
		t.Errorf("p50/p99 = %d/%d, want 500/1100", m.P50, m.P99)
	}
	if m.Count != 1500 {
		t.Errorf("count = %d, want 1500", m.Count)
	}
}

// TestMergeStatistics_Empty verifies the zero-value contract.
func TestMergeStatistics_Empty(t *testing.T) {
	if m := MergeStatistics(nil); m != (SampleStatistics{}) {
		t.Errorf("merge(nil) = %+v, want zero value", m)
	}
}

// TestOpsPerSec covers the mean→rate conversion and its zero guard.
func TestOpsPerSec(t *testing.T) {
	s := SampleStatistics{Mean: 500}
	if got := s.OpsPerSec(); got != 2e6 {
		t.Errorf("ops/sec = %v, want 2e6", got)
	}
	if got := (SampleStatistics{}).OpsPerSec(); got != 0 {
		t.Errorf("ops/sec of zero mean = %v, want 0", got)
	}
}

// TestHistogram_Boundaries checks the log2 bucket edges: microsecond
// truncation first, then exclusive upper bounds.
func TestHistogram_Boundaries(t *testing.T) {
	cases := []struct {
		ns     uint64
		bucket int
	}{
		{0, 0},
		{999, 0},
		{1000, 1},
		{1999, 1},
		{2000, 2},
		{3999, 2},
		{4000, 3},
		{15999, 4},
		{16000, 5},
		{63999, 6},
		{64000, 7},
		{127999, 7},
		{128000, 8},
		{10_000_000, 8},
	}
	for _, tc := range cases {
		if got := bucketFor(tc.ns); got != tc.bucket {
			t.Errorf("bucketFor(%d) = %d, want %d", tc.ns, got, tc.bucket)
		}
	}
}

// TestHistogram_Fractions verifies fractions sum to 1 for non-empty input
// and are all 0 when empty.
func TestHistogram_Fractions(t *testing.T) {
	h := HistogramOf([]uint64{500, 1500, 2500, 70_000, 500_000, 500_000})
	AssertHistogramComplete(t, &h)
	if h.Total != 6 {
		t.Errorf("total = %d, want 6", h.Total)
	}

	var empty Histogram
	AssertHistogramComplete(t, &empty)
	for b := 0; b < NumBuckets; b++ {
		if empty.Fraction(b) != 0 {
			t.Errorf("empty histogram: fraction(%d) = %v, want 0", b, empty.Fraction(b))
		}
	}
}

// TestHistogram_AddPools verifies cumulative pooling across rounds.
func TestHistogram_AddPools(t *testing.T) {
	var h Histogram
	h.Add([]uint64{500, 500})
	h.Add([]uint64{1500})
	if h.Total != 3 {
		t.Errorf("total = %d, want 3", h.Total)
	}
	if h.Buckets[0] != 2 || h.Buckets[1] != 1 {
		t.Errorf("buckets = %v, want [2 1 0 ...]", h.Buckets)
	}
}
