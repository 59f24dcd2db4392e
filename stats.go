package wakebench

import (
	"math"
	"sort"
)

// SampleStatistics contains robust aggregates computed from one vector of
// nanosecond latency samples.
//
// Mean alone is a poor summary for wake latencies: a single preemption or
// SMI can produce a sample 1000x larger than the median and dominate the
// average. TrimmedMean (1%/99% trim) and the percentiles exist so that a
// comparison between two runs is not decided by a handful of outliers.
type SampleStatistics struct {
	Mean        float64 // Arithmetic mean (ns)
	TrimmedMean float64 // Mean after dropping the extreme 1% at each tail (ns)
	Stddev      float64 // Population standard deviation (ns)
	Min         uint64  // Smallest sample (ns)
	Max         uint64  // Largest sample (ns)
	P50         uint64  // Median (ns)
	P99         uint64  // 99th percentile (ns)
	Count       int     // Number of samples
}

// ComputeStatistics calculates aggregates from raw nanosecond samples.
// An empty input yields the zero value. The input slice is not modified.
func ComputeStatistics(samples []uint64) SampleStatistics {
	if len(samples) == 0 {
		return SampleStatistics{}
	}

	sorted := make([]uint64, len(samples))
	copy(sorted, samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	n := len(sorted)

	var sum float64
	for _, v := range sorted {
		sum += float64(v)
	}
	mean := sum / float64(n)

	var variance float64
	for _, v := range sorted {
		d := float64(v) - mean
		variance += d * d
	}
	stddev := math.Sqrt(variance / float64(n))

	// Trimmed mean: drop the lowest and highest n/100 samples. For n < 100
	// nothing is trimmed and the result equals the plain mean.
	lo := n / 100
	hi := n - lo
	trimmedMean := mean
	if hi > lo {
		var tsum float64
		for _, v := range sorted[lo:hi] {
			tsum += float64(v)
		}
		trimmedMean = tsum / float64(hi-lo)
	}

	return SampleStatistics{
		Mean:        mean,
		TrimmedMean: trimmedMean,
		Stddev:      stddev,
		Min:         sorted[0],
		Max:         sorted[n-1],
		P50:         sorted[n/2],
		P99:         sorted[int(float64(n-1)*0.99)],
		Count:       n,
	}
}

// MergeStatistics combines per-round results into a session aggregate.
//
// Means and percentiles are averaged treating each round as one unit,
// regardless of its sample count. This is a deliberate simplification: all
// rounds run the same iteration count, so sample weighting would change
// nothing in practice, and round-equal weighting keeps a partial last round
// from dominating. Stddev is RMS-combined, min/max are global, counts sum.
func MergeStatistics(results []SampleStatistics) SampleStatistics {
	if len(results) == 0 {
		return SampleStatistics{}
	}

	n := float64(len(results))
	merged := SampleStatistics{Min: math.MaxUint64}

	var meanSum, trimmedSum, varSum, p50Sum, p99Sum float64
	for _, r := range results {
		meanSum += r.Mean
		trimmedSum += r.TrimmedMean
		varSum += r.Stddev * r.Stddev
		p50Sum += float64(r.P50)
		p99Sum += float64(r.P99)
		if r.Min < merged.Min {
			merged.Min = r.Min
		}
		if r.Max > merged.Max {
			merged.Max = r.Max
		}
		merged.Count += r.Count
	}

	merged.Mean = meanSum / n
	merged.TrimmedMean = trimmedSum / n
	merged.Stddev = math.Sqrt(varSum / n)
	merged.P50 = uint64(p50Sum / n)
	merged.P99 = uint64(p99Sum / n)
	return merged
}

// OpsPerSec converts the mean latency into a wake rate.
// Returns 0 when the mean is zero or negative.
func (s SampleStatistics) OpsPerSec() float64 {
	if s.Mean <= 0 {
		return 0
	}
	return 1e9 / s.Mean
}

// NumBuckets is the number of log2-scaled microsecond histogram buckets.
const NumBuckets = 9

// BucketLabels names the histogram buckets in microseconds.
var BucketLabels = [NumBuckets]string{
	"<1", "1", "2", "4", "8", "16", "32", "64", "128+",
}

// Histogram counts latency samples in log2-scaled microsecond buckets:
// [0,1) [1,2) [2,4) [4,8) [8,16) [16,32) [32,64) [64,128) [128,∞).
type Histogram struct {
	Buckets [NumBuckets]uint32
	Total   uint32
}

// bucketFor maps a nanosecond sample to its bucket index. Nanoseconds are
// truncated to whole microseconds first, so 999ns lands in bucket 0.
func bucketFor(ns uint64) int {
	us := ns / 1000
	switch {
	case us < 1:
		return 0
	case us < 2:
		return 1
	case us < 4:
		return 2
	case us < 8:
		return 3
	case us < 16:
		return 4
	case us < 32:
		return 5
	case us < 64:
		return 6
	case us < 128:
		return 7
	default:
		return 8
	}
}

// HistogramOf buckets raw nanosecond samples.
func HistogramOf(samples []uint64) Histogram {
	var h Histogram
	h.Add(samples)
	return h
}

// Add accumulates more samples into the histogram. The comparison
// orchestrator uses this to pool samples across rounds per arm.
func (h *Histogram) Add(samples []uint64) {
	for _, ns := range samples {
		h.Buckets[bucketFor(ns)]++
		h.Total++
	}
}

// Fraction returns the share of samples in a bucket, 0 when the histogram
// is empty.
func (h *Histogram) Fraction(bucket int) float64 {
	if h.Total == 0 {
		return 0
	}
	return float64(h.Buckets[bucket]) / float64(h.Total)
}
