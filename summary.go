package wakebench

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Report bundles everything the final summary needs. Single is set instead
// of Comparison when the feature toggle was unavailable and only one
// configuration was measured.
type Report struct {
	System      SystemInfo
	Params      RunParameters
	Calibration *CalibrationResult
	Comparison  *ComparisonResult
	Single      *ArmResult
}

var (
	styleTitle   = lipgloss.NewStyle().Bold(true)
	styleMuted   = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	styleBetter  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	styleWorse   = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	styleNeutral = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

// WriteSummary renders the final textual report: host and run configuration,
// the on/off statistics table with per-row deltas, the verdict, and the
// pooled latency histograms.
func WriteSummary(w io.Writer, rep Report) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, styleTitle.Render("=== Scheduler Wake-Latency Benchmark ==="))
	fmt.Fprintf(w, "CPU: %s\n", rep.System.CPUModel)
	fmt.Fprintf(w, "Config: %d CPUs, %d workers, %d background, %d idle, %d shadows/worker\n",
		rep.System.NCPUs, rep.Params.Workers, rep.Params.Background,
		rep.Params.Idle, rep.Params.ShadowsPerWorker)
	if cal := rep.Calibration; cal != nil {
		fmt.Fprintf(w, "Calibrated: %d iterations (probe: mean=%.1fµs stddev=%.1fµs)\n",
			cal.Iterations, cal.ProbeMean, cal.ProbeStddev)
	}

	switch {
	case rep.Comparison != nil:
		writeComparison(w, rep.Comparison)
	case rep.Single != nil:
		writeSingle(w, rep.Single)
	}
	fmt.Fprintln(w)
}

func writeComparison(w io.Writer, cr *ComparisonResult) {
	on, off := cr.On.Merged, cr.Off.Merged

	fmt.Fprintln(w)
	fmt.Fprintf(w, "%12s %14s %14s %9s\n", "", "feature on", "feature off", "Δ")

	rows := []struct {
		label   string
		on, off float64
		asOps   bool
	}{
		{"mean", on.Mean / 1000, off.Mean / 1000, false},
		{"trimmed", on.TrimmedMean / 1000, off.TrimmedMean / 1000, false},
		{"p50", float64(on.P50) / 1000, float64(off.P50) / 1000, false},
		{"p99", float64(on.P99) / 1000, float64(off.P99) / 1000, false},
		{"min", float64(on.Min) / 1000, float64(off.Min) / 1000, false},
		{"max", float64(on.Max) / 1000, float64(off.Max) / 1000, false},
		{"stddev", on.Stddev / 1000, off.Stddev / 1000, false},
		{"wakes/sec", on.OpsPerSec(), off.OpsPerSec(), true},
	}
	for _, r := range rows {
		var delta float64
		if r.off != 0 {
			delta = (r.on - r.off) / r.off * 100
		}
		onS := fmt.Sprintf("%.2f µs", r.on)
		offS := fmt.Sprintf("%.2f µs", r.off)
		if r.asOps {
			onS = fmt.Sprintf("%.0f", r.on)
			offS = fmt.Sprintf("%.0f", r.off)
		}
		fmt.Fprintf(w, "%12s %14s %14s %+8.1f%%\n", r.label, onS, offS, delta)
	}

	verdict := Classify(on, off)
	style := styleNeutral
	switch verdict.Outcome {
	case Improvement:
		style = styleBetter
	case Regression:
		style = styleWorse
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "%s %s\n", style.Render(string(verdict.Outcome)), verdict.Reason)

	fmt.Fprintln(w)
	fmt.Fprintln(w, styleTitle.Render("Latency distribution (µs)"))
	writeHistogramPair(w, &cr.On.Hist, &cr.Off.Hist)
}

func writeSingle(w io.Writer, arm *ArmResult) {
	s := arm.Merged
	fmt.Fprintln(w)
	fmt.Fprintf(w, "%12s %14s\n", "", "measured")
	fmt.Fprintf(w, "%12s %11.2f µs\n", "mean", s.Mean/1000)
	fmt.Fprintf(w, "%12s %11.2f µs\n", "trimmed", s.TrimmedMean/1000)
	fmt.Fprintf(w, "%12s %11.2f µs\n", "p50", float64(s.P50)/1000)
	fmt.Fprintf(w, "%12s %11.2f µs\n", "p99", float64(s.P99)/1000)
	fmt.Fprintf(w, "%12s %11.2f µs\n", "min", float64(s.Min)/1000)
	fmt.Fprintf(w, "%12s %11.2f µs\n", "max", float64(s.Max)/1000)
	fmt.Fprintf(w, "%12s %11.2f µs\n", "stddev", s.Stddev/1000)
	fmt.Fprintf(w, "%12s %14.0f\n", "wakes/sec", s.OpsPerSec())

	fmt.Fprintln(w)
	fmt.Fprintln(w, styleTitle.Render("Latency distribution (µs)"))
	for b := 0; b < NumBuckets; b++ {
		fmt.Fprintf(w, "%5s %s %s\n",
			BucketLabels[b], bar(arm.Hist.Fraction(b), 40),
			styleMuted.Render(fmt.Sprintf("%5.1f%%", arm.Hist.Fraction(b)*100)))
	}
}

func writeHistogramPair(w io.Writer, on, off *Histogram) {
	fmt.Fprintf(w, "%5s %-28s %-28s\n", "", "feature on", "feature off")
	for b := 0; b < NumBuckets; b++ {
		fmt.Fprintf(w, "%5s %-20s %s  %-20s %s\n",
			BucketLabels[b],
			bar(on.Fraction(b), 20),
			styleMuted.Render(fmt.Sprintf("%5.1f%%", on.Fraction(b)*100)),
			bar(off.Fraction(b), 20),
			styleMuted.Render(fmt.Sprintf("%5.1f%%", off.Fraction(b)*100)))
	}
}

// bar renders a fraction as a fixed-width block bar. Any nonzero fraction
// gets at least one block so rare buckets stay visible.
func bar(fraction float64, width int) string {
	n := int(fraction * float64(width))
	if n == 0 && fraction > 0 {
		n = 1
	}
	if n > width {
		n = width
	}
	return strings.Repeat("█", n) + strings.Repeat(" ", width-n)
}
