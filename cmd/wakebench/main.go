//go:build linux

// Command wakebench measures worker wake-up latency under a kernel
// scheduling feature, A/B-compared against the baseline scheduler.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sys/unix"

	"github.com/alexshd/wakebench"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wakebench",
		Short: "Scheduler wake-latency A/B benchmark",
		Long: `wakebench measures how long the kernel takes to wake a blocked worker
thread, comparing a scheduler feature toggle against the baseline. It needs
permission to lock memory, set SCHED_FIFO, and pin CPU affinity; run it as
root on an otherwise quiet machine.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}

	f := cmd.Flags()
	f.IntP("iterations", "i", 0, "iteration count (0 = auto-calibrate)")
	f.IntP("threads", "t", 0, "worker thread count override")
	f.IntP("background", "b", -1, "background thread count override")
	f.IntP("rounds", "r", wakebench.DefaultRounds, "number of comparison rounds")
	f.Bool("no-compare", false, "skip the on/off comparison, run once")
	f.String("sysctl", wakebench.DefaultSysctlPath, "feature toggle sysctl path")
	f.Float64("target", 5.0, "calibration target seconds per measured phase")
	f.BoolP("verbose", "v", false, "debug logging")

	viper.SetEnvPrefix("WAKEBENCH")
	viper.AutomaticEnv()
	_ = viper.BindPFlags(f)

	return cmd
}

func run(cmd *cobra.Command, args []string) error {
	level := slog.LevelInfo
	if viper.GetBool("verbose") {
		level = slog.LevelDebug
	}
	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: "15:04:05",
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sys := wakebench.DetectSystem()
	background := viper.GetInt("background")
	if background < 0 {
		background = wakebench.DefaultBackground(sys.PhysicalCores)
	}
	params := wakebench.ComputeParams(sys.NCPUs, background, viper.GetInt("threads"))

	logger.Info("host", "cpu", sys.CPUModel, "ncpus", sys.NCPUs, "physical_cores", sys.PhysicalCores)
	logger.Info("run parameters",
		"workers", params.Workers, "background", params.Background,
		"idle", params.Idle, "shadows_per_worker", params.ShadowsPerWorker)

	// Page faults mid-round would be measured as wake latency.
	if err := unix.Mlockall(unix.MCL_CURRENT | unix.MCL_FUTURE); err != nil {
		logger.Warn("mlockall failed, page faults may pollute samples", "err", err)
	}

	// Holding /dev/cpu_dma_latency at 0 keeps CPUs out of deep C-states for
	// the whole session. Best effort: without it idle-exit latency is folded
	// into the samples.
	if release, err := inhibitCPUIdle(); err != nil {
		logger.Warn("cpu idle states not inhibited", "err", err)
	} else {
		defer release()
	}

	toggle := &wakebench.SysctlToggle{Path: viper.GetString("sysctl")}
	compare := !viper.GetBool("no-compare")
	if compare {
		if _, err := toggle.Read(); err != nil {
			logger.Warn("feature toggle unavailable, running without comparison", "err", err)
			compare = false
		}
	}
	if compare {
		// Probe writability up front: rewriting the current value is a
		// no-op behaviorally but fails fast without privilege.
		v, _ := toggle.Read()
		if err := toggle.Write(v); err != nil {
			logger.Warn("feature toggle read-only, running without comparison", "err", err)
			compare = false
		}
	}

	harness := &wakebench.Harness{
		Params:     params,
		Logger:     logger,
		OnProgress: progressLogger(logger),
	}

	report := wakebench.Report{System: sys, Params: params}

	iterations := viper.GetInt("iterations")
	var warmup int
	if iterations > 0 {
		warmup = iterations / 5
		if warmup < 100 {
			warmup = 100
		}
	} else {
		logger.Info("calibrating")
		cfg := wakebench.DefaultCalibrationConfig()
		cfg.TargetSeconds = viper.GetFloat64("target")
		cal, err := wakebench.Calibrate(ctx, harness, cfg)
		if err != nil {
			return failOrCancelled(logger, err)
		}
		logger.Info("calibrated",
			"iterations", cal.Iterations, "warmup", cal.Warmup,
			"probe_mean_us", fmt.Sprintf("%.1f", cal.ProbeMean))
		report.Calibration = &cal
		iterations, warmup = cal.Iterations, cal.Warmup
	}

	if compare {
		comparison := &wakebench.Comparison{
			Runner: harness,
			Toggle: toggle,
			Logger: logger,
			Rounds: viper.GetInt("rounds"),
		}
		result, err := comparison.Run(ctx, iterations, warmup)
		if err != nil {
			return failOrCancelled(logger, err)
		}
		report.Comparison = &result
	} else {
		samples, err := harness.Run(ctx, iterations, warmup)
		if err != nil {
			return failOrCancelled(logger, err)
		}
		arm := &wakebench.ArmResult{}
		arm.Rounds = append(arm.Rounds, wakebench.ComputeStatistics(samples))
		arm.Merged = arm.Rounds[0]
		arm.Hist.Add(samples)
		report.Single = arm
	}

	wakebench.WriteSummary(os.Stdout, report)
	return nil
}

// failOrCancelled downgrades a cancellation to a clean exit: cleanup already
// ran, there is just nothing to report.
func failOrCancelled(logger *slog.Logger, err error) error {
	if errors.Is(err, context.Canceled) {
		logger.Info("interrupted, discarding partial results")
		return nil
	}
	logger.Error("benchmark failed", "err", err)
	return err
}

// progressLogger reports run progress in 25% steps so the log stays
// readable during multi-second runs. The same callback serves every run of
// the session (calibration probes, discard and measured rounds), so the
// quarter gate rearms whenever the counter restarts.
func progressLogger(logger *slog.Logger) func(done, total uint32) {
	var lastQuarter uint32
	return func(done, total uint32) {
		if total == 0 {
			return
		}
		q := done * 4 / total
		if q < lastQuarter {
			lastQuarter = 0
		}
		if q > lastQuarter {
			lastQuarter = q
			logger.Debug("progress", "done", done, "total", total)
		}
	}
}

// inhibitCPUIdle writes 0 to /dev/cpu_dma_latency and keeps the fd open;
// the kernel re-enables deep C-states when it is closed.
func inhibitCPUIdle() (release func(), err error) {
	fd, err := unix.Open("/dev/cpu_dma_latency", unix.O_WRONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("open /dev/cpu_dma_latency: %w", err)
	}
	if _, err := unix.Write(fd, []byte{0, 0, 0, 0}); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("write /dev/cpu_dma_latency: %w", err)
	}
	return func() { unix.Close(fd) }, nil
}
