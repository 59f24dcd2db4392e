package wakebench

// RunParameters sizes one harness run from the CPU topology.
//
// Every CPU gets exactly one role for the duration of a run:
//
//	1 (dispatcher) + Background + Workers*(1+ShadowsPerWorker) + Idle == ncpus
//
// The dispatcher owns CPU 0. Background burners occupy CPUs 1..Background.
// Workers and their shadows float; placing them is precisely the scheduler
// decision under test. Idle CPUs are deliberate slack so the scheduler has
// somewhere to put a worker.
type RunParameters struct {
	Workers          int // Measured worker threads
	Background       int // Spinning load threads
	Idle             int // CPUs left without an assigned thread
	ShadowsPerWorker int // 1 or 2 companion threads per worker
}

// DefaultBackground returns the default background-thread count: 3/4 of the
// physical cores, leaving headroom for dispatcher and workers.
func DefaultBackground(physicalCores int) int {
	return physicalCores * 3 / 4
}

// ComputeParams derives run parameters for a machine with ncpus logical
// CPUs. background is the requested burner count (capped so at least two
// CPUs remain for dispatcher and workers). workerOverride > 0 clamps the
// worker count instead of using the maximum that fits; it never drops below
// one worker. The result is deterministic and never asks for more threads
// than ncpus-1.
func ComputeParams(ncpus, background, workerOverride int) RunParameters {
	if background > ncpus-2 {
		background = ncpus - 2
	}
	if background < 0 {
		background = 0
	}

	available := ncpus - 1 - background
	if available < 0 {
		available = 0
	}

	shadows := 1
	if available >= 3 {
		shadows = 2
	}
	group := 1 + shadows

	workers := available / group
	if workerOverride > 0 && workerOverride < workers {
		workers = workerOverride
	}
	if workers < 1 {
		workers = 1
	}

	idle := available - workers*group
	if idle < 0 {
		idle = 0
	}

	return RunParameters{
		Workers:          workers,
		Background:       background,
		Idle:             idle,
		ShadowsPerWorker: shadows,
	}
}

// Threads returns the total thread count a run will create beyond the
// dispatcher. Used to size GOMAXPROCS so spinning threads all get to run.
func (p RunParameters) Threads() int {
	return p.Background + p.Workers*(1+p.ShadowsPerWorker)
}
