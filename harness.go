//go:build linux

package wakebench

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"
)

// fifoPriority is the static SCHED_FIFO priority the dispatcher runs at.
// 1 is enough: the point is outranking every SCHED_OTHER thread on CPU 0,
// not competing with kernel real-time threads.
const fifoPriority = 1

// shadowState is the lock-free command cell between a worker and one of its
// shadow threads. The worker publishes a migration request by storing ack=0
// then the target CPU; the shadow acknowledges by storing ack=1 after the
// migration completed. targetCPU == -1 means no command has been issued yet.
// Blocking synchronization here would put an extra scheduler wakeup inside
// the measured round, so both sides busy-poll.
type shadowState struct {
	targetCPU atomic.Int32
	ack       atomic.Int32
	stop      atomic.Bool
}

// workerState is one worker's control block for a single run. tsWake is
// stamped by the dispatcher and read by the worker, so it is atomic;
// latencies are written only by the owning worker and read only after the
// harness has joined it.
type workerState struct {
	efd       int
	warmup    int
	total     int
	shadows   []*shadowState
	done      *atomic.Uint32
	tsWake    []atomic.Uint64
	latencies []uint64
	scratch   uint32
}

// commandShadow tells shadow sidx to follow this worker to its current CPU
// and spin-waits (bounded) for the acknowledgment.
func (w *workerState) commandShadow(sidx int) {
	cpu := currentCPU()
	if cpu < 0 {
		return
	}
	s := w.shadows[sidx]
	s.ack.Store(0)
	s.targetCPU.Store(int32(cpu))
	boundedSpinWait(&s.ack)
}

// Harness runs one timed wake-latency experiment: warmup+iterations rounds
// of dispatch → blocking wake → shadow handshake across Params.Workers
// worker threads, with Params.Background spinning burner threads as
// competing load. Run returns a flat vector of iterations×Workers
// post-warmup latencies in nanoseconds.
type Harness struct {
	Params RunParameters
	Logger *slog.Logger

	// OnProgress, when set, is invoked roughly every 100ms from a watcher
	// goroutine with the number of completed rounds. It is never called
	// from the dispatch path.
	OnProgress func(done, total uint32)
}

func (h *Harness) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// Run executes warmup+iterations rounds and returns the collected latency
// samples. The context is polled only at round boundaries; on cancellation
// all threads are still woken, joined, and all OS state restored before the
// error is returned. Wake-descriptor exhaustion is fatal to the run.
func (h *Harness) Run(ctx context.Context, iterations, warmup int) ([]uint64, error) {
	if iterations <= 0 {
		return nil, fmt.Errorf("iterations must be positive, got %d", iterations)
	}
	p := h.Params
	total := warmup + iterations
	nworkers := uint32(p.Workers)

	ncpus := runtime.NumCPU()
	nbg := p.Background
	if nbg > ncpus-1 {
		nbg = ncpus - 1
	}

	// Every shadow and burner spins without yielding. Raise GOMAXPROCS for
	// the run so none of them starves a worker out of a P.
	oldMaxProcs := runtime.GOMAXPROCS(1 + p.Threads())
	defer runtime.GOMAXPROCS(oldMaxProcs)

	// Shadow threads.
	shadows := make([]*shadowState, p.Workers*p.ShadowsPerWorker)
	var shadowWG sync.WaitGroup
	for i := range shadows {
		s := &shadowState{}
		s.targetCPU.Store(-1)
		s.ack.Store(1)
		shadows[i] = s
		shadowWG.Add(1)
		go func() {
			defer shadowWG.Done()
			runShadow(s)
		}()
	}
	stopShadows := func() {
		for _, s := range shadows {
			s.stop.Store(true)
		}
		shadowWG.Wait()
	}

	// Worker control blocks. All wake descriptors are created before any
	// worker starts so a failure leaves nothing half-launched.
	done := &atomic.Uint32{}
	abort := &atomic.Bool{}
	workers := make([]*workerState, p.Workers)
	for wi := range workers {
		efd, err := unix.Eventfd(0, unix.EFD_SEMAPHORE|unix.EFD_CLOEXEC)
		if err != nil {
			for _, w := range workers[:wi] {
				unix.Close(w.efd)
			}
			stopShadows()
			return nil, fmt.Errorf("eventfd: %w", err)
		}
		w := &workerState{
			efd:       efd,
			warmup:    warmup,
			total:     total,
			shadows:   shadows[wi*p.ShadowsPerWorker : (wi+1)*p.ShadowsPerWorker],
			done:      done,
			tsWake:    make([]atomic.Uint64, total),
			latencies: make([]uint64, iterations),
		}
		workers[wi] = w
	}

	var workerWG sync.WaitGroup
	for _, w := range workers {
		w := w
		workerWG.Add(1)
		go func() {
			defer workerWG.Done()
			runWorker(w, abort)
		}()
	}

	// Background burners on CPUs 1..nbg; CPU 0 belongs to the dispatcher.
	bgStop := &atomic.Bool{}
	var bgWG sync.WaitGroup
	for i := 0; i < nbg; i++ {
		cpu := i + 1
		bgWG.Add(1)
		go func() {
			defer bgWG.Done()
			runBurner(cpu, bgStop)
		}()
	}

	progress := &atomic.Uint32{}
	watchDone := make(chan struct{})
	var watchWG sync.WaitGroup
	if h.OnProgress != nil {
		watchWG.Add(1)
		go func() {
			defer watchWG.Done()
			h.watchProgress(progress, uint32(total), watchDone)
		}()
	}

	// The dispatcher is the calling thread: pinned to CPU 0 and elevated to
	// SCHED_FIFO so nothing preempts it mid-dispatch.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	ec, err := acquireExecContext(0, fifoPriority)
	if ec != nil {
		defer ec.release()
	}
	if err != nil {
		h.logger().Warn("dispatcher setup degraded", "err", err)
	}
	time.Sleep(50 * time.Millisecond)

	// Priming barrier: every worker pins its first shadow before round 0 so
	// the first measured wake already sees realistic per-core occupancy.
	for done.Load() < nworkers {
	}
	done.Store(0)
	time.Sleep(200 * time.Microsecond)

	var wakeVal [8]byte
	binary.NativeEndian.PutUint64(wakeVal[:], 1)

	aborted := false
	for i := 0; i < total; i++ {
		if i > 0 {
			// Barrier on the previous round, then a short settle so the
			// shadows finish migrating and the workers re-enter read(2).
			for done.Load() < nworkers {
			}
			done.Store(0)
			if ctx.Err() != nil {
				aborted = true
				break
			}
			busyWaitNanos(10_000)
		}

		for _, w := range workers {
			w.tsWake[i].Store(nowNanos())
			unix.Write(w.efd, wakeVal[:])
		}
		progress.Store(uint32(i + 1))
	}

	if aborted {
		// Workers are blocked in read(2) for the round that never got
		// dispatched. One extra signal apiece lets them observe the abort
		// flag and exit their loop, keeping the joins unconditional.
		abort.Store(true)
		for _, w := range workers {
			unix.Write(w.efd, wakeVal[:])
		}
	}

	workerWG.Wait()
	bgStop.Store(true)
	bgWG.Wait()
	stopShadows()
	close(watchDone)
	watchWG.Wait()
	for _, w := range workers {
		unix.Close(w.efd)
	}

	if aborted {
		return nil, ctx.Err()
	}

	all := make([]uint64, 0, iterations*p.Workers)
	for _, w := range workers {
		all = append(all, w.latencies...)
	}
	return all, nil
}

// runWorker is one worker thread's lifecycle: prime the first shadow,
// then for each round block on the wake descriptor, stamp the receive time,
// do a fixed slice of post-wake work, hand a pin command to a shadow, and
// report completion.
func runWorker(w *workerState, abort *atomic.Bool) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	w.commandShadow(0)
	w.done.Add(1)

	sidx := 0
	var buf [8]byte
	for i := 0; i < w.total; i++ {
		// EFD_SEMAPHORE read: consumes exactly one wake signal. This is the
		// only blocking operation in the round; waking it is the scheduler
		// work being measured. The runtime interrupts blocked threads with
		// SIGURG for preemption, so EINTR is routine, not an error.
		n, err := unix.Read(w.efd, buf[:])
		for err == unix.EINTR {
			n, err = unix.Read(w.efd, buf[:])
		}
		if err != nil || n != 8 {
			return
		}
		t1 := nowNanos()
		if abort.Load() {
			return
		}
		t0 := w.tsWake[i].Load()
		if i >= w.warmup {
			w.latencies[i-w.warmup] = t1 - t0
		}

		// A small fixed compute burst emulating real post-wake work. Stored
		// to the control block so it cannot be optimized away.
		var x uint32
		for j := uint32(0); j < 100; j++ {
			x += j
		}
		w.scratch = x

		w.commandShadow(sidx)
		if len(w.shadows) > 1 {
			sidx ^= 1
		}
		w.done.Add(1)
	}
}

// runShadow busy-polls its control block, migrating to whatever CPU its
// worker last reported. The shadow's presence keeps the worker's CPU looking
// like a multi-thread-per-core workload, which changes what a placement
// decision costs the scheduler to evaluate.
func runShadow(s *shadowState) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	cur := -1
	for !s.stop.Load() {
		if s.ack.Load() == 0 {
			if target := int(s.targetCPU.Load()); target >= 0 {
				if target != cur {
					pinThread(target)
					cur = target
				}
				s.ack.Store(1)
			}
		}
		relax()
	}
}

// runBurner pins itself to cpu and spins until stopped, modelling competing
// load so the comparison is not measured on an otherwise idle machine.
func runBurner(cpu int, stop *atomic.Bool) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	pinThread(cpu)
	for !stop.Load() {
		for i := 0; i < 10000; i++ {
		}
	}
}

// relax burns a short fixed number of cycles between control-block polls,
// keeping the poll rate off the interconnect.
func relax() {
	for i := 0; i < 1000; i++ {
	}
}

// watchProgress forwards the round counter to OnProgress from outside the
// timed path.
func (h *Harness) watchProgress(progress *atomic.Uint32, total uint32, done chan struct{}) {
	t := time.NewTicker(100 * time.Millisecond)
	defer t.Stop()
	for {
		select {
		case <-done:
			h.OnProgress(progress.Load(), total)
			return
		case <-t.C:
			h.OnProgress(progress.Load(), total)
		}
	}
}
