package tradelog

import (
	"context"
	"sync"
	"time"
)

// RunnerState is the state of a SummaryRunner.
type RunnerState string

const (
	RunnerIdle       RunnerState = "idle"
	RunnerGenerating RunnerState = "generating"
)

// SummaryRunner serializes summary generation. Direct Generate calls made
// while a run is in flight are dropped; debounced triggers landing during a
// run set a pending flag that causes exactly one more run afterwards.
type SummaryRunner struct {
	run      func(context.Context)
	debounce time.Duration

	mu      sync.Mutex
	state   RunnerState
	pending bool
	timer   *time.Timer
	stopped bool
	wg      sync.WaitGroup
}

// NewSummaryRunner returns an idle runner that calls run for each generation.
func NewSummaryRunner(debounce time.Duration, run func(context.Context)) *SummaryRunner {
	return &SummaryRunner{run: run, debounce: debounce, state: RunnerIdle}
}

// State returns the current state.
func (r *SummaryRunner) State() RunnerState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Generate runs synchronously unless a run is already in flight, in which
// case it returns false without doing anything.
func (r *SummaryRunner) Generate(ctx context.Context) bool {
	r.mu.Lock()
	if r.stopped || r.state == RunnerGenerating {
		r.mu.Unlock()
		return false
	}
	r.state = RunnerGenerating
	r.mu.Unlock()

	r.loop(ctx)
	return true
}

// Trigger schedules a run after the debounce delay, restarting the delay if
// one is already scheduled.
func (r *SummaryRunner) Trigger() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}
	if r.timer != nil {
		r.timer.Stop()
	}
	r.timer = time.AfterFunc(r.debounce, r.fire)
}

// Stop cancels any scheduled run and waits for a debounced run in flight.
func (r *SummaryRunner) Stop() {
	r.mu.Lock()
	r.stopped = true
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.mu.Unlock()
	r.wg.Wait()
}

func (r *SummaryRunner) fire() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.timer = nil
	if r.state == RunnerGenerating {
		r.pending = true
		r.mu.Unlock()
		return
	}
	r.state = RunnerGenerating
	r.wg.Add(1)
	r.mu.Unlock()

	defer r.wg.Done()
	r.loop(context.Background())
}

func (r *SummaryRunner) loop(ctx context.Context) {
	for {
		r.run(ctx)

		r.mu.Lock()
		if !r.pending || r.stopped {
			r.pending = false
			r.state = RunnerIdle
			r.mu.Unlock()
			return
		}
		r.pending = false
		r.mu.Unlock()
	}
}
