package timer

import (
	"sync"
	"time"

	"github.com/askiada/go-automl/pkg/automl/measure"
)

// TaskTimer is the advisory budget of one trainable unit.
type TaskTimer struct {
	mu      sync.Mutex
	pipe    *PipelineTimer
	key     string
	metric  measure.Metric
	started time.Time
	running bool
}

// Key returns the family key the timer was issued for.
func (t *TaskTimer) Key() string { return t.key }

// Name returns the unique ledger name of the unit.
func (t *TaskTimer) Name() string { return t.metric.Name() }

// Score returns the relative cost score.
func (t *TaskTimer) Score() float64 { return t.metric.Score() }

// Pipeline returns the issuing timer.
func (t *TaskTimer) Pipeline() *PipelineTimer { return t.pipe }

// Planned returns the static share of the global budget.
func (t *TaskTimer) Planned() time.Duration { return t.pipe.Planned(t.Score()) }

// Start fixes the budget from the time actually left and starts the clock.
// Calling Start on a running timer is a no-op.
func (t *TaskTimer) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		return
	}

	if !t.metric.Finished() && t.metric.Allotted() == 0 {
		t.metric.Allot(t.pipe.allot(t.Score()))
	}

	t.started = t.pipe.clock.Now()
	t.running = true
}

// Stop records the consumed time and releases the unit share.
func (t *TaskTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.running {
		return
	}

	t.metric.AddDuration(t.pipe.clock.Since(t.started))
	t.metric.Finish()
	t.running = false
}

// Skip releases the unit share without consuming time.
func (t *TaskTimer) Skip() {
	t.metric.Finish()
}

// Budget returns the allotment fixed at Start, or the planned share before that.
func (t *TaskTimer) Budget() time.Duration {
	if b := t.metric.Allotted(); b > 0 {
		return b
	}

	return t.Planned()
}

// Elapsed returns the time consumed so far.
func (t *TaskTimer) Elapsed() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	elapsed := t.metric.Consumed()
	if t.running {
		elapsed += t.pipe.clock.Since(t.started)
	}

	return elapsed
}

// TimeLeft returns the unspent part of the unit budget, never negative.
func (t *TaskTimer) TimeLeft() time.Duration {
	left := t.Budget() - t.Elapsed()
	if left < 0 {
		return 0
	}

	return left
}

// OutOfTime reports whether the unit spent its budget.
func (t *TaskTimer) OutOfTime() bool {
	return t.TimeLeft() <= 0
}

// Metric exposes the ledger record of the unit.
func (t *TaskTimer) Metric() measure.Metric { return t.metric }
