// Package timer turns relative cost scores into wall-clock allotments for trainable units.
//
// A PipelineTimer owns the global budget of one AutoML run and issues one TaskTimer per
// trainable unit. The planned allotment of a unit is timeout * score / sum(scores); once
// fitting starts the allotment is recomputed from the time actually left, so overruns of
// earlier units degrade the budgets of later ones instead of failing the run.
package timer

import (
	"strconv"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"github.com/askiada/go-automl/pkg/automl/measure"
)

const (
	DefaultOverhead   = 0.1
	DefaultTuningRate = 0.7
)

// PipelineTimer tracks the global deadline of one AutoML run.
type PipelineTimer struct {
	mu         sync.Mutex
	clock      clock.Clock
	timeout    time.Duration
	overhead   float64
	tuningRate float64
	ledger     *measure.Ledger
	seq        int
}

// Option configures a PipelineTimer.
type Option func(p *PipelineTimer)

// WithClock replaces the wall clock.
func WithClock(clk clock.Clock) Option {
	return func(p *PipelineTimer) {
		p.clock = clk
	}
}

// WithOverhead reserves a fraction of the timeout for reading and blending.
func WithOverhead(overhead float64) Option {
	return func(p *PipelineTimer) {
		p.overhead = overhead
	}
}

// WithTuningRate sets the share of a unit budget a tuner may spend.
func WithTuningRate(rate float64) Option {
	return func(p *PipelineTimer) {
		p.tuningRate = rate
	}
}

// NewPipelineTimer creates a timer over timeout.
func NewPipelineTimer(timeout time.Duration, opts ...Option) *PipelineTimer {
	p := &PipelineTimer{
		clock:      clock.RealClock{},
		timeout:    timeout,
		overhead:   DefaultOverhead,
		tuningRate: DefaultTuningRate,
	}

	for _, opt := range opts {
		opt(p)
	}

	budget := time.Duration(float64(timeout) * (1 - p.overhead))
	p.ledger = measure.NewLedger(budget, p.clock)

	return p
}

// Start resets the global clock. Units issued before Start keep their scores.
func (p *PipelineTimer) Start() {
	p.ledger.Restart()
}

// Timeout returns the global timeout.
func (p *PipelineTimer) Timeout() time.Duration { return p.timeout }

// TuningRate returns the share of a unit budget available to its tuner.
func (p *PipelineTimer) TuningRate() float64 { return p.tuningRate }

// Ledger returns the budget ledger.
func (p *PipelineTimer) Ledger() *measure.Ledger { return p.ledger }

// Clock returns the clock used by the timer.
func (p *PipelineTimer) Clock() clock.Clock { return p.clock }

// TimeLeft returns the unspent global budget.
func (p *PipelineTimer) TimeLeft() time.Duration { return p.ledger.Remaining() }

// OutOfTime reports whether the global budget is exhausted.
func (p *PipelineTimer) OutOfTime() bool { return p.ledger.Remaining() <= 0 }

// TaskTimer registers a unit with its relative score and returns its timer.
func (p *PipelineTimer) TaskTimer(key string, score float64) *TaskTimer {
	p.mu.Lock()
	p.seq++
	name := key + "_" + strconv.Itoa(p.seq)
	p.mu.Unlock()

	return &TaskTimer{
		pipe:   p,
		key:    key,
		metric: p.ledger.AddMetric(name, score),
	}
}

// Planned returns timeout * score / sum of all registered scores.
func (p *PipelineTimer) Planned(score float64) time.Duration {
	total := p.ledger.TotalScore()
	if total <= 0 {
		return 0
	}

	return time.Duration(float64(p.ledger.Budget()) * score / total)
}

// allot shares the remaining budget among the units still pending.
func (p *PipelineTimer) allot(score float64) time.Duration {
	pending := p.ledger.PendingScore()
	if pending <= 0 {
		return 0
	}

	return time.Duration(float64(p.ledger.Remaining()) * score / pending)
}
