package measure

import (
	"sync"
	"time"

	"k8s.io/utils/clock"
)

// Ledger is the budget ledger of one AutoML run. Overruns are never rolled back:
// the remaining time is measured on the wall clock, so a slow unit shrinks the
// share of every unit started after it.
type Ledger struct {
	mu     sync.Mutex
	clock  clock.PassiveClock
	budget time.Duration
	start  time.Time
	order  []string
	steps  map[string]Metric
}

// NewLedger creates a ledger over budget. The clock starts immediately.
func NewLedger(budget time.Duration, clk clock.PassiveClock) *Ledger {
	if clk == nil {
		clk = clock.RealClock{}
	}

	return &Ledger{
		clock:  clk,
		budget: budget,
		start:  clk.Now(),
		steps:  make(map[string]Metric),
	}
}

// Restart resets the reference time, keeping the registered units.
func (l *Ledger) Restart() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.start = l.clock.Now()
}

// AddMetric registers a unit with its relative cost score.
func (l *Ledger) AddMetric(name string, score float64) Metric {
	l.mu.Lock()
	defer l.mu.Unlock()

	mt := &DefaultMetric{
		mu:    &sync.Mutex{},
		name:  name,
		score: score,
	}
	l.steps[name] = mt
	l.order = append(l.order, name)

	return mt
}

func (l *Ledger) GetMetric(name string) Metric {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.steps[name]
}

func (l *Ledger) AllMetrics() map[string]Metric {
	l.mu.Lock()
	defer l.mu.Unlock()

	res := make(map[string]Metric, len(l.steps))
	for k, v := range l.steps {
		res[k] = v
	}

	return res
}

// Names returns the unit names in registration order.
func (l *Ledger) Names() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	return append([]string(nil), l.order...)
}

// Budget returns the total budget.
func (l *Ledger) Budget() time.Duration { return l.budget }

// Elapsed returns the wall-clock time spent since the ledger started.
func (l *Ledger) Elapsed() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.clock.Since(l.start)
}

// Remaining returns the unspent part of the global budget, never negative.
func (l *Ledger) Remaining() time.Duration {
	left := l.budget - l.Elapsed()
	if left < 0 {
		return 0
	}

	return left
}

// TotalScore returns the sum of all registered scores.
func (l *Ledger) TotalScore() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	var total float64
	for _, mt := range l.steps {
		total += mt.Score()
	}

	return total
}

// PendingScore returns the sum of scores of units that have not finished yet.
func (l *Ledger) PendingScore() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	var total float64

	for _, mt := range l.steps {
		if !mt.Finished() {
			total += mt.Score()
		}
	}

	return total
}

var _ Measure = (*Ledger)(nil)
