package measure

import (
	"sync"
	"time"
)

// DefaultMetric records the allotment and consumption of one unit.
type DefaultMetric struct {
	mu       *sync.Mutex
	name     string
	score    float64
	allotted time.Duration
	consumed time.Duration
	runs     int64
	finished bool
}

func (mt *DefaultMetric) Name() string   { return mt.name }
func (mt *DefaultMetric) Score() float64 { return mt.score }

func (mt *DefaultMetric) Allot(budget time.Duration) {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	mt.allotted = budget
}

func (mt *DefaultMetric) Allotted() time.Duration {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	return mt.allotted
}

func (mt *DefaultMetric) AddDuration(elapsed time.Duration) {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	mt.runs++
	mt.consumed += elapsed
}

func (mt *DefaultMetric) Consumed() time.Duration {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	return round(mt.consumed)
}

// Overrun returns how much longer than allotted the unit ran, zero otherwise.
func (mt *DefaultMetric) Overrun() time.Duration {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	if mt.allotted == 0 || mt.consumed <= mt.allotted {
		return 0
	}

	return mt.consumed - mt.allotted
}

// Finish removes the unit from the pending share of the budget.
func (mt *DefaultMetric) Finish() {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	mt.finished = true
}

func (mt *DefaultMetric) Finished() bool {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	return mt.finished
}

func round(d time.Duration) time.Duration {
	switch {
	case d > time.Second:
		d = d.Round(time.Millisecond)
	case d > time.Millisecond:
		d = d.Round(time.Microsecond)
	}

	return d
}

var _ Metric = (*DefaultMetric)(nil)
