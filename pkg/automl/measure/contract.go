// Package measure tracks how the global time budget is shared and consumed by trainable units.
package measure

import "time"

// Measure is a budget ledger over named units.
type Measure interface {
	AddMetric(name string, score float64) Metric
	AllMetrics() map[string]Metric
	Remaining() time.Duration
}

// Metric is the budget record of one unit.
type Metric interface {
	Name() string
	Score() float64
	Allot(budget time.Duration)
	Allotted() time.Duration
	AddDuration(elapsed time.Duration)
	Consumed() time.Duration
	Overrun() time.Duration
	Finish()
	Finished() bool
}
