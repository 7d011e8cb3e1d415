// Package metrics exports budget and run statistics to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/askiada/go-automl/pkg/automl/measure"
)

const namespace = "automl"

// Run statuses.
const (
	StatusFinished = "finished"
	StatusDropped  = "dropped"
	StatusFailed   = "failed"
)

// Recorder holds the collectors of one process. A nil *Recorder is a valid no-op recorder.
type Recorder struct {
	registry *prometheus.Registry
	allotted *prometheus.GaugeVec
	consumed *prometheus.GaugeVec
	runs     *prometheus.CounterVec
	batches  prometheus.Histogram
}

// NewRecorder creates a recorder on a private registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		allotted: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "unit_allotted_seconds",
			Help:      "Budget allotted to a trainable unit.",
		}, []string{"unit"}),
		consumed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "unit_consumed_seconds",
			Help:      "Time consumed by a trainable unit.",
		}, []string{"unit"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "AutoML runs by configuration and outcome.",
		}, []string{"config", "status"}),
		batches: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_predict_seconds",
			Help:      "Duration of one inference batch.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
	}

	r.registry.MustRegister(r.allotted, r.consumed, r.runs, r.batches)

	return r
}

// Registry returns the registry holding the collectors.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}

	return r.registry
}

// ObserveLedger exports the allotment and consumption of every unit of the ledger.
func (r *Recorder) ObserveLedger(l *measure.Ledger) {
	if r == nil || l == nil {
		return
	}

	for name, mt := range l.AllMetrics() {
		r.allotted.WithLabelValues(name).Set(mt.Allotted().Seconds())
		r.consumed.WithLabelValues(name).Set(mt.Consumed().Seconds())
	}
}

// ObserveRun counts one run of a configuration.
func (r *Recorder) ObserveRun(config, status string) {
	if r == nil {
		return
	}

	r.runs.WithLabelValues(config, status).Inc()
}

// ObserveBatch records the duration of one inference batch.
func (r *Recorder) ObserveBatch(d time.Duration) {
	if r == nil {
		return
	}

	r.batches.Observe(d.Seconds())
}

// Runs returns the counter of runs, for inspection.
func (r *Recorder) Runs() *prometheus.CounterVec {
	if r == nil {
		return nil
	}

	return r.runs
}

// Units returns the allotted and consumed gauges.
func (r *Recorder) Units() (allotted, consumed *prometheus.GaugeVec) {
	if r == nil {
		return nil, nil
	}

	return r.allotted, r.consumed
}
