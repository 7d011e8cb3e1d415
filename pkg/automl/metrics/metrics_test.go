package metrics_test

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/askiada/go-automl/pkg/automl/measure"
	"github.com/askiada/go-automl/pkg/automl/metrics"
)

func TestObserveLedger(t *testing.T) {
	t.Parallel()

	clk := testingclock.NewFakeClock(time.Unix(0, 0))
	l := measure.NewLedger(time.Minute, clk)
	mt := l.AddMetric("lgb_1", 1)
	mt.Allot(20 * time.Second)
	mt.AddDuration(5 * time.Second)

	r := metrics.NewRecorder()
	r.ObserveLedger(l)

	allotted, consumed := r.Units()
	assert.InDelta(t, 20.0, testutil.ToFloat64(allotted.WithLabelValues("lgb_1")), 1e-9)
	assert.InDelta(t, 5.0, testutil.ToFloat64(consumed.WithLabelValues("lgb_1")), 1e-9)
}

func TestObserveRun(t *testing.T) {
	t.Parallel()

	r := metrics.NewRecorder()
	r.ObserveRun("conf_0", metrics.StatusFinished)
	r.ObserveRun("conf_0", metrics.StatusFinished)
	r.ObserveRun("conf_1", metrics.StatusDropped)
	r.ObserveBatch(time.Millisecond)

	assert.InDelta(t, 2.0, testutil.ToFloat64(r.Runs().WithLabelValues("conf_0", metrics.StatusFinished)), 1e-9)
	assert.InDelta(t, 1.0, testutil.ToFloat64(r.Runs().WithLabelValues("conf_1", metrics.StatusDropped)), 1e-9)

	n, err := testutil.GatherAndCount(r.Registry(), "automl_batch_predict_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestNilRecorder(t *testing.T) {
	t.Parallel()

	var r *metrics.Recorder

	assert.NotPanics(t, func() {
		r.ObserveRun("conf_0", metrics.StatusFailed)
		r.ObserveBatch(time.Second)
		r.ObserveLedger(nil)
	})
	assert.Nil(t, r.Registry())
}
