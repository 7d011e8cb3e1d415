package timer_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/askiada/go-automl/pkg/automl/timer"
)

func newTimer(timeout time.Duration) (*timer.PipelineTimer, *testingclock.FakeClock) {
	clk := testingclock.NewFakeClock(time.Unix(0, 0))

	return timer.NewPipelineTimer(timeout, timer.WithClock(clk), timer.WithOverhead(0)), clk
}

func TestPlannedShare(t *testing.T) {
	t.Parallel()

	sec := float64(time.Second)

	tcs := map[string]struct {
		scores []float64
		want   []time.Duration
	}{
		"single unit": {
			scores: []float64{1},
			want:   []time.Duration{100 * time.Second},
		},
		"proportional": {
			scores: []float64{1, 3},
			want:   []time.Duration{25 * time.Second, 75 * time.Second},
		},
		"default algos": {
			scores: []float64{1, 3, 0.7, 2, 6},
			want: []time.Duration{
				time.Duration(100.0 / 12.7 * sec),
				time.Duration(300.0 / 12.7 * sec),
				time.Duration(70.0 / 12.7 * sec),
				time.Duration(200.0 / 12.7 * sec),
				time.Duration(600.0 / 12.7 * sec),
			},
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			pt, _ := newTimer(100 * time.Second)

			units := make([]*timer.TaskTimer, len(tc.scores))
			for i, s := range tc.scores {
				units[i] = pt.TaskTimer("unit", s)
			}

			for i, u := range units {
				assert.InDelta(t, float64(tc.want[i]), float64(u.Planned()), float64(time.Millisecond))
			}
		})
	}
}

func TestUniqueNames(t *testing.T) {
	t.Parallel()

	pt, _ := newTimer(time.Minute)
	a := pt.TaskTimer("lgb", 1)
	b := pt.TaskTimer("lgb", 1)

	assert.Equal(t, "lgb", a.Key())
	assert.NotEqual(t, a.Name(), b.Name())
	assert.Len(t, pt.Ledger().Names(), 2)
}

func TestOverrunShrinksLaterBudgets(t *testing.T) {
	t.Parallel()

	pt, clk := newTimer(100 * time.Second)
	first := pt.TaskTimer("first", 1)
	second := pt.TaskTimer("second", 1)

	first.Start()
	assert.Equal(t, 50*time.Second, first.Budget())

	clk.Step(80 * time.Second)
	first.Stop()

	assert.Equal(t, 30*time.Second, first.Metric().Overrun())
	assert.True(t, first.OutOfTime())

	second.Start()
	assert.Equal(t, 20*time.Second, second.Budget())
	assert.Equal(t, 20*time.Second, pt.TimeLeft())

	clk.Step(5 * time.Second)
	assert.Equal(t, 15*time.Second, second.TimeLeft())
	assert.False(t, second.OutOfTime())
}

func TestSkipReleasesShare(t *testing.T) {
	t.Parallel()

	pt, _ := newTimer(90 * time.Second)
	skipped := pt.TaskTimer("skipped", 2)
	kept := pt.TaskTimer("kept", 1)

	skipped.Skip()
	kept.Start()

	assert.Equal(t, 90*time.Second, kept.Budget())
	assert.Equal(t, 30*time.Second, kept.Planned())
}

func TestPipelineOutOfTime(t *testing.T) {
	t.Parallel()

	pt, clk := newTimer(10 * time.Second)
	require.False(t, pt.OutOfTime())

	clk.Step(11 * time.Second)

	assert.True(t, pt.OutOfTime())
	assert.Zero(t, pt.TimeLeft())
}

func TestOverheadReservesTime(t *testing.T) {
	t.Parallel()

	clk := testingclock.NewFakeClock(time.Unix(0, 0))
	pt := timer.NewPipelineTimer(100*time.Second, timer.WithClock(clk), timer.WithOverhead(0.2), timer.WithTuningRate(0.5))

	assert.Equal(t, 80*time.Second, pt.TimeLeft())
	assert.Equal(t, 100*time.Second, pt.Timeout())
	assert.InDelta(t, 0.5, pt.TuningRate(), 1e-9)
}
