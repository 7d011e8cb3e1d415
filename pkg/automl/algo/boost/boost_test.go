package boost_test

import (
	"context"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/askiada/go-automl/pkg/automl/algo/boost"
	"github.com/askiada/go-automl/pkg/automl/config"
	"github.com/askiada/go-automl/pkg/automl/model"
)

func defaultParams() boost.Params {
	return boost.Params{
		BoostParams: config.BoostParams{
			NumTrees:            50,
			LearningRate:        0.2,
			MaxDepth:            3,
			MinDataInLeaf:       5,
			FeatureFraction:     1,
			BaggingFraction:     1,
			Lambda:              1,
			MaxBins:             32,
			EarlyStoppingRounds: 10,
			Seed:                1,
		},
		Threads: 2,
	}
}

// synthetic returns a dataset whose label depends on the first feature only.
func synthetic(t *testing.T, task string, rows int, seed int64) *model.Dataset {
	t.Helper()

	rng := rand.New(rand.NewSource(seed))
	data := mat.NewDense(rows, 3, nil)
	target := make([]float64, rows)

	for i := 0; i < rows; i++ {
		x := rng.Float64()*4 - 2
		data.Set(i, 0, x)
		data.Set(i, 1, rng.NormFloat64())
		data.Set(i, 2, math.NaN())

		switch task {
		case model.Binary:
			if x > 0 {
				target[i] = 1
			}
		case model.Multiclass:
			target[i] = math.Min(2, math.Floor((x+2)/4*3))
		default:
			target[i] = 3*x + 0.1*rng.NormFloat64()
		}
	}

	ds, err := model.NewDataset([]string{"x", "noise", "missing"}, nil, data)
	require.NoError(t, err)

	ds.Target = target
	if task == model.Multiclass {
		ds.Classes = 3
	}

	return ds
}

func TestBoosterLearns(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		task      string
		oblivious bool
		minScore  float64
	}{
		"binary depthwise":     {task: model.Binary, minScore: -0.2},
		"binary oblivious":     {task: model.Binary, oblivious: true, minScore: -0.2},
		"regression depthwise": {task: model.Regression, minScore: -0.5},
		"multiclass oblivious": {task: model.Multiclass, oblivious: true, minScore: -0.5},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			task, err := model.NewTask(tc.task)
			require.NoError(t, err)

			train := synthetic(t, tc.task, 600, 1)
			valid := synthetic(t, tc.task, 200, 2)

			params := defaultParams()
			params.Oblivious = tc.oblivious
			m := boost.New("lgb", task, params)

			require.NoError(t, m.Fit(context.Background(), train, valid))

			pred, err := m.Predict(valid)
			require.NoError(t, err)

			rows, cols := pred.Dims()
			assert.Equal(t, 200, rows)
			assert.Equal(t, valid.Outputs(task), cols)
			assert.Greater(t, task.Score(valid.Target, pred), tc.minScore)

			imp := m.Importance()
			assert.Greater(t, imp["x"], imp["noise"])
			assert.Zero(t, imp["missing"])
		})
	}
}

func TestBoosterAlignsColumnsByName(t *testing.T) {
	t.Parallel()

	task, err := model.NewTask(model.Binary)
	require.NoError(t, err)

	train := synthetic(t, model.Binary, 300, 3)
	m := boost.New("lgb", task, defaultParams())
	require.NoError(t, m.Fit(context.Background(), train, nil))

	want, err := m.Predict(train)
	require.NoError(t, err)

	reordered, err := train.Select([]string{"missing", "noise", "x"})
	require.NoError(t, err)

	got, err := m.Predict(reordered)
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(want, got, 1e-12))

	_, err = boost.New("lgb", task, defaultParams()).Predict(train)
	assert.ErrorIs(t, err, boost.ErrNotFitted)
}

type tickingClock struct {
	now  time.Time
	step time.Duration
}

func (c *tickingClock) Now() time.Time {
	c.now = c.now.Add(c.step)

	return c.now
}

func (c *tickingClock) Since(ts time.Time) time.Duration { return c.Now().Sub(ts) }

func TestBoosterStopsOnBudget(t *testing.T) {
	t.Parallel()

	task, err := model.NewTask(model.Regression)
	require.NoError(t, err)

	params := defaultParams()
	params.NumTrees = 100
	params.EarlyStoppingRounds = 0
	params.Clock = &tickingClock{now: time.Unix(0, 0), step: time.Second}

	m := boost.New("cb", task, params)
	m.SetBudget(3 * time.Second)

	require.NoError(t, m.Fit(context.Background(), synthetic(t, model.Regression, 200, 4), nil))
	assert.Less(t, m.Trees(), 5)
	assert.Positive(t, m.Trees())
}

func TestBoosterHonoursContext(t *testing.T) {
	t.Parallel()

	task, err := model.NewTask(model.Binary)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = boost.New("lgb", task, defaultParams()).Fit(ctx, synthetic(t, model.Binary, 100, 5), nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBoosterSample(t *testing.T) {
	t.Parallel()

	task, err := model.NewTask(model.Binary)
	require.NoError(t, err)

	m := boost.New("lgb", task, defaultParams())
	rng := rand.New(rand.NewSource(7))

	a := m.Sample(rng).(*boost.Model).Params()
	b := m.Sample(rng).(*boost.Model).Params()

	assert.NotEqual(t, a["learning_rate"], b["learning_rate"])
	assert.Equal(t, a["num_trees"], b["num_trees"])
}
