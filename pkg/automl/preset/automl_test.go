package preset_test

import (
	"context"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/testr"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/go-automl/pkg/automl/config"
	"github.com/askiada/go-automl/pkg/automl/family"
	"github.com/askiada/go-automl/pkg/automl/metrics"
	"github.com/askiada/go-automl/pkg/automl/model"
	"github.com/askiada/go-automl/pkg/automl/preset"
	"github.com/askiada/go-automl/pkg/automl/reader"
)

func unitNames(t *testing.T, p *preset.TabularAutoML) [][]string {
	t.Helper()

	var res [][]string

	for _, lvl := range p.Levels() {
		for _, pipe := range lvl {
			names := []string{pipe.Name()}
			for _, u := range pipe.Units() {
				names = append(names, u.Model.Name())
			}

			res = append(res, names)
		}
	}

	return res
}

func TestCreateAutoMLDefault(t *testing.T) {
	t.Parallel()

	p := newPreset(t, newTask(t, model.Binary), nil, preset.WithTimeout(time.Minute))
	require.NoError(t, p.CreateAutoML(context.Background(), 5000, true))

	iters, err := p.Config().Tuning.MaxTuningIter.Value()
	require.NoError(t, err)
	assert.Equal(t, 100, iters)

	require.Len(t, p.Levels(), 1)
	assert.Equal(t, [][]string{
		{"lvl1_linear", family.Linear},
		{"lvl1_gbm", family.LGB, family.LGBTuned, family.CB, family.CBTuned},
	}, unitNames(t, p))

	for _, pipe := range p.Levels()[0] {
		assert.NotNil(t, pipe.Selector(), pipe.Name())
	}

	gbm := p.Levels()[0][1]
	force := make([]bool, 0, len(gbm.Units()))

	for _, u := range gbm.Units() {
		force = append(force, u.ForceCalc)
	}

	assert.Equal(t, []bool{true, false, false, false}, force)
	assert.True(t, p.Levels()[0][0].Units()[0].ForceCalc)
	assert.Equal(t, "reg_l2", p.Levels()[0][0].Units()[0].Timer.Key())
	assert.Nil(t, gbm.Units()[0].Tuner)
	assert.NotNil(t, gbm.Units()[1].Tuner)
}

func TestCreateAutoMLLevels(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		task      *model.Task
		overrides sections
		want      [][]string
		selectors []bool
	}{
		"scenario B catboost only": {
			task:      newTask(t, model.Binary),
			overrides: sections{"general_params": {"use_algos": [][]string{{"cb"}}}},
			want:      [][]string{{"lvl1_gbm", family.CB}},
			selectors: []bool{true},
		},
		"keys in canonical order": {
			task:      newTask(t, model.Binary),
			overrides: sections{"general_params": {"use_algos": [][]string{{"cb_tuned", "lgb", "cb"}}}},
			want:      [][]string{{"lvl1_gbm", family.LGB, family.CB, family.CBTuned}},
			selectors: []bool{true},
		},
		"inadmissible family dropped silently": {
			task:      newTask(t, model.Regression, model.WithLoss("huber")),
			overrides: sections{"general_params": {"use_algos": [][]string{{"cb", "cb_tuned", "lgb"}}}},
			want:      [][]string{{"lvl1_gbm", family.LGB}},
			selectors: []bool{true},
		},
		"second level without skip connection has no selector": {
			task:      newTask(t, model.Binary),
			overrides: sections{"general_params": {"use_algos": [][]string{{"lgb"}, {"linear_l2"}}}},
			want:      [][]string{{"lvl1_gbm", family.LGB}, {"lvl2_linear", family.Linear}},
			selectors: []bool{true, false},
		},
		"second level with skip connection keeps selector": {
			task:      newTask(t, model.Binary),
			overrides: sections{"general_params": {"use_algos": [][]string{{"lgb"}, {"linear_l2"}}, "skip_conn": true}},
			want:      [][]string{{"lvl1_gbm", family.LGB}, {"lvl2_linear", family.Linear}},
			selectors: []bool{true, true},
		},
		"selection limited to gbm": {
			task:      newTask(t, model.Binary),
			overrides: sections{"general_params": {"use_algos": [][]string{{"linear_l2", "lgb"}}}, "selection_params": {"select_algos": []string{"gbm"}}},
			want:      [][]string{{"lvl1_linear", family.Linear}, {"lvl1_gbm", family.LGB}},
			selectors: []bool{false, true},
		},
		"no selection": {
			task:      newTask(t, model.Binary),
			overrides: sections{"general_params": {"use_algos": [][]string{{"lgb"}}}, "selection_params": {"mode": 0}},
			want:      [][]string{{"lvl1_gbm", family.LGB}},
			selectors: []bool{false},
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			p := newPreset(t, tc.task, tc.overrides)
			require.NoError(t, p.CreateAutoML(context.Background(), 100, true))
			assert.Equal(t, tc.want, unitNames(t, p))

			var selectors []bool

			for _, lvl := range p.Levels() {
				for _, pipe := range lvl {
					selectors = append(selectors, pipe.Selector() != nil)
				}
			}

			assert.Equal(t, tc.selectors, selectors)
		})
	}
}

func TestCreateAutoMLEmptyLevel(t *testing.T) {
	t.Parallel()

	task := newTask(t, model.Regression, model.WithLoss("huber"))
	p := newPreset(t, task, fast(sections{"general_params": {"use_algos": [][]string{{"cb", "cb_tuned"}}}}))

	ctx := context.Background()
	oof, err := p.FitPredict(ctx, regressionTable(200, 1), reader.Roles{Target: "y"})
	require.NoError(t, err)

	require.Len(t, p.Levels(), 1)
	assert.Empty(t, p.Levels()[0])
	assert.Equal(t, 200, oof.Len())

	first := oof.Data.At(0, 0)
	for i := 1; i < oof.Len(); i++ {
		require.InDelta(t, first, oof.Data.At(i, 0), 1e-12)
	}

	pred, err := p.Predict(ctx, regressionTable(10, 2))
	require.NoError(t, err)
	assert.InDelta(t, first, pred.Data.At(9, 0), 1e-12)
}

func TestFitPredictScenarioA(t *testing.T) {
	t.Parallel()

	if testing.Short() {
		t.Skip("trains every default model")
	}

	ctx := logr.NewContext(context.Background(), testr.New(t))
	rec := metrics.NewRecorder()

	p := newPreset(t, newTask(t, model.Binary), nil, preset.WithTimeout(60*time.Second), preset.WithMetrics(rec))

	oof, err := p.FitPredict(ctx, binaryTable(5000, 1), reader.Roles{Target: "y"})
	require.NoError(t, err)

	iters, err := p.Config().Tuning.MaxTuningIter.Value()
	require.NoError(t, err)
	assert.Equal(t, 100, iters)
	require.Len(t, p.Levels(), 1)
	assert.Len(t, p.Levels()[0], 2)

	require.Equal(t, 5000, oof.Len())
	assert.Equal(t, []string{"proba"}, oof.Columns)

	for i := 0; i < oof.Len(); i++ {
		v := oof.Data.At(i, 0)
		require.True(t, v >= 0 && v <= 1, "row %d: %v", i, v)
	}

	allotted, _ := rec.Units()
	assert.Positive(t, testutil.CollectAndCount(allotted))
}

func TestFitPredictHoldout(t *testing.T) {
	t.Parallel()

	p := newPreset(t, newTask(t, model.Binary), fast(sections{"general_params": {"use_algos": [][]string{{"linear_l2", "lgb"}}}}))

	oof, err := p.FitPredict(context.Background(), binaryTable(300, 3), reader.Roles{Target: "y"},
		preset.WithValidData(binaryTable(80, 4)))
	require.NoError(t, err)
	assert.Equal(t, 80, oof.Len())

	for i := 0; i < oof.Len(); i++ {
		v := oof.Data.At(i, 0)
		assert.True(t, v >= 0 && v <= 1)
	}
}

func TestFitPredictCustomFolds(t *testing.T) {
	t.Parallel()

	p := newPreset(t, newTask(t, model.Regression), fast(sections{"general_params": {"use_algos": [][]string{{"linear_l2"}, {"linear_l2"}}}}))

	folds := make([]int, 200)
	for i := range folds {
		folds[i] = i % 4
	}

	oof, err := p.FitPredict(context.Background(), regressionTable(200, 5), reader.Roles{Target: "y"}, preset.WithCVFolds(folds))
	require.NoError(t, err)
	assert.Equal(t, 200, oof.Len())
	assert.Equal(t, []string{"prediction"}, oof.Columns)
	assert.Greater(t, newTask(t, model.Regression).Score(oof.Target, oof.Data), -0.5)
}

func TestFitPredictTrainFeatures(t *testing.T) {
	t.Parallel()

	p := newPreset(t, newTask(t, model.Regression), fast(sections{
		"general_params":   {"use_algos": [][]string{{"linear_l2"}}},
		"selection_params": {"mode": 0},
	}))

	rows := make([][]float64, 100)
	for i := range rows {
		x := float64(i)
		rows[i] = []float64{x, 2*x + 1}
	}

	_, err := p.FitPredict(context.Background(), rows, reader.Roles{Target: "y"}, preset.WithTrainFeatures([]string{"x", "y"}))
	require.NoError(t, err)

	used, err := p.Reader().UsedFeatures()
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, used)
}

func TestPresetErrors(t *testing.T) {
	t.Parallel()

	_, err := preset.New(newTask(t, model.Binary), preset.WithOverrides(sections{"general_params": {"unknown": 1}}))
	require.ErrorIs(t, err, config.ErrConfig)

	_, err = preset.New(newTask(t, model.Binary), preset.WithPermissive(), preset.WithOverrides(sections{"general_params": {"unknown": 1}}))
	require.NoError(t, err)

	p := newPreset(t, newTask(t, model.Binary), nil)
	_, err = p.Predict(context.Background(), binaryTable(10, 1))
	require.ErrorIs(t, err, preset.ErrNotFitted)

	_, err = p.GBMs([]string{"xgb"}, 1, nil)
	require.Error(t, err)

	require.NoError(t, p.InferAutoParams(100, true))

	_, err = p.GBMs([]string{"xgb"}, 1, nil)
	require.ErrorIs(t, err, family.ErrUnknownAlgo)

	_, err = p.GBMs([]string{"linear_l2"}, 1, nil)
	require.ErrorIs(t, err, family.ErrUnknownAlgo)
}

func TestPresetFromConfigFile(t *testing.T) {
	t.Parallel()

	for _, name := range config.Presets() {
		p := newPreset(t, newTask(t, model.Binary), nil, preset.WithPreset(name))
		require.NoError(t, p.CreateAutoML(context.Background(), 1000, true), name)
		assert.NotEmpty(t, p.Levels(), name)
	}
}
