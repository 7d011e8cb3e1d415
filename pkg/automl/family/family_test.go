package family_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/go-automl/pkg/automl/algo/boost"
	"github.com/askiada/go-automl/pkg/automl/algo/linear"
	"github.com/askiada/go-automl/pkg/automl/config"
	"github.com/askiada/go-automl/pkg/automl/family"
	"github.com/askiada/go-automl/pkg/automl/model"
)

func TestCost(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		key     string
		want    float64
		wantErr error
	}{
		"lgb":       {key: "lgb", want: 1},
		"lgb_tuned": {key: "lgb_tuned", want: 3},
		"linear_l2": {key: "linear_l2", want: 0.7},
		"cb":        {key: "cb", want: 2},
		"cb_tuned":  {key: "cb_tuned", want: 6},
		"unknown":   {key: "xgb", wantErr: family.ErrUnknownModelType},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got, err := family.Cost(tc.key)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)

				return
			}

			require.NoError(t, err)
			assert.InDelta(t, tc.want, got, 1e-12)
		})
	}
}

func TestParseKey(t *testing.T) {
	t.Parallel()

	base, tuned := family.ParseKey("cb_tuned")
	assert.Equal(t, "cb", base)
	assert.True(t, tuned)

	base, tuned = family.ParseKey("linear_l2")
	assert.Equal(t, "linear_l2", base)
	assert.False(t, tuned)
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	cfg, err := config.Resolve(config.Preset(config.DefaultPreset), nil)
	require.NoError(t, err)

	task, err := model.NewTask(model.Binary)
	require.NoError(t, err)

	reg := family.Default()
	assert.Equal(t, []string{"cb", "lgb", "linear_l2"}, reg.Keys())

	m, err := reg.Build(family.LGB, family.Params{Name: "lgb_0", Task: task, Config: cfg})
	require.NoError(t, err)
	assert.IsType(t, &boost.Model{}, m)
	assert.Equal(t, "lgb_0", m.Name())

	m, err = reg.Build(family.Linear, family.Params{Name: "reg_l2", Task: task, Config: cfg})
	require.NoError(t, err)
	assert.IsType(t, &linear.Model{}, m)

	_, err = reg.Build("xgb", family.Params{Task: task, Config: cfg})
	assert.ErrorIs(t, err, family.ErrUnknownAlgo)

	assert.False(t, reg.Accelerated(family.CBTuned, cfg))
	cfg.CB.DefaultParams.TaskType = "GPU"
	assert.True(t, reg.Accelerated(family.CBTuned, cfg))
	assert.False(t, reg.Accelerated(family.LGB, cfg))
}

func TestThreadsCap(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		key        string
		configured int
		limit      int
		want       int
	}{
		"no limit":         {key: family.LGB, configured: 6, want: 6},
		"limit clamps":     {key: family.LGB, configured: 6, limit: 2, want: 2},
		"lower configured": {key: family.CB, configured: 1, limit: 4, want: 1},
		"unset configured": {key: family.CB, limit: 3, want: 3},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			cfg, err := config.Resolve(config.Preset(config.DefaultPreset), nil)
			require.NoError(t, err)

			cfg.LGB.DefaultParams.NumThreads = tc.configured
			cfg.CB.DefaultParams.ThreadCount = tc.configured

			task, err := model.NewTask(model.Regression)
			require.NoError(t, err)

			m, err := family.Default().Build(tc.key, family.Params{Name: tc.key, Task: task, Config: cfg, Threads: tc.limit})
			require.NoError(t, err)
			require.IsType(t, &boost.Model{}, m)
			assert.Equal(t, tc.want, m.(*boost.Model).Threads())
		})
	}
}
