package preset_test

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/askiada/go-automl/pkg/automl/hardware"
	"github.com/askiada/go-automl/pkg/automl/model"
	"github.com/askiada/go-automl/pkg/automl/preset"
	"github.com/askiada/go-automl/pkg/automl/reader"
)

type sections = map[string]map[string]any

// fast keeps end to end fits short.
func fast(extra sections) sections {
	res := sections{
		"lgb_params":       {"default_params": map[string]any{"num_trees": 20}},
		"cb_params":        {"default_params": map[string]any{"num_trees": 20}},
		"nested_cv_params": {"cv": 2},
		"reader_params":    {"cv": 3},
		"tuning_params":    {"max_tuning_iter": 2, "max_tuning_time": 5},
	}

	for section, values := range extra {
		if res[section] == nil {
			res[section] = map[string]any{}
		}

		for k, v := range values {
			res[section][k] = v
		}
	}

	return res
}

func newTask(t *testing.T, name string, opts ...model.TaskOption) *model.Task {
	t.Helper()

	task, err := model.NewTask(name, opts...)
	require.NoError(t, err)

	return task
}

func newPreset(t *testing.T, task *model.Task, overrides sections, opts ...preset.Option) *preset.TabularAutoML {
	t.Helper()

	opts = append([]preset.Option{
		preset.WithHardware(hardware.New(4, 4, nil)),
		preset.WithOverrides(overrides),
	}, opts...)

	p, err := preset.New(task, opts...)
	require.NoError(t, err)

	return p
}

func binaryTable(rows int, seed int64) *reader.Table {
	rng := rand.New(rand.NewSource(seed))
	x1 := make([]float64, rows)
	x2 := make([]float64, rows)
	c := make([]string, rows)
	y := make([]float64, rows)
	levels := []string{"a", "b", "c"}

	for i := 0; i < rows; i++ {
		x1[i] = rng.NormFloat64()
		x2[i] = rng.NormFloat64()
		c[i] = levels[rng.Intn(len(levels))]

		logit := 2*x1[i] - x2[i]
		if c[i] == "a" {
			logit++
		}

		if rng.Float64() < 1/(1+math.Exp(-logit)) {
			y[i] = 1
		}
	}

	return &reader.Table{Columns: []reader.Column{
		{Name: "x1", Numbers: x1},
		{Name: "x2", Numbers: x2},
		{Name: "c", Strings: c},
		{Name: "y", Numbers: y},
	}}
}

func regressionTable(rows int, seed int64) *reader.Table {
	rng := rand.New(rand.NewSource(seed))
	x1 := make([]float64, rows)
	x2 := make([]float64, rows)
	y := make([]float64, rows)

	for i := 0; i < rows; i++ {
		x1[i] = rng.NormFloat64()
		x2[i] = rng.NormFloat64()
		y[i] = x1[i] + 0.5*x2[i] + 0.1*rng.NormFloat64()
	}

	return &reader.Table{Columns: []reader.Column{
		{Name: "x1", Numbers: x1},
		{Name: "x2", Numbers: x2},
		{Name: "y", Numbers: y},
	}}
}
