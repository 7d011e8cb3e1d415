package reader_test

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/go-automl/pkg/automl/config"
	"github.com/askiada/go-automl/pkg/automl/model"
	"github.com/askiada/go-automl/pkg/automl/reader"
)

const sample = `id,age,city,const,empty,label
1,30,paris,1,,yes
2,NA,london,1,,no
3,45,paris,1,,yes
4,22,berlin,1,,no
5,51,london,1,,yes
6,38,paris,1,,no
`

func csvParams() config.ReadCSVParams {
	return config.ReadCSVParams{Delimiter: ",", NAValues: []string{"NA", ""}}
}

func readerParams() config.ReaderParams {
	return config.ReaderParams{MaxNaNRate: 0.99, MaxConstantRate: 0.99, CV: 2, RandomState: 42, NJobs: 2}
}

func TestReadCSV(t *testing.T) {
	t.Parallel()

	table, err := reader.ReadCSV(context.Background(), strings.NewReader(sample), 2, csvParams())
	require.NoError(t, err)

	assert.Equal(t, 6, table.Rows())
	assert.Equal(t, []string{"id", "age", "city", "const", "empty", "label"}, table.Names())

	age, err := table.Column("age")
	require.NoError(t, err)
	assert.True(t, age.IsNumeric())
	assert.True(t, math.IsNaN(age.Numbers[1]))

	city, err := table.Column("city")
	require.NoError(t, err)
	assert.False(t, city.IsNumeric())

	params := csvParams()
	params.UseCols = []string{"age", "label"}

	table, err = reader.ReadCSV(context.Background(), strings.NewReader(sample), 1, params)
	require.NoError(t, err)
	assert.Equal(t, []string{"age", "label"}, table.Names())
}

func TestReadDataSources(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "train.csv")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	tcs := map[string]struct {
		src      any
		features []string
		rows     int
		names    []string
		wantErr  error
	}{
		"csv path":      {src: path, rows: 6, names: []string{"id", "age", "city", "const", "empty", "label"}},
		"csv projected": {src: path, features: []string{"label", "id"}, rows: 6, names: []string{"label", "id"}},
		"numbers":       {src: map[string][]float64{"b": {1, 2}, "a": {3, 4}}, rows: 2, names: []string{"a", "b"}},
		"rows":          {src: [][]float64{{1, 2}, {3, 4}, {5, 6}}, features: []string{"x", "y"}, rows: 3, names: []string{"x", "y"}},
		"ragged":        {src: map[string][]string{"a": {"x"}, "b": {"x", "y"}}, wantErr: reader.ErrRaggedSource},
		"parquet":       {src: filepath.Join(dir, "train.parquet"), wantErr: reader.ErrUnsupportedSource},
		"unknown type":  {src: 42, wantErr: reader.ErrUnsupportedSource},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			table, err := reader.ReadData(ctx, tc.src, tc.features, 2, csvParams())
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.rows, table.Rows())
			assert.Equal(t, tc.names, table.Names())
		})
	}
}

func TestReadBatch(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		rows      int
		nJobs     int
		batchSize int
		want      []int
	}{
		"even batches":         {rows: 1000, nJobs: 4, batchSize: 100, want: []int{100, 100, 100, 100, 100, 100, 100, 100, 100, 100}},
		"short last batch":     {rows: 1000, nJobs: 4, batchSize: 300, want: []int{300, 300, 300, 100}},
		"batch covers all":     {rows: 10, nJobs: 4, batchSize: 50, want: []int{10}},
		"one batch per job":    {rows: 10, nJobs: 4, want: []int{3, 3, 3, 1}},
		"single job":           {rows: 10, nJobs: 1, want: []int{10}},
		"more jobs than rows":  {rows: 3, nJobs: 8, want: []int{1, 1, 1}},
		"unset jobs and batch": {rows: 5, want: []int{5}},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			src := map[string][]float64{"x": make([]float64, tc.rows)}
			for i := range src["x"] {
				src["x"][i] = float64(i)
			}

			batches, err := reader.ReadBatch(context.Background(), src, nil, tc.nJobs, tc.batchSize, csvParams())
			require.NoError(t, err)

			got := make([]int, len(batches))
			next := 0.0

			for i, b := range batches {
				got[i] = b.Rows()

				// batches are consecutive slices of the source
				col, err := b.Column("x")
				require.NoError(t, err)

				for _, v := range col.Numbers {
					assert.Equal(t, next, v)
					next++
				}
			}

			assert.Equal(t, tc.want, got)
		})
	}
}

func TestReaderFit(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	task, err := model.NewTask(model.Binary)
	require.NoError(t, err)

	table, err := reader.ReadCSV(ctx, strings.NewReader(sample), 2, csvParams())
	require.NoError(t, err)

	var unfitted *reader.Reader
	_, err = unfitted.UsedFeatures()
	require.ErrorIs(t, err, reader.ErrNotFitted)

	r := reader.New(task, readerParams())
	_, err = r.UsedFeatures()
	require.ErrorIs(t, err, reader.ErrNotFitted)

	ds, err := r.Fit(ctx, table, reader.Roles{Target: "label", Drop: []string{"id"}})
	require.NoError(t, err)

	used, err := r.UsedFeatures()
	require.NoError(t, err)
	assert.Equal(t, []string{"age", "city"}, used)
	assert.ElementsMatch(t, []string{"const", "empty"}, r.Dropped())
	assert.Equal(t, model.RoleCategory, ds.Role("city"))
	assert.Equal(t, model.RoleNumeric, ds.Role("age"))

	assert.Equal(t, []string{"no", "yes"}, r.Classes())
	assert.Equal(t, []float64{1, 0, 1, 0, 1, 0}, ds.Target)

	// berlin, london, paris
	assert.Equal(t, []float64{2, 1, 2, 0, 1, 2}, ds.Column(1))

	perFold := map[int]int{}
	for _, f := range ds.Folds {
		perFold[f]++
	}

	assert.Equal(t, map[int]int{0: 3, 1: 3}, perFold)

	test, err := reader.ReadData(ctx, map[string][]string{"age": {"40"}, "city": {"rome"}}, nil, 1, csvParams())
	require.NoError(t, err)

	read, err := r.Read(ctx, test)
	require.NoError(t, err)
	assert.InDelta(t, 40, read.Data.At(0, 0), 1e-12)
	assert.True(t, math.IsNaN(read.Data.At(0, 1)))
	assert.Nil(t, read.Target)
}

func TestReaderUserFolds(t *testing.T) {
	t.Parallel()

	task, err := model.NewTask(model.Regression)
	require.NoError(t, err)

	table, err := reader.ReadData(context.Background(), map[string][]float64{
		"x":    {1, 2, 3, 4},
		"y":    {1, 2, 3, 4},
		"fold": {0, 1, math.NaN(), 1},
	}, nil, 1, csvParams())
	require.NoError(t, err)

	ds, err := reader.New(task, readerParams()).Fit(context.Background(), table, reader.Roles{Target: "y", Folds: "fold"})
	require.NoError(t, err)

	assert.Equal(t, []int{0, 1, model.HoldoutFold, 1}, ds.Folds)
	assert.Equal(t, []string{"x"}, ds.Features)
}

func TestReaderErrors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	task, err := model.NewTask(model.Binary)
	require.NoError(t, err)

	table, err := reader.ReadData(ctx, map[string][]float64{"x": {1, 2, 3}, "y": {0, 1, 2}}, nil, 1, csvParams())
	require.NoError(t, err)

	_, err = reader.New(task, readerParams()).Fit(ctx, table, reader.Roles{Target: "missing"})
	require.ErrorIs(t, err, reader.ErrNoTarget)

	_, err = reader.New(task, readerParams()).Fit(ctx, table, reader.Roles{Target: "y"})
	require.ErrorIs(t, err, reader.ErrBadTarget)
}
