package preset_test

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/askiada/go-automl/pkg/automl/metrics"
	"github.com/askiada/go-automl/pkg/automl/model"
	"github.com/askiada/go-automl/pkg/automl/preset"
	"github.com/askiada/go-automl/pkg/automl/reader"
)

func TestPredictBatchIdentity(t *testing.T) {
	t.Parallel()

	rec := metrics.NewRecorder()
	p := newPreset(t, newTask(t, model.Regression), fast(sections{
		"general_params":   {"use_algos": [][]string{{"linear_l2", "lgb"}}},
		"selection_params": {"mode": 0},
	}), preset.WithMetrics(rec))

	ctx := context.Background()
	_, err := p.FitPredict(ctx, regressionTable(300, 1), reader.Roles{Target: "y"})
	require.NoError(t, err)

	data := regressionTable(1000, 2)

	single, err := p.Predict(ctx, data)
	require.NoError(t, err)
	require.Equal(t, 1000, single.Len())

	tcs := map[string]struct {
		batchSize int
		jobs      int
	}{
		"batches of 100 on 4 jobs": {batchSize: 100, jobs: 4},
		"batches of 100 on 1 job":  {batchSize: 100, jobs: 1},
		"a batch per job":          {batchSize: 0, jobs: 4},
		"uneven batches":           {batchSize: 333, jobs: 2},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			batched, err := p.Predict(ctx, data, preset.WithBatchSize(tc.batchSize), preset.WithJobs(tc.jobs))
			require.NoError(t, err)

			assert.Equal(t, single.Columns, batched.Columns)
			assert.True(t, mat.Equal(single.Data, batched.Data))
		})
	}
}

func TestPredictCSV(t *testing.T) {
	t.Parallel()

	p := newPreset(t, newTask(t, model.Regression), fast(sections{
		"general_params":   {"use_algos": [][]string{{"linear_l2"}}},
		"selection_params": {"mode": 0},
	}))

	train := regressionTable(200, 3)
	path := filepath.Join(t.TempDir(), "train.csv")
	require.NoError(t, os.WriteFile(path, []byte(toCSV(train, true)), 0o600))

	ctx := context.Background()
	_, err := p.FitPredict(ctx, path, reader.Roles{Target: "y"})
	require.NoError(t, err)

	// extra columns are ignored once the reader is fitted
	test := regressionTable(20, 4)
	test.Columns = append(test.Columns, reader.Column{Name: "noise", Strings: make([]string, 20)})
	testPath := filepath.Join(t.TempDir(), "test.csv")
	require.NoError(t, os.WriteFile(testPath, []byte(toCSV(test, false)), 0o600))

	fromFile, err := p.Predict(ctx, testPath, preset.WithBatchSize(7), preset.WithJobs(3))
	require.NoError(t, err)

	fromTable, err := p.Predict(ctx, regressionTable(20, 4))
	require.NoError(t, err)

	require.Equal(t, 20, fromFile.Len())

	for i := 0; i < 20; i++ {
		assert.InDelta(t, fromTable.Data.At(i, 0), fromFile.Data.At(i, 0), 1e-9)
	}
}

func toCSV(table *reader.Table, withTarget bool) string {
	var sb strings.Builder

	var cols []reader.Column

	for _, c := range table.Columns {
		if c.Name == "y" && !withTarget {
			continue
		}

		cols = append(cols, c)
	}

	for j, c := range cols {
		if j > 0 {
			sb.WriteByte(',')
		}

		sb.WriteString(c.Name)
	}

	sb.WriteByte('\n')

	for i := 0; i < table.Rows(); i++ {
		for j, c := range cols {
			if j > 0 {
				sb.WriteByte(',')
			}

			if c.IsNumeric() {
				sb.WriteString(strconv.FormatFloat(c.Numbers[i], 'g', -1, 64))
			} else {
				sb.WriteString(c.Strings[i])
			}
		}

		sb.WriteByte('\n')
	}

	return sb.String()
}
