package autoscaler_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/askiada/go-automl/internal/autoscaler"
)

func TestWorkers(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		nJobs, batches, cpus int
		want                 int
	}{
		"bounded by jobs":    {nJobs: 4, batches: 10, cpus: 8, want: 4},
		"bounded by batches": {nJobs: 4, batches: 2, cpus: 8, want: 2},
		"bounded by cpus":    {nJobs: 16, batches: 10, cpus: 3, want: 3},
		"unknown cpus":       {nJobs: 4, batches: 10, cpus: 0, want: 4},
		"at least one":       {nJobs: 0, batches: 0, cpus: 0, want: 1},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, autoscaler.Workers(tc.nJobs, tc.batches, tc.cpus))
		})
	}
}

func TestBatches(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		rows, batchSize int
		want            int
	}{
		"exact":      {rows: 1000, batchSize: 100, want: 10},
		"remainder":  {rows: 1001, batchSize: 100, want: 11},
		"no size":    {rows: 10, batchSize: 0, want: 1},
		"large size": {rows: 10, batchSize: 100, want: 1},
		"no rows":    {rows: 0, batchSize: 10, want: 0},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, autoscaler.Batches(tc.rows, tc.batchSize))
		})
	}
}
