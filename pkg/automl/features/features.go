// Package features holds the feature pipelines applied between the reader and the models.
package features

import (
	"math"
	"sort"

	"github.com/pkg/errors"

	"github.com/askiada/go-automl/pkg/automl/model"
)

var ErrNotFitted = errors.New("feature pipeline is not fitted")

// Simple passes columns through unchanged. Used by selection models.
type Simple struct {
	features []string
}

func NewSimple() *Simple { return &Simple{} }

func (s *Simple) Fit(ds *model.Dataset) error {
	s.features = append([]string(nil), ds.Features...)

	return nil
}

func (s *Simple) Transform(ds *model.Dataset) (*model.Dataset, error) {
	if s.features == nil {
		return nil, ErrNotFitted
	}

	return ds.Select(s.features)
}

func (s *Simple) Sources() map[string]string {
	return identitySources(s.features)
}

func (s *Simple) Clone() model.FeaturePipeline { return &Simple{} }

func identitySources(features []string) map[string]string {
	res := make(map[string]string, len(features))
	for _, f := range features {
		res[f] = f
	}

	return res
}

// frequencyOrder returns the distinct non-missing codes of values, most frequent first.
// Ties keep the smaller code first.
func frequencyOrder(values []float64) []float64 {
	counts := map[float64]int{}

	for _, v := range values {
		if !math.IsNaN(v) {
			counts[v]++
		}
	}

	codes := make([]float64, 0, len(counts))
	for c := range counts {
		codes = append(codes, c)
	}

	sort.Slice(codes, func(i, j int) bool {
		if counts[codes[i]] != counts[codes[j]] {
			return counts[codes[i]] > counts[codes[j]]
		}

		return codes[i] < codes[j]
	})

	return codes
}

var (
	_ model.FeaturePipeline = (*Simple)(nil)
	_ model.FeaturePipeline = (*GBM)(nil)
	_ model.FeaturePipeline = (*Linear)(nil)
)
