// Package blend combines the predictions of several models into one.
//
// Every input is a rows x outputs matrix. When there is no input at all the
// blender falls back to the target prior, a constant prediction.
package blend

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/askiada/go-automl/pkg/automl/model"
)

var (
	ErrNotFitted = errors.New("blender is not fitted")
	ErrWidth     = errors.New("inputs differ in width")
)

// Blender reduces several predictions to one.
type Blender interface {
	// FitPredict learns the combination on out-of-fold predictions and returns the blend.
	FitPredict(preds []*mat.Dense, target []float64, task *model.Task, outputs int) (*mat.Dense, error)
	// Predict applies the learned combination to rows predictions.
	Predict(rows int, preds []*mat.Dense) (*mat.Dense, error)
	// Weights returns the weight of every input, in input order.
	Weights() []float64
}

// state is shared by the blenders.
type state struct {
	weights []float64
	prior   []float64
	fitted  bool
}

func (s *state) Weights() []float64 { return append([]float64(nil), s.weights...) }

func (s *state) fitPrior(target []float64, task *model.Task, outputs int) {
	s.prior = Prior(target, task, outputs)
}

func (s *state) predict(rows int, preds []*mat.Dense) (*mat.Dense, error) {
	if !s.fitted {
		return nil, ErrNotFitted
	}

	if len(preds) == 0 || allZero(s.weights) {
		return constant(rows, s.prior), nil
	}

	if len(preds) != len(s.weights) {
		return nil, errors.Wrapf(ErrWidth, "%d inputs for %d weights", len(preds), len(s.weights))
	}

	return combine(preds, s.weights)
}

// Prior returns the constant prediction of a task: the target mean for regression and
// binary tasks, the class frequencies for multiclass.
func Prior(target []float64, task *model.Task, outputs int) []float64 {
	if task.Name() != model.Multiclass {
		if len(target) == 0 {
			return []float64{0}
		}

		return []float64{stat.Mean(target, nil)}
	}

	res := make([]float64, outputs)
	if len(target) == 0 {
		for k := range res {
			res[k] = 1 / float64(outputs)
		}

		return res
	}

	for _, y := range target {
		res[int(y)]++
	}

	for k := range res {
		res[k] /= float64(len(target))
	}

	return res
}

func constant(rows int, value []float64) *mat.Dense {
	res := mat.NewDense(rows, len(value), nil)
	for r := 0; r < rows; r++ {
		copy(res.RawRowView(r), value)
	}

	return res
}

// combine computes the weighted average of the inputs row by row, renormalising
// the weights over the inputs that are finite on that row.
func combine(preds []*mat.Dense, weights []float64) (*mat.Dense, error) {
	rows, cols := preds[0].Dims()

	for _, p := range preds[1:] {
		r, c := p.Dims()
		if r != rows || c != cols {
			return nil, errors.Wrapf(ErrWidth, "%dx%d and %dx%d", rows, cols, r, c)
		}
	}

	res := mat.NewDense(rows, cols, nil)

	for r := 0; r < rows; r++ {
		dst := res.RawRowView(r)

		var total float64

		for i, p := range preds {
			if weights[i] == 0 || !finite(p.RawRowView(r)) {
				continue
			}

			total += weights[i]

			for c, v := range p.RawRowView(r) {
				dst[c] += weights[i] * v
			}
		}

		for c := range dst {
			if total == 0 {
				dst[c] = math.NaN()

				continue
			}

			dst[c] /= total
		}
	}

	return res, nil
}

func finite(row []float64) bool {
	for _, v := range row {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}

	return true
}

func allZero(values []float64) bool {
	for _, v := range values {
		if v != 0 {
			return false
		}
	}

	return true
}

func equal(n int) []float64 {
	res := make([]float64, n)
	for i := range res {
		res[i] = 1 / float64(n)
	}

	return res
}
