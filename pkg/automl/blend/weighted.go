package blend

import (
	"gonum.org/v1/gonum/mat"

	"github.com/askiada/go-automl/pkg/automl/model"
)

const (
	defaultPasses = 5
	gridSize      = 21
)

// Weighted searches blending weights by coordinate descent on a grid and drops
// the inputs whose weight ends below the pruning threshold.
type Weighted struct {
	state
	passes     int
	pruneBelow float64
}

type WeightedOption func(w *Weighted)

// WithPasses sets the number of coordinate passes.
func WithPasses(n int) WeightedOption {
	return func(w *Weighted) {
		w.passes = n
	}
}

// WithPruneBelow sets the weight under which an input is dropped.
func WithPruneBelow(v float64) WeightedOption {
	return func(w *Weighted) {
		w.pruneBelow = v
	}
}

func NewWeighted(opts ...WeightedOption) *Weighted {
	w := &Weighted{passes: defaultPasses, pruneBelow: 0.05}
	for _, opt := range opts {
		opt(w)
	}

	return w
}

func (w *Weighted) FitPredict(preds []*mat.Dense, target []float64, task *model.Task, outputs int) (*mat.Dense, error) {
	w.fitPrior(target, task, outputs)
	w.fitted = true

	if len(preds) <= 1 {
		w.weights = equal(len(preds))

		return w.predict(len(target), preds)
	}

	weights := equal(len(preds))

	best, err := w.score(preds, weights, target, task)
	if err != nil {
		return nil, err
	}

	for pass := 0; pass < w.passes; pass++ {
		improved := false

		for i := range weights {
			for g := 0; g < gridSize; g++ {
				candidate := reweight(weights, i, float64(g)/float64(gridSize-1))
				if candidate == nil {
					continue
				}

				s, err := w.score(preds, candidate, target, task)
				if err != nil {
					return nil, err
				}

				if s > best+1e-12 {
					best = s
					weights = candidate
					improved = true
				}
			}
		}

		if !improved {
			break
		}
	}

	w.weights = prune(weights, w.pruneBelow)

	return w.predict(len(target), preds)
}

func (w *Weighted) Predict(rows int, preds []*mat.Dense) (*mat.Dense, error) {
	return w.predict(rows, preds)
}

func (w *Weighted) score(preds []*mat.Dense, weights, target []float64, task *model.Task) (float64, error) {
	blend, err := combine(preds, weights)
	if err != nil {
		return 0, err
	}

	return task.Score(target, blend), nil
}

// reweight sets weight i to v and rescales the others to keep the sum at one.
func reweight(weights []float64, i int, v float64) []float64 {
	rest := 1 - weights[i]
	res := make([]float64, len(weights))

	for j, x := range weights {
		switch {
		case j == i:
			res[j] = v
		case rest > 0:
			res[j] = x / rest * (1 - v)
		default:
			res[j] = (1 - v) / float64(len(weights)-1)
		}
	}

	if allZero(res) {
		return nil
	}

	return res
}

func prune(weights []float64, below float64) []float64 {
	res := append([]float64(nil), weights...)

	var total float64

	for i, v := range res {
		if v < below {
			res[i] = 0
		}

		total += res[i]
	}

	if total == 0 {
		// keep the heaviest input rather than nothing
		best := 0
		for i, v := range weights {
			if v > weights[best] {
				best = i
			}
		}

		res[best] = 1

		return res
	}

	for i := range res {
		res[i] /= total
	}

	return res
}

var _ Blender = (*Weighted)(nil)
