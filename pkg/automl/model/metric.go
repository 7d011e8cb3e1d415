package model

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

const eps = 1e-15

// Score evaluates predictions against the target with the task metric. Higher is better.
// Rows holding NaN predictions are ignored.
func (t *Task) Score(target []float64, pred *mat.Dense) float64 {
	rows, _ := pred.Dims()
	idx := FiniteRows(rows, pred)

	if len(idx) == 0 {
		return math.Inf(-1)
	}

	var total float64

	for _, r := range idx {
		total += t.rowLoss(target[r], pred.RawRowView(r))
	}

	return -total / float64(len(idx))
}

func (t *Task) rowLoss(y float64, p []float64) float64 {
	switch t.name {
	case Binary:
		q := clip(p[0])

		return -(y*math.Log(q) + (1-y)*math.Log(1-q))
	case Multiclass:
		return -math.Log(clip(p[int(y)]))
	default:
		d := p[0] - y
		if t.loss == "mae" || t.loss == "quantile" || t.loss == "fair" {
			return math.Abs(d)
		}

		return d * d
	}
}

func clip(v float64) float64 {
	return math.Min(math.Max(v, eps), 1-eps)
}
