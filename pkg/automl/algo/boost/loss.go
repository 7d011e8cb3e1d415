package boost

import (
	"math"
	"sort"

	"github.com/askiada/go-automl/pkg/automl/model"
)

// objective provides gradients and the inverse link of a task loss.
type objective struct {
	task    *model.Task
	outputs int
}

func (o objective) initScore(target []float64) []float64 {
	base := make([]float64, o.outputs)

	switch o.task.Name() {
	case model.Binary:
		p := math.Min(math.Max(mean(target), 1e-6), 1-1e-6)
		base[0] = math.Log(p / (1 - p))
	case model.Multiclass:
		counts := make([]float64, o.outputs)
		for _, y := range target {
			counts[int(y)]++
		}

		for k := range base {
			base[k] = math.Log((counts[k] + 1) / float64(len(target)+o.outputs))
		}
	default:
		switch o.task.Loss() {
		case "mae", "quantile", "huber", "fair":
			base[0] = median(target)
		default:
			base[0] = mean(target)
		}
	}

	return base
}

// gradients fills grad and hess for output k given raw scores of every output.
func (o objective) gradients(target []float64, raw [][]float64, k int, grad, hess []float64) {
	for i, y := range target {
		switch o.task.Name() {
		case model.Binary:
			p := sigmoid(raw[i][0])
			grad[i] = p - y
			hess[i] = math.Max(p*(1-p), 1e-6)
		case model.Multiclass:
			p := softmax(raw[i])[k]

			ind := 0.0
			if int(y) == k {
				ind = 1
			}

			grad[i] = p - ind
			hess[i] = math.Max(p*(1-p), 1e-6)
		default:
			grad[i], hess[i] = regressionGradient(o.task.Loss(), raw[i][0]-y)
		}
	}
}

func regressionGradient(loss string, d float64) (float64, float64) {
	switch loss {
	case "mae", "quantile":
		return sign(d), 1
	case "huber":
		return math.Max(-1, math.Min(1, d)), 1
	case "fair":
		a := math.Abs(d) + 1

		return d / a, 1 / (a * a)
	default:
		return d, 1
	}
}

// link turns raw scores into predictions.
func (o objective) link(raw []float64, dst []float64) {
	switch o.task.Name() {
	case model.Binary:
		dst[0] = sigmoid(raw[0])
	case model.Multiclass:
		copy(dst, softmax(raw))
	default:
		dst[0] = raw[0]
	}
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func softmax(raw []float64) []float64 {
	maxV := math.Inf(-1)
	for _, v := range raw {
		maxV = math.Max(maxV, v)
	}

	res := make([]float64, len(raw))

	var sum float64

	for i, v := range raw {
		res[i] = math.Exp(v - maxV)
		sum += res[i]
	}

	for i := range res {
		res[i] /= sum
	}

	return res
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	var sum float64
	for _, v := range values {
		sum += v
	}

	return sum / float64(len(values))
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	cp := append([]float64(nil), values...)
	sort.Float64s(cp)

	return cp[len(cp)/2]
}
