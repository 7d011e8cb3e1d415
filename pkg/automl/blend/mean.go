package blend

import (
	"gonum.org/v1/gonum/mat"

	"github.com/askiada/go-automl/pkg/automl/model"
)

// Mean averages its inputs with equal weights.
type Mean struct {
	state
}

func NewMean() *Mean { return &Mean{} }

func (m *Mean) FitPredict(preds []*mat.Dense, target []float64, task *model.Task, outputs int) (*mat.Dense, error) {
	m.fitPrior(target, task, outputs)
	m.weights = equal(len(preds))
	m.fitted = true

	return m.predict(len(target), preds)
}

func (m *Mean) Predict(rows int, preds []*mat.Dense) (*mat.Dense, error) {
	return m.predict(rows, preds)
}

var _ Blender = (*Mean)(nil)
