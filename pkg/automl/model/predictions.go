package model

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Predictions is the output of fit or inference: one row per input row.
type Predictions struct {
	Data    *mat.Dense
	Columns []string
	// Target is set for out-of-fold predictions.
	Target []float64
}

// Len returns the number of rows.
func (p *Predictions) Len() int {
	if p == nil || p.Data == nil {
		return 0
	}

	rows, _ := p.Data.Dims()

	return rows
}

// Concat stacks predictions vertically, keeping the order of parts.
func Concat(parts ...*Predictions) (*Predictions, error) {
	if len(parts) == 0 {
		return nil, errors.New("nothing to concatenate")
	}

	total := 0
	for _, p := range parts {
		if len(p.Columns) != len(parts[0].Columns) {
			return nil, errors.Wrap(ErrShapeMismatch, "predictions width differs")
		}

		total += p.Len()
	}

	data := mat.NewDense(total, len(parts[0].Columns), nil)
	offset := 0

	for _, p := range parts {
		for r := 0; r < p.Len(); r++ {
			data.SetRow(offset+r, p.Data.RawRowView(r))
		}

		offset += p.Len()
	}

	return &Predictions{Data: data, Columns: parts[0].Columns}, nil
}

// OutputColumns names the prediction columns of a task.
func OutputColumns(task *Task, classes []string) []string {
	switch task.Name() {
	case Multiclass:
		cols := make([]string, len(classes))
		for i, c := range classes {
			cols[i] = "proba_" + c
		}

		return cols
	case Binary:
		return []string{"proba"}
	default:
		return []string{"prediction"}
	}
}
