package features

import (
	"math"
	"strconv"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/askiada/go-automl/pkg/automl/model"
)

// Linear prepares columns for linear models: numeric columns are standardised,
// categories are one-hot encoded over their most frequent levels and missing values become zero.
type Linear struct {
	maxCategories int
	standardize   bool

	inputs  []string
	outputs []string
	sources map[string]string
	columns []linearColumn
}

type linearColumn struct {
	input string
	// numeric
	mean, std float64
	// categorical, one output per level
	levels []float64
}

func NewLinear(maxCategories int, standardize bool) *Linear {
	return &Linear{maxCategories: maxCategories, standardize: standardize}
}

func (l *Linear) Fit(ds *model.Dataset) error {
	l.inputs = append([]string(nil), ds.Features...)
	l.outputs = nil
	l.sources = map[string]string{}
	l.columns = nil

	for j, f := range ds.Features {
		values := ds.Column(j)
		col := linearColumn{input: f}

		if ds.Role(f) == model.RoleCategory {
			order := frequencyOrder(values)
			if l.maxCategories > 0 && len(order) > l.maxCategories {
				order = order[:l.maxCategories]
			}

			col.levels = order
			for _, lvl := range order {
				name := f + "__" + strconv.FormatFloat(lvl, 'g', -1, 64)
				l.outputs = append(l.outputs, name)
				l.sources[name] = f
			}
		} else {
			col.mean, col.std = 0, 1

			finite := finiteValues(values)
			if l.standardize && len(finite) > 1 {
				col.mean, col.std = stat.MeanStdDev(finite, nil)
				if col.std == 0 || math.IsNaN(col.std) {
					col.std = 1
				}
			}

			l.outputs = append(l.outputs, f)
			l.sources[f] = f
		}

		l.columns = append(l.columns, col)
	}

	return nil
}

func (l *Linear) Transform(ds *model.Dataset) (*model.Dataset, error) {
	if l.inputs == nil {
		return nil, ErrNotFitted
	}

	sel, err := ds.Select(l.inputs)
	if err != nil {
		return nil, err
	}

	if len(l.outputs) == 0 {
		return nil, errors.Wrap(model.ErrNoFeatures, "no level survived encoding")
	}

	rows := sel.Len()
	data := mat.NewDense(rows, len(l.outputs), nil)
	roles := make(map[string]model.Role, len(l.outputs))

	for _, o := range l.outputs {
		roles[o] = model.RoleNumeric
	}

	for r := 0; r < rows; r++ {
		src := sel.Data.RawRowView(r)
		dst := data.RawRowView(r)
		out := 0

		for j, col := range l.columns {
			v := src[j]

			if col.levels == nil {
				if !math.IsNaN(v) {
					dst[out] = (v - col.mean) / col.std
				}

				out++

				continue
			}

			for _, lvl := range col.levels {
				if v == lvl {
					dst[out] = 1
				}

				out++
			}
		}
	}

	return sel.With(l.outputs, roles, data), nil
}

func (l *Linear) Sources() map[string]string {
	res := make(map[string]string, len(l.sources))
	for k, v := range l.sources {
		res[k] = v
	}

	return res
}

func (l *Linear) Clone() model.FeaturePipeline {
	return NewLinear(l.maxCategories, l.standardize)
}

func finiteValues(values []float64) []float64 {
	res := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			res = append(res, v)
		}
	}

	return res
}
