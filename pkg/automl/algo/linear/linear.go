// Package linear implements L2-regularised linear models: ridge regression,
// logistic regression fitted by iteratively reweighted least squares and its
// one-vs-rest extension for multiclass targets.
package linear

import (
	"context"
	"math"
	"time"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"k8s.io/utils/clock"

	"github.com/askiada/go-automl/pkg/automl/model"
)

var (
	ErrNotFitted = errors.New("linear model is not fitted")
	ErrSingular  = errors.New("normal equations are singular")
)

// Params configures the solver.
type Params struct {
	L2      float64
	MaxIter int
	Tol     float64
	Clock   clock.PassiveClock
}

// Model is a linear model with one coefficient vector per output.
type Model struct {
	name   string
	task   *model.Task
	params Params
	budget time.Duration

	features []string
	// coef holds the intercept at index 0.
	coef [][]float64
}

func New(name string, task *model.Task, params Params) *Model {
	if params.Clock == nil {
		params.Clock = clock.RealClock{}
	}

	if params.MaxIter < 1 {
		params.MaxIter = 1
	}

	return &Model{name: name, task: task, params: params}
}

func (m *Model) Name() string { return m.name }

func (m *Model) SetBudget(d time.Duration) { m.budget = d }

func (m *Model) Clone() model.Model {
	return &Model{name: m.name, task: m.task, params: m.params, budget: m.budget}
}

// Importance returns the absolute coefficient of every feature.
func (m *Model) Importance() map[string]float64 {
	res := make(map[string]float64, len(m.features))

	for j, f := range m.features {
		var total float64
		for _, w := range m.coef {
			total += math.Abs(w[j+1])
		}

		res[f] = total
	}

	return res
}

func (m *Model) Fit(ctx context.Context, train, _ *model.Dataset) error {
	if train.Len() == 0 {
		return errors.Wrap(model.ErrNoFeatures, "unable to fit on empty data")
	}

	x := design(train.Data)
	m.features = train.Features
	m.coef = nil

	switch m.task.Name() {
	case model.Regression:
		w, err := ridge(x, train.Target, m.params.L2)
		if err != nil {
			return err
		}

		m.coef = [][]float64{w}
	case model.Binary:
		w, err := m.logistic(ctx, x, train.Target)
		if err != nil {
			return err
		}

		m.coef = [][]float64{w}
	case model.Multiclass:
		for k := 0; k < train.Classes; k++ {
			y := make([]float64, len(train.Target))
			for i, v := range train.Target {
				if int(v) == k {
					y[i] = 1
				}
			}

			w, err := m.logistic(ctx, x, y)
			if err != nil {
				return errors.Wrapf(err, "unable to fit class %d", k)
			}

			m.coef = append(m.coef, w)
		}
	}

	return nil
}

func (m *Model) Predict(ds *model.Dataset) (*mat.Dense, error) {
	if m.coef == nil {
		return nil, ErrNotFitted
	}

	if ds.Len() == 0 {
		return &mat.Dense{}, nil
	}

	aligned, err := ds.Select(m.features)
	if err != nil {
		return nil, errors.Wrap(err, "unable to align features")
	}

	x := design(aligned.Data)
	rows, _ := x.Dims()
	res := mat.NewDense(rows, len(m.coef), nil)

	// row by row so a row scores the same whatever batch it comes in
	for i := 0; i < rows; i++ {
		row := x.RawRowView(i)

		for k, w := range m.coef {
			v := floats.Dot(row, w)
			if m.task.IsClassification() {
				v = sigmoid(v)
			}

			res.Set(i, k, v)
		}
	}

	if m.task.Name() == model.Multiclass {
		for i := 0; i < rows; i++ {
			row := res.RawRowView(i)

			var sum float64
			for _, v := range row {
				sum += v
			}

			for k := range row {
				row[k] /= sum
			}
		}
	}

	return res, nil
}

// design prepends an intercept column and replaces missing values with zero.
func design(data *mat.Dense) *mat.Dense {
	rows, cols := data.Dims()
	x := mat.NewDense(rows, cols+1, nil)

	for i := 0; i < rows; i++ {
		src := data.RawRowView(i)
		dst := x.RawRowView(i)
		dst[0] = 1

		for j, v := range src {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				v = 0
			}

			dst[j+1] = v
		}
	}

	return x
}

// solve returns the solution of (A + l2*I') w = b where I' leaves the intercept unpenalised.
func solve(a *mat.SymDense, b *mat.VecDense, l2 float64) (*mat.VecDense, error) {
	n := a.SymmetricDim()
	for j := 1; j < n; j++ {
		a.SetSym(j, j, a.At(j, j)+l2)
	}

	// a tiny ridge on the intercept keeps all-constant designs solvable
	a.SetSym(0, 0, a.At(0, 0)+1e-9)

	var chol mat.Cholesky
	if ok := chol.Factorize(a); !ok {
		return nil, ErrSingular
	}

	w := mat.NewVecDense(n, nil)

	err := chol.SolveVecTo(w, b)
	if err != nil {
		return nil, errors.Wrap(err, "unable to solve normal equations")
	}

	return w, nil
}

func ridge(x *mat.Dense, y []float64, l2 float64) ([]float64, error) {
	_, n := x.Dims()

	a := mat.NewSymDense(n, nil)
	a.SymOuterK(1, x.T())

	b := mat.NewVecDense(n, nil)
	b.MulVec(x.T(), mat.NewVecDense(len(y), y))

	w, err := solve(a, b, l2)
	if err != nil {
		return nil, err
	}

	return w.RawVector().Data, nil
}

// logistic runs Newton steps until the update is below tolerance, the iteration cap or the budget.
func (m *Model) logistic(ctx context.Context, x *mat.Dense, y []float64) ([]float64, error) {
	rows, n := x.Dims()
	start := m.params.Clock.Now()
	w := mat.NewVecDense(n, nil)
	z := mat.NewVecDense(rows, nil)
	weighted := mat.NewDense(rows, n, nil)

	for iter := 0; iter < m.params.MaxIter; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(err, "unable to finish logistic fit")
		}

		z.MulVec(x, w)

		resid := mat.NewVecDense(rows, nil)

		for i := 0; i < rows; i++ {
			p := sigmoid(z.AtVec(i))
			s := math.Max(p*(1-p), 1e-6)
			resid.SetVec(i, y[i]-p)

			src := x.RawRowView(i)
			dst := weighted.RawRowView(i)

			for j, v := range src {
				dst[j] = v * s
			}
		}

		hess := mat.NewSymDense(n, nil)
		for a := 0; a < n; a++ {
			for b := a; b < n; b++ {
				hess.SetSym(a, b, mat.Dot(weighted.ColView(a), x.ColView(b)))
			}
		}

		grad := mat.NewVecDense(n, nil)
		grad.MulVec(x.T(), resid)

		for j := 1; j < n; j++ {
			grad.SetVec(j, grad.AtVec(j)-m.params.L2*w.AtVec(j))
		}

		step, err := solve(hess, grad, m.params.L2)
		if err != nil {
			return nil, err
		}

		w.AddVec(w, step)

		if mat.Norm(step, math.Inf(1)) < m.params.Tol {
			break
		}

		if m.budget > 0 && m.params.Clock.Since(start) >= m.budget {
			break
		}
	}

	return w.RawVector().Data, nil
}

func sigmoid(v float64) float64 {
	return 1 / (1 + math.Exp(-v))
}

var (
	_ model.Budgeted    = (*Model)(nil)
	_ model.Importancer = (*Model)(nil)
)
