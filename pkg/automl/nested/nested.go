// Package nested trains the models of one level branch over the outer folds,
// optionally inside an inner cross-validation, and produces out-of-fold predictions.
package nested

import (
	"context"
	"math"
	"math/rand"
	"strconv"
	"time"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/askiada/go-automl/pkg/automl/model"
	"github.com/askiada/go-automl/pkg/automl/selection"
	"github.com/askiada/go-automl/pkg/automl/timer"
)

var (
	ErrNoFolds   = errors.New("dataset has no validation fold")
	ErrNotFitted = errors.New("pipeline is not fitted")
)

// Unit is a trainable model, optionally tuned, with its own task timer.
type Unit struct {
	Model model.Model
	Tuner model.Tuner
	Timer *timer.TaskTimer
	// ForceCalc trains the unit even when the global budget is exhausted.
	ForceCalc bool
}

type trainedUnit struct {
	name    string
	outputs int
	// models holds every fitted model, predictions are averaged over them.
	models []model.Model
}

// Pipeline is one branch of a level: a selector, a feature pipeline and its units.
type Pipeline struct {
	name          string
	task          *model.Task
	features      model.FeaturePipeline
	selector      selection.Selector
	units         []Unit
	cv            int
	nFolds        *int
	maxTuningTime time.Duration
	seed          int64

	trained []trainedUnit
}

type Option func(p *Pipeline)

// WithSelector attaches a pre-selection applied before the features.
func WithSelector(sel selection.Selector) Option {
	return func(p *Pipeline) {
		p.selector = sel
	}
}

// WithInnerCV trains every unit on cv inner folds of each outer train split.
// nFolds caps how many inner folds are actually fitted, nil fits all of them.
func WithInnerCV(cv int, nFolds *int) Option {
	return func(p *Pipeline) {
		p.cv = cv
		p.nFolds = nFolds
	}
}

// WithMaxTuningTime caps the tuning budget of every tuned unit.
func WithMaxTuningTime(d time.Duration) Option {
	return func(p *Pipeline) {
		p.maxTuningTime = d
	}
}

func WithSeed(seed int64) Option {
	return func(p *Pipeline) {
		p.seed = seed
	}
}

// New creates a pipeline.
func New(name string, task *model.Task, features model.FeaturePipeline, units []Unit, opts ...Option) *Pipeline {
	p := &Pipeline{
		name:     name,
		task:     task,
		features: features,
		units:    units,
		cv:       1,
		seed:     42,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

func (p *Pipeline) Name() string { return p.name }

// Units returns the configured units.
func (p *Pipeline) Units() []Unit { return p.units }

// Selector returns the pre-selection, nil when absent.
func (p *Pipeline) Selector() selection.Selector { return p.selector }

// InnerFolds returns the number of inner folds fitted per outer split.
func (p *Pipeline) InnerFolds() int {
	if p.cv <= 1 {
		return 1
	}

	if p.nFolds != nil && *p.nFolds < p.cv {
		return max(*p.nFolds, 1)
	}

	return p.cv
}

// Trained returns the names of the units that produced predictions.
func (p *Pipeline) Trained() []string {
	res := make([]string, len(p.trained))
	for i, t := range p.trained {
		res[i] = t.name
	}

	return res
}

// FitPredict trains every unit and returns its out-of-fold predictions. Rows in no
// validation fold get NaN. Units are skipped once the global budget is spent unless forced.
func (p *Pipeline) FitPredict(ctx context.Context, ds *model.Dataset) (*model.Predictions, error) {
	logger := logr.FromContextOrDiscard(ctx).WithValues("pipeline", p.name)
	p.trained = make([]trainedUnit, 0, len(p.units))

	folds := ds.FoldIDs()
	if len(folds) == 0 {
		return nil, ErrNoFolds
	}

	x, err := p.prepare(ctx, ds)
	if err != nil {
		return nil, err
	}

	var (
		names []string
		parts []*mat.Dense
	)

	for _, u := range p.units {
		if u.Timer != nil && u.Timer.Pipeline().OutOfTime() && !u.ForceCalc {
			u.Timer.Skip()
			logger.Info("skipping unit, no time left", "unit", u.Model.Name())

			continue
		}

		tu, oof, err := p.fitUnit(ctx, u, x, folds)
		if err != nil {
			return nil, errors.Wrapf(err, "unable to fit %s", u.Model.Name())
		}

		p.trained = append(p.trained, tu)
		parts = append(parts, oof)
		names = append(names, p.columns(tu)...)
	}

	return p.assemble(ds.Len(), names, parts, ds.Target), nil
}

// Predict averages the predictions of every fitted model of every trained unit.
func (p *Pipeline) Predict(ds *model.Dataset) (*model.Predictions, error) {
	if p.trained == nil {
		return nil, ErrNotFitted
	}

	x, err := p.transform(ds)
	if err != nil {
		return nil, err
	}

	var (
		names []string
		parts []*mat.Dense
	)

	for _, tu := range p.trained {
		avg := mat.NewDense(ds.Len(), tu.outputs, nil)

		for _, m := range tu.models {
			pred, err := m.Predict(x)
			if err != nil {
				return nil, errors.Wrapf(err, "unable to predict with %s", tu.name)
			}

			avg.Add(avg, pred)
		}

		avg.Scale(1/float64(len(tu.models)), avg)
		parts = append(parts, avg)
		names = append(names, p.columns(tu)...)
	}

	return p.assemble(ds.Len(), names, parts, nil), nil
}

func (p *Pipeline) prepare(ctx context.Context, ds *model.Dataset) (*model.Dataset, error) {
	if p.selector != nil {
		err := p.selector.Fit(ctx, ds)
		if err != nil {
			return nil, errors.Wrap(err, "unable to fit selector")
		}
	}

	sel, err := p.selectColumns(ds)
	if err != nil {
		return nil, err
	}

	err = p.features.Fit(sel)
	if err != nil {
		return nil, errors.Wrap(err, "unable to fit features")
	}

	x, err := p.features.Transform(sel)
	if err != nil {
		return nil, errors.Wrap(err, "unable to transform features")
	}

	return x, nil
}

func (p *Pipeline) selectColumns(ds *model.Dataset) (*model.Dataset, error) {
	if p.selector == nil {
		return ds, nil
	}

	sel, err := p.selector.Select(ds)
	if err != nil {
		return nil, errors.Wrap(err, "unable to apply selector")
	}

	return sel, nil
}

func (p *Pipeline) transform(ds *model.Dataset) (*model.Dataset, error) {
	sel, err := p.selectColumns(ds)
	if err != nil {
		return nil, err
	}

	x, err := p.features.Transform(sel)
	if err != nil {
		return nil, errors.Wrap(err, "unable to transform features")
	}

	return x, nil
}

func (p *Pipeline) fitUnit(ctx context.Context, u Unit, x *model.Dataset, folds []int) (trainedUnit, *mat.Dense, error) {
	logger := logr.FromContextOrDiscard(ctx).WithValues("pipeline", p.name, "unit", u.Model.Name())

	if u.Timer != nil {
		u.Timer.Start()
		defer u.Timer.Stop()
	}

	base := u.Model

	if u.Tuner != nil {
		tuned, err := u.Tuner.Tune(ctx, base, x, p.tuningBudget(u))
		if err != nil {
			return trainedUnit{}, nil, errors.Wrap(err, "unable to tune")
		}

		base = tuned
	}

	tu := trainedUnit{name: u.Model.Name(), outputs: x.Outputs(p.task)}
	oof := mat.NewDense(x.Len(), tu.outputs, nil)
	fillNaN(oof)

	inner := p.InnerFolds()
	remaining := len(folds) * inner

	for _, k := range folds {
		trainIdx, validIdx := x.Split(k)
		train, valid := x.Rows(trainIdx), x.Rows(validIdx)

		sum := mat.NewDense(len(validIdx), tu.outputs, nil)

		for j, split := range p.innerSplits(train) {
			m := base.Clone()
			p.setBudget(u, m, remaining)
			remaining--

			innerTrain, innerValid := train, valid
			if p.cv > 1 {
				innerTrain, innerValid = train.Rows(split[0]), train.Rows(split[1])
			}

			err := m.Fit(ctx, innerTrain, innerValid)
			if err != nil {
				return trainedUnit{}, nil, errors.Wrapf(err, "unable to fit fold %d/%d", k, j)
			}

			pred, err := m.Predict(valid)
			if err != nil {
				return trainedUnit{}, nil, errors.Wrapf(err, "unable to predict fold %d", k)
			}

			sum.Add(sum, pred)
			tu.models = append(tu.models, m)
		}

		sum.Scale(1/float64(inner), sum)

		for i, r := range validIdx {
			oof.SetRow(r, sum.RawRowView(i))
		}
	}

	logger.V(1).Info("unit fitted", "models", len(tu.models))

	return tu, oof, nil
}

// innerSplits returns the inner train/valid row positions, a single empty split without inner CV.
func (p *Pipeline) innerSplits(train *model.Dataset) [][2][]int {
	if p.cv <= 1 {
		return [][2][]int{{}}
	}

	rng := rand.New(rand.NewSource(p.seed))
	assign := make([]int, train.Len())

	for i, r := range rng.Perm(train.Len()) {
		assign[r] = i % p.cv
	}

	res := make([][2][]int, 0, p.InnerFolds())

	for k := 0; k < p.InnerFolds(); k++ {
		var s [2][]int

		for i, f := range assign {
			if f == k {
				s[1] = append(s[1], i)
			} else {
				s[0] = append(s[0], i)
			}
		}

		res = append(res, s)
	}

	return res
}

func (p *Pipeline) tuningBudget(u Unit) time.Duration {
	if u.Timer == nil {
		return p.maxTuningTime
	}

	budget := time.Duration(float64(u.Timer.TimeLeft()) * u.Timer.Pipeline().TuningRate())
	if p.maxTuningTime > 0 && p.maxTuningTime < budget {
		budget = p.maxTuningTime
	}

	return budget
}

// setBudget shares the time left of the unit among its remaining fits.
func (p *Pipeline) setBudget(u Unit, m model.Model, remaining int) {
	b, ok := m.(model.Budgeted)
	if !ok || u.Timer == nil {
		return
	}

	b.SetBudget(u.Timer.TimeLeft() / time.Duration(max(remaining, 1)))
}

func (p *Pipeline) columns(tu trainedUnit) []string {
	prefix := p.name + "_" + tu.name
	if tu.outputs == 1 {
		return []string{prefix}
	}

	res := make([]string, tu.outputs)
	for k := range res {
		res[k] = prefix + "_" + strconv.Itoa(k)
	}

	return res
}

func (p *Pipeline) assemble(rows int, names []string, parts []*mat.Dense, target []float64) *model.Predictions {
	if len(parts) == 0 {
		return &model.Predictions{Target: target}
	}

	data := mat.NewDense(rows, len(names), nil)
	offset := 0

	for _, part := range parts {
		_, c := part.Dims()
		for r := 0; r < rows; r++ {
			copy(data.RawRowView(r)[offset:offset+c], part.RawRowView(r))
		}

		offset += c
	}

	return &model.Predictions{Data: data, Columns: names, Target: target}
}

func fillNaN(m *mat.Dense) {
	rows, _ := m.Dims()
	for r := 0; r < rows; r++ {
		row := m.RawRowView(r)
		for i := range row {
			row[i] = math.NaN()
		}
	}
}
