// Package engine runs the assembled levels of an AutoML pipeline.
//
// Every level trains its pipelines on the output of the previous level and produces
// out-of-fold predictions. The predictions of the last trained level are blended.
// Levels that end up with no trained unit are skipped; with no trained level at
// all the blender falls back to the target prior.
package engine

import (
	"context"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/askiada/go-automl/pkg/automl/blend"
	"github.com/askiada/go-automl/pkg/automl/metrics"
	"github.com/askiada/go-automl/pkg/automl/model"
	"github.com/askiada/go-automl/pkg/automl/nested"
	"github.com/askiada/go-automl/pkg/automl/reader"
	"github.com/askiada/go-automl/pkg/automl/timer"
)

var (
	ErrNotFitted  = errors.New("automl is not fitted")
	ErrValidation = errors.New("validation data has no target")
)

// Level is an ordered list of pipelines trained on the same input.
type Level []*nested.Pipeline

// AutoML stacks levels of nested pipelines and blends the last one.
type AutoML struct {
	task     *model.Task
	reader   *reader.Reader
	levels   []Level
	blender  blend.Blender
	skipConn bool
	timer    *timer.PipelineTimer
	metrics  *metrics.Recorder

	fitted  []Level
	outputs int
}

type Option func(a *AutoML)

// WithSkipConn feeds the level inputs to the next level next to the predictions.
func WithSkipConn(skip bool) Option {
	return func(a *AutoML) {
		a.skipConn = skip
	}
}

// WithTimer attaches the global timer whose ledger is reported after fit.
func WithTimer(pt *timer.PipelineTimer) Option {
	return func(a *AutoML) {
		a.timer = pt
	}
}

func WithMetrics(rec *metrics.Recorder) Option {
	return func(a *AutoML) {
		a.metrics = rec
	}
}

// New assembles an AutoML from its reader, levels and final blender.
func New(task *model.Task, r *reader.Reader, levels []Level, blender blend.Blender, opts ...Option) *AutoML {
	a := &AutoML{
		task:    task,
		reader:  r,
		levels:  levels,
		blender: blender,
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Levels returns the configured levels.
func (a *AutoML) Levels() []Level { return a.levels }

// FittedLevels returns the levels that trained at least one unit.
func (a *AutoML) FittedLevels() []Level { return a.fitted }

func (a *AutoML) Reader() *reader.Reader { return a.reader }

func (a *AutoML) Blender() blend.Blender { return a.blender }

func (a *AutoML) Timer() *timer.PipelineTimer { return a.timer }

// SkipConn reports whether level inputs are forwarded to the next level.
func (a *AutoML) SkipConn() bool { return a.skipConn }

// Train describes the training input of FitPredict.
type Train struct {
	Data  *reader.Table
	Roles reader.Roles
	// Valid switches to holdout mode: models are trained on Data and validated on Valid.
	Valid *reader.Table
	// Folds overrides the outer fold of every training row.
	Folds []int
}

// FitPredict trains every level and returns the blended out-of-fold predictions.
// In holdout mode only the rows of the validation table are returned.
func (a *AutoML) FitPredict(ctx context.Context, in Train) (*model.Predictions, error) {
	logger := logr.FromContextOrDiscard(ctx)

	ds, err := a.reader.Fit(ctx, in.Data, in.Roles)
	if err != nil {
		return nil, errors.Wrap(err, "unable to fit reader")
	}

	if in.Folds != nil {
		if len(in.Folds) != ds.Len() {
			return nil, errors.Wrapf(model.ErrShapeMismatch, "%d folds for %d rows", len(in.Folds), ds.Len())
		}

		ds.Folds = append([]int(nil), in.Folds...)
	}

	var keep []int

	if in.Valid != nil {
		ds, keep, err = a.withHoldout(ctx, ds, in.Valid)
		if err != nil {
			return nil, err
		}
	}

	a.outputs = ds.Outputs(a.task)
	a.fitted = nil

	input := ds

	var last []*mat.Dense

	for i, level := range a.levels {
		if len(level) == 0 {
			logger.Info("skipping empty level", "level", i+1)

			continue
		}

		preds, trained, err := a.fitLevel(ctx, level, input)
		if err != nil {
			return nil, errors.Wrapf(err, "unable to fit level %d", i+1)
		}

		if len(trained) == 0 {
			logger.Info("no unit trained in level", "level", i+1)

			continue
		}

		a.fitted = append(a.fitted, trained)
		last = a.unitOutputs(preds)

		input, err = a.nextInput(ds, input, preds)
		if err != nil {
			return nil, err
		}
	}

	blended, err := a.blender.FitPredict(last, ds.Target, a.task, a.outputs)
	if err != nil {
		return nil, errors.Wrap(err, "unable to fit blender")
	}

	logger.Info("automl fitted", "levels", len(a.fitted), "weights", a.blender.Weights())

	if a.timer != nil {
		a.metrics.ObserveLedger(a.timer.Ledger())
	}

	res := &model.Predictions{
		Data:    blended,
		Columns: model.OutputColumns(a.task, a.reader.Classes()),
		Target:  ds.Target,
	}

	if keep != nil {
		return rowsOf(res, keep), nil
	}

	return res, nil
}

// Predict reads a table and returns the blended predictions.
func (a *AutoML) Predict(ctx context.Context, table *reader.Table) (*model.Predictions, error) {
	if a.outputs == 0 {
		return nil, ErrNotFitted
	}

	ds, err := a.reader.Read(ctx, table)
	if err != nil {
		return nil, errors.Wrap(err, "unable to read data")
	}

	input := ds

	var last []*mat.Dense

	for i, level := range a.fitted {
		preds, err := a.predictLevel(level, input)
		if err != nil {
			return nil, errors.Wrapf(err, "unable to predict level %d", i+1)
		}

		last = a.unitOutputs(preds)

		input, err = a.nextInput(ds, input, preds)
		if err != nil {
			return nil, err
		}
	}

	blended, err := a.blender.Predict(ds.Len(), last)
	if err != nil {
		return nil, errors.Wrap(err, "unable to blend")
	}

	return &model.Predictions{
		Data:    blended,
		Columns: model.OutputColumns(a.task, a.reader.Classes()),
	}, nil
}

func (a *AutoML) fitLevel(ctx context.Context, level Level, input *model.Dataset) ([]*model.Predictions, Level, error) {
	var (
		preds   []*model.Predictions
		trained Level
	)

	for _, pipe := range level {
		oof, err := pipe.FitPredict(ctx, input)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "unable to fit pipeline %s", pipe.Name())
		}

		if len(oof.Columns) == 0 {
			continue
		}

		preds = append(preds, oof)
		trained = append(trained, pipe)
	}

	return preds, trained, nil
}

func (a *AutoML) predictLevel(level Level, input *model.Dataset) ([]*model.Predictions, error) {
	preds := make([]*model.Predictions, 0, len(level))

	for _, pipe := range level {
		p, err := pipe.Predict(input)
		if err != nil {
			return nil, errors.Wrapf(err, "unable to predict pipeline %s", pipe.Name())
		}

		preds = append(preds, p)
	}

	return preds, nil
}

// unitOutputs splits pipeline predictions into one matrix per unit.
func (a *AutoML) unitOutputs(preds []*model.Predictions) []*mat.Dense {
	var res []*mat.Dense

	for _, p := range preds {
		rows, cols := p.Data.Dims()
		for c := 0; c+a.outputs <= cols; c += a.outputs {
			res = append(res, mat.DenseCopyOf(p.Data.Slice(0, rows, c, c+a.outputs)))
		}
	}

	return res
}

// nextInput builds the input of the following level from the predictions,
// prefixed with the current input when skip connections are on.
func (a *AutoML) nextInput(ds, input *model.Dataset, preds []*model.Predictions) (*model.Dataset, error) {
	var names []string
	for _, p := range preds {
		names = append(names, p.Columns...)
	}

	rows := ds.Len()
	data := mat.NewDense(rows, len(names), nil)
	offset := 0

	for _, p := range preds {
		_, c := p.Data.Dims()
		data.Slice(0, rows, offset, offset+c).(*mat.Dense).Copy(p.Data)
		offset += c
	}

	if a.skipConn {
		return input.Append(names, data)
	}

	roles := make(map[string]model.Role, len(names))
	for _, n := range names {
		roles[n] = model.RoleNumeric
	}

	return ds.With(names, roles, data), nil
}

// withHoldout appends the validation rows as the only validation fold and
// returns the positions of those rows.
func (a *AutoML) withHoldout(ctx context.Context, train *model.Dataset, valid *reader.Table) (*model.Dataset, []int, error) {
	vds, err := a.reader.Read(ctx, valid)
	if err != nil {
		return nil, nil, errors.Wrap(err, "unable to read validation data")
	}

	if vds.Target == nil {
		return nil, nil, ErrValidation
	}

	train.Folds = make([]int, train.Len())
	for i := range train.Folds {
		train.Folds[i] = model.HoldoutFold
	}

	vds.Folds = make([]int, vds.Len())

	all, err := model.Stack(train, vds)
	if err != nil {
		return nil, nil, errors.Wrap(err, "unable to join validation data")
	}

	keep := make([]int, vds.Len())
	for i := range keep {
		keep[i] = train.Len() + i
	}

	return all, keep, nil
}

func rowsOf(p *model.Predictions, rows []int) *model.Predictions {
	_, cols := p.Data.Dims()
	data := mat.NewDense(len(rows), cols, nil)

	var target []float64

	for i, r := range rows {
		data.SetRow(i, p.Data.RawRowView(r))

		if p.Target != nil {
			target = append(target, p.Target[r])
		}
	}

	return &model.Predictions{Data: data, Columns: p.Columns, Target: target}
}
