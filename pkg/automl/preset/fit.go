package preset

import (
	"context"
	"time"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"

	"github.com/askiada/go-automl/internal/autoscaler"
	"github.com/askiada/go-automl/internal/stream"
	"github.com/askiada/go-automl/pkg/automl/config"
	"github.com/askiada/go-automl/pkg/automl/engine"
	"github.com/askiada/go-automl/pkg/automl/model"
	"github.com/askiada/go-automl/pkg/automl/reader"
)

type fitOptions struct {
	trainFeatures []string
	folds         []int
	valid         any
	validFeatures []string
}

// FitOption configures FitPredict.
type FitOption func(o *fitOptions)

// WithTrainFeatures names the columns of sources that carry no names.
func WithTrainFeatures(features []string) FitOption {
	return func(o *fitOptions) {
		o.trainFeatures = features
	}
}

// WithCVFolds sets the outer fold of every training row. Disables multiple levels.
func WithCVFolds(folds []int) FitOption {
	return func(o *fitOptions) {
		o.folds = folds
	}
}

// WithValidData trains on the whole train data and validates on data. Disables multiple levels.
func WithValidData(data any) FitOption {
	return func(o *fitOptions) {
		o.valid = data
	}
}

func WithValidFeatures(features []string) FitOption {
	return func(o *fitOptions) {
		o.validFeatures = features
	}
}

// FitPredict reads the training data, assembles the pipeline and trains it.
// It returns the out-of-fold predictions, or the validation predictions in holdout mode.
func (t *TabularAutoML) FitPredict(ctx context.Context, train any, roles reader.Roles, opts ...FitOption) (*model.Predictions, error) {
	logger := logr.FromContextOrDiscard(ctx)

	o := fitOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	t.timer.Start()

	table, err := reader.ReadData(ctx, train, o.trainFeatures, t.hw.CPULimit, t.readCSVParams())
	if err != nil {
		return nil, errors.Wrap(err, "unable to read train data")
	}

	var valid *reader.Table

	if o.valid != nil {
		valid, err = reader.ReadData(ctx, o.valid, o.validFeatures, t.hw.CPULimit, t.cfg.ReadCSV)
		if err != nil {
			return nil, errors.Wrap(err, "unable to read valid data")
		}
	}

	err = t.CreateAutoML(ctx, table.Rows(), o.valid == nil && o.folds == nil)
	if err != nil {
		return nil, errors.Wrap(err, "unable to create automl")
	}

	logger.Info("fitting automl", "task", t.task.Name(), "rows", table.Rows(), "timeout", t.timeout)

	preds, err := t.automl.FitPredict(ctx, engine.Train{
		Data:  table,
		Roles: roles,
		Valid: valid,
		Folds: o.folds,
	})
	if err != nil {
		return nil, err
	}

	logger.Info("automl fitted", "elapsed", t.timer.Ledger().Elapsed(), "time_left", t.timer.TimeLeft())

	return preds, nil
}

type predictOptions struct {
	features  []string
	batchSize int
	jobs      int
}

// PredictOption configures Predict.
type PredictOption func(o *predictOptions)

func WithFeatureNames(features []string) PredictOption {
	return func(o *predictOptions) {
		o.features = features
	}
}

// WithBatchSize splits inference into batches of n rows.
func WithBatchSize(n int) PredictOption {
	return func(o *predictOptions) {
		o.batchSize = n
	}
}

// WithJobs predicts up to n batches concurrently.
func WithJobs(n int) PredictOption {
	return func(o *predictOptions) {
		o.jobs = n
	}
}

// Predict reads data with the training layout and returns the blended predictions.
// Batches are predicted concurrently and reassembled in row order.
func (t *TabularAutoML) Predict(ctx context.Context, data any, opts ...PredictOption) (*model.Predictions, error) {
	if t.automl == nil {
		return nil, ErrNotFitted
	}

	o := predictOptions{jobs: 1}
	for _, opt := range opts {
		opt(&o)
	}

	csvParams := t.readCSVParams()

	if o.batchSize <= 0 && o.jobs <= 1 {
		table, err := reader.ReadData(ctx, data, o.features, t.hw.CPULimit, csvParams)
		if err != nil {
			return nil, errors.Wrap(err, "unable to read data")
		}

		return t.automl.Predict(ctx, table)
	}

	batches, err := reader.ReadBatch(ctx, data, o.features, o.jobs, o.batchSize, csvParams)
	if err != nil {
		return nil, errors.Wrap(err, "unable to read data")
	}

	return t.predictBatches(ctx, batches, autoscaler.Workers(o.jobs, len(batches), t.hw.CPULimit))
}

type batch struct {
	idx   int
	table *reader.Table
	preds *model.Predictions
}

func (t *TabularAutoML) predictBatches(ctx context.Context, batches []*reader.Table, workers int) (*model.Predictions, error) {
	const predictStep = "predict"

	pipe, err := stream.NewWithClock(t.clock, stream.WithObserver(func(step string, d time.Duration) {
		if step == predictStep {
			t.metrics.ObserveBatch(d)
		}
	}))
	if err != nil {
		return nil, err
	}

	root, err := stream.AddRootStep(pipe, "batches", func(ctx context.Context, rootChan chan<- batch) error {
		for i, b := range batches {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case rootChan <- batch{idx: i, table: b}:
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	predicted, err := stream.AddStepOneToOne(pipe, predictStep, root, func(ctx context.Context, b batch) (batch, error) {
		preds, err := t.automl.Predict(ctx, b.table)
		if err != nil {
			return batch{}, errors.Wrapf(err, "unable to predict batch %d", b.idx)
		}

		b.preds = preds

		return b, nil
	}, stream.StepConcurrency[batch](workers))
	if err != nil {
		return nil, err
	}

	parts := make([]*model.Predictions, len(batches))

	err = stream.AddSink(pipe, "collect", predicted, func(_ context.Context, b batch) error {
		parts[b.idx] = b.preds

		return nil
	})
	if err != nil {
		return nil, err
	}

	err = pipe.Run(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "unable to predict batches")
	}

	return model.Concat(parts...)
}

// readCSVParams restricts CSV reading to the features used by a fitted reader.
func (t *TabularAutoML) readCSVParams() config.ReadCSVParams {
	params := t.cfg.ReadCSV
	params.NAValues = append([]string(nil), params.NAValues...)
	params.UseCols = nil

	used, err := t.reader.UsedFeatures()
	if errors.Is(err, reader.ErrNotFitted) {
		return params
	}

	params.UseCols = used

	return params
}
