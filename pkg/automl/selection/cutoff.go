package selection

import (
	"context"
	"sort"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"

	"github.com/askiada/go-automl/pkg/automl/model"
	"github.com/askiada/go-automl/pkg/automl/timer"
)

// Cutoff keeps the features whose importance is above a threshold.
type Cutoff struct {
	task         *model.Task
	features     model.FeaturePipeline
	model        model.Model
	timer        *timer.TaskTimer
	estimator    Estimator
	cutoff       float64
	fitOnHoldout bool

	state      *fitted
	importance map[string]float64
}

// NewCutoff creates a cutoff selector. The model is trained on the output of features.
func NewCutoff(task *model.Task, features model.FeaturePipeline, m model.Model, tt *timer.TaskTimer,
	estimator Estimator, cutoff float64, fitOnHoldout bool,
) *Cutoff {
	return &Cutoff{
		task:         task,
		features:     features,
		model:        m,
		timer:        tt,
		estimator:    estimator,
		cutoff:       cutoff,
		fitOnHoldout: fitOnHoldout,
	}
}

func (c *Cutoff) Fit(ctx context.Context, ds *model.Dataset) error {
	stop := startTimer(c.timer, c.model)
	defer stop()

	tr, err := fitTrained(ctx, c.task, c.features, c.model, ds, c.fitOnHoldout)
	if err != nil {
		return errors.Wrap(err, "unable to fit selection model")
	}

	_, valid := holdout(ds, c.fitOnHoldout)

	imp, err := c.estimator.Estimate(ctx, tr, valid)
	if err != nil {
		return errors.Wrap(err, "unable to estimate importance")
	}

	selected := make([]string, 0, len(ds.Features))
	for _, f := range ds.Features {
		if imp[f] > c.cutoff {
			selected = append(selected, f)
		}
	}

	if len(selected) == 0 {
		// an empty selection would leave nothing to train on
		selected = []string{ranked(ds.Features, imp)[0]}
	}

	c.importance = imp
	c.state = newFitted(ds.Features, selected)

	logr.FromContextOrDiscard(ctx).Info("cutoff selection done",
		"inputs", len(ds.Features), "selected", len(selected), "importance", c.estimator.Name())

	return nil
}

func (c *Cutoff) Selected() ([]string, error) {
	if c.state == nil {
		return nil, ErrNotFitted
	}

	return append([]string(nil), c.state.selected...), nil
}

// Importance returns the estimated importance of every input feature.
func (c *Cutoff) Importance() map[string]float64 { return c.importance }

func (c *Cutoff) Select(ds *model.Dataset) (*model.Dataset, error) {
	return c.state.apply(ds)
}

func (c *Cutoff) Describe() []Stage {
	return []Stage{{
		Kind:         "cutoff",
		Model:        c.model.Name(),
		TimerKey:     timerKey(c.timer),
		TimerScore:   timerScore(c.timer),
		Importance:   c.estimator.Name(),
		Cutoff:       c.cutoff,
		FitOnHoldout: c.fitOnHoldout,
	}}
}

// fitTrained fits features and model on the train part of the holdout split.
func fitTrained(ctx context.Context, task *model.Task, fp model.FeaturePipeline, m model.Model,
	ds *model.Dataset, fitOnHoldout bool,
) (*Trained, error) {
	train, valid := holdout(ds, fitOnHoldout)

	err := fp.Fit(train)
	if err != nil {
		return nil, err
	}

	xTrain, err := fp.Transform(train)
	if err != nil {
		return nil, err
	}

	xValid, err := fp.Transform(valid)
	if err != nil {
		return nil, err
	}

	err = m.Fit(ctx, xTrain, xValid)
	if err != nil {
		return nil, err
	}

	return &Trained{Task: task, Features: fp, Model: m}, nil
}

// ranked sorts features by decreasing importance, keeping input order on ties.
func ranked(features []string, imp map[string]float64) []string {
	res := append([]string(nil), features...)
	sort.SliceStable(res, func(i, j int) bool {
		return imp[res[i]] > imp[res[j]]
	})

	return res
}

func timerKey(tt *timer.TaskTimer) string {
	if tt == nil {
		return ""
	}

	return tt.Key()
}

func timerScore(tt *timer.TaskTimer) float64 {
	if tt == nil {
		return 0
	}

	return tt.Score()
}

var _ Selector = (*Cutoff)(nil)
