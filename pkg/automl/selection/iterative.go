package selection

import (
	"context"
	"math"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"

	"github.com/askiada/go-automl/pkg/automl/model"
	"github.com/askiada/go-automl/pkg/automl/timer"
)

// Iterative ranks features by importance and adds them group by group,
// keeping a group only when it improves the holdout score.
type Iterative struct {
	task         *model.Task
	features     model.FeaturePipeline
	model        model.Model
	timer        *timer.TaskTimer
	estimator    Estimator
	groupSize    int
	maxFeatures  *int
	fitOnHoldout bool

	state *fitted
}

// NewIterative creates a forward group selector. maxFeatures nil means no cap.
func NewIterative(task *model.Task, features model.FeaturePipeline, m model.Model, tt *timer.TaskTimer,
	estimator Estimator, groupSize int, maxFeatures *int, fitOnHoldout bool,
) *Iterative {
	return &Iterative{
		task:         task,
		features:     features,
		model:        m,
		timer:        tt,
		estimator:    estimator,
		groupSize:    max(groupSize, 1),
		maxFeatures:  maxFeatures,
		fitOnHoldout: fitOnHoldout,
	}
}

func (it *Iterative) Fit(ctx context.Context, ds *model.Dataset) error {
	logger := logr.FromContextOrDiscard(ctx)

	stop := startTimer(it.timer, it.model)
	defer stop()

	tr, err := fitTrained(ctx, it.task, it.features.Clone(), it.model.Clone(), ds, it.fitOnHoldout)
	if err != nil {
		return errors.Wrap(err, "unable to fit ranking model")
	}

	_, valid := holdout(ds, it.fitOnHoldout)

	imp, err := it.estimator.Estimate(ctx, tr, valid)
	if err != nil {
		return errors.Wrap(err, "unable to estimate importance")
	}

	order := ranked(ds.Features, imp)
	limit := len(order)

	if it.maxFeatures != nil && *it.maxFeatures > 0 && *it.maxFeatures < limit {
		limit = *it.maxFeatures
	}

	var (
		selected  []string
		bestScore = math.Inf(-1)
	)

	for start := 0; start < len(order) && len(selected) < limit; start += it.groupSize {
		if it.timer != nil && it.timer.OutOfTime() && len(selected) > 0 {
			logger.V(1).Info("iterative selection out of time", "selected", len(selected))

			break
		}

		end := min(start+it.groupSize, len(order))
		group := order[start:end]

		if room := limit - len(selected); len(group) > room {
			group = group[:room]
		}

		candidate := append(append([]string(nil), selected...), group...)

		score, err := it.score(ctx, ds, candidate)
		if err != nil {
			return err
		}

		if score > bestScore || len(selected) == 0 {
			bestScore = score
			selected = candidate
		}
	}

	it.state = newFitted(ds.Features, inputOrder(ds.Features, selected))

	logger.Info("iterative selection done", "inputs", len(ds.Features), "selected", len(selected))

	return nil
}

func (it *Iterative) score(ctx context.Context, ds *model.Dataset, names []string) (float64, error) {
	sub, err := ds.Select(names)
	if err != nil {
		return 0, err
	}

	m := it.model.Clone()

	tr, err := fitTrained(ctx, it.task, it.features.Clone(), m, sub, it.fitOnHoldout)
	if err != nil {
		return 0, errors.Wrap(err, "unable to fit candidate")
	}

	_, valid := holdout(sub, it.fitOnHoldout)

	pred, err := tr.Predict(valid)
	if err != nil {
		return 0, errors.Wrap(err, "unable to score candidate")
	}

	return it.task.Score(valid.Target, pred), nil
}

func (it *Iterative) Selected() ([]string, error) {
	if it.state == nil {
		return nil, ErrNotFitted
	}

	return append([]string(nil), it.state.selected...), nil
}

func (it *Iterative) Select(ds *model.Dataset) (*model.Dataset, error) {
	return it.state.apply(ds)
}

func (it *Iterative) Describe() []Stage {
	maxFeatures := 0
	if it.maxFeatures != nil {
		maxFeatures = *it.maxFeatures
	}

	return []Stage{{
		Kind:         "iterative",
		Model:        it.model.Name(),
		TimerKey:     timerKey(it.timer),
		TimerScore:   timerScore(it.timer),
		Importance:   it.estimator.Name(),
		FitOnHoldout: it.fitOnHoldout,
		GroupSize:    it.groupSize,
		MaxFeatures:  maxFeatures,
	}}
}

func inputOrder(features, selected []string) []string {
	keep := make(map[string]struct{}, len(selected))
	for _, s := range selected {
		keep[s] = struct{}{}
	}

	res := make([]string, 0, len(selected))
	for _, f := range features {
		if _, ok := keep[f]; ok {
			res = append(res, f)
		}
	}

	return res
}

var _ Selector = (*Iterative)(nil)
