package preset

import (
	"github.com/pkg/errors"

	"github.com/askiada/go-automl/pkg/automl/family"
	"github.com/askiada/go-automl/pkg/automl/features"
	"github.com/askiada/go-automl/pkg/automl/model"
	"github.com/askiada/go-automl/pkg/automl/selection"
	"github.com/askiada/go-automl/pkg/automl/timer"
)

// Selection modes.
const (
	SelectionNone      = 0
	SelectionCutoff    = 1
	SelectionIterative = 2
)

// Selector builds the feature preselection of a level. Mode 0 returns nil.
// Every selection model gets its own task timer scored as a plain lgb.
func (t *TabularAutoML) Selector(level int) (selection.Selector, error) {
	params := t.cfg.Selection

	switch params.Mode {
	case SelectionNone:
		return nil, nil
	case SelectionCutoff, SelectionIterative:
	default:
		return nil, errors.Wrapf(ErrInvalidSelectionMode, "%d", params.Mode)
	}

	m, tt, err := t.selectionModel(level)
	if err != nil {
		return nil, err
	}

	seed := t.cfg.Reader.RandomState

	cutoff := selection.NewCutoff(t.task, features.NewSimple(), m, tt,
		selection.NewEstimator(params.ImportanceType, seed), params.Cutoff, params.FitOnHoldout)
	if params.Mode == SelectionCutoff {
		return cutoff, nil
	}

	m, tt, err = t.selectionModel(level)
	if err != nil {
		return nil, err
	}

	iterative := selection.NewIterative(t.task, features.NewSimple(), m, tt,
		selection.NewEstimator(selection.ImportancePermutation, seed),
		params.FeatureGroupSize, params.MaxFeaturesCntInResult, params.FitOnHoldout)

	return selection.NewComposed(cutoff, iterative), nil
}

// selectionModel returns a fresh lgb using every feature in every tree, with its timer.
func (t *TabularAutoML) selectionModel(level int) (model.Model, *timer.TaskTimer, error) {
	score, err := t.TimeScore(level, family.LGB, false)
	if err != nil {
		return nil, nil, err
	}

	cfg := t.cfg.Clone()
	cfg.LGB.DefaultParams.FeatureFraction = 1

	m, err := t.registry.Build(family.LGB, family.Params{
		Name:    family.LGB,
		Task:    t.task,
		Config:  cfg,
		Clock:   t.clock,
		Threads: t.hw.Threads,
	})
	if err != nil {
		return nil, nil, errors.Wrap(err, "unable to build selection model")
	}

	return m, t.timer.TaskTimer(family.LGB, score), nil
}
