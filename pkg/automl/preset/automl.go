package preset

import (
	"context"
	"slices"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"

	"github.com/askiada/go-automl/pkg/automl/blend"
	"github.com/askiada/go-automl/pkg/automl/engine"
	"github.com/askiada/go-automl/pkg/automl/family"
	"github.com/askiada/go-automl/pkg/automl/model"
	"github.com/askiada/go-automl/pkg/automl/nested"
	"github.com/askiada/go-automl/pkg/automl/reader"
	"github.com/askiada/go-automl/pkg/automl/selection"
)

// CreateAutoML resolves the auto options for a dataset of rows rows and assembles
// the reader, the levels and the blender. multilevel is false when the caller
// provides validation data or custom folds.
func (t *TabularAutoML) CreateAutoML(ctx context.Context, rows int, multilevel bool) error {
	logger := logr.FromContextOrDiscard(ctx)

	err := t.InferAutoParams(rows, multilevel)
	if err != nil {
		return err
	}

	t.reader = reader.New(t.task, t.cfg.Reader)

	preSelector, err := t.Selector(1)
	if err != nil {
		return err
	}

	if preSelector != nil {
		preSelector = selection.Shared(preSelector)
	}

	useAlgos, err := t.cfg.General.UseAlgos.Value()
	if err != nil {
		return errors.Wrap(err, "use_algos")
	}

	levels := make([]engine.Level, 0, len(useAlgos))

	for n, names := range useAlgos {
		lvl := engine.Level{}

		if slices.Contains(names, family.Linear) && t.task.Admits(model.FamilyLinear) {
			pipe, err := t.Linear(n+1, t.levelSelector(preSelector, family.Linear, n))
			if err != nil {
				return errors.Wrapf(err, "unable to build linear pipeline of level %d", n+1)
			}

			lvl = append(lvl, pipe)
		}

		gbms := make([]string, 0, len(GBMOrder))

		for _, key := range GBMOrder {
			base, _ := family.ParseKey(key)
			if slices.Contains(names, key) && t.task.Admits(base) {
				gbms = append(gbms, key)
			}
		}

		if len(gbms) > 0 {
			pipe, err := t.GBMs(gbms, n+1, t.levelSelector(preSelector, family.GBM, n))
			if err != nil {
				return errors.Wrapf(err, "unable to build gbm pipeline of level %d", n+1)
			}

			lvl = append(lvl, pipe)
		}

		logger.V(1).Info("level assembled", "level", n+1, "pipelines", len(lvl), "gbms", gbms)
		levels = append(levels, lvl)
	}

	blender := blend.NewWeighted(blend.WithPruneBelow(t.cfg.General.PruneBelow))

	t.automl = engine.New(t.task, t.reader, levels, blender,
		engine.WithSkipConn(t.cfg.General.SkipConn),
		engine.WithTimer(t.timer),
		engine.WithMetrics(t.metrics),
	)

	return nil
}

// levelSelector attaches the shared selector to a family group when selection is
// requested for it, on the first level or on every level with skip connections.
func (t *TabularAutoML) levelSelector(sel selection.Selector, group string, n int) selection.Selector {
	if sel == nil || !slices.Contains(t.cfg.Selection.SelectAlgos, group) {
		return nil
	}

	if t.cfg.General.SkipConn || n == 0 {
		return sel
	}

	return nil
}

// Levels returns the assembled pipelines, nil before CreateAutoML.
func (t *TabularAutoML) Levels() [][]*nested.Pipeline {
	if t.automl == nil {
		return nil
	}

	res := make([][]*nested.Pipeline, 0, len(t.automl.Levels()))
	for _, lvl := range t.automl.Levels() {
		res = append(res, lvl)
	}

	return res
}
