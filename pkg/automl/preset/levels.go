package preset

import (
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/askiada/go-automl/pkg/automl/algo/tuner"
	"github.com/askiada/go-automl/pkg/automl/family"
	"github.com/askiada/go-automl/pkg/automl/features"
	"github.com/askiada/go-automl/pkg/automl/nested"
	"github.com/askiada/go-automl/pkg/automl/selection"
)

const linearTimerKey = "reg_l2"

// GBMOrder is the order boosting keys are trained in within a level.
var GBMOrder = []string{family.LGB, family.LGBTuned, family.CB, family.CBTuned}

// Linear builds the nested pipeline of the L2 linear model. It always trains, even out of time.
func (t *TabularAutoML) Linear(level int, sel selection.Selector) (*nested.Pipeline, error) {
	score, err := t.TimeScoreNested(level, family.Linear)
	if err != nil {
		return nil, err
	}

	m, err := t.registry.Build(family.Linear, family.Params{
		Name:    family.Linear,
		Task:    t.task,
		Config:  t.cfg,
		Clock:   t.clock,
		Threads: t.hw.Threads,
	})
	if err != nil {
		return nil, err
	}

	feats := features.NewLinear(t.cfg.LinearPipeline.MaxCategories, t.cfg.LinearPipeline.Standardize)
	unit := nested.Unit{
		Model:     m,
		Timer:     t.timer.TaskTimer(linearTimerKey, score),
		ForceCalc: true,
	}

	return nested.New(pipeName(level, "linear"), t.task, feats, []nested.Unit{unit}, t.nestedOptions(sel)...), nil
}

// GBMs builds one nested pipeline training the boosting keys in order on shared features.
// Only the first key is forced to train when the budget is exhausted.
func (t *TabularAutoML) GBMs(keys []string, level int, sel selection.Selector) (*nested.Pipeline, error) {
	trials, err := t.cfg.Tuning.MaxTuningIter.Value()
	if err != nil {
		return nil, errors.Wrap(err, "max_tuning_iter")
	}

	units := make([]nested.Unit, 0, len(keys))

	for i, key := range keys {
		base, tuned := family.ParseKey(key)

		fam, err := t.registry.Get(base)
		if err != nil {
			return nil, err
		}

		if fam.Group != family.GBM {
			return nil, errors.Wrapf(family.ErrUnknownAlgo, "%s is not a boosting algo", key)
		}

		score, err := t.TimeScoreNested(level, key)
		if err != nil {
			return nil, err
		}

		m, err := t.registry.Build(base, family.Params{
			Name:    key,
			Task:    t.task,
			Config:  t.cfg,
			Clock:   t.clock,
			Threads: t.hw.Threads,
		})
		if err != nil {
			return nil, err
		}

		unit := nested.Unit{
			Model:     m,
			Timer:     t.timer.TaskTimer(base, score),
			ForceCalc: i == 0,
		}

		if tuned {
			unit.Tuner = tuner.NewRandom(t.task, trials, t.maxTuningTime(), t.cfg.Tuning.FitOnHoldout,
				tuner.WithSeed(t.cfg.Reader.RandomState+int64(i)),
				tuner.WithClock(t.clock),
			)
		}

		units = append(units, unit)
	}

	feats := features.NewGBM(t.cfg.GBMPipeline.TopCategories)

	return nested.New(pipeName(level, "gbm"), t.task, feats, units, t.nestedOptions(sel)...), nil
}

func (t *TabularAutoML) nestedOptions(sel selection.Selector) []nested.Option {
	opts := []nested.Option{
		nested.WithInnerCV(t.cfg.NestedCV.CV, t.cfg.NestedCV.NFolds),
		nested.WithMaxTuningTime(t.maxTuningTime()),
		nested.WithSeed(t.cfg.Reader.RandomState),
	}

	if sel != nil {
		opts = append(opts, nested.WithSelector(sel))
	}

	return opts
}

func (t *TabularAutoML) maxTuningTime() time.Duration {
	return time.Duration(t.cfg.Tuning.MaxTuningTime * float64(time.Second))
}

func pipeName(level int, kind string) string {
	return "lvl" + strconv.Itoa(level) + "_" + kind
}
