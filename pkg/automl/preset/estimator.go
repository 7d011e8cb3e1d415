package preset

import (
	"github.com/askiada/go-automl/pkg/automl/family"
)

const (
	skipConnLevelRate = 0.8
	stackedLevelRate  = 0.1
	acceleratedRate   = 0.5
)

// TimeScore returns the relative budget weight of a unit of modelType at level.
// Nested units are multiplied by the number of inner folds; deeper levels see
// smaller inputs and are cheaper.
func (t *TabularAutoML) TimeScore(level int, modelType string, nested bool) (float64, error) {
	score, err := family.Cost(modelType)
	if err != nil {
		return 0, err
	}

	mult := 1.0

	if nested {
		if t.cfg.NestedCV.NFolds != nil {
			mult = float64(*t.cfg.NestedCV.NFolds)
		} else {
			mult = float64(t.cfg.NestedCV.CV)
		}
	}

	if level > 1 {
		if t.cfg.General.SkipConn {
			mult *= skipConnLevelRate
		} else {
			mult *= stackedLevelRate
		}
	}

	score *= mult

	if t.registry.Accelerated(modelType, t.cfg) {
		score *= acceleratedRate
	}

	return score, nil
}

// TimeScoreNested is TimeScore with nesting taken from general_params.nested_cv.
func (t *TabularAutoML) TimeScoreNested(level int, modelType string) (float64, error) {
	return t.TimeScore(level, modelType, t.cfg.General.NestedCV)
}
