package selection

import (
	"context"
	"math/rand"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/askiada/go-automl/pkg/automl/model"
)

// Importance types.
const (
	ImportanceGain        = "gain"
	ImportancePermutation = "permutation"
)

var ErrNoImportance = errors.New("model does not expose importances")

// Trained is a fitted feature pipeline and model pair.
type Trained struct {
	Task     *model.Task
	Features model.FeaturePipeline
	Model    model.Model
}

// Predict transforms ds and predicts.
func (t *Trained) Predict(ds *model.Dataset) (*mat.Dense, error) {
	x, err := t.Features.Transform(ds)
	if err != nil {
		return nil, errors.Wrap(err, "unable to transform features")
	}

	return t.Model.Predict(x)
}

// Estimator scores input features of a trained pair. Higher is more important.
type Estimator interface {
	Name() string
	Estimate(ctx context.Context, tr *Trained, valid *model.Dataset) (map[string]float64, error)
}

// ModelBased sums model-native importances of every output column into its input column.
type ModelBased struct{}

func (ModelBased) Name() string { return ImportanceGain }

func (ModelBased) Estimate(_ context.Context, tr *Trained, valid *model.Dataset) (map[string]float64, error) {
	imp, ok := tr.Model.(model.Importancer)
	if !ok {
		return nil, errors.Wrap(ErrNoImportance, tr.Model.Name())
	}

	sources := tr.Features.Sources()
	res := make(map[string]float64, len(valid.Features))

	for _, f := range valid.Features {
		res[f] = 0
	}

	for out, v := range imp.Importance() {
		src, ok := sources[out]
		if !ok {
			src = out
		}

		res[src] += v
	}

	return res, nil
}

// Permutation measures the score drop when one input column is shuffled on the validation rows.
type Permutation struct {
	Seed int64
}

func (Permutation) Name() string { return ImportancePermutation }

func (p Permutation) Estimate(ctx context.Context, tr *Trained, valid *model.Dataset) (map[string]float64, error) {
	pred, err := tr.Predict(valid)
	if err != nil {
		return nil, errors.Wrap(err, "unable to predict reference")
	}

	base := tr.Task.Score(valid.Target, pred)
	rng := rand.New(rand.NewSource(p.Seed))
	res := make(map[string]float64, len(valid.Features))
	rows := valid.Len()

	for j, f := range valid.Features {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(err, "unable to finish permutation importance")
		}

		shuffled := mat.DenseCopyOf(valid.Data)
		perm := rng.Perm(rows)
		col := valid.Column(j)

		for i, r := range perm {
			shuffled.Set(i, j, col[r])
		}

		pred, err := tr.Predict(valid.With(valid.Features, valid.Roles, shuffled))
		if err != nil {
			return nil, errors.Wrapf(err, "unable to predict with %s shuffled", f)
		}

		res[f] = base - tr.Task.Score(valid.Target, pred)
	}

	return res, nil
}

// NewEstimator returns the estimator for an importance type.
func NewEstimator(kind string, seed int64) Estimator {
	if kind == ImportancePermutation {
		return Permutation{Seed: seed}
	}

	return ModelBased{}
}
