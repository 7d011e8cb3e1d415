package model

import (
	"context"
	"math/rand"
	"time"

	"gonum.org/v1/gonum/mat"
)

// Model is a trainable unit. It is constructed with its task timer and family parameters.
type Model interface {
	// Name identifies the model inside its pipeline.
	Name() string
	// Fit trains the model. valid may be nil; when set it is used for early stopping.
	Fit(ctx context.Context, train, valid *Dataset) error
	// Predict returns one row of outputs per input row.
	Predict(ds *Dataset) (*mat.Dense, error)
	// Clone returns an unfitted copy sharing parameters and timer.
	Clone() Model
}

// Budgeted models stop adding capacity once the soft budget of a single fit is spent.
type Budgeted interface {
	SetBudget(d time.Duration)
}

// Importancer exposes model-native feature importances keyed by feature name.
type Importancer interface {
	Importance() map[string]float64
}

// Tunable models expose a hyperparameter search space.
type Tunable interface {
	Model
	// Sample returns an unfitted clone with hyperparameters drawn from the search space.
	Sample(rng *rand.Rand) Model
	// Params describes the current hyperparameters.
	Params() map[string]any
}

// Tuner searches the hyperparameters of a model within a budget and returns the best unfitted model.
type Tuner interface {
	Tune(ctx context.Context, m Model, train *Dataset, budget time.Duration) (Model, error)
}

// FeaturePipeline transforms a dataset before it reaches the models.
type FeaturePipeline interface {
	Fit(ds *Dataset) error
	Transform(ds *Dataset) (*Dataset, error)
	// Sources maps every output column to the input column it was derived from.
	Sources() map[string]string
	// Clone returns an unfitted copy.
	Clone() FeaturePipeline
}
