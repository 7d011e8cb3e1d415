// Package tuner searches model hyperparameters within a time budget.
package tuner

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"
	"k8s.io/utils/clock"

	"github.com/askiada/go-automl/pkg/automl/model"
)

// Random samples candidates from the model search space and keeps the best scoring one.
// The default hyperparameters are always evaluated first.
type Random struct {
	task         *model.Task
	trials       int
	timeout      time.Duration
	fitOnHoldout bool
	seed         int64
	clock        clock.PassiveClock

	evaluated int
	best      map[string]any
}

type Option func(r *Random)

func WithSeed(seed int64) Option {
	return func(r *Random) {
		r.seed = seed
	}
}

func WithClock(clk clock.PassiveClock) Option {
	return func(r *Random) {
		r.clock = clk
	}
}

// NewRandom creates a tuner running at most trials evaluations within timeout.
// With fitOnHoldout each candidate is scored on one fold only, otherwise on every fold.
func NewRandom(task *model.Task, trials int, timeout time.Duration, fitOnHoldout bool, opts ...Option) *Random {
	r := &Random{
		task:         task,
		trials:       max(trials, 1),
		timeout:      timeout,
		fitOnHoldout: fitOnHoldout,
		seed:         42,
		clock:        clock.RealClock{},
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Trials returns the configured number of trials.
func (r *Random) Trials() int { return r.trials }

// Timeout returns the tuning time cap.
func (r *Random) Timeout() time.Duration { return r.timeout }

// Evaluated returns the number of candidates scored by the last Tune.
func (r *Random) Evaluated() int { return r.evaluated }

// Best returns the hyperparameters chosen by the last Tune.
func (r *Random) Best() map[string]any { return r.best }

// Tune returns an unfitted model with the best hyperparameters found.
// Models without a search space are returned unchanged.
func (r *Random) Tune(ctx context.Context, m model.Model, train *model.Dataset, budget time.Duration) (model.Model, error) {
	tunable, ok := m.(model.Tunable)
	if !ok {
		return m, nil
	}

	logger := logr.FromContextOrDiscard(ctx).WithValues("model", m.Name())

	limit := r.timeout
	if budget > 0 && (limit <= 0 || budget < limit) {
		limit = budget
	}

	start := r.clock.Now()
	rng := rand.New(rand.NewSource(r.seed))
	splits := r.splits(train)

	var (
		best      model.Model = tunable
		bestScore             = math.Inf(-1)
	)

	r.evaluated = 0

	for trial := 0; trial < r.trials; trial++ {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(err, "unable to finish tuning")
		}

		elapsed := r.clock.Since(start)
		if trial > 0 && limit > 0 && elapsed >= limit {
			break
		}

		candidate := model.Model(tunable.Clone())
		if trial > 0 {
			candidate = tunable.Sample(rng)
		}

		if b, ok := candidate.(model.Budgeted); ok && limit > 0 {
			b.SetBudget((limit - elapsed) / time.Duration(max(r.trials-trial, 1)))
		}

		score, err := r.evaluate(ctx, candidate, train, splits)
		if err != nil {
			return nil, errors.Wrapf(err, "unable to evaluate trial %d", trial)
		}

		r.evaluated++

		logger.V(1).Info("tuning trial", "trial", trial, "score", score)

		if score > bestScore {
			bestScore = score
			best = candidate
		}
	}

	if p, ok := best.(model.Tunable); ok {
		r.best = p.Params()
	}

	logger.Info("tuning finished", "trials", r.evaluated, "score", bestScore)

	return best.Clone(), nil
}

type split struct {
	train, valid []int
}

func (r *Random) splits(ds *model.Dataset) []split {
	ids := ds.FoldIDs()
	if len(ids) < 2 {
		// no usable folds: hold out every fifth row
		var s split

		for i := 0; i < ds.Len(); i++ {
			if i%5 == 4 {
				s.valid = append(s.valid, i)
			} else {
				s.train = append(s.train, i)
			}
		}

		return []split{s}
	}

	if r.fitOnHoldout {
		ids = ids[:1]
	}

	res := make([]split, 0, len(ids))
	for _, k := range ids {
		tr, va := ds.Split(k)
		res = append(res, split{train: tr, valid: va})
	}

	return res
}

func (r *Random) evaluate(ctx context.Context, m model.Model, ds *model.Dataset, splits []split) (float64, error) {
	var total float64

	for _, s := range splits {
		candidate := m.Clone()
		valid := ds.Rows(s.valid)

		err := candidate.Fit(ctx, ds.Rows(s.train), valid)
		if err != nil {
			return 0, err
		}

		pred, err := candidate.Predict(valid)
		if err != nil {
			return 0, err
		}

		total += r.task.Score(valid.Target, pred)
	}

	return total / float64(len(splits)), nil
}
