// Package family maps algorithm keys to their relative cost and to the factory
// that builds the model.
package family

import (
	"sort"
	"strings"

	"github.com/pkg/errors"
	"k8s.io/utils/clock"

	"github.com/askiada/go-automl/pkg/automl/algo/boost"
	"github.com/askiada/go-automl/pkg/automl/algo/linear"
	"github.com/askiada/go-automl/pkg/automl/config"
	"github.com/askiada/go-automl/pkg/automl/model"
)

// Algorithm keys. A "_tuned" suffix pairs the base algorithm with a tuner.
const (
	LGB      = "lgb"
	LGBTuned = "lgb_tuned"
	Linear   = "linear_l2"
	CB       = "cb"
	CBTuned  = "cb_tuned"
	// GBM names the boosting group in selection_params.select_algos.
	GBM = "gbm"

	tunedSuffix = "_tuned"
	gpuTaskType = "GPU"
)

var (
	ErrUnknownModelType = errors.New("unknown model type")
	ErrUnknownAlgo      = errors.New("wrong algo key")
)

// CostTable holds the relative training cost of every key. Static.
var CostTable = map[string]float64{
	LGB:      1,
	LGBTuned: 3,
	Linear:   0.7,
	CB:       2,
	CBTuned:  6,
}

// Cost returns the relative cost of a key.
func Cost(key string) (float64, error) {
	c, ok := CostTable[key]
	if !ok {
		return 0, errors.Wrap(ErrUnknownModelType, key)
	}

	return c, nil
}

// ParseKey splits a key into its base algorithm and tuned flag.
func ParseKey(key string) (string, bool) {
	if base, ok := strings.CutSuffix(key, tunedSuffix); ok {
		return base, true
	}

	return key, false
}

// Params carries what a factory needs to build a model.
type Params struct {
	Name    string
	Task    *model.Task
	Config  *config.Config
	// Threads caps the configured model threads when positive.
	Threads int
	Clock   clock.PassiveClock
}

// Family describes one base algorithm.
type Family struct {
	Key string
	// Group is the select_algos group of the family.
	Group string
	// Accelerated reports whether the configuration runs the family on a GPU.
	Accelerated func(cfg *config.Config) bool
	Build       func(p Params) (model.Model, error)
}

// Registry resolves base algorithm keys to families.
type Registry struct {
	families map[string]Family
}

// NewRegistry creates a registry from families.
func NewRegistry(families ...Family) *Registry {
	r := &Registry{families: make(map[string]Family, len(families))}
	for _, f := range families {
		r.families[f.Key] = f
	}

	return r
}

// Default returns the registry of the built-in algorithms.
func Default() *Registry {
	return NewRegistry(
		Family{
			Key:         LGB,
			Group:       GBM,
			Accelerated: func(*config.Config) bool { return false },
			Build: func(p Params) (model.Model, error) {
				params := p.Config.LGB.DefaultParams

				return boost.New(p.Name, p.Task, boost.Params{
					BoostParams: params.BoostParams,
					Threads:     capThreads(params.NumThreads, p.Threads),
					Clock:       p.Clock,
				}), nil
			},
		},
		Family{
			Key:         CB,
			Group:       GBM,
			Accelerated: func(cfg *config.Config) bool { return cfg.CB.DefaultParams.TaskType == gpuTaskType },
			Build: func(p Params) (model.Model, error) {
				params := p.Config.CB.DefaultParams

				return boost.New(p.Name, p.Task, boost.Params{
					BoostParams: params.BoostParams,
					Threads:     capThreads(params.ThreadCount, p.Threads),
					Oblivious:   true,
					Clock:       p.Clock,
				}), nil
			},
		},
		Family{
			Key:         Linear,
			Group:       Linear,
			Accelerated: func(*config.Config) bool { return false },
			Build: func(p Params) (model.Model, error) {
				lp := p.Config.Linear

				return linear.New(p.Name, p.Task, linear.Params{
					L2:      lp.L2,
					MaxIter: lp.MaxIter,
					Tol:     lp.Tol,
					Clock:   p.Clock,
				}), nil
			},
		},
	)
}

// Get returns the family of a base key.
func (r *Registry) Get(base string) (Family, error) {
	f, ok := r.families[base]
	if !ok {
		return Family{}, errors.Wrap(ErrUnknownAlgo, base)
	}

	return f, nil
}

// Build creates the model of a base key.
func (r *Registry) Build(base string, p Params) (model.Model, error) {
	f, err := r.Get(base)
	if err != nil {
		return nil, err
	}

	m, err := f.Build(p)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to build %s", base)
	}

	return m, nil
}

// Accelerated reports whether the family of a key, tuned or not, runs on a GPU.
func (r *Registry) Accelerated(key string, cfg *config.Config) bool {
	base, _ := ParseKey(key)

	f, ok := r.families[base]
	if !ok || f.Accelerated == nil {
		return false
	}

	return f.Accelerated(cfg)
}

// Keys returns the registered base keys in sorted order.
func (r *Registry) Keys() []string {
	res := make([]string, 0, len(r.families))
	for k := range r.families {
		res = append(res, k)
	}

	sort.Strings(res)

	return res
}

// capThreads bounds the configured thread count by limit. Non-positive values mean unbounded.
func capThreads(configured, limit int) int {
	if limit <= 0 {
		return configured
	}

	if configured <= 0 || configured > limit {
		return limit
	}

	return configured
}
