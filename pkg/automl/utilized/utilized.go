// Package utilized spends a global time budget on several AutoML configurations.
//
// Configurations are fitted one after another, each with the time still left, and the
// whole list is restarted with a new seed while time remains. Runs of one configuration
// are averaged; the configurations are then blended with learned weights.
package utilized

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"k8s.io/utils/clock"

	"github.com/askiada/go-automl/pkg/automl/blend"
	"github.com/askiada/go-automl/pkg/automl/config"
	"github.com/askiada/go-automl/pkg/automl/metrics"
	"github.com/askiada/go-automl/pkg/automl/model"
	"github.com/askiada/go-automl/pkg/automl/preset"
	"github.com/askiada/go-automl/pkg/automl/reader"
)

const (
	DefaultMaxRunsPerConfig = 5
	DefaultRandomState      = 42

	configPrefix = "conf_"
)

var (
	ErrNoRuns    = errors.New("no run finished")
	ErrNotFitted = errors.New("utilized automl is not fitted")
)

// runner is the part of a preset the loop depends on.
type runner interface {
	FitPredict(ctx context.Context, train any, roles reader.Roles, opts ...preset.FitOption) (*model.Predictions, error)
	Predict(ctx context.Context, data any, opts ...preset.PredictOption) (*model.Predictions, error)
}

type factory func(cfg string, seed int64, timeout time.Duration) (runner, error)

// Run is one fitted AutoML.
type Run struct {
	ID     uuid.UUID
	Config string
	// Iteration is the multistart loop the run belongs to.
	Iteration int
	Seed      int64
	Timeout   time.Duration
	Elapsed   time.Duration
	// Finished is false when the run was still training at the global deadline.
	Finished bool

	automl runner
}

// Preset returns the fitted preset of the run.
func (r *Run) Preset() *preset.TabularAutoML {
	p, _ := r.automl.(*preset.TabularAutoML)

	return p
}

// group holds the kept runs of one configuration.
type group struct {
	config string
	runs   []*Run
	inner  blend.Blender
}

// AutoML fits several configurations under one deadline.
type AutoML struct {
	task        *model.Task
	configs     []string
	dropLast    bool
	maxRuns     int
	randomState int64
	timeout     time.Duration
	cpuLimit    int
	gpuIDs      string
	clock       clock.Clock
	metrics     *metrics.Recorder
	presetOpts  []preset.Option

	newRunner factory

	runs   []*Run
	groups []*group
	outer  blend.Blender
}

// Option configures an AutoML.
type Option func(a *AutoML)

// WithConfigs sets the configurations to cycle through: embedded preset names or YAML file paths.
func WithConfigs(configs ...string) Option {
	return func(a *AutoML) {
		a.configs = configs
	}
}

// WithDropLast excludes the last run when it was cut by the deadline.
func WithDropLast(drop bool) Option {
	return func(a *AutoML) {
		a.dropLast = drop
	}
}

// WithMaxRunsPerConfig bounds the number of multistart loops.
func WithMaxRunsPerConfig(n int) Option {
	return func(a *AutoML) {
		a.maxRuns = n
	}
}

// WithRandomState sets the seed of the first run. Later runs use the following seeds.
func WithRandomState(seed int64) Option {
	return func(a *AutoML) {
		a.randomState = seed
	}
}

func WithTimeout(d time.Duration) Option {
	return func(a *AutoML) {
		a.timeout = d
	}
}

func WithCPULimit(n int) Option {
	return func(a *AutoML) {
		a.cpuLimit = n
	}
}

func WithGPUIDs(ids string) Option {
	return func(a *AutoML) {
		a.gpuIDs = ids
	}
}

// WithClock replaces the wall clock of the deadline and of every run.
func WithClock(clk clock.Clock) Option {
	return func(a *AutoML) {
		a.clock = clk
	}
}

func WithMetrics(rec *metrics.Recorder) Option {
	return func(a *AutoML) {
		a.metrics = rec
	}
}

// WithPresetOptions passes options to every run, after the ones set by the loop.
func WithPresetOptions(opts ...preset.Option) Option {
	return func(a *AutoML) {
		a.presetOpts = opts
	}
}

// DefaultConfigs returns the embedded multistart configurations in order.
func DefaultConfigs() []string {
	var res []string

	for _, name := range config.Presets() {
		if strings.HasPrefix(name, configPrefix) {
			res = append(res, name)
		}
	}

	return res
}

// New creates a multi-configuration AutoML.
func New(task *model.Task, opts ...Option) *AutoML {
	a := &AutoML{
		task:        task,
		configs:     DefaultConfigs(),
		dropLast:    true,
		maxRuns:     DefaultMaxRunsPerConfig,
		randomState: DefaultRandomState,
		timeout:     preset.DefaultTimeout,
		cpuLimit:    preset.DefaultCPULimit,
		gpuIDs:      preset.DefaultGPUIDs,
		clock:       clock.RealClock{},
	}

	for _, opt := range opts {
		opt(a)
	}

	a.newRunner = a.newPreset

	return a
}

func (a *AutoML) newPreset(cfg string, seed int64, timeout time.Duration) (runner, error) {
	opts := []preset.Option{
		source(cfg),
		preset.WithTimeout(timeout),
		preset.WithRandomState(seed),
		preset.WithCPULimit(a.cpuLimit),
		preset.WithGPUIDs(a.gpuIDs),
		preset.WithClock(a.clock),
		preset.WithMetrics(a.metrics),
	}

	return preset.New(a.task, append(opts, a.presetOpts...)...)
}

func source(cfg string) preset.Option {
	switch strings.ToLower(filepath.Ext(cfg)) {
	case ".yml", ".yaml":
		return preset.WithConfigFile(cfg)
	default:
		return preset.WithPreset(cfg)
	}
}

// Runs returns every run, dropped ones included.
func (a *AutoML) Runs() []*Run { return a.runs }

// Configs returns the configurations kept in the final blend, in blend order.
func (a *AutoML) Configs() []string {
	res := make([]string, len(a.groups))
	for i, g := range a.groups {
		res[i] = g.config
	}

	return res
}

// Weights returns the weight of every kept configuration.
func (a *AutoML) Weights() []float64 {
	if a.outer == nil {
		return nil
	}

	return a.outer.Weights()
}

// FitPredict runs the configurations until the deadline and returns the blended
// out-of-fold predictions.
func (a *AutoML) FitPredict(ctx context.Context, train any, roles reader.Roles, opts ...preset.FitOption) (*model.Predictions, error) {
	logger := logr.FromContextOrDiscard(ctx)
	start := a.clock.Now()

	a.runs = nil

	oofs := map[*Run]*model.Predictions{}

	var lastErr error

outer:
	for it := 0; it < a.maxRuns; it++ {
		for _, cfg := range a.configs {
			remaining := a.timeout - a.clock.Since(start)
			if remaining <= 0 {
				break outer
			}

			run := &Run{
				ID:        uuid.New(),
				Config:    cfg,
				Iteration: it,
				Seed:      a.randomState + int64(len(a.runs)),
				Timeout:   remaining,
			}
			runLogger := logger.WithValues("run", run.ID, "config", cfg, "seed", run.Seed)
			runLogger.Info("starting run", "timeout", remaining)

			automl, err := a.newRunner(cfg, run.Seed, remaining)
			if err != nil {
				return nil, errors.Wrapf(err, "unable to create automl for %s", cfg)
			}

			runStart := a.clock.Now()
			oof, err := automl.FitPredict(logr.NewContext(ctx, runLogger), train, roles, opts...)
			run.Elapsed = a.clock.Since(runStart)

			if err != nil {
				if ctx.Err() != nil {
					return nil, errors.Wrap(err, "unable to fit run")
				}

				runLogger.Error(err, "run failed")
				a.metrics.ObserveRun(cfg, metrics.StatusFailed)
				lastErr = err

				continue
			}

			run.automl = automl
			run.Finished = a.clock.Since(start) <= a.timeout
			a.runs = append(a.runs, run)
			oofs[run] = oof

			runLogger.Info("run done", "elapsed", run.Elapsed, "finished", run.Finished)
		}
	}

	kept := a.keptRuns()
	if len(kept) == 0 {
		if lastErr != nil {
			return nil, errors.Wrap(ErrNoRuns, lastErr.Error())
		}

		return nil, ErrNoRuns
	}

	for _, r := range a.runs {
		status := metrics.StatusDropped
		if containsRun(kept, r) {
			status = metrics.StatusFinished
		}

		a.metrics.ObserveRun(r.Config, status)
	}

	return a.blend(ctx, kept, oofs)
}

// keptRuns drops the last run when it was cut by the deadline and other runs exist.
func (a *AutoML) keptRuns() []*Run {
	n := len(a.runs)
	if a.dropLast && n > 1 && !a.runs[n-1].Finished {
		return a.runs[:n-1]
	}

	return a.runs
}

func containsRun(runs []*Run, r *Run) bool {
	for _, k := range runs {
		if k == r {
			return true
		}
	}

	return false
}

func (a *AutoML) blend(ctx context.Context, kept []*Run, oofs map[*Run]*model.Predictions) (*model.Predictions, error) {
	first := oofs[kept[0]]
	outputs := len(first.Columns)

	a.groups = nil
	byConfig := map[string]*group{}

	for _, r := range kept {
		g, ok := byConfig[r.Config]
		if !ok {
			g = &group{config: r.Config, inner: blend.NewMean()}
			byConfig[r.Config] = g
			a.groups = append(a.groups, g)
		}

		g.runs = append(g.runs, r)
	}

	perConfig := make([]*mat.Dense, 0, len(a.groups))

	for _, g := range a.groups {
		preds := make([]*mat.Dense, len(g.runs))
		for i, r := range g.runs {
			preds[i] = oofs[r].Data
		}

		avg, err := g.inner.FitPredict(preds, first.Target, a.task, outputs)
		if err != nil {
			return nil, errors.Wrapf(err, "unable to average runs of %s", g.config)
		}

		perConfig = append(perConfig, avg)
	}

	a.outer = blend.NewWeighted()

	res, err := a.outer.FitPredict(perConfig, first.Target, a.task, outputs)
	if err != nil {
		return nil, errors.Wrap(err, "unable to blend configs")
	}

	logr.FromContextOrDiscard(ctx).Info("configs blended", "configs", a.Configs(), "weights", a.outer.Weights())

	return &model.Predictions{Data: res, Columns: first.Columns, Target: first.Target}, nil
}

// Predict reduces the predictions of every kept run the way FitPredict did.
func (a *AutoML) Predict(ctx context.Context, data any, opts ...preset.PredictOption) (*model.Predictions, error) {
	if a.outer == nil {
		return nil, ErrNotFitted
	}

	var (
		columns   []string
		rows      int
		perConfig = make([]*mat.Dense, 0, len(a.groups))
	)

	for _, g := range a.groups {
		preds := make([]*mat.Dense, len(g.runs))

		for i, r := range g.runs {
			p, err := r.automl.Predict(ctx, data, opts...)
			if err != nil {
				return nil, errors.Wrapf(err, "unable to predict run %s", r.ID)
			}

			preds[i] = p.Data
			columns = p.Columns
			rows = p.Len()
		}

		avg, err := g.inner.Predict(rows, preds)
		if err != nil {
			return nil, errors.Wrapf(err, "unable to average runs of %s", g.config)
		}

		perConfig = append(perConfig, avg)
	}

	res, err := a.outer.Predict(rows, perConfig)
	if err != nil {
		return nil, errors.Wrap(err, "unable to blend configs")
	}

	return &model.Predictions{Data: res, Columns: columns}, nil
}
