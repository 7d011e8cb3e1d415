// Package preset assembles a complete tabular AutoML from a configuration.
//
// The preset decides which model families to train at every level, how much of the
// time budget each trainable unit receives, whether features are preselected and how
// the last level is blended. Training itself is delegated to the engine.
package preset

import (
	"time"

	"github.com/pkg/errors"
	"k8s.io/utils/clock"

	"github.com/askiada/go-automl/pkg/automl/config"
	"github.com/askiada/go-automl/pkg/automl/engine"
	"github.com/askiada/go-automl/pkg/automl/family"
	"github.com/askiada/go-automl/pkg/automl/hardware"
	"github.com/askiada/go-automl/pkg/automl/metrics"
	"github.com/askiada/go-automl/pkg/automl/model"
	"github.com/askiada/go-automl/pkg/automl/reader"
	"github.com/askiada/go-automl/pkg/automl/timer"
)

const (
	DefaultTimeout  = time.Hour
	DefaultCPULimit = 4
	DefaultGPUIDs   = "all"
)

var (
	ErrInvalidSelectionMode = errors.New("invalid selection mode")
	ErrNotFitted            = errors.New("preset is not fitted")
)

// TabularAutoML builds and runs the tabular pipeline of one configuration.
type TabularAutoML struct {
	task     *model.Task
	cfg      *config.Config
	hw       hardware.Context
	registry *family.Registry
	clock    clock.Clock
	metrics  *metrics.Recorder
	timer    *timer.PipelineTimer

	timeout  time.Duration
	cpuLimit int
	gpuIDs   string

	reader *reader.Reader
	automl *engine.AutoML
}

type options struct {
	timeout     time.Duration
	cpuLimit    int
	gpuIDs      string
	hw          *hardware.Context
	base        config.Source
	overrides   map[string]map[string]any
	permissive  bool
	clock       clock.Clock
	metrics     *metrics.Recorder
	registry    *family.Registry
	randomState *int64
}

// Option configures a TabularAutoML.
type Option func(o *options)

// WithTimeout sets the global time budget.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// WithCPULimit bounds the number of threads used by models and readers.
func WithCPULimit(n int) Option {
	return func(o *options) {
		o.cpuLimit = n
	}
}

// WithGPUIDs selects devices: "all", a comma separated list, or "" for none.
func WithGPUIDs(ids string) Option {
	return func(o *options) {
		o.gpuIDs = ids
	}
}

// WithHardware replaces host detection.
func WithHardware(hw hardware.Context) Option {
	return func(o *options) {
		o.hw = &hw
	}
}

// WithOverrides merges section overrides over the base configuration.
func WithOverrides(overrides map[string]map[string]any) Option {
	return func(o *options) {
		o.overrides = overrides
	}
}

// WithConfigFile reads the base configuration from a YAML file.
func WithConfigFile(path string) Option {
	return func(o *options) {
		o.base = config.File(path)
	}
}

// WithPreset uses an embedded configuration as base.
func WithPreset(name string) Option {
	return func(o *options) {
		o.base = config.Preset(name)
	}
}

// WithPermissive ignores unknown override keys.
func WithPermissive() Option {
	return func(o *options) {
		o.permissive = true
	}
}

func WithClock(clk clock.Clock) Option {
	return func(o *options) {
		o.clock = clk
	}
}

func WithMetrics(rec *metrics.Recorder) Option {
	return func(o *options) {
		o.metrics = rec
	}
}

// WithRegistry replaces the built-in model families.
func WithRegistry(r *family.Registry) Option {
	return func(o *options) {
		o.registry = r
	}
}

// WithRandomState overrides reader_params.random_state, the seed of every random choice.
func WithRandomState(seed int64) Option {
	return func(o *options) {
		o.randomState = &seed
	}
}

// New resolves the configuration and prepares the global timer.
func New(task *model.Task, opts ...Option) (*TabularAutoML, error) {
	o := options{
		timeout:  DefaultTimeout,
		cpuLimit: DefaultCPULimit,
		gpuIDs:   DefaultGPUIDs,
		base:     config.Preset(config.DefaultPreset),
		clock:    clock.RealClock{},
		registry: family.Default(),
	}

	for _, opt := range opts {
		opt(&o)
	}

	var resolveOpts []config.Option
	if o.permissive {
		resolveOpts = append(resolveOpts, config.Permissive())
	}

	cfg, err := config.Resolve(o.base, o.overrides, resolveOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "unable to resolve config")
	}

	if o.randomState != nil {
		cfg.Reader.RandomState = *o.randomState
	}

	hw := hardware.Detect(o.cpuLimit)
	if o.hw != nil {
		hw = *o.hw
	}

	return &TabularAutoML{
		task:     task,
		cfg:      cfg,
		hw:       hw,
		registry: o.registry,
		clock:    o.clock,
		metrics:  o.metrics,
		timeout:  o.timeout,
		cpuLimit: o.cpuLimit,
		gpuIDs:   o.gpuIDs,
		timer: timer.NewPipelineTimer(o.timeout,
			timer.WithClock(o.clock),
			timer.WithOverhead(cfg.Timing.Overhead),
			timer.WithTuningRate(cfg.Timing.TuningRate),
		),
	}, nil
}

// Task returns the task being solved.
func (t *TabularAutoML) Task() *model.Task { return t.task }

// Config returns the resolved configuration. Auto options are resolved by InferAutoParams.
func (t *TabularAutoML) Config() *config.Config { return t.cfg }

// Hardware returns the resources granted to this instance.
func (t *TabularAutoML) Hardware() hardware.Context { return t.hw }

// Timer returns the global timer.
func (t *TabularAutoML) Timer() *timer.PipelineTimer { return t.timer }

// AutoML returns the assembled engine, nil before CreateAutoML.
func (t *TabularAutoML) AutoML() *engine.AutoML { return t.automl }

// Reader returns the reader, nil before CreateAutoML.
func (t *TabularAutoML) Reader() *reader.Reader { return t.reader }
