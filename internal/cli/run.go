package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/askiada/go-automl/pkg/automl/drawer"
	"github.com/askiada/go-automl/pkg/automl/engine"
	"github.com/askiada/go-automl/pkg/automl/metrics"
	"github.com/askiada/go-automl/pkg/automl/model"
	"github.com/askiada/go-automl/pkg/automl/preset"
	"github.com/askiada/go-automl/pkg/automl/reader"
	"github.com/askiada/go-automl/pkg/automl/utilized"
)

var ErrMissingFlag = errors.New("missing required flag")

// fitter is what the run command needs from either AutoML flavour.
type fitter interface {
	FitPredict(ctx context.Context, train any, roles reader.Roles, opts ...preset.FitOption) (*model.Predictions, error)
	Predict(ctx context.Context, data any, opts ...preset.PredictOption) (*model.Predictions, error)
}

type runConfig struct {
	train    string
	test     string
	output   string
	target   string
	drop     []string
	task     string
	loss     string
	configs  []string
	timeout  time.Duration
	cpuLimit int
	gpuIDs   string
	utilized bool
	graph    string
	batch    int
	jobs     int
}

func newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Fit on a train CSV and predict a test CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v, err := bind(cmd)
			if err != nil {
				return err
			}

			rc, err := readRunConfig(v)
			if err != nil {
				return &ExitError{Code: 2, Message: err.Error()}
			}

			ctx, sync, err := withLogger(cmd, v)
			if err != nil {
				return err
			}
			defer sync()

			return run(ctx, cmd.OutOrStdout(), rc)
		},
	}

	flags := cmd.Flags()
	flags.String("train", "", "Train CSV file.")
	flags.String("test", "", "Test CSV file. Out-of-fold predictions of the train file are written when empty.")
	flags.StringP("output", "o", "", "Predictions CSV file. Defaults to stdout.")
	flags.String("target", "", "Target column.")
	flags.StringSlice("drop", nil, "Columns to ignore.")
	flags.String("task", model.Binary, "Task: binary, reg or multiclass.")
	flags.String("loss", "", "Loss name. Defaults to the task loss.")
	flags.StringSlice("config", nil, "Preset names or YAML files. Several values need --utilized.")
	flags.Duration("timeout", preset.DefaultTimeout, "Global time budget.")
	flags.Int("cpu-limit", preset.DefaultCPULimit, "Maximum number of threads.")
	flags.String("gpu-ids", preset.DefaultGPUIDs, "GPU ids: all, none or a comma separated list.")
	flags.Bool("utilized", false, "Cycle through several configurations within the time budget.")
	flags.String("graph", "", "Write the assembled pipeline as a DOT file.")
	flags.Int("batch-size", 0, "Predict the test file in batches of this many rows.")
	flags.Int("jobs", 1, "Batches predicted concurrently.")

	return cmd
}

func readRunConfig(v *viper.Viper) (runConfig, error) {
	rc := runConfig{
		train:    v.GetString("train"),
		test:     v.GetString("test"),
		output:   v.GetString("output"),
		target:   v.GetString("target"),
		drop:     v.GetStringSlice("drop"),
		task:     v.GetString("task"),
		loss:     v.GetString("loss"),
		configs:  v.GetStringSlice("config"),
		timeout:  v.GetDuration("timeout"),
		cpuLimit: v.GetInt("cpu-limit"),
		gpuIDs:   v.GetString("gpu-ids"),
		utilized: v.GetBool("utilized"),
		graph:    v.GetString("graph"),
		batch:    v.GetInt("batch-size"),
		jobs:     v.GetInt("jobs"),
	}

	switch {
	case rc.train == "":
		return rc, errors.Wrap(ErrMissingFlag, "--train")
	case rc.target == "":
		return rc, errors.Wrap(ErrMissingFlag, "--target")
	case len(rc.configs) > 1 && !rc.utilized:
		return rc, errors.New("several configurations need --utilized")
	}

	return rc, nil
}

func run(ctx context.Context, out io.Writer, rc runConfig) error {
	logger := logr.FromContextOrDiscard(ctx)

	var taskOpts []model.TaskOption
	if rc.loss != "" {
		taskOpts = append(taskOpts, model.WithLoss(rc.loss))
	}

	task, err := model.NewTask(rc.task, taskOpts...)
	if err != nil {
		return &ExitError{Code: 2, Message: err.Error()}
	}

	rec := metrics.NewRecorder()

	automl, err := newFitter(task, rc, rec)
	if err != nil {
		return errors.Wrap(err, "unable to create automl")
	}

	roles := reader.Roles{Target: rc.target, Drop: rc.drop}

	res, err := automl.FitPredict(ctx, rc.train, roles)
	if err != nil {
		return errors.Wrap(err, "unable to fit")
	}

	logger.Info("fitted", "rows", res.Len(), "timeout", rc.timeout)

	if rc.test != "" {
		res, err = automl.Predict(ctx, rc.test, preset.WithBatchSize(rc.batch), preset.WithJobs(rc.jobs))
		if err != nil {
			return errors.Wrap(err, "unable to predict")
		}

		logger.Info("predicted", "rows", res.Len())
	}

	if rc.graph != "" {
		if err := drawGraphs(ctx, automl, rc.graph); err != nil {
			return err
		}
	}

	return writeOutput(out, rc.output, res)
}

func newFitter(task *model.Task, rc runConfig, rec *metrics.Recorder) (fitter, error) {
	if rc.utilized {
		opts := []utilized.Option{
			utilized.WithTimeout(rc.timeout),
			utilized.WithCPULimit(rc.cpuLimit),
			utilized.WithGPUIDs(rc.gpuIDs),
			utilized.WithMetrics(rec),
		}

		if len(rc.configs) > 0 {
			opts = append(opts, utilized.WithConfigs(rc.configs...))
		}

		return utilized.New(task, opts...), nil
	}

	opts := []preset.Option{
		preset.WithTimeout(rc.timeout),
		preset.WithCPULimit(rc.cpuLimit),
		preset.WithGPUIDs(rc.gpuIDs),
		preset.WithMetrics(rec),
	}

	if len(rc.configs) == 1 {
		opts = append(opts, source(rc.configs[0]))
	}

	return preset.New(task, opts...)
}

func source(cfg string) preset.Option {
	switch strings.ToLower(filepath.Ext(cfg)) {
	case ".yml", ".yaml":
		return preset.WithConfigFile(cfg)
	default:
		return preset.WithPreset(cfg)
	}
}

// drawGraphs writes one DOT file, or one per kept run suffixed by its index for utilized runs.
func drawGraphs(ctx context.Context, automl fitter, path string) error {
	var graphs []*engine.AutoML

	switch a := automl.(type) {
	case *preset.TabularAutoML:
		graphs = append(graphs, a.AutoML())
	case *utilized.AutoML:
		for _, r := range a.Runs() {
			if p := r.Preset(); p != nil {
				graphs = append(graphs, p.AutoML())
			}
		}
	}

	for i, g := range graphs {
		target := path
		if len(graphs) > 1 {
			ext := filepath.Ext(path)
			target = fmt.Sprintf("%s_%d%s", strings.TrimSuffix(path, ext), i, ext)
		}

		d, err := drawer.FromAutoML(g)
		if err != nil {
			return errors.Wrap(err, "unable to build graph")
		}

		if err := d.Draw(target); err != nil {
			return err
		}

		logr.FromContextOrDiscard(ctx).V(1).Info("graph written", "path", target)
	}

	return nil
}

func writeOutput(out io.Writer, path string, res *model.Predictions) error {
	if path == "" {
		return writeCSV(out, res)
	}

	file, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "unable to create %s", path)
	}
	defer file.Close()

	return writeCSV(file, res)
}
