// Package cli wires the automl commands, their flags and the process logger.
package cli

import (
	"context"
	"io"
	"strings"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const envPrefix = "AUTOML"

var ErrInvalidLogLevel = errors.New("invalid log level")

// ExitError carries the process exit code of a failed command.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string {
	return e.Message
}

// NewRootCommand builds the automl command tree writing results to out.
func NewRootCommand(out io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "automl",
		Short:         "Time budgeted AutoML for tabular data",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.SetOut(out)
	root.PersistentFlags().String("log-level", "info", "Log level: debug, info, warn or error.")
	root.PersistentFlags().Bool("log-json", false, "Write logs as JSON.")

	root.AddCommand(newRunCommand(), newConfigCommand())

	return root
}

// Execute runs the command line args. Flag and validation errors become ExitError with code 2.
func Execute(ctx context.Context, out io.Writer, args []string) error {
	root := NewRootCommand(out)
	root.SetArgs(args)

	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &ExitError{Code: 2, Message: err.Error()}
	})

	return root.ExecuteContext(ctx)
}

// bind exposes every flag of cmd, persistent ones included, as AUTOML_<FLAG> in the returned viper.
func bind(cmd *cobra.Command) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	var bindErr error

	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if err := v.BindPFlag(f.Name, f); err != nil && bindErr == nil {
			bindErr = errors.Wrapf(err, "unable to bind flag %s", f.Name)
		}
	})

	return v, bindErr
}

// newLogger builds the zap logger behind logr.
func newLogger(level string, json bool) (logr.Logger, func(), error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return logr.Discard(), nil, errors.Wrapf(ErrInvalidLogLevel, "%s", level)
	}

	cfg := zap.NewDevelopmentConfig()
	if json {
		cfg = zap.NewProductionConfig()
	}

	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{"stderr"}

	z, err := cfg.Build()
	if err != nil {
		return logr.Discard(), nil, errors.Wrap(err, "unable to build logger")
	}

	return zapr.NewLogger(z), func() { _ = z.Sync() }, nil
}

// withLogger attaches the configured logger to the command context.
func withLogger(cmd *cobra.Command, v *viper.Viper) (context.Context, func(), error) {
	logger, sync, err := newLogger(v.GetString("log-level"), v.GetBool("log-json"))
	if err != nil {
		return nil, nil, &ExitError{Code: 2, Message: err.Error()}
	}

	return logr.NewContext(cmd.Context(), logger), sync, nil
}
