// Package config resolves the layered preset configuration of an AutoML run.
//
// Defaults live in embedded YAML presets. A run starts from a base preset (or a
// YAML file merged over the tabular preset) and deep-merges caller overrides per
// section. Options that accept "auto" are decoded as Auto and must be resolved by
// parameter inference before models are built.
package config

import (
	"fmt"
)

// Config is the fully merged configuration of one run.
type Config struct {
	General        GeneralParams        `yaml:"general_params"`
	Reader         ReaderParams         `yaml:"reader_params"`
	ReadCSV        ReadCSVParams        `yaml:"read_csv_params"`
	NestedCV       NestedCVParams       `yaml:"nested_cv_params"`
	Tuning         TuningParams         `yaml:"tuning_params"`
	Selection      SelectionParams      `yaml:"selection_params"`
	Timing         TimingParams         `yaml:"timing_params"`
	LGB            LGBParams            `yaml:"lgb_params"`
	CB             CBParams             `yaml:"cb_params"`
	Linear         LinearParams         `yaml:"linear_l2_params"`
	GBMPipeline    GBMPipelineParams    `yaml:"gbm_pipeline_params"`
	LinearPipeline LinearPipelineParams `yaml:"linear_pipeline_params"`
}

type GeneralParams struct {
	UseAlgos   Auto[[][]string] `yaml:"use_algos"`
	NestedCV   bool             `yaml:"nested_cv"`
	SkipConn   bool             `yaml:"skip_conn"`
	PruneBelow float64          `yaml:"weighted_blender_max_nonzero_coef"`
}

type ReaderParams struct {
	MaxNaNRate      float64 `yaml:"max_nan_rate"`
	MaxConstantRate float64 `yaml:"max_constant_rate"`
	CV              int     `yaml:"cv"`
	RandomState     int64   `yaml:"random_state"`
	NJobs           int     `yaml:"n_jobs"`
}

type ReadCSVParams struct {
	Delimiter string   `yaml:"delimiter"`
	NAValues  []string `yaml:"na_values"`
	// UseCols restricts parsing to these columns when set.
	UseCols []string `yaml:"-"`
}

type NestedCVParams struct {
	CV     int  `yaml:"cv"`
	NFolds *int `yaml:"n_folds"`
}

type TuningParams struct {
	MaxTuningIter Auto[int] `yaml:"max_tuning_iter"`
	// MaxTuningTime is in seconds.
	MaxTuningTime float64 `yaml:"max_tuning_time"`
	FitOnHoldout  bool    `yaml:"fit_on_holdout"`
}

type SelectionParams struct {
	Mode                   int      `yaml:"mode"`
	SelectAlgos            []string `yaml:"select_algos"`
	ImportanceType         string   `yaml:"importance_type"`
	FitOnHoldout           bool     `yaml:"fit_on_holdout"`
	Cutoff                 float64  `yaml:"cutoff"`
	FeatureGroupSize       int      `yaml:"feature_group_size"`
	MaxFeaturesCntInResult *int     `yaml:"max_features_cnt_in_result"`
}

type TimingParams struct {
	Overhead   float64 `yaml:"overhead"`
	TuningRate float64 `yaml:"tuning_rate"`
}

// BoostParams are shared by the boosting families.
type BoostParams struct {
	NumTrees            int     `yaml:"num_trees"`
	LearningRate        float64 `yaml:"learning_rate"`
	MaxDepth            int     `yaml:"max_depth"`
	MinDataInLeaf       int     `yaml:"min_data_in_leaf"`
	FeatureFraction     float64 `yaml:"feature_fraction"`
	BaggingFraction     float64 `yaml:"bagging_fraction"`
	Lambda              float64 `yaml:"lambda"`
	MaxBins             int     `yaml:"max_bins"`
	EarlyStoppingRounds int     `yaml:"early_stopping_rounds"`
	Seed                int64   `yaml:"seed"`
}

type LGBParams struct {
	DefaultParams LGBDefaults `yaml:"default_params"`
}

type LGBDefaults struct {
	BoostParams `yaml:",inline"`
	NumThreads  int `yaml:"num_threads"`
}

type CBParams struct {
	DefaultParams CBDefaults `yaml:"default_params"`
}

type CBDefaults struct {
	BoostParams `yaml:",inline"`
	ThreadCount int    `yaml:"thread_count"`
	TaskType    string `yaml:"task_type"`
	Devices     string `yaml:"devices"`
}

type LinearParams struct {
	L2      float64 `yaml:"l2"`
	MaxIter int     `yaml:"max_iter"`
	Tol     float64 `yaml:"tol"`
}

type GBMPipelineParams struct {
	TopCategories int `yaml:"top_categories"`
}

type LinearPipelineParams struct {
	MaxCategories int  `yaml:"max_categories"`
	Standardize   bool `yaml:"standardize"`
}

// Validate checks for values no component can work with.
func (c *Config) Validate() error {
	switch {
	case c.Reader.CV < 1:
		return newError("reader_params.cv", fmt.Sprintf("must be >= 1, got %d", c.Reader.CV))
	case c.NestedCV.CV < 1:
		return newError("nested_cv_params.cv", fmt.Sprintf("must be >= 1, got %d", c.NestedCV.CV))
	case c.NestedCV.NFolds != nil && *c.NestedCV.NFolds < 1:
		return newError("nested_cv_params.n_folds", fmt.Sprintf("must be >= 1, got %d", *c.NestedCV.NFolds))
	case c.Timing.Overhead < 0 || c.Timing.Overhead >= 1:
		return newError("timing_params.overhead", fmt.Sprintf("must be in [0, 1), got %.2f", c.Timing.Overhead))
	case c.Timing.TuningRate <= 0 || c.Timing.TuningRate > 1:
		return newError("timing_params.tuning_rate", fmt.Sprintf("must be in (0, 1], got %.2f", c.Timing.TuningRate))
	case c.Reader.MaxNaNRate < 0 || c.Reader.MaxNaNRate > 1:
		return newError("reader_params.max_nan_rate", fmt.Sprintf("must be in [0, 1], got %.3f", c.Reader.MaxNaNRate))
	case c.Selection.FeatureGroupSize < 1:
		return newError("selection_params.feature_group_size", fmt.Sprintf("must be >= 1, got %d", c.Selection.FeatureGroupSize))
	}

	return nil
}

// Clone returns a deep copy, so that inference can resolve options per instance.
func (c *Config) Clone() *Config {
	res := *c

	if algos, err := c.General.UseAlgos.Value(); err == nil {
		cp := make([][]string, len(algos))
		for i, lvl := range algos {
			cp[i] = append([]string(nil), lvl...)
		}

		res.General.UseAlgos = Fixed(cp)
	}

	res.ReadCSV.NAValues = append([]string(nil), c.ReadCSV.NAValues...)
	res.ReadCSV.UseCols = append([]string(nil), c.ReadCSV.UseCols...)
	res.Selection.SelectAlgos = append([]string(nil), c.Selection.SelectAlgos...)

	if c.NestedCV.NFolds != nil {
		n := *c.NestedCV.NFolds
		res.NestedCV.NFolds = &n
	}

	if c.Selection.MaxFeaturesCntInResult != nil {
		n := *c.Selection.MaxFeaturesCntInResult
		res.Selection.MaxFeaturesCntInResult = &n
	}

	return &res
}
