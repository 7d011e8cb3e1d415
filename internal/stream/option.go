package stream

import "time"

// PipelineOption hooks into the life cycle of a pipeline.
type PipelineOption interface {
	// New initialises the option.
	New() error
	// PrepareStep runs before a step or sink starts.
	PrepareStep(parentStep, step *StepInfo) error
	// OnStepOutput runs every time a step pushes an item or a sink consumes one.
	OnStepOutput(parentStep, step *StepInfo, iterationDuration, computationDuration time.Duration) error
	// Finish runs after the pipeline is finished.
	Finish() error
}

// ObserverFunc receives the computation time of every item processed by a step.
type ObserverFunc func(step string, computation time.Duration)

type observer struct {
	fn ObserverFunc
}

// WithObserver reports step computation times to fn.
func WithObserver(fn ObserverFunc) PipelineOption {
	return &observer{fn: fn}
}

func (o *observer) New() error { return nil }

func (o *observer) PrepareStep(_, _ *StepInfo) error { return nil }

func (o *observer) OnStepOutput(_, step *StepInfo, _, computation time.Duration) error {
	o.fn(step.Name, computation)

	return nil
}

func (o *observer) Finish() error { return nil }
