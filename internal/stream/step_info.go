package stream

type stepType string

const (
	rootStepType   stepType = "root"
	normalStepType stepType = "step"
	sinkStepType   stepType = "sink"
)

// StepInfo describes a step to the pipeline options.
type StepInfo struct {
	Type       stepType
	Name       string
	Concurrent int
}

// Step is the output end of a step.
type Step[O any] struct {
	Output  chan O
	Details *StepInfo
}

type StepOption[O any] func(s *Step[O])

// StepConcurrency sets the number of goroutines running the step function.
func StepConcurrency[O any](concurrent int) StepOption[O] {
	return func(s *Step[O]) {
		s.Details.Concurrent = concurrent
	}
}
