package stream

import (
	"context"
)

var startStep = &StepInfo{Type: rootStepType, Name: "start"}

// AddRootStep adds the step feeding the pipeline. The output is closed when stepFn returns.
func AddRootStep[O any](p *Pipeline, name string, stepFn func(ctx context.Context, rootChan chan<- O) error, opts ...StepOption[O]) (*Step[O], error) {
	if p == nil {
		return nil, ErrPipelineMustBeSet
	}

	output := make(chan O)
	step := &Step[O]{
		Details: &StepInfo{
			Type:       rootStepType,
			Name:       name,
			Concurrent: 1,
		},
		Output: output,
	}

	for _, opt := range opts {
		opt(step)
	}

	err := p.prepare(startStep, step.Details)
	if err != nil {
		return nil, err
	}

	errC := make(chan error, 1)
	p.steps.watch(name, errC)
	p.goFn = append(p.goFn, func(ctx context.Context) {
		defer func() {
			close(output)
			close(errC)
		}()

		err := stepFn(ctx, output)
		if err != nil {
			errC <- err
		}
	})

	return step, nil
}
