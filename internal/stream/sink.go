package stream

import (
	"context"
)

// AddSink consumes the output of input with sinkFn.
func AddSink[I any](p *Pipeline, name string, input *Step[I], sinkFn func(ctx context.Context, input I) error) error {
	if p == nil {
		return ErrPipelineMustBeSet
	}
	if input == nil {
		return ErrInputMustBeSet
	}

	step := &StepInfo{
		Type:       sinkStepType,
		Name:       name,
		Concurrent: 1,
	}

	err := p.prepare(input.Details, step)
	if err != nil {
		return err
	}

	errC := make(chan error, 1)
	p.steps.watch(name, errC)
	p.goFn = append(p.goFn, func(ctx context.Context) {
		defer close(errC)

		for {
			startInputChan := p.clock.Now()
			select {
			case <-ctx.Done():
				errC <- ctx.Err()

				return
			case in, ok := <-input.Output:
				if !ok {
					return
				}

				startFn := p.clock.Now()
				err := sinkFn(ctx, in)
				if err != nil {
					errC <- err

					return
				}

				err = p.onOutput(input.Details, step, p.clock.Since(startInputChan), p.clock.Since(startFn))
				if err != nil {
					errC <- err

					return
				}
			}
		}
	})

	return nil
}
