package stream

import (
	"context"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

func sequentialOneToOneFn[I any, O any](ctx context.Context, p *Pipeline, goIdx int, input *Step[I], output *Step[O], oneToOneFn func(context.Context, I) (O, error)) error {
outer:
	for {
		start := p.clock.Now()
		select {
		case <-ctx.Done():
			return errors.Wrapf(ctx.Err(), "go routine %d:", goIdx)
		case in, ok := <-input.Output:
			if !ok {
				break outer
			}
			startFn := p.clock.Now()
			out, err := oneToOneFn(ctx, in)
			if err != nil {
				return errors.Wrapf(err, "go routine %d:", goIdx)
			}
			endFn := p.clock.Since(startFn)

			// check the context again so that running goroutines stop
			// adding new elements to the pipeline
			select {
			case <-ctx.Done():
				return errors.Wrapf(ctx.Err(), "go routine %d:", goIdx)
			case output.Output <- out:
				err := p.onOutput(input.Details, output.Details, p.clock.Since(start), endFn)
				if err != nil {
					return err
				}
			}
		}
	}

	return nil
}

func concurrentOneToOneFn[I any, O any](ctx context.Context, p *Pipeline, input *Step[I], output *Step[O], oneToOneFn func(context.Context, I) (O, error)) error {
	errGrp, dCtx := errgroup.WithContext(ctx)
	errGrp.SetLimit(output.Details.Concurrent)
	// each consumer stops as soon as an error happens
	for goIdx := 0; goIdx < output.Details.Concurrent; goIdx++ {
		errGrp.Go(func() error {
			return sequentialOneToOneFn(dCtx, p, goIdx, input, output, oneToOneFn)
		})
	}

	return errGrp.Wait()
}

func oneToOne[I any, O any](ctx context.Context, p *Pipeline, input *Step[I], output *Step[O], oneToOneFn func(context.Context, I) (O, error)) error {
	if output.Details.Concurrent < 1 {
		output.Details.Concurrent = 1
	}
	if output.Details.Concurrent == 1 {
		return sequentialOneToOneFn(ctx, p, 0, input, output, oneToOneFn)
	}

	return concurrentOneToOneFn(ctx, p, input, output, oneToOneFn)
}

// AddStepOneToOne adds a step mapping every input item to one output item.
func AddStepOneToOne[I any, O any](p *Pipeline, name string, input *Step[I], oneToOneFn func(context.Context, I) (O, error), opts ...StepOption[O]) (*Step[O], error) {
	if p == nil {
		return nil, ErrPipelineMustBeSet
	}
	if input == nil {
		return nil, ErrInputMustBeSet
	}

	output := make(chan O)
	step := &Step[O]{
		Details: &StepInfo{
			Type:       normalStepType,
			Name:       name,
			Concurrent: 1,
		},
		Output: output,
	}
	for _, opt := range opts {
		opt(step)
	}

	err := p.prepare(input.Details, step.Details)
	if err != nil {
		return nil, err
	}

	errC := make(chan error, 1)
	p.steps.watch(name, errC)
	p.goFn = append(p.goFn, func(ctx context.Context) {
		defer func() {
			close(errC)
			close(output)
		}()

		err := oneToOne(ctx, p, input, step, oneToOneFn)
		if err != nil {
			errC <- err
		}
	})

	return step, nil
}
