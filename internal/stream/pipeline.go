package stream

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"k8s.io/utils/clock"
)

var (
	ErrPipelineMustBeSet = errors.New("pipeline must be set")
	ErrInputMustBeSet    = errors.New("input step must be set")
)

// stepErrors holds the error channel of every step, in the order the steps were added.
type stepErrors struct {
	mu    sync.Mutex
	names []string
	chans []<-chan error
}

func (s *stepErrors) watch(name string, errc <-chan error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.names = append(s.names, name)
	s.chans = append(s.chans, errc)
}

// first returns the first error any step reports, prefixed with the step name.
// It returns nil once every channel is closed without an error.
func (s *stepErrors) first() error {
	s.mu.Lock()
	names, chans := s.names, s.chans
	s.mu.Unlock()

	// only the first error is read, later ones are dropped so no reader blocks
	failed := make(chan error, 1)

	var wg sync.WaitGroup

	for i, errc := range chans {
		if errc == nil {
			continue
		}

		wg.Add(1)

		go func() {
			defer wg.Done()

			for err := range errc {
				if err == nil {
					continue
				}

				select {
				case failed <- errors.Wrapf(err, "step %s", names[i]):
				default:
				}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(failed)
	}()

	return <-failed
}

// Pipeline is a pipeline of steps. Steps only start when Run is called.
type Pipeline struct {
	steps     stepErrors
	opts      []PipelineOption
	clock     clock.PassiveClock
	startTime time.Time
	goFn      []func(ctx context.Context)
}

// New creates a new pipeline.
func New(opts ...PipelineOption) (*Pipeline, error) {
	return NewWithClock(clock.RealClock{}, opts...)
}

// NewWithClock creates a pipeline measuring durations with clk.
func NewWithClock(clk clock.PassiveClock, opts ...PipelineOption) (*Pipeline, error) {
	pipe := &Pipeline{
		clock:     clk,
		startTime: clk.Now(),
		opts:      opts,
	}

	for _, opt := range opts {
		err := opt.New()
		if err != nil {
			return nil, errors.Wrap(err, "unable to apply pipeline option")
		}
	}

	return pipe, nil
}

// Run starts the pipeline and waits for it to finish.
func (p *Pipeline) Run(ctx context.Context) error {
	dCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	for _, fn := range p.goFn {
		go fn(dCtx)
	}

	// the first failing step ends the run, the deferred cancel stops the others
	err := p.steps.first()
	if err != nil {
		return err
	}

	return p.finishRun()
}

func (p *Pipeline) finishRun() error {
	for _, opt := range p.opts {
		err := opt.Finish()
		if err != nil {
			return errors.Wrap(err, "unable to finish pipeline option")
		}
	}

	return nil
}

func (p *Pipeline) prepare(parent, step *StepInfo) error {
	for _, opt := range p.opts {
		err := opt.PrepareStep(parent, step)
		if err != nil {
			return errors.Wrap(err, "unable to run before step function")
		}
	}

	return nil
}

func (p *Pipeline) onOutput(parent, step *StepInfo, iteration, computation time.Duration) error {
	for _, opt := range p.opts {
		err := opt.OnStepOutput(parent, step, iteration, computation)
		if err != nil {
			return errors.Wrap(err, "unable to run on step output function")
		}
	}

	return nil
}
