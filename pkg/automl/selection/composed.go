package selection

import (
	"context"

	"github.com/pkg/errors"

	"github.com/askiada/go-automl/pkg/automl/model"
)

// Composed chains selectors: every stage is fitted on the output of the previous one.
type Composed struct {
	stages []Selector
}

func NewComposed(stages ...Selector) *Composed {
	return &Composed{stages: stages}
}

func (c *Composed) Fit(ctx context.Context, ds *model.Dataset) error {
	cur := ds

	for i, s := range c.stages {
		err := s.Fit(ctx, cur)
		if err != nil {
			return errors.Wrapf(err, "unable to fit selection stage %d", i)
		}

		cur, err = s.Select(cur)
		if err != nil {
			return errors.Wrapf(err, "unable to apply selection stage %d", i)
		}
	}

	return nil
}

func (c *Composed) Selected() ([]string, error) {
	if len(c.stages) == 0 {
		return nil, ErrNotFitted
	}

	return c.stages[len(c.stages)-1].Selected()
}

func (c *Composed) Select(ds *model.Dataset) (*model.Dataset, error) {
	cur := ds

	for _, s := range c.stages {
		var err error

		cur, err = s.Select(cur)
		if err != nil {
			return nil, err
		}
	}

	return cur, nil
}

func (c *Composed) Describe() []Stage {
	var res []Stage
	for _, s := range c.stages {
		res = append(res, s.Describe()...)
	}

	return res
}

var _ Selector = (*Composed)(nil)
