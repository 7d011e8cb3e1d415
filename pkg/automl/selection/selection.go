// Package selection prunes input features before the level models see them.
//
// A selector trains its own model on a holdout split, estimates per-feature importance
// and keeps the useful features. Selectors compose sequentially. Columns a selector never
// saw at fit time, such as predictions of a previous level, pass through untouched.
package selection

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/askiada/go-automl/pkg/automl/model"
	"github.com/askiada/go-automl/pkg/automl/timer"
)

var ErrNotFitted = errors.New("selector is not fitted")

// Selector learns a subset of features.
type Selector interface {
	Fit(ctx context.Context, ds *model.Dataset) error
	// Selected returns the kept features in input order.
	Selected() ([]string, error)
	// Select drops the fitted features that were not kept.
	Select(ds *model.Dataset) (*model.Dataset, error)
	// Describe lists the stages and their settings.
	Describe() []Stage
}

// Stage is the static description of one selection stage.
type Stage struct {
	Kind         string
	Model        string
	TimerKey     string
	TimerScore   float64
	Importance   string
	Cutoff       float64
	FitOnHoldout bool
	GroupSize    int
	MaxFeatures  int
}

// fitted is the state shared by every selector once trained.
type fitted struct {
	inputs   map[string]struct{}
	selected []string
}

func newFitted(inputs, selected []string) *fitted {
	set := make(map[string]struct{}, len(inputs))
	for _, f := range inputs {
		set[f] = struct{}{}
	}

	return &fitted{inputs: set, selected: selected}
}

func (f *fitted) apply(ds *model.Dataset) (*model.Dataset, error) {
	if f == nil {
		return nil, ErrNotFitted
	}

	keep := make(map[string]struct{}, len(f.selected))
	for _, s := range f.selected {
		keep[s] = struct{}{}
	}

	names := make([]string, 0, len(ds.Features))

	for _, c := range ds.Features {
		_, seen := f.inputs[c]
		_, kept := keep[c]

		if kept || !seen {
			names = append(names, c)
		}
	}

	return ds.Select(names)
}

// holdout returns the train and validation rows of a selection fit.
// With fitOnHoldout the first outer fold is held out, otherwise the model is scored on its own train rows.
func holdout(ds *model.Dataset, fitOnHoldout bool) (train, valid *model.Dataset) {
	ids := ds.FoldIDs()

	if !fitOnHoldout {
		return ds, ds
	}

	if len(ids) >= 2 {
		tr, va := ds.Split(ids[0])

		return ds.Rows(tr), ds.Rows(va)
	}

	var tr, va []int

	for i := 0; i < ds.Len(); i++ {
		if i%5 == 4 {
			va = append(va, i)
		} else {
			tr = append(tr, i)
		}
	}

	return ds.Rows(tr), ds.Rows(va)
}

// Shared makes a selector fit only once. Later Fit calls return the first result,
// so several pipelines can hold the same selector and pay for it once.
func Shared(sel Selector) Selector {
	if sel == nil {
		return nil
	}

	if _, ok := sel.(*shared); ok {
		return sel
	}

	return &shared{Selector: sel}
}

type shared struct {
	Selector
	mu   sync.Mutex
	done bool
	err  error
}

func (s *shared) Fit(ctx context.Context, ds *model.Dataset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done {
		return s.err
	}

	s.err = s.Selector.Fit(ctx, ds)
	s.done = true

	return s.err
}

// startTimer starts tt and bounds the budgeted model by its allotment.
func startTimer(tt *timer.TaskTimer, m model.Model) func() {
	if tt == nil {
		return func() {}
	}

	tt.Start()

	if b, ok := m.(model.Budgeted); ok {
		b.SetBudget(tt.TimeLeft())
	}

	return tt.Stop
}
