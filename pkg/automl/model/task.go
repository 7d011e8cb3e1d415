package model

import (
	"sort"

	"github.com/pkg/errors"
)

// Task names.
const (
	Binary     = "binary"
	Regression = "reg"
	Multiclass = "multiclass"
)

// Model family groups a loss can be admissible for.
const (
	FamilyLGB    = "lgb"
	FamilyCB     = "cb"
	FamilyLinear = "linear_l2"
)

var (
	ErrUnknownTask = errors.New("unknown task name")
	ErrUnknownLoss = errors.New("unknown loss for task")
)

var defaultLoss = map[string]string{
	Binary:     "logloss",
	Regression: "mse",
	Multiclass: "crossentropy",
}

// lossFamilies lists which model families can optimise a given loss.
var lossFamilies = map[string][]string{
	"logloss":      {FamilyLGB, FamilyCB, FamilyLinear},
	"mse":          {FamilyLGB, FamilyCB, FamilyLinear},
	"crossentropy": {FamilyLGB, FamilyCB, FamilyLinear},
	"mae":          {FamilyLGB, FamilyCB},
	"quantile":     {FamilyLGB, FamilyCB},
	"huber":        {FamilyLGB},
	"fair":         {FamilyLGB},
}

var taskLosses = map[string][]string{
	Binary:     {"logloss"},
	Regression: {"mse", "mae", "quantile", "huber", "fair"},
	Multiclass: {"crossentropy"},
}

// Task identifies the learning objective and the model families admissible for its loss.
// A Task is immutable once built.
type Task struct {
	name   string
	loss   string
	losses map[string]struct{}
}

// TaskOption configures a Task.
type TaskOption func(t *Task) error

// WithLoss selects the loss of the task. Admissible families follow the loss.
func WithLoss(loss string) TaskOption {
	return func(t *Task) error {
		for _, l := range taskLosses[t.name] {
			if l == loss {
				t.loss = loss
				t.losses = familySet(lossFamilies[loss])

				return nil
			}
		}

		return errors.Wrapf(ErrUnknownLoss, "%s for %s", loss, t.name)
	}
}

// WithLosses overrides the set of admissible model families.
func WithLosses(families ...string) TaskOption {
	return func(t *Task) error {
		t.losses = familySet(families)

		return nil
	}
}

// NewTask creates a task. The loss defaults to the canonical loss of the task name.
func NewTask(name string, opts ...TaskOption) (*Task, error) {
	loss, ok := defaultLoss[name]
	if !ok {
		return nil, errors.Wrap(ErrUnknownTask, name)
	}

	task := &Task{
		name:   name,
		loss:   loss,
		losses: familySet(lossFamilies[loss]),
	}

	for _, opt := range opts {
		err := opt(task)
		if err != nil {
			return nil, errors.Wrap(err, "unable to apply task option")
		}
	}

	return task, nil
}

func familySet(families []string) map[string]struct{} {
	set := make(map[string]struct{}, len(families))
	for _, f := range families {
		set[f] = struct{}{}
	}

	return set
}

// Name returns the task name.
func (t *Task) Name() string { return t.name }

// Loss returns the loss name.
func (t *Task) Loss() string { return t.loss }

// Admits reports whether the model family can be trained for this task.
func (t *Task) Admits(family string) bool {
	_, ok := t.losses[family]

	return ok
}

// Losses returns the admissible model families in sorted order.
func (t *Task) Losses() []string {
	res := make([]string, 0, len(t.losses))
	for f := range t.losses {
		res = append(res, f)
	}

	sort.Strings(res)

	return res
}

// IsClassification reports whether predictions are class probabilities.
func (t *Task) IsClassification() bool {
	return t.name == Binary || t.name == Multiclass
}
