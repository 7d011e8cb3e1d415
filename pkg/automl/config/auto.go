package config

import (
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const autoValue = "auto"

// ErrUnresolvedAuto is returned when an "auto" option is read before inference resolved it.
var ErrUnresolvedAuto = errors.New("option is still auto")

// Auto is an option that is either a fixed value or "auto", resolved at fit time.
type Auto[T any] struct {
	value T
	fixed bool
}

// Fixed returns a resolved option.
func Fixed[T any](v T) Auto[T] {
	return Auto[T]{value: v, fixed: true}
}

// IsAuto reports whether the option still waits for inference.
func (a Auto[T]) IsAuto() bool { return !a.fixed }

// Value returns the resolved value.
func (a Auto[T]) Value() (T, error) {
	if !a.fixed {
		var zero T

		return zero, ErrUnresolvedAuto
	}

	return a.value, nil
}

// Resolve fixes the option to v if it is still auto.
func (a *Auto[T]) Resolve(v T) {
	if a.fixed {
		return
	}

	a.value = v
	a.fixed = true
}

func (a *Auto[T]) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode && node.Value == autoValue {
		var zero T

		a.value = zero
		a.fixed = false

		return nil
	}

	var v T

	err := node.Decode(&v)
	if err != nil {
		return errors.Wrap(err, "unable to decode option")
	}

	a.value = v
	a.fixed = true

	return nil
}

func (a Auto[T]) MarshalYAML() (any, error) {
	if !a.fixed {
		return autoValue, nil
	}

	return a.value, nil
}
