package config

import (
	"github.com/pkg/errors"
)

// ErrConfig matches every configuration error.
var ErrConfig = errors.New("invalid configuration")

// Error names the configuration key that could not be applied.
type Error struct {
	Path   string
	Reason string
}

func (e *Error) Error() string {
	return "config " + e.Path + ": " + e.Reason
}

// Is makes errors.Is(err, ErrConfig) hold for every *Error.
func (e *Error) Is(target error) bool {
	return target == ErrConfig
}

func newError(path, reason string) error {
	return &Error{Path: path, Reason: reason}
}
