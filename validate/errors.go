package validate

import (
	"errors"
	"fmt"
)

// ErrInvalidSVG is the root of every validation failure.
var ErrInvalidSVG = errors.New("validate: invalid svg")

// Error describes why content was rejected.
type Error struct {
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("validate: invalid svg: %s", e.Reason)
}

// Unwrap returns ErrInvalidSVG.
func (e *Error) Unwrap() error {
	return ErrInvalidSVG
}

func reject(reason string) error {
	return &Error{Reason: reason}
}
