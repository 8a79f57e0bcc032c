package costing

import (
	"errors"
	"fmt"
)

// ErrInvalidInput is the single failure class of the calculator.
var ErrInvalidInput = errors.New("costing: invalid input")

// InputError describes one rejected input field.
type InputError struct {
	Field  string
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("costing: %s %s", e.Field, e.Reason)
}

// Unwrap lets errors.Is match ErrInvalidInput.
func (e *InputError) Unwrap() error {
	return ErrInvalidInput
}

// FieldErrors flattens err into the InputErrors it carries, following both
// wrapped and joined errors.
func FieldErrors(err error) []*InputError {
	switch e := err.(type) {
	case nil:
		return nil
	case *InputError:
		return []*InputError{e}
	case interface{ Unwrap() []error }:
		var out []*InputError
		for _, inner := range e.Unwrap() {
			out = append(out, FieldErrors(inner)...)
		}
		return out
	case interface{ Unwrap() error }:
		return FieldErrors(e.Unwrap())
	default:
		return nil
	}
}

// Prefixed qualifies the field of every InputError carried by err and returns err.
func Prefixed(prefix string, err error) error {
	for _, f := range FieldErrors(err) {
		f.Field = prefix + f.Field
	}
	return err
}

// FieldProblems renders the InputErrors carried by err keyed by field.
func FieldProblems(err error) map[string]string {
	fields := FieldErrors(err)
	if len(fields) == 0 {
		return nil
	}
	out := make(map[string]string, len(fields))
	for _, f := range fields {
		out[f.Field] = f.Reason
	}
	return out
}
