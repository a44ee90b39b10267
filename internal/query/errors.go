package query

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned for a well-formed query that matches no data.
// Distinct from an unreadable store document.
var ErrNotFound = errors.New("no matching records")

// InputError marks a malformed or contradictory filter parameter. The API
// maps it to 400; it is never logged as a system fault.
type InputError struct {
	Param  string
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("parameter %s: %s", e.Param, e.Reason)
}

func badInput(param, reason string) error {
	return &InputError{Param: param, Reason: reason}
}

// IsInput reports whether err is a client input error.
func IsInput(err error) bool {
	var ie *InputError
	return errors.As(err, &ie)
}
