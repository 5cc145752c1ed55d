package eventloop

import (
	"errors"
	"fmt"
)

// ErrInvariant is returned by Run when an internal self-check failed.
var ErrInvariant = errors.New("assertion failure")

// InvariantError carries the failed check through the unwind.
type InvariantError struct {
	Msg string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("%v: %s", ErrInvariant, e.Msg)
}

func (e *InvariantError) Unwrap() error {
	return ErrInvariant
}

// Invariant panics with an *InvariantError when cond is false. Run recovers
// it; nothing else should.
func Invariant(cond bool, format string, args ...any) {
	if cond {
		return
	}
	panic(&InvariantError{Msg: fmt.Sprintf(format, args...)})
}
