package coordinator

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by operations on a coordinator that has shut down.
var ErrClosed = errors.New("coordinator closed")

// ErrAlreadyStarted is returned by a second call to Start.
var ErrAlreadyStarted = errors.New("coordinator already started")

// UpdateFailedError reports a cycle whose data fetch failed. The previous
// snapshot stays published; Err is the device error that caused it.
type UpdateFailedError struct {
	Host   string
	Cycle  uint64
	Forced bool
	Err    error
}

func (e *UpdateFailedError) Error() string {
	return fmt.Sprintf("update failed for %s (cycle %d): %v", e.Host, e.Cycle, e.Err)
}

func (e *UpdateFailedError) Unwrap() error {
	return e.Err
}

