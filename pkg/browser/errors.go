package browser

import (
	"errors"
	"fmt"
)

var (
	// ErrInitialization is returned when the browser engine cannot start
	// (launch failure, missing binary, resource exhaustion). Fatal for Browse.
	ErrInitialization = errors.New("browser failed to initialize")

	// ErrUnavailable is returned when a step targets an environment that was
	// never started or has been closed.
	ErrUnavailable = errors.New("browser is not available")

	// ErrTimeout is returned when the engine does not answer a step in time.
	ErrTimeout = errors.New("browser operation timed out")

	// ErrUnsupportedAction is returned by Browse for actions it cannot
	// dispatch. Callers should treat it as a programming error.
	ErrUnsupportedAction = errors.New("unsupported browser action")
)

// StepError wraps a failure of a single engine step.
type StepError struct {
	Op  string
	Err error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("browser %s: %v", e.Op, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is a per-step failure that Browse turns
// into an error observation instead of returning.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrUnavailable) || errors.Is(err, ErrTimeout)
}
