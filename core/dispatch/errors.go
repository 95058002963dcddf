package dispatch

import (
	"errors"
	"fmt"

	"github.com/mozocode/On-The-Way-Rebuild/core/store"
)

var (
	// ErrValidation reports missing or malformed caller input.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound reports a missing job, hero or customer. It is the store
	// sentinel so both match with errors.Is.
	ErrNotFound = store.ErrNotFound
	// ErrPreconditionFailed reports a job or hero in the wrong state for the
	// requested operation.
	ErrPreconditionFailed = errors.New("precondition failed")
	// ErrTransientIO reports a failed store or messaging call.
	ErrTransientIO = errors.New("transient i/o failure")

	ErrAlreadyAssigned    = fmt.Errorf("%w: job already assigned", ErrPreconditionFailed)
	ErrWorkerBusy         = fmt.Errorf("%w: hero already bound to a job", ErrPreconditionFailed)
	ErrAlreadyDispatching = fmt.Errorf("%w: dispatch already running", ErrPreconditionFailed)
	ErrInvalidTransition  = fmt.Errorf("%w: invalid status transition", ErrPreconditionFailed)
	ErrEngineClosed       = fmt.Errorf("%w: dispatch engine closed", ErrPreconditionFailed)
)

// classify leaves domain errors untouched and marks everything else as
// transient I/O.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrValidation) || errors.Is(err, ErrNotFound) || errors.Is(err, ErrPreconditionFailed) {
		return err
	}
	return fmt.Errorf("%s: %w: %v", op, ErrTransientIO, err)
}

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
