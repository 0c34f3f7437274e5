package domain

import "errors"

var (
	// ErrTransient marks faults expected to clear on retry (deadlines, dropped connections, throttling).
	ErrTransient = errors.New("transient fault")
	// ErrNotFound marks a locator that points at nothing; retrying will not help.
	ErrNotFound = errors.New("not found")
)

// TransientError wraps err so that errors.Is(err, ErrTransient) holds.
func TransientError(err error) error {
	if err == nil {
		return nil
	}
	return &faultError{kind: ErrTransient, err: err}
}

type faultError struct {
	kind error
	err  error
}

func (e *faultError) Error() string {
	return e.err.Error()
}

func (e *faultError) Unwrap() []error {
	return []error{e.kind, e.err}
}
