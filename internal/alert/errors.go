package alert

import "errors"

var (
	// ErrNotFound means the id does not resolve inside the caller's scope.
	// Rows owned by another tenant are reported the same way.
	ErrNotFound = errors.New("alert not found")

	// ErrInvalidTransition means the mutation is not allowed from the
	// alert's current status.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrSnoozeLimitExceeded means the alert already used all of its snoozes.
	ErrSnoozeLimitExceeded = errors.New("snooze limit exceeded")

	// ErrValidation means the request arguments were rejected.
	ErrValidation = errors.New("validation failed")

	// ErrConflict means the alert changed between read and conditional write.
	ErrConflict = errors.New("alert was modified concurrently")

	// ErrTransientIO means the backing store or change feed is unavailable.
	ErrTransientIO = errors.New("backing store unavailable")
)
