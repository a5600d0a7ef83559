package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types shared by all implementations.
var (
	ErrWorkflowNotFound  = errors.New("workflow not found")
	ErrVersionNotFound   = errors.New("workflow version not found")
	ErrNoActiveVersion   = errors.New("workflow has no active version")
	ErrExecutionNotFound = errors.New("execution not found")
	ErrLogNotFound       = errors.New("execution log not found")
	ErrAccountNotFound   = errors.New("connected account not found")
)

// StoreError wraps a persistence failure with the operation and entity id.
type StoreError struct {
	Op  string
	ID  string
	Err error
}

func (e *StoreError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s failed for %s: %v", e.Op, e.ID, e.Err)
	}

	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func (e *StoreError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsNotFound reports whether err is any of the not-found sentinels.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound) ||
		errors.Is(err, ErrVersionNotFound) ||
		errors.Is(err, ErrNoActiveVersion) ||
		errors.Is(err, ErrExecutionNotFound) ||
		errors.Is(err, ErrLogNotFound) ||
		errors.Is(err, ErrAccountNotFound)
}
