package experiment

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when an experiment id is unknown.
var ErrNotFound = errors.New("experiment not found")

// ConfigurationError reports an invalid experiment definition. It is always
// surfaced to the caller and never retried; no partial state is created.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid experiment configuration: %s", e.Reason)
}

// StateTransitionError reports an illegal lifecycle action, naming the
// transition that was refused.
type StateTransitionError struct {
	Reason string
}

func (e *StateTransitionError) Error() string { return e.Reason }

// InvalidOperationError reports an operation that is forbidden in the
// experiment's current state (e.g. deleting an active experiment).
type InvalidOperationError struct {
	Reason string
}

func (e *InvalidOperationError) Error() string { return e.Reason }
