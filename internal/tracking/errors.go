package tracking

import (
	"errors"
	"fmt"
)

var (
	// ErrNodeNotFound is returned for an id the loaded tree does not contain.
	ErrNodeNotFound = errors.New("node not found")

	// ErrNothingToUndo is returned by Undo when no confirmed mutation is recorded.
	ErrNothingToUndo = errors.New("nothing to undo")

	// ErrNotLoaded is returned when no project has been loaded into the engine.
	ErrNotLoaded = errors.New("no project loaded")
)

// MutationError reports a remote write that failed after the local tree was
// already updated. Reverted tells whether the local change was compensated.
type MutationError struct {
	Op       string
	NodeID   string
	Cause    error
	Reverted bool
}

func (e *MutationError) Error() string {
	state := "local state kept"
	if e.Reverted {
		state = "local state reverted"
	}
	return fmt.Sprintf("%s (node %s): %s: %v", e.Op, e.NodeID, state, e.Cause)
}

func (e *MutationError) Unwrap() error {
	return e.Cause
}
