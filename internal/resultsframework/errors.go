package resultsframework

import (
	"errors"
	"fmt"
	"strings"
)

// ErrPathNotFound is wrapped by every *PathError.
var ErrPathNotFound = errors.New("path not found")

// PathError reports an edit whose ancestor path or target id did not resolve.
// The tree is returned unchanged alongside it.
type PathError struct {
	Op      string
	Path    []string // "kind:id" steps from the root down to the target
	Missing string   // the first step that did not resolve
}

func (e *PathError) Error() string {
	return fmt.Sprintf("%s: %s not found (path %s)", e.Op, e.Missing, strings.Join(e.Path, " > "))
}

func (e *PathError) Unwrap() error {
	return ErrPathNotFound
}

// DuplicateIDError is returned by Validate when two nodes share an id.
type DuplicateIDError struct {
	ID    string
	First string // "kind" of the first node seen with ID
	Again string
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("duplicate id %s on %s and %s", e.ID, e.First, e.Again)
}
