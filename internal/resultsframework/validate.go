package resultsframework

import (
	"errors"

	"trackhub/internal/model"
)

// Validate checks that every node id is non-empty and unique across the tree.
func Validate(rf model.ResultsFramework) error {
	seen := make(map[string]string)
	var errs []error

	check := func(kind, id string) {
		if id == "" {
			errs = append(errs, errors.New(kind+" with empty id"))
			return
		}
		if first, ok := seen[id]; ok {
			errs = append(errs, &DuplicateIDError{ID: id, First: first, Again: kind})
			return
		}
		seen[id] = kind
	}

	for _, obj := range rf.Objectives {
		check("objective", obj.ID)
		for _, oc := range obj.Outcomes {
			check("outcome", oc.ID)
			for _, ind := range oc.Indicators {
				check("indicator", ind.ID)
			}
			for _, op := range oc.Outputs {
				check("output", op.ID)
				for _, ind := range op.Indicators {
					check("indicator", ind.ID)
				}
			}
		}
	}
	return errors.Join(errs...)
}

// Count returns the number of nodes of each kind.
func Count(rf model.ResultsFramework) map[string]int {
	n := map[string]int{}
	for _, obj := range rf.Objectives {
		n["objective"]++
		for _, oc := range obj.Outcomes {
			n["outcome"]++
			n["indicator"] += len(oc.Indicators)
			for _, op := range oc.Outputs {
				n["output"]++
				n["indicator"] += len(op.Indicators)
			}
		}
	}
	return n
}
