// Package resultsframework edits the Objective > Outcome > Output > Indicator
// planning tree of a project.
//
// Every operation takes a tree by value and returns a new one; the input is
// never modified. When any id on the way to the target does not resolve the
// input is returned as is, together with a *PathError.
package resultsframework

import (
	"slices"

	"github.com/google/uuid"

	"trackhub/internal/model"
)

// NewID generates node ids. Tests may replace it.
var NewID = uuid.NewString

type ObjectivePatch struct {
	Title       *string
	Description *string
}

type OutcomePatch struct {
	Title       *string
	Description *string
}

type OutputPatch struct {
	Title       *string
	Description *string
}

// IndicatorPatch updates the non-nil fields of an indicator.
// Disaggregation replaces the whole set.
type IndicatorPatch struct {
	Description      *string
	Baseline         *model.Baseline
	MonitoringMethod *string
	Targets          *model.Targets
	TargetUnit       *string
	Frequency        *string
	DataSource       *string
	Disaggregation   *[]string
	Comments         *string
}

func set(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func (p ObjectivePatch) apply(o *model.Objective) {
	set(&o.Title, p.Title)
	set(&o.Description, p.Description)
}

func (p OutcomePatch) apply(o *model.Outcome) {
	set(&o.Title, p.Title)
	set(&o.Description, p.Description)
}

func (p OutputPatch) apply(o *model.Output) {
	set(&o.Title, p.Title)
	set(&o.Description, p.Description)
}

func (p IndicatorPatch) apply(ind *model.Indicator) {
	set(&ind.Description, p.Description)
	if p.Baseline != nil {
		ind.Baseline = *p.Baseline
	}
	set(&ind.MonitoringMethod, p.MonitoringMethod)
	if p.Targets != nil {
		ind.Targets = *p.Targets
	}
	set(&ind.TargetUnit, p.TargetUnit)
	set(&ind.Frequency, p.Frequency)
	set(&ind.DataSource, p.DataSource)
	if p.Disaggregation != nil {
		ind.Disaggregation = normalizeSet(*p.Disaggregation)
	}
	set(&ind.Comments, p.Comments)
}

func newIndicator() model.Indicator {
	return model.Indicator{ID: NewID(), Disaggregation: []string{}}
}

// target holds pointers into a cloned tree.
type target struct {
	objective *model.Objective
	outcome   *model.Outcome
	output    *model.Output
}

var levels = [...]string{"objective", "outcome", "output"}

// resolve walks ids (objective, outcome, output, in that order) down rf.
func resolve(rf *model.ResultsFramework, op string, ids ...string) (target, error) {
	var t target
	path := make([]string, len(ids))
	for i, id := range ids {
		path[i] = levels[i] + ":" + id
	}
	missing := func(i int) error {
		return &PathError{Op: op, Path: path, Missing: path[i]}
	}

	for i, id := range ids {
		switch i {
		case 0:
			idx := slices.IndexFunc(rf.Objectives, func(o model.Objective) bool { return o.ID == id })
			if idx < 0 {
				return t, missing(i)
			}
			t.objective = &rf.Objectives[idx]
		case 1:
			idx := slices.IndexFunc(t.objective.Outcomes, func(o model.Outcome) bool { return o.ID == id })
			if idx < 0 {
				return t, missing(i)
			}
			t.outcome = &t.objective.Outcomes[idx]
		case 2:
			idx := slices.IndexFunc(t.outcome.Outputs, func(o model.Output) bool { return o.ID == id })
			if idx < 0 {
				return t, missing(i)
			}
			t.output = &t.outcome.Outputs[idx]
		}
	}
	return t, nil
}

func indicatorMissing(op string, ids []string, indicatorID string) error {
	path := make([]string, 0, len(ids)+1)
	for i, id := range ids {
		path = append(path, levels[i]+":"+id)
	}
	step := "indicator:" + indicatorID
	return &PathError{Op: op, Path: append(path, step), Missing: step}
}

func indexOfIndicator(inds []model.Indicator, id string) int {
	return slices.IndexFunc(inds, func(ind model.Indicator) bool { return ind.ID == id })
}

// AddObjective appends an empty objective and returns its id.
func AddObjective(rf model.ResultsFramework) (model.ResultsFramework, string) {
	out := Clone(rf)
	obj := model.Objective{ID: NewID(), Outcomes: []model.Outcome{}}
	out.Objectives = append(out.Objectives, obj)
	return out, obj.ID
}

func UpdateObjective(rf model.ResultsFramework, objID string, patch ObjectivePatch) (model.ResultsFramework, error) {
	out := Clone(rf)
	t, err := resolve(&out, "update_objective", objID)
	if err != nil {
		return rf, err
	}
	patch.apply(t.objective)
	return out, nil
}

// RemoveObjective removes an objective and everything under it.
func RemoveObjective(rf model.ResultsFramework, objID string) (model.ResultsFramework, error) {
	out := Clone(rf)
	idx := slices.IndexFunc(out.Objectives, func(o model.Objective) bool { return o.ID == objID })
	if idx < 0 {
		step := "objective:" + objID
		return rf, &PathError{Op: "remove_objective", Path: []string{step}, Missing: step}
	}
	out.Objectives = slices.Delete(out.Objectives, idx, idx+1)
	return out, nil
}

func AddOutcome(rf model.ResultsFramework, objID string) (model.ResultsFramework, string, error) {
	out := Clone(rf)
	t, err := resolve(&out, "add_outcome", objID)
	if err != nil {
		return rf, "", err
	}
	oc := model.Outcome{ID: NewID(), Indicators: []model.Indicator{}, Outputs: []model.Output{}}
	t.objective.Outcomes = append(t.objective.Outcomes, oc)
	return out, oc.ID, nil
}

func UpdateOutcome(rf model.ResultsFramework, objID, outcomeID string, patch OutcomePatch) (model.ResultsFramework, error) {
	out := Clone(rf)
	t, err := resolve(&out, "update_outcome", objID, outcomeID)
	if err != nil {
		return rf, err
	}
	patch.apply(t.outcome)
	return out, nil
}

// RemoveOutcome removes an outcome with its indicators and outputs.
func RemoveOutcome(rf model.ResultsFramework, objID, outcomeID string) (model.ResultsFramework, error) {
	out := Clone(rf)
	t, err := resolve(&out, "remove_outcome", objID, outcomeID)
	if err != nil {
		return rf, err
	}
	idx := slices.IndexFunc(t.objective.Outcomes, func(o model.Outcome) bool { return o.ID == outcomeID })
	t.objective.Outcomes = slices.Delete(t.objective.Outcomes, idx, idx+1)
	return out, nil
}

func AddOutput(rf model.ResultsFramework, objID, outcomeID string) (model.ResultsFramework, string, error) {
	out := Clone(rf)
	t, err := resolve(&out, "add_output", objID, outcomeID)
	if err != nil {
		return rf, "", err
	}
	op := model.Output{ID: NewID(), Indicators: []model.Indicator{}}
	t.outcome.Outputs = append(t.outcome.Outputs, op)
	return out, op.ID, nil
}

func UpdateOutput(rf model.ResultsFramework, objID, outcomeID, outputID string, patch OutputPatch) (model.ResultsFramework, error) {
	out := Clone(rf)
	t, err := resolve(&out, "update_output", objID, outcomeID, outputID)
	if err != nil {
		return rf, err
	}
	patch.apply(t.output)
	return out, nil
}

func RemoveOutput(rf model.ResultsFramework, objID, outcomeID, outputID string) (model.ResultsFramework, error) {
	out := Clone(rf)
	t, err := resolve(&out, "remove_output", objID, outcomeID, outputID)
	if err != nil {
		return rf, err
	}
	idx := slices.IndexFunc(t.outcome.Outputs, func(o model.Output) bool { return o.ID == outputID })
	t.outcome.Outputs = slices.Delete(t.outcome.Outputs, idx, idx+1)
	return out, nil
}

func AddOutcomeIndicator(rf model.ResultsFramework, objID, outcomeID string) (model.ResultsFramework, string, error) {
	out := Clone(rf)
	t, err := resolve(&out, "add_outcome_indicator", objID, outcomeID)
	if err != nil {
		return rf, "", err
	}
	ind := newIndicator()
	t.outcome.Indicators = append(t.outcome.Indicators, ind)
	return out, ind.ID, nil
}

func UpdateOutcomeIndicator(rf model.ResultsFramework, objID, outcomeID, indicatorID string, patch IndicatorPatch) (model.ResultsFramework, error) {
	const op = "update_outcome_indicator"
	out := Clone(rf)
	t, err := resolve(&out, op, objID, outcomeID)
	if err != nil {
		return rf, err
	}
	idx := indexOfIndicator(t.outcome.Indicators, indicatorID)
	if idx < 0 {
		return rf, indicatorMissing(op, []string{objID, outcomeID}, indicatorID)
	}
	patch.apply(&t.outcome.Indicators[idx])
	return out, nil
}

func RemoveOutcomeIndicator(rf model.ResultsFramework, objID, outcomeID, indicatorID string) (model.ResultsFramework, error) {
	const op = "remove_outcome_indicator"
	out := Clone(rf)
	t, err := resolve(&out, op, objID, outcomeID)
	if err != nil {
		return rf, err
	}
	idx := indexOfIndicator(t.outcome.Indicators, indicatorID)
	if idx < 0 {
		return rf, indicatorMissing(op, []string{objID, outcomeID}, indicatorID)
	}
	t.outcome.Indicators = slices.Delete(t.outcome.Indicators, idx, idx+1)
	return out, nil
}

func AddOutputIndicator(rf model.ResultsFramework, objID, outcomeID, outputID string) (model.ResultsFramework, string, error) {
	out := Clone(rf)
	t, err := resolve(&out, "add_output_indicator", objID, outcomeID, outputID)
	if err != nil {
		return rf, "", err
	}
	ind := newIndicator()
	t.output.Indicators = append(t.output.Indicators, ind)
	return out, ind.ID, nil
}

func UpdateOutputIndicator(rf model.ResultsFramework, objID, outcomeID, outputID, indicatorID string, patch IndicatorPatch) (model.ResultsFramework, error) {
	const op = "update_output_indicator"
	out := Clone(rf)
	t, err := resolve(&out, op, objID, outcomeID, outputID)
	if err != nil {
		return rf, err
	}
	idx := indexOfIndicator(t.output.Indicators, indicatorID)
	if idx < 0 {
		return rf, indicatorMissing(op, []string{objID, outcomeID, outputID}, indicatorID)
	}
	patch.apply(&t.output.Indicators[idx])
	return out, nil
}

func RemoveOutputIndicator(rf model.ResultsFramework, objID, outcomeID, outputID, indicatorID string) (model.ResultsFramework, error) {
	const op = "remove_output_indicator"
	out := Clone(rf)
	t, err := resolve(&out, op, objID, outcomeID, outputID)
	if err != nil {
		return rf, err
	}
	idx := indexOfIndicator(t.output.Indicators, indicatorID)
	if idx < 0 {
		return rf, indicatorMissing(op, []string{objID, outcomeID, outputID}, indicatorID)
	}
	t.output.Indicators = slices.Delete(t.output.Indicators, idx, idx+1)
	return out, nil
}
