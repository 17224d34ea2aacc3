package resultsframework

import "trackhub/internal/model"

// Clone deep-copies a results framework. Nil slices come back empty so the
// copy always encodes as arrays.
func Clone(rf model.ResultsFramework) model.ResultsFramework {
	out := model.ResultsFramework{Objectives: make([]model.Objective, len(rf.Objectives))}
	for i, obj := range rf.Objectives {
		out.Objectives[i] = cloneObjective(obj)
	}
	return out
}

func cloneObjective(obj model.Objective) model.Objective {
	outcomes := make([]model.Outcome, len(obj.Outcomes))
	for i, oc := range obj.Outcomes {
		outcomes[i] = cloneOutcome(oc)
	}
	obj.Outcomes = outcomes
	return obj
}

func cloneOutcome(oc model.Outcome) model.Outcome {
	oc.Indicators = cloneIndicators(oc.Indicators)
	outputs := make([]model.Output, len(oc.Outputs))
	for i, op := range oc.Outputs {
		op.Indicators = cloneIndicators(op.Indicators)
		outputs[i] = op
	}
	oc.Outputs = outputs
	return oc
}

func cloneIndicators(in []model.Indicator) []model.Indicator {
	out := make([]model.Indicator, len(in))
	for i, ind := range in {
		ind.Disaggregation = normalizeSet(ind.Disaggregation)
		out[i] = ind
	}
	return out
}

// normalizeSet drops duplicates and keeps first-seen order.
func normalizeSet(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
