package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"trackhub/internal/model"
	"trackhub/internal/overview"
	"trackhub/internal/tree"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func checkbox(done bool) string {
	if done {
		return "[x]"
	}
	return "[ ]"
}

func renderOverview(w io.Writer, ov overview.Overview) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PROJECT\tNAME\tMILESTONES\tDONE\tPROGRESS")
	for _, s := range ov.Projects {
		if s.Err != nil {
			fmt.Fprintf(tw, "%s\t%s\t-\t-\terror: %v\n", s.ProjectID, s.Name, s.Err)
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d%%\n",
			s.ProjectID, s.Name, s.MilestoneCount, s.CompletedMilestones, s.OverallProgress)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if ov.Failed > 0 {
		fmt.Fprintf(w, "%d of %d projects could not be loaded\n", ov.Failed, len(ov.Projects))
	}
	return nil
}

func renderTree(w io.Writer, store *tree.Store) {
	p := store.Project()
	fmt.Fprintf(w, "%s (%s)  %d%%\n", p.Name, p.ID, p.CompletionPercentage)
	for _, ms := range store.Milestones() {
		fmt.Fprintf(w, "  %s %s  %s %d%%\n", ms.ID, ms.Name, ms.Status, ms.Progress)
		for _, mod := range store.Modules(ms.ID) {
			fmt.Fprintf(w, "    %s %s  %s %d%%\n", mod.ID, mod.Name, mod.Status, mod.Progress)
			for _, f := range store.Features(mod.ID) {
				fmt.Fprintf(w, "      %s %s %s\n", checkbox(f.IsCompleted), f.ID, f.Name)
			}
		}
	}
}

func renderResultsFramework(w io.Writer, rf model.ResultsFramework) {
	if len(rf.Objectives) == 0 {
		fmt.Fprintln(w, "(no objectives)")
		return
	}
	for _, obj := range rf.Objectives {
		fmt.Fprintf(w, "Objective %s  %s\n", obj.ID, obj.Title)
		for _, oc := range obj.Outcomes {
			fmt.Fprintf(w, "  Outcome %s  %s\n", oc.ID, oc.Title)
			renderIndicators(w, "    ", oc.Indicators)
			for _, op := range oc.Outputs {
				fmt.Fprintf(w, "    Output %s  %s\n", op.ID, op.Title)
				renderIndicators(w, "      ", op.Indicators)
			}
		}
	}
}

func renderIndicators(w io.Writer, indent string, inds []model.Indicator) {
	for _, ind := range inds {
		line := fmt.Sprintf("%sIndicator %s  %s", indent, ind.ID, ind.Description)
		if ind.Baseline.Value != "" {
			line += fmt.Sprintf("  baseline %s %s", ind.Baseline.Value, ind.Baseline.Unit)
		}
		if len(ind.Disaggregation) > 0 {
			line += "  by " + strings.Join(ind.Disaggregation, ",")
		}
		fmt.Fprintln(w, strings.TrimRight(line, " "))
	}
}
