package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"trackhub/internal/model"
	rf "trackhub/internal/resultsframework"
)

func (a *app) rfCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rf",
		Short: "View and edit a project's results framework",
	}
	cmd.AddCommand(
		a.rfShowCmd(),
		a.rfAddObjectiveCmd(),
		a.rfAddOutcomeCmd(),
		a.rfAddOutputCmd(),
		a.rfAddIndicatorCmd(),
		a.rfRemoveCmd(),
	)
	return cmd
}

// edit loads the session, applies one edit and saves the whole tree.
func (a *app) edit(cmd *cobra.Command, projectID string, op rf.Op) (model.ResultsFramework, error) {
	ctx, cancel, _, gw, err := a.session(cmd)
	if err != nil {
		return model.ResultsFramework{}, err
	}
	defer cancel()
	return a.editWith(ctx, rf.NewSession(projectID, gw, a.log), op)
}

func (a *app) editWith(ctx context.Context, sess *rf.Session, op rf.Op) (model.ResultsFramework, error) {
	if err := sess.Load(ctx); err != nil {
		return model.ResultsFramework{}, err
	}
	if err := sess.Apply(op); err != nil {
		return model.ResultsFramework{}, err
	}
	if err := sess.Save(ctx); err != nil {
		return model.ResultsFramework{}, err
	}
	return sess.Tree(), nil
}

func (a *app) reportAdded(kind, id string) error {
	s, err := a.settings()
	if err != nil {
		return err
	}
	if s.JSON {
		return printJSON(a.out, map[string]string{"kind": kind, "id": id})
	}
	fmt.Fprintf(a.out, "added %s %s\n", kind, id)
	return nil
}

func (a *app) rfShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <projectID>",
		Short: "Print the results framework",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel, s, gw, err := a.session(cmd)
			if err != nil {
				return err
			}
			defer cancel()

			sess := rf.NewSession(args[0], gw, a.log)
			if err := sess.Load(ctx); err != nil {
				return err
			}
			tree := sess.Tree()
			if s.JSON {
				return printJSON(a.out, tree)
			}
			renderResultsFramework(a.out, tree)
			n := rf.Count(tree)
			fmt.Fprintf(a.out, "%d objectives, %d outcomes, %d outputs, %d indicators\n",
				n["objective"], n["outcome"], n["output"], n["indicator"])
			return nil
		},
	}
}

func optional(cmd *cobra.Command, name string, v string) *string {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	return &v
}

func (a *app) rfAddObjectiveCmd() *cobra.Command {
	var title, desc string
	cmd := &cobra.Command{
		Use:   "add-objective <projectID>",
		Short: "Append an objective",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var id string
			_, err := a.edit(cmd, args[0], func(t model.ResultsFramework) (model.ResultsFramework, error) {
				t, id = rf.AddObjective(t)
				return rf.UpdateObjective(t, id, rf.ObjectivePatch{
					Title:       optional(cmd, "title", title),
					Description: optional(cmd, "description", desc),
				})
			})
			if err != nil {
				return err
			}
			return a.reportAdded("objective", id)
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "objective title")
	cmd.Flags().StringVar(&desc, "description", "", "objective description")
	return cmd
}

func (a *app) rfAddOutcomeCmd() *cobra.Command {
	var title, desc string
	cmd := &cobra.Command{
		Use:   "add-outcome <projectID> <objectiveID>",
		Short: "Append an outcome to an objective",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			objID := args[1]
			var id string
			_, err := a.edit(cmd, args[0], func(t model.ResultsFramework) (model.ResultsFramework, error) {
				t, newID, err := rf.AddOutcome(t, objID)
				if err != nil {
					return t, err
				}
				id = newID
				return rf.UpdateOutcome(t, objID, id, rf.OutcomePatch{
					Title:       optional(cmd, "title", title),
					Description: optional(cmd, "description", desc),
				})
			})
			if err != nil {
				return err
			}
			return a.reportAdded("outcome", id)
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "outcome title")
	cmd.Flags().StringVar(&desc, "description", "", "outcome description")
	return cmd
}

func (a *app) rfAddOutputCmd() *cobra.Command {
	var title, desc string
	cmd := &cobra.Command{
		Use:   "add-output <projectID> <objectiveID> <outcomeID>",
		Short: "Append an output to an outcome",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			objID, outcomeID := args[1], args[2]
			var id string
			_, err := a.edit(cmd, args[0], func(t model.ResultsFramework) (model.ResultsFramework, error) {
				t, newID, err := rf.AddOutput(t, objID, outcomeID)
				if err != nil {
					return t, err
				}
				id = newID
				return rf.UpdateOutput(t, objID, outcomeID, id, rf.OutputPatch{
					Title:       optional(cmd, "title", title),
					Description: optional(cmd, "description", desc),
				})
			})
			if err != nil {
				return err
			}
			return a.reportAdded("output", id)
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "output title")
	cmd.Flags().StringVar(&desc, "description", "", "output description")
	return cmd
}

func (a *app) rfAddIndicatorCmd() *cobra.Command {
	var (
		desc, method, unit, freq, source, comments string
		baseline, baselineUnit                     string
		year1, year2, year3                        string
		disaggregation                             []string
	)
	cmd := &cobra.Command{
		Use:   "add-indicator <projectID> <objectiveID> <outcomeID> [outputID]",
		Short: "Add an indicator to an outcome, or to an output when outputID is given",
		Args:  cobra.RangeArgs(3, 4),
		RunE: func(cmd *cobra.Command, args []string) error {
			objID, outcomeID := args[1], args[2]
			patch := rf.IndicatorPatch{
				Description:      optional(cmd, "description", desc),
				MonitoringMethod: optional(cmd, "method", method),
				TargetUnit:       optional(cmd, "target-unit", unit),
				Frequency:        optional(cmd, "frequency", freq),
				DataSource:       optional(cmd, "source", source),
				Comments:         optional(cmd, "comments", comments),
			}
			if cmd.Flags().Changed("baseline") || cmd.Flags().Changed("baseline-unit") {
				patch.Baseline = &model.Baseline{Value: baseline, Unit: baselineUnit}
			}
			if cmd.Flags().Changed("year1") || cmd.Flags().Changed("year2") || cmd.Flags().Changed("year3") {
				patch.Targets = &model.Targets{Year1: year1, Year2: year2, Year3: year3}
			}
			if cmd.Flags().Changed("disaggregation") {
				patch.Disaggregation = &disaggregation
			}

			var id string
			_, err := a.edit(cmd, args[0], func(t model.ResultsFramework) (model.ResultsFramework, error) {
				if len(args) == 4 {
					outputID := args[3]
					t, newID, err := rf.AddOutputIndicator(t, objID, outcomeID, outputID)
					if err != nil {
						return t, err
					}
					id = newID
					return rf.UpdateOutputIndicator(t, objID, outcomeID, outputID, id, patch)
				}
				t, newID, err := rf.AddOutcomeIndicator(t, objID, outcomeID)
				if err != nil {
					return t, err
				}
				id = newID
				return rf.UpdateOutcomeIndicator(t, objID, outcomeID, id, patch)
			})
			if err != nil {
				return err
			}
			return a.reportAdded("indicator", id)
		},
	}
	f := cmd.Flags()
	f.StringVar(&desc, "description", "", "indicator description")
	f.StringVar(&method, "method", "", "monitoring method")
	f.StringVar(&unit, "target-unit", "", "unit of the targets")
	f.StringVar(&freq, "frequency", "", "collection frequency")
	f.StringVar(&source, "source", "", "data source")
	f.StringVar(&comments, "comments", "", "free text comments")
	f.StringVar(&baseline, "baseline", "", "baseline value")
	f.StringVar(&baselineUnit, "baseline-unit", "", "baseline unit")
	f.StringVar(&year1, "year1", "", "year 1 target")
	f.StringVar(&year2, "year2", "", "year 2 target")
	f.StringVar(&year3, "year3", "", "year 3 target")
	f.StringSliceVar(&disaggregation, "disaggregation", nil, "disaggregation dimensions, comma separated")
	return cmd
}

func (a *app) rfRemoveCmd() *cobra.Command {
	var indicatorID string
	cmd := &cobra.Command{
		Use:   "remove <projectID> <objectiveID> [outcomeID [outputID]]",
		Short: "Remove a node and everything below it",
		Long: `Removes the deepest node named by the path. With --indicator the
indicator of the addressed outcome or output is removed instead.`,
		Args: cobra.RangeArgs(2, 4),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[1:]
			if indicatorID != "" && len(path) < 2 {
				return fmt.Errorf("--indicator needs an outcome id")
			}

			removed := path[len(path)-1]
			_, err := a.edit(cmd, args[0], func(t model.ResultsFramework) (model.ResultsFramework, error) {
				switch {
				case indicatorID != "" && len(path) == 3:
					return rf.RemoveOutputIndicator(t, path[0], path[1], path[2], indicatorID)
				case indicatorID != "":
					return rf.RemoveOutcomeIndicator(t, path[0], path[1], indicatorID)
				case len(path) == 3:
					return rf.RemoveOutput(t, path[0], path[1], path[2])
				case len(path) == 2:
					return rf.RemoveOutcome(t, path[0], path[1])
				default:
					return rf.RemoveObjective(t, path[0])
				}
			})
			if err != nil {
				return err
			}
			if indicatorID != "" {
				removed = indicatorID
			}
			fmt.Fprintf(a.out, "removed %s\n", removed)
			return nil
		},
	}
	cmd.Flags().StringVar(&indicatorID, "indicator", "", "indicator id to remove")
	return cmd
}
