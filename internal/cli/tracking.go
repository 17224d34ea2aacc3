package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"trackhub/internal/gateway"
	"trackhub/internal/model"
	"trackhub/internal/overview"
	"trackhub/internal/tracking"
	"trackhub/internal/tree"
)

func (a *app) overviewCmd() *cobra.Command {
	var deep bool
	cmd := &cobra.Command{
		Use:   "overview [projectID...]",
		Short: "Summarise milestone completion across projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel, s, gw, err := a.session(cmd)
			if err != nil {
				return err
			}
			defer cancel()

			opts := []overview.Option{
				overview.WithConcurrency(s.Concurrency),
				overview.WithWeighting(s.Weighting),
			}
			if deep {
				opts = append(opts, overview.WithDeepFetch())
			}
			agg := overview.NewAggregator(gw, a.log, opts...)

			var ov overview.Overview
			if len(args) == 0 {
				ov, err = overview.NewLoader(gw, agg, a.log).Load(ctx)
				if err != nil {
					return err
				}
			} else {
				ov = a.overviewOf(ctx, gw, agg, args)
			}

			if s.JSON {
				return printJSON(a.out, ov)
			}
			return renderOverview(a.out, ov)
		},
	}
	cmd.Flags().BoolVar(&deep, "deep", false, "load full trees and re-derive rollups")
	return cmd
}

// overviewOf builds the overview of the named projects. Unknown projects are
// reported as failed entries in their original position.
func (a *app) overviewOf(ctx context.Context, gw gateway.Gateway, agg *overview.Aggregator, ids []string) overview.Overview {
	stats := make([]overview.ProjectStats, len(ids))
	var (
		found  []model.Project
		slots  []int
		failed int
	)
	for i, id := range ids {
		p, err := gw.GetProject(ctx, id)
		if err != nil {
			stats[i] = overview.ProjectStats{ProjectID: id, Err: err}
			failed++
			continue
		}
		found = append(found, p)
		slots = append(slots, i)
	}

	built := agg.Build(ctx, found)
	for j, s := range built.Projects {
		stats[slots[j]] = s
	}
	return overview.Overview{Projects: stats, Failed: failed + built.Failed}
}

// loadEngine loads one project's tree into a fresh engine.
func (a *app) loadEngine(cmd *cobra.Command, projectID string) (context.Context, *tracking.Engine, Settings, func(), error) {
	ctx, cancel, s, gw, err := a.session(cmd)
	if err != nil {
		return nil, nil, s, nil, err
	}
	engine := tracking.NewEngine(tree.NewStore(), gw, a.log, tracking.WithWeighting(s.Weighting))
	if err := engine.Load(ctx, projectID); err != nil {
		cancel()
		return nil, nil, s, nil, err
	}
	return ctx, engine, s, cancel, nil
}

type treeView struct {
	Project    model.Project     `json:"project"`
	Milestones []model.Milestone `json:"milestones"`
}

func (a *app) treeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tree <projectID>",
		Short: "Print a project's milestones, modules and features with progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, engine, s, done, err := a.loadEngine(cmd, args[0])
			if err != nil {
				return err
			}
			defer done()

			store := engine.Store()
			if s.JSON {
				return printJSON(a.out, treeView{Project: store.Project(), Milestones: store.Snapshot()})
			}
			renderTree(a.out, store)
			return nil
		},
	}
}

type toggleView struct {
	Feature    model.Feature   `json:"feature"`
	Module     model.Module    `json:"module"`
	Milestone  model.Milestone `json:"milestone"`
	Completion int             `json:"completionPercentage"`
}

func (a *app) toggleCmd() *cobra.Command {
	var done bool
	cmd := &cobra.Command{
		Use:   "toggle <projectID> <featureID>",
		Short: "Mark a feature done or not done and recompute its rollups",
		Long: `Flips the feature's completion flag, or sets it explicitly with --done.
The module, milestone and project progress are recomputed afterwards.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, engine, s, cancel, err := a.loadEngine(cmd, args[0])
			if err != nil {
				return err
			}
			defer cancel()

			store := engine.Store()
			featureID := args[1]
			current, ok := store.Feature(featureID)
			if !ok {
				return fmt.Errorf("feature %s: %w", featureID, tracking.ErrNodeNotFound)
			}
			target := !current.IsCompleted
			if cmd.Flags().Changed("done") {
				target = done
			}

			f, err := engine.ToggleFeature(ctx, featureID, target)
			if err != nil {
				var mErr *tracking.MutationError
				if errors.As(err, &mErr) && mErr.Reverted {
					return fmt.Errorf("%w (local change reverted)", err)
				}
				return err
			}

			mod, _ := store.Module(f.ModuleID)
			ms, _ := store.Milestone(mod.MilestoneID)
			view := toggleView{
				Feature:    f,
				Module:     mod,
				Milestone:  ms,
				Completion: store.Project().CompletionPercentage,
			}
			if s.JSON {
				return printJSON(a.out, view)
			}
			fmt.Fprintf(a.out, "%s %s %s\n", checkbox(f.IsCompleted), f.ID, f.Name)
			fmt.Fprintf(a.out, "module %s: %d%% %s\n", mod.ID, mod.Progress, mod.Status)
			fmt.Fprintf(a.out, "milestone %s: %d%% %s\n", ms.ID, ms.Progress, ms.Status)
			fmt.Fprintf(a.out, "project %s: %d%%\n", store.Project().ID, view.Completion)
			return nil
		},
	}
	cmd.Flags().BoolVar(&done, "done", true, "completion value to set instead of flipping")
	return cmd
}

func (a *app) blockCmd() *cobra.Command {
	var unblock bool
	cmd := &cobra.Command{
		Use:   "block <projectID> <feature|module|milestone> <id>",
		Short: "Mark a node blocked, or clear the flag with --clear",
		Long: `Blocked nodes report status BLOCKED while their progress is unchanged.
A completed feature stays COMPLETED.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := model.ParseNodeKind(args[1])
			if err != nil {
				return err
			}
			ctx, engine, s, cancel, err := a.loadEngine(cmd, args[0])
			if err != nil {
				return err
			}
			defer cancel()

			id := args[2]
			if err := engine.SetBlocked(ctx, kind, id, !unblock); err != nil {
				var mErr *tracking.MutationError
				if errors.As(err, &mErr) && mErr.Reverted {
					return fmt.Errorf("%w (local change reverted)", err)
				}
				return err
			}

			store := engine.Store()
			var (
				node   any
				status model.Status
			)
			switch kind {
			case model.KindFeature:
				f, _ := store.Feature(id)
				node, status = f, f.Status
			case model.KindModule:
				m, _ := store.Module(id)
				node, status = m, m.Status
			case model.KindMilestone:
				ms, _ := store.Milestone(id)
				node, status = ms, ms.Status
			}
			if s.JSON {
				return printJSON(a.out, node)
			}
			fmt.Fprintf(a.out, "%s %s: blocked=%t %s\n", kind, id, !unblock, status)
			return nil
		},
	}
	cmd.Flags().BoolVar(&unblock, "clear", false, "clear the blocked flag")
	return cmd
}

func (a *app) recomputeCmd() *cobra.Command {
	var milestone bool
	cmd := &cobra.Command{
		Use:   "recompute <projectID> <moduleID>",
		Short: "Recompute a module's progress and roll it up",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, engine, s, cancel, err := a.loadEngine(cmd, args[0])
			if err != nil {
				return err
			}
			defer cancel()

			var result any
			if milestone {
				ms, err := engine.RecomputeMilestoneProgress(ctx, args[1])
				if err != nil {
					return err
				}
				result = ms
				if !s.JSON {
					fmt.Fprintf(a.out, "milestone %s: %d%% %s\n", ms.ID, ms.Progress, ms.Status)
				}
			} else {
				mod, err := engine.RecomputeModuleProgress(ctx, args[1])
				if err != nil {
					return err
				}
				result = mod
				if !s.JSON {
					fmt.Fprintf(a.out, "module %s: %d%% %s\n", mod.ID, mod.Progress, mod.Status)
				}
			}

			if s.JSON {
				return printJSON(a.out, result)
			}
			fmt.Fprintf(a.out, "project %s: %d%%\n", args[0], engine.Store().Project().CompletionPercentage)
			return nil
		},
	}
	cmd.Flags().BoolVar(&milestone, "milestone", false, "treat the id as a milestone")
	return cmd
}
