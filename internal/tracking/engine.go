// Package tracking keeps a project's tracking tree consistent while features
// are toggled and rollups are recomputed against the persistence service.
//
// Every mutation is applied to the local tree first, then written through the
// gateway. A failed leaf write is compensated by reverting the command. Rollup
// progress is always re-derived from children, so responses arriving in any
// order leave the tree consistent.
package tracking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"trackhub/internal/gateway"
	"trackhub/internal/model"
	"trackhub/internal/progress"
	"trackhub/internal/tree"
	"trackhub/pkg/logger"
	"trackhub/pkg/metrics"
)

const origin = "client"

type Engine struct {
	store     *tree.Store
	gateway   gateway.Gateway
	logger    *zap.Logger
	weighting progress.Weighting
	now       func() time.Time

	// mu serializes writers and guards the bookkeeping below. It is never
	// held across a gateway call.
	mu      sync.Mutex
	seq     uint64
	applied map[string]uint64 // node key -> newest accepted local intent or response
	history []command
}

type Option func(*Engine)

func WithWeighting(w progress.Weighting) Option {
	return func(e *Engine) { e.weighting = w }
}

func withClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(store *tree.Store, gw gateway.Gateway, logger *zap.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:     store,
		gateway:   gw,
		logger:    logger,
		weighting: progress.EqualWeighting,
		now:       time.Now,
		applied:   make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Store exposes the tree for read-only consumers.
func (e *Engine) Store() *tree.Store {
	return e.store
}

func featureKey(id string) string   { return "feature:" + id }
func moduleKey(id string) string    { return "module:" + id }
func milestoneKey(id string) string { return "milestone:" + id }

// Load fetches the project and its tree and replaces the store contents.
// Rollups are re-derived on load so stale stored values never surface.
func (e *Engine) Load(ctx context.Context, projectID string) error {
	log := logger.WithTrace(ctx, e.logger).With(zap.String("project_id", projectID))

	project, err := e.gateway.GetProject(ctx, projectID)
	if err != nil {
		return fmt.Errorf("get project %s: %w", projectID, err)
	}
	milestones, err := e.gateway.FetchTree(ctx, projectID)
	if err != nil {
		return fmt.Errorf("fetch tree of project %s: %w", projectID, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	project.CompletionPercentage = progress.ApplyTree(milestones, e.weighting)
	e.store.Load(project, milestones)
	e.applied = make(map[string]uint64)
	e.history = nil

	log.Info("Tracking tree loaded",
		zap.Int("milestones", len(milestones)),
		zap.Int("completion", project.CompletionPercentage),
	)
	return nil
}

// ToggleFeature sets a feature's completion flag and rolls the change up to
// its module, milestone and project.
//
// If the feature write fails, the local toggle is reverted and a
// *MutationError with Reverted set is returned. If a later recompute call
// fails, the toggle stands and the error reports Reverted false.
func (e *Engine) ToggleFeature(ctx context.Context, featureID string, completed bool) (model.Feature, error) {
	return e.toggle(ctx, featureID, completed, true)
}

func (e *Engine) toggle(ctx context.Context, featureID string, completed, record bool) (model.Feature, error) {
	log := logger.WithTrace(ctx, e.logger).With(
		zap.String("feature_id", featureID),
		zap.Bool("completed", completed),
	)

	cmd := &toggleFeatureCmd{featureID: featureID, completed: completed, at: e.now()}
	moduleID, milestoneID, err := e.applyToggle(cmd)
	if err != nil {
		return model.Feature{}, err
	}
	log.Debug("Feature toggled locally", zap.Uint64("seq", cmd.seq))

	server, err := e.gateway.PatchFeature(ctx, featureID, completed)
	if err != nil {
		reverted := e.compensate(cmd, moduleID, milestoneID)
		if reverted {
			metrics.IncrementMutationRevert("toggle_feature")
		}
		log.Warn("Feature write failed",
			zap.Bool("reverted", reverted),
			zap.Error(err),
		)
		f, _ := e.store.Feature(featureID)
		return f, &MutationError{Op: "toggle_feature", NodeID: featureID, Cause: err, Reverted: reverted}
	}
	e.acceptFeature(cmd.seq, server, moduleID, milestoneID)

	if record {
		e.mu.Lock()
		e.history = append(e.history, cmd)
		e.mu.Unlock()
	}

	if _, err := e.recomputeModuleRemote(ctx, moduleID); err != nil {
		f, _ := e.store.Feature(featureID)
		return f, err
	}
	if _, err := e.recomputeMilestoneRemote(ctx, milestoneID); err != nil {
		f, _ := e.store.Feature(featureID)
		return f, err
	}
	completion, _ := e.RecomputeProjectCompletion(ctx)

	f, _ := e.store.Feature(featureID)
	log.Info("Feature toggled",
		zap.String("module_id", moduleID),
		zap.String("milestone_id", milestoneID),
		zap.Int("completion", completion),
	)
	return f, nil
}

// applyToggle applies cmd locally and re-derives the affected rollups.
func (e *Engine) applyToggle(cmd *toggleFeatureCmd) (moduleID, milestoneID string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.store.Update(func(tx *tree.Tx) {
		if err = cmd.Apply(tx); err != nil {
			return
		}
		moduleID = cmd.prev.ModuleID
		mod, _ := tx.Module(moduleID)
		milestoneID = mod.MilestoneID
		e.rederive(tx, moduleID, milestoneID)
	})
	if err != nil {
		return "", "", err
	}

	e.seq++
	cmd.seq = e.seq
	e.applied[featureKey(cmd.featureID)] = cmd.seq
	return moduleID, milestoneID, nil
}

// compensate reverts cmd unless a newer toggle of the same feature has been
// applied since, in which case the newer intent is left in place.
func (e *Engine) compensate(cmd *toggleFeatureCmd, moduleID, milestoneID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.applied[featureKey(cmd.featureID)] != cmd.seq {
		return false
	}
	reverted := false
	e.store.Update(func(tx *tree.Tx) {
		if err := cmd.Revert(tx); err != nil {
			return
		}
		e.rederive(tx, moduleID, milestoneID)
		reverted = true
	})
	return reverted
}

// acceptFeature applies the server's copy of a feature unless a newer local
// toggle or response for it has already been applied.
func (e *Engine) acceptFeature(seq uint64, server model.Feature, moduleID, milestoneID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	key := featureKey(server.ID)
	if seq < e.applied[key] {
		e.logger.Debug("Discarding stale feature response",
			zap.String("feature_id", server.ID),
			zap.Uint64("seq", seq),
			zap.Uint64("applied", e.applied[key]),
		)
		return
	}
	e.applied[key] = seq

	e.store.Update(func(tx *tree.Tx) {
		local, ok := tx.Feature(server.ID)
		if !ok {
			return
		}
		server.ModuleID = local.ModuleID
		server.Blocked = local.Blocked
		server.Status = progress.FeatureStatus(server)
		tx.SetFeature(server)
		e.rederive(tx, moduleID, milestoneID)
	})
}

// rederive recomputes a module, its milestone and the project completion from
// their children, leaf to root, within one store update.
func (e *Engine) rederive(tx *tree.Tx, moduleID, milestoneID string) {
	if mod, ok := tx.Module(moduleID); ok {
		mod.Features = tx.Features(moduleID)
		progress.ApplyModule(&mod)
		tx.SetModule(mod)
		metrics.IncrementRecompute("module", origin)
	}
	if ms, ok := tx.Milestone(milestoneID); ok {
		ms.Modules = tx.ModulesWithFeatures(milestoneID)
		progress.ApplyMilestone(&ms, e.weighting)
		tx.SetMilestone(ms)
		metrics.IncrementRecompute("milestone", origin)
	}
	tx.SetCompletion(progress.ProjectCompletion(tx.Milestones()))
}

// reserve hands out the sequence number for an outgoing request.
func (e *Engine) reserve() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.seq++
	return e.seq
}

// RecomputeModuleProgress re-derives a module locally, asks the persistence
// service to recompute it, then does the same for its milestone.
func (e *Engine) RecomputeModuleProgress(ctx context.Context, moduleID string) (model.Module, error) {
	mod, ok := e.store.Module(moduleID)
	if !ok {
		return model.Module{}, fmt.Errorf("module %s: %w", moduleID, ErrNodeNotFound)
	}

	e.mu.Lock()
	e.store.Update(func(tx *tree.Tx) {
		e.rederive(tx, moduleID, mod.MilestoneID)
	})
	e.mu.Unlock()

	updated, err := e.recomputeModuleRemote(ctx, moduleID)
	if err != nil {
		return updated, err
	}
	if _, err := e.recomputeMilestoneRemote(ctx, mod.MilestoneID); err != nil {
		return updated, err
	}
	_, _ = e.RecomputeProjectCompletion(ctx)
	return updated, nil
}

// RecomputeMilestoneProgress re-derives a milestone locally and asks the
// persistence service to recompute it.
func (e *Engine) RecomputeMilestoneProgress(ctx context.Context, milestoneID string) (model.Milestone, error) {
	if _, ok := e.store.Milestone(milestoneID); !ok {
		return model.Milestone{}, fmt.Errorf("milestone %s: %w", milestoneID, ErrNodeNotFound)
	}

	e.mu.Lock()
	e.store.Update(func(tx *tree.Tx) {
		e.rederive(tx, "", milestoneID)
	})
	e.mu.Unlock()

	updated, err := e.recomputeMilestoneRemote(ctx, milestoneID)
	if err != nil {
		return updated, err
	}
	_, _ = e.RecomputeProjectCompletion(ctx)
	return updated, nil
}

func (e *Engine) recomputeModuleRemote(ctx context.Context, moduleID string) (model.Module, error) {
	seq := e.reserve()
	server, err := e.gateway.RecomputeModule(ctx, moduleID)
	if err != nil {
		logger.WithTrace(ctx, e.logger).Warn("Module recompute failed",
			zap.String("module_id", moduleID),
			zap.Error(err),
		)
		mod, _ := e.store.Module(moduleID)
		return mod, &MutationError{Op: "recompute_module", NodeID: moduleID, Cause: err}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	key := moduleKey(moduleID)
	if seq > e.applied[key] {
		e.applied[key] = seq
		e.store.Update(func(tx *tree.Tx) {
			local, ok := tx.Module(moduleID)
			if !ok {
				return
			}
			local.Name = server.Name
			local.Description = server.Description
			local.EstimatedHours = server.EstimatedHours
			local.ActualHours = server.ActualHours
			tx.SetModule(local)
			e.rederive(tx, moduleID, "")
		})
	}
	mod, _ := e.store.Module(moduleID)
	if mod.Progress != server.Progress {
		e.logger.Debug("Server module progress differs from local rollup",
			zap.String("module_id", moduleID),
			zap.Int("server", server.Progress),
			zap.Int("local", mod.Progress),
		)
	}
	return mod, nil
}

func (e *Engine) recomputeMilestoneRemote(ctx context.Context, milestoneID string) (model.Milestone, error) {
	seq := e.reserve()
	server, err := e.gateway.RecomputeMilestone(ctx, milestoneID)
	if err != nil {
		logger.WithTrace(ctx, e.logger).Warn("Milestone recompute failed",
			zap.String("milestone_id", milestoneID),
			zap.Error(err),
		)
		ms, _ := e.store.Milestone(milestoneID)
		return ms, &MutationError{Op: "recompute_milestone", NodeID: milestoneID, Cause: err}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	key := milestoneKey(milestoneID)
	if seq > e.applied[key] {
		e.applied[key] = seq
		e.store.Update(func(tx *tree.Tx) {
			local, ok := tx.Milestone(milestoneID)
			if !ok {
				return
			}
			local.Name = server.Name
			local.Description = server.Description
			local.DueDate = server.DueDate
			local.EstimatedHours = server.EstimatedHours
			local.ActualHours = server.ActualHours
			local.CompletedAt = server.CompletedAt
			tx.SetMilestone(local)
			e.rederive(tx, "", milestoneID)
		})
	}
	ms, _ := e.store.Milestone(milestoneID)
	return ms, nil
}

// RecomputeProjectCompletion averages milestone progress, equally weighted,
// and records it on the loaded project.
func (e *Engine) RecomputeProjectCompletion(ctx context.Context) (int, error) {
	if e.store.Project().ID == "" {
		return 0, ErrNotLoaded
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	completion := progress.ProjectCompletion(e.store.Milestones())
	e.store.SetCompletion(completion)
	metrics.IncrementRecompute("project", origin)
	return completion, nil
}

// SetBlocked flags a node as blocked or clears the flag, then writes the flag
// through the gateway. Progress is left unchanged; only the derived status
// moves. A failed write is compensated like a failed toggle.
func (e *Engine) SetBlocked(ctx context.Context, kind model.NodeKind, id string, blocked bool) error {
	return e.setBlocked(ctx, kind, id, blocked, true)
}

func (e *Engine) setBlocked(ctx context.Context, kind model.NodeKind, id string, blocked, record bool) error {
	log := logger.WithTrace(ctx, e.logger).With(
		zap.String("kind", kind.String()),
		zap.String("node_id", id),
		zap.Bool("blocked", blocked),
	)
	cmd := &setBlockedCmd{kind: kind, id: id, blocked: blocked}

	e.mu.Lock()
	var err error
	e.store.Update(func(tx *tree.Tx) {
		err = cmd.Apply(tx)
	})
	if err != nil {
		e.mu.Unlock()
		return err
	}
	e.seq++
	cmd.seq = e.seq
	e.applied[cmd.key()] = cmd.seq
	e.mu.Unlock()

	if err := e.gateway.SetBlocked(ctx, kind, id, blocked); err != nil {
		reverted := e.compensateBlocked(cmd)
		if reverted {
			metrics.IncrementMutationRevert("set_blocked")
		}
		log.Warn("Blocked flag write failed",
			zap.Bool("reverted", reverted),
			zap.Error(err),
		)
		return &MutationError{Op: "set_blocked", NodeID: id, Cause: err, Reverted: reverted}
	}

	if record {
		e.mu.Lock()
		e.history = append(e.history, cmd)
		e.mu.Unlock()
	}
	log.Info("Blocked flag changed")
	return nil
}

// compensateBlocked restores the previous flag unless a newer change of the
// same node has been applied since.
func (e *Engine) compensateBlocked(cmd *setBlockedCmd) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.applied[cmd.key()] != cmd.seq {
		return false
	}
	var err error
	e.store.Update(func(tx *tree.Tx) {
		err = cmd.Revert(tx)
	})
	return err == nil
}

// Undo reverses the most recent confirmed mutation by writing its inverse
// through the gateway. If the inverse write does not reach the server, the
// entry stays on the history so Undo can be retried.
func (e *Engine) Undo(ctx context.Context) (string, error) {
	e.mu.Lock()
	if len(e.history) == 0 {
		e.mu.Unlock()
		return "", ErrNothingToUndo
	}
	last := e.history[len(e.history)-1]
	e.history = e.history[:len(e.history)-1]
	e.mu.Unlock()

	var err error
	switch cmd := last.(type) {
	case *toggleFeatureCmd:
		_, err = e.toggle(ctx, cmd.featureID, cmd.prev.IsCompleted, false)
		// A failed recompute after a successful write still undid the toggle.
		var mErr *MutationError
		if errors.As(err, &mErr) && mErr.Op != "toggle_feature" {
			return last.Description(), err
		}
	case *setBlockedCmd:
		err = e.setBlocked(ctx, cmd.kind, cmd.id, cmd.prev, false)
	default:
		err = fmt.Errorf("undo %s: unsupported command", last.Description())
	}
	if err != nil {
		e.mu.Lock()
		e.history = append(e.history, last)
		e.mu.Unlock()
		return last.Description(), err
	}
	return last.Description(), nil
}

// CanUndo reports whether Undo has anything to reverse.
func (e *Engine) CanUndo() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.history) > 0
}
