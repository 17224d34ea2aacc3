package service

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	mqcontracts "trackhub/contracts/mq"
	"trackhub/internal/model"
	"trackhub/internal/progress"
	"trackhub/internal/repository"
	"trackhub/pkg/logger"
	"trackhub/pkg/metrics"
	"trackhub/pkg/outbox"
	"trackhub/pkg/trace"
)

// TrackingService serves the milestone/module/feature tree. Every write runs
// in one transaction together with its outbox event.
type TrackingService struct {
	db         *pgxpool.Pool
	milestones *repository.MilestoneRepository
	modules    *repository.ModuleRepository
	features   *repository.FeatureRepository
	outboxRepo *outbox.Repository
	weighting  progress.Weighting
	logger     *zap.Logger
	now        func() time.Time
}

func NewTrackingService(
	db *pgxpool.Pool,
	milestones *repository.MilestoneRepository,
	modules *repository.ModuleRepository,
	features *repository.FeatureRepository,
	weighting progress.Weighting,
	logger *zap.Logger,
) *TrackingService {
	return &TrackingService{
		db:         db,
		milestones: milestones,
		modules:    modules,
		features:   features,
		outboxRepo: outbox.NewRepository(db),
		weighting:  weighting,
		logger:     logger,
		now:        time.Now,
	}
}

func (s *TrackingService) ListMilestones(ctx context.Context, projectID string) ([]model.Milestone, error) {
	return s.milestones.ListByProject(ctx, projectID)
}

func (s *TrackingService) ListModules(ctx context.Context, milestoneID string) ([]model.Module, error) {
	return s.modules.ListByMilestone(ctx, milestoneID)
}

func (s *TrackingService) ListFeatures(ctx context.Context, moduleID string) ([]model.Feature, error) {
	return s.features.ListByModule(ctx, moduleID)
}

func (s *TrackingService) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ToggleFeature writes a feature's completion flag and emits feature.toggled.
func (s *TrackingService) ToggleFeature(ctx context.Context, featureID string, completed bool, userID string) (*model.Feature, error) {
	traceLogger := logger.WithTrace(ctx, s.logger)
	now := s.now()

	var feature *model.Feature
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		blocked, err := s.features.BlockedTx(ctx, tx, featureID)
		if err != nil {
			return fmt.Errorf("find feature %s: %w", featureID, err)
		}
		status := progress.FeatureStatus(model.Feature{IsCompleted: completed, Blocked: blocked})

		feature, err = s.features.SetCompletedTx(ctx, tx, featureID, completed, status, now)
		if err != nil {
			return fmt.Errorf("update feature %s: %w", featureID, err)
		}

		projectID, err := s.modules.ProjectIDTx(ctx, tx, feature.ModuleID)
		if err != nil {
			return fmt.Errorf("resolve project of module %s: %w", feature.ModuleID, err)
		}

		payload := mqcontracts.FeatureToggledPayload{
			FeatureID:   featureID,
			ModuleID:    feature.ModuleID,
			ProjectID:   projectID,
			IsCompleted: completed,
			UserID:      userID,
			TraceID:     trace.FromContext(ctx),
			ToggledAt:   now,
		}
		return outbox.InsertEventInTx(ctx, tx, s.outboxRepo, "feature", featureID, mqcontracts.RoutingKeyFeatureToggled, payload)
	})
	if err != nil {
		return nil, err
	}

	traceLogger.Info("Feature toggled",
		zap.String("feature_id", featureID),
		zap.String("module_id", feature.ModuleID),
		zap.Bool("completed", completed),
	)
	return feature, nil
}

// RecomputeModule re-derives a module from its stored features, persists it
// and emits progress.recomputed.
func (s *TrackingService) RecomputeModule(ctx context.Context, moduleID string) (*model.Module, error) {
	var mod *model.Module
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		var err error
		mod, err = s.modules.FindByIDTx(ctx, tx, moduleID)
		if err != nil {
			return fmt.Errorf("find module %s: %w", moduleID, err)
		}
		mod.Features, err = s.features.ListByModuleTx(ctx, tx, moduleID)
		if err != nil {
			return fmt.Errorf("list features of module %s: %w", moduleID, err)
		}
		progress.ApplyModule(mod)
		mod.Features = nil

		if err := s.modules.UpdateProgressTx(ctx, tx, moduleID, mod.Progress, mod.Status); err != nil {
			return fmt.Errorf("update module %s: %w", moduleID, err)
		}

		projectID, err := s.modules.ProjectIDTx(ctx, tx, moduleID)
		if err != nil {
			return fmt.Errorf("resolve project of module %s: %w", moduleID, err)
		}
		return s.emitRecomputed(ctx, tx, model.KindModule, moduleID, projectID, mod.Progress, mod.Status)
	})
	if err != nil {
		return nil, err
	}

	metrics.IncrementRecompute("module", "server")
	logger.WithTrace(ctx, s.logger).Info("Module progress recomputed",
		zap.String("module_id", moduleID),
		zap.Int("progress", mod.Progress),
		zap.String("status", string(mod.Status)),
	)
	return mod, nil
}

// RecomputeMilestone re-derives a milestone from its stored modules.
func (s *TrackingService) RecomputeMilestone(ctx context.Context, milestoneID string) (*model.Milestone, error) {
	var ms *model.Milestone
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		var err error
		ms, err = s.milestones.FindByIDTx(ctx, tx, milestoneID)
		if err != nil {
			return fmt.Errorf("find milestone %s: %w", milestoneID, err)
		}
		ms.Modules, err = s.modules.ListByMilestoneTx(ctx, tx, milestoneID)
		if err != nil {
			return fmt.Errorf("list modules of milestone %s: %w", milestoneID, err)
		}
		if s.weighting == progress.FeatureWeighting {
			for i := range ms.Modules {
				ms.Modules[i].Features, err = s.features.ListByModuleTx(ctx, tx, ms.Modules[i].ID)
				if err != nil {
					return fmt.Errorf("list features of module %s: %w", ms.Modules[i].ID, err)
				}
			}
		}
		progress.ApplyMilestone(ms, s.weighting)
		ms.Modules = nil

		now := s.now()
		switch {
		case ms.Status != model.StatusCompleted:
			ms.CompletedAt = nil
		case ms.CompletedAt == nil:
			ms.CompletedAt = &now
		}
		if err := s.milestones.UpdateProgressTx(ctx, tx, milestoneID, ms.Progress, ms.Status, now); err != nil {
			return fmt.Errorf("update milestone %s: %w", milestoneID, err)
		}
		return s.emitRecomputed(ctx, tx, model.KindMilestone, milestoneID, ms.ProjectID, ms.Progress, ms.Status)
	})
	if err != nil {
		return nil, err
	}

	metrics.IncrementRecompute("milestone", "server")
	logger.WithTrace(ctx, s.logger).Info("Milestone progress recomputed",
		zap.String("milestone_id", milestoneID),
		zap.Int("progress", ms.Progress),
		zap.String("status", string(ms.Status)),
	)
	return ms, nil
}

// SetFeatureBlocked writes a feature's blocked flag. A completed feature keeps
// its COMPLETED status.
func (s *TrackingService) SetFeatureBlocked(ctx context.Context, featureID string, blocked bool, userID string) (*model.Feature, error) {
	var feature *model.Feature
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		current, err := s.features.FindByIDTx(ctx, tx, featureID)
		if err != nil {
			return fmt.Errorf("find feature %s: %w", featureID, err)
		}
		current.Blocked = blocked
		feature, err = s.features.SetBlockedTx(ctx, tx, featureID, blocked, progress.FeatureStatus(*current))
		if err != nil {
			return fmt.Errorf("update feature %s: %w", featureID, err)
		}
		projectID, err := s.modules.ProjectIDTx(ctx, tx, feature.ModuleID)
		if err != nil {
			return fmt.Errorf("resolve project of module %s: %w", feature.ModuleID, err)
		}
		return s.emitBlocked(ctx, tx, model.KindFeature, featureID, projectID, blocked, feature.Status, userID)
	})
	if err != nil {
		return nil, err
	}
	s.logBlocked(ctx, model.KindFeature, featureID, blocked, feature.Status)
	return feature, nil
}

// SetModuleBlocked writes a module's blocked flag; progress is unchanged.
func (s *TrackingService) SetModuleBlocked(ctx context.Context, moduleID string, blocked bool, userID string) (*model.Module, error) {
	var mod *model.Module
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		current, err := s.modules.FindByIDTx(ctx, tx, moduleID)
		if err != nil {
			return fmt.Errorf("find module %s: %w", moduleID, err)
		}
		status := progress.DeriveStatus(current.Progress, blocked)
		mod, err = s.modules.SetBlockedTx(ctx, tx, moduleID, blocked, status)
		if err != nil {
			return fmt.Errorf("update module %s: %w", moduleID, err)
		}
		projectID, err := s.modules.ProjectIDTx(ctx, tx, moduleID)
		if err != nil {
			return fmt.Errorf("resolve project of module %s: %w", moduleID, err)
		}
		return s.emitBlocked(ctx, tx, model.KindModule, moduleID, projectID, blocked, status, userID)
	})
	if err != nil {
		return nil, err
	}
	s.logBlocked(ctx, model.KindModule, moduleID, blocked, mod.Status)
	return mod, nil
}

// SetMilestoneBlocked writes a milestone's blocked flag; progress is unchanged.
func (s *TrackingService) SetMilestoneBlocked(ctx context.Context, milestoneID string, blocked bool, userID string) (*model.Milestone, error) {
	var ms *model.Milestone
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		current, err := s.milestones.FindByIDTx(ctx, tx, milestoneID)
		if err != nil {
			return fmt.Errorf("find milestone %s: %w", milestoneID, err)
		}
		status := progress.DeriveStatus(current.Progress, blocked)
		ms, err = s.milestones.SetBlockedTx(ctx, tx, milestoneID, blocked, status)
		if err != nil {
			return fmt.Errorf("update milestone %s: %w", milestoneID, err)
		}
		return s.emitBlocked(ctx, tx, model.KindMilestone, milestoneID, ms.ProjectID, blocked, status, userID)
	})
	if err != nil {
		return nil, err
	}
	s.logBlocked(ctx, model.KindMilestone, milestoneID, blocked, ms.Status)
	return ms, nil
}

func (s *TrackingService) emitBlocked(ctx context.Context, tx pgx.Tx, kind model.NodeKind, nodeID, projectID string, blocked bool, status model.Status, userID string) error {
	payload := mqcontracts.NodeBlockedPayload{
		Level:     kind.String(),
		NodeID:    nodeID,
		ProjectID: projectID,
		Blocked:   blocked,
		Status:    string(status),
		UserID:    userID,
		TraceID:   trace.FromContext(ctx),
		ChangedAt: s.now(),
	}
	if err := outbox.InsertEventInTx(ctx, tx, s.outboxRepo, kind.String(), nodeID, mqcontracts.RoutingKeyNodeBlocked, payload); err != nil {
		return fmt.Errorf("insert %s event: %w", mqcontracts.RoutingKeyNodeBlocked, err)
	}
	return nil
}

func (s *TrackingService) logBlocked(ctx context.Context, kind model.NodeKind, nodeID string, blocked bool, status model.Status) {
	logger.WithTrace(ctx, s.logger).Info("Blocked flag written",
		zap.String("kind", kind.String()),
		zap.String("node_id", nodeID),
		zap.Bool("blocked", blocked),
		zap.String("status", string(status)),
	)
}

func (s *TrackingService) emitRecomputed(ctx context.Context, tx pgx.Tx, kind model.NodeKind, nodeID, projectID string, pct int, status model.Status) error {
	payload := mqcontracts.ProgressRecomputedPayload{
		Level:        kind.String(),
		NodeID:       nodeID,
		ProjectID:    projectID,
		Progress:     pct,
		Status:       string(status),
		TraceID:      trace.FromContext(ctx),
		RecomputedAt: s.now(),
	}
	if err := outbox.InsertEventInTx(ctx, tx, s.outboxRepo, kind.String(), nodeID, mqcontracts.RoutingKeyProgressRecomputed, payload); err != nil {
		return fmt.Errorf("insert %s event: %w", mqcontracts.RoutingKeyProgressRecomputed, err)
	}
	return nil
}
