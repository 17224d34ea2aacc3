package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"trackhub/internal/cache"
	"trackhub/internal/model"
	"trackhub/internal/progress"
	"trackhub/internal/repository"
	"trackhub/internal/resultsframework"
	"trackhub/pkg/logger"
	"trackhub/pkg/metrics"
)

type ProjectService struct {
	projects   *repository.ProjectRepository
	milestones *repository.MilestoneRepository
	cache      *cache.CompletionCache
	logger     *zap.Logger
}

func NewProjectService(
	projects *repository.ProjectRepository,
	milestones *repository.MilestoneRepository,
	completionCache *cache.CompletionCache,
	logger *zap.Logger,
) *ProjectService {
	return &ProjectService{
		projects:   projects,
		milestones: milestones,
		cache:      completionCache,
		logger:     logger,
	}
}

func (s *ProjectService) ListProjects(ctx context.Context) ([]model.Project, error) {
	return s.projects.List(ctx)
}

func (s *ProjectService) GetProject(ctx context.Context, id string) (*model.Project, error) {
	return s.projects.FindByID(ctx, id)
}

// CreateProject stores a project with empty tracking and results trees.
func (s *ProjectService) CreateProject(ctx context.Context, ownerID, name, description string) (*model.Project, error) {
	p := &model.Project{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		Name:        name,
		Description: description,
		Metadata: model.ProjectMetadata{
			ResultsFramework: resultsframework.Clone(model.ResultsFramework{}),
		},
	}
	if err := s.projects.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("create project: %w", err)
	}

	logger.WithTrace(ctx, s.logger).Info("Project created",
		zap.String("project_id", p.ID),
		zap.String("owner_id", ownerID),
	)
	return p, nil
}

// UpdateResultsFramework replaces the stored blob wholesale; the last write wins.
func (s *ProjectService) UpdateResultsFramework(ctx context.Context, id string, rf model.ResultsFramework) (*model.Project, error) {
	blob, err := resultsframework.Marshal(rf)
	if err != nil {
		return nil, err
	}
	p, err := s.projects.UpdateResultsFramework(ctx, id, blob)
	if err != nil {
		return nil, fmt.Errorf("update results framework of project %s: %w", id, err)
	}

	logger.WithTrace(ctx, s.logger).Info("Results framework replaced",
		zap.String("project_id", id),
		zap.Int("objectives", len(rf.Objectives)),
		zap.Int("bytes", len(blob)),
	)
	return p, nil
}

// Completion returns the project completion, served from the cache when present.
func (s *ProjectService) Completion(ctx context.Context, id string) (int, error) {
	if pct, ok := s.cache.Get(ctx, id); ok {
		return pct, nil
	}

	if _, err := s.projects.FindByID(ctx, id); err != nil {
		return 0, fmt.Errorf("find project %s: %w", id, err)
	}
	milestones, err := s.milestones.ListByProject(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("list milestones of project %s: %w", id, err)
	}
	pct := progress.ProjectCompletion(milestones)
	metrics.IncrementRecompute("project", "server")

	s.cache.Set(ctx, id, pct)
	return pct, nil
}

// RecomputeCompletion recomputes a project's completion from its stored
// milestones, persists it and drops the cached value.
func (s *ProjectService) RecomputeCompletion(ctx context.Context, id string) (int, error) {
	milestones, err := s.milestones.ListByProject(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("list milestones of project %s: %w", id, err)
	}
	pct := progress.ProjectCompletion(milestones)

	if err := s.projects.UpdateCompletion(ctx, id, pct); err != nil {
		return 0, fmt.Errorf("update completion of project %s: %w", id, err)
	}
	metrics.IncrementRecompute("project", "worker")

	if err := s.cache.Invalidate(ctx, id); err != nil {
		logger.WithTrace(ctx, s.logger).Warn("Failed to invalidate completion cache",
			zap.String("project_id", id),
			zap.Error(err),
		)
	}
	return pct, nil
}
