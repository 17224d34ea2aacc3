// Package overview builds the cross-project tracking summary.
package overview

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"trackhub/internal/gateway"
	"trackhub/internal/model"
	"trackhub/internal/progress"
	"trackhub/pkg/logger"
	"trackhub/pkg/metrics"
)

// ProjectStats summarises one project. A project whose fetch failed reports
// zero counts and carries the error in Err.
type ProjectStats struct {
	ProjectID           string `json:"projectId"`
	Name                string `json:"name"`
	MilestoneCount      int    `json:"milestoneCount"`
	CompletedMilestones int    `json:"completedMilestones"`
	OverallProgress     int    `json:"overallProgress"`
	Err                 error  `json:"-"`
}

// Overview lists stats in the order the projects were given.
type Overview struct {
	Projects []ProjectStats `json:"projects"`
	Failed   int            `json:"failed"`
}

type Aggregator struct {
	gateway     gateway.Gateway
	logger      *zap.Logger
	concurrency int
	deep        bool
	weighting   progress.Weighting
}

type Option func(*Aggregator)

// WithConcurrency bounds the number of projects fetched at once.
func WithConcurrency(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.concurrency = n
		}
	}
}

// WithDeepFetch loads each project's full tree and re-derives the rollups
// instead of trusting the stored milestone progress.
func WithDeepFetch() Option {
	return func(a *Aggregator) { a.deep = true }
}

// WithWeighting sets the milestone weighting used by deep fetches.
func WithWeighting(w progress.Weighting) Option {
	return func(a *Aggregator) { a.weighting = w }
}

func NewAggregator(gw gateway.Gateway, logger *zap.Logger, opts ...Option) *Aggregator {
	a := &Aggregator{
		gateway:     gw,
		logger:      logger,
		concurrency: 8,
		weighting:   progress.EqualWeighting,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Build fetches every project concurrently and waits for all of them. A
// failing project never cancels or fails the others.
func (a *Aggregator) Build(ctx context.Context, projects []model.Project) Overview {
	log := logger.WithTrace(ctx, a.logger)
	stats := make([]ProjectStats, len(projects))

	var g errgroup.Group
	g.SetLimit(a.concurrency)

	for i, p := range projects {
		g.Go(func() error {
			s, err := a.projectStats(ctx, p)
			if err != nil {
				log.Warn("Project overview fetch failed",
					zap.String("project_id", p.ID),
					zap.Error(err),
				)
				metrics.IncrementOverviewFetch("failed")
				stats[i] = ProjectStats{ProjectID: p.ID, Name: p.Name, Err: err}
				return nil
			}
			metrics.IncrementOverviewFetch("success")
			stats[i] = s
			return nil
		})
	}
	_ = g.Wait()

	ov := Overview{Projects: stats}
	for _, s := range stats {
		if s.Err != nil {
			ov.Failed++
		}
	}
	log.Info("Overview built",
		zap.Int("projects", len(projects)),
		zap.Int("failed", ov.Failed),
	)
	return ov
}

func (a *Aggregator) projectStats(ctx context.Context, p model.Project) (ProjectStats, error) {
	var (
		milestones []model.Milestone
		err        error
	)
	if a.deep {
		milestones, err = a.gateway.FetchTree(ctx, p.ID)
		if err == nil {
			progress.ApplyTree(milestones, a.weighting)
		}
	} else {
		milestones, err = a.gateway.ListMilestones(ctx, p.ID)
	}
	if err != nil {
		return ProjectStats{}, fmt.Errorf("project %s: %w", p.ID, err)
	}

	return ProjectStats{
		ProjectID:           p.ID,
		Name:                p.Name,
		MilestoneCount:      len(milestones),
		CompletedMilestones: progress.CompletedMilestones(milestones),
		OverallProgress:     progress.ProjectCompletion(milestones),
	}, nil
}
