// Package gateway is the client side of the persistence REST contract.
package gateway

import (
	"context"

	"trackhub/internal/model"
)

// Gateway is everything the tracking engine, the results-framework editor and
// the overview aggregator need from the persistence service.
type Gateway interface {
	ListProjects(ctx context.Context) ([]model.Project, error)
	GetProject(ctx context.Context, projectID string) (model.Project, error)
	// UpdateProjectResultsFramework replaces the whole results-framework blob.
	UpdateProjectResultsFramework(ctx context.Context, projectID string, rf model.ResultsFramework) (model.Project, error)

	ListMilestones(ctx context.Context, projectID string) ([]model.Milestone, error)
	ListModules(ctx context.Context, milestoneID string) ([]model.Module, error)
	ListFeatures(ctx context.Context, moduleID string) ([]model.Feature, error)

	PatchFeature(ctx context.Context, featureID string, completed bool) (model.Feature, error)
	RecomputeModule(ctx context.Context, moduleID string) (model.Module, error)
	RecomputeMilestone(ctx context.Context, milestoneID string) (model.Milestone, error)
	// SetBlocked writes the blocked flag of a feature, module or milestone.
	SetBlocked(ctx context.Context, kind model.NodeKind, nodeID string, blocked bool) error

	// FetchTree returns the project's milestones with modules and features nested.
	FetchTree(ctx context.Context, projectID string) ([]model.Milestone, error)
}
