// Package gatewaytest provides an in-memory gateway.Gateway for tests.
package gatewaytest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"trackhub/internal/gateway"
	"trackhub/internal/model"
	"trackhub/internal/progress"
)

// Fake stores a small tracking tree and answers the gateway contract the way
// the persistence service does, including server-side recompute.
type Fake struct {
	mu sync.Mutex

	projects   map[string]model.Project
	milestones map[string]model.Milestone
	modules    map[string]model.Module
	features   map[string]model.Feature

	// FailOn, when set, is consulted before every call. A non-nil error is
	// returned instead of the result. op is the method name.
	FailOn func(op, id string) error

	calls []string
}

var _ gateway.Gateway = (*Fake)(nil)

func New() *Fake {
	return &Fake{
		projects:   make(map[string]model.Project),
		milestones: make(map[string]model.Milestone),
		modules:    make(map[string]model.Module),
		features:   make(map[string]model.Feature),
	}
}

// AddProject seeds a project and its nested tree.
func (f *Fake) AddProject(p model.Project, tree []model.Milestone) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.projects[p.ID] = p
	for _, ms := range tree {
		ms.ProjectID = p.ID
		for _, mod := range ms.Modules {
			mod.MilestoneID = ms.ID
			for _, feat := range mod.Features {
				feat.ModuleID = mod.ID
				f.features[feat.ID] = feat
			}
			mod.Features = nil
			f.modules[mod.ID] = mod
		}
		ms.Modules = nil
		f.milestones[ms.ID] = ms
	}
}

// Calls returns the "op:id" log of calls made so far.
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *Fake) enter(op, id string) error {
	f.mu.Lock()
	f.calls = append(f.calls, op+":"+id)
	hook := f.FailOn
	f.mu.Unlock()
	if hook != nil {
		return hook(op, id)
	}
	return nil
}

func notFound(path string) error {
	return &gateway.StatusError{Method: "GET", Path: path, StatusCode: 404, Body: "not found"}
}

func (f *Fake) ListProjects(ctx context.Context) ([]model.Project, error) {
	if err := f.enter("ListProjects", ""); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Project, 0, len(f.projects))
	for _, p := range f.projects {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *Fake) GetProject(ctx context.Context, projectID string) (model.Project, error) {
	if err := f.enter("GetProject", projectID); err != nil {
		return model.Project{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.projects[projectID]
	if !ok {
		return model.Project{}, notFound("/projects/" + projectID)
	}
	return p, nil
}

func (f *Fake) UpdateProjectResultsFramework(ctx context.Context, projectID string, rf model.ResultsFramework) (model.Project, error) {
	if err := f.enter("UpdateProjectResultsFramework", projectID); err != nil {
		return model.Project{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.projects[projectID]
	if !ok {
		return model.Project{}, notFound("/projects/" + projectID)
	}
	p.Metadata.ResultsFramework = rf
	p.UpdatedAt = time.Now()
	f.projects[projectID] = p
	return p, nil
}

func (f *Fake) ListMilestones(ctx context.Context, projectID string) ([]model.Milestone, error) {
	if err := f.enter("ListMilestones", projectID); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Milestone
	for _, ms := range f.milestones {
		if ms.ProjectID == projectID {
			out = append(out, ms)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderIndex < out[j].OrderIndex })
	return out, nil
}

func (f *Fake) ListModules(ctx context.Context, milestoneID string) ([]model.Module, error) {
	if err := f.enter("ListModules", milestoneID); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.modulesOf(milestoneID), nil
}

func (f *Fake) modulesOf(milestoneID string) []model.Module {
	var out []model.Module
	for _, m := range f.modules {
		if m.MilestoneID == milestoneID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderIndex < out[j].OrderIndex })
	return out
}

func (f *Fake) ListFeatures(ctx context.Context, moduleID string) ([]model.Feature, error) {
	if err := f.enter("ListFeatures", moduleID); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.featuresOf(moduleID), nil
}

func (f *Fake) featuresOf(moduleID string) []model.Feature {
	var out []model.Feature
	for _, feat := range f.features {
		if feat.ModuleID == moduleID {
			out = append(out, feat)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderIndex < out[j].OrderIndex })
	return out
}

func (f *Fake) PatchFeature(ctx context.Context, featureID string, completed bool) (model.Feature, error) {
	if err := f.enter("PatchFeature", featureID); err != nil {
		return model.Feature{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	feat, ok := f.features[featureID]
	if !ok {
		return model.Feature{}, notFound("/features/" + featureID)
	}
	feat.IsCompleted = completed
	if completed {
		now := time.Now()
		feat.CompletedAt = &now
	} else {
		feat.CompletedAt = nil
	}
	feat.Status = progress.FeatureStatus(feat)
	f.features[featureID] = feat
	return feat, nil
}

func (f *Fake) RecomputeModule(ctx context.Context, moduleID string) (model.Module, error) {
	if err := f.enter("RecomputeModule", moduleID); err != nil {
		return model.Module{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	mod, ok := f.modules[moduleID]
	if !ok {
		return model.Module{}, notFound("/modules/" + moduleID)
	}
	mod.Features = f.featuresOf(moduleID)
	progress.ApplyModule(&mod)
	mod.Features = nil
	f.modules[moduleID] = mod
	return mod, nil
}

func (f *Fake) RecomputeMilestone(ctx context.Context, milestoneID string) (model.Milestone, error) {
	if err := f.enter("RecomputeMilestone", milestoneID); err != nil {
		return model.Milestone{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	ms, ok := f.milestones[milestoneID]
	if !ok {
		return model.Milestone{}, notFound("/milestones/" + milestoneID)
	}
	ms.Modules = f.modulesOf(milestoneID)
	progress.ApplyMilestone(&ms, progress.EqualWeighting)
	ms.Modules = nil
	f.milestones[milestoneID] = ms
	return ms, nil
}

func (f *Fake) SetBlocked(ctx context.Context, kind model.NodeKind, nodeID string, blocked bool) error {
	if err := f.enter("SetBlocked", nodeID); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	switch kind {
	case model.KindFeature:
		feat, ok := f.features[nodeID]
		if !ok {
			return notFound("/features/" + nodeID)
		}
		feat.Blocked = blocked
		feat.Status = progress.FeatureStatus(feat)
		f.features[nodeID] = feat
	case model.KindModule:
		mod, ok := f.modules[nodeID]
		if !ok {
			return notFound("/modules/" + nodeID)
		}
		mod.Blocked = blocked
		mod.Status = progress.DeriveStatus(mod.Progress, blocked)
		f.modules[nodeID] = mod
	case model.KindMilestone:
		ms, ok := f.milestones[nodeID]
		if !ok {
			return notFound("/milestones/" + nodeID)
		}
		ms.Blocked = blocked
		ms.Status = progress.DeriveStatus(ms.Progress, blocked)
		f.milestones[nodeID] = ms
	default:
		return fmt.Errorf("unsupported node kind %s", kind)
	}
	return nil
}

func (f *Fake) FetchTree(ctx context.Context, projectID string) ([]model.Milestone, error) {
	milestones, err := f.ListMilestones(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("list milestones: %w", err)
	}
	for i := range milestones {
		modules, err := f.ListModules(ctx, milestones[i].ID)
		if err != nil {
			return nil, fmt.Errorf("list modules of milestone %s: %w", milestones[i].ID, err)
		}
		for j := range modules {
			features, err := f.ListFeatures(ctx, modules[j].ID)
			if err != nil {
				return nil, fmt.Errorf("list features of module %s: %w", modules[j].ID, err)
			}
			modules[j].Features = features
		}
		milestones[i].Modules = modules
	}
	return milestones, nil
}
