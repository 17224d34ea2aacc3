// Package tree holds one project's tracking tree in memory.
//
// Nodes live in flat maps keyed by id. Parents are referenced by id and
// children by ordered id slices, so a node can be replaced without touching
// the rest of the tree.
package tree

import (
	"sort"
	"sync"
	"time"

	"trackhub/internal/model"
)

type Store struct {
	mu sync.RWMutex

	project    model.Project
	milestones map[string]model.Milestone
	modules    map[string]model.Module
	features   map[string]model.Feature

	milestoneOrder []string
	moduleOrder    map[string][]string // milestone id -> module ids
	featureOrder   map[string][]string // module id -> feature ids
}

func NewStore() *Store {
	s := &Store{}
	s.reset()
	return s
}

func (s *Store) reset() {
	s.project = model.Project{}
	s.milestones = make(map[string]model.Milestone)
	s.modules = make(map[string]model.Module)
	s.features = make(map[string]model.Feature)
	s.milestoneOrder = nil
	s.moduleOrder = make(map[string][]string)
	s.featureOrder = make(map[string][]string)
}

// Load replaces the store contents with a nested tree. Nested slices are
// flattened; the stored records keep no child slices of their own.
func (s *Store) Load(project model.Project, milestones []model.Milestone) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reset()
	s.project = project

	sorted := append([]model.Milestone(nil), milestones...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].OrderIndex < sorted[j].OrderIndex })

	for _, ms := range sorted {
		mods := append([]model.Module(nil), ms.Modules...)
		sort.SliceStable(mods, func(i, j int) bool { return mods[i].OrderIndex < mods[j].OrderIndex })

		ms.Modules = nil
		if ms.ProjectID == "" {
			ms.ProjectID = project.ID
		}
		s.milestones[ms.ID] = ms
		s.milestoneOrder = append(s.milestoneOrder, ms.ID)

		for _, mod := range mods {
			feats := append([]model.Feature(nil), mod.Features...)
			sort.SliceStable(feats, func(i, j int) bool { return feats[i].OrderIndex < feats[j].OrderIndex })

			mod.Features = nil
			mod.MilestoneID = ms.ID
			s.modules[mod.ID] = mod
			s.moduleOrder[ms.ID] = append(s.moduleOrder[ms.ID], mod.ID)

			for _, f := range feats {
				f.ModuleID = mod.ID
				s.features[f.ID] = f
				s.featureOrder[mod.ID] = append(s.featureOrder[mod.ID], f.ID)
			}
		}
	}
}

func (s *Store) Project() model.Project {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.project
}

// SetCompletion records the project-level completion percentage.
func (s *Store) SetCompletion(pct int) {
	s.mu.Lock()
	s.project.CompletionPercentage = pct
	s.mu.Unlock()
}

func (s *Store) Milestone(id string) (model.Milestone, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ms, ok := s.milestones[id]
	return ms, ok
}

func (s *Store) Module(id string) (model.Module, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.modules[id]
	return m, ok
}

func (s *Store) Feature(id string) (model.Feature, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.features[id]
	return f, ok
}

// Milestones returns the milestones in display order, without children.
func (s *Store) Milestones() []model.Milestone {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Milestone, 0, len(s.milestoneOrder))
	for _, id := range s.milestoneOrder {
		out = append(out, s.milestones[id])
	}
	return out
}

// Modules returns the modules of a milestone in display order, without children.
func (s *Store) Modules(milestoneID string) []model.Module {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.moduleOrder[milestoneID]
	out := make([]model.Module, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.modules[id])
	}
	return out
}

func (s *Store) Features(moduleID string) []model.Feature {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.featuresLocked(moduleID)
}

func (s *Store) featuresLocked(moduleID string) []model.Feature {
	ids := s.featureOrder[moduleID]
	out := make([]model.Feature, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.features[id])
	}
	return out
}

// PutFeature replaces an existing feature. It reports false for an unknown id;
// new nodes only enter the store through Load.
func (s *Store) PutFeature(f model.Feature) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.features[f.ID]
	if !ok {
		return false
	}
	f.ModuleID = old.ModuleID
	s.features[f.ID] = f
	return true
}

func (s *Store) PutModule(m model.Module) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.modules[m.ID]
	if !ok {
		return false
	}
	m.MilestoneID = old.MilestoneID
	m.Features = nil
	s.modules[m.ID] = m
	return true
}

func (s *Store) PutMilestone(ms model.Milestone) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.milestones[ms.ID]
	if !ok {
		return false
	}
	ms.ProjectID = old.ProjectID
	ms.Modules = nil
	s.milestones[ms.ID] = ms
	return true
}

// Update runs fn with the write lock held so a multi-node change is observed
// atomically by readers.
func (s *Store) Update(fn func(tx *Tx)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&Tx{s: s})
}

// Tx is the write view handed to Update. It must not escape fn.
type Tx struct {
	s *Store
}

func (tx *Tx) Feature(id string) (model.Feature, bool) {
	f, ok := tx.s.features[id]
	return f, ok
}

func (tx *Tx) Module(id string) (model.Module, bool) {
	m, ok := tx.s.modules[id]
	return m, ok
}

func (tx *Tx) Milestone(id string) (model.Milestone, bool) {
	ms, ok := tx.s.milestones[id]
	return ms, ok
}

func (tx *Tx) Features(moduleID string) []model.Feature {
	return tx.s.featuresLocked(moduleID)
}

// ModulesWithFeatures returns a milestone's modules with Features populated,
// which FeatureWeighting needs.
func (tx *Tx) ModulesWithFeatures(milestoneID string) []model.Module {
	ids := tx.s.moduleOrder[milestoneID]
	out := make([]model.Module, 0, len(ids))
	for _, id := range ids {
		m := tx.s.modules[id]
		m.Features = tx.s.featuresLocked(id)
		out = append(out, m)
	}
	return out
}

// Milestones returns the milestones in display order, without children.
func (tx *Tx) Milestones() []model.Milestone {
	out := make([]model.Milestone, 0, len(tx.s.milestoneOrder))
	for _, id := range tx.s.milestoneOrder {
		out = append(out, tx.s.milestones[id])
	}
	return out
}

func (tx *Tx) SetCompletion(pct int) {
	tx.s.project.CompletionPercentage = pct
}

func (tx *Tx) SetFeature(f model.Feature) {
	if _, ok := tx.s.features[f.ID]; ok {
		tx.s.features[f.ID] = f
	}
}

func (tx *Tx) SetModule(m model.Module) {
	if _, ok := tx.s.modules[m.ID]; ok {
		m.Features = nil
		tx.s.modules[m.ID] = m
	}
}

func (tx *Tx) SetMilestone(ms model.Milestone) {
	if _, ok := tx.s.milestones[ms.ID]; ok {
		ms.Modules = nil
		tx.s.milestones[ms.ID] = ms
	}
}

// Snapshot assembles the nested tree in display order. The result shares no
// memory with the store, time pointers included.
func (s *Store) Snapshot() []model.Milestone {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Milestone, 0, len(s.milestoneOrder))
	for _, msID := range s.milestoneOrder {
		ms := s.milestones[msID]
		ms.DueDate = copyTime(ms.DueDate)
		ms.CompletedAt = copyTime(ms.CompletedAt)
		for _, modID := range s.moduleOrder[msID] {
			mod := s.modules[modID]
			mod.Features = s.featuresLocked(modID)
			for i := range mod.Features {
				mod.Features[i].CompletedAt = copyTime(mod.Features[i].CompletedAt)
			}
			ms.Modules = append(ms.Modules, mod)
		}
		out = append(out, ms)
	}
	return out
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
