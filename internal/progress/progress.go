// Package progress computes the bottom-up rollups of the tracking tree.
//
// Every function here is pure: callers pass the current children and get the
// parent's value back. Nothing is accumulated, so recomputing is idempotent
// and safe to repeat when responses arrive out of order.
package progress

import (
	"math"

	"trackhub/internal/model"
)

// Weighting selects how a milestone combines its modules.
type Weighting int

const (
	// EqualWeighting averages module progress, each module counting once.
	EqualWeighting Weighting = iota
	// FeatureWeighting weights each module by its feature count.
	FeatureWeighting
)

// ParseWeighting maps a config string to a Weighting; unknown values mean equal.
func ParseWeighting(s string) Weighting {
	if s == "feature" {
		return FeatureWeighting
	}
	return EqualWeighting
}

// Round rounds half up onto the 0..100 integer scale.
func Round(x float64) int {
	if math.IsNaN(x) {
		return 0
	}
	r := int(math.Floor(x + 0.5))
	switch {
	case r < 0:
		return 0
	case r > 100:
		return 100
	}
	return r
}

// ModuleProgress is round(100 * completed / total), 0 when there are no features.
func ModuleProgress(features []model.Feature) int {
	if len(features) == 0 {
		return 0
	}
	completed := 0
	for _, f := range features {
		if f.IsCompleted {
			completed++
		}
	}
	return Round(100 * float64(completed) / float64(len(features)))
}

// MilestoneProgress averages module progress with equal weights.
func MilestoneProgress(modules []model.Module) int {
	return MilestoneProgressWeighted(modules, EqualWeighting)
}

// MilestoneProgressWeighted combines module progress using w. With
// FeatureWeighting the modules' Features must be populated; a milestone whose
// modules have no features at all falls back to the equal average.
func MilestoneProgressWeighted(modules []model.Module, w Weighting) int {
	if len(modules) == 0 {
		return 0
	}

	if w == FeatureWeighting {
		var weighted float64
		total := 0
		for _, m := range modules {
			weighted += float64(m.Progress * len(m.Features))
			total += len(m.Features)
		}
		if total > 0 {
			return Round(weighted / float64(total))
		}
	}

	sum := 0
	for _, m := range modules {
		sum += m.Progress
	}
	return Round(float64(sum) / float64(len(modules)))
}

// ProjectCompletion averages milestone progress with equal weights.
func ProjectCompletion(milestones []model.Milestone) int {
	if len(milestones) == 0 {
		return 0
	}
	sum := 0
	for _, m := range milestones {
		sum += m.Progress
	}
	return Round(float64(sum) / float64(len(milestones)))
}

// CompletedMilestones counts milestones whose status is COMPLETED.
func CompletedMilestones(milestones []model.Milestone) int {
	n := 0
	for _, m := range milestones {
		if m.Status == model.StatusCompleted {
			n++
		}
	}
	return n
}

// DeriveStatus maps progress plus the blocked override onto a status.
// BLOCKED wins over any progress value and leaves progress untouched.
func DeriveStatus(progress int, blocked bool) model.Status {
	switch {
	case blocked:
		return model.StatusBlocked
	case progress >= 100:
		return model.StatusCompleted
	case progress > 0:
		return model.StatusInProgress
	default:
		return model.StatusNotStarted
	}
}

// FeatureStatus derives a feature's status. A completed feature reports
// COMPLETED even when flagged blocked.
func FeatureStatus(f model.Feature) model.Status {
	if f.IsCompleted {
		return model.StatusCompleted
	}
	return DeriveStatus(0, f.Blocked)
}

// ApplyModule recomputes m.Progress and m.Status from m.Features.
func ApplyModule(m *model.Module) {
	m.Progress = ModuleProgress(m.Features)
	m.Status = DeriveStatus(m.Progress, m.Blocked)
}

// ApplyMilestone recomputes m.Progress and m.Status from m.Modules.
func ApplyMilestone(m *model.Milestone, w Weighting) {
	m.Progress = MilestoneProgressWeighted(m.Modules, w)
	m.Status = DeriveStatus(m.Progress, m.Blocked)
}

// ApplyTree recomputes every feature status, module and milestone in place,
// leaf to root, and returns the project completion.
func ApplyTree(milestones []model.Milestone, w Weighting) int {
	for i := range milestones {
		ms := &milestones[i]
		for j := range ms.Modules {
			mod := &ms.Modules[j]
			for k := range mod.Features {
				mod.Features[k].Status = FeatureStatus(mod.Features[k])
			}
			ApplyModule(mod)
		}
		ApplyMilestone(ms, w)
	}
	return ProjectCompletion(milestones)
}
