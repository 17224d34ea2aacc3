package progress

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"trackhub/internal/model"
)

func features(done ...bool) []model.Feature {
	out := make([]model.Feature, len(done))
	for i, d := range done {
		out[i] = model.Feature{ID: string(rune('a' + i)), IsCompleted: d}
	}
	return out
}

func modules(progress ...int) []model.Module {
	out := make([]model.Module, len(progress))
	for i, p := range progress {
		out[i] = model.Module{Progress: p}
	}
	return out
}

func TestRound(t *testing.T) {
	tests := []struct {
		in   float64
		want int
	}{
		{33.333, 33},
		{66.666, 67},
		{12.5, 13},
		{0.5, 1},
		{0.49, 0},
		{-3, 0},
		{150, 100},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Round(tt.in), "Round(%v)", tt.in)
	}
}

func TestModuleProgress(t *testing.T) {
	assert.Equal(t, 0, ModuleProgress(nil))
	assert.Equal(t, 33, ModuleProgress(features(true, false, false)))
	assert.Equal(t, 67, ModuleProgress(features(true, true, false)))
	assert.Equal(t, 100, ModuleProgress(features(true, true)))
	assert.Equal(t, 13, ModuleProgress(features(true, false, false, false, false, false, false, false)))
}

func TestModuleProgressBounds(t *testing.T) {
	for n := 0; n <= 12; n++ {
		for done := 0; done <= n; done++ {
			fs := make([]model.Feature, n)
			for i := 0; i < done; i++ {
				fs[i].IsCompleted = true
			}
			p := ModuleProgress(fs)
			assert.GreaterOrEqual(t, p, 0)
			assert.LessOrEqual(t, p, 100)
			if done == 0 {
				assert.Equal(t, 0, p)
			}
			if n > 0 && done == n {
				assert.Equal(t, 100, p)
			}
		}
	}
}

func TestMilestoneProgressEqualWeighting(t *testing.T) {
	assert.Equal(t, 0, MilestoneProgress(nil))
	assert.Equal(t, 50, MilestoneProgress(modules(0, 50, 100)))
	assert.Equal(t, 100, MilestoneProgress(modules(100, 100)))
	assert.Equal(t, 67, MilestoneProgress(modules(100, 100, 0)))
}

func TestMilestoneProgressFeatureWeighting(t *testing.T) {
	small := model.Module{Progress: 100, Features: features(true)}
	large := model.Module{Progress: 0, Features: features(false, false, false)}

	assert.Equal(t, 50, MilestoneProgressWeighted([]model.Module{small, large}, EqualWeighting))
	assert.Equal(t, 25, MilestoneProgressWeighted([]model.Module{small, large}, FeatureWeighting))
	assert.Equal(t, 50, MilestoneProgressWeighted(modules(0, 100), FeatureWeighting), "no features falls back to equal")
}

func TestProjectCompletionScenario(t *testing.T) {
	first := model.Milestone{Modules: modules(100, 100)}
	first.Progress = MilestoneProgress(first.Modules)
	second := model.Milestone{}
	second.Progress = MilestoneProgress(second.Modules)

	assert.Equal(t, 100, first.Progress)
	assert.Equal(t, 0, second.Progress)
	assert.Equal(t, 50, ProjectCompletion([]model.Milestone{first, second}))
	assert.Equal(t, 0, ProjectCompletion(nil))
}

func TestDeriveStatus(t *testing.T) {
	assert.Equal(t, model.StatusNotStarted, DeriveStatus(0, false))
	assert.Equal(t, model.StatusInProgress, DeriveStatus(1, false))
	assert.Equal(t, model.StatusCompleted, DeriveStatus(100, false))
	assert.Equal(t, model.StatusBlocked, DeriveStatus(100, true))
	assert.Equal(t, model.StatusBlocked, DeriveStatus(0, true))
}

func TestApplyTreeDropsCompletedStatusWhenFeatureReopens(t *testing.T) {
	tree := []model.Milestone{{
		ID: "ms",
		Modules: []model.Module{{
			ID:       "mod",
			Features: features(true, true),
		}},
	}}
	assert.Equal(t, 100, ApplyTree(tree, EqualWeighting))
	assert.Equal(t, model.StatusCompleted, tree[0].Modules[0].Status)
	assert.Equal(t, model.StatusCompleted, tree[0].Status)

	tree[0].Modules[0].Features[1].IsCompleted = false
	assert.Equal(t, 50, ApplyTree(tree, EqualWeighting))
	assert.Equal(t, model.StatusInProgress, tree[0].Modules[0].Status)
	assert.Equal(t, model.StatusNotStarted, tree[0].Modules[0].Features[1].Status)
	assert.Equal(t, model.StatusInProgress, tree[0].Status)
	assert.Equal(t, 1, CompletedMilestones([]model.Milestone{{Status: model.StatusCompleted}, {}}))
}
