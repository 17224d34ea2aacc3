package tracking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"trackhub/internal/gateway/gatewaytest"
	"trackhub/internal/model"
	"trackhub/internal/progress"
	"trackhub/internal/tree"
)

var errBoom = errors.New("boom")

func seed() *gatewaytest.Fake {
	fake := gatewaytest.New()
	fake.AddProject(model.Project{ID: "p1", Name: "Alpha"}, []model.Milestone{
		{
			ID: "ms-1", OrderIndex: 1,
			Modules: []model.Module{
				{
					ID: "mod-1", OrderIndex: 1,
					Features: []model.Feature{
						{ID: "f-1", OrderIndex: 1},
						{ID: "f-2", OrderIndex: 2},
						{ID: "f-3", OrderIndex: 3},
					},
				},
				{
					ID: "mod-2", OrderIndex: 2,
					Features: []model.Feature{
						{ID: "f-4", OrderIndex: 1, IsCompleted: true},
					},
				},
			},
		},
		{ID: "ms-2", OrderIndex: 2},
	})
	return fake
}

func newEngine(t *testing.T, fake *gatewaytest.Fake) *Engine {
	t.Helper()
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	e := NewEngine(tree.NewStore(), fake, zap.NewNop(), withClock(func() time.Time { return fixed }))
	require.NoError(t, e.Load(context.Background(), "p1"))
	return e
}

func TestLoadDerivesRollups(t *testing.T) {
	e := newEngine(t, seed())

	mod, ok := e.Store().Module("mod-2")
	require.True(t, ok)
	assert.Equal(t, 100, mod.Progress)
	assert.Equal(t, model.StatusCompleted, mod.Status)

	ms, _ := e.Store().Milestone("ms-1")
	assert.Equal(t, 50, ms.Progress)
	assert.Equal(t, 25, e.Store().Project().CompletionPercentage)
}

func TestToggleFeatureRollsUp(t *testing.T) {
	fake := seed()
	e := newEngine(t, fake)

	f, err := e.ToggleFeature(context.Background(), "f-1", true)
	require.NoError(t, err)
	assert.True(t, f.IsCompleted)
	assert.NotNil(t, f.CompletedAt)
	assert.Equal(t, model.StatusCompleted, f.Status)

	mod, _ := e.Store().Module("mod-1")
	assert.Equal(t, 33, mod.Progress)
	assert.Equal(t, model.StatusInProgress, mod.Status)

	ms, _ := e.Store().Milestone("ms-1")
	assert.Equal(t, 67, ms.Progress)
	assert.Equal(t, 34, e.Store().Project().CompletionPercentage)

	assert.Contains(t, fake.Calls(), "PatchFeature:f-1")
	assert.Contains(t, fake.Calls(), "RecomputeModule:mod-1")
	assert.Contains(t, fake.Calls(), "RecomputeMilestone:ms-1")
}

func TestToggleTwiceRestoresState(t *testing.T) {
	e := newEngine(t, seed())
	before, _ := e.Store().Module("mod-1")

	_, err := e.ToggleFeature(context.Background(), "f-2", true)
	require.NoError(t, err)
	f, err := e.ToggleFeature(context.Background(), "f-2", false)
	require.NoError(t, err)

	assert.False(t, f.IsCompleted)
	assert.Nil(t, f.CompletedAt)
	after, _ := e.Store().Module("mod-1")
	assert.Equal(t, before.Progress, after.Progress)
	assert.Equal(t, before.Status, after.Status)
}

func TestReopeningFeatureOfCompletedModule(t *testing.T) {
	e := newEngine(t, seed())

	_, err := e.ToggleFeature(context.Background(), "f-4", false)
	require.NoError(t, err)

	mod, _ := e.Store().Module("mod-2")
	assert.Equal(t, 0, mod.Progress)
	assert.Equal(t, model.StatusNotStarted, mod.Status)
}

func TestToggleUnknownFeature(t *testing.T) {
	fake := seed()
	e := newEngine(t, fake)

	_, err := e.ToggleFeature(context.Background(), "nope", true)
	assert.ErrorIs(t, err, ErrNodeNotFound)
	assert.NotContains(t, fake.Calls(), "PatchFeature:nope")
}

func TestFailedWriteIsReverted(t *testing.T) {
	fake := seed()
	e := newEngine(t, fake)
	fake.FailOn = func(op, id string) error {
		if op == "PatchFeature" {
			return errBoom
		}
		return nil
	}

	f, err := e.ToggleFeature(context.Background(), "f-1", true)

	var me *MutationError
	require.ErrorAs(t, err, &me)
	assert.True(t, me.Reverted)
	assert.Equal(t, "f-1", me.NodeID)
	assert.ErrorIs(t, err, errBoom)

	assert.False(t, f.IsCompleted)
	mod, _ := e.Store().Module("mod-1")
	assert.Equal(t, 0, mod.Progress)
	ms, _ := e.Store().Milestone("ms-1")
	assert.Equal(t, 50, ms.Progress)
	assert.False(t, e.CanUndo())
}

func TestFailedRecomputeKeepsToggle(t *testing.T) {
	fake := seed()
	e := newEngine(t, fake)
	fake.FailOn = func(op, id string) error {
		if op == "RecomputeModule" {
			return errBoom
		}
		return nil
	}

	f, err := e.ToggleFeature(context.Background(), "f-1", true)

	var me *MutationError
	require.ErrorAs(t, err, &me)
	assert.False(t, me.Reverted)
	assert.Equal(t, "recompute_module", me.Op)
	assert.True(t, f.IsCompleted)

	mod, _ := e.Store().Module("mod-1")
	assert.Equal(t, 33, mod.Progress)
	ms, _ := e.Store().Milestone("ms-1")
	assert.Equal(t, 67, ms.Progress)
	assert.Equal(t, progress.ProjectCompletion(e.Store().Milestones()), e.Store().Project().CompletionPercentage)
	assert.Equal(t, 34, e.Store().Project().CompletionPercentage)
}

func TestFailedMilestoneRecomputeKeepsCompletionDerived(t *testing.T) {
	fake := seed()
	e := newEngine(t, fake)
	fake.FailOn = func(op, id string) error {
		if op == "RecomputeMilestone" {
			return errBoom
		}
		return nil
	}

	_, err := e.ToggleFeature(context.Background(), "f-4", false)
	var me *MutationError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, "recompute_milestone", me.Op)

	ms, _ := e.Store().Milestone("ms-1")
	assert.Equal(t, 0, ms.Progress)
	assert.Equal(t, 0, e.Store().Project().CompletionPercentage)
}

// delayedGateway holds back the response of the first PatchFeature call
// until release is closed, after the server has already applied it.
type delayedGateway struct {
	*gatewaytest.Fake
	once    sync.Once
	reached chan struct{}
	release chan struct{}
}

func (g *delayedGateway) PatchFeature(ctx context.Context, id string, completed bool) (model.Feature, error) {
	f, err := g.Fake.PatchFeature(ctx, id, completed)
	first := false
	g.once.Do(func() { first = true })
	if first {
		close(g.reached)
		<-g.release
	}
	return f, err
}

func TestStaleResponseIsDiscarded(t *testing.T) {
	gw := &delayedGateway{
		Fake:    seed(),
		reached: make(chan struct{}),
		release: make(chan struct{}),
	}
	e := NewEngine(tree.NewStore(), gw, zap.NewNop())
	require.NoError(t, e.Load(context.Background(), "p1"))

	done := make(chan error, 1)
	go func() {
		_, err := e.ToggleFeature(context.Background(), "f-1", true)
		done <- err
	}()
	<-gw.reached

	_, err := e.ToggleFeature(context.Background(), "f-1", false)
	require.NoError(t, err)

	close(gw.release)
	require.NoError(t, <-done)

	f, _ := e.Store().Feature("f-1")
	assert.False(t, f.IsCompleted, "older response must not overwrite the newer toggle")
	mod, _ := e.Store().Module("mod-1")
	assert.Equal(t, 0, mod.Progress)
}

func TestSetBlockedKeepsProgress(t *testing.T) {
	fake := seed()
	e := newEngine(t, fake)
	ctx := context.Background()

	require.NoError(t, e.SetBlocked(ctx, model.KindModule, "mod-2", true))
	mod, _ := e.Store().Module("mod-2")
	assert.Equal(t, 100, mod.Progress)
	assert.Equal(t, model.StatusBlocked, mod.Status)
	assert.Contains(t, fake.Calls(), "SetBlocked:mod-2")

	desc, err := e.Undo(ctx)
	require.NoError(t, err)
	assert.Equal(t, "block module mod-2", desc)
	mod, _ = e.Store().Module("mod-2")
	assert.Equal(t, model.StatusCompleted, mod.Status)

	remote, err := fake.ListModules(ctx, "ms-1")
	require.NoError(t, err)
	assert.False(t, remote[1].Blocked)

	err = e.SetBlocked(ctx, model.KindFeature, "missing", true)
	assert.ErrorIs(t, err, ErrNodeNotFound)
}

func TestSetBlockedSurvivesReload(t *testing.T) {
	fake := seed()
	e := newEngine(t, fake)
	ctx := context.Background()

	require.NoError(t, e.SetBlocked(ctx, model.KindModule, "mod-1", true))
	require.NoError(t, e.SetBlocked(ctx, model.KindFeature, "f-2", true))
	require.NoError(t, e.Load(ctx, "p1"))

	mod, _ := e.Store().Module("mod-1")
	assert.True(t, mod.Blocked)
	assert.Equal(t, model.StatusBlocked, mod.Status)
	f, _ := e.Store().Feature("f-2")
	assert.True(t, f.Blocked)
	assert.Equal(t, model.StatusBlocked, f.Status)
}

func TestFailedBlockedWriteIsReverted(t *testing.T) {
	fake := seed()
	e := newEngine(t, fake)
	fake.FailOn = func(op, id string) error {
		if op == "SetBlocked" {
			return errBoom
		}
		return nil
	}

	err := e.SetBlocked(context.Background(), model.KindMilestone, "ms-1", true)
	var me *MutationError
	require.ErrorAs(t, err, &me)
	assert.True(t, me.Reverted)
	assert.Equal(t, "set_blocked", me.Op)
	assert.ErrorIs(t, err, errBoom)

	ms, _ := e.Store().Milestone("ms-1")
	assert.False(t, ms.Blocked)
	assert.Equal(t, model.StatusInProgress, ms.Status)
	assert.False(t, e.CanUndo())
}

func TestFailedUndoKeepsHistory(t *testing.T) {
	fake := seed()
	e := newEngine(t, fake)
	ctx := context.Background()

	_, err := e.ToggleFeature(ctx, "f-3", true)
	require.NoError(t, err)

	fake.FailOn = func(op, id string) error {
		if op == "PatchFeature" {
			return errBoom
		}
		return nil
	}
	_, err = e.Undo(ctx)
	var me *MutationError
	require.ErrorAs(t, err, &me)
	assert.True(t, me.Reverted)
	assert.True(t, e.CanUndo())
	f, _ := e.Store().Feature("f-3")
	assert.True(t, f.IsCompleted)

	fake.FailOn = nil
	desc, err := e.Undo(ctx)
	require.NoError(t, err)
	assert.Equal(t, "complete feature f-3", desc)
	f, _ = e.Store().Feature("f-3")
	assert.False(t, f.IsCompleted)
	assert.False(t, e.CanUndo())
}

func TestUndoToggle(t *testing.T) {
	fake := seed()
	e := newEngine(t, fake)
	ctx := context.Background()

	_, err := e.Undo(ctx)
	assert.ErrorIs(t, err, ErrNothingToUndo)

	_, err = e.ToggleFeature(ctx, "f-3", true)
	require.NoError(t, err)
	require.True(t, e.CanUndo())

	desc, err := e.Undo(ctx)
	require.NoError(t, err)
	assert.Equal(t, "complete feature f-3", desc)

	f, _ := e.Store().Feature("f-3")
	assert.False(t, f.IsCompleted)
	assert.False(t, e.CanUndo())

	remote, err := fake.ListFeatures(ctx, "mod-1")
	require.NoError(t, err)
	assert.False(t, remote[2].IsCompleted)
}

func TestRecomputeModuleProgress(t *testing.T) {
	fake := seed()
	e := newEngine(t, fake)

	mod, err := e.RecomputeModuleProgress(context.Background(), "mod-2")
	require.NoError(t, err)
	assert.Equal(t, 100, mod.Progress)
	assert.Contains(t, fake.Calls(), "RecomputeMilestone:ms-1")

	_, err = e.RecomputeModuleProgress(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNodeNotFound)
	_, err = e.RecomputeMilestoneProgress(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNodeNotFound)
}

func TestProjectCompletionScenario(t *testing.T) {
	fake := gatewaytest.New()
	fake.AddProject(model.Project{ID: "p1"}, []model.Milestone{
		{
			ID: "ms-1", OrderIndex: 1,
			Modules: []model.Module{
				{ID: "a", Features: []model.Feature{{ID: "fa", IsCompleted: true}}},
				{ID: "b", OrderIndex: 1, Features: []model.Feature{{ID: "fb", IsCompleted: true}}},
			},
		},
		{ID: "ms-2", OrderIndex: 2},
	})
	e := NewEngine(tree.NewStore(), fake, zap.NewNop())
	require.NoError(t, e.Load(context.Background(), "p1"))

	completion, err := e.RecomputeProjectCompletion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 50, completion)

	_, err = NewEngine(tree.NewStore(), fake, zap.NewNop()).RecomputeProjectCompletion(context.Background())
	assert.ErrorIs(t, err, ErrNotLoaded)
}

func TestFeatureWeighting(t *testing.T) {
	e := NewEngine(tree.NewStore(), seed(), zap.NewNop(), WithWeighting(progress.FeatureWeighting))
	require.NoError(t, e.Load(context.Background(), "p1"))

	ms, _ := e.Store().Milestone("ms-1")
	assert.Equal(t, 25, ms.Progress)
}
