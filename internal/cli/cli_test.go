package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"trackhub/internal/gateway"
	"trackhub/internal/gateway/gatewaytest"
	"trackhub/internal/model"
	"trackhub/internal/overview"
	rf "trackhub/internal/resultsframework"
)

func seed() *gatewaytest.Fake {
	fake := gatewaytest.New()
	fake.AddProject(model.Project{ID: "p1", Name: "Alpha"}, []model.Milestone{
		{
			ID: "ms-1", Name: "Launch", OrderIndex: 1,
			Modules: []model.Module{
				{
					ID: "mod-1", Name: "Auth", OrderIndex: 1,
					Features: []model.Feature{
						{ID: "f-1", Name: "Login", OrderIndex: 1},
						{ID: "f-2", Name: "Logout", OrderIndex: 2},
						{ID: "f-3", Name: "Reset", OrderIndex: 3},
					},
				},
				{
					ID: "mod-2", Name: "Docs", OrderIndex: 2,
					Features: []model.Feature{
						{ID: "f-4", Name: "Readme", OrderIndex: 1, IsCompleted: true},
					},
				},
			},
		},
		{ID: "ms-2", Name: "Scale", OrderIndex: 2},
	})
	return fake
}

func run(t *testing.T, fake *gatewaytest.Fake, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := NewRootCmd(Options{
		Out: &out,
		Err: &out,
		NewGateway: func(Settings, *zap.Logger) (gateway.Gateway, error) {
			return fake, nil
		},
	})
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestTreePrintsRollups(t *testing.T) {
	out, err := run(t, seed(), "tree", "p1")
	require.NoError(t, err)

	assert.Contains(t, out, "Alpha (p1)  25%")
	assert.Contains(t, out, "ms-1 Launch  IN_PROGRESS 50%")
	assert.Contains(t, out, "mod-2 Docs  COMPLETED 100%")
	assert.Contains(t, out, "[x] f-4 Readme")
	assert.Contains(t, out, "[ ] f-1 Login")
}

func TestToggleFlipsAndRollsUp(t *testing.T) {
	fake := seed()
	out, err := run(t, fake, "toggle", "p1", "f-1")
	require.NoError(t, err)

	assert.Contains(t, out, "[x] f-1 Login")
	assert.Contains(t, out, "module mod-1: 33% IN_PROGRESS")
	assert.Contains(t, out, "milestone ms-1: 67% IN_PROGRESS")
	assert.Contains(t, out, "project p1: 34%")
	assert.Contains(t, fake.Calls(), "PatchFeature:f-1")
}

func TestToggleExplicitValue(t *testing.T) {
	fake := seed()
	out, err := run(t, fake, "toggle", "p1", "f-4", "--done=false")
	require.NoError(t, err)
	assert.Contains(t, out, "[ ] f-4 Readme")
	assert.Contains(t, out, "module mod-2: 0% NOT_STARTED")
}

func TestToggleFailureReportsRevert(t *testing.T) {
	fake := seed()
	fake.FailOn = func(op, _ string) error {
		if op == "PatchFeature" {
			return &gateway.StatusError{Method: "PATCH", Path: "/features/f-1", StatusCode: 503}
		}
		return nil
	}

	_, err := run(t, fake, "toggle", "p1", "f-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reverted")
}

func TestToggleUnknownFeature(t *testing.T) {
	_, err := run(t, seed(), "toggle", "p1", "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope")
}

func TestBlockPersistsFlag(t *testing.T) {
	fake := seed()
	out, err := run(t, fake, "block", "p1", "module", "mod-2")
	require.NoError(t, err)
	assert.Contains(t, out, "module mod-2: blocked=true BLOCKED")
	assert.Contains(t, fake.Calls(), "SetBlocked:mod-2")

	out, err = run(t, fake, "tree", "p1")
	require.NoError(t, err)
	assert.Contains(t, out, "mod-2 Docs  BLOCKED 100%")

	out, err = run(t, fake, "block", "p1", "module", "mod-2", "--clear")
	require.NoError(t, err)
	assert.Contains(t, out, "module mod-2: blocked=false COMPLETED")
}

func TestBlockRejectsUnknownKind(t *testing.T) {
	fake := seed()
	_, err := run(t, fake, "block", "p1", "epic", "mod-2")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "epic")
	assert.NotContains(t, fake.Calls(), "GetProject:p1")
}

func TestBlockFailureReportsRevert(t *testing.T) {
	fake := seed()
	fake.FailOn = func(op, _ string) error {
		if op == "SetBlocked" {
			return &gateway.StatusError{Method: "PATCH", Path: "/milestones/ms-1", StatusCode: 503}
		}
		return nil
	}
	_, err := run(t, fake, "block", "p1", "milestone", "ms-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reverted")
}

func TestRecomputeModule(t *testing.T) {
	fake := seed()
	out, err := run(t, fake, "recompute", "p1", "mod-2")
	require.NoError(t, err)
	assert.Contains(t, out, "module mod-2: 100% COMPLETED")
	assert.Contains(t, fake.Calls(), "RecomputeModule:mod-2")
	assert.Contains(t, fake.Calls(), "RecomputeMilestone:ms-1")
}

func TestOverviewDeepJSON(t *testing.T) {
	out, err := run(t, seed(), "overview", "--deep", "--json")
	require.NoError(t, err)

	var ov overview.Overview
	require.NoError(t, json.Unmarshal([]byte(out), &ov))
	require.Len(t, ov.Projects, 1)
	assert.Equal(t, "Alpha", ov.Projects[0].Name)
	assert.Equal(t, 2, ov.Projects[0].MilestoneCount)
	assert.Equal(t, 25, ov.Projects[0].OverallProgress)
	assert.Zero(t, ov.Failed)
}

func TestOverviewExplicitProjects(t *testing.T) {
	out, err := run(t, seed(), "overview", "p1", "ghost")
	require.NoError(t, err)
	assert.Contains(t, out, "Alpha")
	assert.Contains(t, out, "1 of 2 projects could not be loaded")
}

func TestResultsFrameworkEditing(t *testing.T) {
	fake := seed()

	out, err := run(t, fake, "rf", "add-objective", "p1", "--title", "Reach")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(out, "added objective "))
	objID := strings.TrimSpace(strings.TrimPrefix(out, "added objective "))

	out, err = run(t, fake, "rf", "add-outcome", "p1", objID, "--title", "Adoption", "--json")
	require.NoError(t, err)
	var added map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &added))
	outcomeID := added["id"]
	require.NotEmpty(t, outcomeID)

	_, err = run(t, fake, "rf", "add-indicator", "p1", objID, outcomeID,
		"--description", "Weekly users", "--baseline", "0", "--baseline-unit", "users",
		"--disaggregation", "gender,region,gender")
	require.NoError(t, err)

	out, err = run(t, fake, "rf", "show", "p1")
	require.NoError(t, err)
	assert.Contains(t, out, "Objective "+objID+"  Reach")
	assert.Contains(t, out, "Outcome "+outcomeID+"  Adoption")
	assert.Contains(t, out, "Weekly users  baseline 0 users  by gender,region")
	assert.Contains(t, out, "1 objectives, 1 outcomes, 0 outputs, 1 indicators")

	_, err = run(t, fake, "rf", "remove", "p1", objID)
	require.NoError(t, err)
	out, err = run(t, fake, "rf", "show", "p1")
	require.NoError(t, err)
	assert.Contains(t, out, "(no objectives)")
}

func TestResultsFrameworkUnknownParent(t *testing.T) {
	fake := seed()
	_, err := run(t, fake, "rf", "add-outcome", "p1", "missing")
	require.ErrorIs(t, err, rf.ErrPathNotFound)
	assert.NotContains(t, fake.Calls(), "UpdateProjectResultsFramework:p1")
}

func TestInvalidWeighting(t *testing.T) {
	_, err := run(t, seed(), "tree", "p1", "--weighting", "hours")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "weighting")
}
