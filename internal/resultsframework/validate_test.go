package resultsframework

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trackhub/internal/model"
)

func TestValidateDetectsDuplicates(t *testing.T) {
	rf := model.ResultsFramework{Objectives: []model.Objective{
		{ID: "a", Outcomes: []model.Outcome{{ID: "b", Outputs: []model.Output{{ID: "a"}}}}},
		{ID: ""},
	}}

	err := Validate(rf)
	require.Error(t, err)

	var dup *DuplicateIDError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "a", dup.ID)
	assert.Equal(t, "objective", dup.First)
	assert.Equal(t, "output", dup.Again)
	assert.Contains(t, err.Error(), "empty id")
}

func TestValidateAcceptsBuiltTree(t *testing.T) {
	assert.NoError(t, Validate(buildTree(t)))
	assert.NoError(t, Validate(model.ResultsFramework{}))
}

func TestExpandState(t *testing.T) {
	s := NewExpandState()

	assert.True(t, s.Toggle("o1"))
	assert.True(t, s.IsExpanded("o1"))
	assert.False(t, s.Toggle("o1"))
	assert.False(t, s.IsExpanded("o1"))

	s.Expand("o1")
	s.Expand("o2")
	s.Collapse("o2")
	assert.Equal(t, 1, s.Len())

	s.Reset()
	assert.Zero(t, s.Len())
}
