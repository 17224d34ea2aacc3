package resultsframework

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trackhub/internal/model"
)

func TestBlobRoundTrip(t *testing.T) {
	rf := model.ResultsFramework{Objectives: []model.Objective{
		{
			ID: "o1", Title: "Improve health", Description: "district level",
			Outcomes: []model.Outcome{
				{
					ID: "oc1", Title: "Access",
					Indicators: []model.Indicator{{
						ID: "i1", Description: "clinics per 10k",
						Baseline:         model.Baseline{Value: "1.2", Unit: "clinics"},
						MonitoringMethod: "survey",
						Targets:          model.Targets{Year1: "1.5", Year2: "2", Year3: "2.5"},
						TargetUnit:       "clinics",
						Frequency:        "annual",
						DataSource:       "ministry",
						Disaggregation:   []string{"region", "sex"},
						Comments:         "none",
					}},
					Outputs: []model.Output{
						{ID: "op2", Title: "second"},
						{ID: "op1", Title: "first", Indicators: []model.Indicator{{ID: "i2"}}},
					},
				},
			},
		},
		{ID: "o2"},
	}}

	data, err := Marshal(rf)
	require.NoError(t, err)
	got, err := Unmarshal(data)
	require.NoError(t, err)

	if diff := cmp.Diff(Clone(rf), got); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "op2", got.Objectives[0].Outcomes[0].Outputs[0].ID, "order preserved")
}

func TestMarshalEmitsArraysAndCamelCase(t *testing.T) {
	data, err := Marshal(model.ResultsFramework{Objectives: []model.Objective{{ID: "o1"}}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"objectives":[{"id":"o1","title":"","description":"","outcomes":[]}]}`, string(data))

	data, err = Marshal(model.ResultsFramework{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"objectives":[]}`, string(data))
}

func TestUnmarshalEmptyAndInvalid(t *testing.T) {
	for _, in := range []string{"", "  ", "null"} {
		rf, err := Unmarshal([]byte(in))
		require.NoError(t, err)
		assert.NotNil(t, rf.Objectives)
		assert.Empty(t, rf.Objectives)
	}

	_, err := Unmarshal([]byte(`{"objectives": {}}`))
	assert.Error(t, err)
}

func TestUnmarshalReadsMonitoringFields(t *testing.T) {
	blob := `{"objectives":[{"id":"o1","outcomes":[{"id":"oc1","indicators":[{"id":"i1",
		"baseline":{"value":"10","unit":"%"},"targets":{"year1":"a","year2":"b","year3":"c"},
		"targetUnit":"%","dataSource":"census","disaggregation":["age","age"]}]}]}]}`

	rf, err := Unmarshal([]byte(blob))
	require.NoError(t, err)
	ind := rf.Objectives[0].Outcomes[0].Indicators[0]
	assert.Equal(t, "10", ind.Baseline.Value)
	assert.Equal(t, "c", ind.Targets.Year3)
	assert.Equal(t, "census", ind.DataSource)
	assert.Equal(t, []string{"age"}, ind.Disaggregation)
	assert.NotNil(t, rf.Objectives[0].Outcomes[0].Outputs)
}
