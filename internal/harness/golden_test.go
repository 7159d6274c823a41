package harness

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunWithGolden(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/golden_users.yaml")
	require.NoError(t, err)

	result, err := RunWithGolden(t, scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, strings.Join(result.Errors, "\n"))
}

func TestNewSnapshot_OneEntryPerStep(t *testing.T) {
	result := NewResult()
	result.AddOutput(Output{Step: "a", Repository: "memory", Records: []map[string]any{{"id": int64(1)}}})
	result.AddOutput(Output{Step: "a", Repository: "sqlite", SQL: "SELECT 1", Records: []map[string]any{{"id": int64(1)}}})
	result.AddOutput(Output{Step: "b", Repository: "memory", Error: "INVALID_OPTION", Records: []map[string]any{}})
	result.AddOutput(Output{Step: "b", Repository: "sqlite", Error: "INVALID_OPTION", Records: []map[string]any{}})

	snap := NewSnapshot("s", result)
	require.Len(t, snap.Steps, 2)
	assert.Equal(t, "SELECT 1", snap.Steps[0].SQL)
	assert.Equal(t, "INVALID_OPTION", snap.Steps[1].Error)

	data, err := snap.MarshalCanonical()
	require.NoError(t, err)
	assert.Equal(t,
		`{"scenario_name":"s","steps":[{"records":[{"id":1}],"sql":"SELECT 1","step":"a"},{"error":"INVALID_OPTION","records":[],"step":"b"}]}`,
		string(data))
}
