package harness

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadAndRun(t *testing.T, path string) *Result {
	t.Helper()
	scenario, err := LoadScenario(path)
	require.NoError(t, err)
	result, err := Run(scenario)
	require.NoError(t, err)
	return result
}

func TestRun_UsersScenario(t *testing.T) {
	result := loadAndRun(t, "testdata/scenarios/users.yaml")
	assert.True(t, result.Pass, strings.Join(result.Errors, "\n"))
	assert.Empty(t, result.Errors)

	// One output per step and repository.
	scenario, err := LoadScenario("testdata/scenarios/users.yaml")
	require.NoError(t, err)
	assert.Len(t, result.Outputs, 2*len(scenario.Queries))
}

func TestRun_AlgebraScenario(t *testing.T) {
	result := loadAndRun(t, "testdata/scenarios/algebra.yaml")
	assert.True(t, result.Pass, strings.Join(result.Errors, "\n"))
}

func TestRun_OutputsPerRepository(t *testing.T) {
	result := loadAndRun(t, "testdata/scenarios/users.yaml")

	outs := result.StepOutputs("like_and_regexp")
	require.Len(t, outs, 2)
	assert.Equal(t, "memory", outs[0].Repository)
	assert.Empty(t, outs[0].SQL)
	assert.Equal(t, "sqlite", outs[1].Repository)
	assert.Contains(t, outs[1].SQL, "REGEXP ?")
	assert.Equal(t, outs[0].Records, outs[1].Records)
	assert.NotEmpty(t, outs[0].Query)

	rejected := result.StepOutputs("unknown_property")
	require.Len(t, rejected, 2)
	for _, o := range rejected {
		assert.Equal(t, "UNKNOWN_PROPERTY", o.Error)
		assert.Empty(t, o.Records)
	}
}

func TestRun_FailedExpectations(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: failing
description: "Expectations that do not hold"
models: |
  model: User: properties: {
    id:   {type: "integer", key: true}
    name: "string"
  }
records:
  User:
    - {id: 1, name: Dan}
    - {id: 2, name: Sam}
queries:
  - name: wrong_count
    model: User
    expect: {count: 3}
  - name: wrong_order
    model: User
    expect:
      records: [{name: Sam}, {name: Dan}]
  - name: unexpected_error
    model: User
    options: {limit: -1}
    expect: {count: 0}
  - name: missing_error
    model: User
    expect: {error: INVALID_OPTION}
`))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)

	joined := strings.Join(result.Errors, "\n")
	assert.Contains(t, joined, "Assertion failed: count (step wrong_count, repository memory)")
	assert.Contains(t, joined, "Assertion failed: count (step wrong_count, repository sqlite)")
	assert.Contains(t, joined, "Assertion failed: records (step wrong_order")
	assert.Contains(t, joined, "record 1 has name = Dan")
	assert.Contains(t, joined, "Expected: no error\n  Actual: INVALID_OPTION")
	assert.Contains(t, joined, "Expected: INVALID_OPTION\n  Actual: no error")
}

func TestRun_ReadErrorsAreRecorded(t *testing.T) {
	// Raw SQL fragments cannot be evaluated in memory.
	scenario, err := ParseScenario([]byte(`
name: raw
description: "Raw conditions only run in SQL"
models: |
  model: User: properties: {
    id:  {type: "integer", key: true}
    age: "integer"
  }
records:
  User:
    - {id: 1, age: 30}
queries:
  - name: raw
    model: User
    options:
      conditions: ["age > ?", 20]
    expect: {count: 1}
`))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)

	joined := strings.Join(result.Errors, "\n")
	assert.Contains(t, joined, "step raw (memory): read:")
	assert.Contains(t, joined, "Assertion failed: parity")
}

func TestRun_UnknownModel(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: unknown_model
description: d
models: |
  model: User: properties: id: {type: "integer", key: true}
queries:
  - {name: q, model: Ghost, expect: {count: 0}}
`))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Contains(t, result.Errors[0], `unknown model "Ghost"`)
}

func TestRun_SetupErrors(t *testing.T) {
	t.Run("bad schema", func(t *testing.T) {
		scenario, err := ParseScenario([]byte(`
name: bad_schema
description: d
models: |
  model: User: properties: name: "string"
queries:
  - {name: q, model: User, expect: {count: 0}}
`))
		require.NoError(t, err)
		_, err = Run(scenario)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to load schema")
		assert.Contains(t, err.Error(), "E102")
	})

	t.Run("records for unknown model", func(t *testing.T) {
		scenario, err := ParseScenario([]byte(`
name: bad_records
description: d
models: |
  model: User: properties: id: {type: "integer", key: true}
records:
  Ghost:
    - {id: 1}
queries:
  - {name: q, model: User, expect: {count: 0}}
`))
		require.NoError(t, err)
		_, err = Run(scenario)
		require.Error(t, err)
		assert.Contains(t, err.Error(), `records for unknown model "Ghost"`)
	})

	t.Run("typecast failure", func(t *testing.T) {
		scenario, err := ParseScenario([]byte(`
name: bad_value
description: d
models: |
  model: User: properties: {
    id:  {type: "integer", key: true}
    age: "integer"
  }
records:
  User:
    - {id: 1, age: old}
queries:
  - {name: q, model: User, expect: {count: 0}}
`))
		require.NoError(t, err)
		_, err = Run(scenario)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to load records")
	})
}

func TestRun_WithLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	scenario, err := ParseScenario([]byte(minimalScenario))
	require.NoError(t, err)

	result, err := Run(scenario, WithLogger(logger))
	require.NoError(t, err)
	assert.True(t, result.Pass, strings.Join(result.Errors, "\n"))

	logs := buf.String()
	assert.Contains(t, logs, "scenario started")
	assert.Contains(t, logs, "scenario=minimal")
	assert.Contains(t, logs, "scenario finished")
	assert.Contains(t, logs, "query executed")
}
