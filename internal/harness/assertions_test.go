package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/relq/internal/model"
)

func userModel(t *testing.T) *model.Model {
	t.Helper()
	m := model.New("User", model.WithStorage("users"))
	_, err := m.AddProperty("id", model.Integer, model.AsKey())
	require.NoError(t, err)
	_, err = m.AddProperty("name", model.String)
	require.NoError(t, err)
	_, err = m.AddProperty("joined", model.Time)
	require.NoError(t, err)
	return m
}

func TestAssertionError_Format(t *testing.T) {
	err := &AssertionError{
		Type:       AssertCount,
		Step:       "adults",
		Repository: "sqlite",
		Expected:   "2 records",
		Actual:     "1 records",
		Records:    []map[string]any{{"name": "Dan", "id": int64(1)}},
	}
	assert.Equal(t,
		"Assertion failed: count (step adults, repository sqlite)\n"+
			"  Expected: 2 records\n"+
			"  Actual: 1 records\n"+
			"\nFull result:\n"+
			"  [1] {id:1 name:Dan}\n",
		err.Error())
}

func TestAssertRecords(t *testing.T) {
	m := userModel(t)
	out := Output{
		Step:       "s",
		Repository: "memory",
		Records: []map[string]any{
			{"id": int64(1), "name": "Dan", "joined": "2024-01-02T03:04:05Z"},
			{"id": int64(2), "name": nil, "joined": nil},
		},
	}

	tests := []struct {
		name     string
		expected []map[string]any
		wantErr  string
	}{
		{"subset match", []map[string]any{{"id": 1}, {"id": 2}}, ""},
		{"yaml ints match int64", []map[string]any{{"id": 1, "name": "Dan"}, {"id": 2, "name": nil}}, ""},
		{"time strings are typecast", []map[string]any{{"joined": "2024-01-02 03:04:05"}, {}}, ""},
		{"length", []map[string]any{{"id": 1}}, "2 records"},
		{"order", []map[string]any{{"id": 2}, {"id": 1}}, "record 1 has id = 1"},
		{"nil mismatch", []map[string]any{{}, {"name": "Sam"}}, "record 2 has name = <nil>"},
		{"unknown property", []map[string]any{{"shoe": 1}, {}}, `unknown property "shoe"`},
		{"bad expected value", []map[string]any{{"id": "one"}, {}}, "typecast"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := assertRecords(m, "s", tt.expected, out)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestAssertRecords_UnselectedProperty(t *testing.T) {
	m := userModel(t)
	out := Output{Step: "s", Records: []map[string]any{{"id": int64(1)}}}
	err := assertRecords(m, "s", []map[string]any{{"name": "Dan"}}, out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not selected")
}

func TestAssertParity(t *testing.T) {
	rows := []map[string]any{{"id": int64(1)}}

	assert.NoError(t, assertParity("s", []Output{
		{Repository: "memory", Records: rows},
		{Repository: "sqlite", Records: rows},
	}))
	assert.NoError(t, assertParity("s", []Output{
		{Repository: "memory", Error: "INVALID_OPTION"},
		{Repository: "sqlite", Error: "INVALID_OPTION"},
	}))

	err := assertParity("s", []Output{
		{Repository: "memory", Records: rows},
		{Repository: "sqlite", Records: []map[string]any{}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `Expected: memory: [{"id":1}]`)
	assert.Contains(t, err.Error(), "Actual: sqlite: []")
}

func TestEvaluateExpect_SQLOnlyForSQLRepositories(t *testing.T) {
	m := userModel(t)
	step := QueryStep{Name: "s", Expect: Expect{SQL: "SELECT x"}}
	out := Output{Step: "s", Repository: "memory", Records: []map[string]any{}}

	assert.Empty(t, EvaluateExpect(m, step, out, false))

	out.SQL = "SELECT y"
	errs := EvaluateExpect(m, step, out, true)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "Assertion failed: sql")
}
