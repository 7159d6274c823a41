package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/relq/internal/canon"
)

// Snapshot captures a scenario's observable results: for each step, the
// records (or error code) every repository agreed on and the compiled SQL.
type Snapshot struct {
	ScenarioName string
	Steps        []StepSnapshot
}

// StepSnapshot is one step of a Snapshot.
type StepSnapshot struct {
	Step    string
	SQL     string
	Error   string
	Records []map[string]any
}

// NewSnapshot folds a result's per-repository outputs into one entry per
// step. Records come from the first repository; parity is checked by Run.
func NewSnapshot(name string, result *Result) *Snapshot {
	s := &Snapshot{ScenarioName: name}
	index := make(map[string]int)
	for _, out := range result.Outputs {
		i, ok := index[out.Step]
		if !ok {
			i = len(s.Steps)
			index[out.Step] = i
			s.Steps = append(s.Steps, StepSnapshot{Step: out.Step, Error: out.Error, Records: out.Records})
		}
		if out.SQL != "" {
			s.Steps[i].SQL = out.SQL
		}
	}
	return s
}

// toCanonicalMap converts a Snapshot to a map[string]any for canonical
// JSON serialization.
func (s *Snapshot) toCanonicalMap() map[string]any {
	steps := make([]any, len(s.Steps))
	for i, st := range s.Steps {
		m := map[string]any{
			"step":    st.Step,
			"records": recordList(st.Records),
		}
		if st.SQL != "" {
			m["sql"] = st.SQL
		}
		if st.Error != "" {
			m["error"] = st.Error
		}
		steps[i] = m
	}
	return map[string]any{
		"scenario_name": s.ScenarioName,
		"steps":         steps,
	}
}

// MarshalCanonical renders the snapshot as canonical JSON.
func (s *Snapshot) MarshalCanonical() ([]byte, error) {
	return canon.MarshalCanonical(s.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares its snapshot against a
// golden file stored in testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the snapshot doesn't match.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an already computed result against a golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := NewSnapshot(scenarioName, result).MarshalCanonical()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
