package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario defines a query conformance scenario: a schema, the records
// loaded into every repository, and the queries run against them.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Schema is a directory of CUE model definitions.
	// Relative paths are resolved against the scenario file location.
	Schema string `yaml:"schema,omitempty"`

	// Models is inline CUE source, used when Schema is empty.
	Models string `yaml:"models,omitempty"`

	// Records lists the records to insert, keyed by model name.
	// Models are loaded in registry order so foreign keys resolve.
	Records map[string][]map[string]any `yaml:"records"`

	// Queries are executed in order against every repository.
	Queries []QueryStep `yaml:"queries"`
}

// QueryStep builds one query and checks what the repositories return.
type QueryStep struct {
	// Name identifies the step in errors and snapshots.
	Name string `yaml:"name"`

	// Model is the queried model's name.
	Model string `yaml:"model"`

	// Options are finder options, parsed by query.ParseOptions.
	Options map[string]any `yaml:"options"`

	// Combine composes the query with a second one over the same model.
	Combine *CombineStep `yaml:"combine,omitempty"`

	// Slice narrows the (combined) query to [offset, offset+length).
	Slice []int `yaml:"slice,omitempty"`

	// Reverse flips the final query's order.
	Reverse bool `yaml:"reverse,omitempty"`

	// Expect is validated against every repository's result.
	Expect Expect `yaml:"expect"`
}

// CombineStep is a set-algebra operand.
type CombineStep struct {
	// Op is one of union, intersection, difference or merge.
	Op string `yaml:"op"`

	// Options build the right-hand query.
	Options map[string]any `yaml:"options"`
}

// Combine operations.
const (
	OpUnion        = "union"
	OpIntersection = "intersection"
	OpDifference   = "difference"
	OpMerge        = "merge"
)

// Expect specifies what a query step must produce.
type Expect struct {
	// Records is the exact ordered result. Each entry is a subset match:
	// only the listed properties are compared.
	Records []map[string]any `yaml:"records,omitempty"`

	// Count is the expected number of records.
	Count *int `yaml:"count,omitempty"`

	// Error is the expected query error code, e.g. INVALID_OPTION.
	// Steps that expect an error never reach a repository.
	Error string `yaml:"error,omitempty"`

	// SQL is the expected SQLite statement.
	SQL string `yaml:"sql,omitempty"`
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
// A relative schema path is resolved against the file's directory.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving the schema path relative to basePath.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	if scenario.Schema != "" && !filepath.IsAbs(scenario.Schema) && basePath != "" {
		scenario.Schema = filepath.Join(basePath, scenario.Schema)
	}
	if scenario.Schema != "" {
		if _, err := os.Stat(scenario.Schema); os.IsNotExist(err) {
			return nil, fmt.Errorf("invalid scenario: schema directory not found: %s", scenario.Schema)
		}
	}
	return scenario, nil
}

// ParseScenario parses scenario YAML with strict field validation.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.Schema == "" && s.Models == "" {
		return fmt.Errorf("schema or models is required")
	}
	if s.Schema != "" && s.Models != "" {
		return fmt.Errorf("schema and models are mutually exclusive")
	}

	if len(s.Queries) == 0 {
		return fmt.Errorf("queries list is required and must be non-empty")
	}

	seen := make(map[string]bool)
	for i, step := range s.Queries {
		if err := validateStep(i, &step); err != nil {
			return err
		}
		if seen[step.Name] {
			return fmt.Errorf("queries[%d]: duplicate name %q", i, step.Name)
		}
		seen[step.Name] = true
	}
	return nil
}

func validateStep(index int, q *QueryStep) error {
	if q.Name == "" {
		return fmt.Errorf("queries[%d]: name is required", index)
	}
	if q.Model == "" {
		return fmt.Errorf("queries[%d]: model is required", index)
	}

	if c := q.Combine; c != nil {
		switch c.Op {
		case OpUnion, OpIntersection, OpDifference, OpMerge:
		default:
			return fmt.Errorf("queries[%d].combine: unknown op %q", index, c.Op)
		}
	}

	if q.Slice != nil && len(q.Slice) != 2 {
		return fmt.Errorf("queries[%d]: slice must be [offset, length]", index)
	}

	e := q.Expect
	if e.Records == nil && e.Count == nil && e.Error == "" && e.SQL == "" {
		return fmt.Errorf("queries[%d].expect: at least one of records, count, error or sql is required", index)
	}
	if e.Error != "" && (e.Records != nil || e.Count != nil || e.SQL != "") {
		return fmt.Errorf("queries[%d].expect: error excludes records, count and sql", index)
	}
	if e.Count != nil && *e.Count < 0 {
		return fmt.Errorf("queries[%d].expect: count must be non-negative", index)
	}
	return nil
}
