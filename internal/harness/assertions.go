package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/relq/internal/canon"
	"github.com/roach88/relq/internal/conditions"
	"github.com/roach88/relq/internal/model"
)

// Assertion types reported in AssertionError.
const (
	AssertError   = "error"
	AssertCount   = "count"
	AssertRecords = "records"
	AssertSQL     = "sql"
	AssertParity  = "parity"
)

// AssertionError is returned when an expectation fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type       string // Assertion type for categorization
	Step       string
	Repository string
	Expected   string // Human-readable expected outcome
	Actual     string // Human-readable actual outcome
	Records    []map[string]any
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s (step %s", e.Type, e.Step)
	if e.Repository != "" {
		fmt.Fprintf(&buf, ", repository %s", e.Repository)
	}
	buf.WriteString(")\n")

	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Records) > 0 {
		fmt.Fprintf(&buf, "\nFull result:\n")
		for i, rec := range e.Records {
			fmt.Fprintf(&buf, "  [%d] %s\n", i+1, formatRecord(rec))
		}
	}

	return buf.String()
}

// EvaluateExpect checks one repository's output against the step's
// expectations. sql reports whether the output came from a SQL repository;
// only those are checked against expected statements.
func EvaluateExpect(m *model.Model, step QueryStep, out Output, sql bool) []string {
	var errs []string
	add := func(err error) {
		if err != nil {
			errs = append(errs, err.Error())
		}
	}

	e := step.Expect
	add(assertError(step.Name, e.Error, out))
	if out.Error != "" {
		return errs
	}
	if e.Count != nil {
		add(assertCount(step.Name, *e.Count, out))
	}
	if e.Records != nil {
		add(assertRecords(m, step.Name, e.Records, out))
	}
	if sql && e.SQL != "" {
		add(assertSQL(step.Name, e.SQL, out))
	}
	return errs
}

func assertError(step, expected string, out Output) error {
	if expected == out.Error {
		return nil
	}
	actual := "no error"
	if out.Error != "" {
		actual = out.Error
	}
	want := "no error"
	if expected != "" {
		want = expected
	}
	return &AssertionError{
		Type:       AssertError,
		Step:       step,
		Repository: out.Repository,
		Expected:   want,
		Actual:     actual,
		Records:    out.Records,
	}
}

func assertCount(step string, expected int, out Output) error {
	if len(out.Records) == expected {
		return nil
	}
	return &AssertionError{
		Type:       AssertCount,
		Step:       step,
		Repository: out.Repository,
		Expected:   fmt.Sprintf("%d records", expected),
		Actual:     fmt.Sprintf("%d records", len(out.Records)),
		Records:    out.Records,
	}
}

// assertRecords compares the result in order. Each expected record is a
// subset match; values are typecast by the property before comparison so
// YAML integers match loaded int64 values and time strings match times.
func assertRecords(m *model.Model, step string, expected []map[string]any, out Output) error {
	fail := func(format string, args ...any) error {
		return &AssertionError{
			Type:       AssertRecords,
			Step:       step,
			Repository: out.Repository,
			Expected:   formatRecords(expected),
			Actual:     fmt.Sprintf(format, args...),
			Records:    out.Records,
		}
	}

	if len(expected) != len(out.Records) {
		return fail("%d records", len(out.Records))
	}
	for i, want := range expected {
		got := out.Records[i]
		for name, wantVal := range want {
			p, ok := m.Property(name)
			if !ok {
				return fmt.Errorf("step %s: expected record %d names unknown property %q", step, i+1, name)
			}
			gotVal, ok := got[name]
			if !ok {
				return fail("record %d has no %s (not selected)", i+1, name)
			}
			equal, err := valuesEqual(p, wantVal, gotVal)
			if err != nil {
				return fmt.Errorf("step %s: expected record %d: %w", step, i+1, err)
			}
			if !equal {
				return fail("record %d has %s = %v", i+1, name, gotVal)
			}
		}
	}
	return nil
}

func assertSQL(step, expected string, out Output) error {
	if strings.TrimSpace(expected) == out.SQL {
		return nil
	}
	return &AssertionError{
		Type:       AssertSQL,
		Step:       step,
		Repository: out.Repository,
		Expected:   strings.TrimSpace(expected),
		Actual:     out.SQL,
	}
}

// assertParity checks that every repository returned the same records in
// the same order, or failed with the same error code.
func assertParity(step string, outs []Output) error {
	if len(outs) < 2 {
		return nil
	}
	first := outs[0]
	want, err := snapshotOf(first)
	if err != nil {
		return err
	}
	for _, other := range outs[1:] {
		got, err := snapshotOf(other)
		if err != nil {
			return err
		}
		if want != got {
			return &AssertionError{
				Type:     AssertParity,
				Step:     step,
				Expected: fmt.Sprintf("%s: %s", first.Repository, want),
				Actual:   fmt.Sprintf("%s: %s", other.Repository, got),
			}
		}
	}
	return nil
}

func snapshotOf(out Output) (string, error) {
	if out.Error != "" {
		return "error " + out.Error, nil
	}
	data, err := canon.MarshalCanonical(recordList(out.Records))
	if err != nil {
		return "", fmt.Errorf("step %s: %w", out.Step, err)
	}
	return string(data), nil
}

// valuesEqual compares an expected YAML value with a dumped actual one.
// Both are typecast by p so representation differences do not matter.
func valuesEqual(p *model.Property, expected, actual any) (bool, error) {
	if expected == nil || actual == nil {
		return expected == nil && actual == nil, nil
	}
	want, err := p.Typecast(expected)
	if err != nil {
		return false, err
	}
	got, err := p.Typecast(actual)
	if err != nil {
		return false, err
	}
	c, err := conditions.Compare(want, got)
	if err != nil {
		return false, err
	}
	return c == 0, nil
}

func recordList(records []map[string]any) []any {
	list := make([]any, len(records))
	for i, r := range records {
		list[i] = r
	}
	return list
}

func formatRecords(records []map[string]any) string {
	parts := make([]string, len(records))
	for i, r := range records {
		parts[i] = formatRecord(r)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// formatRecord renders a record with sorted keys: {age:30 name:Dan}.
func formatRecord(rec map[string]any) string {
	var buf strings.Builder
	buf.WriteByte('{')
	for i, k := range canon.SortedKeys(rec) {
		if i > 0 {
			buf.WriteByte(' ')
		}
		fmt.Fprintf(&buf, "%s:%v", k, rec[k])
	}
	buf.WriteByte('}')
	return buf.String()
}
