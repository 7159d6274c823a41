package conditions

import (
	"bytes"
	"cmp"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/roach88/relq/internal/canon"
	"github.com/roach88/relq/internal/model"
)

// Range is an interval value for in comparisons. Bounds are inclusive
// unless ExcludeEnd is set, in which case Max is excluded.
type Range struct {
	Min        any
	Max        any
	ExcludeEnd bool
}

// NewRange returns the inclusive range [min, max].
func NewRange(min, max any) Range {
	return Range{Min: min, Max: max}
}

// contains reports whether v lies within r. Bounds must already be typecast.
func (r Range) contains(v any) (truth, error) {
	lo, err := compareValues(v, r.Min)
	if err != nil {
		return unknown, err
	}
	hi, err := compareValues(v, r.Max)
	if err != nil {
		return unknown, err
	}
	if lo < 0 {
		return falsy, nil
	}
	if r.ExcludeEnd {
		return truthOf(hi < 0), nil
	}
	return truthOf(hi <= 0), nil
}

// empty reports whether no value can fall within r.
func (r Range) empty() bool {
	if r.Min == nil || r.Max == nil {
		return true
	}
	c, err := compareValues(r.Min, r.Max)
	if err != nil {
		return true
	}
	if r.ExcludeEnd {
		return c >= 0
	}
	return c > 0
}

func (r Range) String() string {
	closing := "]"
	if r.ExcludeEnd {
		closing = ")"
	}
	return "[" + formatValue(r.Min) + ", " + formatValue(r.Max) + closing
}

// Compare orders two loaded values of the same primitive, with nil
// sorting before everything else.
func Compare(a, b any) (int, error) {
	switch {
	case a == nil && b == nil:
		return 0, nil
	case a == nil:
		return -1, nil
	case b == nil:
		return 1, nil
	}
	return compareValues(a, b)
}

// compareValues orders two loaded values of the same primitive.
func compareValues(a, b any) (int, error) {
	switch x := a.(type) {
	case string:
		if y, ok := b.(string); ok {
			return strings.Compare(x, y), nil
		}
	case bool:
		if y, ok := b.(bool); ok {
			switch {
			case x == y:
				return 0, nil
			case !x:
				return -1, nil
			}
			return 1, nil
		}
	case time.Time:
		if y, ok := b.(time.Time); ok {
			return x.Compare(y), nil
		}
	case uuid.UUID:
		if y, ok := b.(uuid.UUID); ok {
			return bytes.Compare(x[:], y[:]), nil
		}
	}
	if x, ok := integer(a); ok {
		if y, ok := integer(b); ok {
			return cmp.Compare(x, y), nil
		}
	}
	if x, ok := number(a); ok {
		if y, ok := number(b); ok {
			switch {
			case x < y:
				return -1, nil
			case x > y:
				return 1, nil
			}
			return 0, nil
		}
	}
	return 0, fmt.Errorf("%w: cannot compare %T with %T", ErrInvalidValue, a, b)
}

// integer widens signed and small unsigned integers without loss.
func integer(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	}
	return 0, false
}

// number widens any numeric value for mixed integer and float comparison.
func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	if i, ok := integer(v); ok {
		return float64(i), true
	}
	return 0, false
}

// equalValues is nil-safe equality over loaded values.
func equalValues(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if c, err := compareValues(a, b); err == nil {
		return c == 0
	}
	return reflect.DeepEqual(a, b)
}

// flatten expands any slice or array value into []any.
// ok is false for non-slice values. Byte slices are scalars.
func flatten(v any) ([]any, bool) {
	switch val := v.(type) {
	case []any:
		return val, true
	case []byte, uuid.UUID, nil:
		return nil, false
	case model.Key:
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// canonicalValue reduces a loaded value to a form canon can encode.
// Types are tagged so that "1" and 1, or a time and its text, differ.
func canonicalValue(v any) any {
	switch val := v.(type) {
	case nil, string, bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return val
	case time.Time:
		return map[string]any{"time": val.UTC().Format(time.RFC3339Nano)}
	case uuid.UUID:
		return map[string]any{"uuid": val.String()}
	case *regexp.Regexp:
		return map[string]any{"regexp": val.String()}
	case Range:
		return map[string]any{
			"range":       []any{canonicalValue(val.Min), canonicalValue(val.Max)},
			"exclude_end": val.ExcludeEnd,
		}
	case model.Key:
		out := make([]any, len(val))
		for i, k := range val {
			out[i] = canonicalValue(k)
		}
		return out
	case []model.Key:
		out := make([]any, len(val))
		for i, k := range val {
			out[i] = canonicalValue(k)
		}
		return out
	case Subquery:
		if k, ok := val.(interface{ Key() string }); ok {
			return map[string]any{"subquery": k.Key()}
		}
		return map[string]any{"subquery": val.String()}
	}
	if items, ok := flatten(v); ok {
		out := make([]any, len(items))
		for i, item := range items {
			out[i] = canonicalValue(item)
		}
		return out
	}
	return map[string]any{"opaque": fmt.Sprintf("%T:%v", v, v)}
}

// CanonicalString is the canonical JSON text of v, used for set membership.
func CanonicalString(v any) string {
	data, err := canon.MarshalCanonical(canonicalValue(v))
	if err != nil {
		return fmt.Sprintf("%#v", v)
	}
	return string(data)
}

// formatValue renders a value for String output.
func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case string:
		return "'" + strings.ReplaceAll(val, "'", "''") + "'"
	case time.Time:
		return "'" + val.UTC().Format(time.RFC3339Nano) + "'"
	case uuid.UUID:
		return "'" + val.String() + "'"
	case *regexp.Regexp:
		return "/" + val.String() + "/"
	case Range:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case model.Key:
		if len(val) == 1 {
			return formatValue(val[0])
		}
		parts := make([]string, len(val))
		for i, k := range val {
			parts[i] = formatValue(k)
		}
		return "(" + strings.Join(parts, ", ") + ")"
	case Subquery:
		return "(" + val.String() + ")"
	}
	if items, ok := flatten(v); ok {
		parts := make([]string, len(items))
		for i, item := range items {
			parts[i] = formatValue(item)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	}
	return fmt.Sprint(v)
}

// likePattern translates a LIKE pattern into an anchored regular expression.
// % matches any run of characters and _ exactly one.
func likePattern(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString(`(?s)\A`)
	for _, r := range pattern {
		switch r {
		case '%':
			b.WriteString(".*")
		case '_':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString(`\z`)
	return regexp.Compile(b.String())
}
