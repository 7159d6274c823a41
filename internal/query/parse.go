package query

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/roach88/relq/internal/conditions"
)

// ParseOptions converts string keyed options, as decoded from YAML or
// JSON, into Options. Condition values that are maps are rewritten:
//
//	{min: 1, max: 5, exclude_end: true}  conditions.Range
//	{regexp: "^D"}                      *regexp.Regexp
//
// "conditions" may hold a nested condition map or a raw
// [statement, bindings...] list. Everything else passes through unchanged
// and is validated by New.
func ParseOptions(raw map[string]any) (Options, error) {
	opts := make(Options, len(raw))
	for k, v := range raw {
		if _, ok := isOptionKey(k); ok && k != KeyConditions {
			opts[k] = v
			continue
		}
		if k == KeyConditions {
			nested, ok := v.(map[string]any)
			if !ok {
				opts[k] = v
				continue
			}
			m := make(Options, len(nested))
			for nk, nv := range nested {
				val, err := parseValue(nk, nv)
				if err != nil {
					return nil, err
				}
				m[nk] = val
			}
			opts[k] = m
			continue
		}
		val, err := parseValue(k, v)
		if err != nil {
			return nil, err
		}
		opts[k] = val
	}
	return opts, nil
}

func parseValue(key string, v any) (any, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return v, nil
	}
	if pattern, ok := m["regexp"]; ok && len(m) == 1 {
		s, ok := pattern.(string)
		if !ok {
			return nil, optionError(key, "regexp must be a string, got %T", pattern)
		}
		re, err := regexp.Compile(s)
		if err != nil {
			return nil, newError(ErrCodeInvalidCondition, key, err, "invalid regexp %q", s)
		}
		return re, nil
	}
	lo, hasMin := m["min"]
	hi, hasMax := m["max"]
	if !hasMin || !hasMax {
		return nil, optionError(key, "unsupported condition value %v", v)
	}
	r := conditions.NewRange(lo, hi)
	if ex, ok := m["exclude_end"]; ok {
		b, ok := ex.(bool)
		if !ok {
			return nil, optionError(key, "exclude_end must be a boolean, got %T", ex)
		}
		r.ExcludeEnd = b
	}
	for name := range m {
		switch name {
		case "min", "max", "exclude_end":
		default:
			return nil, optionError(key, "unknown range field %q", name)
		}
	}
	return r, nil
}

// FormatOptions renders opts with keys in the order New applies them.
func FormatOptions(opts Options) string {
	keys := make([]any, 0, len(opts))
	for _, k := range OptionKeys {
		if _, ok := opts[k]; ok {
			keys = append(keys, k)
		}
	}
	keys = append(keys, conditionKeys(opts)...)

	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%s:%v", keyName(k), opts[k])
	}
	b.WriteByte('}')
	return b.String()
}
