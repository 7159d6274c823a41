package model

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Primitive is the storage type of a property.
type Primitive string

const (
	String  Primitive = "string"
	Integer Primitive = "integer"
	Float   Primitive = "float"
	Boolean Primitive = "boolean"
	Time    Primitive = "time"
	UUID    Primitive = "uuid"
)

// Primitives lists every supported primitive in declaration order.
var Primitives = []Primitive{String, Integer, Float, Boolean, Time, UUID}

// ParsePrimitive resolves a primitive by name.
func ParsePrimitive(name string) (Primitive, error) {
	for _, p := range Primitives {
		if string(p) == name {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown primitive %q: must be one of %v", name, Primitives)
}

// timeLayouts are tried in order when a string is typecast to Time.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

var errLossy = errors.New("value would lose precision")

// cast coerces v into the Go representation of p.
// nil is returned unchanged for every primitive.
//
// Loaded representations:
//
//	String  -> string
//	Integer -> int64
//	Float   -> float64
//	Boolean -> bool
//	Time    -> time.Time (UTC)
//	UUID    -> uuid.UUID
func (p Primitive) cast(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch p {
	case String:
		return castString(v)
	case Integer:
		return castInteger(v)
	case Float:
		return castFloat(v)
	case Boolean:
		return castBoolean(v)
	case Time:
		return castTime(v)
	case UUID:
		return castUUID(v)
	default:
		return nil, fmt.Errorf("unsupported primitive %q", p)
	}
}

func castString(v any) (any, error) {
	switch val := v.(type) {
	case string:
		return val, nil
	case []byte:
		return string(val), nil
	case bool:
		return strconv.FormatBool(val), nil
	case fmt.Stringer:
		return val.String(), nil
	}
	if i, ok := asInt64(v); ok {
		return strconv.FormatInt(i, 10), nil
	}
	if f, ok := asFloat64(v); ok {
		return strconv.FormatFloat(f, 'g', -1, 64), nil
	}
	return nil, fmt.Errorf("unsupported type %T", v)
}

func castInteger(v any) (any, error) {
	if i, ok := asInt64(v); ok {
		return i, nil
	}
	switch val := v.(type) {
	case uint64:
		if val > math.MaxInt64 {
			return nil, errLossy
		}
		return int64(val), nil
	case float32, float64:
		f, _ := asFloat64(val)
		if f != math.Trunc(f) || f > math.MaxInt64 || f < math.MinInt64 {
			return nil, errLossy
		}
		return int64(f), nil
	case string:
		return strconv.ParseInt(strings.TrimSpace(val), 10, 64)
	case []byte:
		return strconv.ParseInt(strings.TrimSpace(string(val)), 10, 64)
	}
	return nil, fmt.Errorf("unsupported type %T", v)
}

func castFloat(v any) (any, error) {
	if f, ok := asFloat64(v); ok {
		return f, nil
	}
	if i, ok := asInt64(v); ok {
		return float64(i), nil
	}
	switch val := v.(type) {
	case uint64:
		return float64(val), nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(val), 64)
	case []byte:
		return strconv.ParseFloat(strings.TrimSpace(string(val)), 64)
	}
	return nil, fmt.Errorf("unsupported type %T", v)
}

func castBoolean(v any) (any, error) {
	switch val := v.(type) {
	case bool:
		return val, nil
	case string:
		return strconv.ParseBool(strings.TrimSpace(val))
	case []byte:
		return strconv.ParseBool(strings.TrimSpace(string(val)))
	}
	if i, ok := asInt64(v); ok {
		switch i {
		case 0:
			return false, nil
		case 1:
			return true, nil
		}
		return nil, fmt.Errorf("integer %d is not 0 or 1", i)
	}
	return nil, fmt.Errorf("unsupported type %T", v)
}

func castTime(v any) (any, error) {
	switch val := v.(type) {
	case time.Time:
		return val.UTC(), nil
	case string:
		s := strings.TrimSpace(val)
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC(), nil
			}
		}
		return nil, fmt.Errorf("unrecognized time format %q", val)
	case []byte:
		return castTime(string(val))
	}
	if i, ok := asInt64(v); ok {
		return time.Unix(i, 0).UTC(), nil
	}
	return nil, fmt.Errorf("unsupported type %T", v)
}

func castUUID(v any) (any, error) {
	switch val := v.(type) {
	case uuid.UUID:
		return val, nil
	case [16]byte:
		return uuid.UUID(val), nil
	case string:
		return uuid.Parse(strings.TrimSpace(val))
	case []byte:
		if len(val) == 16 {
			return uuid.FromBytes(val)
		}
		return uuid.ParseBytes(val)
	}
	return nil, fmt.Errorf("unsupported type %T", v)
}

// asInt64 widens every signed and small unsigned integer kind.
func asInt64(v any) (int64, bool) {
	switch val := v.(type) {
	case int:
		return int64(val), true
	case int8:
		return int64(val), true
	case int16:
		return int64(val), true
	case int32:
		return int64(val), true
	case int64:
		return val, true
	case uint:
		if uint64(val) > math.MaxInt64 {
			return 0, false
		}
		return int64(val), true
	case uint8:
		return int64(val), true
	case uint16:
		return int64(val), true
	case uint32:
		return int64(val), true
	}
	return 0, false
}

func asFloat64(v any) (float64, bool) {
	switch val := v.(type) {
	case float32:
		return float64(val), true
	case float64:
		return val, true
	}
	return 0, false
}

// dump converts a loaded value into the representation written to storage.
// Times are stored as RFC 3339 text and UUIDs as their canonical string.
func (p Primitive) dump(v any) any {
	switch val := v.(type) {
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	case uuid.UUID:
		return val.String()
	}
	return v
}
