package featureserver

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Geometry is a point geometry in the layer's spatial reference.
type Geometry struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Record is one feature: attributes plus an optional point geometry.
type Record struct {
	Attributes map[string]any `json:"attributes"`
	Geometry   *Geometry      `json:"geometry,omitempty"`
}

// String returns the attribute as a string, or "" if absent or null.
func (r Record) String(key string) string {
	v, ok := r.Attributes[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

// Int returns a numeric attribute. ok is false when the attribute is absent,
// null, empty or zero, matching how the layer marks "no override".
func (r Record) Int(key string) (n int, ok bool) {
	v, present := r.Attributes[key]
	if !present || v == nil {
		return 0, false
	}
	switch t := v.(type) {
	case float64:
		n = int(t)
	case int:
		n = t
	case int64:
		n = int(t)
	case json.Number:
		i, err := t.Int64()
		if err != nil {
			f, ferr := t.Float64()
			if ferr != nil {
				return 0, false
			}
			i = int64(f)
		}
		n = int(i)
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0, false
		}
		n = i
	default:
		return 0, false
	}
	return n, n != 0
}

// Float returns a numeric attribute or 0.
func (r Record) Float(key string) float64 {
	switch t := r.Attributes[key].(type) {
	case float64:
		return t
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case json.Number:
		f, _ := t.Float64()
		return f
	case string:
		f, _ := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f
	default:
		return 0
	}
}

// Time decodes a date attribute stored as epoch milliseconds.
func (r Record) Time(key string, loc *time.Location) (time.Time, bool) {
	v, ok := r.Attributes[key]
	if !ok || v == nil {
		return time.Time{}, false
	}
	var ms int64
	switch t := v.(type) {
	case float64:
		ms = int64(t)
	case int64:
		ms = t
	case int:
		ms = int64(t)
	case json.Number:
		i, err := t.Int64()
		if err != nil {
			return time.Time{}, false
		}
		ms = i
	default:
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.UTC
	}
	return time.UnixMilli(ms).In(loc), true
}

// EpochMillis encodes t the way date attributes are written.
func EpochMillis(t time.Time) int64 {
	return t.UnixMilli()
}
