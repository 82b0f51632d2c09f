package reconcile

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Fields is an opaque metadata mapping such as STAC item properties,
// asset extra fields, array attributes or array encoding parameters.
type Fields map[string]interface{}

// Lookup names one place a value may be found: a scope (the mapping it
// lives in) and a key within it. It doubles as the provenance tag of a
// resolved value.
type Lookup struct {
	Scope string
	Key   string
}

func (l Lookup) String() string {
	if l.Scope == "" {
		return l.Key
	}
	return l.Scope + "." + l.Key
}

// Scopes maps scope names to the mappings a Chain reads from.
type Scopes map[string]Fields

// Chain is an ordered list of lookups; the first present value wins.
type Chain []Lookup

// Raw returns the first present value of the chain. A key mapped to nil
// is absent; every other value, including 0, false and "", is present.
func (c Chain) Raw(scopes Scopes) (interface{}, Lookup, bool) {
	for _, l := range c {
		m, ok := scopes[l.Scope]
		if !ok || m == nil {
			continue
		}
		v, ok := m[l.Key]
		if !ok || v == nil {
			continue
		}
		return v, l, true
	}
	return nil, Lookup{}, false
}

// Number returns the first value of the chain that converts to a number.
// Values of a non-numeric type are skipped.
func (c Chain) Number(scopes Scopes) (float64, Lookup, bool) {
	for i, l := range c {
		v, _, ok := c[i : i+1].Raw(scopes)
		if !ok {
			continue
		}
		if f, ok := toFloat(v); ok {
			return f, l, true
		}
	}
	return 0, Lookup{}, false
}

// String returns the first string value of the chain.
func (c Chain) String(scopes Scopes) (string, Lookup, bool) {
	for i, l := range c {
		v, _, ok := c[i : i+1].Raw(scopes)
		if !ok {
			continue
		}
		if s, ok := v.(string); ok {
			return s, l, true
		}
	}
	return "", Lookup{}, false
}

func toFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int8:
		return float64(t), true
	case int16:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint:
		return float64(t), true
	case uint8:
		return float64(t), true
	case uint16:
		return float64(t), true
	case uint32:
		return float64(t), true
	case uint64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	}
	return 0, false
}

// toFloats converts a JSON-ish array into a numeric slice.
func toFloats(v interface{}) ([]float64, bool) {
	switch t := v.(type) {
	case []float64:
		return t, true
	case []int:
		out := make([]float64, len(t))
		for i, x := range t {
			out[i] = float64(x)
		}
		return out, true
	case []interface{}:
		out := make([]float64, len(t))
		for i, x := range t {
			f, ok := toFloat(x)
			if !ok {
				return nil, false
			}
			out[i] = f
		}
		return out, true
	}
	return nil, false
}

func isIntegral(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0) && f == math.Trunc(f)
}
