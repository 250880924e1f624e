package aggregation

import (
	"encoding/json"
	"math"
)

// directFields are scalar keys read straight off data (and off a sample).
var directFields = []string{"count", "value", "beatsPerMinute", "percentage"}

// samplePriority is the per-sample key order used by hourly aggregation.
var samplePriority = []string{"beatsPerMinute", "value", "percentage"}

// unitPath is a nested unit-wrapped field such as weight.kilograms.
type unitPath struct {
	Field string
	Unit  string
}

// unitPaths is tried in order after directFields. Both the Health Connect
// (kilograms) and the Kotlin bridge (inKilograms) spellings are present.
var unitPaths = []unitPath{
	{"weight", "kilograms"}, {"weight", "inKilograms"},
	{"distance", "meters"}, {"distance", "inMeters"},
	{"energy", "kilocalories"}, {"energy", "inKilocalories"},
	{"volume", "liters"}, {"volume", "inLiters"},
	{"height", "meters"}, {"height", "inMeters"},
	{"mass", "kilograms"}, {"mass", "inKilograms"},
}

// ExtractValue pulls a single numeric value out of a record's payload. The
// second return is false when no rule yields a number.
func ExtractValue(r Record) (float64, bool) {
	data := r.Data
	if v, ok := firstDirect(data, directFields); ok {
		return v, true
	}

	for _, p := range unitPaths {
		if v, ok := lookupPath(data, p.Field, p.Unit); ok {
			return v, true
		}
	}

	samples, ok := data["samples"].([]any)
	if !ok || len(samples) == 0 {
		return 0, false
	}
	first, ok := samples[0].(map[string]any)
	if !ok {
		return 0, false
	}
	return firstDirect(first, directFields)
}

// firstDirect returns the first field in keys that holds a number. Present but
// non-numeric fields are skipped.
func firstDirect(m map[string]any, keys []string) (float64, bool) {
	for _, key := range keys {
		raw, present := m[key]
		if !present {
			continue
		}
		if v, ok := toFloat(raw); ok {
			return v, true
		}
	}
	return 0, false
}

func lookupPath(m map[string]any, keys ...string) (float64, bool) {
	var current any = m
	for _, key := range keys {
		obj, ok := current.(map[string]any)
		if !ok {
			return 0, false
		}
		current, ok = obj[key]
		if !ok {
			return 0, false
		}
	}
	return toFloat(current)
}

// sampleValue reads the first present key of samplePriority. A present key
// with a non-numeric value ends the search.
func sampleValue(sample any) (float64, bool) {
	m, ok := sample.(map[string]any)
	if !ok {
		return 0, false
	}
	for _, key := range samplePriority {
		if raw, present := m[key]; present {
			return toFloat(raw)
		}
	}
	return 0, false
}

// toFloat accepts the numeric kinds a decoded JSON document or a hand-built
// map can carry. Booleans and strings are not numbers.
func toFloat(raw any) (float64, bool) {
	var v float64
	switch n := raw.(type) {
	case float64:
		v = n
	case float32:
		v = float64(n)
	case int:
		v = float64(n)
	case int8:
		v = float64(n)
	case int16:
		v = float64(n)
	case int32:
		v = float64(n)
	case int64:
		v = float64(n)
	case uint:
		v = float64(n)
	case uint8:
		v = float64(n)
	case uint16:
		v = float64(n)
	case uint32:
		v = float64(n)
	case uint64:
		v = float64(n)
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		v = f
	default:
		return 0, false
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
