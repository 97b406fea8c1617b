// Package provider holds helpers shared by upstream measurement clients.
package provider

import (
	"encoding/json"
	"math"
	"strconv"
)

// Number normalizes a loosely typed JSON value into a float64.
//
// IQAir weather fields are usually numbers but have been observed as strings
// and nulls. Returns ok=false when the value is missing or not numeric.
func Number(val any) (float64, bool) {
	if val == nil {
		return 0, false
	}

	switch v := val.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f, true
		}
		return 0, false
	default:
		return 0, false
	}
}

// Int is Number rounded to the nearest integer, with fallback when the value
// is missing.
func Int(val any, fallback int) int {
	f, ok := Number(val)
	if !ok {
		return fallback
	}
	return int(math.Round(f))
}
