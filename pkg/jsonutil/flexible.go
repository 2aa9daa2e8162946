package jsonutil

import (
	"encoding/json"
	"fmt"
)

// FlexibleString converts a decoded JSON value to a string, handling cases where
// LLMs return numbers or booleans instead of strings. Returns empty string for null.
func FlexibleString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%g", val)
	case json.Number:
		return val.String()
	case bool:
		return fmt.Sprintf("%t", val)
	}

	// Fallback: objects and arrays keep their JSON form
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
