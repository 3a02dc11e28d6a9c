package store

import (
	"encoding/json"
)

// marshalStrings converts []string to JSON text for storage.
func marshalStrings(items []string) string {
	if len(items) == 0 {
		return "[]"
	}
	b, _ := json.Marshal(items)
	return string(b)
}

// unmarshalStrings converts JSON text back to []string. Empty lists come
// back as nil.
func unmarshalStrings(s string) []string {
	if s == "" || s == "null" {
		return nil
	}
	var items []string
	_ = json.Unmarshal([]byte(s), &items)
	if len(items) == 0 {
		return nil
	}
	return items
}
