package models

import "encoding/json"

// mapToJSON serializes a metadata map for a jsonb column. Nil maps become
// the empty object so the column never holds SQL NULL.
func mapToJSON(m map[string]any) string {
	if len(m) == 0 {
		return "{}"
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// jsonToMap deserializes a jsonb column into a map, tolerating empty and
// malformed values from older rows.
func jsonToMap(s string) map[string]any {
	if s == "" || s == "{}" || s == "null" {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil
	}
	return m
}

// sliceToJSON serializes a slice for a jsonb column, empty array for nil.
func sliceToJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil || string(data) == "null" {
		return "[]"
	}
	return string(data)
}
