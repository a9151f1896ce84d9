// Package jsonpath extracts values from JSON response bodies.
package jsonpath

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// Extract extracts a value from a JSON document using a JSONPath expression
// such as "$.errors[0].message".
func Extract(json, path string) (string, error) {
	if json == "" {
		return "", fmt.Errorf("empty JSON string")
	}
	if path == "" {
		return "", fmt.Errorf("empty JSONPath expression")
	}
	if !gjson.Valid(json) {
		return "", fmt.Errorf("invalid JSON")
	}

	result := gjson.Get(json, toGjsonPath(path))
	if !result.Exists() {
		return "", fmt.Errorf("path not found: %s", path)
	}
	if result.Type == gjson.Null {
		return "null", nil
	}
	return result.String(), nil
}

// First returns the first non-empty string found at any of the given paths.
//
// Non-JSON input and missing paths are not errors; ok is false when nothing
// matched.
func First(json string, paths ...string) (value string, ok bool) {
	if json == "" || !gjson.Valid(json) {
		return "", false
	}
	for _, p := range paths {
		result := gjson.Get(json, toGjsonPath(p))
		if !result.Exists() || result.Type == gjson.Null {
			continue
		}
		if s := strings.TrimSpace(result.String()); s != "" {
			return s, true
		}
	}
	return "", false
}

// toGjsonPath converts a JSONPath expression to gjson syntax.
//
//	JSONPath: $.errors[0].message
//	gjson:    errors.0.message
func toGjsonPath(path string) string {
	path = strings.TrimPrefix(path, "$")
	path = strings.TrimPrefix(path, ".")
	if path == "" {
		return "@this"
	}

	path = strings.NewReplacer(`['`, ".", `']`, "", `["`, ".", `"]`, "").Replace(path)
	path = strings.ReplaceAll(path, "[", ".")
	path = strings.ReplaceAll(path, "]", "")
	return strings.TrimPrefix(path, ".")
}
