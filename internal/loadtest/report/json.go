package report

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/wesleyorama2/xrayperf/internal/loadtest/engine"
)

// WriteJSON writes result as indented JSON.
func WriteJSON(w io.Writer, result *engine.TestResult) error {
	if result == nil {
		return fmt.Errorf("result cannot be nil")
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	return nil
}

// GenerateJSON writes result as JSON to outputPath, creating the parent
// directory if needed.
func GenerateJSON(result *engine.TestResult, outputPath string) error {
	if result == nil {
		return fmt.Errorf("result cannot be nil")
	}
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	if err := writeFile(outputPath, append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write JSON file: %w", err)
	}
	return nil
}
