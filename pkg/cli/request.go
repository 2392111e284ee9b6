package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"gopkg.in/yaml.v3"
)

// LoadRequest loads a request from a YAML or JSON file into v. A path of
// "-" reads stdin.
func LoadRequest(path string, v any) error {
	if path == "-" {
		return LoadRequestFromReader(os.Stdin, v)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	return ParseRequest(data, path, v)
}

// LoadRequestFromReader parses a request of unknown format from r.
func LoadRequestFromReader(r io.Reader, v any) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}
	return ParseRequest(data, "", v)
}

// ParseRequest parses request data based on file extension or content.
// Malformed JSON is repaired before giving up.
func ParseRequest(data []byte, filename string, v any) error {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, v); err != nil {
			return fmt.Errorf("failed to parse YAML: %w", err)
		}
		return nil
	case ".json":
		return parseJSON(data, v)
	}
	if err := json.Unmarshal(data, v); err == nil {
		return nil
	}
	if err := yaml.Unmarshal(data, v); err == nil {
		return nil
	}
	if err := parseJSON(data, v); err != nil {
		return fmt.Errorf("failed to parse input (tried JSON and YAML)")
	}
	return nil
}

func parseJSON(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err == nil {
		return nil
	}
	fixed, err := jsonrepair.JSONRepair(string(data))
	if err != nil {
		return fmt.Errorf("failed to parse JSON: %w", err)
	}
	if err := json.Unmarshal([]byte(fixed), v); err != nil {
		return fmt.Errorf("failed to parse JSON: %w", err)
	}
	return nil
}
