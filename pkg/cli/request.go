package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
)

// LoadRequest reads a YAML or JSON spec file into v. The extension
// picks the codec; unknown extensions try YAML then JSON.
func LoadRequest(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	return ParseRequest(data, path, v)
}

// ParseRequest decodes spec data into v, choosing the codec from the
// filename extension.
func ParseRequest(data []byte, filename string, v any) error {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, v); err != nil {
			return fmt.Errorf("failed to parse YAML: %w", err)
		}
		return nil
	case ".json":
		if err := json.Unmarshal(data, v); err != nil {
			return fmt.Errorf("failed to parse JSON: %w", err)
		}
		return nil
	default:
		return decodeEither(data, v, yaml.Unmarshal, json.Unmarshal)
	}
}

// LoadRequestFromStdin reads a spec from stdin into v, trying JSON
// first since piped input is usually machine-generated.
func LoadRequestFromStdin(v any) error {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return fmt.Errorf("failed to read stdin: %w", err)
	}
	return decodeEither(data, v, json.Unmarshal, yaml.Unmarshal)
}

func decodeEither(data []byte, v any, first, second func([]byte, any) error) error {
	if err := first(data, v); err == nil {
		return nil
	}
	if err := second(data, v); err == nil {
		return nil
	}
	return fmt.Errorf("failed to parse input (tried YAML and JSON)")
}
