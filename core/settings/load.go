package settings

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads fleet settings from a JSON or YAML file, applies defaults and
// validates the result.
func Load(path string) (*Settings, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return Decode(f, strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."))
}

// Decode reads settings in the given format ("yaml", "yml" or "json").
func Decode(r io.Reader, format string) (*Settings, error) {
	var s Settings
	switch strings.ToLower(format) {
	case "yaml", "yml":
		if err := yaml.NewDecoder(r).Decode(&s); err != nil && err != io.EOF {
			return nil, fmt.Errorf("decode settings: %w", err)
		}
	case "json":
		if err := json.NewDecoder(r).Decode(&s); err != nil {
			return nil, fmt.Errorf("decode settings: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported settings format: %s", format)
	}
	s.SetDefaults()
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}
