package config

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ProviderSpec describes one entry of the provider chain. Config is kept as
// raw JSON so each provider type parses its own settings.
type ProviderSpec struct {
	Name   string          `json:"name"`
	Type   string          `json:"type"`
	Config json.RawMessage `json:"config"`
}

type providersFile struct {
	Providers []struct {
		Name   string         `yaml:"name"`
		Type   string         `yaml:"type"`
		Config map[string]any `yaml:"config"`
	} `yaml:"providers"`
}

// LoadProviders reads the ordered provider chain from a YAML file.
func LoadProviders(path string) ([]ProviderSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read providers file: %w", err)
	}
	return ParseProviders(data)
}

// ParseProviders parses a YAML provider chain. Order is preserved.
func ParseProviders(data []byte) ([]ProviderSpec, error) {
	var f providersFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse providers: %w", err)
	}
	if len(f.Providers) == 0 {
		return nil, fmt.Errorf("providers file lists no providers")
	}

	seen := make(map[string]bool, len(f.Providers))
	specs := make([]ProviderSpec, 0, len(f.Providers))
	for i, p := range f.Providers {
		if p.Name == "" {
			return nil, fmt.Errorf("provider %d: name is required", i)
		}
		if p.Type == "" {
			return nil, fmt.Errorf("provider %q: type is required", p.Name)
		}
		if seen[p.Name] {
			return nil, fmt.Errorf("provider %q: duplicate name", p.Name)
		}
		seen[p.Name] = true

		raw := json.RawMessage("{}")
		if p.Config != nil {
			b, err := json.Marshal(p.Config)
			if err != nil {
				return nil, fmt.Errorf("provider %q: encode config: %w", p.Name, err)
			}
			raw = b
		}
		specs = append(specs, ProviderSpec{Name: p.Name, Type: p.Type, Config: raw})
	}
	return specs, nil
}

// DefaultProviders returns the chain used when no providers file is set:
// a single fs provider rooted at rootPath.
func DefaultProviders(rootPath string) []ProviderSpec {
	raw, _ := json.Marshal(map[string]any{"root_path": rootPath})
	return []ProviderSpec{{Name: "local", Type: "fs", Config: raw}}
}

// ProviderLoader returns a function that yields the provider chain for cfg.
// The file is re-read on every call so a reload picks up edits.
func (c *Config) ProviderLoader() func() ([]ProviderSpec, error) {
	return func() ([]ProviderSpec, error) {
		if c.ProvidersFile == "" {
			return DefaultProviders(c.LocalStoragePath), nil
		}
		return LoadProviders(c.ProvidersFile)
	}
}
