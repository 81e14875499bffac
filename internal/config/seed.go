package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ProviderSeed is one provider definition from the seed file. Seeded
// providers are upserted at startup so a fresh deployment has vendors to
// route to before any admin action.
type ProviderSeed struct {
	Name         string            `yaml:"name"`
	Kind         string            `yaml:"kind"`
	DisplayName  string            `yaml:"display_name"`
	APIKey       string            `yaml:"api_key"`
	APIKeyEnv    string            `yaml:"api_key_env"`
	BaseURL      string            `yaml:"base_url"`
	Organization string            `yaml:"organization"`
	Headers      map[string]string `yaml:"headers"`
	Active       *bool             `yaml:"active"`
}

type seedFile struct {
	Providers []ProviderSeed `yaml:"providers"`
}

// LoadProviderSeeds parses the seed file, resolving api_key_env indirections
// so keys can stay out of the file itself.
func LoadProviderSeeds(path string) ([]ProviderSeed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read provider seed file %q: %w", path, err)
	}

	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse provider seed file %q: %w", path, err)
	}

	out := make([]ProviderSeed, 0, len(f.Providers))
	for _, p := range f.Providers {
		p.Name = strings.TrimSpace(p.Name)
		p.Kind = strings.TrimSpace(strings.ToLower(p.Kind))
		if p.Name == "" || p.Kind == "" {
			continue
		}
		if p.APIKey == "" && p.APIKeyEnv != "" {
			p.APIKey = strings.TrimSpace(os.Getenv(p.APIKeyEnv))
		}
		if p.DisplayName == "" {
			p.DisplayName = p.Name
		}
		out = append(out, p)
	}
	return out, nil
}
