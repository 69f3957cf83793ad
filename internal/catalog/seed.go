package catalog

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Seed is the YAML document that populates the catalog.
type Seed struct {
	Endpoints []SeedEndpoint `yaml:"endpoints"`
}

// SeedEndpoint is one endpoint with its config rows and commands.
type SeedEndpoint struct {
	ID       string            `yaml:"id"`
	Name     string            `yaml:"name"`
	Protocol string            `yaml:"protocol"`
	Enabled  *bool             `yaml:"enabled"`
	Config   map[string]string `yaml:"config"`
	Commands []Command         `yaml:"commands"`
}

func (e SeedEndpoint) isEnabled() bool {
	return e.Enabled == nil || *e.Enabled
}

// LoadSeed reads and validates a seed file.
func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from configuration
	if err != nil {
		return nil, fmt.Errorf("reading catalog seed: %w", err)
	}
	return ParseSeed(data)
}

// ParseSeed decodes and validates seed YAML.
func ParseSeed(data []byte) (*Seed, error) {
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parsing catalog seed: %w", err)
	}
	if err := seed.Validate(); err != nil {
		return nil, err
	}
	return &seed, nil
}

// Validate checks IDs, names, protocols and categories, and that no command
// or endpoint ID repeats. All problems are reported together.
func (s *Seed) Validate() error {
	var errs []error
	endpoints := make(map[string]bool)
	commands := make(map[string]bool)

	for i, ep := range s.Endpoints {
		switch {
		case ep.ID == "":
			errs = append(errs, fmt.Errorf("endpoint %d: id is required", i))
		case endpoints[ep.ID]:
			errs = append(errs, fmt.Errorf("endpoint %s: duplicate id", ep.ID))
		}
		endpoints[ep.ID] = true

		if ep.Name == "" {
			errs = append(errs, fmt.Errorf("endpoint %s: name is required", ep.ID))
		}
		if ep.Protocol == "" {
			errs = append(errs, fmt.Errorf("endpoint %s: protocol is required", ep.ID))
		}

		names := make(map[string]bool)
		for j, c := range ep.Commands {
			switch {
			case c.ID == "":
				errs = append(errs, fmt.Errorf("endpoint %s command %d: id is required", ep.ID, j))
			case commands[c.ID]:
				errs = append(errs, fmt.Errorf("command %s: duplicate id", c.ID))
			}
			commands[c.ID] = true

			if c.Name == "" {
				errs = append(errs, fmt.Errorf("command %s: name is required", c.ID))
			} else if names[c.Name] {
				errs = append(errs, fmt.Errorf("command %s: name %q repeats on endpoint %s", c.ID, c.Name, ep.ID))
			}
			names[c.Name] = true

			if !c.Category.Valid() {
				errs = append(errs, fmt.Errorf("command %s: unknown category %q", c.ID, c.Category))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidCatalog, errors.Join(errs...))
	}
	return nil
}
