package tasks

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// DefaultTask is one entry of the embedded default task set.
type DefaultTask struct {
	Name        string         `yaml:"name"`
	Kind        Kind           `yaml:"kind"`
	DisplayName string         `yaml:"displayName"`
	Description string         `yaml:"description"`
	Schedule    string         `yaml:"schedule"`
	Enabled     bool           `yaml:"enabled"`
	Config      map[string]any `yaml:"config"`
}

// Meta converts the entry to registry metadata.
func (d DefaultTask) Meta() Meta {
	return Meta{
		DisplayName:     d.DisplayName,
		Description:     d.Description,
		DefaultSchedule: d.Schedule,
		DefaultEnabled:  d.Enabled,
		DefaultConfig:   Config(d.Config),
	}
}

// LoadDefaults parses the embedded default task set.
func LoadDefaults() ([]DefaultTask, error) {
	return parseDefaults(defaultsYAML)
}

func parseDefaults(data []byte) ([]DefaultTask, error) {
	var doc struct {
		Tasks []DefaultTask `yaml:"tasks"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse default tasks: %w", err)
	}

	seen := make(map[string]bool, len(doc.Tasks))
	for _, t := range doc.Tasks {
		if t.Name == "" || t.Schedule == "" {
			return nil, fmt.Errorf("default task %q: name and schedule are required", t.Name)
		}
		if !t.Kind.Valid() {
			return nil, fmt.Errorf("default task %s: unknown kind %q", t.Name, t.Kind)
		}
		if seen[t.Name] {
			return nil, fmt.Errorf("default task %s: duplicate name", t.Name)
		}
		seen[t.Name] = true
	}
	return doc.Tasks, nil
}
