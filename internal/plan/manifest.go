// SPDX-License-Identifier: Apache-2.0

package plan

import (
	"os"

	"github.com/joomcode/errorx"
	"gopkg.in/yaml.v3"

	"github.com/hashgraph/solo-stager/internal/schema"
)

// Plan manifests are the integration surface with the migration executor:
// the executor exports its dependency-ordered plan (autodetected graph plus
// applied-migration history) as YAML and stager consumes it read-only.

type manifestMigration struct {
	App          string             `yaml:"app"`
	Name         string             `yaml:"name"`
	Stage        string             `yaml:"stage,omitempty"`
	Backward     bool               `yaml:"backward,omitempty"`
	Applied      bool               `yaml:"applied,omitempty"`
	Dependencies []string           `yaml:"dependencies,omitempty"`
	Operations   []schema.Operation `yaml:"operations,omitempty"`
}

type manifest struct {
	Migrations []manifestMigration `yaml:"migrations"`
}

// LoadManifest reads a plan manifest from disk.
func LoadManifest(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errorx.IllegalState.Wrap(err, "failed to read plan manifest %s", path).
			WithProperty(errorx.PropertyPayload(), path)
	}
	return ParseManifest(data)
}

// ParseManifest parses a YAML plan manifest.
func ParseManifest(data []byte) (*Plan, error) {
	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, errorx.IllegalFormat.Wrap(err, "failed to parse plan manifest")
	}

	p := &Plan{Nodes: make([]Node, 0, len(m.Migrations))}
	for _, entry := range m.Migrations {
		if entry.App == "" || entry.Name == "" {
			return nil, errorx.IllegalFormat.New("manifest migration requires both app and name")
		}

		migration := Migration{
			AppLabel:   entry.App,
			Name:       entry.Name,
			Operations: entry.Operations,
		}
		if entry.Stage != "" {
			stage, err := schema.ParseStage(entry.Stage)
			if err != nil {
				return nil, errorx.IllegalFormat.Wrap(err, "migration %s.%s has an invalid stage", entry.App, entry.Name)
			}
			migration.ExplicitStage = stage
		}
		for _, dep := range entry.Dependencies {
			migration.Dependencies = append(migration.Dependencies, MigrationID(dep))
		}

		direction := DirectionForward
		if entry.Backward {
			direction = DirectionBackward
		}

		p.Nodes = append(p.Nodes, Node{
			Migration: migration,
			Direction: direction,
			Applied:   entry.Applied,
		})
	}

	return p, nil
}
