// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package callin

import (
	"fmt"
	"regexp"

	"github.com/Masterminds/semver/v3"
	"github.com/samber/oops"
	"gopkg.in/yaml.v3"
)

// CodeInvalidManifest is the error code for a malformed call-in manifest.
const CodeInvalidManifest = "INVALID_MANIFEST"

// Manifest represents a callins.yaml file.
type Manifest struct {
	Version string  `yaml:"version" json:"version" jsonschema:"required,minLength=1"`
	CallIns []Entry `yaml:"callins" json:"callins" jsonschema:"required,minItems=1"`
}

// Entry declares one call-in and the legacy names that resolve to it.
type Entry struct {
	Name    string   `yaml:"name" json:"name" jsonschema:"required,pattern=^[A-Za-z][A-Za-z0-9]*$"`
	Code    Code     `yaml:"code" json:"code" jsonschema:"required,minimum=1"`
	Aliases []string `yaml:"aliases,omitempty" json:"aliases,omitempty"`
}

// namePattern validates call-in names and aliases.
var namePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9]*$`)

// ParseManifest parses and validates a call-in manifest.
func ParseManifest(data []byte) (*Manifest, error) {
	if len(data) == 0 {
		return nil, oops.In("callin").Code(CodeInvalidManifest).Errorf("manifest data is empty")
	}

	if err := ValidateSchema(data); err != nil {
		return nil, oops.In("callin").Code(CodeInvalidManifest).Wrap(err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, oops.In("callin").Code(CodeInvalidManifest).Wrapf(err, "invalid YAML")
	}

	if err := m.Validate(); err != nil {
		return nil, oops.In("callin").Code(CodeInvalidManifest).Wrap(err)
	}

	return &m, nil
}

// Validate checks manifest constraints the schema cannot express:
// codes and names must be unique across canonical names and aliases.
func (m *Manifest) Validate() error {
	if _, err := semver.NewVersion(m.Version); err != nil {
		return fmt.Errorf("version %q is not a semantic version: %w", m.Version, err)
	}
	if len(m.CallIns) == 0 {
		return fmt.Errorf("at least one call-in is required")
	}

	codes := make(map[Code]string, len(m.CallIns))
	names := make(map[string]bool)

	for i, e := range m.CallIns {
		if !namePattern.MatchString(e.Name) {
			return fmt.Errorf("callins[%d]: invalid name %q", i, e.Name)
		}
		if e.Code <= 0 {
			return fmt.Errorf("callins[%d] (%s): code must be positive, got %d", i, e.Name, e.Code)
		}
		if prev, ok := codes[e.Code]; ok {
			return fmt.Errorf("callins[%d] (%s): code %d already assigned to %s", i, e.Name, e.Code, prev)
		}
		codes[e.Code] = e.Name

		if names[e.Name] {
			return fmt.Errorf("callins[%d]: duplicate name %q", i, e.Name)
		}
		names[e.Name] = true
	}

	// Aliases are checked after every canonical name is known so an alias
	// can never shadow a call-in declared later in the file.
	for i, e := range m.CallIns {
		for _, alias := range e.Aliases {
			if !namePattern.MatchString(alias) {
				return fmt.Errorf("callins[%d] (%s): invalid alias %q", i, e.Name, alias)
			}
			if names[alias] {
				return fmt.Errorf("callins[%d] (%s): alias %q collides with another name", i, e.Name, alias)
			}
			names[alias] = true
		}
	}

	return nil
}
