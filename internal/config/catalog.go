package config

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Catalog is the models/_catalog.yaml document: aliases over the model
// set, an optional default model, and the defaults/templates overlays
// that model files merge with.
type Catalog struct {
	Schema       int                `yaml:"schema" json:"schema"`
	DefaultModel string             `yaml:"default_model,omitempty" json:"default_model,omitempty"`
	Aliases      []Alias            `yaml:"aliases,omitempty" json:"aliases,omitempty"`
	Defaults     *Overlay           `yaml:"defaults,omitempty" json:"defaults,omitempty"`
	Templates    map[string]Overlay `yaml:"templates,omitempty" json:"templates,omitempty"`
}

// Alias is a routable name that fans out across provider models.
type Alias struct {
	Name      string        `yaml:"name" json:"name"`
	Providers []string      `yaml:"providers" json:"providers"`
	Strategy  AliasStrategy `yaml:"strategy,omitempty" json:"strategy,omitempty"`
	OwnedBy   string        `yaml:"owned_by,omitempty" json:"owned_by,omitempty"`
	Disabled  bool          `yaml:"disabled,omitempty" json:"disabled,omitempty"`
}

// AliasStrategy selects how an alias picks among its enabled providers.
type AliasStrategy string

const (
	AliasRoundRobin AliasStrategy = "round_robin"
	AliasRandom     AliasStrategy = "random"
)

func parseAliasStrategy(raw string) (AliasStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "round_robin":
		return AliasRoundRobin, nil
	case "random":
		return AliasRandom, nil
	default:
		return "", fmt.Errorf("unknown alias strategy %q", raw)
	}
}

func (s *AliasStrategy) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	strategy, err := parseAliasStrategy(raw)
	if err != nil {
		return err
	}
	*s = strategy
	return nil
}

func (s *AliasStrategy) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	strategy, err := parseAliasStrategy(raw)
	if err != nil {
		return err
	}
	*s = strategy
	return nil
}

// Overlay is the mergeable fragment of a model definition. Catalog
// defaults, named templates, and the model file itself are all overlays;
// resolution merges them field by field with later layers winning and
// lists replacing wholesale.
type Overlay struct {
	Metadata    *Metadata        `yaml:"metadata,omitempty" json:"metadata,omitempty"`
	Static      *StaticSpec      `yaml:"static,omitempty" json:"static,omitempty"`
	Script      *ScriptSpec      `yaml:"script,omitempty" json:"script,omitempty"`
	Interactive *InteractiveSpec `yaml:"interactive,omitempty" json:"interactive,omitempty"`
}

func (o Overlay) clone() Overlay {
	out := Overlay{}
	if o.Metadata != nil {
		meta := *o.Metadata
		meta.Tags = append([]string(nil), o.Metadata.Tags...)
		out.Metadata = &meta
	}
	if o.Static != nil {
		out.Static = o.Static.clone()
	}
	if o.Script != nil {
		out.Script = o.Script.clone()
	}
	if o.Interactive != nil {
		out.Interactive = o.Interactive.clone()
	}
	return out
}
