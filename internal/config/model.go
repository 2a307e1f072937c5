package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// ModelKind selects the reply engine behind a model.
type ModelKind string

const (
	KindStatic      ModelKind = "static"
	KindScript      ModelKind = "script"
	KindInteractive ModelKind = "interactive"
)

func parseModelKind(s string) (ModelKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "static":
		return KindStatic, nil
	case "script":
		return KindScript, nil
	case "interactive":
		return KindInteractive, nil
	default:
		return "", fmt.Errorf("unknown model kind %q", s)
	}
}

func (k *ModelKind) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	kind, err := parseModelKind(s)
	if err != nil {
		return err
	}
	*k = kind
	return nil
}

func (k *ModelKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	kind, err := parseModelKind(s)
	if err != nil {
		return err
	}
	*k = kind
	return nil
}

// DefaultChunkChars is the streaming chunk size used when a model does
// not set stream_chunk_chars.
func (k ModelKind) DefaultChunkChars() int {
	if k == KindScript {
		return 12
	}
	return 8
}

// ModelFile is one models/<id>.yaml document before resolution.
type ModelFile struct {
	Schema   int       `yaml:"schema" json:"schema"`
	ID       string    `yaml:"id,omitempty" json:"id,omitempty"`
	Extends  []string  `yaml:"extends,omitempty" json:"extends,omitempty"`
	Disabled bool      `yaml:"disabled,omitempty" json:"disabled,omitempty"`
	Kind     ModelKind `yaml:"kind" json:"kind"`
	Overlay  `yaml:",inline"`
}

// Metadata is the descriptive block of a model.
type Metadata struct {
	OwnedBy     string   `yaml:"owned_by,omitempty" json:"owned_by,omitempty"`
	Created     int64    `yaml:"created,omitempty" json:"created,omitempty"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	Tags        []string `yaml:"tags,omitempty" json:"tags,omitempty"`
}

// StaticSpec configures a static model: an ordered rule list plus a
// model-wide pick strategy.
type StaticSpec struct {
	Pick             PickStrategy `yaml:"pick,omitempty" json:"pick,omitempty"`
	StreamChunkChars *int         `yaml:"stream_chunk_chars,omitempty" json:"stream_chunk_chars,omitempty"`
	Rules            []Rule       `yaml:"rules,omitempty" json:"rules,omitempty"`
}

func (s *StaticSpec) clone() *StaticSpec {
	out := *s
	if s.StreamChunkChars != nil {
		v := *s.StreamChunkChars
		out.StreamChunkChars = &v
	}
	if s.Rules != nil {
		out.Rules = make([]Rule, len(s.Rules))
		for i, r := range s.Rules {
			out.Rules[i] = r.clone()
		}
	}
	return &out
}

// Rule is one entry of a static model: an optional matcher plus the
// replies it can serve.
type Rule struct {
	Default bool          `yaml:"default,omitempty" json:"default,omitempty"`
	When    *When         `yaml:"when,omitempty" json:"when,omitempty"`
	Pick    PickStrategy  `yaml:"pick,omitempty" json:"pick,omitempty"`
	Replies []StaticReply `yaml:"replies,omitempty" json:"replies,omitempty"`
}

func (r Rule) clone() Rule {
	out := r
	if r.When != nil {
		w := r.When.clone()
		out.When = &w
	}
	if r.Replies != nil {
		out.Replies = make([]StaticReply, len(r.Replies))
		for i, rep := range r.Replies {
			out.Replies[i] = rep.clone()
		}
	}
	return out
}

// When groups conditions over the last user message: any-of, all-of, and
// none-of. An empty group is vacuously true.
type When struct {
	Any  []Condition `yaml:"any,omitempty" json:"any,omitempty"`
	All  []Condition `yaml:"all,omitempty" json:"all,omitempty"`
	None []Condition `yaml:"none,omitempty" json:"none,omitempty"`
}

func (w When) clone() When {
	return When{
		Any:  append([]Condition(nil), w.Any...),
		All:  append([]Condition(nil), w.All...),
		None: append([]Condition(nil), w.None...),
	}
}

// StaticReply is one canned reply with optional reasoning and weight.
type StaticReply struct {
	Content   string `yaml:"content" json:"content"`
	Reasoning string `yaml:"reasoning,omitempty" json:"reasoning,omitempty"`
	Weight    *int   `yaml:"weight,omitempty" json:"weight,omitempty"`
}

func (r StaticReply) clone() StaticReply {
	out := r
	if r.Weight != nil {
		v := *r.Weight
		out.Weight = &v
	}
	return out
}

// PickStrategy selects among the replies of a rule. Empty means unset;
// the effective strategy falls back from rule to model to round_robin.
type PickStrategy string

const (
	PickRoundRobin PickStrategy = "round_robin"
	PickRandom     PickStrategy = "random"
	PickWeighted   PickStrategy = "weighted"
)

func parsePickStrategy(s string) (PickStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return "", nil
	case "round_robin":
		return PickRoundRobin, nil
	case "random":
		return PickRandom, nil
	case "weighted":
		return PickWeighted, nil
	default:
		return "", fmt.Errorf("unknown pick strategy %q", s)
	}
}

func (p *PickStrategy) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	pick, err := parsePickStrategy(raw)
	if err != nil {
		return err
	}
	*p = pick
	return nil
}

func (p *PickStrategy) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	pick, err := parsePickStrategy(raw)
	if err != nil {
		return err
	}
	*p = pick
	return nil
}

// ConditionOp names a condition operator.
type ConditionOp string

const (
	OpContains   ConditionOp = "contains"
	OpEquals     ConditionOp = "equals"
	OpStartsWith ConditionOp = "starts_with"
	OpEndsWith   ConditionOp = "ends_with"
	OpRegex      ConditionOp = "regex"
)

// CaseMode selects case sensitivity for text conditions.
type CaseMode string

const (
	CaseSensitive   CaseMode = "sensitive"
	CaseInsensitive CaseMode = "insensitive"
)

// Condition is a single matcher over the last user message. Exactly one
// operator key must be present. Regex values use the /pattern/flags
// literal form.
type Condition struct {
	Op    ConditionOp
	Value string
	Case  CaseMode
}

func (c *Condition) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("condition must be a mapping")
	}
	fields := map[string]string{}
	for i := 0; i+1 < len(node.Content); i += 2 {
		var key, value string
		if err := node.Content[i].Decode(&key); err != nil {
			return err
		}
		if err := node.Content[i+1].Decode(&value); err != nil {
			return fmt.Errorf("condition %s: %w", key, err)
		}
		fields[key] = value
	}
	return c.fromFields(fields)
}

func (c *Condition) UnmarshalJSON(data []byte) error {
	var fields map[string]string
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	return c.fromFields(fields)
}

func (c *Condition) fromFields(fields map[string]string) error {
	ops := 0
	out := Condition{Case: CaseSensitive}
	for key, value := range fields {
		switch ConditionOp(key) {
		case OpContains, OpEquals, OpStartsWith, OpEndsWith, OpRegex:
			out.Op = ConditionOp(key)
			out.Value = value
			ops++
		default:
			if key != "case" {
				return fmt.Errorf("unknown condition key %q", key)
			}
			switch strings.ToLower(strings.TrimSpace(value)) {
			case "", "sensitive":
				out.Case = CaseSensitive
			case "insensitive":
				out.Case = CaseInsensitive
			default:
				return fmt.Errorf("unknown case mode %q", value)
			}
		}
	}
	if ops != 1 {
		return fmt.Errorf("condition must set exactly one of contains, equals, starts_with, ends_with, regex")
	}
	*c = out
	return nil
}

func (c Condition) marshalFields() map[string]string {
	out := map[string]string{string(c.Op): c.Value}
	if c.Case == CaseInsensitive {
		out["case"] = string(c.Case)
	}
	return out
}

func (c Condition) MarshalYAML() (any, error) {
	return c.marshalFields(), nil
}

func (c Condition) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.marshalFields())
}

// ScriptSpec configures a script model.
type ScriptSpec struct {
	File             string `yaml:"file,omitempty" json:"file,omitempty"`
	InitFile         string `yaml:"init_file,omitempty" json:"init_file,omitempty"`
	TimeoutMS        int    `yaml:"timeout_ms,omitempty" json:"timeout_ms,omitempty"`
	StreamChunkChars *int   `yaml:"stream_chunk_chars,omitempty" json:"stream_chunk_chars,omitempty"`
}

func (s *ScriptSpec) clone() *ScriptSpec {
	out := *s
	if s.StreamChunkChars != nil {
		v := *s.StreamChunkChars
		out.StreamChunkChars = &v
	}
	return &out
}

// InteractiveSpec configures an interactive model.
type InteractiveSpec struct {
	TimeoutMS        int    `yaml:"timeout_ms,omitempty" json:"timeout_ms,omitempty"`
	FallbackText     string `yaml:"fallback_text,omitempty" json:"fallback_text,omitempty"`
	FakeReasoning    string `yaml:"fake_reasoning,omitempty" json:"fake_reasoning,omitempty"`
	StreamChunkChars *int   `yaml:"stream_chunk_chars,omitempty" json:"stream_chunk_chars,omitempty"`
}

func (s *InteractiveSpec) clone() *InteractiveSpec {
	out := *s
	if s.StreamChunkChars != nil {
		v := *s.StreamChunkChars
		out.StreamChunkChars = &v
	}
	return &out
}

// Model is a fully resolved model: its file merged over the catalog
// defaults and templates, with metadata defaults applied.
type Model struct {
	ID          string           `json:"id"`
	Kind        ModelKind        `json:"kind"`
	Disabled    bool             `json:"disabled,omitempty"`
	OwnedBy     string           `json:"owned_by"`
	Created     int64            `json:"created"`
	Description string           `json:"description,omitempty"`
	Tags        []string         `json:"tags,omitempty"`
	Static      *StaticSpec      `json:"static,omitempty"`
	Script      *ScriptSpec      `json:"script,omitempty"`
	Interactive *InteractiveSpec `json:"interactive,omitempty"`
}

// PublicID is the identifier clients address the model by.
func (m *Model) PublicID() string {
	return m.OwnedBy + "/" + m.ID
}

// ChunkChars is the effective streaming chunk size for this model.
func (m *Model) ChunkChars() int {
	var override *int
	switch m.Kind {
	case KindStatic:
		if m.Static != nil {
			override = m.Static.StreamChunkChars
		}
	case KindScript:
		if m.Script != nil {
			override = m.Script.StreamChunkChars
		}
	case KindInteractive:
		if m.Interactive != nil {
			override = m.Interactive.StreamChunkChars
		}
	}
	if override != nil {
		return *override
	}
	return m.Kind.DefaultChunkChars()
}

// resolveModel merges a model file over the catalog defaults and its
// extends chain, then checks the result against its kind.
func resolveModel(file *ModelFile, catalog *Catalog, created int64) (*Model, error) {
	var merged Overlay
	var layers []Overlay
	if catalog.Defaults != nil {
		layers = append(layers, catalog.Defaults.clone())
	}
	for _, name := range file.Extends {
		tpl, ok := catalog.Templates[name]
		if !ok {
			return nil, fmt.Errorf("model %s extends unknown template %q", file.ID, name)
		}
		layers = append(layers, tpl.clone())
	}
	layers = append(layers, file.Overlay.clone())
	for i := range layers {
		if err := mergo.Merge(&merged, layers[i], mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge model %s: %w", file.ID, err)
		}
	}

	model := &Model{
		ID:       file.ID,
		Kind:     file.Kind,
		Disabled: file.Disabled,
		OwnedBy:  DefaultOwner,
		Created:  created,
	}
	if meta := merged.Metadata; meta != nil {
		if owned := strings.TrimSpace(meta.OwnedBy); owned != "" {
			model.OwnedBy = owned
		}
		if meta.Created != 0 {
			model.Created = meta.Created
		}
		model.Description = meta.Description
		model.Tags = meta.Tags
	}
	model.Static = merged.Static
	model.Script = merged.Script
	model.Interactive = merged.Interactive

	if err := checkKindBlocks(model); err != nil {
		return nil, err
	}
	switch model.Kind {
	case KindStatic:
		if err := checkStatic(model.ID, model.Static); err != nil {
			return nil, err
		}
	case KindScript:
		if model.Script.TimeoutMS == 0 {
			model.Script.TimeoutMS = 1500
		}
	case KindInteractive:
		if model.Interactive.TimeoutMS == 0 {
			model.Interactive.TimeoutMS = 15000
		}
		if strings.TrimSpace(model.Interactive.FallbackText) == "" {
			return nil, fmt.Errorf("model %s: interactive fallback_text is required", model.ID)
		}
	}
	return model, nil
}

func checkKindBlocks(m *Model) error {
	switch m.Kind {
	case "":
		return fmt.Errorf("model %s: kind is required", m.ID)
	case KindStatic:
		if m.Static == nil {
			return fmt.Errorf("model %s: kind static requires a static block", m.ID)
		}
	case KindScript:
		if m.Script == nil {
			return fmt.Errorf("model %s: kind script requires a script block", m.ID)
		}
	case KindInteractive:
		if m.Interactive == nil {
			return fmt.Errorf("model %s: kind interactive requires an interactive block", m.ID)
		}
	}
	if m.Kind != KindStatic && m.Static != nil {
		return fmt.Errorf("model %s: static block not allowed for kind %s", m.ID, m.Kind)
	}
	if m.Kind != KindScript && m.Script != nil {
		return fmt.Errorf("model %s: script block not allowed for kind %s", m.ID, m.Kind)
	}
	if m.Kind != KindInteractive && m.Interactive != nil {
		return fmt.Errorf("model %s: interactive block not allowed for kind %s", m.ID, m.Kind)
	}
	return nil
}

func checkStatic(id string, spec *StaticSpec) error {
	if len(spec.Rules) == 0 {
		return fmt.Errorf("model %s: static rules must not be empty", id)
	}
	defaults := 0
	for i, rule := range spec.Rules {
		if len(rule.Replies) == 0 {
			return fmt.Errorf("model %s: rule %d has no replies", id, i)
		}
		if rule.Default {
			defaults++
			if rule.When != nil {
				return fmt.Errorf("model %s: default rule must not set when", id)
			}
		}
	}
	if defaults > 1 {
		return fmt.Errorf("model %s: multiple default rules", id)
	}
	if len(spec.Rules) > 1 {
		if defaults != 1 {
			return fmt.Errorf("model %s: multiple rules require one default rule", id)
		}
		for i, rule := range spec.Rules {
			if !rule.Default && rule.When == nil {
				return fmt.Errorf("model %s: rule %d needs a when block or default", id, i)
			}
		}
	}
	return nil
}

// checkScriptPath rejects absolute paths and parent traversal. Script
// references must stay inside the scripts directory.
func checkScriptPath(id, field, p string) error {
	if filepath.IsAbs(p) || strings.HasPrefix(p, "/") {
		return fmt.Errorf("model %s: %s must be a relative path", id, field)
	}
	for _, part := range strings.Split(filepath.ToSlash(p), "/") {
		if part == ".." {
			return fmt.Errorf("model %s: %s must not contain ..", id, field)
		}
	}
	return nil
}
