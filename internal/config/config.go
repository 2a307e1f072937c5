// Package config loads the mockllm configuration tree: the global
// config.yaml, the model catalog at models/_catalog.yaml, and one yaml
// file per model. Model files are resolved against catalog defaults and
// templates before validation.
package config

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultListen is used when config.yaml does not set server.listen.
	DefaultListen = "127.0.0.1:8080"

	// DefaultOwner is the owned_by applied to models that do not set one.
	DefaultOwner = "llm-lab"

	// SchemaVersion is the only supported schema for catalog and model files.
	SchemaVersion = 2
)

// Config is the global configuration loaded from config.yaml.
type Config struct {
	Server   ServerConfig   `yaml:"server" json:"server"`
	Response ResponseConfig `yaml:"response" json:"response"`
}

type ServerConfig struct {
	Listen    string     `yaml:"listen" json:"listen"`
	Auth      AuthConfig `yaml:"auth" json:"auth"`
	AdminAuth AuthConfig `yaml:"admin_auth" json:"admin_auth"`
}

// AuthConfig guards either the OpenAI surface (server.auth) or the admin
// surface (server.admin_auth). When enabled, requests must carry
// "Authorization: Bearer <api_key>" verbatim.
type AuthConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	APIKey  string `yaml:"api_key" json:"api_key"`
}

// Authorize reports whether an Authorization header value satisfies this
// auth block. Disabled auth admits everything. The header is compared
// untrimmed against the exact "Bearer <api_key>" form, in constant time.
func (a AuthConfig) Authorize(header string) bool {
	if !a.Enabled {
		return true
	}
	want := "Bearer " + a.APIKey
	return subtle.ConstantTimeCompare([]byte(header), []byte(want)) == 1
}

// ResponseConfig is the response policy. It is the only section editable
// through the admin API.
type ResponseConfig struct {
	ReasoningMode      ReasoningMode `yaml:"reasoning_mode" json:"reasoning_mode"`
	StreamFirstDelayMS int           `yaml:"stream_first_delay_ms" json:"stream_first_delay_ms"`
	IncludeUsage       *bool         `yaml:"include_usage,omitempty" json:"include_usage,omitempty"`
	SchemaStrict       *bool         `yaml:"schema_strict,omitempty" json:"schema_strict,omitempty"`
}

// UsageEnabled reports whether non-streaming responses carry a usage
// block. Defaults to true when unset.
func (r ResponseConfig) UsageEnabled() bool {
	return r.IncludeUsage == nil || *r.IncludeUsage
}

// StrictSchemas reports whether catalog and model files reject unknown
// fields. Defaults to true when unset. config.yaml itself is always
// decoded strictly.
func (r ResponseConfig) StrictSchemas() bool {
	return r.SchemaStrict == nil || *r.SchemaStrict
}

// ReasoningMode controls how synthetic reasoning reaches clients: dropped
// entirely, prefixed onto the content in <think> tags, or carried in a
// separate reasoning_content field.
type ReasoningMode string

const (
	ReasoningNone   ReasoningMode = "none"
	ReasoningPrefix ReasoningMode = "prefix"
	ReasoningField  ReasoningMode = "field"
)

func parseReasoningMode(s string) (ReasoningMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none":
		return ReasoningNone, nil
	case "prefix", "append":
		return ReasoningPrefix, nil
	case "field", "both", "":
		return ReasoningField, nil
	default:
		return "", fmt.Errorf("unknown reasoning_mode %q", s)
	}
}

func (m *ReasoningMode) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	mode, err := parseReasoningMode(s)
	if err != nil {
		return err
	}
	*m = mode
	return nil
}

func (m *ReasoningMode) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	mode, err := parseReasoningMode(s)
	if err != nil {
		return err
	}
	*m = mode
	return nil
}

// Load reads and parses the global config file. The file is always
// decoded strictly regardless of schema_strict.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := decodeYAML(data, &cfg, true); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Listen == "" {
		cfg.Server.Listen = DefaultListen
	}
	if cfg.Response.ReasoningMode == "" {
		cfg.Response.ReasoningMode = ReasoningField
	}
}

// decodeYAML parses a single yaml document. Environment references are
// expanded first and a UTF-8 BOM is tolerated. With strict set, unknown
// fields and trailing documents are rejected.
func decodeYAML(data []byte, out any, strict bool) error {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	expanded := os.ExpandEnv(string(data))

	decoder := yaml.NewDecoder(strings.NewReader(expanded))
	decoder.KnownFields(strict)
	if err := decoder.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("empty document")
		}
		return err
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return fmt.Errorf("expected single document")
	}
	return nil
}
