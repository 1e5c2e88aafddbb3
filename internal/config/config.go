package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/marcelocantos/monch/internal/registry"
	"github.com/marcelocantos/monch/internal/rules"
)

// Config holds the global monch configuration.
type Config struct {
	Pipefail    bool                               `yaml:"pipefail"`
	Types       map[string]TypeConfig              `yaml:"types"`
	TypesScript string                             `yaml:"types_script"`
	Rules       map[string]rules.ProgramRuleConfig `yaml:"rules"`
	Audit       AuditConfig                        `yaml:"audit"`
}

// TypeConfig declares the stream signature of one program. Empty fields
// mean opaque.
type TypeConfig struct {
	Input  string `yaml:"input"`
	Output string `yaml:"output"`
}

// AuditConfig controls audit log settings.
type AuditConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Audit: AuditConfig{
			Enabled: true,
			Path:    filepath.Join(home, ".local", "share", "monch", "audit.jsonl"),
		},
	}
}

// Load reads the config from the standard location (~/.config/monch/config.yaml).
// If the file doesn't exist, returns the default config.
func Load() (*Config, error) {
	if _, err := os.UserHomeDir(); err != nil {
		return DefaultConfig(), nil
	}
	return LoadFrom(ConfigPath())
}

// LoadFrom reads the config from the given path.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.Audit.Path = expandHome(cfg.Audit.Path)
	cfg.TypesScript = expandHome(cfg.TypesScript)
	if cfg.TypesScript != "" && !filepath.IsAbs(cfg.TypesScript) {
		// Relative scripts live next to the config file.
		cfg.TypesScript = filepath.Join(filepath.Dir(path), cfg.TypesScript)
	}

	return cfg, nil
}

func expandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, path[1:])
}

// DefaultRules returns the default argument-level rules, used when the
// config has no rules section.
func DefaultRules() map[string]rules.ProgramRuleConfig {
	return map[string]rules.ProgramRuleConfig{
		"git": {
			Subcommands: map[string]rules.SubRuleConfig{
				"push":  {RejectFlags: []string{"--force", "-f", "--force-with-lease"}},
				"reset": {RejectFlags: []string{"--hard"}},
			},
		},
	}
}

// RuleSet builds the argument rules. Hardcoded safety rules are always
// included. Programmatic default rules (like git checkout .) are added as
// config rules so they can be bypassed with --bypass-rules.
func (c *Config) RuleSet() *rules.RuleSet {
	rs := rules.NewRuleSet(rules.Hardcoded()...)
	cfgRules := c.Rules
	if cfgRules == nil {
		cfgRules = DefaultRules()
	}
	for name, programRule := range cfgRules {
		for _, fn := range rules.Compile(name, programRule) {
			rs.AddConfig(fn)
		}
	}
	for _, fn := range rules.Defaults() {
		rs.AddConfig(fn)
	}
	return rs
}

// ApplyTypes registers the configured signatures on reg: the types map
// first, then the Starlark types script, which may override it.
func (c *Config) ApplyTypes(reg *registry.Registry) error {
	for name, tc := range c.Types {
		in, err := parseOrOpaque(tc.Input)
		if err != nil {
			return fmt.Errorf("types.%s.input: %w", name, err)
		}
		out, err := parseOrOpaque(tc.Output)
		if err != nil {
			return fmt.Errorf("types.%s.output: %w", name, err)
		}
		reg.Register(name, registry.Signature{Input: in, Output: out}, registry.OriginConfig)
	}

	if c.TypesScript == "" {
		return nil
	}
	src, err := os.ReadFile(c.TypesScript)
	if err != nil {
		return fmt.Errorf("read types script: %w", err)
	}
	return registry.LoadScript(reg, c.TypesScript, src)
}

func parseOrOpaque(s string) (registry.StreamType, error) {
	if s == "" {
		return registry.Opaque, nil
	}
	return registry.ParseStreamType(s)
}

// ConfigPath returns the standard config file path.
func ConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "monch", "config.yaml")
}
