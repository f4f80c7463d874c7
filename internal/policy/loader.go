package policy

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// fileConfig mirrors the on-disk policy document.
type fileConfig struct {
	DefaultAllow bool   `yaml:"default_allow" json:"default_allow"`
	Rules        []Rule `yaml:"rules" json:"rules"`
}

// LoadFile reads a rule policy from a YAML or JSON file. Malformed
// documents and bad patterns are load-time errors, fatal to startup.
func LoadFile(path string) (*RulePolicy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("LoadFile: %w", err)
	}

	var cfg fileConfig
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("LoadFile: parse %s: %w", path, err)
		}
	case ".json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("LoadFile: parse %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("LoadFile: unsupported policy format %q", ext)
	}

	for i := range cfg.Rules {
		applyRuleDefaults(&cfg.Rules[i])
	}

	p, err := NewRulePolicy(cfg.Rules, cfg.DefaultAllow)
	if err != nil {
		return nil, fmt.Errorf("LoadFile: %s: %w", path, err)
	}
	return p, nil
}

// applyRuleDefaults fills omitted fields: patterns default to match-all,
// the action defaults to deny.
func applyRuleDefaults(r *Rule) {
	if r.Tool == "" {
		r.Tool = "*"
	}
	if r.Function == "" {
		r.Function = "*"
	}
	if r.AgentID == "" {
		r.AgentID = "*"
	}
	if r.Action == "" {
		r.Action = "deny"
	}
	if r.Reason == "" {
		r.Reason = "No reason provided"
	}
}
