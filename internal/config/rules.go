package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Rules is the moderation content loaded from the rules file: the initial
// blacklist, custom commands and timers.
type Rules struct {
	Blacklist []string      `yaml:"blacklist"`
	Commands  []CommandRule `yaml:"commands"`
	Timers    []TimerRule   `yaml:"timers"`
}

// CommandRule seeds a custom command.
type CommandRule struct {
	Name            string `yaml:"name"`
	Level           string `yaml:"level"`
	Content         string `yaml:"content"`
	CooldownSeconds int    `yaml:"cooldown_seconds"`
	PointCost       int64  `yaml:"point_cost"`
}

// TimerRule seeds a repeating message.
type TimerRule struct {
	Name     string        `yaml:"name"`
	Interval time.Duration `yaml:"interval"`
	Message  string        `yaml:"message"`
}

// LoadRules reads and parses a YAML rules file, expanding env vars.
func LoadRules(path string) (*Rules, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("rules: read %s: %w", path, err)
	}
	rules, err := LoadRulesBytes(raw)
	if err != nil {
		return nil, fmt.Errorf("rules: %s: %w", path, err)
	}
	return rules, nil
}

// LoadRulesBytes parses rules from bytes.
func LoadRulesBytes(data []byte) (*Rules, error) {
	expanded := expandEnvVars(string(data))
	var rules Rules
	if err := yaml.Unmarshal([]byte(expanded), &rules); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	if err := rules.validate(); err != nil {
		return nil, err
	}
	return &rules, nil
}

func (r *Rules) validate() error {
	seen := make(map[string]bool, len(r.Commands))
	for i, c := range r.Commands {
		name := strings.ToLower(strings.TrimSpace(c.Name))
		if name == "" {
			return fmt.Errorf("commands[%d]: name is required", i)
		}
		if seen[name] {
			return fmt.Errorf("commands[%d]: duplicate command %q", i, name)
		}
		seen[name] = true
	}
	for i, t := range r.Timers {
		if t.Name == "" || t.Message == "" {
			return fmt.Errorf("timers[%d]: name and message are required", i)
		}
	}
	return nil
}

// envVarPattern matches ${VAR_NAME} and $VAR_NAME.
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// expandEnvVars replaces ${VAR} and $VAR with the corresponding environment
// variable value. Missing vars are replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := strings.TrimPrefix(match, "${")
		name = strings.TrimSuffix(name, "}")
		name = strings.TrimPrefix(name, "$")
		return os.Getenv(name)
	})
}
