package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/five82/tether/internal/pipeline"
)

// Rule colors the first match of Pattern in each line.
type Rule struct {
	Name    string `toml:"name" yaml:"name"`
	Pattern string `toml:"pattern" yaml:"pattern"`
	Color   string `toml:"color" yaml:"color"`
}

// RulesFile is the layout of a standalone rules file.
type RulesFile struct {
	Rules        []Rule   `toml:"rules" yaml:"rules"`
	HidePatterns []string `toml:"hide_patterns" yaml:"hide_patterns"`
}

var hexColor = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// DefaultRules color common severity words.
func DefaultRules() []Rule {
	return []Rule{
		{Name: "error", Pattern: `(?i)\b(error|fail(ed|ure)?|panic|fatal)\b`, Color: "#c94f6d"},
		{Name: "warning", Pattern: `(?i)\bwarn(ing)?\b`, Color: "#dbc074"},
		{Name: "info", Pattern: `(?i)\binfo\b`, Color: "#81b29a"},
		{Name: "debug", Pattern: `(?i)\b(debug|trace)\b`, Color: "#738091"},
	}
}

// LoadRulesFile reads rules from a .toml, .yaml or .yml file.
func LoadRulesFile(path string) (RulesFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RulesFile{}, fmt.Errorf("read rules: %w", err)
	}
	var file RulesFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &file); err != nil {
			return RulesFile{}, fmt.Errorf("parse rules: %w", err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, &file); err != nil {
			return RulesFile{}, fmt.Errorf("parse rules: %w", err)
		}
	default:
		return RulesFile{}, &ValidationError{Field: "rules_file", Value: path, Reason: "extension must be .toml, .yaml or .yml"}
	}
	return file, nil
}

func ruleName(i int, r Rule) string {
	if name := strings.TrimSpace(r.Name); name != "" {
		return name
	}
	return "rule" + strconv.Itoa(i+1)
}

// normalizeRules fills in missing names so style ids are stable.
func normalizeRules(rules []Rule) []Rule {
	out := make([]Rule, len(rules))
	for i, r := range rules {
		out[i] = Rule{Name: ruleName(i, r), Pattern: r.Pattern, Color: strings.TrimSpace(r.Color)}
	}
	return out
}

// StyleID names the style a rule paints with.
func (r Rule) StyleID() string {
	return "rule:" + r.Name
}

// ValidateColor accepts #RRGGBB or an ANSI palette index 0-255.
func ValidateColor(color string) error {
	c := strings.TrimSpace(color)
	if hexColor.MatchString(c) {
		return nil
	}
	if n, err := strconv.Atoi(c); err == nil && n >= 0 && n <= 255 {
		return nil
	}
	return &ValidationError{Field: "color", Value: color, Reason: "want #RRGGBB or 0-255"}
}

// CompileRules validates rules and converts them to highlight rules in order.
func CompileRules(rules []Rule) ([]pipeline.HighlightRule, error) {
	out := make([]pipeline.HighlightRule, 0, len(rules))
	seen := make(map[string]bool, len(rules))
	for i, r := range rules {
		name := ruleName(i, r)
		if seen[name] {
			return nil, &ValidationError{Field: "rules.name", Value: name, Reason: "duplicate name"}
		}
		seen[name] = true
		if strings.TrimSpace(r.Pattern) == "" {
			return nil, &ValidationError{Field: "rules.pattern", Value: name, Reason: "pattern is empty"}
		}
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, &ValidationError{Field: "rules.pattern", Value: r.Pattern, Reason: err.Error()}
		}
		if err := ValidateColor(r.Color); err != nil {
			return nil, err
		}
		out = append(out, pipeline.HighlightRule{Name: name, Pattern: re, StyleID: Rule{Name: name}.StyleID()})
	}
	return out, nil
}

// CompileHide compiles hide patterns.
func CompileHide(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		if strings.TrimSpace(p) == "" {
			continue
		}
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, &ValidationError{Field: "hide_patterns", Value: p, Reason: err.Error()}
		}
		out = append(out, re)
	}
	return out, nil
}

// RuleSet compiles the configured rules and hide filter.
func (c Config) RuleSet() (pipeline.RuleSet, error) {
	rules, err := CompileRules(c.Rules)
	if err != nil {
		return pipeline.RuleSet{}, err
	}
	hide, err := CompileHide(c.HidePatterns)
	if err != nil {
		return pipeline.RuleSet{}, err
	}
	return pipeline.RuleSet{Rules: rules, Hide: hide, HideEnabled: c.HideEnabled}, nil
}
