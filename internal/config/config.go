package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config holds tether settings.
type Config struct {
	MaxLines       int
	RenderInterval time.Duration
	PollInterval   time.Duration
	SearchChunk    int

	LogDir             string
	LogPrefix          string
	LogTimestampLayout string
	LogExtension       string

	BaudRate          int
	DefaultConnection string

	RulesFile    string
	Rules        []Rule
	HidePatterns []string
	HideEnabled  bool
}

const (
	defaultConfigPath      = "~/.config/tether/config.toml"
	defaultLogDir          = "~/.local/share/tether/logs"
	defaultMaxLines        = 4000
	defaultRenderInterval  = 100 * time.Millisecond
	defaultPollInterval    = 50 * time.Millisecond
	defaultSearchChunk     = 500
	defaultLogPrefix       = "tether_"
	defaultTimestampLayout = "2006-01-02_15-04-05"
	defaultLogExtension    = ".log"
	defaultBaudRate        = 115200
)

type rawConfig struct {
	MaxLines           int      `toml:"max_lines"`
	RenderIntervalMS   int      `toml:"render_interval_ms"`
	PollIntervalMS     int      `toml:"poll_interval_ms"`
	SearchChunk        int      `toml:"search_chunk"`
	LogDir             string   `toml:"log_dir"`
	LogPrefix          *string  `toml:"log_prefix"`
	LogTimestampLayout string   `toml:"log_timestamp_layout"`
	LogExtension       *string  `toml:"log_extension"`
	BaudRate           int      `toml:"baud_rate"`
	DefaultConnection  string   `toml:"default_connection"`
	RulesFile          string   `toml:"rules_file"`
	Rules              []Rule   `toml:"rules"`
	HidePatterns       []string `toml:"hide_patterns"`
	HideEnabled        bool     `toml:"hide_enabled"`
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		MaxLines:           defaultMaxLines,
		RenderInterval:     defaultRenderInterval,
		PollInterval:       defaultPollInterval,
		SearchChunk:        defaultSearchChunk,
		LogDir:             mustExpand(defaultLogDir),
		LogPrefix:          defaultLogPrefix,
		LogTimestampLayout: defaultTimestampLayout,
		LogExtension:       defaultLogExtension,
		BaudRate:           defaultBaudRate,
		Rules:              DefaultRules(),
	}
}

// Load reads the config at path, falling back to defaults when it is missing.
func Load(path string) (Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return Config{}, err
	}

	cfg := Default()

	file, err := os.Open(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	bytes, err := io.ReadAll(file)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var raw rawConfig
	if err := toml.Unmarshal(bytes, &raw); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	if raw.MaxLines > 0 {
		cfg.MaxLines = raw.MaxLines
	}
	if raw.RenderIntervalMS > 0 {
		cfg.RenderInterval = time.Duration(raw.RenderIntervalMS) * time.Millisecond
	}
	if raw.PollIntervalMS > 0 {
		cfg.PollInterval = time.Duration(raw.PollIntervalMS) * time.Millisecond
	}
	if raw.SearchChunk > 0 {
		cfg.SearchChunk = raw.SearchChunk
	}
	if dir := strings.TrimSpace(raw.LogDir); dir != "" {
		cfg.LogDir = mustExpand(dir)
	}
	if raw.LogPrefix != nil {
		cfg.LogPrefix = strings.TrimSpace(*raw.LogPrefix)
	}
	if layout := strings.TrimSpace(raw.LogTimestampLayout); layout != "" {
		cfg.LogTimestampLayout = layout
	}
	if raw.LogExtension != nil {
		cfg.LogExtension = strings.TrimSpace(*raw.LogExtension)
	}
	if raw.BaudRate > 0 {
		cfg.BaudRate = raw.BaudRate
	}
	cfg.DefaultConnection = strings.TrimSpace(raw.DefaultConnection)
	cfg.HidePatterns = raw.HidePatterns
	cfg.HideEnabled = raw.HideEnabled
	if len(raw.Rules) > 0 {
		cfg.Rules = normalizeRules(raw.Rules)
	}

	if rules := strings.TrimSpace(raw.RulesFile); rules != "" {
		if !filepath.IsAbs(rules) && !strings.HasPrefix(rules, "~") {
			rules = filepath.Join(filepath.Dir(resolved), rules)
		}
		cfg.RulesFile = mustExpand(rules)
		if err := cfg.ReloadRules(); err != nil {
			return Config{}, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ReloadRules rereads RulesFile, replacing Rules and HidePatterns.
func (c *Config) ReloadRules() error {
	if c.RulesFile == "" {
		return nil
	}
	file, err := LoadRulesFile(c.RulesFile)
	if err != nil {
		return err
	}
	c.Rules = normalizeRules(file.Rules)
	if len(file.HidePatterns) > 0 {
		c.HidePatterns = file.HidePatterns
	}
	return nil
}

// Validate checks numeric limits, rule patterns, colors and hide patterns.
func (c Config) Validate() error {
	if c.MaxLines <= 0 {
		return &ValidationError{Field: "max_lines", Value: fmt.Sprint(c.MaxLines), Reason: "must be positive"}
	}
	if c.BaudRate <= 0 {
		return &ValidationError{Field: "baud_rate", Value: fmt.Sprint(c.BaudRate), Reason: "must be positive"}
	}
	if _, err := CompileRules(c.Rules); err != nil {
		return err
	}
	if _, err := CompileHide(c.HidePatterns); err != nil {
		return err
	}
	return nil
}

// Path returns the config file location Load would read.
func Path(path string) string {
	resolved, err := resolvePath(path)
	if err != nil {
		return path
	}
	return resolved
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultConfigPath)
	}
	return expandPath(path)
}

func mustExpand(path string) string {
	expanded, err := expandPath(path)
	if err != nil {
		return path
	}
	return expanded
}

// ExpandPath resolves a leading tilde and makes path absolute.
func ExpandPath(path string) (string, error) {
	return expandPath(path)
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
