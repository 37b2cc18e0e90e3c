package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// FileNames are the config files Load looks for, in order of preference.
var FileNames = []string{".solguard.yaml", ".solguard.yml", ".solguard.toml"}

type IgnoreRule struct {
	Rule    string `yaml:"rule" toml:"rule" json:"rule"`
	Path    string `yaml:"path" toml:"path" json:"path"`
	Reason  string `yaml:"reason,omitempty" toml:"reason" json:"reason,omitempty"`
	Expires string `yaml:"expires,omitempty" toml:"expires" json:"expires,omitempty"` // YYYY-MM-DD
}

type Cache struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Dir     string `yaml:"dir,omitempty" toml:"dir"` // empty: user cache dir
}

type Logging struct {
	Format string `yaml:"format" toml:"format"` // "json"|"text"
	Level  string `yaml:"level" toml:"level"`   // "debug"|"info"|"warn"|"error"
}

type Config struct {
	SeverityThreshold string       `yaml:"severityThreshold" toml:"severityThreshold"`
	FailOn            string       `yaml:"failOn" toml:"failOn"`
	EvaluationBudget  int          `yaml:"evaluationBudget,omitempty" toml:"evaluationBudget"`
	MaxInputSize      int          `yaml:"maxInputSize,omitempty" toml:"maxInputSize"`
	HonorSuppressions bool         `yaml:"honorSuppressions" toml:"honorSuppressions"`
	Ignore            []IgnoreRule `yaml:"ignore,omitempty" toml:"ignore"`
	Plugins           []string     `yaml:"plugins,omitempty" toml:"plugins"`
	Disabled          []string     `yaml:"disabled,omitempty" toml:"disabled"`
	RulePacks         []string     `yaml:"rulePacks,omitempty" toml:"rulePacks"`
	Database          string       `yaml:"database,omitempty" toml:"database"`
	Cache             Cache        `yaml:"cache" toml:"cache"`
	Logging           Logging      `yaml:"logging" toml:"logging"`
}

func Default() Config {
	return Config{
		SeverityThreshold: "low",
		FailOn:            "high",
		HonorSuppressions: true,
		Cache:             Cache{Enabled: true},
		Logging:           Logging{Format: "text", Level: "warn"},
	}
}

// Load searches startDir and its parents for a config file and applies
// environment overrides. It returns the path used, or "" when none exists.
func Load(startDir string) (Config, string, error) {
	path := Find(startDir)
	cfg, err := LoadFile(path)
	return cfg, path, err
}

// Find returns the nearest config file at or above dir, or "".
func Find(dir string) string {
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	for {
		for _, name := range FileNames {
			candidate := filepath.Join(dir, name)
			if st, err := os.Stat(candidate); err == nil && !st.IsDir() {
				return candidate
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir { // reached root
			return ""
		}
		dir = parent
	}
}

// LoadFile reads path over the defaults, then applies environment overrides.
// An empty path yields the defaults.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := Decode(path, b, &cfg); err != nil {
			return cfg, err
		}
	}
	ApplyEnv(&cfg, os.Getenv)
	return cfg, cfg.Validate()
}

// Decode parses data as TOML when path ends in .toml and as YAML otherwise.
func Decode(path string, data []byte, cfg *Config) error {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		return nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides cfg from SOLGUARD_* variables read through getenv.
func ApplyEnv(cfg *Config, getenv func(string) string) {
	if v := getenv("SOLGUARD_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := getenv("SOLGUARD_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := getenv("SOLGUARD_DB"); v != "" {
		cfg.Database = v
	}
	if v := getenv("SOLGUARD_SEVERITY"); v != "" {
		cfg.SeverityThreshold = v
	}
	if v := getenv("SOLGUARD_BUDGET"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.EvaluationBudget = n
		}
	}
	if v := getenv("SOLGUARD_NO_CACHE"); v != "" {
		if off, err := strconv.ParseBool(v); err == nil && off {
			cfg.Cache.Enabled = false
		}
	}
}

var severities = map[string]bool{"": true, "low": true, "medium": true, "high": true, "critical": true}

// Validate rejects settings that would silently change scan semantics.
func (c Config) Validate() error {
	if !severities[strings.ToLower(c.SeverityThreshold)] {
		return fmt.Errorf("config: unknown severityThreshold %q", c.SeverityThreshold)
	}
	if !severities[strings.ToLower(c.FailOn)] && !strings.EqualFold(c.FailOn, "none") {
		return fmt.Errorf("config: unknown failOn %q", c.FailOn)
	}
	if c.EvaluationBudget < 0 || c.MaxInputSize < 0 {
		return fmt.Errorf("config: negative limit")
	}
	for i, ig := range c.Ignore {
		if ig.Rule == "" && ig.Path == "" {
			return fmt.Errorf("config: ignore[%d] needs a rule or a path", i)
		}
		if ig.Expires != "" {
			if _, err := time.Parse(time.DateOnly, ig.Expires); err != nil {
				return fmt.Errorf("config: ignore[%d] expires: %w", i, err)
			}
		}
	}
	return nil
}

// ActiveIgnores returns the ignore rules that have not expired at now.
func (c Config) ActiveIgnores(now time.Time) []IgnoreRule {
	var out []IgnoreRule
	for _, ig := range c.Ignore {
		if ig.Expires != "" {
			if exp, err := time.Parse(time.DateOnly, ig.Expires); err == nil && now.After(exp.AddDate(0, 0, 1)) {
				continue
			}
		}
		out = append(out, ig)
	}
	return out
}

// Write stores cfg at path as YAML or TOML, chosen by extension.
func Write(path string, cfg Config) error {
	var buf bytes.Buffer
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
			return err
		}
	} else {
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return err
		}
		if err := enc.Close(); err != nil {
			return err
		}
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}
