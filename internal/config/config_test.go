package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func write(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func clearEnv(t *testing.T) {
	for _, k := range []string{"SOLGUARD_LOG_LEVEL", "SOLGUARD_LOG_FORMAT", "SOLGUARD_DB", "SOLGUARD_SEVERITY", "SOLGUARD_BUDGET", "SOLGUARD_NO_CACHE"} {
		t.Setenv(k, "")
	}
}

func TestLoadSearchesUpward(t *testing.T) {
	clearEnv(t)
	root := t.TempDir()
	write(t, filepath.Join(root, ".solguard.yaml"), `
severityThreshold: medium
evaluationBudget: 5000
disabled: [SOL-TIMESTAMP]
ignore:
  - rule: SOL-TX-ORIGIN
    path: contracts/legacy
    reason: audited
logging:
  level: debug
`)
	deep := filepath.Join(root, "a", "b", "c")
	if err := os.MkdirAll(deep, 0o755); err != nil {
		t.Fatal(err)
	}
	cfg, path, err := Load(deep)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(path) != ".solguard.yaml" {
		t.Fatalf("path %q", path)
	}
	if cfg.SeverityThreshold != "medium" || cfg.EvaluationBudget != 5000 || cfg.Logging.Level != "debug" {
		t.Fatalf("cfg %+v", cfg)
	}
	if cfg.Logging.Format != "text" || !cfg.HonorSuppressions || cfg.FailOn != "high" {
		t.Fatalf("defaults lost: %+v", cfg)
	}
	if len(cfg.Disabled) != 1 || len(cfg.Ignore) != 1 || cfg.Ignore[0].Reason != "audited" {
		t.Fatalf("lists %+v", cfg)
	}
}

func TestLoadTOML(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	write(t, filepath.Join(dir, ".solguard.toml"), `
severityThreshold = "high"
plugins = ["SOL-REENTRANCY"]

[cache]
enabled = false

[[ignore]]
rule = "SOL-SHADOWING"
`)
	cfg, _, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.SeverityThreshold != "high" || cfg.Cache.Enabled || len(cfg.Plugins) != 1 || cfg.Ignore[0].Rule != "SOL-SHADOWING" {
		t.Fatalf("cfg %+v", cfg)
	}
}

func TestLoadWithoutFile(t *testing.T) {
	clearEnv(t)
	cfg, path, err := Load(t.TempDir())
	if err != nil || path != "" {
		t.Fatalf("path %q err %v", path, err)
	}
	if cfg.SeverityThreshold != Default().SeverityThreshold {
		t.Fatalf("cfg %+v", cfg)
	}
}

func TestLoadRejectsBadFiles(t *testing.T) {
	clearEnv(t)
	cases := map[string]string{
		"unknown field": "severityThreshhold: low\n",
		"bad severity":  "severityThreshold: extreme\n",
		"empty ignore":  "ignore:\n  - reason: nothing\n",
		"bad expiry":    "ignore:\n  - rule: X\n    expires: soon\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), ".solguard.yaml")
			write(t, path, body)
			if _, err := LoadFile(path); err == nil {
				t.Fatal("accepted")
			}
		})
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"SOLGUARD_LOG_LEVEL":  "error",
		"SOLGUARD_LOG_FORMAT": "json",
		"SOLGUARD_DB":         "/tmp/h.db",
		"SOLGUARD_SEVERITY":   "critical",
		"SOLGUARD_BUDGET":     "77",
		"SOLGUARD_NO_CACHE":   "true",
	}
	cfg := Default()
	ApplyEnv(&cfg, func(k string) string { return env[k] })
	if cfg.Logging.Level != "error" || cfg.Logging.Format != "json" || cfg.Database != "/tmp/h.db" ||
		cfg.SeverityThreshold != "critical" || cfg.EvaluationBudget != 77 || cfg.Cache.Enabled {
		t.Fatalf("cfg %+v", cfg)
	}
}

func TestActiveIgnores(t *testing.T) {
	cfg := Config{Ignore: []IgnoreRule{
		{Rule: "A"},
		{Rule: "B", Expires: "2024-01-31"},
		{Rule: "C", Expires: "2024-03-01"},
	}}
	now := time.Date(2024, 2, 15, 12, 0, 0, 0, time.UTC)
	var ids []string
	for _, ig := range cfg.ActiveIgnores(now) {
		ids = append(ids, ig.Rule)
	}
	if strings.Join(ids, ",") != "A,C" {
		t.Fatalf("active %v", ids)
	}
}

func TestWriteRoundTrip(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), ".solguard.yaml")
	cfg := Default()
	cfg.Disabled = []string{"SOL-MISSING-EVENT"}
	cfg.Ignore = []IgnoreRule{{Rule: "SOL-TIMESTAMP", Reason: "auction"}}
	if err := Write(path, cfg); err != nil {
		t.Fatal(err)
	}
	back, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if back.Disabled[0] != "SOL-MISSING-EVENT" || back.Ignore[0].Reason != "auction" || back.FailOn != cfg.FailOn {
		t.Fatalf("round trip %+v", back)
	}
}
