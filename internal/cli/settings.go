package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/xab-mack/solguard/internal/cache"
	"github.com/xab-mack/solguard/internal/config"
	"github.com/xab-mack/solguard/internal/logging"
	"github.com/xab-mack/solguard/internal/plugins"
	"github.com/xab-mack/solguard/internal/rulepack"
)

// settings is the resolved configuration shared by every command.
type settings struct {
	cfg     config.Config
	cfgPath string
	log     *slog.Logger
}

// loadSettings reads the config file (explicit --config or discovered
// upward from the working directory) with its SOLGUARD_* overrides, applies
// the global logging flags and installs the logger.
func loadSettings(cmd *cobra.Command) (*settings, error) {
	var (
		cfg  config.Config
		path string
		err  error
	)
	if explicit, _ := cmd.Flags().GetString("config"); explicit != "" {
		cfg, err = config.LoadFile(explicit)
		path = explicit
	} else {
		cfg, path, err = config.Load(".")
	}
	if err != nil {
		return nil, err
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.Logging.Level = v
	}
	if v, _ := cmd.Flags().GetString("log-format"); v != "" {
		cfg.Logging.Format = v
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := logging.Init(cfg.Logging.Format, cfg.Logging.Level)
	if path != "" {
		logger.Debug("loaded config", "path", path)
	}
	return &settings{cfg: cfg, cfgPath: path, log: logger}, nil
}

// catalog returns the built-in rules extended with the configured rule packs
// and any extra packs given on the command line.
func (s *settings) catalog(extra ...string) (*plugins.Catalog, error) {
	packs := append(append([]string(nil), s.cfg.RulePacks...), extra...)
	if len(packs) == 0 {
		return plugins.Default(), nil
	}
	c := plugins.Default().Clone()
	n, err := rulepack.Register(c, packs...)
	if err != nil {
		return nil, err
	}
	s.log.Debug("registered rule packs", "packs", len(packs), "rules", n)
	return c, nil
}

// cache opens the report cache, or returns nil when caching is off or the
// directory is unusable.
func (s *settings) cache(disabled bool) *cache.Cache {
	if disabled || !s.cfg.Cache.Enabled {
		return nil
	}
	c, err := cache.Open(s.cfg.Cache.Dir)
	if err != nil {
		s.log.Warn("report cache unavailable", "err", err)
		return nil
	}
	return c
}

// packDigest folds the contents of every rule pack into the cache key so an
// edited pack never serves stale results.
func packDigest(paths []string) (string, error) {
	parts := make([]string, 0, 2*len(paths))
	for _, p := range paths {
		b, err := os.ReadFile(p)
		if err != nil {
			return "", fmt.Errorf("read rule pack: %w", err)
		}
		parts = append(parts, p, string(b))
	}
	return cache.Key(parts...), nil
}
