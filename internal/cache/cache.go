package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/xab-mack/solguard/internal/model"
)

// schemaVersion is bumped whenever the cached payload layout changes.
const schemaVersion uint16 = 1

type payload struct {
	Schema uint16        `msgpack:"schema"`
	Report *model.Report `msgpack:"report"`
}

// Cache stores scan reports on disk, keyed by a digest of everything that
// determines the report. Safe for concurrent use.
type Cache struct {
	mu  sync.RWMutex
	dir string
}

// Dir returns the default cache directory, creating it if needed.
func Dir() (string, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".cache")
	}
	dir := filepath.Join(base, "solguard")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// Open returns a cache rooted at dir; an empty dir uses Dir().
func Open(dir string) (*Cache, error) {
	if dir == "" {
		d, err := Dir()
		if err != nil {
			return nil, err
		}
		dir = d
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Cache{dir: dir}, nil
}

// Key computes a cache key from its parts. Parts are length-prefixed so
// ("ab","c") and ("a","bc") differ.
func Key(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		fmt.Fprintf(h, "%d:", len(p))
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (c *Cache) pathFor(key string) string {
	return filepath.Join(c.dir, "reports", key+".mp")
}

// Load returns the cached report for key. A missing entry, a stale schema
// or a corrupt file are all misses.
func (c *Cache) Load(key string) (*model.Report, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	f, err := os.Open(c.pathFor(key))
	if err != nil {
		return nil, false
	}
	defer f.Close()
	var p payload
	if err := msgpack.NewDecoder(f).Decode(&p); err != nil || p.Schema != schemaVersion || p.Report == nil {
		return nil, false
	}
	return p.Report, true
}

// Store writes r under key, replacing any previous entry atomically.
func (c *Cache) Store(key string, r *model.Report) error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	path := c.pathFor(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(path), "tmp-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if err := msgpack.NewEncoder(f).Encode(payload{Schema: schemaVersion, Report: r}); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("encode cache entry: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// Clear removes every cached report.
func (c *Cache) Clear() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	err := os.RemoveAll(filepath.Join(c.dir, "reports"))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
