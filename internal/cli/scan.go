package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/xab-mack/solguard/internal/cache"
	"github.com/xab-mack/solguard/internal/engine"
	"github.com/xab-mack/solguard/internal/model"
	"github.com/xab-mack/solguard/internal/report"
)

// stdinPath selects standard input as the scan source.
const stdinPath = "-"

// cacheSchema versions cache keys for the scanner's output format.
const cacheSchema = "solguard-scan-v1"

var skipDirs = map[string]bool{"node_modules": true, ".git": true, "artifacts": true, "cache": true, "out": true}

// collectFiles expands args into a sorted list of .sol files. Directories
// are walked recursively; explicit files are kept whatever their extension.
func collectFiles(args []string) ([]string, error) {
	if len(args) == 0 {
		args = []string{"."}
	}
	seen := map[string]bool{}
	var out []string
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	for _, arg := range args {
		if arg == stdinPath {
			add(stdinPath)
			continue
		}
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			add(filepath.Clean(arg))
			continue
		}
		err = filepath.WalkDir(arg, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if p != arg && (skipDirs[d.Name()] || strings.HasPrefix(d.Name(), ".")) {
					return filepath.SkipDir
				}
				return nil
			}
			if strings.EqualFold(filepath.Ext(p), ".sol") {
				add(filepath.Clean(p))
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	sort.Strings(out)
	return out, nil
}

// fileResult is the outcome for one input. Err is set for inputs that could
// not be scanned at all (unreadable or too large).
type fileResult struct {
	Path   string
	Source string
	Report *model.Report
	Cached bool
	Err    error
}

type scanner struct {
	eng     *engine.Engine
	opts    engine.Options
	cache   *cache.Cache
	keyBase string
	stdin   io.Reader
	log     *slog.Logger
}

// scanAll scans files concurrently, bounded by the CPU count. Results keep
// the order of files.
func (s *scanner) scanAll(ctx context.Context, files []string) ([]fileResult, error) {
	results := make([]fileResult, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(runtime.NumCPU(), max(1, len(files))))
	for i, path := range files {
		g.Go(func() error {
			results[i] = s.scanOne(gctx, path)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *scanner) scanOne(ctx context.Context, path string) fileResult {
	res := fileResult{Path: path}
	var data []byte
	var err error
	if path == stdinPath {
		res.Path = "<stdin>"
		data, err = io.ReadAll(s.stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		res.Err = fmt.Errorf("read %s: %w", path, err)
		return res
	}
	res.Source = string(data)

	opts := s.opts
	opts.File = filepath.ToSlash(res.Path)
	key := ""
	if s.cache != nil {
		key = cache.Key(s.keyBase, opts.File, res.Source)
		if r, ok := s.cache.Load(key); ok {
			s.log.Debug("cache hit", "file", opts.File)
			res.Report, res.Cached = r, true
			return res
		}
	}

	r, err := s.eng.Scan(ctx, res.Source, opts)
	if err != nil {
		res.Err = fmt.Errorf("scan %s: %w", res.Path, err)
		return res
	}
	res.Report = r
	if key != "" && !r.Metadata.Partial() {
		if err := s.cache.Store(key, r); err != nil {
			s.log.Warn("cache store failed", "file", opts.File, "err", err)
		}
	}
	return res
}

// cacheKeyBase digests everything besides the source that determines a
// report: rule set, rule packs and scan options.
func cacheKeyBase(eng *engine.Engine, packs string, opts engine.Options) (string, error) {
	rules := eng.Catalog().Rules()
	ids := make([]string, len(rules))
	for i, r := range rules {
		ids[i] = r.ID
	}
	o, err := json.Marshal(opts)
	if err != nil {
		return "", err
	}
	return cache.Key(cacheSchema, strings.Join(ids, ","), packs, string(o)), nil
}

// merge combines successful results and returns the sources by file name
// for viewers that show context.
func merge(results []fileResult) (*model.Report, map[string]string, []error) {
	var (
		reports []*model.Report
		errs    []error
	)
	sources := map[string]string{}
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, r.Err)
			continue
		}
		reports = append(reports, r.Report)
		sources[filepath.ToSlash(r.Path)] = r.Source
	}
	return report.Merge(reports), sources, errs
}

// tooLarge reports whether every error is an oversized input, which the
// scan command treats as a warning rather than a failure.
func tooLarge(errs []error) bool {
	for _, err := range errs {
		if !errors.Is(err, model.ErrInputTooLarge) {
			return false
		}
	}
	return true
}
