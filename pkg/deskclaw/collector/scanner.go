// Package collector walks the user's drives to gather files of a category
// into one folder per category, and runs capped glob searches over the same
// roots.
package collector

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ErrUnknownCategory is returned by Collect for a category with no rule.
var ErrUnknownCategory = errors.New("unknown category")

// Config controls where scans run and where collected files land.
type Config struct {
	// BaseDir holds one subdirectory per category.
	// Default: ~/deskclaw_data/collected.
	BaseDir string `yaml:"base_dir"`

	// Roots overrides root discovery when non-empty.
	Roots []string `yaml:"roots"`

	// IncludeVolumes adds mounted volumes besides the one holding home.
	IncludeVolumes bool `yaml:"include_volumes"`

	CollectMaxDepth  int `yaml:"collect_max_depth"`
	SearchMaxDepth   int `yaml:"search_max_depth"`
	SearchMaxResults int `yaml:"search_max_results"`

	// ExtraSkipDirs are added to the built-in skip markers.
	ExtraSkipDirs []string `yaml:"extra_skip_dirs"`
}

// DefaultConfig returns the scanner defaults.
func DefaultConfig() Config {
	base := filepath.Join("~", "deskclaw_data", "collected")
	if home, err := os.UserHomeDir(); err == nil {
		base = filepath.Join(home, "deskclaw_data", "collected")
	}
	return Config{
		BaseDir:          base,
		IncludeVolumes:   true,
		CollectMaxDepth:  30,
		SearchMaxDepth:   20,
		SearchMaxResults: 100,
	}
}

// Report summarizes one collection run.
type Report struct {
	Category    string
	Found       int
	Copied      int
	Errors      int
	TotalBytes  int64
	Destination string
}

// String renders the report as the reply sent back to the user.
func (r *Report) String() string {
	return fmt.Sprintf("Done! Scanned for %s files.\n- Found: %d\n- Copied: %d\n- Errors: %d\n- Total size: %s\n- Saved to: %s",
		r.Category, r.Found, r.Copied, r.Errors, FormatSize(r.TotalBytes), r.Destination)
}

// SearchResult lists matching absolute paths in walk order.
type SearchResult struct {
	Pattern   string
	Paths     []string
	Truncated bool
}

func (r *SearchResult) String() string {
	if len(r.Paths) == 0 {
		return "No files found matching: " + r.Pattern
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d file(s):\n", len(r.Paths))
	for _, p := range r.Paths {
		sb.WriteString("  ")
		sb.WriteString(p)
		sb.WriteString("\n")
	}
	return sb.String()
}

// Scanner collects and searches files. It holds no per-scan state, so one
// instance is shared by all workers.
type Scanner struct {
	cfg    Config
	skip   *SkipList
	logger *slog.Logger
}

// New creates a Scanner. Zero-valued limits fall back to DefaultConfig.
func New(cfg Config, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.BaseDir == "" {
		cfg.BaseDir = def.BaseDir
	}
	cfg.BaseDir = filepath.Clean(expandHome(cfg.BaseDir))
	if cfg.CollectMaxDepth <= 0 {
		cfg.CollectMaxDepth = def.CollectMaxDepth
	}
	if cfg.SearchMaxDepth <= 0 {
		cfg.SearchMaxDepth = def.SearchMaxDepth
	}
	if cfg.SearchMaxResults <= 0 {
		cfg.SearchMaxResults = def.SearchMaxResults
	}
	return &Scanner{
		cfg:    cfg,
		skip:   NewSkipList(cfg.BaseDir, cfg.ExtraSkipDirs...),
		logger: logger.With("component", "collector"),
	}
}

// BaseDir returns the folder holding the per-category collections.
func (s *Scanner) BaseDir() string { return s.cfg.BaseDir }

// CollectedDir returns the destination folder for a category, or the base
// folder when category is empty.
func (s *Scanner) CollectedDir(category string) string {
	category = strings.ToLower(strings.TrimSpace(category))
	if category == "" {
		return s.cfg.BaseDir
	}
	return filepath.Join(s.cfg.BaseDir, category)
}

// Collect copies every file of the category found under the scan roots into
// the category folder. Per-file failures are counted, not returned.
func (s *Scanner) Collect(ctx context.Context, category string) (*Report, error) {
	rule, ok := LookupCategory(category)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCategory, category)
	}

	dest := s.CollectedDir(rule.Name)
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return nil, fmt.Errorf("creating destination folder: %w", err)
	}

	start := time.Now()
	s.logger.Info("collecting files", "category", rule.Name, "dest", dest)

	rep := &Report{Category: rule.Name, Destination: dest}
	for _, root := range s.Roots() {
		err := s.walk(ctx, root.Path, s.cfg.CollectMaxDepth, func(path string, info fs.FileInfo) error {
			if !rule.Matches(info.Name()) {
				return nil
			}
			rep.Found++
			n, copied, err := s.collectOne(root, path, info, dest)
			switch {
			case err != nil:
				rep.Errors++
				s.logger.Debug("copy failed", "path", path, "error", err)
			case copied:
				rep.Copied++
				rep.TotalBytes += n
			}
			return nil
		})
		if err != nil {
			if ctx.Err() != nil {
				return rep, fmt.Errorf("collecting %s: %w", rule.Name, ctx.Err())
			}
			s.logger.Warn("error scanning root", "root", root.Path, "error", err)
		}
	}

	s.logger.Info("collection done",
		"category", rule.Name,
		"found", rep.Found,
		"copied", rep.Copied,
		"errors", rep.Errors,
		"bytes", rep.TotalBytes,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return rep, nil
}

// collectOne copies a single match. It returns copied=false when an
// equal-size copy already exists.
func (s *Scanner) collectOne(root ScanRoot, path string, info fs.FileInfo, dest string) (int64, bool, error) {
	name, err := UniqueName(root, path)
	if err != nil {
		return 0, false, err
	}
	target, exists := freeSlot(filepath.Join(dest, name), info.Size())
	if exists {
		return 0, false, nil
	}
	n, err := CopyFile(path, target)
	if err != nil {
		return 0, false, err
	}
	return n, true, nil
}

// UniqueName flattens path relative to its root into a single file name
// prefixed with the root ID: ~/Pictures/a.jpg becomes home_Pictures_a.jpg.
func UniqueName(root ScanRoot, path string) (string, error) {
	rel, err := filepath.Rel(root.Path, path)
	if err != nil {
		return "", fmt.Errorf("relative path: %w", err)
	}
	rel = strings.ReplaceAll(filepath.ToSlash(rel), "/", "_")
	return root.ID + "_" + rel, nil
}

// freeSlot picks the destination for a file of the given size. If the
// preferred name or one of its numbered variants already holds a file of
// that size, it is reported as existing. Otherwise the first free name in
// the sequence name, name_1, name_2, ... is returned.
func freeSlot(preferred string, size int64) (string, bool) {
	dir := filepath.Dir(preferred)
	base := filepath.Base(preferred)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	if stem == "" {
		stem, ext = base, ""
	}

	candidate := preferred
	for i := 1; ; i++ {
		st, err := os.Stat(candidate)
		if err != nil {
			return candidate, false
		}
		if st.Size() == size {
			return candidate, true
		}
		candidate = filepath.Join(dir, stem+"_"+strconv.Itoa(i)+ext)
	}
}

// Search walks the scan roots and returns files whose names match the glob
// pattern, stopping once max results are found. Matching ignores case.
func (s *Scanner) Search(ctx context.Context, pattern string, max int) (*SearchResult, error) {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		pattern = "*"
	}
	lowerPat := strings.ToLower(pattern)
	if _, err := filepath.Match(lowerPat, ""); err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	if max <= 0 {
		max = s.cfg.SearchMaxResults
	}

	res := &SearchResult{Pattern: pattern}
	for _, root := range s.Roots() {
		if len(res.Paths) >= max {
			break
		}
		err := s.walk(ctx, root.Path, s.cfg.SearchMaxDepth, func(path string, info fs.FileInfo) error {
			ok, _ := filepath.Match(lowerPat, strings.ToLower(info.Name()))
			if !ok {
				return nil
			}
			if abs, err := filepath.Abs(path); err == nil {
				path = abs
			}
			res.Paths = append(res.Paths, path)
			if len(res.Paths) >= max {
				res.Truncated = true
				return fs.SkipAll
			}
			return nil
		})
		if err != nil && ctx.Err() != nil {
			return res, fmt.Errorf("searching %q: %w", pattern, ctx.Err())
		}
	}

	s.logger.Info("search done", "pattern", pattern, "results", len(res.Paths), "truncated", res.Truncated)
	return res, nil
}

// walk visits regular files under root up to maxDepth directory levels,
// pruning skipped directories. Unreadable entries are ignored. visit may
// return fs.SkipAll to stop early.
func (s *Scanner) walk(ctx context.Context, root string, maxDepth int, visit func(path string, info fs.FileInfo) error) error {
	root = filepath.Clean(root)
	if _, err := os.Stat(root); err != nil {
		return err
	}
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if d != nil && d.IsDir() && path != root {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if s.skip.Skip(path) {
				if path == root {
					return fs.SkipAll
				}
				return fs.SkipDir
			}
			if depth(root, path) >= maxDepth {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		return visit(path, info)
	})
}

func depth(root, path string) int {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." {
		return 0
	}
	return strings.Count(rel, string(filepath.Separator)) + 1
}

// ListCollected summarizes the per-category collection folders.
func (s *Scanner) ListCollected() string {
	entries, err := os.ReadDir(s.cfg.BaseDir)
	if err != nil {
		return "No files collected yet. Ask me to collect photos, videos, documents, etc."
	}

	type stat struct {
		name  string
		files int
		bytes int64
	}
	var stats []stat
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		st := stat{name: e.Name()}
		sub, err := os.ReadDir(filepath.Join(s.cfg.BaseDir, e.Name()))
		if err != nil {
			continue
		}
		for _, f := range sub {
			if !f.Type().IsRegular() || strings.HasPrefix(f.Name(), ".") {
				continue
			}
			if info, err := f.Info(); err == nil {
				st.files++
				st.bytes += info.Size()
			}
		}
		if st.files > 0 {
			stats = append(stats, st)
		}
	}
	if len(stats) == 0 {
		return "No files collected yet. Ask me to collect photos, videos, documents, etc."
	}

	sort.Slice(stats, func(i, j int) bool { return stats[i].name < stats[j].name })
	var sb strings.Builder
	sb.WriteString("Collected files:\n")
	for _, st := range stats {
		fmt.Fprintf(&sb, "  %s: %d files (%s)\n", st.name, st.files, FormatSize(st.bytes))
	}
	return sb.String()
}

// FormatSize renders bytes as B, KB, MB or GB with one decimal above bytes.
func FormatSize(bytes int64) string {
	if bytes < 1024 {
		return fmt.Sprintf("%d B", bytes)
	}
	kb := float64(bytes) / 1024
	if kb < 1024 {
		return fmt.Sprintf("%.1f KB", kb)
	}
	mb := kb / 1024
	if mb < 1024 {
		return fmt.Sprintf("%.1f MB", mb)
	}
	return fmt.Sprintf("%.1f GB", mb/1024)
}
