// Package diskscan answers browse, describe and search requests for paths
// supplied by the caller. Every path is normalized and checked against a
// denylist of OS-critical locations before the filesystem is touched.
package diskscan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jholhewres/deskclaw/pkg/deskclaw/collector"
)

var (
	// ErrDisabled is returned by every operation while the feature is off.
	ErrDisabled = errors.New("disk scan is disabled")

	// ErrBlocked is returned for paths on the denylist.
	ErrBlocked = errors.New("access denied to this path")

	// ErrNotFound is returned when the path does not exist.
	ErrNotFound = errors.New("path not found")

	// ErrNotDirectory is returned by Browse and Search for a file path.
	ErrNotDirectory = errors.New("path is not a directory")

	// ErrInvalid is returned for blank paths or patterns.
	ErrInvalid = errors.New("invalid request")
)

// Config controls the disk scan feature.
type Config struct {
	Enabled      bool     `yaml:"enabled"`
	MaxDepth     int      `yaml:"max_depth"`
	MaxResults   int      `yaml:"max_results"`
	BlockedPaths []string `yaml:"blocked_paths"`
}

// DefaultConfig returns the feature defaults. Disabled until opted in.
func DefaultConfig() Config {
	return Config{MaxDepth: 20, MaxResults: 500}
}

// FileInfo describes one filesystem entry.
type FileInfo struct {
	Name          string    `json:"name"`
	Path          string    `json:"path"`
	Type          string    `json:"type"`
	Size          int64     `json:"size"`
	SizeFormatted string    `json:"size_formatted"`
	LastModified  time.Time `json:"last_modified"`
}

// PathInfo is FileInfo plus access details.
type PathInfo struct {
	FileInfo
	Readable   bool `json:"readable"`
	Writable   bool `json:"writable"`
	Hidden     bool `json:"hidden"`
	ChildCount *int `json:"child_count,omitempty"`
}

// Listing is the result of Browse.
type Listing struct {
	Path     string     `json:"path"`
	Parent   string     `json:"parent,omitempty"`
	Children []FileInfo `json:"children"`
}

// SearchResult is the result of Search.
type SearchResult struct {
	BasePath    string     `json:"base_path"`
	Pattern     string     `json:"pattern"`
	ResultCount int        `json:"result_count"`
	Truncated   bool       `json:"truncated"`
	Results     []FileInfo `json:"results"`
}

// Volume reports the capacity of one mounted root.
type Volume struct {
	Path           string `json:"path"`
	TotalBytes     uint64 `json:"total_bytes"`
	FreeBytes      uint64 `json:"free_bytes"`
	UsableBytes    uint64 `json:"usable_bytes"`
	TotalFormatted string `json:"total_formatted"`
	FreeFormatted  string `json:"free_formatted"`
	Error          string `json:"error,omitempty"`
}

// fileSystem is the subset of filesystem calls the service makes.
type fileSystem interface {
	Stat(name string) (fs.FileInfo, error)
	Lstat(name string) (fs.FileInfo, error)
	ReadDir(name string) ([]fs.DirEntry, error)
}

type osFS struct{}

func (osFS) Stat(name string) (fs.FileInfo, error)      { return os.Stat(name) }
func (osFS) Lstat(name string) (fs.FileInfo, error)     { return os.Lstat(name) }
func (osFS) ReadDir(name string) ([]fs.DirEntry, error) { return os.ReadDir(name) }

// Service performs guarded disk operations. Config may be swapped at
// runtime with Update.
type Service struct {
	mu    sync.RWMutex
	cfg   Config
	guard *guard

	fs     fileSystem
	logger *slog.Logger
}

// New creates a Service.
func New(cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{fs: osFS{}, logger: logger.With("component", "diskscan")}
	s.Update(cfg)
	return s
}

// Update replaces the configuration, applying defaults to zero limits.
func (s *Service) Update(cfg Config) {
	def := DefaultConfig()
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = def.MaxDepth
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = def.MaxResults
	}
	g := newGuard(cfg.BlockedPaths)

	s.mu.Lock()
	s.cfg = cfg
	s.guard = g
	s.mu.Unlock()

	s.logger.Debug("disk scan config applied", "enabled", cfg.Enabled, "blocked", len(cfg.BlockedPaths))
}

// Enabled reports whether the feature is on.
func (s *Service) Enabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Enabled
}

// Config returns a copy of the active configuration.
func (s *Service) Config() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg := s.cfg
	cfg.BlockedPaths = append([]string(nil), s.cfg.BlockedPaths...)
	return cfg
}

// Blocked reports whether path is on the denylist. It never touches disk.
func (s *Service) Blocked(path string) bool {
	s.mu.RLock()
	g := s.guard
	s.mu.RUnlock()
	return g.blocked(Normalize(path))
}

// resolve validates a caller path and returns its cleaned absolute form.
func (s *Service) resolve(path string) (string, error) {
	if !s.Enabled() {
		return "", ErrDisabled
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return "", fmt.Errorf("%w: path must not be blank", ErrInvalid)
	}
	path = expandHome(path)
	if s.Blocked(path) {
		s.logger.Warn("blocked path rejected", "path", path)
		return "", fmt.Errorf("%w: %s", ErrBlocked, path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", path, err)
	}
	return abs, nil
}

// Roots lists mounted volumes with their capacity. Volumes are measured
// in parallel; an unreadable volume is reported with an error string.
func (s *Service) Roots(ctx context.Context) ([]Volume, error) {
	if !s.Enabled() {
		return nil, ErrDisabled
	}
	paths := volumePaths()
	vols := make([]Volume, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, p := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			v := Volume{Path: p}
			total, free, usable, err := diskUsage(p)
			if err != nil {
				v.Error = "Inaccessible"
			} else {
				v.TotalBytes, v.FreeBytes, v.UsableBytes = total, free, usable
				v.TotalFormatted = collector.FormatSize(int64(total))
				v.FreeFormatted = collector.FormatSize(int64(free))
			}
			vols[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vols, nil
}

// Browse lists the children of a directory, directories first, then by
// case-insensitive name. Blocked children are left out.
func (s *Service) Browse(path string) (*Listing, error) {
	abs, err := s.resolve(path)
	if err != nil {
		return nil, err
	}
	st, err := s.fs.Stat(abs)
	if err != nil {
		return nil, notFound(abs, err)
	}
	if !st.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotDirectory, abs)
	}

	entries, err := s.fs.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", abs, err)
	}
	children := make([]FileInfo, 0, len(entries))
	for _, e := range entries {
		child := filepath.Join(abs, e.Name())
		if s.Blocked(child) {
			continue
		}
		children = append(children, s.fileInfo(child))
	}
	sort.SliceStable(children, func(i, j int) bool {
		di, dj := children[i].Type == "directory", children[j].Type == "directory"
		if di != dj {
			return di
		}
		return strings.ToLower(children[i].Name) < strings.ToLower(children[j].Name)
	})

	l := &Listing{Path: abs, Children: children}
	if parent := filepath.Dir(abs); parent != abs {
		l.Parent = parent
	}
	return l, nil
}

// Info describes a single path.
func (s *Service) Info(path string) (*PathInfo, error) {
	abs, err := s.resolve(path)
	if err != nil {
		return nil, err
	}
	st, err := s.fs.Stat(abs)
	if err != nil {
		return nil, notFound(abs, err)
	}

	info := &PathInfo{
		FileInfo: s.fileInfo(abs),
		Readable: readable(abs, st.IsDir()),
		Writable: canWrite(abs),
		Hidden:   isHidden(abs),
	}
	if st.IsDir() {
		if entries, err := s.fs.ReadDir(abs); err == nil {
			n := len(entries)
			info.ChildCount = &n
		}
	}
	return info, nil
}

// Search walks base up to the configured depth and returns entries whose
// names match the glob pattern, capped at the configured result count.
func (s *Service) Search(ctx context.Context, base, pattern string) (*SearchResult, error) {
	abs, err := s.resolve(base)
	if err != nil {
		return nil, err
	}
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return nil, fmt.Errorf("%w: pattern must not be blank", ErrInvalid)
	}
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	st, err := s.fs.Stat(abs)
	if err != nil {
		return nil, notFound(abs, err)
	}
	if !st.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotDirectory, abs)
	}

	cfg := s.Config()
	res := &SearchResult{BasePath: abs, Pattern: pattern, Results: []FileInfo{}}
	err = filepath.WalkDir(abs, func(p string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if d != nil && d.IsDir() && p != abs {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if p != abs && s.Blocked(p) {
				return fs.SkipDir
			}
			if rel, _ := filepath.Rel(abs, p); rel != "." && strings.Count(rel, string(filepath.Separator))+1 >= cfg.MaxDepth {
				return fs.SkipDir
			}
			return nil
		}
		if ok, _ := filepath.Match(pattern, d.Name()); !ok {
			return nil
		}
		if len(res.Results) >= cfg.MaxResults {
			res.Truncated = true
			return fs.SkipAll
		}
		res.Results = append(res.Results, s.fileInfo(p))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("searching %s: %w", abs, err)
	}
	res.ResultCount = len(res.Results)
	return res, nil
}

func (s *Service) fileInfo(path string) FileInfo {
	fi := FileInfo{Name: filepath.Base(path), Path: path, Type: "file", SizeFormatted: "N/A"}
	lst, err := s.fs.Lstat(path)
	if err != nil {
		return fi
	}
	switch {
	case lst.Mode()&fs.ModeSymlink != 0:
		fi.Type = "symlink"
	case lst.IsDir():
		fi.Type = "directory"
	}
	if fi.Type != "directory" {
		fi.Size = lst.Size()
	}
	fi.SizeFormatted = collector.FormatSize(fi.Size)
	fi.LastModified = lst.ModTime()
	return fi
}

func readable(path string, dir bool) bool {
	if dir {
		f, err := os.Open(path)
		if err != nil {
			return false
		}
		_, err = f.Readdirnames(1)
		f.Close()
		return err == nil || errors.Is(err, io.EOF)
	}
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	f.Close()
	return true
}

func notFound(path string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return fmt.Errorf("stat %s: %w", path, err)
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") || strings.HasPrefix(p, `~\`) {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, p[1:])
		}
	}
	return p
}
