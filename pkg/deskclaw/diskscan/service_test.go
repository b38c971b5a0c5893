package diskscan

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
)

// countingFS records every call so tests can assert the disk was untouched.
type countingFS struct {
	osFS
	calls atomic.Int64
}

func (c *countingFS) Stat(name string) (fs.FileInfo, error) {
	c.calls.Add(1)
	return c.osFS.Stat(name)
}

func (c *countingFS) Lstat(name string) (fs.FileInfo, error) {
	c.calls.Add(1)
	return c.osFS.Lstat(name)
}

func (c *countingFS) ReadDir(name string) ([]fs.DirEntry, error) {
	c.calls.Add(1)
	return c.osFS.ReadDir(name)
}

func newEnabled(t *testing.T, blocked ...string) (*Service, *countingFS) {
	t.Helper()
	s := New(Config{Enabled: true, BlockedPaths: blocked}, nil)
	cfs := &countingFS{}
	s.fs = cfs
	return s, cfs
}

func mkfile(t *testing.T, path string, data string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestBlockedPathRejectedWithoutDiskAccess(t *testing.T) {
	t.Parallel()

	paths := []string{
		"/proc",
		"/proc/1/environ",
		"/ETC/Shadow",
		"/etc/sudoers",
		"/dev",
		`C:\Windows\System32`,
		"c:/windows/SYSTEM32/drivers",
		`D:\$RECYCLE.BIN`,
		"/private/etc/master.passwd",
	}
	s, cfs := newEnabled(t)
	for _, p := range paths {
		if _, err := s.Browse(p); !errors.Is(err, ErrBlocked) {
			t.Errorf("Browse(%q) err = %v, want ErrBlocked", p, err)
		}
		if _, err := s.Info(p); !errors.Is(err, ErrBlocked) {
			t.Errorf("Info(%q) err = %v, want ErrBlocked", p, err)
		}
		if _, err := s.Search(context.Background(), p, "*"); !errors.Is(err, ErrBlocked) {
			t.Errorf("Search(%q) err = %v, want ErrBlocked", p, err)
		}
	}
	if n := cfs.calls.Load(); n != 0 {
		t.Errorf("filesystem touched %d times for blocked paths", n)
	}
}

func TestBlockedMarkersMatchSubstrings(t *testing.T) {
	t.Parallel()

	s, _ := newEnabled(t, "/home/u/priv", "secret", "Private Stuff")
	tests := []struct {
		path string
		want bool
	}{
		{"/proc", true},
		{"/sys/kernel", true},
		{"/sysroot/x", true},
		{"/home/u/sysfoo", true},
		{"/etc/passwd-", true},
		{"/home/u/priv", true},
		{"/home/u/private/a.txt", true},
		{"/home/u/secrets/k", true},
		{"/HOME/me/PRIVATE STUFF/a.txt", true},
		{"/home/me/notes/a.txt", false},
		{"/home/u/pub", false},
	}
	for _, tt := range tests {
		if got := s.Blocked(tt.path); got != tt.want {
			t.Errorf("Blocked(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestDisabledServiceTouchesNothing(t *testing.T) {
	t.Parallel()

	s := New(DefaultConfig(), nil)
	cfs := &countingFS{}
	s.fs = cfs
	dir := t.TempDir()

	if _, err := s.Browse(dir); !errors.Is(err, ErrDisabled) {
		t.Errorf("Browse err = %v, want ErrDisabled", err)
	}
	if _, err := s.Roots(context.Background()); !errors.Is(err, ErrDisabled) {
		t.Errorf("Roots err = %v, want ErrDisabled", err)
	}
	if cfs.calls.Load() != 0 {
		t.Error("disabled service touched the filesystem")
	}

	s.Update(Config{Enabled: true})
	if _, err := s.Browse(dir); err != nil {
		t.Errorf("Browse after enable: %v", err)
	}
}

func TestBrowseOrdersDirectoriesFirst(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	mkfile(t, filepath.Join(dir, "b.txt"), "bb")
	mkfile(t, filepath.Join(dir, "A.txt"), "a")
	mkfile(t, filepath.Join(dir, "zeta", "x"), "")
	mkfile(t, filepath.Join(dir, "Alpha", "y"), "")

	s, _ := newEnabled(t)
	l, err := s.Browse(dir)
	if err != nil {
		t.Fatalf("Browse: %v", err)
	}
	var names []string
	for _, c := range l.Children {
		names = append(names, c.Name)
	}
	if got, want := strings.Join(names, ","), "Alpha,zeta,A.txt,b.txt"; got != want {
		t.Errorf("children = %s, want %s", got, want)
	}
	if l.Children[0].Type != "directory" || l.Children[3].Size != 2 {
		t.Errorf("unexpected child info: %+v", l.Children)
	}
	if l.Parent != filepath.Dir(dir) {
		t.Errorf("Parent = %q", l.Parent)
	}
}

func TestBrowseErrors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	file := filepath.Join(dir, "f.txt")
	mkfile(t, file, "x")

	s, _ := newEnabled(t)
	if _, err := s.Browse(filepath.Join(dir, "missing")); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing err = %v, want ErrNotFound", err)
	}
	if _, err := s.Browse(file); !errors.Is(err, ErrNotDirectory) {
		t.Errorf("file err = %v, want ErrNotDirectory", err)
	}
	if _, err := s.Browse("  "); !errors.Is(err, ErrInvalid) {
		t.Errorf("blank err = %v, want ErrInvalid", err)
	}
}

func TestInfo(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	mkfile(t, filepath.Join(dir, "one"), "1")
	mkfile(t, filepath.Join(dir, "two"), "2")

	s, _ := newEnabled(t)
	info, err := s.Info(dir)
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if info.Type != "directory" || info.ChildCount == nil || *info.ChildCount != 2 {
		t.Errorf("Info = %+v", info)
	}
	if !info.Readable {
		t.Error("temp dir reported unreadable")
	}
	if !strings.Contains(info.String(), "- Items: 2") {
		t.Errorf("String() = %q", info.String())
	}
}

func TestSearchCapsResults(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	for _, n := range []string{"a.log", "b.log", "c.log", "d.txt"} {
		mkfile(t, filepath.Join(dir, "logs", n), "x")
	}

	s := New(Config{Enabled: true, MaxResults: 2}, nil)
	res, err := s.Search(context.Background(), dir, "*.log")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if res.ResultCount != 2 || !res.Truncated {
		t.Errorf("Search = count %d truncated %v, want 2 true", res.ResultCount, res.Truncated)
	}

	if _, err := s.Search(context.Background(), dir, ""); !errors.Is(err, ErrInvalid) {
		t.Errorf("blank pattern err = %v, want ErrInvalid", err)
	}
}

func TestSearchRespectsDepth(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	mkfile(t, filepath.Join(dir, "top.md"), "x")
	mkfile(t, filepath.Join(dir, "a", "mid.md"), "x")
	mkfile(t, filepath.Join(dir, "a", "b", "deep.md"), "x")

	s := New(Config{Enabled: true, MaxDepth: 2}, nil)
	res, err := s.Search(context.Background(), dir, "*.md")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if res.ResultCount != 2 {
		t.Errorf("ResultCount = %d, want 2 (%+v)", res.ResultCount, res.Results)
	}
}

func TestDescribe(t *testing.T) {
	t.Parallel()

	if got := Describe(ErrBlocked); got != "Access to that location is not allowed." {
		t.Errorf("Describe(ErrBlocked) = %q", got)
	}
	if got := Describe(errors.New("boom")); !strings.Contains(got, "boom") {
		t.Errorf("Describe(other) = %q", got)
	}
}
