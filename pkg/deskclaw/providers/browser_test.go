package providers

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type staticTabs struct {
	tabs []Tab
	err  error
}

func (s staticTabs) Tabs(context.Context) ([]Tab, error) { return s.tabs, s.err }

func TestNormalizeURL(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"example.com":          "https://example.com",
		"  github.com/x ":      "https://github.com/x",
		"http://intranet":      "http://intranet",
		"HTTPS://Example.com/": "HTTPS://Example.com/",
	}
	for in, want := range tests {
		if got := NormalizeURL(in); got != want {
			t.Errorf("NormalizeURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSearchesEncodeQuery(t *testing.T) {
	t.Parallel()

	run := newFakeRunner()
	sys := newSystemFor("linux", Config{}, run, nil)
	b := NewBrowser(sys, staticTabs{}, nil)

	if got := b.SearchGoogle("go generics & you"); got != "Opened https://www.google.com/search?q=go+generics+%26+you in your browser." {
		t.Errorf("SearchGoogle = %q", got)
	}
	b.SearchYouTube("lofi beats")
	want := []string{
		"xdg-open https://www.google.com/search?q=go+generics+%26+you",
		"xdg-open https://www.youtube.com/results?search_query=lofi+beats",
	}
	if strings.Join(run.started, "|") != strings.Join(want, "|") {
		t.Errorf("started = %q, want %q", run.started, want)
	}
	if got := b.SearchGoogle(""); got != "What should I search for?" {
		t.Errorf("SearchGoogle blank = %q", got)
	}
}

func TestOpenURLFailure(t *testing.T) {
	t.Parallel()

	run := newFakeRunner()
	run.fail["cmd /c start  https://example.com"] = true
	sys := newSystemFor("windows", Config{}, run, nil)
	b := NewBrowser(sys, staticTabs{}, nil)
	if got := b.OpenURL("example.com"); got != "Failed to open https://example.com." {
		t.Errorf("OpenURL = %q", got)
	}
}

func TestListTabs(t *testing.T) {
	t.Parallel()

	sys := newSystemFor("linux", Config{}, newFakeRunner(), nil)
	tests := []struct {
		name string
		tabs TabLister
		want string
	}{
		{
			name: "tabs",
			tabs: staticTabs{tabs: []Tab{{Title: "Go", URL: "https://go.dev"}, {URL: "about:blank"}}},
			want: "Browser tabs:\n  1. Go - https://go.dev\n  2. (untitled) - about:blank\n",
		},
		{"none", staticTabs{}, "No browser windows found."},
		{"unreachable", staticTabs{err: errors.New("dial tcp: refused")}, "Could not list browser tabs. Is the browser running with remote debugging enabled?"},
		{"unconfigured", NewCDPTabs(""), "I can't see your tabs yet. Start Chrome with --remote-debugging-port=9222 and set system.browser_debug_url."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			b := NewBrowser(sys, tt.tabs, nil)
			if got := b.ListTabs(context.Background()); got != tt.want {
				t.Errorf("ListTabs = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFilesCopyAndDelete(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	src := filepath.Join(dir, "report.pdf")
	if err := os.WriteFile(src, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	destDir := filepath.Join(dir, "backup")
	if err := os.Mkdir(destDir, 0o755); err != nil {
		t.Fatal(err)
	}

	f := NewFiles(newSystemFor("linux", Config{}, newFakeRunner(), nil), nil)

	want := "Copied report.pdf to " + filepath.Join(destDir, "report.pdf")
	if got := f.Copy(src, destDir); got != want {
		t.Errorf("Copy = %q, want %q", got, want)
	}
	if b, err := os.ReadFile(filepath.Join(destDir, "report.pdf")); err != nil || string(b) != "hello" {
		t.Errorf("copied content = %q, %v", b, err)
	}
	if got := f.Copy(filepath.Join(dir, "missing"), destDir); !strings.HasPrefix(got, "Source not found: ") {
		t.Errorf("Copy missing = %q", got)
	}
	if got := f.Copy(destDir, dir); !strings.HasPrefix(got, "I can only copy individual files") {
		t.Errorf("Copy dir = %q", got)
	}

	if got := f.Delete(destDir); !strings.HasPrefix(got, "I can only delete individual files, not directories.") {
		t.Errorf("Delete dir = %q", got)
	}
	if got := f.Delete(src); got != "Deleted: "+src+" (5 B)" {
		t.Errorf("Delete = %q", got)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Errorf("file still present: %v", err)
	}
	if got := f.Delete(src); got != "File not found: "+src {
		t.Errorf("Delete again = %q", got)
	}
}

func TestFilesOpen(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	run := newFakeRunner()
	f := NewFiles(newSystemFor("darwin", Config{}, run, nil), nil)

	if got := f.Open(dir); got != "Opened: "+dir {
		t.Errorf("Open = %q", got)
	}
	if len(run.started) != 1 || run.started[0] != "open "+dir {
		t.Errorf("started = %q", run.started)
	}
	missing := filepath.Join(dir, "nope")
	if got := f.Open(missing); got != "Path not found: "+missing {
		t.Errorf("Open missing = %q", got)
	}
}

func TestClipboard(t *testing.T) {
	t.Parallel()

	var stored string
	c := &Clipboard{
		read:   func() (string, error) { return stored, nil },
		write:  func(s string) error { stored = s; return nil },
		logger: NewClipboard(nil).logger,
	}
	if got := c.Read(); got != "Clipboard is empty." {
		t.Errorf("Read empty = %q", got)
	}
	if got := c.Write("hello"); got != "Copied to clipboard." {
		t.Errorf("Write = %q", got)
	}
	if got := c.Read(); got != "Clipboard contents:\nhello" {
		t.Errorf("Read = %q", got)
	}

	c.write = func(string) error { return errors.New("no display") }
	if got := c.Write("x"); got != "Could not write to the clipboard." {
		t.Errorf("Write failure = %q", got)
	}
	c.unsupported = true
	if got := c.Read(); got != "Clipboard access is not available on this machine." {
		t.Errorf("Read unsupported = %q", got)
	}
}
