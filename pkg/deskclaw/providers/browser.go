package providers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// Tab is one open browser page.
type Tab struct {
	TargetID string `json:"target_id"`
	Title    string `json:"title"`
	URL      string `json:"url"`
}

// TabLister reports the open tabs of a running browser.
type TabLister interface {
	Tabs(ctx context.Context) ([]Tab, error)
}

// errNoDebugURL is returned when no DevTools endpoint is configured.
var errNoDebugURL = errors.New("no browser debug URL configured")

// CDPTabs lists tabs over the Chrome DevTools Protocol. The browser must be
// started with --remote-debugging-port.
type CDPTabs struct {
	debugURL string
}

// NewCDPTabs creates a lister for the DevTools endpoint at debugURL, e.g.
// http://127.0.0.1:9222.
func NewCDPTabs(debugURL string) *CDPTabs {
	return &CDPTabs{debugURL: strings.TrimSpace(debugURL)}
}

// Tabs connects, reads the page targets and disconnects. The browser is
// left running.
func (c *CDPTabs) Tabs(ctx context.Context) ([]Tab, error) {
	if c.debugURL == "" {
		return nil, errNoDebugURL
	}
	wsURL, err := launcher.ResolveURL(c.debugURL)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", c.debugURL, err)
	}

	// Canceling the context drops the connection. Browser.Close would quit
	// the user's browser.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	browser := rod.New().ControlURL(wsURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect to browser: %w", err)
	}

	res, err := proto.TargetGetTargets{}.Call(browser)
	if err != nil {
		return nil, fmt.Errorf("listing targets: %w", err)
	}
	var tabs []Tab
	for _, t := range res.TargetInfos {
		if t.Type != proto.TargetTargetInfoTypePage {
			continue
		}
		tabs = append(tabs, Tab{TargetID: string(t.TargetID), Title: t.Title, URL: t.URL})
	}
	return tabs, nil
}

// Browser opens sites and searches in the default browser and lists tabs.
type Browser struct {
	sys    *System
	tabs   TabLister
	logger *slog.Logger
}

// NewBrowser creates a Browser. A nil tabs lister uses CDPTabs on the
// configured debug URL.
func NewBrowser(sys *System, tabs TabLister, logger *slog.Logger) *Browser {
	if logger == nil {
		logger = slog.Default()
	}
	if tabs == nil {
		tabs = NewCDPTabs(sys.cfg.BrowserDebugURL)
	}
	return &Browser{sys: sys, tabs: tabs, logger: logger.With("component", "browser")}
}

// NormalizeURL prepends https:// when raw carries no http(s) scheme.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	lower := strings.ToLower(raw)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return raw
	}
	return "https://" + raw
}

// OpenURL opens raw in the default browser.
func (b *Browser) OpenURL(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return "Which website should I open?"
	}
	u := NormalizeURL(raw)
	if err := b.sys.Open(u); err != nil {
		b.logger.Warn("open url failed", "url", u, "error", err)
		return "Failed to open " + u + "."
	}
	return "Opened " + u + " in your browser."
}

// SearchGoogle opens a Google results page for query.
func (b *Browser) SearchGoogle(query string) string {
	if strings.TrimSpace(query) == "" {
		return "What should I search for?"
	}
	return b.OpenURL("https://www.google.com/search?q=" + url.QueryEscape(strings.TrimSpace(query)))
}

// SearchYouTube opens a YouTube results page for query.
func (b *Browser) SearchYouTube(query string) string {
	if strings.TrimSpace(query) == "" {
		return "What should I search for on YouTube?"
	}
	return b.OpenURL("https://www.youtube.com/results?search_query=" + url.QueryEscape(strings.TrimSpace(query)))
}

// ListTabs reports the open tabs.
func (b *Browser) ListTabs(ctx context.Context) string {
	tabs, err := b.tabs.Tabs(ctx)
	if errors.Is(err, errNoDebugURL) {
		return "I can't see your tabs yet. Start Chrome with --remote-debugging-port=9222 and set system.browser_debug_url."
	}
	if err != nil {
		b.logger.Warn("listing tabs failed", "error", err)
		return "Could not list browser tabs. Is the browser running with remote debugging enabled?"
	}
	if len(tabs) == 0 {
		return "No browser windows found."
	}
	var sb strings.Builder
	sb.WriteString("Browser tabs:\n")
	for i, t := range tabs {
		title := t.Title
		if title == "" {
			title = "(untitled)"
		}
		fmt.Fprintf(&sb, "  %d. %s - %s\n", i+1, title, t.URL)
	}
	return sb.String()
}
