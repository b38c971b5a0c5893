// Package dispatch maps a structured intent onto the provider, scanner or
// background task that performs it.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jholhewres/deskclaw/pkg/deskclaw/collector"
	"github.com/jholhewres/deskclaw/pkg/deskclaw/diskscan"
	"github.com/jholhewres/deskclaw/pkg/deskclaw/intent"
	"github.com/jholhewres/deskclaw/pkg/deskclaw/providers"
	"github.com/jholhewres/deskclaw/pkg/deskclaw/tasks"
)

// DefaultCategory is collected when a request names none.
const DefaultCategory = "photos"

// searchResultCap bounds background file searches.
const searchResultCap = 50

type sourceKey struct{}

// WithSource tags ctx with the surface a request came from ("cli",
// "gateway", "discord", ...). Hooks receive it.
func WithSource(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, sourceKey{}, source)
}

// SourceFromContext returns the request surface, or "unknown".
func SourceFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(sourceKey{}).(string); ok && s != "" {
		return s
	}
	return "unknown"
}

// Call describes one completed dispatch, as seen by hooks.
type Call struct {
	Action   intent.Action
	Params   map[string]string
	Source   string
	Reply    string
	Duration time.Duration
}

// Hook observes dispatches after they return. Hooks must not block.
type Hook func(ctx context.Context, call Call)

// Deps are the collaborators of a Dispatcher. All are required.
type Deps struct {
	Scanner   *collector.Scanner
	Disk      *diskscan.Service
	Tasks     *tasks.Executor
	System    *providers.System
	Browser   *providers.Browser
	Files     *providers.Files
	Clipboard *providers.Clipboard
}

// Dispatcher runs actions. It is safe for concurrent use.
type Dispatcher struct {
	deps   Deps
	mu     sync.RWMutex
	hooks  []Hook
	logger *slog.Logger
}

// New creates a Dispatcher.
func New(deps Deps, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{deps: deps, logger: logger.With("component", "dispatch")}
}

// AddHook registers a hook called after every handled action.
func (d *Dispatcher) AddHook(h Hook) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hooks = append(d.hooks, h)
}

// Dispatch performs action with params. Long-running actions return an
// acknowledgment at once and later deliver their result to sink. ok is
// false for an action outside the catalog; nothing is done in that case.
func (d *Dispatcher) Dispatch(ctx context.Context, action intent.Action, params map[string]string, sink tasks.Sink) (reply string, ok bool) {
	if !action.Valid() {
		d.logger.Debug("ignoring unknown action", "action", action)
		return "", false
	}

	start := time.Now()
	si := intent.NewAction(action, params)
	reply = d.run(ctx, si, sink)

	call := Call{
		Action:   action,
		Params:   si.Params,
		Source:   SourceFromContext(ctx),
		Reply:    reply,
		Duration: time.Since(start),
	}
	d.logger.Info("action dispatched",
		"action", action,
		"source", call.Source,
		"duration_ms", call.Duration.Milliseconds(),
	)

	d.mu.RLock()
	hooks := d.hooks
	d.mu.RUnlock()
	for _, h := range hooks {
		h(ctx, call)
	}
	return reply, true
}

// run is the action table. Every catalog action has exactly one case.
func (d *Dispatcher) run(ctx context.Context, si *intent.StructuredIntent, sink tasks.Sink) string {
	switch si.Action {
	case intent.ActionCollectFiles:
		return d.collect(si.Param(intent.ParamCategory, DefaultCategory), sink)
	case intent.ActionListCollected:
		return d.deps.Scanner.ListCollected()
	case intent.ActionOpenCollected:
		return d.openCollected(si.Param(intent.ParamCategory, ""))
	case intent.ActionSearchFiles:
		return d.search(si.Param(intent.ParamPattern, "*"), sink)

	case intent.ActionCloseAllWindows:
		return d.deps.System.CloseAllWindows(ctx)
	case intent.ActionCloseBrowsers:
		return d.deps.System.CloseBrowsers(ctx)
	case intent.ActionCloseApp:
		return d.deps.System.CloseApp(ctx, si.Param(intent.ParamAppName, ""))
	case intent.ActionOpenApp:
		return d.deps.System.OpenApp(ctx, si.Param(intent.ParamAppName, ""))
	case intent.ActionMinimizeAll:
		return d.deps.System.MinimizeAll(ctx)
	case intent.ActionLockScreen:
		return d.deps.System.LockScreen(ctx)
	case intent.ActionTakeScreenshot:
		return d.deps.System.TakeScreenshot(ctx)
	case intent.ActionListRunningApps:
		return d.deps.System.ListRunningApps(ctx)
	case intent.ActionRunCommand:
		return d.deps.System.RunCommand(ctx, si.Param(intent.ParamCommand, ""))
	case intent.ActionTaskStatus:
		return d.deps.Tasks.Summary()

	case intent.ActionYouTubeSearch:
		return d.deps.Browser.SearchYouTube(si.Param(intent.ParamQuery, ""))
	case intent.ActionGoogleSearch:
		return d.deps.Browser.SearchGoogle(si.Param(intent.ParamQuery, ""))
	case intent.ActionOpenURL:
		return d.deps.Browser.OpenURL(si.Param(intent.ParamURL, ""))
	case intent.ActionListBrowserTabs:
		return d.deps.Browser.ListTabs(ctx)

	case intent.ActionOpenPath:
		return d.deps.Files.Open(si.Param(intent.ParamPath, ""))
	case intent.ActionCopyFile:
		return d.deps.Files.Copy(si.Param(intent.ParamSource, ""), si.Param(intent.ParamDestination, ""))
	case intent.ActionDeleteFile:
		return d.deps.Files.Delete(si.Param(intent.ParamPath, ""))

	case intent.ActionListDrives:
		vols, err := d.deps.Disk.Roots(ctx)
		if err != nil {
			return diskscan.Describe(err)
		}
		return diskscan.FormatVolumes(vols)
	case intent.ActionBrowsePath:
		l, err := d.deps.Disk.Browse(si.Param(intent.ParamPath, ""))
		if err != nil {
			return diskscan.Describe(err)
		}
		return l.String()
	case intent.ActionPathInfo:
		info, err := d.deps.Disk.Info(si.Param(intent.ParamPath, ""))
		if err != nil {
			return diskscan.Describe(err)
		}
		return info.String()
	case intent.ActionSearchPath:
		res, err := d.deps.Disk.Search(ctx, si.Param(intent.ParamPath, ""), si.Param(intent.ParamPattern, "*"))
		if err != nil {
			return diskscan.Describe(err)
		}
		return res.String()

	case intent.ActionReadClipboard:
		return d.deps.Clipboard.Read()
	case intent.ActionWriteClipboard:
		return d.deps.Clipboard.Write(si.Param(intent.ParamText, ""))
	}

	// Valid() passed, so a catalog action is missing a case above.
	d.logger.Error("action has no handler", "action", si.Action)
	return "Sorry, I can't do that yet."
}

// resolveCategory accepts a category name or one of its aliases
// ("pictures", "songs").
func resolveCategory(category string) (string, bool) {
	if rule, ok := collector.LookupCategory(category); ok {
		return rule.Name, true
	}
	return collector.CategoryFromText(strings.ToLower(category))
}

func unknownCategory(category string) string {
	return fmt.Sprintf("I don't know the category %q. Try one of: %s.",
		category, strings.Join(collector.CategoryNames(), ", "))
}

func (d *Dispatcher) collect(category string, sink tasks.Sink) string {
	cat, ok := resolveCategory(category)
	if !ok {
		return unknownCategory(category)
	}

	key := "collect-" + cat
	p, err := d.deps.Tasks.Submit(key, "collect "+cat, func(ctx context.Context) (string, error) {
		rep, err := d.deps.Scanner.Collect(ctx, cat)
		if err != nil {
			return "", err
		}
		return rep.String(), nil
	}, sink)
	if err != nil {
		return d.submitFailed(err, key, "collecting "+cat)
	}
	d.logger.Info("collection queued", "task", p.ID)
	return "On it! Scanning your PC for " + cat + " files. I'll report back when done."
}

func (d *Dispatcher) search(pattern string, sink tasks.Sink) string {
	pat := intent.WidenPattern(pattern)
	if _, err := filepath.Match(strings.ToLower(pat), ""); err != nil {
		return "That search pattern is not valid."
	}

	key := "search-" + pat
	p, err := d.deps.Tasks.Submit(key, "search "+pat, func(ctx context.Context) (string, error) {
		res, err := d.deps.Scanner.Search(ctx, pat, searchResultCap)
		if err != nil {
			return "", err
		}
		return res.String(), nil
	}, sink)
	if err != nil {
		return d.submitFailed(err, key, fmt.Sprintf("searching for %q", pat))
	}
	d.logger.Info("search queued", "task", p.ID)
	return fmt.Sprintf("Searching for %q across your PC...", pat)
}

// submitFailed turns an executor rejection into a reply. what reads like
// "collecting photos".
func (d *Dispatcher) submitFailed(err error, key, what string) string {
	switch {
	case errors.Is(err, tasks.ErrDuplicateTask):
		rec, ok := d.deps.Tasks.Running(key)
		if !ok {
			return fmt.Sprintf("Already %s. I'll report back when it finishes.", what)
		}
		return fmt.Sprintf("Already %s (task %s). I'll report back when it finishes.", what, rec.ID)
	case errors.Is(err, tasks.ErrQueueFull):
		return "I'm busy with other tasks right now. Please try again in a moment."
	case errors.Is(err, tasks.ErrClosed):
		return "I'm shutting down and can't start new tasks."
	default:
		d.logger.Error("task submission failed", "error", err)
		return "I couldn't start that task."
	}
}

// openCollected opens one category folder, or the collection base when
// category is empty.
func (d *Dispatcher) openCollected(category string) string {
	if category = strings.TrimSpace(category); category != "" {
		cat, ok := resolveCategory(category)
		if !ok {
			return unknownCategory(category)
		}
		category = cat
	}
	dir := d.deps.Scanner.CollectedDir(category)
	if _, err := os.Stat(dir); err != nil {
		return "No files collected yet. Ask me to collect photos, videos, documents, etc."
	}
	return d.deps.Files.Open(dir)
}
