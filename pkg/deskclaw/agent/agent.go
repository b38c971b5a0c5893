// Package agent wires the interpretation pipeline together: a message goes
// to the classifier, else the fast-path matcher, else a local
// conversational reply. It also owns configuration loading and the loops
// that bind messaging channels and scheduled jobs to that pipeline.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jholhewres/deskclaw/pkg/deskclaw/classifier"
	"github.com/jholhewres/deskclaw/pkg/deskclaw/collector"
	"github.com/jholhewres/deskclaw/pkg/deskclaw/diskscan"
	"github.com/jholhewres/deskclaw/pkg/deskclaw/dispatch"
	"github.com/jholhewres/deskclaw/pkg/deskclaw/intent"
	"github.com/jholhewres/deskclaw/pkg/deskclaw/providers"
	"github.com/jholhewres/deskclaw/pkg/deskclaw/store"
	"github.com/jholhewres/deskclaw/pkg/deskclaw/tasks"
)

// Option customizes how New builds the agent's collaborators.
type Option func(*options)

type options struct {
	runner providers.Runner
	tabs   providers.TabLister
	store  *store.Store
}

// WithRunner replaces the OS command runner used by the providers.
func WithRunner(r providers.Runner) Option {
	return func(o *options) { o.runner = r }
}

// WithTabLister replaces the browser tab source.
func WithTabLister(t providers.TabLister) Option {
	return func(o *options) { o.tabs = t }
}

// WithStore uses an already opened store instead of opening
// cfg.Database. The agent closes it on Close.
func WithStore(s *store.Store) Option {
	return func(o *options) { o.store = s }
}

// Agent is the single entry point for every conversational surface. It is
// safe for concurrent use.
type Agent struct {
	cfg        *Config
	classifier *classifier.Classifier
	matcher    *intent.Matcher
	dispatcher *dispatch.Dispatcher
	scanner    *collector.Scanner
	disk       *diskscan.Service
	tasks      *tasks.Executor
	store      *store.Store
	logger     *slog.Logger
}

// New builds an Agent from cfg. The transcript store is opened when
// cfg.Database.Path is set.
func New(cfg *Config, logger *slog.Logger, opts ...Option) (*Agent, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	st := o.store
	if st == nil && cfg.Database.Path != "" {
		var err error
		st, err = store.Open(cfg.Database, logger)
		if err != nil {
			return nil, fmt.Errorf("opening store: %w", err)
		}
	}

	sys := providers.NewSystem(cfg.System, o.runner, logger)
	a := &Agent{
		cfg:        cfg,
		classifier: classifier.New(cfg.Classifier, logger),
		matcher:    intent.NewMatcher(),
		scanner:    collector.New(cfg.Collector, logger),
		disk:       diskscan.New(cfg.DiskScan, logger),
		tasks:      tasks.New(cfg.Tasks, logger),
		store:      st,
		logger:     logger.With("component", "agent"),
	}
	a.dispatcher = dispatch.New(dispatch.Deps{
		Scanner:   a.scanner,
		Disk:      a.disk,
		Tasks:     a.tasks,
		System:    sys,
		Browser:   providers.NewBrowser(sys, o.tabs, logger),
		Files:     providers.NewFiles(sys, logger),
		Clipboard: providers.NewClipboard(logger),
	}, logger)
	if st != nil {
		a.dispatcher.AddHook(a.audit)
	}

	a.logger.Info("agent ready",
		"classifier", a.classifier.Available(),
		"diskscan", a.disk.Enabled(),
		"store", st != nil,
	)
	return a, nil
}

// HandleMessage interprets text and returns the reply. Long-running
// actions reply with an acknowledgment and later deliver their result to
// sink, at most once, from a worker goroutine. sink may be nil.
func (a *Agent) HandleMessage(ctx context.Context, text string, sink tasks.Sink) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return a.intro()
	}

	a.record(ctx, store.RoleUser, text)
	reply := a.interpret(ctx, text, a.transcribed(sink))
	a.record(ctx, store.RoleAssistant, reply)
	return reply
}

// interpret runs the classifier, the matcher and the conversational
// fallback in that order.
func (a *Agent) interpret(ctx context.Context, text string, sink tasks.Sink) string {
	if si, ok := a.classifier.Classify(ctx, text); ok {
		if !si.Actionable {
			if strings.TrimSpace(si.Reply) != "" {
				return si.Reply
			}
			return a.converse(text)
		}
		if reply, ok := a.dispatcher.Dispatch(ctx, si.Action, si.Params, sink); ok {
			return reply
		}
		a.logger.Warn("classifier chose an unknown action", "action", si.RawAction)
		if strings.TrimSpace(si.Reply) != "" {
			return si.Reply
		}
	}

	if si, rule, ok := a.matcher.MatchRule(text); ok {
		a.logger.Debug("fast path matched", "rule", rule, "action", si.Action)
		if reply, ok := a.dispatcher.Dispatch(ctx, si.Action, si.Params, sink); ok {
			return reply
		}
	}
	return a.converse(text)
}

// transcribed appends async results to the transcript before passing them
// on.
func (a *Agent) transcribed(sink tasks.Sink) tasks.Sink {
	if a.store == nil {
		return sink
	}
	return func(text string) {
		a.record(context.Background(), store.RoleAssistant, text)
		if sink != nil {
			sink(text)
		}
	}
}

func (a *Agent) record(ctx context.Context, role, content string) {
	if a.store == nil {
		return
	}
	if err := a.store.Append(context.WithoutCancel(ctx), role, content); err != nil {
		a.logger.Warn("transcript append failed", "error", err)
	}
}

func (a *Agent) audit(ctx context.Context, c dispatch.Call) {
	err := a.store.RecordAction(context.WithoutCancel(ctx), string(c.Action), c.Params, c.Source, c.Reply)
	if err != nil {
		a.logger.Warn("audit record failed", "action", c.Action, "error", err)
	}
}

// ApplyConfig applies the hot-reloadable parts of cfg.
func (a *Agent) ApplyConfig(cfg *Config) {
	a.disk.Update(cfg.DiskScan)
	a.logger.Info("config applied",
		"diskscan_enabled", cfg.DiskScan.Enabled,
		"blocked_paths", len(cfg.DiskScan.BlockedPaths),
	)
}

// Transcript returns recent transcript messages, oldest first. Without a
// store it returns nothing.
func (a *Agent) Transcript(ctx context.Context, limit int) ([]store.Message, error) {
	if a.store == nil {
		return nil, nil
	}
	return a.store.Recent(ctx, limit)
}

// Actions returns recent audit entries, newest first. Without a store it
// returns nothing.
func (a *Agent) Actions(ctx context.Context, limit int) ([]store.Action, error) {
	if a.store == nil {
		return nil, nil
	}
	return a.store.RecentActions(ctx, limit)
}

// Config returns the configuration the agent was built with.
func (a *Agent) Config() *Config { return a.cfg }

// Tasks returns the background task executor.
func (a *Agent) Tasks() *tasks.Executor { return a.tasks }

// Disk returns the safety-checked browse service.
func (a *Agent) Disk() *diskscan.Service { return a.disk }

// Scanner returns the category collector.
func (a *Agent) Scanner() *collector.Scanner { return a.scanner }

// Store returns the transcript store, or nil.
func (a *Agent) Store() *store.Store { return a.store }

// Dispatcher returns the action dispatcher.
func (a *Agent) Dispatcher() *dispatch.Dispatcher { return a.dispatcher }

// Close waits for running tasks until ctx expires and closes the store.
func (a *Agent) Close(ctx context.Context) error {
	err := a.tasks.Close(ctx)
	if a.store != nil {
		if cerr := a.store.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
