package providers

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// maxCommandOutput caps the text returned by RunCommand.
const maxCommandOutput = 2000

// Config configures the system and browser providers.
type Config struct {
	// ProtectedProcesses are never closed, in addition to the built-in
	// per-OS list. Matched case-insensitively.
	ProtectedProcesses []string `yaml:"protected_processes"`

	// ShellTimeout bounds every command run by the providers.
	ShellTimeout time.Duration `yaml:"shell_timeout"`

	// BrowserDebugURL is the Chrome DevTools endpoint used to list tabs,
	// e.g. http://127.0.0.1:9222.
	BrowserDebugURL string `yaml:"browser_debug_url"`

	// ScreenshotDir receives screenshots. Default ~/deskclaw_data/screenshots.
	ScreenshotDir string `yaml:"screenshot_dir"`
}

// DefaultConfig returns the provider defaults.
func DefaultConfig() Config {
	return Config{ShellTimeout: 60 * time.Second}
}

// System controls processes, windows and the desktop.
type System struct {
	cfg       Config
	plat      platform
	run       Runner
	protected map[string]bool
	now       func() time.Time
	logger    *slog.Logger
}

// NewSystem creates a System for the host OS. A nil runner uses ExecRunner.
func NewSystem(cfg Config, run Runner, logger *slog.Logger) *System {
	return newSystemFor(runtime.GOOS, cfg, run, logger)
}

func newSystemFor(goos string, cfg Config, run Runner, logger *slog.Logger) *System {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ShellTimeout <= 0 {
		cfg.ShellTimeout = DefaultConfig().ShellTimeout
	}
	if run == nil {
		run = NewExecRunner(cfg.ShellTimeout, logger)
	}
	plat := platformFor(goos)
	protected := make(map[string]bool)
	for _, p := range plat.protected {
		protected[strings.ToLower(p)] = true
	}
	for _, p := range cfg.ProtectedProcesses {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			protected[p] = true
		}
	}
	return &System{
		cfg:       cfg,
		plat:      plat,
		run:       run,
		protected: protected,
		now:       time.Now,
		logger:    logger.With("component", "system"),
	}
}

// Protected reports whether a process name must never be closed.
func (s *System) Protected(name string) bool {
	return s.protected[strings.ToLower(strings.TrimSpace(name))]
}

// userProcesses lists running processes minus protected ones, low pids and
// this process.
func (s *System) userProcesses(ctx context.Context) ([]process, error) {
	out, err := s.run.Run(ctx, s.plat.listProcs[0], s.plat.listProcs[1:]...)
	if err != nil {
		return nil, err
	}
	self, parent := os.Getpid(), os.Getppid()
	var procs []process
	for _, p := range s.plat.parseProcs(out) {
		if p.PID <= 4 || p.PID == self || p.PID == parent || s.Protected(p.Name) {
			continue
		}
		procs = append(procs, p)
	}
	return procs, nil
}

func (s *System) exec(ctx context.Context, c command) (string, error) {
	return s.run.Run(ctx, c[0], c[1:]...)
}

// CloseAllWindows asks every user application to exit, forcing those that
// refuse.
func (s *System) CloseAllWindows(ctx context.Context) string {
	procs, err := s.userProcesses(ctx)
	if err != nil {
		s.logger.Warn("listing processes failed", "error", err)
		return "Could not list running applications."
	}
	if len(procs) == 0 {
		return "No user applications to close."
	}

	var (
		closed int
		failed int
		names  []string
	)
	for _, p := range procs {
		if _, err := s.exec(ctx, s.plat.terminate(p.PID)); err == nil {
			closed++
			names = append(names, p.Name)
			continue
		}
		if _, err := s.exec(ctx, s.plat.kill(p.PID)); err == nil {
			closed++
			names = append(names, p.Name+" (forced)")
			continue
		}
		failed++
	}
	s.logger.Info("closed applications", "closed", closed, "failed", failed)

	var sb strings.Builder
	fmt.Fprintf(&sb, "Closed %d application(s)", closed)
	if failed > 0 {
		fmt.Fprintf(&sb, ", %d failed", failed)
	}
	sb.WriteString(".\n")
	if len(names) > 0 {
		sb.WriteString("Closed: " + strings.Join(names, ", "))
	}
	return sb.String()
}

// processNames maps an app name onto candidate process names.
func (s *System) processNames(app string) []string {
	lower := strings.ToLower(strings.TrimSpace(app))
	for _, e := range s.plat.apps {
		if strings.Contains(lower, e.name) {
			return e.procs
		}
	}
	return []string{s.plat.guessProcess(lower)}
}

// CloseApp force-closes every process belonging to app.
func (s *System) CloseApp(ctx context.Context, app string) string {
	app = strings.TrimSpace(app)
	if app == "" {
		return "Which app should I close?"
	}
	closed := 0
	for _, proc := range s.processNames(app) {
		if s.Protected(proc) {
			s.logger.Warn("refusing to close protected process", "process", proc)
			continue
		}
		if _, err := s.exec(ctx, s.plat.killByName(proc)); err == nil {
			closed++
		}
	}
	if closed > 0 {
		return "Closed " + app + "."
	}
	return app + " is not running or could not be closed."
}

// CloseBrowsers force-closes every known browser.
func (s *System) CloseBrowsers(ctx context.Context) string {
	closed := 0
	for _, proc := range s.plat.browsers {
		if _, err := s.exec(ctx, s.plat.killByName(proc)); err == nil {
			closed++
		}
	}
	if closed > 0 {
		return fmt.Sprintf("Closed %d browser(s).", closed)
	}
	return "No browsers were running."
}

// OpenApp launches app, preferring the known launch table.
func (s *System) OpenApp(_ context.Context, app string) string {
	app = strings.TrimSpace(app)
	if app == "" {
		return "Which app should I open?"
	}
	lower := strings.ToLower(app)
	for _, e := range s.plat.launch {
		if strings.Contains(lower, e.name) {
			if err := s.run.Start(e.cmd[0], e.cmd[1:]...); err != nil {
				s.logger.Warn("launch failed", "app", e.name, "error", err)
				return "Failed to open " + e.name + "."
			}
			return "Opened " + e.name + "."
		}
	}
	c := s.plat.launchUnknown(app)
	if err := s.run.Start(c[0], c[1:]...); err != nil {
		s.logger.Warn("launch failed", "app", app, "error", err)
		return "Could not open " + app + "."
	}
	return "Trying to open " + app + "..."
}

// Open hands a URL or path to the desktop's default handler.
func (s *System) Open(target string) error {
	c := s.plat.open(target)
	return s.run.Start(c[0], c[1:]...)
}

// MinimizeAll shows the desktop.
func (s *System) MinimizeAll(ctx context.Context) string {
	if _, err := s.exec(ctx, s.plat.minimize); err != nil {
		s.logger.Warn("minimize failed", "error", err)
		return "Failed to minimize windows."
	}
	return "Minimized all windows."
}

// LockScreen locks the workstation.
func (s *System) LockScreen(ctx context.Context) string {
	if _, err := s.exec(ctx, s.plat.lock); err != nil {
		s.logger.Warn("lock failed", "error", err)
		return "Failed to lock the screen."
	}
	return "Screen locked."
}

// TakeScreenshot saves a PNG of the screen and returns its path.
func (s *System) TakeScreenshot(ctx context.Context) string {
	dir := s.cfg.ScreenshotDir
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "Screenshot failed: no home directory."
		}
		dir = filepath.Join(home, "deskclaw_data", "screenshots")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		s.logger.Warn("creating screenshot dir failed", "error", err)
		return "Screenshot failed: cannot create " + dir + "."
	}
	path := filepath.Join(dir, s.now().Format("2006-01-02_15-04-05")+"_manual.png")
	if _, err := s.exec(ctx, s.plat.screenshot(path)); err != nil {
		s.logger.Warn("screenshot failed", "error", err)
		return "Screenshot failed."
	}
	return "Screenshot saved: " + path
}

// ListRunningApps groups user processes by name.
func (s *System) ListRunningApps(ctx context.Context) string {
	procs, err := s.userProcesses(ctx)
	if err != nil {
		s.logger.Warn("listing processes failed", "error", err)
		return "Could not list running applications."
	}
	if len(procs) == 0 {
		return "No user applications currently running."
	}

	var (
		order  []string
		counts = make(map[string]int)
	)
	for _, p := range procs {
		if counts[p.Name] == 0 {
			order = append(order, p.Name)
		}
		counts[p.Name]++
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Running applications (%d processes):\n", len(procs))
	for _, name := range order {
		sb.WriteString("  " + name)
		if n := counts[name]; n > 1 {
			fmt.Fprintf(&sb, " (x%d)", n)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// RunCommand runs line in the platform shell and returns its output,
// truncated to maxCommandOutput characters.
func (s *System) RunCommand(ctx context.Context, line string) string {
	line = strings.TrimSpace(line)
	if line == "" {
		return "Which command should I run?"
	}
	s.logger.Info("running command", "command", line)
	out, err := s.exec(ctx, s.plat.shell(line))
	out = strings.TrimRight(out, "\r\n\t ")
	if err != nil && out == "" {
		s.logger.Warn("command failed", "error", err)
		return "Command failed: " + err.Error()
	}
	if r := []rune(out); len(r) > maxCommandOutput {
		out = string(r[:maxCommandOutput]) + "\n... (truncated)"
	}
	if strings.TrimSpace(out) == "" {
		return "Command completed (no output)."
	}
	return out
}
