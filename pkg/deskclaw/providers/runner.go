// Package providers implements the capabilities the dispatcher calls: system
// control, browser control, file operations and the clipboard. Every
// provider method returns human-readable text and never an error; failures
// become descriptive sentences.
package providers

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"time"
)

// Runner executes host commands. Tests inject a fake.
type Runner interface {
	// Run waits for the command and returns its combined output.
	Run(ctx context.Context, name string, args ...string) (string, error)

	// Start launches the command without waiting for it.
	Start(name string, args ...string) error
}

// ExecRunner runs commands through os/exec with a per-call timeout.
type ExecRunner struct {
	timeout time.Duration
	logger  *slog.Logger
}

// NewExecRunner creates an ExecRunner. A zero timeout means 60 seconds.
func NewExecRunner(timeout time.Duration, logger *slog.Logger) *ExecRunner {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &ExecRunner{timeout: timeout, logger: logger.With("component", "runner")}
}

// Run executes name with args and returns stdout and stderr interleaved.
// A non-zero exit returns the output together with the error.
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	start := time.Now()
	err := cmd.Run()
	r.logger.Debug("command finished",
		"command", name,
		"duration_ms", time.Since(start).Milliseconds(),
		"error", err,
	)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return out.String(), fmt.Errorf("%s timed out after %s", name, r.timeout)
		}
		return out.String(), fmt.Errorf("running %s: %w", name, err)
	}
	return out.String(), nil
}

// Start launches name detached. The child is reaped in the background.
func (r *ExecRunner) Start(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting %s: %w", name, err)
	}
	go func() {
		_ = cmd.Wait()
	}()
	return nil
}
