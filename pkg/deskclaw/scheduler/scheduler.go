// Package scheduler runs DeskClaw commands on a timetable. Jobs come from
// configuration and fire through robfig/cron; each run hands the job's
// command to a JobHandler, normally the agent pipeline.
package scheduler

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Job types.
const (
	TypeCron  = "cron"
	TypeEvery = "every"
	TypeAt    = "at"
)

// minJobInterval keeps a job from firing twice within the same cron tick.
const minJobInterval = 2 * time.Second

// ErrJobNotFound is returned for an unknown job ID.
var ErrJobNotFound = errors.New("job not found")

// Config configures the scheduler.
type Config struct {
	Enabled bool `yaml:"enabled"`

	// Timeout bounds a single run. Jobs may override it.
	Timeout time.Duration `yaml:"timeout"`

	Jobs []Job `yaml:"jobs"`
}

// DefaultConfig returns an enabled scheduler with no jobs.
func DefaultConfig() Config {
	return Config{Enabled: true, Timeout: 5 * time.Minute}
}

// Job is a command that runs on a schedule.
type Job struct {
	ID string `json:"id" yaml:"id"`

	// Schedule is a 5-field cron expression, a descriptor such as "@daily"
	// or "@every 10m", or a phrase like "daily at 9am" or "every 2 hours".
	// For type "at" it is a time ("15:04", RFC 3339) or a delay ("30m").
	Schedule string `json:"schedule" yaml:"schedule"`

	// Type is "cron", "every" or "at". Empty means cron.
	Type string `json:"type" yaml:"type"`

	// Command is the chat text handed to the agent, e.g. "take a screenshot".
	Command string `json:"command" yaml:"command"`

	// Channel and ChatID name where results are announced.
	Channel string `json:"channel,omitempty" yaml:"channel"`
	ChatID  string `json:"chat_id,omitempty" yaml:"chat_id"`

	Enabled  bool `json:"enabled" yaml:"enabled"`
	Announce bool `json:"announce,omitempty" yaml:"announce"`

	TimeoutSeconds int `json:"timeout_seconds,omitempty" yaml:"timeout_seconds"`

	// Exact disables the start offset applied to top-of-hour schedules.
	Exact     bool `json:"exact,omitempty" yaml:"exact"`
	StaggerMs int  `json:"stagger_ms,omitempty" yaml:"stagger_ms"`

	LastRunAt       *time.Time    `json:"last_run_at,omitempty" yaml:"-"`
	LastRunDuration time.Duration `json:"last_run_duration,omitempty" yaml:"-"`
	LastError       string        `json:"last_error,omitempty" yaml:"-"`
	RunCount        int           `json:"run_count" yaml:"-"`
}

// JobHandler runs a job and returns the reply to announce.
type JobHandler func(ctx context.Context, job *Job) (string, error)

// AnnounceHandler delivers text to a chat on a channel.
type AnnounceHandler func(channel, chatID, message string) error

// Scheduler owns the cron runner and the job table.
type Scheduler struct {
	jobs     map[string]*Job
	cron     *cron.Cron
	cronIDs  map[string]cron.EntryID
	running  map[string]bool
	handler  JobHandler
	announce AnnounceHandler
	timeout  time.Duration
	started  bool

	logger *slog.Logger
	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a scheduler and registers cfg.Jobs. A job with an invalid
// schedule is an error.
func New(cfg Config, handler JobHandler, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		jobs:    make(map[string]*Job),
		cronIDs: make(map[string]cron.EntryID),
		running: make(map[string]bool),
		cron: cron.New(cron.WithParser(cron.NewParser(
			cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
		))),
		handler: handler,
		timeout: timeout,
		logger:  logger.With("component", "scheduler"),
		ctx:     ctx,
		cancel:  cancel,
	}
	for i := range cfg.Jobs {
		job := cfg.Jobs[i]
		if err := s.Add(&job); err != nil {
			cancel()
			return nil, err
		}
	}
	return s, nil
}

// SetAnnounceHandler registers where announce-enabled jobs report.
func (s *Scheduler) SetAnnounceHandler(h AnnounceHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.announce = h
}

// Add registers a job. Natural-language schedules are translated first.
func (s *Scheduler) Add(job *Job) error {
	if job.ID == "" {
		return fmt.Errorf("job ID is required")
	}
	if strings.TrimSpace(job.Command) == "" {
		return fmt.Errorf("job %q: command is required", job.ID)
	}
	if job.Schedule == "" {
		return fmt.Errorf("job %q: schedule is required", job.ID)
	}
	if parsed, ok := ParseNaturalLanguage(job.Schedule); ok {
		job.Schedule, job.Type = parsed.Schedule, parsed.Type
	}
	if job.Type == "" {
		job.Type = TypeCron
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("job %q already exists", job.ID)
	}

	switch job.Type {
	case TypeAt:
		if _, err := parseOneShotTime(job.Schedule, time.Now()); err != nil {
			return fmt.Errorf("job %q: %w", job.ID, err)
		}
		if s.started && job.Enabled {
			s.startOneShot(job)
		}
	case TypeCron, TypeEvery:
		if job.Enabled {
			if err := s.scheduleCron(job); err != nil {
				return fmt.Errorf("job %q: invalid schedule %q: %w", job.ID, job.Schedule, err)
			}
		}
	default:
		return fmt.Errorf("job %q: unknown type %q", job.ID, job.Type)
	}

	s.jobs[job.ID] = job
	s.logger.Info("job added", "id", job.ID, "schedule", job.Schedule, "type", job.Type, "enabled", job.Enabled)
	return nil
}

// Remove deletes a job.
func (s *Scheduler) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[id]; !exists {
		return fmt.Errorf("%w: %q", ErrJobNotFound, id)
	}
	if entryID, ok := s.cronIDs[id]; ok {
		s.cron.Remove(entryID)
		delete(s.cronIDs, id)
	}
	delete(s.jobs, id)
	s.logger.Info("job removed", "id", id)
	return nil
}

// List returns copies of all jobs ordered by ID.
func (s *Scheduler) List() []Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, *j)
	}
	slices.SortFunc(out, func(a, b Job) int { return strings.Compare(a.ID, b.ID) })
	return out
}

// Get returns a copy of a job.
func (s *Scheduler) Get(id string) (Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *j, true
}

// Start starts firing jobs. Runs stop when ctx is cancelled or Stop is
// called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.cancel()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.started = true
	for _, job := range s.jobs {
		if job.Type == TypeAt && job.Enabled {
			s.startOneShot(job)
		}
	}
	count := len(s.jobs)
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", count, "cron_entries", len(s.cron.Entries()))
	return nil
}

// Stop stops the cron runner and waits up to 10 seconds for running jobs.
func (s *Scheduler) Stop() {
	stopped := s.cron.Stop()
	select {
	case <-stopped.Done():
	case <-time.After(10 * time.Second):
		s.logger.Warn("scheduler stop timed out")
	}
	s.mu.Lock()
	s.cancel()
	s.mu.Unlock()
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

// RunNow runs a job immediately and waits for it.
func (s *Scheduler) RunNow(id string) error {
	s.mu.RLock()
	job, ok := s.jobs[id]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrJobNotFound, id)
	}
	s.execute(job, false)
	return nil
}

// scheduleCron registers a recurring job. Callers hold s.mu.
func (s *Scheduler) scheduleCron(job *Job) error {
	spec := job.Schedule
	if job.Type == TypeEvery && !strings.HasPrefix(spec, "@") {
		spec = "@every " + spec
	}
	entryID, err := s.cron.AddFunc(spec, func() { s.execute(job, true) })
	if err != nil {
		return err
	}
	s.cronIDs[job.ID] = entryID
	return nil
}

// startOneShot waits for an "at" job's time, runs it once and removes it.
// Callers hold s.mu.
func (s *Scheduler) startOneShot(job *Job) {
	target, err := parseOneShotTime(job.Schedule, time.Now())
	if err != nil {
		s.logger.Warn("invalid one-shot time", "id", job.ID, "time", job.Schedule, "error", err)
		return
	}
	ctx := s.ctx
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if delay := time.Until(target); delay > 0 {
			s.logger.Info("one-shot job scheduled", "id", job.ID, "fires_at", target.Format(time.RFC3339))
			timer := time.NewTimer(delay)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-ctx.Done():
				return
			}
		}
		if _, ok := s.Get(job.ID); !ok {
			return
		}
		s.execute(job, false)
		_ = s.Remove(job.ID)
	}()
}

// execute runs one job with a per-job running guard, panic recovery and a
// timeout, then announces the reply when the job asks for it.
func (s *Scheduler) execute(job *Job, stagger bool) {
	s.mu.Lock()
	if s.running[job.ID] {
		s.mu.Unlock()
		s.logger.Warn("skipping job, already running", "id", job.ID)
		return
	}
	if job.LastRunAt != nil && time.Since(*job.LastRunAt) < minJobInterval {
		s.mu.Unlock()
		s.logger.Debug("skipping job, ran too recently", "id", job.ID)
		return
	}
	s.running[job.ID] = true
	ctx := s.ctx
	announce := s.announce
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.running, job.ID)
		if r := recover(); r != nil {
			job.LastError = fmt.Sprintf("panic: %v", r)
			s.logger.Error("scheduled job panicked", "id", job.ID, "panic", r)
		}
		s.mu.Unlock()
	}()

	if d := staggerDelay(job); stagger && d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return
		}
	}

	s.mu.Lock()
	now := time.Now()
	job.LastRunAt = &now
	job.RunCount++
	s.mu.Unlock()

	if s.handler == nil {
		s.mu.Lock()
		job.LastError = "no handler configured"
		s.mu.Unlock()
		return
	}

	timeout := s.timeout
	if job.TimeoutSeconds > 0 {
		timeout = time.Duration(job.TimeoutSeconds) * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	s.logger.Info("running scheduled job", "id", job.ID, "command", job.Command)
	reply, err := s.handler(runCtx, job)
	elapsed := time.Since(now)

	s.mu.Lock()
	job.LastRunDuration = elapsed
	job.LastError = ""
	if err != nil {
		job.LastError = err.Error()
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("scheduled job failed", "id", job.ID, "error", err, "duration", elapsed)
		reply = fmt.Sprintf("Scheduled job %q failed: %v", job.ID, err)
	} else {
		s.logger.Info("scheduled job completed", "id", job.ID, "duration", elapsed)
	}

	if job.Announce && job.Channel != "" && job.ChatID != "" && announce != nil && reply != "" {
		if aerr := announce(job.Channel, job.ChatID, reply); aerr != nil {
			s.logger.Error("announce failed", "id", job.ID, "channel", job.Channel, "error", aerr)
		}
	}
}

// staggerDelay spreads top-of-hour jobs over five minutes by a stable
// offset derived from the job ID.
func staggerDelay(job *Job) time.Duration {
	switch {
	case job.Exact || job.Type == TypeAt:
		return 0
	case job.StaggerMs > 0:
		return time.Duration(job.StaggerMs) * time.Millisecond
	case !topOfHour(job.Schedule):
		return 0
	}
	sum := sha256.Sum256([]byte(job.ID))
	window := (5 * time.Minute).Milliseconds()
	return time.Duration(int64(binary.BigEndian.Uint32(sum[:4]))%window) * time.Millisecond
}

func topOfHour(schedule string) bool {
	s := strings.ToLower(strings.TrimSpace(schedule))
	switch s {
	case "@hourly", "@daily", "@midnight", "@weekly", "@monthly", "@yearly", "@annually":
		return true
	}
	fields := strings.Fields(s)
	return len(fields) == 5 && fields[0] == "0"
}

// parseOneShotTime accepts a delay ("30m"), Unix seconds, RFC 3339,
// "2006-01-02 15:04" or "15:04" (today, else tomorrow).
func parseOneShotTime(value string, now time.Time) (time.Time, error) {
	value = strings.TrimSpace(value)
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return now.Add(d), nil
	}
	var epoch int64
	if len(value) >= 10 && strings.Trim(value, "0123456789") == "" {
		if _, err := fmt.Sscanf(value, "%d", &epoch); err == nil {
			return time.Unix(epoch, 0), nil
		}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04"} {
		if t, err := time.ParseInLocation(layout, value, now.Location()); err == nil {
			return t, nil
		}
	}
	if t, err := time.Parse("15:04", value); err == nil {
		target := time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), 0, 0, now.Location())
		if target.Before(now) {
			target = target.Add(24 * time.Hour)
		}
		return target, nil
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", value)
}
