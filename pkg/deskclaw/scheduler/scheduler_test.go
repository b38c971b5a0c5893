package scheduler

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type announcement struct {
	channel, chatID, text string
}

type recorder struct {
	mu  sync.Mutex
	got []announcement
}

func (r *recorder) announce(channel, chatID, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, announcement{channel, chatID, text})
	return nil
}

func (r *recorder) all() []announcement {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]announcement(nil), r.got...)
}

func TestNewValidatesJobs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		job     Job
		wantErr string
	}{
		{"missing id", Job{Schedule: "@daily", Command: "x"}, "ID is required"},
		{"missing command", Job{ID: "a", Schedule: "@daily"}, "command is required"},
		{"missing schedule", Job{ID: "a", Command: "x"}, "schedule is required"},
		{"bad cron", Job{ID: "a", Schedule: "every blue moon", Command: "x", Enabled: true}, "invalid schedule"},
		{"bad type", Job{ID: "a", Schedule: "@daily", Type: "sometimes", Command: "x"}, "unknown type"},
		{"bad at", Job{ID: "a", Schedule: "tomorrowish", Type: TypeAt, Command: "x"}, "unrecognized time"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := New(Config{Jobs: []Job{tt.job}}, nil, nil)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("New = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestAddTranslatesPhrases(t *testing.T) {
	t.Parallel()

	s, err := New(Config{Jobs: []Job{
		{ID: "shot", Schedule: "every 30 minutes", Command: "take a screenshot", Enabled: true},
		{ID: "lock", Schedule: "daily at 11pm", Command: "lock screen", Enabled: true},
	}}, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Stop()

	jobs := s.List()
	if len(jobs) != 2 || jobs[0].ID != "lock" {
		t.Fatalf("List = %+v", jobs)
	}
	if jobs[0].Schedule != "0 23 * * *" || jobs[0].Type != TypeCron {
		t.Errorf("lock = %q/%q", jobs[0].Schedule, jobs[0].Type)
	}
	if jobs[1].Schedule != "@every 30m" || jobs[1].Type != TypeEvery {
		t.Errorf("shot = %q/%q", jobs[1].Schedule, jobs[1].Type)
	}
	if err := s.Add(&Job{ID: "lock", Schedule: "@daily", Command: "x"}); err == nil {
		t.Error("duplicate Add succeeded")
	}
}

func TestRunNowAnnounces(t *testing.T) {
	t.Parallel()

	var rec recorder
	handler := func(_ context.Context, job *Job) (string, error) {
		if job.ID == "broken" {
			return "", errors.New("boom")
		}
		return "ran " + job.Command, nil
	}
	s, err := New(Config{Jobs: []Job{
		{ID: "ok", Schedule: "@hourly", Command: "list running apps", Channel: "telegram", ChatID: "7", Announce: true},
		{ID: "broken", Schedule: "@hourly", Command: "x", Channel: "telegram", ChatID: "7", Announce: true},
		{ID: "quiet", Schedule: "@hourly", Command: "y"},
	}}, handler, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Stop()
	s.SetAnnounceHandler(rec.announce)

	for _, id := range []string{"ok", "broken", "quiet"} {
		if err := s.RunNow(id); err != nil {
			t.Fatalf("RunNow(%s): %v", id, err)
		}
	}
	if err := s.RunNow("missing"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("RunNow(missing) = %v, want ErrJobNotFound", err)
	}

	got := rec.all()
	if len(got) != 2 {
		t.Fatalf("announcements = %+v", got)
	}
	if got[0].text != "ran list running apps" || got[0].channel != "telegram" || got[0].chatID != "7" {
		t.Errorf("first = %+v", got[0])
	}
	if !strings.Contains(got[1].text, "boom") {
		t.Errorf("failure announcement = %q", got[1].text)
	}

	job, _ := s.Get("broken")
	if job.RunCount != 1 || job.LastError != "boom" {
		t.Errorf("broken job state = %+v", job)
	}

	// A second run inside the spin guard window is skipped.
	_ = s.RunNow("ok")
	if job, _ := s.Get("ok"); job.RunCount != 1 {
		t.Errorf("RunCount = %d after guarded rerun, want 1", job.RunCount)
	}
}

func TestRunNowRecoversPanics(t *testing.T) {
	t.Parallel()

	s, err := New(Config{Jobs: []Job{{ID: "p", Schedule: "@daily", Command: "x"}}},
		func(context.Context, *Job) (string, error) { panic("kaboom") }, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Stop()

	if err := s.RunNow("p"); err != nil {
		t.Fatalf("RunNow: %v", err)
	}
	if job, _ := s.Get("p"); !strings.Contains(job.LastError, "kaboom") {
		t.Errorf("LastError = %q", job.LastError)
	}
}

func TestOneShotFiresOnceAndIsRemoved(t *testing.T) {
	t.Parallel()

	fired := make(chan string, 1)
	s, err := New(Config{Jobs: []Job{
		{ID: "soon", Type: TypeAt, Schedule: "50ms", Command: "lock screen", Enabled: true},
	}}, func(_ context.Context, job *Job) (string, error) {
		fired <- job.Command
		return "", nil
	}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	select {
	case cmd := <-fired:
		if cmd != "lock screen" {
			t.Errorf("fired %q", cmd)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("one-shot job did not fire")
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, ok := s.Get("soon"); !ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("one-shot job was not removed")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestStaggerDelay(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		job  Job
		zero bool
	}{
		{"top of hour", Job{ID: "a", Schedule: "0 * * * *"}, false},
		{"descriptor", Job{ID: "a", Schedule: "@daily"}, false},
		{"exact", Job{ID: "a", Schedule: "@daily", Exact: true}, true},
		{"mid hour", Job{ID: "a", Schedule: "15 * * * *"}, true},
		{"interval", Job{ID: "a", Schedule: "@every 5m", Type: TypeEvery}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := staggerDelay(&tt.job)
			if (d == 0) != tt.zero || d >= 5*time.Minute {
				t.Errorf("staggerDelay = %v", d)
			}
			if d != staggerDelay(&tt.job) {
				t.Error("staggerDelay is not stable")
			}
		})
	}
	if got := staggerDelay(&Job{StaggerMs: 1500}); got != 1500*time.Millisecond {
		t.Errorf("explicit stagger = %v", got)
	}
}

func TestParseOneShotTime(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	tests := []struct {
		in   string
		want time.Time
	}{
		{"30m", now.Add(30 * time.Minute)},
		{"15:30", time.Date(2026, 3, 10, 15, 30, 0, 0, time.UTC)},
		{"09:00", time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC)},
		{"2026-04-01 08:15", time.Date(2026, 4, 1, 8, 15, 0, 0, time.UTC)},
		{"1773151200", time.Unix(1773151200, 0)},
	}
	for _, tt := range tests {
		got, err := parseOneShotTime(tt.in, now)
		if err != nil || !got.Equal(tt.want) {
			t.Errorf("parseOneShotTime(%q) = %v, %v; want %v", tt.in, got, err, tt.want)
		}
	}
}
