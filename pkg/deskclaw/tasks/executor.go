// Package tasks runs long-running actions on a small worker pool and keeps
// an insertion-ordered registry of every task submitted during the process
// lifetime.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/elliotchance/orderedmap/v3"
)

var (
	// ErrDuplicateTask is returned when a task with the same key is running.
	ErrDuplicateTask = errors.New("task already running")

	// ErrQueueFull is returned when the submission queue has no room.
	ErrQueueFull = errors.New("task queue is full")

	// ErrClosed is returned by Submit after Close.
	ErrClosed = errors.New("executor closed")
)

// Status is the lifecycle state of a task. It only moves forward:
// running to done or running to error.
type Status string

const (
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusError   Status = "error"
)

// Record is a snapshot of one task.
type Record struct {
	ID          string    `json:"id"`
	Key         string    `json:"key"`
	Description string    `json:"description"`
	Status      Status    `json:"status"`
	Result      string    `json:"result,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at,omitzero"`
}

// Result is the outcome delivered once per task.
type Result struct {
	TaskID string
	Text   string
	Err    error
}

// Work is the body of a task. The context is never canceled by the
// executor; tasks run to completion.
type Work func(ctx context.Context) (string, error)

// Sink receives the user-facing result text of a task.
type Sink func(text string)

// Pending is the handle returned by Submit.
type Pending struct {
	ID   string
	done chan Result
	once sync.Once
	sink Sink
}

// Done yields the task result exactly once, after the sink has returned,
// and is then closed.
func (p *Pending) Done() <-chan Result { return p.done }

func (p *Pending) deliver(r Result, logger *slog.Logger) {
	p.once.Do(func() {
		defer func() {
			p.done <- r
			close(p.done)
		}()
		if p.sink == nil {
			return
		}
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error("result sink panicked", "task", r.TaskID, "panic", rec)
			}
		}()
		text := r.Text
		if r.Err != nil {
			text = "Error: " + r.Err.Error()
		}
		p.sink(text)
	})
}

// Config sizes the pool.
type Config struct {
	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queue_size"`
}

// DefaultConfig returns two workers and a queue of 64.
func DefaultConfig() Config {
	return Config{Workers: 2, QueueSize: 64}
}

type job struct {
	id      string
	key     string
	work    Work
	pending *Pending
}

// Executor owns the worker pool and the task registry.
type Executor struct {
	mu       sync.RWMutex
	registry *orderedmap.OrderedMap[string, *Record]
	running  map[string]string
	closed   bool
	observer func(Record)

	queue  chan job
	wg     sync.WaitGroup
	now    func() time.Time
	logger *slog.Logger
}

// New starts an Executor with cfg.Workers goroutines.
func New(cfg Config, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}

	e := &Executor{
		registry: orderedmap.NewOrderedMap[string, *Record](),
		running:  make(map[string]string),
		queue:    make(chan job, cfg.QueueSize),
		now:      time.Now,
		logger:   logger.With("component", "tasks"),
	}
	for i := 0; i < cfg.Workers; i++ {
		e.wg.Add(1)
		go e.worker()
	}
	e.logger.Info("task executor started", "workers", cfg.Workers, "queue_size", cfg.QueueSize)
	return e
}

// SetObserver registers a callback invoked after every status change.
// It runs on the goroutine that made the change and must not block.
func (e *Executor) SetObserver(fn func(Record)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observer = fn
}

// Submit registers a running task under key and queues work. While a task
// with the same key is running, Submit fails with ErrDuplicateTask. The
// sink, if any, is called once with the result text from a worker.
func (e *Executor) Submit(key, description string, work Work, sink Sink) (*Pending, error) {
	if work == nil {
		return nil, errors.New("nil work")
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, ErrClosed
	}
	if id, ok := e.running[key]; ok {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrDuplicateTask, id)
	}

	id := e.newID(key)
	rec := &Record{
		ID:          id,
		Key:         key,
		Description: description,
		Status:      StatusRunning,
		StartedAt:   e.now(),
	}
	p := &Pending{ID: id, done: make(chan Result, 1), sink: sink}

	select {
	case e.queue <- job{id: id, key: key, work: work, pending: p}:
	default:
		e.mu.Unlock()
		e.logger.Warn("task queue full", "key", key)
		return nil, ErrQueueFull
	}
	e.registry.Set(id, rec)
	e.running[key] = id
	snap, obs := *rec, e.observer
	e.mu.Unlock()

	e.logger.Info("task submitted", "id", id, "description", description)
	if obs != nil {
		obs(snap)
	}
	return p, nil
}

// newID returns <key>-<unix-millis>, adding a numeric suffix if that id is
// taken. Callers hold e.mu.
func (e *Executor) newID(key string) string {
	base := key + "-" + strconv.FormatInt(e.now().UnixMilli(), 10)
	id := base
	for n := 2; ; n++ {
		if _, taken := e.registry.Get(id); !taken {
			return id
		}
		id = base + "-" + strconv.Itoa(n)
	}
}

func (e *Executor) worker() {
	defer e.wg.Done()
	for j := range e.queue {
		e.run(j)
	}
}

func (e *Executor) run(j job) {
	start := e.now()
	text, err := e.safeCall(j)

	status := StatusDone
	if err != nil {
		status = StatusError
	}

	e.mu.Lock()
	rec, ok := e.registry.Get(j.id)
	var snap Record
	if ok {
		rec.Status = status
		rec.FinishedAt = e.now()
		if err != nil {
			rec.Result = err.Error()
		} else {
			rec.Result = text
		}
		snap = *rec
	}
	if e.running[j.key] == j.id {
		delete(e.running, j.key)
	}
	obs := e.observer
	e.mu.Unlock()

	e.logger.Info("task finished",
		"id", j.id,
		"status", status,
		"duration_ms", e.now().Sub(start).Milliseconds(),
	)
	if ok && obs != nil {
		obs(snap)
	}
	j.pending.deliver(Result{TaskID: j.id, Text: text, Err: err}, e.logger)
}

func (e *Executor) safeCall(j job) (text string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			e.logger.Error("task panicked", "id", j.id, "panic", rec)
			err = fmt.Errorf("task panicked: %v", rec)
		}
	}()
	return j.work(context.Background())
}

// Status returns a snapshot of one task.
func (e *Executor) Status(id string) (Record, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	rec, ok := e.registry.Get(id)
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// Running returns the running task registered under key, if any.
func (e *Executor) Running(key string) (Record, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	id, ok := e.running[key]
	if !ok {
		return Record{}, false
	}
	rec, ok := e.registry.Get(id)
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// List returns snapshots of every task, oldest first.
func (e *Executor) List() []Record {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Record, 0, e.registry.Len())
	for el := e.registry.Front(); el != nil; el = el.Next() {
		out = append(out, *el.Value)
	}
	return out
}

// Summary renders the registry as a chat reply.
func (e *Executor) Summary() string {
	recs := e.List()
	if len(recs) == 0 {
		return "No tasks running."
	}
	var sb strings.Builder
	sb.WriteString("Tasks:\n")
	for _, r := range recs {
		fmt.Fprintf(&sb, "  %s: %s\n", r.ID, r.Status)
	}
	return sb.String()
}

// Close stops accepting work and waits for queued and running tasks, or
// until ctx is done. Running work is not interrupted.
func (e *Executor) Close(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	close(e.queue)
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		e.logger.Info("task executor stopped")
		return nil
	case <-ctx.Done():
		e.logger.Warn("task executor stop timed out")
		return ctx.Err()
	}
}
