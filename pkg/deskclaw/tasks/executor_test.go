package tasks

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

func closeExec(t *testing.T, e *Executor) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func waitResult(t *testing.T, p *Pending) Result {
	t.Helper()
	select {
	case r := <-p.Done():
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for task result")
		return Result{}
	}
}

func TestSubmitDeliversOnce(t *testing.T) {
	e := New(Config{Workers: 2}, nil)
	defer closeExec(t, e)

	var (
		mu    sync.Mutex
		calls []string
	)
	p, err := e.Submit("collect-photos", "collect photos", func(context.Context) (string, error) {
		return "Done!", nil
	}, func(text string) {
		mu.Lock()
		calls = append(calls, text)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !strings.HasPrefix(p.ID, "collect-photos-") {
		t.Errorf("ID = %q, want collect-photos- prefix", p.ID)
	}

	r := waitResult(t, p)
	if r.Text != "Done!" || r.Err != nil || r.TaskID != p.ID {
		t.Errorf("result = %+v", r)
	}
	if _, open := <-p.Done(); open {
		t.Error("Done channel yielded a second value")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(calls) != 1 || calls[0] != "Done!" {
		t.Errorf("sink calls = %q, want one \"Done!\"", calls)
	}
}

func TestStatusTransitions(t *testing.T) {
	e := New(Config{Workers: 1}, nil)
	defer closeExec(t, e)

	release := make(chan struct{})
	p, err := e.Submit("search-x", "search", func(context.Context) (string, error) {
		<-release
		return "", errors.New("disk gone")
	}, nil)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	// A reader other than the submitter sees the running state.
	got := make(chan Record, 1)
	go func() {
		rec, _ := e.Status(p.ID)
		got <- rec
	}()
	if rec := <-got; rec.Status != StatusRunning {
		t.Fatalf("status = %s, want running", rec.Status)
	}

	close(release)
	r := waitResult(t, p)
	if r.Err == nil {
		t.Fatal("expected error result")
	}
	rec, ok := e.Status(p.ID)
	if !ok || rec.Status != StatusError || rec.Result != "disk gone" {
		t.Errorf("final record = %+v", rec)
	}
	if rec.FinishedAt.IsZero() {
		t.Error("FinishedAt not set")
	}
}

func TestDuplicateKeyRejected(t *testing.T) {
	e := New(Config{Workers: 2}, nil)
	defer closeExec(t, e)

	release := make(chan struct{})
	first, err := e.Submit("collect-photos", "collect photos", func(context.Context) (string, error) {
		<-release
		return "ok", nil
	}, nil)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	_, err = e.Submit("collect-photos", "collect photos", func(context.Context) (string, error) {
		return "second", nil
	}, nil)
	if !errors.Is(err, ErrDuplicateTask) {
		t.Fatalf("second Submit err = %v, want ErrDuplicateTask", err)
	}
	if rec, ok := e.Running("collect-photos"); !ok || rec.ID != first.ID {
		t.Errorf("Running = %+v, %v; want %s", rec, ok, first.ID)
	}

	close(release)
	waitResult(t, first)

	again, err := e.Submit("collect-photos", "collect photos", func(context.Context) (string, error) {
		return "again", nil
	}, nil)
	if err != nil {
		t.Fatalf("Submit after completion: %v", err)
	}
	waitResult(t, again)
	if again.ID == first.ID {
		t.Error("task id reused")
	}
}

func TestIDSuffixWithinSameMillisecond(t *testing.T) {
	e := New(Config{Workers: 1}, nil)
	defer closeExec(t, e)
	fixed := time.UnixMilli(1700000000000)
	e.mu.Lock()
	e.now = func() time.Time { return fixed }
	e.mu.Unlock()

	var ids []string
	for i := 0; i < 3; i++ {
		p, err := e.Submit("search-a", "search", func(context.Context) (string, error) { return "", nil }, nil)
		if err != nil {
			t.Fatalf("Submit: %v", err)
		}
		waitResult(t, p)
		ids = append(ids, p.ID)
	}
	want := []string{"search-a-1700000000000", "search-a-1700000000000-2", "search-a-1700000000000-3"}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("ids[%d] = %q, want %q", i, ids[i], want[i])
		}
	}
}

func TestQueueFull(t *testing.T) {
	e := New(Config{Workers: 1, QueueSize: 1}, nil)
	defer closeExec(t, e)

	started := make(chan struct{}, 1)
	release := make(chan struct{})
	block := func(context.Context) (string, error) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		return "", nil
	}

	p1, err := e.Submit("k1", "", block, nil)
	if err != nil {
		t.Fatal(err)
	}
	<-started
	p2, err := e.Submit("k2", "", block, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.Submit("k3", "", block, nil); !errors.Is(err, ErrQueueFull) {
		t.Errorf("third Submit err = %v, want ErrQueueFull", err)
	}
	if _, ok := e.Running("k3"); ok {
		t.Error("rejected task left in running set")
	}

	close(release)
	waitResult(t, p1)
	waitResult(t, p2)
}

func TestPanicRecordedAsError(t *testing.T) {
	e := New(Config{}, nil)
	defer closeExec(t, e)

	p, err := e.Submit("boom", "", func(context.Context) (string, error) {
		panic("kaboom")
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	r := waitResult(t, p)
	if r.Err == nil || !strings.Contains(r.Err.Error(), "kaboom") {
		t.Errorf("result err = %v", r.Err)
	}
	if rec, _ := e.Status(p.ID); rec.Status != StatusError {
		t.Errorf("status = %s, want error", rec.Status)
	}
}

func TestListKeepsInsertionOrder(t *testing.T) {
	e := New(Config{Workers: 1}, nil)
	defer closeExec(t, e)

	if got := e.Summary(); got != "No tasks running." {
		t.Errorf("empty Summary = %q", got)
	}

	keys := []string{"collect-videos", "collect-music", "search-report"}
	for _, k := range keys {
		p, err := e.Submit(k, k, func(context.Context) (string, error) { return "ok", nil }, nil)
		if err != nil {
			t.Fatal(err)
		}
		waitResult(t, p)
	}

	list := e.List()
	if len(list) != len(keys) {
		t.Fatalf("List len = %d, want %d", len(list), len(keys))
	}
	for i, k := range keys {
		if list[i].Key != k || list[i].Status != StatusDone {
			t.Errorf("list[%d] = %+v, want key %s done", i, list[i], k)
		}
	}
	if s := e.Summary(); !strings.HasPrefix(s, "Tasks:\n  collect-videos-") {
		t.Errorf("Summary = %q", s)
	}
}

func TestObserverSeesTransitions(t *testing.T) {
	e := New(Config{}, nil)
	defer closeExec(t, e)

	var (
		mu   sync.Mutex
		seen []Status
	)
	e.SetObserver(func(r Record) {
		mu.Lock()
		seen = append(seen, r.Status)
		mu.Unlock()
	})
	release := make(chan struct{})
	p, err := e.Submit("k", "", func(context.Context) (string, error) {
		<-release
		return "ok", nil
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	close(release)
	waitResult(t, p)

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 || seen[0] != StatusRunning || seen[1] != StatusDone {
		t.Errorf("observer saw %v, want [running done]", seen)
	}
}

func TestSubmitAfterClose(t *testing.T) {
	e := New(Config{}, nil)
	closeExec(t, e)
	if _, err := e.Submit("k", "", func(context.Context) (string, error) { return "", nil }, nil); !errors.Is(err, ErrClosed) {
		t.Errorf("Submit after Close err = %v, want ErrClosed", err)
	}
	if err := e.Close(context.Background()); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestSinkReceivesErrorText(t *testing.T) {
	e := New(Config{}, nil)
	defer closeExec(t, e)

	got := make(chan string, 1)
	p, err := e.Submit("k", "", func(context.Context) (string, error) {
		return "", errors.New("no roots")
	}, func(text string) { got <- text })
	if err != nil {
		t.Fatal(err)
	}
	waitResult(t, p)
	if text := <-got; text != "Error: no roots" {
		t.Errorf("sink text = %q", text)
	}
}
