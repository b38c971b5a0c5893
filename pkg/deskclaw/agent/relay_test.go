package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jholhewres/deskclaw/pkg/deskclaw/channels"
	"github.com/jholhewres/deskclaw/pkg/deskclaw/scheduler"
)

type sent struct {
	channel, to string
	msg         channels.OutgoingMessage
}

type fakeRelayer struct {
	in chan *channels.IncomingMessage

	mu   sync.Mutex
	out  []sent
	seen chan struct{}
}

func newFakeRelayer() *fakeRelayer {
	return &fakeRelayer{
		in:   make(chan *channels.IncomingMessage, 8),
		seen: make(chan struct{}, 8),
	}
}

func (f *fakeRelayer) Messages() <-chan *channels.IncomingMessage { return f.in }

func (f *fakeRelayer) Send(_ context.Context, channel, to string, msg *channels.OutgoingMessage) error {
	f.mu.Lock()
	f.out = append(f.out, sent{channel: channel, to: to, msg: *msg})
	f.mu.Unlock()
	f.seen <- struct{}{}
	return nil
}

func (f *fakeRelayer) wait(t *testing.T, n int) []sent {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-f.seen:
		case <-time.After(5 * time.Second):
			t.Fatalf("got %d sends, want %d", i, n)
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sent(nil), f.out...)
}

func TestRelay(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.write(t, "beach.jpg")
	r := newFakeRelayer()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.agent.Relay(ctx, r) }()

	r.in <- &channels.IncomingMessage{ID: "m1", Channel: "telegram", ChatID: "42", Type: channels.MessageText, Content: "lock screen"}
	got := r.wait(t, 1)
	if got[0].channel != "telegram" || got[0].to != "42" || got[0].msg.Content != "Screen locked." || got[0].msg.ReplyTo != "m1" {
		t.Errorf("reply = %+v", got[0])
	}

	r.in <- &channels.IncomingMessage{ID: "m2", Channel: "discord", ChatID: "c9", Type: channels.MessageMedia}
	got = r.wait(t, 1)
	if got[1].msg.Content != mediaReply {
		t.Errorf("media reply = %q", got[1].msg.Content)
	}

	// The acknowledgment and the background report both reach the chat.
	r.in <- &channels.IncomingMessage{ID: "m3", Channel: "discord", ChatID: "c9", Type: channels.MessageText, Content: "get my photos"}
	got = r.wait(t, 2)
	var ack, report bool
	for _, s := range got[2:] {
		ack = ack || (s.msg.ReplyTo == "m3" && strings.HasPrefix(s.msg.Content, "On it!"))
		report = report || (s.msg.ReplyTo == "" && strings.Contains(s.msg.Content, "Copied: 1"))
	}
	if !ack || !report {
		t.Errorf("sends = %+v", got[2:])
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Relay = %v", err)
	}
}

func TestRelayStopsWhenStreamCloses(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	r := newFakeRelayer()
	r.in <- &channels.IncomingMessage{Channel: "telegram", ChatID: "1", Content: "   "}
	close(r.in)

	if err := f.agent.Relay(context.Background(), r); err != nil {
		t.Fatalf("Relay = %v", err)
	}
	if len(r.out) != 0 {
		t.Errorf("blank message answered: %+v", r.out)
	}
}

func TestJobHandler(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.write(t, "clip.mp4")

	announced := make(chan string, 1)
	h := f.agent.JobHandler(func(channel, chatID, message string) error {
		if channel != "telegram" || chatID != "42" {
			return errors.New("wrong destination")
		}
		announced <- message
		return nil
	})

	job := &scheduler.Job{ID: "nightly", Command: "collect all videos", Channel: "telegram", ChatID: "42", Announce: true}
	reply, err := h(context.Background(), job)
	if err != nil || !strings.HasPrefix(reply, "On it!") {
		t.Fatalf("handler = %q, %v", reply, err)
	}
	if got := await(t, announced); !strings.Contains(got, "Copied: 1") {
		t.Errorf("announced = %q", got)
	}

	actions, err := f.agent.Actions(context.Background(), 1)
	if err != nil || len(actions) != 1 || actions[0].Source != "scheduler" {
		t.Errorf("audit = %+v, %v", actions, err)
	}
}
