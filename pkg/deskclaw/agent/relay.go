package agent

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/jholhewres/deskclaw/pkg/deskclaw/channels"
	"github.com/jholhewres/deskclaw/pkg/deskclaw/dispatch"
)

// asyncSendTimeout bounds delivery of a background result to a chat.
const asyncSendTimeout = 30 * time.Second

const mediaReply = "I can only read text messages. Type a command or say \"help\"."

// Relayer is a source of chat messages that can carry replies back. The
// channels.Manager implements it.
type Relayer interface {
	Messages() <-chan *channels.IncomingMessage
	Send(ctx context.Context, channel, to string, msg *channels.OutgoingMessage) error
}

// Relay answers every message from r until ctx is cancelled or the stream
// closes. Messages are handled concurrently. Background results are sent
// to the chat the command came from.
func (a *Agent) Relay(ctx context.Context, r Relayer) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-r.Messages():
			if !ok {
				return nil
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				a.relayOne(ctx, r, msg)
			}()
		}
	}
}

func (a *Agent) relayOne(ctx context.Context, r Relayer, msg *channels.IncomingMessage) {
	logger := a.logger.With("channel", msg.Channel, "chat", msg.ChatID)

	var reply string
	switch {
	case msg.Type == channels.MessageMedia && strings.TrimSpace(msg.Content) == "":
		reply = mediaReply
	case strings.TrimSpace(msg.Content) == "":
		return
	default:
		logger.Debug("message received", "from", msg.FromName)
		sink := func(text string) {
			sctx, cancel := context.WithTimeout(context.Background(), asyncSendTimeout)
			defer cancel()
			if err := r.Send(sctx, msg.Channel, msg.ChatID, &channels.OutgoingMessage{Content: text}); err != nil {
				logger.Warn("async result not delivered", "error", err)
			}
		}
		reply = a.HandleMessage(dispatch.WithSource(ctx, msg.Channel), msg.Content, sink)
	}

	out := &channels.OutgoingMessage{Content: reply, ReplyTo: msg.ID}
	if err := r.Send(context.WithoutCancel(ctx), msg.Channel, msg.ChatID, out); err != nil {
		logger.Warn("reply not delivered", "error", err)
	}
}
