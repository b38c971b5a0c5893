// Package telegram relays DeskClaw conversations over the Telegram Bot API,
// using long polling over plain HTTP.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jholhewres/deskclaw/pkg/deskclaw/channels"
)

// maxMessageLen is Telegram's per-message character limit.
const maxMessageLen = 4096

// Config holds Telegram channel configuration.
type Config struct {
	// Token is the Bot API token from @BotFather. The channel starts only
	// when it is set.
	Token string `yaml:"token"`

	// AllowedChats restricts which chat IDs the bot answers. Empty means
	// all chats.
	AllowedChats []int64 `yaml:"allowed_chats"`

	// RespondToGroups enables answering in group chats.
	RespondToGroups bool `yaml:"respond_to_groups"`

	// ParseMode is passed to sendMessage ("", "HTML" or "MarkdownV2").
	ParseMode string `yaml:"parse_mode"`

	// APIURL overrides https://api.telegram.org.
	APIURL string `yaml:"api_url"`
}

// DefaultConfig answers direct messages only, as plain text.
func DefaultConfig() Config {
	return Config{}
}

// Telegram implements channels.Channel.
type Telegram struct {
	cfg     Config
	logger  *slog.Logger
	client  *http.Client
	baseURL string

	messages   chan *channels.IncomingMessage
	connected  atomic.Bool
	lastMsg    atomic.Value // time.Time
	errorCount atomic.Int64
	offset     int64

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Telegram channel.
func New(cfg Config, logger *slog.Logger) *Telegram {
	if logger == nil {
		logger = slog.Default()
	}
	api := strings.TrimRight(cfg.APIURL, "/")
	if api == "" {
		api = "https://api.telegram.org"
	}
	return &Telegram{
		cfg:      cfg,
		logger:   logger.With("component", "telegram"),
		client:   &http.Client{Timeout: 60 * time.Second},
		baseURL:  api + "/bot" + cfg.Token,
		messages: make(chan *channels.IncomingMessage, 256),
	}
}

// Name returns "telegram".
func (t *Telegram) Name() string { return "telegram" }

// Connect verifies the token and starts the polling loop.
func (t *Telegram) Connect(ctx context.Context) error {
	if t.cfg.Token == "" {
		return fmt.Errorf("telegram: bot token is required")
	}
	if t.connected.Load() {
		return nil
	}

	t.ctx, t.cancel = context.WithCancel(ctx)
	me, err := t.getMe()
	if err != nil {
		t.cancel()
		return fmt.Errorf("telegram: failed to verify token: %w", err)
	}
	t.logger.Info("telegram connected", "bot", me.Username, "id", me.ID)
	t.connected.Store(true)

	t.done = make(chan struct{})
	go t.pollLoop()
	return nil
}

// Disconnect stops polling and waits for the loop to exit.
func (t *Telegram) Disconnect() error {
	t.connected.Store(false)
	if t.cancel != nil {
		t.cancel()
	}
	if t.done != nil {
		<-t.done
	}
	t.logger.Info("telegram disconnected")
	return nil
}

// Send sends text to a chat, split into chunks of the platform limit.
func (t *Telegram) Send(ctx context.Context, to string, message *channels.OutgoingMessage) error {
	if !t.connected.Load() {
		return channels.ErrChannelDisconnected
	}
	chatID, err := strconv.ParseInt(to, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: invalid chat ID %q: %w", to, err)
	}

	for i, chunk := range channels.SplitMessage(message.Content, maxMessageLen) {
		payload := map[string]any{"chat_id": chatID, "text": chunk}
		if t.cfg.ParseMode != "" {
			payload["parse_mode"] = t.cfg.ParseMode
		}
		if i == 0 && message.ReplyTo != "" {
			if id, err := strconv.ParseInt(message.ReplyTo, 10, 64); err == nil {
				payload["reply_parameters"] = map[string]any{"message_id": id}
			}
		}
		if _, err := t.apiCall(ctx, "sendMessage", payload); err != nil {
			t.errorCount.Add(1)
			return err
		}
	}
	return nil
}

// SendTyping shows "typing..." in a chat.
func (t *Telegram) SendTyping(ctx context.Context, to string) error {
	chatID, err := strconv.ParseInt(to, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: invalid chat ID %q: %w", to, err)
	}
	_, err = t.apiCall(ctx, "sendChatAction", map[string]any{"chat_id": chatID, "action": "typing"})
	return err
}

// Receive returns the incoming message stream.
func (t *Telegram) Receive() <-chan *channels.IncomingMessage { return t.messages }

// IsConnected reports whether polling is active.
func (t *Telegram) IsConnected() bool { return t.connected.Load() }

// Health returns the channel health.
func (t *Telegram) Health() channels.HealthStatus {
	var last time.Time
	if v := t.lastMsg.Load(); v != nil {
		last = v.(time.Time)
	}
	return channels.HealthStatus{
		Connected:     t.connected.Load(),
		LastMessageAt: last,
		ErrorCount:    int(t.errorCount.Load()),
	}
}

// pollLoop runs getUpdates long polling with exponential backoff on
// errors.
func (t *Telegram) pollLoop() {
	defer close(t.done)
	backoff := time.Second

	for {
		if t.ctx.Err() != nil {
			return
		}

		updates, err := t.getUpdates(t.offset, 100, 30)
		if err != nil {
			if t.ctx.Err() != nil {
				return
			}
			t.errorCount.Add(1)
			t.logger.Warn("getUpdates failed", "error", err, "backoff", backoff)
			select {
			case <-t.ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}

		backoff = time.Second
		for _, u := range updates {
			if u.UpdateID >= t.offset {
				t.offset = u.UpdateID + 1
			}
			t.processUpdate(u)
		}
	}
}

// processUpdate filters an update and forwards its message.
func (t *Telegram) processUpdate(u tgUpdate) {
	msg := u.Message
	if msg == nil {
		return
	}
	isGroup := msg.Chat.Type == "group" || msg.Chat.Type == "supergroup"
	if len(t.cfg.AllowedChats) > 0 && !slices.Contains(t.cfg.AllowedChats, msg.Chat.ID) {
		t.logger.Debug("message ignored", "chat_id", msg.Chat.ID)
		return
	}
	if isGroup && !t.cfg.RespondToGroups {
		return
	}

	incoming := &channels.IncomingMessage{
		ID:        strconv.Itoa(msg.MessageID),
		Channel:   "telegram",
		ChatID:    strconv.FormatInt(msg.Chat.ID, 10),
		IsGroup:   isGroup,
		Type:      channels.MessageText,
		Content:   msg.Text,
		Timestamp: time.Unix(msg.Date, 0),
	}
	if msg.From != nil {
		incoming.From = strconv.FormatInt(msg.From.ID, 10)
		incoming.FromName = strings.TrimSpace(msg.From.FirstName + " " + msg.From.LastName)
		if incoming.FromName == "" {
			incoming.FromName = msg.From.Username
		}
	}
	if msg.Text == "" {
		incoming.Type = channels.MessageMedia
		incoming.Content = msg.Caption
	}

	t.lastMsg.Store(time.Now())
	select {
	case t.messages <- incoming:
	case <-t.ctx.Done():
	}
}

// ---------- Bot API ----------

type tgUpdate struct {
	UpdateID int64      `json:"update_id"`
	Message  *tgMessage `json:"message"`
}

type tgMessage struct {
	MessageID int     `json:"message_id"`
	From      *tgUser `json:"from"`
	Chat      tgChat  `json:"chat"`
	Date      int64   `json:"date"`
	Text      string  `json:"text"`
	Caption   string  `json:"caption"`
}

type tgUser struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
}

type tgChat struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

// apiCall POSTs a JSON payload to a Bot API method.
func (t *Telegram) apiCall(ctx context.Context, method string, payload map[string]any) (json.RawMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("telegram: marshal %s: %w", method, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/"+method, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("telegram: creating request for %s: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("telegram: %s request failed: %w", method, err)
	}
	defer resp.Body.Close()

	var result struct {
		OK          bool            `json:"ok"`
		Description string          `json:"description"`
		Result      json.RawMessage `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("telegram: decoding %s response: %w", method, err)
	}
	if !result.OK {
		return nil, fmt.Errorf("telegram: %s: %s", method, result.Description)
	}
	return result.Result, nil
}

func (t *Telegram) getMe() (*tgUser, error) {
	data, err := t.apiCall(t.ctx, "getMe", map[string]any{})
	if err != nil {
		return nil, err
	}
	var user tgUser
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, fmt.Errorf("telegram: parsing getMe: %w", err)
	}
	return &user, nil
}

func (t *Telegram) getUpdates(offset int64, limit, timeoutSecs int) ([]tgUpdate, error) {
	data, err := t.apiCall(t.ctx, "getUpdates", map[string]any{
		"offset":          offset,
		"limit":           limit,
		"timeout":         timeoutSecs,
		"allowed_updates": []string{"message"},
	})
	if err != nil {
		return nil, err
	}
	var updates []tgUpdate
	if err := json.Unmarshal(data, &updates); err != nil {
		return nil, fmt.Errorf("telegram: parsing updates: %w", err)
	}
	return updates, nil
}

var _ channels.Channel = (*Telegram)(nil)
