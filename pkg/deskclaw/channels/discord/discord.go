// Package discord relays DeskClaw conversations over a Discord bot using
// discordgo.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/jholhewres/deskclaw/pkg/deskclaw/channels"
)

// maxMessageLen is Discord's per-message character limit.
const maxMessageLen = 2000

// Config holds Discord channel configuration.
type Config struct {
	// Token is the bot token. The channel starts only when it is set.
	Token string `yaml:"token"`

	// AllowedGuilds restricts which guilds the bot answers in. Empty means
	// all guilds.
	AllowedGuilds []string `yaml:"allowed_guilds"`

	// AllowedChannels restricts which channel IDs the bot answers in.
	AllowedChannels []string `yaml:"allowed_channels"`

	// AllowedUsers restricts who may control this PC. Empty means anyone
	// who can message the bot.
	AllowedUsers []string `yaml:"allowed_users"`

	// SendTyping shows a typing indicator while a message is handled.
	SendTyping bool `yaml:"send_typing"`
}

// DefaultConfig returns a Config with typing indicators on.
func DefaultConfig() Config {
	return Config{SendTyping: true}
}

// session is the part of *discordgo.Session the channel uses.
type session interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelTyping(channelID string, options ...discordgo.RequestOption) error
}

// Discord implements channels.Channel.
type Discord struct {
	cfg     Config
	logger  *slog.Logger
	conn    *discordgo.Session
	session session
	botID   string

	messages   chan *channels.IncomingMessage
	connected  atomic.Bool
	lastMsg    atomic.Value // time.Time
	errorCount atomic.Int64
}

// New creates a Discord channel.
func New(cfg Config, logger *slog.Logger) *Discord {
	if logger == nil {
		logger = slog.Default()
	}
	return &Discord{
		cfg:      cfg,
		logger:   logger.With("component", "discord"),
		messages: make(chan *channels.IncomingMessage, 256),
	}
}

// Name returns "discord".
func (d *Discord) Name() string { return "discord" }

// Connect opens the gateway websocket.
func (d *Discord) Connect(ctx context.Context) error {
	if d.cfg.Token == "" {
		return fmt.Errorf("discord: bot token is required")
	}

	s, err := discordgo.New("Bot " + d.cfg.Token)
	if err != nil {
		return fmt.Errorf("discord: creating session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent
	s.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		d.onMessage(m.Message)
	})

	if err := s.Open(); err != nil {
		return fmt.Errorf("discord: opening gateway: %w", err)
	}

	d.conn = s
	d.session = s
	d.botID = s.State.User.ID
	d.connected.Store(true)
	d.logger.Info("discord connected", "bot", s.State.User.Username, "id", d.botID)
	return nil
}

// Disconnect closes the gateway connection.
func (d *Discord) Disconnect() error {
	d.connected.Store(false)
	if d.conn != nil {
		if err := d.conn.Close(); err != nil {
			return fmt.Errorf("discord: closing session: %w", err)
		}
	}
	d.logger.Info("discord disconnected")
	return nil
}

// Send posts a message, split into chunks of the platform limit.
func (d *Discord) Send(ctx context.Context, to string, message *channels.OutgoingMessage) error {
	if d.session == nil || !d.connected.Load() {
		return channels.ErrChannelDisconnected
	}
	for i, chunk := range channels.SplitMessage(message.Content, maxMessageLen) {
		send := &discordgo.MessageSend{Content: chunk}
		if i == 0 && message.ReplyTo != "" {
			send.Reference = &discordgo.MessageReference{MessageID: message.ReplyTo, ChannelID: to}
		}
		if _, err := d.session.ChannelMessageSendComplex(to, send, discordgo.WithContext(ctx)); err != nil {
			d.errorCount.Add(1)
			return fmt.Errorf("discord: send: %w", err)
		}
	}
	return nil
}

// SendTyping shows the typing indicator in a channel when enabled.
func (d *Discord) SendTyping(ctx context.Context, to string) error {
	if !d.cfg.SendTyping || d.session == nil {
		return nil
	}
	return d.session.ChannelTyping(to, discordgo.WithContext(ctx))
}

// Receive returns the incoming message stream.
func (d *Discord) Receive() <-chan *channels.IncomingMessage { return d.messages }

// IsConnected reports whether the gateway is open.
func (d *Discord) IsConnected() bool { return d.connected.Load() }

// Health returns the channel health.
func (d *Discord) Health() channels.HealthStatus {
	var last time.Time
	if v := d.lastMsg.Load(); v != nil {
		last = v.(time.Time)
	}
	return channels.HealthStatus{
		Connected:     d.connected.Load(),
		LastMessageAt: last,
		ErrorCount:    int(d.errorCount.Load()),
	}
}

// onMessage filters a Discord message and forwards it.
func (d *Discord) onMessage(m *discordgo.Message) {
	if m == nil || m.Author == nil || m.Author.Bot || m.Author.ID == d.botID {
		return
	}
	if !d.allowed(m) {
		d.logger.Debug("message ignored", "guild", m.GuildID, "channel", m.ChannelID, "from", m.Author.ID)
		return
	}

	incoming := &channels.IncomingMessage{
		ID:        m.ID,
		Channel:   "discord",
		From:      m.Author.ID,
		FromName:  m.Author.Username,
		ChatID:    m.ChannelID,
		IsGroup:   m.GuildID != "",
		Type:      channels.MessageText,
		Content:   stripMention(m.Content, d.botID),
		Timestamp: m.Timestamp,
	}
	if len(m.Attachments) > 0 && incoming.Content == "" {
		incoming.Type = channels.MessageMedia
	}

	d.lastMsg.Store(time.Now())
	select {
	case d.messages <- incoming:
	default:
		d.logger.Warn("message buffer full, dropping message", "msg_id", m.ID)
	}
}

func (d *Discord) allowed(m *discordgo.Message) bool {
	if len(d.cfg.AllowedGuilds) > 0 && m.GuildID != "" && !slices.Contains(d.cfg.AllowedGuilds, m.GuildID) {
		return false
	}
	if len(d.cfg.AllowedChannels) > 0 && !slices.Contains(d.cfg.AllowedChannels, m.ChannelID) {
		return false
	}
	if len(d.cfg.AllowedUsers) > 0 && !slices.Contains(d.cfg.AllowedUsers, m.Author.ID) {
		return false
	}
	return true
}

// stripMention removes a leading bot mention ("<@id>" or "<@!id>").
func stripMention(content, botID string) string {
	content = strings.TrimSpace(content)
	if botID == "" {
		return content
	}
	for _, p := range []string{"<@" + botID + ">", "<@!" + botID + ">"} {
		if strings.HasPrefix(content, p) {
			return strings.TrimSpace(strings.TrimPrefix(content, p))
		}
	}
	return content
}

var _ channels.Channel = (*Discord)(nil)
