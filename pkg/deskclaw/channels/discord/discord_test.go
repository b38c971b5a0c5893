package discord

import (
	"context"
	"strings"
	"testing"

	"github.com/bwmarrin/discordgo"

	"github.com/jholhewres/deskclaw/pkg/deskclaw/channels"
)

type fakeSession struct {
	sent []*discordgo.MessageSend
}

func (f *fakeSession) ChannelMessageSendComplex(_ string, data *discordgo.MessageSend, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.sent = append(f.sent, data)
	return &discordgo.Message{}, nil
}

func (f *fakeSession) ChannelTyping(string, ...discordgo.RequestOption) error { return nil }

func TestStripMention(t *testing.T) {
	t.Parallel()

	tests := []struct {
		content, want string
	}{
		{"<@123> open chrome", "open chrome"},
		{"<@!123>   lock screen ", "lock screen"},
		{"<@999> hi", "<@999> hi"},
		{"  plain  ", "plain"},
	}
	for _, tt := range tests {
		if got := stripMention(tt.content, "123"); got != tt.want {
			t.Errorf("stripMention(%q) = %q, want %q", tt.content, got, tt.want)
		}
	}
}

func TestOnMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  Config
		msg  *discordgo.Message
		want string
	}{
		{
			name: "forwarded",
			msg:  &discordgo.Message{ID: "1", ChannelID: "c", Content: "<@bot> take a screenshot", Author: &discordgo.User{ID: "u"}},
			want: "take a screenshot",
		},
		{
			name: "bot author",
			msg:  &discordgo.Message{ID: "1", ChannelID: "c", Content: "hi", Author: &discordgo.User{ID: "x", Bot: true}},
		},
		{
			name: "self",
			msg:  &discordgo.Message{ID: "1", ChannelID: "c", Content: "hi", Author: &discordgo.User{ID: "bot"}},
		},
		{
			name: "user not allowed",
			cfg:  Config{AllowedUsers: []string{"boss"}},
			msg:  &discordgo.Message{ID: "1", ChannelID: "c", Content: "hi", Author: &discordgo.User{ID: "u"}},
		},
		{
			name: "guild not allowed",
			cfg:  Config{AllowedGuilds: []string{"g1"}},
			msg:  &discordgo.Message{ID: "1", GuildID: "g2", ChannelID: "c", Content: "hi", Author: &discordgo.User{ID: "u"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := New(tt.cfg, nil)
			d.botID = "bot"
			d.onMessage(tt.msg)

			select {
			case got := <-d.Receive():
				if tt.want == "" {
					t.Fatalf("unexpected message %+v", got)
				}
				if got.Content != tt.want || got.ChatID != "c" {
					t.Errorf("message = %+v", got)
				}
			default:
				if tt.want != "" {
					t.Fatal("message not forwarded")
				}
			}
		})
	}
}

func TestSendChunksAndReplies(t *testing.T) {
	t.Parallel()

	fs := &fakeSession{}
	d := New(DefaultConfig(), nil)
	d.session = fs
	d.connected.Store(true)

	long := strings.Repeat("x", maxMessageLen+10)
	if err := d.Send(context.Background(), "c", &channels.OutgoingMessage{Content: long, ReplyTo: "m1"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(fs.sent) != 2 {
		t.Fatalf("sent %d chunks, want 2", len(fs.sent))
	}
	if fs.sent[0].Reference == nil || fs.sent[0].Reference.MessageID != "m1" {
		t.Error("first chunk is not a reply")
	}
	if fs.sent[1].Reference != nil {
		t.Error("second chunk is a reply")
	}
}
