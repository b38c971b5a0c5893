// Package channels defines the messaging relays that carry chat text to
// the agent and replies back. Each platform implements Channel.
package channels

import (
	"context"
	"errors"
	"time"
)

// MessageType identifies the kind of message content.
type MessageType string

const (
	MessageText  MessageType = "text"
	MessageMedia MessageType = "media"
)

// Channel is a connection to one messaging platform.
type Channel interface {
	// Name returns the channel identifier (e.g. "discord").
	Name() string

	// Connect establishes the connection to the platform.
	Connect(ctx context.Context) error

	// Disconnect closes the connection.
	Disconnect() error

	// Send sends a message to a chat.
	Send(ctx context.Context, to string, message *OutgoingMessage) error

	// Receive returns the stream of incoming messages.
	Receive() <-chan *IncomingMessage

	// IsConnected reports whether the channel is connected.
	IsConnected() bool

	// Health returns the channel health status.
	Health() HealthStatus
}

// IncomingMessage is a message received from any channel.
type IncomingMessage struct {
	// ID is the message identifier in the source channel.
	ID string

	// Channel is the source channel name.
	Channel string

	From     string
	FromName string

	// ChatID is where replies go.
	ChatID  string
	IsGroup bool

	Type      MessageType
	Content   string
	Timestamp time.Time
}

// OutgoingMessage is a message to be sent through a channel.
type OutgoingMessage struct {
	Content string

	// ReplyTo is the ID of the message being answered, if any.
	ReplyTo string
}

// HealthStatus represents the health state of a channel.
type HealthStatus struct {
	Connected     bool      `json:"connected"`
	LastMessageAt time.Time `json:"last_message_at,omitzero"`
	ErrorCount    int       `json:"error_count"`
}

// Errors.
var (
	ErrChannelDisconnected = errors.New("channel is not connected")
	ErrChannelNotFound     = errors.New("channel not found")
	ErrNoChannels          = errors.New("no channel connected")
)

// SplitMessage cuts text into chunks of at most maxLen bytes, preferring
// line breaks in the second half of a chunk.
func SplitMessage(text string, maxLen int) []string {
	if len(text) <= maxLen {
		return []string{text}
	}
	var chunks []string
	for len(text) > 0 {
		if len(text) <= maxLen {
			chunks = append(chunks, text)
			break
		}
		cut := maxLen
		for i := maxLen - 1; i > maxLen/2; i-- {
			if text[i] == '\n' {
				cut = i + 1
				break
			}
		}
		chunks = append(chunks, text[:cut])
		text = text[cut:]
	}
	return chunks
}
