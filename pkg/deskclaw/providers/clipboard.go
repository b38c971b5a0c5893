package providers

import (
	"log/slog"
	"strings"

	"github.com/atotto/clipboard"
)

// Clipboard reads and writes the system clipboard text.
type Clipboard struct {
	read        func() (string, error)
	write       func(string) error
	unsupported bool
	logger      *slog.Logger
}

// NewClipboard creates a Clipboard backed by the OS clipboard.
func NewClipboard(logger *slog.Logger) *Clipboard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Clipboard{
		read:        clipboard.ReadAll,
		write:       clipboard.WriteAll,
		unsupported: clipboard.Unsupported,
		logger:      logger.With("component", "clipboard"),
	}
}

// Read returns the clipboard contents, truncated like command output.
func (c *Clipboard) Read() string {
	if c.unsupported {
		return "Clipboard access is not available on this machine."
	}
	text, err := c.read()
	if err != nil {
		c.logger.Warn("clipboard read failed", "error", err)
		return "Could not read the clipboard."
	}
	if strings.TrimSpace(text) == "" {
		return "Clipboard is empty."
	}
	if r := []rune(text); len(r) > maxCommandOutput {
		text = string(r[:maxCommandOutput]) + "\n... (truncated)"
	}
	return "Clipboard contents:\n" + text
}

// Write replaces the clipboard contents with text.
func (c *Clipboard) Write(text string) string {
	if text == "" {
		return "What should I copy to the clipboard?"
	}
	if c.unsupported {
		return "Clipboard access is not available on this machine."
	}
	if err := c.write(text); err != nil {
		c.logger.Warn("clipboard write failed", "error", err)
		return "Could not write to the clipboard."
	}
	return "Copied to clipboard."
}
