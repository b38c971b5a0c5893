package agent

import (
	"regexp"
	"strings"
)

var (
	greetingPattern = regexp.MustCompile(`\b(hello|hi|hey)\b`)
	helpPattern     = regexp.MustCompile(`\bhelp\b|what can you do|\bcommands\b`)
)

const helpText = `Here's what I can do:
- "retrieve all photos": collect all photos from your PC
- "collect all videos/music/documents": same for other file types
- "what have you collected": see collected files
- "search files named report": find files
- "close all windows": close everything except me
- "close chrome": close a specific app
- "open notepad": launch an app
- "open google.com": open a URL
- "google how to cook pasta": search Google
- "youtube funny cats": search YouTube
- "list browser tabs": show open tabs
- "minimize all": show desktop
- "take a screenshot": capture the screen now
- "list running apps": show what's open
- "close all browsers": close Chrome/Firefox/Edge
- "lock screen": lock your PC
- "show clipboard" / "copy to clipboard: text": use the clipboard
- "list drives" / "browse C:\Users": look around the disk
- "run powershell: Get-Date": run a command
- "task status": see background tasks`

const unrecognizedText = `I didn't recognize that command. Say "help" to see what I can do, or try:
- "retrieve all photos"
- "close all windows"
- "open chrome"`

func (a *Agent) intro() string {
	return "Hi! I'm " + a.name() + `. Type a command or say "help" to see what I can do.`
}

func (a *Agent) name() string {
	if a.cfg.Name == "" {
		return "DeskClaw"
	}
	return a.cfg.Name
}

// converse answers text that no strategy turned into an action.
func (a *Agent) converse(text string) string {
	if !a.cfg.Fallback.Enabled {
		return unrecognizedText
	}
	lower := strings.ToLower(text)
	switch {
	case helpPattern.MatchString(lower):
		return helpText
	case greetingPattern.MatchString(lower):
		return `Hello! I can control your PC. Say "help" to see what I can do.`
	}
	return unrecognizedText
}
