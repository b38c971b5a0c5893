package classifier

import (
	"fmt"
	"strings"

	"github.com/jholhewres/deskclaw/pkg/deskclaw/collector"
	"github.com/jholhewres/deskclaw/pkg/deskclaw/intent"
)

// paramHints describe parameter values in the instruction.
var paramHints = map[string]string{
	intent.ParamPattern:     "file name or glob",
	intent.ParamAppName:     "name of app",
	intent.ParamQuery:       "search terms",
	intent.ParamURL:         "the URL",
	intent.ParamPath:        "absolute file or folder path",
	intent.ParamSource:      "source path",
	intent.ParamDestination: "destination path",
	intent.ParamCommand:     "the shell command",
	intent.ParamText:        "text to copy",
}

// Instruction renders the fixed system prompt listing every action and its
// parameters.
func Instruction() string {
	var sb strings.Builder
	sb.WriteString("You are DeskClaw, an assistant that controls the user's computer. ")
	sb.WriteString("Decide whether the user's message is an actionable command or just conversation.\n\n")
	sb.WriteString("Available actions (return the exact action ID):\n")

	for _, s := range intent.Catalog {
		params := make([]string, 0, len(s.Params))
		for _, p := range s.Params {
			hint := paramHints[p]
			if p == intent.ParamCategory {
				hint = strings.Join(collector.CategoryNames(), "|")
			}
			params = append(params, fmt.Sprintf("%q: %q", p, hint))
		}
		fmt.Fprintf(&sb, "- %s: %s. params: {%s}\n", s.Action, s.Description, strings.Join(params, ", "))
	}

	sb.WriteString(`
Respond with ONLY valid JSON (no markdown, no code fences):
- If actionable: {"actionable": true, "action": "action_id", "params": {...}, "reply": "brief acknowledgment"}
- If NOT actionable (greeting, question, conversation): {"actionable": false, "reply": "your conversational response"}

Be smart about intent: "get my pictures" means collect_files with category photos.
"shut everything down" means close_all_windows.
"find me some cat videos" means youtube_search.
`)
	return sb.String()
}
