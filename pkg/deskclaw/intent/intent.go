// Package intent defines the structured form every natural-language request
// is reduced to before dispatch, the closed set of actions the agent can
// perform, and the local rule-based matcher that recognizes common phrasings
// without a network call.
package intent

import (
	"sort"
	"strings"
)

// Action identifies one supported operation. The set is closed: only the
// constants below are valid, and ParseAction rejects everything else.
type Action string

const (
	ActionCollectFiles    Action = "collect_files"
	ActionListCollected   Action = "list_collected"
	ActionOpenCollected   Action = "open_collected"
	ActionSearchFiles     Action = "search_files"
	ActionCloseAllWindows Action = "close_all_windows"
	ActionCloseBrowsers   Action = "close_browsers"
	ActionCloseApp        Action = "close_app"
	ActionOpenApp         Action = "open_app"
	ActionMinimizeAll     Action = "minimize_all"
	ActionLockScreen      Action = "lock_screen"
	ActionTakeScreenshot  Action = "take_screenshot"
	ActionListRunningApps Action = "list_running_apps"
	ActionTaskStatus      Action = "task_status"
	ActionYouTubeSearch   Action = "youtube_search"
	ActionGoogleSearch    Action = "google_search"
	ActionOpenURL         Action = "open_url"
	ActionListBrowserTabs Action = "list_browser_tabs"
	ActionOpenPath        Action = "open_path"
	ActionCopyFile        Action = "copy_file"
	ActionDeleteFile      Action = "delete_file"
	ActionRunCommand      Action = "run_command"
	ActionListDrives      Action = "list_drives"
	ActionBrowsePath      Action = "browse_path"
	ActionPathInfo        Action = "path_info"
	ActionSearchPath      Action = "search_path"
	ActionReadClipboard   Action = "read_clipboard"
	ActionWriteClipboard  Action = "write_clipboard"
)

// Parameter names shared by the matcher, classifier and dispatcher.
const (
	ParamCategory    = "category"
	ParamPattern     = "pattern"
	ParamAppName     = "app_name"
	ParamQuery       = "query"
	ParamURL         = "url"
	ParamPath        = "path"
	ParamSource      = "source"
	ParamDestination = "destination"
	ParamCommand     = "command"
	ParamText        = "text"
)

// Spec describes one action for prompt generation and help output.
type Spec struct {
	Action      Action
	Description string
	Params      []string

	// LongRunning actions are handed to the task executor instead of
	// running inline.
	LongRunning bool
}

// Catalog lists every action in a stable order.
var Catalog = []Spec{
	{ActionCollectFiles, "collect every file of a category into the collection folder", []string{ParamCategory}, true},
	{ActionListCollected, "summarize what has been collected so far", nil, false},
	{ActionOpenCollected, "open the collection folder, optionally for one category", []string{ParamCategory}, false},
	{ActionSearchFiles, "find files by name or glob pattern across the PC", []string{ParamPattern}, true},
	{ActionCloseAllWindows, "close every open application window", nil, false},
	{ActionCloseBrowsers, "close all web browsers", nil, false},
	{ActionCloseApp, "close one application", []string{ParamAppName}, false},
	{ActionOpenApp, "launch an application", []string{ParamAppName}, false},
	{ActionMinimizeAll, "minimize all windows and show the desktop", nil, false},
	{ActionLockScreen, "lock the computer", nil, false},
	{ActionTakeScreenshot, "capture the screen to a file", nil, false},
	{ActionListRunningApps, "list applications currently running", nil, false},
	{ActionTaskStatus, "report the status of background tasks", nil, false},
	{ActionYouTubeSearch, "search YouTube", []string{ParamQuery}, false},
	{ActionGoogleSearch, "search Google", []string{ParamQuery}, false},
	{ActionOpenURL, "open a website in the default browser", []string{ParamURL}, false},
	{ActionListBrowserTabs, "list open browser tabs", nil, false},
	{ActionOpenPath, "open a file or folder by absolute path", []string{ParamPath}, false},
	{ActionCopyFile, "copy a file to another location", []string{ParamSource, ParamDestination}, false},
	{ActionDeleteFile, "delete a single file", []string{ParamPath}, false},
	{ActionRunCommand, "run a shell command and return its output", []string{ParamCommand}, false},
	{ActionListDrives, "list drives with their total and free space", nil, false},
	{ActionBrowsePath, "list the contents of a folder", []string{ParamPath}, false},
	{ActionPathInfo, "describe a file or folder", []string{ParamPath}, false},
	{ActionSearchPath, "search inside one folder for a glob pattern", []string{ParamPath, ParamPattern}, false},
	{ActionReadClipboard, "read the clipboard text", nil, false},
	{ActionWriteClipboard, "put text on the clipboard", []string{ParamText}, false},
}

var (
	specByAction = make(map[Action]Spec, len(Catalog))

	// aliases maps legacy wire names onto current actions.
	aliases = map[string]Action{
		"run_powershell": ActionRunCommand,
		"run_shell":      ActionRunCommand,
		"open_folder":    ActionOpenPath,
		"disk_roots":     ActionListDrives,
	}
)

func init() {
	for _, s := range Catalog {
		specByAction[s.Action] = s
	}
}

// ParseAction maps a wire name onto an Action. Unknown names return false.
func ParseAction(name string) (Action, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return "", false
	}
	if a, ok := aliases[name]; ok {
		return a, true
	}
	a := Action(name)
	if _, ok := specByAction[a]; ok {
		return a, true
	}
	return "", false
}

// Valid reports whether a is one of the catalog actions.
func (a Action) Valid() bool {
	_, ok := specByAction[a]
	return ok
}

// LongRunning reports whether a runs on the task executor.
func (a Action) LongRunning() bool {
	return specByAction[a].LongRunning
}

// String returns the wire name.
func (a Action) String() string { return string(a) }

// Lookup returns the catalog entry for a.
func Lookup(a Action) (Spec, bool) {
	s, ok := specByAction[a]
	return s, ok
}

// StructuredIntent is the normalized result of classifying a message.
// Use the constructors; the zero value is a non-actionable empty reply.
type StructuredIntent struct {
	Actionable bool
	Action     Action
	Params     map[string]string
	Reply      string

	// RawAction keeps the unparsed action name reported by a remote
	// classifier, so an unknown name can be logged.
	RawAction string
}

// NewAction builds an actionable intent. The params map is copied.
func NewAction(a Action, params map[string]string) *StructuredIntent {
	cp := make(map[string]string, len(params))
	for k, v := range params {
		cp[k] = v
	}
	return &StructuredIntent{Actionable: true, Action: a, Params: cp, RawAction: string(a)}
}

// NewReply builds a non-actionable intent carrying only reply text.
func NewReply(reply string) *StructuredIntent {
	return &StructuredIntent{Reply: reply}
}

// Param returns the trimmed parameter value, or def when absent or blank.
func (si *StructuredIntent) Param(key, def string) string {
	if si == nil || si.Params == nil {
		return def
	}
	if v := strings.TrimSpace(si.Params[key]); v != "" {
		return v
	}
	return def
}

// ParamKeys returns the parameter names in sorted order.
func (si *StructuredIntent) ParamKeys() []string {
	keys := make([]string, 0, len(si.Params))
	for k := range si.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
