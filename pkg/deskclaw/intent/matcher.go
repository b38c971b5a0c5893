package intent

import (
	"regexp"
	"strings"

	"github.com/jholhewres/deskclaw/pkg/deskclaw/collector"
)

// Rule is one named predicate of the fast-path matcher. Match receives the
// trimmed original text and its lower-cased form and either produces an
// intent or declines.
type Rule struct {
	Name  string
	Match func(text, lower string) (*StructuredIntent, bool)
}

// Matcher recognizes common phrasings locally. Rules are tried in order and
// the first acceptance wins.
type Matcher struct {
	rules []Rule
}

// NewMatcher returns a matcher with the default rule order.
func NewMatcher() *Matcher {
	return &Matcher{rules: DefaultRules()}
}

// NewMatcherWithRules returns a matcher over a custom ordered rule list.
func NewMatcherWithRules(rules []Rule) *Matcher {
	return &Matcher{rules: rules}
}

// Rules returns a copy of the ordered rule list.
func (m *Matcher) Rules() []Rule {
	out := make([]Rule, len(m.rules))
	copy(out, m.rules)
	return out
}

// Match returns the intent of the first accepting rule, or false when no
// rule recognizes the text.
func (m *Matcher) Match(text string) (*StructuredIntent, bool) {
	si, _, ok := m.MatchRule(text)
	return si, ok
}

// MatchRule is Match that also reports which rule accepted.
func (m *Matcher) MatchRule(text string) (*StructuredIntent, string, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, "", false
	}
	lower := strings.ToLower(text)
	for _, r := range m.rules {
		if si, ok := r.Match(text, lower); ok {
			return si, r.Name, true
		}
	}
	return nil, "", false
}

// DefaultRules returns the built-in rules in priority order.
func DefaultRules() []Rule {
	return []Rule{
		{"run_command", matchRunCommand},
		{"collect", matchCollect},
		{"list_collected", matchListCollected},
		{"open_collected", matchOpenCollected},
		{"search_path", matchSearchPath},
		{"search_files", matchSearchFiles},
		{"close_all", matchCloseAll},
		{"close_browsers", matchCloseBrowsers},
		{"close_app", matchCloseApp},
		{"minimize_all", matchMinimizeAll},
		{"lock_screen", matchLockScreen},
		{"screenshot", matchScreenshot},
		{"list_running_apps", matchListRunningApps},
		{"task_status", matchTaskStatus},
		{"youtube", matchYouTube},
		{"google", matchGoogle},
		{"open_url", matchOpenURL},
		{"browser_tabs", matchBrowserTabs},
		{"list_drives", matchListDrives},
		{"browse_path", matchBrowsePath},
		{"path_info", matchPathInfo},
		{"open_path", matchOpenPath},
		{"open_app", matchOpenApp},
		{"write_clipboard", matchWriteClipboard},
		{"read_clipboard", matchReadClipboard},
		{"copy_file", matchCopyFile},
		{"delete_file", matchDeleteFile},
	}
}

// WidenPattern turns a bare word into a substring glob. Patterns that
// already contain a wildcard are returned unchanged.
func WidenPattern(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "*"
	}
	if strings.ContainsAny(p, "*?") {
		return p
	}
	return "*" + p + "*"
}

// pathAlt matches an absolute Windows path, a Unix path or a home-relative path.
const pathAlt = `[a-zA-Z]:\\[^"']+|/[^"']+|~[^"']*`

var (
	runCommandPattern = regexp.MustCompile(`(?i)^(?:please\s+)?(?:run|execute)\s+(?:powershell|ps|cmd|command|shell)\b\s*:?\s*(.+)$`)

	collectVerbPattern = regexp.MustCompile(`\b(?:retrieve|collect|find|get|gather|scan|copy|grab|fetch|save|backup|back up|all)\b`)
	namingPattern      = regexp.MustCompile(`\b(?:named?|called|matching)\b`)

	searchPattern     = regexp.MustCompile(`\b(?:search|find|look for|locate)\s+(?:for\s+)?(?:files?\s+)?(?:named?|called|matching|like)?\s*["']?([^"']+)["']?`)
	searchCategoryHit = []string{"photo", "image", "picture", "video", "movie", "music", "song", "document", "archive"}

	searchPathInFor = regexp.MustCompile(`(?i)(?:search|find|look for|locate)\s+(?:in\s+|inside\s+|under\s+)?["']?([a-zA-Z]:\\[^"']+?|/[^"']*?|~[^"']*?)["']?\s+for\s+["']?([^"']+?)["']?\s*$`)
	searchPathForIn = regexp.MustCompile(`(?i)(?:search|find|look for|locate)\s+(?:for\s+)?(?:files?\s+)?(?:named?\s+|called\s+|matching\s+)?["']?([^"'\s]+)["']?\s+(?:in|under|inside)\s+["']?(` + pathAlt + `)["']?\s*$`)

	closeVerbPattern = regexp.MustCompile(`\b(?:close|kill|terminate)\b|shut down`)
	closeAllTargets  = []string{"all window", "all app", "all program", "everything", "all other"}
	closeAppPattern  = regexp.MustCompile(`\b(?:close|kill|quit|exit|terminate|stop|end)\s+(?:the\s+)?(.+?)(?:\s+app|\s+application|\s+program|\s+window)?\s*$`)

	youtubePattern = regexp.MustCompile(`(?:search youtube for|search youtube|play on youtube|youtube)\s+(?:for\s+)?["']?(.+?)["']?\s*$`)
	googlePattern  = regexp.MustCompile(`(?:search google for|search google|google search|google|search for|search)\s+(?:for\s+)?["']?(.+?)["']?\s*$`)

	urlPattern = regexp.MustCompile(`(?i)(?:open|go to|navigate to|browse|visit)\s+(?:the\s+)?(?:url\s+|website\s+|site\s+)?["']?((?:https?://)?[a-zA-Z0-9][-a-zA-Z0-9.]+\.([a-zA-Z]{2,})(?:/[^\s"']*)?)["']?`)

	listDrivesPattern = regexp.MustCompile(`\b(?:list|show)\s+(?:me\s+)?(?:my\s+|all\s+|the\s+)?(?:drives|disks|volumes|partitions)\b|\bdisk space\b|\bfree space\b`)
	browsePattern     = regexp.MustCompile(`(?i)(?:^|\s)(?:list|browse|ls|dir|what'?s\s+in|what\s+is\s+in|show\s+(?:me\s+)?(?:the\s+)?contents\s+of)\s+(?:the\s+)?(?:files\s+|contents\s+|folder\s+|directory\s+)?(?:in\s+|of\s+|inside\s+)?["']?(` + pathAlt + `)["']?\s*$`)
	pathInfoPattern   = regexp.MustCompile(`(?i)(?:info|information|details|stats?|describe|properties|how\s+big\s+is)\s+(?:about\s+|on\s+|for\s+|of\s+)?["']?(` + pathAlt + `)["']?\s*$`)
	openPathPattern   = regexp.MustCompile(`(?i)(?:open|show|launch|run|start)\s+["']?(` + pathAlt + `)["']?`)
	openAppPattern    = regexp.MustCompile(`(?:open|launch|start|run)\s+(?:the\s+)?([a-zA-Z][a-zA-Z0-9 ]{1,30})$`)

	writeClipboardPattern = regexp.MustCompile(`(?i)^(?:copy|put|set|place|write)\s+["']?(.+?)["']?\s+(?:to|on|in|into|onto)\s+(?:the\s+|my\s+)?clipboard\s*$`)
	readClipboardPattern  = regexp.MustCompile(`\b(?:what|what's|whats|read|show|get|paste)\b`)

	copyPattern   = regexp.MustCompile(`(?i)(?:copy|move)\s+["']?([^"']+?)["']?\s+(?:to|into)\s+["']?([^"']+?)["']?\s*$`)
	deletePattern = regexp.MustCompile(`(?i)(?:delete|remove|trash)\s+(?:the\s+)?(?:file\s+)?["']?([a-zA-Z]:\\[^"']+|/[^"']+)["']?`)

	absPathCue = regexp.MustCompile(`[a-zA-Z]:\\|(?:^|\s|["'])[/~]`)
)

// fileLikeSuffixes are trailing "domains" that name files rather than sites.
var fileLikeSuffixes = map[string]bool{
	"exe": true, "msi": true, "lnk": true, "bat": true, "cmd": true,
	"json": true, "xml": true, "log": true, "ini": true, "cfg": true,
	"yaml": true, "yml": true, "md": true, "go": true, "py": true, "js": true,
}

func trimQuotes(s string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(s), `"'`))
}

func matchRunCommand(text, _ string) (*StructuredIntent, bool) {
	m := runCommandPattern.FindStringSubmatch(text)
	if m == nil {
		return nil, false
	}
	cmd := strings.TrimSpace(m[1])
	if cmd == "" {
		return nil, false
	}
	return NewAction(ActionRunCommand, map[string]string{ParamCommand: cmd}), true
}

func matchCollect(text, lower string) (*StructuredIntent, bool) {
	cat, ok := collector.CategoryFromText(lower)
	if !ok || !collectVerbPattern.MatchString(lower) {
		return nil, false
	}
	// "find files named holiday.jpg" is a search, and an explicit path
	// or URL belongs to the path and browser rules.
	if namingPattern.MatchString(lower) || absPathCue.MatchString(text) || strings.Contains(lower, "://") {
		return nil, false
	}
	return NewAction(ActionCollectFiles, map[string]string{ParamCategory: cat}), true
}

func matchListCollected(_, lower string) (*StructuredIntent, bool) {
	if strings.Contains(lower, "what") && (strings.Contains(lower, "collected") || strings.Contains(lower, "saved")) {
		return NewAction(ActionListCollected, nil), true
	}
	if strings.HasPrefix(lower, "list collected") || strings.HasPrefix(lower, "show collected files") {
		return NewAction(ActionListCollected, nil), true
	}
	return nil, false
}

func matchOpenCollected(_, lower string) (*StructuredIntent, bool) {
	if !strings.HasPrefix(lower, "open collected") && !strings.Contains(lower, "open deskclaw_data") {
		return nil, false
	}
	params := map[string]string{}
	if cat, ok := collector.CategoryFromText(lower); ok {
		params[ParamCategory] = cat
	}
	return NewAction(ActionOpenCollected, params), true
}

func matchSearchPath(text, _ string) (*StructuredIntent, bool) {
	if m := searchPathInFor.FindStringSubmatch(text); m != nil {
		return NewAction(ActionSearchPath, map[string]string{
			ParamPath:    trimQuotes(m[1]),
			ParamPattern: WidenPattern(trimQuotes(m[2])),
		}), true
	}
	if m := searchPathForIn.FindStringSubmatch(text); m != nil {
		return NewAction(ActionSearchPath, map[string]string{
			ParamPath:    trimQuotes(m[2]),
			ParamPattern: WidenPattern(trimQuotes(m[1])),
		}), true
	}
	return nil, false
}

func matchSearchFiles(_, lower string) (*StructuredIntent, bool) {
	if strings.Contains(lower, "google") || strings.Contains(lower, "youtube") {
		return nil, false
	}
	m := searchPattern.FindStringSubmatch(lower)
	if m == nil {
		return nil, false
	}
	pat := strings.TrimSpace(m[1])
	if pat == "" {
		return nil, false
	}
	for _, c := range searchCategoryHit {
		if strings.Contains(pat, c) {
			return nil, false
		}
	}
	return NewAction(ActionSearchFiles, map[string]string{ParamPattern: WidenPattern(pat)}), true
}

func matchCloseAll(_, lower string) (*StructuredIntent, bool) {
	switch strings.TrimRight(lower, ".!? ") {
	case "close all", "kill all":
		return NewAction(ActionCloseAllWindows, nil), true
	}
	if !closeVerbPattern.MatchString(lower) {
		return nil, false
	}
	for _, t := range closeAllTargets {
		if strings.Contains(lower, t) {
			return NewAction(ActionCloseAllWindows, nil), true
		}
	}
	return nil, false
}

func matchCloseBrowsers(_, lower string) (*StructuredIntent, bool) {
	if strings.Contains(lower, "close") && strings.Contains(lower, "browser") {
		return NewAction(ActionCloseBrowsers, nil), true
	}
	return nil, false
}

func matchCloseApp(_, lower string) (*StructuredIntent, bool) {
	if strings.Contains(lower, "all ") || strings.Contains(lower, "browser") {
		return nil, false
	}
	m := closeAppPattern.FindStringSubmatch(lower)
	if m == nil {
		return nil, false
	}
	target := strings.TrimSpace(m[1])
	switch target {
	case "", "this", "it", "panel":
		return nil, false
	}
	return NewAction(ActionCloseApp, map[string]string{ParamAppName: target}), true
}

func matchMinimizeAll(_, lower string) (*StructuredIntent, bool) {
	if (strings.Contains(lower, "minimize") && (strings.Contains(lower, "all") || strings.Contains(lower, "everything"))) ||
		strings.Contains(lower, "show desktop") || strings.Contains(lower, "hide all") {
		return NewAction(ActionMinimizeAll, nil), true
	}
	return nil, false
}

func matchLockScreen(_, lower string) (*StructuredIntent, bool) {
	if strings.Contains(lower, "lock") &&
		(strings.Contains(lower, "screen") || strings.Contains(lower, "computer") || strings.Contains(lower, "pc")) {
		return NewAction(ActionLockScreen, nil), true
	}
	return nil, false
}

func matchScreenshot(_, lower string) (*StructuredIntent, bool) {
	if strings.Contains(lower, "screenshot") || strings.Contains(lower, "screen shot") || strings.Contains(lower, "screen capture") {
		return NewAction(ActionTakeScreenshot, nil), true
	}
	return nil, false
}

func matchListRunningApps(_, lower string) (*StructuredIntent, bool) {
	asks := strings.Contains(lower, "list") || strings.Contains(lower, "show") || strings.Contains(lower, "what")
	about := strings.Contains(lower, "running") || strings.Contains(lower, "open app") ||
		strings.Contains(lower, "open program") || strings.Contains(lower, "processes")
	if asks && about && !strings.Contains(lower, "task") {
		return NewAction(ActionListRunningApps, nil), true
	}
	return nil, false
}

func matchTaskStatus(_, lower string) (*StructuredIntent, bool) {
	if strings.Contains(lower, "task") &&
		(strings.Contains(lower, "status") || strings.Contains(lower, "progress") || strings.Contains(lower, "running")) {
		return NewAction(ActionTaskStatus, nil), true
	}
	return nil, false
}

func matchYouTube(_, lower string) (*StructuredIntent, bool) {
	if !strings.Contains(lower, "youtube") {
		return nil, false
	}
	m := youtubePattern.FindStringSubmatch(lower)
	if m == nil || strings.TrimSpace(m[1]) == "" {
		return nil, false
	}
	return NewAction(ActionYouTubeSearch, map[string]string{ParamQuery: strings.TrimSpace(m[1])}), true
}

func matchGoogle(_, lower string) (*StructuredIntent, bool) {
	if !strings.Contains(lower, "google") || strings.Contains(lower, "youtube") {
		return nil, false
	}
	m := googlePattern.FindStringSubmatch(lower)
	if m == nil || strings.TrimSpace(m[1]) == "" {
		return nil, false
	}
	return NewAction(ActionGoogleSearch, map[string]string{ParamQuery: strings.TrimSpace(m[1])}), true
}

func matchOpenURL(text, _ string) (*StructuredIntent, bool) {
	m := urlPattern.FindStringSubmatch(text)
	if m == nil {
		return nil, false
	}
	u := strings.TrimSpace(m[1])
	hasScheme := strings.Contains(strings.ToLower(u), "://")
	if !hasScheme && fileLikeSuffixes[strings.ToLower(m[2])] {
		return nil, false
	}
	if !hasScheme {
		if _, isCategoryExt := categoryExtension(m[2]); isCategoryExt {
			return nil, false
		}
	}
	return NewAction(ActionOpenURL, map[string]string{ParamURL: u}), true
}

func categoryExtension(suffix string) (string, bool) {
	ext := "." + strings.ToLower(suffix)
	for _, name := range collector.CategoryNames() {
		rule, _ := collector.LookupCategory(name)
		if _, ok := rule.Extensions[ext]; ok {
			return name, true
		}
	}
	return "", false
}

func matchBrowserTabs(_, lower string) (*StructuredIntent, bool) {
	if strings.Contains(lower, "browser") && (strings.Contains(lower, "tab") || strings.Contains(lower, "window")) {
		return NewAction(ActionListBrowserTabs, nil), true
	}
	if strings.Contains(lower, "open tabs") || strings.Contains(lower, "list tabs") {
		return NewAction(ActionListBrowserTabs, nil), true
	}
	return nil, false
}

func matchListDrives(_, lower string) (*StructuredIntent, bool) {
	if listDrivesPattern.MatchString(lower) {
		return NewAction(ActionListDrives, nil), true
	}
	return nil, false
}

func matchBrowsePath(text, _ string) (*StructuredIntent, bool) {
	m := browsePattern.FindStringSubmatch(text)
	if m == nil {
		return nil, false
	}
	return NewAction(ActionBrowsePath, map[string]string{ParamPath: trimQuotes(m[1])}), true
}

func matchPathInfo(text, _ string) (*StructuredIntent, bool) {
	m := pathInfoPattern.FindStringSubmatch(text)
	if m == nil {
		return nil, false
	}
	return NewAction(ActionPathInfo, map[string]string{ParamPath: trimQuotes(m[1])}), true
}

func matchOpenPath(text, _ string) (*StructuredIntent, bool) {
	m := openPathPattern.FindStringSubmatch(text)
	if m == nil {
		return nil, false
	}
	return NewAction(ActionOpenPath, map[string]string{ParamPath: trimQuotes(m[1])}), true
}

func matchOpenApp(_, lower string) (*StructuredIntent, bool) {
	if strings.Contains(lower, `:\`) || strings.Contains(lower, "://") || strings.Contains(lower, "collected") {
		return nil, false
	}
	m := openAppPattern.FindStringSubmatch(lower)
	if m == nil {
		return nil, false
	}
	app := strings.TrimSpace(m[1])
	if strings.HasPrefix(app, "file") || app == "url" || app == "folder" {
		return nil, false
	}
	return NewAction(ActionOpenApp, map[string]string{ParamAppName: app}), true
}

func matchWriteClipboard(text, _ string) (*StructuredIntent, bool) {
	m := writeClipboardPattern.FindStringSubmatch(text)
	if m == nil || strings.TrimSpace(m[1]) == "" {
		return nil, false
	}
	return NewAction(ActionWriteClipboard, map[string]string{ParamText: strings.TrimSpace(m[1])}), true
}

func matchReadClipboard(_, lower string) (*StructuredIntent, bool) {
	if strings.Contains(lower, "clipboard") && readClipboardPattern.MatchString(lower) {
		return NewAction(ActionReadClipboard, nil), true
	}
	return nil, false
}

func matchCopyFile(text, _ string) (*StructuredIntent, bool) {
	m := copyPattern.FindStringSubmatch(text)
	if m == nil {
		return nil, false
	}
	return NewAction(ActionCopyFile, map[string]string{
		ParamSource:      trimQuotes(m[1]),
		ParamDestination: trimQuotes(m[2]),
	}), true
}

func matchDeleteFile(text, _ string) (*StructuredIntent, bool) {
	m := deletePattern.FindStringSubmatch(text)
	if m == nil {
		return nil, false
	}
	return NewAction(ActionDeleteFile, map[string]string{ParamPath: trimQuotes(m[1])}), true
}
