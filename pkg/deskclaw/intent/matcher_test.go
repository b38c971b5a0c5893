package intent

import (
	"strings"
	"testing"
)

func TestMatcherScenarios(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text   string
		action Action
		params map[string]string
	}{
		{"get my photos", ActionCollectFiles, map[string]string{ParamCategory: "photos"}},
		{"retrieve all videos", ActionCollectFiles, map[string]string{ParamCategory: "videos"}},
		{"backup my songs", ActionCollectFiles, map[string]string{ParamCategory: "music"}},
		{"gather every PDF", ActionCollectFiles, map[string]string{ParamCategory: "documents"}},
		{"what have you collected?", ActionListCollected, nil},
		{"open collected photos", ActionOpenCollected, map[string]string{ParamCategory: "photos"}},
		{"search files named report", ActionSearchFiles, map[string]string{ParamPattern: "*report*"}},
		{"find *.log", ActionSearchFiles, map[string]string{ParamPattern: "*.log"}},
		{"close all windows", ActionCloseAllWindows, nil},
		{"close all browsers", ActionCloseBrowsers, nil},
		{"close chrome", ActionCloseApp, map[string]string{ParamAppName: "chrome"}},
		{"quit the spotify app", ActionCloseApp, map[string]string{ParamAppName: "spotify"}},
		{"minimize everything", ActionMinimizeAll, nil},
		{"lock screen", ActionLockScreen, nil},
		{"take a screenshot", ActionTakeScreenshot, nil},
		{"list running apps", ActionListRunningApps, nil},
		{"task status", ActionTaskStatus, nil},
		{"youtube funny cats", ActionYouTubeSearch, map[string]string{ParamQuery: "funny cats"}},
		{"search youtube for lo-fi beats", ActionYouTubeSearch, map[string]string{ParamQuery: "lo-fi beats"}},
		{"google how to cook pasta", ActionGoogleSearch, map[string]string{ParamQuery: "how to cook pasta"}},
		{"search google for weather", ActionGoogleSearch, map[string]string{ParamQuery: "weather"}},
		{"open google.com", ActionOpenURL, map[string]string{ParamURL: "google.com"}},
		{"visit https://example.org/docs", ActionOpenURL, map[string]string{ParamURL: "https://example.org/docs"}},
		{"list browser tabs", ActionListBrowserTabs, nil},
		{"list drives", ActionListDrives, nil},
		{"list files in /var/log", ActionBrowsePath, map[string]string{ParamPath: "/var/log"}},
		{"info about /etc/hosts", ActionPathInfo, map[string]string{ParamPath: "/etc/hosts"}},
		{"search /var/log for error", ActionSearchPath, map[string]string{ParamPath: "/var/log", ParamPattern: "*error*"}},
		{"find *.conf in /etc", ActionSearchPath, map[string]string{ParamPath: "/etc", ParamPattern: "*.conf"}},
		{`open C:\Users\me\Desktop`, ActionOpenPath, map[string]string{ParamPath: `C:\Users\me\Desktop`}},
		{"open /home/me/notes", ActionOpenPath, map[string]string{ParamPath: "/home/me/notes"}},
		{"open notepad", ActionOpenApp, map[string]string{ParamAppName: "notepad"}},
		{"copy hello world to clipboard", ActionWriteClipboard, map[string]string{ParamText: "hello world"}},
		{"what's on my clipboard", ActionReadClipboard, nil},
		{"copy /tmp/a.txt to /tmp/b", ActionCopyFile, map[string]string{ParamSource: "/tmp/a.txt", ParamDestination: "/tmp/b"}},
		{"copy /tmp/pic.jpg to /backup", ActionCopyFile, map[string]string{ParamSource: "/tmp/pic.jpg", ParamDestination: "/backup"}},
		{"delete /tmp/old.log", ActionDeleteFile, map[string]string{ParamPath: "/tmp/old.log"}},
		{"run powershell: Get-Date", ActionRunCommand, map[string]string{ParamCommand: "Get-Date"}},
		{"execute shell ls -la", ActionRunCommand, map[string]string{ParamCommand: "ls -la"}},
	}

	m := NewMatcher()
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, ok := m.Match(tt.text)
			if !ok {
				t.Fatalf("Match(%q) declined, want %s", tt.text, tt.action)
			}
			if got.Action != tt.action {
				t.Fatalf("Match(%q).Action = %q, want %q", tt.text, got.Action, tt.action)
			}
			if !got.Actionable {
				t.Errorf("Match(%q) not actionable", tt.text)
			}
			for k, want := range tt.params {
				if got.Params[k] != want {
					t.Errorf("Match(%q).Params[%q] = %q, want %q", tt.text, k, got.Params[k], want)
				}
			}
		})
	}
}

func TestMatcherCloseAllBeatsCloseApp(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"close all windows",
		"close all windows and lock the screen",
		"kill all apps",
		"terminate all programs",
		"close all other windows",
		"shut down everything",
		"close all",
		"Kill all!",
	}
	m := NewMatcher()
	for _, in := range inputs {
		si, rule, ok := m.MatchRule(in)
		if !ok {
			t.Fatalf("MatchRule(%q) declined", in)
		}
		if si.Action != ActionCloseAllWindows {
			t.Errorf("MatchRule(%q) = %s via %s, want %s", in, si.Action, rule, ActionCloseAllWindows)
		}
	}

	// The close-app rule on its own refuses anything mentioning "all ".
	if _, ok := matchCloseApp("close all windows", "close all windows"); ok {
		t.Error("close-app rule accepted a close-all phrase")
	}
	if si, _ := m.Match("close all"); si != nil && si.Params[ParamAppName] != "" {
		t.Errorf("bare close all parsed app name %q", si.Params[ParamAppName])
	}
}

func TestMatcherLockAfterCloseAll(t *testing.T) {
	t.Parallel()

	m := NewMatcher()
	first, _ := m.Match("close all windows and lock the screen")
	second, _ := m.Match("lock screen")
	if first == nil || first.Action != ActionCloseAllWindows {
		t.Fatalf("first = %+v, want close_all_windows", first)
	}
	if second == nil || second.Action != ActionLockScreen {
		t.Fatalf("second = %+v, want lock_screen", second)
	}
}

func TestMatcherDeclines(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"",
		"   ",
		"hello there",
		"how are you today?",
		"open notes.txt",
		"close it",
		"thanks!",
	}
	m := NewMatcher()
	for _, in := range inputs {
		if si, rule, ok := m.MatchRule(in); ok {
			t.Errorf("MatchRule(%q) = %s via %s, want decline", in, si.Action, rule)
		}
	}
}

func TestSearchRuleExclusions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text string
		want bool
	}{
		{"search files named budget", true},
		{"search google for budget", false},
		{"find youtube videos of cats", false},
		{"find file named my photo album", false},
		{"look for movie trailers", false},
	}
	for _, tt := range tests {
		lower := strings.ToLower(tt.text)
		_, got := matchSearchFiles(tt.text, lower)
		if got != tt.want {
			t.Errorf("matchSearchFiles(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestGoogleRuleRequiresNoYouTube(t *testing.T) {
	t.Parallel()

	if _, ok := matchGoogle("", "google youtube tips"); ok {
		t.Error("google rule accepted text mentioning youtube")
	}
	if _, ok := matchGoogle("", "search for cheap flights"); ok {
		t.Error("google rule accepted text without google")
	}
}

func TestStructuralCuesAreExclusive(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text string
		url  bool
		path bool
		app  bool
	}{
		{"open github.com", true, false, false},
		{"open https://github.com", true, false, false},
		{"open /usr/share/doc", false, true, false},
		{`open D:\Games`, false, true, false},
		{"open calculator", false, false, true},
	}
	for _, tt := range tests {
		lower := strings.ToLower(tt.text)
		_, url := matchOpenURL(tt.text, lower)
		_, path := matchOpenPath(tt.text, lower)
		_, app := matchOpenApp(tt.text, lower)
		if url != tt.url || path != tt.path || app != tt.app {
			t.Errorf("%q: url=%v path=%v app=%v, want %v %v %v",
				tt.text, url, path, app, tt.url, tt.path, tt.app)
		}
	}
}

func TestCollectRequiresVerb(t *testing.T) {
	t.Parallel()

	if _, ok := matchCollect("photos", "photos"); ok {
		t.Error("collect accepted a bare category word")
	}
	if _, ok := matchCollect("nice picture", "nice picture"); ok {
		t.Error("collect accepted a category without a collection verb")
	}
	si, ok := matchCollect("grab my movies", "grab my movies")
	if !ok || si.Params[ParamCategory] != "videos" {
		t.Errorf("collect(grab my movies) = %+v, %v", si, ok)
	}
}

func TestWidenPattern(t *testing.T) {
	t.Parallel()

	tests := []struct{ in, want string }{
		{"report", "*report*"},
		{"  report ", "*report*"},
		{"*.pdf", "*.pdf"},
		{"file?.txt", "file?.txt"},
		{"", "*"},
	}
	for _, tt := range tests {
		if got := WidenPattern(tt.in); got != tt.want {
			t.Errorf("WidenPattern(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRuleNamesUnique(t *testing.T) {
	t.Parallel()

	seen := map[string]bool{}
	for _, r := range DefaultRules() {
		if seen[r.Name] {
			t.Errorf("duplicate rule name %q", r.Name)
		}
		seen[r.Name] = true
	}
}
