package providers

import (
	"strconv"
	"strings"
)

// command is a program plus its arguments.
type command []string

// process is one entry of the running-process listing.
type process struct {
	Name string
	PID  int
}

// platform holds the host commands for one operating system.
type platform struct {
	goos string

	listProcs  command
	parseProcs func(out string) []process
	terminate  func(pid int) command
	kill       func(pid int) command
	killByName func(name string) command
	open       func(target string) command
	shell      func(line string) command
	screenshot func(path string) command
	lock       command
	minimize   command

	// apps maps spoken app names onto process names, checked in order.
	apps []appEntry

	// launch maps spoken app names onto launch commands, checked in order.
	launch []launchEntry

	// guessProcess derives a process name from an unknown app name.
	guessProcess func(app string) string

	// launchUnknown opens an app not found in launch.
	launchUnknown func(app string) command

	protected []string
	browsers  []string
}

type appEntry struct {
	name  string
	procs []string
}

type launchEntry struct {
	name string
	cmd  command
}

func platformFor(goos string) platform {
	switch goos {
	case "windows":
		return windowsPlatform()
	case "darwin":
		return darwinPlatform()
	default:
		return linuxPlatform(goos)
	}
}

func windowsPlatform() platform {
	return platform{
		goos:       "windows",
		listProcs:  command{"tasklist", "/FO", "CSV", "/NH"},
		parseProcs: parseTasklist,
		terminate:  func(pid int) command { return command{"taskkill", "/PID", strconv.Itoa(pid)} },
		kill:       func(pid int) command { return command{"taskkill", "/F", "/PID", strconv.Itoa(pid)} },
		killByName: func(name string) command { return command{"taskkill", "/IM", name, "/F"} },
		open:       func(target string) command { return command{"cmd", "/c", "start", "", target} },
		shell:      func(line string) command { return command{"powershell", "-NoProfile", "-Command", line} },
		screenshot: func(path string) command {
			script := "Add-Type -AssemblyName System.Windows.Forms,System.Drawing; " +
				"$b=[System.Windows.Forms.SystemInformation]::VirtualScreen; " +
				"$bmp=New-Object System.Drawing.Bitmap $b.Width,$b.Height; " +
				"$g=[System.Drawing.Graphics]::FromImage($bmp); " +
				"$g.CopyFromScreen($b.Location,[System.Drawing.Point]::Empty,$b.Size); " +
				"$bmp.Save('" + strings.ReplaceAll(path, "'", "''") + "')"
			return command{"powershell", "-NoProfile", "-Command", script}
		},
		lock:     command{"rundll32.exe", "user32.dll,LockWorkStation"},
		minimize: command{"powershell", "-Command", "(New-Object -ComObject Shell.Application).MinimizeAll()"},
		apps: []appEntry{
			{"google chrome", []string{"chrome.exe"}},
			{"chrome", []string{"chrome.exe"}},
			{"firefox", []string{"firefox.exe"}},
			{"microsoft edge", []string{"msedge.exe"}},
			{"edge", []string{"msedge.exe"}},
			{"brave", []string{"brave.exe"}},
			{"opera", []string{"opera.exe"}},
			{"notepad", []string{"notepad.exe", "notepad++.exe"}},
			{"visual studio code", []string{"code.exe"}},
			{"vscode", []string{"code.exe"}},
			{"word", []string{"winword.exe"}},
			{"excel", []string{"excel.exe"}},
			{"powerpoint", []string{"powerpnt.exe"}},
			{"outlook", []string{"outlook.exe"}},
			{"teams", []string{"ms-teams.exe", "teams.exe"}},
			{"discord", []string{"discord.exe"}},
			{"slack", []string{"slack.exe"}},
			{"spotify", []string{"spotify.exe"}},
			{"telegram", []string{"telegram.exe"}},
			{"steam", []string{"steam.exe"}},
			{"vlc", []string{"vlc.exe"}},
			{"obs", []string{"obs64.exe", "obs32.exe"}},
			{"intellij", []string{"idea64.exe", "idea.exe"}},
			{"task manager", []string{"taskmgr.exe"}},
			{"calculator", []string{"calculator.exe", "calc.exe"}},
			{"paint", []string{"mspaint.exe"}},
			{"terminal", []string{"windowsterminal.exe", "wt.exe"}},
			{"powershell", []string{"powershell.exe", "pwsh.exe"}},
			{"cmd", []string{"cmd.exe"}},
		},
		launch: []launchEntry{
			{"google chrome", command{"cmd", "/c", "start", "chrome"}},
			{"chrome", command{"cmd", "/c", "start", "chrome"}},
			{"firefox", command{"cmd", "/c", "start", "firefox"}},
			{"edge", command{"cmd", "/c", "start", "msedge:"}},
			{"notepad", command{"notepad.exe"}},
			{"calculator", command{"calc.exe"}},
			{"paint", command{"mspaint.exe"}},
			{"file explorer", command{"explorer.exe"}},
			{"explorer", command{"explorer.exe"}},
			{"terminal", command{"cmd", "/c", "start", "", "wt.exe"}},
			{"command prompt", command{"cmd", "/c", "start", "", "cmd.exe"}},
			{"cmd", command{"cmd", "/c", "start", "", "cmd.exe"}},
			{"powershell", command{"cmd", "/c", "start", "", "powershell.exe"}},
			{"task manager", command{"taskmgr.exe"}},
			{"settings", command{"cmd", "/c", "start", "ms-settings:"}},
			{"control panel", command{"control.exe"}},
			{"spotify", command{"cmd", "/c", "start", "spotify:"}},
		},
		guessProcess: func(app string) string {
			return strings.Join(strings.Fields(app), "") + ".exe"
		},
		launchUnknown: func(app string) command { return command{"cmd", "/c", "start", "", app} },
		protected: []string{
			"explorer.exe", "csrss.exe", "wininit.exe", "winlogon.exe", "smss.exe",
			"services.exe", "lsass.exe", "svchost.exe", "dwm.exe", "conhost.exe",
			"system", "registry", "idle", "taskhostw.exe", "sihost.exe",
			"fontdrvhost.exe", "searchhost.exe", "startmenuexperiencehost.exe",
			"shellexperiencehost.exe", "runtimebroker.exe", "textinputhost.exe",
			"ctfmon.exe", "dllhost.exe", "securityhealthservice.exe",
			"securityhealthsystray.exe", "msmpeng.exe", "nissrv.exe",
			"tasklist.exe", "deskclaw.exe",
		},
		browsers: []string{"chrome.exe", "firefox.exe", "msedge.exe", "brave.exe", "opera.exe"},
	}
}

func unixPlatform(goos string) platform {
	return platform{
		goos:       goos,
		listProcs:  command{"ps", "-x", "-o", "pid=,comm="},
		parseProcs: parsePS,
		terminate:  func(pid int) command { return command{"kill", "-TERM", strconv.Itoa(pid)} },
		kill:       func(pid int) command { return command{"kill", "-KILL", strconv.Itoa(pid)} },
		killByName: func(name string) command { return command{"pkill", "-x", name} },
		shell:      func(line string) command { return command{"sh", "-c", line} },
		guessProcess: func(app string) string {
			return strings.Join(strings.Fields(app), "-")
		},
		protected: []string{
			"systemd", "init", "launchd", "login", "sshd", "sudo",
			"sh", "bash", "zsh", "fish", "tmux", "screen", "ps",
			"dbus-daemon", "pipewire", "pulseaudio", "xorg", "xwayland",
			"gnome-shell", "gnome-session-binary", "plasmashell", "kwin_x11", "kwin_wayland",
			"loginwindow", "windowserver", "dock", "finder", "systemuiserver",
			"deskclaw",
		},
	}
}

func darwinPlatform() platform {
	p := unixPlatform("darwin")
	p.open = func(target string) command { return command{"open", target} }
	p.screenshot = func(path string) command { return command{"screencapture", "-x", path} }
	p.lock = command{"pmset", "displaysleepnow"}
	p.minimize = command{"osascript", "-e",
		`tell application "System Events" to set visible of every process whose visible is true and name is not "Finder" to false`}
	p.apps = []appEntry{
		{"google chrome", []string{"Google Chrome"}},
		{"chrome", []string{"Google Chrome"}},
		{"firefox", []string{"firefox"}},
		{"safari", []string{"Safari"}},
		{"edge", []string{"Microsoft Edge"}},
		{"brave", []string{"Brave Browser"}},
		{"visual studio code", []string{"Electron", "Code"}},
		{"vscode", []string{"Electron", "Code"}},
		{"slack", []string{"Slack"}},
		{"discord", []string{"Discord"}},
		{"spotify", []string{"Spotify"}},
		{"telegram", []string{"Telegram"}},
		{"terminal", []string{"Terminal"}},
		{"calculator", []string{"Calculator"}},
	}
	p.launch = []launchEntry{
		{"google chrome", command{"open", "-a", "Google Chrome"}},
		{"chrome", command{"open", "-a", "Google Chrome"}},
		{"firefox", command{"open", "-a", "Firefox"}},
		{"safari", command{"open", "-a", "Safari"}},
		{"terminal", command{"open", "-a", "Terminal"}},
		{"calculator", command{"open", "-a", "Calculator"}},
		{"finder", command{"open", "-a", "Finder"}},
		{"settings", command{"open", "-a", "System Settings"}},
	}
	p.launchUnknown = func(app string) command { return command{"open", "-a", app} }
	p.browsers = []string{"Google Chrome", "firefox", "Safari", "Microsoft Edge", "Brave Browser"}
	return p
}

func linuxPlatform(goos string) platform {
	p := unixPlatform(goos)
	p.open = func(target string) command { return command{"xdg-open", target} }
	p.screenshot = func(path string) command { return command{"gnome-screenshot", "-f", path} }
	p.lock = command{"loginctl", "lock-session"}
	p.minimize = command{"wmctrl", "-k", "on"}
	p.apps = []appEntry{
		{"google chrome", []string{"chrome", "google-chrome"}},
		{"chrome", []string{"chrome", "google-chrome"}},
		{"chromium", []string{"chromium", "chromium-browser"}},
		{"firefox", []string{"firefox", "firefox-esr"}},
		{"brave", []string{"brave"}},
		{"visual studio code", []string{"code"}},
		{"vscode", []string{"code"}},
		{"slack", []string{"slack"}},
		{"discord", []string{"Discord"}},
		{"spotify", []string{"spotify"}},
		{"telegram", []string{"telegram-desktop"}},
		{"vlc", []string{"vlc"}},
		{"terminal", []string{"gnome-terminal-server", "konsole"}},
		{"calculator", []string{"gnome-calculator"}},
		{"file explorer", []string{"nautilus"}},
	}
	p.launch = []launchEntry{
		{"google chrome", command{"google-chrome"}},
		{"chrome", command{"google-chrome"}},
		{"chromium", command{"chromium"}},
		{"firefox", command{"firefox"}},
		{"visual studio code", command{"code"}},
		{"vscode", command{"code"}},
		{"terminal", command{"x-terminal-emulator"}},
		{"calculator", command{"gnome-calculator"}},
		{"file explorer", command{"xdg-open", "."}},
		{"files", command{"xdg-open", "."}},
		{"settings", command{"gnome-control-center"}},
	}
	p.launchUnknown = func(app string) command { return command{p.guessProcess(app)} }
	p.browsers = []string{"chrome", "chromium", "firefox", "brave", "opera", "msedge"}
	return p
}

// parseTasklist reads `tasklist /FO CSV /NH` output:
// "name.exe","PID","Session","Session#","MemUsage".
func parseTasklist(out string) []process {
	var procs []process
	for _, line := range strings.Split(out, "\n") {
		parts := strings.Split(strings.TrimSpace(line), `","`)
		if len(parts) < 2 {
			continue
		}
		name := strings.TrimSpace(strings.ReplaceAll(parts[0], `"`, ""))
		pid, err := strconv.Atoi(strings.TrimSpace(strings.ReplaceAll(parts[1], `"`, "")))
		if name == "" || err != nil {
			continue
		}
		procs = append(procs, process{Name: name, PID: pid})
	}
	return procs
}

// parsePS reads `ps -o pid=,comm=` output. comm may be a full path on
// macOS; only the base name is kept.
func parsePS(out string) []process {
	var procs []process
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		pid, err := strconv.Atoi(fields[0])
		if err != nil {
			continue
		}
		name := strings.Join(fields[1:], " ")
		if i := strings.LastIndex(name, "/"); i >= 0 {
			name = name[i+1:]
		}
		procs = append(procs, process{Name: name, PID: pid})
	}
	return procs
}
