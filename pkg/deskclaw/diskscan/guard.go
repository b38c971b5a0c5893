package diskscan

import (
	"path/filepath"
	"strings"
)

// alwaysBlocked are OS-critical locations no caller may inspect. Markers
// are in normalized form (lower case, backslash separators).
var alwaysBlocked = []string{
	`windows\system32`,
	`windows\syswow64`,
	`system volume information`,
	`$recycle.bin`,
	`\appdata\local\temp`,
	`\programdata\microsoft\windows\`,
	`\etc\shadow`,
	`\etc\passwd`,
	`\etc\sudoers`,
	`\proc`,
	`\sys`,
	`\dev`,
	`\private\etc\master.passwd`,
}

// Normalize cleans p, makes it absolute, lower-cases it and converts every
// separator to a backslash. It only does string work.
func Normalize(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	if abs, err := filepath.Abs(p); err == nil {
		p = abs
	} else {
		p = filepath.Clean(p)
	}
	return strings.ReplaceAll(strings.ToLower(p), "/", `\`)
}

// guard matches normalized paths against blocked markers.
type guard struct {
	markers []string
}

func newGuard(configured []string) *guard {
	markers := make([]string, 0, len(alwaysBlocked)+len(configured))
	markers = append(markers, alwaysBlocked...)
	for _, c := range configured {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if filepath.IsAbs(c) || strings.HasPrefix(c, "~") {
			c = Normalize(expandHome(c))
		} else {
			c = strings.ReplaceAll(strings.ToLower(c), "/", `\`)
		}
		markers = append(markers, c)
	}
	return &guard{markers: markers}
}

// blocked reports whether the normalized path contains any marker. Absolute
// configured markers are normalized the same way, so a substring match also
// covers their prefixes.
func (g *guard) blocked(norm string) bool {
	for _, m := range g.markers {
		if strings.Contains(norm, m) {
			return true
		}
	}
	return false
}
