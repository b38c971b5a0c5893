package collector

import (
	"path/filepath"
	"strings"
)

// defaultSkipMarkers are system, cache and build directories never worth
// scanning. They are matched as substrings of the normalized path.
var defaultSkipMarkers = []string{
	"windows",
	"program files",
	"program files (x86)",
	"$recycle.bin",
	"system volume information",
	"programdata",
	"recovery",
	`appdata\local\temp`,
	`appdata\local\microsoft`,
	"node_modules",
	".git",
	".gradle",
	".m2",
	"target",
	"build",
}

// SkipList decides which directories a scan prunes.
type SkipList struct {
	markers []string
	base    string
}

// NewSkipList builds a skip list from the built-in markers plus extras.
// Everything under base (the collection folder) is always skipped.
func NewSkipList(base string, extra ...string) *SkipList {
	markers := make([]string, 0, len(defaultSkipMarkers)+len(extra))
	for _, m := range append(append([]string{}, defaultSkipMarkers...), extra...) {
		if m = NormalizePath(m); m != "" {
			markers = append(markers, m)
		}
	}
	sl := &SkipList{markers: markers}
	if base != "" {
		if abs, err := filepath.Abs(base); err == nil {
			base = abs
		}
		sl.base = NormalizePath(base)
	}
	return sl
}

// NormalizePath lower-cases p and turns every forward slash into a
// backslash so markers match regardless of separator style.
func NormalizePath(p string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(p)), "/", `\`)
}

// Skip reports whether the directory at path should be pruned.
func (sl *SkipList) Skip(path string) bool {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	norm := NormalizePath(path)

	if sl.base != "" && (norm == sl.base || strings.HasPrefix(norm, sl.base+`\`)) {
		return true
	}
	for _, m := range sl.markers {
		if strings.Contains(norm, m) {
			return true
		}
	}

	name := filepath.Base(path)
	return strings.HasPrefix(name, ".") && name != "." && name != ".."
}
