package collector

import (
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// CategoryRule maps a category name to the file extensions it collects.
// Extensions are lower-case and dot-prefixed.
type CategoryRule struct {
	Name       string
	Extensions map[string]struct{}

	// Aliases are the words that name the category in a request.
	Aliases []string
}

// Matches reports whether the file name carries one of the rule's
// extensions. Files without an extension never match.
func (r CategoryRule) Matches(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" || ext == "." {
		return false
	}
	_, ok := r.Extensions[ext]
	return ok
}

func newRule(name string, aliases []string, exts ...string) CategoryRule {
	set := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		set[e] = struct{}{}
	}
	return CategoryRule{Name: name, Extensions: set, Aliases: aliases}
}

var categories = map[string]CategoryRule{
	"photos": newRule("photos", []string{"photo", "image", "picture", "pic"},
		".jpg", ".jpeg", ".png", ".gif", ".bmp", ".webp", ".tiff", ".tif",
		".heic", ".heif", ".svg", ".ico", ".raw", ".cr2", ".nef", ".arw"),
	"videos": newRule("videos", []string{"video", "movie", "clip"},
		".mp4", ".avi", ".mkv", ".mov", ".wmv", ".flv", ".webm", ".m4v",
		".mpg", ".mpeg", ".3gp", ".ts"),
	"music": newRule("music", []string{"music", "song", "audio", "mp3"},
		".mp3", ".wav", ".flac", ".aac", ".ogg", ".wma", ".m4a", ".opus"),
	"documents": newRule("documents", []string{"document", "doc", "pdf", "spreadsheet"},
		".pdf", ".doc", ".docx", ".xls", ".xlsx", ".ppt", ".pptx", ".txt",
		".rtf", ".odt", ".ods", ".odp", ".csv"),
	"archives": newRule("archives", []string{"archive", "zip", "compressed"},
		".zip", ".rar", ".7z", ".tar", ".gz", ".bz2", ".xz"),
}

// categoryOrder fixes the alias lookup order so "photos" wins over later
// categories when a request names several.
var categoryOrder = []string{"photos", "videos", "music", "documents", "archives"}

var aliasPatterns = func() map[string]*regexp.Regexp {
	m := make(map[string]*regexp.Regexp, len(categories))
	for name, rule := range categories {
		words := make([]string, len(rule.Aliases))
		for i, a := range rule.Aliases {
			words[i] = regexp.QuoteMeta(a)
		}
		m[name] = regexp.MustCompile(`\b(?:` + strings.Join(words, "|") + `)s?\b`)
	}
	return m
}()

// LookupCategory returns the rule for a category name (case-insensitive).
func LookupCategory(name string) (CategoryRule, bool) {
	r, ok := categories[strings.ToLower(strings.TrimSpace(name))]
	return r, ok
}

// CategoryNames returns the known category names in a stable order.
func CategoryNames() []string {
	names := make([]string, 0, len(categories))
	for n := range categories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// CategoryFromText finds the first category whose alias appears as a word
// in the lower-cased text.
func CategoryFromText(lower string) (string, bool) {
	for _, name := range categoryOrder {
		if aliasPatterns[name].MatchString(lower) {
			return name, true
		}
	}
	return "", false
}
