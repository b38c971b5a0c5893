package collector

import (
	"path/filepath"
	"testing"
)

func TestSkipListMarkers(t *testing.T) {
	t.Parallel()

	sl := NewSkipList("/data/collected", "Steam Library")
	tests := []struct {
		path string
		want bool
	}{
		{`C:\Windows\System32`, true},
		{"/mnt/c/WINDOWS/fonts", true},
		{`D:\$Recycle.Bin`, true},
		{`C:\Users\me\AppData\Local\Temp\x`, true},
		{"/c/users/me/appdata/LOCAL/temp", true},
		{"/home/me/project/node_modules", true},
		{"/home/me/.config", true},
		{"/home/me/games/steam library/common", true},
		{"/data/collected", true},
		{"/data/collected/photos", true},
		{"/data/collected-old", false},
		{"/home/me/Pictures", false},
		{"/home/me/Documents/taxes", false},
	}
	for _, tt := range tests {
		if got := sl.Skip(filepath.FromSlash(tt.path)); got != tt.want {
			t.Errorf("Skip(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestCategoryMatches(t *testing.T) {
	t.Parallel()

	photos, ok := LookupCategory(" Photos ")
	if !ok {
		t.Fatal("photos category missing")
	}
	tests := []struct {
		name string
		want bool
	}{
		{"IMG_001.JPG", true},
		{"shot.heic", true},
		{"README", false},
		{"archive.", false},
		{".jpg", true},
		{"clip.mp4", false},
	}
	for _, tt := range tests {
		if got := photos.Matches(tt.name); got != tt.want {
			t.Errorf("Matches(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestCategoryFromText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text string
		want string
		ok   bool
	}{
		{"get my pictures", "photos", true},
		{"backup every song", "music", true},
		{"collect my pdfs", "documents", true},
		{"grab zip files", "archives", true},
		{"copy the clips", "videos", true},
		{"epicness", "", false},
	}
	for _, tt := range tests {
		got, ok := CategoryFromText(tt.text)
		if got != tt.want || ok != tt.ok {
			t.Errorf("CategoryFromText(%q) = (%q, %v), want (%q, %v)", tt.text, got, ok, tt.want, tt.ok)
		}
	}
}

func TestUniqueNameFlattensPath(t *testing.T) {
	t.Parallel()

	root := ScanRoot{Path: filepath.FromSlash("/home/me"), ID: "home"}
	got, err := UniqueName(root, filepath.FromSlash("/home/me/Pictures/2024/a.jpg"))
	if err != nil {
		t.Fatal(err)
	}
	if got != "home_Pictures_2024_a.jpg" {
		t.Errorf("UniqueName = %q", got)
	}
}
