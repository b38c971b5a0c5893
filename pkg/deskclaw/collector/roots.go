package collector

import (
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"strings"
)

// ScanRoot is one directory tree walked by a scan. ID prefixes collected
// file names so files from different roots never collide.
type ScanRoot struct {
	Path string
	ID   string
}

var idUnsafe = regexp.MustCompile(`[^A-Za-z0-9-]+`)

// Roots returns the scan roots for the current host. Configured roots win;
// otherwise the home directory plus every other mounted volume that does
// not already contain it. Roots are rebuilt on every call.
func (s *Scanner) Roots() []ScanRoot {
	home, _ := os.UserHomeDir()

	var paths []string
	if len(s.cfg.Roots) > 0 {
		paths = append(paths, s.cfg.Roots...)
	} else {
		if home != "" {
			paths = append(paths, home)
		}
		if s.cfg.IncludeVolumes {
			paths = append(paths, volumeRoots(home)...)
		}
	}

	roots := make([]ScanRoot, 0, len(paths))
	used := make(map[string]int)
	for _, p := range paths {
		p = filepath.Clean(expandHome(p))
		id := rootID(p, home)
		if n := used[id]; n > 0 {
			used[id] = n + 1
			id = id + "-" + strconv.Itoa(n+1)
		} else {
			used[id] = 1
		}
		roots = append(roots, ScanRoot{Path: p, ID: id})
	}
	return roots
}

// rootID derives a short identifier: "home" for the home directory, the
// drive letter for a Windows volume, otherwise the sanitized base name.
func rootID(p, home string) string {
	if home != "" && filepath.Clean(home) == p {
		return "home"
	}
	if vol := filepath.VolumeName(p); vol != "" && len(strings.TrimRight(p, `\/`)) <= len(vol) {
		return strings.TrimSuffix(vol, ":")
	}
	id := idUnsafe.ReplaceAllString(filepath.Base(p), "-")
	id = strings.Trim(id, "-")
	if id == "" {
		return "root"
	}
	return id
}

// volumeRoots lists mounted volumes other than the one holding home.
func volumeRoots(home string) []string {
	var out []string
	switch runtime.GOOS {
	case "windows":
		homeVol := strings.ToUpper(filepath.VolumeName(home))
		for c := 'A'; c <= 'Z'; c++ {
			vol := string(c) + ":"
			if vol == homeVol {
				continue
			}
			if _, err := os.Stat(vol + `\`); err == nil {
				out = append(out, vol+`\`)
			}
		}
	case "darwin":
		out = append(out, mountedUnder("/Volumes", home)...)
	default:
		out = append(out, mountedUnder("/mnt", home)...)
		out = append(out, mountedUnder("/media", home)...)
		if u := os.Getenv("USER"); u != "" {
			out = append(out, mountedUnder(filepath.Join("/media", u), home)...)
		}
	}
	return out
}

func mountedUnder(dir, home string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		p := filepath.Join(dir, e.Name())
		if home != "" && isWithin(home, p) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// isWithin reports whether path equals dir or lies beneath it.
func isWithin(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") || strings.HasPrefix(p, `~\`) {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, p[1:])
		}
	}
	return p
}
