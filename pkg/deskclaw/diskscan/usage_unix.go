//go:build unix

package diskscan

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"golang.org/x/sys/unix"
)

func diskUsage(path string) (total, free, usable uint64, err error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, 0, 0, err
	}
	bs := uint64(st.Bsize)
	return uint64(st.Blocks) * bs, uint64(st.Bfree) * bs, uint64(st.Bavail) * bs, nil
}

func canWrite(path string) bool {
	return unix.Access(path, unix.W_OK) == nil
}

func isHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}

// volumePaths lists "/" plus directories mounted under the usual
// removable-media locations.
func volumePaths() []string {
	out := []string{"/"}
	var parents []string
	if runtime.GOOS == "darwin" {
		parents = []string{"/Volumes"}
	} else {
		parents = []string{"/mnt", "/media"}
		if u := os.Getenv("USER"); u != "" {
			parents = append(parents, filepath.Join("/media", u))
		}
	}
	for _, p := range parents {
		entries, err := os.ReadDir(p)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() {
				out = append(out, filepath.Join(p, e.Name()))
			}
		}
	}
	return out
}
