package providers

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/jholhewres/deskclaw/pkg/deskclaw/collector"
)

// Files opens, copies and deletes single files for the user.
type Files struct {
	sys    *System
	logger *slog.Logger
}

// NewFiles creates a Files provider that opens paths through sys.
func NewFiles(sys *System, logger *slog.Logger) *Files {
	if logger == nil {
		logger = slog.Default()
	}
	return &Files{sys: sys, logger: logger.With("component", "files")}
}

func absPath(p string) string {
	p = strings.TrimSpace(p)
	if p == "~" || strings.HasPrefix(p, "~/") || strings.HasPrefix(p, `~\`) {
		if home, err := os.UserHomeDir(); err == nil {
			p = filepath.Join(home, p[1:])
		}
	}
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

// Open shows a file or folder with the desktop's default handler.
func (f *Files) Open(path string) string {
	if strings.TrimSpace(path) == "" {
		return "Which file or folder should I open?"
	}
	p := absPath(path)
	if _, err := os.Stat(p); err != nil {
		return "Path not found: " + p
	}
	if err := f.sys.Open(p); err != nil {
		f.logger.Warn("open failed", "path", p, "error", err)
		return "Failed to open " + p + "."
	}
	return "Opened: " + p
}

// Copy copies source to destination. A destination that is an existing
// directory receives the file under its own name.
func (f *Files) Copy(source, destination string) string {
	if strings.TrimSpace(source) == "" || strings.TrimSpace(destination) == "" {
		return "Please tell me what to copy and where to put it."
	}
	src, dst := absPath(source), absPath(destination)
	info, err := os.Stat(src)
	if err != nil {
		return "Source not found: " + src
	}
	if info.IsDir() {
		return "I can only copy individual files, not directories. Path: " + src
	}
	if st, err := os.Stat(dst); err == nil && st.IsDir() {
		dst = filepath.Join(dst, filepath.Base(src))
	}
	if _, err := collector.CopyFile(src, dst); err != nil {
		f.logger.Warn("copy failed", "source", src, "destination", dst, "error", err)
		return "Copy failed: " + describeFSError(err)
	}
	f.logger.Info("file copied", "source", src, "destination", dst)
	return "Copied " + filepath.Base(src) + " to " + dst
}

// Delete removes one regular file. Directories are refused.
func (f *Files) Delete(path string) string {
	if strings.TrimSpace(path) == "" {
		return "Which file should I delete?"
	}
	p := absPath(path)
	info, err := os.Lstat(p)
	if err != nil {
		return "File not found: " + p
	}
	if info.IsDir() {
		return "I can only delete individual files, not directories. Path: " + p
	}
	if err := os.Remove(p); err != nil {
		f.logger.Warn("delete failed", "path", p, "error", err)
		return "Delete failed: " + describeFSError(err)
	}
	f.logger.Info("file deleted", "path", p, "size", info.Size())
	return "Deleted: " + p + " (" + collector.FormatSize(info.Size()) + ")"
}

func describeFSError(err error) string {
	switch {
	case errors.Is(err, fs.ErrPermission):
		return "permission denied."
	case errors.Is(err, fs.ErrNotExist):
		return "the path does not exist."
	case errors.Is(err, fs.ErrExist):
		return "the destination already exists."
	default:
		return "the file system reported an error."
	}
}
