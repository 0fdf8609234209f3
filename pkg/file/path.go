package file

import (
	"path/filepath"
	"strings"
)

// ReplaceExt swaps the extension of path for ext, e.g.
// ReplaceExt("meeting.mp3", ".wav") -> "meeting.wav".
func ReplaceExt(path, ext string) string {
	if path == "" {
		return path
	}

	dir := filepath.Dir(path)
	filename := filepath.Base(path)

	lastDot := strings.LastIndex(filename, ".")

	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	if lastDot <= 0 {
		return filepath.Join(dir, filename+ext)
	}

	return filepath.Join(dir, filename[:lastDot]+ext)
}

// AppendSuffix inserts a suffix before the file extension, e.g.
// AppendSuffix("meeting.mp3", "_normalized") -> "meeting_normalized.mp3".
func AppendSuffix(path, suffix string) string {
	if path == "" || suffix == "" {
		return path
	}

	dir := filepath.Dir(path)
	filename := filepath.Base(path)

	lastDot := strings.LastIndex(filename, ".")
	if lastDot <= 0 {
		return filepath.Join(dir, filename+suffix)
	}

	return filepath.Join(dir, filename[:lastDot]+suffix+filename[lastDot:])
}
