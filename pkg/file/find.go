package file

import (
	"os"
	"path/filepath"
	"time"
)

// FindOlderThan walks dir and returns every regular file whose mtime is
// before cutoff. Used by the upload-retention cleanup.
func FindOlderThan(dir string, cutoff time.Time) ([]string, error) {
	var stale []string

	err := filepath.Walk(dir, func(path string, info os.FileInfo,
		err error) error {
		if err != nil {
			return err
		}

		if !info.IsDir() && info.ModTime().Before(cutoff) {
			stale = append(stale, path)
		}
		return nil
	})

	return stale, err
}
