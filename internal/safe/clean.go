package safe

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// IsTempFile tells whether name is the name of a file staged by a FileWriter.
func IsTempFile(name string) bool {
	return strings.HasPrefix(name, ".") && strings.Contains(name, tempFileMarker)
}

// CleanTempFiles removes the files staged by FileWriters in dir that were last modified more
// than maxAge ago and returns their names. Such files are left behind when a process dies before
// committing or discarding them. The caller must hold the DirLock of dir when maxAge is zero,
// otherwise files of a concurrent writer get removed. A missing dir is not an error.
func CleanTempFiles(dir string, maxAge time.Duration) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading dir: %w", err)
	}

	var removed []string
	for _, entry := range entries {
		if entry.IsDir() || !IsTempFile(entry.Name()) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return removed, err
		}

		if time.Since(info.ModTime()) < maxAge {
			continue
		}

		if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil && !os.IsNotExist(err) {
			return removed, fmt.Errorf("removing temp file: %w", err)
		}
		removed = append(removed, entry.Name())
	}

	return removed, nil
}
