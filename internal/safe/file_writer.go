package safe

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const tempFileMarker = ".tmp-"

// ErrAlreadyDone is returned when the safe file has already been closed
// or committed
var ErrAlreadyDone = errors.New("safe file was already committed or closed")

// FileWriter does an atomic write to the target file. Contents are written to a temporary file
// next to the target and only become visible once Commit renames it into place.
type FileWriter struct {
	tmpFile       *os.File
	path          string
	commitOrClose sync.Once
}

// FileWriterConfig contains configuration for the `NewFileWriter()` function.
type FileWriterConfig struct {
	// FileMode is the desired file mode of the committed target file. If left at its default
	// value, then no file mode will be explicitly set for the file.
	FileMode os.FileMode
}

// NewFileWriter takes path as an absolute path of the target file and creates a new FileWriter by
// attempting to create a tempfile. This function either takes no FileWriterConfig or exactly one.
func NewFileWriter(path string, optionalCfg ...FileWriterConfig) (*FileWriter, error) {
	var cfg FileWriterConfig
	if len(optionalCfg) == 1 {
		cfg = optionalCfg[0]
	} else if len(optionalCfg) > 1 {
		return nil, fmt.Errorf("file writer created with more than one config")
	}

	writer := &FileWriter{path: path}

	// The leading dot keeps staged files out of shard listings.
	tmpFile, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+tempFileMarker)
	if err != nil {
		return nil, err
	}
	writer.tmpFile = tmpFile

	if cfg.FileMode != 0 {
		if err := tmpFile.Chmod(cfg.FileMode); err != nil {
			_ = writer.Close()
			return nil, err
		}
	}

	return writer, nil
}

// WriteFile atomically replaces the file at path with data.
func WriteFile(path string, data []byte, optionalCfg ...FileWriterConfig) error {
	writer, err := NewFileWriter(path, optionalCfg...)
	if err != nil {
		return fmt.Errorf("creating file writer: %w", err)
	}

	if _, err := writer.Write(data); err != nil {
		_ = writer.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}

	return writer.Commit()
}

// Write wraps the temporary file's Write.
func (fw *FileWriter) Write(p []byte) (n int, err error) {
	return fw.tmpFile.Write(p)
}

// Path returns the target path of the writer.
func (fw *FileWriter) Path() string {
	return fw.path
}

// Commit will close the temporary file and rename it to the target file name
// the first call to Commit() will close and delete the temporary file, so
// subsequently calls to Commit() are gauaranteed to return an error.
func (fw *FileWriter) Commit() error {
	err := ErrAlreadyDone

	fw.commitOrClose.Do(func() {
		if err = fw.flush(); err != nil {
			_ = fw.discard()
			return
		}

		if err = fw.rename(); err != nil {
			_ = fw.discard()
			err = fmt.Errorf("renaming temp file: %w", err)
			return
		}

		if err = syncDir(filepath.Dir(fw.path)); err != nil {
			err = fmt.Errorf("syncing dir: %w", err)
			return
		}
	})

	return err
}

// flush makes the temporary file durable without publishing it.
func (fw *FileWriter) flush() error {
	if err := fw.tmpFile.Sync(); err != nil {
		return fmt.Errorf("syncing temp file: %w", err)
	}

	if err := fw.tmpFile.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}

	return nil
}

// rename renames the temporary file to the target file
func (fw *FileWriter) rename() error {
	return os.Rename(fw.tmpFile.Name(), fw.path)
}

// syncDir will sync the directory
func syncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()

	return f.Sync()
}

// Close will close and remove the temp file artifact if it exists. If the file
// was already committed, an ErrAlreadyClosed error will be returned and no
// changes will be made to the filesystem.
func (fw *FileWriter) Close() error {
	err := ErrAlreadyDone

	fw.commitOrClose.Do(func() {
		err = fw.discard()
	})

	return err
}

func (fw *FileWriter) discard() error {
	// The file may already be closed by flush.
	_ = fw.tmpFile.Close()

	if err := os.Remove(fw.tmpFile.Name()); err != nil && !os.IsNotExist(err) {
		return err
	}

	return nil
}
