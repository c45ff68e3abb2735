package safe

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// ErrTransactionDone is returned when a transaction is used after it was committed or rolled back.
var ErrTransactionDone = errors.New("transaction was already committed or rolled back")

// Transaction stages writes and removals of many files. Staged contents are written to
// temporary files next to their targets right away, but nothing becomes visible under the
// target names until Commit. A Transaction is not safe for concurrent use.
type Transaction struct {
	writers  map[string]*FileWriter
	removals map[string]struct{}
	done     bool
}

// NewTransaction returns an empty transaction.
func NewTransaction() *Transaction {
	return &Transaction{
		writers:  make(map[string]*FileWriter),
		removals: make(map[string]struct{}),
	}
}

// Write stages data to be written to path. Staging the same path twice keeps the latest data.
func (tx *Transaction) Write(path string, data []byte) error {
	if tx.done {
		return ErrTransactionDone
	}

	writer, err := NewFileWriter(path)
	if err != nil {
		return fmt.Errorf("creating file writer: %w", err)
	}

	if _, err := writer.Write(data); err != nil {
		_ = writer.discard()
		return fmt.Errorf("writing temp file: %w", err)
	}

	if err := writer.flush(); err != nil {
		_ = writer.discard()
		return err
	}

	if previous, ok := tx.writers[path]; ok {
		_ = previous.discard()
	}
	delete(tx.removals, path)
	tx.writers[path] = writer

	return nil
}

// Remove stages the removal of path. Removing a path that does not exist at commit time is not
// an error.
func (tx *Transaction) Remove(path string) error {
	if tx.done {
		return ErrTransactionDone
	}

	if previous, ok := tx.writers[path]; ok {
		_ = previous.discard()
		delete(tx.writers, path)
	}
	tx.removals[path] = struct{}{}

	return nil
}

// Paths returns the sorted target paths of all staged writes.
func (tx *Transaction) Paths() []string {
	paths := make([]string, 0, len(tx.writers))
	for path := range tx.writers {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// Removals returns the sorted paths staged for removal.
func (tx *Transaction) Removals() []string {
	paths := make([]string, 0, len(tx.removals))
	for path := range tx.removals {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// Commit renames every staged file into place, then applies the staged removals and finally
// syncs every touched directory. If a rename fails, the staged files that were not yet renamed
// are discarded and the error is returned.
func (tx *Transaction) Commit() error {
	if tx.done {
		return ErrTransactionDone
	}
	tx.done = true

	dirs := make(map[string]struct{})

	paths := tx.Paths()
	for i, path := range paths {
		if err := tx.writers[path].rename(); err != nil {
			for _, rest := range paths[i:] {
				_ = tx.writers[rest].discard()
			}
			return fmt.Errorf("renaming temp file for %q: %w", path, err)
		}
		dirs[filepath.Dir(path)] = struct{}{}
	}

	for _, path := range tx.Removals() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing %q: %w", path, err)
		}
		dirs[filepath.Dir(path)] = struct{}{}
	}

	for dir := range dirs {
		if err := syncDir(dir); err != nil {
			return fmt.Errorf("syncing dir: %w", err)
		}
	}

	return nil
}

// Rollback discards all staged files. Calling Rollback after Commit is a no-op, which allows it
// to be deferred right after the transaction was created.
func (tx *Transaction) Rollback() error {
	if tx.done {
		return nil
	}
	tx.done = true

	var firstErr error
	for _, writer := range tx.writers {
		if err := writer.discard(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}
