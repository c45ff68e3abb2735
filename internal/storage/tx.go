package storage

import (
	"gitlab.com/gitlab-org/textshard/internal/safe"
)

// Tx stages shard file writes and removals which become visible together on Commit.
type Tx struct {
	disk     *Disk
	tx       *safe.Transaction
	touched  []Key
	writes   int
	removals int
}

func newTx(d *Disk) *Tx {
	return &Tx{disk: d, tx: safe.NewTransaction()}
}

// Put stages data to be written under key.
func (t *Tx) Put(key Key, data []byte) error {
	if err := t.tx.Write(t.disk.Path(key), data); err != nil {
		return err
	}

	t.touched = append(t.touched, key)
	t.writes++

	return nil
}

// Delete stages the removal of the file addressed by key.
func (t *Tx) Delete(key Key) error {
	if err := t.tx.Remove(t.disk.Path(key)); err != nil {
		return err
	}

	t.touched = append(t.touched, key)
	t.removals++

	return nil
}

// Staged returns the number of staged writes and removals.
func (t *Tx) Staged() (writes, removals int) {
	return t.writes, t.removals
}

// Commit makes all staged changes visible.
func (t *Tx) Commit() error {
	defer t.disk.invalidate(t.touched)
	return t.tx.Commit()
}

// Rollback discards all staged changes. It is a no-op after Commit.
func (t *Tx) Rollback() error {
	return t.tx.Rollback()
}
