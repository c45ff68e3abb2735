package safe_test

import (
	"io/fs"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gitlab.com/gitlab-org/textshard/internal/safe"
	"gitlab.com/gitlab-org/textshard/internal/testhelper"
)

func TestTransaction_commit(t *testing.T) {
	dir := testhelper.TempDir(t)
	testhelper.WriteFiles(t, dir, map[string]string{
		"0.txt": "old zero",
		"1.txt": "old one",
		"2.txt": "doomed",
	})

	tx := safe.NewTransaction()
	require.NoError(t, tx.Write(filepath.Join(dir, "0.txt"), []byte("new zero")))
	require.NoError(t, tx.Write(filepath.Join(dir, "1.txt"), []byte("new one")))
	require.NoError(t, tx.Write(filepath.Join(dir, "3.txt"), []byte("brand new")))
	require.NoError(t, tx.Remove(filepath.Join(dir, "2.txt")))
	require.NoError(t, tx.Remove(filepath.Join(dir, "missing.txt")))

	// Nothing is visible before the commit.
	require.Equal(t, map[string]string{
		"0.txt": "old zero",
		"1.txt": "old one",
		"2.txt": "doomed",
	}, testhelper.DirContents(t, dir))

	require.NoError(t, tx.Commit())

	require.Equal(t, []string{"0.txt", "1.txt", "3.txt"}, testhelper.DirNames(t, dir))
	require.Equal(t, map[string]string{
		"0.txt": "new zero",
		"1.txt": "new one",
		"3.txt": "brand new",
	}, testhelper.DirContents(t, dir))

	require.Equal(t, safe.ErrTransactionDone, tx.Commit())
	require.NoError(t, tx.Rollback())
}

func TestTransaction_rollback(t *testing.T) {
	dir := testhelper.TempDir(t)
	testhelper.WriteFiles(t, dir, map[string]string{"0.txt": "keep"})

	tx := safe.NewTransaction()
	require.NoError(t, tx.Write(filepath.Join(dir, "0.txt"), []byte("discard")))
	require.NoError(t, tx.Write(filepath.Join(dir, "1.txt"), []byte("discard")))
	require.NoError(t, tx.Remove(filepath.Join(dir, "0.txt")))
	require.NoError(t, tx.Write(filepath.Join(dir, "0.txt"), []byte("discard again")))

	require.NoError(t, tx.Rollback())

	require.Equal(t, []string{"0.txt"}, testhelper.DirNames(t, dir))
	require.Equal(t, "keep", string(testhelper.MustReadFile(t, filepath.Join(dir, "0.txt"))))

	require.Equal(t, safe.ErrTransactionDone, tx.Write(filepath.Join(dir, "2.txt"), nil))
	require.Equal(t, safe.ErrTransactionDone, tx.Remove(filepath.Join(dir, "0.txt")))
	require.Equal(t, safe.ErrTransactionDone, tx.Commit())
}

func TestTransaction_lastStagedOperationWins(t *testing.T) {
	dir := testhelper.TempDir(t)
	testhelper.WriteFiles(t, dir, map[string]string{"a": "original"})

	tx := safe.NewTransaction()
	defer func() { require.NoError(t, tx.Rollback()) }()

	require.NoError(t, tx.Write(filepath.Join(dir, "a"), []byte("first")))
	require.NoError(t, tx.Write(filepath.Join(dir, "a"), []byte("second")))
	require.NoError(t, tx.Write(filepath.Join(dir, "b"), []byte("short lived")))
	require.NoError(t, tx.Remove(filepath.Join(dir, "b")))

	require.Equal(t, []string{filepath.Join(dir, "a")}, tx.Paths())
	require.Equal(t, []string{filepath.Join(dir, "b")}, tx.Removals())

	require.NoError(t, tx.Commit())

	require.Equal(t, map[string]string{"a": "second"}, testhelper.DirContents(t, dir))
	require.Equal(t, []string{"a"}, testhelper.DirNames(t, dir))
}

func TestTransaction_writeIntoMissingDirectory(t *testing.T) {
	dir := testhelper.TempDir(t)

	tx := safe.NewTransaction()
	require.NoError(t, tx.Write(filepath.Join(dir, "0.txt"), []byte("staged")))

	err := tx.Write(filepath.Join(dir, "missing", "1.txt"), []byte("data"))
	require.ErrorIs(t, err, fs.ErrNotExist)

	require.NoError(t, tx.Rollback())
	require.Empty(t, testhelper.DirNames(t, dir))
}
