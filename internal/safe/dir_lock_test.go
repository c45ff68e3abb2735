package safe_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gitlab.com/gitlab-org/textshard/internal/safe"
	"gitlab.com/gitlab-org/textshard/internal/testhelper"
)

func TestLockDir(t *testing.T) {
	dir := filepath.Join(testhelper.TempDir(t), "data")

	lock, err := safe.LockDir(dir)
	require.NoError(t, err)
	require.FileExists(t, filepath.Join(dir, safe.LockFileName))

	_, err = safe.LockDir(dir)
	require.Equal(t, safe.ErrLocked, err)

	require.NoError(t, lock.Unlock())
	require.Equal(t, safe.ErrAlreadyDone, lock.Unlock())

	relocked, err := safe.LockDir(dir)
	require.NoError(t, err)
	require.NoError(t, relocked.Unlock())
}
