// +build postgres

package index

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gitlab.com/gitlab-org/textshard/internal/testhelper"
)

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("TEXTSHARD_TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("TEXTSHARD_TEST_DATABASE_DSN is not set")
	}

	ctx, cancel := testhelper.Context(testhelper.ContextWithTimeout(30 * time.Second))
	defer cancel()

	db, err := OpenDB(ctx, dsn)
	require.NoError(t, err)
	defer db.Close()

	_, err = Migrate(db)
	require.NoError(t, err)

	_, err = db.ExecContext(ctx, "TRUNCATE shard_ranges")
	require.NoError(t, err)

	store := NewPostgresStore(db)

	m, err := store.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, Mapping{}, m)

	expected := Mapping{
		0: {Start: 0, End: 6},
		1: {Start: 6, End: 12},
		2: {Start: 12, End: 26},
	}
	require.NoError(t, store.Save(ctx, expected))

	m, err = store.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, expected, m)

	require.NoError(t, store.Save(ctx, Mapping{0: {Start: 0, End: 26}}))
	m, err = store.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, Mapping{0: {Start: 0, End: 26}}, m)

	applied, err := Migrate(db)
	require.NoError(t, err)
	require.Zero(t, applied)
}
