package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseKey(t *testing.T) {
	for _, tc := range []struct {
		desc        string
		name        string
		expectedKey Key
		expectedErr bool
	}{
		{desc: "primary", name: "0.txt", expectedKey: PrimaryKey(0)},
		{desc: "multi digit primary", name: "12.txt", expectedKey: PrimaryKey(12)},
		{desc: "replica", name: "3-1.txt", expectedKey: ReplicaKey(3, 1)},
		{desc: "deep replica", name: "10-25.txt", expectedKey: ReplicaKey(10, 25)},
		{desc: "leading zero", name: "01.txt", expectedErr: true},
		{desc: "leading zero level", name: "1-01.txt", expectedErr: true},
		{desc: "level zero", name: "1-0.txt", expectedErr: true},
		{desc: "negative id", name: "-1.txt", expectedErr: true},
		{desc: "plus sign", name: "+1.txt", expectedErr: true},
		{desc: "missing level", name: "1-.txt", expectedErr: true},
		{desc: "too many separators", name: "1-2-3.txt", expectedErr: true},
		{desc: "wrong extension", name: "1.json", expectedErr: true},
		{desc: "index file", name: "mapping.json", expectedErr: true},
		{desc: "temporary file", name: ".0.txt.tmp-1234", expectedErr: true},
		{desc: "lock file", name: ".textshard.lock", expectedErr: true},
		{desc: "empty", name: "", expectedErr: true},
	} {
		t.Run(tc.desc, func(t *testing.T) {
			key, err := ParseKey(tc.name)
			if tc.expectedErr {
				require.ErrorIs(t, err, ErrInvalidKey)
				return
			}

			require.NoError(t, err)
			require.Equal(t, tc.expectedKey, key)
			require.Equal(t, tc.name, key.Name())
		})
	}
}

func TestKey(t *testing.T) {
	require.True(t, PrimaryKey(4).IsPrimary())
	require.False(t, ReplicaKey(4, 2).IsPrimary())
	require.Equal(t, PrimaryKey(4), ReplicaKey(4, 2).Primary())
	require.Equal(t, "4-2.txt", ReplicaKey(4, 2).String())
}

func TestSortKeys(t *testing.T) {
	keys := []Key{
		ReplicaKey(10, 1),
		PrimaryKey(2),
		ReplicaKey(2, 2),
		PrimaryKey(10),
		ReplicaKey(2, 1),
		PrimaryKey(9),
	}

	SortKeys(keys)

	require.Equal(t, []Key{
		PrimaryKey(2),
		ReplicaKey(2, 1),
		ReplicaKey(2, 2),
		PrimaryKey(9),
		PrimaryKey(10),
		ReplicaKey(10, 1),
	}, keys)
}

func TestListing(t *testing.T) {
	listing := NewListing([]Key{
		PrimaryKey(0),
		PrimaryKey(10),
		PrimaryKey(2),
		ReplicaKey(0, 1),
		ReplicaKey(0, 2),
		ReplicaKey(2, 1),
		ReplicaKey(11, 3),
	})

	require.Equal(t, []int{0, 2, 10}, listing.Primaries())
	require.True(t, listing.HasPrimary(10))
	require.False(t, listing.HasPrimary(1))
	require.True(t, listing.HasReplica(0, 2))
	require.False(t, listing.HasReplica(2, 2))
	require.Equal(t, []int{1, 2}, listing.ReplicaLevels(0))
	require.Empty(t, listing.ReplicaLevels(10))
	require.Equal(t, 3, listing.MaxLevel())
	require.Equal(t, []int{0, 2, 10, 11}, listing.IDs())
	require.False(t, listing.Empty())
	require.Equal(t, []Key{
		ReplicaKey(0, 1),
		ReplicaKey(0, 2),
		ReplicaKey(2, 1),
		ReplicaKey(11, 3),
	}, listing.ReplicaKeys())

	empty := NewListing(nil)
	require.True(t, empty.Empty())
	require.Empty(t, empty.IDs())
	require.Equal(t, 0, empty.MaxLevel())
	require.Empty(t, empty.Primaries())
}
