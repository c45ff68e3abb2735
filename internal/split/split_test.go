package split

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
	"gitlab.com/gitlab-org/textshard/internal/index"
	"gitlab.com/gitlab-org/textshard/internal/testhelper"
)

func TestMain(m *testing.M) {
	testhelper.Run(m)
}

func TestSplit(t *testing.T) {
	for _, tc := range []struct {
		desc            string
		data            string
		count           int
		expectedPieces  []string
		expectedOffsets []index.Range
	}{
		{
			desc:            "remainder goes to the last piece",
			data:            "abcdefghij",
			count:           3,
			expectedPieces:  []string{"abc", "def", "ghij"},
			expectedOffsets: []index.Range{{Start: 0, End: 3}, {Start: 3, End: 6}, {Start: 6, End: 10}},
		},
		{
			desc:            "alphabet into four",
			data:            "abcdefghijklmnopqrstuvwxyz",
			count:           4,
			expectedPieces:  []string{"abcdef", "ghijkl", "mnopqr", "stuvwxyz"},
			expectedOffsets: []index.Range{{Start: 0, End: 6}, {Start: 6, End: 12}, {Start: 12, End: 18}, {Start: 18, End: 26}},
		},
		{
			desc:            "evenly divisible",
			data:            "abcdef",
			count:           2,
			expectedPieces:  []string{"abc", "def"},
			expectedOffsets: []index.Range{{Start: 0, End: 3}, {Start: 3, End: 6}},
		},
		{
			desc:            "single piece",
			data:            "abc",
			count:           1,
			expectedPieces:  []string{"abc"},
			expectedOffsets: []index.Range{{Start: 0, End: 3}},
		},
		{
			desc:            "more pieces than bytes",
			data:            "ab",
			count:           4,
			expectedPieces:  []string{"", "", "", "ab"},
			expectedOffsets: []index.Range{{Start: 0, End: 0}, {Start: 0, End: 0}, {Start: 0, End: 0}, {Start: 0, End: 2}},
		},
		{
			desc:            "empty data",
			data:            "",
			count:           3,
			expectedPieces:  []string{"", "", ""},
			expectedOffsets: []index.Range{{Start: 0, End: 0}, {Start: 0, End: 0}, {Start: 0, End: 0}},
		},
	} {
		t.Run(tc.desc, func(t *testing.T) {
			pieces, err := Split([]byte(tc.data), tc.count)
			require.NoError(t, err)
			require.Len(t, pieces, tc.count)

			actual := make([]string, len(pieces))
			for i, piece := range pieces {
				actual[i] = string(piece)
			}
			require.Equal(t, tc.expectedPieces, actual)
			require.Equal(t, tc.expectedOffsets, Offsets(pieces))
		})
	}
}

func TestSplit_invalidCount(t *testing.T) {
	for _, count := range []int{0, -1} {
		_, err := Split([]byte("data"), count)
		require.Equal(t, ErrInvalidCount, err)
	}
}

func TestSplit_piecesDoNotOverlapOnAppend(t *testing.T) {
	pieces, err := Split([]byte("aabbcc"), 3)
	require.NoError(t, err)

	grown := append(pieces[0], 'X')
	require.Equal(t, "aaX", string(grown))
	require.Equal(t, "bb", string(pieces[1]))
}

func TestSplit_properties(t *testing.T) {
	r := rand.New(rand.NewSource(1))

	for i := 0; i < 200; i++ {
		data := make([]byte, r.Intn(300)+1)
		r.Read(data)
		count := r.Intn(40) + 1

		pieces, err := Split(data, count)
		require.NoError(t, err)
		require.Len(t, pieces, count)

		// Round trip.
		require.Equal(t, data, bytes.Join(pieces, nil))

		// Contiguity.
		offsets := Offsets(pieces)
		require.Equal(t, int64(0), offsets[0].Start)
		for j := 1; j < len(offsets); j++ {
			require.Equal(t, offsets[j-1].End, offsets[j].Start)
		}
		require.Equal(t, int64(len(data)), offsets[len(offsets)-1].End)
		require.NoError(t, index.FromRanges(offsets).Validate())

		// Only the last piece may differ in length.
		base := len(data) / count
		for j := 0; j < count-1; j++ {
			require.Len(t, pieces[j], base)
		}
		require.Len(t, pieces[count-1], base+len(data)%count)
	}
}
