// Package split partitions data into contiguous shards.
package split

import (
	"errors"

	"gitlab.com/gitlab-org/textshard/internal/index"
)

// ErrInvalidCount is returned when data is to be split into less than one piece.
var ErrInvalidCount = errors.New("shard count must be at least 1")

// Split cuts data into exactly count contiguous pieces. Every piece is len(data)/count bytes
// long, except for the last one which additionally receives the len(data)%count remaining
// bytes. Requesting more pieces than there are bytes yields empty pieces. The pieces alias data.
func Split(data []byte, count int) ([][]byte, error) {
	if count < 1 {
		return nil, ErrInvalidCount
	}

	base := len(data) / count

	pieces := make([][]byte, count)
	for i := 0; i < count-1; i++ {
		pieces[i] = data[i*base : (i+1)*base : (i+1)*base]
	}
	pieces[count-1] = data[(count-1)*base:]

	return pieces, nil
}

// Offsets returns the byte range of every piece within the concatenation of all pieces. Ranges
// are accumulated piece by piece, so pieces of differing length are handled correctly.
func Offsets(pieces [][]byte) []index.Range {
	ranges := make([]index.Range, len(pieces))

	var start int64
	for i, piece := range pieces {
		end := start + int64(len(piece))
		ranges[i] = index.Range{Start: start, End: end}
		start = end
	}

	return ranges
}
