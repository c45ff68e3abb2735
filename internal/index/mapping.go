// Package index keeps track of the byte range every shard covers in the logical source data.
package index

import (
	"errors"
	"fmt"
	"sort"
)

// ErrInvalidMapping is returned by Mapping.Validate when the ranges do not form a contiguous
// partition of the source data.
var ErrInvalidMapping = errors.New("invalid shard mapping")

// Range is the half-open byte range [Start, End) of a shard in the source data.
type Range struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// Len returns the number of bytes covered by the range.
func (r Range) Len() int64 {
	return r.End - r.Start
}

func (r Range) String() string {
	return fmt.Sprintf("[%d, %d)", r.Start, r.End)
}

// Mapping maps shard ids to their byte range. Encoded as JSON, shard ids become decimal string
// keys.
type Mapping map[int]Range

// IDs returns all shard ids in ascending numeric order.
func (m Mapping) IDs() []int {
	ids := make([]int, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Size returns the total length of the source data described by the mapping.
func (m Mapping) Size() int64 {
	var size int64
	for _, r := range m {
		size += r.Len()
	}
	return size
}

// Clone returns a copy of the mapping.
func (m Mapping) Clone() Mapping {
	clone := make(Mapping, len(m))
	for id, r := range m {
		clone[id] = r
	}
	return clone
}

// Equal tells whether both mappings assign the same ranges to the same shard ids.
func (m Mapping) Equal(other Mapping) bool {
	if len(m) != len(other) {
		return false
	}

	for id, r := range m {
		if o, ok := other[id]; !ok || o != r {
			return false
		}
	}

	return true
}

// Validate checks that shard ids are dense starting at zero and that the ranges, ordered by id,
// are contiguous and start at offset zero.
func (m Mapping) Validate() error {
	var offset int64
	for i, id := range m.IDs() {
		if id != i {
			return fmt.Errorf("%w: shard ids are not dense, expected %d but got %d", ErrInvalidMapping, i, id)
		}

		r := m[id]
		if r.Start != offset {
			return fmt.Errorf("%w: shard %d starts at %d, expected %d", ErrInvalidMapping, id, r.Start, offset)
		}
		if r.End < r.Start {
			return fmt.Errorf("%w: shard %d ends before it starts", ErrInvalidMapping, id)
		}
		offset = r.End
	}

	return nil
}

// FromRanges builds a mapping that assigns ranges[i] to shard i.
func FromRanges(ranges []Range) Mapping {
	m := make(Mapping, len(ranges))
	for id, r := range ranges {
		m[id] = r
	}
	return m
}
