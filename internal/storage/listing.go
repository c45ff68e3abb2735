package storage

import "sort"

// Listing classifies the shard files found in a data directory.
type Listing struct {
	primaries map[int]struct{}
	replicas  map[int]map[int]struct{}
}

// NewListing builds a Listing from a set of keys.
func NewListing(keys []Key) Listing {
	l := Listing{
		primaries: make(map[int]struct{}),
		replicas:  make(map[int]map[int]struct{}),
	}

	for _, key := range keys {
		if key.IsPrimary() {
			l.primaries[key.ShardID] = struct{}{}
			continue
		}

		levels, ok := l.replicas[key.ShardID]
		if !ok {
			levels = make(map[int]struct{})
			l.replicas[key.ShardID] = levels
		}
		levels[key.Level] = struct{}{}
	}

	return l
}

// Primaries returns the ids of all shards with a primary file in ascending order.
func (l Listing) Primaries() []int {
	return sortedInts(l.primaries)
}

// HasPrimary tells whether shard id has a primary file.
func (l Listing) HasPrimary(id int) bool {
	_, ok := l.primaries[id]
	return ok
}

// HasReplica tells whether shard id has a replica at level.
func (l Listing) HasReplica(id, level int) bool {
	_, ok := l.replicas[id][level]
	return ok
}

// ReplicaLevels returns the levels of all replicas of shard id in ascending order.
func (l Listing) ReplicaLevels(id int) []int {
	return sortedInts(l.replicas[id])
}

// ReplicaKeys returns the keys of every replica in the listing, sorted.
func (l Listing) ReplicaKeys() []Key {
	var keys []Key
	for id, levels := range l.replicas {
		for level := range levels {
			keys = append(keys, ReplicaKey(id, level))
		}
	}
	SortKeys(keys)
	return keys
}

// MaxLevel returns the highest replica level found, or zero if there are no replicas.
func (l Listing) MaxLevel() int {
	max := 0
	for _, levels := range l.replicas {
		for level := range levels {
			if level > max {
				max = level
			}
		}
	}
	return max
}

// IDs returns the ids of all shards with a primary or a replica in ascending order.
func (l Listing) IDs() []int {
	ids := make(map[int]struct{}, len(l.primaries)+len(l.replicas))
	for id := range l.primaries {
		ids[id] = struct{}{}
	}
	for id := range l.replicas {
		ids[id] = struct{}{}
	}
	return sortedInts(ids)
}

// Empty tells whether no shard file was found at all.
func (l Listing) Empty() bool {
	return len(l.primaries) == 0 && len(l.replicas) == 0
}

func sortedInts(set map[int]struct{}) []int {
	values := make([]int, 0, len(set))
	for v := range set {
		values = append(values, v)
	}
	sort.Ints(values)
	return values
}
