package storage

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

const (
	// FileExtension is the extension shared by primary and replica files.
	FileExtension = ".txt"

	levelSeparator = "-"
)

// ErrInvalidKey is returned when a file name does not encode a shard key.
var ErrInvalidKey = errors.New("invalid shard key")

// Key identifies one file of the shard set. A Level of zero denotes the primary copy of the
// shard, replicas have a level of one or more.
type Key struct {
	ShardID int
	Level   int
}

// PrimaryKey returns the key of the primary copy of shard id.
func PrimaryKey(id int) Key {
	return Key{ShardID: id}
}

// ReplicaKey returns the key of the replica of shard id at the given level.
func ReplicaKey(id, level int) Key {
	return Key{ShardID: id, Level: level}
}

// IsPrimary tells whether the key addresses a primary copy.
func (k Key) IsPrimary() bool {
	return k.Level == 0
}

// Primary returns the key of the primary this key belongs to.
func (k Key) Primary() Key {
	return PrimaryKey(k.ShardID)
}

// Name encodes the key as a file name: "<id>.txt" for primaries and "<id>-<level>.txt" for
// replicas.
func (k Key) Name() string {
	if k.IsPrimary() {
		return strconv.Itoa(k.ShardID) + FileExtension
	}

	return strconv.Itoa(k.ShardID) + levelSeparator + strconv.Itoa(k.Level) + FileExtension
}

func (k Key) String() string {
	return k.Name()
}

// ParseKey decodes a file name produced by Key.Name. Only canonical names are accepted, so
// "01.txt" or "1-0.txt" are rejected and every valid key has exactly one name.
func ParseKey(name string) (Key, error) {
	if !strings.HasSuffix(name, FileExtension) {
		return Key{}, fmt.Errorf("%w: %q", ErrInvalidKey, name)
	}

	parts := strings.SplitN(strings.TrimSuffix(name, FileExtension), levelSeparator, 2)

	id, ok := parseNumber(parts[0])
	if !ok {
		return Key{}, fmt.Errorf("%w: %q", ErrInvalidKey, name)
	}

	if len(parts) == 1 {
		return PrimaryKey(id), nil
	}

	level, ok := parseNumber(parts[1])
	if !ok || level < 1 {
		return Key{}, fmt.Errorf("%w: %q", ErrInvalidKey, name)
	}

	return ReplicaKey(id, level), nil
}

func parseNumber(s string) (int, bool) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || strconv.Itoa(n) != s {
		return 0, false
	}

	return n, true
}

// SortKeys sorts keys by numeric shard id, then by level.
func SortKeys(keys []Key) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].ShardID != keys[j].ShardID {
			return keys[i].ShardID < keys[j].ShardID
		}
		return keys[i].Level < keys[j].Level
	})
}
