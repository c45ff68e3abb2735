package coordinator

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyBuilt is returned by Build when shards exist already.
	ErrAlreadyBuilt = errors.New("shards are already built, resize them with add-shard or remove-shard")
	// ErrUnmappedShards is returned by Build when shard files exist but no mapping describes them.
	ErrUnmappedShards = errors.New("shard files exist without a mapping, run sync to adopt them or remove them")
	// ErrNotBuilt is returned when resizing before any shard was built.
	ErrNotBuilt = errors.New("no shards have been built yet")
	// ErrLastShard is returned when removing the only remaining shard.
	ErrLastShard = errors.New("cannot remove the last remaining shard")
)

// ConfigurationError is returned when an operation is invalid for the current state of the
// shards or for the arguments it was given. Nothing was modified when it is returned.
type ConfigurationError struct {
	Err error
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Err.Error()
}

// Unwrap returns the underlying cause.
func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// NotFoundError is returned when a shard id is not part of the mapping.
type NotFoundError struct {
	ID       int
	ValidIDs []int
}

func (e *NotFoundError) Error() string {
	if len(e.ValidIDs) == 0 {
		return fmt.Sprintf("shard %d not found, no shards have been built", e.ID)
	}

	return fmt.Sprintf("shard %d not found, valid ids are %d to %d", e.ID, e.ValidIDs[0], e.ValidIDs[len(e.ValidIDs)-1])
}
