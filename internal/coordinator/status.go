package coordinator

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Status summarizes the shards of a data directory.
type Status struct {
	// Shards is the number of shards in the mapping.
	Shards int
	// Bytes is the total size of the sharded data according to the mapping.
	Bytes int64
	// Levels holds the replica levels found on disk per shard id.
	Levels map[int][]int
	// MaxLevel is the highest replica level found on disk.
	MaxLevel int
	// MappingErr is set if the mapping is not contiguous.
	MappingErr error
}

// Consistent tells whether the mapping is valid and every shard is replicated to MaxLevel.
func (s Status) Consistent() bool {
	if s.MappingErr != nil {
		return false
	}

	for id := 0; id < s.Shards; id++ {
		if len(s.Levels[id]) != s.MaxLevel {
			return false
		}
	}

	return true
}

// Status reports the shard count, the replication state and the validity of the mapping.
func (c *Coordinator) Status(ctx context.Context) (Status, error) {
	var status Status

	err := c.run(ctx, "status", false, func(ctx context.Context, _ logrus.FieldLogger) error {
		mapping, err := c.store.Load(ctx)
		if err != nil {
			return fmt.Errorf("loading mapping: %w", err)
		}

		status.Shards = len(mapping)
		status.Bytes = mapping.Size()
		status.MappingErr = mapping.Validate()

		if len(mapping) == 0 {
			status.Levels = map[int][]int{}
			return nil
		}

		status.Levels, status.MaxLevel, err = c.replicas.Levels(ctx)
		return err
	})

	return status, err
}
