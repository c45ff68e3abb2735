// Package coordinator builds, resizes and queries the shard set of a data directory.
//
// Every mutating operation holds the data directory lock for its whole duration. A resize
// reconstitutes the data from the current shards, splits it anew, saves the new mapping, rewrites
// all shard files in a single transaction and finally resynchronizes the replicas.
package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gitlab.com/gitlab-org/textshard/internal/index"
	"gitlab.com/gitlab-org/textshard/internal/metrics"
	"gitlab.com/gitlab-org/textshard/internal/replication"
	"gitlab.com/gitlab-org/textshard/internal/safe"
	"gitlab.com/gitlab-org/textshard/internal/split"
	"gitlab.com/gitlab-org/textshard/internal/storage"
)

// Coordinator owns the shard mapping and is the only writer of shard files and the index.
type Coordinator struct {
	store       index.Store
	disk        *storage.Disk
	replicas    *replication.Manager
	logger      logrus.FieldLogger
	metrics     *metrics.OperationMetrics
	concurrency int

	mtx sync.Mutex
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger of the coordinator.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// WithMetrics makes the coordinator record every operation in m.
func WithMetrics(m *metrics.OperationMetrics) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

// WithConcurrency sets how many shard files are read in parallel.
func WithConcurrency(concurrency int) Option {
	return func(c *Coordinator) {
		c.concurrency = concurrency
	}
}

// New returns a coordinator persisting the mapping in store and shard files in disk.
func New(store index.Store, disk *storage.Disk, replicas *replication.Manager, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:       store,
		disk:        disk,
		replicas:    replicas,
		logger:      logrus.StandardLogger(),
		concurrency: 1,
	}

	for _, opt := range opts {
		opt(c)
	}

	c.logger = c.logger.WithField("component", "coordinator")

	return c
}

type operationFunc func(ctx context.Context, logger logrus.FieldLogger) error

func (c *Coordinator) run(ctx context.Context, operation string, exclusive bool, fn operationFunc) (returnedErr error) {
	start := time.Now()
	logger := c.logger.WithFields(logrus.Fields{
		"operation":      operation,
		"correlation_id": uuid.New().String(),
	})

	defer func() {
		if c.metrics != nil {
			c.metrics.ObserveOperation(operation, returnedErr, time.Since(start).Seconds())
		}

		if returnedErr != nil {
			logger.WithError(returnedErr).Debug("operation failed")
		}
	}()

	if exclusive {
		c.mtx.Lock()
		defer c.mtx.Unlock()

		lock, err := safe.LockDir(c.disk.Root())
		if err != nil {
			return fmt.Errorf("locking data directory: %w", err)
		}
		defer func() {
			if err := lock.Unlock(); err != nil {
				logger.WithError(err).Error("unlocking data directory")
			}
		}()
	}

	return fn(ctx, logger)
}

// Build splits data into count shards and persists them together with their mapping. It fails
// with ErrAlreadyBuilt if a mapping exists already and with ErrUnmappedShards if shard files exist
// without a mapping.
func (c *Coordinator) Build(ctx context.Context, count int, data []byte) error {
	return c.run(ctx, "build", true, func(ctx context.Context, logger logrus.FieldLogger) error {
		mapping, err := c.store.Load(ctx)
		if err != nil {
			return fmt.Errorf("loading mapping: %w", err)
		}

		if len(mapping) > 0 {
			return &ConfigurationError{Err: ErrAlreadyBuilt}
		}

		pieces, err := split.Split(data, count)
		if err != nil {
			return &ConfigurationError{Err: err}
		}

		listing, err := c.disk.List(ctx)
		if err != nil {
			return err
		}

		if !listing.Empty() {
			return &ConfigurationError{Err: ErrUnmappedShards}
		}

		if err := c.cleanTempFiles(logger); err != nil {
			return err
		}

		if mapping, err = c.writeShards(ctx, logger, mapping, pieces, nil); err != nil {
			return err
		}

		logger.WithFields(logrus.Fields{
			"shard_count": count,
			"bytes":       len(data),
		}).Info("built shards")

		c.observeState(len(mapping), 0)

		return nil
	})
}

// AddShard grows the shard set by one shard and rebalances the data across all shards.
func (c *Coordinator) AddShard(ctx context.Context) error {
	return c.run(ctx, "add_shard", true, func(ctx context.Context, logger logrus.FieldLogger) error {
		return c.resize(ctx, logger, 1)
	})
}

// RemoveShard shrinks the shard set by one shard, dropping the shard with the highest id and all
// of its replicas, and rebalances the data across the remaining shards.
func (c *Coordinator) RemoveShard(ctx context.Context) error {
	return c.run(ctx, "remove_shard", true, func(ctx context.Context, logger logrus.FieldLogger) error {
		return c.resize(ctx, logger, -1)
	})
}

func (c *Coordinator) resize(ctx context.Context, logger logrus.FieldLogger, delta int) error {
	mapping, err := c.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading mapping: %w", err)
	}

	if len(mapping) == 0 {
		return &ConfigurationError{Err: ErrNotBuilt}
	}

	count := len(mapping) + delta
	if count < 1 {
		return &ConfigurationError{Err: ErrLastShard}
	}

	data, err := c.readAll(ctx, mapping)
	if err != nil {
		return err
	}

	pieces, err := split.Split(data, count)
	if err != nil {
		return &ConfigurationError{Err: err}
	}

	listing, err := c.disk.List(ctx)
	if err != nil {
		return err
	}

	var removed []storage.Key
	for _, id := range listing.Primaries() {
		if id >= count {
			removed = append(removed, storage.PrimaryKey(id))
		}
	}
	for _, key := range listing.ReplicaKeys() {
		if key.ShardID >= count {
			removed = append(removed, key)
		}
	}

	if _, err := c.writeShards(ctx, logger, mapping, pieces, removed); err != nil {
		return err
	}

	report, err := c.replicas.SyncShards(ctx, count)
	if err != nil {
		return fmt.Errorf("syncing replicas: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"previous_shard_count": len(mapping),
		"shard_count":          count,
		"replication_level":    report.MaxLevel,
	}).Info("rebalanced shards")

	c.observeState(count, report.MaxLevel)

	return nil
}

// writeShards stages pieces as primaries 0..len(pieces)-1 and the removal of the stale keys. The
// mapping describing pieces is saved before the files are committed, so a failing save leaves both
// the files and the previous mapping untouched. If the commit fails, previous is saved again.
func (c *Coordinator) writeShards(ctx context.Context, logger logrus.FieldLogger, previous index.Mapping, pieces [][]byte, stale []storage.Key) (index.Mapping, error) {
	tx := c.disk.Begin()
	defer func() { _ = tx.Rollback() }()

	for id, piece := range pieces {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if err := tx.Put(storage.PrimaryKey(id), piece); err != nil {
			return nil, fmt.Errorf("staging shard %d: %w", id, err)
		}
	}

	for _, key := range stale {
		if err := tx.Delete(key); err != nil {
			return nil, fmt.Errorf("staging removal of %s: %w", key, err)
		}
	}

	mapping := index.FromRanges(split.Offsets(pieces))
	if err := c.store.Save(ctx, mapping); err != nil {
		return nil, fmt.Errorf("saving mapping: %w", err)
	}

	if err := tx.Commit(); err != nil {
		if restoreErr := c.store.Save(ctx, previous); restoreErr != nil {
			logger.WithError(restoreErr).Error("restoring previous mapping")
		}
		return nil, fmt.Errorf("committing shards: %w", err)
	}

	return mapping, nil
}

// readAll concatenates the primaries of all shards in mapping in ascending id order.
func (c *Coordinator) readAll(ctx context.Context, mapping index.Mapping) ([]byte, error) {
	ids := mapping.IDs()

	keys := make([]storage.Key, len(ids))
	for i, id := range ids {
		keys[i] = storage.PrimaryKey(id)
	}

	contents, err := c.disk.ReadMany(ctx, keys, c.concurrency)
	if err != nil {
		return nil, fmt.Errorf("reading shards: %w", err)
	}

	data := make([]byte, 0, mapping.Size())
	for _, content := range contents {
		data = append(data, content...)
	}

	return data, nil
}

// GetShard returns the byte range of shard id.
func (c *Coordinator) GetShard(ctx context.Context, id int) (index.Range, error) {
	var r index.Range

	err := c.run(ctx, "get_shard", false, func(ctx context.Context, _ logrus.FieldLogger) error {
		mapping, err := c.store.Load(ctx)
		if err != nil {
			return fmt.Errorf("loading mapping: %w", err)
		}

		var ok bool
		if r, ok = mapping[id]; !ok {
			return &NotFoundError{ID: id, ValidIDs: mapping.IDs()}
		}

		return nil
	})

	return r, err
}

// GetAllShards returns the complete mapping. It is empty if no shards were built.
func (c *Coordinator) GetAllShards(ctx context.Context) (index.Mapping, error) {
	var mapping index.Mapping

	err := c.run(ctx, "get_all_shards", false, func(ctx context.Context, _ logrus.FieldLogger) error {
		var err error
		if mapping, err = c.store.Load(ctx); err != nil {
			return fmt.Errorf("loading mapping: %w", err)
		}
		return nil
	})

	return mapping, err
}

// ReadAll returns the data held by all shards, reconstituted in shard id order.
func (c *Coordinator) ReadAll(ctx context.Context) ([]byte, error) {
	var data []byte

	err := c.run(ctx, "read_all", false, func(ctx context.Context, _ logrus.FieldLogger) error {
		mapping, err := c.store.Load(ctx)
		if err != nil {
			return fmt.Errorf("loading mapping: %w", err)
		}

		if len(mapping) == 0 {
			return &ConfigurationError{Err: ErrNotBuilt}
		}

		data, err = c.readAll(ctx, mapping)
		return err
	})

	return data, err
}

// AddReplicationLevel replicates every shard one level deeper and returns the new level.
func (c *Coordinator) AddReplicationLevel(ctx context.Context) (int, error) {
	var level int

	err := c.run(ctx, "add_replication_level", true, func(ctx context.Context, logger logrus.FieldLogger) error {
		var err error
		if level, err = c.replicas.AddLevel(ctx); err != nil {
			return err
		}

		logger.WithField("level", level).Info("added replication level")
		c.observeLevel(level)

		return nil
	})

	return level, err
}

// RemoveReplicationLevel removes the deepest replication level and returns it. It fails with
// replication.ErrReplicationExhausted if only primaries exist.
func (c *Coordinator) RemoveReplicationLevel(ctx context.Context) (int, error) {
	var level int

	err := c.run(ctx, "remove_replication_level", true, func(ctx context.Context, logger logrus.FieldLogger) error {
		var err error
		if level, err = c.replicas.RemoveLevel(ctx); err != nil {
			return err
		}

		logger.WithField("level", level).Info("removed replication level")
		c.observeLevel(level - 1)

		return nil
	})

	return level, err
}

// Sync restores missing primaries and brings every shard to the same replication level. When
// shards are built, files of shards outside of the mapping are removed. Temporary files left
// behind by interrupted writes are removed as well. If the primaries on disk disagree with the
// mapping in a way only an interrupted resize can cause, or if there is no mapping at all, the
// mapping is rebuilt from the primaries first.
func (c *Coordinator) Sync(ctx context.Context) (replication.SyncReport, error) {
	var report replication.SyncReport

	err := c.run(ctx, "sync", true, func(ctx context.Context, logger logrus.FieldLogger) error {
		mapping, err := c.store.Load(ctx)
		if err != nil {
			return fmt.Errorf("loading mapping: %w", err)
		}

		if err := c.cleanTempFiles(logger); err != nil {
			return err
		}

		if mapping, err = c.adoptPrimaries(ctx, logger, mapping); err != nil {
			return err
		}

		if len(mapping) > 0 {
			report, err = c.replicas.SyncShards(ctx, len(mapping))
		} else {
			report, err = c.replicas.Sync(ctx)
		}
		if err != nil {
			return err
		}

		logger.WithFields(logrus.Fields{
			"restored":          len(report.Restored),
			"unrecoverable":     len(report.Unrecoverable),
			"rewritten":         len(report.Rewritten),
			"pruned":            len(report.Pruned),
			"replication_level": report.MaxLevel,
		}).Info("synced replicas")

		if c.metrics != nil {
			c.metrics.ReplicasRepaired().Add(float64(report.Repaired()))
		}
		c.observeLevel(report.MaxLevel)

		return nil
	})

	return report, err
}

// cleanTempFiles removes staged files. Holding the lock, every one of them is a leftover of a
// writer that died.
func (c *Coordinator) cleanTempFiles(logger logrus.FieldLogger) error {
	leftovers, err := safe.CleanTempFiles(c.disk.Root(), 0)
	if err != nil {
		return fmt.Errorf("cleaning temp files: %w", err)
	}

	for _, name := range leftovers {
		logger.WithField("file", name).Info("removed leftover temp file")
	}

	return nil
}

// adoptPrimaries rebuilds the mapping from the primaries on disk and saves it when they are dense,
// every shard found has a primary and either there is no mapping or the primaries hold as many
// bytes as the mapping but are split differently. It returns the mapping in effect afterwards.
func (c *Coordinator) adoptPrimaries(ctx context.Context, logger logrus.FieldLogger, mapping index.Mapping) (index.Mapping, error) {
	listing, err := c.disk.List(ctx)
	if err != nil {
		return nil, err
	}

	ids := listing.Primaries()
	if len(ids) == 0 || ids[len(ids)-1] != len(ids)-1 || len(listing.IDs()) != len(ids) {
		return mapping, nil
	}

	keys := make([]storage.Key, len(ids))
	for i, id := range ids {
		keys[i] = storage.PrimaryKey(id)
	}

	contents, err := c.disk.ReadMany(ctx, keys, c.concurrency)
	if err != nil {
		return nil, fmt.Errorf("reading shards: %w", err)
	}

	adopted := index.FromRanges(split.Offsets(contents))
	if len(mapping) > 0 && (adopted.Size() != mapping.Size() || adopted.Equal(mapping)) {
		return mapping, nil
	}

	if err := c.store.Save(ctx, adopted); err != nil {
		return nil, fmt.Errorf("saving mapping: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"previous_shard_count": len(mapping),
		"shard_count":          len(adopted),
		"bytes":                adopted.Size(),
	}).Warn("rebuilt mapping from primaries on disk")

	c.observeState(len(adopted), listing.MaxLevel())

	return adopted, nil
}

func (c *Coordinator) observeState(shards, level int) {
	if c.metrics == nil {
		return
	}

	c.metrics.Shards().Set(float64(shards))
	c.metrics.ReplicationLevel().Set(float64(level))
}

func (c *Coordinator) observeLevel(level int) {
	if c.metrics == nil {
		return
	}

	c.metrics.ReplicationLevel().Set(float64(level))
}
