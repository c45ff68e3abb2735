package replication

import (
	"bytes"
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"gitlab.com/gitlab-org/textshard/internal/storage"
)

// SyncReport describes the changes made by a sync.
type SyncReport struct {
	// Restored lists the shards whose primary was recreated from a replica.
	Restored []int
	// Unrecoverable lists the shards that have neither a primary nor any replica.
	Unrecoverable []int
	// Rewritten lists the replicas that were missing or differed from their primary.
	Rewritten []storage.Key
	// Pruned lists the files removed because their shard is outside of the expected range.
	Pruned []storage.Key
	// MaxLevel is the replication level every shard is replicated to after the sync.
	MaxLevel int
}

// Repaired returns the number of files written by the sync.
func (r SyncReport) Repaired() int {
	return len(r.Restored) + len(r.Rewritten)
}

// Sync repairs the shard set as found on disk. Shard ids are expected to be dense: with n distinct
// ids found, every id in [0, n) and every id found is expected. A missing primary is restored from
// the replica with the lowest level. Afterwards, every primary is replicated to every level up to
// the highest level found, rewriting replicas which are missing or differ from their primary.
// Running Sync twice without changes in between leaves the second run without anything to do.
func (m *Manager) Sync(ctx context.Context) (SyncReport, error) {
	listing, err := m.disk.List(ctx)
	if err != nil {
		return SyncReport{}, err
	}

	return m.sync(ctx, listing, denseIDs(listing.IDs()), func(int) bool { return true }, false)
}

// SyncShards is like Sync, but the expected shard ids are [0, count). Files of shards outside of
// that range are left over from an interrupted resize and get removed.
func (m *Manager) SyncShards(ctx context.Context, count int) (SyncReport, error) {
	listing, err := m.disk.List(ctx)
	if err != nil {
		return SyncReport{}, err
	}

	expected := make([]int, count)
	for id := range expected {
		expected[id] = id
	}

	return m.sync(ctx, listing, expected, func(id int) bool { return id < count }, true)
}

func (m *Manager) sync(ctx context.Context, listing storage.Listing, expected []int, inRange func(int) bool, prune bool) (SyncReport, error) {
	var report SyncReport

	restored, err := m.restorePrimaries(ctx, listing, expected, &report)
	if err != nil {
		return report, err
	}

	if restored || prune {
		if listing, err = m.disk.List(ctx); err != nil {
			return report, err
		}
	}

	tx := m.disk.Begin()
	defer func() { _ = tx.Rollback() }()

	if prune {
		for _, key := range outOfRange(listing, inRange) {
			if err := tx.Delete(key); err != nil {
				return report, fmt.Errorf("staging removal of %s: %w", key, err)
			}
			report.Pruned = append(report.Pruned, key)
		}
	}

	report.MaxLevel = maxLevelInRange(listing, inRange)

	if err := m.stageReplicas(ctx, tx, listing, inRange, &report); err != nil {
		return report, err
	}

	if writes, removals := tx.Staged(); writes+removals == 0 {
		return report, nil
	}

	if err := tx.Commit(); err != nil {
		return report, fmt.Errorf("committing replicas: %w", err)
	}

	for _, key := range report.Pruned {
		m.logger.WithFields(logrus.Fields{
			"shard_id": key.ShardID,
			"level":    key.Level,
		}).Info("removed file of shard outside of the mapping")
	}

	return report, nil
}

// restorePrimaries recreates missing primaries of the expected shards from their lowest level
// replica. It reports whether any file was written.
func (m *Manager) restorePrimaries(ctx context.Context, listing storage.Listing, expected []int, report *SyncReport) (bool, error) {
	var sources []storage.Key
	for _, id := range expected {
		if err := ctx.Err(); err != nil {
			return false, err
		}

		if listing.HasPrimary(id) {
			continue
		}

		levels := listing.ReplicaLevels(id)
		if len(levels) == 0 {
			report.Unrecoverable = append(report.Unrecoverable, id)
			m.logger.WithField("shard_id", id).Error("primary is missing and no replica is left to restore it from")
			continue
		}

		sources = append(sources, storage.ReplicaKey(id, levels[0]))
	}

	if len(sources) == 0 {
		return false, nil
	}

	contents, err := m.disk.ReadMany(ctx, sources, m.concurrency)
	if err != nil {
		return false, fmt.Errorf("reading replicas of missing primaries: %w", err)
	}

	tx := m.disk.Begin()
	defer func() { _ = tx.Rollback() }()

	for i, source := range sources {
		if err := tx.Put(source.Primary(), contents[i]); err != nil {
			return false, fmt.Errorf("staging %s: %w", source.Primary(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("restoring primaries: %w", err)
	}

	for _, source := range sources {
		report.Restored = append(report.Restored, source.ShardID)
		m.logger.WithFields(logrus.Fields{
			"shard_id": source.ShardID,
			"level":    source.Level,
		}).Warn("restored missing primary from replica")
	}

	return true, nil
}

// stageReplicas stages a write for every replica at levels [1, report.MaxLevel] of every primary
// in range which is missing or whose content differs from the primary.
func (m *Manager) stageReplicas(ctx context.Context, tx *storage.Tx, listing storage.Listing, inRange func(int) bool, report *SyncReport) error {
	if report.MaxLevel == 0 {
		return nil
	}

	var keys []storage.Key
	for _, id := range listing.Primaries() {
		if !inRange(id) {
			continue
		}

		keys = append(keys, storage.PrimaryKey(id))
		for level := 1; level <= report.MaxLevel; level++ {
			if listing.HasReplica(id, level) {
				keys = append(keys, storage.ReplicaKey(id, level))
			}
		}
	}

	contents, err := m.disk.ReadMany(ctx, keys, m.concurrency)
	if err != nil {
		return fmt.Errorf("reading shard files: %w", err)
	}

	byKey := make(map[storage.Key][]byte, len(keys))
	for i, key := range keys {
		byKey[key] = contents[i]
	}

	for _, key := range keys {
		if !key.IsPrimary() {
			continue
		}

		primary := byKey[key]
		for level := 1; level <= report.MaxLevel; level++ {
			replicaKey := storage.ReplicaKey(key.ShardID, level)

			if replica, ok := byKey[replicaKey]; ok && bytes.Equal(replica, primary) {
				continue
			}

			if err := tx.Put(replicaKey, primary); err != nil {
				return fmt.Errorf("staging %s: %w", replicaKey, err)
			}
			report.Rewritten = append(report.Rewritten, replicaKey)

			m.logger.WithFields(logrus.Fields{
				"shard_id": key.ShardID,
				"level":    level,
			}).Debug("rewriting replica")
		}
	}

	return nil
}

// denseIDs returns the ids [0, len(ids)) followed by the ids beyond that range. ids must be sorted
// and distinct.
func denseIDs(ids []int) []int {
	expected := make([]int, 0, len(ids))
	for id := 0; id < len(ids); id++ {
		expected = append(expected, id)
	}
	for _, id := range ids {
		if id >= len(ids) {
			expected = append(expected, id)
		}
	}
	return expected
}

func outOfRange(listing storage.Listing, inRange func(int) bool) []storage.Key {
	var keys []storage.Key
	for _, id := range listing.Primaries() {
		if !inRange(id) {
			keys = append(keys, storage.PrimaryKey(id))
		}
	}
	for _, key := range listing.ReplicaKeys() {
		if !inRange(key.ShardID) {
			keys = append(keys, key)
		}
	}
	storage.SortKeys(keys)
	return keys
}

func maxLevelInRange(listing storage.Listing, inRange func(int) bool) int {
	max := 0
	for _, key := range listing.ReplicaKeys() {
		if inRange(key.ShardID) && key.Level > max {
			max = key.Level
		}
	}
	return max
}
