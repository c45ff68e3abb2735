// Package replication maintains redundant copies of shard files.
//
// A shard's primary file is replicated at levels 1..L. Level 1 is a copy of the primary, every
// further level is a copy of the level below it. Sync restores missing primaries from their
// replicas and makes sure every shard is replicated up to the highest level found on disk.
package replication

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"gitlab.com/gitlab-org/textshard/internal/storage"
)

var (
	// ErrReplicationExhausted is returned when removing a replication level while only
	// primaries exist.
	ErrReplicationExhausted = errors.New("only primaries found, no replication level to remove")
	// ErrNoPrimaries is returned when adding a replication level without any shard to
	// replicate.
	ErrNoPrimaries = errors.New("no primary shard files found")
)

// Manager creates, removes and synchronizes replica files of a Disk.
type Manager struct {
	disk        *storage.Disk
	logger      logrus.FieldLogger
	concurrency int
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger of the manager.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithConcurrency sets how many files are read in parallel.
func WithConcurrency(concurrency int) Option {
	return func(m *Manager) {
		m.concurrency = concurrency
	}
}

// NewManager returns a manager for the shard files stored in disk.
func NewManager(disk *storage.Disk, opts ...Option) *Manager {
	m := &Manager{
		disk:        disk,
		logger:      logrus.StandardLogger(),
		concurrency: 1,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.logger = m.logger.WithField("component", "replication")

	return m
}

// Levels returns the replica levels of every shard that has a primary or replica, together with
// the highest level found.
func (m *Manager) Levels(ctx context.Context) (map[int][]int, int, error) {
	listing, err := m.disk.List(ctx)
	if err != nil {
		return nil, 0, err
	}

	levels := make(map[int][]int)
	for _, id := range listing.IDs() {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		levels[id] = listing.ReplicaLevels(id)
	}

	return levels, listing.MaxLevel(), nil
}

// AddLevel adds replication level L+1, where L is the highest level currently found. Without
// replicas, every primary is copied to level 1. Otherwise every level L replica is copied to level
// L+1; shards lacking a level L replica are seeded from their primary so that the new level is
// complete. It returns the level that was added.
func (m *Manager) AddLevel(ctx context.Context) (int, error) {
	listing, err := m.disk.List(ctx)
	if err != nil {
		return 0, err
	}

	if len(listing.Primaries()) == 0 {
		return 0, ErrNoPrimaries
	}

	current := listing.MaxLevel()
	target := current + 1

	var sources, targets []storage.Key
	for _, id := range listing.IDs() {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		switch {
		case current > 0 && listing.HasReplica(id, current):
			sources = append(sources, storage.ReplicaKey(id, current))
		case listing.HasPrimary(id):
			sources = append(sources, storage.PrimaryKey(id))
		default:
			continue
		}
		targets = append(targets, storage.ReplicaKey(id, target))
	}

	contents, err := m.disk.ReadMany(ctx, sources, m.concurrency)
	if err != nil {
		return 0, fmt.Errorf("reading replication sources: %w", err)
	}

	tx := m.disk.Begin()
	defer func() { _ = tx.Rollback() }()

	for i, key := range targets {
		if err := tx.Put(key, contents[i]); err != nil {
			return 0, fmt.Errorf("staging %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing replication level %d: %w", target, err)
	}

	m.logger.WithFields(logrus.Fields{
		"level":    target,
		"replicas": len(targets),
	}).Info("added replication level")

	return target, nil
}

// RemoveLevel deletes every replica at the highest replication level and returns that level. It
// returns ErrReplicationExhausted without touching any file if there are no replicas.
func (m *Manager) RemoveLevel(ctx context.Context) (int, error) {
	listing, err := m.disk.List(ctx)
	if err != nil {
		return 0, err
	}

	level := listing.MaxLevel()
	if level == 0 {
		return 0, ErrReplicationExhausted
	}

	tx := m.disk.Begin()
	defer func() { _ = tx.Rollback() }()

	removed := 0
	for _, key := range listing.ReplicaKeys() {
		if key.Level != level {
			continue
		}

		if err := tx.Delete(key); err != nil {
			return 0, fmt.Errorf("staging removal of %s: %w", key, err)
		}
		removed++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("removing replication level %d: %w", level, err)
	}

	m.logger.WithFields(logrus.Fields{
		"level":    level,
		"replicas": removed,
	}).Info("removed replication level")

	return level, nil
}
