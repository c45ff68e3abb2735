package index

import (
	"context"
	"database/sql"
	"fmt"

	// Blank import to enable integration of github.com/lib/pq into database/sql
	_ "github.com/lib/pq"
	migrate "github.com/rubenv/sql-migrate"
	"gitlab.com/gitlab-org/textshard/internal/index/migrations"
)

const sqlMigrateDialect = "postgres"

// OpenDB returns a connection pool to the database described by dsn and checks that the
// database is reachable.
func OpenDB(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	errChan := make(chan error, 1)
	go func() {
		if err := db.PingContext(ctx); err != nil {
			errChan <- fmt.Errorf("send ping: %w", err)
		} else {
			errChan <- nil
		}
	}()

	select {
	// lib/pq does not reliably honour context cancellation while connecting.
	case <-ctx.Done():
		db.Close()
		return nil, ctx.Err()
	case err := <-errChan:
		if err != nil {
			db.Close()
			return nil, err
		}
	}

	return db, nil
}

// Migrate applies all pending migrations and returns how many were applied.
func Migrate(db *sql.DB) (int, error) {
	migrate.SetTable(migrations.MigrationTableName)

	migrationSource := &migrate.MemoryMigrationSource{
		Migrations: migrations.All(),
	}

	return migrate.Exec(db, sqlMigrateDialect, migrationSource, migrate.Up)
}

// PostgresStore persists the mapping in the shard_ranges table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore returns a store using db. The schema must have been migrated.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Load reads all shard ranges. An empty table yields an empty mapping.
func (s *PostgresStore) Load(ctx context.Context) (Mapping, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT shard_id, start_offset, end_offset
FROM shard_ranges
ORDER BY shard_id`)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	m := Mapping{}
	for rows.Next() {
		var id int
		var r Range
		if err := rows.Scan(&id, &r.Start, &r.End); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		m[id] = r
	}

	return m, rows.Err()
}

// Save replaces all shard ranges within a single transaction.
func (s *PostgresStore) Save(ctx context.Context, m Mapping) (returnedErr error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if returnedErr != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM shard_ranges`); err != nil {
		return fmt.Errorf("delete: %w", err)
	}

	for _, id := range m.IDs() {
		r := m[id]
		if _, err := tx.ExecContext(ctx, `
INSERT INTO shard_ranges (shard_id, start_offset, end_offset)
VALUES ($1, $2, $3)`, id, r.Start, r.End); err != nil {
			return fmt.Errorf("insert shard %d: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	return nil
}
