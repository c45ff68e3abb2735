package migrations

import migrate "github.com/rubenv/sql-migrate"

func init() {
	m := &migrate.Migration{
		Id: "20261019093000_shard_ranges_table",
		Up: []string{`
CREATE TABLE shard_ranges (
	shard_id INTEGER PRIMARY KEY CHECK (shard_id >= 0),
	start_offset BIGINT NOT NULL,
	end_offset BIGINT NOT NULL,
	CHECK (end_offset >= start_offset)
)`},
		Down: []string{"DROP TABLE shard_ranges"},
	}

	allMigrations = append(allMigrations, m)
}
