package postgres

import "fmt"

// TableConfig configures the table names used by the bot.
type TableConfig struct {
	// RacesTable is the name of the table storing scheduled races.
	RacesTable string

	// SeedsTable is the name of the table storing rolled seeds.
	SeedsTable string

	// PrerolledSeedsTable is the name of the pre-roll cache table.
	PrerolledSeedsTable string
}

// DefaultTableConfig returns the default table configuration.
func DefaultTableConfig() TableConfig {
	return TableConfig{
		RacesTable:          "racebot_races",
		SeedsTable:          "racebot_seeds",
		PrerolledSeedsTable: "racebot_prerolled_seeds",
	}
}

// MigrationUp returns the SQL to create the bot's tables: races with an
// index for the room-opening query, seeds keyed by race, and the
// pre-roll cache with an index for FIFO takes per goal.
func MigrationUp(config TableConfig) string {
	return fmt.Sprintf(`-- Create races table
CREATE TABLE %[1]s (
    id BIGSERIAL PRIMARY KEY,
    event TEXT NOT NULL,
    goal TEXT NOT NULL,
    start_time TIMESTAMPTZ NOT NULL,
    room_url TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

-- Index for finding races due for room opening
CREATE INDEX idx_%[1]s_due ON %[1]s(start_time) WHERE room_url = '';

-- Create seeds table (one rolled seed per race)
CREATE TABLE %[2]s (
    race_id BIGINT PRIMARY KEY REFERENCES %[1]s(id),
    storage TEXT NOT NULL,
    file_stem TEXT NOT NULL,
    locked_spoiler_path TEXT NOT NULL DEFAULT '',
    web_id BIGINT NOT NULL DEFAULT 0,
    gen_time TIMESTAMPTZ,
    tfb_uuid UUID,
    daily_date DATE,
    daily_ordinal INTEGER NOT NULL DEFAULT 0,
    hash1 TEXT,
    hash2 TEXT,
    hash3 TEXT,
    hash4 TEXT,
    hash5 TEXT,
    password TEXT NOT NULL DEFAULT ''
);

-- Create prerolled seeds cache table
CREATE TABLE %[3]s (
    id BIGSERIAL PRIMARY KEY,
    goal TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    storage TEXT NOT NULL,
    file_stem TEXT NOT NULL,
    locked_spoiler_path TEXT NOT NULL DEFAULT '',
    web_id BIGINT NOT NULL DEFAULT 0,
    gen_time TIMESTAMPTZ,
    tfb_uuid UUID,
    daily_date DATE,
    daily_ordinal INTEGER NOT NULL DEFAULT 0,
    hash1 TEXT,
    hash2 TEXT,
    hash3 TEXT,
    hash4 TEXT,
    hash5 TEXT,
    password TEXT NOT NULL DEFAULT ''
);

-- Index for FIFO takes per goal
CREATE INDEX idx_%[3]s_goal ON %[3]s(goal, created_at, id);
`, config.RacesTable, config.SeedsTable, config.PrerolledSeedsTable)
}

// MigrationDown returns the SQL to drop the bot's tables. The seeds
// table is dropped first due to the foreign key constraint.
func MigrationDown(config TableConfig) string {
	return fmt.Sprintf(`-- Drop seeds table (must be dropped first due to foreign key)
DROP TABLE IF EXISTS %s;

-- Drop prerolled seeds table
DROP TABLE IF EXISTS %s;

-- Drop races table
DROP TABLE IF EXISTS %s;
`, config.SeedsTable, config.PrerolledSeedsTable, config.RacesTable)
}
