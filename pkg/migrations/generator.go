package migrations

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"
)

var identifierRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)

// validateIdentifier ensures an identifier contains only safe characters for SQL.
// Returns an error if the identifier contains characters that could be used for SQL injection.
func validateIdentifier(name, fieldName string) error {
	if name == "" {
		return fmt.Errorf("%s cannot be empty", fieldName)
	}
	if !identifierRegex.MatchString(name) {
		return fmt.Errorf("%s must start with a letter and contain only letters, numbers, and underscores (got: %s)", fieldName, name)
	}
	return nil
}

// validateConfig validates all configuration values to prevent SQL injection.
func validateConfig(config *Config) error {
	if err := validateIdentifier(config.SchemaName, "SchemaName"); err != nil {
		return err
	}
	if err := validateIdentifier(config.RacesTable, "RacesTable"); err != nil {
		return err
	}
	if err := validateIdentifier(config.SeedsTable, "SeedsTable"); err != nil {
		return err
	}
	if err := validateIdentifier(config.PrerolledSeedsTable, "PrerolledSeedsTable"); err != nil {
		return err
	}
	return nil
}

// Config configures migration generation for the race bot tables.
type Config struct {
	// OutputFolder is the directory where the migration file will be written
	OutputFolder string

	// OutputFilename is the name of the migration file
	OutputFilename string

	// SchemaName is the database schema name (PostgreSQL) or database name (MySQL)
	// For SQLite, table name prefixes are used instead of schemas (e.g., racebot_table_name)
	SchemaName string

	// RacesTable is the name of the scheduled races table
	RacesTable string

	// SeedsTable is the name of the per-race seed records table
	SeedsTable string

	// PrerolledSeedsTable is the name of the prerolled seed cache table
	PrerolledSeedsTable string
}

// DefaultConfig returns the default configuration for race bot migrations.
func DefaultConfig() Config {
	timestamp := time.Now().Format("20060102150405")
	return Config{
		OutputFolder:        "migrations",
		OutputFilename:      fmt.Sprintf("%s_init_racebot.sql", timestamp),
		SchemaName:          "racebot",
		RacesTable:          "races",
		SeedsTable:          "seeds",
		PrerolledSeedsTable: "prerolled_seeds",
	}
}

// seedColumns is the column block shared by the seeds and prerolled
// seeds tables, parameterized on the dialect's type names.
type dialectTypes struct {
	bigint    string
	text      string
	timestamp string
	date      string
	uuid      string
}

func seedColumnsSQL(t dialectTypes) string {
	return fmt.Sprintf(`    storage %[2]s NOT NULL,
    file_stem %[2]s NOT NULL DEFAULT '',
    locked_spoiler_path %[2]s NOT NULL DEFAULT '',
    web_id %[1]s NOT NULL DEFAULT 0,
    gen_time %[3]s NULL,
    tfb_uuid %[5]s NULL,
    daily_date %[4]s NULL,
    daily_ordinal %[1]s NOT NULL DEFAULT 0,
    hash1 %[2]s NULL,
    hash2 %[2]s NULL,
    hash3 %[2]s NULL,
    hash4 %[2]s NULL,
    hash5 %[2]s NULL,
    password %[2]s NOT NULL DEFAULT ''`,
		t.bigint, t.text, t.timestamp, t.date, t.uuid)
}

// GeneratePostgres generates a PostgreSQL migration file.
func GeneratePostgres(config *Config) error {
	// Validate configuration to prevent SQL injection
	if err := validateConfig(config); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Ensure output folder exists
	if err := os.MkdirAll(config.OutputFolder, 0o755); err != nil {
		return fmt.Errorf("failed to create output folder: %w", err)
	}

	sql := generatePostgresSQL(config)

	outputPath := filepath.Join(config.OutputFolder, config.OutputFilename)
	if err := os.WriteFile(outputPath, []byte(sql), 0o600); err != nil {
		return fmt.Errorf("failed to write migration file: %w", err)
	}

	return nil
}

func generatePostgresSQL(config *Config) string {
	seedCols := seedColumnsSQL(dialectTypes{
		bigint:    "BIGINT",
		text:      "TEXT",
		timestamp: "TIMESTAMPTZ",
		date:      "DATE",
		uuid:      "UUID",
	})

	return fmt.Sprintf(`-- Race Bot Migration
-- Generated: %s
-- Database: PostgreSQL

-- Create schema for race bot tables
CREATE SCHEMA IF NOT EXISTS %[2]s;

-- Races table holds scheduled races and their room URLs
-- A race with an empty room_url is waiting for its room to be opened
CREATE TABLE IF NOT EXISTS %[2]s.%[3]s (
    id BIGSERIAL PRIMARY KEY,
    event TEXT NOT NULL,
    goal TEXT NOT NULL,
    start_time TIMESTAMPTZ NOT NULL,
    room_url TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

-- Partial index for finding races still waiting for a room
CREATE INDEX IF NOT EXISTS idx_%[3]s_due
    ON %[2]s.%[3]s (start_time) WHERE room_url = '';

-- Seeds table holds the rolled seed record per race
CREATE TABLE IF NOT EXISTS %[2]s.%[4]s (
    race_id BIGINT PRIMARY KEY REFERENCES %[2]s.%[3]s (id),
%[6]s
);

-- Prerolled seeds table is a FIFO cache of seeds generated ahead of
-- time for slow-to-generate goals
CREATE TABLE IF NOT EXISTS %[2]s.%[5]s (
    id BIGSERIAL PRIMARY KEY,
    goal TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
%[6]s
);

-- Index for taking the oldest cached seed per goal
CREATE INDEX IF NOT EXISTS idx_%[5]s_goal
    ON %[2]s.%[5]s (goal, created_at, id);
`,
		time.Now().Format(time.RFC3339),
		config.SchemaName,
		config.RacesTable,
		config.SeedsTable,
		config.PrerolledSeedsTable,
		seedCols,
	)
}

// GenerateMySQL generates a MySQL/MariaDB migration file.
func GenerateMySQL(config *Config) error {
	// Validate configuration to prevent SQL injection
	if err := validateConfig(config); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Ensure output folder exists
	if err := os.MkdirAll(config.OutputFolder, 0o755); err != nil {
		return fmt.Errorf("failed to create output folder: %w", err)
	}

	sql := generateMySQLSQL(config)

	outputPath := filepath.Join(config.OutputFolder, config.OutputFilename)
	if err := os.WriteFile(outputPath, []byte(sql), 0o600); err != nil {
		return fmt.Errorf("failed to write migration file: %w", err)
	}

	return nil
}

func generateMySQLSQL(config *Config) string {
	// MySQL has no UUID column type; store it as text.
	seedCols := seedColumnsSQL(dialectTypes{
		bigint:    "BIGINT",
		text:      "VARCHAR(255)",
		timestamp: "TIMESTAMP(6)",
		date:      "DATE",
		uuid:      "CHAR(36)",
	})

	return fmt.Sprintf(`-- Race Bot Migration
-- Generated: %s
-- Database: MySQL/MariaDB

-- Create database for race bot tables if it doesn't exist
-- In MySQL, we use a separate database instead of schema
CREATE DATABASE IF NOT EXISTS %[2]s
    DEFAULT CHARACTER SET utf8mb4
    DEFAULT COLLATE utf8mb4_unicode_ci;

USE %[2]s;

-- Races table holds scheduled races and their room URLs
-- A race with an empty room_url is waiting for its room to be opened
CREATE TABLE IF NOT EXISTS %[3]s (
    id BIGINT PRIMARY KEY AUTO_INCREMENT,
    event VARCHAR(255) NOT NULL,
    goal VARCHAR(255) NOT NULL,
    start_time TIMESTAMP(6) NOT NULL,
    room_url VARCHAR(255) NOT NULL DEFAULT '',
    created_at TIMESTAMP(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;

-- Index for finding races still waiting for a room
CREATE INDEX idx_%[3]s_due
    ON %[3]s (room_url, start_time);

-- Seeds table holds the rolled seed record per race
CREATE TABLE IF NOT EXISTS %[4]s (
    race_id BIGINT PRIMARY KEY,
%[6]s,

    FOREIGN KEY (race_id) REFERENCES %[3]s (id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;

-- Prerolled seeds table is a FIFO cache of seeds generated ahead of
-- time for slow-to-generate goals
CREATE TABLE IF NOT EXISTS %[5]s (
    id BIGINT PRIMARY KEY AUTO_INCREMENT,
    goal VARCHAR(255) NOT NULL,
    created_at TIMESTAMP(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
%[6]s
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;

-- Index for taking the oldest cached seed per goal
CREATE INDEX idx_%[5]s_goal
    ON %[5]s (goal, created_at, id);
`,
		time.Now().Format(time.RFC3339),
		config.SchemaName,
		config.RacesTable,
		config.SeedsTable,
		config.PrerolledSeedsTable,
		seedCols,
	)
}

// GenerateSQLite generates a SQLite migration file.
func GenerateSQLite(config *Config) error {
	// Validate configuration to prevent SQL injection
	if err := validateConfig(config); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Ensure output folder exists
	if err := os.MkdirAll(config.OutputFolder, 0o755); err != nil {
		return fmt.Errorf("failed to create output folder: %w", err)
	}

	sql := generateSQLiteSQL(config)

	outputPath := filepath.Join(config.OutputFolder, config.OutputFilename)
	if err := os.WriteFile(outputPath, []byte(sql), 0o600); err != nil {
		return fmt.Errorf("failed to write migration file: %w", err)
	}

	return nil
}

func generateSQLiteSQL(config *Config) string {
	// SQLite doesn't support schemas, so we use table name prefixes instead
	racesTable := config.SchemaName + "_" + config.RacesTable
	seedsTable := config.SchemaName + "_" + config.SeedsTable
	prerolledTable := config.SchemaName + "_" + config.PrerolledSeedsTable

	seedCols := seedColumnsSQL(dialectTypes{
		bigint:    "INTEGER",
		text:      "TEXT",
		timestamp: "TEXT",
		date:      "TEXT",
		uuid:      "TEXT",
	})

	return fmt.Sprintf(`-- Race Bot Migration
-- Generated: %s
-- Database: SQLite

-- Races table holds scheduled races and their room URLs
-- A race with an empty room_url is waiting for its room to be opened
CREATE TABLE IF NOT EXISTS %[2]s (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    event TEXT NOT NULL,
    goal TEXT NOT NULL,
    start_time TEXT NOT NULL,
    room_url TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL DEFAULT (datetime('now'))
);

-- Partial index for finding races still waiting for a room
CREATE INDEX IF NOT EXISTS idx_%[2]s_due
    ON %[2]s (start_time) WHERE room_url = '';

-- Seeds table holds the rolled seed record per race
CREATE TABLE IF NOT EXISTS %[3]s (
    race_id INTEGER PRIMARY KEY REFERENCES %[2]s (id),
%[5]s
);

-- Prerolled seeds table is a FIFO cache of seeds generated ahead of
-- time for slow-to-generate goals
CREATE TABLE IF NOT EXISTS %[4]s (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    goal TEXT NOT NULL,
    created_at TEXT NOT NULL DEFAULT (datetime('now')),
%[5]s
);

-- Index for taking the oldest cached seed per goal
CREATE INDEX IF NOT EXISTS idx_%[4]s_goal
    ON %[4]s (goal, created_at, id);
`,
		time.Now().Format(time.RFC3339),
		racesTable,
		seedsTable,
		prerolledTable,
		seedCols,
	)
}
