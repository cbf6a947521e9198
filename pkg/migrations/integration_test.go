//go:build integration

package migrations_test

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/midoshouse/racebot/pkg/migrations"
)

// These tests interpolate table names into SQL. The names come from the
// test's own Config and have passed the package's identifier validation,
// so this is safe here; application queries stay parameterized.

// applyMigration generates with gen, runs the emitted DDL against db and
// fails the test on any error.
func applyMigration(t *testing.T, db *sql.DB, config *migrations.Config, gen func(*migrations.Config) error) {
	t.Helper()
	if err := gen(config); err != nil {
		t.Fatalf("generating migration: %v", err)
	}
	ddl, err := os.ReadFile(filepath.Join(config.OutputFolder, config.OutputFilename))
	if err != nil {
		t.Fatalf("reading migration file: %v", err)
	}
	if _, err := db.Exec(string(ddl)); err != nil {
		t.Fatalf("executing migration: %v", err)
	}
}

// racebotConfig returns a config with the standard table names writing
// into a fresh temp dir.
func racebotConfig(t *testing.T, filename string) migrations.Config {
	t.Helper()
	return migrations.Config{
		OutputFolder:        t.TempDir(),
		OutputFilename:      filename,
		SchemaName:          "racebot_test",
		RacesTable:          "races",
		SeedsTable:          "seeds",
		PrerolledSeedsTable: "prerolled_seeds",
	}
}

// exerciseTables inserts one race, its seed and one prerolled seed using
// the given qualified table names and ? or $n placeholders.
func exerciseTables(t *testing.T, db *sql.DB, races, seeds, prerolled string, raceID int64) {
	t.Helper()
	if _, err := db.Exec(fmt.Sprintf("INSERT INTO %s (race_id, storage, file_stem, web_id) VALUES (?, ?, ?, ?)", seeds),
		raceID, "web", "OoTR_1234_ABCDE", 1234); err != nil {
		t.Fatalf("inserting seed: %v", err)
	}
	if _, err := db.Exec(fmt.Sprintf("INSERT INTO %s (goal, storage, file_stem) VALUES (?, ?, ?)", prerolled),
		"rsl", "local", "OoTR_5678_FGHIJ"); err != nil {
		t.Fatalf("inserting prerolled seed: %v", err)
	}
	var due int
	if err := db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE room_url = ''", races)).Scan(&due); err != nil {
		t.Fatalf("querying due races: %v", err)
	}
	if due != 1 {
		t.Errorf("races without rooms = %d, want 1", due)
	}
}

func TestIntegrationPostgres(t *testing.T) {
	dbURL := os.Getenv("POSTGRES_URL")
	if dbURL == "" {
		t.Skip("POSTGRES_URL not set, skipping PostgreSQL integration test")
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		t.Fatalf("connecting to PostgreSQL: %v", err)
	}
	defer db.Close()

	config := racebotConfig(t, "postgres_integration.sql")
	applyMigration(t, db, &config, migrations.GeneratePostgres)
	t.Cleanup(func() {
		if _, err := db.Exec("DROP SCHEMA " + config.SchemaName + " CASCADE"); err != nil {
			t.Logf("dropping test schema: %v", err)
		}
	})

	for _, table := range []string{config.RacesTable, config.SeedsTable, config.PrerolledSeedsTable} {
		var exists bool
		err := db.QueryRow("SELECT EXISTS(SELECT 1 FROM information_schema.tables WHERE table_schema = $1 AND table_name = $2)",
			config.SchemaName, table).Scan(&exists)
		if err != nil {
			t.Fatalf("checking table %s: %v", table, err)
		}
		if !exists {
			t.Errorf("table %s.%s missing after migration", config.SchemaName, table)
		}
	}

	races := config.SchemaName + "." + config.RacesTable
	var raceID int64
	err = db.QueryRow(fmt.Sprintf("INSERT INTO %s (event, goal, start_time) VALUES ($1, $2, $3) RETURNING id", races),
		"mw", "3rd Multiworld Tournament", time.Now()).Scan(&raceID)
	if err != nil {
		t.Fatalf("inserting race: %v", err)
	}

	seeds := config.SchemaName + "." + config.SeedsTable
	if _, err := db.Exec(fmt.Sprintf("INSERT INTO %s (race_id, storage, file_stem, web_id) VALUES ($1, $2, $3, $4)", seeds),
		raceID, "web", "OoTR_1234_ABCDE", 1234); err != nil {
		t.Fatalf("inserting seed: %v", err)
	}
	prerolled := config.SchemaName + "." + config.PrerolledSeedsTable
	if _, err := db.Exec(fmt.Sprintf("INSERT INTO %s (goal, storage, file_stem) VALUES ($1, $2, $3)", prerolled),
		"rsl", "local", "OoTR_5678_FGHIJ"); err != nil {
		t.Fatalf("inserting prerolled seed: %v", err)
	}
}

func TestIntegrationMySQL(t *testing.T) {
	dbURL := os.Getenv("MYSQL_URL")
	if dbURL == "" {
		t.Skip("MYSQL_URL not set, skipping MySQL integration test")
	}

	db, err := sql.Open("mysql", dbURL+"?multiStatements=true")
	if err != nil {
		t.Fatalf("connecting to MySQL: %v", err)
	}
	defer db.Close()

	config := racebotConfig(t, "mysql_integration.sql")
	applyMigration(t, db, &config, migrations.GenerateMySQL)
	t.Cleanup(func() {
		if _, err := db.Exec("DROP DATABASE IF EXISTS " + config.SchemaName); err != nil {
			t.Logf("dropping test database: %v", err)
		}
	})

	if _, err := db.Exec("USE " + config.SchemaName); err != nil {
		t.Fatalf("selecting test database: %v", err)
	}
	for _, table := range []string{config.RacesTable, config.SeedsTable, config.PrerolledSeedsTable} {
		var n int
		err := db.QueryRow("SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = ? AND table_name = ?",
			config.SchemaName, table).Scan(&n)
		if err != nil {
			t.Fatalf("checking table %s: %v", table, err)
		}
		if n == 0 {
			t.Errorf("table %s.%s missing after migration", config.SchemaName, table)
		}
	}

	res, err := db.Exec(fmt.Sprintf("INSERT INTO %s (event, goal, start_time) VALUES (?, ?, ?)", config.RacesTable),
		"mw", "3rd Multiworld Tournament", time.Now())
	if err != nil {
		t.Fatalf("inserting race: %v", err)
	}
	raceID, err := res.LastInsertId()
	if err != nil {
		t.Fatalf("reading inserted race id: %v", err)
	}
	exerciseTables(t, db, config.RacesTable, config.SeedsTable, config.PrerolledSeedsTable, raceID)
}

func TestIntegrationSQLite(t *testing.T) {
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "racebot.db"))
	if err != nil {
		t.Fatalf("opening SQLite database: %v", err)
	}
	defer db.Close()

	config := racebotConfig(t, "sqlite_integration.sql")
	applyMigration(t, db, &config, migrations.GenerateSQLite)

	// SQLite has no schemas; tables carry the schema name as a prefix.
	races := config.SchemaName + "_" + config.RacesTable
	seeds := config.SchemaName + "_" + config.SeedsTable
	prerolled := config.SchemaName + "_" + config.PrerolledSeedsTable

	for _, table := range []string{races, seeds, prerolled} {
		var n int
		if err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&n); err != nil {
			t.Fatalf("checking table %s: %v", table, err)
		}
		if n == 0 {
			t.Errorf("table %s missing after migration", table)
		}
	}

	res, err := db.Exec(fmt.Sprintf("INSERT INTO %s (event, goal, start_time) VALUES (?, ?, ?)", races),
		"mw", "3rd Multiworld Tournament", time.Now().Format(time.RFC3339))
	if err != nil {
		t.Fatalf("inserting race: %v", err)
	}
	raceID, err := res.LastInsertId()
	if err != nil {
		t.Fatalf("reading inserted race id: %v", err)
	}
	exerciseTables(t, db, races, seeds, prerolled, raceID)
}
