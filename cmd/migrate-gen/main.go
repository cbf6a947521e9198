// Command migrate-gen writes the SQL migration creating the race bot's
// tables (races, seeds, prerolled_seeds) for one database dialect.
//
//	go run github.com/midoshouse/racebot/cmd/migrate-gen -adapter postgres -output migrations
//
// Table and schema names are overridable for deployments sharing a
// database:
//
//	go run github.com/midoshouse/racebot/cmd/migrate-gen -schema racebot -races-table tournament_races
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/midoshouse/racebot/pkg/migrations"
)

var generators = map[string]func(*migrations.Config) error{
	"postgres": migrations.GeneratePostgres,
	"mysql":    migrations.GenerateMySQL,
	"sqlite":   migrations.GenerateSQLite,
}

func main() {
	config := migrations.DefaultConfig()

	adapter := flag.String("adapter", "postgres", "database dialect: postgres, mysql or sqlite")
	filename := flag.String("filename", "", "output filename (default: timestamp-based)")
	flag.StringVar(&config.OutputFolder, "output", config.OutputFolder, "output folder")
	flag.StringVar(&config.SchemaName, "schema", config.SchemaName, "schema (postgres) or database (mysql) name")
	flag.StringVar(&config.RacesTable, "races-table", config.RacesTable, "races table name")
	flag.StringVar(&config.SeedsTable, "seeds-table", config.SeedsTable, "seeds table name")
	flag.StringVar(&config.PrerolledSeedsTable, "prerolled-seeds-table", config.PrerolledSeedsTable, "prerolled seeds table name")
	flag.Parse()

	if *filename != "" {
		config.OutputFilename = *filename
	}

	generate, ok := generators[*adapter]
	if !ok {
		fmt.Fprintf(os.Stderr, "unsupported adapter %q (want postgres, mysql or sqlite)\n", *adapter)
		os.Exit(1)
	}
	if err := generate(&config); err != nil {
		fmt.Fprintf(os.Stderr, "generating migration: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("wrote %s migration to %s/%s\n", *adapter, config.OutputFolder, config.OutputFilename)
}
