// Command migrate-gen writes the pupstream schema for one SQL dialect.
//
// Usage:
//
//	go run github.com/getpup/pupstream/cmd/migrate-gen -dialect postgres -output migrations
//	go run github.com/getpup/pupstream/cmd/migrate-gen -dialect mysql -output migrations -filename init.sql
//	go run github.com/getpup/pupstream/cmd/migrate-gen -dialect sqlite -output migrations
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/getpup/pupstream/es/migrations"
)

func main() {
	defaults := migrations.DefaultConfig()
	var (
		dialect          = flag.String("dialect", "postgres", "SQL dialect: postgres, mysql or sqlite")
		outputFolder     = flag.String("output", defaults.OutputFolder, "Output folder for migration file")
		outputFilename   = flag.String("filename", defaults.OutputFilename, "Output filename")
		eventsTable      = flag.String("events-table", defaults.EventsTable, "Name of events table")
		headsTable       = flag.String("heads-table", defaults.AggregateHeadsTable, "Name of aggregate heads table")
		checkpointsTable = flag.String("checkpoints-table", defaults.CheckpointsTable, "Name of subscription checkpoints table")
	)
	flag.Parse()

	d, err := migrations.ParseDialect(*dialect)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	config := migrations.Config{
		OutputFolder:        *outputFolder,
		OutputFilename:      *outputFilename,
		EventsTable:         *eventsTable,
		CheckpointsTable:    *checkpointsTable,
		AggregateHeadsTable: *headsTable,
	}
	if err := migrations.Generate(d, &config); err != nil {
		fmt.Fprintf(os.Stderr, "Error generating migration: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Generated %s migration: %s/%s\n", d, config.OutputFolder, config.OutputFilename)
}
