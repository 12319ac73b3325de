package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/davidleathers/risk-engine/internal/infrastructure/config"
	"github.com/davidleathers/risk-engine/internal/infrastructure/database"
)

func main() {
	var (
		configPath = flag.String("config", config.DefaultPath, "Path to configuration file")
		action     = flag.String("action", "up", "Migration action: up, down, version")
		steps      = flag.Int("steps", 0, "Number of migrations to roll back (0 = all, down only)")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := run(os.Stdout, cfg.Database.URL, *action, *steps); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
}

func run(out io.Writer, dsn, action string, steps int) error {
	switch action {
	case "up", "down", "version":
	default:
		return fmt.Errorf("unknown action %q", action)
	}
	if dsn == "" {
		return fmt.Errorf("database url is required")
	}

	g, err := database.NewMigrator(dsn)
	if err != nil {
		return err
	}
	defer g.Close()

	switch action {
	case "up":
		err = g.Up()
	case "down":
		err = g.Down(steps)
	}
	if err != nil {
		return err
	}

	version, dirty, err := g.Version()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "schema version %d (dirty: %t)\n", version, dirty)
	return nil
}
