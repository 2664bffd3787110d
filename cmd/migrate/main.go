package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/stockledger/backend/internal/infrastructure/config"
	"github.com/stockledger/backend/internal/infrastructure/logger"
	"github.com/stockledger/backend/internal/infrastructure/persistence"
)

// Schema management CLI. The server migrates on startup as well; this
// tool lets operators run or verify the schema without starting HTTP.
func main() {
	var logLevel string
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}
	command := args[0]

	log, err := logger.New(&logger.Config{
		Level:      logLevel,
		Format:     "console",
		Output:     "stdout",
		TimeFormat: "2006-01-02 15:04:05",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	db, err := persistence.NewDatabase(&cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()

	switch command {
	case "up":
		if err := db.Migrate(); err != nil {
			log.Fatal("Migration failed", zap.Error(err))
		}
		log.Info("Schema migrated successfully", zap.String("driver", cfg.Database.Driver))
	case "status":
		if err := db.Ping(); err != nil {
			log.Fatal("Database unreachable", zap.Error(err))
		}
		stats, err := db.Stats()
		if err != nil {
			log.Fatal("Failed to read connection stats", zap.Error(err))
		}
		log.Info("Database reachable",
			zap.String("driver", cfg.Database.Driver),
			zap.Int("open_connections", stats.OpenConnections),
		)
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: migrate [flags] <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  up       Apply the schema to the configured database")
	fmt.Println("  status   Check database connectivity")
	fmt.Println()
	fmt.Println("Flags:")
	fmt.Println("  -log-level   Log level (default: info)")
}
