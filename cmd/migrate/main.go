package main

import (
	"flag"
	"os"

	"github.com/cruisemall/affiliate/internal/config"
	"github.com/cruisemall/affiliate/internal/database"
	"github.com/cruisemall/affiliate/internal/database/migrations"
	"github.com/cruisemall/affiliate/internal/logging"
)

func main() {
	rollback := flag.Bool("rollback", false, "undo the most recent migration instead of migrating")
	flag.Parse()

	cfg := config.LoadConfig()
	logger := logging.NewLogger(cfg.Log.Level, cfg.Log.Format)

	db, err := database.Connect(cfg.Database, cfg.IsProduction())
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}

	if *rollback {
		if err := migrations.Rollback(db); err != nil {
			logger.WithError(err).Fatal("Failed to roll back migration")
		}
		logger.Info("Rolled back last migration")
		os.Exit(0)
	}

	if err := migrations.RunMigrations(db); err != nil {
		logger.WithError(err).Fatal("Failed to run migrations")
	}
	logger.Info("Database is up to date")
}
