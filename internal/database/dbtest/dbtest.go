// Package dbtest opens a migrated in-memory SQLite database for tests
package dbtest

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/cruisemall/affiliate/internal/database"
	"github.com/cruisemall/affiliate/internal/database/migrations"
)

// Open returns a fresh migrated database. The pool is held to one connection
// so every goroutine shares the same in-memory database and transactions
// serialize.
func Open(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, migrations.RunMigrations(db))
	return db
}

// Runner wraps Open in a TxRunner without retries
func Runner(t *testing.T) *database.TxRunner {
	t.Helper()
	return database.NewTxRunner(Open(t), database.RetryConfig{})
}
