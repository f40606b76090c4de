// Package testutil provides a migrated throwaway database for package tests.
package testutil

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"lms/internal/config"
	"lms/internal/database"
)

// NewDB opens a migrated SQLite database in t.TempDir(). Writers take the
// database lock at BEGIN so concurrent tests serialise instead of deadlocking.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "lms.db")
	db, err := database.Open(config.DatabaseConfig{
		Driver:       "sqlite",
		DSN:          fmt.Sprintf("file:%s?_busy_timeout=10000&_foreign_keys=1&_txlock=immediate", path),
		MaxOpenConns: 8,
		LogLevel:     "silent",
	})
	require.NoError(t, err, "open test database")
	require.NoError(t, database.Migrate(context.Background(), db), "migrate test database")

	t.Cleanup(func() { _ = database.Close(db) })
	return db
}
