package db

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTable(tx *sql.Tx) error {
	_, err := tx.Exec("CREATE TABLE drafts (id INTEGER PRIMARY KEY)")
	return err
}

func addColumn(tx *sql.Tx) error {
	_, err := tx.Exec("ALTER TABLE drafts ADD COLUMN section TEXT")
	return err
}

func tableExists(t *testing.T, db interface {
	QueryRow(string, ...any) *sql.Row
}, name string) bool {
	t.Helper()
	var exists bool
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) > 0 FROM sqlite_master WHERE type='table' AND name=?`, name).Scan(&exists))
	return exists
}

func TestOpen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "subdir", "nested", "test.db")

	db, err := Open(context.Background(), dbPath)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, VerifyConfiguration(db))
	_, err = os.Stat(filepath.Dir(dbPath))
	require.NoError(t, err)
}

func TestDefaultDBPath(t *testing.T) {
	t.Run("with base path", func(t *testing.T) {
		t.Setenv(BasePathEnv, "/custom/path")
		path, err := DefaultDBPath()
		require.NoError(t, err)
		assert.Equal(t, "/custom/path/storage.db", path)
	})

	t.Run("without base path", func(t *testing.T) {
		t.Setenv(BasePathEnv, "")
		path, err := DefaultDBPath()
		require.NoError(t, err)
		home, _ := os.UserHomeDir()
		assert.Equal(t, filepath.Join(home, ".docgate", "storage.db"), path)
	})
}

func TestMigrationRunner(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer db.Close()

	// out of order on purpose, the runner sorts by version
	migrations := []Migration{
		{Version: 20261001000002, Description: "Add column", Up: addColumn},
		{Version: 20261001000001, Description: "Create drafts", Up: createTable},
	}

	runner := NewMigrationRunner(db)
	require.NoError(t, runner.Run(ctx, migrations))
	require.NoError(t, runner.Run(ctx, migrations))

	assert.True(t, tableExists(t, db, "drafts"))

	versions, err := runner.GetAppliedVersions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{20261001000001, 20261001000002}, versions)
}

func TestMigrationRunnerFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer db.Close()

	runner := NewMigrationRunner(db)
	err = runner.Run(ctx, []Migration{
		{Version: 20261001000001, Description: "Broken", Up: func(tx *sql.Tx) error {
			if err := createTable(tx); err != nil {
				return err
			}
			_, err := tx.Exec("NOT SQL")
			return err
		}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to apply migration 20261001000001: Broken")

	assert.False(t, tableExists(t, db, "drafts"))
	versions, err := runner.GetAppliedVersions(ctx)
	require.NoError(t, err)
	assert.Empty(t, versions)
}

func TestMigrationRunnerRollback(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer db.Close()

	migrations := []Migration{
		{
			Version:     20261001000001,
			Description: "Create drafts",
			Up:          createTable,
			Down: func(tx *sql.Tx) error {
				_, err := tx.Exec("DROP TABLE drafts")
				return err
			},
		},
	}

	runner := NewMigrationRunner(db)
	require.NoError(t, runner.Run(ctx, migrations))
	assert.True(t, tableExists(t, db, "drafts"))

	require.NoError(t, runner.Rollback(ctx, migrations))
	assert.False(t, tableExists(t, db, "drafts"))

	versions, err := runner.GetAppliedVersions(ctx)
	require.NoError(t, err)
	assert.Empty(t, versions)

	require.NoError(t, runner.Rollback(ctx, migrations), "nothing left to roll back")
}

func TestOpenMigrated(t *testing.T) {
	ctx := context.Background()
	db, err := OpenMigrated(ctx, filepath.Join(t.TempDir(), "test.db"), []Migration{
		{Version: 20261001000001, Description: "Create drafts", Up: createTable},
	})
	require.NoError(t, err)
	defer db.Close()

	assert.True(t, tableExists(t, db, "drafts"))
}
