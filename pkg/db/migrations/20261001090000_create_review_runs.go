package migrations

import (
	"database/sql"

	"github.com/pkg/errors"

	"github.com/jingkaihe/docgate/pkg/db"
)

// Migration20261001090000CreateReviewRuns creates the review_runs table. The
// full ReviewState is kept as JSON next to the columns used for listing.
func Migration20261001090000CreateReviewRuns() db.Migration {
	return db.Migration{
		Version:     20261001090000,
		Description: "Create review_runs table",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS review_runs (
					id TEXT PRIMARY KEY,
					skill TEXT NOT NULL,
					language TEXT,
					phase TEXT NOT NULL,
					round INTEGER NOT NULL,
					section_count INTEGER NOT NULL DEFAULT 0,
					passed_count INTEGER NOT NULL DEFAULT 0,
					failed_count INTEGER NOT NULL DEFAULT 0,
					overridden_count INTEGER NOT NULL DEFAULT 0,
					state TEXT NOT NULL,
					created_at DATETIME NOT NULL,
					updated_at DATETIME NOT NULL
				)
			`)
			return errors.Wrap(err, "failed to create review_runs table")
		},
		Down: func(tx *sql.Tx) error {
			_, err := tx.Exec("DROP TABLE IF EXISTS review_runs")
			return errors.Wrap(err, "failed to drop review_runs table")
		},
	}
}
