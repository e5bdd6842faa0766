package migrations

import (
	"database/sql"

	"github.com/pkg/errors"

	"github.com/jingkaihe/docgate/pkg/db"
)

// Migration20261001090001CreateSectionRevisions creates section_revisions,
// one row per scored draft, removed together with its run.
func Migration20261001090001CreateSectionRevisions() db.Migration {
	return db.Migration{
		Version:     20261001090001,
		Description: "Create section_revisions table",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS section_revisions (
					run_id TEXT NOT NULL REFERENCES review_runs(id) ON DELETE CASCADE,
					section_id TEXT NOT NULL,
					attempt INTEGER NOT NULL,
					round INTEGER NOT NULL,
					composite INTEGER NOT NULL,
					threshold INTEGER NOT NULL,
					passed BOOLEAN NOT NULL,
					draft TEXT NOT NULL,
					scores TEXT NOT NULL,
					created_at DATETIME NOT NULL,
					PRIMARY KEY (run_id, section_id, attempt)
				)
			`)
			return errors.Wrap(err, "failed to create section_revisions table")
		},
		Down: func(tx *sql.Tx) error {
			_, err := tx.Exec("DROP TABLE IF EXISTS section_revisions")
			return errors.Wrap(err, "failed to drop section_revisions table")
		},
	}
}
