package migrations

import (
	"database/sql"

	"github.com/pkg/errors"

	"github.com/jingkaihe/docgate/pkg/db"
)

// Migration20261001090002AddRunIndexes adds the indexes used by run listings
func Migration20261001090002AddRunIndexes() db.Migration {
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_review_runs_updated_at ON review_runs(updated_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_review_runs_phase ON review_runs(phase)",
		"CREATE INDEX IF NOT EXISTS idx_section_revisions_run ON section_revisions(run_id, section_id)",
	}

	return db.Migration{
		Version:     20261001090002,
		Description: "Add review run indexes",
		Up: func(tx *sql.Tx) error {
			for _, stmt := range indexes {
				if _, err := tx.Exec(stmt); err != nil {
					return errors.Wrapf(err, "failed to execute %s", stmt)
				}
			}
			return nil
		},
		Down: func(tx *sql.Tx) error {
			for _, name := range []string{"idx_review_runs_updated_at", "idx_review_runs_phase", "idx_section_revisions_run"} {
				if _, err := tx.Exec("DROP INDEX IF EXISTS " + name); err != nil {
					return errors.Wrapf(err, "failed to drop index %s", name)
				}
			}
			return nil
		},
	}
}
