// Package migrations holds the schema of the sqlite run store.
package migrations

import (
	"github.com/jingkaihe/docgate/pkg/db"
)

// All returns every registered migration. New migrations are appended here.
func All() []db.Migration {
	return []db.Migration{
		Migration20261001090000CreateReviewRuns(),
		Migration20261001090001CreateSectionRevisions(),
		Migration20261001090002AddRunIndexes(),
	}
}
