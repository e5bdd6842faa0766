package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/jingkaihe/docgate/pkg/db"
	"github.com/jingkaihe/docgate/pkg/db/migrations"
	reviewtypes "github.com/jingkaihe/docgate/pkg/types/review"
)

// SQLiteStore keeps runs in review_runs and every scored draft in
// section_revisions.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens the database at dbPath and applies migrations
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	sqlDB, err := db.OpenMigrated(ctx, dbPath, migrations.All())
	if err != nil {
		return nil, errors.Wrap(err, "failed to open run database")
	}
	return &SQLiteStore{db: sqlDB}, nil
}

type runRow struct {
	reviewtypes.Summary
	Language string `db:"language"`
	State    string `db:"state"`
}

// RevisionRow is one scored draft as stored in section_revisions
type RevisionRow struct {
	RunID     string    `db:"run_id"`
	SectionID string    `db:"section_id"`
	Attempt   int       `db:"attempt"`
	Round     int       `db:"round"`
	Composite int       `db:"composite"`
	Threshold int       `db:"threshold"`
	Passed    bool      `db:"passed"`
	Draft     string    `db:"draft"`
	Scores    string    `db:"scores"`
	CreatedAt time.Time `db:"created_at"`
}

// Revision converts the row back into a section revision
func (r RevisionRow) Revision() (reviewtypes.Revision, error) {
	var scores reviewtypes.DimensionScores
	if r.Scores != "" {
		if err := json.Unmarshal([]byte(r.Scores), &scores); err != nil {
			return reviewtypes.Revision{}, errors.Wrapf(err, "failed to unmarshal scores of %s@%d", r.SectionID, r.Attempt)
		}
	}
	return reviewtypes.Revision{
		Attempt: r.Attempt,
		Round:   r.Round,
		Draft:   r.Draft,
		Scores:  scores,
		Composite: reviewtypes.CompositeScore{
			Value:     r.Composite,
			Threshold: r.Threshold,
			Passed:    r.Passed,
			Attempt:   r.Attempt,
			At:        r.CreatedAt,
		},
		At: r.CreatedAt,
	}, nil
}

// Save upserts the run and replaces its revision rows in one transaction
func (s *SQLiteStore) Save(ctx context.Context, state *reviewtypes.ReviewState) error {
	if err := validateID(state.ID); err != nil {
		return err
	}

	data, err := json.Marshal(state)
	if err != nil {
		return errors.Wrap(err, "failed to marshal review state")
	}

	row := runRow{Summary: state.ToSummary(), Language: state.Language, State: string(data)}
	revisions, err := revisionRows(state)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	if _, err := tx.NamedExecContext(ctx, `
		INSERT INTO review_runs (
			id, skill, language, phase, round,
			section_count, passed_count, failed_count, overridden_count,
			state, created_at, updated_at
		) VALUES (
			:id, :skill, :language, :phase, :round,
			:section_count, :passed_count, :failed_count, :overridden_count,
			:state, :created_at, :updated_at
		)
		ON CONFLICT(id) DO UPDATE SET
			phase = excluded.phase,
			round = excluded.round,
			section_count = excluded.section_count,
			passed_count = excluded.passed_count,
			failed_count = excluded.failed_count,
			overridden_count = excluded.overridden_count,
			state = excluded.state,
			updated_at = excluded.updated_at
	`, row); err != nil {
		return errors.Wrapf(err, "failed to save run %s", state.ID)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM section_revisions WHERE run_id = ?", state.ID); err != nil {
		return errors.Wrap(err, "failed to clear revisions")
	}
	if len(revisions) > 0 {
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO section_revisions (
				run_id, section_id, attempt, round, composite, threshold, passed, draft, scores, created_at
			) VALUES (
				:run_id, :section_id, :attempt, :round, :composite, :threshold, :passed, :draft, :scores, :created_at
			)
		`, revisions); err != nil {
			return errors.Wrap(err, "failed to save revisions")
		}
	}

	return errors.Wrap(tx.Commit(), "failed to commit run")
}

func revisionRows(state *reviewtypes.ReviewState) ([]RevisionRow, error) {
	var rows []RevisionRow
	for _, sec := range state.Sections {
		for _, rev := range sec.History {
			scores, err := json.Marshal(rev.Scores)
			if err != nil {
				return nil, errors.Wrap(err, "failed to marshal scores")
			}
			rows = append(rows, RevisionRow{
				RunID:     state.ID,
				SectionID: sec.ID(),
				Attempt:   rev.Attempt,
				Round:     rev.Round,
				Composite: rev.Composite.Value,
				Threshold: rev.Composite.Threshold,
				Passed:    rev.Composite.Passed,
				Draft:     rev.Draft,
				Scores:    string(scores),
				CreatedAt: rev.At,
			})
		}
	}
	return rows, nil
}

// Load reads the state of run id
func (s *SQLiteStore) Load(ctx context.Context, id string) (*reviewtypes.ReviewState, error) {
	var data string
	err := s.db.GetContext(ctx, &data, "SELECT state FROM review_runs WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(ErrNotFound, "run %s", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load run %s", id)
	}

	var state reviewtypes.ReviewState
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal run %s", id)
	}
	return &state, nil
}

// List returns run summaries from the indexed columns
func (s *SQLiteStore) List(ctx context.Context, opts QueryOptions) ([]reviewtypes.Summary, error) {
	query := `SELECT id, skill, phase, round, section_count, passed_count, failed_count,
		overridden_count, created_at, updated_at FROM review_runs`

	var where []string
	var args []any
	if opts.Skill != "" {
		where = append(where, "skill = ?")
		args = append(args, opts.Skill)
	}
	if opts.Phase != "" {
		where = append(where, "phase = ?")
		args = append(args, string(opts.Phase))
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY updated_at DESC"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	var summaries []reviewtypes.Summary
	if err := s.db.SelectContext(ctx, &summaries, query, args...); err != nil {
		return nil, errors.Wrap(err, "failed to list runs")
	}
	return summaries, nil
}

// Revisions returns the stored revisions of a run ordered by section and attempt
func (s *SQLiteStore) Revisions(ctx context.Context, runID string) ([]RevisionRow, error) {
	var rows []RevisionRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT run_id, section_id, attempt, round, composite, threshold, passed, draft, scores, created_at
		FROM section_revisions WHERE run_id = ? ORDER BY section_id, attempt
	`, runID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load revisions of run %s", runID)
	}
	return rows, nil
}

// Delete removes run id and, through the foreign key, its revisions
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM review_runs WHERE id = ?", id)
	if err != nil {
		return errors.Wrapf(err, "failed to delete run %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to count deleted rows")
	}
	if n == 0 {
		return errors.Wrapf(ErrNotFound, "run %s", id)
	}
	return nil
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
