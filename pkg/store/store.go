// Package store persists review runs so that a run waiting for user input
// can be resumed later. Two backends exist: one JSON file per run, and a
// SQLite database that also keeps a row per scored revision.
package store

import (
	"context"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/jingkaihe/docgate/pkg/db"
	reviewtypes "github.com/jingkaihe/docgate/pkg/types/review"
)

// ErrNotFound is returned when no run has the requested id
var ErrNotFound = errors.New("run not found")

// QueryOptions filters run listings
type QueryOptions struct {
	Skill string
	Phase reviewtypes.Phase
	Limit int
}

func (o QueryOptions) match(s reviewtypes.Summary) bool {
	if o.Skill != "" && s.Skill != o.Skill {
		return false
	}
	if o.Phase != "" && s.Phase != o.Phase {
		return false
	}
	return true
}

// Store persists review states
type Store interface {
	Save(ctx context.Context, state *reviewtypes.ReviewState) error
	Load(ctx context.Context, id string) (*reviewtypes.ReviewState, error)
	// List returns run summaries, most recently updated first.
	List(ctx context.Context, opts QueryOptions) ([]reviewtypes.Summary, error)
	Delete(ctx context.Context, id string) error
	Close() error
}

// RevisionReader is implemented by stores that index every scored revision
// separately from the run state.
type RevisionReader interface {
	Revisions(ctx context.Context, runID string) ([]RevisionRow, error)
}

// SectionHistory returns the revisions of one section of a loaded run,
// read from the revision index when the store keeps one.
func SectionHistory(ctx context.Context, st Store, state *reviewtypes.ReviewState, sectionID string) ([]reviewtypes.Revision, error) {
	sec, ok := state.Section(sectionID)
	if !ok {
		return nil, errors.Wrapf(reviewtypes.ErrUnknownSection, "run %s has no section %q", state.ID, sectionID)
	}

	reader, ok := st.(RevisionReader)
	if !ok {
		return sec.History, nil
	}
	rows, err := reader.Revisions(ctx, state.ID)
	if err != nil {
		return nil, err
	}
	var history []reviewtypes.Revision
	for _, row := range rows {
		if row.SectionID != sec.ID() {
			continue
		}
		rev, err := row.Revision()
		if err != nil {
			return nil, err
		}
		history = append(history, rev)
	}
	return history, nil
}

// Config selects and locates a store
type Config struct {
	Type string `mapstructure:"type"` // "json" or "sqlite"
	Path string `mapstructure:"path"` // directory for json, database file for sqlite
}

// DefaultConfig returns the JSON store under the docgate base path
func DefaultConfig() (Config, error) {
	base, err := db.BasePath()
	if err != nil {
		return Config{}, err
	}
	return Config{Type: "json", Path: filepath.Join(base, "runs")}, nil
}

// ConfigFromViper reads store.type and store.path, falling back to the
// default location of the selected backend.
func ConfigFromViper() (Config, error) {
	config := Config{
		Type: strings.ToLower(viper.GetString("store.type")),
		Path: viper.GetString("store.path"),
	}
	if config.Type == "" {
		config.Type = "json"
	}
	if config.Path != "" {
		return config, nil
	}

	switch config.Type {
	case "sqlite":
		path, err := db.DefaultDBPath()
		if err != nil {
			return config, err
		}
		config.Path = path
	default:
		def, err := DefaultConfig()
		if err != nil {
			return config, err
		}
		config.Path = def.Path
	}
	return config, nil
}

// New opens the store described by config
func New(ctx context.Context, config Config) (Store, error) {
	switch config.Type {
	case "json", "":
		return NewJSONStore(config.Path)
	case "sqlite":
		return NewSQLiteStore(ctx, config.Path)
	default:
		return nil, errors.Errorf("unsupported store type: %s", config.Type)
	}
}

// NewFromViper opens the configured store
func NewFromViper(ctx context.Context) (Store, error) {
	config, err := ConfigFromViper()
	if err != nil {
		return nil, err
	}
	return New(ctx, config)
}

func validateID(id string) error {
	if id == "" {
		return errors.New("run id is required")
	}
	if strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return errors.Errorf("invalid run id %q", id)
	}
	return nil
}

func sortAndLimit(summaries []reviewtypes.Summary, limit int) []reviewtypes.Summary {
	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].UpdatedAt.After(summaries[j].UpdatedAt)
	})
	if limit > 0 && len(summaries) > limit {
		summaries = summaries[:limit]
	}
	return summaries
}
