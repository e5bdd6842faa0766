package store

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/rogpeppe/go-internal/lockedfile"

	"github.com/jingkaihe/docgate/pkg/logger"
	reviewtypes "github.com/jingkaihe/docgate/pkg/types/review"
)

// JSONStore keeps one <id>.json file per run. Writes and reads take a file
// lock so the CLI and the HTTP server can share a directory.
type JSONStore struct {
	basePath string
}

// NewJSONStore creates the directory if needed
func NewJSONStore(basePath string) (*JSONStore, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create runs directory")
	}
	return &JSONStore{basePath: basePath}, nil
}

func (s *JSONStore) path(id string) string {
	return filepath.Join(s.basePath, id+".json")
}

// Save writes the state
func (s *JSONStore) Save(_ context.Context, state *reviewtypes.ReviewState) error {
	if err := validateID(state.ID); err != nil {
		return err
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal review state")
	}

	if err := lockedfile.Write(s.path(state.ID), bytes.NewReader(data), 0o644); err != nil {
		return errors.Wrapf(err, "failed to write run %s", state.ID)
	}
	return nil
}

// Load reads the state of run id
func (s *JSONStore) Load(_ context.Context, id string) (*reviewtypes.ReviewState, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	return s.read(s.path(id), id)
}

func (s *JSONStore) read(path, id string) (*reviewtypes.ReviewState, error) {
	data, err := lockedfile.Read(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(ErrNotFound, "run %s", id)
		}
		return nil, errors.Wrapf(err, "failed to read run %s", id)
	}

	var state reviewtypes.ReviewState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal run %s", id)
	}
	return &state, nil
}

// List returns summaries of the stored runs. Unreadable files are logged
// and skipped.
func (s *JSONStore) List(ctx context.Context, opts QueryOptions) ([]reviewtypes.Summary, error) {
	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list runs")
	}

	var summaries []reviewtypes.Summary
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		id := strings.TrimSuffix(entry.Name(), ".json")
		state, err := s.read(filepath.Join(s.basePath, entry.Name()), id)
		if err != nil {
			logger.G(ctx).WithError(err).WithField("file", entry.Name()).Warn("skipping unreadable run")
			continue
		}
		summary := state.ToSummary()
		if opts.match(summary) {
			summaries = append(summaries, summary)
		}
	}

	return sortAndLimit(summaries, opts.Limit), nil
}

// Delete removes run id
func (s *JSONStore) Delete(_ context.Context, id string) error {
	if err := validateID(id); err != nil {
		return err
	}
	if err := os.Remove(s.path(id)); err != nil {
		if os.IsNotExist(err) {
			return errors.Wrapf(ErrNotFound, "run %s", id)
		}
		return errors.Wrapf(err, "failed to delete run %s", id)
	}
	return nil
}

// Close is a no-op
func (s *JSONStore) Close() error {
	return nil
}
