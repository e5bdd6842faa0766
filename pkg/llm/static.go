package llm

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/jingkaihe/docgate/pkg/review"
)

// StaticGenerator serves pre-written drafts from a directory. The draft
// for a section is <id>.md; <id>.<n>.md takes over from the n-th call
// onwards, so a directory can script a section improving across rounds.
// A missing file yields an empty draft.
type StaticGenerator struct {
	dir string
}

// NewStaticGenerator creates a generator reading drafts from dir
func NewStaticGenerator(dir string) (*StaticGenerator, error) {
	if dir == "" {
		return nil, errors.New("static provider requires a drafts directory")
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open drafts directory %s", dir)
	}
	if !info.IsDir() {
		return nil, errors.Errorf("%s is not a directory", dir)
	}
	return &StaticGenerator{dir: dir}, nil
}

// Generate returns the draft for the request's section and attempt
func (g *StaticGenerator) Generate(ctx context.Context, req review.GenerateRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	id := req.Template.Key()
	for n := req.Attempt; n >= 1; n-- {
		content, err := os.ReadFile(filepath.Join(g.dir, fmt.Sprintf("%s.%d.md", id, n)))
		if err == nil {
			return string(content), nil
		}
		if !os.IsNotExist(err) {
			return "", errors.Wrapf(err, "failed to read draft for %s", id)
		}
	}

	content, err := os.ReadFile(filepath.Join(g.dir, id+".md"))
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrapf(err, "failed to read draft for %s", id)
	}
	return string(content), nil
}
