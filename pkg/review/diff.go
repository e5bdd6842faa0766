package review

import (
	"fmt"

	"github.com/aymanbagabas/go-udiff"
	"github.com/pkg/errors"

	reviewtypes "github.com/jingkaihe/docgate/pkg/types/review"
)

// Diff returns a unified diff of a section's draft between two revisions.
// A zero toAttempt selects the latest revision.
func Diff(section *reviewtypes.Section, fromAttempt, toAttempt int) (string, error) {
	if toAttempt == 0 {
		latest, ok := section.Latest()
		if !ok {
			return "", errors.Errorf("section %q has no revisions", section.Name())
		}
		toAttempt = latest.Attempt
	}

	from, ok := section.Revision(fromAttempt)
	if !ok {
		return "", errors.Errorf("section %q has no revision %d", section.Name(), fromAttempt)
	}
	to, ok := section.Revision(toAttempt)
	if !ok {
		return "", errors.Errorf("section %q has no revision %d", section.Name(), toAttempt)
	}

	return udiff.Unified(
		fmt.Sprintf("%s@%d", section.ID(), from.Attempt),
		fmt.Sprintf("%s@%d", section.ID(), to.Attempt),
		ensureNewline(from.Draft),
		ensureNewline(to.Draft),
	), nil
}

func ensureNewline(s string) string {
	if s == "" || s[len(s)-1] == '\n' {
		return s
	}
	return s + "\n"
}
