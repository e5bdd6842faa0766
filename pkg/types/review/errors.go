package review

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

var (
	// ErrRunFinalized is returned when a finalized run is asked to change
	ErrRunFinalized = errors.New("review run is finalized")
	// ErrRunCancelled is returned when a cancelled run is asked to change
	ErrRunCancelled = errors.New("review run was cancelled")
	// ErrInvalidPhase is returned for an operation not allowed in the current phase
	ErrInvalidPhase = errors.New("operation not allowed in current phase")
	// ErrUnknownSection is returned when a response names a section the run does not have
	ErrUnknownSection = errors.New("unknown section")
	// ErrNotFinalized is returned when output is requested before the run is finalized
	ErrNotFinalized = errors.New("review run is not finalized")
)

// EmptyDraftError is raised when the generator returned no text. It is
// fatal to the attempt and must be retried, never scored as is.
type EmptyDraftError struct {
	Section string
	Attempt int
}

func (e *EmptyDraftError) Error() string {
	return fmt.Sprintf("%s: generator returned an empty draft for section %q (attempt %d)", FlagEmptyDraft, e.Section, e.Attempt)
}

// MissingFactError is raised when required fields reference fact keys
// the source extractor never produced.
type MissingFactError struct {
	Section string
	Keys    []string
}

func (e *MissingFactError) Error() string {
	return fmt.Sprintf("section %q references missing facts: %s", e.Section, strings.Join(e.Keys, ", "))
}

// ThresholdUnmetError is the soft failure of a composite below threshold.
type ThresholdUnmetError struct {
	Section   string
	Composite int
	Threshold int
}

func (e *ThresholdUnmetError) Error() string {
	return fmt.Sprintf("section %q scored %d, below threshold %d", e.Section, e.Composite, e.Threshold)
}

// IsEmptyDraft reports whether err is, or wraps, an EmptyDraftError
func IsEmptyDraft(err error) bool {
	_, ok := errors.Cause(err).(*EmptyDraftError)
	return ok
}

// IsMissingFact reports whether err is, or wraps, a MissingFactError
func IsMissingFact(err error) bool {
	_, ok := errors.Cause(err).(*MissingFactError)
	return ok
}

// IsThresholdUnmet reports whether err is, or wraps, a ThresholdUnmetError
func IsThresholdUnmet(err error) bool {
	_, ok := errors.Cause(err).(*ThresholdUnmetError)
	return ok
}
