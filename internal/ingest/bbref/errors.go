package bbref

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Failure classes. Use errors.Is to test for them through any wrapping.
var (
	// ErrFetch is a network or transport failure reported by the fetch layer.
	ErrFetch = errors.New("fetch failed")

	// ErrNotFound means an expected table or element is absent from the page.
	ErrNotFound = errors.New("not found")

	// ErrExtraction means a located table parsed into an unexpected shape.
	ErrExtraction = errors.New("extraction failed")

	// ErrInvalidTeam is returned for an unrecognized team code.
	ErrInvalidTeam = errors.New("invalid team")

	// ErrInvalidDateRange is returned when start is after end.
	ErrInvalidDateRange = errors.New("invalid date range")

	// ErrDuplicateGame means two box scores produced the same GameID.
	ErrDuplicateGame = errors.New("duplicate game id")
)

func notFoundf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrNotFound)
}

func extractionf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrExtraction)
}

// PageError records the failure of one box-score page inside a batch run.
type PageError struct {
	BoxScoreID string
	URL        string
	Err        error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("box score %s (%s): %v", e.BoxScoreID, e.URL, e.Err)
}

func (e *PageError) Unwrap() error { return e.Err }

// Kind names the failure class of err for reporting.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrFetch):
		return "fetch"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrExtraction):
		return "extraction"
	case errors.Is(err, ErrInvalidTeam):
		return "invalid_team"
	case errors.Is(err, ErrInvalidDateRange):
		return "invalid_date_range"
	case errors.Is(err, ErrDuplicateGame):
		return "duplicate_game"
	default:
		return "other"
	}
}
