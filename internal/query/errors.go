package query

import (
	"errors"
	"fmt"
)

// ErrInvalidRange is returned for unparseable or inverted date ranges.
var ErrInvalidRange = errors.New("invalid date range")

// ErrInvalidRequest is returned for batch requests without students or subjects.
var ErrInvalidRequest = errors.New("invalid batch request")

// LimitExceededError is returned before any query is issued when a batch request is larger
// than the configured bounds.
type LimitExceededError struct {
	Bound  string // "students", "subjects" or "days"
	Limit  int
	Actual int
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("batch limit exceeded: %d %s requested, at most %d allowed", e.Actual, e.Bound, e.Limit)
}
