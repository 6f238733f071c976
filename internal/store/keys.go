package store

import (
	"fmt"
	"strings"
	"time"

	"campus-attendance/internal/model"
)

// Partition bases.
const (
	BaseAttendance = "attendance"
	BaseLeave      = "leave"
)

// Segments is a partition key split into path segments.
type Segments []string

func (s Segments) String() string {
	return strings.Join(s, "/")
}

// ScopeKey is the single source of partition prefixes:
// {base}/{year}/sems/{sem}/divs/{div}/subjects/{subject}.
func ScopeKey(base string, scope model.Scope) Segments {
	return Segments{base, scope.Year, "sems", scope.Sem, "divs", scope.Div, "subjects", scope.Subject}
}

// MonthKey is the document that holds one subcollection per day of a month.
func MonthKey(base string, scope model.Scope, year int, month time.Month) Segments {
	return append(ScopeKey(base, scope), fmt.Sprintf("%04d", year), fmt.Sprintf("%02d", int(month)))
}

// DayKey is the leaf collection holding a day's records.
func DayKey(base string, scope model.Scope, day time.Time) Segments {
	return append(MonthKey(base, scope, day.Year(), day.Month()), fmt.Sprintf("%02d", day.Day()))
}

// RecordKey is the full document key of a record.
func RecordKey(base string, scope model.Scope, day time.Time, id string) Segments {
	return append(DayKey(base, scope, day), id)
}

// ParseDate parses an ISO calendar date (YYYY-MM-DD) as a UTC day.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}
