package store

import (
	"fmt"
	"strings"

	"campus-attendance/internal/model"
)

// MissingScopeError reports a partitioned write without its mandatory dimensions.
type MissingScopeError struct {
	Fields []string
}

func (e *MissingScopeError) Error() string {
	return fmt.Sprintf("missing partition scope: %s", strings.Join(e.Fields, ", "))
}

// CheckScope requires every scope field and, when partitioning by day, the record date.
func CheckScope(scope model.Scope, date string) error {
	missing, err := scope.Check()
	if err != nil {
		return err
	}
	if date == "" {
		missing = append(missing, "date")
	}
	if len(missing) > 0 {
		return &MissingScopeError{Fields: missing}
	}
	return nil
}
