package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"campus-attendance/internal/docstore"
	"campus-attendance/internal/model"
	"campus-attendance/internal/softfail"
)

// PartitionedStore reads and writes records under their scope and calendar day.
type PartitionedStore struct {
	db   docstore.Store
	sink softfail.Sink
	now  func() time.Time
}

func NewPartitionedStore(db docstore.Store, sink softfail.Sink) *PartitionedStore {
	return &PartitionedStore{db: db, sink: sink, now: time.Now}
}

// WriteAttendance stores record at its deterministic key, merging into any existing mark for
// the same student, subject and day.
func (s *PartitionedStore) WriteAttendance(ctx context.Context, scope model.Scope, record *model.AttendanceRecord) error {
	if err := CheckScope(scope, record.Date); err != nil {
		return err
	}
	if err := record.Validate(); err != nil {
		return err
	}
	day, err := ParseDate(record.Date)
	if err != nil {
		return err
	}

	record.ApplyScope(scope)
	record.ID = model.RecordID(record.RollNumber, record.Date)
	now := s.now()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	fields, err := docstore.Encode(record)
	if err != nil {
		return err
	}
	path := RecordKey(BaseAttendance, scope, day, record.ID).String()
	if err := s.db.Set(ctx, path, fields, true); err != nil {
		return fmt.Errorf("write attendance %s: %w", path, err)
	}
	return nil
}

// ReadAttendanceSegment returns every record of one day. An absent day is empty, not an error.
func (s *PartitionedStore) ReadAttendanceSegment(ctx context.Context, scope model.Scope, day time.Time) ([]model.AttendanceRecord, error) {
	return readSegment[model.AttendanceRecord](ctx, s, BaseAttendance, scope, day)
}

// WriteLeave mirrors a leave request under its scope and from-date.
func (s *PartitionedStore) WriteLeave(ctx context.Context, scope model.Scope, req *model.LeaveRequest) error {
	path, err := s.LeavePath(scope, req.FromDate, req.ID)
	if err != nil {
		return err
	}
	fields, err := docstore.Encode(req)
	if err != nil {
		return err
	}
	if err := s.db.Set(ctx, path, fields, true); err != nil {
		return fmt.Errorf("write leave %s: %w", path, err)
	}
	return nil
}

// UpdateLeave merges fields into an existing hierarchical leave copy. It returns
// docstore.ErrNotFound when there is no copy to update.
func (s *PartitionedStore) UpdateLeave(ctx context.Context, scope model.Scope, fromDate, id string, fields docstore.Fields) error {
	path, err := s.LeavePath(scope, fromDate, id)
	if err != nil {
		return err
	}
	if _, err := s.db.Get(ctx, path); err != nil {
		return fmt.Errorf("get leave %s: %w", path, err)
	}
	if err := s.db.Set(ctx, path, fields, true); err != nil {
		return fmt.Errorf("update leave %s: %w", path, err)
	}
	return nil
}

func (s *PartitionedStore) DeleteLeave(ctx context.Context, scope model.Scope, fromDate, id string) error {
	path, err := s.LeavePath(scope, fromDate, id)
	if err != nil {
		return err
	}
	if err := s.db.Delete(ctx, path); err != nil {
		return fmt.Errorf("delete leave %s: %w", path, err)
	}
	return nil
}

func (s *PartitionedStore) ReadLeaveSegment(ctx context.Context, scope model.Scope, day time.Time) ([]model.LeaveRequest, error) {
	return readSegment[model.LeaveRequest](ctx, s, BaseLeave, scope, day)
}

// LeavePath is the hierarchical key of a leave request.
func (s *PartitionedStore) LeavePath(scope model.Scope, fromDate, id string) (string, error) {
	if err := CheckScope(scope, fromDate); err != nil {
		return "", err
	}
	if id == "" {
		return "", errors.New("leave request has no id")
	}
	day, err := ParseDate(fromDate)
	if err != nil {
		return "", err
	}
	return RecordKey(BaseLeave, scope, day, id).String(), nil
}

// ListDays returns the days of a month that have a segment, ascending.
func (s *PartitionedStore) ListDays(ctx context.Context, base string, scope model.Scope, year int, month time.Month) ([]int, error) {
	path := MonthKey(base, scope, year, month).String()
	names, err := s.db.Collections(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("list days of %s: %w", path, err)
	}
	days := make([]int, 0, len(names))
	for _, n := range names {
		d, err := strconv.Atoi(n)
		if err != nil || d < 1 || d > 31 {
			continue
		}
		days = append(days, d)
	}
	sort.Ints(days)
	if len(days) == 0 {
		s.sink.Report(softfail.Event{Kind: softfail.PartitionNotFound, Op: "list days", Path: path})
	}
	return days, nil
}

func readSegment[T any](ctx context.Context, s *PartitionedStore, base string, scope model.Scope, day time.Time) ([]T, error) {
	path := DayKey(base, scope, day).String()
	docs, err := s.db.List(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("read segment %s: %w", path, err)
	}
	if len(docs) == 0 {
		s.sink.Report(softfail.Event{Kind: softfail.PartitionNotFound, Op: "read segment", Path: path})
		return nil, nil
	}
	return docstore.DecodeAll[T](docs)
}
