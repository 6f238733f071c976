package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"campus-attendance/internal/model"
	"campus-attendance/internal/query"
	"campus-attendance/internal/softfail"
	"campus-attendance/internal/store"
)

type AttendanceService struct {
	parts  *store.PartitionedStore
	mirror *store.MirrorStore
	engine *query.Engine
	sink   softfail.Sink
	log    logrus.FieldLogger
}

func NewAttendanceService(parts *store.PartitionedStore, mirror *store.MirrorStore, engine *query.Engine, sink softfail.Sink, log logrus.FieldLogger) *AttendanceService {
	return &AttendanceService{parts: parts, mirror: mirror, engine: engine, sink: sink, log: log}
}

// MarkAttendance writes the partitioned record, which must succeed, then mirrors it into the
// flat attendance collection on a best-effort basis.
func (s *AttendanceService) MarkAttendance(ctx context.Context, scope model.Scope, record *model.AttendanceRecord) error {
	if err := s.parts.WriteAttendance(ctx, scope, record); err != nil {
		return fmt.Errorf("mark attendance: %w", err)
	}

	id := store.FlatAttendanceID(record)
	if err := s.mirror.Upsert(ctx, store.CollectionAttendance, id, record); err != nil {
		s.sink.Report(softfail.Event{
			Kind: softfail.MirrorInconsistency,
			Op:   "mirror attendance",
			Path: store.CollectionAttendance + "/" + id,
			Err:  err,
		})
	}
	return nil
}

// MarkAttendanceBulk marks a class list concurrently. The returned slice is parallel to
// records and holds nil for every record that was written.
func (s *AttendanceService) MarkAttendanceBulk(ctx context.Context, scope model.Scope, records []model.AttendanceRecord) []error {
	errs := make([]error, len(records))

	var g errgroup.Group
	g.SetLimit(16)
	for i := range records {
		g.Go(func() error {
			errs[i] = s.MarkAttendance(ctx, scope, &records[i])
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, err := range errs {
		if err != nil {
			failed++
		}
	}
	s.log.WithFields(logrus.Fields{
		"subject": scope.Subject,
		"total":   len(records),
		"failed":  failed,
	}).Info("bulk attendance marked")
	return errs
}

// GetAttendanceByUser returns a user's marks from the flat mirror, newest first.
func (s *AttendanceService) GetAttendanceByUser(ctx context.Context, userID string) ([]model.AttendanceRecord, error) {
	records, err := store.QueryByUser[model.AttendanceRecord](ctx, s.mirror, store.CollectionAttendance, userID)
	if err != nil {
		return nil, fmt.Errorf("attendance of user %s: %w", userID, err)
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	return records, nil
}

// SubjectAttendance is one student's records for one subject with their summary.
type SubjectAttendance struct {
	Records []model.AttendanceRecord `json:"records"`
	Summary model.Summary            `json:"summary"`
}

// GetOrganizedAttendanceByUserAndDateRange reads one student's marks for every subject over
// [start, end] and groups them by subject. The span is bounded like a batch export.
func (s *AttendanceService) GetOrganizedAttendanceByUserAndDateRange(ctx context.Context, class model.Scope, subjects []string, rollNumber, start, end string) (map[string]SubjectAttendance, error) {
	if rollNumber == "" {
		return nil, fmt.Errorf("%w: roll number is required", model.ErrInvalidRecord)
	}
	bySubject, err := s.engine.QuerySubjects(ctx, class, subjects, start, end, query.ByRollNumber(rollNumber))
	if err != nil {
		return nil, err
	}

	organized := make(map[string]SubjectAttendance, len(bySubject))
	for subject, recs := range bySubject {
		organized[subject] = SubjectAttendance{
			Records: recs,
			Summary: model.Summarize(recs),
		}
	}
	return organized, nil
}

// GetBatchAttendanceForExport runs the batch aggregation for an export.
func (s *AttendanceService) GetBatchAttendanceForExport(ctx context.Context, req query.BatchRequest, onProgress query.ProgressFunc) (query.BatchResult, error) {
	start := time.Now()
	result, err := s.engine.BatchExport(ctx, req, onProgress)
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{
		"students": len(result),
		"subjects": len(req.Subjects),
		"from":     req.StartDate,
		"to":       req.EndDate,
		"elapsed":  time.Since(start).String(),
	}).Info("batch export assembled")
	return result, nil
}
