package query

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"campus-attendance/internal/model"
	"campus-attendance/internal/softfail"
	"campus-attendance/internal/store"
)

// BatchRequest selects the students and subjects of one class over a date range.
type BatchRequest struct {
	Year      string   `json:"year"`
	Sem       string   `json:"sem"`
	Div       string   `json:"div"`
	Subjects  []string `json:"subjects"`
	StartDate string   `json:"startDate"`
	EndDate   string   `json:"endDate"`
	Students  []string `json:"students"`
}

// Scope returns the partition scope of the request for one subject.
func (r BatchRequest) Scope(subject string) model.Scope {
	return model.Scope{Year: r.Year, Sem: r.Sem, Div: r.Div, Subject: subject}
}

// BatchResult maps student roll number to subject to that student's records, in the order the
// store returned them. Every requested (student, subject) pair is present.
type BatchResult map[string]map[string][]model.AttendanceRecord

// ProgressFunc receives the fraction of completed buckets. It is called from a separate
// goroutine, possibly after BatchExport has returned.
type ProgressFunc func(fraction float64)

type bucket struct {
	subject string
	month   time.Time
	records []model.AttendanceRecord
}

// BatchExport reads the attendance of many students across subjects and months. Limits are
// checked before any read. Each (subject, month) bucket is read concurrently; a failed bucket
// counts as empty and is reported to the sink.
func (e *Engine) BatchExport(ctx context.Context, req BatchRequest, onProgress ProgressFunc) (BatchResult, error) {
	from, to, err := parseRange(req.StartDate, req.EndDate)
	if err != nil {
		return nil, err
	}
	students := unique(req.Students)
	subjects := unique(req.Subjects)
	if len(students) == 0 || len(subjects) == 0 {
		return nil, fmt.Errorf("%w: students and subjects are required", ErrInvalidRequest)
	}
	if err := e.checkLimits(len(students), len(subjects), spanDays(from, to)); err != nil {
		return nil, err
	}
	for _, subject := range subjects {
		if err := store.CheckScope(req.Scope(subject), req.StartDate); err != nil {
			return nil, err
		}
	}

	months := enumerateMonths(from, to)
	buckets := make([]bucket, 0, len(subjects)*len(months))
	for _, subject := range subjects {
		for _, m := range months {
			buckets = append(buckets, bucket{subject: subject, month: m})
		}
	}

	prog := newProgress(len(buckets), onProgress)
	gt := e.newGate()

	// Buckets don't share a cancelling context: one failure must not stop the others.
	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for i := range buckets {
		b := &buckets[i]
		g.Go(func() error {
			defer prog.step()
			scope := req.Scope(b.subject)
			recs, err := e.attendanceMonth(ctx, gt, scope, b.month, from, to)
			if err != nil {
				e.sink.Report(softfail.Event{
					Kind: softfail.BucketFailed,
					Op:   "batch export",
					Path: store.MonthKey(store.BaseAttendance, scope, b.month.Year(), b.month.Month()).String(),
					Err:  err,
				})
				return nil
			}
			b.records = recs
			return nil
		})
	}
	_ = g.Wait()
	prog.close()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return reduce(students, subjects, buckets), nil
}

func (e *Engine) checkLimits(students, subjects, days int) error {
	switch {
	case students > e.limits.MaxStudents:
		return &LimitExceededError{Bound: "students", Limit: e.limits.MaxStudents, Actual: students}
	case subjects > e.limits.MaxSubjects:
		return &LimitExceededError{Bound: "subjects", Limit: e.limits.MaxSubjects, Actual: subjects}
	case days > e.limits.MaxDays:
		return &LimitExceededError{Bound: "days", Limit: e.limits.MaxDays, Actual: days}
	}
	return nil
}

// reduce files every bucket record under its owner, derived from the record id.
func reduce(students, subjects []string, buckets []bucket) BatchResult {
	result := make(BatchResult, len(students))
	for _, s := range students {
		bySubject := make(map[string][]model.AttendanceRecord, len(subjects))
		for _, subj := range subjects {
			bySubject[subj] = []model.AttendanceRecord{}
		}
		result[s] = bySubject
	}

	for _, b := range buckets {
		for _, rec := range b.records {
			bySubject, ok := result[model.StudentFromRecordID(rec.ID)]
			if !ok {
				continue
			}
			bySubject[b.subject] = append(bySubject[b.subject], rec)
		}
	}
	return result
}

func unique(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// progress forwards completion to a callback without ever blocking the workers. Signals
// coalesce in a one-slot channel; the dispatcher reads the counter when it wakes, so the last
// signal always observes the final count.
type progress struct {
	total  int
	done   atomic.Int64
	signal chan struct{}
}

func newProgress(total int, fn ProgressFunc) *progress {
	if fn == nil || total == 0 {
		return nil
	}
	p := &progress{total: total, signal: make(chan struct{}, 1)}
	go p.dispatch(fn)
	return p
}

func (p *progress) step() {
	if p == nil {
		return
	}
	p.done.Add(1)
	select {
	case p.signal <- struct{}{}:
	default:
	}
}

func (p *progress) close() {
	if p != nil {
		close(p.signal)
	}
}

func (p *progress) dispatch(fn ProgressFunc) {
	last := 0.0
	for range p.signal {
		f := float64(p.done.Load()) / float64(p.total)
		if f > last {
			last = f
			fn(f)
		}
	}
}
