// Package query runs concurrent reads over the partitioned store: day-by-day range queries,
// month-grouped queries and the batch export aggregation.
package query

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"campus-attendance/internal/config"
	"campus-attendance/internal/model"
	"campus-attendance/internal/softfail"
	"campus-attendance/internal/store"
)

type Engine struct {
	parts       *store.PartitionedStore
	sink        softfail.Sink
	limits      config.Limits
	concurrency int
}

// NewEngine builds an engine. concurrency bounds the in-flight store reads of a single call,
// nested fan-outs included.
func NewEngine(parts *store.PartitionedStore, sink softfail.Sink, limits config.Limits, concurrency int) *Engine {
	if concurrency <= 0 {
		concurrency = 32
	}
	return &Engine{parts: parts, sink: sink, limits: limits, concurrency: concurrency}
}

// RecordFilter selects records after they are read; nil keeps everything.
type RecordFilter func(*model.AttendanceRecord) bool

// ByRollNumber keeps the records of one student.
func ByRollNumber(roll string) RecordFilter {
	return func(r *model.AttendanceRecord) bool { return r.RollNumber == roll }
}

// monthGroupingDays is the span above which subject queries list days per month instead of
// reading every day.
const monthGroupingDays = 31

// QueryRange reads every day of [start, end] concurrently and returns the matching records
// sorted by date. Days without a segment contribute nothing.
func (e *Engine) QueryRange(ctx context.Context, scope model.Scope, start, end string, filter RecordFilter) ([]model.AttendanceRecord, error) {
	from, to, err := parseRange(start, end)
	if err != nil {
		return nil, err
	}
	if err := store.CheckScope(scope, start); err != nil {
		return nil, err
	}

	results, err := e.readDays(ctx, e.newGate(), scope, from, to)
	if err != nil {
		return nil, fmt.Errorf("query range %s..%s: %w", start, end, err)
	}
	return mergeAttendance(results, filter), nil
}

// QueryRangeByMonth is QueryRange grouped by calendar month: one day listing per month, then
// reads only for the days that exist.
func (e *Engine) QueryRangeByMonth(ctx context.Context, scope model.Scope, start, end string, filter RecordFilter) ([]model.AttendanceRecord, error) {
	from, to, err := parseRange(start, end)
	if err != nil {
		return nil, err
	}
	if err := store.CheckScope(scope, start); err != nil {
		return nil, err
	}

	results, err := e.readMonths(ctx, e.newGate(), scope, from, to)
	if err != nil {
		return nil, fmt.Errorf("query range by month %s..%s: %w", start, end, err)
	}
	return mergeAttendance(results, filter), nil
}

// QuerySubjects runs a range query for every subject of class and returns the sorted matches
// per subject. The span is held to the batch day limit and checked before any read. Spans
// longer than a month are read month by month. All subjects share one read bound.
func (e *Engine) QuerySubjects(ctx context.Context, class model.Scope, subjects []string, start, end string, filter RecordFilter) (map[string][]model.AttendanceRecord, error) {
	from, to, err := parseRange(start, end)
	if err != nil {
		return nil, err
	}
	subjects = unique(subjects)
	if len(subjects) == 0 {
		return nil, fmt.Errorf("%w: subjects are required", ErrInvalidRequest)
	}
	if days := spanDays(from, to); days > e.limits.MaxDays {
		return nil, &LimitExceededError{Bound: "days", Limit: e.limits.MaxDays, Actual: days}
	}
	for _, subject := range subjects {
		if err := store.CheckScope(class.WithSubject(subject), start); err != nil {
			return nil, err
		}
	}

	read := e.readDays
	if spanDays(from, to) > monthGroupingDays {
		read = e.readMonths
	}

	gt := e.newGate()
	results := make([][]model.AttendanceRecord, len(subjects))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, subject := range subjects {
		g.Go(func() error {
			segments, err := read(gctx, gt, class.WithSubject(subject), from, to)
			if err != nil {
				return fmt.Errorf("subject %s: %w", subject, err)
			}
			results[i] = mergeAttendance(segments, filter)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("query subjects %s..%s: %w", start, end, err)
	}

	out := make(map[string][]model.AttendanceRecord, len(subjects))
	for i, subject := range subjects {
		out[subject] = results[i]
	}
	return out, nil
}

// readDays reads every day of [from, to], one segment per day, in day order.
func (e *Engine) readDays(ctx context.Context, gt gate, scope model.Scope, from, to time.Time) ([][]model.AttendanceRecord, error) {
	days := enumerateDays(from, to)
	results := make([][]model.AttendanceRecord, len(days))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, d := range days {
		g.Go(func() error {
			release, err := gt.acquire(gctx)
			if err != nil {
				return err
			}
			defer release()
			recs, err := e.parts.ReadAttendanceSegment(gctx, scope, d)
			if err != nil {
				return err
			}
			results[i] = recs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// readMonths reads [from, to] one calendar month at a time, in month order.
func (e *Engine) readMonths(ctx context.Context, gt gate, scope model.Scope, from, to time.Time) ([][]model.AttendanceRecord, error) {
	months := enumerateMonths(from, to)
	results := make([][]model.AttendanceRecord, len(months))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, m := range months {
		g.Go(func() error {
			recs, err := e.attendanceMonth(gctx, gt, scope, m, from, to)
			if err != nil {
				return err
			}
			results[i] = recs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// QueryLeavesByMonth returns the hierarchical leave copies of a month sorted by from-date.
func (e *Engine) QueryLeavesByMonth(ctx context.Context, scope model.Scope, year int, month time.Month) ([]model.LeaveRequest, error) {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	if err := store.CheckScope(scope, first.Format(time.DateOnly)); err != nil {
		return nil, err
	}
	last := first.AddDate(0, 1, -1)

	leaves, err := readMonth[model.LeaveRequest](ctx, e, e.newGate(), store.BaseLeave, scope, first, last, e.parts.ReadLeaveSegment)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(leaves, func(i, j int) bool {
		if leaves[i].FromDate != leaves[j].FromDate {
			return leaves[i].FromDate < leaves[j].FromDate
		}
		return leaves[i].ID < leaves[j].ID
	})
	return leaves, nil
}

// gate caps the store reads in flight across every group of one call. A token is held only
// for the duration of a single read, never while waiting on a nested group.
type gate struct {
	sem *semaphore.Weighted
}

func (e *Engine) newGate() gate {
	return gate{sem: semaphore.NewWeighted(int64(e.concurrency))}
}

func (g gate) acquire(ctx context.Context) (func(), error) {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { g.sem.Release(1) }, nil
}

func (e *Engine) attendanceMonth(ctx context.Context, gt gate, scope model.Scope, month, from, to time.Time) ([]model.AttendanceRecord, error) {
	return readMonth[model.AttendanceRecord](ctx, e, gt, store.BaseAttendance, scope, maxTime(month, from), minTime(month.AddDate(0, 1, -1), to), e.parts.ReadAttendanceSegment)
}

type segmentReader[T any] func(ctx context.Context, scope model.Scope, day time.Time) ([]T, error)

// readMonth lists the existing days of from's month and reads those within [from, to]
// concurrently. Results are concatenated in day order.
func readMonth[T any](ctx context.Context, e *Engine, gt gate, base string, scope model.Scope, from, to time.Time, read segmentReader[T]) ([]T, error) {
	release, err := gt.acquire(ctx)
	if err != nil {
		return nil, err
	}
	days, err := e.parts.ListDays(ctx, base, scope, from.Year(), from.Month())
	release()
	if err != nil {
		return nil, err
	}

	var wanted []time.Time
	for _, d := range days {
		t := time.Date(from.Year(), from.Month(), d, 0, 0, 0, 0, time.UTC)
		if t.Month() != from.Month() || t.Before(from) || t.After(to) {
			continue
		}
		wanted = append(wanted, t)
	}

	results := make([][]T, len(wanted))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, d := range wanted {
		g.Go(func() error {
			release, err := gt.acquire(gctx)
			if err != nil {
				return err
			}
			defer release()
			recs, err := read(gctx, scope, d)
			if err != nil {
				return err
			}
			results[i] = recs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []T
	for _, r := range results {
		out = append(out, r...)
	}
	return out, nil
}

func mergeAttendance(results [][]model.AttendanceRecord, filter RecordFilter) []model.AttendanceRecord {
	merged := make([]model.AttendanceRecord, 0)
	for _, recs := range results {
		for i := range recs {
			if filter == nil || filter(&recs[i]) {
				merged = append(merged, recs[i])
			}
		}
	}
	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].Date != merged[j].Date {
			return merged[i].Date < merged[j].Date
		}
		return merged[i].RollNumber < merged[j].RollNumber
	})
	return merged
}

func parseRange(start, end string) (time.Time, time.Time, error) {
	from, err := store.ParseDate(start)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: %v", ErrInvalidRange, err)
	}
	to, err := store.ParseDate(end)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: %v", ErrInvalidRange, err)
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: %s is after %s", ErrInvalidRange, start, end)
	}
	return from, to, nil
}

// enumerateDays returns every day of [from, to], inclusive.
func enumerateDays(from, to time.Time) []time.Time {
	var days []time.Time
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

// enumerateMonths returns the first day of every month touched by [from, to].
func enumerateMonths(from, to time.Time) []time.Time {
	var months []time.Time
	m := time.Date(from.Year(), from.Month(), 1, 0, 0, 0, 0, time.UTC)
	for !m.After(to) {
		months = append(months, m)
		m = m.AddDate(0, 1, 0)
	}
	return months
}

func spanDays(from, to time.Time) int {
	return int(to.Sub(from).Hours()/24) + 1
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
