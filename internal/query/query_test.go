package query

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"campus-attendance/internal/config"
	"campus-attendance/internal/docstore"
	"campus-attendance/internal/model"
	"campus-attendance/internal/softfail"
	"campus-attendance/internal/store"
)

var errBoom = errors.New("boom")

// spyStore counts reads, tracks how many run at once and fails paths containing failOn.
type spyStore struct {
	docstore.Store
	delay  time.Duration
	failOn string

	lists       atomic.Int64
	collections atomic.Int64
	inflight    atomic.Int64
	maxInflight atomic.Int64
}

func (s *spyStore) enter() func() {
	n := s.inflight.Add(1)
	for {
		m := s.maxInflight.Load()
		if n <= m || s.maxInflight.CompareAndSwap(m, n) {
			break
		}
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	return func() { s.inflight.Add(-1) }
}

func (s *spyStore) List(ctx context.Context, collection string) ([]docstore.Document, error) {
	s.lists.Add(1)
	defer s.enter()()
	if s.failOn != "" && strings.Contains(collection, s.failOn) {
		return nil, errBoom
	}
	return s.Store.List(ctx, collection)
}

func (s *spyStore) Collections(ctx context.Context, document string) ([]string, error) {
	s.collections.Add(1)
	defer s.enter()()
	if s.failOn != "" && strings.Contains(document, s.failOn) {
		return nil, errBoom
	}
	return s.Store.Collections(ctx, document)
}

func (s *spyStore) reads() int64 { return s.lists.Load() + s.collections.Load() }

var class = model.Scope{Year: "2nd", Sem: "3", Div: "A"}

type fixture struct {
	mem    *docstore.Memory
	spy    *spyStore
	sink   *softfail.Recorder
	engine *Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := docstore.NewMemory()
	spy := &spyStore{Store: mem}
	sink := &softfail.Recorder{}
	parts := store.NewPartitionedStore(spy, sink)
	return &fixture{mem: mem, spy: spy, sink: sink, engine: NewEngine(parts, sink, config.DefaultLimits(), 8)}
}

// mark seeds a record without going through the spy.
func (f *fixture) mark(t *testing.T, subject, roll, date string) {
	t.Helper()
	seed := store.NewPartitionedStore(f.mem, softfail.Discard{})
	rec := &model.AttendanceRecord{RollNumber: roll, Date: date, Status: model.AttendanceStatusPresent}
	if err := seed.WriteAttendance(context.Background(), class.WithSubject(subject), rec); err != nil {
		t.Fatalf("seed %s %s %s: %v", subject, roll, date, err)
	}
}

func TestQueryRangeSingleDayIssuesOneRead(t *testing.T) {
	f := newFixture(t)
	f.mark(t, "Physics", "S1", "2025-03-15")

	got, err := f.engine.QueryRange(context.Background(), class.WithSubject("Physics"), "2025-03-15", "2025-03-15", nil)
	if err != nil {
		t.Fatalf("QueryRange: %v", err)
	}
	if len(got) != 1 || got[0].ID != "S1_2025-03-15" {
		t.Errorf("got %+v", got)
	}
	if n := f.spy.lists.Load(); n != 1 {
		t.Errorf("segment reads = %d, want 1", n)
	}
}

func TestQueryRangeMergesAndSorts(t *testing.T) {
	f := newFixture(t)
	f.mark(t, "Physics", "S2", "2025-03-07")
	f.mark(t, "Physics", "S1", "2025-03-07")
	f.mark(t, "Physics", "S1", "2025-03-02")
	f.mark(t, "Physics", "S1", "2025-04-01") // outside the range

	got, err := f.engine.QueryRange(context.Background(), class.WithSubject("Physics"), "2025-03-01", "2025-03-10", nil)
	if err != nil {
		t.Fatalf("QueryRange: %v", err)
	}
	want := []string{"S1_2025-03-02", "S1_2025-03-07", "S2_2025-03-07"}
	if len(got) != len(want) {
		t.Fatalf("got %d records, want %d", len(got), len(want))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("record %d = %s, want %s", i, got[i].ID, id)
		}
	}
	if n := f.spy.lists.Load(); n != 10 {
		t.Errorf("segment reads = %d, want one per day (10)", n)
	}
	if n := f.sink.Count(softfail.PartitionNotFound); n != 8 {
		t.Errorf("absent segments reported = %d, want 8", n)
	}

	only, err := f.engine.QueryRange(context.Background(), class.WithSubject("Physics"), "2025-03-01", "2025-03-10", ByRollNumber("S2"))
	if err != nil {
		t.Fatalf("QueryRange filtered: %v", err)
	}
	if len(only) != 1 || only[0].RollNumber != "S2" {
		t.Errorf("filtered = %+v", only)
	}
}

func TestQueryRangeEmptyPartitionIsNotAnError(t *testing.T) {
	f := newFixture(t)
	got, err := f.engine.QueryRange(context.Background(), class.WithSubject("Physics"), "2025-03-01", "2025-03-31", nil)
	if err != nil {
		t.Fatalf("QueryRange: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("got %v, want empty non-nil slice", got)
	}
}

func TestQueryRangeReadsConcurrently(t *testing.T) {
	f := newFixture(t)
	f.spy.delay = 20 * time.Millisecond

	if _, err := f.engine.QueryRange(context.Background(), class.WithSubject("Physics"), "2025-03-01", "2025-03-16", nil); err != nil {
		t.Fatalf("QueryRange: %v", err)
	}
	if m := f.spy.maxInflight.Load(); m < 2 {
		t.Errorf("max in-flight reads = %d, want concurrent reads", m)
	}
	if m := f.spy.maxInflight.Load(); m > 8 {
		t.Errorf("max in-flight reads = %d, exceeds concurrency limit 8", m)
	}
}

func TestQueryRangeByMonthBoundsInflightReads(t *testing.T) {
	f := newFixture(t)
	for _, d := range []string{"2003-04-02", "2010-11-15", "2010-11-16", "2024-12-31"} {
		f.mark(t, "Physics", "S1", d)
	}
	f.spy.delay = 2 * time.Millisecond

	got, err := f.engine.QueryRangeByMonth(context.Background(), class.WithSubject("Physics"), "2000-01-01", "2024-12-31", nil)
	if err != nil {
		t.Fatalf("QueryRangeByMonth: %v", err)
	}
	if len(got) != 4 {
		t.Errorf("got %d records, want 4", len(got))
	}
	if n := f.spy.collections.Load(); n != 300 {
		t.Errorf("month listings = %d, want 300", n)
	}
	if m := f.spy.maxInflight.Load(); m > 8 {
		t.Errorf("max in-flight reads = %d, exceeds concurrency limit 8", m)
	}
}

func TestQuerySubjects(t *testing.T) {
	f := newFixture(t)
	f.mark(t, "Physics", "S1", "2025-03-03")
	f.mark(t, "Physics", "S2", "2025-03-03")
	f.mark(t, "Chemistry", "S1", "2025-01-20")
	ctx := context.Background()

	got, err := f.engine.QuerySubjects(ctx, class, []string{"Physics", "Chemistry", "Physics"}, "2025-03-01", "2025-03-31", ByRollNumber("S1"))
	if err != nil {
		t.Fatalf("QuerySubjects: %v", err)
	}
	if len(got) != 2 || len(got["Physics"]) != 1 || got["Chemistry"] == nil || len(got["Chemistry"]) != 0 {
		t.Errorf("got %+v", got)
	}
	if n := f.spy.collections.Load(); n != 0 {
		t.Errorf("month listings = %d, want day reads for a one-month span", n)
	}

	wide, err := f.engine.QuerySubjects(ctx, class, []string{"Chemistry"}, "2025-01-01", "2025-04-30", ByRollNumber("S1"))
	if err != nil {
		t.Fatalf("QuerySubjects wide: %v", err)
	}
	if len(wide["Chemistry"]) != 1 {
		t.Errorf("wide = %+v", wide)
	}
	if n := f.spy.collections.Load(); n != 4 {
		t.Errorf("month listings = %d, want 4", n)
	}
}

func TestQuerySubjectsBoundsSpanAndReads(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var limit *LimitExceededError
	_, err := f.engine.QuerySubjects(ctx, class, []string{"Physics"}, "2000-01-01", "2024-12-31", nil)
	if !errors.As(err, &limit) || limit.Bound != "days" {
		t.Fatalf("err = %v, want days LimitExceededError", err)
	}
	if n := f.spy.reads(); n != 0 {
		t.Errorf("reads issued before the span check: %d", n)
	}
	if _, err := f.engine.QuerySubjects(ctx, class, nil, "2025-03-01", "2025-03-02", nil); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("no subjects: err = %v, want ErrInvalidRequest", err)
	}

	subjects := []string{"Physics", "Chemistry", "Maths", "Biology", "History", "Civics"}
	for _, s := range subjects {
		f.mark(t, s, "S1", "2025-02-10")
		f.mark(t, s, "S1", "2025-03-10")
	}
	f.spy.delay = 2 * time.Millisecond
	if _, err := f.engine.QuerySubjects(ctx, class, subjects, "2025-01-01", "2025-06-30", nil); err != nil {
		t.Fatalf("QuerySubjects: %v", err)
	}
	if m := f.spy.maxInflight.Load(); m > 8 {
		t.Errorf("max in-flight reads = %d across subjects, exceeds concurrency limit 8", m)
	}
}

func TestQueryRangeRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.engine.QueryRange(ctx, class.WithSubject("Physics"), "2025-03-10", "2025-03-01", nil); !errors.Is(err, ErrInvalidRange) {
		t.Errorf("inverted range: err = %v, want ErrInvalidRange", err)
	}
	if _, err := f.engine.QueryRange(ctx, class.WithSubject("Physics"), "03/01/2025", "2025-03-01", nil); !errors.Is(err, ErrInvalidRange) {
		t.Errorf("bad date: err = %v, want ErrInvalidRange", err)
	}
	var missing *store.MissingScopeError
	if _, err := f.engine.QueryRange(ctx, class, "2025-03-01", "2025-03-02", nil); !errors.As(err, &missing) {
		t.Errorf("no subject: err = %v, want MissingScopeError", err)
	}
	if f.spy.reads() != 0 {
		t.Errorf("reads issued for invalid input: %d", f.spy.reads())
	}
}

func TestQueryRangeByMonthReadsExistingDaysOnly(t *testing.T) {
	f := newFixture(t)
	f.mark(t, "Physics", "S1", "2025-02-27")
	f.mark(t, "Physics", "S1", "2025-03-03")
	f.mark(t, "Physics", "S2", "2025-03-03")
	f.mark(t, "Physics", "S1", "2025-03-20") // outside the range

	got, err := f.engine.QueryRangeByMonth(context.Background(), class.WithSubject("Physics"), "2025-02-20", "2025-03-10", nil)
	if err != nil {
		t.Fatalf("QueryRangeByMonth: %v", err)
	}
	if len(got) != 3 || got[0].Date != "2025-02-27" {
		t.Errorf("got %+v", got)
	}
	if n := f.spy.collections.Load(); n != 2 {
		t.Errorf("month listings = %d, want 2", n)
	}
	if n := f.spy.lists.Load(); n != 2 {
		t.Errorf("segment reads = %d, want 2 (existing days only)", n)
	}
}

func TestQueryLeavesByMonth(t *testing.T) {
	f := newFixture(t)
	seed := store.NewPartitionedStore(f.mem, softfail.Discard{})
	scope := class.WithSubject("Physics")
	for _, l := range []model.LeaveRequest{
		{ID: "b", UserID: "u1", Type: model.LeaveTypeCasual, FromDate: "2025-03-12", ToDate: "2025-03-12", Reason: "fever"},
		{ID: "a", UserID: "u2", Type: model.LeaveTypeMedical, FromDate: "2025-03-04", ToDate: "2025-03-06", Reason: "surgery"},
		{ID: "c", UserID: "u3", Type: model.LeaveTypeCasual, FromDate: "2025-04-01", ToDate: "2025-04-01", Reason: "travel"},
	} {
		if err := seed.WriteLeave(context.Background(), scope, &l); err != nil {
			t.Fatalf("seed leave %s: %v", l.ID, err)
		}
	}

	got, err := f.engine.QueryLeavesByMonth(context.Background(), scope, 2025, time.March)
	if err != nil {
		t.Fatalf("QueryLeavesByMonth: %v", err)
	}
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "b" {
		t.Errorf("got %+v", got)
	}
}

func TestBatchExportRoutesRecordsToOwners(t *testing.T) {
	f := newFixture(t)
	f.mark(t, "Physics", "S1", "2025-03-15")

	req := BatchRequest{
		Year: class.Year, Sem: class.Sem, Div: class.Div,
		Subjects:  []string{"Physics", "Chemistry"},
		StartDate: "2025-03-01",
		EndDate:   "2025-03-31",
		Students:  []string{"S1", "S2"},
	}
	got, err := f.engine.BatchExport(context.Background(), req, nil)
	if err != nil {
		t.Fatalf("BatchExport: %v", err)
	}
	for _, s := range req.Students {
		for _, subj := range req.Subjects {
			recs, ok := got[s][subj]
			if !ok || recs == nil {
				t.Fatalf("result[%s][%s] missing", s, subj)
			}
			want := 0
			if s == "S1" && subj == "Physics" {
				want = 1
			}
			if len(recs) != want {
				t.Errorf("result[%s][%s] has %d records, want %d", s, subj, len(recs), want)
			}
		}
	}
	if r := got["S1"]["Physics"]; len(r) == 1 && r[0].Date != "2025-03-15" {
		t.Errorf("record = %+v", r[0])
	}
}

func TestBatchExportFilesEveryRecordUnderItsStudent(t *testing.T) {
	f := newFixture(t)
	for _, m := range []struct{ subj, roll, date string }{
		{"Physics", "S1", "2025-01-10"},
		{"Physics", "S2", "2025-01-10"},
		{"Physics", "S_9", "2025-02-03"},
		{"Chemistry", "S2", "2025-02-28"},
		{"Chemistry", "S3", "2025-02-28"}, // not requested
	} {
		f.mark(t, m.subj, m.roll, m.date)
	}

	req := BatchRequest{
		Year: class.Year, Sem: class.Sem, Div: class.Div,
		Subjects:  []string{"Physics", "Chemistry"},
		StartDate: "2025-01-01",
		EndDate:   "2025-02-28",
		Students:  []string{"S1", "S2", "S_9"},
	}
	got, err := f.engine.BatchExport(context.Background(), req, nil)
	if err != nil {
		t.Fatalf("BatchExport: %v", err)
	}
	if _, ok := got["S3"]; ok {
		t.Error("unrequested student S3 present in result")
	}
	total := 0
	for student, bySubject := range got {
		for subject, recs := range bySubject {
			for _, r := range recs {
				total++
				if model.StudentFromRecordID(r.ID) != student || r.RollNumber != student {
					t.Errorf("record %s filed under student %s", r.ID, student)
				}
				if r.Subject != subject {
					t.Errorf("record %s (%s) filed under subject %s", r.ID, r.Subject, subject)
				}
			}
		}
	}
	if total != 4 {
		t.Errorf("routed %d records, want 4", total)
	}
}

func TestBatchExportLimits(t *testing.T) {
	students := make([]string, 101)
	for i := range students {
		students[i] = "S" + string(rune('A'+i%26)) + string(rune('a'+i/26))
	}
	subjects := make([]string, 21)
	for i := range subjects {
		subjects[i] = "Subject" + string(rune('A'+i))
	}

	tests := []struct {
		name   string
		req    BatchRequest
		bound  string
		limit  int
		actual int
	}{
		{
			name:  "students",
			req:   BatchRequest{Subjects: []string{"Physics"}, StartDate: "2025-03-01", EndDate: "2025-03-31", Students: students},
			bound: "students", limit: 100, actual: 101,
		},
		{
			name:  "subjects",
			req:   BatchRequest{Subjects: subjects, StartDate: "2025-03-01", EndDate: "2025-03-31", Students: []string{"S1"}},
			bound: "subjects", limit: 20, actual: 21,
		},
		{
			name:  "days",
			req:   BatchRequest{Subjects: []string{"Physics"}, StartDate: "2024-01-01", EndDate: "2025-01-01", Students: []string{"S1"}},
			bound: "days", limit: 366, actual: 367,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.req.Year, tt.req.Sem, tt.req.Div = class.Year, class.Sem, class.Div

			_, err := f.engine.BatchExport(context.Background(), tt.req, nil)
			var le *LimitExceededError
			if !errors.As(err, &le) {
				t.Fatalf("err = %v, want LimitExceededError", err)
			}
			if le.Bound != tt.bound || le.Limit != tt.limit || le.Actual != tt.actual {
				t.Errorf("error = %+v", le)
			}
			if n := f.spy.reads(); n != 0 {
				t.Errorf("%d reads issued before the limit check", n)
			}
		})
	}
}

func TestBatchExportRejectsEmptySelection(t *testing.T) {
	f := newFixture(t)
	req := BatchRequest{Year: "2nd", Sem: "3", Div: "A", Subjects: []string{"Physics"}, StartDate: "2025-03-01", EndDate: "2025-03-02"}
	if _, err := f.engine.BatchExport(context.Background(), req, nil); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("err = %v, want ErrInvalidRequest", err)
	}
}

func TestBatchExportDegradesFailedBucket(t *testing.T) {
	f := newFixture(t)
	f.mark(t, "Physics", "S1", "2025-03-05")
	f.mark(t, "Chemistry", "S1", "2025-03-05")
	f.spy.failOn = "subjects/Chemistry"

	req := BatchRequest{
		Year: class.Year, Sem: class.Sem, Div: class.Div,
		Subjects:  []string{"Physics", "Chemistry"},
		StartDate: "2025-03-01",
		EndDate:   "2025-03-31",
		Students:  []string{"S1"},
	}
	got, err := f.engine.BatchExport(context.Background(), req, nil)
	if err != nil {
		t.Fatalf("BatchExport: %v", err)
	}
	if len(got["S1"]["Physics"]) != 1 {
		t.Errorf("Physics = %+v, want 1 record", got["S1"]["Physics"])
	}
	if chem := got["S1"]["Chemistry"]; chem == nil || len(chem) != 0 {
		t.Errorf("Chemistry = %+v, want empty", chem)
	}
	if n := f.sink.Count(softfail.BucketFailed); n != 1 {
		t.Errorf("bucket failures reported = %d, want 1", n)
	}
}

func TestBatchExportProgress(t *testing.T) {
	f := newFixture(t)
	f.spy.delay = 5 * time.Millisecond
	f.mark(t, "Physics", "S1", "2025-02-10")

	var (
		mu        sync.Mutex
		fractions []float64
	)
	finished := make(chan struct{})
	onProgress := func(p float64) {
		mu.Lock()
		defer mu.Unlock()
		fractions = append(fractions, p)
		if p == 1 {
			close(finished)
		}
	}

	req := BatchRequest{
		Year: class.Year, Sem: class.Sem, Div: class.Div,
		Subjects:  []string{"Physics", "Chemistry"},
		StartDate: "2025-01-15",
		EndDate:   "2025-03-15",
		Students:  []string{"S1"},
	}
	if _, err := f.engine.BatchExport(context.Background(), req, onProgress); err != nil {
		t.Fatalf("BatchExport: %v", err)
	}

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("progress never reached 1")
	}

	mu.Lock()
	defer mu.Unlock()
	prev := 0.0
	for _, p := range fractions {
		if p <= prev || p > 1 {
			t.Errorf("progress sequence %v is not increasing within (0,1]", fractions)
			break
		}
		prev = p
	}
}

func TestBatchExportBoundsInflightReads(t *testing.T) {
	f := newFixture(t)
	subjects := []string{"Physics", "Chemistry", "Maths", "Biology"}
	for _, s := range subjects {
		for m := 1; m <= 12; m++ {
			for _, d := range []int{3, 4, 5} {
				f.mark(t, s, "S1", time.Date(2025, time.Month(m), d, 0, 0, 0, 0, time.UTC).Format(time.DateOnly))
			}
		}
	}
	f.spy.delay = 2 * time.Millisecond

	req := BatchRequest{
		Year: class.Year, Sem: class.Sem, Div: class.Div,
		Subjects:  subjects,
		StartDate: "2025-01-01",
		EndDate:   "2025-12-31",
		Students:  []string{"S1"},
	}
	got, err := f.engine.BatchExport(context.Background(), req, nil)
	if err != nil {
		t.Fatalf("BatchExport: %v", err)
	}
	if n := len(got["S1"]["Maths"]); n != 36 {
		t.Errorf("Maths records = %d, want 36", n)
	}
	if m := f.spy.maxInflight.Load(); m > 8 {
		t.Errorf("max in-flight reads = %d, exceeds concurrency limit 8", m)
	}
}

func TestBatchExportDoesNotWaitForProgress(t *testing.T) {
	f := newFixture(t)
	f.mark(t, "Physics", "S1", "2025-03-03")

	block := make(chan struct{})
	t.Cleanup(func() { close(block) })
	onProgress := func(float64) { <-block }

	req := BatchRequest{
		Year: class.Year, Sem: class.Sem, Div: class.Div,
		Subjects:  []string{"Physics", "Chemistry"},
		StartDate: "2025-01-01",
		EndDate:   "2025-06-30",
		Students:  []string{"S1"},
	}
	type outcome struct {
		result BatchResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := f.engine.BatchExport(context.Background(), req, onProgress)
		done <- outcome{res, err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			t.Fatalf("BatchExport: %v", o.err)
		}
		if len(o.result["S1"]["Physics"]) != 1 {
			t.Errorf("Physics = %+v", o.result["S1"]["Physics"])
		}
	case <-time.After(2 * time.Second):
		t.Fatal("BatchExport stalled behind a blocked progress callback")
	}
}

func TestBatchExportCancelled(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req := BatchRequest{
		Year: class.Year, Sem: class.Sem, Div: class.Div,
		Subjects:  []string{"Physics"},
		StartDate: "2025-03-01",
		EndDate:   "2025-03-31",
		Students:  []string{"S1"},
	}
	if _, err := f.engine.BatchExport(ctx, req, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
