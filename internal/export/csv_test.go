package export

import (
	"bytes"
	"strings"
	"testing"

	"campus-attendance/internal/model"
	"campus-attendance/internal/query"
)

func marks(name string, statuses ...model.AttendanceStatus) []model.AttendanceRecord {
	recs := make([]model.AttendanceRecord, len(statuses))
	for i, s := range statuses {
		recs[i] = model.AttendanceRecord{StudentName: name, Status: s}
	}
	return recs
}

func sampleResult() query.BatchResult {
	return query.BatchResult{
		"S1": {
			"Physics":   marks("Asha", model.AttendanceStatusPresent, model.AttendanceStatusAbsent, model.AttendanceStatusLate),
			"Chemistry": marks("Asha", model.AttendanceStatusHalfDay),
		},
		"S2": {
			"Physics":   {},
			"Chemistry": {},
		},
	}
}

func TestWriteSubjectCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSubjectCSV(&buf, sampleResult(), []string{"S1", "S2"}, []string{"Physics", "Chemistry"}); err != nil {
		t.Fatalf("WriteSubjectCSV: %v", err)
	}
	want := strings.Join([]string{
		"Roll Number,Student Name,Subject,Present,Absent,Late,Leave,Half Day,Total,Percentage",
		"S1,Asha,Physics,1,1,1,0,0,3,67%",
		"S1,Asha,Chemistry,0,0,0,0,1,1,50%",
		"S2,,Physics,0,0,0,0,0,0,",
		"S2,,Chemistry,0,0,0,0,0,0,",
	}, "\n") + "\n"
	if got := buf.String(); got != want {
		t.Errorf("csv =\n%s\nwant\n%s", got, want)
	}
}

func TestWriteStudentCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteStudentCSV(&buf, sampleResult(), []string{"S1", "S2"}, []string{"Physics", "Chemistry"}); err != nil {
		t.Fatalf("WriteStudentCSV: %v", err)
	}
	want := strings.Join([]string{
		"Roll Number,Student Name,Physics,Chemistry,Attended,Total,Overall",
		"S1,Asha,67%,50%,2.5,4,63%",
		"S2,,,,,0,",
	}, "\n") + "\n"
	if got := buf.String(); got != want {
		t.Errorf("csv =\n%s\nwant\n%s", got, want)
	}
}

func TestWritersSkipRepeatedKeys(t *testing.T) {
	students, subjects := []string{"S1", "S2"}, []string{"Physics", "Chemistry"}
	repeatedStudents := []string{"S1", "S2", "S1"}
	repeatedSubjects := []string{"Physics", "Chemistry", "Physics"}

	writers := map[string]func(*bytes.Buffer, []string, []string) error{
		"subject": func(b *bytes.Buffer, st, su []string) error { return WriteSubjectCSV(b, sampleResult(), st, su) },
		"student": func(b *bytes.Buffer, st, su []string) error { return WriteStudentCSV(b, sampleResult(), st, su) },
	}
	for name, write := range writers {
		t.Run(name, func(t *testing.T) {
			var want, got bytes.Buffer
			if err := write(&want, students, subjects); err != nil {
				t.Fatal(err)
			}
			if err := write(&got, repeatedStudents, repeatedSubjects); err != nil {
				t.Fatal(err)
			}
			if got.String() != want.String() {
				t.Errorf("csv with repeated keys =\n%s\nwant\n%s", got.String(), want.String())
			}
		})
	}
}
