// Package export renders batch attendance results as CSV.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"campus-attendance/internal/model"
	"campus-attendance/internal/query"
)

var subjectHeader = []string{"Roll Number", "Student Name", "Subject", "Present", "Absent", "Late", "Leave", "Half Day", "Total", "Percentage"}

// WriteSubjectCSV writes one row per (student, subject) in the given order. Repeated keys are
// written once.
func WriteSubjectCSV(w io.Writer, result query.BatchResult, students, subjects []string) error {
	students, subjects = distinct(students), distinct(subjects)
	cw := csv.NewWriter(w)
	if err := cw.Write(subjectHeader); err != nil {
		return err
	}
	for _, student := range students {
		name := studentName(result[student])
		for _, subject := range subjects {
			s := model.Summarize(result[student][subject])
			row := []string{
				student,
				name,
				subject,
				strconv.Itoa(s.Present),
				strconv.Itoa(s.Absent),
				strconv.Itoa(s.Late),
				strconv.Itoa(s.Leave),
				strconv.Itoa(s.HalfDay),
				strconv.Itoa(s.Total),
				percent(s.Percentage),
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteStudentCSV writes one row per student with a percentage column per subject and an
// overall column.
func WriteStudentCSV(w io.Writer, result query.BatchResult, students, subjects []string) error {
	students, subjects = distinct(students), distinct(subjects)
	cw := csv.NewWriter(w)
	header := append([]string{"Roll Number", "Student Name"}, subjects...)
	header = append(header, "Attended", "Total", "Overall")
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, student := range students {
		bySubject := result[student]
		row := []string{student, studentName(bySubject)}
		var all []model.AttendanceRecord
		for _, subject := range subjects {
			recs := bySubject[subject]
			all = append(all, recs...)
			row = append(row, percent(model.Summarize(recs).Percentage))
		}
		overall := model.Summarize(all)
		attended := ""
		if overall.Total > 0 {
			attended = formatAttended(overall)
		}
		row = append(row, attended, strconv.Itoa(overall.Total), percent(overall.Percentage))
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func distinct(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

func percent(p *int) string {
	if p == nil {
		return ""
	}
	return fmt.Sprintf("%d%%", *p)
}

// formatAttended prints attended sessions, where a half day counts as 0.5.
func formatAttended(s model.Summary) string {
	halves := 2*(s.Present+s.Late) + s.HalfDay
	if halves%2 == 0 {
		return strconv.Itoa(halves / 2)
	}
	return strconv.FormatFloat(float64(halves)/2, 'f', 1, 64)
}

func studentName(bySubject map[string][]model.AttendanceRecord) string {
	for _, recs := range bySubject {
		for _, r := range recs {
			if r.StudentName != "" {
				return r.StudentName
			}
		}
	}
	return ""
}
