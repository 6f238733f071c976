package model

import (
	"math"
	"strings"
	"time"
)

type AttendanceStatus string

const (
	AttendanceStatusPresent AttendanceStatus = "present"
	AttendanceStatusAbsent  AttendanceStatus = "absent"
	AttendanceStatusLate    AttendanceStatus = "late"
	AttendanceStatusLeave   AttendanceStatus = "leave"
	AttendanceStatusHalfDay AttendanceStatus = "half-day"
)

// AttendanceRecord is one student's mark for one subject on one day.
type AttendanceRecord struct {
	ID          string           `bson:"id" json:"id"` // {rollNumber}_{date}
	UserID      string           `bson:"userId,omitempty" json:"userId,omitempty"`
	RollNumber  string           `bson:"rollNumber" json:"rollNumber" validate:"required,excludes=/"`
	StudentName string           `bson:"studentName,omitempty" json:"studentName,omitempty"`
	Date        string           `bson:"date" json:"date" validate:"required,datetime=2006-01-02"`
	Status      AttendanceStatus `bson:"status" json:"status" validate:"required,oneof=present absent late leave half-day"`
	Subject     string           `bson:"subject" json:"subject"`
	Year        string           `bson:"year" json:"year"`
	Sem         string           `bson:"sem" json:"sem"`
	Div         string           `bson:"div" json:"div"`
	Notes       string           `bson:"notes,omitempty" json:"notes,omitempty"`
	MarkedBy    string           `bson:"markedBy,omitempty" json:"markedBy,omitempty"`
	CreatedAt   time.Time        `bson:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time        `bson:"updatedAt" json:"updatedAt"`
}

// Validate checks the fields a caller must supply before the record is written.
func (r *AttendanceRecord) Validate() error {
	return validateStruct("attendance record", r)
}

// ApplyScope copies the organizational dimensions onto the record.
func (r *AttendanceRecord) ApplyScope(s Scope) {
	r.Year, r.Sem, r.Div, r.Subject = s.Year, s.Sem, s.Div, s.Subject
}

// RecordID is the deterministic document id of a student's mark on a date.
func RecordID(rollNumber, date string) string {
	return rollNumber + "_" + date
}

// StudentFromRecordID returns the roll number encoded in a record id: the text before the
// final underscore. Ids without an underscore are returned unchanged.
func StudentFromRecordID(id string) string {
	i := strings.LastIndex(id, "_")
	if i < 0 {
		return id
	}
	return id[:i]
}

// Summary counts a set of attendance records by status.
type Summary struct {
	Present    int  `json:"present"`
	Absent     int  `json:"absent"`
	Late       int  `json:"late"`
	Leave      int  `json:"leave"`
	HalfDay    int  `json:"halfDay"`
	Total      int  `json:"total"`
	Percentage *int `json:"percentage,omitempty"`
}

// Summarize counts records; late counts as attended and half-day as half attended.
func Summarize(records []AttendanceRecord) Summary {
	var s Summary
	for _, r := range records {
		switch r.Status {
		case AttendanceStatusPresent:
			s.Present++
		case AttendanceStatusAbsent:
			s.Absent++
		case AttendanceStatusLate:
			s.Late++
		case AttendanceStatusLeave:
			s.Leave++
		case AttendanceStatusHalfDay:
			s.HalfDay++
		default:
			continue
		}
		s.Total++
	}
	if s.Total > 0 {
		attended := float64(s.Present+s.Late) + float64(s.HalfDay)/2
		pct := int(math.Round(attended * 100 / float64(s.Total)))
		s.Percentage = &pct
	}
	return s
}
