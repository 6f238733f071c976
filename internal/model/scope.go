package model

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Scope is the organizational partition of a record: year, semester, division and subject.
type Scope struct {
	Year    string `bson:"year" json:"year" validate:"required,excludes=/"`
	Sem     string `bson:"sem" json:"sem" validate:"required,excludes=/"`
	Div     string `bson:"div" json:"div" validate:"required,excludes=/"`
	Subject string `bson:"subject" json:"subject" validate:"required,excludes=/"`
}

// WithSubject returns a copy of s scoped to subject.
func (s Scope) WithSubject(subject string) Scope {
	s.Subject = subject
	return s
}

// Check returns the names of missing fields, or an error when a present field cannot be used
// as a path segment.
func (s Scope) Check() ([]string, error) {
	err := validate.Struct(s)
	if err == nil {
		return nil, nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil, err
	}
	var missing []string
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			missing = append(missing, fieldName(fe.Field()))
		default:
			return nil, fmt.Errorf("%w: scope field %s may not contain '/'", ErrInvalidRecord, fieldName(fe.Field()))
		}
	}
	return missing, nil
}

func fieldName(structField string) string {
	switch structField {
	case "Year":
		return "year"
	case "Sem":
		return "sem"
	case "Div":
		return "div"
	case "Subject":
		return "subject"
	}
	return structField
}
