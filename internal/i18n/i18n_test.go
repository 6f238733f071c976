package i18n

import (
	"context"
	"strings"
	"testing"
)

func TestTranslate(t *testing.T) {
	n, err := Init("en")
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if n != 2 {
		t.Errorf("loaded %d locale files, want 2", n)
	}

	data := map[string]any{"LeaveType": "CL", "FromDate": "2025-03-04", "ToDate": "2025-03-05", "Level": "HOD", "PrevLevel": "Teacher"}

	en := T(context.Background(), "leave_forwarded_message", data)
	if !strings.Contains(en, "forwarded to HOD") {
		t.Errorf("en = %q", en)
	}

	hi := T(WithLocale(context.Background(), "hi"), "leave_approved_title")
	if hi != "अवकाश अनुरोध स्वीकृत" {
		t.Errorf("hi = %q", hi)
	}

	if got := T(context.Background(), "no_such_message"); got != "no_such_message" {
		t.Errorf("unknown id = %q, want the id back", got)
	}
}

func TestMatchLocale(t *testing.T) {
	if _, err := Init("en"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	tests := map[string]string{
		"":                        "en",
		"hi-IN,hi;q=0.9,en;q=0.8": "hi",
		"en-GB":                   "en",
		"fr-FR":                   "en",
	}
	for header, want := range tests {
		if got := MatchLocale(header); got != want {
			t.Errorf("MatchLocale(%q) = %q, want %q", header, got, want)
		}
	}
}
