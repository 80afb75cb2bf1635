package validate

import (
	"testing"

	"github.com/medrec/medrec/internal/platform/apierr"
)

type modelRef struct {
	Name    string `json:"name" validate:"required"`
	Version string `json:"version" validate:"required"`
}

type sample struct {
	Email string   `json:"email" validate:"required,email"`
	Born  string   `json:"dateOfBirth" validate:"omitempty,date_or_datetime"`
	Model modelRef `json:"model"`
}

func TestValidate_OK(t *testing.T) {
	v := New()
	err := v.Validate(&sample{
		Email: "ava.patel@example.com",
		Born:  "1989-02-10",
		Model: modelRef{Name: "cxr", Version: "1.0"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_ReportsJSONFieldNames(t *testing.T) {
	v := New()
	err := v.Validate(&sample{Email: "nope", Born: "10/02/1989"})
	ae, ok := apierr.As(err)
	if !ok {
		t.Fatalf("expected apierr, got %T", err)
	}
	if ae.Code != apierr.CodeValidation {
		t.Errorf("expected validation code, got %s", ae.Code)
	}

	fields := map[string]string{}
	for _, d := range ae.Details {
		fields[d.Field] = d.Rule
	}
	want := map[string]string{
		"email":         "email",
		"dateOfBirth":   "date_or_datetime",
		"model.name":    "required",
		"model.version": "required",
	}
	for f, rule := range want {
		if fields[f] != rule {
			t.Errorf("field %s: expected rule %q, got %q (all: %v)", f, rule, fields[f], fields)
		}
	}
}

func TestValidate_DateRuleIsRegistered(t *testing.T) {
	type dated struct {
		On string `json:"on" validate:"date_or_datetime"`
	}
	v := New()
	if err := v.Validate(&dated{On: "2024-02-09"}); err != nil {
		t.Errorf("expected valid date, got %v", err)
	}
	ae, ok := apierr.As(v.Validate(&dated{On: "yesterday"}))
	if !ok || len(ae.Details) != 1 || ae.Details[0].Rule != "date_or_datetime" {
		t.Errorf("expected a date_or_datetime failure, got %v", ae)
	}
}

func TestParseDate(t *testing.T) {
	cases := map[string]bool{
		"1989-02-10":                true,
		"1989-02-10T00:00:00Z":      true,
		"2024-02-09T13:45:00+05:30": true,
		"2024-02-09T13:45:00.123Z":  true,
		"":                          false,
		"Feb 10 1989":               false,
	}
	for in, ok := range cases {
		if _, got := ParseDate(in); got != ok {
			t.Errorf("ParseDate(%q) ok=%v, want %v", in, got, ok)
		}
	}
}
