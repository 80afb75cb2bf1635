package report

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medrec/medrec/internal/domain/encounter"
	"github.com/medrec/medrec/internal/domain/patient"
	"github.com/medrec/medrec/internal/platform/apierr"
)

type stubPatients []*patient.Patient

func (s stubPatients) GetPatient(_ context.Context, id uuid.UUID) (*patient.Patient, error) {
	for _, p := range s {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, apierr.NotFound("patient")
}

func (s stubPatients) ListPatients(_ context.Context, limit, offset int) ([]*patient.Patient, int, error) {
	if offset >= len(s) {
		return []*patient.Patient{}, len(s), nil
	}
	end := offset + limit
	if end > len(s) {
		end = len(s)
	}
	return s[offset:end], len(s), nil
}

type stubDetails map[uuid.UUID][]encounter.Detail

func (s stubDetails) ListDetails(_ context.Context, id uuid.UUID) ([]encounter.Detail, error) {
	return append([]encounter.Detail{}, s[id]...), nil
}

func newTestHandler() (*Handler, *patient.Patient, *echo.Echo) {
	dob := time.Date(1989, 2, 10, 0, 0, 0, 0, time.UTC)
	p := &patient.Patient{ID: uuid.New(), FirstName: "Ava", LastName: "Patel", Email: "ava.patel@example.com", DateOfBirth: &dob}
	other := &patient.Patient{ID: uuid.New(), FirstName: "Ravi", LastName: "Kumar", Email: "ravi@example.com"}

	d := detail(time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC))
	d.Diagnoses = []encounter.Diagnosis{{Label: "Bronchitis", Confirmed: true}}
	d.Predictions = []encounter.Prediction{{Probabilities: encounter.Probabilities{"bronchitis": 0.64}}}

	h := NewHandler(stubPatients{p, other}, stubDetails{p.ID: {d}})
	h.now = func() time.Time { return time.Date(2024, 2, 10, 12, 0, 0, 0, time.UTC) }
	return h, p, echo.New()
}

func TestHandler_Reports(t *testing.T) {
	h, p, e := newTestHandler()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	c.SetParamNames("id")
	c.SetParamValues(p.ID.String())

	if err := h.Reports(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var reports []Report
	json.Unmarshal(rec.Body.Bytes(), &reports)
	if len(reports) != 1 {
		t.Fatalf("expected 1 report, got %d", len(reports))
	}
	if reports[0].Title != "Bronchitis" || reports[0].Status != "Completed" || reports[0].Confidence != 64 {
		t.Errorf("unexpected report: %+v", reports[0])
	}
}

func TestHandler_Reports_UnknownPatient(t *testing.T) {
	h, _, e := newTestHandler()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(uuid.NewString())

	if apierr.StatusOf(h.Reports(c)) != http.StatusNotFound {
		t.Error("expected 404 for an unknown patient")
	}
}

func TestHandler_Dashboard(t *testing.T) {
	h, p, e := newTestHandler()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	c.SetParamNames("id")
	c.SetParamValues(p.ID.String())

	if err := h.Dashboard(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var s Stats
	json.Unmarshal(rec.Body.Bytes(), &s)
	if s.RecentReports != 1 || s.HealthScore != 65 || s.AIDiagnoses != 1 || s.LastCheckup != "1/15/2024" {
		t.Errorf("unexpected stats: %+v", s)
	}
	if s.Age == nil || *s.Age != 35 {
		t.Errorf("expected age 35, got %v", s.Age)
	}
}

func TestHandler_Roster(t *testing.T) {
	h, _, e := newTestHandler()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/patients/roster?q=KUMAR", nil), rec)

	if err := h.Roster(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var rows []Row
	json.Unmarshal(rec.Body.Bytes(), &rows)
	if len(rows) != 1 || rows[0].Name != "Ravi Kumar" {
		t.Errorf("unexpected rows: %+v", rows)
	}
	if rec.Header().Get("X-Total-Count") != "2" {
		t.Errorf("expected total count header of 2, got %q", rec.Header().Get("X-Total-Count"))
	}
}
