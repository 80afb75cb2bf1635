package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(Options{BaseURL: srv.URL + "/", Logger: zerolog.Nop()})
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNew_RequiresBaseURL(t *testing.T) {
	if _, err := New(Options{BaseURL: "  "}); err == nil {
		t.Error("expected error for empty base url")
	}
}

func TestLogin_ReturnsSession(t *testing.T) {
	exp := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/auth/login" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["email"] != "doc@example.com" || body["password"] != "secret123" {
			t.Errorf("unexpected body: %v", body)
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"token": "tok", "expiresAt": exp})
	}))

	s, err := c.Login(context.Background(), "doc@example.com", "secret123")
	if err != nil {
		t.Fatal(err)
	}
	if s.Token != "tok" || !s.ExpiresAt.Equal(exp) {
		t.Errorf("unexpected session: %+v", s)
	}
}

func TestGetPatient_SendsBearerToken(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("expected bearer token, got %q", got)
		}
		if r.URL.Path != "/api/patients/p1" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"id": "p1", "firstName": "Ava", "lastName": "Patel", "email": "ava@example.com",
			"encounters": []map[string]interface{}{
				{"id": "e1", "type": "OUTPATIENT", "predictions": []map[string]interface{}{
					{"id": "pr1", "topLabel": "flu", "probabilities": map[string]float64{"flu": 0.9}},
				}},
			},
		})
	}))

	p, err := c.GetPatient(context.Background(), &Session{Token: "tok"}, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if p.FirstName != "Ava" || len(p.Encounters) != 1 {
		t.Fatalf("unexpected patient: %+v", p)
	}
	if p.Encounters[0].Predictions[0].Probabilities["flu"] != 0.9 {
		t.Errorf("unexpected prediction: %+v", p.Encounters[0].Predictions[0])
	}
}

func TestErrorEnvelopeIsDecoded(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{
			"error":     map[string]string{"code": "not_found", "message": "patient not found"},
			"requestId": "req-1",
		})
	}))

	_, err := c.Reports(context.Background(), &Session{Token: "tok"}, "missing")
	if StatusOf(err) != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}
	e := err.(*Error)
	if e.Code != "not_found" || e.RequestID != "req-1" {
		t.Errorf("unexpected error: %+v", e)
	}
}

func TestLoadDashboard_ReturnsServerStats(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, Stats{PatientID: "p1", Name: "Ava Patel", RecentReports: 2, HealthScore: 70, AIDiagnoses: 1, LastCheckup: "2/9/2024"})
	}))

	view, err := c.LoadDashboard(context.Background(), &Session{Token: "tok"}, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if view.Demo || view.Stats.HealthScore != 70 || view.Stats.Name != "Ava Patel" {
		t.Errorf("unexpected view: %+v", view)
	}
}

func TestLoadDashboard_FallsBackToDemo(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"error": map[string]string{"code": "internal", "message": "internal server error"},
		})
	}))

	view, err := c.LoadDashboard(context.Background(), &Session{Token: "tok"}, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if !view.Demo {
		t.Fatal("expected demo data")
	}
	want := Stats{PatientID: "p1", Name: "Patient", RecentReports: 12, HealthScore: 85, AIDiagnoses: 8, LastCheckup: "3 days ago"}
	if view.Stats != want {
		t.Errorf("unexpected demo stats: %+v", view.Stats)
	}
}

func TestLoadDashboard_DiscardsResultAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cancel()
		writeJSON(w, http.StatusOK, Stats{PatientID: "p1", HealthScore: 70})
	}))

	view, err := c.LoadDashboard(ctx, &Session{Token: "tok"}, "p1")
	if err != context.Canceled {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if view != nil {
		t.Errorf("expected no view, got %+v", view)
	}
}
