package encounter

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/medrec/medrec/internal/platform/apierr"
	"github.com/medrec/medrec/internal/platform/auth"
	"github.com/medrec/medrec/internal/platform/middleware"
	"github.com/medrec/medrec/internal/platform/validate"
)

func newTestHandler() (*Handler, *testEnv, *echo.Echo) {
	env := newTestEnv()
	h := NewHandler(env.svc)
	e := echo.New()
	e.Validator = validate.New()
	return h, env, e
}

// newRouter serves the registered routes as the given role.
func newRouter(h *Handler, role string) *echo.Echo {
	e := echo.New()
	e.Validator = validate.New()
	e.HTTPErrorHandler = middleware.ErrorHandler(zerolog.Nop())
	api := e.Group("/api", func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := auth.WithIdentity(c.Request().Context(), uuid.NewString(), role)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	})
	h.RegisterRoutes(api)
	return e
}

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func TestHandler_CreateEncounter(t *testing.T) {
	h, env, e := newTestHandler()

	body := `{"patientId":"` + env.patient.String() + `","type":"ER","notes":"chest pain","data":{"vitals":{"pulse":110}}}`
	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, "/api/encounters", body), rec)

	if err := h.CreateEncounter(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}

	var enc Encounter
	json.Unmarshal(rec.Body.Bytes(), &enc)
	if enc.Type != TypeER {
		t.Errorf("expected ER, got %s", enc.Type)
	}
	if !strings.Contains(string(enc.Data), `"pulse":110`) {
		t.Errorf("expected data to round-trip, got %s", enc.Data)
	}
}

func TestHandler_CreatePatientEncounter_UsesPathPatient(t *testing.T) {
	h, env, e := newTestHandler()

	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, "/", `{"patientId":"`+uuid.NewString()+`"}`), rec)
	c.SetParamNames("id")
	c.SetParamValues(env.patient.String())

	if err := h.CreatePatientEncounter(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var enc Encounter
	json.Unmarshal(rec.Body.Bytes(), &enc)
	if enc.PatientID != env.patient {
		t.Errorf("expected path patient id, got %s", enc.PatientID)
	}
	if enc.Type != TypeOutpatient {
		t.Errorf("expected default type, got %s", enc.Type)
	}
}

func TestHandler_CreateEncounter_Validation(t *testing.T) {
	h, env, e := newTestHandler()

	for name, body := range map[string]string{
		"missing patient": `{"type":"ER"}`,
		"bad type":        `{"patientId":"` + env.patient.String() + `","type":"HOME"}`,
		"bad startedAt":   `{"patientId":"` + env.patient.String() + `","startedAt":"yesterday"}`,
	} {
		t.Run(name, func(t *testing.T) {
			c := e.NewContext(jsonRequest(http.MethodPost, "/", body), httptest.NewRecorder())
			err := h.CreateEncounter(c)
			if apierr.StatusOf(err) != http.StatusBadRequest {
				t.Errorf("expected 400, got %v", err)
			}
		})
	}
}

func TestHandler_GetEncounter(t *testing.T) {
	h, env, e := newTestHandler()
	enc := env.encounter(t)

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	c.SetParamNames("id")
	c.SetParamValues(enc.ID.String())

	if err := h.GetEncounter(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	var d map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &d)
	for _, key := range []string{"diagnoses", "predictions", "attachments"} {
		if _, ok := d[key].([]interface{}); !ok {
			t.Errorf("expected %s to be an array, got %v", key, d[key])
		}
	}
}

func TestHandler_GetEncounter_InvalidID(t *testing.T) {
	h, _, e := newTestHandler()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("not-a-uuid")

	if apierr.StatusOf(h.GetEncounter(c)) != http.StatusBadRequest {
		t.Error("expected 400 for invalid id")
	}
}

func TestHandler_CreatePrediction(t *testing.T) {
	h, env, e := newTestHandler()
	enc := env.encounter(t)

	body := `{"encounterId":"` + enc.ID.String() + `","model":{"name":"cxr-net","version":"1.0"},"probabilities":{"normal":0.3,"pneumonia":0.7}}`
	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, "/api/predictions", body), rec)

	if err := h.CreatePrediction(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	var p Prediction
	json.Unmarshal(rec.Body.Bytes(), &p)
	if p.TopLabel != "pneumonia" {
		t.Errorf("expected pneumonia, got %s", p.TopLabel)
	}
}

func TestHandler_CreatePrediction_OutOfRange(t *testing.T) {
	h, env, e := newTestHandler()
	enc := env.encounter(t)

	body := `{"encounterId":"` + enc.ID.String() + `","model":{"name":"m","version":"1"},"probabilities":{"a":1.5}}`
	c := e.NewContext(jsonRequest(http.MethodPost, "/", body), httptest.NewRecorder())

	err := h.CreatePrediction(c)
	if apierr.StatusOf(err) != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
	if len(env.repo.predictions) != 0 {
		t.Error("expected nothing persisted")
	}
}

func TestHandler_UploadAndDownload(t *testing.T) {
	h, env, e := newTestHandler()
	enc := env.encounter(t)
	content := []byte("lab results: all normal")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, _ := mw.CreateFormFile("file", "labs.txt")
	part.Write(content)
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/", &buf)
	req.Header.Set(echo.HeaderContentType, mw.FormDataContentType())
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(enc.ID.String())

	if err := h.UploadAttachment(c); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var a Attachment
	json.Unmarshal(rec.Body.Bytes(), &a)
	if a.MimeType != "text/plain" || a.Kind != KindReport {
		t.Errorf("unexpected attachment: %+v", a)
	}

	rec = httptest.NewRecorder()
	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	c.SetParamNames("id")
	c.SetParamValues(a.ID.String())
	if err := h.DownloadAttachment(c); err != nil {
		t.Fatalf("download: %v", err)
	}
	if !bytes.Equal(rec.Body.Bytes(), content) {
		t.Errorf("expected identical bytes, got %q", rec.Body.String())
	}
	if got := rec.Header().Get("X-Content-SHA256"); got != a.SHA256 {
		t.Errorf("expected sha256 header %s, got %s", a.SHA256, got)
	}
}

func TestHandler_Upload_MissingFile(t *testing.T) {
	h, env, e := newTestHandler()
	enc := env.encounter(t)

	c := e.NewContext(jsonRequest(http.MethodPost, "/", `{}`), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(enc.ID.String())
	if apierr.StatusOf(h.UploadAttachment(c)) != http.StatusBadRequest {
		t.Error("expected 400 when no file part is sent")
	}
}

func TestRoutes_WritesRequireClinician(t *testing.T) {
	h, env, _ := newTestHandler()
	body := `{"patientId":"` + env.patient.String() + `"}`

	tests := []struct {
		role string
		want int
	}{
		{auth.RolePatient, http.StatusForbidden},
		{auth.RoleClinician, http.StatusCreated},
		{auth.RoleAdmin, http.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.role, func(t *testing.T) {
			rec := httptest.NewRecorder()
			newRouter(h, tt.role).ServeHTTP(rec, jsonRequest(http.MethodPost, "/api/encounters", body))
			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestRoutes_ReadsAllowPatients(t *testing.T) {
	h, env, _ := newTestHandler()
	enc := env.encounter(t)

	rec := httptest.NewRecorder()
	newRouter(h, auth.RolePatient).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/encounters/"+enc.ID.String(), nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestUploadContentType(t *testing.T) {
	if got := uploadContentType("scan.png", ""); got != "image/png" {
		t.Errorf("expected extension fallback, got %s", got)
	}
	if got := uploadContentType("scan.bin", "image/jpeg"); got != "image/jpeg" {
		t.Errorf("expected declared type, got %s", got)
	}
}
