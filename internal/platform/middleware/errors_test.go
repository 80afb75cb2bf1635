package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/medrec/medrec/internal/platform/apierr"
)

func renderError(t *testing.T, method string, err error) (*httptest.ResponseRecorder, ErrorBody) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(method, "/api/patients/abc", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set(requestIDKey, "req-1")

	ErrorHandler(zerolog.Nop())(err, c)

	var body ErrorBody
	if rec.Body.Len() > 0 {
		if jerr := json.Unmarshal(rec.Body.Bytes(), &body); jerr != nil {
			t.Fatalf("invalid error body %q: %v", rec.Body.String(), jerr)
		}
	}
	return rec, body
}

func TestErrorHandler_APIError(t *testing.T) {
	rec, body := renderError(t, http.MethodGet, apierr.NotFound("patient"))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if body.Error.Code != apierr.CodeNotFound || body.Error.Message != "patient not found" {
		t.Errorf("unexpected payload: %+v", body.Error)
	}
	if body.RequestID != "req-1" {
		t.Errorf("expected request id req-1, got %q", body.RequestID)
	}
}

func TestErrorHandler_ValidationDetails(t *testing.T) {
	err := apierr.Validation([]apierr.Detail{{Field: "email", Rule: "required"}})
	rec, body := renderError(t, http.MethodGet, err)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if len(body.Error.Details) != 1 || body.Error.Details[0].Field != "email" {
		t.Errorf("expected email detail, got %+v", body.Error.Details)
	}
}

func TestErrorHandler_EchoHTTPError(t *testing.T) {
	rec, body := renderError(t, http.MethodGet, echo.NewHTTPError(http.StatusMethodNotAllowed, "method not allowed"))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
	if body.Error.Code != "method_not_allowed" {
		t.Errorf("unexpected code %q", body.Error.Code)
	}
}

func TestErrorHandler_EchoErrorWrappingAPIError(t *testing.T) {
	he := echo.NewHTTPError(http.StatusBadRequest, "bind failed").SetInternal(tooLarge(1024))
	rec, body := renderError(t, http.MethodPost, he)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rec.Code)
	}
	if body.Error.Code != apierr.CodePayloadTooLarge {
		t.Errorf("unexpected code %q", body.Error.Code)
	}
}

func TestErrorHandler_PlainErrorIsHidden(t *testing.T) {
	rec, body := renderError(t, http.MethodGet, errors.New("dial tcp: connection refused"))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if body.Error.Message != "internal server error" {
		t.Errorf("cause leaked to client: %q", body.Error.Message)
	}
}

func TestErrorHandler_HeadHasNoBody(t *testing.T) {
	rec, _ := renderError(t, http.MethodHead, apierr.NotFound("patient"))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("expected empty body for HEAD, got %q", rec.Body.String())
	}
}
