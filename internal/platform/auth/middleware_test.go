package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/medrec/medrec/internal/platform/apierr"
)

type failingRevocations struct{}

func (failingRevocations) Revoke(context.Context, string, time.Time) error { return nil }
func (failingRevocations) IsRevoked(context.Context, string) (bool, error) {
	return false, errors.New("redis down")
}

func newAuthContext(header string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/patients", nil)
	if header != "" {
		req.Header.Set(echo.HeaderAuthorization, header)
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func okHandler(c echo.Context) error { return c.String(http.StatusOK, "ok") }

func TestJWTMiddleware_MissingHeader(t *testing.T) {
	c, _ := newAuthContext("")
	err := JWTMiddleware(JWTConfig{Issuer: NewIssuer(testSigningKey, time.Hour)})(okHandler)(c)
	if apierr.StatusOf(err) != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
}

func TestJWTMiddleware_InvalidFormat(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"no bearer prefix", "Token abc123"},
		{"missing token", "Bearer"},
		{"empty value", "Bearer "},
		{"basic auth", "Basic dXNlcjpwYXNz"},
		{"garbage token", "Bearer not.a.jwt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newAuthContext(tt.header)
			err := JWTMiddleware(JWTConfig{Issuer: NewIssuer(testSigningKey, time.Hour)})(okHandler)(c)
			if apierr.StatusOf(err) != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %v", err)
			}
		})
	}
}

func TestJWTMiddleware_ValidTokenSetsIdentity(t *testing.T) {
	iss := NewIssuer(testSigningKey, time.Hour)
	tok, claims, _ := iss.Issue("acc-7", "dr.lee@example.com", []string{RoleClinician})
	c, _ := newAuthContext("Bearer " + tok)

	var gotID, gotEmail string
	var gotRoles []string
	var gotToken TokenInfo
	h := JWTMiddleware(JWTConfig{Issuer: iss, Revocations: NewMemoryRevocationStore()})(func(c echo.Context) error {
		ctx := c.Request().Context()
		gotID = UserIDFromContext(ctx)
		gotEmail = EmailFromContext(ctx)
		gotRoles = RolesFromContext(ctx)
		gotToken, _ = TokenFromContext(ctx)
		return nil
	})
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotID != "acc-7" || gotEmail != "dr.lee@example.com" {
		t.Errorf("unexpected identity %s %s", gotID, gotEmail)
	}
	if len(gotRoles) != 1 || gotRoles[0] != RoleClinician {
		t.Errorf("unexpected roles %v", gotRoles)
	}
	if gotToken.ID != claims.ID {
		t.Errorf("expected token id %s, got %s", claims.ID, gotToken.ID)
	}
}

func TestJWTMiddleware_RevokedToken(t *testing.T) {
	iss := NewIssuer(testSigningKey, time.Hour)
	tok, claims, _ := iss.Issue("acc-7", "dr.lee@example.com", nil)
	store := NewMemoryRevocationStore()
	defer store.Close()
	_ = store.Revoke(context.Background(), claims.ID, claims.ExpiresAt.Time)

	c, _ := newAuthContext("Bearer " + tok)
	err := JWTMiddleware(JWTConfig{Issuer: iss, Revocations: store})(okHandler)(c)
	if apierr.StatusOf(err) != http.StatusUnauthorized {
		t.Fatalf("expected 401 for revoked token, got %v", err)
	}
}

func TestJWTMiddleware_RevocationLookupFailure(t *testing.T) {
	iss := NewIssuer(testSigningKey, time.Hour)
	tok, _, _ := iss.Issue("acc-7", "dr.lee@example.com", nil)
	c, _ := newAuthContext("Bearer " + tok)

	err := JWTMiddleware(JWTConfig{Issuer: iss, Revocations: failingRevocations{}, Logger: zerolog.Nop()})(okHandler)(c)
	if apierr.StatusOf(err) != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when revocations are unreachable, got %v", err)
	}
}

func TestJWTMiddleware_Skipper(t *testing.T) {
	c, _ := newAuthContext("")
	c.SetPath("/api/auth/login")
	mw := JWTMiddleware(JWTConfig{Issuer: NewIssuer(testSigningKey, time.Hour), Skipper: AuthSkipper})
	if err := mw(okHandler)(c); err != nil {
		t.Fatalf("expected public path to skip auth, got %v", err)
	}
}

func TestAuthSkipper(t *testing.T) {
	for path, want := range map[string]bool{
		"/health":           true,
		"/health/db":        true,
		"/api/auth/signup":  true,
		"/api/auth/login":   true,
		"/api/auth/logout":  false,
		"/api/patients":     false,
		"/api/patients/:id": false,
	} {
		if got := IsPublicPath(path); got != want {
			t.Errorf("IsPublicPath(%q) = %v, want %v", path, got, want)
		}
	}
}
