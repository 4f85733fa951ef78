package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"

	"github.com/noah-isme/jersey-studio/internal/common"
)

func echoUser() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := common.UserID(r.Context())
		if !ok {
			id = "anonymous"
		}
		_, _ = w.Write([]byte(id))
	})
}

func TestAuthenticateAttachesUser(t *testing.T) {
	now := time.Now()
	mw := Middleware{Verifier: newTestVerifier(t, now)}
	token := signToken(t, jwa.HS256, []byte(testSecret), "user-7", now, time.Minute)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	mw.Authenticate(echoUser()).ServeHTTP(rec, req)

	if rec.Body.String() != "user-7" {
		t.Fatalf("expected user-7, got %q", rec.Body.String())
	}
}

func TestAuthenticateLetsAnonymousThrough(t *testing.T) {
	mw := Middleware{Verifier: newTestVerifier(t, time.Now())}
	rec := httptest.NewRecorder()
	mw.Authenticate(echoUser()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/catalog", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "anonymous" {
		t.Fatalf("expected anonymous 200, got %d %q", rec.Code, rec.Body.String())
	}
}

func TestAuthenticateRejectsPresentedInvalidToken(t *testing.T) {
	now := time.Now()
	mw := Middleware{Verifier: newTestVerifier(t, now)}
	expired := signToken(t, jwa.HS256, []byte(testSecret), "user-7", now.Add(-time.Hour), time.Minute)

	for _, header := range []string{"Bearer broken", "Bearer " + expired} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/carts/c-1", nil)
		req.Header.Set("Authorization", header)
		rec := httptest.NewRecorder()
		mw.Authenticate(echoUser()).ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("header %q: expected 401, got %d", header, rec.Code)
		}
		if got := rec.Header().Get("WWW-Authenticate"); got != `Bearer error="invalid_token"` {
			t.Fatalf("unexpected challenge %q", got)
		}
	}
}

func TestRequireAuthReusesAuthenticatedSubject(t *testing.T) {
	mw := Middleware{Verifier: failingVerifier{}}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", nil)
	req = req.WithContext(common.WithUserID(req.Context(), "user-3"))
	rec := httptest.NewRecorder()
	mw.RequireAuth(echoUser()).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "user-3" {
		t.Fatalf("expected user-3, got %d %q", rec.Code, rec.Body.String())
	}
}

type failingVerifier struct{}

func (failingVerifier) Verify(string) (string, error) { return "", errNoToken }

func TestRequireAuthRejectsMissingToken(t *testing.T) {
	mw := Middleware{Verifier: newTestVerifier(t, time.Now())}
	rec := httptest.NewRecorder()
	mw.RequireAuth(echoUser()).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/checkout", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestRequireAuthReadsCookie(t *testing.T) {
	now := time.Now()
	mw := Middleware{Verifier: newTestVerifier(t, now), AccessCookie: "access_token"}
	token := signToken(t, jwa.HS256, []byte(testSecret), "user-9", now, time.Minute)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", nil)
	req.AddCookie(&http.Cookie{Name: "access_token", Value: token})
	rec := httptest.NewRecorder()
	mw.RequireAuth(echoUser()).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "user-9" {
		t.Fatalf("expected user-9, got %d %q", rec.Code, rec.Body.String())
	}
}
