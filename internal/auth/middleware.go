package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/noah-isme/jersey-studio/internal/common"
)

var errNoToken = errors.New("auth: token missing")

// TokenVerifier resolves a bearer token to its subject.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// Middleware reads upstream-issued bearer tokens (header or cookie).
type Middleware struct {
	Verifier     TokenVerifier
	AccessCookie string
}

// Authenticate attaches the subject when a token is present. Callers without a
// token continue anonymously and price as non-subscribers. A token that is
// present but invalid is rejected with 401 rather than silently downgraded, so
// a subscriber with an expired session refreshes instead of seeing full prices.
func (m Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := m.verify(r)
		switch {
		case errors.Is(err, errNoToken):
			next.ServeHTTP(w, r)
		case err != nil:
			unauthorized(w, err)
		default:
			next.ServeHTTP(w, r.WithContext(common.WithUserID(r.Context(), userID)))
		}
	})
}

// RequireAuth rejects anonymous callers. It reuses the subject placed by
// Authenticate when both are mounted.
func (m Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id, ok := common.UserID(r.Context()); ok && id != "" {
			next.ServeHTTP(w, r)
			return
		}
		userID, err := m.verify(r)
		if err != nil {
			unauthorized(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(common.WithUserID(r.Context(), userID)))
	})
}

func (m Middleware) verify(r *http.Request) (string, error) {
	token := m.extractToken(r)
	if token == "" {
		return "", errNoToken
	}
	if m.Verifier == nil {
		return "", errors.New("auth: verifier not configured")
	}
	return m.Verifier.Verify(token)
}

func unauthorized(w http.ResponseWriter, err error) {
	if errors.Is(err, errNoToken) {
		w.Header().Set("WWW-Authenticate", "Bearer")
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return
	}
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
	var appErr *common.AppError
	if errors.As(err, &appErr) && appErr.HTTPStatus != 0 {
		common.JSONError(w, appErr.HTTPStatus, appErr.Code, appErr.Message, appErr.Details)
		return
	}
	common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid token", nil)
}

func (m Middleware) extractToken(r *http.Request) string {
	if scheme, token, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " "); ok && strings.EqualFold(scheme, "bearer") {
		return strings.TrimSpace(token)
	}
	if m.AccessCookie == "" {
		return ""
	}
	if cookie, err := r.Cookie(m.AccessCookie); err == nil {
		return strings.TrimSpace(cookie.Value)
	}
	return ""
}
