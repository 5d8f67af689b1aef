package handlers

import (
	"errors"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// ══════════════════════════════════════════════════════════════════════════════
// ADMIN AUTHENTICATION
// ══════════════════════════════════════════════════════════════════════════════

// AdminTokenHeader is the alternative to "Authorization: Bearer <token>".
const AdminTokenHeader = "X-Admin-Token"

// ErrNoAdminToken is returned by NewAdminAuth when no hash is configured.
var ErrNoAdminToken = errors.New("admin token hash is not configured")

// AdminAuth guards administrative endpoints with a bcrypt-hashed token.
type AdminAuth struct {
	hash   []byte
	reject http.Handler
}

// NewAdminAuth creates an authenticator. reject writes the 401 response.
func NewAdminAuth(tokenHash string, reject http.Handler) (*AdminAuth, error) {
	tokenHash = strings.TrimSpace(tokenHash)
	if tokenHash == "" {
		return nil, ErrNoAdminToken
	}
	if _, err := bcrypt.Cost([]byte(tokenHash)); err != nil {
		return nil, err
	}
	return &AdminAuth{hash: []byte(tokenHash), reject: reject}, nil
}

// HashToken returns the bcrypt hash of a plain admin token.
func HashToken(token string) (string, error) {
	if strings.TrimSpace(token) == "" {
		return "", errors.New("token must not be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Valid reports whether token matches the configured hash.
func (a *AdminAuth) Valid(token string) bool {
	if token == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword(a.hash, []byte(token)) == nil
}

// Require wraps next so that only requests carrying the admin token reach it.
func (a *AdminAuth) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Valid(tokenFromRequest(r)) {
			a.reject.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func tokenFromRequest(r *http.Request) string {
	if token := r.Header.Get(AdminTokenHeader); token != "" {
		return token
	}
	auth := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(auth, " ")
	if ok && strings.EqualFold(scheme, "bearer") {
		return strings.TrimSpace(token)
	}
	return ""
}

// ══════════════════════════════════════════════════════════════════════════════
// SECURITY HEADERS MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

// SecurityHeadersMiddleware adds security-related headers for a JSON API.
func SecurityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST SIZE LIMIT MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

// RequestSizeLimitMiddleware caps request bodies at maxBytes.
func RequestSizeLimitMiddleware(maxBytes int64) MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MIDDLEWARE CHAIN BUILDER
// ══════════════════════════════════════════════════════════════════════════════

// MiddlewareFunc is a function that wraps an http.Handler.
type MiddlewareFunc func(http.Handler) http.Handler

// Chain composes middleware; the first one is the outermost.
func Chain(middlewares ...MiddlewareFunc) MiddlewareFunc {
	return func(final http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}
