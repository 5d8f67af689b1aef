package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestCompositeHealthChecker(t *testing.T) {
	checker := NewCompositeHealthChecker("v1")
	checker.AddCheck("storage", func(context.Context) error { return nil })

	status := checker.Check(context.Background())
	assert.True(t, status.Ready)
	assert.Equal(t, "all checks passed", status.Message)
	assert.True(t, status.Checks["storage"].Healthy)

	checker.AddCheck("redis", func(context.Context) error { return errors.New("connection refused") })
	status = checker.Check(context.Background())
	assert.False(t, status.Ready)
	assert.Equal(t, "failed checks: redis", status.Message)
	assert.Equal(t, "connection refused", status.Checks["redis"].Message)
}

func TestCompositeHealthChecker_Timeout(t *testing.T) {
	checker := NewCompositeHealthChecker("v1")
	checker.SetTimeout(10 * time.Millisecond)
	checker.AddCheck("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	status := checker.Check(context.Background())
	assert.False(t, status.Ready)
	assert.Contains(t, status.Checks["slow"].Message, "deadline exceeded")
}

func TestAdminAuth(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)

	reject := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	auth, err := NewAdminAuth(string(hash), reject)
	require.NoError(t, err)

	protected := auth.Require(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		header string
		value  string
		want   int
	}{
		{"no token", "", "", http.StatusUnauthorized},
		{"wrong bearer", "Authorization", "Bearer nope", http.StatusUnauthorized},
		{"bearer", "Authorization", "Bearer s3cret", http.StatusNoContent},
		{"lowercase scheme", "Authorization", "bearer s3cret", http.StatusNoContent},
		{"admin header", AdminTokenHeader, "s3cret", http.StatusNoContent},
		{"basic scheme", "Authorization", "Basic s3cret", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			rec := httptest.NewRecorder()
			protected.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestNewAdminAuth_RejectsBadHash(t *testing.T) {
	_, err := NewAdminAuth("", nil)
	assert.ErrorIs(t, err, ErrNoAdminToken)

	_, err = NewAdminAuth("not-a-bcrypt-hash", nil)
	assert.Error(t, err)
}

func TestHashToken(t *testing.T) {
	hash, err := HashToken("token")
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("token")))

	_, err = HashToken("  ")
	assert.Error(t, err)
}

func TestChainOrder(t *testing.T) {
	var order []string
	mw := func(name string) MiddlewareFunc {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Chain(mw("outer"), mw("inner"), SecurityHeadersMiddleware)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		order = append(order, "handler")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, []string{"outer", "inner", "handler"}, order)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}
