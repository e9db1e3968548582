package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func hashOf(t *testing.T, key string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
}

func TestAPIKeyAuth(t *testing.T) {
	auth, err := NewAPIKeyAuth("X-API-Key", []string{hashOf(t, "s3cret")})
	require.NoError(t, err)
	h := auth.Middleware(okHandler())

	cases := []struct {
		name   string
		header map[string]string
		want   int
	}{
		{"valid header", map[string]string{"X-API-Key": "s3cret"}, http.StatusNoContent},
		{"bearer", map[string]string{"Authorization": "Bearer s3cret"}, http.StatusNoContent},
		{"wrong key", map[string]string{"X-API-Key": "nope"}, http.StatusUnauthorized},
		{"missing", nil, http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			for k, v := range tc.header {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestAPIKeyAuth_DisabledWithoutHashes(t *testing.T) {
	auth, err := NewAPIKeyAuth("X-API-Key", nil)
	require.NoError(t, err)
	assert.False(t, auth.Enabled())

	rec := httptest.NewRecorder()
	auth.Middleware(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestAPIKeyAuth_RejectsMalformedHash(t *testing.T) {
	_, err := NewAPIKeyAuth("X-API-Key", []string{"plaintext"})
	assert.Error(t, err)
}

func TestRequestSizeLimit(t *testing.T) {
	h := RequestSizeLimitMiddleware(4)(okHandler())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("too long")))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestChain_Order(t *testing.T) {
	var order []string
	mark := func(name string) MiddlewareFunc {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	ChainHandler(okHandler(), mark("a"), mark("b")).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, []string{"a", "b"}, order)
}

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestCompositeHealthChecker(t *testing.T) {
	c := NewCompositeHealthChecker("v1")
	c.AddCheck("DBVS1/db11", NewPingCheck(pingFunc(func(context.Context) error { return nil })))
	status := c.Check(context.Background())
	assert.True(t, status.Healthy)
	assert.Equal(t, "OK", status.Checks["DBVS1/db11"].Message)

	c.AddCheck("DBVS2/db21", NewPingCheck(pingFunc(func(context.Context) error { return errors.New("down") })))
	status = c.Check(context.Background())
	assert.False(t, status.Healthy)
	assert.Equal(t, "failing: DBVS2/db21", status.Message)
	assert.Equal(t, []string{"DBVS2/db21"}, status.Failing)
	assert.Equal(t, "down", status.Checks["DBVS2/db21"].Message)
}
