package http

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/halftimetv/halftime/internal/auth"
	"github.com/halftimetv/halftime/internal/config"
)

func testToken(sub string) string {
	enc := base64.RawURLEncoding.EncodeToString
	return enc([]byte(`{"alg":"none"}`)) + "." + enc([]byte(`{"sub":"`+sub+`"}`)) + ".s"
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	authmw := auth.NewMiddleware(config.AuthConfig{Require: true}, nil, nil)
	srv := NewServer(config.ServerConfig{Host: "127.0.0.1", Port: 0}, authmw, nil, "test")

	echo := func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(auth.SubjectFrom(r.Context())))
	}
	srv.Router().Get("/api/v1/videos/echo", echo)
	srv.Router().Post("/api/v1/analytics/echo", echo)
	srv.Router().Get("/healthz-echo", echo)
	return srv
}

func TestRouteAuthDispatch(t *testing.T) {
	srv := newTestServer(t)

	do := func(method, path, token string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(method, path, nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		srv.Router().ServeHTTP(rec, req)
		return rec
	}

	// Video routes fail closed.
	rec := do(http.MethodGet, "/api/v1/videos/echo", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(http.MethodGet, "/api/v1/videos/echo", testToken("user-1"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-1", rec.Body.String())

	// Analytics accepts anonymous callers and attributes known ones.
	rec = do(http.MethodPost, "/api/v1/analytics/echo", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, auth.AnonymousSubject, rec.Body.String())

	rec = do(http.MethodPost, "/api/v1/analytics/echo", testToken("viewer-2"))
	assert.Equal(t, "viewer-2", rec.Body.String())

	// Everything else is open.
	rec = do(http.MethodGet, "/healthz-echo", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestIDHeaderSet(t *testing.T) {
	srv := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz-echo", nil))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}
