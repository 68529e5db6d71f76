package auth

import (
	"log/slog"
	"net/http"

	"github.com/halftimetv/halftime/internal/config"
	"github.com/halftimetv/halftime/internal/observability"
)

// Middleware attaches the caller principal to request contexts.
type Middleware struct {
	validator TokenValidator
	require   bool
	logger    *slog.Logger
}

// NewMiddleware builds the middleware from auth configuration. A nil
// validator uses the claims-extracting default.
func NewMiddleware(cfg config.AuthConfig, validator TokenValidator, logger *slog.Logger) *Middleware {
	if validator == nil {
		validator = ClaimsValidator{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Middleware{
		validator: validator,
		require:   cfg.Require,
		logger:    observability.WithComponent(logger, "auth"),
	}
}

// Required protects routes that need a caller identity. Without a
// token the request is rejected when auth is required, and attributed
// to the anonymous owner otherwise. A token that is present but
// invalid is always rejected.
func (m *Middleware) Required(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := ExtractToken(r)
		if token == "" {
			if m.require {
				m.logger.Warn("missing bearer token", slog.String("path", r.URL.Path))
				unauthorized(w)
				return
			}
			ctx := WithPrincipal(r.Context(), Principal{Subject: AnonymousSubject})
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		p, err := m.validator.Validate(token)
		if err != nil {
			m.logger.Warn("invalid bearer token",
				slog.String("path", r.URL.Path),
				slog.String("error", err.Error()))
			unauthorized(w)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

// Optional attaches a principal when a valid token is presented and
// passes the request through otherwise. Analytics ingestion uses this
// so unauthenticated players can still report events.
func (m *Middleware) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token := ExtractToken(r); token != "" {
			if p, err := m.validator.Validate(token); err == nil {
				r = r.WithContext(WithPrincipal(r.Context(), p))
			} else {
				m.logger.Debug("ignoring invalid bearer token",
					slog.String("path", r.URL.Path))
			}
		}
		next.ServeHTTP(w, r)
	})
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
}
