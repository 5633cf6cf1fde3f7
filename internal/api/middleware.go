package api

import (
	"net/http"
	"strings"

	"politerm/internal/logging"
	polotel "politerm/internal/otel"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
)

const cacheControlNoStore = "no-store, must-revalidate"

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers := w.Header()
		headers.Set("X-Content-Type-Options", "nosniff")
		headers.Set("Cache-Control", cacheControlNoStore)
		next.ServeHTTP(w, r)
	})
}

func validateToken(r *http.Request, token string) bool {
	if token == "" {
		return true
	}
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ") == token
	}
	if queryToken := r.URL.Query().Get("token"); queryToken != "" {
		return queryToken == token
	}
	return false
}

func authMiddleware(token string, next apiHandler) apiHandler {
	return func(w http.ResponseWriter, r *http.Request) *apiError {
		if !validateToken(r, token) {
			polotel.RecordSpanEvent(r.Context(), "auth.token_rejected")
			return &apiError{Status: http.StatusUnauthorized, Message: "unauthorized"}
		}
		return next(w, r)
	}
}

// requireToken guards a plain handler with the API token.
func requireToken(token string, next http.Handler) http.Handler {
	if token == "" {
		return next
	}
	return jsonErrorMiddleware(authMiddleware(token, func(w http.ResponseWriter, r *http.Request) *apiError {
		next.ServeHTTP(w, r)
		return nil
	}))
}

func jsonErrorMiddleware(next apiHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := next(w, r); err != nil {
			polotel.RecordSpanEvent(r.Context(), "api.error",
				attribute.Int("http.status_code", err.Status),
				attribute.String("error.message", err.Message),
			)
			writeJSONError(w, err)
		}
	}
}

func loggingMiddleware(logger *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger.Debug("api request", map[string]string{
				"method": r.Method,
				"path":   r.URL.Path,
			})
			next.ServeHTTP(w, r)
		})
	}
}

func restHandler(token string, handler apiHandler) http.HandlerFunc {
	return jsonErrorMiddleware(authMiddleware(token, handler))
}

// routeLabel returns the matched route pattern, keeping path parameters out
// of metric labels.
func routeLabel(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "other"
}
