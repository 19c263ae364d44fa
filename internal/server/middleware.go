package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/washdeskhq/washdesk/internal/apperr"
	"github.com/washdeskhq/washdesk/internal/auth"
	"github.com/washdeskhq/washdesk/internal/common"
)

// responseWriter wraps http.ResponseWriter to capture status code and bytes written.
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}

// publicRoutes are reachable without any credential.
var publicRoutes = map[string]bool{
	"/api/health":             true,
	"/api/auth/login":         true,
	"/api/auth/refresh":       true,
	"/api/customers/register": true,
	"/api/payments/callback":  true,
}

// optionalAuthRoutes attempt authentication but continue anonymously on
// failure; the handler decides what an anonymous caller may see (the
// dashboard serves its HTML shell unauthenticated).
var optionalAuthRoutes = map[string]bool{
	"/api/dashboard/metrics": true,
}

// applyMiddleware wraps the mux with the standard middleware stack.
// Applied in reverse order: the first wrapped runs innermost.
func (s *Server) applyMiddleware(h http.Handler) http.Handler {
	h = s.authMiddleware(h)
	h = loggingMiddleware(s.logger)(h)
	h = correlationIDMiddleware(h)
	h = corsMiddleware(h)
	h = recoveryMiddleware(s.logger)(h)
	return h
}

// recoveryMiddleware catches panics and returns 500.
func recoveryMiddleware(logger *common.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error().
						Str("panic", fmt.Sprintf("%v", rec)).
						Str("path", r.URL.Path).
						Msg("Panic recovered in HTTP handler")
					WriteErrorMessage(w, apperr.ServerError, http.StatusInternalServerError, "Internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// corsMiddleware adds CORS headers for the web UI.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID, X-Correlation-ID, X-Refresh-Token")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// correlationIDMiddleware extracts or generates a correlation ID.
func correlationIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		corrID := r.Header.Get("X-Request-ID")
		if corrID == "" {
			corrID = r.Header.Get("X-Correlation-ID")
		}
		if corrID == "" {
			corrID = uuid.New().String()[:8]
		}
		w.Header().Set("X-Correlation-ID", corrID)
		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests.
func loggingMiddleware(logger *common.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			dur := time.Since(start)
			corrID := w.Header().Get("X-Correlation-ID")

			event := logger.Trace()
			if rw.statusCode >= 500 {
				event = logger.Error()
			} else if rw.statusCode >= 400 {
				event = logger.Info()
			}

			event.
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("query", r.URL.RawQuery).
				Int("status", rw.statusCode).
				Int("bytes", rw.bytesWritten).
				Dur("duration", dur).
				Str("correlation_id", corrID).
				Msg("HTTP request")
		})
	}
}

// authMiddleware resolves the caller on every non-public route. A transparent
// refresh leaves its minted credentials in the request context for the
// response helpers and re-sets the auth cookies for browser callers.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if publicRoutes[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		identity, outcome, err := s.authenticator.Authenticate(r)
		if err != nil {
			if optionalAuthRoutes[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}
			WriteError(w, err)
			return
		}

		ctx := auth.WithIdentity(r.Context(), identity)
		if outcome != nil {
			ctx = auth.WithOutcome(ctx, outcome)
			s.setAuthCookies(w, outcome.NewAccessToken, outcome.NewRefreshToken)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// setAuthCookies mirrors the credentials into cookies so browser navigation
// keeps working without script involvement. Not HTTP-only: the frontend
// reads them to populate the Authorization header on API calls.
func (s *Server) setAuthCookies(w http.ResponseWriter, access, refresh string) {
	if access != "" {
		http.SetCookie(w, &http.Cookie{
			Name:     auth.AccessCookie,
			Value:    access,
			Path:     "/",
			MaxAge:   int(s.config.Auth.GetAccessTokenExpiry().Seconds()),
			SameSite: http.SameSiteLaxMode,
			Secure:   s.config.IsProduction(),
		})
	}
	if refresh != "" {
		http.SetCookie(w, &http.Cookie{
			Name:     auth.RefreshCookie,
			Value:    refresh,
			Path:     "/",
			MaxAge:   int(s.config.Auth.GetRefreshTokenExpiry().Seconds()),
			SameSite: http.SameSiteLaxMode,
			Secure:   s.config.IsProduction(),
		})
	}
}

// clearAuthCookies expires both auth cookies.
func (s *Server) clearAuthCookies(w http.ResponseWriter) {
	for _, name := range []string{auth.AccessCookie, auth.RefreshCookie} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			SameSite: http.SameSiteLaxMode,
		})
	}
}
