package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/washdeskhq/washdesk/internal/apperr"
	"github.com/washdeskhq/washdesk/internal/auth"
)

// WriteJSON writes a JSON response. When a transparent token refresh happened
// during authentication, the minted credentials are merged into the body so
// the caller gets them piggybacked on whatever it was already asking for.
func WriteJSON(w http.ResponseWriter, r *http.Request, statusCode int, data map[string]interface{}) {
	if outcome := auth.OutcomeFrom(r.Context()); outcome != nil && data != nil {
		data["new_access_token"] = outcome.NewAccessToken
		data["token_refreshed"] = true
		if outcome.Rotated {
			data["new_refresh_token"] = outcome.NewRefreshToken
			data["token_rotated"] = true
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// WriteError renders err in the standard error envelope
// {error_code, message, status_code}.
func WriteError(w http.ResponseWriter, err error) {
	appErr := apperr.From(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.StatusCode)
	json.NewEncoder(w).Encode(appErr)
}

// WriteErrorMessage renders an ad-hoc error envelope.
func WriteErrorMessage(w http.ResponseWriter, code apperr.Code, statusCode int, message string) {
	WriteError(w, apperr.New(code, statusCode, message))
}

// RequireMethod validates the HTTP method and returns true if it matches.
// If it doesn't match, it writes a 405 response and returns false.
func RequireMethod(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	w.Header().Set("Allow", strings.Join(methods, ", "))
	WriteErrorMessage(w, apperr.ValidationFailed, http.StatusMethodNotAllowed, "Method not allowed")
	return false
}

// DecodeJSON reads and decodes JSON from the request body into v.
// Returns false and writes a 400 error if decoding fails.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if r.Body == nil {
		WriteErrorMessage(w, apperr.ValidationFailed, http.StatusBadRequest, "Request body is required")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		WriteErrorMessage(w, apperr.ValidationFailed, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return false
	}
	return true
}

// decodeOptionalJSON decodes a JSON body into v, tolerating an empty or
// absent body.
func decodeOptionalJSON(r *http.Request, v interface{}) error {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}
	err := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20)).Decode(v)
	if err == io.EOF {
		return nil
	}
	return err
}

// PathID extracts a numeric path parameter following prefix. For a path like
// /api/orders/42/payments, PathID(r, "/api/orders/") returns 42 with the
// remainder "payments".
func PathID(r *http.Request, prefix string) (int64, string, bool) {
	path := r.URL.Path
	if !strings.HasPrefix(path, prefix) {
		return 0, "", false
	}
	rest := strings.TrimPrefix(path, prefix)
	idPart := rest
	remainder := ""
	if idx := strings.Index(rest, "/"); idx >= 0 {
		idPart = rest[:idx]
		remainder = strings.Trim(rest[idx+1:], "/")
	}
	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil || id <= 0 {
		return 0, "", false
	}
	return id, remainder, true
}

// parseQueryID parses a positive numeric query-string value.
func parseQueryID(v string) (int64, bool) {
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// identity extracts the resolved caller, guaranteed non-nil on routes behind
// the auth middleware.
func identity(r *http.Request) *auth.Identity {
	return auth.IdentityFrom(r.Context())
}
