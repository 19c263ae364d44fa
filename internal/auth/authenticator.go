package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/washdeskhq/washdesk/internal/apperr"
	"github.com/washdeskhq/washdesk/internal/common"
	"github.com/washdeskhq/washdesk/internal/interfaces"
	"github.com/washdeskhq/washdesk/internal/models"
)

// Cookie names used by the HTML fallback pages.
const (
	AccessCookie  = "access_token"
	RefreshCookie = "refresh_token"
)

// Identity is the resolved caller of an authenticated request.
type Identity struct {
	User   *models.User
	Claims *TokenClaims
}

// Outcome carries credentials minted during a transparent refresh. It is
// threaded through the request context and merged into the JSON response body
// by the response helpers; the authenticator itself never touches responses.
type Outcome struct {
	NewAccessToken  string
	NewRefreshToken string
	Rotated         bool
}

// Authenticator resolves the caller's identity for each request,
// transparently refreshing an expired access credential when a valid refresh
// credential accompanies the request.
type Authenticator struct {
	issuer  *TokenIssuer
	storage interfaces.Storage
	logger  *common.Logger
	rotate  bool
}

// NewAuthenticator creates an Authenticator. rotate controls whether a
// transparent refresh also rotates the refresh credential; the explicit
// refresh endpoint always rotates regardless.
func NewAuthenticator(issuer *TokenIssuer, storage interfaces.Storage, logger *common.Logger, rotate bool) *Authenticator {
	return &Authenticator{issuer: issuer, storage: storage, logger: logger, rotate: rotate}
}

// Authenticate resolves the caller. On the fast path (valid access
// credential) the outcome is nil. On an expired credential it attempts a
// refresh; any failure on that path re-surfaces the original expiry error so
// callers cannot distinguish "expired, refresh also failed" from "never
// valid".
func (a *Authenticator) Authenticate(r *http.Request) (*Identity, *Outcome, error) {
	tokenString := a.extractAccess(r)
	if tokenString == "" {
		return nil, nil, apperr.New(apperr.AuthMissing, http.StatusUnauthorized, "Authentication credentials not provided")
	}

	claims, err := a.issuer.Parse(tokenString, TypeAccess)
	if err == nil {
		identity, authErr := a.resolveSubject(r.Context(), claims)
		if authErr != nil {
			return nil, nil, authErr
		}
		return identity, nil, nil
	}

	// Malformed or forged credentials fail hard; only expiry is recoverable.
	original := apperr.New(apperr.AuthInvalid, http.StatusUnauthorized, "Invalid or expired token")
	if !isExpired(err) {
		return nil, nil, original
	}

	refreshString := a.extractRefresh(r)
	if refreshString == "" {
		return nil, nil, original
	}

	identity, outcome, refreshErr := a.refresh(r.Context(), refreshString)
	if refreshErr != nil {
		a.logger.Warn().Err(refreshErr).Msg("Auto-refresh failed")
		return nil, nil, original
	}
	return identity, outcome, nil
}

// refresh exchanges a refresh credential for a new access credential. The
// revocation check, the subject lookup, and (when rotation is on) the
// revocation of the presented credential all run inside one transaction so a
// concurrently revoked credential cannot slip through between check and use.
func (a *Authenticator) refresh(ctx context.Context, refreshString string) (*Identity, *Outcome, error) {
	claims, err := a.issuer.Parse(refreshString, TypeRefresh)
	if err != nil {
		return nil, nil, err
	}

	var identity *Identity
	var outcome *Outcome

	err = a.storage.WithTx(ctx, func(ctx context.Context, tx interfaces.Storage) error {
		revoked, err := tx.Tokens().IsRevoked(ctx, claims.JTI)
		if err != nil {
			return err
		}
		if revoked {
			return apperr.New(apperr.AuthInvalid, http.StatusUnauthorized, "refresh credential revoked")
		}

		user, err := tx.Users().GetByID(ctx, claims.UserID)
		if err != nil {
			return err
		}
		if !user.IsActive {
			return apperr.New(apperr.AccountInactive, http.StatusUnauthorized, "account deactivated")
		}

		access, err := a.issuer.SignAccess(user)
		if err != nil {
			return err
		}
		outcome = &Outcome{NewAccessToken: access}

		if a.rotate {
			if err := tx.Tokens().Revoke(ctx, &models.RevokedToken{
				JTI:       claims.JTI,
				UserID:    user.ID,
				ExpiresAt: claims.ExpiresAt,
				RevokedAt: time.Now(),
			}); err != nil {
				return err
			}
			replacement, _, err := a.issuer.SignRefresh(user)
			if err != nil {
				return err
			}
			outcome.NewRefreshToken = replacement
			outcome.Rotated = true
		}

		identity = &Identity{User: user, Claims: claims}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return identity, outcome, nil
}

func (a *Authenticator) resolveSubject(ctx context.Context, claims *TokenClaims) (*Identity, error) {
	user, err := a.storage.Users().GetByID(ctx, claims.UserID)
	if err != nil {
		return nil, apperr.New(apperr.AuthInvalid, http.StatusUnauthorized, "Invalid or expired token")
	}
	if !user.IsActive {
		return nil, apperr.New(apperr.AccountInactive, http.StatusUnauthorized, "Your account has been deactivated")
	}
	return &Identity{User: user, Claims: claims}, nil
}

// extractAccess pulls the access credential from the Authorization header,
// falling back to the access cookie for browser-navigation style requests
// (no explicit JSON accept header).
func (a *Authenticator) extractAccess(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	if isBrowserRequest(r) {
		if c, err := r.Cookie(AccessCookie); err == nil {
			return c.Value
		}
	}
	return ""
}

// extractRefresh searches for a refresh credential in priority order:
// custom header, request body, query parameter, cookie.
func (a *Authenticator) extractRefresh(r *http.Request) string {
	if v := r.Header.Get("X-Refresh-Token"); v != "" {
		return v
	}
	if v := refreshFromBody(r); v != "" {
		return v
	}
	if v := r.URL.Query().Get("refresh_token"); v != "" {
		return v
	}
	if c, err := r.Cookie(RefreshCookie); err == nil {
		return c.Value
	}
	return ""
}

// refreshFromBody peeks a refresh_token/refresh field out of a JSON body,
// re-buffering the body so the handler can still decode it.
func refreshFromBody(r *http.Request) string {
	if r.Body == nil || r.Body == http.NoBody {
		return ""
	}
	if ct := r.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		return ""
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	r.Body = io.NopCloser(bytes.NewReader(data))
	if err != nil {
		return ""
	}

	var body struct {
		RefreshToken string `json:"refresh_token"`
		Refresh      string `json:"refresh"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return ""
	}
	if body.RefreshToken != "" {
		return body.RefreshToken
	}
	return body.Refresh
}

// isBrowserRequest reports whether the request looks like browser navigation
// rather than a programmatic API call.
func isBrowserRequest(r *http.Request) bool {
	return !strings.HasPrefix(r.Header.Get("Accept"), "application/json")
}

func isExpired(err error) bool {
	return errors.Is(err, ErrExpired)
}
