package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/washdeskhq/washdesk/internal/apperr"
	"github.com/washdeskhq/washdesk/internal/auth"
	"github.com/washdeskhq/washdesk/internal/common"
	"github.com/washdeskhq/washdesk/internal/interfaces"
	"github.com/washdeskhq/washdesk/internal/models"
)

// --- Password helpers ---

// hashPassword hashes a password with bcrypt. bcrypt only considers the
// first 72 bytes, so longer inputs are truncated explicitly rather than
// erroring on newer library versions.
func hashPassword(password string) (string, error) {
	b := []byte(password)
	if len(b) > 72 {
		b = b[:72]
	}
	hash, err := bcrypt.GenerateFromPassword(b, bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// checkPassword compares a password against its bcrypt hash.
func checkPassword(hash, password string) bool {
	b := []byte(password)
	if len(b) > 72 {
		b = b[:72]
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), b) == nil
}

// handleAuthLogin handles /api/auth/login. GET renders the login page for
// browsers; POST exchanges credentials for a token pair.
func (s *Server) handleAuthLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		s.renderTemplate(w, "login.html", nil)
		return
	}
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if !DecodeJSON(w, r, &req) {
		return
	}
	if req.Username == "" || req.Password == "" {
		WriteErrorMessage(w, apperr.MissingFields, http.StatusBadRequest, "Username and password are required")
		return
	}

	ctx := r.Context()
	user, err := s.storage.Users().GetByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			WriteErrorMessage(w, apperr.InvalidCredentials, http.StatusUnauthorized, "Invalid username or password")
			return
		}
		WriteError(w, err)
		return
	}
	if !checkPassword(user.PasswordHash, req.Password) {
		WriteErrorMessage(w, apperr.InvalidCredentials, http.StatusUnauthorized, "Invalid username or password")
		return
	}
	if !user.IsActive {
		WriteErrorMessage(w, apperr.AccountInactive, http.StatusUnauthorized, "Your account has been deactivated")
		return
	}

	// Seeded accounts carry the shared default password until first change.
	requiresPasswordChange := s.config.Auth.DefaultPassword != "" &&
		checkPassword(user.PasswordHash, s.config.Auth.DefaultPassword)

	now := time.Now().UTC()
	user.LastLogin = &now
	if err := s.storage.Users().Update(ctx, user); err != nil {
		s.logger.Warn().Err(err).Str("username", user.Username).Msg("failed to record last login")
	}

	access, err := s.issuer.SignAccess(user)
	if err != nil {
		WriteError(w, err)
		return
	}
	refresh, _, err := s.issuer.SignRefresh(user)
	if err != nil {
		WriteError(w, err)
		return
	}

	s.setAuthCookies(w, access, refresh)

	response := map[string]interface{}{
		"access":                   access,
		"refresh":                  refresh,
		"user":                     user,
		"requires_password_change": requiresPasswordChange,
	}
	if requiresPasswordChange {
		response["message"] = "Please change your default password"
	}

	s.logger.Info().Str("username", user.Username).Str("role", user.Role).Msg("user logged in")
	WriteJSON(w, r, http.StatusOK, response)
}

// handleAuthLogout handles POST /api/auth/logout: revokes the presented
// refresh credential and clears the auth cookies.
func (s *Server) handleAuthLogout(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req struct {
		RefreshToken string `json:"refresh_token"`
		Refresh      string `json:"refresh"`
	}
	if r.Body != nil && r.Body != http.NoBody {
		// Tolerate an empty body: the cookie may carry the credential.
		_ = decodeOptionalJSON(r, &req)
	}
	refreshString := req.RefreshToken
	if refreshString == "" {
		refreshString = req.Refresh
	}
	if refreshString == "" {
		if c, err := r.Cookie("refresh_token"); err == nil {
			refreshString = c.Value
		}
	}
	if refreshString == "" {
		WriteErrorMessage(w, apperr.MissingToken, http.StatusBadRequest, "Refresh token is required")
		return
	}

	claims, err := s.issuer.Parse(refreshString, auth.TypeRefresh)
	if err != nil {
		WriteErrorMessage(w, apperr.AuthInvalid, http.StatusUnauthorized, "Invalid or expired token")
		return
	}

	caller := identity(r)
	if claims.UserID != caller.User.ID {
		WriteErrorMessage(w, apperr.AuthInvalid, http.StatusUnauthorized, "Invalid or expired token")
		return
	}

	err = s.storage.Tokens().Revoke(r.Context(), &models.RevokedToken{
		JTI:       claims.JTI,
		UserID:    claims.UserID,
		ExpiresAt: claims.ExpiresAt,
		RevokedAt: time.Now().UTC(),
	})
	if err != nil {
		WriteError(w, err)
		return
	}

	s.clearAuthCookies(w)
	s.logger.Info().Str("username", caller.User.Username).Msg("user logged out")
	WriteJSON(w, r, http.StatusOK, map[string]interface{}{
		"message": "Logged out successfully",
	})
}

// handleAuthRefresh handles POST /api/auth/refresh: the explicit exchange
// endpoint. Unlike the transparent auto-refresh, this ALWAYS rotates the
// presented credential regardless of the rotation setting.
func (s *Server) handleAuthRefresh(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req struct {
		RefreshToken string `json:"refresh_token"`
		Refresh      string `json:"refresh"`
	}
	if r.Body != nil && r.Body != http.NoBody {
		_ = decodeOptionalJSON(r, &req)
	}
	refreshString := req.RefreshToken
	if refreshString == "" {
		refreshString = req.Refresh
	}
	if refreshString == "" {
		if c, err := r.Cookie("refresh_token"); err == nil {
			refreshString = c.Value
		}
	}
	if refreshString == "" {
		WriteErrorMessage(w, apperr.MissingToken, http.StatusBadRequest, "Refresh token is required")
		return
	}

	claims, err := s.issuer.Parse(refreshString, auth.TypeRefresh)
	if err != nil {
		WriteErrorMessage(w, apperr.AuthInvalid, http.StatusUnauthorized, "Invalid or expired refresh token")
		return
	}

	var access, replacement string
	err = s.storage.WithTx(r.Context(), func(ctx context.Context, tx interfaces.Storage) error {
		revoked, err := tx.Tokens().IsRevoked(ctx, claims.JTI)
		if err != nil {
			return err
		}
		if revoked {
			return apperr.New(apperr.AuthInvalid, http.StatusUnauthorized, "Invalid or expired refresh token")
		}

		user, err := tx.Users().GetByID(ctx, claims.UserID)
		if err != nil {
			return apperr.New(apperr.AuthInvalid, http.StatusUnauthorized, "Invalid or expired refresh token")
		}
		if !user.IsActive {
			return apperr.New(apperr.AccountInactive, http.StatusUnauthorized, "Your account has been deactivated")
		}

		if err := tx.Tokens().Revoke(ctx, &models.RevokedToken{
			JTI:       claims.JTI,
			UserID:    user.ID,
			ExpiresAt: claims.ExpiresAt,
			RevokedAt: time.Now().UTC(),
		}); err != nil {
			return err
		}

		access, err = s.issuer.SignAccess(user)
		if err != nil {
			return err
		}
		replacement, _, err = s.issuer.SignRefresh(user)
		return err
	})
	if err != nil {
		WriteError(w, err)
		return
	}

	s.setAuthCookies(w, access, replacement)
	WriteJSON(w, r, http.StatusOK, map[string]interface{}{
		"access":  access,
		"refresh": replacement,
	})
}

// handleChangePassword handles PUT /api/auth/password for the caller's own
// account.
func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPut) {
		return
	}

	var req struct {
		OldPassword     string `json:"old_password"`
		NewPassword     string `json:"new_password"`
		ConfirmPassword string `json:"confirm_password"`
	}
	if !DecodeJSON(w, r, &req) {
		return
	}
	if req.OldPassword == "" || req.NewPassword == "" {
		WriteErrorMessage(w, apperr.MissingFields, http.StatusBadRequest, "Old and new passwords are required")
		return
	}
	if len(req.NewPassword) < 8 {
		WriteErrorMessage(w, apperr.ValidationFailed, http.StatusBadRequest, "New password must be at least 8 characters")
		return
	}
	if req.ConfirmPassword != "" && req.ConfirmPassword != req.NewPassword {
		WriteErrorMessage(w, apperr.ValidationFailed, http.StatusBadRequest, "Passwords do not match")
		return
	}

	user := identity(r).User
	if !checkPassword(user.PasswordHash, req.OldPassword) {
		WriteErrorMessage(w, apperr.InvalidCredentials, http.StatusUnauthorized, "Current password is incorrect")
		return
	}

	hash, err := hashPassword(req.NewPassword)
	if err != nil {
		WriteError(w, err)
		return
	}
	user.PasswordHash = hash
	if err := s.storage.Users().Update(r.Context(), user); err != nil {
		WriteError(w, err)
		return
	}

	WriteJSON(w, r, http.StatusOK, map[string]interface{}{
		"message": "Password changed successfully",
	})
}
