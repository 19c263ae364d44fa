package server

import (
	"errors"
	"net/http"

	"github.com/washdeskhq/washdesk/internal/apperr"
	"github.com/washdeskhq/washdesk/internal/common"
	"github.com/washdeskhq/washdesk/internal/models"
)

// --- Role capability tables ---
//
// Staff management is a closed capability table rather than per-endpoint
// branching: creation is keyed by (creator role -> creatable roles), updates
// by (actor role, target role) -> field transform.

// creatableRoles maps a creator's role to the roles it may provision.
var creatableRoles = map[string]map[string]bool{
	models.RoleSuperadmin: {
		models.RoleSuperadmin: true,
		models.RoleAdmin:      true,
		models.RoleEmployee:   true,
	},
	models.RoleAdmin: {
		models.RoleEmployee: true,
	},
}

// userUpdateRequest is the partial-update payload for user management.
type userUpdateRequest struct {
	Username  *string `json:"username"`
	Email     *string `json:"email"`
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Role      *string `json:"role"`
	IsActive  *bool   `json:"is_active"`
}

// applyProfile copies the caller-editable profile fields.
func applyProfile(target *models.User, req *userUpdateRequest) []string {
	var updated []string
	if req.Username != nil && *req.Username != target.Username {
		target.Username = *req.Username
		updated = append(updated, "username")
	}
	if req.Email != nil && *req.Email != target.Email {
		target.Email = *req.Email
		updated = append(updated, "email")
	}
	if req.FirstName != nil && *req.FirstName != target.FirstName {
		target.FirstName = *req.FirstName
		updated = append(updated, "first_name")
	}
	if req.LastName != nil && *req.LastName != target.LastName {
		target.LastName = *req.LastName
		updated = append(updated, "last_name")
	}
	return updated
}

// applyStatus toggles activation only.
func applyStatus(target *models.User, req *userUpdateRequest) ([]string, error) {
	if req.Role != nil {
		return nil, apperr.New(apperr.PermissionDenied, http.StatusForbidden, "You cannot change this user's role")
	}
	var updated []string
	if req.IsActive != nil && *req.IsActive != target.IsActive {
		target.IsActive = *req.IsActive
		updated = append(updated, "is_active")
	}
	updated = append(updated, applyProfile(target, req)...)
	return updated, nil
}

// applyFull allows everything, including role promotion, as long as the new
// role is known.
func applyFull(target *models.User, req *userUpdateRequest) ([]string, error) {
	var updated []string
	if req.Role != nil && *req.Role != target.Role {
		if !models.ValidRole(*req.Role) {
			return nil, apperr.Newf(apperr.ValidationFailed, http.StatusBadRequest, "Unknown role %q", *req.Role)
		}
		target.Role = *req.Role
		updated = append(updated, "role")
	}
	if req.IsActive != nil && *req.IsActive != target.IsActive {
		target.IsActive = *req.IsActive
		updated = append(updated, "is_active")
	}
	updated = append(updated, applyProfile(target, req)...)
	return updated, nil
}

type updateTransform func(target *models.User, req *userUpdateRequest) ([]string, error)

// updatePolicies maps (actor role, target role) to the transform applied.
// A missing entry means the actor may not touch that target at all.
var updatePolicies = map[[2]string]updateTransform{
	{models.RoleSuperadmin, models.RoleAdmin}:    applyFull,
	{models.RoleSuperadmin, models.RoleEmployee}: applyFull,
	{models.RoleSuperadmin, models.RoleClient}:   applyFull,
	{models.RoleAdmin, models.RoleEmployee}:      applyStatus,
	{models.RoleAdmin, models.RoleClient}:        applyStatus,
	{models.RoleEmployee, models.RoleClient}:     applyStatus,
}

// handleUsers handles /api/users: POST creates a staff account, GET lists.
func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleUserCreate(w, r)
	case http.MethodGet:
		s.handleUserList(w, r)
	default:
		RequireMethod(w, r, http.MethodPost, http.MethodGet)
	}
}

// handleUserCreate creates a staff account with the shared default password;
// the new user must change it on first login.
func (s *Server) handleUserCreate(w http.ResponseWriter, r *http.Request) {
	caller := identity(r).User

	var req struct {
		Username  string `json:"username"`
		Email     string `json:"email"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
		Role      string `json:"role"`
	}
	if !DecodeJSON(w, r, &req) {
		return
	}
	if req.Username == "" || req.Email == "" || req.Role == "" {
		WriteErrorMessage(w, apperr.MissingFields, http.StatusBadRequest, "username, email and role are required")
		return
	}
	if !creatableRoles[caller.Role][req.Role] {
		WriteErrorMessage(w, apperr.PermissionDenied, http.StatusForbidden, "You cannot create users with this role")
		return
	}

	hash, err := hashPassword(s.config.Auth.DefaultPassword)
	if err != nil {
		WriteError(w, err)
		return
	}

	user := &models.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Role:         req.Role,
		IsActive:     true,
	}
	if err := s.storage.Users().Create(r.Context(), user); err != nil {
		if errors.Is(err, common.ErrDuplicate) {
			WriteErrorMessage(w, apperr.Conflict, http.StatusConflict, "Username already taken")
			return
		}
		WriteError(w, err)
		return
	}

	s.logger.Info().
		Str("username", user.Username).
		Str("role", user.Role).
		Str("created_by", caller.Username).
		Msg("user created")

	WriteJSON(w, r, http.StatusCreated, map[string]interface{}{
		"message": "User created successfully with default password",
		"user":    user,
		"note":    "User must change password on first login",
	})
}

// handleUserList handles GET /api/users?role= for staff.
func (s *Server) handleUserList(w http.ResponseWriter, r *http.Request) {
	caller := identity(r).User
	if !caller.IsStaff() {
		WriteErrorMessage(w, apperr.PermissionDenied, http.StatusForbidden, "Staff access required")
		return
	}

	role := r.URL.Query().Get("role")
	if role != "" && !models.ValidRole(role) {
		WriteErrorMessage(w, apperr.ValidationFailed, http.StatusBadRequest, "Unknown role filter")
		return
	}

	users, err := s.storage.Users().List(r.Context(), role)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, r, http.StatusOK, map[string]interface{}{
		"users": users,
		"count": len(users),
	})
}

// handleUserSelfUpdate handles PATCH /api/users/me: profile fields only,
// never role or activation.
func (s *Server) handleUserSelfUpdate(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPatch) {
		return
	}

	var req userUpdateRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if req.Role != nil || req.IsActive != nil {
		WriteErrorMessage(w, apperr.PermissionDenied, http.StatusForbidden, "You cannot change your own role or status")
		return
	}

	user := identity(r).User
	updated := applyProfile(user, &req)
	if len(updated) > 0 {
		if err := s.storage.Users().Update(r.Context(), user); err != nil {
			if errors.Is(err, common.ErrDuplicate) {
				WriteErrorMessage(w, apperr.Conflict, http.StatusConflict, "Username already taken")
				return
			}
			WriteError(w, err)
			return
		}
	}

	WriteJSON(w, r, http.StatusOK, map[string]interface{}{
		"message":        "Profile updated successfully",
		"updated_fields": updated,
		"user":           user,
	})
}

// routeUsers handles /api/users/{id}.
func (s *Server) routeUsers(w http.ResponseWriter, r *http.Request) {
	id, rest, ok := PathID(r, "/api/users/")
	if !ok || rest != "" {
		WriteErrorMessage(w, apperr.RecordNotFound, http.StatusNotFound, "Not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.handleUserGet(w, r, id)
	case http.MethodPatch:
		s.handleUserUpdate(w, r, id)
	default:
		RequireMethod(w, r, http.MethodGet, http.MethodPatch)
	}
}

// handleUserGet returns one user; staff only, except reading yourself.
func (s *Server) handleUserGet(w http.ResponseWriter, r *http.Request, id int64) {
	caller := identity(r).User
	if !caller.IsStaff() && caller.ID != id {
		WriteErrorMessage(w, apperr.PermissionDenied, http.StatusForbidden, "Staff access required")
		return
	}

	user, err := s.storage.Users().GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			WriteErrorMessage(w, apperr.RecordNotFound, http.StatusNotFound, "User not found")
			return
		}
		WriteError(w, err)
		return
	}
	WriteJSON(w, r, http.StatusOK, map[string]interface{}{"user": user})
}

// handleUserUpdate applies the capability-table transform for the
// (caller role, target role) pair.
func (s *Server) handleUserUpdate(w http.ResponseWriter, r *http.Request, id int64) {
	caller := identity(r).User

	var req userUpdateRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	target, err := s.storage.Users().GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			WriteErrorMessage(w, apperr.RecordNotFound, http.StatusNotFound, "User not found")
			return
		}
		WriteError(w, err)
		return
	}

	transform, ok := updatePolicies[[2]string{caller.Role, target.Role}]
	if !ok {
		WriteErrorMessage(w, apperr.PermissionDenied, http.StatusForbidden, "You cannot modify this user")
		return
	}

	updated, err := transform(target, &req)
	if err != nil {
		WriteError(w, err)
		return
	}
	if len(updated) > 0 {
		if err := s.storage.Users().Update(r.Context(), target); err != nil {
			WriteError(w, err)
			return
		}
		s.logger.Info().
			Str("target", target.Username).
			Str("updated_by", caller.Username).
			Strs("fields", updated).
			Msg("user updated")
	}

	WriteJSON(w, r, http.StatusOK, map[string]interface{}{
		"message":        "User updated successfully",
		"updated_fields": updated,
		"user":           target,
	})
}
