package server

import (
	"errors"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/washdeskhq/washdesk/internal/apperr"
	"github.com/washdeskhq/washdesk/internal/common"
	"github.com/washdeskhq/washdesk/internal/models"
)

// handleServices handles /api/services: GET lists the catalog (clients see
// active entries only), POST creates an entry (staff).
func (s *Server) handleServices(w http.ResponseWriter, r *http.Request) {
	caller := identity(r).User

	switch r.Method {
	case http.MethodGet:
		activeOnly := !caller.IsStaff() || r.URL.Query().Get("active") == "true"
		services, err := s.storage.Services().List(r.Context(), activeOnly)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, r, http.StatusOK, map[string]interface{}{
			"services": services,
			"count":    len(services),
		})

	case http.MethodPost:
		if !caller.IsStaff() {
			WriteErrorMessage(w, apperr.PermissionDenied, http.StatusForbidden, "Staff access required")
			return
		}

		var req struct {
			Name          string          `json:"name"`
			Description   string          `json:"description"`
			Price         decimal.Decimal `json:"price"`
			Unit          string          `json:"unit"`
			Category      string          `json:"category"`
			EstimatedDays int             `json:"estimated_days"`
		}
		if !DecodeJSON(w, r, &req) {
			return
		}
		if req.Name == "" {
			WriteErrorMessage(w, apperr.MissingFields, http.StatusBadRequest, "name is required")
			return
		}
		if !req.Price.IsPositive() {
			WriteErrorMessage(w, apperr.ValidationFailed, http.StatusBadRequest, "price must be greater than zero")
			return
		}
		if req.EstimatedDays <= 0 {
			req.EstimatedDays = 1
		}

		service := &models.Service{
			Name:          req.Name,
			Description:   req.Description,
			Price:         req.Price,
			Unit:          req.Unit,
			Category:      req.Category,
			EstimatedDays: req.EstimatedDays,
			IsActive:      true,
			CreatedBy:     &caller.ID,
		}
		if err := s.storage.Services().Create(r.Context(), service); err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, r, http.StatusCreated, map[string]interface{}{
			"message": "Service created successfully",
			"service": service,
		})

	default:
		RequireMethod(w, r, http.MethodGet, http.MethodPost)
	}
}

// routeServices handles /api/services/{id}.
func (s *Server) routeServices(w http.ResponseWriter, r *http.Request) {
	id, rest, ok := PathID(r, "/api/services/")
	if !ok || rest != "" {
		WriteErrorMessage(w, apperr.RecordNotFound, http.StatusNotFound, "Not found")
		return
	}

	caller := identity(r).User

	service, err := s.storage.Services().GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			WriteErrorMessage(w, apperr.RecordNotFound, http.StatusNotFound, "Service not found")
			return
		}
		WriteError(w, err)
		return
	}

	switch r.Method {
	case http.MethodGet:
		if !service.IsActive && !caller.IsStaff() {
			WriteErrorMessage(w, apperr.RecordNotFound, http.StatusNotFound, "Service not found")
			return
		}
		WriteJSON(w, r, http.StatusOK, map[string]interface{}{"service": service})

	case http.MethodPatch:
		if !caller.IsStaff() {
			WriteErrorMessage(w, apperr.PermissionDenied, http.StatusForbidden, "Staff access required")
			return
		}

		var req struct {
			Name          *string          `json:"name"`
			Description   *string          `json:"description"`
			Price         *decimal.Decimal `json:"price"`
			Unit          *string          `json:"unit"`
			Category      *string          `json:"category"`
			EstimatedDays *int             `json:"estimated_days"`
			IsActive      *bool            `json:"is_active"`
		}
		if !DecodeJSON(w, r, &req) {
			return
		}

		if req.Name != nil {
			service.Name = *req.Name
		}
		if req.Description != nil {
			service.Description = *req.Description
		}
		if req.Price != nil {
			if !req.Price.IsPositive() {
				WriteErrorMessage(w, apperr.ValidationFailed, http.StatusBadRequest, "price must be greater than zero")
				return
			}
			service.Price = *req.Price
		}
		if req.Unit != nil {
			service.Unit = *req.Unit
		}
		if req.Category != nil {
			service.Category = *req.Category
		}
		if req.EstimatedDays != nil && *req.EstimatedDays > 0 {
			service.EstimatedDays = *req.EstimatedDays
		}
		if req.IsActive != nil {
			service.IsActive = *req.IsActive
		}

		if err := s.storage.Services().Update(r.Context(), service); err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, r, http.StatusOK, map[string]interface{}{
			"message": "Service updated successfully",
			"service": service,
		})

	default:
		RequireMethod(w, r, http.MethodGet, http.MethodPatch)
	}
}
