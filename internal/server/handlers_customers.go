package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/washdeskhq/washdesk/internal/apperr"
	"github.com/washdeskhq/washdesk/internal/common"
	"github.com/washdeskhq/washdesk/internal/interfaces"
	"github.com/washdeskhq/washdesk/internal/models"
)

type customerRequest struct {
	Username               string `json:"username"`
	Email                  string `json:"email"`
	Password               string `json:"password"`
	FirstName              string `json:"first_name"`
	LastName               string `json:"last_name"`
	PhoneNumber            string `json:"phone_number"`
	WhatsappNumber         string `json:"whatsapp_number"`
	Address                string `json:"address"`
	PreferredContactMethod string `json:"preferred_contact_method"`
	Notes                  string `json:"notes"`
}

func (req *customerRequest) validate(requirePassword bool) error {
	if req.Username == "" || req.Email == "" || req.PhoneNumber == "" {
		return apperr.New(apperr.MissingFields, http.StatusBadRequest, "username, email and phone_number are required")
	}
	if !strings.Contains(req.Email, "@") {
		return apperr.New(apperr.ValidationFailed, http.StatusBadRequest, "Invalid email address")
	}
	if requirePassword && len(req.Password) < 8 {
		return apperr.New(apperr.ValidationFailed, http.StatusBadRequest, "Password must be at least 8 characters")
	}
	return nil
}

// createCustomer creates the user account and the customer profile in one
// transaction.
func (s *Server) createCustomer(ctx context.Context, req *customerRequest, password string, createdBy *int64) (*models.User, *models.Customer, error) {
	hash, err := hashPassword(password)
	if err != nil {
		return nil, nil, err
	}

	user := &models.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Role:         models.RoleClient,
		IsActive:     true,
	}
	customer := &models.Customer{
		PhoneNumber:            req.PhoneNumber,
		WhatsappNumber:         req.WhatsappNumber,
		Address:                req.Address,
		PreferredContactMethod: req.PreferredContactMethod,
		Notes:                  req.Notes,
		CreatedBy:              createdBy,
	}

	err = s.storage.WithTx(ctx, func(ctx context.Context, tx interfaces.Storage) error {
		if err := tx.Users().Create(ctx, user); err != nil {
			if errors.Is(err, common.ErrDuplicate) {
				return apperr.New(apperr.Conflict, http.StatusConflict, "Username already taken")
			}
			return err
		}
		customer.UserID = user.ID
		return tx.Customers().Create(ctx, customer)
	})
	if err != nil {
		return nil, nil, err
	}
	return user, customer, nil
}

// handleCustomerRegister handles /api/customers/register: the public
// self-service signup. GET renders the registration page for browsers.
func (s *Server) handleCustomerRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		s.renderTemplate(w, "register.html", nil)
		return
	}
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req customerRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if err := req.validate(true); err != nil {
		WriteError(w, err)
		return
	}

	user, customer, err := s.createCustomer(r.Context(), &req, req.Password, nil)
	if err != nil {
		WriteError(w, err)
		return
	}

	s.logger.Info().Str("username", user.Username).Msg("customer registered")
	WriteJSON(w, r, http.StatusCreated, map[string]interface{}{
		"message":  "Registration successful",
		"user":     user,
		"customer": customer,
	})
}

// handleCustomers handles /api/customers: staff-created accounts (seeded
// with the default password) and listing.
func (s *Server) handleCustomers(w http.ResponseWriter, r *http.Request) {
	caller := identity(r).User
	if !caller.IsStaff() {
		WriteErrorMessage(w, apperr.PermissionDenied, http.StatusForbidden, "Staff access required")
		return
	}

	switch r.Method {
	case http.MethodPost:
		var req customerRequest
		if !DecodeJSON(w, r, &req) {
			return
		}
		if err := req.validate(false); err != nil {
			WriteError(w, err)
			return
		}

		user, customer, err := s.createCustomer(r.Context(), &req, s.config.Auth.DefaultPassword, &caller.ID)
		if err != nil {
			WriteError(w, err)
			return
		}

		s.logger.Info().
			Str("username", user.Username).
			Str("created_by", caller.Username).
			Msg("customer created by staff")
		WriteJSON(w, r, http.StatusCreated, map[string]interface{}{
			"message":  "Customer created successfully with default password",
			"user":     user,
			"customer": customer,
			"note":     "Customer must change password on first login",
		})

	case http.MethodGet:
		customers, err := s.storage.Customers().List(r.Context())
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, r, http.StatusOK, map[string]interface{}{
			"customers": customers,
			"count":     len(customers),
		})

	default:
		RequireMethod(w, r, http.MethodPost, http.MethodGet)
	}
}

// routeCustomers handles /api/customers/{id}.
func (s *Server) routeCustomers(w http.ResponseWriter, r *http.Request) {
	id, rest, ok := PathID(r, "/api/customers/")
	if !ok || rest != "" {
		WriteErrorMessage(w, apperr.RecordNotFound, http.StatusNotFound, "Not found")
		return
	}

	caller := identity(r).User

	switch r.Method {
	case http.MethodGet:
		customer, err := s.storage.Customers().GetByID(r.Context(), id)
		if err != nil {
			if errors.Is(err, common.ErrNotFound) {
				WriteErrorMessage(w, apperr.CustomerNotFound, http.StatusNotFound, "Customer not found")
				return
			}
			WriteError(w, err)
			return
		}
		if !caller.IsStaff() && customer.UserID != caller.ID {
			WriteErrorMessage(w, apperr.CustomerNotFound, http.StatusNotFound, "Customer not found")
			return
		}
		WriteJSON(w, r, http.StatusOK, map[string]interface{}{"customer": customer})

	case http.MethodPatch:
		s.handleCustomerUpdate(w, r, id)

	default:
		RequireMethod(w, r, http.MethodGet, http.MethodPatch)
	}
}

// handleCustomerUpdate updates contact details. Clients may edit their own
// profile; staff may edit anyone's.
func (s *Server) handleCustomerUpdate(w http.ResponseWriter, r *http.Request, id int64) {
	caller := identity(r).User

	customer, err := s.storage.Customers().GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			WriteErrorMessage(w, apperr.CustomerNotFound, http.StatusNotFound, "Customer not found")
			return
		}
		WriteError(w, err)
		return
	}
	if !caller.IsStaff() && customer.UserID != caller.ID {
		WriteErrorMessage(w, apperr.CustomerNotFound, http.StatusNotFound, "Customer not found")
		return
	}

	var req struct {
		PhoneNumber            *string `json:"phone_number"`
		WhatsappNumber         *string `json:"whatsapp_number"`
		Address                *string `json:"address"`
		PreferredContactMethod *string `json:"preferred_contact_method"`
		Notes                  *string `json:"notes"`
	}
	if !DecodeJSON(w, r, &req) {
		return
	}

	if req.PhoneNumber != nil {
		customer.PhoneNumber = *req.PhoneNumber
	}
	if req.WhatsappNumber != nil {
		customer.WhatsappNumber = *req.WhatsappNumber
	}
	if req.Address != nil {
		customer.Address = *req.Address
	}
	if req.PreferredContactMethod != nil {
		customer.PreferredContactMethod = *req.PreferredContactMethod
	}
	if req.Notes != nil {
		if !caller.IsStaff() {
			WriteErrorMessage(w, apperr.PermissionDenied, http.StatusForbidden, "Only staff can edit customer notes")
			return
		}
		customer.Notes = *req.Notes
	}

	if err := s.storage.Customers().Update(r.Context(), customer); err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, r, http.StatusOK, map[string]interface{}{
		"message":  "Customer updated successfully",
		"customer": customer,
	})
}
