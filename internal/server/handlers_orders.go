package server

import (
	"net/http"

	"github.com/washdeskhq/washdesk/internal/apperr"
	"github.com/washdeskhq/washdesk/internal/interfaces"
	"github.com/washdeskhq/washdesk/internal/models"
	"github.com/washdeskhq/washdesk/internal/services/orders"
)

// handleOrders handles /api/orders: POST creates, GET lists (role scoped).
func (s *Server) handleOrders(w http.ResponseWriter, r *http.Request) {
	caller := identity(r).User

	switch r.Method {
	case http.MethodPost:
		var req orders.CreateInput
		if !DecodeJSON(w, r, &req) {
			return
		}
		order, err := s.orders.Create(r.Context(), caller, &req)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, r, http.StatusCreated, map[string]interface{}{
			"message": "Order created successfully",
			"order":   order,
		})

	case http.MethodGet:
		opts := interfaces.OrderListOptions{
			Status: r.URL.Query().Get("status"),
		}
		if opts.Status != "" && !models.ValidOrderStatus(opts.Status) {
			WriteErrorMessage(w, apperr.ValidationFailed, http.StatusBadRequest, "Unknown status filter")
			return
		}
		if v := r.URL.Query().Get("customer_id"); v != "" && caller.IsStaff() {
			if id, ok := parseQueryID(v); ok {
				opts.CustomerID = id
			}
		}

		list, err := s.orders.List(r.Context(), caller, opts)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, r, http.StatusOK, map[string]interface{}{
			"orders": list,
			"count":  len(list),
		})

	default:
		RequireMethod(w, r, http.MethodPost, http.MethodGet)
	}
}

// routeOrders handles /api/orders/{id} and /api/orders/{id}/payments.
func (s *Server) routeOrders(w http.ResponseWriter, r *http.Request) {
	id, rest, ok := PathID(r, "/api/orders/")
	if !ok {
		WriteErrorMessage(w, apperr.RecordNotFound, http.StatusNotFound, "Not found")
		return
	}

	switch rest {
	case "":
		s.handleOrder(w, r, id)
	case "payments":
		s.handleOrderPayments(w, r, id)
	default:
		WriteErrorMessage(w, apperr.RecordNotFound, http.StatusNotFound, "Not found")
	}
}

// handleOrder handles GET and PATCH on a single order.
func (s *Server) handleOrder(w http.ResponseWriter, r *http.Request, id int64) {
	caller := identity(r).User

	switch r.Method {
	case http.MethodGet:
		order, err := s.orders.Get(r.Context(), caller, id)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, r, http.StatusOK, map[string]interface{}{"order": order})

	case http.MethodPatch:
		var req orders.UpdateInput
		if !DecodeJSON(w, r, &req) {
			return
		}
		order, err := s.orders.Update(r.Context(), caller, id, &req)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, r, http.StatusOK, map[string]interface{}{
			"message": "Order updated successfully",
			"order":   order,
		})

	default:
		RequireMethod(w, r, http.MethodGet, http.MethodPatch)
	}
}

// handleOrderPayments handles GET /api/orders/{id}/payments.
func (s *Server) handleOrderPayments(w http.ResponseWriter, r *http.Request, id int64) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	caller := identity(r).User

	// Scoping piggybacks on the order read: a caller who cannot see the
	// order cannot see its payments either.
	order, err := s.orders.Get(r.Context(), caller, id)
	if err != nil {
		WriteError(w, err)
		return
	}

	payments, err := s.storage.Payments().ListByOrder(r.Context(), order.ID)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, r, http.StatusOK, map[string]interface{}{
		"payments": payments,
		"count":    len(payments),
	})
}
