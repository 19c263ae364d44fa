package server

import (
	"net/http"
	"runtime"

	"github.com/washdeskhq/washdesk/internal/common"
)

// registerRoutes sets up all REST API routes on the mux.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	// System
	mux.HandleFunc("/api/health", s.handleHealth)

	// Auth
	mux.HandleFunc("/api/auth/login", s.handleAuthLogin)
	mux.HandleFunc("/api/auth/logout", s.handleAuthLogout)
	mux.HandleFunc("/api/auth/refresh", s.handleAuthRefresh)
	mux.HandleFunc("/api/auth/password", s.handleChangePassword)

	// Users
	mux.HandleFunc("/api/users/me", s.handleUserSelfUpdate)
	mux.HandleFunc("/api/users/", s.routeUsers)
	mux.HandleFunc("/api/users", s.handleUsers)

	// Customers
	mux.HandleFunc("/api/customers/register", s.handleCustomerRegister)
	mux.HandleFunc("/api/customers/", s.routeCustomers)
	mux.HandleFunc("/api/customers", s.handleCustomers)

	// Service catalog
	mux.HandleFunc("/api/services/", s.routeServices)
	mux.HandleFunc("/api/services", s.handleServices)

	// Orders
	mux.HandleFunc("/api/orders/", s.routeOrders)
	mux.HandleFunc("/api/orders", s.handleOrders)

	// Payments
	mux.HandleFunc("/api/payments/initialize", s.handlePaymentInitialize)
	mux.HandleFunc("/api/payments/callback", s.handlePaymentCallback)

	// Dashboard
	mux.HandleFunc("/api/dashboard/metrics", s.handleDashboardMetrics)
}

// handleHealth handles GET /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	WriteJSON(w, r, http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"environment": s.config.Environment,
		"go_version":  runtime.Version(),
		"version":     common.Version,
	})
}
