package server

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/washdeskhq/washdesk/internal/apperr"
)

// handlePaymentInitialize handles POST /api/payments/initialize.
func (s *Server) handlePaymentInitialize(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req struct {
		OrderID int64           `json:"order_id"`
		Amount  decimal.Decimal `json:"amount"`
	}
	if !DecodeJSON(w, r, &req) {
		return
	}
	if req.OrderID <= 0 {
		WriteErrorMessage(w, apperr.MissingFields, http.StatusBadRequest, "order_id is required")
		return
	}

	result, err := s.payments.Initialize(r.Context(), identity(r).User, req.OrderID, req.Amount)
	if err != nil {
		WriteError(w, err)
		return
	}

	WriteJSON(w, r, http.StatusOK, map[string]interface{}{
		"message":           "Payment initialized successfully",
		"authorization_url": result.AuthorizationURL,
		"access_code":       result.AccessCode,
		"reference":         result.Reference,
		"payment_id":        result.Payment.ID,
		"payment":           result.Payment,
	})
}

// handlePaymentCallback handles GET /api/payments/callback?reference=…
// The gateway redirects the payer's browser here, so the response is a
// rendered confirmation page, not JSON. The reference is the only input
// trusted from the query string.
func (s *Server) handlePaymentCallback(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	reference := r.URL.Query().Get("reference")
	if reference == "" {
		reference = r.URL.Query().Get("trxref")
	}

	result, err := s.payments.HandleCallback(r.Context(), reference)

	page := map[string]interface{}{
		"Success": false,
		"Message": "Payment verification failed",
		"OrderID": int64(0),
	}
	if result != nil {
		page["Success"] = result.Success
		page["OrderID"] = result.OrderID
		if result.Message != "" {
			page["Message"] = result.Message
		}
	}
	if err != nil && result == nil {
		page["Message"] = apperr.From(err).Message
	}

	s.renderTemplate(w, "payment_callback.html", page)
}
