// Package payments bridges orders to the Paystack gateway: it creates payment
// intents and reconciles order balances from verified gateway callbacks.
package payments

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/washdeskhq/washdesk/internal/apperr"
	"github.com/washdeskhq/washdesk/internal/common"
	"github.com/washdeskhq/washdesk/internal/interfaces"
	"github.com/washdeskhq/washdesk/internal/models"
)

// referenceAttempts bounds retries on a reference collision. The random
// suffix makes a collision vanishingly rare; three attempts covers it.
const referenceAttempts = 3

// amountTolerance absorbs minor-currency rounding between the persisted
// intent amount and the gateway-reported amount.
var amountTolerance = decimal.New(1, -2) // 0.01

// minorUnits is the subunit scale of the settlement currency (pesewas).
var minorUnits = decimal.NewFromInt(100)

// Service initializes payment intents and reconciles gateway callbacks.
type Service struct {
	storage     interfaces.Storage
	gateway     interfaces.PaystackClient
	callbackURL string
	logger      *common.Logger
}

// NewService builds a payment service.
func NewService(storage interfaces.Storage, gateway interfaces.PaystackClient, callbackURL string, logger *common.Logger) *Service {
	return &Service{
		storage:     storage,
		gateway:     gateway,
		callbackURL: callbackURL,
		logger:      logger,
	}
}

// InitializeResult is returned to the client so it can redirect the payer
// to the hosted checkout page.
type InitializeResult struct {
	Payment          *models.Payment `json:"payment"`
	AuthorizationURL string          `json:"authorization_url"`
	AccessCode       string          `json:"access_code"`
	Reference        string          `json:"reference"`
}

// Initialize validates the request against the order's balance, persists a
// pending intent, and asks the gateway for an authorization URL. The intent
// row is written before the gateway call so a crash mid-call still leaves an
// auditable record; a gateway failure marks it failed, never deletes it.
func (s *Service) Initialize(ctx context.Context, user *models.User, orderID int64, amount decimal.Decimal) (*InitializeResult, error) {
	if user.Role != models.RoleClient {
		return nil, apperr.New(apperr.PermissionDenied, http.StatusForbidden, "Only clients can initialize payments")
	}

	customer, err := s.storage.Customers().GetByUserID(ctx, user.ID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, apperr.New(apperr.CustomerNotFound, http.StatusNotFound, "No customer profile found for this account")
		}
		return nil, err
	}

	order, err := s.storage.Orders().GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, apperr.New(apperr.OrderNotFound, http.StatusNotFound, "Order not found")
		}
		return nil, err
	}
	if order.CustomerID != customer.ID {
		return nil, apperr.New(apperr.PermissionDenied, http.StatusForbidden, "You can only pay for your own orders")
	}
	if order.PaymentStatus == models.PaymentStatusPaid {
		return nil, apperr.New(apperr.OrderAlreadyPaid, http.StatusBadRequest, "This order is already fully paid")
	}

	outstanding := order.OutstandingBalance()
	if !outstanding.IsPositive() {
		return nil, apperr.New(apperr.NoAmountDue, http.StatusBadRequest, "No outstanding balance on this order")
	}
	if !amount.IsPositive() {
		return nil, apperr.New(apperr.InvalidAmount, http.StatusBadRequest, "Payment amount must be greater than zero")
	}
	if amount.GreaterThan(outstanding) {
		return nil, apperr.Newf(apperr.AmountExceedsBalance, http.StatusBadRequest,
			"Payment amount %s exceeds outstanding balance %s", amount.StringFixed(2), outstanding.StringFixed(2))
	}
	if user.Email == "" {
		return nil, apperr.New(apperr.EmailNotFound, http.StatusBadRequest, "An email address is required to initialize payment")
	}

	payment, err := s.createIntent(ctx, order, user, amount)
	if err != nil {
		return nil, err
	}

	initData, err := s.gateway.Initialize(ctx, &models.PaystackInitRequest{
		Email:       user.Email,
		Amount:      amount.Mul(minorUnits).IntPart(),
		Reference:   payment.Reference,
		CallbackURL: s.callbackURL,
		Metadata: map[string]string{
			"order_id":     fmt.Sprintf("%d", order.ID),
			"order_number": order.OrderNumber,
			"customer_id":  fmt.Sprintf("%d", customer.ID),
		},
	})
	if err != nil {
		s.logger.Error().Err(err).
			Str("reference", payment.Reference).
			Int64("order_id", order.ID).
			Msg("gateway initialization failed")

		payment.Status = models.PaymentFailed
		if payment.Metadata == nil {
			payment.Metadata = make(map[string]string)
		}
		payment.Metadata["error"] = err.Error()
		if updateErr := s.storage.Payments().Update(ctx, payment); updateErr != nil {
			s.logger.Error().Err(updateErr).Str("reference", payment.Reference).Msg("failed to mark intent failed")
		}
		return nil, apperr.New(apperr.GatewayError, http.StatusBadGateway, "Payment gateway initialization failed")
	}

	s.logger.Info().
		Str("reference", payment.Reference).
		Int64("order_id", order.ID).
		Str("amount", amount.StringFixed(2)).
		Msg("payment intent initialized")

	return &InitializeResult{
		Payment:          payment,
		AuthorizationURL: initData.AuthorizationURL,
		AccessCode:       initData.AccessCode,
		Reference:        payment.Reference,
	}, nil
}

// createIntent persists a pending intent, retrying the reference on the
// off chance of a collision with an existing row.
func (s *Service) createIntent(ctx context.Context, order *models.Order, user *models.User, amount decimal.Decimal) (*models.Payment, error) {
	for attempt := 0; attempt < referenceAttempts; attempt++ {
		payment := &models.Payment{
			OrderID:       order.ID,
			Reference:     newReference(order.ID),
			Amount:        amount,
			Status:        models.PaymentPending,
			PaymentMethod: models.MethodPaystack,
			Currency:      "GHS",
			CreatedBy:     &user.ID,
		}
		err := s.storage.Payments().Create(ctx, payment)
		if err == nil {
			return payment, nil
		}
		if !errors.Is(err, common.ErrDuplicate) {
			return nil, err
		}
	}
	return nil, apperr.New(apperr.ServerError, http.StatusInternalServerError, "Could not allocate a payment reference")
}

// newReference builds a gateway reference of the form PAY-{orderID}-{12 hex}.
func newReference(orderID int64) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:12]
	return fmt.Sprintf("PAY-%d-%s", orderID, suffix)
}

// CallbackResult is what the confirmation page renders after reconciliation.
type CallbackResult struct {
	Success bool
	Message string
	OrderID int64
}

// HandleCallback re-verifies the transaction with the gateway and reconciles
// the intent and its order. The callback carries nothing trustworthy beyond
// the reference, so every fact is re-derived from the verify endpoint. The
// whole reconcile runs in one transaction with the order row locked so a
// replayed or concurrent callback re-derives the same aggregate instead of
// double-counting.
func (s *Service) HandleCallback(ctx context.Context, reference string) (*CallbackResult, error) {
	if reference == "" {
		return nil, apperr.New(apperr.MissingFields, http.StatusBadRequest, "Missing payment reference")
	}

	tx, err := s.gateway.Verify(ctx, reference)
	if err != nil {
		s.logger.Error().Err(err).Str("reference", reference).Msg("gateway verification failed")
		return nil, apperr.New(apperr.GatewayError, http.StatusBadGateway, "Payment verification failed")
	}

	var result *CallbackResult
	var mismatchErr error
	err = s.storage.WithTx(ctx, func(ctx context.Context, store interfaces.Storage) error {
		payment, err := store.Payments().GetByReference(ctx, reference)
		if err != nil {
			if errors.Is(err, common.ErrNotFound) {
				return apperr.New(apperr.RecordNotFound, http.StatusNotFound, "No payment record matches this reference")
			}
			return err
		}

		order, err := store.Orders().GetForUpdate(ctx, payment.OrderID)
		if err != nil {
			return err
		}

		result = &CallbackResult{OrderID: order.ID}

		reported := decimal.NewFromInt(tx.Amount).Div(minorUnits)
		if reported.Sub(payment.Amount).Abs().GreaterThan(amountTolerance) {
			if payment.Status == models.PaymentPending {
				payment.Status = models.PaymentFailed
				if payment.Metadata == nil {
					payment.Metadata = make(map[string]string)
				}
				payment.Metadata["amount_mismatch"] = fmt.Sprintf("expected %s, gateway reported %s",
					payment.Amount.StringFixed(2), reported.StringFixed(2))
				if err := store.Payments().Update(ctx, payment); err != nil {
					return err
				}
			}
			s.logger.Warn().
				Str("reference", reference).
				Str("expected", payment.Amount.StringFixed(2)).
				Str("reported", reported.StringFixed(2)).
				Msg("payment amount mismatch")
			result.Message = "Payment amount did not match the expected amount"
			// Returning an error would roll back the failed mark, so the
			// mismatch is surfaced after the transaction commits.
			mismatchErr = apperr.New(apperr.AmountMismatch, http.StatusBadRequest, result.Message)
			return nil
		}

		if tx.Status != "success" {
			if payment.Status == models.PaymentPending {
				payment.Status = models.PaymentFailed
				if payment.Metadata == nil {
					payment.Metadata = make(map[string]string)
				}
				payment.Metadata["gateway_status"] = tx.Status
				payment.Metadata["gateway_response"] = tx.GatewayResponse
				if err := store.Payments().Update(ctx, payment); err != nil {
					return err
				}
			}
			result.Message = "Payment was not successful"
			return nil
		}

		if payment.Status == models.PaymentPending {
			now := time.Now().UTC()
			payment.Status = models.PaymentSuccess
			payment.TransactionID = fmt.Sprintf("%d", tx.ID)
			payment.Fees = decimal.NewFromInt(tx.Fees).Div(minorUnits)
			payment.VerifiedAt = &now
			if tx.Currency != "" {
				payment.Currency = tx.Currency
			}
			if payment.Metadata == nil {
				payment.Metadata = make(map[string]string)
			}
			payment.Metadata["channel"] = tx.Channel
			if err := store.Payments().Update(ctx, payment); err != nil {
				return err
			}
		}

		amounts, err := store.Payments().SuccessfulAmounts(ctx, order.ID)
		if err != nil {
			return err
		}
		order.AmountPaid, order.PaymentStatus = models.OrderBalance(order.TotalAmount, amounts)
		if err := store.Orders().Update(ctx, order); err != nil {
			return err
		}

		result.Success = true
		result.Message = "Payment verified successfully"
		return nil
	})
	if err != nil {
		return result, err
	}
	if mismatchErr != nil {
		return result, mismatchErr
	}

	s.logger.Info().
		Str("reference", reference).
		Bool("success", result.Success).
		Int64("order_id", result.OrderID).
		Msg("payment callback reconciled")
	return result, nil
}
