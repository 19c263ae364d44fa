// Package orders manages the order lifecycle: creation with priced line
// items, role-scoped reads, and status transitions.
package orders

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

const numberAttempts = 3

// Service implements order operations over storage.
type Service struct {
	storage interfaces.Storage
	logger  *common.Logger
}

// NewService builds an order service.
func NewService(storage interfaces.Storage, logger *common.Logger) *Service {
	return &Service{storage: storage, logger: logger}
}

// ItemInput is one requested line on a new order.
type ItemInput struct {
	ServiceID   int64  `json:"service_id"`
	Quantity    int    `json:"quantity"`
	Description string `json:"description"`
	Notes       string `json:"notes"`
}

// CreateInput is the payload for order creation.
type CreateInput struct {
	CustomerID          int64           `json:"customer_id"`
	Items               []ItemInput     `json:"items"`
	DiscountAmount      decimal.Decimal `json:"discount_amount"`
	DeliveryNotes       string          `json:"delivery_notes"`
	SpecialInstructions string          `json:"special_instructions"`
	PickupDate          *time.Time      `json:"pickup_date"`
	DeliveryDate        *time.Time      `json:"delivery_date"`
}

// Create prices the requested items against the active catalog, derives the
// order total, and persists the order together with the customer's updated
// aggregates in one transaction. Clients create orders for themselves; staff
// name the customer explicitly.
func (s *Service) Create(ctx context.Context, user *models.User, input *CreateInput) (*models.Order, error) {
	customerID := input.CustomerID
	if user.Role == models.RoleClient {
		customer, err := s.storage.Customers().GetByUserID(ctx, user.ID)
		if err != nil {
			if errors.Is(err, common.ErrNotFound) {
				return nil, apperr.New(apperr.CustomerNotFound, http.StatusNotFound, "No customer profile found for this account")
			}
			return nil, err
		}
		customerID = customer.ID
	}
	if customerID == 0 {
		return nil, apperr.New(apperr.MissingFields, http.StatusBadRequest, "customer_id is required")
	}
	if len(input.Items) == 0 {
		return nil, apperr.New(apperr.ValidationFailed, http.StatusBadRequest, "An order needs at least one item")
	}
	if input.DiscountAmount.IsNegative() {
		return nil, apperr.New(apperr.ValidationFailed, http.StatusBadRequest, "Discount cannot be negative")
	}

	var order *models.Order
	err := s.storage.WithTx(ctx, func(ctx context.Context, store interfaces.Storage) error {
		customer, err := store.Customers().GetByID(ctx, customerID)
		if err != nil {
			if errors.Is(err, common.ErrNotFound) {
				return apperr.New(apperr.CustomerNotFound, http.StatusNotFound, "Customer not found")
			}
			return err
		}

		items, total, maxDays, err := s.priceItems(ctx, store, input.Items)
		if err != nil {
			return err
		}
		total = total.Sub(input.DiscountAmount)
		if total.IsNegative() {
			return apperr.New(apperr.ValidationFailed, http.StatusBadRequest, "Discount exceeds order total")
		}

		var estimated *time.Time
		if maxDays > 0 {
			d := time.Now().UTC().AddDate(0, 0, maxDays)
			estimated = &d
		}
		order = &models.Order{
			CustomerID:              customer.ID,
			OrderStatus:             models.OrderPending,
			PaymentStatus:           models.PaymentStatusPending,
			TotalAmount:             total,
			AmountPaid:              decimal.Zero,
			DiscountAmount:          input.DiscountAmount,
			DeliveryNotes:           input.DeliveryNotes,
			SpecialInstructions:     input.SpecialInstructions,
			PickupDate:              input.PickupDate,
			DeliveryDate:            input.DeliveryDate,
			EstimatedCompletionDate: estimated,
			CreatedBy:               &user.ID,
			Items:                   items,
		}
		if err := s.createWithNumber(ctx, store, order); err != nil {
			return err
		}

		now := time.Now().UTC()
		customer.TotalOrders++
		customer.LastOrderDate = &now
		return store.Customers().Update(ctx, customer)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("order_number", order.OrderNumber).
		Int64("customer_id", order.CustomerID).
		Str("total", order.TotalAmount.StringFixed(2)).
		Msg("order created")
	return order, nil
}

// priceItems resolves each requested item against the catalog. Prices come
// from the catalog row, never from the request. The returned day count is
// the slowest item's estimate, driving the completion date.
func (s *Service) priceItems(ctx context.Context, store interfaces.Storage, inputs []ItemInput) ([]*models.OrderItem, decimal.Decimal, int, error) {
	items := make([]*models.OrderItem, 0, len(inputs))
	total := decimal.Zero
	maxDays := 0
	for _, in := range inputs {
		if in.Quantity <= 0 {
			return nil, decimal.Zero, 0, apperr.New(apperr.ValidationFailed, http.StatusBadRequest, "Item quantity must be at least 1")
		}
		svc, err := store.Services().GetByID(ctx, in.ServiceID)
		if err != nil {
			if errors.Is(err, common.ErrNotFound) {
				return nil, decimal.Zero, 0, apperr.Newf(apperr.RecordNotFound, http.StatusNotFound, "Service %d not found", in.ServiceID)
			}
			return nil, decimal.Zero, 0, err
		}
		if !svc.IsActive {
			return nil, decimal.Zero, 0, apperr.Newf(apperr.ValidationFailed, http.StatusBadRequest, "Service %q is not available", svc.Name)
		}
		item := &models.OrderItem{
			ServiceID:   svc.ID,
			ItemName:    svc.Name,
			Description: in.Description,
			Quantity:    in.Quantity,
			UnitPrice:   svc.Price,
			Notes:       in.Notes,
		}
		item.Subtotal = item.ComputeSubtotal()
		items = append(items, item)
		total = total.Add(item.Subtotal)
		if svc.EstimatedDays > maxDays {
			maxDays = svc.EstimatedDays
		}
	}
	return items, total, maxDays, nil
}

// createWithNumber assigns an order number and persists, retrying the random
// suffix on collision.
func (s *Service) createWithNumber(ctx context.Context, store interfaces.Storage, order *models.Order) error {
	for attempt := 0; attempt < numberAttempts; attempt++ {
		order.OrderNumber = newOrderNumber(time.Now())
		err := store.Orders().Create(ctx, order)
		if err == nil {
			return nil
		}
		if !errors.Is(err, common.ErrDuplicate) {
			return err
		}
	}
	return apperr.New(apperr.ServerError, http.StatusInternalServerError, "Could not allocate an order number")
}

// newOrderNumber builds ORD-YYYYMMDD-XXXX with a random hex suffix.
func newOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:4]
	return fmt.Sprintf("ORD-%s-%s", now.UTC().Format("20060102"), suffix)
}

// Get returns one order. Clients can only read their own.
func (s *Service) Get(ctx context.Context, user *models.User, id int64) (*models.Order, error) {
	order, err := s.storage.Orders().GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, apperr.New(apperr.OrderNotFound, http.StatusNotFound, "Order not found")
		}
		return nil, err
	}
	if user.Role == models.RoleClient {
		customer, err := s.storage.Customers().GetByUserID(ctx, user.ID)
		if err != nil || customer.ID != order.CustomerID {
			return nil, apperr.New(apperr.OrderNotFound, http.StatusNotFound, "Order not found")
		}
	}
	return order, nil
}

// List returns orders visible to the caller. Client listings are forced to
// their own customer id regardless of the requested filter.
func (s *Service) List(ctx context.Context, user *models.User, opts interfaces.OrderListOptions) ([]*models.Order, error) {
	if user.Role == models.RoleClient {
		customer, err := s.storage.Customers().GetByUserID(ctx, user.ID)
		if err != nil {
			if errors.Is(err, common.ErrNotFound) {
				return nil, apperr.New(apperr.CustomerNotFound, http.StatusNotFound, "No customer profile found for this account")
			}
			return nil, err
		}
		opts.CustomerID = customer.ID
	}
	return s.storage.Orders().List(ctx, opts)
}

// UpdateInput carries staff-editable order fields.
type UpdateInput struct {
	OrderStatus         *string    `json:"order_status"`
	AssignedTo          *int64     `json:"assigned_to"`
	DeliveryNotes       *string    `json:"delivery_notes"`
	SpecialInstructions *string    `json:"special_instructions"`
	PickupDate          *time.Time `json:"pickup_date"`
	DeliveryDate        *time.Time `json:"delivery_date"`
}

// Update applies staff edits. A transition to completed stamps completed_at
// and rolls the delivered total into the customer's lifetime spend.
func (s *Service) Update(ctx context.Context, user *models.User, id int64, input *UpdateInput) (*models.Order, error) {
	if !user.IsStaff() {
		return nil, apperr.New(apperr.PermissionDenied, http.StatusForbidden, "Only staff can update orders")
	}

	var updated *models.Order
	err := s.storage.WithTx(ctx, func(ctx context.Context, store interfaces.Storage) error {
		order, err := store.Orders().GetForUpdate(ctx, id)
		if err != nil {
			if errors.Is(err, common.ErrNotFound) {
				return apperr.New(apperr.OrderNotFound, http.StatusNotFound, "Order not found")
			}
			return err
		}

		completing := false
		if input.OrderStatus != nil && *input.OrderStatus != order.OrderStatus {
			if !models.ValidOrderStatus(*input.OrderStatus) {
				return apperr.Newf(apperr.ValidationFailed, http.StatusBadRequest, "Unknown order status %q", *input.OrderStatus)
			}
			if order.OrderStatus == models.OrderCompleted || order.OrderStatus == models.OrderCancelled {
				return apperr.Newf(apperr.ValidationFailed, http.StatusBadRequest, "Order is already %s", order.OrderStatus)
			}
			completing = *input.OrderStatus == models.OrderCompleted
			order.OrderStatus = *input.OrderStatus
		}
		if input.AssignedTo != nil {
			order.AssignedTo = input.AssignedTo
		}
		if input.DeliveryNotes != nil {
			order.DeliveryNotes = *input.DeliveryNotes
		}
		if input.SpecialInstructions != nil {
			order.SpecialInstructions = *input.SpecialInstructions
		}
		if input.PickupDate != nil {
			order.PickupDate = input.PickupDate
		}
		if input.DeliveryDate != nil {
			order.DeliveryDate = input.DeliveryDate
		}

		if completing {
			now := time.Now().UTC()
			order.CompletedAt = &now

			customer, err := store.Customers().GetByID(ctx, order.CustomerID)
			if err != nil {
				return err
			}
			customer.TotalSpent = customer.TotalSpent.Add(order.TotalAmount)
			if err := store.Customers().Update(ctx, customer); err != nil {
				return err
			}
		}

		if err := store.Orders().Update(ctx, order); err != nil {
			return err
		}
		updated = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}
