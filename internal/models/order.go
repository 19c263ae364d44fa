package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order lifecycle statuses.
const (
	OrderPending    = "pending"
	OrderInProgress = "in_progress"
	OrderReady      = "ready"
	OrderCompleted  = "completed"
	OrderCancelled  = "cancelled"
)

// Payment statuses derived from the order balance.
const (
	PaymentStatusPending       = "pending"
	PaymentStatusPartiallyPaid = "partially_paid"
	PaymentStatusPaid          = "paid"
)

// Order is one laundry order placed by a customer.
type Order struct {
	ID                      int64           `json:"id"`
	OrderNumber             string          `json:"order_number"`
	CustomerID              int64           `json:"customer_id"`
	AssignedTo              *int64          `json:"assigned_to,omitempty"`
	OrderStatus             string          `json:"order_status"`
	PaymentStatus           string          `json:"payment_status"`
	TotalAmount             decimal.Decimal `json:"total_amount"`
	AmountPaid              decimal.Decimal `json:"amount_paid"`
	DiscountAmount          decimal.Decimal `json:"discount_amount"`
	DeliveryNotes           string          `json:"delivery_notes,omitempty"`
	SpecialInstructions     string          `json:"special_instructions,omitempty"`
	PickupDate              *time.Time      `json:"pickup_date,omitempty"`
	DeliveryDate            *time.Time      `json:"delivery_date,omitempty"`
	EstimatedCompletionDate *time.Time      `json:"estimated_completion_date,omitempty"`
	CompletedAt             *time.Time      `json:"completed_at,omitempty"`
	CreatedBy               *int64          `json:"created_by,omitempty"`
	CreatedAt               time.Time       `json:"created_at"`
	UpdatedAt               time.Time       `json:"updated_at"`

	Items []*OrderItem `json:"items,omitempty"`
}

// OutstandingBalance returns total_amount minus amount_paid.
func (o *Order) OutstandingBalance() decimal.Decimal {
	return o.TotalAmount.Sub(o.AmountPaid)
}

// OrderItem is one line on an order, priced against a catalog service.
type OrderItem struct {
	ID          int64           `json:"id"`
	OrderID     int64           `json:"order_id"`
	ServiceID   int64           `json:"service_id"`
	ItemName    string          `json:"item_name"`
	Description string          `json:"description,omitempty"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	Notes       string          `json:"notes,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// ComputeSubtotal derives the line subtotal from quantity and unit price.
func (i *OrderItem) ComputeSubtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// ValidOrderStatus reports whether status is a known order status.
func ValidOrderStatus(status string) bool {
	switch status {
	case OrderPending, OrderInProgress, OrderReady, OrderCompleted, OrderCancelled:
		return true
	}
	return false
}

// OrderBalance derives an order's paid amount and payment status from the
// amounts of its successful payments. The paid amount is clamped so it never
// exceeds the order total, which makes the derivation idempotent under
// callback replay: summing persisted successful payments is a pure function
// of storage state.
func OrderBalance(total decimal.Decimal, successAmounts []decimal.Decimal) (decimal.Decimal, string) {
	sum := decimal.Zero
	for _, a := range successAmounts {
		sum = sum.Add(a)
	}
	paid := decimal.Min(sum, total)

	switch {
	case paid.GreaterThanOrEqual(total) && total.IsPositive():
		return paid, PaymentStatusPaid
	case paid.IsPositive():
		return paid, PaymentStatusPartiallyPaid
	default:
		return paid, PaymentStatusPending
	}
}
