package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Payment statuses. Transitions are one-directional: a payment leaves
// pending exactly once and is immutable afterwards.
const (
	PaymentPending   = "pending"
	PaymentSuccess   = "success"
	PaymentFailed    = "failed"
	PaymentAbandoned = "abandoned"
)

// Payment methods.
const (
	MethodPaystack     = "paystack"
	MethodCash         = "cash"
	MethodBankTransfer = "bank_transfer"
	MethodUSSD         = "ussd"
)

// Payment is one attempt to collect money against an order.
type Payment struct {
	ID            int64             `json:"id"`
	OrderID       int64             `json:"order_id"`
	Reference     string            `json:"reference"`
	Amount        decimal.Decimal   `json:"amount"`
	Status        string            `json:"status"`
	PaymentMethod string            `json:"payment_method"`
	TransactionID string            `json:"transaction_id,omitempty"`
	PayerPhone    string            `json:"payer_phone,omitempty"`
	Currency      string            `json:"currency"`
	Fees          decimal.Decimal   `json:"fees"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	VerifiedAt    *time.Time        `json:"verified_at,omitempty"`
	CreatedBy     *int64            `json:"created_by,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// Terminal reports whether the payment has left the pending state.
func (p *Payment) Terminal() bool {
	return p.Status != PaymentPending
}

// RevokedToken records a refresh credential that must never again be honored.
// Rows are appended on logout and on rotation, never deleted.
type RevokedToken struct {
	ID        int64     `json:"id"`
	JTI       string    `json:"jti"`
	UserID    int64     `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
	RevokedAt time.Time `json:"revoked_at"`
}
