// Package interfaces defines service contracts for Washdesk
package interfaces

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/washdeskhq/washdesk/internal/models"
)

// Storage vends per-entity stores. WithTx runs fn against stores bound to a
// single database transaction; callers use it wherever a read-modify-write
// must be atomic (order balance recompute, revocation check + token issue).
type Storage interface {
	Users() UserStore
	Customers() CustomerStore
	Services() ServiceStore
	Orders() OrderStore
	Payments() PaymentStore
	Tokens() TokenStore

	WithTx(ctx context.Context, fn func(ctx context.Context, tx Storage) error) error
	Close() error
}

// UserStore manages user accounts.
type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id int64) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Update(ctx context.Context, user *models.User) error
	List(ctx context.Context, role string) ([]*models.User, error)
}

// CustomerStore manages customer profiles.
type CustomerStore interface {
	Create(ctx context.Context, customer *models.Customer) error
	GetByID(ctx context.Context, id int64) (*models.Customer, error)
	GetByUserID(ctx context.Context, userID int64) (*models.Customer, error)
	Update(ctx context.Context, customer *models.Customer) error
	List(ctx context.Context) ([]*models.Customer, error)
}

// ServiceStore manages the service catalog.
type ServiceStore interface {
	Create(ctx context.Context, service *models.Service) error
	GetByID(ctx context.Context, id int64) (*models.Service, error)
	Update(ctx context.Context, service *models.Service) error
	List(ctx context.Context, activeOnly bool) ([]*models.Service, error)
}

// OrderListOptions filters order listings.
type OrderListOptions struct {
	CustomerID int64  // 0 = all customers
	Status     string // "" = all statuses
}

// OrderStore manages orders and their items.
type OrderStore interface {
	Create(ctx context.Context, order *models.Order) error
	GetByID(ctx context.Context, id int64) (*models.Order, error)
	// GetForUpdate reads the order holding a row lock for the duration of the
	// enclosing transaction. Outside a transaction it is a plain read.
	GetForUpdate(ctx context.Context, id int64) (*models.Order, error)
	Update(ctx context.Context, order *models.Order) error
	List(ctx context.Context, opts OrderListOptions) ([]*models.Order, error)
}

// PaymentStore manages payment records.
type PaymentStore interface {
	// Create persists a payment; a reference collision returns common.ErrDuplicate.
	Create(ctx context.Context, payment *models.Payment) error
	GetByReference(ctx context.Context, reference string) (*models.Payment, error)
	Update(ctx context.Context, payment *models.Payment) error
	ListByOrder(ctx context.Context, orderID int64) ([]*models.Payment, error)
	// SuccessfulAmounts returns the amounts of all successful payments for an order.
	SuccessfulAmounts(ctx context.Context, orderID int64) ([]decimal.Decimal, error)
}

// TokenStore is the append-only refresh-credential revocation set.
type TokenStore interface {
	// Revoke records a refresh credential's jti. Revoking an already revoked
	// jti is a no-op.
	Revoke(ctx context.Context, token *models.RevokedToken) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}
