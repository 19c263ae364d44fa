package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Customer is the client-facing profile attached 1:1 to a client-role User.
type Customer struct {
	ID                     int64           `json:"id"`
	UserID                 int64           `json:"user_id"`
	PhoneNumber            string          `json:"phone_number"`
	WhatsappNumber         string          `json:"whatsapp_number,omitempty"`
	Address                string          `json:"address,omitempty"`
	PreferredContactMethod string          `json:"preferred_contact_method,omitempty"`
	Notes                  string          `json:"notes,omitempty"`
	TotalOrders            int             `json:"total_orders"`
	TotalSpent             decimal.Decimal `json:"total_spent"`
	LastOrderDate          *time.Time      `json:"last_order_date,omitempty"`
	CreatedBy              *int64          `json:"created_by,omitempty"`
	CreatedAt              time.Time       `json:"created_at"`
	UpdatedAt              time.Time       `json:"updated_at"`
}

// Service is a catalog entry for a laundry service offering.
type Service struct {
	ID            int64           `json:"id"`
	Name          string          `json:"name"`
	Description   string          `json:"description,omitempty"`
	Price         decimal.Decimal `json:"price"`
	Unit          string          `json:"unit"`
	Category      string          `json:"category"`
	EstimatedDays int             `json:"estimated_days"`
	IsActive      bool            `json:"is_active"`
	CreatedBy     *int64          `json:"created_by,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}
