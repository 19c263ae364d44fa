package interfaces

import (
	"context"

	"github.com/washdeskhq/washdesk/internal/models"
)

// PaystackClient talks to the Paystack transaction API.
type PaystackClient interface {
	// Initialize creates a transaction and returns the hosted checkout target.
	Initialize(ctx context.Context, req *models.PaystackInitRequest) (*models.PaystackInitData, error)
	// Verify re-reads a transaction's authoritative state by reference.
	Verify(ctx context.Context, reference string) (*models.PaystackTransaction, error)
}
