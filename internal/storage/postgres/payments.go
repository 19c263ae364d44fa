package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/washdeskhq/washdesk/internal/common"
	"github.com/washdeskhq/washdesk/internal/dbx"
	"github.com/washdeskhq/washdesk/internal/models"
)

type paymentStore struct {
	q dbx.DBTX
}

const paymentColumns = `id, order_id, reference, amount, status, payment_method, transaction_id,
	payer_phone, currency, fees, metadata, verified_at, created_by, created_at, updated_at`

func scanPayment(row interface{ Scan(...any) error }) (*models.Payment, error) {
	p := &models.Payment{}
	var metadata []byte
	err := row.Scan(&p.ID, &p.OrderID, &p.Reference, &p.Amount, &p.Status,
		&p.PaymentMethod, &p.TransactionID, &p.PayerPhone, &p.Currency, &p.Fees,
		&metadata, &p.VerifiedAt, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &p.Metadata); err != nil {
			return nil, fmt.Errorf("metadata decode error: %w", err)
		}
	}
	return p, nil
}

func marshalMetadata(m map[string]string) ([]byte, error) {
	if m == nil {
		return []byte(`{}`), nil
	}
	return json.Marshal(m)
}

func (s *paymentStore) Create(ctx context.Context, payment *models.Payment) error {
	metadata, err := marshalMetadata(payment.Metadata)
	if err != nil {
		return fmt.Errorf("metadata encode error: %w", err)
	}
	query := `
		INSERT INTO payments (order_id, reference, amount, status, payment_method,
			transaction_id, payer_phone, currency, fees, metadata, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at, updated_at
	`
	err = s.q.QueryRowContext(ctx, query,
		payment.OrderID, payment.Reference, payment.Amount, payment.Status,
		payment.PaymentMethod, payment.TransactionID, payment.PayerPhone,
		payment.Currency, payment.Fees, metadata, payment.CreatedBy,
	).Scan(&payment.ID, &payment.CreatedAt, &payment.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return common.ErrDuplicate
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (s *paymentStore) GetByReference(ctx context.Context, reference string) (*models.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE reference = $1`
	return scanPayment(s.q.QueryRowContext(ctx, query, reference))
}

func (s *paymentStore) Update(ctx context.Context, payment *models.Payment) error {
	metadata, err := marshalMetadata(payment.Metadata)
	if err != nil {
		return fmt.Errorf("metadata encode error: %w", err)
	}
	query := `
		UPDATE payments
		SET status = $2, transaction_id = $3, currency = $4, fees = $5,
		    metadata = $6, verified_at = $7, updated_at = now()
		WHERE id = $1
	`
	res, err := s.q.ExecContext(ctx, query,
		payment.ID, payment.Status, payment.TransactionID, payment.Currency,
		payment.Fees, metadata, payment.VerifiedAt,
	)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (s *paymentStore) ListByOrder(ctx context.Context, orderID int64) ([]*models.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE order_id = $1 ORDER BY created_at DESC`
	rows, err := s.q.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var payments []*models.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func (s *paymentStore) SuccessfulAmounts(ctx context.Context, orderID int64) ([]decimal.Decimal, error) {
	query := `SELECT amount FROM payments WHERE order_id = $1 AND status = $2 ORDER BY id`
	rows, err := s.q.QueryContext(ctx, query, orderID, models.PaymentSuccess)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var amounts []decimal.Decimal
	for rows.Next() {
		var a decimal.Decimal
		if err := rows.Scan(&a); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		amounts = append(amounts, a)
	}
	return amounts, rows.Err()
}
