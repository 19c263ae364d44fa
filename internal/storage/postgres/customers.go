package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/washdeskhq/washdesk/internal/common"
	"github.com/washdeskhq/washdesk/internal/dbx"
	"github.com/washdeskhq/washdesk/internal/models"
)

type customerStore struct {
	q dbx.DBTX
}

const customerColumns = `id, user_id, phone_number, whatsapp_number, address, preferred_contact_method,
	notes, total_orders, total_spent, last_order_date, created_by, created_at, updated_at`

func scanCustomer(row interface{ Scan(...any) error }) (*models.Customer, error) {
	c := &models.Customer{}
	err := row.Scan(&c.ID, &c.UserID, &c.PhoneNumber, &c.WhatsappNumber, &c.Address,
		&c.PreferredContactMethod, &c.Notes, &c.TotalOrders, &c.TotalSpent,
		&c.LastOrderDate, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return c, nil
}

func (s *customerStore) Create(ctx context.Context, customer *models.Customer) error {
	query := `
		INSERT INTO customers (user_id, phone_number, whatsapp_number, address,
			preferred_contact_method, notes, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`
	err := s.q.QueryRowContext(ctx, query,
		customer.UserID, customer.PhoneNumber, customer.WhatsappNumber, customer.Address,
		customer.PreferredContactMethod, customer.Notes, customer.CreatedBy,
	).Scan(&customer.ID, &customer.CreatedAt, &customer.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return common.ErrDuplicate
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (s *customerStore) GetByID(ctx context.Context, id int64) (*models.Customer, error) {
	query := `SELECT ` + customerColumns + ` FROM customers WHERE id = $1`
	return scanCustomer(s.q.QueryRowContext(ctx, query, id))
}

func (s *customerStore) GetByUserID(ctx context.Context, userID int64) (*models.Customer, error) {
	query := `SELECT ` + customerColumns + ` FROM customers WHERE user_id = $1`
	return scanCustomer(s.q.QueryRowContext(ctx, query, userID))
}

func (s *customerStore) Update(ctx context.Context, customer *models.Customer) error {
	query := `
		UPDATE customers
		SET phone_number = $2, whatsapp_number = $3, address = $4,
		    preferred_contact_method = $5, notes = $6, total_orders = $7,
		    total_spent = $8, last_order_date = $9, updated_at = now()
		WHERE id = $1
	`
	res, err := s.q.ExecContext(ctx, query,
		customer.ID, customer.PhoneNumber, customer.WhatsappNumber, customer.Address,
		customer.PreferredContactMethod, customer.Notes, customer.TotalOrders,
		customer.TotalSpent, customer.LastOrderDate,
	)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (s *customerStore) List(ctx context.Context) ([]*models.Customer, error) {
	query := `SELECT ` + customerColumns + ` FROM customers ORDER BY created_at DESC`
	rows, err := s.q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var customers []*models.Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	return customers, rows.Err()
}
