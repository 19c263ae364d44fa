package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/washdeskhq/washdesk/internal/common"
	"github.com/washdeskhq/washdesk/internal/dbx"
	"github.com/washdeskhq/washdesk/internal/interfaces"
	"github.com/washdeskhq/washdesk/internal/models"
)

type orderStore struct {
	q    dbx.DBTX
	inTx bool
}

const orderColumns = `id, order_number, customer_id, assigned_to, order_status, payment_status,
	total_amount, amount_paid, discount_amount, delivery_notes, special_instructions,
	pickup_date, delivery_date, estimated_completion_date, completed_at,
	created_by, created_at, updated_at`

func scanOrder(row interface{ Scan(...any) error }) (*models.Order, error) {
	o := &models.Order{}
	err := row.Scan(&o.ID, &o.OrderNumber, &o.CustomerID, &o.AssignedTo, &o.OrderStatus,
		&o.PaymentStatus, &o.TotalAmount, &o.AmountPaid, &o.DiscountAmount,
		&o.DeliveryNotes, &o.SpecialInstructions, &o.PickupDate, &o.DeliveryDate,
		&o.EstimatedCompletionDate, &o.CompletedAt, &o.CreatedBy, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return o, nil
}

func (s *orderStore) Create(ctx context.Context, order *models.Order) error {
	query := `
		INSERT INTO orders (order_number, customer_id, assigned_to, order_status, payment_status,
			total_amount, amount_paid, discount_amount, delivery_notes, special_instructions,
			pickup_date, delivery_date, estimated_completion_date, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id, created_at, updated_at
	`
	err := s.q.QueryRowContext(ctx, query,
		order.OrderNumber, order.CustomerID, order.AssignedTo, order.OrderStatus,
		order.PaymentStatus, order.TotalAmount, order.AmountPaid, order.DiscountAmount,
		order.DeliveryNotes, order.SpecialInstructions, order.PickupDate,
		order.DeliveryDate, order.EstimatedCompletionDate, order.CreatedBy,
	).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return common.ErrDuplicate
		}
		return fmt.Errorf("db error: %w", err)
	}

	for _, item := range order.Items {
		item.OrderID = order.ID
		if err := s.createItem(ctx, item); err != nil {
			return err
		}
	}
	return nil
}

func (s *orderStore) createItem(ctx context.Context, item *models.OrderItem) error {
	query := `
		INSERT INTO order_items (order_id, service_id, item_name, description, quantity, unit_price, subtotal, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at
	`
	err := s.q.QueryRowContext(ctx, query,
		item.OrderID, item.ServiceID, item.ItemName, item.Description,
		item.Quantity, item.UnitPrice, item.Subtotal, item.Notes,
	).Scan(&item.ID, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (s *orderStore) GetByID(ctx context.Context, id int64) (*models.Order, error) {
	return s.get(ctx, id, false)
}

func (s *orderStore) GetForUpdate(ctx context.Context, id int64) (*models.Order, error) {
	return s.get(ctx, id, s.inTx)
}

func (s *orderStore) get(ctx context.Context, id int64, forUpdate bool) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	order, err := scanOrder(s.q.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, err
	}
	if err := s.loadItems(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *orderStore) loadItems(ctx context.Context, order *models.Order) error {
	query := `
		SELECT id, order_id, service_id, item_name, description, quantity, unit_price, subtotal, notes,
			created_at, updated_at
		FROM order_items WHERE order_id = $1 ORDER BY id
	`
	rows, err := s.q.QueryContext(ctx, query, order.ID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		item := &models.OrderItem{}
		err := rows.Scan(&item.ID, &item.OrderID, &item.ServiceID, &item.ItemName,
			&item.Description, &item.Quantity, &item.UnitPrice, &item.Subtotal,
			&item.Notes, &item.CreatedAt, &item.UpdatedAt)
		if err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		order.Items = append(order.Items, item)
	}
	return rows.Err()
}

func (s *orderStore) Update(ctx context.Context, order *models.Order) error {
	query := `
		UPDATE orders
		SET assigned_to = $2, order_status = $3, payment_status = $4, total_amount = $5,
		    amount_paid = $6, discount_amount = $7, delivery_notes = $8,
		    special_instructions = $9, pickup_date = $10, delivery_date = $11,
		    estimated_completion_date = $12, completed_at = $13, updated_at = now()
		WHERE id = $1
	`
	res, err := s.q.ExecContext(ctx, query,
		order.ID, order.AssignedTo, order.OrderStatus, order.PaymentStatus,
		order.TotalAmount, order.AmountPaid, order.DiscountAmount, order.DeliveryNotes,
		order.SpecialInstructions, order.PickupDate, order.DeliveryDate,
		order.EstimatedCompletionDate, order.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (s *orderStore) List(ctx context.Context, opts interfaces.OrderListOptions) ([]*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders`
	var (
		clauses []string
		args    []any
	)
	if opts.CustomerID != 0 {
		args = append(args, opts.CustomerID)
		clauses = append(clauses, `customer_id = $`+strconv.Itoa(len(args)))
	}
	if opts.Status != "" {
		args = append(args, opts.Status)
		clauses = append(clauses, `order_status = $`+strconv.Itoa(len(args)))
	}
	for i, c := range clauses {
		if i == 0 {
			query += ` WHERE ` + c
		} else {
			query += ` AND ` + c
		}
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}
