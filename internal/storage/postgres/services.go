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

type serviceStore struct {
	q dbx.DBTX
}

const serviceColumns = `id, name, description, price, unit, category, estimated_days,
	is_active, created_by, created_at, updated_at`

func scanService(row interface{ Scan(...any) error }) (*models.Service, error) {
	svc := &models.Service{}
	err := row.Scan(&svc.ID, &svc.Name, &svc.Description, &svc.Price, &svc.Unit,
		&svc.Category, &svc.EstimatedDays, &svc.IsActive, &svc.CreatedBy,
		&svc.CreatedAt, &svc.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return svc, nil
}

func (s *serviceStore) Create(ctx context.Context, service *models.Service) error {
	query := `
		INSERT INTO services (name, description, price, unit, category, estimated_days, is_active, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at
	`
	err := s.q.QueryRowContext(ctx, query,
		service.Name, service.Description, service.Price, service.Unit,
		service.Category, service.EstimatedDays, service.IsActive, service.CreatedBy,
	).Scan(&service.ID, &service.CreatedAt, &service.UpdatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (s *serviceStore) GetByID(ctx context.Context, id int64) (*models.Service, error) {
	query := `SELECT ` + serviceColumns + ` FROM services WHERE id = $1`
	return scanService(s.q.QueryRowContext(ctx, query, id))
}

func (s *serviceStore) Update(ctx context.Context, service *models.Service) error {
	query := `
		UPDATE services
		SET name = $2, description = $3, price = $4, unit = $5, category = $6,
		    estimated_days = $7, is_active = $8, updated_at = now()
		WHERE id = $1
	`
	res, err := s.q.ExecContext(ctx, query,
		service.ID, service.Name, service.Description, service.Price, service.Unit,
		service.Category, service.EstimatedDays, service.IsActive,
	)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (s *serviceStore) List(ctx context.Context, activeOnly bool) ([]*models.Service, error) {
	query := `SELECT ` + serviceColumns + ` FROM services`
	if activeOnly {
		query += ` WHERE is_active`
	}
	query += ` ORDER BY category, name`

	rows, err := s.q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var services []*models.Service
	for rows.Next() {
		svc, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		services = append(services, svc)
	}
	return services, rows.Err()
}
