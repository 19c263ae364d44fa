// Package postgres implements the Storage contract over PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/washdeskhq/washdesk/internal/dbx"
	"github.com/washdeskhq/washdesk/internal/interfaces"
	"github.com/washdeskhq/washdesk/internal/storage/postgres/migrations"
)

// Store implements interfaces.Storage. A Store returned by WithTx is bound
// to the transaction handle instead of the root connection pool.
type Store struct {
	db *sql.DB // nil when transaction-bound
	q  dbx.DBTX
}

// Open connects to the database and runs pending migrations.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("db ping error: %w", err)
	}

	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return nil, err
	}
	if err := goose.UpContext(ctx, db, "."); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}

	return &Store{db: db, q: db}, nil
}

// Users returns the user store bound to this handle.
func (s *Store) Users() interfaces.UserStore { return &userStore{q: s.q} }

// Customers returns the customer store bound to this handle.
func (s *Store) Customers() interfaces.CustomerStore { return &customerStore{q: s.q} }

// Services returns the service store bound to this handle.
func (s *Store) Services() interfaces.ServiceStore { return &serviceStore{q: s.q} }

// Orders returns the order store bound to this handle.
func (s *Store) Orders() interfaces.OrderStore {
	return &orderStore{q: s.q, inTx: s.db == nil}
}

// Payments returns the payment store bound to this handle.
func (s *Store) Payments() interfaces.PaymentStore { return &paymentStore{q: s.q} }

// Tokens returns the revocation store bound to this handle.
func (s *Store) Tokens() interfaces.TokenStore { return &tokenStore{q: s.q} }

// WithTx runs fn against a transaction-bound Store. Calling WithTx on a
// Store that is already transaction-bound reuses the same transaction.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx interfaces.Storage) error) error {
	if s.db == nil {
		return fn(ctx, s)
	}
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return fn(ctx, &Store{q: tx})
	})
}

// Close closes the connection pool.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// isUniqueViolation reports whether err is a Postgres unique-constraint error.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
