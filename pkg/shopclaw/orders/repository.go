package orders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jholhewres/shopclaw/pkg/shopclaw/database"
)

const orderColumns = `id, first_name, last_name, phone, email, address, city, product_summary,
	amount, shopify_invoice_url, status, source, payment_method, created_at, updated_at`

// DefaultListLimit applies when List is called with limit <= 0.
const DefaultListLimit = 100

// SQLRepository stores orders in the shared database.
type SQLRepository struct {
	db  *database.DB
	now func() time.Time
}

// NewSQLRepository creates a repository over an open database.
func NewSQLRepository(db *database.DB) *SQLRepository {
	return &SQLRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Create inserts o and fills in its id and timestamps. An empty status
// becomes Pending and an empty source becomes Web; every stored enum must
// parse back, so unknown values and a missing payment method are rejected.
func (r *SQLRepository) Create(ctx context.Context, o *Order) error {
	if o.Status == "" {
		o.Status = StatusPending
	}
	if o.Source == "" {
		o.Source = SourceWeb
	}
	if err := checkEnums(o); err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	now := r.now()
	o.CreatedAt, o.UpdatedAt = now, now

	args := []any{
		o.FirstName, o.LastName, o.Phone, nullString(o.Email), o.Address, o.City,
		o.ProductSummary, nullString(o.Amount), nullString(o.InvoiceURL),
		o.Status, o.Source, o.PaymentMethod, o.CreatedAt, o.UpdatedAt,
	}
	const insert = `INSERT INTO orders (first_name, last_name, phone, email, address, city,
		product_summary, amount, shopify_invoice_url, status, source, payment_method,
		created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	if r.db.Backend == database.BackendPostgreSQL {
		// PostgreSQL drivers do not support LastInsertId.
		err := r.db.QueryRowContext(ctx, r.db.Rebind(insert)+" RETURNING id", args...).Scan(&o.ID)
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		return nil
	}

	res, err := r.db.ExecContext(ctx, insert, args...)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("read order id: %w", err)
	}
	o.ID = id
	return nil
}

func checkEnums(o *Order) error {
	var err error
	if o.Status, err = ParseStatus(string(o.Status)); err != nil {
		return err
	}
	if o.Source, err = ParseSource(string(o.Source)); err != nil {
		return err
	}
	if o.PaymentMethod, err = ParsePaymentMethod(string(o.PaymentMethod)); err != nil {
		return err
	}
	return nil
}

// Get loads one order.
func (r *SQLRepository) Get(ctx context.Context, id int64) (*Order, error) {
	row := r.db.QueryRowContext(ctx,
		r.db.Rebind("SELECT "+orderColumns+" FROM orders WHERE id = ?"), id)
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get order %d: %w", id, err)
	}
	return o, nil
}

// List returns orders newest first.
func (r *SQLRepository) List(ctx context.Context, skip, limit int) ([]*Order, error) {
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := r.db.QueryContext(ctx,
		r.db.Rebind("SELECT "+orderColumns+" FROM orders ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"),
		limit, skip)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var out []*Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// UpdateStatus sets the status and touches updated_at.
func (r *SQLRepository) UpdateStatus(ctx context.Context, id int64, status Status) (*Order, error) {
	res, err := r.db.ExecContext(ctx,
		r.db.Rebind("UPDATE orders SET status = ?, updated_at = ? WHERE id = ?"),
		status, r.now(), id)
	if err != nil {
		return nil, fmt.Errorf("update order %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, ErrNotFound
	}
	return r.Get(ctx, id)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(s rowScanner) (*Order, error) {
	var o Order
	var email, amount, invoiceURL sql.NullString
	err := s.Scan(&o.ID, &o.FirstName, &o.LastName, &o.Phone, &email, &o.Address, &o.City,
		&o.ProductSummary, &amount, &invoiceURL, &o.Status, &o.Source, &o.PaymentMethod,
		&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	o.Email = stringPtr(email)
	o.Amount = stringPtr(amount)
	o.InvoiceURL = stringPtr(invoiceURL)
	return &o, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}
