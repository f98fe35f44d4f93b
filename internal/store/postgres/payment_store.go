package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/dancameron/gbs-payment-gateway-paypal-payflow/internal/payment"
)

// PaymentStore persists payment records in postgres. The structured data
// payload (gateway reference, uncaptured deals, capture log) and the optional
// shipping snapshot live in jsonb columns.
type PaymentStore struct {
	db *sql.DB
}

func NewPaymentStore(db *sql.DB) *PaymentStore {
	return &PaymentStore{db: db}
}

// Schema is the table this store expects. Payments are never deleted.
const Schema = `
CREATE TABLE IF NOT EXISTS payments (
	id           UUID PRIMARY KEY,
	purchase_id  UUID NOT NULL,
	method       TEXT NOT NULL,
	amount_cents BIGINT NOT NULL,
	status       TEXT NOT NULL,
	data         JSONB NOT NULL,
	shipping     JSONB,
	created_at   TIMESTAMPTZ NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS payments_purchase_idx ON payments (purchase_id);
CREATE INDEX IF NOT EXISTS payments_status_idx ON payments (status);
`

func (s *PaymentStore) NewPayment(ctx context.Context, p *payment.Payment) error {
	data, err := json.Marshal(p.Data)
	if err != nil {
		return fmt.Errorf("db: marshal payment data: %w", err)
	}
	shipping, err := marshalShipping(p.Shipping)
	if err != nil {
		return err
	}

	query := `INSERT INTO payments
	(id, purchase_id, method, amount_cents, status, data, shipping, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = s.db.ExecContext(ctx, query,
		p.ID,
		p.PurchaseID,
		p.Method,
		p.AmountCents,
		p.Status,
		data,
		shipping,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("db: failed to create payment: %w", err)
	}
	return nil
}

func (s *PaymentStore) GetPayment(ctx context.Context, id uuid.UUID) (*payment.Payment, error) {
	query := `
		SELECT id, purchase_id, method, amount_cents, status, data, shipping, created_at, updated_at
		FROM payments
		WHERE id = $1
	`
	row := s.db.QueryRowContext(ctx, query, id)
	p, err := scanPayment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, payment.ErrPaymentNotFound
	}
	return p, err
}

func (s *PaymentStore) PaymentsForPurchase(ctx context.Context, purchaseID uuid.UUID) ([]uuid.UUID, error) {
	query := `
		SELECT id FROM payments
		WHERE purchase_id = $1
		ORDER BY created_at ASC
	`
	return s.queryIDs(ctx, query, purchaseID)
}

// PendingPayments enumerates every payment still awaiting capture, oldest
// first. COMPLETE is terminal and excluded; PARTIAL stays in the result set
// for as long as any deal remains uncaptured.
func (s *PaymentStore) PendingPayments(ctx context.Context) ([]uuid.UUID, error) {
	query := `
		SELECT id FROM payments
		WHERE status != $1
		ORDER BY created_at ASC
	`
	return s.queryIDs(ctx, query, payment.StatusComplete)
}

func (s *PaymentStore) UpdatePayment(ctx context.Context, p *payment.Payment) error {
	data, err := json.Marshal(p.Data)
	if err != nil {
		return fmt.Errorf("db: marshal payment data: %w", err)
	}

	query := `
		UPDATE payments
		SET status = $1,
		    data = $2,
		    updated_at = $3
		WHERE id = $4
	`
	res, err := s.db.ExecContext(ctx, query, p.Status, data, p.UpdatedAt, p.ID)
	if err != nil {
		return fmt.Errorf("db: failed to update payment: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return payment.ErrPaymentNotFound
	}
	return nil
}

func (s *PaymentStore) queryIDs(ctx context.Context, query string, arg interface{}) ([]uuid.UUID, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("db: query payments: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("db: scan payment id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPayment(row rowScanner) (*payment.Payment, error) {
	var (
		p        payment.Payment
		data     []byte
		shipping []byte
	)
	err := row.Scan(
		&p.ID,
		&p.PurchaseID,
		&p.Method,
		&p.AmountCents,
		&p.Status,
		&data,
		&shipping,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &p.Data); err != nil {
		return nil, fmt.Errorf("db: unmarshal payment data: %w", err)
	}
	if len(shipping) > 0 {
		p.Shipping = &payment.Address{}
		if err := json.Unmarshal(shipping, p.Shipping); err != nil {
			return nil, fmt.Errorf("db: unmarshal shipping snapshot: %w", err)
		}
	}
	return &p, nil
}

func marshalShipping(addr *payment.Address) ([]byte, error) {
	if addr == nil {
		return nil, nil
	}
	b, err := json.Marshal(addr)
	if err != nil {
		return nil, fmt.Errorf("db: marshal shipping snapshot: %w", err)
	}
	return b, nil
}

var _ payment.Store = (*PaymentStore)(nil)
