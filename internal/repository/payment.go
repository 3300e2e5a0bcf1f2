package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pressplay/payments/internal/domain"
)

const paymentColumns = `id, intent_id, payable_kind, payable_id, payer_id, payee_id,
	amount, fee, net, currency, status, provider, provider_payment_id,
	statement_descriptor, raw, created_at, updated_at, settled_at, deleted_at`

type PaymentRepository struct {
	db *sql.DB
}

func NewPaymentRepository(db *sql.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) Create(ctx context.Context, tx *sql.Tx, payment *domain.Payment) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO payments (
			id, intent_id, payable_kind, payable_id, payer_id, payee_id,
			amount, fee, net, currency, status, provider, provider_payment_id,
			statement_descriptor, raw, created_at, updated_at, settled_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		payment.ID, payment.IntentID, payment.PayableKind, payment.PayableID,
		payment.PayerID, payment.PayeeID, payment.Amount, payment.Fee, payment.Net,
		payment.Currency, payment.Status, payment.Provider, payment.ProviderPaymentID,
		payment.StatementDescriptor, payment.Raw, payment.CreatedAt, payment.UpdatedAt, payment.SettledAt,
	)
	if err != nil {
		// The unique intent_id backstops at-most-once capture below the
		// advisory locks: a second insert means the intent already settled.
		if IsDuplicateKey(err) {
			return fmt.Errorf("Create: intent %s already captured: %w", payment.IntentID, domain.ErrIntentTerminal)
		}
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *PaymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE id = $1 AND deleted_at IS NULL`, id,
	)
	p, err := scanPayment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return p, nil
}

func (r *PaymentRepository) GetByIntentID(ctx context.Context, intentID uuid.UUID) (*domain.Payment, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE intent_id = $1 AND deleted_at IS NULL`, intentID,
	)
	p, err := scanPayment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByIntentID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByIntentID: %w", err)
	}
	return p, nil
}

// GetForUpdate serializes refunds against the same payment.
func (r *PaymentRepository) GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Payment, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE id = $1 AND deleted_at IS NULL FOR UPDATE`, id,
	)
	p, err := scanPayment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetForUpdate: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetForUpdate: %w", err)
	}
	return p, nil
}

func (r *PaymentRepository) UpdateStatus(ctx context.Context, tx *sql.Tx, id uuid.UUID, status domain.PaymentStatus, settledAt *time.Time) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE payments SET status = $1, settled_at = COALESCE($2, settled_at), updated_at = now()
		WHERE id = $3 AND deleted_at IS NULL`,
		status, settledAt, id,
	)
	if err != nil {
		return fmt.Errorf("UpdateStatus: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("UpdateStatus: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("UpdateStatus: %w", domain.ErrNotFound)
	}
	return nil
}

func scanPayment(s scanner) (*domain.Payment, error) {
	var p domain.Payment
	var payeeID uuid.NullUUID
	var raw *[]byte

	err := s.Scan(
		&p.ID, &p.IntentID, &p.PayableKind, &p.PayableID, &p.PayerID, &payeeID,
		&p.Amount, &p.Fee, &p.Net, &p.Currency, &p.Status, &p.Provider, &p.ProviderPaymentID,
		&p.StatementDescriptor, &raw, &p.CreatedAt, &p.UpdatedAt, &p.SettledAt, &p.DeletedAt,
	)
	if err != nil {
		return nil, err
	}

	if payeeID.Valid {
		p.PayeeID = &payeeID.UUID
	}
	if raw != nil {
		p.Raw = *raw
	}

	return &p, nil
}
