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

const intentColumns = `id, payable_kind, payable_id, amount, currency, payer_id, payee_id,
	type, status, provider, provider_intent_id, client_secret, method_hint, metadata,
	last_error, expires_at, created_at, updated_at`

type IntentRepository struct {
	db *sql.DB
}

func NewIntentRepository(db *sql.DB) *IntentRepository {
	return &IntentRepository{db: db}
}

func (r *IntentRepository) Create(ctx context.Context, intent *domain.PaymentIntent) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO payment_intents (
			id, payable_kind, payable_id, amount, currency, payer_id, payee_id,
			type, status, provider, provider_intent_id, client_secret, method_hint, metadata,
			last_error, expires_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		intent.ID, intent.PayableKind, intent.PayableID, intent.Amount, intent.Currency,
		intent.PayerID, intent.PayeeID, intent.Type, intent.Status, intent.Provider,
		intent.ProviderIntentID, intent.ClientSecret, intent.MethodHint, intent.Metadata,
		intent.LastError, intent.ExpiresAt, intent.CreatedAt, intent.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *IntentRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.PaymentIntent, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+intentColumns+` FROM payment_intents WHERE id = $1`, id,
	)
	i, err := scanIntent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrIntentNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return i, nil
}

func (r *IntentRepository) GetByProviderIntentID(ctx context.Context, provider, providerIntentID string) (*domain.PaymentIntent, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+intentColumns+` FROM payment_intents
		WHERE provider = $1 AND provider_intent_id = $2`,
		provider, providerIntentID,
	)
	i, err := scanIntent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByProviderIntentID: %w", domain.ErrIntentNotFound)
		}
		return nil, fmt.Errorf("GetByProviderIntentID: %w", err)
	}
	return i, nil
}

// GetForUpdateNoWait takes the per-intent exclusive lock that makes capture
// at-most-once. A concurrent holder surfaces as ErrCaptureInProgress instead
// of blocking.
func (r *IntentRepository) GetForUpdateNoWait(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.PaymentIntent, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+intentColumns+` FROM payment_intents WHERE id = $1 FOR UPDATE NOWAIT`, id,
	)
	i, err := scanIntent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetForUpdateNoWait: %w", domain.ErrIntentNotFound)
		}
		if IsLockNotAvailable(err) {
			return nil, fmt.Errorf("GetForUpdateNoWait: %w", domain.ErrCaptureInProgress)
		}
		return nil, fmt.Errorf("GetForUpdateNoWait: %w", err)
	}
	return i, nil
}

func (r *IntentRepository) UpdateStatus(ctx context.Context, tx *sql.Tx, id uuid.UUID, status domain.IntentStatus, lastError *string) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE payment_intents SET status = $1, last_error = $2, updated_at = now()
		WHERE id = $3`,
		status, lastError, id,
	)
	if err != nil {
		return fmt.Errorf("UpdateStatus: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("UpdateStatus: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("UpdateStatus: %w", domain.ErrIntentNotFound)
	}
	return nil
}

// UpdateStatusDirect is UpdateStatus outside a transaction. The status guard
// keeps it safe against concurrent writers: once an intent commits a terminal
// status, a racing write that read the row earlier cannot move it again.
func (r *IntentRepository) UpdateStatusDirect(ctx context.Context, id uuid.UUID, status domain.IntentStatus, lastError *string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE payment_intents SET status = $1, last_error = $2, updated_at = now()
		WHERE id = $3 AND status IN ($4, $5, $6)`,
		status, lastError, id,
		domain.IntentStatusRequiresMethod, domain.IntentStatusRequiresConfirmation, domain.IntentStatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("UpdateStatusDirect: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("UpdateStatusDirect: rows affected: %w", err)
	}
	if rows == 0 {
		var current domain.IntentStatus
		err := r.db.QueryRowContext(ctx,
			`SELECT status FROM payment_intents WHERE id = $1`, id,
		).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("UpdateStatusDirect: %w", domain.ErrIntentNotFound)
		}
		if err != nil {
			return fmt.Errorf("UpdateStatusDirect: %w", err)
		}
		return fmt.Errorf("UpdateStatusDirect: intent is %s: %w", current, domain.ErrIntentTerminal)
	}
	return nil
}

func scanIntent(s scanner) (*domain.PaymentIntent, error) {
	var i domain.PaymentIntent
	var payeeID uuid.NullUUID
	var metadata *[]byte
	var expiresAt sql.NullTime

	err := s.Scan(
		&i.ID, &i.PayableKind, &i.PayableID, &i.Amount, &i.Currency, &i.PayerID, &payeeID,
		&i.Type, &i.Status, &i.Provider, &i.ProviderIntentID, &i.ClientSecret, &i.MethodHint,
		&metadata, &i.LastError, &expiresAt, &i.CreatedAt, &i.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if payeeID.Valid {
		i.PayeeID = &payeeID.UUID
	}
	if metadata != nil {
		i.Metadata = *metadata
	}
	if expiresAt.Valid {
		i.ExpiresAt = expiresAt.Time
	}

	return &i, nil
}

// Expire is the defensive read-time transition; it only fires while the
// intent is still non-terminal.
func (r *IntentRepository) Expire(ctx context.Context, id uuid.UUID, now time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE payment_intents SET status = $1, updated_at = $2
		WHERE id = $3 AND status IN ($4, $5, $6)`,
		domain.IntentStatusExpired, now, id,
		domain.IntentStatusRequiresMethod, domain.IntentStatusRequiresConfirmation, domain.IntentStatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("Expire: %w", err)
	}
	return nil
}
