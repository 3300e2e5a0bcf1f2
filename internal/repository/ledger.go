package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/pressplay/payments/internal/domain"
)

const ledgerColumns = `id, ledgerable_kind, ledgerable_id, ledger, payment_id, refund_id,
	direction, amount, currency, balance_after, occurred_at`

type LedgerRepository struct {
	db *sql.DB
}

func NewLedgerRepository(db *sql.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// LockLedger serializes balance derivation per (ledgerable, ledger) pair for
// the remainder of the transaction. Without it two concurrent postings to
// the same owner could both read the same prior balance.
func (r *LedgerRepository) LockLedger(ctx context.Context, tx *sql.Tx, owner domain.Subject, ledger string) error {
	key := fmt.Sprintf("%s:%s:%s", owner.Kind, owner.ID, ledger)
	_, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key)
	if err != nil {
		return fmt.Errorf("LockLedger: %w", err)
	}
	return nil
}

// LastBalance returns the owner's running balance, 0 when the ledger is
// empty. Callers must hold LockLedger first.
func (r *LedgerRepository) LastBalance(ctx context.Context, tx *sql.Tx, owner domain.Subject, ledger string) (int64, error) {
	var balance int64
	err := tx.QueryRowContext(ctx,
		`SELECT balance_after FROM ledger_entries
		WHERE ledgerable_kind = $1 AND ledgerable_id = $2 AND ledger = $3
		ORDER BY occurred_at DESC, id DESC LIMIT 1`,
		owner.Kind, owner.ID, ledger,
	).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("LastBalance: %w", err)
	}
	return balance, nil
}

func (r *LedgerRepository) Create(ctx context.Context, tx *sql.Tx, entry *domain.LedgerEntry) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO ledger_entries (
			id, ledgerable_kind, ledgerable_id, ledger, payment_id, refund_id,
			direction, amount, currency, balance_after, occurred_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		entry.ID, entry.LedgerableKind, entry.LedgerableID, entry.Ledger,
		entry.PaymentID, entry.RefundID, entry.Direction, entry.Amount,
		entry.Currency, entry.BalanceAfter, entry.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *LedgerRepository) GetByOwner(ctx context.Context, owner domain.Subject, ledger string, limit, offset int) ([]domain.LedgerEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+ledgerColumns+` FROM ledger_entries
		WHERE ledgerable_kind = $1 AND ledgerable_id = $2 AND ledger = $3
		ORDER BY occurred_at, id LIMIT $4 OFFSET $5`,
		owner.Kind, owner.ID, ledger, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("GetByOwner: %w", err)
	}
	defer rows.Close()

	return collectLedgerEntries(rows, "GetByOwner")
}

func (r *LedgerRepository) GetByPaymentID(ctx context.Context, paymentID uuid.UUID) ([]domain.LedgerEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+ledgerColumns+` FROM ledger_entries
		WHERE payment_id = $1 ORDER BY occurred_at, id`, paymentID,
	)
	if err != nil {
		return nil, fmt.Errorf("GetByPaymentID: %w", err)
	}
	defer rows.Close()

	return collectLedgerEntries(rows, "GetByPaymentID")
}

func collectLedgerEntries(rows *sql.Rows, op string) ([]domain.LedgerEntry, error) {
	var entries []domain.LedgerEntry
	for rows.Next() {
		var e domain.LedgerEntry
		var refundID uuid.NullUUID
		err := rows.Scan(
			&e.ID, &e.LedgerableKind, &e.LedgerableID, &e.Ledger, &e.PaymentID, &refundID,
			&e.Direction, &e.Amount, &e.Currency, &e.BalanceAfter, &e.OccurredAt,
		)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		if refundID.Valid {
			e.RefundID = &refundID.UUID
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows: %w", op, err)
	}
	return entries, nil
}
