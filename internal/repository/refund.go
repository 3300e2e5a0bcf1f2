package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/pressplay/payments/internal/domain"
)

const refundColumns = `id, payment_id, amount, currency, status, reason,
	provider, provider_refund_id, created_at`

type RefundRepository struct {
	db *sql.DB
}

func NewRefundRepository(db *sql.DB) *RefundRepository {
	return &RefundRepository{db: db}
}

func (r *RefundRepository) Create(ctx context.Context, tx *sql.Tx, refund *domain.PaymentRefund) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO payment_refunds (
			id, payment_id, amount, currency, status, reason,
			provider, provider_refund_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		refund.ID, refund.PaymentID, refund.Amount, refund.Currency, refund.Status,
		refund.Reason, refund.Provider, refund.ProviderRefundID, refund.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *RefundRepository) GetByPaymentID(ctx context.Context, paymentID uuid.UUID) ([]domain.PaymentRefund, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+refundColumns+` FROM payment_refunds
		WHERE payment_id = $1 ORDER BY created_at`, paymentID,
	)
	if err != nil {
		return nil, fmt.Errorf("GetByPaymentID: %w", err)
	}
	defer rows.Close()

	var refunds []domain.PaymentRefund
	for rows.Next() {
		var rf domain.PaymentRefund
		err := rows.Scan(
			&rf.ID, &rf.PaymentID, &rf.Amount, &rf.Currency, &rf.Status, &rf.Reason,
			&rf.Provider, &rf.ProviderRefundID, &rf.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("GetByPaymentID: scan: %w", err)
		}
		refunds = append(refunds, rf)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("GetByPaymentID: rows: %w", err)
	}
	return refunds, nil
}

// SumSucceeded totals succeeded refunds inside the refund transaction so the
// refund bound is checked against a consistent snapshot.
func (r *RefundRepository) SumSucceeded(ctx context.Context, tx *sql.Tx, paymentID uuid.UUID) (int64, error) {
	var total int64
	err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM payment_refunds
		WHERE payment_id = $1 AND status = $2`,
		paymentID, domain.RefundStatusSucceeded,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("SumSucceeded: %w", err)
	}
	return total, nil
}
