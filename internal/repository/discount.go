package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pressplay/payments/internal/domain"
	"github.com/pressplay/payments/internal/money"
)

// DiscountCode is a promotional code validated by the discount service.
// Exactly one of PercentOff and AmountOff is set.
type DiscountCode struct {
	Code           string
	PlanID         *string
	PercentOff     *int
	AmountOff      *int64
	Currency       *money.Currency
	ExpiresAt      *time.Time
	MaxRedemptions *int
	Redeemed       int
	CreatedAt      time.Time
}

type DiscountRepository struct {
	db *sql.DB
}

func NewDiscountRepository(db *sql.DB) *DiscountRepository {
	return &DiscountRepository{db: db}
}

func (r *DiscountRepository) GetByCode(ctx context.Context, code string) (*DiscountCode, error) {
	var d DiscountCode
	var currency *string
	err := r.db.QueryRowContext(ctx,
		`SELECT code, plan_id, percent_off, amount_off, currency,
			expires_at, max_redemptions, redeemed, created_at
		FROM discount_codes WHERE code = $1`,
		code,
	).Scan(
		&d.Code, &d.PlanID, &d.PercentOff, &d.AmountOff, &currency,
		&d.ExpiresAt, &d.MaxRedemptions, &d.Redeemed, &d.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByCode: %w", domain.ErrDiscountNotFound)
		}
		return nil, fmt.Errorf("GetByCode: %w", err)
	}

	if currency != nil {
		c := money.Currency(*currency)
		d.Currency = &c
	}
	return &d, nil
}
