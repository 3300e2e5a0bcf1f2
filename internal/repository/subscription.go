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

const subscriptionColumns = `id, subscriber_id, creator_id, plan_id, amount, currency,
	interval, interval_count, status, provider, provider_subscription_id, auto_renews,
	trial_ends_at, starts_at, ends_at, grace_ends_at,
	current_period_start, current_period_end, created_at, updated_at`

type SubscriptionRepository struct {
	db *sql.DB
}

func NewSubscriptionRepository(db *sql.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

func (r *SubscriptionRepository) Create(ctx context.Context, sub *domain.PaymentSubscription) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO payment_subscriptions (
			id, subscriber_id, creator_id, plan_id, amount, currency,
			interval, interval_count, status, provider, provider_subscription_id, auto_renews,
			trial_ends_at, starts_at, ends_at, grace_ends_at,
			current_period_start, current_period_end, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`,
		sub.ID, sub.SubscriberID, sub.CreatorID, sub.PlanID, sub.Amount, sub.Currency,
		sub.Interval, sub.IntervalCount, sub.Status, sub.Provider, sub.ProviderSubscriptionID,
		sub.AutoRenews, sub.TrialEndsAt, sub.StartsAt, sub.EndsAt, sub.GraceEndsAt,
		sub.CurrentPeriodStart, sub.CurrentPeriodEnd, sub.CreatedAt, sub.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *SubscriptionRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.PaymentSubscription, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+subscriptionColumns+` FROM payment_subscriptions WHERE id = $1`, id,
	)
	s, err := scanSubscription(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrSubscriptionNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return s, nil
}

func (r *SubscriptionRepository) GetByProviderSubscriptionID(ctx context.Context, provider, providerSubscriptionID string) (*domain.PaymentSubscription, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+subscriptionColumns+` FROM payment_subscriptions
		WHERE provider = $1 AND provider_subscription_id = $2`,
		provider, providerSubscriptionID,
	)
	s, err := scanSubscription(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByProviderSubscriptionID: %w", domain.ErrSubscriptionNotFound)
		}
		return nil, fmt.Errorf("GetByProviderSubscriptionID: %w", err)
	}
	return s, nil
}

// GetForUpdate serializes lifecycle transitions racing between direct calls
// and webhook delivery.
func (r *SubscriptionRepository) GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.PaymentSubscription, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+subscriptionColumns+` FROM payment_subscriptions WHERE id = $1 FOR UPDATE`, id,
	)
	s, err := scanSubscription(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetForUpdate: %w", domain.ErrSubscriptionNotFound)
		}
		return nil, fmt.Errorf("GetForUpdate: %w", err)
	}
	return s, nil
}

func (r *SubscriptionRepository) Update(ctx context.Context, tx *sql.Tx, sub *domain.PaymentSubscription) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE payment_subscriptions SET
			plan_id = $1, amount = $2, status = $3, auto_renews = $4,
			trial_ends_at = $5, ends_at = $6, grace_ends_at = $7,
			current_period_start = $8, current_period_end = $9, updated_at = now()
		WHERE id = $10`,
		sub.PlanID, sub.Amount, sub.Status, sub.AutoRenews,
		sub.TrialEndsAt, sub.EndsAt, sub.GraceEndsAt,
		sub.CurrentPeriodStart, sub.CurrentPeriodEnd, sub.ID,
	)
	if err != nil {
		return fmt.Errorf("Update: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("Update: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("Update: %w", domain.ErrSubscriptionNotFound)
	}
	return nil
}

// ListLapsed returns subscriptions whose grace window or scheduled end has
// passed, batched FOR UPDATE SKIP LOCKED so concurrent sweeps don't collide.
func (r *SubscriptionRepository) ListLapsed(ctx context.Context, tx *sql.Tx, now time.Time, limit int) ([]domain.PaymentSubscription, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT `+subscriptionColumns+` FROM payment_subscriptions
		WHERE (status = $1 AND grace_ends_at < $2)
		   OR (status IN ($3, $4) AND ends_at IS NOT NULL AND ends_at < $2)
		ORDER BY updated_at LIMIT $5 FOR UPDATE SKIP LOCKED`,
		domain.SubscriptionStatusGrace, now,
		domain.SubscriptionStatusActive, domain.SubscriptionStatusTrialing,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("ListLapsed: %w", err)
	}
	defer rows.Close()

	var subs []domain.PaymentSubscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("ListLapsed: scan: %w", err)
		}
		subs = append(subs, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListLapsed: rows: %w", err)
	}
	return subs, nil
}

func scanSubscription(s scanner) (*domain.PaymentSubscription, error) {
	var sub domain.PaymentSubscription
	err := s.Scan(
		&sub.ID, &sub.SubscriberID, &sub.CreatorID, &sub.PlanID, &sub.Amount, &sub.Currency,
		&sub.Interval, &sub.IntervalCount, &sub.Status, &sub.Provider, &sub.ProviderSubscriptionID,
		&sub.AutoRenews, &sub.TrialEndsAt, &sub.StartsAt, &sub.EndsAt, &sub.GraceEndsAt,
		&sub.CurrentPeriodStart, &sub.CurrentPeriodEnd, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &sub, nil
}
