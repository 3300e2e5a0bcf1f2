package testutil

import (
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/pressplay/payments/internal/domain"
	"github.com/pressplay/payments/internal/money"
)

var (
	PayerID   = uuid.MustParse("00000000-0000-0000-0000-000000000001")
	CreatorID = uuid.MustParse("00000000-0000-0000-0000-000000000002")
	PostID    = uuid.MustParse("00000000-0000-0000-0001-000000000001")
)

// SeedIntent inserts a confirmable intent for the fixture post, paid by the
// fixture payer to the fixture creator.
func SeedIntent(t *testing.T, db *sql.DB, provider string, amount int64, status domain.IntentStatus) *domain.PaymentIntent {
	t.Helper()

	now := time.Now().UTC()
	providerRef := "pi_" + uuid.NewString()
	payeeID := CreatorID
	i := &domain.PaymentIntent{
		ID:               uuid.New(),
		PayableKind:      domain.SubjectPost,
		PayableID:        PostID,
		Amount:           amount,
		Currency:         money.USD,
		PayerID:          PayerID,
		PayeeID:          &payeeID,
		Type:             domain.IntentTypeOneTime,
		Status:           status,
		Provider:         provider,
		ProviderIntentID: &providerRef,
		ExpiresAt:        now.Add(time.Hour),
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	_, err := db.Exec(
		`INSERT INTO payment_intents (
			id, payable_kind, payable_id, amount, currency, payer_id, payee_id,
			type, status, provider, provider_intent_id, expires_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		i.ID, i.PayableKind, i.PayableID, i.Amount, i.Currency, i.PayerID, i.PayeeID,
		i.Type, i.Status, i.Provider, i.ProviderIntentID, i.ExpiresAt, i.CreatedAt, i.UpdatedAt,
	)
	if err != nil {
		t.Fatalf("seed intent: %v", err)
	}
	return i
}

// SeedPayment inserts a captured payment and its originating intent.
func SeedPayment(t *testing.T, db *sql.DB, provider string, amount, fee int64) *domain.Payment {
	t.Helper()

	i := SeedIntent(t, db, provider, amount, domain.IntentStatusSucceeded)

	now := time.Now().UTC()
	p := &domain.Payment{
		ID:                uuid.New(),
		IntentID:          i.ID,
		PayableKind:       i.PayableKind,
		PayableID:         i.PayableID,
		PayerID:           i.PayerID,
		PayeeID:           i.PayeeID,
		Amount:            amount,
		Fee:               fee,
		Net:               amount - fee,
		Currency:          money.USD,
		Status:            domain.PaymentStatusCaptured,
		Provider:          provider,
		ProviderPaymentID: "ch_" + uuid.NewString(),
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	_, err := db.Exec(
		`INSERT INTO payments (
			id, intent_id, payable_kind, payable_id, payer_id, payee_id,
			amount, fee, net, currency, status, provider, provider_payment_id,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		p.ID, p.IntentID, p.PayableKind, p.PayableID, p.PayerID, p.PayeeID,
		p.Amount, p.Fee, p.Net, p.Currency, p.Status, p.Provider, p.ProviderPaymentID,
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		t.Fatalf("seed payment: %v", err)
	}
	return p
}

func SeedSubscription(t *testing.T, db *sql.DB, provider string, amount int64, status domain.SubscriptionStatus) *domain.PaymentSubscription {
	t.Helper()

	now := time.Now().UTC()
	providerRef := "sub_" + uuid.NewString()
	sub := &domain.PaymentSubscription{
		ID:                     uuid.New(),
		SubscriberID:           PayerID,
		CreatorID:              CreatorID,
		PlanID:                 "plan_monthly",
		Amount:                 amount,
		Currency:               money.USD,
		Interval:               domain.IntervalMonth,
		IntervalCount:          1,
		Status:                 status,
		Provider:               provider,
		ProviderSubscriptionID: &providerRef,
		AutoRenews:             true,
		StartsAt:               now,
		CurrentPeriodStart:     now,
		CurrentPeriodEnd:       now.AddDate(0, 1, 0),
		CreatedAt:              now,
		UpdatedAt:              now,
	}

	_, err := db.Exec(
		`INSERT INTO payment_subscriptions (
			id, subscriber_id, creator_id, plan_id, amount, currency,
			interval, interval_count, status, provider, provider_subscription_id, auto_renews,
			starts_at, current_period_start, current_period_end, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		sub.ID, sub.SubscriberID, sub.CreatorID, sub.PlanID, sub.Amount, sub.Currency,
		sub.Interval, sub.IntervalCount, sub.Status, sub.Provider, sub.ProviderSubscriptionID,
		sub.AutoRenews, sub.StartsAt, sub.CurrentPeriodStart, sub.CurrentPeriodEnd,
		sub.CreatedAt, sub.UpdatedAt,
	)
	if err != nil {
		t.Fatalf("seed subscription: %v", err)
	}
	return sub
}

func SeedDiscountCode(t *testing.T, db *sql.DB, code string, planID *string, percentOff *int, amountOff *int64, expiresAt *time.Time) {
	t.Helper()

	_, err := db.Exec(
		`INSERT INTO discount_codes (code, plan_id, percent_off, amount_off, currency, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		code, planID, percentOff, amountOff, "USD", expiresAt,
	)
	if err != nil {
		t.Fatalf("seed discount code: %v", err)
	}
}

// LedgerBalance returns the owner's latest balance_after, 0 when the ledger
// is empty.
func LedgerBalance(t *testing.T, db *sql.DB, owner domain.Subject, ledger string) int64 {
	t.Helper()

	var balance int64
	err := db.QueryRow(
		`SELECT COALESCE((
			SELECT balance_after FROM ledger_entries
			WHERE ledgerable_kind = $1 AND ledgerable_id = $2 AND ledger = $3
			ORDER BY occurred_at DESC, id DESC LIMIT 1
		), 0)`,
		owner.Kind, owner.ID, ledger,
	).Scan(&balance)
	if err != nil {
		t.Fatalf("ledger balance: %v", err)
	}
	return balance
}

func CountLedgerEntries(t *testing.T, db *sql.DB, paymentID uuid.UUID) int {
	t.Helper()

	var n int
	if err := db.QueryRow(
		`SELECT COUNT(*) FROM ledger_entries WHERE payment_id = $1`, paymentID,
	).Scan(&n); err != nil {
		t.Fatalf("count ledger entries: %v", err)
	}
	return n
}

func CountPaymentsForIntent(t *testing.T, db *sql.DB, intentID uuid.UUID) int {
	t.Helper()

	var n int
	if err := db.QueryRow(
		`SELECT COUNT(*) FROM payments WHERE intent_id = $1`, intentID,
	).Scan(&n); err != nil {
		t.Fatalf("count payments: %v", err)
	}
	return n
}
