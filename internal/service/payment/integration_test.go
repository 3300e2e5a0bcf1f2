package payment_test

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pressplay/payments/internal/config"
	"github.com/pressplay/payments/internal/domain"
	"github.com/pressplay/payments/internal/event"
	"github.com/pressplay/payments/internal/gateway"
	"github.com/pressplay/payments/internal/gateway/fakegw"
	"github.com/pressplay/payments/internal/money"
	"github.com/pressplay/payments/internal/repository"
	"github.com/pressplay/payments/internal/service/intent"
	"github.com/pressplay/payments/internal/service/payment"
	"github.com/pressplay/payments/internal/testutil"
)

type services struct {
	intents  *intent.Service
	payments *payment.Service
	gw       *fakegw.Gateway
	bus      *event.Bus
}

func setupServices(t *testing.T, db *sql.DB) *services {
	t.Helper()

	gw := fakegw.New()
	manager := gateway.NewManager(fakegw.Name)
	manager.Register(gw)

	bus := event.NewBus(slog.New(slog.NewTextHandler(io.Discard, nil)))

	cfg := &config.Config{
		IntentTTLMinutes: 60,
		GatewayTimeoutS:  5,
		FeeBps:           1000,
		FeeFixedMinor:    0,
	}

	intents := repository.NewIntentRepository(db)
	return &services{
		intents: intent.NewService(intents, manager, bus, cfg),
		payments: payment.NewService(
			db,
			intents,
			repository.NewPaymentRepository(db),
			repository.NewRefundRepository(db),
			repository.NewLedgerRepository(db),
			manager,
			bus,
			cfg,
		),
		gw:  gw,
		bus: bus,
	}
}

func recordEvents(bus *event.Bus) *[]domain.Event {
	var seen []domain.Event
	bus.Subscribe(func(_ context.Context, e domain.Event) error {
		seen = append(seen, e)
		return nil
	})
	return &seen
}

func eventNames(seen []domain.Event) []string {
	names := make([]string, 0, len(seen))
	for _, e := range seen {
		names = append(names, e.Name())
	}
	return names
}

// createCapturableIntent drives an intent through create and confirm so the
// fake gateway knows it.
func createCapturableIntent(t *testing.T, svc *intent.Service, amount int64) *domain.PaymentIntent {
	t.Helper()

	payeeID := testutil.CreatorID
	i, err := svc.CreateIntent(context.Background(), intent.CreateRequest{
		PayableKind: domain.SubjectPost,
		PayableID:   testutil.PostID,
		Amount:      amount,
		Currency:    money.USD,
		PayerID:     testutil.PayerID,
		PayeeID:     &payeeID,
		Type:        domain.IntentTypeOneTime,
		MethodHint:  "pm_card_visa",
	})
	require.NoError(t, err)

	i, err = svc.ConfirmIntent(context.Background(), i.ID)
	require.NoError(t, err)
	require.Equal(t, domain.IntentStatusProcessing, i.Status)
	return i
}

func TestCapture_OneTimePurchase(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svcs := setupServices(t, db)
	seen := recordEvents(svcs.bus)
	ctx := context.Background()

	i := createCapturableIntent(t, svcs.intents, 1500)

	outcome, err := svcs.payments.Capture(ctx, payment.CaptureRequest{IntentID: i.ID})
	require.NoError(t, err)
	require.False(t, outcome.Declined)
	require.NotNil(t, outcome.Payment)

	p := outcome.Payment
	assert.Equal(t, int64(1500), p.Amount)
	assert.Equal(t, int64(150), p.Fee)
	assert.Equal(t, int64(1350), p.Net)
	assert.Equal(t, domain.PaymentStatusCaptured, p.Status)
	assert.Equal(t, i.ID, p.IntentID)

	stored, err := svcs.intents.GetIntent(ctx, i.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.IntentStatusSucceeded, stored.Status)

	owner := domain.Subject{Kind: domain.SubjectCreator, ID: testutil.CreatorID}
	assert.Equal(t, int64(1350), testutil.LedgerBalance(t, db, owner, domain.LedgerRevenue))
	assert.Equal(t, 1, testutil.CountLedgerEntries(t, db, p.ID))

	assert.Contains(t, eventNames(*seen), "payment.captured")
}

func TestCapture_Idempotent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svcs := setupServices(t, db)
	ctx := context.Background()

	i := createCapturableIntent(t, svcs.intents, 1500)

	first, err := svcs.payments.Capture(ctx, payment.CaptureRequest{IntentID: i.ID})
	require.NoError(t, err)

	second, err := svcs.payments.Capture(ctx, payment.CaptureRequest{IntentID: i.ID})
	require.NoError(t, err)
	require.NotNil(t, second.Payment)
	assert.Equal(t, first.Payment.ID, second.Payment.ID)

	assert.Equal(t, 1, testutil.CountPaymentsForIntent(t, db, i.ID))
	assert.Equal(t, 1, testutil.CountLedgerEntries(t, db, first.Payment.ID))
}

func TestCapture_Declined(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svcs := setupServices(t, db)
	seen := recordEvents(svcs.bus)
	ctx := context.Background()

	i := createCapturableIntent(t, svcs.intents, 1500)
	svcs.gw.FailNextCapture(domain.DeclineReasonInsufficientFunds)

	outcome, err := svcs.payments.Capture(ctx, payment.CaptureRequest{IntentID: i.ID})
	require.NoError(t, err)
	assert.True(t, outcome.Declined)
	assert.Equal(t, domain.DeclineReasonInsufficientFunds, outcome.Reason)
	assert.Nil(t, outcome.Payment)

	// The intent stays open for another attempt with a different method.
	stored, err := svcs.intents.GetIntent(ctx, i.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.IntentStatusRequiresMethod, stored.Status)
	require.NotNil(t, stored.LastError)

	assert.Equal(t, 0, testutil.CountPaymentsForIntent(t, db, i.ID))
	assert.Contains(t, eventNames(*seen), "payment.failed")

	// The same intent is still capturable afterwards.
	outcome, err = svcs.payments.Capture(ctx, payment.CaptureRequest{IntentID: i.ID})
	require.NoError(t, err)
	assert.False(t, outcome.Declined)
	require.NotNil(t, outcome.Payment)
}

func TestCapture_GatewayTimeout(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svcs := setupServices(t, db)
	ctx := context.Background()

	i := createCapturableIntent(t, svcs.intents, 1500)
	svcs.gw.TimeoutNextCapture()

	_, err := svcs.payments.Capture(ctx, payment.CaptureRequest{IntentID: i.ID})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrGatewayTimeout)

	assert.Equal(t, 0, testutil.CountPaymentsForIntent(t, db, i.ID))

	// Lock released and intent untouched, so a retry goes through.
	outcome, err := svcs.payments.Capture(ctx, payment.CaptureRequest{IntentID: i.ID})
	require.NoError(t, err)
	require.NotNil(t, outcome.Payment)
}

func TestCapture_Expired(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svcs := setupServices(t, db)
	ctx := context.Background()

	i := createCapturableIntent(t, svcs.intents, 1500)
	_, err := db.Exec(`UPDATE payment_intents SET expires_at = now() - interval '1 minute' WHERE id = $1`, i.ID)
	require.NoError(t, err)

	_, err = svcs.payments.Capture(ctx, payment.CaptureRequest{IntentID: i.ID})
	assert.ErrorIs(t, err, domain.ErrIntentExpired)

	stored, err := svcs.intents.GetIntent(ctx, i.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.IntentStatusExpired, stored.Status)
}

func TestCapture_Concurrent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svcs := setupServices(t, db)
	ctx := context.Background()

	i := createCapturableIntent(t, svcs.intents, 5000)

	const attempts = 5
	var wg sync.WaitGroup
	results := make([]*payment.CaptureOutcome, attempts)
	errs := make([]error, attempts)

	for n := 0; n < attempts; n++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			results[n], errs[n] = svcs.payments.Capture(ctx, payment.CaptureRequest{IntentID: i.ID})
		}(n)
	}
	wg.Wait()

	var settled, busy int
	for n := 0; n < attempts; n++ {
		switch {
		case errs[n] == nil:
			require.NotNil(t, results[n].Payment)
			settled++
		case errors.Is(errs[n], domain.ErrCaptureInProgress):
			busy++
		default:
			t.Fatalf("unexpected capture error: %v", errs[n])
		}
	}

	assert.GreaterOrEqual(t, settled, 1)
	assert.Equal(t, attempts, settled+busy)

	// Exactly one payment and one ledger credit regardless of the race.
	assert.Equal(t, 1, testutil.CountPaymentsForIntent(t, db, i.ID))

	var entries int
	err := db.QueryRow(
		`SELECT COUNT(*) FROM ledger_entries WHERE ledgerable_id = $1`, testutil.CreatorID,
	).Scan(&entries)
	require.NoError(t, err)
	assert.Equal(t, 1, entries)
}

func TestRefund_PartialThenFull(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svcs := setupServices(t, db)
	seen := recordEvents(svcs.bus)
	ctx := context.Background()

	i := createCapturableIntent(t, svcs.intents, 5000)
	outcome, err := svcs.payments.Capture(ctx, payment.CaptureRequest{IntentID: i.ID})
	require.NoError(t, err)
	p := outcome.Payment

	owner := domain.Subject{Kind: domain.SubjectCreator, ID: testutil.CreatorID}
	require.Equal(t, int64(4500), testutil.LedgerBalance(t, db, owner, domain.LedgerRevenue))

	rf, err := svcs.payments.Refund(ctx, payment.RefundRequest{PaymentID: p.ID, Amount: 2000})
	require.NoError(t, err)
	assert.Equal(t, int64(2000), rf.Amount)
	assert.Equal(t, domain.RefundStatusSucceeded, rf.Status)

	stored, err := svcs.payments.GetPayment(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPartiallyRefunded, stored.Status)
	assert.Equal(t, int64(2500), testutil.LedgerBalance(t, db, owner, domain.LedgerRevenue))

	_, err = svcs.payments.Refund(ctx, payment.RefundRequest{PaymentID: p.ID, Amount: 3000})
	require.NoError(t, err)

	stored, err = svcs.payments.GetPayment(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusRefunded, stored.Status)

	// Debits carry the full refunded amount while credits only carry net, so
	// a full refund leaves the fee as a deficit on the owner's ledger.
	assert.Equal(t, int64(-500), testutil.LedgerBalance(t, db, owner, domain.LedgerRevenue))
	assert.Equal(t, 3, testutil.CountLedgerEntries(t, db, p.ID))

	assert.Contains(t, eventNames(*seen), "payment.refunded")

	_, err = svcs.payments.Refund(ctx, payment.RefundRequest{PaymentID: p.ID, Amount: 1})
	assert.ErrorIs(t, err, domain.ErrPaymentTerminal)
}

func TestRefund_ExceedsAvailable(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svcs := setupServices(t, db)
	ctx := context.Background()

	i := createCapturableIntent(t, svcs.intents, 5000)
	outcome, err := svcs.payments.Capture(ctx, payment.CaptureRequest{IntentID: i.ID})
	require.NoError(t, err)
	p := outcome.Payment

	_, err = svcs.payments.Refund(ctx, payment.RefundRequest{PaymentID: p.ID, Amount: 2000})
	require.NoError(t, err)

	_, err = svcs.payments.Refund(ctx, payment.RefundRequest{PaymentID: p.ID, Amount: 4000})
	assert.ErrorIs(t, err, domain.ErrRefundExceedsAvailable)

	// The rejected attempt writes nothing.
	var refunds int
	err = db.QueryRow(`SELECT COUNT(*) FROM payment_refunds WHERE payment_id = $1`, p.ID).Scan(&refunds)
	require.NoError(t, err)
	assert.Equal(t, 1, refunds)
}

func TestRefund_ZeroAmount(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svcs := setupServices(t, db)

	p := testutil.SeedPayment(t, db, fakegw.Name, 3000, 300)

	_, err := svcs.payments.Refund(context.Background(), payment.RefundRequest{PaymentID: p.ID, Amount: 0})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestLedger_ReplayReproducesBalances(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svcs := setupServices(t, db)
	ctx := context.Background()

	for _, amount := range []int64{1000, 2500, 400} {
		i := createCapturableIntent(t, svcs.intents, amount)
		outcome, err := svcs.payments.Capture(ctx, payment.CaptureRequest{IntentID: i.ID})
		require.NoError(t, err)
		if amount == 2500 {
			_, err = svcs.payments.Refund(ctx, payment.RefundRequest{PaymentID: outcome.Payment.ID, Amount: 500})
			require.NoError(t, err)
		}
	}

	owner := domain.Subject{Kind: domain.SubjectCreator, ID: testutil.CreatorID}
	ledger := repository.NewLedgerRepository(db)
	entries, err := ledger.GetByOwner(ctx, owner, domain.LedgerRevenue, 100, 0)
	require.NoError(t, err)
	require.Len(t, entries, 4)

	// Replaying the entries oldest-first reproduces every stored balance.
	var balance int64
	for _, e := range entries {
		balance += e.Signed()
		assert.Equal(t, e.BalanceAfter, balance)
	}
	assert.Equal(t, balance, testutil.LedgerBalance(t, db, owner, domain.LedgerRevenue))
}

func TestSettleFromProvider_AlreadyCaptured(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svcs := setupServices(t, db)
	ctx := context.Background()

	i := createCapturableIntent(t, svcs.intents, 1500)
	outcome, err := svcs.payments.Capture(ctx, payment.CaptureRequest{IntentID: i.ID})
	require.NoError(t, err)

	// A provider confirmation arriving after a direct capture only advances
	// the payment to settled; no second charge, no second ledger entry.
	stored, err := svcs.intents.GetIntent(ctx, i.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.ProviderIntentID)

	err = svcs.payments.SettleFromProvider(ctx, fakegw.Name, *stored.ProviderIntentID, &gateway.CaptureResponse{
		Provider:          fakegw.Name,
		ProviderPaymentID: outcome.Payment.ProviderPaymentID,
		Status:            gateway.StatusSucceeded,
		Amount:            1500,
	})
	require.NoError(t, err)

	p, err := svcs.payments.GetPayment(ctx, outcome.Payment.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusSettled, p.Status)
	assert.NotNil(t, p.SettledAt)

	assert.Equal(t, 1, testutil.CountPaymentsForIntent(t, db, i.ID))
	assert.Equal(t, 1, testutil.CountLedgerEntries(t, db, p.ID))
}

func TestSettleFromProvider_WebhookFirst(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svcs := setupServices(t, db)
	seen := recordEvents(svcs.bus)
	ctx := context.Background()

	i := createCapturableIntent(t, svcs.intents, 1500)
	require.NotNil(t, i.ProviderIntentID)

	err := svcs.payments.SettleFromProvider(ctx, fakegw.Name, *i.ProviderIntentID, &gateway.CaptureResponse{
		Provider:          fakegw.Name,
		ProviderPaymentID: "fake_ch_webhook",
		Status:            gateway.StatusSucceeded,
		Amount:            1500,
		Fee:               100,
	})
	require.NoError(t, err)

	stored, err := svcs.intents.GetIntent(ctx, i.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.IntentStatusSucceeded, stored.Status)

	assert.Equal(t, 1, testutil.CountPaymentsForIntent(t, db, i.ID))

	// The provider-reported fee wins over the schedule.
	var fee, net int64
	err = db.QueryRow(`SELECT fee, net FROM payments WHERE intent_id = $1`, i.ID).Scan(&fee, &net)
	require.NoError(t, err)
	assert.Equal(t, int64(100), fee)
	assert.Equal(t, int64(1400), net)

	assert.Contains(t, eventNames(*seen), "payment.captured")
}
