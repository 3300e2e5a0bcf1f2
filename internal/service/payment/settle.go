package payment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pressplay/payments/internal/domain"
	"github.com/pressplay/payments/internal/gateway"
	"github.com/pressplay/payments/internal/logging"
)

// SettleFromProvider applies a provider callback reporting a completed
// charge. It serializes through the same per-intent lock as Capture, so a
// webhook racing the originating request cannot create a second Payment:
// whichever observes the intent non-terminal first settles it, the other
// no-ops against the terminal status.
func (s *Service) SettleFromProvider(ctx context.Context, provider, providerIntentID string, resp *gateway.CaptureResponse) error {
	log := logging.FromContext(ctx)

	i, err := s.intents.GetByProviderIntentID(ctx, provider, providerIntentID)
	if err != nil {
		return fmt.Errorf("SettleFromProvider: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("SettleFromProvider: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	i, err = s.intents.GetForUpdateNoWait(ctx, tx, i.ID)
	if err != nil {
		// A direct capture holding the lock will settle the intent itself;
		// the provider retries the webhook and finds it terminal then.
		return fmt.Errorf("SettleFromProvider: %w", err)
	}

	if i.Status == domain.IntentStatusSucceeded {
		return s.markSettled(ctx, tx, i)
	}
	if i.Status.Terminal() {
		log.Warn("provider settled an intent that is locally terminal",
			"intent_id", i.ID,
			"status", i.Status,
			"provider", provider,
		)
		return nil
	}

	p, err := s.settle(ctx, tx, i, resp, "")
	if err != nil {
		return fmt.Errorf("SettleFromProvider: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("SettleFromProvider: commit: %w", err)
	}

	log.Info("payment settled from provider callback",
		"payment_id", p.ID,
		"intent_id", i.ID,
		"provider", provider,
	)

	s.bus.Publish(ctx, domain.PaymentCaptured{Payment: *p})

	return nil
}

// markSettled advances an already-captured payment to settled when the
// provider confirms funds movement. Forward-only; replays no-op.
func (s *Service) markSettled(ctx context.Context, tx *sql.Tx, i *domain.PaymentIntent) error {
	p, err := s.payments.GetByIntentID(ctx, i.ID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("markSettled: %w", err)
	}
	if !p.Status.CanProgressTo(domain.PaymentStatusSettled) {
		return nil
	}

	now := s.now()
	if err := s.payments.UpdateStatus(ctx, tx, p.ID, domain.PaymentStatusSettled, &now); err != nil {
		return fmt.Errorf("markSettled: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("markSettled: commit: %w", err)
	}
	return nil
}
