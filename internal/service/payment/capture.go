package payment

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pressplay/payments/internal/domain"
	"github.com/pressplay/payments/internal/gateway"
	"github.com/pressplay/payments/internal/logging"
)

type CaptureRequest struct {
	IntentID            uuid.UUID
	PaymentMethodID     string
	StatementDescriptor string
}

// CaptureOutcome is the typed result of a capture attempt. A decline is a
// normal business outcome: Payment is nil, Declined is set and Reason carries
// the normalized cause. Infrastructure failures come back as errors instead.
type CaptureOutcome struct {
	Payment  *domain.Payment
	Declined bool
	Reason   domain.DeclineReason
	Message  string
}

// Capture settles a confirmed intent into exactly one Payment. The per-intent
// row lock is held for the whole of check, gateway call, payment write and
// ledger posting; a concurrent caller fails fast with CaptureInProgress.
func (s *Service) Capture(ctx context.Context, req CaptureRequest) (*CaptureOutcome, error) {
	log := logging.FromContext(ctx)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("Capture: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	i, err := s.intents.GetForUpdateNoWait(ctx, tx, req.IntentID)
	if err != nil {
		return nil, fmt.Errorf("Capture: %w", err)
	}

	// A capture that already settled this intent wins; replays observe the
	// existing payment instead of charging again.
	if i.Status == domain.IntentStatusSucceeded {
		p, err := s.payments.GetByIntentID(ctx, i.ID)
		if err != nil {
			return nil, fmt.Errorf("Capture: %w", err)
		}
		return &CaptureOutcome{Payment: p}, nil
	}

	if i.ExpiredAt(s.now()) {
		if err := s.intents.UpdateStatus(ctx, tx, i.ID, domain.IntentStatusExpired, nil); err != nil {
			return nil, fmt.Errorf("Capture: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("Capture: commit expiry: %w", err)
		}
		return nil, fmt.Errorf("Capture: %w", domain.ErrIntentExpired)
	}

	if !i.Capturable() {
		return nil, fmt.Errorf("Capture: status %s: %w", i.Status, domain.ErrIntentNotCapturable)
	}
	if i.ProviderIntentID == nil {
		return nil, fmt.Errorf("Capture: %w", domain.ErrIntentNotCapturable)
	}

	gw, err := s.gateways.Resolve(i.Provider)
	if err != nil {
		return nil, fmt.Errorf("Capture: %w", err)
	}

	gwCtx, cancel := s.gatewayContext(ctx)
	resp, err := gw.CapturePayment(gwCtx, gateway.CaptureRequest{
		ProviderIntentID:    *i.ProviderIntentID,
		Amount:              i.Amount,
		Currency:            i.Currency,
		PaymentMethodID:     req.PaymentMethodID,
		StatementDescriptor: req.StatementDescriptor,
	})
	cancel()
	if err != nil {
		var decline *gateway.DeclineError
		if errors.As(err, &decline) {
			return s.recordDecline(ctx, tx, i, decline)
		}
		// Timeout or provider failure: roll back and release the lock so the
		// caller can retry. The intent stays non-terminal.
		return nil, fmt.Errorf("Capture: %w", err)
	}

	p, err := s.settle(ctx, tx, i, resp, req.StatementDescriptor)
	if err != nil {
		return nil, fmt.Errorf("Capture: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("Capture: commit: %w", err)
	}

	log.Info("payment captured",
		"payment_id", p.ID,
		"intent_id", i.ID,
		"amount", p.Amount,
		"fee", p.Fee,
		"net", p.Net,
		"currency", p.Currency,
	)

	s.bus.Publish(ctx, domain.PaymentCaptured{Payment: *p})

	return &CaptureOutcome{Payment: p}, nil
}

// recordDecline commits the decline diagnostics while leaving the intent
// capturable for another attempt with a different method.
func (s *Service) recordDecline(ctx context.Context, tx *sql.Tx, i *domain.PaymentIntent, decline *gateway.DeclineError) (*CaptureOutcome, error) {
	log := logging.FromContext(ctx)

	msg := string(decline.Reason)
	if err := s.intents.UpdateStatus(ctx, tx, i.ID, domain.IntentStatusRequiresMethod, &msg); err != nil {
		return nil, fmt.Errorf("recordDecline: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("recordDecline: commit: %w", err)
	}

	i.Status = domain.IntentStatusRequiresMethod
	i.LastError = &msg

	log.Info("capture declined",
		"intent_id", i.ID,
		"reason", decline.Reason,
	)

	s.bus.Publish(ctx, domain.PaymentFailed{Intent: *i, Reason: decline.Reason})

	return &CaptureOutcome{
		Declined: true,
		Reason:   decline.Reason,
		Message:  decline.Message,
	}, nil
}

// settle writes the Payment row, marks the intent succeeded and posts the
// ledger credit, all on the caller's transaction.
func (s *Service) settle(ctx context.Context, tx *sql.Tx, i *domain.PaymentIntent, resp *gateway.CaptureResponse, statementDescriptor string) (*domain.Payment, error) {
	now := s.now()

	amount := resp.Amount
	if amount == 0 {
		amount = i.Amount
	}
	fee := resp.Fee
	if fee == 0 {
		fee = s.platformFee(amount)
	}

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
		Currency:          i.Currency,
		Status:            domain.PaymentStatusCaptured,
		Provider:          i.Provider,
		ProviderPaymentID: resp.ProviderPaymentID,
		Raw:               json.RawMessage(resp.Raw),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if statementDescriptor != "" {
		p.StatementDescriptor = &statementDescriptor
	}

	if err := s.payments.Create(ctx, tx, p); err != nil {
		return nil, fmt.Errorf("settle: %w", err)
	}

	if err := s.intents.UpdateStatus(ctx, tx, i.ID, domain.IntentStatusSucceeded, nil); err != nil {
		return nil, fmt.Errorf("settle: %w", err)
	}

	if err := s.postCredit(ctx, tx, p, now); err != nil {
		return nil, fmt.Errorf("settle: %w", err)
	}

	return p, nil
}

// postCredit appends the payment's credit to the owner's revenue ledger,
// serialized through the per-ledger advisory lock.
func (s *Service) postCredit(ctx context.Context, tx *sql.Tx, p *domain.Payment, now time.Time) error {
	owner := p.LedgerOwner()

	if err := s.ledger.LockLedger(ctx, tx, owner, domain.LedgerRevenue); err != nil {
		return err
	}
	balance, err := s.ledger.LastBalance(ctx, tx, owner, domain.LedgerRevenue)
	if err != nil {
		return err
	}

	return s.ledger.Create(ctx, tx, &domain.LedgerEntry{
		ID:             uuid.New(),
		LedgerableKind: owner.Kind,
		LedgerableID:   owner.ID,
		Ledger:         domain.LedgerRevenue,
		PaymentID:      p.ID,
		Direction:      domain.EntryDirectionCredit,
		Amount:         p.Net,
		Currency:       p.Currency,
		BalanceAfter:   balance + p.Net,
		OccurredAt:     now,
	})
}
