package payment

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/pressplay/payments/internal/domain"
	"github.com/pressplay/payments/internal/gateway"
	"github.com/pressplay/payments/internal/logging"
	"github.com/pressplay/payments/internal/money"
)

type RefundRequest struct {
	PaymentID uuid.UUID
	Amount    int64
	Reason    *string
}

// Refund reverses part or all of a settled payment. The payment row lock
// serializes concurrent refunds so the refundable bound is checked against a
// consistent snapshot; the refund row and its compensating ledger debit
// commit together.
func (s *Service) Refund(ctx context.Context, req RefundRequest) (*domain.PaymentRefund, error) {
	log := logging.FromContext(ctx)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("Refund: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	p, err := s.payments.GetForUpdate(ctx, tx, req.PaymentID)
	if err != nil {
		return nil, fmt.Errorf("Refund: %w", err)
	}

	if p.Status == domain.PaymentStatusFailed || p.Status == domain.PaymentStatusRefunded {
		return nil, fmt.Errorf("Refund: status %s: %w", p.Status, domain.ErrPaymentTerminal)
	}

	amount, err := money.New(req.Amount, p.Currency)
	if err != nil {
		return nil, fmt.Errorf("Refund: %w", err)
	}
	if amount.IsZero() {
		return nil, fmt.Errorf("Refund: %w", domain.ErrInvalidAmount)
	}

	refunded, err := s.refunds.SumSucceeded(ctx, tx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("Refund: %w", err)
	}
	if refunded+amount.Amount() > p.Amount {
		return nil, fmt.Errorf("Refund: %d of %d already refunded: %w",
			refunded, p.Amount, domain.ErrRefundExceedsAvailable)
	}

	gw, err := s.gateways.Resolve(p.Provider)
	if err != nil {
		return nil, fmt.Errorf("Refund: %w", err)
	}

	var reason string
	if req.Reason != nil {
		reason = *req.Reason
	}

	gwCtx, cancel := s.gatewayContext(ctx)
	resp, err := gw.RefundPayment(gwCtx, gateway.RefundRequest{
		ProviderPaymentID: p.ProviderPaymentID,
		Amount:            amount.Amount(),
		Currency:          p.Currency,
		Reason:            reason,
	})
	cancel()
	if err != nil {
		return nil, fmt.Errorf("Refund: %w", err)
	}

	now := s.now()
	rf := &domain.PaymentRefund{
		ID:               uuid.New(),
		PaymentID:        p.ID,
		Amount:           amount.Amount(),
		Currency:         p.Currency,
		Status:           domain.RefundStatusSucceeded,
		Reason:           req.Reason,
		Provider:         p.Provider,
		ProviderRefundID: resp.ProviderRefundID,
		CreatedAt:        now,
	}

	if err := s.refunds.Create(ctx, tx, rf); err != nil {
		return nil, fmt.Errorf("Refund: %w", err)
	}

	if err := s.postDebit(ctx, tx, p, rf); err != nil {
		return nil, fmt.Errorf("Refund: %w", err)
	}

	status := domain.PaymentStatusPartiallyRefunded
	if refunded+amount.Amount() == p.Amount {
		status = domain.PaymentStatusRefunded
	}
	if err := s.payments.UpdateStatus(ctx, tx, p.ID, status, nil); err != nil {
		return nil, fmt.Errorf("Refund: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("Refund: commit: %w", err)
	}

	p.Status = status

	log.Info("payment refunded",
		"payment_id", p.ID,
		"refund_id", rf.ID,
		"amount", rf.Amount,
		"currency", rf.Currency,
		"payment_status", status,
	)

	s.bus.Publish(ctx, domain.PaymentRefunded{Payment: *p, Refund: *rf})

	return rf, nil
}

// postDebit appends the mirror-image debit for a refund. The fee is not
// returned: the owner's balance drops by the full refunded amount, matching
// how the upstream providers settle refunds.
func (s *Service) postDebit(ctx context.Context, tx *sql.Tx, p *domain.Payment, rf *domain.PaymentRefund) error {
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
		RefundID:       &rf.ID,
		Direction:      domain.EntryDirectionDebit,
		Amount:         rf.Amount,
		Currency:       rf.Currency,
		BalanceAfter:   balance - rf.Amount,
		OccurredAt:     rf.CreatedAt,
	})
}
