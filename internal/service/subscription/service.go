package subscription

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pressplay/payments/internal/config"
	"github.com/pressplay/payments/internal/domain"
	"github.com/pressplay/payments/internal/gateway"
	"github.com/pressplay/payments/internal/logging"
	"github.com/pressplay/payments/internal/money"
)

type subscriptionRepo interface {
	Create(ctx context.Context, sub *domain.PaymentSubscription) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.PaymentSubscription, error)
	GetByProviderSubscriptionID(ctx context.Context, provider, providerSubscriptionID string) (*domain.PaymentSubscription, error)
	GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.PaymentSubscription, error)
	Update(ctx context.Context, tx *sql.Tx, sub *domain.PaymentSubscription) error
	ListLapsed(ctx context.Context, tx *sql.Tx, now time.Time, limit int) ([]domain.PaymentSubscription, error)
}

type eventBus interface {
	Publish(ctx context.Context, e domain.Event)
}

// Service drives the recurring-billing state machine. Lifecycle transitions
// arriving from direct calls and from provider webhooks serialize through a
// row lock on the subscription.
type Service struct {
	db       *sql.DB
	subs     subscriptionRepo
	gateways *gateway.Manager
	bus      eventBus
	cfg      *config.Config
	now      func() time.Time
}

func NewService(db *sql.DB, subs subscriptionRepo, gateways *gateway.Manager, bus eventBus, cfg *config.Config) *Service {
	return &Service{
		db:       db,
		subs:     subs,
		gateways: gateways,
		bus:      bus,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

type CreateRequest struct {
	SubscriberID    uuid.UUID
	CreatorID       uuid.UUID
	PlanID          string
	Amount          int64
	Currency        money.Currency
	Interval        domain.BillingInterval
	IntervalCount   int
	TrialDays       int
	PaymentMethodID string
	Gateway         string
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (*domain.PaymentSubscription, error) {
	log := logging.FromContext(ctx)

	amount, err := money.New(req.Amount, req.Currency)
	if err != nil {
		return nil, fmt.Errorf("Create: %w", err)
	}
	if amount.IsZero() {
		return nil, fmt.Errorf("Create: %w", domain.ErrInvalidAmount)
	}
	if req.IntervalCount <= 0 {
		req.IntervalCount = 1
	}

	name := req.Gateway
	if name == "" {
		name = s.gateways.DefaultName()
	}
	gw, err := s.gateways.ResolveSubscriptions(name)
	if err != nil {
		return nil, fmt.Errorf("Create: %w", err)
	}

	gwCtx, cancel := s.gatewayContext(ctx)
	resp, err := gw.CreateSubscription(gwCtx, gateway.SubscriptionRequest{
		PlanRef:         req.PlanID,
		CustomerRef:     req.SubscriberID.String(),
		Amount:          amount.Amount(),
		Currency:        amount.Currency(),
		Interval:        req.Interval,
		IntervalCount:   req.IntervalCount,
		TrialDays:       req.TrialDays,
		PaymentMethodID: req.PaymentMethodID,
	})
	cancel()
	if err != nil {
		return nil, fmt.Errorf("Create: %w", err)
	}

	now := s.now()
	periodEnd := resp.CurrentPeriodEnd
	if periodEnd.IsZero() {
		periodEnd = advancePeriod(now, req.Interval, req.IntervalCount)
	}

	sub := &domain.PaymentSubscription{
		ID:                     uuid.New(),
		SubscriberID:           req.SubscriberID,
		CreatorID:              req.CreatorID,
		PlanID:                 req.PlanID,
		Amount:                 amount.Amount(),
		Currency:               amount.Currency(),
		Interval:               req.Interval,
		IntervalCount:          req.IntervalCount,
		Status:                 domain.SubscriptionStatusActive,
		Provider:               name,
		ProviderSubscriptionID: &resp.ProviderSubscriptionID,
		AutoRenews:             true,
		StartsAt:               now,
		CurrentPeriodStart:     now,
		CurrentPeriodEnd:       periodEnd,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	if req.TrialDays > 0 {
		trialEnd := now.AddDate(0, 0, req.TrialDays)
		sub.Status = domain.SubscriptionStatusTrialing
		sub.TrialEndsAt = &trialEnd
	}

	if err := s.subs.Create(ctx, sub); err != nil {
		return nil, fmt.Errorf("Create: %w", err)
	}

	log.Info("subscription created",
		"subscription_id", sub.ID,
		"subscriber_id", sub.SubscriberID,
		"creator_id", sub.CreatorID,
		"plan_id", sub.PlanID,
		"status", sub.Status,
	)

	s.bus.Publish(ctx, domain.SubscriptionStarted{Subscription: *sub})

	return sub, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*domain.PaymentSubscription, error) {
	return s.subs.GetByID(ctx, id)
}

// SwapResult carries the updated subscription and what the swap costs today
// after the daily proration credit for the unused remainder of the period.
type SwapResult struct {
	Subscription *domain.PaymentSubscription
	Credit       money.Money
	AmountDue    money.Money
}

func (s *Service) Swap(ctx context.Context, id uuid.UUID, newPlanID string, newAmount int64) (*SwapResult, error) {
	log := logging.FromContext(ctx)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("Swap: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	sub, err := s.subs.GetForUpdate(ctx, tx, id)
	if err != nil {
		return nil, fmt.Errorf("Swap: %w", err)
	}
	if sub.Status.Terminal() {
		return nil, fmt.Errorf("Swap: status %s: %w", sub.Status, domain.ErrSubscriptionTerminal)
	}

	currentPrice := money.MustNew(sub.Amount, sub.Currency)
	newPrice, err := money.New(newAmount, sub.Currency)
	if err != nil {
		return nil, fmt.Errorf("Swap: %w", err)
	}

	now := s.now()
	totalDays := daysBetween(sub.CurrentPeriodStart, sub.CurrentPeriodEnd)
	remaining := daysBetween(now, sub.CurrentPeriodEnd)

	credit := ProratedCredit(currentPrice, totalDays, remaining)
	due, err := UpgradePrice(newPrice, credit)
	if err != nil {
		return nil, fmt.Errorf("Swap: %w", err)
	}

	if sub.ProviderSubscriptionID != nil {
		gw, err := s.gateways.ResolveSubscriptions(sub.Provider)
		if err != nil {
			return nil, fmt.Errorf("Swap: %w", err)
		}
		gwCtx, cancel := s.gatewayContext(ctx)
		_, err = gw.SwapSubscription(gwCtx, *sub.ProviderSubscriptionID, newPlanID, newPrice.Amount())
		cancel()
		if err != nil {
			return nil, fmt.Errorf("Swap: %w", err)
		}
	}

	sub.PlanID = newPlanID
	sub.Amount = newPrice.Amount()
	if err := s.subs.Update(ctx, tx, sub); err != nil {
		return nil, fmt.Errorf("Swap: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("Swap: commit: %w", err)
	}

	log.Info("subscription plan swapped",
		"subscription_id", sub.ID,
		"plan_id", newPlanID,
		"credit", credit.Amount(),
		"amount_due", due.Amount(),
	)

	return &SwapResult{Subscription: sub, Credit: credit, AmountDue: due}, nil
}

// Cancel ends the subscription now or at the period boundary. Cancelling an
// already-cancelled subscription is a no-op success.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, immediate bool) (*domain.PaymentSubscription, error) {
	log := logging.FromContext(ctx)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("Cancel: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	sub, err := s.subs.GetForUpdate(ctx, tx, id)
	if err != nil {
		return nil, fmt.Errorf("Cancel: %w", err)
	}
	if sub.Status == domain.SubscriptionStatusCancelled {
		return sub, nil
	}
	if sub.Status.Terminal() {
		return nil, fmt.Errorf("Cancel: status %s: %w", sub.Status, domain.ErrSubscriptionTerminal)
	}

	if sub.ProviderSubscriptionID != nil {
		gw, err := s.gateways.ResolveSubscriptions(sub.Provider)
		if err != nil {
			return nil, fmt.Errorf("Cancel: %w", err)
		}
		gwCtx, cancel := s.gatewayContext(ctx)
		_, err = gw.CancelSubscription(gwCtx, *sub.ProviderSubscriptionID, !immediate)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("Cancel: %w", err)
		}
	}

	now := s.now()
	sub.AutoRenews = false
	if immediate {
		sub.Status = domain.SubscriptionStatusCancelled
		sub.EndsAt = &now
	} else {
		// Access continues until the paid-for period runs out; the lapse
		// sweep expires it then.
		end := sub.CurrentPeriodEnd
		sub.EndsAt = &end
	}

	if err := s.subs.Update(ctx, tx, sub); err != nil {
		return nil, fmt.Errorf("Cancel: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("Cancel: commit: %w", err)
	}

	log.Info("subscription cancelled",
		"subscription_id", sub.ID,
		"immediate", immediate,
		"ends_at", sub.EndsAt,
	)

	s.bus.Publish(ctx, domain.SubscriptionCancelled{Subscription: *sub})

	return sub, nil
}

// Resume returns a lapsed-payment subscription to active. Only past_due and
// grace qualify; cancelled and expired need a fresh Create.
func (s *Service) Resume(ctx context.Context, id uuid.UUID, paymentMethodID string) (*domain.PaymentSubscription, error) {
	log := logging.FromContext(ctx)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("Resume: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	sub, err := s.subs.GetForUpdate(ctx, tx, id)
	if err != nil {
		return nil, fmt.Errorf("Resume: %w", err)
	}
	if !sub.Status.Recoverable() {
		return nil, fmt.Errorf("Resume: status %s: %w", sub.Status, domain.ErrSubscriptionNotResumable)
	}

	if sub.ProviderSubscriptionID != nil {
		gw, err := s.gateways.ResolveSubscriptions(sub.Provider)
		if err != nil {
			return nil, fmt.Errorf("Resume: %w", err)
		}
		gwCtx, cancel := s.gatewayContext(ctx)
		_, err = gw.ResumeSubscription(gwCtx, *sub.ProviderSubscriptionID, paymentMethodID)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("Resume: %w", err)
		}
	}

	sub.Status = domain.SubscriptionStatusActive
	sub.AutoRenews = true
	sub.GraceEndsAt = nil
	sub.EndsAt = nil

	if err := s.subs.Update(ctx, tx, sub); err != nil {
		return nil, fmt.Errorf("Resume: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("Resume: commit: %w", err)
	}

	log.Info("subscription resumed", "subscription_id", sub.ID)

	s.bus.Publish(ctx, domain.SubscriptionRenewed{Subscription: *sub})

	return sub, nil
}

// MarkRenewed applies a provider renewal notification: advance the billing
// period and return to active from trialing/past_due/grace.
func (s *Service) MarkRenewed(ctx context.Context, provider, providerSubscriptionID string, periodStart, periodEnd time.Time) error {
	sub, err := s.subs.GetByProviderSubscriptionID(ctx, provider, providerSubscriptionID)
	if err != nil {
		return fmt.Errorf("MarkRenewed: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("MarkRenewed: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	sub, err = s.subs.GetForUpdate(ctx, tx, sub.ID)
	if err != nil {
		return fmt.Errorf("MarkRenewed: %w", err)
	}
	if sub.Status.Terminal() {
		return nil
	}

	if periodStart.IsZero() {
		periodStart = sub.CurrentPeriodEnd
	}
	if periodEnd.IsZero() {
		periodEnd = advancePeriod(periodStart, sub.Interval, sub.IntervalCount)
	}

	sub.Status = domain.SubscriptionStatusActive
	sub.GraceEndsAt = nil
	sub.CurrentPeriodStart = periodStart
	sub.CurrentPeriodEnd = periodEnd

	if err := s.subs.Update(ctx, tx, sub); err != nil {
		return fmt.Errorf("MarkRenewed: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("MarkRenewed: commit: %w", err)
	}

	s.bus.Publish(ctx, domain.SubscriptionRenewed{Subscription: *sub})

	return nil
}

// HandlePaymentFailed degrades the subscription one step per failed renewal
// charge: active or trialing drops to past_due, past_due drops to grace with
// a bounded grace window. The lapse sweep expires it after that.
func (s *Service) HandlePaymentFailed(ctx context.Context, provider, providerSubscriptionID string) error {
	log := logging.FromContext(ctx)

	sub, err := s.subs.GetByProviderSubscriptionID(ctx, provider, providerSubscriptionID)
	if err != nil {
		return fmt.Errorf("HandlePaymentFailed: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("HandlePaymentFailed: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	sub, err = s.subs.GetForUpdate(ctx, tx, sub.ID)
	if err != nil {
		return fmt.Errorf("HandlePaymentFailed: %w", err)
	}
	if sub.Status.Terminal() {
		return nil
	}

	var enteredGrace bool
	switch sub.Status {
	case domain.SubscriptionStatusActive, domain.SubscriptionStatusTrialing:
		sub.Status = domain.SubscriptionStatusPastDue
	case domain.SubscriptionStatusPastDue:
		graceEnd := s.now().AddDate(0, 0, s.cfg.GraceDays)
		sub.Status = domain.SubscriptionStatusGrace
		sub.GraceEndsAt = &graceEnd
		enteredGrace = true
	case domain.SubscriptionStatusGrace:
		// Already in the last chance window; the sweep decides its fate.
		return nil
	}

	if err := s.subs.Update(ctx, tx, sub); err != nil {
		return fmt.Errorf("HandlePaymentFailed: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("HandlePaymentFailed: commit: %w", err)
	}

	log.Info("subscription payment failed",
		"subscription_id", sub.ID,
		"status", sub.Status,
	)

	s.bus.Publish(ctx, domain.SubscriptionPaymentFailed{Subscription: *sub})
	if enteredGrace {
		s.bus.Publish(ctx, domain.SubscriptionEnteredGrace{Subscription: *sub})
	}

	return nil
}

// SweepLapsed expires subscriptions whose grace window or scheduled end has
// passed. Safe to run from multiple processes; lapsed rows are claimed with
// SKIP LOCKED.
func (s *Service) SweepLapsed(ctx context.Context, limit int) (int, error) {
	log := logging.FromContext(ctx)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("SweepLapsed: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := s.now()
	lapsed, err := s.subs.ListLapsed(ctx, tx, now, limit)
	if err != nil {
		return 0, fmt.Errorf("SweepLapsed: %w", err)
	}

	for idx := range lapsed {
		sub := &lapsed[idx]
		sub.Status = domain.SubscriptionStatusExpired
		if sub.EndsAt == nil {
			sub.EndsAt = &now
		}
		if err := s.subs.Update(ctx, tx, sub); err != nil {
			return 0, fmt.Errorf("SweepLapsed: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("SweepLapsed: commit: %w", err)
	}

	for idx := range lapsed {
		s.bus.Publish(ctx, domain.SubscriptionExpired{Subscription: lapsed[idx]})
	}

	if len(lapsed) > 0 {
		log.Info("expired lapsed subscriptions", "count", len(lapsed))
	}

	return len(lapsed), nil
}

func (s *Service) gatewayContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, time.Duration(s.cfg.GatewayTimeoutS)*time.Second)
}

func advancePeriod(from time.Time, interval domain.BillingInterval, count int) time.Time {
	if count <= 0 {
		count = 1
	}
	switch interval {
	case domain.IntervalDay:
		return from.AddDate(0, 0, count)
	case domain.IntervalWeek:
		return from.AddDate(0, 0, 7*count)
	case domain.IntervalYear:
		return from.AddDate(count, 0, 0)
	default:
		return from.AddDate(0, count, 0)
	}
}
