package intent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pressplay/payments/internal/config"
	"github.com/pressplay/payments/internal/domain"
	"github.com/pressplay/payments/internal/gateway"
	"github.com/pressplay/payments/internal/logging"
	"github.com/pressplay/payments/internal/money"
)

type intentRepo interface {
	Create(ctx context.Context, intent *domain.PaymentIntent) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.PaymentIntent, error)
	GetByProviderIntentID(ctx context.Context, provider, providerIntentID string) (*domain.PaymentIntent, error)
	UpdateStatusDirect(ctx context.Context, id uuid.UUID, status domain.IntentStatus, lastError *string) error
	Expire(ctx context.Context, id uuid.UUID, now time.Time) error
}

type eventBus interface {
	Publish(ctx context.Context, e domain.Event)
}

// Service owns the pre-charge state machine. Funds only move later, through
// the capture orchestrator.
type Service struct {
	intents  intentRepo
	gateways *gateway.Manager
	bus      eventBus
	cfg      *config.Config
	now      func() time.Time
}

func NewService(intents intentRepo, gateways *gateway.Manager, bus eventBus, cfg *config.Config) *Service {
	return &Service{
		intents:  intents,
		gateways: gateways,
		bus:      bus,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

type CreateRequest struct {
	PayableKind         domain.SubjectKind
	PayableID           uuid.UUID
	Amount              int64
	Currency            money.Currency
	PayerID             uuid.UUID
	PayeeID             *uuid.UUID
	Type                domain.IntentType
	MethodHint          string
	StatementDescriptor string
	Metadata            map[string]string
	Gateway             string
}

func (s *Service) CreateIntent(ctx context.Context, req CreateRequest) (*domain.PaymentIntent, error) {
	log := logging.FromContext(ctx)

	amount, err := money.New(req.Amount, req.Currency)
	if err != nil {
		return nil, fmt.Errorf("CreateIntent: %w", err)
	}
	if amount.IsZero() {
		return nil, fmt.Errorf("CreateIntent: %w", domain.ErrInvalidAmount)
	}

	gw, err := s.gateways.Resolve(req.Gateway)
	if err != nil {
		return nil, fmt.Errorf("CreateIntent: %w", err)
	}

	gwCtx, cancel := s.gatewayContext(ctx)
	defer cancel()

	resp, err := gw.CreateIntent(gwCtx, gateway.IntentRequest{
		Amount:              amount.Amount(),
		Currency:            amount.Currency(),
		PayerRef:            req.PayerID.String(),
		Type:                req.Type,
		MethodHint:          req.MethodHint,
		StatementDescriptor: req.StatementDescriptor,
		Metadata:            req.Metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("CreateIntent: %w", err)
	}

	now := s.now()
	var metadata json.RawMessage
	if len(req.Metadata) > 0 {
		metadata, _ = json.Marshal(req.Metadata)
	}

	i := &domain.PaymentIntent{
		ID:               uuid.New(),
		PayableKind:      req.PayableKind,
		PayableID:        req.PayableID,
		Amount:           amount.Amount(),
		Currency:         amount.Currency(),
		PayerID:          req.PayerID,
		PayeeID:          req.PayeeID,
		Type:             req.Type,
		Status:           gateway.IntentStatusFromProvider(resp.Status),
		Provider:         gw.Name(),
		ProviderIntentID: &resp.ProviderIntentID,
		ClientSecret:     &resp.ClientSecret,
		Metadata:         metadata,
		ExpiresAt:        now.Add(time.Duration(s.cfg.IntentTTLMinutes) * time.Minute),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if req.MethodHint != "" {
		i.MethodHint = &req.MethodHint
	}

	if err := s.intents.Create(ctx, i); err != nil {
		return nil, fmt.Errorf("CreateIntent: %w", err)
	}

	log.Info("payment intent created",
		"intent_id", i.ID,
		"provider", i.Provider,
		"provider_intent_id", resp.ProviderIntentID,
		"amount", i.Amount,
		"currency", i.Currency,
		"payer_id", i.PayerID,
	)

	s.bus.Publish(ctx, domain.PaymentInitiated{Intent: *i})

	return i, nil
}

func (s *Service) GetIntent(ctx context.Context, id uuid.UUID) (*domain.PaymentIntent, error) {
	i, err := s.intents.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("GetIntent: %w", err)
	}
	return i, nil
}

// ConfirmIntent advances the intent per the gateway's answer. Expiry is
// checked before calling out so a stale intent can never progress.
func (s *Service) ConfirmIntent(ctx context.Context, id uuid.UUID) (*domain.PaymentIntent, error) {
	i, err := s.intents.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("ConfirmIntent: %w", err)
	}

	if err := s.checkExpiry(ctx, i); err != nil {
		return nil, fmt.Errorf("ConfirmIntent: %w", err)
	}
	if i.Status.Terminal() {
		return nil, fmt.Errorf("ConfirmIntent: %w", domain.ErrIntentTerminal)
	}
	if i.ProviderIntentID == nil {
		return nil, fmt.Errorf("ConfirmIntent: %w", domain.ErrIntentNotFound)
	}

	gw, err := s.gateways.Resolve(i.Provider)
	if err != nil {
		return nil, fmt.Errorf("ConfirmIntent: %w", err)
	}

	gwCtx, cancel := s.gatewayContext(ctx)
	defer cancel()

	resp, err := gw.ConfirmIntent(gwCtx, *i.ProviderIntentID)
	if err != nil {
		return nil, fmt.Errorf("ConfirmIntent: %w", err)
	}

	status := gateway.IntentStatusFromProvider(resp.Status)
	if err := s.intents.UpdateStatusDirect(ctx, i.ID, status, nil); err != nil {
		return nil, fmt.Errorf("ConfirmIntent: %w", err)
	}
	i.Status = status

	return i, nil
}

// CancelIntent is idempotent and locally terminal: the provider call is
// best-effort, the local row always ends cancelled so no further capture can
// happen. A reconciliation pass can confirm or undo the provider side later.
func (s *Service) CancelIntent(ctx context.Context, id uuid.UUID) (*domain.PaymentIntent, error) {
	log := logging.FromContext(ctx)

	i, err := s.intents.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("CancelIntent: %w", err)
	}

	if i.Status == domain.IntentStatusCancelled {
		return i, nil
	}
	if i.Status.Terminal() {
		return nil, fmt.Errorf("CancelIntent: %w", domain.ErrIntentTerminal)
	}

	var lastError *string
	if i.ProviderIntentID != nil {
		gw, err := s.gateways.Resolve(i.Provider)
		if err != nil {
			return nil, fmt.Errorf("CancelIntent: %w", err)
		}

		gwCtx, cancel := s.gatewayContext(ctx)
		defer cancel()

		if _, err := gw.CancelIntent(gwCtx, *i.ProviderIntentID); err != nil {
			msg := err.Error()
			lastError = &msg
			log.Warn("provider-side cancel failed, intent cancelled locally",
				"intent_id", i.ID,
				"provider", i.Provider,
				"error", err,
			)
		}
	}

	if err := s.intents.UpdateStatusDirect(ctx, i.ID, domain.IntentStatusCancelled, lastError); err != nil {
		// A concurrent writer beat us to a terminal status. If it was another
		// cancel, this call still succeeded from the caller's point of view.
		if errors.Is(err, domain.ErrIntentTerminal) {
			current, getErr := s.intents.GetByID(ctx, id)
			if getErr == nil && current.Status == domain.IntentStatusCancelled {
				return current, nil
			}
		}
		return nil, fmt.Errorf("CancelIntent: %w", err)
	}
	i.Status = domain.IntentStatusCancelled
	i.LastError = lastError

	return i, nil
}

// checkExpiry enforces expiry at read time. A stale intent is persisted as
// expired before the caller can act on it.
func (s *Service) checkExpiry(ctx context.Context, i *domain.PaymentIntent) error {
	if i.Status.Terminal() || !i.ExpiredAt(s.now()) {
		return nil
	}

	if err := s.intents.Expire(ctx, i.ID, s.now()); err != nil {
		return fmt.Errorf("checkExpiry: %w", err)
	}
	i.Status = domain.IntentStatusExpired
	return domain.ErrIntentExpired
}

func (s *Service) gatewayContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, time.Duration(s.cfg.GatewayTimeoutS)*time.Second)
}

// MarkFailedFromProvider records a provider-reported intent failure arriving
// through a webhook. Terminal intents no-op.
func (s *Service) MarkFailedFromProvider(ctx context.Context, provider, providerIntentID string, reason domain.DeclineReason) error {
	i, err := s.intents.GetByProviderIntentID(ctx, provider, providerIntentID)
	if err != nil {
		return fmt.Errorf("MarkFailedFromProvider: %w", err)
	}
	if i.Status.Terminal() {
		return nil
	}

	msg := string(reason)
	if err := s.intents.UpdateStatusDirect(ctx, i.ID, domain.IntentStatusRequiresMethod, &msg); err != nil {
		// The intent went terminal between the read and the write, typically a
		// settle racing a late failure callback. Same no-op as the check above.
		if errors.Is(err, domain.ErrIntentTerminal) {
			return nil
		}
		return fmt.Errorf("MarkFailedFromProvider: %w", err)
	}
	i.LastError = &msg

	s.bus.Publish(ctx, domain.PaymentFailed{Intent: *i, Reason: reason})
	return nil
}
