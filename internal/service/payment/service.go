package payment

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pressplay/payments/internal/config"
	"github.com/pressplay/payments/internal/domain"
	"github.com/pressplay/payments/internal/gateway"
)

type intentRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.PaymentIntent, error)
	GetByProviderIntentID(ctx context.Context, provider, providerIntentID string) (*domain.PaymentIntent, error)
	GetForUpdateNoWait(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.PaymentIntent, error)
	UpdateStatus(ctx context.Context, tx *sql.Tx, id uuid.UUID, status domain.IntentStatus, lastError *string) error
}

type paymentRepo interface {
	Create(ctx context.Context, tx *sql.Tx, payment *domain.Payment) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error)
	GetByIntentID(ctx context.Context, intentID uuid.UUID) (*domain.Payment, error)
	GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Payment, error)
	UpdateStatus(ctx context.Context, tx *sql.Tx, id uuid.UUID, status domain.PaymentStatus, settledAt *time.Time) error
}

type refundRepo interface {
	Create(ctx context.Context, tx *sql.Tx, refund *domain.PaymentRefund) error
	SumSucceeded(ctx context.Context, tx *sql.Tx, paymentID uuid.UUID) (int64, error)
}

type ledgerRepo interface {
	LockLedger(ctx context.Context, tx *sql.Tx, owner domain.Subject, ledger string) error
	LastBalance(ctx context.Context, tx *sql.Tx, owner domain.Subject, ledger string) (int64, error)
	Create(ctx context.Context, tx *sql.Tx, entry *domain.LedgerEntry) error
}

type eventBus interface {
	Publish(ctx context.Context, e domain.Event)
}

// Service orchestrates capture and refund: the only two paths that move
// funds. Payment rows and their ledger postings always commit in the same
// transaction.
type Service struct {
	db       *sql.DB
	intents  intentRepo
	payments paymentRepo
	refunds  refundRepo
	ledger   ledgerRepo
	gateways *gateway.Manager
	bus      eventBus
	cfg      *config.Config
	now      func() time.Time
}

func NewService(
	db *sql.DB,
	intents intentRepo,
	payments paymentRepo,
	refunds refundRepo,
	ledger ledgerRepo,
	gateways *gateway.Manager,
	bus eventBus,
	cfg *config.Config,
) *Service {
	return &Service{
		db:       db,
		intents:  intents,
		payments: payments,
		refunds:  refunds,
		ledger:   ledger,
		gateways: gateways,
		bus:      bus,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// platformFee applies the basis-point schedule, capped at the charged amount.
// A provider-reported fee takes precedence and never reaches this path.
func (s *Service) platformFee(amount int64) int64 {
	bps := decimal.NewFromInt(int64(s.cfg.FeeBps)).Div(decimal.NewFromInt(10000))
	fee := decimal.NewFromInt(amount).Mul(bps).Round(0).IntPart() + s.cfg.FeeFixedMinor
	if fee > amount {
		return amount
	}
	return fee
}

func (s *Service) gatewayContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, time.Duration(s.cfg.GatewayTimeoutS)*time.Second)
}

func (s *Service) GetPayment(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	return s.payments.GetByID(ctx, id)
}
