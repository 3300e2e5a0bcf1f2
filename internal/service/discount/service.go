package discount

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pressplay/payments/internal/domain"
	"github.com/pressplay/payments/internal/money"
	"github.com/pressplay/payments/internal/repository"
)

type codeRepo interface {
	GetByCode(ctx context.Context, code string) (*repository.DiscountCode, error)
}

// Service validates promotional codes against a price. Validation is pure
// bookkeeping: no gateway call, no redemption counter mutation here. The
// caller redeems only once the discounted charge actually settles.
type Service struct {
	codes codeRepo
	now   func() time.Time
}

func NewService(codes codeRepo) *Service {
	return &Service{
		codes: codes,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Result reports whether a code applies and what it is worth against the
// given price. Invalid codes come back with Valid=false and a reason rather
// than an error; only lookup failures error.
type Result struct {
	Valid      bool
	Reason     string
	Amount     money.Money
	FinalPrice money.Money
}

func (s *Service) Apply(ctx context.Context, code string, planID *string, price money.Money) (*Result, error) {
	d, err := s.codes.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, domain.ErrDiscountNotFound) {
			return invalid("unknown code", price), nil
		}
		return nil, fmt.Errorf("Apply: %w", err)
	}

	if d.ExpiresAt != nil && s.now().After(*d.ExpiresAt) {
		return invalid("code expired", price), nil
	}
	if d.MaxRedemptions != nil && d.Redeemed >= *d.MaxRedemptions {
		return invalid("redemption limit reached", price), nil
	}
	if d.PlanID != nil {
		if planID == nil || *planID != *d.PlanID {
			return invalid("code not valid for this plan", price), nil
		}
	}

	amount, err := s.discountAmount(d, price)
	if err != nil {
		return nil, fmt.Errorf("Apply: %w", err)
	}

	final, err := price.Sub(amount)
	if err != nil {
		return nil, fmt.Errorf("Apply: %w", err)
	}

	return &Result{Valid: true, Amount: amount, FinalPrice: final}, nil
}

func (s *Service) discountAmount(d *repository.DiscountCode, price money.Money) (money.Money, error) {
	switch {
	case d.PercentOff != nil:
		ratio := decimal.NewFromInt(int64(*d.PercentOff)).Div(decimal.NewFromInt(100))
		return price.MulRatio(ratio), nil
	case d.AmountOff != nil:
		currency := price.Currency()
		if d.Currency != nil {
			currency = *d.Currency
		}
		off, err := money.New(*d.AmountOff, currency)
		if err != nil {
			return money.Money{}, err
		}
		if currency != price.Currency() {
			return money.Money{}, fmt.Errorf("code currency %s against price %s: %w",
				currency, price.Currency(), money.ErrCurrencyMismatch)
		}
		// A fixed discount larger than the price clamps to free.
		if cmp, _ := off.Cmp(price); cmp > 0 {
			return price, nil
		}
		return off, nil
	default:
		return money.MustNew(0, price.Currency()), nil
	}
}

func invalid(reason string, price money.Money) *Result {
	return &Result{
		Valid:      false,
		Reason:     reason,
		Amount:     money.MustNew(0, price.Currency()),
		FinalPrice: price,
	}
}
