package money

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrCurrencyMismatch    = errors.New("currency mismatch")
	ErrUnsupportedCurrency = errors.New("unsupported currency")
	ErrNegativeAmount      = errors.New("amount must not be negative")
)

type Currency string

const (
	USD Currency = "USD"
	EUR Currency = "EUR"
	GBP Currency = "GBP"
)

var supported = map[Currency]struct{}{
	USD: {},
	EUR: {},
	GBP: {},
}

// SetSupported replaces the currency allow-list. It is called once at
// startup from configuration, before any Money is constructed; an empty
// list keeps the current one.
func SetSupported(currencies []Currency) {
	next := make(map[Currency]struct{}, len(currencies))
	for _, c := range currencies {
		next[c] = struct{}{}
	}
	if len(next) > 0 {
		supported = next
	}
}

// Money is an exact amount in minor units of a single currency.
// The zero value is zero units of an empty currency and is not valid;
// construct through New.
type Money struct {
	amount   int64
	currency Currency
}

func New(amount int64, currency Currency) (Money, error) {
	if _, ok := supported[currency]; !ok {
		return Money{}, fmt.Errorf("money.New: %q: %w", currency, ErrUnsupportedCurrency)
	}
	if amount < 0 {
		return Money{}, fmt.Errorf("money.New: %w", ErrNegativeAmount)
	}
	return Money{amount: amount, currency: currency}, nil
}

func MustNew(amount int64, currency Currency) Money {
	m, err := New(amount, currency)
	if err != nil {
		panic(err)
	}
	return m
}

func Supported(currency Currency) bool {
	_, ok := supported[currency]
	return ok
}

func (m Money) Amount() int64      { return m.amount }
func (m Money) Currency() Currency { return m.currency }
func (m Money) IsZero() bool       { return m.amount == 0 }

func (m Money) String() string {
	return fmt.Sprintf("%d %s", m.amount, m.currency)
}

func (m Money) Add(other Money) (Money, error) {
	if m.currency != other.currency {
		return Money{}, fmt.Errorf("Add: %s + %s: %w", m.currency, other.currency, ErrCurrencyMismatch)
	}
	return Money{amount: m.amount + other.amount, currency: m.currency}, nil
}

func (m Money) Sub(other Money) (Money, error) {
	if m.currency != other.currency {
		return Money{}, fmt.Errorf("Sub: %s - %s: %w", m.currency, other.currency, ErrCurrencyMismatch)
	}
	if other.amount > m.amount {
		return Money{}, fmt.Errorf("Sub: %w", ErrNegativeAmount)
	}
	return Money{amount: m.amount - other.amount, currency: m.currency}, nil
}

// MulRatio scales the amount by ratio, rounding half away from zero.
// Used for proration credits and basis-point fees.
func (m Money) MulRatio(ratio decimal.Decimal) Money {
	scaled := decimal.NewFromInt(m.amount).Mul(ratio).Round(0)
	return Money{amount: scaled.IntPart(), currency: m.currency}
}

// Cmp returns -1, 0 or 1 comparing m against other.
func (m Money) Cmp(other Money) (int, error) {
	if m.currency != other.currency {
		return 0, fmt.Errorf("Cmp: %s vs %s: %w", m.currency, other.currency, ErrCurrencyMismatch)
	}
	switch {
	case m.amount < other.amount:
		return -1, nil
	case m.amount > other.amount:
		return 1, nil
	default:
		return 0, nil
	}
}
