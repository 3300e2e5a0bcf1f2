package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		amount    int64
		currency  Currency
		wantErrIs error
	}{
		{name: "valid USD", amount: 1500, currency: USD},
		{name: "valid zero", amount: 0, currency: EUR},
		{name: "unsupported currency", amount: 100, currency: Currency("JPY"), wantErrIs: ErrUnsupportedCurrency},
		{name: "empty currency", amount: 100, currency: Currency(""), wantErrIs: ErrUnsupportedCurrency},
		{name: "negative amount", amount: -1, currency: USD, wantErrIs: ErrNegativeAmount},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m, err := New(tc.amount, tc.currency)
			if tc.wantErrIs != nil {
				assert.ErrorIs(t, err, tc.wantErrIs)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.amount, m.Amount())
			assert.Equal(t, tc.currency, m.Currency())
		})
	}
}

func TestSetSupported(t *testing.T) {
	t.Cleanup(func() { SetSupported([]Currency{USD, EUR, GBP}) })

	SetSupported([]Currency{USD, Currency("JPY")})

	_, err := New(100, Currency("JPY"))
	require.NoError(t, err)
	_, err = New(100, EUR)
	assert.ErrorIs(t, err, ErrUnsupportedCurrency)
	assert.True(t, Supported(USD))

	// An empty list would brick every payment path, so it is ignored.
	SetSupported(nil)
	assert.True(t, Supported(USD))
}

func TestAdd_CurrencyMismatch(t *testing.T) {
	usd := MustNew(100, USD)
	eur := MustNew(100, EUR)

	_, err := usd.Add(eur)
	assert.ErrorIs(t, err, ErrCurrencyMismatch)

	_, err = usd.Sub(eur)
	assert.ErrorIs(t, err, ErrCurrencyMismatch)

	_, err = usd.Cmp(eur)
	assert.ErrorIs(t, err, ErrCurrencyMismatch)
}

func TestAdd_AssociativeAndCommutative(t *testing.T) {
	a := MustNew(100, USD)
	b := MustNew(250, USD)
	c := MustNew(7, USD)

	ab, err := a.Add(b)
	require.NoError(t, err)
	abc, err := ab.Add(c)
	require.NoError(t, err)

	bc, err := b.Add(c)
	require.NoError(t, err)
	abc2, err := a.Add(bc)
	require.NoError(t, err)

	ba, err := b.Add(a)
	require.NoError(t, err)

	assert.Equal(t, abc, abc2)
	assert.Equal(t, ab, ba)
	assert.Equal(t, int64(357), abc.Amount())
}

func TestSub_NeverGoesNegative(t *testing.T) {
	a := MustNew(100, GBP)
	b := MustNew(150, GBP)

	_, err := a.Sub(b)
	assert.ErrorIs(t, err, ErrNegativeAmount)
}

func TestMulRatio_RoundsHalfAwayFromZero(t *testing.T) {
	tests := []struct {
		name   string
		amount int64
		ratio  string
		want   int64
	}{
		{name: "one third of 1000", amount: 1000, ratio: "0.3333333333", want: 333},
		{name: "half of 15 rounds up", amount: 15, ratio: "0.5", want: 8},
		{name: "fifteen thirtieths of 1000", amount: 1000, ratio: "0.5", want: 500},
		{name: "identity", amount: 999, ratio: "1", want: 999},
		{name: "zero ratio", amount: 999, ratio: "0", want: 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := MustNew(tc.amount, USD)
			ratio := decimal.RequireFromString(tc.ratio)
			assert.Equal(t, tc.want, m.MulRatio(ratio).Amount())
		})
	}
}

func TestCmp(t *testing.T) {
	small := MustNew(100, USD)
	big := MustNew(200, USD)

	got, err := small.Cmp(big)
	require.NoError(t, err)
	assert.Equal(t, -1, got)

	got, err = big.Cmp(small)
	require.NoError(t, err)
	assert.Equal(t, 1, got)

	got, err = small.Cmp(MustNew(100, USD))
	require.NoError(t, err)
	assert.Equal(t, 0, got)
}
