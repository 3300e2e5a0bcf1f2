package discount

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pressplay/payments/internal/domain"
	"github.com/pressplay/payments/internal/money"
	"github.com/pressplay/payments/internal/repository"
)

type stubCodeRepo struct {
	codes map[string]*repository.DiscountCode
}

func (s *stubCodeRepo) GetByCode(_ context.Context, code string) (*repository.DiscountCode, error) {
	d, ok := s.codes[code]
	if !ok {
		return nil, domain.ErrDiscountNotFound
	}
	return d, nil
}

func newTestService(codes ...*repository.DiscountCode) *Service {
	repo := &stubCodeRepo{codes: make(map[string]*repository.DiscountCode)}
	for _, c := range codes {
		repo.codes[c.Code] = c
	}
	svc := NewService(repo)
	svc.now = func() time.Time { return time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC) }
	return svc
}

func intPtr(n int) *int { return &n }
func int64Ptr(n int64) *int64 { return &n }
func strPtr(s string) *string { return &s }
func timePtr(t time.Time) *time.Time { return &t }

func TestApply_PercentOff(t *testing.T) {
	svc := newTestService(&repository.DiscountCode{Code: "HALF", PercentOff: intPtr(50)})

	result, err := svc.Apply(context.Background(), "HALF", nil, money.MustNew(2000, money.USD))
	require.NoError(t, err)

	assert.True(t, result.Valid)
	assert.Equal(t, int64(1000), result.Amount.Amount())
	assert.Equal(t, int64(1000), result.FinalPrice.Amount())
}

func TestApply_AmountOff(t *testing.T) {
	usd := money.USD
	svc := newTestService(&repository.DiscountCode{Code: "SAVE300", AmountOff: int64Ptr(300), Currency: &usd})

	result, err := svc.Apply(context.Background(), "SAVE300", nil, money.MustNew(2000, money.USD))
	require.NoError(t, err)

	assert.True(t, result.Valid)
	assert.Equal(t, int64(300), result.Amount.Amount())
	assert.Equal(t, int64(1700), result.FinalPrice.Amount())
}

func TestApply_AmountOffClampsToFree(t *testing.T) {
	usd := money.USD
	svc := newTestService(&repository.DiscountCode{Code: "BIG", AmountOff: int64Ptr(5000), Currency: &usd})

	result, err := svc.Apply(context.Background(), "BIG", nil, money.MustNew(2000, money.USD))
	require.NoError(t, err)

	assert.True(t, result.Valid)
	assert.Equal(t, int64(2000), result.Amount.Amount())
	assert.Equal(t, int64(0), result.FinalPrice.Amount())
}

func TestApply_InvalidCodes(t *testing.T) {
	expired := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	svc := newTestService(
		&repository.DiscountCode{Code: "EXPIRED", PercentOff: intPtr(10), ExpiresAt: timePtr(expired)},
		&repository.DiscountCode{Code: "EXHAUSTED", PercentOff: intPtr(10), MaxRedemptions: intPtr(5), Redeemed: 5},
		&repository.DiscountCode{Code: "PLAN_ONLY", PercentOff: intPtr(10), PlanID: strPtr("plan_pro")},
	)
	price := money.MustNew(1000, money.USD)

	tests := []struct {
		name   string
		code   string
		planID *string
		reason string
	}{
		{name: "unknown code", code: "NOPE", reason: "unknown code"},
		{name: "expired", code: "EXPIRED", reason: "code expired"},
		{name: "redemption limit", code: "EXHAUSTED", reason: "redemption limit reached"},
		{name: "wrong plan", code: "PLAN_ONLY", planID: strPtr("plan_basic"), reason: "code not valid for this plan"},
		{name: "no plan given for restricted code", code: "PLAN_ONLY", reason: "code not valid for this plan"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result, err := svc.Apply(context.Background(), tc.code, tc.planID, price)
			require.NoError(t, err)
			assert.False(t, result.Valid)
			assert.Equal(t, tc.reason, result.Reason)
			assert.Equal(t, int64(1000), result.FinalPrice.Amount())
		})
	}
}

func TestApply_PlanRestrictedCodeMatches(t *testing.T) {
	svc := newTestService(&repository.DiscountCode{Code: "PRO20", PercentOff: intPtr(20), PlanID: strPtr("plan_pro")})

	result, err := svc.Apply(context.Background(), "PRO20", strPtr("plan_pro"), money.MustNew(1000, money.USD))
	require.NoError(t, err)

	assert.True(t, result.Valid)
	assert.Equal(t, int64(800), result.FinalPrice.Amount())
}
