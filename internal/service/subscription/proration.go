package subscription

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pressplay/payments/internal/money"
)

// ProratedCredit is the unused value of the current plan for the remainder
// of the billing period, at daily granularity:
// round(current_price / total_period_days * days_remaining).
func ProratedCredit(currentPrice money.Money, totalPeriodDays, daysRemaining int) money.Money {
	if totalPeriodDays <= 0 || daysRemaining <= 0 {
		return money.MustNew(0, currentPrice.Currency())
	}
	if daysRemaining > totalPeriodDays {
		daysRemaining = totalPeriodDays
	}
	ratio := decimal.NewFromInt(int64(daysRemaining)).Div(decimal.NewFromInt(int64(totalPeriodDays)))
	return currentPrice.MulRatio(ratio)
}

// UpgradePrice is what the subscriber owes today for switching plans
// mid-period: max(0, new_price - prorated_credit).
func UpgradePrice(newPrice, credit money.Money) (money.Money, error) {
	cmp, err := credit.Cmp(newPrice)
	if err != nil {
		return money.Money{}, fmt.Errorf("UpgradePrice: %w", err)
	}
	if cmp >= 0 {
		return money.MustNew(0, newPrice.Currency()), nil
	}
	due, err := newPrice.Sub(credit)
	if err != nil {
		return money.Money{}, fmt.Errorf("UpgradePrice: %w", err)
	}
	return due, nil
}

// daysBetween rounds the span to whole days. Billing periods are anchored to
// wall-clock timestamps, so a 30-day month measures as 30 regardless of DST.
func daysBetween(from, to time.Time) int {
	if !to.After(from) {
		return 0
	}
	return int(math.Round(to.Sub(from).Hours() / 24))
}
