package pricing

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// Default shipping and tax settings. Thresholds compare against the subtotal after discounts.
const (
	ShippingFreeThresholdMinor Money = 20000
	ShippingMidThresholdMinor  Money = 10000
	ShippingBaseRateMinor      Money = 3000
	ShippingMidRateMinor       Money = 1500

	TaxRateBps              int64 = 700
	SubscriptionDiscountBps int64 = 1000
)

// Tier is a quantity discount bracket. A tier applies when the item count is at least MinItems.
type Tier struct {
	MinItems int64
	Rate     decimal.Decimal
}

// Rules holds every constant the engine needs.
type Rules struct {
	Tiers                      []Tier
	SubscriptionRate           decimal.Decimal
	ShippingFreeThresholdMinor Money
	ShippingMidThresholdMinor  Money
	ShippingBaseRateMinor      Money
	ShippingMidRateMinor       Money
	TaxRate                    decimal.Decimal
}

// RateFromBps converts basis points into a fractional rate.
func RateFromBps(bps int64) decimal.Decimal {
	return decimal.New(bps, -4)
}

// DefaultTiers is the fixed quantity discount table.
func DefaultTiers() []Tier {
	return []Tier{
		{MinItems: 50, Rate: RateFromBps(1500)},
		{MinItems: 20, Rate: RateFromBps(1000)},
		{MinItems: 10, Rate: RateFromBps(500)},
	}
}

// DefaultRules returns the storefront's canonical pricing rules.
func DefaultRules() Rules {
	return Rules{
		Tiers:                      DefaultTiers(),
		SubscriptionRate:           RateFromBps(SubscriptionDiscountBps),
		ShippingFreeThresholdMinor: ShippingFreeThresholdMinor,
		ShippingMidThresholdMinor:  ShippingMidThresholdMinor,
		ShippingBaseRateMinor:      ShippingBaseRateMinor,
		ShippingMidRateMinor:       ShippingMidRateMinor,
		TaxRate:                    RateFromBps(TaxRateBps),
	}
}

// Validate checks the rules are internally consistent.
func (r Rules) Validate() error {
	one := decimal.NewFromInt(1)
	for _, t := range r.Tiers {
		if t.MinItems <= 0 {
			return fmt.Errorf("pricing: tier threshold must be positive, got %d", t.MinItems)
		}
		if t.Rate.IsNegative() || t.Rate.GreaterThan(one) {
			return fmt.Errorf("pricing: tier rate %s out of range", t.Rate)
		}
	}
	if r.SubscriptionRate.IsNegative() || r.SubscriptionRate.GreaterThan(one) {
		return fmt.Errorf("pricing: subscription rate %s out of range", r.SubscriptionRate)
	}
	if r.TaxRate.IsNegative() {
		return errors.New("pricing: tax rate must not be negative")
	}
	if r.ShippingBaseRateMinor < 0 || r.ShippingMidRateMinor < 0 {
		return errors.New("pricing: shipping rates must not be negative")
	}
	if r.ShippingMidThresholdMinor < 0 || r.ShippingFreeThresholdMinor < r.ShippingMidThresholdMinor {
		return errors.New("pricing: shipping thresholds must satisfy 0 <= mid <= free")
	}
	return nil
}

// sortedTiers returns a copy of the tiers ordered from the highest threshold down.
func sortedTiers(tiers []Tier) []Tier {
	out := make([]Tier, len(tiers))
	copy(out, tiers)
	sort.SliceStable(out, func(i, j int) bool { return out[i].MinItems > out[j].MinItems })
	return out
}

// tierFor returns the first tier, highest threshold first, whose minimum the count reaches.
func tierFor(tiers []Tier, count int64) decimal.Decimal {
	for _, t := range tiers {
		if count >= t.MinItems {
			return t.Rate
		}
	}
	return decimal.Zero
}

// shippingFor applies the flat-rate shipping table to the discounted subtotal.
func (r Rules) shippingFor(subtotal Money) (Money, bool) {
	switch {
	case subtotal > r.ShippingFreeThresholdMinor:
		return 0, true
	case subtotal >= r.ShippingMidThresholdMinor:
		return r.ShippingMidRateMinor, false
	default:
		return r.ShippingBaseRateMinor, false
	}
}

// applyRate multiplies amount by rate and rounds half-up to a whole minor unit.
// Amounts are never negative here so rounding half away from zero is half-up.
func applyRate(amount Money, rate decimal.Decimal) Money {
	if amount == 0 || rate.IsZero() {
		return 0
	}
	return decimal.NewFromInt(amount).Mul(rate).Round(0).IntPart()
}
