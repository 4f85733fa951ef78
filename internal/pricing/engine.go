package pricing

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// ErrInvalidInput is returned for snapshots the engine refuses to price.
var ErrInvalidInput = errors.New("pricing: invalid input")

var defaultEngine = NewEngine(DefaultRules())

// Engine computes price breakdowns under a fixed set of rules. It holds no mutable state.
type Engine struct {
	rules Rules
}

// NewEngine builds an engine. Tiers are evaluated highest threshold first regardless of input order.
func NewEngine(rules Rules) *Engine {
	rules.Tiers = sortedTiers(rules.Tiers)
	return &Engine{rules: rules}
}

// Rules returns the rules the engine was built with.
func (e *Engine) Rules() Rules {
	out := e.rules
	out.Tiers = append([]Tier(nil), e.rules.Tiers...)
	return out
}

// ComputeBreakdown prices a snapshot with the default rules.
func ComputeBreakdown(snapshot OrderSnapshot) (Breakdown, error) {
	return defaultEngine.Compute(snapshot)
}

// Compute prices the snapshot. It either returns a complete breakdown or an error wrapping ErrInvalidInput.
func (e *Engine) Compute(snapshot OrderSnapshot) (Breakdown, error) {
	if err := Validate(snapshot); err != nil {
		return Breakdown{}, err
	}

	lines, base, count, err := baseTotals(snapshot)
	if err != nil {
		return Breakdown{}, err
	}
	if len(lines) == 0 {
		return Breakdown{TierDiscountRate: decimal.Zero, Lines: []LineTotal{}}, nil
	}

	b := Breakdown{
		BaseTotal: base,
		ItemCount: count,
		Lines:     lines,
	}

	b.TierDiscountRate = tierFor(e.rules.Tiers, count)
	b.TierDiscountAmount = applyRate(base, b.TierDiscountRate)

	afterTier := base - b.TierDiscountAmount
	if snapshot.IsSubscriber {
		b.SubscriptionDiscountApplied = true
		b.SubscriptionDiscountAmount = applyRate(afterTier, e.rules.SubscriptionRate)
	}
	b.SubtotalAfterDiscounts = afterTier - b.SubscriptionDiscountAmount

	b.ShippingCost, b.ShippingFreeThresholdApplied = e.rules.shippingFor(b.SubtotalAfterDiscounts)

	taxable, ok := addMoney(b.SubtotalAfterDiscounts, b.ShippingCost)
	if !ok {
		return Breakdown{}, fmt.Errorf("%w: taxable amount overflows", ErrInvalidInput)
	}
	b.TaxAmount = applyRate(taxable, e.rules.TaxRate)

	grand, ok := addMoney(taxable, b.TaxAmount)
	if !ok {
		return Breakdown{}, fmt.Errorf("%w: grand total overflows", ErrInvalidInput)
	}
	b.GrandTotal = grand

	if base > 0 {
		b.EffectiveDiscountBps = decimal.NewFromInt(b.DiscountTotal()).
			Mul(decimal.NewFromInt(10000)).
			Div(decimal.NewFromInt(base)).
			Round(0).
			IntPart()
	}
	return b, nil
}

// baseTotals applies roster substitution and sums every line and add-on.
func baseTotals(snapshot OrderSnapshot) ([]LineTotal, Money, int64, error) {
	useRoster := snapshot.IsTeamOrder && len(snapshot.Roster) > 0
	lines := make([]LineTotal, 0, len(snapshot.LineItems)+len(snapshot.AddOns))
	var base Money
	var count int64

	add := func(lt LineTotal) error {
		total, ok := mulMoney(lt.UnitPriceMinor, lt.Quantity)
		if !ok {
			return fmt.Errorf("%w: line %q total overflows", ErrInvalidInput, lt.SKU)
		}
		lt.TotalMinor = total
		if base, ok = addMoney(base, total); !ok {
			return fmt.Errorf("%w: base total overflows", ErrInvalidInput)
		}
		if count, ok = addMoney(count, lt.Quantity); !ok {
			return fmt.Errorf("%w: item count overflows", ErrInvalidInput)
		}
		lines = append(lines, lt)
		return nil
	}

	for _, item := range snapshot.LineItems {
		lt := LineTotal{SKU: item.SKU, Kind: item.Type, UnitPriceMinor: item.UnitPriceMinor, Quantity: item.Quantity}
		if useRoster && item.Type == TypeJersey {
			lt.Quantity = int64(len(snapshot.Roster))
			lt.FromRoster = true
		}
		if err := add(lt); err != nil {
			return nil, 0, 0, err
		}
	}
	for _, addOn := range snapshot.AddOns {
		sku := addOn.SKU
		if sku == "" {
			sku = addOn.Kind
		}
		lt := LineTotal{SKU: sku, Kind: addOn.Kind, UnitPriceMinor: addOn.UnitPriceMinor, Quantity: addOn.Quantity}
		if err := add(lt); err != nil {
			return nil, 0, 0, err
		}
	}
	return lines, base, count, nil
}

func mulMoney(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	if a > math.MaxInt64/b {
		return 0, false
	}
	return a * b, true
}

func addMoney(a, b int64) (int64, bool) {
	if a > math.MaxInt64-b {
		return 0, false
	}
	return a + b, true
}
