package pricing

import "github.com/shopspring/decimal"

// Money represents a monetary value stored in minor units.
type Money = int64

// Item types understood by the engine. Only jersey lines take part in roster substitution.
const (
	TypeJersey  = "jersey"
	TypeApparel = "apparel"
)

// Sizes and Genders list the values accepted on line items and roster members.
var (
	Sizes   = []string{"YS", "YM", "YL", "XS", "S", "M", "L", "XL", "2XL", "3XL"}
	Genders = []string{"men", "women", "youth", "unisex"}
)

// LineItem is one purchasable unit priced in minor units.
type LineItem struct {
	SKU            string `json:"sku" validate:"required"`
	Type           string `json:"type" validate:"required,oneof=jersey apparel"`
	UnitPriceMinor Money  `json:"unitPriceMinor" validate:"gte=0"`
	Quantity       int64  `json:"quantity" validate:"gte=1"`
	Size           string `json:"size,omitempty" validate:"omitempty,oneof=YS YM YL XS S M L XL 2XL 3XL"`
	Gender         string `json:"gender,omitempty" validate:"omitempty,oneof=men women youth unisex"`
}

// AddOn is an optional extra priced and counted independently of the line items.
type AddOn struct {
	Kind           string `json:"kind" validate:"required"`
	SKU            string `json:"sku,omitempty"`
	UnitPriceMinor Money  `json:"unitPriceMinor" validate:"gte=0"`
	Quantity       int64  `json:"quantity" validate:"gte=1"`
	Size           string `json:"size,omitempty" validate:"omitempty,oneof=YS YM YL XS S M L XL 2XL 3XL"`
	Gender         string `json:"gender,omitempty" validate:"omitempty,oneof=men women youth unisex"`
}

// RosterMember is one player on a team order. Quantity is always one; zero is read as one.
type RosterMember struct {
	MemberID string `json:"memberId" validate:"required"`
	Size     string `json:"size" validate:"required,oneof=YS YM YL XS S M L XL 2XL 3XL"`
	Gender   string `json:"gender" validate:"required,oneof=men women youth unisex"`
	Quantity int64  `json:"quantity,omitempty" validate:"omitempty,eq=1"`
}

// OrderSnapshot is the complete input of a price computation. Callers build it fresh for every computation.
type OrderSnapshot struct {
	LineItems    []LineItem     `json:"lineItems" validate:"dive"`
	AddOns       []AddOn        `json:"addOns" validate:"dive"`
	IsTeamOrder  bool           `json:"isTeamOrder"`
	Roster       []RosterMember `json:"roster,omitempty" validate:"dive"`
	IsSubscriber bool           `json:"isSubscriber"`
}

// LineTotal reports how a single line or add-on contributed to the base total.
type LineTotal struct {
	SKU            string `json:"sku"`
	Kind           string `json:"kind,omitempty"`
	UnitPriceMinor Money  `json:"unitPriceMinor"`
	Quantity       int64  `json:"quantity"`
	TotalMinor     Money  `json:"totalMinor"`
	FromRoster     bool   `json:"fromRoster,omitempty"`
}

// Breakdown is the priced result of an OrderSnapshot. Discount amounts are positive numbers.
type Breakdown struct {
	BaseTotal                    Money           `json:"baseTotal"`
	ItemCount                    int64           `json:"itemCount"`
	TierDiscountRate             decimal.Decimal `json:"tierDiscountRate"`
	TierDiscountAmount           Money           `json:"tierDiscountAmount"`
	SubscriptionDiscountApplied  bool            `json:"subscriptionDiscountApplied"`
	SubscriptionDiscountAmount   Money           `json:"subscriptionDiscountAmount"`
	SubtotalAfterDiscounts       Money           `json:"subtotalAfterDiscounts"`
	ShippingCost                 Money           `json:"shippingCost"`
	ShippingFreeThresholdApplied bool            `json:"shippingFreeThresholdApplied"`
	TaxAmount                    Money           `json:"taxAmount"`
	GrandTotal                   Money           `json:"grandTotal"`
	EffectiveDiscountBps         int64           `json:"effectiveDiscountBps"`
	Lines                        []LineTotal     `json:"lines"`
}

// DiscountTotal returns the combined tier and subscription discount.
func (b Breakdown) DiscountTotal() Money {
	return b.TierDiscountAmount + b.SubscriptionDiscountAmount
}
