package cart

import (
	"time"

	"github.com/noah-isme/jersey-studio/internal/pricing"
)

// Cart is the server-side order state for one shopper. It is the only input checkout prices from.
type Cart struct {
	ID          string                 `json:"id"`
	UserID      string                 `json:"userId,omitempty"`
	DesignID    string                 `json:"designId,omitempty"`
	Items       []Item                 `json:"items"`
	AddOns      []AddOn                `json:"addOns"`
	IsTeamOrder bool                   `json:"isTeamOrder"`
	Roster      []pricing.RosterMember `json:"roster,omitempty"`
	CreatedAt   time.Time              `json:"createdAt"`
	UpdatedAt   time.Time              `json:"updatedAt"`
	ExpiresAt   time.Time              `json:"expiresAt"`
}

// Item is a garment line. UnitPriceMinor is copied from the catalog when the line is added.
type Item struct {
	ID             string        `json:"id"`
	SKU            string        `json:"sku"`
	Name           string        `json:"name"`
	Type           string        `json:"type"`
	UnitPriceMinor pricing.Money `json:"unitPriceMinor"`
	Quantity       int64         `json:"quantity"`
	Size           string        `json:"size,omitempty"`
	Gender         string        `json:"gender,omitempty"`
}

// AddOn is a customisation line such as name printing.
type AddOn struct {
	ID             string        `json:"id"`
	Kind           string        `json:"kind"`
	Name           string        `json:"name"`
	UnitPriceMinor pricing.Money `json:"unitPriceMinor"`
	Quantity       int64         `json:"quantity"`
}

// IsEmpty reports whether the cart holds nothing billable.
func (c Cart) IsEmpty() bool {
	return len(c.Items) == 0 && len(c.AddOns) == 0
}

// Snapshot builds a fresh pricing input from the cart.
func Snapshot(c Cart, isSubscriber bool) pricing.OrderSnapshot {
	snap := pricing.OrderSnapshot{
		LineItems:    make([]pricing.LineItem, 0, len(c.Items)),
		AddOns:       make([]pricing.AddOn, 0, len(c.AddOns)),
		IsTeamOrder:  c.IsTeamOrder,
		IsSubscriber: isSubscriber,
	}
	for _, it := range c.Items {
		snap.LineItems = append(snap.LineItems, pricing.LineItem{
			SKU:            it.SKU,
			Type:           it.Type,
			UnitPriceMinor: it.UnitPriceMinor,
			Quantity:       it.Quantity,
			Size:           it.Size,
			Gender:         it.Gender,
		})
	}
	for _, a := range c.AddOns {
		snap.AddOns = append(snap.AddOns, pricing.AddOn{
			Kind:           a.Kind,
			UnitPriceMinor: a.UnitPriceMinor,
			Quantity:       a.Quantity,
		})
	}
	if len(c.Roster) > 0 {
		snap.Roster = append([]pricing.RosterMember(nil), c.Roster...)
	}
	return snap
}
