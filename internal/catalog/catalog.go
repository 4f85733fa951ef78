package catalog

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/noah-isme/jersey-studio/internal/pricing"
)

// ErrUnknownSKU is returned when a SKU or add-on kind is not in the catalog.
var ErrUnknownSKU = errors.New("catalog: unknown sku")

// Product is a purchasable garment with its server-side unit price.
type Product struct {
	SKU            string        `json:"sku"`
	Name           string        `json:"name"`
	Type           string        `json:"type"`
	UnitPriceMinor pricing.Money `json:"unitPriceMinor"`
}

// AddOnOption is an optional customisation that can be attached to a cart.
type AddOnOption struct {
	Kind           string        `json:"kind"`
	Name           string        `json:"name"`
	UnitPriceMinor pricing.Money `json:"unitPriceMinor"`
}

// Catalog is an immutable price list. It is safe for concurrent use.
type Catalog struct {
	products map[string]Product
	addOns   map[string]AddOnOption
}

// New builds a catalog, rejecting duplicates, negative prices and unknown product types.
func New(products []Product, addOns []AddOnOption) (*Catalog, error) {
	c := &Catalog{
		products: make(map[string]Product, len(products)),
		addOns:   make(map[string]AddOnOption, len(addOns)),
	}
	for _, p := range products {
		sku := normalize(p.SKU)
		if sku == "" {
			return nil, errors.New("catalog: product sku is required")
		}
		if _, dup := c.products[sku]; dup {
			return nil, fmt.Errorf("catalog: duplicate sku %q", sku)
		}
		if p.Type != pricing.TypeJersey && p.Type != pricing.TypeApparel {
			return nil, fmt.Errorf("catalog: product %q has unknown type %q", sku, p.Type)
		}
		if p.UnitPriceMinor < 0 {
			return nil, fmt.Errorf("catalog: product %q has negative price", sku)
		}
		p.SKU = sku
		c.products[sku] = p
	}
	for _, a := range addOns {
		kind := normalize(a.Kind)
		if kind == "" {
			return nil, errors.New("catalog: add-on kind is required")
		}
		if _, dup := c.addOns[kind]; dup {
			return nil, fmt.Errorf("catalog: duplicate add-on %q", kind)
		}
		if a.UnitPriceMinor < 0 {
			return nil, fmt.Errorf("catalog: add-on %q has negative price", kind)
		}
		a.Kind = kind
		c.addOns[kind] = a
	}
	return c, nil
}

// DefaultCatalog returns the storefront's standard price list.
func DefaultCatalog() *Catalog {
	c, err := New(
		[]Product{
			{SKU: "jersey", Name: "Custom Jersey", Type: pricing.TypeJersey, UnitPriceMinor: 4500},
			{SKU: "shorts", Name: "Match Shorts", Type: pricing.TypeApparel, UnitPriceMinor: 2500},
			{SKU: "socks", Name: "Team Socks", Type: pricing.TypeApparel, UnitPriceMinor: 1200},
			{SKU: "warmup-top", Name: "Warm-up Top", Type: pricing.TypeApparel, UnitPriceMinor: 3800},
		},
		[]AddOnOption{
			{Kind: "name-printing", Name: "Name Printing", UnitPriceMinor: 800},
			{Kind: "number-printing", Name: "Number Printing", UnitPriceMinor: 600},
			{Kind: "team-badge", Name: "Team Badge", UnitPriceMinor: 500},
			{Kind: "sleeve-patch", Name: "Sleeve Patch", UnitPriceMinor: 400},
		},
	)
	if err != nil {
		panic(err)
	}
	return c
}

// Product looks up a product by SKU.
func (c *Catalog) Product(sku string) (Product, error) {
	p, ok := c.products[normalize(sku)]
	if !ok {
		return Product{}, fmt.Errorf("%w: %s", ErrUnknownSKU, sku)
	}
	return p, nil
}

// AddOn looks up an add-on by kind.
func (c *Catalog) AddOn(kind string) (AddOnOption, error) {
	a, ok := c.addOns[normalize(kind)]
	if !ok {
		return AddOnOption{}, fmt.Errorf("%w: %s", ErrUnknownSKU, kind)
	}
	return a, nil
}

// Products lists products ordered by SKU.
func (c *Catalog) Products() []Product {
	out := make([]Product, 0, len(c.products))
	for _, p := range c.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SKU < out[j].SKU })
	return out
}

// AddOns lists add-ons ordered by kind.
func (c *Catalog) AddOns() []AddOnOption {
	out := make([]AddOnOption, 0, len(c.addOns))
	for _, a := range c.addOns {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}

func normalize(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
