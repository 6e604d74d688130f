package pricing

// Package pricing computes checkout totals.

import (
	"fmt"

	"github.com/threadlane/threadlane/internal/catalog"
	"github.com/threadlane/threadlane/internal/shoperr"
)

// CartLine is a read-only reference to a variation and quantity, supplied by
// the cart collaborator.
type CartLine struct {
	VariationSKU string `json:"variation_sku" validate:"required"`
	Quantity     int    `json:"quantity" validate:"required,gt=0"`
}

// ResolvedLine is a cart line priced against the live catalog.
type ResolvedLine struct {
	VariationSKU   string
	ProductName    string
	Attributes     map[string]string
	UnitPriceCents int64
	SalePriceCents int64
	Quantity       int
}

// EffectiveUnitCents is the charged price: sale price when set, else list.
func (l ResolvedLine) EffectiveUnitCents() int64 {
	if l.SalePriceCents > 0 {
		return l.SalePriceCents
	}
	return l.UnitPriceCents
}

type Pricer struct{}

func NewPricer() *Pricer {
	return &Pricer{}
}

// ResolveLines prices each cart line against the current catalog. Unknown
// SKUs, inactive products, duplicate variations, and non-positive quantities
// are validation failures.
func (p *Pricer) ResolveLines(cat *catalog.ShopCatalog, lines []CartLine) ([]ResolvedLine, error) {
	if len(lines) == 0 {
		return nil, shoperr.Validation("cart is empty")
	}

	seen := make(map[string]bool, len(lines))
	resolved := make([]ResolvedLine, 0, len(lines))
	for _, line := range lines {
		if line.Quantity <= 0 {
			return nil, shoperr.Validation(fmt.Sprintf("quantity for %s must be positive", line.VariationSKU))
		}
		if seen[line.VariationSKU] {
			return nil, shoperr.Validation(fmt.Sprintf("duplicate cart line for %s", line.VariationSKU))
		}
		seen[line.VariationSKU] = true

		product, variation, ok := cat.FindVariation(line.VariationSKU)
		if !ok {
			return nil, shoperr.Validation(fmt.Sprintf("unknown variation %s", line.VariationSKU))
		}
		if !product.Active {
			return nil, shoperr.Validation(fmt.Sprintf("product %s is not available", product.SKU))
		}

		attrs := make(map[string]string, len(variation.Attributes))
		for k, v := range variation.Attributes {
			attrs[k] = v
		}
		resolved = append(resolved, ResolvedLine{
			VariationSKU:   variation.SKU,
			ProductName:    product.Name,
			Attributes:     attrs,
			UnitPriceCents: variation.UnitPriceCents,
			SalePriceCents: variation.SalePriceCents,
			Quantity:       line.Quantity,
		})
	}

	return resolved, nil
}

// Subtotal sums effective unit price times quantity over all lines.
func (p *Pricer) Subtotal(lines []ResolvedLine) int64 {
	var subtotal int64
	for _, line := range lines {
		subtotal += line.EffectiveUnitCents() * int64(line.Quantity)
	}
	return subtotal
}

// ShippingCents returns the configured flat shipping fee.
func (p *Pricer) ShippingCents(cat *catalog.ShopCatalog) int64 {
	return cat.Shop.Shipping.FlatRateCents
}
