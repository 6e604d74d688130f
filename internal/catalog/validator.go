package catalog

// Package catalog provides catalog validation.

import (
	"fmt"
	"regexp"
	"strings"
)

type Validator struct{}

func NewValidator() *Validator {
	return &Validator{}
}

var currencyRegex = regexp.MustCompile(`^[a-z]{3}$`)

func (v *Validator) Validate(config *ShopCatalog) error {
	if err := v.validateShop(&config.Shop); err != nil {
		return fmt.Errorf("shop validation failed: %w", err)
	}

	if len(config.Products) == 0 {
		return fmt.Errorf("at least one product is required")
	}

	skus := make(map[string]bool)
	for i, product := range config.Products {
		if err := v.validateProduct(&product); err != nil {
			return fmt.Errorf("product %d validation failed: %w", i, err)
		}

		if skus[product.SKU] {
			return fmt.Errorf("duplicate SKU: %s", product.SKU)
		}
		skus[product.SKU] = true

		for _, variation := range product.Variations {
			if skus[variation.SKU] {
				return fmt.Errorf("duplicate SKU: %s", variation.SKU)
			}
			skus[variation.SKU] = true
		}
	}

	return nil
}

func (v *Validator) validateShop(shop *ShopConfig) error {
	if strings.TrimSpace(shop.Name) == "" {
		return fmt.Errorf("shop name is required")
	}

	if !currencyRegex.MatchString(shop.Currency) {
		return fmt.Errorf("currency must be a lowercase ISO 4217 code")
	}

	if shop.Shipping.FlatRateCents < 0 {
		return fmt.Errorf("shipping flat rate must be zero or positive")
	}

	return nil
}

func (v *Validator) validateProduct(product *ProductConfig) error {
	if strings.TrimSpace(product.SKU) == "" {
		return fmt.Errorf("product SKU is required")
	}

	if strings.TrimSpace(product.Name) == "" {
		return fmt.Errorf("product name is required")
	}

	if len(product.Variations) == 0 {
		return fmt.Errorf("product %s needs at least one variation", product.SKU)
	}

	for _, variation := range product.Variations {
		if strings.TrimSpace(variation.SKU) == "" {
			return fmt.Errorf("variation SKU is required on product %s", product.SKU)
		}
		if variation.UnitPriceCents <= 0 {
			return fmt.Errorf("variation %s must have a positive unit price", variation.SKU)
		}
		if variation.SalePriceCents < 0 {
			return fmt.Errorf("variation %s sale price must be zero or positive", variation.SKU)
		}
		if variation.SalePriceCents > variation.UnitPriceCents {
			return fmt.Errorf("variation %s sale price exceeds unit price", variation.SKU)
		}
	}

	return nil
}
