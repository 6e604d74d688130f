package catalog

// Package catalog provides threadlane.yaml parsing functionality.

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type ShopCatalog struct {
	Shop     ShopConfig      `yaml:"shop"`
	Products []ProductConfig `yaml:"products"`
}

type ShopConfig struct {
	Name     string         `yaml:"name"`
	Currency string         `yaml:"currency"`
	Shipping ShippingConfig `yaml:"shipping"`
}

type ShippingConfig struct {
	FlatRateCents int64 `yaml:"flat_rate_cents"`
}

type ProductConfig struct {
	SKU         string            `yaml:"sku"`
	Name        string            `yaml:"name"`
	Description string            `yaml:"description"`
	Active      bool              `yaml:"active"`
	Variations  []VariationConfig `yaml:"variations"`
}

// VariationConfig is one sellable combination of product attributes. A sale
// price of zero means the variation is not on sale.
type VariationConfig struct {
	SKU            string            `yaml:"sku"`
	Attributes     map[string]string `yaml:"attributes"`
	UnitPriceCents int64             `yaml:"unit_price_cents"`
	SalePriceCents int64             `yaml:"sale_price_cents"`
}

type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

func (p *Parser) Parse(content []byte) (*ShopCatalog, error) {
	var config ShopCatalog
	if err := yaml.Unmarshal(content, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	return &config, nil
}

func (p *Parser) ParseFile(path string) (*ShopCatalog, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}
	return p.Parse(content)
}

// FindVariation resolves a variation SKU to its product and variation config.
func (c *ShopCatalog) FindVariation(sku string) (*ProductConfig, *VariationConfig, bool) {
	for i := range c.Products {
		product := &c.Products[i]
		for j := range product.Variations {
			if product.Variations[j].SKU == sku {
				return product, &product.Variations[j], true
			}
		}
	}
	return nil, nil, false
}
