// Package catalog implements product search over a store snapshot: Turkish
// aware normalization, fuzzy scoring and the text listing handed to the
// assistant.
package catalog

import (
	"encoding/json"
	"fmt"
)

// Inventory policies reported by the store for a variant.
const (
	PolicyDeny     = "deny"
	PolicyContinue = "continue"
)

// Product is one catalog entry. Field names follow the Shopify Admin REST
// payload so snapshots decode without an intermediate type.
type Product struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	BodyHTML    string    `json:"body_html"`
	Handle      string    `json:"handle,omitempty"`
	ProductType string    `json:"product_type,omitempty"`
	Vendor      string    `json:"vendor,omitempty"`
	Variants    []Variant `json:"variants"`
}

// Variant is a purchasable option of a product (size, colour, ...).
type Variant struct {
	ID                int64  `json:"id"`
	Title             string `json:"title"`
	Price             string `json:"price"`
	SKU               string `json:"sku,omitempty"`
	InventoryQuantity int    `json:"inventory_quantity"`
	InventoryPolicy   string `json:"inventory_policy"`

	// InventoryManagement is nil when the store does not track stock for
	// the variant, which means it is always available.
	InventoryManagement *string `json:"inventory_management"`
}

// Available reports whether the variant can be ordered right now.
func (v Variant) Available() bool {
	if v.InventoryManagement == nil {
		return true
	}
	if v.InventoryQuantity > 0 {
		return true
	}
	return v.InventoryPolicy == PolicyContinue
}

// MatchResult is a product with its relevance score for a query.
type MatchResult struct {
	Product Product
	Score   int
}

// DecodeProduct parses a single raw product record and checks that it has
// the fields the matcher relies on.
func DecodeProduct(raw json.RawMessage) (Product, error) {
	var p Product
	if err := json.Unmarshal(raw, &p); err != nil {
		return Product{}, fmt.Errorf("decoding product: %w", err)
	}
	if p.ID == 0 {
		return Product{}, fmt.Errorf("product has no id")
	}
	if p.Title == "" {
		return Product{}, fmt.Errorf("product %d has no title", p.ID)
	}
	for i, v := range p.Variants {
		if v.ID == 0 {
			return Product{}, fmt.Errorf("product %d: variant %d has no id", p.ID, i)
		}
		if v.InventoryPolicy == "" {
			p.Variants[i].InventoryPolicy = PolicyDeny
		}
	}
	return p, nil
}
