// Package copilot – shop_tools.go registers the catalog search and order
// placement tools.
package copilot

import (
	"context"
	"fmt"

	"github.com/jholhewres/shopclaw/pkg/shopclaw/orders"
)

// Tool names.
const (
	ToolSearchProducts   = "search_products"
	ToolCreateDraftOrder = "create_draft_order"
)

// ProductSearcher renders catalog search results as text.
type ProductSearcher interface {
	Search(ctx context.Context, query string) string
}

// OrderPlacer runs the order placement protocol.
type OrderPlacer interface {
	Place(ctx context.Context, req orders.Request) orders.Result
}

// RegisterShopTools adds search_products and create_draft_order.
func RegisterShopTools(reg *ToolRegistry, products ProductSearcher, placer OrderPlacer) error {
	search := MakeToolDefinition(ToolSearchProducts,
		"Search the store catalog by product name, colour or keyword. Returns products with variant ids, prices and availability.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "The search keyword.",
				},
			},
			"required": []string{"query"},
		})
	if err := reg.Register(search, []string{"query"}, func(ctx context.Context, args map[string]any) (string, error) {
		return products.Search(ctx, argString(args, "query")), nil
	}); err != nil {
		return err
	}

	required := []string{"variant_id", "first_name", "last_name", "address1", "city", "phone", "product_summary", "payment_method"}
	str := func(desc string) map[string]any {
		m := map[string]any{"type": "string"}
		if desc != "" {
			m["description"] = desc
		}
		return m
	}
	order := MakeToolDefinition(ToolCreateDraftOrder,
		"Place the customer's order. Card payments return a checkout link; cash on delivery returns a confirmation.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"variant_id":      map[string]any{"type": "integer", "description": "The Variant ID of the product."},
				"quantity":        map[string]any{"type": "integer", "description": "Quantity to order (default 1)."},
				"first_name":      str(""),
				"last_name":       str(""),
				"address1":        str("Full street address."),
				"city":            str(""),
				"phone":           str(""),
				"email":           str("Optional."),
				"product_summary": str("Short summary of product name, colour and size requested by the customer."),
				"payment_method": map[string]any{
					"type":        "string",
					"enum":        orders.PaymentLabels(),
					"description": "Payment method choice.",
				},
			},
			"required": required,
		})
	return reg.Register(order, required, func(ctx context.Context, args map[string]any) (string, error) {
		req, err := orderRequestFromArgs(args)
		if err != nil {
			return "", err
		}
		req.Source = OrderSourceFromContext(ctx)
		return placer.Place(ctx, req).UserMessage, nil
	})
}

// orderRequestFromArgs maps tool arguments onto an order request. Field
// validation is left to the pipeline so rejections carry its message.
func orderRequestFromArgs(args map[string]any) (orders.Request, error) {
	variantID, err := argInt(args["variant_id"])
	if err != nil {
		return orders.Request{}, fmt.Errorf("variant_id: %w", err)
	}
	quantity := int64(1)
	if v, ok := args["quantity"]; ok && v != nil {
		if quantity, err = argInt(v); err != nil {
			return orders.Request{}, fmt.Errorf("quantity: %w", err)
		}
	}
	return orders.Request{
		VariantID:      variantID,
		Quantity:       int(quantity),
		FirstName:      argString(args, "first_name"),
		LastName:       argString(args, "last_name"),
		Phone:          argString(args, "phone"),
		Email:          argString(args, "email"),
		Address1:       argString(args, "address1"),
		City:           argString(args, "city"),
		ProductSummary: argString(args, "product_summary"),
		PaymentMethod:  orders.PaymentMethod(argString(args, "payment_method")),
	}, nil
}
