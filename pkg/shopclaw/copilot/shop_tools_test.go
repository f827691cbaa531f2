package copilot

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/jholhewres/shopclaw/pkg/shopclaw/orders"
)

type stubSearcher struct{ queries []string }

func (s *stubSearcher) Search(_ context.Context, q string) string {
	s.queries = append(s.queries, q)
	return "Ürün: " + q
}

type stubPlacer struct {
	got []orders.Request
	res orders.Result
}

func (p *stubPlacer) Place(_ context.Context, req orders.Request) orders.Result {
	p.got = append(p.got, req)
	return p.res
}

func newShopRegistry(t *testing.T) (*ToolRegistry, *stubSearcher, *stubPlacer) {
	t.Helper()
	reg := NewToolRegistry(discardLogger)
	s := &stubSearcher{}
	p := &stubPlacer{res: orders.Result{Outcome: orders.OutcomeCashOnDelivery, UserMessage: orders.MessageCashOnDelivery}}
	if err := RegisterShopTools(reg, s, p); err != nil {
		t.Fatal(err)
	}
	return reg, s, p
}

func TestRegisterShopTools_Definitions(t *testing.T) {
	t.Parallel()
	reg, _, _ := newShopRegistry(t)

	defs := reg.Definitions()
	if len(defs) != 2 || defs[0].Function.Name != ToolSearchProducts || defs[1].Function.Name != ToolCreateDraftOrder {
		t.Fatalf("definitions = %+v", defs)
	}
	var schema struct {
		Properties map[string]struct {
			Enum []string `json:"enum"`
		} `json:"properties"`
		Required []string `json:"required"`
	}
	if err := json.Unmarshal(defs[1].Function.Parameters, &schema); err != nil {
		t.Fatal(err)
	}
	enum := schema.Properties["payment_method"].Enum
	if strings.Join(enum, "|") != strings.Join(orders.PaymentLabels(), "|") {
		t.Errorf("payment enum = %v", enum)
	}
	if len(schema.Required) != 8 {
		t.Errorf("required = %v", schema.Required)
	}
}

func TestSearchProductsTool(t *testing.T) {
	t.Parallel()
	reg, s, _ := newShopRegistry(t)

	res := reg.Dispatch(context.Background(), call(ToolSearchProducts, `{"query":"ikra elbise"}`))
	if res.IsError || res.Content != "Ürün: ikra elbise" {
		t.Errorf("result = %+v", res)
	}
	if len(s.queries) != 1 {
		t.Errorf("queries = %v", s.queries)
	}
}

func TestCreateDraftOrderTool(t *testing.T) {
	t.Parallel()
	reg, _, p := newShopRegistry(t)

	args := `{"variant_id":44012345678901,"quantity":2,"first_name":"Ayşe","last_name":"Yılmaz",
		"address1":"Atatürk Cad. 5","city":"İzmir","phone":"05551112233",
		"product_summary":"İkra elbise, mavi, M","payment_method":"Kapıda Ödeme"}`
	ctx := ContextWithOrderSource(context.Background(), orders.SourceWhatsApp)
	res := reg.Dispatch(ctx, call(ToolCreateDraftOrder, args))
	if res.IsError {
		t.Fatalf("unexpected error: %s", res.Content)
	}
	if res.Content != orders.MessageCashOnDelivery {
		t.Errorf("content = %q", res.Content)
	}
	if len(p.got) != 1 {
		t.Fatalf("placer called %d times", len(p.got))
	}
	req := p.got[0]
	if req.VariantID != 44012345678901 || req.Quantity != 2 || req.City != "İzmir" {
		t.Errorf("request = %+v", req)
	}
	if req.Source != orders.SourceWhatsApp {
		t.Errorf("source = %q", req.Source)
	}
	if req.PaymentMethod != orders.PaymentMethod("Kapıda Ödeme") {
		t.Errorf("payment = %q", req.PaymentMethod)
	}
}

func TestCreateDraftOrderTool_MissingFields(t *testing.T) {
	t.Parallel()
	reg, _, p := newShopRegistry(t)

	res := reg.Dispatch(context.Background(), call(ToolCreateDraftOrder, `{"variant_id":1,"first_name":"Ayşe"}`))
	if !res.IsError || !strings.Contains(res.Content, "last_name") {
		t.Errorf("result = %+v", res)
	}
	if len(p.got) != 0 {
		t.Error("placer must not run with missing fields")
	}
}

func TestOrderRequestFromArgs_DefaultsQuantity(t *testing.T) {
	t.Parallel()
	req, err := orderRequestFromArgs(map[string]any{"variant_id": json.Number("7")})
	if err != nil {
		t.Fatal(err)
	}
	if req.Quantity != 1 {
		t.Errorf("Quantity = %d, want 1", req.Quantity)
	}
	if _, err := orderRequestFromArgs(map[string]any{"variant_id": "abc"}); err == nil {
		t.Error("non-numeric variant id should fail")
	}
}
