package shopify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jholhewres/shopclaw/pkg/shopclaw/catalog"
	"github.com/jholhewres/shopclaw/pkg/shopclaw/orders"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewClient(Config{BaseURL: srv.URL, AccessToken: "shpat_test"}, nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestFetchProducts(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/products.json" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("X-Shopify-Access-Token"); got != "shpat_test" {
			t.Errorf("token header = %q", got)
		}
		if r.URL.Query().Get("limit") != "250" || r.URL.Query().Get("status") != "active" {
			t.Errorf("query = %s", r.URL.RawQuery)
		}
		io.WriteString(w, `{"products":[
			{"id":1,"title":"Kırmızı Elbise","body_html":"<p>Şık</p>","variants":[{"id":11,"title":"M","price":"499.90","inventory_quantity":3,"inventory_management":"shopify"}]},
			{"id":2,"title":"","variants":[]},
			{"id":"bad"},
			{"id":3,"title":"Mavi Gömlek","variants":[{"id":31,"title":"L","price":"299.00","inventory_management":null}]}
		]}`)
	})

	products, err := c.FetchProducts(context.Background())
	if err != nil {
		t.Fatalf("FetchProducts: %v", err)
	}
	if len(products) != 2 {
		t.Fatalf("kept %d products, want 2 (invalid records skipped)", len(products))
	}
	if products[0].Title != "Kırmızı Elbise" || products[1].ID != 3 {
		t.Errorf("unexpected products: %+v", products)
	}
	if products[0].Variants[0].InventoryPolicy != catalog.PolicyDeny {
		t.Errorf("policy default not applied: %q", products[0].Variants[0].InventoryPolicy)
	}
}

func TestFetchProducts_StatusError(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"errors":"[API] Invalid API key"}`, http.StatusUnauthorized)
	})

	_, err := c.FetchProducts(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d", apiErr.StatusCode)
	}
}

func TestCreateInvoice(t *testing.T) {
	t.Parallel()

	var got draftOrderRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/draft_orders.json" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"draft_order":{"id":9,"invoice_url":"https://shop/invoices/9","total_price":"499.90"}}`)
	})

	inv, err := c.CreateInvoice(context.Background(), orders.Request{
		VariantID: 11, Quantity: 2, FirstName: "Ayşe", LastName: "Yılmaz",
		Phone: "05551112233", Address1: "Bağdat Cad.", City: "İstanbul",
	})
	if err != nil {
		t.Fatalf("CreateInvoice: %v", err)
	}
	if inv.URL != "https://shop/invoices/9" || inv.TotalPrice != "499.90" {
		t.Errorf("invoice = %+v", inv)
	}

	d := got.DraftOrder
	if len(d.LineItems) != 1 || d.LineItems[0].VariantID != 11 || d.LineItems[0].Quantity != 2 {
		t.Errorf("line items = %+v", d.LineItems)
	}
	if d.Customer.Email != "05551112233@example.com" {
		t.Errorf("fallback email = %q", d.Customer.Email)
	}
	if d.ShippingAddress.Country != "Turkey" || d.UseCustomerDefaultAddress {
		t.Errorf("shipping = %+v default=%v", d.ShippingAddress, d.UseCustomerDefaultAddress)
	}
}

func TestCheckConnection(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"shop":{"name":"Moda Masal","domain":"modamasal.com"}}`)
	})
	shop, err := c.CheckConnection(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if shop.Name != "Moda Masal" || shop.Domain != "modamasal.com" {
		t.Errorf("shop = %+v", shop)
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		domain  string
		wantErr bool
	}{
		{"moda.myshopify.com", false},
		{"https://moda.myshopify.com", true},
		{"http://moda.myshopify.com", true},
		{"", true},
	}
	for _, tt := range tests {
		err := Config{StoreDomain: tt.domain}.Effective().Validate()
		if (err != nil) != tt.wantErr {
			t.Errorf("Validate(%q) err = %v, wantErr %v", tt.domain, err, tt.wantErr)
		}
	}
}

func TestAPIError_Truncates(t *testing.T) {
	t.Parallel()

	err := &APIError{StatusCode: 500, Body: strings.Repeat("x", 1000), Endpoint: "shop.json"}
	if len(err.Error()) > 400 {
		t.Errorf("error message not truncated: %d bytes", len(err.Error()))
	}
}
