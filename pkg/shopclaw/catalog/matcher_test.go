package catalog

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"unicode/utf8"
)

func strPtr(s string) *string { return &s }

func sampleProducts() []Product {
	return []Product{
		{ID: 1, Title: "Uzun Kırmızı Elbise", BodyHTML: "<p>Viskon <b>kumaş</b></p>", Variants: []Variant{
			{ID: 11, Title: "38", Price: "899.90", InventoryQuantity: 3, InventoryPolicy: PolicyDeny, InventoryManagement: strPtr("shopify")},
		}},
		{ID: 2, Title: "İkra Elbise", Variants: []Variant{
			{ID: 21, Title: "S", Price: "1299.00", InventoryQuantity: 0, InventoryPolicy: PolicyDeny, InventoryManagement: strPtr("shopify")},
			{ID: 22, Title: "M", Price: "1299.00", InventoryQuantity: 0, InventoryPolicy: PolicyContinue, InventoryManagement: strPtr("shopify")},
		}},
		{ID: 3, Title: "Keten Gömlek", Variants: []Variant{
			{ID: 31, Title: "Standart", Price: "499.00"},
		}},
		{ID: 4, Title: "Elbise", Variants: []Variant{
			{ID: 41, Title: "Tek Ebat", Price: "599.00", InventoryQuantity: 250, InventoryManagement: strPtr("shopify")},
		}},
	}
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"İKRA", "ikra"},
		{"ıkra", "ikra"},
		{"IKRA", "ikra"},
		{"ikra", "ikra"},
		{"Kırmızı Elbise", "kirmizi elbise"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got := Normalize(tt.in)
			if got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
			if again := Normalize(got); again != got {
				t.Errorf("Normalize not idempotent: %q -> %q", got, again)
			}
		})
	}

	if Normalize("İKRA") != Normalize("ikra") {
		t.Error("dotted capital I must fold to the same form as lowercase i")
	}
}

func TestScore(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		query string
		title string
		want  int
	}{
		{"single token exact", "elbise", "Elbise", 3},
		{"token and phrase", "ikra elbise", "İkra Elbise", 4},
		{"one of two tokens", "ikra gömlek", "İkra Elbise", 1},
		{"no match", "pantolon", "İkra Elbise", 0},
		{"substring token", "elb", "Uzun Kırmızı Elbise", 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Score(Normalize(tt.query), tt.title); got != tt.want {
				t.Errorf("Score(%q, %q) = %d, want %d", tt.query, tt.title, got, tt.want)
			}
		})
	}
}

func TestMatch_Ordering(t *testing.T) {
	t.Parallel()

	queries := []string{"elbise", "kırmızı elbise", "ikra", "gömlek elbise", "e"}
	for _, q := range queries {
		results := Match(q, sampleProducts(), 0)
		for i := 1; i < len(results); i++ {
			prev, cur := results[i-1], results[i]
			if cur.Score > prev.Score {
				t.Errorf("query %q: result %d has higher score than %d", q, i, i-1)
			}
			if cur.Score == prev.Score &&
				utf8.RuneCountInString(cur.Product.Title) < utf8.RuneCountInString(prev.Product.Title) {
				t.Errorf("query %q: equal scores not ordered by title length at %d", q, i)
			}
		}
	}
}

func TestMatch_PrefersShorterTitle(t *testing.T) {
	t.Parallel()

	results := Match("elbise", sampleProducts(), 0)
	if len(results) != 3 {
		t.Fatalf("expected 3 matches, got %d", len(results))
	}
	if results[0].Product.ID != 4 {
		t.Errorf("expected shortest exact title first, got %q", results[0].Product.Title)
	}
}

func TestMatch_EmptyQueryKeepsSourceOrder(t *testing.T) {
	t.Parallel()

	products := sampleProducts()
	results := Match("", products, 2)
	if len(results) != 2 {
		t.Fatalf("expected limit to apply, got %d", len(results))
	}
	for i, r := range results {
		if r.Product.ID != products[i].ID || r.Score != 0 {
			t.Errorf("result %d = %d (score %d), want %d unscored", i, r.Product.ID, r.Score, products[i].ID)
		}
	}
}

func TestMatch_Limit(t *testing.T) {
	t.Parallel()

	var products []Product
	for i := 1; i <= 25; i++ {
		products = append(products, Product{ID: int64(i), Title: "Elbise " + strings.Repeat("x", i)})
	}
	if got := len(Match("elbise", products, DefaultLimit)); got != DefaultLimit {
		t.Errorf("expected %d results, got %d", DefaultLimit, got)
	}
}

func TestSearch_NotFound(t *testing.T) {
	t.Parallel()

	if got := Search("pantolon", sampleProducts(), DefaultLimit); got != NotFoundMessage {
		t.Errorf("expected not-found message, got %q", got)
	}
}

func TestRender_Format(t *testing.T) {
	t.Parallel()

	out := Search("ikra", sampleProducts(), DefaultLimit)

	if !strings.HasPrefix(out, "🔍 'ikra' için arama sonuçları:\n") {
		t.Errorf("missing header: %q", out)
	}
	for _, want := range []string{
		"Ürün: İkra Elbise",
		"Özellikler: Açıklama Yok",
		"   - Varyant ID: 21, Seçenek: S, Fiyat: 1299.00 TL, Durum: Tükendi",
		"   - Varyant ID: 22, Seçenek: M, Fiyat: 1299.00 TL, Durum: Mevcut",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRender_NeverShowsQuantity(t *testing.T) {
	t.Parallel()

	quantities := []int{0, 1, 7, 250, 987654}
	status := regexp.MustCompile(`Durum: (\S+)`)

	for _, q := range quantities {
		p := Product{ID: 9, Title: "Stok Test", Variants: []Variant{
			{ID: 91, Title: "Tek", Price: "10.00", InventoryQuantity: q, InventoryPolicy: PolicyDeny, InventoryManagement: strPtr("shopify")},
		}}
		out := Render("stok", []MatchResult{{Product: p, Score: 1}})
		m := status.FindStringSubmatch(out)
		if m == nil {
			t.Fatalf("no status in output for quantity %d: %q", q, out)
		}
		if m[1] != labelAvailable && m[1] != labelUnavailable {
			t.Errorf("quantity %d: unexpected label %q", q, m[1])
		}
		if q > 1 && strings.Contains(out, "Durum: "+strconv.Itoa(q)) {
			t.Errorf("quantity %d leaked into output", q)
		}
	}
}

func TestVariant_Available(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		v    Variant
		want bool
	}{
		{"untracked", Variant{InventoryQuantity: 0, InventoryPolicy: PolicyDeny}, true},
		{"in stock", Variant{InventoryQuantity: 2, InventoryManagement: strPtr("shopify")}, true},
		{"backorder", Variant{InventoryQuantity: -3, InventoryPolicy: PolicyContinue, InventoryManagement: strPtr("shopify")}, true},
		{"sold out", Variant{InventoryQuantity: 0, InventoryPolicy: PolicyDeny, InventoryManagement: strPtr("shopify")}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.v.Available(); got != tt.want {
				t.Errorf("Available() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDescriptionSnippet(t *testing.T) {
	t.Parallel()

	if got := DescriptionSnippet(""); got != noDescription {
		t.Errorf("empty description = %q", got)
	}
	if got := DescriptionSnippet("<p>Viskon <b>kumaş</b></p>"); got != "Viskon kumaş" {
		t.Errorf("markup not stripped: %q", got)
	}

	long := "<div>" + strings.Repeat("ş", 400) + "</div>"
	got := DescriptionSnippet(long)
	if !strings.HasSuffix(got, "...") {
		t.Errorf("long snippet not truncated: %q", got)
	}
	if n := utf8.RuneCountInString(strings.TrimSuffix(got, "...")); n != snippetLimit {
		t.Errorf("snippet has %d runes, want %d", n, snippetLimit)
	}
}

type fakeSource struct {
	products []Product
	err      error
	calls    int
}

func (f *fakeSource) FetchProducts(context.Context) ([]Product, error) {
	f.calls++
	return f.products, f.err
}

func TestService_Search(t *testing.T) {
	t.Parallel()

	src := &fakeSource{products: sampleProducts()}
	svc := NewService(src, 0, nil)

	out := svc.Search(context.Background(), "gömlek")
	if !strings.Contains(out, "Ürün: Keten Gömlek") {
		t.Errorf("unexpected output: %q", out)
	}
	svc.Search(context.Background(), "gömlek")
	if src.calls != 2 {
		t.Errorf("expected a fresh snapshot per search, got %d fetches", src.calls)
	}
}

func TestService_SearchFetchError(t *testing.T) {
	t.Parallel()

	svc := NewService(&fakeSource{err: errors.New("connection refused")}, 0, nil)
	if got := svc.Search(context.Background(), "elbise"); got != FetchErrorMessage {
		t.Errorf("expected fetch error message, got %q", got)
	}
}

func TestDecodeProduct(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{"valid", `{"id":1,"title":"Elbise","variants":[{"id":2,"title":"S","price":"10.00","inventory_quantity":1}]}`, false},
		{"missing title", `{"id":1,"variants":[]}`, true},
		{"missing id", `{"title":"Elbise"}`, true},
		{"bad type", `{"id":"x","title":"Elbise"}`, true},
		{"variant without id", `{"id":1,"title":"Elbise","variants":[{"title":"S"}]}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p, err := DecodeProduct([]byte(tt.raw))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && p.Variants[0].InventoryPolicy != PolicyDeny {
				t.Errorf("default inventory policy = %q", p.Variants[0].InventoryPolicy)
			}
		})
	}
}
