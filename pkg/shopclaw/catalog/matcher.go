package catalog

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

// DefaultLimit is the number of products rendered for a search.
const DefaultLimit = 10

const (
	// NotFoundMessage is returned when a query matched nothing.
	NotFoundMessage = "Aradığınız kriterde ürün bulunamadı. Lütfen ürün adını veya rengini değiştirip tekrar deneyiniz."

	// FetchErrorMessage is returned when the catalog snapshot could not be loaded.
	FetchErrorMessage = "Ürün aranırken bir hata oluştu."

	labelAvailable   = "Mevcut"
	labelUnavailable = "Tükendi"
	noDescription    = "Açıklama Yok"

	snippetLimit = 300
)

var markupPattern = regexp.MustCompile(`<[^<]+?>`)

// dotted and dotless I both fold to a plain "i" before lower-casing, so
// "İKRA", "IKRA" and "ıkra" all compare equal to "ikra".
var turkishFolder = strings.NewReplacer("İ", "i", "ı", "i")

// Normalize folds s for matching. It is idempotent.
func Normalize(s string) string {
	if s == "" {
		return ""
	}
	return strings.ToLower(turkishFolder.Replace(s))
}

// Score returns the relevance of title for an already normalized query:
// one point per query token found in the title plus two when the whole
// query appears verbatim.
func Score(normalizedQuery, title string) int {
	t := Normalize(title)
	score := 0
	for _, token := range strings.Fields(normalizedQuery) {
		if strings.Contains(t, token) {
			score++
		}
	}
	if normalizedQuery != "" && strings.Contains(t, normalizedQuery) {
		score += 2
	}
	return score
}

// Match ranks products against query. An empty query returns the products
// unscored in source order. Results are capped at limit when limit > 0.
func Match(query string, products []Product, limit int) []MatchResult {
	var results []MatchResult

	q := Normalize(strings.TrimSpace(query))
	if q == "" {
		results = make([]MatchResult, 0, len(products))
		for _, p := range products {
			results = append(results, MatchResult{Product: p})
		}
	} else {
		for _, p := range products {
			if s := Score(q, p.Title); s > 0 {
				results = append(results, MatchResult{Product: p, Score: s})
			}
		}
		sort.SliceStable(results, func(i, j int) bool {
			if results[i].Score != results[j].Score {
				return results[i].Score > results[j].Score
			}
			return utf8.RuneCountInString(results[i].Product.Title) < utf8.RuneCountInString(results[j].Product.Title)
		})
	}

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}

// Render formats match results as the listing the assistant reads.
// Stock is only ever shown as one of two labels, never as a number.
func Render(query string, results []MatchResult) string {
	if len(results) == 0 {
		return NotFoundMessage
	}

	var lines []string
	if strings.TrimSpace(query) != "" {
		lines = append(lines, fmt.Sprintf("🔍 '%s' için arama sonuçları:\n", query))
	}

	for _, r := range results {
		p := r.Product
		variants := make([]string, 0, len(p.Variants))
		for _, v := range p.Variants {
			variants = append(variants, fmt.Sprintf("   - Varyant ID: %d, Seçenek: %s, Fiyat: %s TL, Durum: %s",
				v.ID, v.Title, v.Price, AvailabilityLabel(v)))
		}
		lines = append(lines, fmt.Sprintf("Ürün: %s\nÖzellikler: %s\n%s",
			p.Title, DescriptionSnippet(p.BodyHTML), strings.Join(variants, "\n")))
	}
	return strings.Join(lines, "\n")
}

// Search matches and renders in one step.
func Search(query string, products []Product, limit int) string {
	return Render(query, Match(query, products, limit))
}

// AvailabilityLabel returns the customer-facing stock label for v.
func AvailabilityLabel(v Variant) string {
	if v.Available() {
		return labelAvailable
	}
	return labelUnavailable
}

// DescriptionSnippet strips markup from html and shortens it for display.
func DescriptionSnippet(html string) string {
	if html == "" {
		return noDescription
	}
	clean := markupPattern.ReplaceAllString(html, "")
	runes := []rune(clean)
	if len(runes) > snippetLimit {
		return string(runes[:snippetLimit]) + "..."
	}
	return clean
}
