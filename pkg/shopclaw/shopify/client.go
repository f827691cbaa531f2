// Package shopify talks to the Shopify Admin REST API: it pulls the active
// catalog for search and creates draft orders for card payments.
package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jholhewres/shopclaw/pkg/shopclaw/catalog"
	"github.com/jholhewres/shopclaw/pkg/shopclaw/orders"
)

// productPageLimit is the maximum page size the Admin API accepts.
const productPageLimit = 250

// Config configures the Admin API client.
type Config struct {
	// StoreDomain is the bare shop host, e.g. "moda-masal.myshopify.com".
	StoreDomain string `yaml:"store_domain"`

	// AccessToken is the Admin API access token (X-Shopify-Access-Token).
	AccessToken string `yaml:"access_token"`

	// APIVersion is the dated Admin API version (default: 2024-01).
	APIVersion string `yaml:"api_version"`

	// TimeoutSeconds bounds each request (default: 20).
	TimeoutSeconds int `yaml:"timeout_seconds"`

	// BaseURL overrides "https://{store}/admin/api/{version}". Tests only.
	BaseURL string `yaml:"-"`
}

// DefaultConfig returns the default client settings.
func DefaultConfig() Config {
	return Config{APIVersion: "2024-01", TimeoutSeconds: 20}
}

// Effective returns the config with defaults applied.
func (c Config) Effective() Config {
	def := DefaultConfig()
	out := c
	out.StoreDomain = strings.TrimSuffix(strings.TrimSpace(out.StoreDomain), "/")
	if out.APIVersion == "" {
		out.APIVersion = def.APIVersion
	}
	if out.TimeoutSeconds <= 0 {
		out.TimeoutSeconds = def.TimeoutSeconds
	}
	return out
}

// Validate reports configuration errors that would make every call fail.
func (c Config) Validate() error {
	if c.BaseURL != "" {
		return nil
	}
	if c.StoreDomain == "" {
		return errors.New("shopify.store_domain is required")
	}
	if strings.HasPrefix(c.StoreDomain, "http://") || strings.HasPrefix(c.StoreDomain, "https://") {
		return fmt.Errorf("shopify.store_domain must be a bare host without scheme, got %q", c.StoreDomain)
	}
	return nil
}

// APIError is a non-2xx response from the Admin API.
type APIError struct {
	StatusCode int
	Body       string
	Endpoint   string
}

func (e *APIError) Error() string {
	body := e.Body
	if len(body) > 300 {
		body = body[:300] + "..."
	}
	return fmt.Sprintf("shopify %s returned %d: %s", e.Endpoint, e.StatusCode, body)
}

// Shop is the subset of shop.json used for health checks.
type Shop struct {
	Name     string `json:"name"`
	Domain   string `json:"domain"`
	Email    string `json:"email,omitempty"`
	Currency string `json:"currency,omitempty"`
}

// Client is a Shopify Admin REST client.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a client from cfg.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	cfg = cfg.Effective()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	base := cfg.BaseURL
	if base == "" {
		base = fmt.Sprintf("https://%s/admin/api/%s", cfg.StoreDomain, cfg.APIVersion)
	}
	return &Client{
		baseURL: strings.TrimRight(base, "/"),
		token:   cfg.AccessToken,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		logger: logger.With("component", "shopify"),
	}, nil
}

// CheckConnection fetches shop.json.
func (c *Client) CheckConnection(ctx context.Context) (Shop, error) {
	var out struct {
		Shop Shop `json:"shop"`
	}
	if err := c.do(ctx, http.MethodGet, "shop.json", nil, nil, &out); err != nil {
		return Shop{}, err
	}
	return out.Shop, nil
}

// FetchProducts returns the active catalog (first page of up to 250
// products). Records that fail to decode are skipped and logged.
func (c *Client) FetchProducts(ctx context.Context) ([]catalog.Product, error) {
	q := url.Values{}
	q.Set("limit", fmt.Sprint(productPageLimit))
	q.Set("status", "active")

	var out struct {
		Products []json.RawMessage `json:"products"`
	}
	if err := c.do(ctx, http.MethodGet, "products.json", q, nil, &out); err != nil {
		return nil, err
	}

	products := make([]catalog.Product, 0, len(out.Products))
	for i, raw := range out.Products {
		p, err := catalog.DecodeProduct(raw)
		if err != nil {
			c.logger.Warn("skipping product record", "index", i, "error", err)
			continue
		}
		products = append(products, p)
	}
	c.logger.Debug("catalog snapshot loaded", "received", len(out.Products), "kept", len(products))
	return products, nil
}

type draftOrderRequest struct {
	DraftOrder draftOrder `json:"draft_order"`
}

type draftOrder struct {
	LineItems                 []lineItem `json:"line_items"`
	Customer                  customer   `json:"customer"`
	ShippingAddress           address    `json:"shipping_address"`
	UseCustomerDefaultAddress bool       `json:"use_customer_default_address"`
}

type lineItem struct {
	VariantID int64 `json:"variant_id"`
	Quantity  int   `json:"quantity"`
}

type customer struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

type address struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Address1  string `json:"address1"`
	City      string `json:"city"`
	Phone     string `json:"phone"`
	Country   string `json:"country"`
}

// CreateInvoice creates a draft order and returns its invoice link.
func (c *Client) CreateInvoice(ctx context.Context, req orders.Request) (orders.Invoice, error) {
	email := strings.TrimSpace(req.Email)
	if email == "" {
		// Draft orders need a customer email; the phone keeps it unique.
		email = req.Phone + "@example.com"
	}
	qty := req.Quantity
	if qty <= 0 {
		qty = 1
	}
	body := draftOrderRequest{DraftOrder: draftOrder{
		LineItems: []lineItem{{VariantID: req.VariantID, Quantity: qty}},
		Customer: customer{
			FirstName: req.FirstName,
			LastName:  req.LastName,
			Email:     email,
			Phone:     req.Phone,
		},
		ShippingAddress: address{
			FirstName: req.FirstName,
			LastName:  req.LastName,
			Address1:  req.Address1,
			City:      req.City,
			Phone:     req.Phone,
			Country:   orders.DefaultCountry,
		},
	}}

	var out struct {
		DraftOrder struct {
			ID         int64  `json:"id"`
			InvoiceURL string `json:"invoice_url"`
			TotalPrice string `json:"total_price"`
		} `json:"draft_order"`
	}
	if err := c.do(ctx, http.MethodPost, "draft_orders.json", nil, body, &out); err != nil {
		return orders.Invoice{}, err
	}
	c.logger.Info("draft order created",
		"draft_order_id", out.DraftOrder.ID,
		"variant_id", req.VariantID,
		"has_invoice", out.DraftOrder.InvoiceURL != "",
	)
	return orders.Invoice{URL: out.DraftOrder.InvoiceURL, TotalPrice: out.DraftOrder.TotalPrice}, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	endpoint := c.baseURL + "/" + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshaling %s request: %w", path, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("X-Shopify-Access-Token", c.token)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("shopify %s: %w", path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return fmt.Errorf("reading %s response: %w", path, err)
	}
	c.logger.Debug("shopify request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Body: string(respBody), Endpoint: path}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("parsing %s response: %w", path, err)
	}
	return nil
}
