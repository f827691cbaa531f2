// Package orders records customer orders placed through the assistant and
// drives the two-phase placement flow (optional invoice, mandatory record).
package orders

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned when an order id does not exist.
var ErrNotFound = errors.New("order not found")

// DefaultCountry is the fixed shipping country for every order.
const DefaultCountry = "Turkey"

// enum maps stored codes to display labels. Lookups accept either form.
type enum struct {
	codes  []string
	labels []string
}

func (e enum) label(code string) string {
	for i, c := range e.codes {
		if c == code {
			return e.labels[i]
		}
	}
	return code
}

func (e enum) parse(s string) (string, bool) {
	s = strings.TrimSpace(s)
	for i, c := range e.codes {
		if strings.EqualFold(s, c) || s == e.labels[i] {
			return c, true
		}
	}
	return "", false
}

// ---------- Status ----------

// Status is the fulfilment state of an order.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusShipped   Status = "SENT"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

var statusEnum = enum{
	codes:  []string{"PENDING", "SENT", "COMPLETED", "CANCELLED"},
	labels: []string{"Beklemede", "Gönderildi/Kargolandı", "Tamamlandı", "İptal Edildi"},
}

// ParseStatus accepts a stored code ("SENT") or a label ("Tamamlandı").
func ParseStatus(s string) (Status, error) {
	code, ok := statusEnum.parse(s)
	if !ok {
		return "", fmt.Errorf("unknown order status %q", s)
	}
	return Status(code), nil
}

func (s Status) Label() string                 { return statusEnum.label(string(s)) }
func (s Status) MarshalText() ([]byte, error)  { return []byte(s.Label()), nil }
func (s Status) Value() (driver.Value, error)  { return string(s), nil }
func (s *Status) UnmarshalText(b []byte) error { return parseInto(string(b), ParseStatus, s) }
func (s *Status) Scan(src any) error           { return scanInto(src, ParseStatus, s) }

// ---------- Source ----------

// Source is the channel an order came in through.
type Source string

const (
	SourceWeb       Source = "WEB"
	SourceWhatsApp  Source = "WHATSAPP"
	SourceInstagram Source = "INSTAGRAM"
)

var sourceEnum = enum{
	codes:  []string{"WEB", "WHATSAPP", "INSTAGRAM"},
	labels: []string{"Web", "WhatsApp", "Instagram"},
}

// ParseSource accepts a stored code or a label.
func ParseSource(s string) (Source, error) {
	code, ok := sourceEnum.parse(s)
	if !ok {
		return "", fmt.Errorf("unknown order source %q", s)
	}
	return Source(code), nil
}

func (s Source) Label() string                 { return sourceEnum.label(string(s)) }
func (s Source) MarshalText() ([]byte, error)  { return []byte(s.Label()), nil }
func (s Source) Value() (driver.Value, error)  { return string(s), nil }
func (s *Source) UnmarshalText(b []byte) error { return parseInto(string(b), ParseSource, s) }
func (s *Source) Scan(src any) error           { return scanInto(src, ParseSource, s) }

// ---------- PaymentMethod ----------

// PaymentMethod is how the customer pays.
type PaymentMethod string

const (
	PaymentCreditCard     PaymentMethod = "CREDIT_CARD"
	PaymentCashOnDelivery PaymentMethod = "COD"
)

var paymentEnum = enum{
	codes:  []string{"CREDIT_CARD", "COD"},
	labels: []string{"Kredi Kartı", "Kapıda Ödeme"},
}

// PaymentLabels are the values the assistant is told to use.
func PaymentLabels() []string {
	return append([]string(nil), paymentEnum.labels...)
}

// ParsePaymentMethod accepts a stored code or a label.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	code, ok := paymentEnum.parse(s)
	if !ok {
		return "", fmt.Errorf("unknown payment method %q", s)
	}
	return PaymentMethod(code), nil
}

func (p PaymentMethod) Label() string                 { return paymentEnum.label(string(p)) }
func (p PaymentMethod) MarshalText() ([]byte, error)  { return []byte(p.Label()), nil }
func (p PaymentMethod) Value() (driver.Value, error)  { return string(p), nil }
func (p *PaymentMethod) UnmarshalText(b []byte) error { return parseInto(string(b), ParsePaymentMethod, p) }
func (p *PaymentMethod) Scan(src any) error           { return scanInto(src, ParsePaymentMethod, p) }

func parseInto[T ~string](s string, parse func(string) (T, error), dst *T) error {
	v, err := parse(s)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

func scanInto[T ~string](src any, parse func(string) (T, error), dst *T) error {
	switch v := src.(type) {
	case string:
		return parseInto(v, parse, dst)
	case []byte:
		return parseInto(string(v), parse, dst)
	default:
		return fmt.Errorf("cannot scan %T into %T", src, dst)
	}
}

// ---------- Request / Order ----------

// Request carries the fields needed to place an order.
type Request struct {
	VariantID      int64
	Quantity       int
	FirstName      string
	LastName       string
	Phone          string
	Email          string
	Address1       string
	City           string
	ProductSummary string
	PaymentMethod  PaymentMethod
	Source         Source
}

// Validate checks required fields and defaults the source to Web.
func (r *Request) Validate() error {
	if r.Source == "" {
		r.Source = SourceWeb
	}
	switch {
	case r.VariantID <= 0:
		return errors.New("variant_id must be a positive integer")
	case r.Quantity < 1:
		return errors.New("quantity must be at least 1")
	case strings.TrimSpace(r.FirstName) == "":
		return errors.New("first_name is required")
	case strings.TrimSpace(r.LastName) == "":
		return errors.New("last_name is required")
	case strings.TrimSpace(r.Phone) == "":
		return errors.New("phone is required")
	case strings.TrimSpace(r.Address1) == "":
		return errors.New("address1 is required")
	case strings.TrimSpace(r.City) == "":
		return errors.New("city is required")
	case strings.TrimSpace(r.ProductSummary) == "":
		return errors.New("product_summary is required")
	}
	pm, err := ParsePaymentMethod(string(r.PaymentMethod))
	if err != nil {
		return err
	}
	r.PaymentMethod = pm
	return nil
}

// Order is a persisted order.
type Order struct {
	ID             int64         `json:"id"`
	FirstName      string        `json:"first_name"`
	LastName       string        `json:"last_name"`
	Phone          string        `json:"phone"`
	Email          *string       `json:"email"`
	Address        string        `json:"address"`
	City           string        `json:"city"`
	ProductSummary string        `json:"product_summary"`
	Amount         *string       `json:"amount"`
	InvoiceURL     *string       `json:"shopify_invoice_url"`
	Status         Status        `json:"status"`
	Source         Source        `json:"source"`
	PaymentMethod  PaymentMethod `json:"payment_method"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// newOrder builds the Pending order for a validated request.
func newOrder(req Request, invoiceURL, amount string) *Order {
	o := &Order{
		FirstName:      strings.TrimSpace(req.FirstName),
		LastName:       strings.TrimSpace(req.LastName),
		Phone:          strings.TrimSpace(req.Phone),
		Address:        strings.TrimSpace(req.Address1) + " " + strings.TrimSpace(req.City),
		City:           strings.TrimSpace(req.City),
		ProductSummary: strings.TrimSpace(req.ProductSummary),
		Status:         StatusPending,
		Source:         req.Source,
		PaymentMethod:  req.PaymentMethod,
	}
	if e := strings.TrimSpace(req.Email); e != "" {
		o.Email = &e
	}
	if invoiceURL != "" {
		o.InvoiceURL = &invoiceURL
	}
	if amount != "" {
		o.Amount = &amount
	}
	return o
}
