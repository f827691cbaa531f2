package orders

import "fmt"

// Outcome classifies how a placement attempt ended.
type Outcome string

const (
	OutcomeCashOnDelivery      Outcome = "cash_on_delivery"
	OutcomeInvoiceReady        Outcome = "invoice_ready"
	OutcomeRecordedWithoutLink Outcome = "recorded_without_link"
	OutcomeRejected            Outcome = "rejected"
	OutcomeFailed              Outcome = "failed"
)

// Customer-facing messages.
const (
	MessageCashOnDelivery = "✅ Siparişiniz KAPIDA ÖDEME seçeneğiyle alınmıştır! Hazırlanıp en kısa sürede kargoya verilecektir. 📦"
	MessageInvoiceReady   = "✅ Siparişiniz oluşturuldu! Ödeme yapmak için tıklayın: %s"
	MessageWithoutLink    = "Sipariş oluşturuldu ancak ödeme linki alınamadı."
	MessageSaveFailed     = "Sipariş kaydı sırasında hata oluştu. Lütfen daha sonra tekrar deneyiniz."
	MessageRejected       = "Sipariş bilgileri eksik veya hatalı: %s"
)

// Result is what Place reports back. UserMessage is always safe to show to
// the customer; Diagnostic never is.
type Result struct {
	Outcome     Outcome `json:"outcome"`
	UserMessage string  `json:"message"`
	Diagnostic  error   `json:"-"`
	Order       *Order  `json:"order,omitempty"`
}

// Persisted reports whether an order row was written.
func (r Result) Persisted() bool {
	return r.Order != nil
}

func resultFor(o *Order, diag error) Result {
	res := Result{Order: o, Diagnostic: diag}
	switch {
	case o.PaymentMethod == PaymentCashOnDelivery:
		res.Outcome = OutcomeCashOnDelivery
		res.UserMessage = MessageCashOnDelivery
	case o.InvoiceURL != nil:
		res.Outcome = OutcomeInvoiceReady
		res.UserMessage = fmt.Sprintf(MessageInvoiceReady, *o.InvoiceURL)
	default:
		res.Outcome = OutcomeRecordedWithoutLink
		res.UserMessage = MessageWithoutLink
	}
	return res
}
