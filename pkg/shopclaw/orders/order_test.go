package orders

import (
	"encoding/json"
	"testing"
)

func TestParseStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    Status
		wantErr bool
	}{
		{"SENT", StatusShipped, false},
		{"sent", StatusShipped, false},
		{"Gönderildi/Kargolandı", StatusShipped, false},
		{"Tamamlandı", StatusCompleted, false},
		{" İptal Edildi ", StatusCancelled, false},
		{"shipped", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseStatus(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseStatus(%q) err = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseStatus(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEnumJSON(t *testing.T) {
	t.Parallel()

	o := Order{Status: StatusPending, Source: SourceInstagram, PaymentMethod: PaymentCreditCard}
	b, err := json.Marshal(o)
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatal(err)
	}
	if m["status"] != "Beklemede" || m["source"] != "Instagram" || m["payment_method"] != "Kredi Kartı" {
		t.Errorf("labels not rendered: %v", m)
	}

	var body struct {
		Status Status `json:"status"`
	}
	for _, in := range []string{`{"status":"COMPLETED"}`, `{"status":"Tamamlandı"}`} {
		if err := json.Unmarshal([]byte(in), &body); err != nil {
			t.Fatalf("unmarshal %s: %v", in, err)
		}
		if body.Status != StatusCompleted {
			t.Errorf("%s decoded to %q", in, body.Status)
		}
	}
	if err := json.Unmarshal([]byte(`{"status":"lost"}`), &body); err == nil {
		t.Error("expected error for unknown status")
	}
}

func TestRequestValidate(t *testing.T) {
	t.Parallel()

	req := validRequest("kapıda ödeme")
	if err := req.Validate(); err == nil {
		t.Error("label match is exact; lowercase label should not parse")
	}

	req = validRequest("cod")
	if err := req.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if req.Quantity != 1 || req.Source != SourceWeb || req.PaymentMethod != PaymentCashOnDelivery {
		t.Errorf("defaults not applied: %+v", req)
	}

	req = validRequest(PaymentCreditCard)
	req.VariantID = 0
	if err := req.Validate(); err == nil {
		t.Error("expected error for missing variant")
	}

	for _, qty := range []int{0, -2} {
		req = validRequest(PaymentCreditCard)
		req.Quantity = qty
		if err := req.Validate(); err == nil {
			t.Errorf("quantity %d accepted", qty)
		}
		if req.Quantity != qty {
			t.Errorf("quantity %d rewritten to %d", qty, req.Quantity)
		}
	}
}

func TestPaymentLabels(t *testing.T) {
	t.Parallel()

	labels := PaymentLabels()
	if len(labels) != 2 || labels[0] != "Kredi Kartı" || labels[1] != "Kapıda Ödeme" {
		t.Errorf("labels = %v", labels)
	}
	labels[0] = "x"
	if PaymentLabels()[0] != "Kredi Kartı" {
		t.Error("PaymentLabels returned shared slice")
	}
}
