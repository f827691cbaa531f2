package channels

import (
	"context"
	"net/url"
	"testing"
)

func TestParseMode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"", ModeMock, false},
		{"cloud", ModeCloud, false},
		{" Linked ", ModeLinked, false},
		{"MOCK", ModeMock, false},
		{"disabled", ModeDisabled, false},
		{"sms", "", true},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseMode(%q) err = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseMode(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestVerifySubscription(t *testing.T) {
	t.Parallel()

	q := url.Values{}
	q.Set("hub.mode", "subscribe")
	q.Set("hub.verify_token", "secret")
	q.Set("hub.challenge", "1158201444")

	if got, ok := VerifySubscription(q, "secret"); !ok || got != "1158201444" {
		t.Errorf("valid request = %q, %v", got, ok)
	}
	if _, ok := VerifySubscription(q, "other"); ok {
		t.Error("wrong token accepted")
	}
	if _, ok := VerifySubscription(q, ""); ok {
		t.Error("empty configured token accepted")
	}

	q.Set("hub.mode", "unsubscribe")
	if _, ok := VerifySubscription(q, "secret"); ok {
		t.Error("non-subscribe mode accepted")
	}
}

func TestLogSender(t *testing.T) {
	t.Parallel()

	s := NewLogSender("instagram", nil)
	if s.Name() != "instagram" {
		t.Errorf("name = %q", s.Name())
	}
	if err := s.Send(context.Background(), "1789", "Merhaba 🌸"); err != nil {
		t.Errorf("Send: %v", err)
	}
}
