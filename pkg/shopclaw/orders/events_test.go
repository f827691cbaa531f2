package orders

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
)

// fakeKafkaWriter implements kafkaMessageWriter for tests.
type fakeKafkaWriter struct {
	msgs []kafka.Message
	fail bool
}

func (f *fakeKafkaWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if f.fail {
		return errors.New("broker unavailable")
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func TestKafkaPublisher_PublishOrderCreated(t *testing.T) {
	t.Parallel()

	fk := &fakeKafkaWriter{}
	pub := newKafkaPublisherWith(fk, "shopclaw.orders")

	o := newOrder(validRequest(PaymentCashOnDelivery), "", "")
	o.ID = 42
	if err := pub.PublishOrderCreated(context.Background(), o); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(fk.msgs) != 1 {
		t.Fatalf("want 1 msg, got %d", len(fk.msgs))
	}
	msg := fk.msgs[0]
	if string(msg.Key) != "42" {
		t.Errorf("key = %q, want 42", msg.Key)
	}

	var evt struct {
		EventID string `json:"event_id"`
		Type    string `json:"type"`
		Order   struct {
			ID            int64  `json:"id"`
			PaymentMethod string `json:"payment_method"`
		} `json:"order"`
	}
	if err := json.Unmarshal(msg.Value, &evt); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if evt.Type != EventOrderCreated || evt.EventID == "" || evt.Order.ID != 42 {
		t.Errorf("unexpected event: %+v", evt)
	}
	if evt.Order.PaymentMethod != "Kapıda Ödeme" {
		t.Errorf("payment_method = %q, want display label", evt.Order.PaymentMethod)
	}
}

func TestKafkaPublisher_Failure(t *testing.T) {
	t.Parallel()

	pub := newKafkaPublisherWith(&fakeKafkaWriter{fail: true}, "t")
	if err := pub.PublishOrderCreated(context.Background(), &Order{ID: 1}); err == nil {
		t.Fatal("expected error")
	}
}

func TestPipeline_PublishFailureDoesNotFailOrder(t *testing.T) {
	t.Parallel()

	repo := &memRepo{}
	p := newTestPipeline(t, nil, repo, newKafkaPublisherWith(&fakeKafkaWriter{fail: true}, "t"))

	res := p.Place(context.Background(), validRequest(PaymentCashOnDelivery))
	if res.Outcome != OutcomeCashOnDelivery || len(repo.orders) != 1 {
		t.Errorf("publish failure affected placement: %+v", res)
	}
}

func TestNewKafkaPublisher_Validation(t *testing.T) {
	t.Parallel()

	if _, err := NewKafkaPublisher([]string{" "}, "topic"); err == nil {
		t.Error("expected error for empty brokers")
	}
	if _, err := NewKafkaPublisher([]string{"localhost:9092"}, ""); err == nil {
		t.Error("expected error for empty topic")
	}
	pub, err := NewKafkaPublisher([]string{"localhost:9092"}, "shopclaw.orders")
	if err != nil {
		t.Fatal(err)
	}
	defer pub.Close()
	if pub.Topic() != "shopclaw.orders" {
		t.Errorf("topic = %q", pub.Topic())
	}
}
