package events

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dancameron/gbs-payment-gateway-paypal-payflow/internal/payment"
)

// Event types published on the payment topic.
const (
	TypePaymentAuthorized = "payment.authorized"
	TypePaymentCaptured   = "payment.captured"
	TypePaymentComplete   = "payment.complete"
)

// Envelope is the wire format for every payment lifecycle event. Downstream
// consumers (recurring-billing setup, accounting, notifications) key off
// Type.
type Envelope struct {
	Type        string    `json:"type"`
	PaymentID   string    `json:"payment_id"`
	PurchaseID  string    `json:"purchase_id"`
	Method      string    `json:"method"`
	AmountCents int64     `json:"amount_cents"`
	Status      string    `json:"status"`
	DealIDs     []string  `json:"deal_ids,omitempty"`
	EmittedAt   time.Time `json:"emitted_at"`
}

// KafkaNotifier publishes payment lifecycle events to kafka, keyed by
// payment id so one payment's events stay ordered within a partition.
// Publish failures are logged and dropped: events are advisory, the payment
// record itself is the durable state.
type KafkaNotifier struct {
	publisher Publisher
}

func NewKafkaNotifier(publisher Publisher) *KafkaNotifier {
	return &KafkaNotifier{publisher: publisher}
}

func (n *KafkaNotifier) PaymentAuthorized(ctx context.Context, p *payment.Payment) {
	n.publish(ctx, TypePaymentAuthorized, p, nil)
}

func (n *KafkaNotifier) PaymentCaptured(ctx context.Context, p *payment.Payment, dealIDs []string) {
	n.publish(ctx, TypePaymentCaptured, p, dealIDs)
}

func (n *KafkaNotifier) PaymentComplete(ctx context.Context, p *payment.Payment) {
	n.publish(ctx, TypePaymentComplete, p, nil)
}

func (n *KafkaNotifier) publish(ctx context.Context, eventType string, p *payment.Payment, dealIDs []string) {
	env := Envelope{
		Type:        eventType,
		PaymentID:   p.ID.String(),
		PurchaseID:  p.PurchaseID.String(),
		Method:      p.Method,
		AmountCents: p.AmountCents,
		Status:      string(p.Status),
		DealIDs:     dealIDs,
		EmittedAt:   time.Now().UTC(),
	}
	if err := n.publisher.Publish(ctx, env.PaymentID, env); err != nil {
		log.WithFields(log.Fields{
			"type":       eventType,
			"payment_id": env.PaymentID,
			"error":      err,
		}).Error("Failed to publish payment event")
	}
}

var _ payment.Notifier = (*KafkaNotifier)(nil)
