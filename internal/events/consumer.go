package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	log "github.com/sirupsen/logrus"
)

// PurchaseCompletedQueue is the queue the commerce platform publishes to when
// a purchase finishes checkout.
const PurchaseCompletedQueue = "purchase.completed"

// PurchaseCompleted is the inbound message format.
type PurchaseCompleted struct {
	PurchaseID uuid.UUID `json:"purchase_id"`
}

// PurchaseCapturer is the slice of the capture engine the consumer drives.
type PurchaseCapturer interface {
	CapturePurchase(ctx context.Context, purchaseID uuid.UUID) error
}

// RabbitClient wraps an AMQP connection and channel.
type RabbitClient struct {
	conn *amqp.Connection
	chn  *amqp.Channel
}

func NewRabbitClient(url string) (*RabbitClient, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	chn, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	return &RabbitClient{conn: conn, chn: chn}, nil
}

func (r *RabbitClient) Close() error {
	if err := r.chn.Close(); err != nil {
		return err
	}
	return r.conn.Close()
}

// ConsumePurchaseCompleted declares the purchase-completed queue and runs the
// capture engine for every message until ctx is cancelled. Messages are acked
// after handling regardless of capture outcome: a capture failure leaves the
// payment pending and the periodic sweep retries it, so redelivering the
// event would add nothing.
func (r *RabbitClient) ConsumePurchaseCompleted(ctx context.Context, capturer PurchaseCapturer) error {
	if _, err := r.chn.QueueDeclare(
		PurchaseCompletedQueue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	); err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	msgs, err := r.chn.Consume(
		PurchaseCompletedQueue,
		"",    // consumer
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	log.WithField("queue", PurchaseCompletedQueue).Info("Listening for purchase-completed events")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return fmt.Errorf("purchase-completed channel closed")
			}
			r.handle(ctx, capturer, msg)
		}
	}
}

func (r *RabbitClient) handle(ctx context.Context, capturer PurchaseCapturer, msg amqp.Delivery) {
	var event PurchaseCompleted
	if err := json.Unmarshal(msg.Body, &event); err != nil {
		log.WithField("error", err).Warn("Discarding malformed purchase-completed event")
		msg.Nack(false, false)
		return
	}

	if err := capturer.CapturePurchase(ctx, event.PurchaseID); err != nil {
		log.WithFields(log.Fields{
			"purchase_id": event.PurchaseID,
			"error":       err,
		}).Warn("Capture on purchase-completed failed; sweep will retry")
	}
	msg.Ack(false)
}
