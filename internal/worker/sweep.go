package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron"
	log "github.com/sirupsen/logrus"

	"github.com/dancameron/gbs-payment-gateway-paypal-payflow/internal/metrics"
	"github.com/dancameron/gbs-payment-gateway-paypal-payflow/internal/payment"
)

// PaymentCapturer is the slice of the capture engine the sweep drives.
type PaymentCapturer interface {
	CapturePayment(ctx context.Context, p *payment.Payment) error
}

// PendingLister enumerates payments still awaiting capture.
type PendingLister interface {
	PendingPayments(ctx context.Context) ([]uuid.UUID, error)
	GetPayment(ctx context.Context, id uuid.UUID) (*payment.Payment, error)
}

// Sweep is the periodic pass over every non-complete payment, re-attempting
// capture on each. It is the retry mechanism for failed and partially
// eligible captures: at-least-once, unbounded retry, no backoff, no
// dead-lettering. A payment whose deals never become eligible is simply
// revisited every cycle.
type Sweep struct {
	store    PendingLister
	capturer PaymentCapturer
	schedule string
}

// NewSweep builds a sweep running on the given cron schedule, e.g. "@hourly".
func NewSweep(store PendingLister, capturer PaymentCapturer, schedule string) *Sweep {
	return &Sweep{
		store:    store,
		capturer: capturer,
		schedule: schedule,
	}
}

// Start schedules the sweep and blocks until ctx is cancelled.
func (s *Sweep) Start(ctx context.Context) error {
	c := cron.New()
	if err := c.AddFunc(s.schedule, func() { s.Run(ctx) }); err != nil {
		return err
	}
	c.Start()
	log.WithField("schedule", s.schedule).Info("Capture sweep scheduled")

	<-ctx.Done()
	c.Stop()
	log.Info("Capture sweep stopped")
	return ctx.Err()
}

// Run executes one sweep cycle: enumerate pending payments and attempt
// capture on each, sequentially. Failures are logged and swallowed; the
// payment's persisted state is the only record of "still needs capture".
func (s *Sweep) Run(ctx context.Context) {
	start := time.Now()

	ids, err := s.store.PendingPayments(ctx)
	if err != nil {
		log.WithField("error", err).Error("Sweep: failed to list pending payments")
		return
	}
	metrics.PendingPayments.Set(float64(len(ids)))
	if len(ids) == 0 {
		return
	}
	log.WithField("pending", len(ids)).Info("Sweep: attempting capture on pending payments")

	for _, id := range ids {
		if ctx.Err() != nil {
			return
		}
		p, err := s.store.GetPayment(ctx, id)
		if err != nil {
			log.WithFields(log.Fields{"payment_id": id, "error": err}).Error("Sweep: failed to load payment")
			continue
		}
		if err := s.capturer.CapturePayment(ctx, p); err != nil {
			log.WithFields(log.Fields{"payment_id": id, "error": err}).Warn("Sweep: capture attempt failed")
		}
	}

	metrics.SweepDuration.Observe(time.Since(start).Seconds())
}
