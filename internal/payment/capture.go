package payment

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/dancameron/gbs-payment-gateway-paypal-payflow/internal/metrics"
)

// CaptureEngine settles previously authorized payments as their deals become
// fulfillment-eligible. It is driven both by purchase-completed events and by
// the periodic sweep, so every path through it is a checked no-op unless
// there is genuinely something to capture. A failed capture mutates nothing;
// the next trigger simply retries.
type CaptureEngine struct {
	method      string
	currency    string
	gateway     Gateway
	store       Store
	eligibility CaptureEligibility
	notifier    Notifier

	// sf keeps at most one capture in flight per payment, so the sweep and a
	// purchase-completed event racing on the same payment cannot double-charge.
	sf singleflight.Group
}

func NewCaptureEngine(method, currency string, gateway Gateway, store Store, eligibility CaptureEligibility, notifier Notifier) *CaptureEngine {
	return &CaptureEngine{
		method:      method,
		currency:    currency,
		gateway:     gateway,
		store:       store,
		eligibility: eligibility,
		notifier:    notifier,
	}
}

// Method returns the payment method identifier this engine settles for.
func (e *CaptureEngine) Method() string {
	return e.method
}

// CapturePurchase attempts capture on every payment attached to a purchase.
// Used by the purchase-completed event path.
func (e *CaptureEngine) CapturePurchase(ctx context.Context, purchaseID uuid.UUID) error {
	ids, err := e.store.PaymentsForPurchase(ctx, purchaseID)
	if err != nil {
		return fmt.Errorf("lookup payments for purchase %s: %w", purchaseID, err)
	}
	for _, id := range ids {
		p, err := e.store.GetPayment(ctx, id)
		if err != nil {
			log.WithFields(log.Fields{"payment_id": id, "error": err}).Error("Failed to load payment for capture")
			continue
		}
		if err := e.CapturePayment(ctx, p); err != nil {
			log.WithFields(log.Fields{"payment_id": id, "error": err}).Warn("Capture attempt failed")
		}
	}
	return nil
}

// CapturePayment settles whatever portion of the payment is eligible right
// now. Concurrent calls for the same payment are collapsed into one attempt.
func (e *CaptureEngine) CapturePayment(ctx context.Context, p *Payment) error {
	_, err, _ := e.sf.Do(p.ID.String(), func() (interface{}, error) {
		return nil, e.capture(ctx, p)
	})
	return err
}

func (e *CaptureEngine) capture(ctx context.Context, p *Payment) error {
	// Right processor, and does the payment still need settling?
	if p.Method != e.method || p.Status == StatusComplete {
		return nil
	}
	// Without a gateway reference there is nothing to capture against.
	if p.Data.GatewayRef == "" {
		return nil
	}

	items, err := e.eligibility.ItemsToCapture(ctx, p)
	if err != nil {
		return fmt.Errorf("items to capture for %s: %w", p.ID, err)
	}
	if len(items) == 0 {
		return nil
	}

	completion := CaptureNotComplete
	if len(items) >= len(p.Data.UncapturedDeals) {
		completion = CaptureComplete
	}

	var total int64
	dealIDs := make([]string, 0, len(items))
	for dealID, cents := range items {
		total += cents
		dealIDs = append(dealIDs, dealID)
	}
	sort.Strings(dealIDs)

	resp, err := e.gateway.Capture(ctx, CaptureRequest{
		GatewayRef:  p.Data.GatewayRef,
		AmountCents: total,
		Currency:    e.currency,
		Completion:  completion,
	})
	if err != nil {
		// Leave the payment untouched; the next sweep retries. This runs
		// outside any user request, so the failure is logged, not surfaced.
		log.WithFields(log.Fields{
			"payment_id":   p.ID,
			"gateway_ref":  p.Data.GatewayRef,
			"amount_cents": total,
			"error":        err,
		}).Warn("Capture rejected by gateway")
		metrics.CapturesTotal.WithLabelValues(e.method, "failure", string(completion)).Inc()
		return fmt.Errorf("%w: %v", ErrCaptureFailed, err)
	}

	for _, dealID := range dealIDs {
		delete(p.Data.UncapturedDeals, dealID)
	}
	p.Data.CaptureResponses = append(p.Data.CaptureResponses, CaptureRecord{
		AmountCents: total,
		DealIDs:     dealIDs,
		Response:    resp.Raw,
		CapturedAt:  nowUTC(),
	})
	if len(p.Data.UncapturedDeals) == 0 {
		p.Status = StatusComplete
	} else {
		p.Status = StatusPartial
	}
	p.UpdatedAt = nowUTC()

	if err := e.store.UpdatePayment(ctx, p); err != nil {
		return fmt.Errorf("persist captured payment %s: %w", p.ID, err)
	}

	metrics.CapturesTotal.WithLabelValues(e.method, "success", string(completion)).Inc()
	log.WithFields(log.Fields{
		"payment_id":   p.ID,
		"gateway_ref":  p.Data.GatewayRef,
		"amount_cents": total,
		"deal_ids":     dealIDs,
		"status":       p.Status,
	}).Info("Payment captured")

	if e.notifier != nil {
		e.notifier.PaymentCaptured(ctx, p, dealIDs)
		if p.Status == StatusComplete {
			e.notifier.PaymentComplete(ctx, p)
		}
	}
	return nil
}
