package payment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockEligibility returns a fixed item set, or errors.
type mockEligibility struct {
	items map[string]int64
	err   error
	calls int
}

func (m *mockEligibility) ItemsToCapture(_ context.Context, _ *Payment) (map[string]int64, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.items, nil
}

// authorizedPayment builds a stored payment covering two deals, $10.00 and
// $15.00, exactly as the authorizer would have left it.
func authorizedPayment(store *mockStore, method string) (*Payment, uuid.UUID, uuid.UUID) {
	dealA := uuid.New()
	dealB := uuid.New()
	p := &Payment{
		ID:          uuid.New(),
		PurchaseID:  uuid.New(),
		Method:      method,
		AmountCents: 2500,
		Status:      StatusAuthorized,
		Data: PaymentData{
			GatewayRef: "V19A2B3C4D5E",
			UncapturedDeals: map[string][]LineItem{
				dealA.String(): {{DealID: dealA, AmountCents: 1000, Methods: map[string]int64{method: 1000}}},
				dealB.String(): {{DealID: dealB, AmountCents: 1500, Methods: map[string]int64{method: 1500}}},
			},
		},
	}
	store.payments[p.ID] = p
	return p, dealA, dealB
}

func TestCaptureLifecycle(t *testing.T) {
	store := newMockStore()
	p, dealA, dealB := authorizedPayment(store, MethodPayflow)
	gw := &mockGateway{captureResp: &GatewayResponse{TransactionID: "V19F6G7H8I9J", Raw: map[string]string{"RESULT": "0", "RESPMSG": "Approved"}}}
	elig := &mockEligibility{items: map[string]int64{dealA.String(): 1000}}
	notifier := &mockNotifier{}
	engine := NewCaptureEngine(MethodPayflow, "USD", gw, store, elig, notifier)

	// First pass: only deal A is eligible, so this is a partial settlement.
	require.NoError(t, engine.CapturePayment(context.Background(), p))
	assert.Equal(t, StatusPartial, p.Status)
	assert.Equal(t, CaptureNotComplete, gw.lastCapture.Completion)
	assert.Equal(t, int64(1000), gw.lastCapture.AmountCents)
	assert.Equal(t, "V19A2B3C4D5E", gw.lastCapture.GatewayRef)

	require.Len(t, p.Data.CaptureResponses, 1)
	assert.Equal(t, []string{dealA.String()}, p.Data.CaptureResponses[0].DealIDs)
	assert.NotContains(t, p.Data.UncapturedDeals, dealA.String())
	assert.Contains(t, p.Data.UncapturedDeals, dealB.String())

	// Conservation: captured plus uncaptured always equals the authorization.
	assert.Equal(t, p.AmountCents, p.CapturedCents()+p.UncapturedCents())
	assert.Equal(t, 1, notifier.captured)
	assert.Equal(t, 0, notifier.complete)

	// Second pass: deal B tips, the remainder settles, the payment completes.
	elig.items = map[string]int64{dealB.String(): 1500}
	require.NoError(t, engine.CapturePayment(context.Background(), p))
	assert.Equal(t, StatusComplete, p.Status)
	assert.Equal(t, CaptureComplete, gw.lastCapture.Completion)
	assert.Empty(t, p.Data.UncapturedDeals)
	assert.Equal(t, int64(2500), p.CapturedCents())
	assert.Equal(t, 2, notifier.captured)
	assert.Equal(t, 1, notifier.complete)
	assert.Equal(t, 2, store.updates)
}

func TestCaptureSingleCallSettlesEverythingEligible(t *testing.T) {
	store := newMockStore()
	p, dealA, dealB := authorizedPayment(store, MethodPayflow)
	gw := &mockGateway{captureResp: &GatewayResponse{Raw: map[string]string{"RESULT": "0"}}}
	elig := &mockEligibility{items: map[string]int64{dealA.String(): 1000, dealB.String(): 1500}}
	engine := NewCaptureEngine(MethodPayflow, "USD", gw, store, elig, nil)

	require.NoError(t, engine.CapturePayment(context.Background(), p))
	assert.Equal(t, 1, gw.captureCalls, "both deals settle in one gateway call")
	assert.Equal(t, int64(2500), gw.lastCapture.AmountCents)
	assert.Equal(t, CaptureComplete, gw.lastCapture.Completion)
	assert.Equal(t, StatusComplete, p.Status)
}

func TestCaptureNoops(t *testing.T) {
	tests := []struct {
		name  string
		setup func(p *Payment)
	}{
		{"payment already complete", func(p *Payment) { p.Status = StatusComplete }},
		{"different processor", func(p *Payment) { p.Method = "Gift Card" }},
		{"no gateway reference", func(p *Payment) { p.Data.GatewayRef = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMockStore()
			p, dealA, _ := authorizedPayment(store, MethodPayflow)
			tt.setup(p)
			gw := &mockGateway{}
			elig := &mockEligibility{items: map[string]int64{dealA.String(): 1000}}
			engine := NewCaptureEngine(MethodPayflow, "USD", gw, store, elig, nil)

			require.NoError(t, engine.CapturePayment(context.Background(), p))
			assert.Equal(t, 0, gw.captureCalls)
			assert.Equal(t, 0, store.updates)
		})
	}
}

func TestCaptureNothingEligibleYet(t *testing.T) {
	store := newMockStore()
	p, _, _ := authorizedPayment(store, MethodPayflow)
	gw := &mockGateway{}
	engine := NewCaptureEngine(MethodPayflow, "USD", gw, store, &mockEligibility{items: map[string]int64{}}, nil)

	require.NoError(t, engine.CapturePayment(context.Background(), p))
	assert.Equal(t, 0, gw.captureCalls)
	assert.Equal(t, StatusAuthorized, p.Status)
}

func TestCaptureGatewayFailureLeavesPaymentUntouched(t *testing.T) {
	store := newMockStore()
	p, dealA, _ := authorizedPayment(store, MethodPayflow)
	gw := &mockGateway{captureErr: &GatewayError{Message: "Capture error: invalid transaction type"}}
	elig := &mockEligibility{items: map[string]int64{dealA.String(): 1000}}
	notifier := &mockNotifier{}
	engine := NewCaptureEngine(MethodPayflow, "USD", gw, store, elig, notifier)

	err := engine.CapturePayment(context.Background(), p)
	assert.ErrorIs(t, err, ErrCaptureFailed)

	// Nothing moved: the sweep will retry from exactly this state.
	assert.Equal(t, StatusAuthorized, p.Status)
	assert.Len(t, p.Data.UncapturedDeals, 2)
	assert.Empty(t, p.Data.CaptureResponses)
	assert.Equal(t, 0, store.updates)
	assert.Equal(t, 0, notifier.captured)

	// A later retry with a recovered gateway succeeds.
	gw.captureErr = nil
	gw.captureResp = &GatewayResponse{Raw: map[string]string{"RESULT": "0"}}
	require.NoError(t, engine.CapturePayment(context.Background(), p))
	assert.Equal(t, StatusPartial, p.Status)
}

func TestCaptureEligibilityError(t *testing.T) {
	store := newMockStore()
	p, _, _ := authorizedPayment(store, MethodPayflow)
	wantErr := errors.New("platform unavailable")
	engine := NewCaptureEngine(MethodPayflow, "USD", &mockGateway{}, store, &mockEligibility{err: wantErr}, nil)

	err := engine.CapturePayment(context.Background(), p)
	assert.ErrorIs(t, err, wantErr)
	assert.Equal(t, 0, store.updates)
}

func TestCapturePurchaseSkipsOtherMethods(t *testing.T) {
	store := newMockStore()
	p, dealA, _ := authorizedPayment(store, MethodPayflow)

	// A second payment on the same purchase, owned by another processor.
	other := &Payment{
		ID:         uuid.New(),
		PurchaseID: p.PurchaseID,
		Method:     "Gift Card",
		Status:     StatusAuthorized,
		Data:       PaymentData{GatewayRef: "GC1", UncapturedDeals: map[string][]LineItem{dealA.String(): nil}},
	}
	store.payments[other.ID] = other

	gw := &mockGateway{captureResp: &GatewayResponse{Raw: map[string]string{"RESULT": "0"}}}
	engine := NewCaptureEngine(MethodPayflow, "USD", gw, store, CaptureAll{}, nil)

	require.NoError(t, engine.CapturePurchase(context.Background(), p.PurchaseID))
	assert.Equal(t, 1, gw.captureCalls)
	assert.Equal(t, StatusComplete, p.Status)
	assert.Equal(t, StatusAuthorized, other.Status, "the other processor's payment is untouched")
}

func TestConcurrentCaptureCollapsesToOneAttempt(t *testing.T) {
	store := newMockStore()
	p, dealA, _ := authorizedPayment(store, MethodPayflow)
	gw := &mockGateway{
		captureResp:    &GatewayResponse{Raw: map[string]string{"RESULT": "0"}},
		captureGate:    make(chan struct{}),
		captureEntered: make(chan struct{}, 2),
	}
	elig := &mockEligibility{items: map[string]int64{dealA.String(): 1000}}
	engine := NewCaptureEngine(MethodPayflow, "USD", gw, store, elig, nil)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = engine.CapturePayment(context.Background(), p)
		}()
	}

	// Wait for the first caller to reach the gateway, give the second time to
	// pile up behind it, then release.
	<-gw.captureEntered
	time.Sleep(100 * time.Millisecond)
	close(gw.captureGate)
	wg.Wait()

	assert.Equal(t, 1, gw.captureCalls, "racing triggers must not double-charge")
	assert.Equal(t, 1, store.updates)
	assert.Len(t, p.Data.CaptureResponses, 1)
}

func TestCaptureAllEligibility(t *testing.T) {
	store := newMockStore()
	p, dealA, dealB := authorizedPayment(store, MethodPayflow)

	items, err := CaptureAll{}.ItemsToCapture(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{dealA.String(): 1000, dealB.String(): 1500}, items)
}
