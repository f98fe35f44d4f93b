package payment

import (
	"context"

	"github.com/google/uuid"
)

// AuthorizationRequest is a single card authorization for the full payable
// amount. Exactly one of Card and ProfileID is used.
type AuthorizationRequest struct {
	AmountCents int64
	Currency    string
	Card        Card
	ProfileID   string
	Billing     Address
	Email       string
	Comment     string
}

// CaptureRequest settles part or all of a previously authorized amount
// against the gateway reference returned by the authorization.
type CaptureRequest struct {
	GatewayRef  string
	AmountCents int64
	Currency    string
	Completion  CompletionStatus
}

// GatewayResponse is the small slice of a gateway reply the core inspects.
// Raw carries the full wire-level response for the audit log.
type GatewayResponse struct {
	TransactionID string
	Message       string
	Raw           map[string]string
}

// Gateway abstracts the remote payment processor. Implementations return a
// *GatewayError when the gateway declines, so callers can surface its message.
type Gateway interface {
	Authorize(ctx context.Context, req AuthorizationRequest) (*GatewayResponse, error)
	Capture(ctx context.Context, req CaptureRequest) (*GatewayResponse, error)
}

// ProfileRequest asks the gateway to store a card as a reusable customer
// profile keyed to the purchaser.
type ProfileRequest struct {
	Card    Card
	Billing Address
	Email   string
}

// ProfileGateway is the stored-card variant: create or update a customer
// profile, then charge it without resubmitting card data.
type ProfileGateway interface {
	CreateOrUpdateProfile(ctx context.Context, req ProfileRequest) (string, error)
	ChargeProfile(ctx context.Context, profileID string, amountCents int64, reference string) (*GatewayResponse, error)
}

// Store is the external payment-record store.
type Store interface {
	NewPayment(ctx context.Context, p *Payment) error
	GetPayment(ctx context.Context, id uuid.UUID) (*Payment, error)
	PaymentsForPurchase(ctx context.Context, purchaseID uuid.UUID) ([]uuid.UUID, error)
	PendingPayments(ctx context.Context) ([]uuid.UUID, error)
	UpdatePayment(ctx context.Context, p *Payment) error
}

// PurchaseProvider resolves purchase ids to the immutable purchase record.
type PurchaseProvider interface {
	GetPurchase(ctx context.Context, id uuid.UUID) (*Purchase, error)
}

// CaptureEligibility is owned by the commerce platform: it decides which of a
// payment's deals are fulfillment-eligible right now (e.g. the deal tipped),
// returning deal id -> cents to settle. An empty map means nothing to do yet.
type CaptureEligibility interface {
	ItemsToCapture(ctx context.Context, p *Payment) (map[string]int64, error)
}

// Notifier receives the lifecycle events the core emits. Subscribers are
// invoked in call order within one publish; no ordering is guaranteed beyond
// that.
type Notifier interface {
	PaymentAuthorized(ctx context.Context, p *Payment)
	PaymentCaptured(ctx context.Context, p *Payment, dealIDs []string)
	PaymentComplete(ctx context.Context, p *Payment)
}

// Messenger is the user-facing message channel for the active checkout
// request. Background capture paths never use it.
type Messenger interface {
	SetError(message string)
}
