package payment

import (
	"time"

	"github.com/google/uuid"
)

// Payment method identifiers. The method string on a payment record ties it
// to the processor that created it; captures are a no-op for any other method.
const (
	MethodPayflow = "Credit (PayPal PF)"
	MethodEway    = "Credit (eWAY)"
)

// Status is the lifecycle state of a payment. COMPLETE is terminal; PARTIAL
// may persist indefinitely if some deals never become capturable.
type Status string

const (
	StatusAuthorized Status = "AUTHORIZED"
	StatusPartial    Status = "PARTIAL"
	StatusComplete   Status = "COMPLETE"
)

// AcceptedCards lists the card brands offered at checkout.
var AcceptedCards = []string{"visa", "mastercard", "amex", "discover"}

// LineItem is one purchased item. Methods maps a payment method identifier to
// the portion of this item, in cents, that the method is covering. An item
// absent from a processor's method map is not that processor's concern.
type LineItem struct {
	DealID      uuid.UUID        `json:"deal_id"`
	Description string           `json:"description,omitempty"`
	Quantity    int              `json:"quantity"`
	AmountCents int64            `json:"amount_cents"`
	Methods     map[string]int64 `json:"payment_methods"`
}

// Purchase is the commerce platform's order. Immutable once created; the
// payment layer only ever reads it.
type Purchase struct {
	ID    uuid.UUID  `json:"id"`
	Items []LineItem `json:"items"`
}

// TotalFor sums the portion of this purchase, in cents, payable by the given
// payment method.
func (p *Purchase) TotalFor(method string) int64 {
	var total int64
	for _, item := range p.Items {
		if cents, ok := item.Methods[method]; ok {
			total += cents
		}
	}
	return total
}

// ItemsFor returns the line items covered by the given method, grouped by
// deal id.
func (p *Purchase) ItemsFor(method string) map[string][]LineItem {
	deals := make(map[string][]LineItem)
	for _, item := range p.Items {
		if _, ok := item.Methods[method]; !ok {
			continue
		}
		key := item.DealID.String()
		deals[key] = append(deals[key], item)
	}
	return deals
}

// Address is a billing or shipping address snapshot.
type Address struct {
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Street     string `json:"street"`
	City       string `json:"city"`
	Zone       string `json:"zone"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// BillingInfo carries the checkout billing details handed to the authorizer.
// Shipping is optional; when present it is snapshotted onto the payment.
type BillingInfo struct {
	Address  Address  `json:"address"`
	Email    string   `json:"email"`
	Shipping *Address `json:"shipping,omitempty"`
}

// Card is the instrument presented at checkout. When Token is set the stored
// gateway profile is charged and the raw card fields are ignored. SaveProfile
// asks the gateway to store the card as a reusable profile before charging.
type Card struct {
	Number      string `json:"number"`
	CVV         string `json:"cvv"`
	ExpMonth    int    `json:"exp_month"`
	ExpYear     int    `json:"exp_year"`
	Token       string `json:"token,omitempty"`
	SaveProfile bool   `json:"save_profile,omitempty"`
}

// CaptureRecord is one successful capture attempt, appended to the payment's
// audit log. AmountCents is the sum settled by that gateway call.
type CaptureRecord struct {
	AmountCents int64             `json:"amount_cents"`
	DealIDs     []string          `json:"deal_ids"`
	Response    map[string]string `json:"response"`
	CapturedAt  time.Time         `json:"captured_at"`
}

// PaymentData is the structured payload persisted with a payment.
// UncapturedDeals starts as every deal the authorization covered and is
// decremented as captures succeed; it is empty exactly when the payment is
// COMPLETE.
type PaymentData struct {
	GatewayRef       string                `json:"gateway_ref"`
	UncapturedDeals  map[string][]LineItem `json:"uncaptured_deals"`
	CaptureResponses []CaptureRecord       `json:"capture_responses,omitempty"`
}

// Payment is the record created by a successful authorization and settled,
// possibly across several captures, by the capture engine. Never deleted.
type Payment struct {
	ID          uuid.UUID   `json:"id"`
	PurchaseID  uuid.UUID   `json:"purchase_id"`
	Method      string      `json:"method"`
	AmountCents int64       `json:"amount_cents"`
	Status      Status      `json:"status"`
	Data        PaymentData `json:"data"`
	Shipping    *Address    `json:"shipping,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// UncapturedCents sums the amounts still owed across all uncaptured deals.
func (p *Payment) UncapturedCents() int64 {
	var total int64
	for _, items := range p.Data.UncapturedDeals {
		for _, item := range items {
			total += item.Methods[p.Method]
		}
	}
	return total
}

// CapturedCents sums the amounts settled by every logged capture.
func (p *Payment) CapturedCents() int64 {
	var total int64
	for _, rec := range p.Data.CaptureResponses {
		total += rec.AmountCents
	}
	return total
}

// CompletionStatus tags a capture request with whether it settles everything
// still outstanding on the authorization.
type CompletionStatus string

const (
	CaptureComplete    CompletionStatus = "Complete"
	CaptureNotComplete CompletionStatus = "NotComplete"
)
