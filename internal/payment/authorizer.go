package payment

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/dancameron/gbs-payment-gateway-paypal-payflow/internal/metrics"
)

// Authorizer holds a single card authorization for the full amount a purchase
// owes this processor, creating the payment record the capture engine later
// settles against. It does not deduplicate: calling it twice for one purchase
// issues two authorizations.
type Authorizer struct {
	method   string
	currency string
	gateway  Gateway
	profiles ProfileGateway
	store    Store
	notifier Notifier
}

func NewAuthorizer(method, currency string, gateway Gateway, profiles ProfileGateway, store Store, notifier Notifier) *Authorizer {
	return &Authorizer{
		method:   method,
		currency: currency,
		gateway:  gateway,
		profiles: profiles,
		store:    store,
		notifier: notifier,
	}
}

// Method returns the payment method identifier this authorizer stamps on the
// payments it creates.
func (a *Authorizer) Method() string {
	return a.method
}

// Authorize reserves the purchase's payable total on the presented card and
// creates a payment at AUTHORIZED with every covered deal still uncaptured.
// When another processor already covered the whole purchase it returns that
// existing payment without touching the gateway. Gateway declines are
// reported on msgr and returned as an error wrapping ErrAuthorizationFailed;
// no payment is created.
func (a *Authorizer) Authorize(ctx context.Context, purchase *Purchase, billing BillingInfo, card Card, msgr Messenger) (*Payment, error) {
	total := purchase.TotalFor(a.method)
	if total < 1 {
		// Another payment handler intercepted and took care of everything;
		// hand back the payment it created.
		return a.existingPayment(ctx, purchase.ID)
	}

	resp, err := a.charge(ctx, purchase, billing, card, total)
	if err != nil {
		log.WithFields(log.Fields{
			"purchase_id":  purchase.ID,
			"method":       a.method,
			"amount_cents": total,
			"error":        err,
		}).Warn("Authorization failed")
		metrics.AuthorizationsTotal.WithLabelValues(a.method, "failure").Inc()
		if msgr != nil {
			msgr.SetError(UserMessage(err, "Your payment could not be authorized."))
		}
		return nil, fmt.Errorf("%w: %v", ErrAuthorizationFailed, err)
	}

	now := nowUTC()
	p := &Payment{
		ID:          uuid.New(),
		PurchaseID:  purchase.ID,
		Method:      a.method,
		AmountCents: total,
		Status:      StatusAuthorized,
		Data: PaymentData{
			GatewayRef:      resp.TransactionID,
			UncapturedDeals: purchase.ItemsFor(a.method),
		},
		Shipping:  billing.Shipping,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := a.store.NewPayment(ctx, p); err != nil {
		return nil, fmt.Errorf("store payment: %w", err)
	}

	metrics.AuthorizationsTotal.WithLabelValues(a.method, "success").Inc()
	metrics.PaymentAmount.Observe(float64(total) / 100)
	log.WithFields(log.Fields{
		"payment_id":   p.ID,
		"purchase_id":  purchase.ID,
		"gateway_ref":  resp.TransactionID,
		"amount_cents": total,
		"deals":        len(p.Data.UncapturedDeals),
	}).Info("Payment authorized")

	if a.notifier != nil {
		a.notifier.PaymentAuthorized(ctx, p)
	}
	return p, nil
}

// charge runs the gateway call for the chosen instrument: a stored profile
// token, a new card the purchaser asked to store, or a plain one-off card.
func (a *Authorizer) charge(ctx context.Context, purchase *Purchase, billing BillingInfo, card Card, total int64) (*GatewayResponse, error) {
	comment := fmt.Sprintf("Purchase ID: %s", purchase.ID)

	if card.Token != "" {
		if a.profiles == nil {
			return nil, ErrTokensNotSupported
		}
		return a.profiles.ChargeProfile(ctx, card.Token, total, comment)
	}

	if card.SaveProfile {
		if a.profiles == nil {
			return nil, ErrTokensNotSupported
		}
		profileID, err := a.profiles.CreateOrUpdateProfile(ctx, ProfileRequest{
			Card:    card,
			Billing: billing.Address,
			Email:   billing.Email,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrProfileFailed, err)
		}
		return a.profiles.ChargeProfile(ctx, profileID, total, comment)
	}

	return a.gateway.Authorize(ctx, AuthorizationRequest{
		AmountCents: total,
		Currency:    a.currency,
		Card:        card,
		Billing:     billing.Address,
		Email:       billing.Email,
		Comment:     comment,
	})
}

func (a *Authorizer) existingPayment(ctx context.Context, purchaseID uuid.UUID) (*Payment, error) {
	ids, err := a.store.PaymentsForPurchase(ctx, purchaseID)
	if err != nil {
		return nil, fmt.Errorf("lookup payments for purchase %s: %w", purchaseID, err)
	}
	for _, id := range ids {
		return a.store.GetPayment(ctx, id)
	}
	return nil, ErrPaymentNotFound
}
