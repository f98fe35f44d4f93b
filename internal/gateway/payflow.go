package gateway

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	log "github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/dancameron/gbs-payment-gateway-paypal-payflow/internal/metrics"
	"github.com/dancameron/gbs-payment-gateway-paypal-payflow/internal/payment"
)

// Payflow endpoints. Sandbox credentials hit the pilot host, live
// credentials the production host.
const (
	payflowLiveHost  = "https://payflowpro.paypal.com"
	payflowPilotHost = "https://pilot-payflowpro.paypal.com"
)

// Payflow transaction types used here: A = Authorization, D = Delayed Capture.
const (
	trxTypeAuthorization  = "A"
	trxTypeDelayedCapture = "D"
)

// PayflowConfig carries the merchant's Payflow API credentials.
type PayflowConfig struct {
	Vendor   string
	Partner  string
	User     string
	Password string
	Mode     string // "sandbox" or "live"
}

// PayflowClient speaks PayPal's Payflow name-value-pair protocol. It
// implements payment.Gateway: a declined transaction comes back as a
// *payment.GatewayError carrying the gateway's RESPMSG.
type PayflowClient struct {
	cfg     PayflowConfig
	host    string
	rest    *resty.Client
	breaker *gobreaker.CircuitBreaker
}

func NewPayflowClient(cfg PayflowConfig) *PayflowClient {
	host := payflowPilotHost
	if cfg.Mode == "live" {
		host = payflowLiveHost
	}
	return &PayflowClient{
		cfg:  cfg,
		host: host,
		rest: resty.New().
			SetTimeout(30 * time.Second).
			SetRetryCount(0), // no automatic retries, the circuit breaker handles failure
		breaker: newBreaker("payflow"),
	}
}

// Authorize reserves funds on the card without transferring them.
func (c *PayflowClient) Authorize(ctx context.Context, req payment.AuthorizationRequest) (*payment.GatewayResponse, error) {
	pairs := c.basePairs(trxTypeAuthorization)
	pairs = append(pairs,
		nvp{"AMT", payment.FormatCents(req.AmountCents)},
		nvp{"CURRENCY", req.Currency},
		nvp{"ACCT", req.Card.Number},
		nvp{"CVV2", req.Card.CVV},
		nvp{"EXPDATE", payment.ExpirationDate(req.Card.ExpMonth, req.Card.ExpYear)},
		nvp{"FIRSTNAME", req.Billing.FirstName},
		nvp{"LASTNAME", req.Billing.LastName},
		nvp{"STREET", req.Billing.Street},
		nvp{"CITY", req.Billing.City},
		nvp{"STATE", req.Billing.Zone},
		nvp{"ZIP", req.Billing.PostalCode},
		nvp{"BILLTOCOUNTRY", payment.CountryCode(req.Billing.Country)},
		nvp{"EMAIL", req.Email},
		nvp{"COMMENT1", req.Comment},
	)
	return c.transact(ctx, "authorize", pairs)
}

// Capture settles some or all of a prior authorization. Payflow's delayed
// capture references the original transaction by ORIGID; CAPTURECOMPLETE=N
// marks a multi-part partial capture.
func (c *PayflowClient) Capture(ctx context.Context, req payment.CaptureRequest) (*payment.GatewayResponse, error) {
	captureComplete := "Y"
	if req.Completion == payment.CaptureNotComplete {
		captureComplete = "N"
	}
	pairs := c.basePairs(trxTypeDelayedCapture)
	pairs = append(pairs,
		nvp{"ORIGID", req.GatewayRef},
		nvp{"AMT", payment.FormatCents(req.AmountCents)},
		nvp{"CURRENCY", req.Currency},
		nvp{"CAPTURECOMPLETE", captureComplete},
	)
	return c.transact(ctx, "capture", pairs)
}

type nvp struct {
	key   string
	value string
}

func (c *PayflowClient) basePairs(trxType string) []nvp {
	return []nvp{
		{"TRXTYPE", trxType},
		{"TENDER", "C"}, // credit card
		{"USER", c.cfg.User},
		{"VENDOR", c.cfg.Vendor},
		{"PARTNER", c.cfg.Partner},
		{"PWD", c.cfg.Password},
	}
}

func (c *PayflowClient) transact(ctx context.Context, operation string, pairs []nvp) (*payment.GatewayResponse, error) {
	body := encodeNVP(pairs)

	result, err := c.breaker.Execute(func() (interface{}, error) {
		resp, err := c.rest.R().
			SetContext(ctx).
			SetHeader("Content-Type", "text/namevalue").
			SetBody(body).
			Post(c.host)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode() >= 500 {
			return nil, fmt.Errorf("payflow returned HTTP %d", resp.StatusCode())
		}
		return resp.String(), nil
	})
	if err != nil {
		metrics.GatewayFailures.WithLabelValues("payflow", operation).Inc()
		return nil, breakerError("payflow", err)
	}

	fields := decodeNVP(result.(string))
	if fields["RESULT"] != "0" {
		metrics.GatewayFailures.WithLabelValues("payflow", operation).Inc()
		log.WithFields(log.Fields{
			"operation": operation,
			"result":    fields["RESULT"],
			"respmsg":   fields["RESPMSG"],
		}).Warn("Payflow transaction declined")
		return nil, &payment.GatewayError{Message: fields["RESPMSG"], Raw: fields}
	}

	return &payment.GatewayResponse{
		TransactionID: fields["PNREF"],
		Message:       fields["RESPMSG"],
		Raw:           fields,
	}, nil
}

// encodeNVP renders key=value pairs joined by ampersands. Values containing
// NVP delimiters are length-tagged per the Payflow protocol, e.g.
// COMMENT1[14]=A & B, totally.
func encodeNVP(pairs []nvp) string {
	parts := make([]string, 0, len(pairs))
	for _, p := range pairs {
		if strings.ContainsAny(p.value, "&=") {
			parts = append(parts, fmt.Sprintf("%s[%d]=%s", p.key, len(p.value), p.value))
		} else {
			parts = append(parts, p.key+"="+p.value)
		}
	}
	return strings.Join(parts, "&")
}

func decodeNVP(body string) map[string]string {
	fields := make(map[string]string)
	for _, part := range strings.Split(body, "&") {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) == 2 {
			fields[kv[0]] = kv[1]
		}
	}
	return fields
}

var _ payment.Gateway = (*PayflowClient)(nil)
