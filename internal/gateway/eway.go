package gateway

import (
	"context"
	"encoding/xml"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	log "github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/dancameron/gbs-payment-gateway-paypal-payflow/internal/metrics"
	"github.com/dancameron/gbs-payment-gateway-paypal-payflow/internal/payment"
)

const (
	ewayLiveEndpoint = "https://www.eway.com.au/gateway/ManagedPaymentService/managedCreditCardPayment.asmx"
	ewayTestEndpoint = "https://www.eway.com.au/gateway/ManagedPaymentService/test/managedCreditCardPayment.asmx"

	ewayNamespace = "https://www.eway.com.au/gateway/managedpayment"
)

// EwayConfig carries the merchant's eWAY managed-payment credentials.
type EwayConfig struct {
	CustomerID string
	Username   string
	Password   string
	Mode       string // "sandbox" or "live"
}

// EwayClient is the stored-card variant: cards are saved as managed customer
// profiles on the gateway and every charge, including delayed captures,
// rebills the profile. The gateway reference held on a payment is the managed
// customer id.
type EwayClient struct {
	cfg      EwayConfig
	endpoint string
	rest     *resty.Client
	breaker  *gobreaker.CircuitBreaker
}

func NewEwayClient(cfg EwayConfig) *EwayClient {
	endpoint := ewayTestEndpoint
	if cfg.Mode == "live" {
		endpoint = ewayLiveEndpoint
	}
	return &EwayClient{
		cfg:      cfg,
		endpoint: endpoint,
		rest: resty.New().
			SetTimeout(30 * time.Second).
			SetRetryCount(0),
		breaker: newBreaker("eway"),
	}
}

// CreateOrUpdateProfile stores the card as a managed customer profile and
// returns the profile id used for every later charge.
func (c *EwayClient) CreateOrUpdateProfile(ctx context.Context, req payment.ProfileRequest) (string, error) {
	env := c.envelope()
	env.Body.CreateCustomer = &ewayCreateCustomer{
		XMLNS:         ewayNamespace,
		FirstName:     req.Billing.FirstName,
		LastName:      req.Billing.LastName,
		Address:       req.Billing.Street,
		Suburb:        req.Billing.City,
		State:         req.Billing.Zone,
		PostCode:      req.Billing.PostalCode,
		Country:       payment.CountryCode(req.Billing.Country),
		Email:         req.Email,
		CCNameOnCard:  req.Billing.FirstName + " " + req.Billing.LastName,
		CCNumber:      req.Card.Number,
		CCExpiryMonth: fmt.Sprintf("%02d", req.Card.ExpMonth),
		CCExpiryYear:  fmt.Sprintf("%02d", req.Card.ExpYear%100),
	}

	body, err := c.call(ctx, "create_profile", env)
	if err != nil {
		return "", err
	}

	var resp ewayCreateCustomerResponse
	if err := xml.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode eway response: %w", err)
	}
	if resp.ManagedCustomerID == "" {
		return "", &payment.GatewayError{Message: "eWAY did not return a customer profile id"}
	}
	return resp.ManagedCustomerID, nil
}

// ChargeProfile charges a stored profile. Used both for the initial
// authorization of a token payment and for each deal's capture.
func (c *EwayClient) ChargeProfile(ctx context.Context, profileID string, amountCents int64, reference string) (*payment.GatewayResponse, error) {
	env := c.envelope()
	env.Body.ProcessPayment = &ewayProcessPayment{
		XMLNS:             ewayNamespace,
		ManagedCustomerID: profileID,
		Amount:            amountCents, // eWAY amounts are in cents
		InvoiceReference:  reference,
	}

	body, err := c.call(ctx, "charge_profile", env)
	if err != nil {
		return nil, err
	}

	var resp ewayProcessPaymentResponse
	if err := xml.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode eway response: %w", err)
	}
	result := resp.Result
	raw := map[string]string{
		"ewayTrxnStatus":   result.TrxnStatus,
		"ewayTrxnNumber":   result.TrxnNumber,
		"ewayTrxnError":    result.TrxnError,
		"ewayAuthCode":     result.AuthCode,
		"ewayReturnAmount": strconv.FormatInt(result.ReturnAmount, 10),
	}
	if result.TrxnStatus != "True" {
		log.WithFields(log.Fields{
			"profile_id": profileID,
			"error":      result.TrxnError,
		}).Warn("eWAY transaction declined")
		return nil, &payment.GatewayError{Message: result.TrxnError, Raw: raw}
	}
	return &payment.GatewayResponse{
		TransactionID: result.TrxnNumber,
		Message:       result.TrxnError,
		Raw:           raw,
	}, nil
}

// Authorize satisfies payment.Gateway for token checkouts: the profile id
// arrives as the request's ProfileID and is charged directly.
func (c *EwayClient) Authorize(ctx context.Context, req payment.AuthorizationRequest) (*payment.GatewayResponse, error) {
	if req.ProfileID == "" {
		return nil, payment.ErrTokensNotSupported
	}
	return c.ChargeProfile(ctx, req.ProfileID, req.AmountCents, req.Comment)
}

// Capture rebills the stored profile for the eligible amount. The gateway
// reference on an eWAY payment is the managed customer id.
func (c *EwayClient) Capture(ctx context.Context, req payment.CaptureRequest) (*payment.GatewayResponse, error) {
	return c.ChargeProfile(ctx, req.GatewayRef, req.AmountCents, string(req.Completion))
}

func (c *EwayClient) envelope() *ewayEnvelope {
	return &ewayEnvelope{
		XMLNSSoap: "http://www.w3.org/2003/05/soap-envelope",
		Header: ewayHeaderWrap{
			Header: ewayHeader{
				XMLNS:      ewayNamespace,
				CustomerID: c.cfg.CustomerID,
				Username:   c.cfg.Username,
				Password:   c.cfg.Password,
			},
		},
	}
}

func (c *EwayClient) call(ctx context.Context, operation string, env *ewayEnvelope) ([]byte, error) {
	payload, err := xml.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode eway request: %w", err)
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		resp, err := c.rest.R().
			SetContext(ctx).
			SetHeader("Content-Type", "application/soap+xml; charset=utf-8").
			SetBody(append([]byte(xml.Header), payload...)).
			Post(c.endpoint)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode() >= 500 {
			return nil, fmt.Errorf("eway returned HTTP %d", resp.StatusCode())
		}
		return resp.Body(), nil
	})
	if err != nil {
		metrics.GatewayFailures.WithLabelValues("eway", operation).Inc()
		return nil, breakerError("eway", err)
	}
	return result.([]byte), nil
}

// Wire types for the managed payment SOAP service. One typed struct per
// operation; nothing is assembled dynamically.

type ewayEnvelope struct {
	XMLName   xml.Name       `xml:"soap12:Envelope"`
	XMLNSSoap string         `xml:"xmlns:soap12,attr"`
	Header    ewayHeaderWrap `xml:"soap12:Header"`
	Body      ewayBodyWrap   `xml:"soap12:Body"`
}

type ewayHeaderWrap struct {
	Header ewayHeader `xml:"eWAYHeader"`
}

type ewayHeader struct {
	XMLNS      string `xml:"xmlns,attr"`
	CustomerID string `xml:"eWAYCustomerID"`
	Username   string `xml:"Username"`
	Password   string `xml:"Password"`
}

type ewayBodyWrap struct {
	CreateCustomer *ewayCreateCustomer `xml:",omitempty"`
	ProcessPayment *ewayProcessPayment `xml:",omitempty"`
}

type ewayCreateCustomer struct {
	XMLName       xml.Name `xml:"CreateCustomer"`
	XMLNS         string   `xml:"xmlns,attr"`
	FirstName     string   `xml:"FirstName"`
	LastName      string   `xml:"LastName"`
	Address       string   `xml:"Address"`
	Suburb        string   `xml:"Suburb"`
	State         string   `xml:"State"`
	PostCode      string   `xml:"PostCode"`
	Country       string   `xml:"Country"`
	Email         string   `xml:"Email"`
	CCNameOnCard  string   `xml:"CCNameOnCard"`
	CCNumber      string   `xml:"CCNumber"`
	CCExpiryMonth string   `xml:"CCExpiryMonth"`
	CCExpiryYear  string   `xml:"CCExpiryYear"`
}

type ewayProcessPayment struct {
	XMLName           xml.Name `xml:"ProcessPayment"`
	XMLNS             string   `xml:"xmlns,attr"`
	ManagedCustomerID string   `xml:"managedCustomerID"`
	Amount            int64    `xml:"amount"`
	InvoiceReference  string   `xml:"invoiceReference"`
}

type ewayCreateCustomerResponse struct {
	XMLName           xml.Name `xml:"Envelope"`
	ManagedCustomerID string   `xml:"Body>CreateCustomerResponse>CreateCustomerResult"`
}

type ewayProcessPaymentResponse struct {
	XMLName xml.Name       `xml:"Envelope"`
	Result  ewayTrxnResult `xml:"Body>ProcessPaymentResponse>ewayResponse"`
}

type ewayTrxnResult struct {
	TrxnStatus   string `xml:"ewayTrxnStatus"`
	TrxnNumber   string `xml:"ewayTrxnNumber"`
	TrxnError    string `xml:"ewayTrxnError"`
	AuthCode     string `xml:"ewayAuthCode"`
	ReturnAmount int64  `xml:"ewayReturnAmount"`
}

var (
	_ payment.Gateway        = (*EwayClient)(nil)
	_ payment.ProfileGateway = (*EwayClient)(nil)
)
