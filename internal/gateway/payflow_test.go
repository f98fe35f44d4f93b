package gateway

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dancameron/gbs-payment-gateway-paypal-payflow/internal/payment"
)

func testPayflowClient(t *testing.T, handler http.HandlerFunc) *PayflowClient {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewPayflowClient(PayflowConfig{
		Vendor:   "acmevendor",
		Partner:  "PayPal",
		User:     "acmeuser",
		Password: "secret",
		Mode:     "sandbox",
	})
	c.host = srv.URL
	return c
}

func TestPayflowHostSelection(t *testing.T) {
	assert.Equal(t, payflowPilotHost, NewPayflowClient(PayflowConfig{Mode: "sandbox"}).host)
	assert.Equal(t, payflowLiveHost, NewPayflowClient(PayflowConfig{Mode: "live"}).host)
}

func TestPayflowAuthorize(t *testing.T) {
	var gotBody string
	c := testPayflowClient(t, func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		io.WriteString(w, "RESULT=0&PNREF=V19A2B3C4D5E&RESPMSG=Approved&AUTHCODE=010101")
	})

	resp, err := c.Authorize(context.Background(), payment.AuthorizationRequest{
		AmountCents: 2500,
		Currency:    "USD",
		Card:        payment.Card{Number: "4111111111111111", CVV: "123", ExpMonth: 1, ExpYear: 2027},
		Billing:     payment.Address{FirstName: "Dan", LastName: "Cameron", Street: "1 Main St", City: "Sacramento", Zone: "CA", PostalCode: "95814"},
		Email:       "dan@example.com",
		Comment:     "Purchase ID: abc123",
	})
	require.NoError(t, err)

	assert.Equal(t, "V19A2B3C4D5E", resp.TransactionID)
	assert.Equal(t, "Approved", resp.Message)
	assert.Equal(t, "010101", resp.Raw["AUTHCODE"])

	fields := decodeNVP(gotBody)
	assert.Equal(t, "A", fields["TRXTYPE"])
	assert.Equal(t, "C", fields["TENDER"])
	assert.Equal(t, "acmeuser", fields["USER"])
	assert.Equal(t, "acmevendor", fields["VENDOR"])
	assert.Equal(t, "PayPal", fields["PARTNER"])
	assert.Equal(t, "secret", fields["PWD"])
	assert.Equal(t, "25.00", fields["AMT"])
	assert.Equal(t, "4111111111111111", fields["ACCT"])
	assert.Equal(t, "012027", fields["EXPDATE"])
	assert.Equal(t, "US", fields["BILLTOCOUNTRY"], "country defaults to US")
	assert.Equal(t, "Purchase ID: abc123", fields["COMMENT1"])
}

func TestPayflowAuthorizeDeclined(t *testing.T) {
	c := testPayflowClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "RESULT=12&PNREF=V19XXXXXXXXX&RESPMSG=Declined")
	})

	_, err := c.Authorize(context.Background(), payment.AuthorizationRequest{AmountCents: 2500, Currency: "USD"})
	require.Error(t, err)

	var gwErr *payment.GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, "Declined", gwErr.Message)
	assert.Equal(t, "12", gwErr.Raw["RESULT"])
}

func TestPayflowCapture(t *testing.T) {
	var gotBody string
	c := testPayflowClient(t, func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		io.WriteString(w, "RESULT=0&PNREF=V19F6G7H8I9J&RESPMSG=Approved")
	})

	resp, err := c.Capture(context.Background(), payment.CaptureRequest{
		GatewayRef:  "V19A2B3C4D5E",
		AmountCents: 1000,
		Currency:    "USD",
		Completion:  payment.CaptureNotComplete,
	})
	require.NoError(t, err)
	assert.Equal(t, "V19F6G7H8I9J", resp.TransactionID)

	fields := decodeNVP(gotBody)
	assert.Equal(t, "D", fields["TRXTYPE"])
	assert.Equal(t, "V19A2B3C4D5E", fields["ORIGID"])
	assert.Equal(t, "10.00", fields["AMT"])
	assert.Equal(t, "N", fields["CAPTURECOMPLETE"])
}

func TestPayflowCaptureComplete(t *testing.T) {
	var gotBody string
	c := testPayflowClient(t, func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		io.WriteString(w, "RESULT=0&PNREF=V19K1L2M3N4O&RESPMSG=Approved")
	})

	_, err := c.Capture(context.Background(), payment.CaptureRequest{
		GatewayRef:  "V19A2B3C4D5E",
		AmountCents: 1500,
		Currency:    "USD",
		Completion:  payment.CaptureComplete,
	})
	require.NoError(t, err)
	assert.Equal(t, "Y", decodeNVP(gotBody)["CAPTURECOMPLETE"])
}

func TestPayflowServerError(t *testing.T) {
	c := testPayflowClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := c.Authorize(context.Background(), payment.AuthorizationRequest{AmountCents: 2500})
	assert.ErrorContains(t, err, "502")
}

func TestEncodeNVPLengthTagging(t *testing.T) {
	body := encodeNVP([]nvp{
		{"TRXTYPE", "A"},
		{"COMMENT1", "Deal A & Deal B"},
	})
	assert.Equal(t, "TRXTYPE=A&COMMENT1[15]=Deal A & Deal B", body)
}

func TestDecodeNVP(t *testing.T) {
	fields := decodeNVP("RESULT=0&PNREF=ABC&RESPMSG=Approved")
	assert.Equal(t, map[string]string{"RESULT": "0", "PNREF": "ABC", "RESPMSG": "Approved"}, fields)
}
