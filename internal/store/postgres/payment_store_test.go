package postgres

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dancameron/gbs-payment-gateway-paypal-payflow/internal/payment"
)

// fakeRow replays column values the way database/sql would hand them to
// Scan, exercising the jsonb round-trip without a live database.
type fakeRow struct {
	values []interface{}
}

func (f *fakeRow) Scan(dest ...interface{}) error {
	for i, d := range dest {
		switch v := d.(type) {
		case *uuid.UUID:
			*v = f.values[i].(uuid.UUID)
		case *string:
			*v = f.values[i].(string)
		case *int64:
			*v = f.values[i].(int64)
		case *payment.Status:
			*v = f.values[i].(payment.Status)
		case *[]byte:
			*v = f.values[i].([]byte)
		case *time.Time:
			*v = f.values[i].(time.Time)
		}
	}
	return nil
}

func TestScanPaymentRoundTrip(t *testing.T) {
	dealA := uuid.New()
	dealB := uuid.New()
	in := &payment.Payment{
		ID:          uuid.New(),
		PurchaseID:  uuid.New(),
		Method:      payment.MethodPayflow,
		AmountCents: 2500,
		Status:      payment.StatusPartial,
		Data: payment.PaymentData{
			GatewayRef: "V19A2B3C4D5E",
			UncapturedDeals: map[string][]payment.LineItem{
				dealB.String(): {{DealID: dealB, AmountCents: 1500, Methods: map[string]int64{payment.MethodPayflow: 1500}}},
			},
			CaptureResponses: []payment.CaptureRecord{{
				AmountCents: 1000,
				DealIDs:     []string{dealA.String()},
				Response:    map[string]string{"RESULT": "0", "PNREF": "V19F6G7H8I9J"},
				CapturedAt:  time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
			}},
		},
		Shipping:  &payment.Address{FirstName: "Dan", City: "Sacramento", Country: "US"},
		CreatedAt: time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC),
		UpdatedAt: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
	}

	data, err := json.Marshal(in.Data)
	require.NoError(t, err)
	shipping, err := marshalShipping(in.Shipping)
	require.NoError(t, err)

	out, err := scanPayment(&fakeRow{values: []interface{}{
		in.ID, in.PurchaseID, in.Method, in.AmountCents, in.Status, data, shipping, in.CreatedAt, in.UpdatedAt,
	}})
	require.NoError(t, err)
	assert.Equal(t, in, out)

	// The reconstructed record still balances.
	assert.Equal(t, out.AmountCents, out.CapturedCents()+out.UncapturedCents())
}

func TestScanPaymentNoShipping(t *testing.T) {
	in := &payment.Payment{
		ID:         uuid.New(),
		PurchaseID: uuid.New(),
		Method:     payment.MethodPayflow,
		Status:     payment.StatusAuthorized,
		Data:       payment.PaymentData{GatewayRef: "REF"},
	}
	data, err := json.Marshal(in.Data)
	require.NoError(t, err)

	out, err := scanPayment(&fakeRow{values: []interface{}{
		in.ID, in.PurchaseID, in.Method, in.AmountCents, in.Status, data, []byte(nil), in.CreatedAt, in.UpdatedAt,
	}})
	require.NoError(t, err)
	assert.Nil(t, out.Shipping)
}

func TestMarshalShippingNil(t *testing.T) {
	b, err := marshalShipping(nil)
	require.NoError(t, err)
	assert.Nil(t, b)
}
