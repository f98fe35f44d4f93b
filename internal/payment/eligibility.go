package payment

import "context"

// CaptureAll marks every uncaptured deal eligible for settlement. It is the
// default eligibility when the commerce platform does not gate captures on
// per-deal fulfillment state.
type CaptureAll struct{}

func (CaptureAll) ItemsToCapture(_ context.Context, p *Payment) (map[string]int64, error) {
	items := make(map[string]int64, len(p.Data.UncapturedDeals))
	for dealID, lineItems := range p.Data.UncapturedDeals {
		var cents int64
		for _, item := range lineItems {
			cents += item.Methods[p.Method]
		}
		items[dealID] = cents
	}
	return items, nil
}

var _ CaptureEligibility = CaptureAll{}
