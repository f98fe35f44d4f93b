package payment

import (
	"errors"
	"fmt"
)

// Standard payment errors.
var (
	ErrAuthorizationFailed = errors.New("gateway rejected the authorization")
	ErrCaptureFailed       = errors.New("gateway rejected the capture")
	ErrProfileFailed       = errors.New("gateway could not create the customer profile")
	ErrPaymentNotFound     = errors.New("payment not found")
	ErrTokensNotSupported  = errors.New("stored payment profiles are not enabled for this processor")
)

// GatewayError is a decline or failure reported by the remote gateway. The
// Message is the gateway's human-readable reason, suitable for showing to the
// purchaser; Raw is the full response for logging.
type GatewayError struct {
	Message string
	Raw     map[string]string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway: %s", e.Message)
}

// UserMessage extracts the purchaser-facing message from err if it carries
// one, falling back to the given default.
func UserMessage(err error, fallback string) string {
	var gwErr *GatewayError
	if errors.As(err, &gwErr) && gwErr.Message != "" {
		return gwErr.Message
	}
	return fallback
}
