package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/dancameron/gbs-payment-gateway-paypal-payflow/internal/metrics"
	"github.com/dancameron/gbs-payment-gateway-paypal-payflow/internal/payment"
)

// AuthorizeService is the checkout-time slice of the authorizer.
type AuthorizeService interface {
	Authorize(ctx context.Context, purchase *payment.Purchase, billing payment.BillingInfo, card payment.Card, msgr payment.Messenger) (*payment.Payment, error)
}

// CaptureService is the purchase-completed slice of the capture engine.
type CaptureService interface {
	CapturePurchase(ctx context.Context, purchaseID uuid.UUID) error
}

// PaymentReader loads payment records for the read endpoint.
type PaymentReader interface {
	GetPayment(ctx context.Context, id uuid.UUID) (*payment.Payment, error)
}

// Server is the HTTP surface: the checkout charge endpoint, the
// purchase-completed trigger, and payment lookup.
type Server struct {
	authorizer AuthorizeService
	capturer   CaptureService
	payments   PaymentReader
}

func New(authorizer AuthorizeService, capturer CaptureService, payments PaymentReader) *Server {
	return &Server{
		authorizer: authorizer,
		capturer:   capturer,
		payments:   payments,
	}
}

// Router builds the gin engine with prometheus middleware attached.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(metrics.PrometheusMiddleware("payment-service"))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.POST("/checkout/charge", s.charge)
	router.POST("/purchases/:purchaseId/complete", s.purchaseCompleted)
	router.GET("/payments/:paymentId", s.getPayment)

	return router
}

// ChargeRequest is the checkout payload.
type ChargeRequest struct {
	Purchase payment.Purchase    `json:"purchase" binding:"required"`
	Billing  payment.BillingInfo `json:"billing" binding:"required"`
	Card     payment.Card        `json:"card"`
}

// ChargeResponse reports the created (or located) payment, or the
// user-facing reason the charge failed.
type ChargeResponse struct {
	PaymentID   string `json:"payment_id,omitempty"`
	Status      string `json:"status,omitempty"`
	AmountCents int64  `json:"amount_cents,omitempty"`
	Message     string `json:"message,omitempty"`
}

// messageRecorder collects the user-facing error for the active checkout
// request so it can be returned in the response body.
type messageRecorder struct {
	message string
}

func (m *messageRecorder) SetError(message string) {
	m.message = message
}

func (s *Server) charge(c *gin.Context) {
	var req ChargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ChargeResponse{Message: "Invalid request: " + err.Error()})
		return
	}

	msgr := &messageRecorder{}
	p, err := s.authorizer.Authorize(c.Request.Context(), &req.Purchase, req.Billing, req.Card, msgr)
	if err != nil {
		status := http.StatusPaymentRequired
		message := msgr.message
		switch {
		case errors.Is(err, payment.ErrPaymentNotFound):
			// Zero payable total and no prior payment to hand back.
			status = http.StatusNotFound
			message = "No payment exists for this purchase."
		case message == "":
			message = "Your payment could not be processed."
		}
		c.JSON(status, ChargeResponse{Message: message})
		return
	}

	c.JSON(http.StatusOK, ChargeResponse{
		PaymentID:   p.ID.String(),
		Status:      string(p.Status),
		AmountCents: p.AmountCents,
	})
}

func (s *Server) purchaseCompleted(c *gin.Context) {
	purchaseID, err := uuid.Parse(c.Param("purchaseId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid purchase id"})
		return
	}

	if err := s.capturer.CapturePurchase(c.Request.Context(), purchaseID); err != nil {
		// Capture failures are retried by the sweep; the trigger itself
		// succeeded unless the lookup did.
		log.WithFields(log.Fields{"purchase_id": purchaseID, "error": err}).Warn("Purchase-completed capture failed")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "capture attempt failed"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

func (s *Server) getPayment(c *gin.Context) {
	id, err := uuid.Parse(c.Param("paymentId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid payment id"})
		return
	}

	p, err := s.payments.GetPayment(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, payment.ErrPaymentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"message": "payment not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"message": "failed to load payment"})
		return
	}
	c.JSON(http.StatusOK, p)
}
