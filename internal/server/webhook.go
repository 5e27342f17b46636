package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	billingdomain "github.com/smallbiznis/licensia/internal/billing/domain"
)

type paymentWebhookRequest struct {
	TransactionID string     `json:"transaction_id" binding:"required"`
	PayerID       string     `json:"payer_id" binding:"required"`
	AmountCents   int64      `json:"amount_cents" binding:"required"`
	Currency      string     `json:"currency"`
	OccurredAt    *time.Time `json:"occurred_at"`
	Upgrade       bool       `json:"upgrade"`
}

// HandlePaymentWebhook accepts a provider payment event. Replays of an
// already booked transaction return the original booking with 200, so
// providers can retry freely.
func (s *Server) HandlePaymentWebhook(c *gin.Context) {
	var req paymentWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	result, err := s.billingSvc.RecordPayment(c.Request.Context(), billingdomain.RecordPaymentRequest{
		PayerID:             req.PayerID,
		AmountCents:         req.AmountCents,
		Currency:            req.Currency,
		SourceTransactionID: req.TransactionID,
		OccurredAt:          req.OccurredAt,
		Upgrade:             req.Upgrade,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	c.JSON(status, result)
}
