package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"ai-image-editor-backend/internal/models"
	"ai-image-editor-backend/internal/services"
)

const (
	signatureHeader = "Stripe-Signature"
	maxWebhookBytes = 1 << 16
)

type WebhookHandler struct {
	payments *services.PaymentService
}

func NewWebhookHandler(payments *services.PaymentService) *WebhookHandler {
	return &WebhookHandler{payments: payments}
}

// HandleStripeWebhook godoc
// @Summary     Stripe webhook endpoint
// @Description Verifies the Stripe-Signature header over the raw body and marks the referenced project paid. Duplicate and unknown deliveries are acknowledged.
// @Tags        webhooks
// @Accept      json
// @Produce     json
// @Param       Stripe-Signature header string true "Stripe signature"
// @Success     200 {object} models.WebhookResponse
// @Failure     400 {object} models.ErrorResponse
// @Failure     500 {object} models.ErrorResponse
// @Router      /webhooks/stripe [post]
func (h *WebhookHandler) HandleStripeWebhook(c *gin.Context) {
	const op = "webhook"

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			invalidInput(c, op, errors.New("payload too large"))
			return
		}
		invalidInput(c, op, err)
		return
	}

	if _, err := h.payments.HandleWebhook(c.Request.Context(), body, c.GetHeader(signatureHeader)); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.WebhookResponse{Received: true})
}
