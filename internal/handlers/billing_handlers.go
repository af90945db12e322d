package handlers

import (
	"errors"
	"io"
	"net/http"

	"portfolio-host-service/internal/clients"
	"portfolio-host-service/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// upper bound on an accepted webhook body
const maxWebhookBody = 512 * 1024

// BillingHandlers receives billing provider webhooks
type BillingHandlers struct {
	parser       WebhookParser
	entitlements Entitlements
}

// NewBillingHandlers creates new billing handlers
func NewBillingHandlers(parser WebhookParser, entitlements Entitlements) *BillingHandlers {
	return &BillingHandlers{
		parser:       parser,
		entitlements: entitlements,
	}
}

// Webhook handles POST /api/v1/webhooks/billing
// @Summary Billing webhook
// @Description Receives signed subscription events from the billing provider
// @Tags billing
// @Accept json
// @Produce json
// @Success 200 {object} models.SuccessResponse
// @Failure 400 {object} models.ErrorResponse
// @Router /api/v1/webhooks/billing [post]
func (h *BillingHandlers) Webhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		respondBadRequest(c, "unreadable body")
		return
	}

	event, err := h.parser.ParseWebhook(payload, c.GetHeader("Stripe-Signature"))
	switch {
	case errors.Is(err, clients.ErrIgnoredEvent):
		c.JSON(http.StatusOK, models.SuccessResponse{Success: true, Message: "ignored"})
		return
	case errors.Is(err, clients.ErrInvalidSignature):
		log.Warn().Str("remote_addr", c.ClientIP()).Msg("Rejected billing webhook with invalid signature")
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error: "invalid signature",
			Code:  "INVALID_SIGNATURE",
		})
		return
	case err != nil:
		log.Warn().Err(err).Msg("Rejected malformed billing webhook")
		respondBadRequest(c, "malformed event")
		return
	}

	if err := h.entitlements.ApplyBillingEvent(c.Request.Context(), event); err != nil {
		// any error answers non-2xx so the provider redelivers
		respondError(c, err, "billing_webhook", uuid.Nil)
		return
	}

	c.JSON(http.StatusOK, models.SuccessResponse{Success: true})
}
