package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/qs3c/homework_helper/internal/model/dto"
	"github.com/qs3c/homework_helper/internal/pkg/payment"
	"github.com/qs3c/homework_helper/internal/pkg/payment/stripecheckout"
	"github.com/qs3c/homework_helper/internal/service"
)

// 网关回调体上限
const maxWebhookBody = 64 * 1024

// WebhookHandler 支付网关回调。网关只看 HTTP 状态码，不使用统一响应结构。
type WebhookHandler struct {
	paymentService *service.PaymentService
	logger         zerolog.Logger
}

func NewWebhookHandler(paymentService *service.PaymentService, logger zerolog.Logger) *WebhookHandler {
	return &WebhookHandler{
		paymentService: paymentService,
		logger:         logger,
	}
}

// IntaSend 移动支付回调
// POST /webhooks/intasend
func (h *WebhookHandler) IntaSend(c *gin.Context) {
	var ev dto.IntaSendWebhook
	if err := c.ShouldBindJSON(&ev); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	if err := h.paymentService.HandleIntaSendWebhook(c.Request.Context(), &ev); err != nil {
		if errors.Is(err, service.ErrInvalidChallenge) {
			h.logger.Warn().Str("invoice_id", ev.InvoiceID).Msg("intasend webhook challenge mismatch")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid challenge"})
			return
		}
		h.logger.Error().Err(err).Str("invoice_id", ev.InvoiceID).Msg("intasend webhook failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "processing failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}

// Stripe 银行卡支付回调
// POST /webhooks/stripe
func (h *WebhookHandler) Stripe(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	err = h.paymentService.HandleStripeEvent(c.Request.Context(), payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		switch {
		case errors.Is(err, stripecheckout.ErrInvalidSignature):
			h.logger.Warn().Err(err).Msg("stripe webhook signature rejected")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		case errors.Is(err, payment.ErrNotConfigured):
			c.JSON(http.StatusNotFound, gin.H{"error": "stripe is not configured"})
		default:
			h.logger.Error().Err(err).Msg("stripe webhook failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "processing failed"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
