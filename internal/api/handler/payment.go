package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/qs3c/homework_helper/internal/api/middleware"
	"github.com/qs3c/homework_helper/internal/model/dto"
	"github.com/qs3c/homework_helper/internal/pkg/response"
	"github.com/qs3c/homework_helper/internal/pkg/validate"
	"github.com/qs3c/homework_helper/internal/service"
)

const paymentHistoryLimit = 50

type PaymentHandler struct {
	paymentService *service.PaymentService
	logger         zerolog.Logger
}

func NewPaymentHandler(paymentService *service.PaymentService, logger zerolog.Logger) *PaymentHandler {
	return &PaymentHandler{
		paymentService: paymentService,
		logger:         logger,
	}
}

// Create 发起支付
// POST /api/v1/payments
func (h *PaymentHandler) Create(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	var req dto.CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	info, err := h.paymentService.Initiate(c.Request.Context(), userID, &req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidPlan),
			errors.Is(err, service.ErrPhoneRequired),
			errors.Is(err, service.ErrUnsupportedMethod),
			errors.Is(err, validate.ErrInvalidPhone):
			response.ParamError(c, err.Error())
		case errors.Is(err, service.ErrUserNotFound):
			response.AuthError(c, err.Error())
		case errors.Is(err, service.ErrPaymentUnavailable):
			response.UpstreamError(c, service.ErrPaymentUnavailable.Error())
		default:
			response.PaymentError(c, "payment could not be started, please try again")
		}
		return
	}

	message := "payment started"
	if info.CheckoutURL == "" {
		message = "check your phone to approve the payment"
	}
	response.SuccessWithMessage(c, message, info)
}

// List 支付记录
// GET /api/v1/payments
func (h *PaymentHandler) List(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	items, err := h.paymentService.ListPayments(userID, paymentHistoryLimit)
	if err != nil {
		response.ServerError(c, "")
		return
	}

	response.Success(c, items)
}

// Status 支付结果
// GET /api/v1/payments/:reference
func (h *PaymentHandler) Status(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	result, err := h.paymentService.Status(c.Request.Context(), userID, c.Param("reference"))
	if err != nil {
		if errors.Is(err, service.ErrPaymentNotFound) {
			response.NotFoundError(c, err.Error())
			return
		}
		h.logger.Error().Err(err).Str("reference", c.Param("reference")).Msg("payment status failed")
		response.ServerError(c, "")
		return
	}

	response.Success(c, result)
}
