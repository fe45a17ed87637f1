package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/qs3c/homework_helper/internal/model/dto"
	"github.com/qs3c/homework_helper/internal/pkg/response"
	"github.com/qs3c/homework_helper/internal/service"
)

type ContactHandler struct {
	contactService *service.ContactService
	logger         zerolog.Logger
}

func NewContactHandler(contactService *service.ContactService, logger zerolog.Logger) *ContactHandler {
	return &ContactHandler{
		contactService: contactService,
		logger:         logger,
	}
}

// Submit 提交联系表单
// POST /api/v1/contact
func (h *ContactHandler) Submit(c *gin.Context) {
	var req dto.ContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	resp, err := h.contactService.Submit(c.Request.Context(), &req)
	if err != nil {
		h.logger.Error().Err(err).Msg("contact submit failed")
		response.ServerError(c, "")
		return
	}

	message := "thanks, we will get back to you soon"
	if !resp.Delivered {
		message = "your message was saved, we will get back to you soon"
	}
	response.SuccessWithMessage(c, message, resp)
}
