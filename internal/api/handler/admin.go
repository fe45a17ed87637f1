package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/qs3c/homework_helper/internal/api/middleware"
	"github.com/qs3c/homework_helper/internal/model/dto"
	"github.com/qs3c/homework_helper/internal/pkg/response"
	"github.com/qs3c/homework_helper/internal/service"
)

type AdminHandler struct {
	adminService *service.AdminService
	logger       zerolog.Logger
}

func NewAdminHandler(adminService *service.AdminService, logger zerolog.Logger) *AdminHandler {
	return &AdminHandler{
		adminService: adminService,
		logger:       logger,
	}
}

// ListUsers 用户列表
// GET /api/v1/admin/users
func (h *AdminHandler) ListUsers(c *gin.Context) {
	var q dto.AdminUserQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		bindError(c, err)
		return
	}
	page, pageSize := pagination(c)

	items, total, err := h.adminService.ListUsers(&q, page, pageSize)
	if err != nil {
		response.ServerError(c, "")
		return
	}

	response.SuccessPage(c, total, page, pageSize, items)
}

// GetUser 用户详情
// GET /api/v1/admin/users/:id
func (h *AdminHandler) GetUser(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	user, err := h.adminService.GetUser(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	response.Success(c, user)
}

// UpdateUser 修改用户
// PUT /api/v1/admin/users/:id
func (h *AdminHandler) UpdateUser(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req dto.AdminUpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	user, err := h.adminService.UpdateUser(c.Request.Context(), id, &req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	response.SuccessWithMessage(c, "user updated", user)
}

// DeleteUser 删除用户
// DELETE /api/v1/admin/users/:id
func (h *AdminHandler) DeleteUser(c *gin.Context) {
	adminID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	if err := h.adminService.DeleteUser(c.Request.Context(), adminID, id); err != nil {
		h.respondError(c, err)
		return
	}

	response.SuccessWithMessage(c, "user deleted", nil)
}

// ListPayments 支付记录
// GET /api/v1/admin/payments
func (h *AdminHandler) ListPayments(c *gin.Context) {
	var q dto.AdminPaymentQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		bindError(c, err)
		return
	}
	page, pageSize := pagination(c)

	items, total, err := h.adminService.ListPayments(q.Status, page, pageSize)
	if err != nil {
		response.ServerError(c, "")
		return
	}

	response.SuccessPage(c, total, page, pageSize, items)
}

// ListContacts 联系表单
// GET /api/v1/admin/contacts
func (h *AdminHandler) ListContacts(c *gin.Context) {
	page, pageSize := pagination(c)

	items, total, err := h.adminService.ListContacts(page, pageSize)
	if err != nil {
		response.ServerError(c, "")
		return
	}

	response.SuccessPage(c, total, page, pageSize, items)
}

// Stats 仪表盘统计
// GET /api/v1/admin/stats
func (h *AdminHandler) Stats(c *gin.Context) {
	stats, err := h.adminService.Stats()
	if err != nil {
		response.ServerError(c, "")
		return
	}

	response.Success(c, stats)
}

func (h *AdminHandler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrUserNotFound):
		response.NotFoundError(c, err.Error())
	case errors.Is(err, service.ErrCannotDeleteSelf), errors.Is(err, service.ErrInvalidPlan):
		response.ParamError(c, err.Error())
	default:
		h.logger.Error().Err(err).Msg("admin request failed")
		response.ServerError(c, "")
	}
}
