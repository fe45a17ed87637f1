package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/qs3c/homework_helper/internal/api/middleware"
	"github.com/qs3c/homework_helper/internal/model/dto"
	"github.com/qs3c/homework_helper/internal/pkg/response"
	"github.com/qs3c/homework_helper/internal/service"
)

type AuthHandler struct {
	authService *service.AuthService
	appURL      string
	logger      zerolog.Logger
}

func NewAuthHandler(authService *service.AuthService, appURL string, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		appURL:      strings.TrimRight(appURL, "/"),
		logger:      logger,
	}
}

// Register 用户注册
// POST /api/v1/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req dto.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	resp, err := h.authService.Register(c.Request.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEmailExists):
			response.DuplicateError(c, err.Error())
		default:
			h.logger.Error().Err(err).Msg("register failed")
			response.ServerError(c, "")
		}
		return
	}

	response.SuccessWithMessage(c, "registration successful, please check your email", resp)
}

// Login 用户登录
// POST /api/v1/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	resp, err := h.authService.Login(c.Request.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidCredentials), errors.Is(err, service.ErrEmailNotVerified):
			response.AuthError(c, err.Error())
		default:
			h.logger.Error().Err(err).Msg("login failed")
			response.ServerError(c, "")
		}
		return
	}

	response.Success(c, resp)
}

// Refresh 刷新会话
// POST /api/v1/auth/refresh
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req dto.RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	resp, err := h.authService.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, service.ErrInvalidRefresh) {
			response.AuthError(c, err.Error())
			return
		}
		h.logger.Error().Err(err).Msg("refresh failed")
		response.ServerError(c, "")
		return
	}

	response.Success(c, resp)
}

// Logout 退出登录
// POST /api/v1/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	claims, ok := middleware.GetClaims(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	var req dto.LogoutRequest
	_ = c.ShouldBindJSON(&req)

	if err := h.authService.Logout(c.Request.Context(), claims, req.RefreshToken); err != nil {
		h.logger.Error().Err(err).Int64("user_id", claims.UserID).Msg("logout failed")
		response.ServerError(c, "")
		return
	}

	response.SuccessWithMessage(c, "signed out", nil)
}

// Session 当前登录用户
// GET /api/v1/auth/session
func (h *AuthHandler) Session(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	info, err := h.authService.Session(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			response.AuthError(c, err.Error())
			return
		}
		response.ServerError(c, "")
		return
	}

	response.Success(c, info)
}

// VerifyEmail 验证邮箱
// POST /api/v1/auth/verify-email
func (h *AuthHandler) VerifyEmail(c *gin.Context) {
	var req dto.VerifyEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	resp, err := h.authService.VerifyEmail(c.Request.Context(), req.Code)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidVerifyCode):
			response.ParamError(c, err.Error())
		default:
			response.ServerError(c, "")
		}
		return
	}

	response.SuccessWithMessage(c, "email verified", resp)
}

// ForgotPassword 申请重置密码，无论邮箱是否存在都返回成功
// POST /api/v1/auth/password/forgot
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req dto.ForgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	if err := h.authService.RequestPasswordReset(c.Request.Context(), req.Email); err != nil {
		h.logger.Error().Err(err).Msg("password reset request failed")
	}
	response.SuccessWithMessage(c, "if that email is registered, a reset link is on its way", nil)
}

// ResetPassword 重置密码
// POST /api/v1/auth/password/reset
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req dto.ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	if err := h.authService.ResetPassword(c.Request.Context(), req.Token, req.Password); err != nil {
		if errors.Is(err, service.ErrInvalidResetToken) {
			response.ParamError(c, err.Error())
			return
		}
		response.ServerError(c, "")
		return
	}

	response.SuccessWithMessage(c, "password updated, please sign in", nil)
}

// RecoverSession 从回跳片段恢复会话
// POST /api/v1/auth/session/recover
func (h *AuthHandler) RecoverSession(c *gin.Context) {
	var req dto.RecoverSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	resp, err := h.authService.RecoverSession(c.Request.Context(), req.Fragment)
	if err != nil {
		var redirectErr *service.RedirectError
		switch {
		case errors.As(err, &redirectErr):
			response.AuthError(c, redirectErr.Error())
		case errors.Is(err, service.ErrInvalidFragment):
			response.ParamError(c, err.Error())
		case errors.Is(err, service.ErrInvalidRefresh):
			response.AuthError(c, err.Error())
		default:
			h.logger.Error().Err(err).Msg("session recovery failed")
			response.ServerError(c, "")
		}
		return
	}

	response.Success(c, resp)
}

// GithubAuth 跳转到 GitHub 授权页
// GET /api/v1/auth/github
func (h *AuthHandler) GithubAuth(c *gin.Context) {
	authURL, err := h.authService.GithubAuthURL(c.Request.Context())
	if err != nil {
		if errors.Is(err, service.ErrOAuthDisabled) {
			response.Error(c, response.CodeParamError, err.Error())
			return
		}
		response.ServerError(c, "")
		return
	}
	c.Redirect(http.StatusFound, authURL)
}

// GithubCallback GitHub 回调，结果通过 URL 片段交给前端
// GET /api/v1/auth/github/callback
func (h *AuthHandler) GithubCallback(c *gin.Context) {
	target := h.appURL + "/auth/callback#"

	if code := c.Query("error"); code != "" {
		c.Redirect(http.StatusFound, target+service.ErrorFragment(code, c.Query("error_description")))
		return
	}

	session, err := h.authService.GithubCallback(c.Request.Context(), c.Query("state"), c.Query("code"))
	if err != nil {
		h.logger.Warn().Err(err).Msg("github callback failed")
		code := "server_error"
		if errors.Is(err, service.ErrInvalidOAuthState) || errors.Is(err, service.ErrOAuthDisabled) {
			code = "access_denied"
		}
		c.Redirect(http.StatusFound, target+service.ErrorFragment(code, err.Error()))
		return
	}

	c.Redirect(http.StatusFound, target+service.SessionFragment(session, ""))
}
