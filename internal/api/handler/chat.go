package handler

import (
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/qs3c/homework_helper/internal/api/middleware"
	"github.com/qs3c/homework_helper/internal/model/dto"
	"github.com/qs3c/homework_helper/internal/pkg/ai"
	"github.com/qs3c/homework_helper/internal/pkg/response"
	"github.com/qs3c/homework_helper/internal/pkg/validate"
	"github.com/qs3c/homework_helper/internal/service"
)

type ChatHandler struct {
	chatService  *service.ChatService
	quotaService *service.QuotaService
	logger       zerolog.Logger
}

func NewChatHandler(chatService *service.ChatService, quotaService *service.QuotaService, logger zerolog.Logger) *ChatHandler {
	return &ChatHandler{
		chatService:  chatService,
		quotaService: quotaService,
		logger:       logger,
	}
}

// Create 新建会话
// POST /api/v1/chats
func (h *ChatHandler) Create(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	var req dto.CreateChatRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		bindError(c, err)
		return
	}

	session, err := h.chatService.StartConversation(c.Request.Context(), userID, req.Title)
	if err != nil {
		h.logger.Error().Err(err).Int64("user_id", userID).Msg("create chat failed")
		response.ServerError(c, "")
		return
	}

	response.Success(c, session)
}

// List 会话列表
// GET /api/v1/chats
func (h *ChatHandler) List(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	page, pageSize := pagination(c)
	items, total, err := h.chatService.ListConversations(userID, page, pageSize)
	if err != nil {
		response.ServerError(c, "")
		return
	}

	response.SuccessPage(c, total, page, pageSize, items)
}

// Get 会话详情及消息
// GET /api/v1/chats/:id
func (h *ChatHandler) Get(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}
	sessionID, ok := paramID(c, "id")
	if !ok {
		return
	}

	detail, err := h.chatService.GetConversation(userID, sessionID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	response.Success(c, detail)
}

// Delete 删除会话
// DELETE /api/v1/chats/:id
func (h *ChatHandler) Delete(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}
	sessionID, ok := paramID(c, "id")
	if !ok {
		return
	}

	if err := h.chatService.DeleteConversation(userID, sessionID); err != nil {
		h.respondError(c, err)
		return
	}

	response.SuccessWithMessage(c, "chat deleted", nil)
}

// Ask 文本提问
// POST /api/v1/chats/:id/messages
func (h *ChatHandler) Ask(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}
	sessionID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req dto.AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	resp, err := h.chatService.Ask(c.Request.Context(), userID, sessionID, req.Prompt)
	if err != nil {
		h.respondError(c, err)
		return
	}

	response.Success(c, resp)
}

// AskStream 流式提问，以 SSE 推送 delta / done / error 事件
// POST /api/v1/chats/:id/messages/stream
func (h *ChatHandler) AskStream(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}
	sessionID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req dto.AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	started := false
	onChunk := func(text string) error {
		if !started {
			started = true
			c.Header("Cache-Control", "no-cache")
			c.Header("Connection", "keep-alive")
			c.Header("X-Accel-Buffering", "no")
		}
		c.SSEvent("delta", gin.H{"text": text})
		c.Writer.Flush()
		return c.Request.Context().Err()
	}

	resp, err := h.chatService.AskStream(c.Request.Context(), userID, sessionID, req.Prompt, onChunk)
	if err != nil {
		if !started {
			h.respondError(c, err)
			return
		}
		h.logger.Warn().Err(err).Int64("user_id", userID).Int64("session_id", sessionID).Msg("chat stream aborted")
		c.SSEvent("error", gin.H{"message": errorMessage(err)})
		c.Writer.Flush()
		return
	}

	c.SSEvent("done", resp)
	c.Writer.Flush()
}

// AskImage 图片提问，支持 multipart 上传或 JSON base64
// POST /api/v1/chats/:id/images
func (h *ChatHandler) AskImage(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}
	sessionID, ok := paramID(c, "id")
	if !ok {
		return
	}

	prompt, img, err := readImage(c)
	if err != nil {
		response.ParamError(c, err.Error())
		return
	}

	resp, err := h.chatService.AskWithImage(c.Request.Context(), userID, sessionID, prompt, img)
	if err != nil {
		h.respondError(c, err)
		return
	}

	response.Success(c, resp)
}

// readImage 从请求中读取图片
func readImage(c *gin.Context) (string, *ai.Image, error) {
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		file, err := c.FormFile("image")
		if err != nil {
			return "", nil, errors.New("please attach an image")
		}
		if file.Size > ai.MaxImageSize {
			return "", nil, errors.New("image must be 4MB or smaller")
		}
		f, err := file.Open()
		if err != nil {
			return "", nil, errors.New("failed to read image")
		}
		defer f.Close()

		data, err := io.ReadAll(io.LimitReader(f, ai.MaxImageSize+1))
		if err != nil {
			return "", nil, errors.New("failed to read image")
		}
		mimeType := file.Header.Get("Content-Type")
		if mimeType == "" || mimeType == "application/octet-stream" {
			mimeType = http.DetectContentType(data)
		}
		return c.PostForm("prompt"), &ai.Image{MIMEType: mimeType, Data: data}, nil
	}

	var req dto.AskImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return "", nil, errors.New(validate.Message(err))
	}
	raw := req.ImageBase64
	// 兼容 data URL
	if i := strings.Index(raw, ";base64,"); i >= 0 && strings.HasPrefix(raw, "data:") {
		raw = raw[i+len(";base64,"):]
	}
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return "", nil, errors.New("image_base64 is not valid base64")
	}
	return req.Prompt, &ai.Image{MIMEType: req.MIMEType, Data: data}, nil
}

// respondError 将服务层错误映射为响应码
func (h *ChatHandler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrChatNotFound):
		response.NotFoundError(c, err.Error())
	case errors.Is(err, service.ErrEmptyPrompt), errors.Is(err, ai.ErrInvalidImage):
		response.ParamError(c, err.Error())
	case errors.Is(err, service.ErrQuotaExhausted):
		h.quotaError(c)
	case isAIError(err):
		h.logger.Warn().Err(err).Msg("ai request failed")
		response.UpstreamError(c, errorMessage(err))
	default:
		h.logger.Error().Err(err).Msg("chat request failed")
		response.ServerError(c, "")
	}
}

func (h *ChatHandler) quotaError(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)
	var quota *dto.QuotaInfo
	if info, err := h.quotaService.GetQuotaInfo(c.Request.Context(), userID); err == nil {
		quota = info
	}
	response.QuotaError(c, service.ErrQuotaExhausted.Error(), quota)
}

func isAIError(err error) bool {
	for _, target := range []error{
		ai.ErrRateLimit, ai.ErrTimeout, ai.ErrUnavailable, ai.ErrUnauthorized,
		ai.ErrBlocked, ai.ErrEmptyResponse,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// errorMessage 面向用户的 AI 错误说明
func errorMessage(err error) string {
	switch {
	case errors.Is(err, ai.ErrRateLimit):
		return "the tutor is busy right now, please try again in a minute"
	case errors.Is(err, ai.ErrTimeout):
		return "the tutor took too long to answer, please try again"
	case errors.Is(err, ai.ErrBlocked):
		return "this question could not be answered, please rephrase it"
	case errors.Is(err, ai.ErrUnauthorized), errors.Is(err, ai.ErrUnavailable), errors.Is(err, ai.ErrEmptyResponse):
		return "the tutor is unavailable, please try again later"
	case errors.Is(err, service.ErrQuotaExhausted):
		return err.Error()
	default:
		return "something went wrong, please try again"
	}
}
