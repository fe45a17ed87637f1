package dto

import (
	"github.com/qs3c/homework_helper/internal/pkg/formatter"
)

// CreateChatRequest 新建会话
type CreateChatRequest struct {
	Title string `json:"title" binding:"omitempty,max=200"`
}

// AskRequest 文本提问
type AskRequest struct {
	Prompt string `json:"prompt" binding:"required,max=8000"`
}

// AskImageRequest 图片提问（JSON 方式，图片为 base64）
type AskImageRequest struct {
	Prompt      string `json:"prompt" binding:"omitempty,max=8000"`
	ImageBase64 string `json:"image_base64" binding:"required"`
	MIMEType    string `json:"mime_type" binding:"required"`
}

// ChatSessionInfo 会话摘要
type ChatSessionInfo struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// ChatMessageInfo 会话消息
type ChatMessageInfo struct {
	ID        int64             `json:"id"`
	Role      string            `json:"role"`
	Content   string            `json:"content"`
	ImageURL  string            `json:"image_url,omitempty"`
	Blocks    []formatter.Block `json:"blocks,omitempty"`
	CreatedAt string            `json:"created_at"`
}

// ChatDetail 会话详情
type ChatDetail struct {
	ChatSessionInfo
	Messages []ChatMessageInfo `json:"messages"`
}

// AskResponse 提问结果
type AskResponse struct {
	SessionID int64            `json:"session_id"`
	Question  *ChatMessageInfo `json:"question"`
	Answer    *ChatMessageInfo `json:"answer"`
	Quota     *QuotaInfo       `json:"quota"`
}
