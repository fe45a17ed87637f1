package ai

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// 会话角色
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// 图片提问的限制
const MaxImageSize = 4 * 1024 * 1024

var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
	"image/gif":  true,
}

// Provider 生成式 AI 网关
type Provider interface {
	// Generate 单次生成完整回答
	Generate(ctx context.Context, req Request) (*Response, error)
	// Stream 流式生成，每收到一段文本调用一次 onChunk
	Stream(ctx context.Context, req Request, onChunk func(chunk string) error) (*Response, error)
	Name() string
}

type Message struct {
	Role string
	Text string
}

type Image struct {
	MIMEType string
	Data     []byte
}

type Request struct {
	SystemPrompt string
	History      []Message
	Prompt       string
	Image        *Image
}

type Response struct {
	Text         string
	Model        string
	InputTokens  int
	OutputTokens int
	Duration     time.Duration
}

var (
	ErrRateLimit     = errors.New("ai provider rate limit exceeded")
	ErrTimeout       = errors.New("ai request timed out")
	ErrUnavailable   = errors.New("ai service temporarily unavailable")
	ErrUnauthorized  = errors.New("ai provider authentication failed")
	ErrInvalidImage  = errors.New("invalid image format or content")
	ErrBlocked       = errors.New("ai response blocked by safety filters")
	ErrEmptyResponse = errors.New("ai returned an empty response")
)

// IsRetryable 是否为可重试的临时错误
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimit) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrUnavailable)
}

// ValidateImage 校验图片大小和类型
func ValidateImage(img *Image) error {
	if img == nil || len(img.Data) == 0 {
		return ErrInvalidImage
	}
	if len(img.Data) > MaxImageSize {
		return fmt.Errorf("%w: image size %d exceeds maximum %d", ErrInvalidImage, len(img.Data), MaxImageSize)
	}
	if !allowedImageTypes[img.MIMEType] {
		return fmt.Errorf("%w: unsupported content type %s", ErrInvalidImage, img.MIMEType)
	}
	return nil
}
