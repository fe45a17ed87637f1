package email

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/qs3c/homework_helper/config"
)

// ErrNotConfigured 未配置邮件服务，调用方应提示前端改用站内提醒
var ErrNotConfigured = errors.New("email delivery is not configured")

// Message 一封待发送的邮件
type Message struct {
	To      string
	ToName  string
	ReplyTo string
	Subject string
	HTML    string
	Text    string
}

// Sender 邮件发送通道
type Sender interface {
	Send(ctx context.Context, msg Message) error
	Name() string
}

// NewSender 根据配置选择发送通道
func NewSender(cfg config.EmailConfig, logger zerolog.Logger) Sender {
	switch strings.ToLower(cfg.Provider) {
	case "smtp":
		if cfg.SMTPHost != "" {
			return NewSMTPSender(cfg)
		}
	case "sendgrid":
		if cfg.SendgridAPIKey != "" {
			return NewSendGridSender(cfg)
		}
	}
	logger.Warn().Str("provider", cfg.Provider).Msg("email not configured, messages will not be delivered")
	return NoopSender{}
}

// NoopSender 未配置时使用
type NoopSender struct{}

func (NoopSender) Send(context.Context, Message) error { return ErrNotConfigured }

func (NoopSender) Name() string { return "noop" }
