package service

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/qs3c/homework_helper/internal/model"
	"github.com/qs3c/homework_helper/internal/model/dto"
	"github.com/qs3c/homework_helper/internal/pkg/email"
	"github.com/qs3c/homework_helper/internal/pkg/metrics"
	"github.com/qs3c/homework_helper/internal/repository"
)

type ContactService struct {
	contactRepo *repository.ContactRepository
	mailer      *email.Mailer
	metrics     *metrics.Metrics
	logger      zerolog.Logger
}

func NewContactService(contactRepo *repository.ContactRepository, mailer *email.Mailer, m *metrics.Metrics, logger zerolog.Logger) *ContactService {
	return &ContactService{
		contactRepo: contactRepo,
		mailer:      mailer,
		metrics:     m,
		logger:      logger.With().Str("component", "contact").Logger(),
	}
}

// Submit 保存联系表单并通知管理员。邮件未配置时返回 fallback=alert，由前端提示用户。
func (s *ContactService) Submit(ctx context.Context, req *dto.ContactRequest) (*dto.ContactResponse, error) {
	msg := &model.ContactMessage{
		Name:    strings.TrimSpace(req.Name),
		Email:   strings.ToLower(strings.TrimSpace(req.Email)),
		Subject: strings.TrimSpace(req.Subject),
		Message: strings.TrimSpace(req.Message),
	}
	if err := s.contactRepo.Create(msg); err != nil {
		return nil, err
	}

	resp := &dto.ContactResponse{ID: msg.ID}
	data := email.ContactData{Name: msg.Name, Email: msg.Email, Subject: msg.Subject, Message: msg.Message}

	err := s.mailer.SendContactNotification(ctx, data)
	switch {
	case err == nil:
		resp.Delivered = true
		s.metrics.EmailSent("contact", "sent")
		if err := s.contactRepo.MarkNotified(msg.ID); err != nil {
			s.logger.Warn().Err(err).Int64("contact_id", msg.ID).Msg("failed to mark contact notified")
		}
	case errors.Is(err, email.ErrNotConfigured):
		resp.Fallback = dto.FallbackAlert
		s.metrics.EmailSent("contact", "skipped")
		return resp, nil
	default:
		resp.Fallback = dto.FallbackAlert
		s.metrics.EmailSent("contact", "error")
		s.logger.Error().Err(err).Int64("contact_id", msg.ID).Msg("failed to send contact notification")
		return resp, nil
	}

	if err := s.mailer.SendContactAutoReply(ctx, data); err != nil {
		s.metrics.EmailSent("contact_reply", "error")
		s.logger.Warn().Err(err).Int64("contact_id", msg.ID).Msg("failed to send contact auto-reply")
	} else {
		s.metrics.EmailSent("contact_reply", "sent")
	}
	return resp, nil
}
