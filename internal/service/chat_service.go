package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/qs3c/homework_helper/config"
	"github.com/qs3c/homework_helper/internal/model"
	"github.com/qs3c/homework_helper/internal/model/dto"
	"github.com/qs3c/homework_helper/internal/pkg/ai"
	"github.com/qs3c/homework_helper/internal/pkg/formatter"
	"github.com/qs3c/homework_helper/internal/pkg/metrics"
	"github.com/qs3c/homework_helper/internal/repository"
)

const (
	defaultChatTitle   = "New chat"
	defaultImagePrompt = "Explain how to solve the homework question in this image, step by step."
	titleMaxRunes      = 60
)

var (
	ErrChatNotFound = errors.New("conversation not found")
	ErrEmptyPrompt  = errors.New("please type a question")
)

type ChatService struct {
	chatRepo *repository.ChatRepository
	quota    *QuotaService
	provider ai.Provider
	store    ObjectStore
	cfg      *config.Config
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

func NewChatService(
	chatRepo *repository.ChatRepository,
	quota *QuotaService,
	provider ai.Provider,
	store ObjectStore,
	cfg *config.Config,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *ChatService {
	return &ChatService{
		chatRepo: chatRepo,
		quota:    quota,
		provider: provider,
		store:    store,
		cfg:      cfg,
		metrics:  m,
		logger:   logger.With().Str("component", "chat").Logger(),
	}
}

// StartConversation 新建会话，写入固定的系统提示词
func (s *ChatService) StartConversation(ctx context.Context, userID int64, title string) (*dto.ChatSessionInfo, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = defaultChatTitle
	}
	session := &model.ChatSession{
		UserID:       userID,
		Title:        title,
		SystemPrompt: s.cfg.AI.SystemPrompt,
	}
	if err := s.chatRepo.CreateSession(session); err != nil {
		return nil, err
	}
	info := toSessionInfo(session)
	return &info, nil
}

// Ask 文本提问
func (s *ChatService) Ask(ctx context.Context, userID, sessionID int64, prompt string) (*dto.AskResponse, error) {
	return s.ask(ctx, userID, sessionID, prompt, nil, nil)
}

// AskStream 流式提问，onChunk 收到增量文本
func (s *ChatService) AskStream(ctx context.Context, userID, sessionID int64, prompt string, onChunk func(string) error) (*dto.AskResponse, error) {
	return s.ask(ctx, userID, sessionID, prompt, nil, onChunk)
}

// AskWithImage 图片提问，prompt 可为空
func (s *ChatService) AskWithImage(ctx context.Context, userID, sessionID int64, prompt string, img *ai.Image) (*dto.AskResponse, error) {
	if err := ai.ValidateImage(img); err != nil {
		return nil, err
	}
	if strings.TrimSpace(prompt) == "" {
		prompt = defaultImagePrompt
	}
	return s.ask(ctx, userID, sessionID, prompt, img, nil)
}

// ask 预扣一次额度后调用 AI，失败则退还
func (s *ChatService) ask(ctx context.Context, userID, sessionID int64, prompt string, img *ai.Image, onChunk func(string) error) (*dto.AskResponse, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, ErrEmptyPrompt
	}

	session, err := s.getSession(userID, sessionID)
	if err != nil {
		return nil, err
	}

	ok, err := s.quota.CanAsk(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrQuotaExhausted
	}
	if _, err := s.quota.ConsumeOne(ctx, userID); err != nil {
		return nil, err
	}

	history, err := s.chatRepo.ListMessages(session.ID)
	if err != nil {
		s.refund(ctx, userID)
		return nil, err
	}

	req := ai.Request{
		SystemPrompt: session.SystemPrompt,
		History:      toAIHistory(history),
		Prompt:       prompt,
		Image:        img,
	}
	if req.SystemPrompt == "" {
		req.SystemPrompt = s.cfg.AI.SystemPrompt
	}

	kind := "text"
	if img != nil {
		kind = "image"
	}

	start := time.Now()
	var resp *ai.Response
	if onChunk != nil {
		kind = "stream"
		resp, err = s.provider.Stream(ctx, req, onChunk)
	} else {
		resp, err = s.provider.Generate(ctx, req)
	}
	s.metrics.ObserveAI(kind, time.Since(start), err == nil)
	if err != nil {
		s.refund(ctx, userID)
		s.logger.Warn().Err(err).Int64("user_id", userID).Int64("session_id", sessionID).Str("kind", kind).Msg("ai request failed")
		return nil, fmt.Errorf("ai request failed: %w", err)
	}

	question := &model.ChatMessage{Role: model.ChatRoleUser, Content: prompt}
	if img != nil && s.store != nil {
		url, err := s.store.UploadChatImage(ctx, userID, session.ID, img.Data, img.MIMEType)
		if err != nil {
			s.logger.Warn().Err(err).Int64("user_id", userID).Msg("failed to archive homework image")
		} else {
			question.ImageURL = url
		}
	}
	answer := &model.ChatMessage{Role: model.ChatRoleModel, Content: resp.Text}

	// 回答已生成且额度已扣，保存失败只记录日志
	if err := s.chatRepo.AppendMessages(session.ID, question, answer); err != nil {
		s.logger.Error().Err(err).Int64("session_id", session.ID).Msg("failed to persist chat messages")
	}
	if session.Title == defaultChatTitle || session.Title == "" {
		if err := s.chatRepo.UpdateTitle(session.ID, titleFrom(prompt)); err != nil {
			s.logger.Warn().Err(err).Int64("session_id", session.ID).Msg("failed to set chat title")
		}
	}

	snap, _ := s.quota.Snapshot(userID)
	q := toMessageInfo(question)
	a := toMessageInfo(answer)
	return &dto.AskResponse{
		SessionID: session.ID,
		Question:  &q,
		Answer:    &a,
		Quota:     s.quota.Info(snap),
	}, nil
}

// ListConversations 会话列表
func (s *ChatService) ListConversations(userID int64, page, pageSize int) ([]dto.ChatSessionInfo, int64, error) {
	sessions, total, err := s.chatRepo.ListSessions(userID, page, pageSize)
	if err != nil {
		return nil, 0, err
	}
	items := make([]dto.ChatSessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		items = append(items, toSessionInfo(sess))
	}
	return items, total, nil
}

// GetConversation 会话详情，回答附带格式化后的内容块
func (s *ChatService) GetConversation(userID, sessionID int64) (*dto.ChatDetail, error) {
	session, err := s.getSession(userID, sessionID)
	if err != nil {
		return nil, err
	}
	msgs, err := s.chatRepo.ListMessages(session.ID)
	if err != nil {
		return nil, err
	}

	detail := &dto.ChatDetail{
		ChatSessionInfo: toSessionInfo(session),
		Messages:        make([]dto.ChatMessageInfo, 0, len(msgs)),
	}
	for _, m := range msgs {
		detail.Messages = append(detail.Messages, toMessageInfo(m))
	}
	return detail, nil
}

// DeleteConversation 删除会话
func (s *ChatService) DeleteConversation(userID, sessionID int64) error {
	err := s.chatRepo.DeleteSession(sessionID, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrChatNotFound
	}
	return err
}

func (s *ChatService) getSession(userID, sessionID int64) (*model.ChatSession, error) {
	session, err := s.chatRepo.GetSession(sessionID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrChatNotFound
		}
		return nil, err
	}
	return session, nil
}

func (s *ChatService) refund(ctx context.Context, userID int64) {
	if _, err := s.quota.RefundOne(ctx, userID); err != nil {
		s.logger.Error().Err(err).Int64("user_id", userID).Msg("failed to refund question")
	}
}

func toAIHistory(msgs []*model.ChatMessage) []ai.Message {
	history := make([]ai.Message, 0, len(msgs))
	for _, m := range msgs {
		role := ai.RoleUser
		if m.Role == model.ChatRoleModel {
			role = ai.RoleModel
		}
		history = append(history, ai.Message{Role: role, Text: m.Content})
	}
	return history
}

func toSessionInfo(s *model.ChatSession) dto.ChatSessionInfo {
	return dto.ChatSessionInfo{
		ID:        s.ID,
		Title:     s.Title,
		CreatedAt: s.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: s.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func toMessageInfo(m *model.ChatMessage) dto.ChatMessageInfo {
	info := dto.ChatMessageInfo{
		ID:        m.ID,
		Role:      m.Role,
		Content:   m.Content,
		ImageURL:  m.ImageURL,
		CreatedAt: m.CreatedAt.UTC().Format(time.RFC3339),
	}
	if m.Role == model.ChatRoleModel {
		info.Blocks = formatter.Format(m.Content)
	}
	return info
}

func titleFrom(prompt string) string {
	prompt = strings.Join(strings.Fields(prompt), " ")
	if utf8.RuneCountInString(prompt) <= titleMaxRunes {
		return prompt
	}
	runes := []rune(prompt)
	return string(runes[:titleMaxRunes]) + "…"
}
