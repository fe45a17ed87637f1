package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/qs3c/homework_helper/internal/model"
	"github.com/qs3c/homework_helper/internal/model/dto"
	"github.com/qs3c/homework_helper/internal/repository"
)

var ErrCannotDeleteSelf = errors.New("you cannot delete your own account here")

type AdminService struct {
	userRepo    *repository.UserRepository
	paymentRepo *repository.PaymentRepository
	chatRepo    *repository.ChatRepository
	contactRepo *repository.ContactRepository
	quota       *QuotaService
	store       ObjectStore
	logger      zerolog.Logger
}

func NewAdminService(
	userRepo *repository.UserRepository,
	paymentRepo *repository.PaymentRepository,
	chatRepo *repository.ChatRepository,
	contactRepo *repository.ContactRepository,
	quota *QuotaService,
	store ObjectStore,
	logger zerolog.Logger,
) *AdminService {
	return &AdminService{
		userRepo:    userRepo,
		paymentRepo: paymentRepo,
		chatRepo:    chatRepo,
		contactRepo: contactRepo,
		quota:       quota,
		store:       store,
		logger:      logger.With().Str("component", "admin").Logger(),
	}
}

// ListUsers 分页查询用户
func (s *AdminService) ListUsers(q *dto.AdminUserQuery, page, pageSize int) ([]*dto.UserInfo, int64, error) {
	users, total, err := s.userRepo.List(repository.UserFilter{
		Search: strings.TrimSpace(q.Search),
		Plan:   q.Plan,
		Role:   q.Role,
	}, page, pageSize)
	if err != nil {
		return nil, 0, err
	}

	items := make([]*dto.UserInfo, 0, len(users))
	for _, u := range users {
		items = append(items, toUserInfo(u, nil))
	}
	return items, total, nil
}

// GetUser 用户详情，附带当前额度
func (s *AdminService) GetUser(ctx context.Context, id int64) (*dto.UserInfo, error) {
	user, err := s.getUser(id)
	if err != nil {
		return nil, err
	}
	quota, err := s.quota.GetQuotaInfo(ctx, id)
	if err != nil {
		s.logger.Warn().Err(err).Int64("user_id", id).Msg("failed to load quota")
	}
	return toUserInfo(user, quota), nil
}

// UpdateUser 修改昵称、角色、套餐或剩余次数。手动开通的套餐不设到期时间。
func (s *AdminService) UpdateUser(ctx context.Context, id int64, req *dto.AdminUpdateUserRequest) (*dto.UserInfo, error) {
	if _, err := s.getUser(id); err != nil {
		return nil, err
	}

	fields := make(map[string]interface{})
	if req.DisplayName != nil {
		fields["display_name"] = strings.TrimSpace(*req.DisplayName)
	}
	if req.Role != nil {
		fields["role"] = *req.Role
	}
	if len(fields) > 0 {
		if err := s.userRepo.UpdateFields(id, fields); err != nil {
			return nil, err
		}
	}

	if req.Plan != nil {
		if err := s.quota.ApplyPlan(ctx, id, *req.Plan, nil); err != nil {
			return nil, err
		}
	}
	if req.QuestionsRemaining != nil {
		if err := s.userRepo.UpdateFields(id, map[string]interface{}{"questions_remaining": *req.QuestionsRemaining}); err != nil {
			return nil, err
		}
		s.quota.Forget(id)
	}

	s.logger.Info().Int64("user_id", id).Interface("changes", req).Msg("user updated by admin")
	return s.GetUser(ctx, id)
}

// DeleteUser 删除用户及其会话、支付记录和头像
func (s *AdminService) DeleteUser(ctx context.Context, adminID, id int64) error {
	if adminID == id {
		return ErrCannotDeleteSelf
	}
	user, err := s.getUser(id)
	if err != nil {
		return err
	}

	if err := s.chatRepo.DeleteByUser(id); err != nil {
		return fmt.Errorf("failed to delete conversations: %w", err)
	}
	if err := s.paymentRepo.DeleteByUser(id); err != nil {
		return fmt.Errorf("failed to delete payments: %w", err)
	}
	if err := s.userRepo.Delete(id); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	s.quota.Forget(id)

	if user.AvatarURL != "" && s.store != nil {
		if err := s.store.DeleteByURL(ctx, user.AvatarURL); err != nil {
			s.logger.Warn().Err(err).Int64("user_id", id).Msg("failed to delete avatar")
		}
	}
	s.logger.Info().Int64("admin_id", adminID).Int64("user_id", id).Msg("user deleted")
	return nil
}

// ListPayments 支付记录，可按状态筛选
func (s *AdminService) ListPayments(status string, page, pageSize int) ([]*dto.PaymentInfo, int64, error) {
	payments, total, err := s.paymentRepo.List(status, page, pageSize)
	if err != nil {
		return nil, 0, err
	}
	items := make([]*dto.PaymentInfo, 0, len(payments))
	for _, p := range payments {
		items = append(items, toPaymentInfo(p))
	}
	return items, total, nil
}

// ListContacts 联系表单
func (s *AdminService) ListContacts(page, pageSize int) ([]*model.ContactMessage, int64, error) {
	return s.contactRepo.List(page, pageSize)
}

// Stats 仪表盘统计
func (s *AdminService) Stats() (*dto.AdminStats, error) {
	byPlan, err := s.userRepo.CountByPlan()
	if err != nil {
		return nil, err
	}
	stats := &dto.AdminStats{UsersByPlan: byPlan}
	for _, n := range byPlan {
		stats.TotalUsers += n
	}

	if stats.PendingPayments, err = s.paymentRepo.CountByStatus(model.PaymentPending); err != nil {
		return nil, err
	}
	if stats.CompletedRevenue, err = s.paymentRepo.CompletedRevenue(); err != nil {
		return nil, err
	}
	if stats.ContactMessages, err = s.contactRepo.Count(); err != nil {
		return nil, err
	}
	return stats, nil
}

func (s *AdminService) getUser(id int64) (*model.User, error) {
	user, err := s.userRepo.GetByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}
