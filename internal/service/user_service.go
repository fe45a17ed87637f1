package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/qs3c/homework_helper/internal/model"
	"github.com/qs3c/homework_helper/internal/model/dto"
	"github.com/qs3c/homework_helper/internal/repository"
)

// MaxAvatarSize 头像大小上限
const MaxAvatarSize = 5 * 1024 * 1024

var (
	ErrStorageDisabled = errors.New("file storage is not configured")
	ErrInvalidAvatar   = errors.New("avatar must be a jpg, png or webp image up to 5 MB")
)

var avatarTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

// ObjectStore 对象存储，由 oss.Client 实现
type ObjectStore interface {
	UploadAvatar(ctx context.Context, userID int64, data []byte, contentType string) (string, error)
	UploadChatImage(ctx context.Context, userID, sessionID int64, data []byte, contentType string) (string, error)
	DeleteByURL(ctx context.Context, url string) error
}

type UserService struct {
	userRepo *repository.UserRepository
	quota    *QuotaService
	store    ObjectStore
	logger   zerolog.Logger
}

func NewUserService(userRepo *repository.UserRepository, quota *QuotaService, store ObjectStore, logger zerolog.Logger) *UserService {
	return &UserService{
		userRepo: userRepo,
		quota:    quota,
		store:    store,
		logger:   logger.With().Str("component", "user").Logger(),
	}
}

// GetProfile 获取用户详情
func (s *UserService) GetProfile(ctx context.Context, userID int64) (*dto.UserInfo, error) {
	user, err := s.getUser(userID)
	if err != nil {
		return nil, err
	}
	quota, err := s.quota.GetQuotaInfo(ctx, userID)
	if err != nil {
		return nil, err
	}
	return toUserInfo(user, quota), nil
}

// UpdateProfile 更新用户信息
func (s *UserService) UpdateProfile(ctx context.Context, userID int64, req *dto.UpdateProfileRequest) (*dto.UserInfo, error) {
	if _, err := s.getUser(userID); err != nil {
		return nil, err
	}

	fields := map[string]interface{}{}
	if req.DisplayName != nil {
		fields["display_name"] = strings.TrimSpace(*req.DisplayName)
	}
	if len(fields) > 0 {
		if err := s.userRepo.UpdateFields(userID, fields); err != nil {
			return nil, err
		}
	}
	return s.GetProfile(ctx, userID)
}

// UploadAvatar 上传头像并替换旧头像
func (s *UserService) UploadAvatar(ctx context.Context, userID int64, file io.Reader) (string, error) {
	if s.store == nil {
		return "", ErrStorageDisabled
	}

	data, err := io.ReadAll(io.LimitReader(file, MaxAvatarSize+1))
	if err != nil {
		return "", err
	}
	if len(data) == 0 || len(data) > MaxAvatarSize {
		return "", ErrInvalidAvatar
	}
	contentType := http.DetectContentType(data)
	if !avatarTypes[contentType] {
		return "", ErrInvalidAvatar
	}

	user, err := s.getUser(userID)
	if err != nil {
		return "", err
	}

	avatarURL, err := s.store.UploadAvatar(ctx, userID, data, contentType)
	if err != nil {
		return "", fmt.Errorf("failed to upload avatar: %w", err)
	}

	if err := s.userRepo.UpdateFields(userID, map[string]interface{}{"avatar_url": avatarURL}); err != nil {
		return "", err
	}

	if user.AvatarURL != "" {
		if err := s.store.DeleteByURL(ctx, user.AvatarURL); err != nil {
			s.logger.Warn().Err(err).Int64("user_id", userID).Msg("failed to delete old avatar")
		}
	}
	return avatarURL, nil
}

func (s *UserService) getUser(userID int64) (*model.User, error) {
	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

func toUserInfo(user *model.User, quota *dto.QuotaInfo) *dto.UserInfo {
	info := &dto.UserInfo{
		ID:            user.ID,
		Email:         user.Email,
		DisplayName:   user.DisplayName,
		AvatarURL:     user.AvatarURL,
		Role:          user.Role,
		Plan:          user.Plan,
		EmailVerified: user.EmailVerified,
		Quota:         quota,
	}
	if !user.CreatedAt.IsZero() {
		info.CreatedAt = user.CreatedAt.UTC().Format(time.RFC3339)
	}
	if user.PlanExpiresAt != nil {
		info.PlanExpiresAt = user.PlanExpiresAt.UTC().Format(time.RFC3339)
	}
	return info
}
