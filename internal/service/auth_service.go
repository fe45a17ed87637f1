package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/qs3c/homework_helper/config"
	"github.com/qs3c/homework_helper/internal/model"
	"github.com/qs3c/homework_helper/internal/model/dto"
	"github.com/qs3c/homework_helper/internal/pkg/email"
	"github.com/qs3c/homework_helper/internal/pkg/jwt"
	"github.com/qs3c/homework_helper/internal/pkg/oauth"
	"github.com/qs3c/homework_helper/internal/pkg/tokenstore"
	"github.com/qs3c/homework_helper/internal/repository"
)

var (
	ErrEmailExists        = errors.New("this email is already registered")
	ErrInvalidCredentials = errors.New("incorrect email or password")
	ErrEmailNotVerified   = errors.New("please verify your email before signing in")
	ErrInvalidVerifyCode  = errors.New("verification code is invalid or has expired")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidRefresh     = errors.New("session has expired, please sign in again")
	ErrInvalidResetToken  = errors.New("reset link is invalid or has expired")
	ErrOAuthDisabled      = errors.New("github sign-in is not configured")
	ErrInvalidOAuthState  = errors.New("sign-in request expired, please try again")
	ErrInvalidFragment    = errors.New("redirect did not contain a session")
	ErrRedirectError      = errors.New("identity provider returned an error")
)

const (
	passwordResetTTL = 30 * time.Minute
	oauthStateTTL    = 10 * time.Minute
	verificationTTL  = 24 * time.Hour
)

// 回跳片段中的 type 取值
const (
	FragmentRecovery = "recovery"
	FragmentSignup   = "signup"
)

// RedirectError 回跳地址携带的错误
type RedirectError struct {
	Code        string
	Description string
}

func (e *RedirectError) Error() string {
	if e.Description != "" {
		return e.Description
	}
	return e.Code
}

func (e *RedirectError) Unwrap() error { return ErrRedirectError }

type AuthService struct {
	userRepo *repository.UserRepository
	quota    *QuotaService
	tokens   *tokenstore.Store
	mailer   *email.Mailer
	github   *oauth.GitHub
	cfg      *config.Config
	logger   zerolog.Logger
}

func NewAuthService(
	userRepo *repository.UserRepository,
	quota *QuotaService,
	tokens *tokenstore.Store,
	mailer *email.Mailer,
	github *oauth.GitHub,
	cfg *config.Config,
	logger zerolog.Logger,
) *AuthService {
	return &AuthService{
		userRepo: userRepo,
		quota:    quota,
		tokens:   tokens,
		mailer:   mailer,
		github:   github,
		cfg:      cfg,
		logger:   logger.With().Str("component", "auth").Logger(),
	}
}

// Register 用户注册，赠送免费额度并发送验证邮件
func (s *AuthService) Register(ctx context.Context, req *dto.RegisterRequest) (*dto.RegisterResponse, error) {
	emailAddr := normalizeEmail(req.Email)

	exists, err := s.userRepo.ExistsByEmail(emailAddr)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrEmailExists
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	code, err := generateRandomCode(32)
	if err != nil {
		return nil, err
	}

	hash := string(hashed)
	now := time.Now().UTC()
	expiresAt := now.Add(verificationTTL)
	user := &model.User{
		Email:                 emailAddr,
		PasswordHash:          &hash,
		DisplayName:           strings.TrimSpace(req.DisplayName),
		Role:                  model.RoleStudent,
		Plan:                  model.PlanFree,
		QuestionsRemaining:    s.quota.ResolveCeiling(model.PlanFree),
		LastFreeReset:         &now,
		VerificationCode:      &code,
		VerificationExpiresAt: &expiresAt,
	}

	if err := s.userRepo.Create(user); err != nil {
		return nil, err
	}

	err = s.mailer.SendVerification(ctx, user.Email, user.DisplayName, code)
	switch {
	case errors.Is(err, email.ErrNotConfigured):
		// 无法发信时直接视为已验证，否则用户永远无法登录
		s.logger.Warn().Int64("user_id", user.ID).Msg("email not configured, auto-verifying account")
		if err := s.markVerified(user); err != nil {
			return nil, err
		}
	case err != nil:
		s.logger.Error().Err(err).Int64("user_id", user.ID).Msg("failed to send verification email")
	}

	return &dto.RegisterResponse{UserID: user.ID}, nil
}

// Login 用户登录
func (s *AuthService) Login(ctx context.Context, req *dto.LoginRequest) (*dto.LoginResponse, error) {
	user, err := s.userRepo.GetByEmail(normalizeEmail(req.Email))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if user.PasswordHash == nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	// 检查邮箱是否验证（生产环境强制要求，开发环境跳过）
	if !user.EmailVerified && s.cfg.Server.Mode != "debug" {
		return nil, ErrEmailNotVerified
	}

	return s.newSession(ctx, user, false)
}

// Logout 吊销访问令牌，可选同时吊销刷新令牌
func (s *AuthService) Logout(ctx context.Context, claims *jwt.Claims, refreshToken string) error {
	if err := s.tokens.Revoke(ctx, claims.ID, claims.Remaining()); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	if refreshToken == "" {
		return nil
	}
	rc, err := jwt.ParseToken(refreshToken, s.cfg.JWT.Secret)
	if err != nil || !rc.IsRefresh() || rc.UserID != claims.UserID {
		return nil
	}
	return s.tokens.Revoke(ctx, rc.ID, rc.Remaining())
}

// Session 当前用户与配额快照
func (s *AuthService) Session(ctx context.Context, userID int64) (*dto.UserInfo, error) {
	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	quota, err := s.quota.GetQuotaInfo(ctx, userID)
	if err != nil {
		return nil, err
	}
	return toUserInfo(user, quota), nil
}

// Refresh 用刷新令牌换取新的令牌对，旧刷新令牌立即作废
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*dto.LoginResponse, error) {
	claims, err := jwt.ParseToken(refreshToken, s.cfg.JWT.Secret)
	if err != nil || !claims.IsRefresh() {
		return nil, ErrInvalidRefresh
	}

	revoked, err := s.tokens.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, ErrInvalidRefresh
	}

	user, err := s.userRepo.GetByID(claims.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidRefresh
		}
		return nil, err
	}

	if err := s.tokens.Revoke(ctx, claims.ID, claims.Remaining()); err != nil {
		return nil, fmt.Errorf("failed to rotate refresh token: %w", err)
	}
	return s.newSession(ctx, user, false)
}

// RequestPasswordReset 发送重置密码邮件，邮箱不存在时也返回成功
func (s *AuthService) RequestPasswordReset(ctx context.Context, emailAddr string) error {
	user, err := s.userRepo.GetByEmail(normalizeEmail(emailAddr))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}

	token, err := s.tokens.Issue(ctx, tokenstore.PurposePasswordReset, strconv.FormatInt(user.ID, 10), passwordResetTTL)
	if err != nil {
		return fmt.Errorf("failed to issue reset token: %w", err)
	}

	if err := s.mailer.SendPasswordReset(ctx, user.Email, token); err != nil {
		s.logger.Error().Err(err).Int64("user_id", user.ID).Msg("failed to send password reset email")
	}
	return nil
}

// ResetPassword 使用一次性令牌设置新密码
func (s *AuthService) ResetPassword(ctx context.Context, token, password string) error {
	value, err := s.tokens.Consume(ctx, tokenstore.PurposePasswordReset, token)
	if err != nil {
		if errors.Is(err, tokenstore.ErrTokenNotFound) {
			return ErrInvalidResetToken
		}
		return err
	}

	userID, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return ErrInvalidResetToken
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	// 能收到重置邮件说明邮箱有效
	return s.userRepo.UpdateFields(userID, map[string]interface{}{
		"password_hash":  string(hashed),
		"email_verified": true,
	})
}

// RecoverSession 解析身份回跳地址中的片段（#access_token=...&refresh_token=...&type=...）并恢复会话
func (s *AuthService) RecoverSession(ctx context.Context, fragment string) (*dto.LoginResponse, error) {
	params, err := parseFragment(fragment)
	if err != nil {
		return nil, ErrInvalidFragment
	}

	if code := params.Get("error"); code != "" {
		return nil, &RedirectError{Code: code, Description: params.Get("error_description")}
	}

	flow := params.Get("type")

	if refresh := params.Get("refresh_token"); refresh != "" {
		session, err := s.Refresh(ctx, refresh)
		if err != nil {
			return nil, err
		}
		if flow == FragmentSignup && !session.User.EmailVerified {
			if err := s.userRepo.UpdateFields(session.User.ID, map[string]interface{}{"email_verified": true}); err != nil {
				return nil, err
			}
			session.User.EmailVerified = true
		}
		session.PasswordRecovery = flow == FragmentRecovery
		return session, nil
	}

	access := params.Get("access_token")
	if access == "" {
		return nil, ErrInvalidFragment
	}
	claims, err := jwt.ParseToken(access, s.cfg.JWT.Secret)
	if err != nil || claims.IsRefresh() {
		return nil, ErrInvalidRefresh
	}
	if revoked, err := s.tokens.IsRevoked(ctx, claims.ID); err != nil || revoked {
		return nil, ErrInvalidRefresh
	}
	user, err := s.userRepo.GetByID(claims.UserID)
	if err != nil {
		return nil, ErrInvalidRefresh
	}
	if flow == FragmentSignup && !user.EmailVerified {
		if err := s.markVerified(user); err != nil {
			return nil, err
		}
	}
	return s.newSession(ctx, user, flow == FragmentRecovery)
}

// VerifyEmail 验证邮箱
func (s *AuthService) VerifyEmail(ctx context.Context, code string) (*dto.LoginResponse, error) {
	user, err := s.userRepo.GetByVerificationCode(code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidVerifyCode
		}
		return nil, err
	}

	if user.VerificationExpiresAt == nil || time.Now().After(*user.VerificationExpiresAt) {
		return nil, ErrInvalidVerifyCode
	}

	if err := s.markVerified(user); err != nil {
		return nil, err
	}
	return s.newSession(ctx, user, false)
}

// GithubAuthURL 生成 GitHub 授权地址，state 存入 Redis
func (s *AuthService) GithubAuthURL(ctx context.Context) (string, error) {
	if !s.github.Enabled() {
		return "", ErrOAuthDisabled
	}
	state, err := s.tokens.Issue(ctx, tokenstore.PurposeOAuthState, "github", oauthStateTTL)
	if err != nil {
		return "", fmt.Errorf("failed to issue oauth state: %w", err)
	}
	return s.github.AuthURL(state), nil
}

// GithubCallback 处理 GitHub OAuth 回调
func (s *AuthService) GithubCallback(ctx context.Context, state, code string) (*dto.LoginResponse, error) {
	if !s.github.Enabled() {
		return nil, ErrOAuthDisabled
	}
	if _, err := s.tokens.Consume(ctx, tokenstore.PurposeOAuthState, state); err != nil {
		return nil, ErrInvalidOAuthState
	}

	identity, err := s.github.Identify(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to identify github user: %w", err)
	}

	user, err := s.userRepo.GetByGithubID(identity.ProviderID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	if user == nil && identity.Email != "" && identity.EmailVerified {
		// 已验证邮箱相同则关联到现有账号
		existing, err := s.userRepo.GetByEmail(normalizeEmail(identity.Email))
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		if existing != nil {
			if err := s.userRepo.UpdateFields(existing.ID, map[string]interface{}{
				"github_id":      identity.ProviderID,
				"email_verified": true,
			}); err != nil {
				return nil, err
			}
			existing.GithubID = &identity.ProviderID
			existing.EmailVerified = true
			user = existing
		}
	}

	if user == nil {
		if identity.Email == "" {
			return nil, fmt.Errorf("github account has no email address")
		}
		now := time.Now().UTC()
		user = &model.User{
			Email:              normalizeEmail(identity.Email),
			DisplayName:        identity.Name,
			AvatarURL:          identity.AvatarURL,
			Role:               model.RoleStudent,
			GithubID:           &identity.ProviderID,
			Plan:               model.PlanFree,
			QuestionsRemaining: s.quota.ResolveCeiling(model.PlanFree),
			LastFreeReset:      &now,
			EmailVerified:      identity.EmailVerified,
		}
		if err := s.userRepo.Create(user); err != nil {
			return nil, fmt.Errorf("failed to create user: %w", err)
		}
		s.logger.Info().Int64("user_id", user.ID).Msg("user registered via github")
	}

	return s.newSession(ctx, user, false)
}

// SessionFragment 把会话编码为回跳片段，交给前端的 RecoverSession
func SessionFragment(session *dto.LoginResponse, flow string) string {
	v := url.Values{}
	v.Set("access_token", session.Token)
	v.Set("refresh_token", session.RefreshToken)
	if flow != "" {
		v.Set("type", flow)
	}
	return v.Encode()
}

// ErrorFragment 把错误编码为回跳片段
func ErrorFragment(code, description string) string {
	v := url.Values{}
	v.Set("error", code)
	v.Set("error_description", description)
	return v.Encode()
}

func (s *AuthService) newSession(ctx context.Context, user *model.User, recovery bool) (*dto.LoginResponse, error) {
	token, err := jwt.GenerateToken(user.ID, s.cfg.JWT.Secret, s.cfg.JWT.ExpireHours)
	if err != nil {
		return nil, err
	}
	refresh, err := jwt.GenerateRefreshToken(user.ID, s.cfg.JWT.Secret, s.cfg.JWT.RefreshExpireHours)
	if err != nil {
		return nil, err
	}

	quota, err := s.quota.GetQuotaInfo(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	expiresAt := time.Now().Add(time.Duration(s.cfg.JWT.ExpireHours) * time.Hour)
	return &dto.LoginResponse{
		Token:            token,
		RefreshToken:     refresh,
		ExpiresAt:        expiresAt.UTC().Format(time.RFC3339),
		PasswordRecovery: recovery,
		User:             toUserInfo(user, quota),
	}, nil
}

func (s *AuthService) markVerified(user *model.User) error {
	user.EmailVerified = true
	user.VerificationCode = nil
	user.VerificationExpiresAt = nil
	return s.userRepo.UpdateFields(user.ID, map[string]interface{}{
		"email_verified":          true,
		"verification_code":       nil,
		"verification_expires_at": nil,
	})
}

// parseFragment 接受完整 URL、#片段或查询串
func parseFragment(raw string) (url.Values, error) {
	raw = strings.TrimSpace(raw)
	if i := strings.IndexByte(raw, '#'); i >= 0 {
		raw = raw[i+1:]
	} else if i := strings.IndexByte(raw, '?'); i >= 0 {
		raw = raw[i+1:]
	}
	if raw == "" {
		return nil, ErrInvalidFragment
	}
	return url.ParseQuery(raw)
}

func normalizeEmail(e string) string {
	return strings.ToLower(strings.TrimSpace(e))
}

func generateRandomCode(length int) (string, error) {
	bytes := make([]byte, length/2)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
