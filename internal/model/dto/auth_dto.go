package dto

// RegisterRequest 注册请求
type RegisterRequest struct {
	Email       string `json:"email" binding:"required,email"`
	Password    string `json:"password" binding:"required,min=8,max=64"`
	DisplayName string `json:"display_name" binding:"required,min=2,max=100"`
}

// RegisterResponse 注册响应
type RegisterResponse struct {
	UserID int64 `json:"user_id"`
}

// LoginRequest 登录请求
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse 登录响应（会话）
type LoginResponse struct {
	Token            string    `json:"token"`
	RefreshToken     string    `json:"refresh_token,omitempty"`
	ExpiresAt        string    `json:"expires_at,omitempty"`
	PasswordRecovery bool      `json:"password_recovery,omitempty"`
	User             *UserInfo `json:"user"`
}

// RefreshRequest 刷新令牌请求
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// LogoutRequest 退出登录，可同时注销刷新令牌
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// VerifyEmailRequest 邮箱验证请求
type VerifyEmailRequest struct {
	Code string `json:"code" binding:"required"`
}

// ForgotPasswordRequest 申请重置密码
type ForgotPasswordRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// ResetPasswordRequest 重置密码
type ResetPasswordRequest struct {
	Token    string `json:"token" binding:"required"`
	Password string `json:"password" binding:"required,min=8,max=64"`
}

// RecoverSessionRequest 身份提供方回跳后，从 URL 片段恢复会话
type RecoverSessionRequest struct {
	Fragment string `json:"fragment" binding:"required"`
}

// UserInfo 用户信息（返回给前端）
type UserInfo struct {
	ID            int64      `json:"id"`
	Email         string     `json:"email"`
	DisplayName   string     `json:"display_name"`
	AvatarURL     string     `json:"avatar_url"`
	Role          string     `json:"role"`
	Plan          string     `json:"plan"`
	PlanExpiresAt string     `json:"plan_expires_at,omitempty"`
	EmailVerified bool       `json:"email_verified"`
	Quota         *QuotaInfo `json:"quota,omitempty"`
	CreatedAt     string     `json:"created_at,omitempty"`
}

// UpdateProfileRequest 更新用户信息请求
type UpdateProfileRequest struct {
	DisplayName *string `json:"display_name,omitempty" binding:"omitempty,min=2,max=100"`
}
