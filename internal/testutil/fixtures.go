package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/qs3c/homework_helper/internal/model"
)

var seq int64

func next() int64 {
	return atomic.AddInt64(&seq, 1)
}

// TestUser 创建测试用户，默认免费套餐、满额且刚续期
func TestUser(t *testing.T, db *gorm.DB, opts ...func(*model.User)) *model.User {
	t.Helper()

	n := next()
	passwordHash := "$2a$10$abcdefghijklmnopqrstuvwxyz123456" // bcrypt hash placeholder
	now := time.Now().UTC()
	user := &model.User{
		Email:              fmt.Sprintf("test_%d_%d@example.com", n, time.Now().UnixNano()),
		PasswordHash:       &passwordHash,
		DisplayName:        fmt.Sprintf("Student %d", n),
		Role:               model.RoleStudent,
		Plan:               model.PlanFree,
		QuestionsRemaining: 5,
		LastFreeReset:      &now,
		EmailVerified:      true,
	}

	for _, opt := range opts {
		opt(user)
	}

	if err := db.Create(user).Error; err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}

	return user
}

// WithEmail 设置邮箱
func WithEmail(email string) func(*model.User) {
	return func(u *model.User) {
		u.Email = email
	}
}

// WithPassword 设置密码哈希
func WithPassword(hash string) func(*model.User) {
	return func(u *model.User) {
		u.PasswordHash = &hash
	}
}

// WithPlan 设置套餐
func WithPlan(plan string) func(*model.User) {
	return func(u *model.User) {
		u.Plan = plan
	}
}

// WithQuota 设置剩余提问次数
func WithQuota(remaining int) func(*model.User) {
	return func(u *model.User) {
		u.QuestionsRemaining = remaining
	}
}

// WithLastReset 设置上次续期时间，nil 表示从未续期
func WithLastReset(at *time.Time) func(*model.User) {
	return func(u *model.User) {
		if at != nil {
			utc := at.UTC()
			at = &utc
		}
		u.LastFreeReset = at
	}
}

// WithRole 设置角色
func WithRole(role string) func(*model.User) {
	return func(u *model.User) {
		u.Role = role
	}
}

// WithUnverified 邮箱未验证，附带验证码
func WithUnverified(code string) func(*model.User) {
	return func(u *model.User) {
		expires := time.Now().UTC().Add(24 * time.Hour)
		u.EmailVerified = false
		u.VerificationCode = &code
		u.VerificationExpiresAt = &expires
	}
}

// TestPayment 创建测试支付记录，默认 M-Pesa 待支付
func TestPayment(t *testing.T, db *gorm.DB, userID int64, opts ...func(*model.Payment)) *model.Payment {
	t.Helper()

	payment := &model.Payment{
		UserID:    userID,
		Reference: "HH-" + uuid.NewString(),
		Provider:  model.ProviderIntaSend,
		Method:    model.MethodMpesa,
		Plan:      model.PlanFamily,
		Amount:    500,
		Currency:  "KES",
		Phone:     "254712345678",
		InvoiceID: fmt.Sprintf("INV%d", next()),
		Status:    model.PaymentPending,
	}

	for _, opt := range opts {
		opt(payment)
	}

	if err := db.Create(payment).Error; err != nil {
		t.Fatalf("Failed to create test payment: %v", err)
	}

	return payment
}

// WithPaymentPlan 设置购买的套餐
func WithPaymentPlan(plan string, amount float64) func(*model.Payment) {
	return func(p *model.Payment) {
		p.Plan = plan
		p.Amount = amount
	}
}

// WithPaymentStatus 设置支付状态
func WithPaymentStatus(status string) func(*model.Payment) {
	return func(p *model.Payment) {
		p.Status = status
		if status == model.PaymentComplete {
			now := time.Now().UTC()
			p.CompletedAt = &now
		}
	}
}

// WithPaymentMethod 设置支付方式与渠道
func WithPaymentMethod(method, provider string) func(*model.Payment) {
	return func(p *model.Payment) {
		p.Method = method
		p.Provider = provider
		if method == model.MethodCard {
			p.Phone = ""
		}
	}
}

// WithCreatedAt 设置创建时间
func WithCreatedAt(at time.Time) func(*model.Payment) {
	return func(p *model.Payment) {
		p.CreatedAt = at.UTC()
	}
}

// TestChatSession 创建测试会话
func TestChatSession(t *testing.T, db *gorm.DB, userID int64, title string) *model.ChatSession {
	t.Helper()

	session := &model.ChatSession{
		UserID:       userID,
		Title:        title,
		SystemPrompt: "You are a tutor.",
	}

	if err := db.Create(session).Error; err != nil {
		t.Fatalf("Failed to create test chat session: %v", err)
	}

	return session
}

// TestChatMessage 创建测试消息
func TestChatMessage(t *testing.T, db *gorm.DB, sessionID int64, role, content string) *model.ChatMessage {
	t.Helper()

	msg := &model.ChatMessage{
		SessionID: sessionID,
		Role:      role,
		Content:   content,
	}

	if err := db.Create(msg).Error; err != nil {
		t.Fatalf("Failed to create test chat message: %v", err)
	}

	return msg
}
