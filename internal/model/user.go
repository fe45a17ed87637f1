package model

import (
	"time"
)

// 套餐
const (
	PlanFree       = "free"
	PlanFamily     = "family"
	PlanPremium    = "premium"
	PlanEnterprise = "enterprise"
)

// 角色
const (
	RoleStudent = "student"
	RoleParent  = "parent"
	RoleTeacher = "teacher"
	RoleAdmin   = "admin"
)

// User 用户资料与配额记录
type User struct {
	ID                    int64      `gorm:"primaryKey" json:"id"`
	Email                 string     `gorm:"size:100;uniqueIndex;not null" json:"email"`
	PasswordHash          *string    `gorm:"size:255" json:"-"`
	DisplayName           string     `gorm:"size:100" json:"display_name"`
	AvatarURL             string     `gorm:"size:500" json:"avatar_url"`
	Role                  string     `gorm:"size:20;default:student;index" json:"role"`
	GithubID              *string    `gorm:"column:github_id;size:50;uniqueIndex" json:"-"`
	Plan                  string     `gorm:"size:20;default:free;index" json:"plan"`
	QuestionsRemaining    int        `gorm:"default:5;not null" json:"questions_remaining"`
	LastFreeReset         *time.Time `json:"last_free_reset,omitempty"`
	PlanExpiresAt         *time.Time `json:"plan_expires_at,omitempty"`
	EmailVerified         bool       `gorm:"default:false" json:"email_verified"`
	VerificationCode      *string    `gorm:"size:100;index" json:"-"`
	VerificationExpiresAt *time.Time `json:"-"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

// IsAdmin 是否为管理员
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
