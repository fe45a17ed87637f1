package model

import (
	"time"
)

const (
	ChatRoleUser  = "user"
	ChatRoleModel = "model"
)

type ChatSession struct {
	ID           int64     `gorm:"primaryKey" json:"id"`
	UserID       int64     `gorm:"not null;index" json:"user_id"`
	Title        string    `gorm:"size:200" json:"title"`
	SystemPrompt string    `gorm:"type:text" json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `gorm:"index" json:"updated_at"`
}

func (ChatSession) TableName() string {
	return "chat_sessions"
}

type ChatMessage struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	SessionID int64     `gorm:"not null;index" json:"session_id"`
	Role      string    `gorm:"size:10;not null" json:"role"`
	Content   string    `gorm:"type:text" json:"content"`
	ImageURL  string    `gorm:"size:500" json:"image_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (ChatMessage) TableName() string {
	return "chat_messages"
}
