package model

import (
	"time"
)

// 支付状态，与网关发票状态保持一致
const (
	PaymentPending  = "PENDING"
	PaymentComplete = "COMPLETE"
	PaymentFailed   = "FAILED"
)

// 支付方式
const (
	MethodMpesa  = "mpesa"
	MethodAirtel = "airtel"
	MethodCard   = "card"
)

// 支付渠道
const (
	ProviderIntaSend = "intasend"
	ProviderStripe   = "stripe"
)

// Payment 一次支付尝试。Plan 在创建时写入，回调时原样读取。
type Payment struct {
	ID           int64      `gorm:"primaryKey" json:"id"`
	UserID       int64      `gorm:"not null;index" json:"user_id"`
	Reference    string     `gorm:"size:64;uniqueIndex;not null" json:"reference"`
	Provider     string     `gorm:"size:20;not null" json:"provider"`
	Method       string     `gorm:"size:20;not null" json:"method"`
	Plan         string     `gorm:"size:20;not null" json:"plan"`
	Amount       float64    `gorm:"type:decimal(10,2)" json:"amount"`
	Currency     string     `gorm:"size:10" json:"currency"`
	Phone        string     `gorm:"size:20" json:"phone,omitempty"`
	InvoiceID    string     `gorm:"size:100;index" json:"invoice_id,omitempty"`
	CheckoutURL  string     `gorm:"size:500" json:"checkout_url,omitempty"`
	Status       string     `gorm:"size:20;default:PENDING;index" json:"status"`
	FailedReason string     `gorm:"size:255" json:"failed_reason,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (Payment) TableName() string {
	return "payments"
}

// IsMobileMoney 移动支付需要用户在手机上确认，状态会延迟到达
func (p *Payment) IsMobileMoney() bool {
	return p.Method == MethodMpesa || p.Method == MethodAirtel
}
