package payment

import (
	"context"
	"errors"
)

// State 网关侧发票状态
type State string

const (
	StatePending    State = "PENDING"
	StateProcessing State = "PROCESSING"
	StateComplete   State = "COMPLETE"
	StateFailed     State = "FAILED"
)

// Final 是否为终态
func (s State) Final() bool {
	return s == StateComplete || s == StateFailed
}

var (
	ErrNotConfigured = errors.New("payment gateway not configured")
	ErrRejected      = errors.New("payment gateway rejected the request")
	ErrUnavailable   = errors.New("payment gateway unavailable")
)

// PushRequest 移动支付推送请求
type PushRequest struct {
	Reference string
	Phone     string
	Amount    float64
	Currency  string
	Email     string
	Narrative string
}

// CheckoutRequest 银行卡托管收银台请求
type CheckoutRequest struct {
	Reference   string
	Plan        string
	Amount      float64
	Currency    string
	Email       string
	Name        string
	RedirectURL string
	CancelURL   string
}

// Invoice 网关返回的发票信息
type Invoice struct {
	InvoiceID    string
	State        State
	CheckoutURL  string
	FailedReason string
}

// MobileMoney 移动支付网关
type MobileMoney interface {
	// MobileMoneyPush 发起 M-Pesa STK 推送
	MobileMoneyPush(ctx context.Context, req PushRequest) (*Invoice, error)
	// AlternatePush 发起 Airtel Money 收款
	AlternatePush(ctx context.Context, req PushRequest) (*Invoice, error)
	// Status 查询发票状态
	Status(ctx context.Context, invoiceID string) (*Invoice, error)
}

// CardCheckout 银行卡收银台
type CardCheckout interface {
	CardCheckout(ctx context.Context, req CheckoutRequest) (*Invoice, error)
}
