package dto

// CreatePaymentRequest 发起支付
type CreatePaymentRequest struct {
	Plan   string `json:"plan" binding:"required,oneof=family premium enterprise"`
	Method string `json:"method" binding:"required,oneof=mpesa airtel card"`
	Phone  string `json:"phone" binding:"omitempty,ke_phone"` // 移动支付必填
}

// PaymentInfo 支付信息
type PaymentInfo struct {
	Reference    string  `json:"reference"`
	InvoiceID    string  `json:"invoice_id,omitempty"`
	Method       string  `json:"method"`
	Plan         string  `json:"plan"`
	Amount       float64 `json:"amount"`
	Currency     string  `json:"currency"`
	Status       string  `json:"status"`
	CheckoutURL  string  `json:"checkout_url,omitempty"`
	FailedReason string  `json:"failed_reason,omitempty"`
	CreatedAt    string  `json:"created_at"`
	CompletedAt  string  `json:"completed_at,omitempty"`
}

// 支付结果页展示的状态
const (
	ResultSuccess = "success"
	ResultPending = "pending"
	ResultFailed  = "failed"
)

// PaymentResult 支付结果页数据
type PaymentResult struct {
	Result  string       `json:"result"`
	Payment *PaymentInfo `json:"payment"`
	Quota   *QuotaInfo   `json:"quota,omitempty"`
}

// IntaSendWebhook 支付网关回调内容
type IntaSendWebhook struct {
	InvoiceID    string `json:"invoice_id"`
	State        string `json:"state"`
	Provider     string `json:"provider"`
	Charges      string `json:"charges"`
	NetAmount    string `json:"net_amount"`
	Currency     string `json:"currency"`
	Value        string `json:"value"`
	Account      string `json:"account"`
	APIRef       string `json:"api_ref"`
	FailedReason string `json:"failed_reason"`
	FailedCode   string `json:"failed_code"`
	Challenge    string `json:"challenge"`
}
