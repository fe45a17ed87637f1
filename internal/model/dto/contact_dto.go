package dto

// ContactRequest 联系表单
type ContactRequest struct {
	Name    string `json:"name" binding:"required,max=100"`
	Email   string `json:"email" binding:"required,email"`
	Subject string `json:"subject" binding:"omitempty,max=200"`
	Message string `json:"message" binding:"required,max=5000"`
}

// 邮件未配置时前端的降级方式
const FallbackAlert = "alert"

// ContactResponse 联系表单提交结果
type ContactResponse struct {
	ID        int64  `json:"id"`
	Delivered bool   `json:"delivered"`
	Fallback  string `json:"fallback,omitempty"`
}
