package dto

// AdminUserQuery 用户列表查询
type AdminUserQuery struct {
	Page     int    `form:"page" binding:"omitempty,min=1"`
	PageSize int    `form:"page_size" binding:"omitempty,min=1,max=100"`
	Search   string `form:"search"`
	Plan     string `form:"plan" binding:"omitempty,oneof=free family premium enterprise"`
	Role     string `form:"role" binding:"omitempty,oneof=student parent teacher admin"`
}

// AdminUpdateUserRequest 管理员修改用户
type AdminUpdateUserRequest struct {
	DisplayName        *string `json:"display_name,omitempty" binding:"omitempty,min=2,max=100"`
	Role               *string `json:"role,omitempty" binding:"omitempty,oneof=student parent teacher admin"`
	Plan               *string `json:"plan,omitempty" binding:"omitempty,oneof=free family premium enterprise"`
	QuestionsRemaining *int    `json:"questions_remaining,omitempty" binding:"omitempty,min=0"`
}

// AdminPaymentQuery 支付列表查询
type AdminPaymentQuery struct {
	Page     int    `form:"page" binding:"omitempty,min=1"`
	PageSize int    `form:"page_size" binding:"omitempty,min=1,max=100"`
	Status   string `form:"status" binding:"omitempty,oneof=PENDING COMPLETE FAILED"`
}

// AdminStats 仪表盘统计
type AdminStats struct {
	TotalUsers       int64            `json:"total_users"`
	UsersByPlan      map[string]int64 `json:"users_by_plan"`
	PendingPayments  int64            `json:"pending_payments"`
	CompletedRevenue float64          `json:"completed_revenue"`
	ContactMessages  int64            `json:"contact_messages"`
}
