package dto

// QuotaInfo 配额快照，前端只通过它展示剩余次数
type QuotaInfo struct {
	Plan               string `json:"plan"`
	Ceiling            int    `json:"ceiling"`
	QuestionsRemaining int    `json:"questions_remaining"`
	Unlimited          bool   `json:"unlimited"`
	CanAsk             bool   `json:"can_ask"`
	LastReset          string `json:"last_reset,omitempty"`
	NextRenewalAt      string `json:"next_renewal_at,omitempty"`
}

// PlanInfo 套餐信息
type PlanInfo struct {
	Name        string  `json:"name"`
	DisplayName string  `json:"display_name"`
	Ceiling     int     `json:"ceiling"`
	Unlimited   bool    `json:"unlimited"`
	Price       float64 `json:"price"`
	Currency    string  `json:"currency"`
}
