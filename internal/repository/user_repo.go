package repository

import (
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/homework_helper/internal/model"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(user *model.User) error {
	return r.db.Create(user).Error
}

func (r *UserRepository) GetByID(id int64) (*model.User, error) {
	var user model.User
	err := r.db.Where("id = ?", id).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) GetByEmail(email string) (*model.User, error) {
	var user model.User
	err := r.db.Where("email = ?", strings.ToLower(email)).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) GetByGithubID(githubID string) (*model.User, error) {
	var user model.User
	err := r.db.Where("github_id = ?", githubID).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) GetByVerificationCode(code string) (*model.User, error) {
	var user model.User
	err := r.db.Where("verification_code = ?", code).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) Update(user *model.User) error {
	return r.db.Save(user).Error
}

func (r *UserRepository) UpdateFields(id int64, fields map[string]interface{}) error {
	return r.db.Model(&model.User{}).Where("id = ?", id).Updates(fields).Error
}

func (r *UserRepository) Delete(id int64) error {
	return r.db.Delete(&model.User{}, id).Error
}

func (r *UserRepository) ExistsByEmail(email string) (bool, error) {
	var count int64
	err := r.db.Model(&model.User{}).Where("email = ?", strings.ToLower(email)).Count(&count).Error
	return count > 0, err
}

// ConsumeQuestion 原子扣减一次提问次数，余额为 0 时不修改并返回 false
func (r *UserRepository) ConsumeQuestion(id int64) (bool, error) {
	result := r.db.Model(&model.User{}).
		Where("id = ? AND questions_remaining > 0", id).
		UpdateColumn("questions_remaining", gorm.Expr("questions_remaining - 1"))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// RenewIfDue 距上次续期已满 window 时把余额补满到 ceiling，
// 条件写在 WHERE 中，并发续期只有一次生效
func (r *UserRepository) RenewIfDue(id int64, ceiling int, now time.Time, window time.Duration) (bool, error) {
	now = now.UTC()
	result := r.db.Model(&model.User{}).
		Where("id = ? AND (last_free_reset IS NULL OR last_free_reset <= ?)", id, now.Add(-window)).
		UpdateColumns(map[string]interface{}{
			"questions_remaining": ceiling,
			"last_free_reset":     now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// RefundQuestion 退还一次提问次数，不超过 ceiling
func (r *UserRepository) RefundQuestion(id int64, ceiling int) (bool, error) {
	result := r.db.Model(&model.User{}).
		Where("id = ? AND questions_remaining < ?", id, ceiling).
		UpdateColumn("questions_remaining", gorm.Expr("questions_remaining + 1"))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// PlanGrant 一次套餐开通
type PlanGrant struct {
	UserID    int64
	Plan      string
	Ceiling   int
	ExpiresAt *time.Time
}

// ApplyPlan 切换套餐并补满余额，续期起点重置为 now
func (r *UserRepository) ApplyPlan(grant PlanGrant, now time.Time) error {
	return applyPlan(r.db, grant, now)
}

func applyPlan(db *gorm.DB, grant PlanGrant, now time.Time) error {
	now = now.UTC()
	return db.Model(&model.User{}).Where("id = ?", grant.UserID).UpdateColumns(map[string]interface{}{
		"plan":                grant.Plan,
		"questions_remaining": grant.Ceiling,
		"last_free_reset":     now,
		"plan_expires_at":     grant.ExpiresAt,
		"updated_at":          now,
	}).Error
}

// UserFilter 管理后台用户查询条件
type UserFilter struct {
	Search string
	Plan   string
	Role   string
}

// List 分页查询用户，Search 匹配邮箱或昵称
func (r *UserRepository) List(filter UserFilter, page, pageSize int) ([]*model.User, int64, error) {
	var users []*model.User
	var total int64

	query := r.db.Model(&model.User{})
	if filter.Search != "" {
		like := "%" + strings.ToLower(filter.Search) + "%"
		query = query.Where("LOWER(email) LIKE ? OR LOWER(display_name) LIKE ?", like, like)
	}
	if filter.Plan != "" {
		query = query.Where("plan = ?", filter.Plan)
	}
	if filter.Role != "" {
		query = query.Where("role = ?", filter.Role)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.Order("created_at DESC, id DESC").Offset(offset).Limit(pageSize).Find(&users).Error
	return users, total, err
}

// CountByPlan 各套餐用户数
func (r *UserRepository) CountByPlan() (map[string]int64, error) {
	var rows []struct {
		Plan  string
		Count int64
	}
	err := r.db.Model(&model.User{}).
		Select("plan, COUNT(*) AS count").
		Group("plan").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Plan] = row.Count
	}
	return counts, nil
}

// ListExpiredPlans 付费套餐已到期的用户
func (r *UserRepository) ListExpiredPlans(now time.Time, limit int) ([]*model.User, error) {
	var users []*model.User
	err := r.db.Where("plan <> ? AND plan_expires_at IS NOT NULL AND plan_expires_at <= ?", model.PlanFree, now.UTC()).
		Order("plan_expires_at ASC").
		Limit(limit).
		Find(&users).Error
	return users, err
}
