package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/homework_helper/internal/model"
)

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) Create(payment *model.Payment) error {
	return r.db.Create(payment).Error
}

func (r *PaymentRepository) GetByReference(reference string) (*model.Payment, error) {
	var payment model.Payment
	err := r.db.Where("reference = ?", reference).First(&payment).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *PaymentRepository) GetByInvoiceID(invoiceID string) (*model.Payment, error) {
	var payment model.Payment
	err := r.db.Where("invoice_id = ?", invoiceID).First(&payment).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// SetInvoice 记录网关返回的发票号与收银台地址
func (r *PaymentRepository) SetInvoice(id int64, invoiceID, checkoutURL string) error {
	return r.db.Model(&model.Payment{}).Where("id = ?", id).Updates(map[string]interface{}{
		"invoice_id":   invoiceID,
		"checkout_url": checkoutURL,
	}).Error
}

// CompleteWithPlan 同一事务内完成支付并开通套餐，任一步失败整体回滚。
// 返回是否由本次调用完成。
func (r *PaymentRepository) CompleteWithPlan(id int64, now time.Time, grant PlanGrant) (bool, error) {
	now = now.UTC()
	completed := false
	err := r.db.Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&model.Payment{}).
			Where("id = ? AND status = ?", id, model.PaymentPending).
			Updates(map[string]interface{}{
				"status":       model.PaymentComplete,
				"completed_at": now,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected != 1 {
			return nil
		}
		if err := applyPlan(tx, grant, now); err != nil {
			return err
		}
		completed = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return completed, nil
}

// MarkFailed 仅 PENDING 状态可以失败
func (r *PaymentRepository) MarkFailed(id int64, reason string) (bool, error) {
	if len(reason) > 255 {
		reason = reason[:255]
	}
	result := r.db.Model(&model.Payment{}).
		Where("id = ? AND status = ?", id, model.PaymentPending).
		Updates(map[string]interface{}{
			"status":        model.PaymentFailed,
			"failed_reason": reason,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// ListPendingOlderThan 创建时间早于 before 的待支付记录
func (r *PaymentRepository) ListPendingOlderThan(before time.Time, limit int) ([]*model.Payment, error) {
	var payments []*model.Payment
	err := r.db.Where("status = ? AND created_at <= ?", model.PaymentPending, before.UTC()).
		Order("created_at ASC").
		Limit(limit).
		Find(&payments).Error
	return payments, err
}

func (r *PaymentRepository) ListByUser(userID int64, limit int) ([]*model.Payment, error) {
	var payments []*model.Payment
	err := r.db.Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&payments).Error
	return payments, err
}

// List 管理后台分页查询，status 为空时不过滤
func (r *PaymentRepository) List(status string, page, pageSize int) ([]*model.Payment, int64, error) {
	var payments []*model.Payment
	var total int64

	query := r.db.Model(&model.Payment{})
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.Order("created_at DESC, id DESC").Offset(offset).Limit(pageSize).Find(&payments).Error
	return payments, total, err
}

func (r *PaymentRepository) CountByStatus(status string) (int64, error) {
	var count int64
	err := r.db.Model(&model.Payment{}).Where("status = ?", status).Count(&count).Error
	return count, err
}

// CompletedRevenue 已完成支付的金额合计
func (r *PaymentRepository) CompletedRevenue() (float64, error) {
	var total float64
	err := r.db.Model(&model.Payment{}).
		Where("status = ?", model.PaymentComplete).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&total).Error
	return total, err
}

// DeleteByUser 删除用户的支付记录
func (r *PaymentRepository) DeleteByUser(userID int64) error {
	return r.db.Where("user_id = ?", userID).Delete(&model.Payment{}).Error
}
