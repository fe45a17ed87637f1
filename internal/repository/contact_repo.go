package repository

import (
	"gorm.io/gorm"

	"github.com/qs3c/homework_helper/internal/model"
)

type ContactRepository struct {
	db *gorm.DB
}

func NewContactRepository(db *gorm.DB) *ContactRepository {
	return &ContactRepository{db: db}
}

func (r *ContactRepository) Create(msg *model.ContactMessage) error {
	return r.db.Create(msg).Error
}

func (r *ContactRepository) MarkNotified(id int64) error {
	return r.db.Model(&model.ContactMessage{}).Where("id = ?", id).Update("notified", true).Error
}

func (r *ContactRepository) List(page, pageSize int) ([]*model.ContactMessage, int64, error) {
	var msgs []*model.ContactMessage
	var total int64

	if err := r.db.Model(&model.ContactMessage{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := r.db.Order("created_at DESC, id DESC").Offset(offset).Limit(pageSize).Find(&msgs).Error
	return msgs, total, err
}

func (r *ContactRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&model.ContactMessage{}).Count(&count).Error
	return count, err
}
