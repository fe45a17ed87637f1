package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/homework_helper/internal/model"
)

type ChatRepository struct {
	db *gorm.DB
}

func NewChatRepository(db *gorm.DB) *ChatRepository {
	return &ChatRepository{db: db}
}

func (r *ChatRepository) CreateSession(session *model.ChatSession) error {
	return r.db.Create(session).Error
}

// GetSession 按用户查询会话，不属于该用户时返回 ErrRecordNotFound
func (r *ChatRepository) GetSession(id, userID int64) (*model.ChatSession, error) {
	var session model.ChatSession
	err := r.db.Where("id = ? AND user_id = ?", id, userID).First(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *ChatRepository) ListSessions(userID int64, page, pageSize int) ([]*model.ChatSession, int64, error) {
	var sessions []*model.ChatSession
	var total int64

	query := r.db.Model(&model.ChatSession{}).Where("user_id = ?", userID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.Order("updated_at DESC, id DESC").Offset(offset).Limit(pageSize).Find(&sessions).Error
	return sessions, total, err
}

// AppendMessages 在同一事务中写入一问一答并刷新会话时间
func (r *ChatRepository) AppendMessages(sessionID int64, msgs ...*model.ChatMessage) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		for _, m := range msgs {
			m.SessionID = sessionID
			if err := tx.Create(m).Error; err != nil {
				return err
			}
		}
		return tx.Model(&model.ChatSession{}).Where("id = ?", sessionID).
			Update("updated_at", time.Now().UTC()).Error
	})
}

// ListMessages 按时间正序返回会话消息
func (r *ChatRepository) ListMessages(sessionID int64) ([]*model.ChatMessage, error) {
	var msgs []*model.ChatMessage
	err := r.db.Where("session_id = ?", sessionID).Order("created_at ASC, id ASC").Find(&msgs).Error
	return msgs, err
}

func (r *ChatRepository) UpdateTitle(id int64, title string) error {
	return r.db.Model(&model.ChatSession{}).Where("id = ?", id).Update("title", title).Error
}

// DeleteSession 删除会话及其消息
func (r *ChatRepository) DeleteSession(id, userID int64) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		result := tx.Where("id = ? AND user_id = ?", id, userID).Delete(&model.ChatSession{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return tx.Where("session_id = ?", id).Delete(&model.ChatMessage{}).Error
	})
}

// DeleteByUser 删除用户的全部会话
func (r *ChatRepository) DeleteByUser(userID int64) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		sub := tx.Model(&model.ChatSession{}).Select("id").Where("user_id = ?", userID)
		if err := tx.Where("session_id IN (?)", sub).Delete(&model.ChatMessage{}).Error; err != nil {
			return err
		}
		return tx.Where("user_id = ?", userID).Delete(&model.ChatSession{}).Error
	})
}

// ListStaleSessionIDs 最后活跃时间早于 before 的会话
func (r *ChatRepository) ListStaleSessionIDs(before time.Time, limit int) ([]int64, error) {
	var ids []int64
	err := r.db.Model(&model.ChatSession{}).
		Where("updated_at < ?", before.UTC()).
		Order("updated_at ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}

// PurgeSessions 批量删除会话及消息，返回删除的会话数
func (r *ChatRepository) PurgeSessions(ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var deleted int64
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id IN ?", ids).Delete(&model.ChatMessage{}).Error; err != nil {
			return err
		}
		result := tx.Where("id IN ?", ids).Delete(&model.ChatSession{})
		deleted = result.RowsAffected
		return result.Error
	})
	return deleted, err
}
