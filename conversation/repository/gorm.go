package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
)

// GormStore keeps conversations in a SQL database through gorm
type GormStore struct {
	db *gorm.DB
}

// NewGormStore wraps db and migrates the schema
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&ConversationRecord{}, &MessageRecord{}, &ReportRecord{}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func (r *GormStore) CreateConversation(ctx context.Context, conv *ConversationRecord) error {
	return r.db.WithContext(ctx).Create(conv).Error
}

func (r *GormStore) GetConversation(ctx context.Context, userID, id string) (*ConversationRecord, error) {
	var conv ConversationRecord
	err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&conv).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &conv, nil
}

func (r *GormStore) TouchConversation(ctx context.Context, id string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&ConversationRecord{}).Where("id = ?", id).Update("updated_at", at).Error
}

func (r *GormStore) ListConversations(ctx context.Context, userID, search string, offset, limit int) ([]ConversationRecord, error) {
	q := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if search = strings.TrimSpace(search); search != "" {
		q = q.Where("LOWER(title) LIKE ?", "%"+strings.ToLower(search)+"%")
	}
	var convs []ConversationRecord
	err := q.Order("updated_at DESC").Offset(offset).Limit(limit).Find(&convs).Error
	return convs, err
}

func (r *GormStore) AppendMessages(ctx context.Context, msgs ...*MessageRecord) error {
	if len(msgs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(msgs).Error
}

func (r *GormStore) ListMessages(ctx context.Context, conversationID string, offset, limit int) ([]MessageRecord, error) {
	var msgs []MessageRecord
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC").
		Order("id DESC").
		Offset(offset).
		Limit(limit).
		Find(&msgs).Error
	return msgs, err
}

func (r *GormStore) GetMessage(ctx context.Context, conversationID, messageID string) (*MessageRecord, error) {
	var msg MessageRecord
	err := r.db.WithContext(ctx).Where("id = ? AND conversation_id = ?", messageID, conversationID).First(&msg).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &msg, nil
}

func (r *GormStore) CountUserPrompts(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&MessageRecord{}).
		Where("user_id = ? AND role = ?", userID, "USER").
		Count(&n).Error
	return n, err
}

func (r *GormStore) CreateReport(ctx context.Context, report *ReportRecord) error {
	return r.db.WithContext(ctx).Create(report).Error
}

func (r *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (r *GormStore) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
