package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"ai-productivity-app/assistant/conversation/models"
)

// ErrNotFound is returned when a conversation or message does not exist for the caller
var ErrNotFound = errors.New("record not found")

// ConversationRecord is a stored conversation owned by one user
type ConversationRecord struct {
	ID        string    `gorm:"primaryKey;size:64"`
	UserID    string    `gorm:"size:128;not null;index"`
	Title     string    `gorm:"size:256"`
	CreatedAt time.Time
	UpdatedAt time.Time `gorm:"index"`
}

// TableName pins the table name
func (ConversationRecord) TableName() string { return "conversations" }

// MessageRecord is a stored message. Attachments and citations are kept as JSON text.
type MessageRecord struct {
	ID             string    `gorm:"primaryKey;size:64"`
	ConversationID string    `gorm:"size:64;not null;index:idx_messages_conversation_created,priority:1"`
	UserID         string    `gorm:"size:128;not null;index"`
	Role           string    `gorm:"size:16;not null"`
	Kind           string    `gorm:"size:32;not null"`
	Text           string    `gorm:"type:text"`
	Attachments    string    `gorm:"type:text"`
	Citations      string    `gorm:"type:text"`
	CreatedAt      time.Time `gorm:"index:idx_messages_conversation_created,priority:2"`
}

// TableName pins the table name
func (MessageRecord) TableName() string { return "messages" }

// ReportRecord is a user report against an assistant message
type ReportRecord struct {
	ID             uint   `gorm:"primaryKey"`
	ConversationID string `gorm:"size:64;not null;index"`
	MessageID      string `gorm:"size:64;not null"`
	UserID         string `gorm:"size:128;not null"`
	Reason         string `gorm:"size:128"`
	Feedback       string `gorm:"type:text"`
	CreatedAt      time.Time
}

// TableName pins the table name
func (ReportRecord) TableName() string { return "message_reports" }

// Store persists conversations for the dev server
type Store interface {
	CreateConversation(ctx context.Context, conv *ConversationRecord) error
	// GetConversation returns ErrNotFound when id does not belong to userID
	GetConversation(ctx context.Context, userID, id string) (*ConversationRecord, error)
	TouchConversation(ctx context.Context, id string, at time.Time) error
	// ListConversations orders by most recently updated first
	ListConversations(ctx context.Context, userID, search string, offset, limit int) ([]ConversationRecord, error)
	AppendMessages(ctx context.Context, msgs ...*MessageRecord) error
	// ListMessages orders by newest first
	ListMessages(ctx context.Context, conversationID string, offset, limit int) ([]MessageRecord, error)
	GetMessage(ctx context.Context, conversationID, messageID string) (*MessageRecord, error)
	// CountUserPrompts counts USER messages across all of a user's conversations
	CountUserPrompts(ctx context.Context, userID string) (int64, error)
	CreateReport(ctx context.Context, report *ReportRecord) error
	Ping(ctx context.Context) error
	Close() error
}

// NewMessageRecord flattens a wire message for storage
func NewMessageRecord(userID string, w models.WireMessage) (*MessageRecord, error) {
	rec := &MessageRecord{
		ID:             w.ID,
		ConversationID: w.ConversationID,
		UserID:         userID,
		Role:           string(w.Metadata.Role),
		Kind:           string(w.Metadata.Kind),
		Text:           w.Text,
		CreatedAt:      w.CreatedAt,
	}
	if len(w.Attachments) > 0 {
		data, err := json.Marshal(w.Attachments)
		if err != nil {
			return nil, err
		}
		rec.Attachments = string(data)
	}
	if len(w.Metadata.Citations) > 0 {
		data, err := json.Marshal(w.Metadata.Citations)
		if err != nil {
			return nil, err
		}
		rec.Citations = string(data)
	}
	return rec, nil
}

// Wire converts the record back to its wire form
func (m MessageRecord) Wire() (models.WireMessage, error) {
	w := models.WireMessage{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		Text:           m.Text,
		CreatedAt:      m.CreatedAt,
		Metadata: models.WireMetadata{
			Role: models.Role(m.Role),
			Kind: models.Kind(m.Kind),
		},
	}
	if m.Attachments != "" {
		if err := json.Unmarshal([]byte(m.Attachments), &w.Attachments); err != nil {
			return w, err
		}
	}
	if m.Citations != "" {
		if err := json.Unmarshal([]byte(m.Citations), &w.Metadata.Citations); err != nil {
			return w, err
		}
	}
	return w, nil
}
