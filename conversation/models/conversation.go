package models

import "time"

// Conversation is a server-tracked thread of user and assistant messages
type Conversation struct {
	ID          string       `json:"id"`
	Title       *string      `json:"title"`
	LastMessage *WireMessage `json:"lastMessage"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// Polarity is the direction of message feedback
type Polarity string

const (
	ThumbsUp   Polarity = "up"
	ThumbsDown Polarity = "down"
)

// Opposite returns the other polarity
func (p Polarity) Opposite() Polarity {
	if p == ThumbsUp {
		return ThumbsDown
	}
	return ThumbsUp
}

// Valid reports whether p is one of the two polarities
func (p Polarity) Valid() bool {
	return p == ThumbsUp || p == ThumbsDown
}

// ExportType is a document format for conversation downloads
type ExportType string

const (
	ExportPDF  ExportType = "pdf"
	ExportDOCX ExportType = "docx"
)
