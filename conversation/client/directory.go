package client

import (
	"context"
	"strings"
	"sync"

	"ai-productivity-app/assistant/conversation/models"
)

// ConversationLister is the subset of Client the Directory needs
type ConversationLister interface {
	ListConversations(ctx context.Context, page, limit int, search string) (*ConversationPage, error)
}

// Directory keeps the most recent first page of the user's conversation list
type Directory struct {
	lister ConversationLister
	limit  int

	mu            sync.RWMutex
	conversations []models.Conversation
	hasMore       bool
}

// NewDirectory creates a Directory that fetches limit conversations per refresh
func NewDirectory(lister ConversationLister, limit int) *Directory {
	if limit <= 0 {
		limit = 20
	}
	return &Directory{lister: lister, limit: limit}
}

// Refresh reloads the first page. On error the previous list is kept.
func (d *Directory) Refresh(ctx context.Context) error {
	page, err := d.lister.ListConversations(ctx, 1, d.limit, "")
	if err != nil {
		return err
	}

	d.mu.Lock()
	d.conversations = append([]models.Conversation(nil), page.Items...)
	d.hasMore = page.HasMore
	d.mu.Unlock()
	return nil
}

// Conversations returns a copy of the cached list
func (d *Directory) Conversations() []models.Conversation {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]models.Conversation(nil), d.conversations...)
}

// HasMore reports whether the server has conversations past the cached page
func (d *Directory) HasMore() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.hasMore
}

// Search asks the server for conversations matching query. An empty query returns the
// cached list.
func (d *Directory) Search(ctx context.Context, query string) ([]models.Conversation, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return d.Conversations(), nil
	}
	page, err := d.lister.ListConversations(ctx, 1, d.limit, query)
	if err != nil {
		return nil, err
	}
	return page.Items, nil
}
