package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is a process-local Store for tests and database-less dev runs
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]ConversationRecord
	messages      map[string][]MessageRecord
	reports       []ReportRecord
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string]ConversationRecord),
		messages:      make(map[string][]MessageRecord),
	}
}

func (s *MemoryStore) CreateConversation(_ context.Context, conv *ConversationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations[conv.ID] = *conv
	return nil
}

func (s *MemoryStore) GetConversation(_ context.Context, userID, id string) (*ConversationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[id]
	if !ok || conv.UserID != userID {
		return nil, ErrNotFound
	}
	return &conv, nil
}

func (s *MemoryStore) TouchConversation(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[id]
	if !ok {
		return ErrNotFound
	}
	conv.UpdatedAt = at
	s.conversations[id] = conv
	return nil
}

func (s *MemoryStore) ListConversations(_ context.Context, userID, search string, offset, limit int) ([]ConversationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	search = strings.ToLower(strings.TrimSpace(search))
	var out []ConversationRecord
	for _, conv := range s.conversations {
		if conv.UserID != userID {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(conv.Title), search) {
			continue
		}
		out = append(out, conv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return window(out, offset, limit), nil
}

func (s *MemoryStore) AppendMessages(_ context.Context, msgs ...*MessageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range msgs {
		s.messages[m.ConversationID] = append(s.messages[m.ConversationID], *m)
	}
	return nil
}

func (s *MemoryStore) ListMessages(_ context.Context, conversationID string, offset, limit int) ([]MessageRecord, error) {
	s.mu.RLock()
	stored := s.messages[conversationID]
	out := make([]MessageRecord, len(stored))
	for i := range stored {
		out[len(stored)-1-i] = stored[i]
	}
	s.mu.RUnlock()
	return window(out, offset, limit), nil
}

func (s *MemoryStore) GetMessage(_ context.Context, conversationID, messageID string) (*MessageRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.messages[conversationID] {
		if m.ID == messageID {
			return &m, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) CountUserPrompts(_ context.Context, userID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, msgs := range s.messages {
		for _, m := range msgs {
			if m.UserID == userID && m.Role == "USER" {
				n++
			}
		}
	}
	return n, nil
}

func (s *MemoryStore) CreateReport(_ context.Context, report *ReportRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	report.ID = uint(len(s.reports) + 1)
	s.reports = append(s.reports, *report)
	return nil
}

// Reports returns the stored reports
func (s *MemoryStore) Reports() []ReportRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]ReportRecord(nil), s.reports...)
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

func window[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
