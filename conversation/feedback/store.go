package feedback

import (
	"context"
	"strconv"
	"sync"

	"ai-productivity-app/assistant/conversation/models"
	"ai-productivity-app/assistant/shared/redis"
)

// member length-prefixes the conversation id so ids containing ':' cannot collide
func member(conversationID, messageID string) string {
	return strconv.Itoa(len(conversationID)) + ":" + conversationID + ":" + messageID
}

// MemoryStore keeps feedback for the life of the process
type MemoryStore struct {
	mu   sync.RWMutex
	sets map[models.Polarity]map[string]struct{}
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sets: map[models.Polarity]map[string]struct{}{
		models.ThumbsUp:   {},
		models.ThumbsDown: {},
	}}
}

// Has implements Store
func (s *MemoryStore) Has(_ context.Context, p models.Polarity, conversationID, messageID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sets[p][member(conversationID, messageID)]
	return ok, nil
}

// Add implements Store
func (s *MemoryStore) Add(_ context.Context, p models.Polarity, conversationID, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.sets[p]
	if !ok {
		set = map[string]struct{}{}
		s.sets[p] = set
	}
	set[member(conversationID, messageID)] = struct{}{}
	return nil
}

// RedisStore keeps one redis set per polarity
type RedisStore struct {
	client *redis.RedisClient
	prefix string
}

// NewRedisStore creates a store whose keys are <prefix>:<polarity>
func NewRedisStore(client *redis.RedisClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "assistant:feedback"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(p models.Polarity) string {
	return s.prefix + ":" + string(p)
}

// Has implements Store
func (s *RedisStore) Has(ctx context.Context, p models.Polarity, conversationID, messageID string) (bool, error) {
	return s.client.SIsMember(ctx, s.key(p), member(conversationID, messageID))
}

// Add implements Store
func (s *RedisStore) Add(ctx context.Context, p models.Polarity, conversationID, messageID string) error {
	return s.client.SAdd(ctx, s.key(p), member(conversationID, messageID))
}
