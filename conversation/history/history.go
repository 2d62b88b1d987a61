// Package history pages backwards through a conversation's messages.
package history

import (
	"context"
	"sync"

	"ai-productivity-app/assistant/conversation/client"
	"ai-productivity-app/assistant/conversation/models"
	"ai-productivity-app/assistant/pkg/logger"
	"ai-productivity-app/assistant/pkg/metrics"
)

// Fetcher loads one page of messages; page 1 is the most recent window
type Fetcher interface {
	ListMessages(ctx context.Context, conversationID string, page, limit int) (*client.MessagePage, error)
}

// Controller tracks the next page to request for one conversation at a time
type Controller struct {
	fetcher  Fetcher
	pageSize int
	log      *logger.Logger
	metrics  *metrics.Metrics

	mu             sync.Mutex
	conversationID string
	nextPage       int
	exhausted      bool
	inFlight       bool
	generation     uint64
}

// NewController creates a Controller requesting pageSize messages per page
func NewController(fetcher Fetcher, pageSize int, log *logger.Logger, m *metrics.Metrics) *Controller {
	if pageSize <= 0 {
		pageSize = 20
	}
	if log == nil {
		log = logger.Nop()
	}
	if m == nil {
		m = metrics.Nop()
	}
	return &Controller{
		fetcher:  fetcher,
		pageSize: pageSize,
		log:      log.WithComponent("history"),
		metrics:  m,
		nextPage: 1,
	}
}

// Reset points the controller at conversationID and starts again from page 1. A fetch still
// in flight for the previous conversation is discarded when it returns.
func (c *Controller) Reset(conversationID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked(conversationID)
}

func (c *Controller) resetLocked(conversationID string) {
	c.conversationID = conversationID
	c.nextPage = 1
	c.exhausted = conversationID == ""
	c.inFlight = false
	c.generation++
}

// HasMore reports whether older pages may still exist
func (c *Controller) HasMore() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.exhausted
}

// LoadNextPage fetches the next older page. It returns loaded=false without a network call
// when a fetch is already running or history is exhausted, and also when the result
// arrives after a Reset.
func (c *Controller) LoadNextPage(ctx context.Context, conversationID string) ([]models.Message, bool, error) {
	c.mu.Lock()
	if conversationID != c.conversationID {
		c.resetLocked(conversationID)
	}
	if c.inFlight || c.exhausted {
		c.mu.Unlock()
		c.metrics.PageFetches.WithLabelValues(metrics.ResultNoop).Inc()
		return nil, false, nil
	}
	c.inFlight = true
	page := c.nextPage
	gen := c.generation
	c.mu.Unlock()

	resp, err := c.fetcher.ListMessages(ctx, conversationID, page, c.pageSize)

	var msgs []models.Message
	if err == nil {
		msgs, err = models.DecodeAll(resp.Items)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation {
		c.log.Debug("discarding stale history page", "conversation_id", conversationID, "page", page)
		return nil, false, nil
	}
	c.inFlight = false

	if err != nil {
		c.metrics.PageFetches.WithLabelValues(metrics.ResultError).Inc()
		c.log.Warn("history page failed", "conversation_id", conversationID, "page", page, "error", err.Error())
		return nil, false, err
	}

	c.nextPage++
	if !resp.HasMore || len(resp.Items) < c.pageSize {
		c.exhausted = true
	}
	c.metrics.PageFetches.WithLabelValues(metrics.ResultOK).Inc()
	return msgs, true, nil
}

// Merge places older ahead of current, skipping any message whose id is already present.
// Relative order within each slice is preserved.
func Merge(older, current []models.Message) []models.Message {
	seen := make(map[string]struct{}, len(older)+len(current))
	for _, m := range current {
		seen[m.Base().ID] = struct{}{}
	}

	out := make([]models.Message, 0, len(older)+len(current))
	for _, m := range older {
		id := m.Base().ID
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, m)
	}
	return append(out, current...)
}
