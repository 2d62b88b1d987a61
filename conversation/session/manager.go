// Package session owns the active conversation: its id, the ordered message list, the
// attachment staging area and the quota state.
package session

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"ai-productivity-app/assistant/attachment/staging"
	"ai-productivity-app/assistant/conversation/client"
	"ai-productivity-app/assistant/conversation/feedback"
	"ai-productivity-app/assistant/conversation/history"
	"ai-productivity-app/assistant/conversation/models"
	apperrors "ai-productivity-app/assistant/pkg/errors"
	"ai-productivity-app/assistant/pkg/logger"
	"ai-productivity-app/assistant/pkg/metrics"
)

const defaultErrorBuffer = 16

// Sender issues the message-send call
type Sender interface {
	SendMessage(ctx context.Context, req client.SendRequest) (*models.WireMessage, error)
}

// Uploader turns staged attachments into remote references
type Uploader interface {
	Run(ctx context.Context, atts []models.Attachment) ([]models.UploadedReference, error)
}

// Pager loads older history for a conversation
type Pager interface {
	LoadNextPage(ctx context.Context, conversationID string) ([]models.Message, bool, error)
	Reset(conversationID string)
}

// Refresher reloads the conversation list
type Refresher interface {
	Refresh(ctx context.Context) error
}

// FeedbackRegister applies thumbs-up/down rules
type FeedbackRegister interface {
	Register(ctx context.Context, p models.Polarity, conversationID, messageID string) (feedback.Outcome, error)
}

// Options wires a Manager to its collaborators. Sender is required.
type Options struct {
	Sender      Sender
	Uploader    Uploader
	Pager       Pager
	Directory   Refresher
	Feedback    FeedbackRegister
	Staging     *staging.Area
	QuotaStatus int
	AppContext  map[string]any
	ErrorBuffer int
	Log         *logger.Logger
	Metrics     *metrics.Metrics
}

// Manager is the single writer of the message list and the staging area. All methods are
// safe for concurrent use; network calls run outside the lock.
type Manager struct {
	sender      Sender
	uploader    Uploader
	pager       Pager
	directory   Refresher
	feedback    FeedbackRegister
	staging     *staging.Area
	quotaStatus int
	appContext  map[string]any
	log         *logger.Logger
	metrics     *metrics.Metrics
	errs        chan error
	now         func() time.Time

	mu             sync.Mutex
	conversationID string
	messages       []models.Message
	limited        bool
	limitedIDs     map[string]bool
	startedHere    bool
	epoch          uint64
	viewCtx        context.Context
	viewCancel     context.CancelFunc
}

// NewManager creates a Manager showing a fresh, unsent conversation
func NewManager(opts Options) *Manager {
	if opts.Log == nil {
		opts.Log = logger.Nop()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Nop()
	}
	if opts.Staging == nil {
		opts.Staging = staging.New()
	}
	if opts.QuotaStatus == 0 {
		opts.QuotaStatus = http.StatusTooManyRequests
	}
	if opts.ErrorBuffer <= 0 {
		opts.ErrorBuffer = defaultErrorBuffer
	}

	viewCtx, cancel := context.WithCancel(context.Background())
	return &Manager{
		sender:      opts.Sender,
		uploader:    opts.Uploader,
		pager:       opts.Pager,
		directory:   opts.Directory,
		feedback:    opts.Feedback,
		staging:     opts.Staging,
		quotaStatus: opts.QuotaStatus,
		appContext:  opts.AppContext,
		log:         opts.Log.WithComponent("session"),
		metrics:     opts.Metrics,
		errs:        make(chan error, opts.ErrorBuffer),
		now:         time.Now,
		limitedIDs:  make(map[string]bool),
		viewCtx:     viewCtx,
		viewCancel:  cancel,
	}
}

// SendMessage sends text with attachments in the active conversation. The user message and
// a pending placeholder are appended before it returns control to any network call, and the
// staging area is cleared. Attachments are uploaded before the send call is issued.
func (m *Manager) SendMessage(ctx context.Context, text string, atts []models.Attachment) error {
	if strings.TrimSpace(text) == "" && len(atts) == 0 {
		return apperrors.NewValidationError("message text or an attachment is required")
	}

	m.mu.Lock()
	if m.limited {
		m.mu.Unlock()
		m.metrics.Sends.WithLabelValues(metrics.OutcomeRejected).Inc()
		return apperrors.NewQuotaExhaustedError()
	}
	now := m.now()
	user := models.UserMessage{Envelope: models.Envelope{
		ID:             models.NewTempID(),
		ConversationID: m.conversationID,
		Text:           text,
		Attachments:    append([]models.Attachment(nil), atts...),
		CreatedAt:      now,
	}}
	pending := m.placeholder(now)
	m.messages = append(m.messages, user, pending)
	epoch, convID := m.epoch, m.conversationID
	m.mu.Unlock()

	m.staging.Clear()

	ex := NewExchange(text, user.ID, pending.ID)
	return m.run(ctx, ex, epoch, convID, atts, nil)
}

// Retry resubmits priorText. When the list ends with that prompt and its errored reply, the
// reply is swapped for a new placeholder and the user message is kept. Otherwise the prompt
// is sent as a new message.
func (m *Manager) Retry(ctx context.Context, priorText string) error {
	m.mu.Lock()
	if m.limited {
		m.mu.Unlock()
		m.metrics.Sends.WithLabelValues(metrics.OutcomeRejected).Inc()
		return apperrors.NewQuotaExhaustedError()
	}

	n := len(m.messages)
	if n >= 2 {
		user, isUser := m.messages[n-2].(models.UserMessage)
		errored, isErrored := m.messages[n-1].(models.ErroredAssistant)
		if isUser && isErrored && (user.Text == priorText || errored.Prompt == priorText) {
			pending := m.placeholder(m.now())
			m.messages[n-1] = pending
			epoch, convID := m.epoch, m.conversationID
			m.mu.Unlock()

			ex := NewExchange(priorText, user.ID, pending.ID)
			return m.run(ctx, ex, epoch, convID, nil, errored)
		}
	}
	m.mu.Unlock()

	return m.SendMessage(ctx, priorText, nil)
}

func (m *Manager) placeholder(now time.Time) models.PendingAssistant {
	return models.PendingAssistant{Envelope: models.Envelope{
		ID:             models.NewTempID(),
		ConversationID: m.conversationID,
		CreatedAt:      now,
	}}
}

// run uploads, sends and applies the outcome of one exchange. previous is the errored reply
// a retry replaced; a rollback puts it back instead of removing the user message.
func (m *Manager) run(ctx context.Context, ex *Exchange, epoch uint64, convID string, atts []models.Attachment, previous models.Message) error {
	log := m.log.WithConversationID(convID)

	var refs []models.UploadedReference
	if len(atts) > 0 {
		var err error
		if m.uploader == nil {
			err = apperrors.NewUploadFailure(fmt.Errorf("no uploader configured"))
		} else {
			refs, err = m.uploader.Run(ctx, atts)
		}
		if err != nil {
			if !apperrors.HasCode(err, apperrors.CodeUploadFailure) {
				err = apperrors.NewUploadFailure(err)
			}
			_ = ex.Fail()
			if m.rollback(epoch, ex, previous) {
				m.staging.Restore(atts)
			}
			m.metrics.Sends.WithLabelValues(metrics.OutcomeRollback).Inc()
			log.LogError(err, "send aborted by upload failure", "attachments", len(atts))
			m.publish(err)
			return err
		}
	}

	reply, err := m.sender.SendMessage(ctx, client.SendRequest{
		Text:                ex.Prompt,
		ConversationID:      convID,
		UploadedAttachments: refs,
		AppContext:          m.appContext,
	})

	var msg models.Message
	if err == nil {
		msg, err = models.Decode(*reply)
		if err == nil && msg.Role() != models.RoleAssistant {
			err = fmt.Errorf("unexpected %s reply", msg.Kind())
		}
		if err != nil {
			err = fmt.Errorf("malformed reply: %w", err)
		}
	}

	if err != nil {
		if Classify(err, m.quotaStatus) == StateLimited {
			return m.applyLimited(epoch, convID, ex, log)
		}
		_ = ex.Fail()
		m.rollback(epoch, ex, previous)
		m.metrics.Sends.WithLabelValues(metrics.OutcomeRollback).Inc()
		failure := apperrors.NewAssistantFailure(ex.Prompt, err)
		log.LogError(err, "message send failed")
		m.publish(failure)
		return failure
	}

	created := convID == "" && reply.ConversationID != ""
	if created && m.directory != nil {
		defer m.refreshDirectory(ctx)
	}

	return m.applyReply(epoch, reply.ConversationID, ex, msg, previous, log)
}

func (m *Manager) applyReply(epoch uint64, serverConvID string, ex *Exchange, msg models.Message, previous models.Message, log *logger.Logger) error {
	var failure error
	switch v := msg.(type) {
	case models.ResolvedAssistant:
		_ = ex.Resolve()
	case models.ErroredAssistant:
		_ = ex.Fail()
		v.Prompt = ex.Prompt
		msg = v
		failure = apperrors.NewAssistantFailure(ex.Prompt, fmt.Errorf("assistant returned an error reply"))
	case models.LimitedAssistant:
		_ = ex.Limit()
		failure = apperrors.NewQuotaExhaustedError()
	case models.UserMessage, models.PendingAssistant:
		return fmt.Errorf("unexpected %s reply", v.Kind())
	}

	m.mu.Lock()
	if epoch != m.epoch {
		if ex.State() == StateLimited && serverConvID != "" {
			m.limitedIDs[serverConvID] = true
		}
		m.mu.Unlock()
		m.metrics.Sends.WithLabelValues(metrics.OutcomeStale).Inc()
		log.Debug("discarding reply for inactive view", "state", string(ex.State()))
		return nil
	}

	// a reply for a conversation other than the one shown is dropped with its optimistic pair
	if serverConvID != "" && m.conversationID != "" && serverConvID != m.conversationID {
		if ex.State() == StateLimited {
			m.limitedIDs[serverConvID] = true
		}
		m.rollbackLocked(ex, previous)
		m.mu.Unlock()
		m.metrics.Sends.WithLabelValues(metrics.OutcomeStale).Inc()
		log.Warn("discarding reply for another conversation",
			"reply_conversation_id", serverConvID,
			"state", string(ex.State()),
		)
		return nil
	}

	if m.conversationID == "" && serverConvID != "" {
		m.conversationID = serverConvID
		m.startedHere = true
		for i, existing := range m.messages {
			m.messages[i] = withConversation(existing, serverConvID)
		}
	}
	m.replaceLocked(ex.PlaceholderID, msg)
	if ex.State() == StateLimited {
		m.markLimitedLocked()
	}
	m.mu.Unlock()

	switch ex.State() {
	case StateResolved:
		m.metrics.Sends.WithLabelValues(metrics.OutcomeResolved).Inc()
	case StateErrored:
		m.metrics.Sends.WithLabelValues(metrics.OutcomeErrored).Inc()
	case StateLimited:
		m.metrics.Sends.WithLabelValues(metrics.OutcomeLimited).Inc()
	}
	if failure != nil {
		m.publish(failure)
	}
	return failure
}

func (m *Manager) applyLimited(epoch uint64, convID string, ex *Exchange, log *logger.Logger) error {
	_ = ex.Limit()
	quota := apperrors.NewQuotaExhaustedError()

	m.mu.Lock()
	if epoch != m.epoch {
		// the conversation still hit its quota even though it is no longer shown
		if convID != "" {
			m.limitedIDs[convID] = true
		}
		m.mu.Unlock()
		m.metrics.Sends.WithLabelValues(metrics.OutcomeStale).Inc()
		return quota
	}
	limit := models.LimitedAssistant{Envelope: models.Envelope{
		ID:             ex.PlaceholderID,
		ConversationID: m.conversationID,
		Text:           apperrors.LimitReachedText,
		CreatedAt:      m.now(),
	}}
	m.replaceLocked(ex.PlaceholderID, limit)
	m.markLimitedLocked()
	m.mu.Unlock()

	m.metrics.Sends.WithLabelValues(metrics.OutcomeLimited).Inc()
	log.Info("conversation reached its message limit")
	m.publish(quota)
	return quota
}

func (m *Manager) markLimitedLocked() {
	m.limited = true
	if m.conversationID != "" {
		m.limitedIDs[m.conversationID] = true
	}
}

// rollback removes the exchange's messages if its view is still active. A retried exchange
// gets its previous errored reply back instead. Reports whether anything was changed.
func (m *Manager) rollback(epoch uint64, ex *Exchange, previous models.Message) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if epoch != m.epoch {
		return false
	}
	m.rollbackLocked(ex, previous)
	return true
}

func (m *Manager) rollbackLocked(ex *Exchange, previous models.Message) {
	if previous != nil {
		m.replaceLocked(ex.PlaceholderID, previous)
		return
	}

	kept := m.messages[:0:0]
	for _, msg := range m.messages {
		id := msg.Base().ID
		if id == ex.UserID || id == ex.PlaceholderID {
			continue
		}
		kept = append(kept, msg)
	}
	m.messages = kept
}

func (m *Manager) replaceLocked(id string, msg models.Message) {
	for i, existing := range m.messages {
		if existing.Base().ID == id {
			m.messages[i] = msg
			return
		}
	}
}

func (m *Manager) refreshDirectory(ctx context.Context) {
	if err := m.directory.Refresh(ctx); err != nil {
		m.log.Warn("conversation list refresh failed", "error", err.Error())
	}
}

func (m *Manager) publish(err error) {
	select {
	case m.errs <- err:
	default:
		m.log.Warn("error channel full, dropping error", "error", err.Error())
	}
}

// SwitchConversation shows conversation id with the given initial messages; an empty id
// starts a fresh conversation. The staging area is emptied, pagination for the previous view
// is cancelled and any send result still in flight for it is ignored when it arrives. An
// upload that fails after the switch does not restore its attachments.
func (m *Manager) SwitchConversation(id string, initial []models.Message) {
	m.mu.Lock()
	m.viewCancel()
	m.viewCtx, m.viewCancel = context.WithCancel(context.Background())
	m.epoch++
	m.conversationID = id
	m.messages = append([]models.Message(nil), initial...)
	m.limited = id != "" && m.limitedIDs[id]
	m.startedHere = false
	m.mu.Unlock()

	m.staging.Clear()
	if m.pager != nil {
		m.pager.Reset(id)
	}
}

// NewConversation starts a fresh conversation
func (m *Manager) NewConversation() {
	m.SwitchConversation("", nil)
}

// LoadOlder fetches the next page of history for the active conversation and prepends it.
// It reports whether anything was loaded.
func (m *Manager) LoadOlder(ctx context.Context) (bool, error) {
	if m.pager == nil {
		return false, nil
	}

	m.mu.Lock()
	id, epoch, startedHere, viewCtx := m.conversationID, m.epoch, m.startedHere, m.viewCtx
	m.mu.Unlock()
	if id == "" || startedHere {
		return false, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(viewCtx, cancel)
	defer stop()

	older, loaded, err := m.pager.LoadNextPage(ctx, id)
	if err != nil {
		m.mu.Lock()
		stale := epoch != m.epoch
		m.mu.Unlock()
		if stale {
			return false, nil
		}
		return false, apperrors.NewError(http.StatusBadGateway, apperrors.CodeAssistantFailure, "Could not load earlier messages").WithCause(err)
	}
	if !loaded {
		return false, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if epoch != m.epoch {
		return false, nil
	}
	m.messages = history.Merge(older, m.messages)
	return true, nil
}

// RegisterFeedback records a thumbs-up or opens the report flow for a thumbs-down
func (m *Manager) RegisterFeedback(ctx context.Context, p models.Polarity, conversationID, messageID string) (feedback.Outcome, error) {
	if m.feedback == nil {
		return "", fmt.Errorf("feedback is not configured")
	}
	return m.feedback.Register(ctx, p, conversationID, messageID)
}

// Messages returns a copy of the message list
func (m *Manager) Messages() []models.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Message(nil), m.messages...)
}

// ConversationID returns the active conversation id, empty for an unsent conversation
func (m *Manager) ConversationID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conversationID
}

// Limited reports whether the active conversation has reached its quota
func (m *Manager) Limited() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.limited
}

// Staging returns the staging area owned by this manager
func (m *Manager) Staging() *staging.Area {
	return m.staging
}

// Errors delivers failures from sends. Sends also return the same error.
func (m *Manager) Errors() <-chan error {
	return m.errs
}

// Close tears down the staging area and cancels view-scoped work
func (m *Manager) Close() {
	m.mu.Lock()
	m.viewCancel()
	m.mu.Unlock()
	m.staging.Close()
}

func withConversation(msg models.Message, id string) models.Message {
	switch v := msg.(type) {
	case models.UserMessage:
		v.ConversationID = id
		return v
	case models.PendingAssistant:
		v.ConversationID = id
		return v
	case models.ResolvedAssistant:
		v.ConversationID = id
		return v
	case models.ErroredAssistant:
		v.ConversationID = id
		return v
	case models.LimitedAssistant:
		v.ConversationID = id
		return v
	}
	return msg
}
