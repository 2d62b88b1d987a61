package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"ai-productivity-app/assistant/ai"
	"ai-productivity-app/assistant/conversation/client"
	"ai-productivity-app/assistant/conversation/models"
	"ai-productivity-app/assistant/conversation/repository"
	apperrors "ai-productivity-app/assistant/pkg/errors"
	"ai-productivity-app/assistant/pkg/logger"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Responder produces the assistant reply for a prompt
type Responder interface {
	Respond(ctx context.Context, req ai.Request) (ai.Reply, error)
}

// AssistantErrorText is stored as the reply when the responder fails
const AssistantErrorText = "Something went wrong while generating a reply. Please try again."

const (
	maxTitleRunes = 60
	maxPageSize   = 100
	exportBatch   = 200
)

// Options configures a ConversationService
type Options struct {
	Store     repository.Store
	Responder Responder
	// MaxUserPrompts is the per-user prompt allowance; zero disables the quota
	MaxUserPrompts int
	// QuotaStatus is the HTTP status returned once the allowance is used up
	QuotaStatus int
	// HistoryWindow is how many prior messages the responder sees
	HistoryWindow int
	// FilesPrefix is prepended to stored object paths to build attachment URLs
	FilesPrefix string
	Log         *logger.Logger
	Now         func() time.Time
}

// ConversationService implements the conversation API for the dev server
type ConversationService struct {
	store         repository.Store
	responder     Responder
	maxPrompts    int
	quotaStatus   int
	historyWindow int
	filesPrefix   string
	log           *logger.Logger
	now           func() time.Time
	replies       metric.Int64Counter
}

// NewConversationService creates a service over opts.Store
func NewConversationService(opts Options) *ConversationService {
	s := &ConversationService{
		store:         opts.Store,
		responder:     opts.Responder,
		maxPrompts:    opts.MaxUserPrompts,
		quotaStatus:   opts.QuotaStatus,
		historyWindow: opts.HistoryWindow,
		filesPrefix:   strings.TrimRight(opts.FilesPrefix, "/"),
		log:           opts.Log,
		now:           opts.Now,
	}
	if s.responder == nil {
		s.responder = ai.Echo{}
	}
	if s.quotaStatus == 0 {
		s.quotaStatus = http.StatusTooManyRequests
	}
	if s.historyWindow <= 0 {
		s.historyWindow = 20
	}
	if s.filesPrefix == "" {
		s.filesPrefix = "/files"
	}
	if s.log == nil {
		s.log = logger.Nop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	replies, err := otel.Meter("ai-productivity-app/assistant/conversation/service").Int64Counter(
		"assistant_server_replies",
		metric.WithDescription("Assistant replies stored, by kind."),
	)
	if err != nil {
		s.log.LogError(err, "failed to create reply counter")
		s.replies = noop.Int64Counter{}
	} else {
		s.replies = replies
	}
	return s
}

// SendMessage stores the prompt, asks the responder and stores its reply. The conversation is
// created when req.ConversationID is empty. A responder failure is stored and returned as an
// assistant-error message, not as an error.
func (s *ConversationService) SendMessage(ctx context.Context, userID string, req client.SendRequest) (*models.WireMessage, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" && len(req.UploadedAttachments) == 0 {
		return nil, apperrors.NewValidationError("Message text is required")
	}

	if s.maxPrompts > 0 {
		used, err := s.store.CountUserPrompts(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("count prompts: %w", err)
		}
		if used >= int64(s.maxPrompts) {
			s.log.Info("prompt quota reached", "user_id", userID, "used", used)
			return nil, apperrors.NewError(s.quotaStatus, apperrors.CodeQuotaExhausted, apperrors.LimitReachedText)
		}
	}

	conv, err := s.conversationFor(ctx, userID, req.ConversationID, text)
	if err != nil {
		return nil, err
	}
	log := s.log.WithConversationID(conv.ID)

	history, err := s.recent(ctx, conv.ID, s.historyWindow)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	userMsg := models.WireMessage{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		Text:           text,
		Metadata:       models.WireMetadata{Role: models.RoleUser, Kind: models.KindMessage},
		Attachments:    s.attachments(req.UploadedAttachments),
		CreatedAt:      now,
	}

	reply := models.WireMessage{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		Metadata:       models.WireMetadata{Role: models.RoleAssistant, Kind: models.KindAssistant},
		CreatedAt:      now.Add(time.Millisecond),
	}

	out, err := s.responder.Respond(ctx, ai.Request{
		UserID:         userID,
		ConversationID: conv.ID,
		Prompt:         text,
		History:        history,
		Attachments:    req.UploadedAttachments,
	})
	if err != nil {
		log.LogError(err, "responder failed")
		reply.Text = AssistantErrorText
		reply.Metadata.Kind = models.KindAssistantError
	} else {
		reply.Text = out.Text
		reply.Metadata.Citations = out.Citations
	}

	userRec, err := repository.NewMessageRecord(userID, userMsg)
	if err != nil {
		return nil, err
	}
	replyRec, err := repository.NewMessageRecord(userID, reply)
	if err != nil {
		return nil, err
	}
	if err := s.store.AppendMessages(ctx, userRec, replyRec); err != nil {
		return nil, fmt.Errorf("store messages: %w", err)
	}
	if err := s.store.TouchConversation(ctx, conv.ID, reply.CreatedAt); err != nil {
		log.LogError(err, "failed to touch conversation")
	}

	s.replies.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", string(reply.Metadata.Kind))))
	log.Debug("message stored", "kind", string(reply.Metadata.Kind), "attachments", len(userMsg.Attachments))
	return &reply, nil
}

func (s *ConversationService) conversationFor(ctx context.Context, userID, id, text string) (*repository.ConversationRecord, error) {
	if id != "" {
		return s.ownedConversation(ctx, userID, id)
	}
	now := s.now().UTC()
	conv := &repository.ConversationRecord{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     title(text),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateConversation(ctx, conv); err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return conv, nil
}

func (s *ConversationService) ownedConversation(ctx context.Context, userID, id string) (*repository.ConversationRecord, error) {
	conv, err := s.store.GetConversation(ctx, userID, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewNotFoundError("CONVERSATION_NOT_FOUND", "Conversation not found")
	}
	return conv, err
}

func (s *ConversationService) attachments(refs []models.UploadedReference) []models.Attachment {
	if len(refs) == 0 {
		return nil
	}
	out := make([]models.Attachment, 0, len(refs))
	for _, ref := range refs {
		out = append(out, models.Attachment{
			ID:       uuid.NewString(),
			URL:      s.filesPrefix + "/" + strings.TrimLeft(ref.ObjectPath, "/"),
			Name:     ref.OriginalFilename,
			Mimetype: ref.Mimetype,
			Size:     ref.Size,
			Key:      ref.ObjectPath,
		})
	}
	return out
}

// recent returns up to n of the newest messages in chronological order
func (s *ConversationService) recent(ctx context.Context, conversationID string, n int) ([]models.WireMessage, error) {
	recs, err := s.store.ListMessages(ctx, conversationID, 0, n)
	if err != nil {
		return nil, err
	}
	return chronological(recs)
}

func chronological(recs []repository.MessageRecord) ([]models.WireMessage, error) {
	out := make([]models.WireMessage, len(recs))
	for i, rec := range recs {
		w, err := rec.Wire()
		if err != nil {
			return nil, fmt.Errorf("message %s: %w", rec.ID, err)
		}
		out[len(recs)-1-i] = w
	}
	return out, nil
}

func title(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return "New conversation"
	}
	if utf8.RuneCountInString(text) <= maxTitleRunes {
		return text
	}
	runes := []rune(text)
	return string(runes[:maxTitleRunes]) + "…"
}

func pageWindow(page, limit int) (offset, size int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return (page - 1) * limit, limit
}

// ListConversations returns one page, most recently updated first
func (s *ConversationService) ListConversations(ctx context.Context, userID string, page, limit int, search string) (*client.ConversationPage, error) {
	offset, size := pageWindow(page, limit)
	recs, err := s.store.ListConversations(ctx, userID, search, offset, size+1)
	if err != nil {
		return nil, err
	}

	out := &client.ConversationPage{Items: []models.Conversation{}}
	if len(recs) > size {
		out.HasMore = true
		recs = recs[:size]
	}
	for _, rec := range recs {
		conv := models.Conversation{ID: rec.ID, UpdatedAt: rec.UpdatedAt}
		if rec.Title != "" {
			t := rec.Title
			conv.Title = &t
		}
		last, err := s.recent(ctx, rec.ID, 1)
		if err != nil {
			return nil, err
		}
		if len(last) == 1 {
			conv.LastMessage = &last[0]
		}
		out.Items = append(out.Items, conv)
	}
	return out, nil
}

// ListMessages returns one page of a conversation. Page 1 holds the newest messages; each
// page is chronological.
func (s *ConversationService) ListMessages(ctx context.Context, userID, conversationID string, page, limit int) (*client.MessagePage, error) {
	if _, err := s.ownedConversation(ctx, userID, conversationID); err != nil {
		return nil, err
	}

	offset, size := pageWindow(page, limit)
	recs, err := s.store.ListMessages(ctx, conversationID, offset, size+1)
	if err != nil {
		return nil, err
	}

	out := &client.MessagePage{}
	if len(recs) > size {
		out.HasMore = true
		recs = recs[:size]
	}
	if out.Items, err = chronological(recs); err != nil {
		return nil, err
	}
	return out, nil
}

// ReportMessage records a user report against a message
func (s *ConversationService) ReportMessage(ctx context.Context, userID, conversationID, messageID string, req client.ReportRequest) error {
	if _, err := s.ownedConversation(ctx, userID, conversationID); err != nil {
		return err
	}
	if _, err := s.store.GetMessage(ctx, conversationID, messageID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NewNotFoundError("MESSAGE_NOT_FOUND", "Message not found")
		}
		return err
	}

	report := &repository.ReportRecord{
		ConversationID: conversationID,
		MessageID:      messageID,
		UserID:         userID,
		Reason:         req.Reason,
		Feedback:       req.Feedback,
		CreatedAt:      s.now().UTC(),
	}
	if err := s.store.CreateReport(ctx, report); err != nil {
		return err
	}
	s.log.WithConversationID(conversationID).Info("message reported", "message_id", messageID, "reason", req.Reason)
	return nil
}

// Export writes a plain-text transcript of the conversation, or of one message when
// req.MessageID is set, and returns the download filename
func (s *ConversationService) Export(ctx context.Context, userID, conversationID string, req client.ExportRequest, w io.Writer) (string, error) {
	conv, err := s.ownedConversation(ctx, userID, conversationID)
	if err != nil {
		return "", err
	}

	var msgs []models.WireMessage
	if req.MessageID != "" {
		rec, err := s.store.GetMessage(ctx, conversationID, req.MessageID)
		if errors.Is(err, repository.ErrNotFound) {
			return "", apperrors.NewNotFoundError("MESSAGE_NOT_FOUND", "Message not found")
		}
		if err != nil {
			return "", err
		}
		m, err := rec.Wire()
		if err != nil {
			return "", err
		}
		msgs = []models.WireMessage{m}
	} else {
		for offset := 0; ; offset += exportBatch {
			recs, err := s.store.ListMessages(ctx, conversationID, offset, exportBatch)
			if err != nil {
				return "", err
			}
			page, err := chronological(recs)
			if err != nil {
				return "", err
			}
			msgs = append(page, msgs...)
			if len(recs) < exportBatch {
				break
			}
		}
	}

	if _, err := fmt.Fprintf(w, "%s\n\n", conv.Title); err != nil {
		return "", err
	}
	for _, m := range msgs {
		if _, err := fmt.Fprintf(w, "[%s] %s:\n%s\n", m.CreatedAt.Format(time.RFC3339), m.Metadata.Role, m.Text); err != nil {
			return "", err
		}
		for _, a := range m.Attachments {
			if _, err := fmt.Fprintf(w, "  attachment: %s (%s)\n", a.Name, a.Mimetype); err != nil {
				return "", err
			}
		}
		if _, err := io.WriteString(w, "\n"); err != nil {
			return "", err
		}
	}

	return exportName(req.Name, conv.Title) + ".txt", nil
}

func exportName(name, fallback string) string {
	if name = strings.TrimSpace(name); name == "" {
		name = fallback
	}
	clean := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		case r == ' ' || r == '.':
			return '_'
		default:
			return -1
		}
	}, name)
	if clean == "" {
		return "conversation"
	}
	return clean
}
