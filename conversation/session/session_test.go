package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"ai-productivity-app/assistant/attachment/staging"
	"ai-productivity-app/assistant/conversation/client"
	"ai-productivity-app/assistant/conversation/feedback"
	"ai-productivity-app/assistant/conversation/models"
	apperrors "ai-productivity-app/assistant/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder captures the order of collaborator calls across fakes
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(call string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

type fakeSender struct {
	rec     *recorder
	mu      sync.Mutex
	calls   int
	reqs    []client.SendRequest
	reply   func(req client.SendRequest) (*models.WireMessage, error)
	gate    chan struct{}
	entered chan struct{}
}

func (s *fakeSender) SendMessage(_ context.Context, req client.SendRequest) (*models.WireMessage, error) {
	s.mu.Lock()
	s.calls++
	s.reqs = append(s.reqs, req)
	gate, entered := s.gate, s.entered
	s.mu.Unlock()
	if s.rec != nil {
		s.rec.add("send")
	}
	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		<-gate
	}
	return s.reply(req)
}

func (s *fakeSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func resolvedReply(convID, text string) func(client.SendRequest) (*models.WireMessage, error) {
	return func(req client.SendRequest) (*models.WireMessage, error) {
		id := req.ConversationID
		if id == "" {
			id = convID
		}
		return &models.WireMessage{
			ID:             "srv-" + text,
			ConversationID: id,
			Text:           text,
			Metadata:       models.WireMetadata{Role: models.RoleAssistant},
		}, nil
	}
}

func statusReply(code int) func(client.SendRequest) (*models.WireMessage, error) {
	return func(client.SendRequest) (*models.WireMessage, error) {
		return nil, &client.StatusError{Method: http.MethodPost, Path: "/conversations/message", StatusCode: code}
	}
}

type fakeUploader struct {
	rec  *recorder
	fail string
}

func (u *fakeUploader) Run(_ context.Context, atts []models.Attachment) ([]models.UploadedReference, error) {
	u.rec.add("upload")
	refs := make([]models.UploadedReference, 0, len(atts))
	for _, att := range atts {
		if att.ID == u.fail {
			return nil, apperrors.NewUploadFailure(fmt.Errorf("upload %s failed", att.Name))
		}
		refs = append(refs, models.UploadedReference{OriginalFilename: att.Name, ObjectPath: "obj/" + att.ID})
	}
	return refs, nil
}

type fakeDirectory struct {
	mu        sync.Mutex
	refreshes int
}

func (d *fakeDirectory) Refresh(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.refreshes++
	return nil
}

type fakePager struct {
	resets []string
	pages  [][]models.Message
}

func (p *fakePager) Reset(id string) { p.resets = append(p.resets, id) }

func (p *fakePager) LoadNextPage(_ context.Context, _ string) ([]models.Message, bool, error) {
	if len(p.pages) == 0 {
		return nil, false, nil
	}
	page := p.pages[0]
	p.pages = p.pages[1:]
	return page, true, nil
}

func att(id string) models.Attachment {
	return models.Attachment{ID: id, Name: id + ".png", Mimetype: "image/png", URL: "file:///tmp/" + id + ".png"}
}

func newManager(sender *fakeSender, opts Options) *Manager {
	opts.Sender = sender
	return NewManager(opts)
}

func kinds(msgs []models.Message) []models.Kind {
	out := make([]models.Kind, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Kind())
	}
	return out
}

func TestSendAddsTwoImmediatelyAndTwoNet(t *testing.T) {
	sender := &fakeSender{
		reply:   resolvedReply("c-1", "Hi"),
		gate:    make(chan struct{}),
		entered: make(chan struct{}, 1),
	}
	m := newManager(sender, Options{})
	m.SwitchConversation("c-1", []models.Message{
		models.UserMessage{Envelope: models.Envelope{ID: "u0", Text: "earlier"}},
	})

	done := make(chan error, 1)
	go func() { done <- m.SendMessage(context.Background(), "Hello", nil) }()
	<-sender.entered

	during := m.Messages()
	require.Len(t, during, 3)
	_, isUser := during[1].(models.UserMessage)
	_, isPending := during[2].(models.PendingAssistant)
	assert.True(t, isUser)
	assert.True(t, isPending)

	close(sender.gate)
	require.NoError(t, <-done)

	after := m.Messages()
	require.Len(t, after, 3)
	resolved, ok := after[2].(models.ResolvedAssistant)
	require.True(t, ok)
	assert.Equal(t, "Hi", resolved.Text)
	assert.Equal(t, "srv-Hi", resolved.ID)
}

func TestSendToFreshConversationAdoptsServerID(t *testing.T) {
	sender := &fakeSender{reply: resolvedReply("c-new", "Hi")}
	dir := &fakeDirectory{}
	m := newManager(sender, Options{Directory: dir})

	require.NoError(t, m.SendMessage(context.Background(), "Hello", nil))

	assert.Equal(t, "c-new", m.ConversationID())
	assert.Equal(t, 1, dir.refreshes)
	assert.Empty(t, sender.reqs[0].ConversationID)
	for _, msg := range m.Messages() {
		assert.Equal(t, "c-new", msg.Base().ConversationID)
	}

	require.NoError(t, m.SendMessage(context.Background(), "Again", nil))
	assert.Equal(t, "c-new", sender.reqs[1].ConversationID)
	assert.Equal(t, 1, dir.refreshes)
}

func TestUploadRunsBeforeSend(t *testing.T) {
	rec := &recorder{}
	sender := &fakeSender{rec: rec, reply: resolvedReply("c-1", "Nice photo")}
	m := newManager(sender, Options{Uploader: &fakeUploader{rec: rec}})

	require.NoError(t, m.Staging().Add(att("a")))
	require.NoError(t, m.SendMessage(context.Background(), "", m.Staging().List()))

	assert.Equal(t, []string{"upload", "send"}, rec.list())
	require.Len(t, sender.reqs[0].UploadedAttachments, 1)
	assert.Equal(t, "obj/a", sender.reqs[0].UploadedAttachments[0].ObjectPath)
	assert.Zero(t, m.Staging().Len())
}

func TestUploadFailureKeepsAttachmentsStaged(t *testing.T) {
	rec := &recorder{}
	sender := &fakeSender{rec: rec, reply: resolvedReply("c-1", "unused")}
	m := newManager(sender, Options{Uploader: &fakeUploader{rec: rec, fail: "b"}})

	require.NoError(t, m.Staging().Add(att("a")))
	require.NoError(t, m.Staging().Add(att("b")))

	err := m.SendMessage(context.Background(), "two files", m.Staging().List())
	assert.True(t, apperrors.HasCode(err, apperrors.CodeUploadFailure))

	assert.Zero(t, sender.count())
	assert.Empty(t, m.Messages())
	staged := m.Staging().List()
	require.Len(t, staged, 2)
	assert.Equal(t, "a", staged[0].ID)
	assert.Equal(t, "b", staged[1].ID)
	assert.ErrorIs(t, <-m.Errors(), err)
}

func TestTransportFailureRollsBack(t *testing.T) {
	for name, reply := range map[string]func(client.SendRequest) (*models.WireMessage, error){
		"server error": statusReply(http.StatusBadGateway),
		"timeout": func(client.SendRequest) (*models.WireMessage, error) {
			return nil, context.DeadlineExceeded
		},
		"malformed": func(client.SendRequest) (*models.WireMessage, error) {
			return &models.WireMessage{ID: "x", Metadata: models.WireMetadata{Role: "ROBOT"}}, nil
		},
	} {
		t.Run(name, func(t *testing.T) {
			m := newManager(&fakeSender{reply: reply}, Options{})
			m.SwitchConversation("c-1", []models.Message{
				models.UserMessage{Envelope: models.Envelope{ID: "u0", Text: "earlier"}},
			})
			before := m.Messages()

			err := m.SendMessage(context.Background(), "Hello", nil)
			require.Error(t, err)

			appErr, ok := apperrors.As(err)
			require.True(t, ok)
			assert.Equal(t, apperrors.CodeAssistantFailure, appErr.Code)
			assert.Equal(t, apperrors.AssistantFailureDetails{Prompt: "Hello"}, appErr.Details)
			assert.Equal(t, before, m.Messages())

			select {
			case published := <-m.Errors():
				assert.Same(t, appErr, published)
			case <-time.After(time.Second):
				t.Fatal("failure was not published")
			}
		})
	}
}

func TestQuotaMarksConversationLimited(t *testing.T) {
	sender := &fakeSender{reply: statusReply(http.StatusTooManyRequests)}
	m := newManager(sender, Options{})
	m.SwitchConversation("c-1", nil)

	err := m.SendMessage(context.Background(), "Hello", nil)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeQuotaExhausted))
	assert.True(t, m.Limited())

	msgs := m.Messages()
	require.Len(t, msgs, 2)
	limited, ok := msgs[1].(models.LimitedAssistant)
	require.True(t, ok)
	assert.Equal(t, apperrors.LimitReachedText, limited.Text)

	err = m.SendMessage(context.Background(), "Still there?", nil)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeQuotaExhausted))
	assert.Equal(t, 1, sender.count())
	assert.Len(t, m.Messages(), 2)

	m.NewConversation()
	assert.False(t, m.Limited())

	m.SwitchConversation("c-1", nil)
	assert.True(t, m.Limited())
}

func TestQuotaStatusIsConfigurable(t *testing.T) {
	sender := &fakeSender{reply: statusReply(http.StatusTooManyRequests)}
	m := newManager(sender, Options{QuotaStatus: http.StatusPaymentRequired})

	err := m.SendMessage(context.Background(), "Hello", nil)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeAssistantFailure))
	assert.False(t, m.Limited())
}

func TestErroredReplyThenRetry(t *testing.T) {
	attempt := 0
	sender := &fakeSender{reply: func(req client.SendRequest) (*models.WireMessage, error) {
		attempt++
		if attempt == 1 {
			return &models.WireMessage{
				ID:             "srv-err",
				ConversationID: "c-1",
				Text:           "Something went wrong",
				Metadata:       models.WireMetadata{Role: models.RoleAssistant, Kind: models.KindAssistantError},
			}, nil
		}
		return resolvedReply("c-1", "Fixed")(req)
	}}
	m := newManager(sender, Options{})
	m.SwitchConversation("c-1", nil)

	err := m.SendMessage(context.Background(), "Summarize", nil)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeAssistantFailure))

	msgs := m.Messages()
	require.Len(t, msgs, 2)
	errored, ok := msgs[1].(models.ErroredAssistant)
	require.True(t, ok)
	assert.Equal(t, "Summarize", errored.Prompt)
	userID := msgs[0].Base().ID

	require.NoError(t, m.Retry(context.Background(), errored.Prompt))

	msgs = m.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, userID, msgs[0].Base().ID)
	assert.Equal(t, []models.Kind{models.KindMessage, models.KindAssistant}, kinds(msgs))
	assert.Equal(t, "Fixed", msgs[1].Base().Text)
	assert.Equal(t, "Summarize", sender.reqs[1].Text)
}

func TestRetryTransportFailureRestoresErroredReply(t *testing.T) {
	attempt := 0
	sender := &fakeSender{reply: func(req client.SendRequest) (*models.WireMessage, error) {
		attempt++
		if attempt == 1 {
			return &models.WireMessage{ID: "srv-err", ConversationID: "c-1", Metadata: models.WireMetadata{Role: models.RoleAssistant, Kind: models.KindAssistantError}}, nil
		}
		return nil, errors.New("connection refused")
	}}
	m := newManager(sender, Options{})
	m.SwitchConversation("c-1", nil)

	_ = m.SendMessage(context.Background(), "Summarize", nil)
	before := m.Messages()

	err := m.Retry(context.Background(), "Summarize")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeAssistantFailure))
	assert.Equal(t, before, m.Messages())
}

func TestRetryWithoutErroredTailSendsAgain(t *testing.T) {
	sender := &fakeSender{reply: resolvedReply("c-1", "ok")}
	m := newManager(sender, Options{})
	m.SwitchConversation("c-1", nil)

	require.NoError(t, m.Retry(context.Background(), "Hello"))
	assert.Len(t, m.Messages(), 2)
	assert.Equal(t, 1, sender.count())
}

func TestEmptySendIsRejected(t *testing.T) {
	sender := &fakeSender{reply: resolvedReply("c-1", "unused")}
	m := newManager(sender, Options{})

	err := m.SendMessage(context.Background(), "   ", nil)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))
	assert.Zero(t, sender.count())
	assert.Empty(t, m.Messages())
}

func TestSwitchDiscardsLateReply(t *testing.T) {
	sender := &fakeSender{
		reply:   resolvedReply("c-1", "late"),
		gate:    make(chan struct{}),
		entered: make(chan struct{}, 1),
	}
	pager := &fakePager{}
	m := newManager(sender, Options{Pager: pager})
	m.SwitchConversation("c-1", nil)

	done := make(chan error, 1)
	go func() { done <- m.SendMessage(context.Background(), "Hello", nil) }()
	<-sender.entered

	m.SwitchConversation("c-2", nil)
	close(sender.gate)
	require.NoError(t, <-done)

	assert.Equal(t, "c-2", m.ConversationID())
	assert.Empty(t, m.Messages())
	assert.Equal(t, []string{"c-1", "c-2"}, pager.resets)
}

func TestReplyForAnotherConversationIsDropped(t *testing.T) {
	sender := &fakeSender{reply: func(req client.SendRequest) (*models.WireMessage, error) {
		return &models.WireMessage{
			ID:             "srv-1",
			ConversationID: "other",
			Text:           "wrong thread",
			Metadata:       models.WireMetadata{Role: models.RoleAssistant},
		}, nil
	}}
	m := newManager(sender, Options{})
	m.SwitchConversation("A", nil)

	require.NoError(t, m.SendMessage(context.Background(), "Hello", nil))

	assert.Equal(t, "A", m.ConversationID())
	assert.Empty(t, m.Messages())
}

func TestConcurrentSendsOnFreshConversationKeepOneThread(t *testing.T) {
	var (
		mu     sync.Mutex
		n      int
		textOf = map[string]string{}
	)
	sender := &fakeSender{
		gate:    make(chan struct{}),
		entered: make(chan struct{}, 2),
		reply: func(req client.SendRequest) (*models.WireMessage, error) {
			mu.Lock()
			n++
			conv := fmt.Sprintf("c-%d", n)
			textOf[conv] = req.Text
			mu.Unlock()
			return &models.WireMessage{
				ID:             "srv-" + conv,
				ConversationID: conv,
				Text:           req.Text,
				Metadata:       models.WireMetadata{Role: models.RoleAssistant},
			}, nil
		},
	}
	dir := &fakeDirectory{}
	m := newManager(sender, Options{Directory: dir})

	done := make(chan error, 2)
	go func() { done <- m.SendMessage(context.Background(), "first", nil) }()
	go func() { done <- m.SendMessage(context.Background(), "second", nil) }()
	<-sender.entered
	<-sender.entered
	assert.Len(t, m.Messages(), 4)

	close(sender.gate)
	require.NoError(t, <-done)
	require.NoError(t, <-done)

	active := m.ConversationID()
	require.Contains(t, []string{"c-1", "c-2"}, active)

	msgs := m.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, []models.Kind{models.KindMessage, models.KindAssistant}, kinds(msgs))
	for _, msg := range msgs {
		assert.Equal(t, active, msg.Base().ConversationID)
		assert.Equal(t, textOf[active], msg.Base().Text)
	}
	assert.Equal(t, "srv-"+active, msgs[1].Base().ID)
}

type gatedUploader struct {
	entered chan struct{}
	gate    chan struct{}
}

func (u *gatedUploader) Run(context.Context, []models.Attachment) ([]models.UploadedReference, error) {
	u.entered <- struct{}{}
	<-u.gate
	return nil, apperrors.NewUploadFailure(errors.New("connection reset"))
}

func TestSwitchConversationEmptiesStaging(t *testing.T) {
	m := newManager(&fakeSender{}, Options{})
	require.NoError(t, m.Staging().Add(att("a")))

	m.SwitchConversation("c-1", nil)
	assert.Zero(t, m.Staging().Len())
}

func TestUploadFailureAfterSwitchDoesNotRestore(t *testing.T) {
	up := &gatedUploader{entered: make(chan struct{}, 1), gate: make(chan struct{})}
	sender := &fakeSender{reply: resolvedReply("c-1", "unused")}
	m := newManager(sender, Options{Uploader: up})
	m.SwitchConversation("c-1", nil)

	require.NoError(t, m.Staging().Add(att("a")))
	require.NoError(t, m.Staging().Add(att("b")))

	done := make(chan error, 1)
	go func() { done <- m.SendMessage(context.Background(), "two files", m.Staging().List()) }()
	<-up.entered

	m.SwitchConversation("c-2", nil)
	require.NoError(t, m.Staging().Add(att("c")))
	close(up.gate)

	err := <-done
	assert.True(t, apperrors.HasCode(err, apperrors.CodeUploadFailure))
	assert.Zero(t, sender.count())
	assert.Empty(t, m.Messages())

	staged := m.Staging().List()
	require.Len(t, staged, 1)
	assert.Equal(t, "c", staged[0].ID)
}

func TestLoadOlderPrependsHistory(t *testing.T) {
	older := []models.Message{
		models.UserMessage{Envelope: models.Envelope{ID: "h1", Text: "first"}},
		models.ResolvedAssistant{Envelope: models.Envelope{ID: "h2", Text: "second"}},
	}
	pager := &fakePager{pages: [][]models.Message{older}}
	m := newManager(&fakeSender{reply: resolvedReply("c-1", "unused")}, Options{Pager: pager})
	m.SwitchConversation("c-1", []models.Message{
		models.ResolvedAssistant{Envelope: models.Envelope{ID: "h2", Text: "second"}},
		models.UserMessage{Envelope: models.Envelope{ID: "h3", Text: "third"}},
	})

	loaded, err := m.LoadOlder(context.Background())
	require.NoError(t, err)
	assert.True(t, loaded)

	var got []string
	for _, msg := range m.Messages() {
		got = append(got, msg.Base().ID)
	}
	assert.Equal(t, []string{"h1", "h2", "h3"}, got)

	loaded, err = m.LoadOlder(context.Background())
	require.NoError(t, err)
	assert.False(t, loaded)
}

type fakeFeedback struct {
	got []string
}

func (f *fakeFeedback) Register(_ context.Context, p models.Polarity, conversationID, messageID string) (feedback.Outcome, error) {
	f.got = append(f.got, string(p)+":"+conversationID+":"+messageID)
	return feedback.OutcomeStored, nil
}

func TestRegisterFeedbackDelegates(t *testing.T) {
	fb := &fakeFeedback{}
	m := newManager(&fakeSender{}, Options{Feedback: fb})

	out, err := m.RegisterFeedback(context.Background(), models.ThumbsUp, "c-1", "m-1")
	require.NoError(t, err)
	assert.Equal(t, feedback.OutcomeStored, out)
	assert.Equal(t, []string{"up:c-1:m-1"}, fb.got)
}

func TestCloseTearsDownStaging(t *testing.T) {
	area := staging.New()
	m := newManager(&fakeSender{}, Options{Staging: area})
	require.NoError(t, area.Add(att("a")))

	m.Close()
	assert.ErrorIs(t, area.Add(att("b")), staging.ErrClosed)
}

func TestExchangeTransitions(t *testing.T) {
	ex := NewExchange("Hello", "u", "p")
	assert.Equal(t, StatePending, ex.State())
	require.NoError(t, ex.Resolve())
	assert.True(t, ex.State().Terminal())
	assert.ErrorIs(t, ex.Fail(), ErrInvalidTransition)
	assert.ErrorIs(t, ex.Limit(), ErrInvalidTransition)
	assert.Equal(t, StateResolved, ex.State())

	assert.Equal(t, StateLimited, Classify(&client.StatusError{StatusCode: 429}, 429))
	assert.Equal(t, StateErrored, Classify(&client.StatusError{StatusCode: 500}, 429))
	assert.Equal(t, StateErrored, Classify(errors.New("eof"), 429))
	assert.Equal(t, StateResolved, Classify(nil, 429))
}
