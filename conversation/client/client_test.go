package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"ai-productivity-app/assistant/conversation/models"
	"ai-productivity-app/assistant/pkg/resilience"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Options{
		BaseURL: srv.URL + "/",
		Tokens:  StaticToken("secret"),
		Timeout: time.Second,
	})
}

func TestSendMessage(t *testing.T) {
	var got SendRequest
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/conversations/message", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(models.WireMessage{
			ID:             "m-2",
			ConversationID: "c-1",
			Text:           "Hi there",
			Metadata:       models.WireMetadata{Role: models.RoleAssistant, Kind: models.KindAssistant},
		})
	}))

	reply, err := c.SendMessage(context.Background(), SendRequest{Text: "Hello"})
	require.NoError(t, err)
	assert.Equal(t, "Hello", got.Text)
	assert.Empty(t, got.ConversationID)
	assert.Equal(t, "c-1", reply.ConversationID)
	assert.Equal(t, "Hi there", reply.Text)
}

func TestListMessagesQuery(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/conversations/c 1/messages", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		assert.Equal(t, "10", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`{"items":[{"id":"a","conversationId":"c 1","text":"x","metadata":{"role":"USER"}}],"hasMore":true}`))
	}))

	page, err := c.ListMessages(context.Background(), "c 1", 2, 10)
	require.NoError(t, err)
	assert.True(t, page.HasMore)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "a", page.Items[0].ID)
}

func TestStatusErrorCarriesCode(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "limit reached", http.StatusTooManyRequests)
	}))

	_, err := c.SendMessage(context.Background(), SendRequest{Text: "Hello"})
	require.Error(t, err)

	code, ok := StatusCode(err)
	assert.True(t, ok)
	assert.Equal(t, http.StatusTooManyRequests, code)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "limit reached", se.Body)
}

func TestMalformedBodyIsError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":`))
	}))

	_, err := c.SendMessage(context.Background(), SendRequest{Text: "Hello"})
	require.Error(t, err)
	_, isStatus := StatusCode(err)
	assert.False(t, isStatus)
}

func TestBreakerIgnoresClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Query().Get("search") == "boom" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	cfg := resilience.DefaultCircuitBreakerConfig("test")
	cfg.FailureThreshold = 2
	c := New(Options{BaseURL: srv.URL, Breaker: resilience.NewCircuitBreaker(cfg, nil)})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := c.ListConversations(ctx, 1, 10, "")
		code, _ := StatusCode(err)
		assert.Equal(t, http.StatusNotFound, code)
	}

	for i := 0; i < 2; i++ {
		_, err := c.ListConversations(ctx, 1, 10, "boom")
		code, _ := StatusCode(err)
		assert.Equal(t, http.StatusBadGateway, code)
	}

	_, err := c.ListConversations(ctx, 1, 10, "")
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, int32(5), calls.Load())
}

func TestDownloadConversation(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ExportRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, models.ExportPDF, req.Type)
		_, _ = w.Write([]byte("document-bytes"))
	}))

	var buf bytes.Buffer
	n, err := c.DownloadConversation(context.Background(), "c-1", ExportRequest{Name: "notes", Type: models.ExportPDF}, &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(len("document-bytes")), n)
	assert.Equal(t, "document-bytes", buf.String())
}

func TestDownloadRelativeURL(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/files/abc", r.URL.Path)
		_, _ = w.Write([]byte("payload"))
	}))

	var buf bytes.Buffer
	require.NoError(t, c.Download(context.Background(), "files/abc", &buf))
	assert.Equal(t, "payload", buf.String())
}

func TestDownloadFromForeignHostIsAnonymous(t *testing.T) {
	var auth atomic.Value
	cdn := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth.Store(r.Header.Get("Authorization"))
		if r.URL.Query().Get("fail") != "" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("object-bytes"))
	}))
	defer cdn.Close()

	var apiAuth atomic.Value
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiAuth.Store(r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items":[],"hasMore":false}`))
	}))
	defer api.Close()

	cfg := resilience.DefaultCircuitBreakerConfig("api")
	cfg.FailureThreshold = 1
	apiBreaker := resilience.NewCircuitBreaker(cfg, nil)
	c := New(Options{
		BaseURL: api.URL,
		Tokens:  StaticToken("secret-api-token"),
		Breaker: apiBreaker,
	})
	ctx := context.Background()

	var buf bytes.Buffer
	require.NoError(t, c.Download(ctx, cdn.URL+"/bucket/obj.png?X-Goog-Signature=abc", &buf))
	assert.Equal(t, "object-bytes", buf.String())
	assert.Equal(t, "", auth.Load())

	for i := 0; i < 2; i++ {
		assert.Error(t, c.Download(ctx, cdn.URL+"/bucket/obj.png?fail=1", io.Discard))
	}
	assert.Equal(t, resilience.StateClosed, apiBreaker.GetState())

	_, err := c.ListConversations(ctx, 1, 10, "")
	require.NoError(t, err)
	assert.Equal(t, "Bearer secret-api-token", apiAuth.Load())
}

func TestDownloadFromAPIHostIsAuthorized(t *testing.T) {
	var auth atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth.Store(r.Header.Get("Authorization"))
		_, _ = w.Write([]byte("payload"))
	}))
	defer srv.Close()

	c := New(Options{BaseURL: srv.URL, Tokens: StaticToken("secret")})
	var buf bytes.Buffer
	require.NoError(t, c.Download(context.Background(), srv.URL+"/files/u1/abc.png", &buf))
	assert.Equal(t, "Bearer secret", auth.Load())
}

type fakeLister struct {
	pages map[string]*ConversationPage
	err   error
	calls int
}

func (f *fakeLister) ListConversations(_ context.Context, _, _ int, search string) (*ConversationPage, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.pages[search], nil
}

func TestDirectoryRefreshKeepsListOnError(t *testing.T) {
	title := "Trip"
	lister := &fakeLister{pages: map[string]*ConversationPage{
		"":     {Items: []models.Conversation{{ID: "c-1", Title: &title}}, HasMore: true},
		"trip": {Items: []models.Conversation{{ID: "c-1", Title: &title}}},
	}}
	dir := NewDirectory(lister, 0)

	require.NoError(t, dir.Refresh(context.Background()))
	assert.Len(t, dir.Conversations(), 1)
	assert.True(t, dir.HasMore())

	lister.err = errors.New("offline")
	assert.Error(t, dir.Refresh(context.Background()))
	assert.Len(t, dir.Conversations(), 1)

	lister.err = nil
	found, err := dir.Search(context.Background(), " trip ")
	require.NoError(t, err)
	assert.Len(t, found, 1)

	before := lister.calls
	_, err = dir.Search(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, before, lister.calls)
}
