package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"ai-productivity-app/assistant/conversation/models"
	"ai-productivity-app/assistant/pkg/logger"
	"ai-productivity-app/assistant/pkg/resilience"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const maxErrorBody = 4 << 10

// TokenSource supplies the bearer token for API calls. Token storage itself lives outside
// this module.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a fixed bearer token
type StaticToken string

// Token implements TokenSource
func (t StaticToken) Token(context.Context) (string, error) {
	return string(t), nil
}

// StatusError is returned for any non-2xx response
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// StatusCode extracts the HTTP status from err's chain
func StatusCode(err error) (int, bool) {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode, true
	}
	return 0, false
}

// Options configures a Client
type Options struct {
	BaseURL         string
	Timeout         time.Duration
	SendTimeout     time.Duration
	UploadTimeout   time.Duration
	Tokens          TokenSource
	HTTPClient      *http.Client
	Breaker         *resilience.CircuitBreaker
	// DownloadBreaker guards attachment downloads from hosts other than BaseURL
	DownloadBreaker *resilience.CircuitBreaker
	Log             *logger.Logger
}

// Client talks to the remote conversation API
type Client struct {
	baseURL       string
	httpClient    *http.Client
	timeout       time.Duration
	sendTimeout   time.Duration
	uploadTimeout time.Duration
	tokens        TokenSource
	breaker       *resilience.CircuitBreaker
	downloads     *resilience.CircuitBreaker
	log           *logger.Logger
	tracer        trace.Tracer
}

// New creates a Client. Timeouts are applied per call through the context, so the
// underlying http.Client should not set its own.
func New(opts Options) *Client {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.Log == nil {
		opts.Log = logger.Nop()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 3 * time.Minute
	}
	if opts.UploadTimeout <= 0 {
		opts.UploadTimeout = 10 * time.Minute
	}
	if opts.Breaker == nil {
		opts.Breaker = resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig("conversation-api"), opts.Log)
	}
	if opts.DownloadBreaker == nil {
		opts.DownloadBreaker = resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig("attachment-downloads"), opts.Log)
	}
	return &Client{
		baseURL:       strings.TrimRight(opts.BaseURL, "/"),
		httpClient:    opts.HTTPClient,
		timeout:       opts.Timeout,
		sendTimeout:   opts.SendTimeout,
		uploadTimeout: opts.UploadTimeout,
		tokens:        opts.Tokens,
		breaker:       opts.Breaker,
		downloads:     opts.DownloadBreaker,
		log:           opts.Log.WithComponent("conversation-client"),
		tracer:        otel.Tracer("ai-productivity-app/assistant/conversation/client"),
	}
}

// SendRequest is the body of POST /conversations/message
type SendRequest struct {
	Text                string                     `json:"text"`
	ConversationID      string                     `json:"conversationId,omitempty"`
	UploadedAttachments []models.UploadedReference `json:"uploadedAttachments,omitempty"`
	AppContext          map[string]any             `json:"appContext,omitempty"`
}

// ConversationPage is one page of GET /conversations
type ConversationPage struct {
	Items   []models.Conversation `json:"items"`
	HasMore bool                  `json:"hasMore"`
}

// MessagePage is one page of GET /conversations/{id}/messages
type MessagePage struct {
	Items   []models.WireMessage `json:"items"`
	HasMore bool                 `json:"hasMore"`
}

// ReportRequest is the body of the message report call
type ReportRequest struct {
	Reason   string `json:"reason,omitempty"`
	Feedback string `json:"feedback,omitempty"`
}

// ExportRequest is the body of the conversation download call. An empty MessageID exports
// the whole conversation.
type ExportRequest struct {
	Name      string            `json:"name"`
	Type      models.ExportType `json:"type"`
	MessageID string            `json:"messageId,omitempty"`
}

// SendMessage posts a prompt and waits for the assistant reply under the send timeout
func (c *Client) SendMessage(ctx context.Context, req SendRequest) (*models.WireMessage, error) {
	var out models.WireMessage
	if err := c.doJSON(ctx, c.sendTimeout, http.MethodPost, "/conversations/message", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListConversations fetches one page of the user's conversations
func (c *Client) ListConversations(ctx context.Context, page, limit int, search string) (*ConversationPage, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))
	if search != "" {
		q.Set("search", search)
	}

	var out ConversationPage
	if err := c.doJSON(ctx, c.timeout, http.MethodGet, "/conversations", q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListMessages fetches one page of a conversation's history; page 1 is the most recent
func (c *Client) ListMessages(ctx context.Context, conversationID string, page, limit int) (*MessagePage, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))

	var out MessagePage
	path := "/conversations/" + url.PathEscape(conversationID) + "/messages"
	if err := c.doJSON(ctx, c.timeout, http.MethodGet, path, q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ReportMessage files a report against one assistant answer
func (c *Client) ReportMessage(ctx context.Context, conversationID, messageID string, req ReportRequest) error {
	path := "/conversations/" + url.PathEscape(conversationID) + "/messages/" + url.PathEscape(messageID) + "/report"
	return c.doJSON(ctx, c.timeout, http.MethodPost, path, nil, req, nil)
}

// DownloadConversation streams an exported document into w and returns the bytes written
func (c *Client) DownloadConversation(ctx context.Context, conversationID string, req ExportRequest, w io.Writer) (int64, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return 0, err
	}
	path := "/conversations/" + url.PathEscape(conversationID) + "/download"

	var n int64
	err = c.do(ctx, c.sendTimeout, http.MethodPost, c.baseURL+path, path, bytes.NewReader(body), "application/json", func(resp *http.Response) error {
		var copyErr error
		n, copyErr = io.Copy(w, resp.Body)
		return copyErr
	})
	return n, err
}

// Upload posts a prepared multipart body under the upload timeout and decodes the JSON reply
func (c *Client) Upload(ctx context.Context, endpoint string, contentType string, body io.Reader, out any) error {
	path := endpoint
	if u, err := url.Parse(endpoint); err == nil && u.Path != "" {
		path = u.Path
	}
	return c.do(ctx, c.uploadTimeout, http.MethodPost, c.resolve(endpoint), path, body, contentType, decodeInto(out))
}

// Download fetches an absolute or API-relative URL into w. The bearer token and the API
// breaker are used only when the URL points at the API host; other hosts get an anonymous
// request through the download breaker.
func (c *Client) Download(ctx context.Context, rawURL string, w io.Writer) error {
	path := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		path = u.Path
	}
	full := c.resolve(rawURL)
	copyBody := func(resp *http.Response) error {
		_, err := io.Copy(w, resp.Body)
		return err
	}
	if c.sameHost(full) {
		return c.do(ctx, c.uploadTimeout, http.MethodGet, full, path, nil, "", copyBody)
	}
	return c.send(ctx, c.downloads, false, c.uploadTimeout, http.MethodGet, full, path, nil, "", copyBody)
}

// sameHost reports whether fullURL has the scheme and host of the API base URL
func (c *Client) sameHost(fullURL string) bool {
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return false
	}
	target, err := url.Parse(fullURL)
	if err != nil {
		return false
	}
	return strings.EqualFold(base.Scheme, target.Scheme) && strings.EqualFold(base.Host, target.Host)
}

func (c *Client) resolve(rawURL string) string {
	if strings.HasPrefix(rawURL, "http://") || strings.HasPrefix(rawURL, "https://") {
		return rawURL
	}
	return c.baseURL + "/" + strings.TrimLeft(rawURL, "/")
}

func (c *Client) doJSON(ctx context.Context, timeout time.Duration, method, path string, query url.Values, in any, out any) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s: %w", path, err)
		}
		body = bytes.NewReader(buf)
		contentType = "application/json"
	}

	full := c.baseURL + path
	if len(query) > 0 {
		full += "?" + query.Encode()
	}
	return c.do(ctx, timeout, method, full, path, body, contentType, decodeInto(out))
}

func decodeInto(out any) func(*http.Response) error {
	return func(resp *http.Response) error {
		if out == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
}

// do runs one request through the breaker. Transport errors and 5xx responses count as
// breaker failures; other non-2xx statuses are returned as *StatusError without tripping it.
func (c *Client) do(ctx context.Context, timeout time.Duration, method, fullURL, route string, body io.Reader, contentType string, handle func(*http.Response) error) error {
	return c.send(ctx, c.breaker, true, timeout, method, fullURL, route, body, contentType, handle)
}

func (c *Client) send(ctx context.Context, breaker *resilience.CircuitBreaker, authorize bool, timeout time.Duration, method, fullURL, route string, body io.Reader, contentType string, handle func(*http.Response) error) error {
	ctx, span := c.tracer.Start(ctx, method+" "+route, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("http.request.method", method),
		attribute.String("url.path", route),
	)

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, fullURL, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if authorize && c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return fmt.Errorf("load api token: %w", err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	var resp *http.Response
	err = breaker.Execute(func() error {
		r, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		if r.StatusCode >= http.StatusInternalServerError {
			defer r.Body.Close()
			return statusError(method, route, r)
		}
		resp = r
		return nil
	})
	if err != nil {
		c.fail(span, err)
		c.log.Warn("api request failed", "method", method, "path", route, "error", err.Error())
		return err
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := statusError(method, route, resp)
		c.fail(span, err)
		return err
	}

	if err := handle(resp); err != nil {
		c.fail(span, err)
		return err
	}
	return nil
}

func (c *Client) fail(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func statusError(method, route string, resp *http.Response) *StatusError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{
		Method:     method,
		Path:       route,
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(body)),
	}
}
