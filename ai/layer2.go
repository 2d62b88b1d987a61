package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"ai-productivity-app/assistant/conversation/models"
	"ai-productivity-app/assistant/pkg/logger"
)

// Layer2Responder calls the two-stage LLM service: LLM1 builds a context for the
// conversation, LLM2 answers the prompt inside it
type Layer2Responder struct {
	client  *http.Client
	baseURL string
	apiKey  string
	log     *logger.Logger
}

// NewLayer2Responder creates a responder for the service at baseURL
func NewLayer2Responder(baseURL, apiKey string, timeout time.Duration, log *logger.Logger) *Layer2Responder {
	if baseURL == "" {
		baseURL = "http://localhost:5000"
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Layer2Responder{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		log:     log.WithComponent("layer2"),
	}
}

// ContextRequest is the LLM1 request body
type ContextRequest struct {
	UserInput      string         `json:"user_input"`
	SessionID      string         `json:"session_id,omitempty"`
	SessionDetails map[string]any `json:"session_details,omitempty"`
}

// ContextResponse is the LLM1 response body
type ContextResponse struct {
	Context string         `json:"context"`
	Rules   map[string]any `json:"rules"`
}

// HistoryTurn is one prior exchange sent to LLM2
type HistoryTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ResponseRequest is the LLM2 request body
type ResponseRequest struct {
	UserID  string        `json:"user_id"`
	Context string        `json:"context"`
	Message string        `json:"message"`
	History []HistoryTurn `json:"history"`
}

// ResponseResponse is the LLM2 response body
type ResponseResponse struct {
	Response  string            `json:"response"`
	Citations []models.Citation `json:"citations,omitempty"`
	Error     string            `json:"error,omitempty"`
}

// Respond implements the responder contract
func (c *Layer2Responder) Respond(ctx context.Context, req Request) (Reply, error) {
	details := map[string]any{}
	if len(req.Attachments) > 0 {
		files := make([]string, 0, len(req.Attachments))
		for _, a := range req.Attachments {
			files = append(files, a.OriginalFilename)
		}
		details["attachments"] = files
	}

	cr, err := c.GenerateContext(ctx, ContextRequest{
		UserInput:      req.Prompt,
		SessionID:      req.ConversationID,
		SessionDetails: details,
	})
	if err != nil {
		return Reply{}, err
	}

	history := make([]HistoryTurn, 0, len(req.History))
	for _, m := range req.History {
		role := "assistant"
		if m.Metadata.Role == models.RoleUser {
			role = "user"
		}
		history = append(history, HistoryTurn{Role: role, Content: m.Text})
	}

	rr, err := c.GenerateResponse(ctx, ResponseRequest{
		UserID:  req.UserID,
		Context: cr.Context,
		Message: req.Prompt,
		History: history,
	})
	if err != nil {
		return Reply{}, err
	}
	return Reply{Text: rr.Response, Citations: rr.Citations}, nil
}

// GenerateContext calls LLM1
func (c *Layer2Responder) GenerateContext(ctx context.Context, req ContextRequest) (ContextResponse, error) {
	if req.UserInput == "" {
		return ContextResponse{}, errors.New("missing user_input")
	}
	var resp ContextResponse
	if err := c.post(ctx, "/llm1/generate-context", req, &resp); err != nil {
		return ContextResponse{}, fmt.Errorf("llm1: %w", err)
	}
	if resp.Context == "" || resp.Context == "fallback-context" {
		return resp, errors.New("llm1 failed to generate context")
	}
	return resp, nil
}

// GenerateResponse calls LLM2
func (c *Layer2Responder) GenerateResponse(ctx context.Context, req ResponseRequest) (ResponseResponse, error) {
	if req.Context == "" || req.Message == "" {
		return ResponseResponse{}, errors.New("missing context or message")
	}
	var resp ResponseResponse
	if err := c.post(ctx, "/llm2/generate-response", req, &resp); err != nil {
		return ResponseResponse{}, fmt.Errorf("llm2: %w", err)
	}
	if resp.Error != "" {
		return resp, errors.New(resp.Error)
	}
	return resp, nil
}

// Ping checks the service health endpoint
func (c *Layer2Responder) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("health returned status %d", resp.StatusCode)
	}
	return nil
}

func (c *Layer2Responder) post(ctx context.Context, path string, in, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		c.log.Warn("upstream request failed", "path", path, "error", err.Error())
		return err
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, 1<<20))
	if err != nil {
		return err
	}
	c.log.Debug("upstream request completed", "path", path, "status", httpResp.StatusCode, "latency_ms", time.Since(start).Milliseconds())

	if httpResp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d: %s", httpResp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
