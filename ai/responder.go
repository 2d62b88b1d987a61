package ai

import (
	"context"
	"fmt"
	"strings"

	"ai-productivity-app/assistant/conversation/models"
)

// Request is everything a responder sees for one prompt
type Request struct {
	UserID         string
	ConversationID string
	Prompt         string
	// History is chronological and excludes Prompt
	History     []models.WireMessage
	Attachments []models.UploadedReference
}

// Reply is a generated assistant answer
type Reply struct {
	Text      string
	Citations []models.Citation
}

// Echo answers by repeating the prompt. It needs no upstream service.
type Echo struct{}

// Respond implements the responder contract
func (Echo) Respond(_ context.Context, req Request) (Reply, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "You said: %s", req.Prompt)
	if len(req.Attachments) > 0 {
		names := make([]string, 0, len(req.Attachments))
		for _, a := range req.Attachments {
			names = append(names, a.OriginalFilename)
		}
		fmt.Fprintf(&b, "\nAttached: %s", strings.Join(names, ", "))
	}
	return Reply{Text: b.String()}, nil
}
