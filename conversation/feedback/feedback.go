// Package feedback records thumbs-up/down reactions to assistant answers. A message carries
// at most one polarity.
package feedback

import (
	"context"
	"errors"
	"fmt"

	"ai-productivity-app/assistant/conversation/client"
	"ai-productivity-app/assistant/conversation/models"
	"ai-productivity-app/assistant/pkg/logger"
)

var (
	// ErrOppositePolarity is returned when the message already carries the other polarity
	ErrOppositePolarity = errors.New("message already has the opposite feedback")
	// ErrInvalidPolarity is returned for anything but up or down
	ErrInvalidPolarity = errors.New("invalid feedback polarity")
)

// Outcome describes what Register did with a reaction
type Outcome string

const (
	// OutcomeStored means the reaction was recorded
	OutcomeStored Outcome = "stored"
	// OutcomeReportRequested means a thumbs-down was handed to the report flow
	OutcomeReportRequested Outcome = "report_requested"
	// OutcomeUnchanged means the same reaction was already recorded
	OutcomeUnchanged Outcome = "unchanged"
)

// Store holds the (conversation, message) pairs per polarity
type Store interface {
	Has(ctx context.Context, p models.Polarity, conversationID, messageID string) (bool, error)
	Add(ctx context.Context, p models.Polarity, conversationID, messageID string) error
}

// ReportFlow collects a report from the user for a thumbs-down. It is owned by the UI and
// eventually calls Register.SubmitReport.
type ReportFlow interface {
	OpenReport(ctx context.Context, conversationID, messageID string) error
}

// Reporter posts a finished report to the API
type Reporter interface {
	ReportMessage(ctx context.Context, conversationID, messageID string, req client.ReportRequest) error
}

// Register applies the feedback rules
type Register struct {
	store    Store
	flow     ReportFlow
	reporter Reporter
	log      *logger.Logger
}

// NewRegister creates a Register
func NewRegister(store Store, flow ReportFlow, reporter Reporter, log *logger.Logger) *Register {
	if log == nil {
		log = logger.Nop()
	}
	return &Register{
		store:    store,
		flow:     flow,
		reporter: reporter,
		log:      log.WithComponent("feedback"),
	}
}

// Register records a thumbs-up immediately. A thumbs-down is never stored here; it opens
// the report flow instead. Either is rejected when the other polarity is present.
func (r *Register) Register(ctx context.Context, p models.Polarity, conversationID, messageID string) (Outcome, error) {
	if !p.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidPolarity, p)
	}
	if conversationID == "" || messageID == "" {
		return "", errors.New("conversation id and message id are required")
	}

	opposite, err := r.store.Has(ctx, p.Opposite(), conversationID, messageID)
	if err != nil {
		return "", err
	}
	if opposite {
		return "", ErrOppositePolarity
	}

	same, err := r.store.Has(ctx, p, conversationID, messageID)
	if err != nil {
		return "", err
	}
	if same {
		return OutcomeUnchanged, nil
	}

	if p == models.ThumbsDown {
		if r.flow == nil {
			return "", errors.New("no report flow configured")
		}
		if err := r.flow.OpenReport(ctx, conversationID, messageID); err != nil {
			return "", err
		}
		return OutcomeReportRequested, nil
	}

	if err := r.store.Add(ctx, models.ThumbsUp, conversationID, messageID); err != nil {
		return "", err
	}
	r.log.Debug("feedback stored", "conversation_id", conversationID, "message_id", messageID, "polarity", string(p))
	return OutcomeStored, nil
}

// SubmitReport posts the report collected by the report flow and then records the
// thumbs-down
func (r *Register) SubmitReport(ctx context.Context, conversationID, messageID, reason, feedback string) error {
	up, err := r.store.Has(ctx, models.ThumbsUp, conversationID, messageID)
	if err != nil {
		return err
	}
	if up {
		return ErrOppositePolarity
	}

	if err := r.reporter.ReportMessage(ctx, conversationID, messageID, client.ReportRequest{Reason: reason, Feedback: feedback}); err != nil {
		r.log.LogError(err, "report submission failed", "conversation_id", conversationID, "message_id", messageID)
		return err
	}
	return r.store.Add(ctx, models.ThumbsDown, conversationID, messageID)
}

// Polarity returns the recorded polarity of a message, if any
func (r *Register) Polarity(ctx context.Context, conversationID, messageID string) (models.Polarity, bool, error) {
	for _, p := range []models.Polarity{models.ThumbsUp, models.ThumbsDown} {
		ok, err := r.store.Has(ctx, p, conversationID, messageID)
		if err != nil {
			return "", false, err
		}
		if ok {
			return p, true, nil
		}
	}
	return "", false, nil
}
