package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role identifies who authored a message
type Role string

const (
	RoleUser      Role = "USER"
	RoleAssistant Role = "ASSISTANT"
)

// Kind is the wire discriminant of a message
type Kind string

const (
	KindMessage        Kind = "message"
	KindAssistant      Kind = "assistant"
	KindAssistantError Kind = "assistant-error"
	KindAssistantLimit Kind = "assistant-limit"
)

// TempIDPrefix marks ids generated on the client before the server assigns one
const TempIDPrefix = "tmp-"

// NewTempID returns a client-side message id
func NewTempID() string {
	return TempIDPrefix + uuid.NewString()
}

// IsTempID reports whether id was generated by NewTempID
func IsTempID(id string) bool {
	return strings.HasPrefix(id, TempIDPrefix)
}

// Citation is a source the assistant referenced in a reply
type Citation struct {
	Title   string `json:"title,omitempty"`
	URL     string `json:"url,omitempty"`
	Snippet string `json:"snippet,omitempty"`
}

// Envelope holds the fields every message variant shares
type Envelope struct {
	ID             string
	ConversationID string
	Text           string
	Attachments    []Attachment
	CreatedAt      time.Time
}

// Message is a closed set of variants: UserMessage, PendingAssistant, ResolvedAssistant,
// ErroredAssistant and LimitedAssistant. Code that branches on a message must use a type
// switch over all five.
type Message interface {
	Base() Envelope
	Role() Role
	Kind() Kind
	sealed()
}

// UserMessage is a prompt typed by the user
type UserMessage struct{ Envelope }

// PendingAssistant is the placeholder shown while a reply is outstanding
type PendingAssistant struct{ Envelope }

// ResolvedAssistant is a well-formed assistant reply
type ResolvedAssistant struct {
	Envelope
	Citations []Citation
}

// ErroredAssistant is a failed reply; Prompt is resubmitted on retry
type ErroredAssistant struct {
	Envelope
	Prompt string
}

// LimitedAssistant is the fixed reply shown once the quota is exhausted
type LimitedAssistant struct{ Envelope }

func (m UserMessage) Base() Envelope       { return m.Envelope }
func (m PendingAssistant) Base() Envelope  { return m.Envelope }
func (m ResolvedAssistant) Base() Envelope { return m.Envelope }
func (m ErroredAssistant) Base() Envelope  { return m.Envelope }
func (m LimitedAssistant) Base() Envelope  { return m.Envelope }

func (UserMessage) Role() Role       { return RoleUser }
func (PendingAssistant) Role() Role  { return RoleAssistant }
func (ResolvedAssistant) Role() Role { return RoleAssistant }
func (ErroredAssistant) Role() Role  { return RoleAssistant }
func (LimitedAssistant) Role() Role  { return RoleAssistant }

func (UserMessage) Kind() Kind       { return KindMessage }
func (PendingAssistant) Kind() Kind  { return KindAssistant }
func (ResolvedAssistant) Kind() Kind { return KindAssistant }
func (ErroredAssistant) Kind() Kind  { return KindAssistantError }
func (LimitedAssistant) Kind() Kind  { return KindAssistantLimit }

func (UserMessage) sealed()       {}
func (PendingAssistant) sealed()  {}
func (ResolvedAssistant) sealed() {}
func (ErroredAssistant) sealed()  {}
func (LimitedAssistant) sealed()  {}

// WireMetadata is the metadata block of a wire message
type WireMetadata struct {
	Role      Role       `json:"role"`
	Kind      Kind       `json:"kind,omitempty"`
	Citations []Citation `json:"citations,omitempty"`
}

// WireMessage is the JSON shape exchanged with the conversation API
type WireMessage struct {
	ID             string       `json:"id"`
	ConversationID string       `json:"conversationId"`
	Text           string       `json:"text"`
	Metadata       WireMetadata `json:"metadata"`
	Attachments    []Attachment `json:"attachments,omitempty"`
	CreatedAt      time.Time    `json:"createdAt"`
}

// Decode converts a wire message into its variant. A missing kind is inferred from the role.
func Decode(w WireMessage) (Message, error) {
	env := Envelope{
		ID:             w.ID,
		ConversationID: w.ConversationID,
		Text:           w.Text,
		Attachments:    w.Attachments,
		CreatedAt:      w.CreatedAt,
	}

	kind := w.Metadata.Kind
	if kind == "" {
		switch w.Metadata.Role {
		case RoleUser:
			kind = KindMessage
		case RoleAssistant:
			kind = KindAssistant
		default:
			return nil, fmt.Errorf("message %s: unknown role %q", w.ID, w.Metadata.Role)
		}
	}

	switch kind {
	case KindMessage:
		return UserMessage{Envelope: env}, nil
	case KindAssistant:
		return ResolvedAssistant{Envelope: env, Citations: w.Metadata.Citations}, nil
	case KindAssistantError:
		return ErroredAssistant{Envelope: env}, nil
	case KindAssistantLimit:
		return LimitedAssistant{Envelope: env}, nil
	default:
		return nil, fmt.Errorf("message %s: unknown kind %q", w.ID, kind)
	}
}

// DecodeAll decodes a page of wire messages, failing on the first malformed one
func DecodeAll(ws []WireMessage) ([]Message, error) {
	out := make([]Message, 0, len(ws))
	for _, w := range ws {
		m, err := Decode(w)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// Encode converts a variant back to its wire form
func Encode(m Message) WireMessage {
	env := m.Base()
	w := WireMessage{
		ID:             env.ID,
		ConversationID: env.ConversationID,
		Text:           env.Text,
		Attachments:    env.Attachments,
		CreatedAt:      env.CreatedAt,
		Metadata:       WireMetadata{Role: m.Role(), Kind: m.Kind()},
	}
	switch v := m.(type) {
	case ResolvedAssistant:
		w.Metadata.Citations = v.Citations
	case UserMessage, PendingAssistant, ErroredAssistant, LimitedAssistant:
	}
	return w
}
