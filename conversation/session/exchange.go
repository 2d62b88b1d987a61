package session

import (
	"errors"
	"fmt"

	"ai-productivity-app/assistant/conversation/client"
)

// State is the lifecycle position of one assistant reply
type State string

const (
	StatePending  State = "pending"
	StateResolved State = "resolved"
	StateErrored  State = "errored"
	StateLimited  State = "limited"
)

// Terminal reports whether no further transition is allowed from s
func (s State) Terminal() bool {
	return s == StateResolved || s == StateErrored || s == StateLimited
}

// ErrInvalidTransition is returned when an exchange is moved out of a terminal state
var ErrInvalidTransition = errors.New("invalid exchange transition")

// Exchange is one prompt and the reply it is waiting for. A retry creates a new Exchange.
type Exchange struct {
	Prompt        string
	UserID        string
	PlaceholderID string
	state         State
}

// NewExchange starts an exchange in the pending state
func NewExchange(prompt, userID, placeholderID string) *Exchange {
	return &Exchange{
		Prompt:        prompt,
		UserID:        userID,
		PlaceholderID: placeholderID,
		state:         StatePending,
	}
}

// State returns the current state
func (e *Exchange) State() State {
	return e.state
}

// Resolve moves a pending exchange to resolved
func (e *Exchange) Resolve() error { return e.transition(StateResolved) }

// Fail moves a pending exchange to errored
func (e *Exchange) Fail() error { return e.transition(StateErrored) }

// Limit moves a pending exchange to limited
func (e *Exchange) Limit() error { return e.transition(StateLimited) }

func (e *Exchange) transition(to State) error {
	if e.state != StatePending {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, e.state, to)
	}
	e.state = to
	return nil
}

// Classify maps a send error to the terminal state it causes. Only the configured quota
// status is treated as limited; the response body is not consulted.
func Classify(err error, quotaStatus int) State {
	if err == nil {
		return StateResolved
	}
	if code, ok := client.StatusCode(err); ok && code == quotaStatus {
		return StateLimited
	}
	return StateErrored
}
