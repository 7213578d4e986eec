// Package flow runs multi-step wizards against the per-user session store.
package flow

import (
	"context"
	"strings"

	"github.com/ibrohim2505/prokinobot/internal/messenger"
	"github.com/ibrohim2505/prokinobot/internal/session"
)

// Event is one user input delivered to the active flow.
type Event struct {
	UserID int64
	ChatID int64
	From   messenger.User

	// Text is the message text, or the caption of a media message.
	Text  string
	Media *messenger.Media

	// Action is the callback data addressed to the flow, e.g. "broadcast_send".
	Action string
	// Message is the message the callback button belongs to.
	Message messenger.MessageRef

	ForwardedUser *messenger.User
	ForwardedChat *messenger.ChatInfo
}

// TrimmedText returns the text with surrounding whitespace removed.
func (e Event) TrimmedText() string {
	return strings.TrimSpace(e.Text)
}

// Transition is what a step function decided.
type Transition struct {
	// Fields replaces the session fields; nil keeps the current ones.
	Fields session.Fields
	// Step is the next step index. Ignored when Done.
	Step int
	// Done clears the session.
	Done    bool
	Replies []messenger.Payload
}

// Definition is one flow kind.
type Definition interface {
	Kind() session.Kind
	// Capability returns the capability required on every step, or "" for user flows.
	Capability() string
	// Begin validates the start and returns the initial fields and first prompt.
	Begin(ctx context.Context, userID int64, initial session.Fields) (session.Fields, []messenger.Payload, error)
	// Step consumes one event. A Validation or Conflict error re-prompts with its message
	// and leaves the session untouched.
	Step(ctx context.Context, s session.FlowSession, ev Event) (Transition, error)
}

// ScopedDefinition is implemented by flows whose required capability depends on the
// session fields. CapabilityFor replaces Capability when present.
type ScopedDefinition interface {
	Definition
	CapabilityFor(fields session.Fields) string
}

// Status is the result class of a dispatched event.
type Status int

const (
	// StatusNoSession means no flow was active; the event was not consumed.
	StatusNoSession Status = iota
	// StatusRejected means the input was invalid; the session is unchanged.
	StatusRejected
	// StatusAdvanced means the session moved to another step.
	StatusAdvanced
	// StatusCompleted means the flow finalized and the session was cleared.
	StatusCompleted
	// StatusAborted means the flow was ended because the user lost the capability.
	StatusAborted
	// StatusStarted means a new session was created.
	StatusStarted
)

func (s Status) String() string {
	switch s {
	case StatusNoSession:
		return "no_session"
	case StatusRejected:
		return "rejected"
	case StatusAdvanced:
		return "advanced"
	case StatusCompleted:
		return "completed"
	case StatusAborted:
		return "aborted"
	case StatusStarted:
		return "started"
	default:
		return "unknown"
	}
}

// Outcome reports how the engine handled an event.
type Outcome struct {
	Status  Status
	Kind    session.Kind
	Step    int
	Replies []messenger.Payload
	// Err is the classified error behind a rejected or aborted outcome.
	Err error
}
