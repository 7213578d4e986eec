// Package messenger is the chat transport: outbound calls the bot makes and the
// inbound updates it receives.
package messenger

import (
	"context"
	"strconv"
)

// ContentKind is the kind of media a message carries.
type ContentKind string

const (
	KindText     ContentKind = "text"
	KindPhoto    ContentKind = "photo"
	KindVideo    ContentKind = "video"
	KindDocument ContentKind = "document"
	KindAudio    ContentKind = "audio"
)

// Button is one inline keyboard button. Exactly one of URL and CallbackData is set.
type Button struct {
	Text         string
	URL          string
	CallbackData string
}

// Keyboard is an inline keyboard, one slice per row.
type Keyboard [][]Button

// Rows returns the keyboard with empty rows dropped.
func (k Keyboard) Rows() Keyboard {
	out := make(Keyboard, 0, len(k))
	for _, row := range k {
		if len(row) > 0 {
			out = append(out, row)
		}
	}
	return out
}

// Payload is an outbound message. For media kinds Text is the caption.
type Payload struct {
	Kind      ContentKind
	FileID    string
	Text      string
	Keyboard  Keyboard
	ParseMode string
}

// TextPayload builds an HTML text message.
func TextPayload(text string, kb Keyboard) Payload {
	return Payload{Kind: KindText, Text: text, Keyboard: kb, ParseMode: "HTML"}
}

// MessageRef addresses a sent message.
type MessageRef struct {
	ChatID    int64
	MessageID int
}

// Member statuses reported by GetChatMember.
const (
	StatusCreator       = "creator"
	StatusAdministrator = "administrator"
	StatusMember        = "member"
	StatusRestricted    = "restricted"
	StatusLeft          = "left"
	StatusKicked        = "kicked"
)

// Member is a user's membership in a chat.
type Member struct {
	Status   string
	IsMember bool // Only meaningful for restricted members.
}

// Subscribed reports whether the membership satisfies a subscription requirement.
func (m Member) Subscribed() bool {
	switch m.Status {
	case StatusLeft, StatusKicked, "":
		return false
	case StatusRestricted:
		return m.IsMember
	default:
		return true
	}
}

// Chat types.
const (
	ChatPrivate    = "private"
	ChatGroup      = "group"
	ChatSupergroup = "supergroup"
	ChatChannel    = "channel"
)

// Chat describes a user, group or channel.
type Chat struct {
	ID        int64
	Type      string
	Title     string
	Username  string
	FirstName string
	LastName  string
	IsBot     bool
}

// DisplayName returns the title of a group or the full name of a user.
func (c Chat) DisplayName() string {
	if c.Title != "" {
		return c.Title
	}
	name := c.FirstName
	if c.LastName != "" {
		if name != "" {
			name += " "
		}
		name += c.LastName
	}
	if name == "" && c.Username != "" {
		return "@" + c.Username
	}
	if name == "" {
		return strconv.FormatInt(c.ID, 10)
	}
	return name
}

// Messenger is the outbound surface of the chat transport. Every failure is a
// Transport-kind error.
type Messenger interface {
	SendContent(ctx context.Context, chatID int64, p Payload) (MessageRef, error)
	CopyMessage(ctx context.Context, fromChatID int64, messageID int, toChatID int64, kb Keyboard) (MessageRef, error)
	GetChatMember(ctx context.Context, chat string, userID int64) (Member, error)
	GetChat(ctx context.Context, chat string) (Chat, error)
	EditMessage(ctx context.Context, ref MessageRef, p Payload) error
	DeleteMessage(ctx context.Context, ref MessageRef) error
	AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error
}
