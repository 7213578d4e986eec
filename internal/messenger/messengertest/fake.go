// Package messengertest provides an in-memory Messenger for tests.
package messengertest

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/ibrohim2505/prokinobot/internal/errkind"
	"github.com/ibrohim2505/prokinobot/internal/messenger"
)

// Sent is one recorded outbound message.
type Sent struct {
	ChatID  int64
	Payload messenger.Payload
	Ref     messenger.MessageRef
	// Copy fields are set for CopyMessage calls.
	FromChatID int64
	MessageID  int
}

// Fake records every call and answers lookups from its maps.
type Fake struct {
	mu sync.Mutex

	nextID int

	Sent      []Sent
	Copies    []Sent
	Edits     []Sent
	Deleted   []messenger.MessageRef
	Callbacks []string

	// Members maps chat -> user id -> membership. Missing entries are "left".
	Members map[string]map[int64]messenger.Member
	// MemberErrors makes GetChatMember fail for a chat.
	MemberErrors map[string]bool
	// Chats answers GetChat.
	Chats map[string]messenger.Chat
	// FailChats makes sends and copies to a chat fail.
	FailChats map[int64]bool
}

// New returns an empty Fake.
func New() *Fake {
	return &Fake{
		Members:      map[string]map[int64]messenger.Member{},
		MemberErrors: map[string]bool{},
		Chats:        map[string]messenger.Chat{},
		FailChats:    map[int64]bool{},
	}
}

// SetMember records a membership.
func (f *Fake) SetMember(chat string, userID int64, status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Members[chat] == nil {
		f.Members[chat] = map[int64]messenger.Member{}
	}
	f.Members[chat][userID] = messenger.Member{Status: status, IsMember: status != messenger.StatusLeft && status != messenger.StatusKicked}
}

func (f *Fake) transportErr(op string, chatID int64) error {
	return errkind.Wrap(errkind.Transport, op, fmt.Errorf("chat %d unreachable", chatID))
}

func (f *Fake) SendContent(_ context.Context, chatID int64, p messenger.Payload) (messenger.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailChats[chatID] {
		return messenger.MessageRef{}, f.transportErr("fake.send", chatID)
	}
	f.nextID++
	ref := messenger.MessageRef{ChatID: chatID, MessageID: f.nextID}
	f.Sent = append(f.Sent, Sent{ChatID: chatID, Payload: p, Ref: ref})
	return ref, nil
}

func (f *Fake) CopyMessage(_ context.Context, fromChatID int64, messageID int, toChatID int64, kb messenger.Keyboard) (messenger.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailChats[toChatID] {
		return messenger.MessageRef{}, f.transportErr("fake.copy", toChatID)
	}
	f.nextID++
	ref := messenger.MessageRef{ChatID: toChatID, MessageID: f.nextID}
	f.Copies = append(f.Copies, Sent{ChatID: toChatID, Payload: messenger.Payload{Keyboard: kb}, Ref: ref, FromChatID: fromChatID, MessageID: messageID})
	return ref, nil
}

func (f *Fake) GetChatMember(_ context.Context, chat string, userID int64) (messenger.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.MemberErrors[chat] {
		return messenger.Member{}, errkind.New(errkind.Transport, "fake.get_chat_member", "chat not found")
	}
	member, ok := f.Members[chat][userID]
	if !ok {
		return messenger.Member{Status: messenger.StatusLeft}, nil
	}
	return member, nil
}

func (f *Fake) GetChat(_ context.Context, chat string) (messenger.Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.Chats[chat]; ok {
		return c, nil
	}
	return messenger.Chat{}, errkind.New(errkind.Transport, "fake.get_chat", "chat not found: "+chat)
}

func (f *Fake) EditMessage(_ context.Context, ref messenger.MessageRef, p messenger.Payload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Edits = append(f.Edits, Sent{ChatID: ref.ChatID, Payload: p, Ref: ref})
	return nil
}

func (f *Fake) DeleteMessage(_ context.Context, ref messenger.MessageRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Deleted = append(f.Deleted, ref)
	return nil
}

func (f *Fake) AnswerCallback(_ context.Context, callbackID, text string, alert bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Callbacks = append(f.Callbacks, callbackID+"|"+text+"|"+strconv.FormatBool(alert))
	return nil
}

// SentTo returns the messages sent to chatID.
func (f *Fake) SentTo(chatID int64) []Sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Sent
	for _, s := range f.Sent {
		if s.ChatID == chatID {
			out = append(out, s)
		}
	}
	return out
}

// LastSentTo returns the most recent message sent to chatID.
func (f *Fake) LastSentTo(chatID int64) (Sent, bool) {
	all := f.SentTo(chatID)
	if len(all) == 0 {
		return Sent{}, false
	}
	return all[len(all)-1], true
}

// CopiesTo returns the copies delivered to chatID.
func (f *Fake) CopiesTo(chatID int64) []Sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Sent
	for _, s := range f.Copies {
		if s.ChatID == chatID {
			out = append(out, s)
		}
	}
	return out
}

var _ messenger.Messenger = (*Fake)(nil)
