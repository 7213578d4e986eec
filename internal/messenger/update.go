package messenger

import "strings"

// Update is one inbound event from the Bot API.
type Update struct {
	UpdateID      int64          `json:"update_id"`
	Message       *Message       `json:"message,omitempty"`
	CallbackQuery *CallbackQuery `json:"callback_query,omitempty"`
}

// User is the sender of a message or callback.
type User struct {
	ID           int64  `json:"id"`
	IsBot        bool   `json:"is_bot"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name,omitempty"`
	Username     string `json:"username,omitempty"`
	LanguageCode string `json:"language_code,omitempty"`
}

// FullName joins first and last name.
func (u User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// ChatInfo is the chat object embedded in messages.
type ChatInfo struct {
	ID        int64  `json:"id"`
	Type      string `json:"type"`
	Title     string `json:"title,omitempty"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// PhotoSize is one resolution of a photo.
type PhotoSize struct {
	FileID   string `json:"file_id"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	FileSize int64  `json:"file_size,omitempty"`
}

// File is a video, document or audio attachment.
type File struct {
	FileID   string `json:"file_id"`
	FileName string `json:"file_name,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	Duration int    `json:"duration,omitempty"`
	FileSize int64  `json:"file_size,omitempty"`
}

// ForwardOrigin describes the original sender of a forwarded message.
type ForwardOrigin struct {
	Type       string    `json:"type"` // user, hidden_user, chat or channel.
	SenderUser *User     `json:"sender_user,omitempty"`
	Chat       *ChatInfo `json:"chat,omitempty"`
}

// Message is an inbound chat message.
type Message struct {
	MessageID int         `json:"message_id"`
	From      *User       `json:"from,omitempty"`
	Chat      ChatInfo    `json:"chat"`
	Date      int64       `json:"date"`
	Text      string      `json:"text,omitempty"`
	Caption   string      `json:"caption,omitempty"`
	Photo     []PhotoSize `json:"photo,omitempty"`
	Video     *File       `json:"video,omitempty"`
	Document  *File       `json:"document,omitempty"`
	Audio     *File       `json:"audio,omitempty"`

	ForwardOrigin   *ForwardOrigin `json:"forward_origin,omitempty"`
	ForwardFrom     *User          `json:"forward_from,omitempty"`
	ForwardFromChat *ChatInfo      `json:"forward_from_chat,omitempty"`
}

// CallbackQuery is an inline button press.
type CallbackQuery struct {
	ID      string   `json:"id"`
	From    User     `json:"from"`
	Message *Message `json:"message,omitempty"`
	Data    string   `json:"data,omitempty"`
}

// Media is the attachment of a message reduced to what the bot stores.
type Media struct {
	Kind     ContentKind
	FileID   string
	MimeType string
	Duration int
}

// Media returns the attachment of the message, or nil for plain text.
func (m *Message) Media() *Media {
	if m == nil {
		return nil
	}
	switch {
	case len(m.Photo) > 0:
		largest := m.Photo[len(m.Photo)-1]
		return &Media{Kind: KindPhoto, FileID: largest.FileID, MimeType: "image/jpeg"}
	case m.Video != nil:
		return &Media{Kind: KindVideo, FileID: m.Video.FileID, MimeType: m.Video.MimeType, Duration: m.Video.Duration}
	case m.Document != nil:
		return &Media{Kind: KindDocument, FileID: m.Document.FileID, MimeType: m.Document.MimeType, Duration: m.Document.Duration}
	case m.Audio != nil:
		return &Media{Kind: KindAudio, FileID: m.Audio.FileID, MimeType: m.Audio.MimeType, Duration: m.Audio.Duration}
	default:
		return nil
	}
}

// ForwardedUser returns the original sender of a forwarded user message.
func (m *Message) ForwardedUser() *User {
	if m == nil {
		return nil
	}
	if m.ForwardOrigin != nil && m.ForwardOrigin.SenderUser != nil {
		return m.ForwardOrigin.SenderUser
	}
	return m.ForwardFrom
}

// ForwardedChat returns the original chat of a forwarded channel post.
func (m *Message) ForwardedChat() *ChatInfo {
	if m == nil {
		return nil
	}
	if m.ForwardOrigin != nil && m.ForwardOrigin.Chat != nil {
		return m.ForwardOrigin.Chat
	}
	return m.ForwardFromChat
}

// Ref returns the address of the message.
func (m *Message) Ref() MessageRef {
	return MessageRef{ChatID: m.Chat.ID, MessageID: m.MessageID}
}
