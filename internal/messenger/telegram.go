package messenger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ibrohim2505/prokinobot/internal/errkind"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

const (
	defaultAPIBase     = "https://api.telegram.org"
	defaultHTTPTimeout = 30 * time.Second
	pollMargin         = 10 * time.Second // Added to the long-poll timeout of getUpdates.
	maxResponseBytes   = 4 << 20
)

// APIError is a failed Bot API call.
type APIError struct {
	Method      string
	Code        int
	Description string
	RetryAfter  int
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.RetryAfter > 0 {
		return fmt.Sprintf("telegram %s: %d %s (retry after %ds)", e.Method, e.Code, e.Description, e.RetryAfter)
	}
	return fmt.Sprintf("telegram %s: %d %s", e.Method, e.Code, e.Description)
}

// TelegramClient talks to the Telegram Bot API over HTTPS.
type TelegramClient struct {
	token   string
	baseURL string
	timeout time.Duration
	http    *http.Client
}

// Option customizes a TelegramClient.
type Option func(*TelegramClient)

// WithBaseURL points the client at another Bot API server.
func WithBaseURL(base string) Option {
	return func(c *TelegramClient) {
		if base = strings.TrimRight(strings.TrimSpace(base), "/"); base != "" {
			c.baseURL = base
		}
	}
}

// WithRequestTimeout bounds every call except getUpdates, which waits for its poll
// timeout plus a margin.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *TelegramClient) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *TelegramClient) {
		if hc != nil {
			c.http = hc
		}
	}
}

// NewTelegramClient constructs a client for the bot token.
func NewTelegramClient(token string, opts ...Option) *TelegramClient {
	c := &TelegramClient{
		token:   strings.TrimSpace(token),
		baseURL: defaultAPIBase,
		timeout: defaultHTTPTimeout,
		http:    &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// call posts params to method and returns the "result" field of a successful response.
func (c *TelegramClient) call(ctx context.Context, method string, params map[string]any) (gjson.Result, error) {
	return c.callWithin(ctx, c.timeout, method, params)
}

func (c *TelegramClient) callWithin(ctx context.Context, timeout time.Duration, method string, params map[string]any) (gjson.Result, error) {
	op := "telegram." + method
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	body, errMarshal := json.Marshal(params)
	if errMarshal != nil {
		return gjson.Result{}, errkind.Wrap(errkind.Transport, op, errMarshal)
	}
	endpoint := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	req, errReq := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if errReq != nil {
		return gjson.Result{}, errkind.Wrap(errkind.Transport, op, errReq)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, errDo := c.http.Do(req)
	if errDo != nil {
		return gjson.Result{}, errkind.Wrap(errkind.Transport, op, redactToken(errDo, c.token))
	}
	defer func() {
		if errClose := resp.Body.Close(); errClose != nil {
			log.WithError(errClose).Debug("telegram: close response body")
		}
	}()
	raw, errRead := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if errRead != nil {
		return gjson.Result{}, errkind.Wrap(errkind.Transport, op, errRead)
	}
	if !gjson.ValidBytes(raw) {
		return gjson.Result{}, errkind.Wrap(errkind.Transport, op, fmt.Errorf("invalid response (http %d)", resp.StatusCode))
	}
	parsed := gjson.ParseBytes(raw)
	if !parsed.Get("ok").Bool() {
		return gjson.Result{}, errkind.Wrap(errkind.Transport, op, &APIError{
			Method:      method,
			Code:        int(parsed.Get("error_code").Int()),
			Description: parsed.Get("description").String(),
			RetryAfter:  int(parsed.Get("parameters.retry_after").Int()),
		})
	}
	return parsed.Get("result"), nil
}

func redactToken(err error, token string) error {
	if token == "" {
		return err
	}
	return fmt.Errorf("%s", strings.ReplaceAll(err.Error(), token, "<token>"))
}

func keyboardParam(kb Keyboard) map[string]any {
	rows := make([][]map[string]string, 0, len(kb))
	for _, row := range kb.Rows() {
		buttons := make([]map[string]string, 0, len(row))
		for _, b := range row {
			btn := map[string]string{"text": b.Text}
			if b.URL != "" {
				btn["url"] = b.URL
			} else {
				btn["callback_data"] = b.CallbackData
			}
			buttons = append(buttons, btn)
		}
		rows = append(rows, buttons)
	}
	return map[string]any{"inline_keyboard": rows}
}

func messageRef(result gjson.Result) MessageRef {
	return MessageRef{
		ChatID:    result.Get("chat.id").Int(),
		MessageID: int(result.Get("message_id").Int()),
	}
}

// chatParam passes numeric ids as numbers and everything else as strings.
func chatParam(chat string) any {
	chat = strings.TrimSpace(chat)
	if id, errParse := strconv.ParseInt(chat, 10, 64); errParse == nil {
		return id
	}
	return chat
}

// GetMe returns the bot's own user.
func (c *TelegramClient) GetMe(ctx context.Context) (User, error) {
	result, err := c.call(ctx, "getMe", map[string]any{})
	if err != nil {
		return User{}, err
	}
	var me User
	if errUnmarshal := json.Unmarshal([]byte(result.Raw), &me); errUnmarshal != nil {
		return User{}, errkind.Wrap(errkind.Transport, "telegram.getMe", errUnmarshal)
	}
	return me, nil
}

// GetUpdates long-polls for updates after offset.
func (c *TelegramClient) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	result, err := c.callWithin(ctx, timeout+pollMargin, "getUpdates", map[string]any{
		"offset":          offset,
		"timeout":         int(timeout / time.Second),
		"allowed_updates": []string{"message", "callback_query"},
	})
	if err != nil {
		return nil, err
	}
	var updates []Update
	if errUnmarshal := json.Unmarshal([]byte(result.Raw), &updates); errUnmarshal != nil {
		return nil, errkind.Wrap(errkind.Transport, "telegram.getUpdates", errUnmarshal)
	}
	return updates, nil
}

// SetWebhook registers the webhook URL with a secret token.
func (c *TelegramClient) SetWebhook(ctx context.Context, url, secret string) error {
	params := map[string]any{
		"url":             url,
		"allowed_updates": []string{"message", "callback_query"},
	}
	if secret != "" {
		params["secret_token"] = secret
	}
	_, err := c.call(ctx, "setWebhook", params)
	return err
}

// DeleteWebhook switches the bot back to long polling.
func (c *TelegramClient) DeleteWebhook(ctx context.Context) error {
	_, err := c.call(ctx, "deleteWebhook", map[string]any{})
	return err
}

// SendContent sends a text or media message.
func (c *TelegramClient) SendContent(ctx context.Context, chatID int64, p Payload) (MessageRef, error) {
	params := map[string]any{"chat_id": chatID}
	if p.ParseMode != "" {
		params["parse_mode"] = p.ParseMode
	}
	if len(p.Keyboard.Rows()) > 0 {
		params["reply_markup"] = keyboardParam(p.Keyboard)
	}

	var method string
	switch p.Kind {
	case KindText, "":
		method = "sendMessage"
		params["text"] = p.Text
	case KindPhoto:
		method = "sendPhoto"
		params["photo"] = p.FileID
		params["caption"] = p.Text
	case KindVideo:
		method = "sendVideo"
		params["video"] = p.FileID
		params["caption"] = p.Text
	case KindDocument:
		method = "sendDocument"
		params["document"] = p.FileID
		params["caption"] = p.Text
	case KindAudio:
		method = "sendAudio"
		params["audio"] = p.FileID
		params["caption"] = p.Text
	default:
		return MessageRef{}, errkind.New(errkind.Validation, "telegram.send", "unsupported content kind "+string(p.Kind))
	}

	result, err := c.call(ctx, method, params)
	if err != nil {
		return MessageRef{}, err
	}
	return messageRef(result), nil
}

// CopyMessage copies a message without the forward header.
func (c *TelegramClient) CopyMessage(ctx context.Context, fromChatID int64, messageID int, toChatID int64, kb Keyboard) (MessageRef, error) {
	params := map[string]any{
		"chat_id":      toChatID,
		"from_chat_id": fromChatID,
		"message_id":   messageID,
	}
	if len(kb.Rows()) > 0 {
		params["reply_markup"] = keyboardParam(kb)
	}
	result, err := c.call(ctx, "copyMessage", params)
	if err != nil {
		return MessageRef{}, err
	}
	return MessageRef{ChatID: toChatID, MessageID: int(result.Get("message_id").Int())}, nil
}

// GetChatMember returns the membership of userID in chat.
func (c *TelegramClient) GetChatMember(ctx context.Context, chat string, userID int64) (Member, error) {
	result, err := c.call(ctx, "getChatMember", map[string]any{
		"chat_id": chatParam(chat),
		"user_id": userID,
	})
	if err != nil {
		return Member{}, err
	}
	return Member{
		Status:   result.Get("status").String(),
		IsMember: result.Get("is_member").Bool(),
	}, nil
}

// GetChat resolves a chat by id or @username.
func (c *TelegramClient) GetChat(ctx context.Context, chat string) (Chat, error) {
	result, err := c.call(ctx, "getChat", map[string]any{"chat_id": chatParam(chat)})
	if err != nil {
		return Chat{}, err
	}
	return Chat{
		ID:        result.Get("id").Int(),
		Type:      result.Get("type").String(),
		Title:     result.Get("title").String(),
		Username:  result.Get("username").String(),
		FirstName: result.Get("first_name").String(),
		LastName:  result.Get("last_name").String(),
	}, nil
}

// EditMessage replaces the text (or caption) and keyboard of a message. An empty
// keyboard removes the buttons.
func (c *TelegramClient) EditMessage(ctx context.Context, ref MessageRef, p Payload) error {
	params := map[string]any{
		"chat_id":      ref.ChatID,
		"message_id":   ref.MessageID,
		"reply_markup": keyboardParam(p.Keyboard),
	}
	if p.ParseMode != "" {
		params["parse_mode"] = p.ParseMode
	}
	method := "editMessageText"
	if p.Kind != KindText && p.Kind != "" {
		method = "editMessageCaption"
		params["caption"] = p.Text
	} else {
		params["text"] = p.Text
	}
	_, err := c.call(ctx, method, params)
	return err
}

// DeleteMessage deletes a message.
func (c *TelegramClient) DeleteMessage(ctx context.Context, ref MessageRef) error {
	_, err := c.call(ctx, "deleteMessage", map[string]any{
		"chat_id":    ref.ChatID,
		"message_id": ref.MessageID,
	})
	return err
}

// AnswerCallback acknowledges a button press, optionally with a toast or alert.
func (c *TelegramClient) AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error {
	params := map[string]any{"callback_query_id": callbackID}
	if text != "" {
		params["text"] = text
		params["show_alert"] = alert
	}
	_, err := c.call(ctx, "answerCallbackQuery", params)
	return err
}
