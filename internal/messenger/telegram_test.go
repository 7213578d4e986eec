package messenger

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ibrohim2505/prokinobot/internal/errkind"
)

type recordedCall struct {
	method string
	params map[string]any
}

func newTestServer(t *testing.T, respond func(method string) string) (*httptest.Server, *[]recordedCall) {
	t.Helper()
	calls := &[]recordedCall{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
		body, _ := io.ReadAll(r.Body)
		params := map[string]any{}
		_ = json.Unmarshal(body, &params)
		*calls = append(*calls, recordedCall{method: method, params: params})
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, respond(method))
	}))
	t.Cleanup(srv.Close)
	return srv, calls
}

func TestSendContentPicksMethodAndKeyboard(t *testing.T) {
	srv, calls := newTestServer(t, func(string) string {
		return `{"ok":true,"result":{"message_id":77,"chat":{"id":-1001}}}`
	})
	client := NewTelegramClient("TOKEN", WithBaseURL(srv.URL))

	ref, err := client.SendContent(context.Background(), -1001, Payload{
		Kind:     KindVideo,
		FileID:   "vid",
		Text:     "caption",
		Keyboard: Keyboard{{{Text: "Join", URL: "https://t.me/x"}}, {}},
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if ref.MessageID != 77 || ref.ChatID != -1001 {
		t.Fatalf("unexpected ref %+v", ref)
	}
	if len(*calls) != 1 || (*calls)[0].method != "sendVideo" {
		t.Fatalf("expected sendVideo, got %+v", *calls)
	}
	markup, ok := (*calls)[0].params["reply_markup"].(map[string]any)
	if !ok {
		t.Fatalf("expected reply_markup, got %v", (*calls)[0].params)
	}
	rows, _ := markup["inline_keyboard"].([]any)
	if len(rows) != 1 {
		t.Fatalf("expected empty rows dropped, got %v", rows)
	}
}

func TestCallMapsAPIErrorToTransport(t *testing.T) {
	srv, _ := newTestServer(t, func(string) string {
		return `{"ok":false,"error_code":429,"description":"Too Many Requests","parameters":{"retry_after":3}}`
	})
	client := NewTelegramClient("TOKEN", WithBaseURL(srv.URL))

	_, err := client.GetChatMember(context.Background(), "@channel", 5)
	if !errkind.Is(err, errkind.Transport) {
		t.Fatalf("expected transport error, got %v", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError in chain, got %v", err)
	}
	if apiErr.Code != 429 || apiErr.RetryAfter != 3 {
		t.Fatalf("unexpected api error %+v", apiErr)
	}
}

func TestGetChatMemberParsesStatus(t *testing.T) {
	srv, calls := newTestServer(t, func(string) string {
		return `{"ok":true,"result":{"status":"restricted","is_member":false,"user":{"id":5}}}`
	})
	client := NewTelegramClient("TOKEN", WithBaseURL(srv.URL))

	member, err := client.GetChatMember(context.Background(), "-100200", 5)
	if err != nil {
		t.Fatalf("get member: %v", err)
	}
	if member.Subscribed() {
		t.Fatalf("expected restricted non-member to be unsubscribed")
	}
	if id, ok := (*calls)[0].params["chat_id"].(float64); !ok || id != -100200 {
		t.Fatalf("expected numeric chat id, got %v", (*calls)[0].params["chat_id"])
	}
}

func TestGetUpdatesDecodesMessages(t *testing.T) {
	srv, _ := newTestServer(t, func(string) string {
		return `{"ok":true,"result":[{"update_id":10,"message":{"message_id":1,"from":{"id":5,"first_name":"Ann"},"chat":{"id":5,"type":"private"},"text":"123"}},
			{"update_id":11,"callback_query":{"id":"cb","from":{"id":5,"first_name":"Ann"},"data":"verify_sub:123","message":{"message_id":2,"chat":{"id":5,"type":"private"}}}}]}`
	})
	client := NewTelegramClient("TOKEN", WithBaseURL(srv.URL))

	updates, err := client.GetUpdates(context.Background(), 0, time.Second)
	if err != nil {
		t.Fatalf("get updates: %v", err)
	}
	if len(updates) != 2 {
		t.Fatalf("expected 2 updates, got %d", len(updates))
	}
	if updates[0].Message == nil || updates[0].Message.Text != "123" {
		t.Fatalf("unexpected first update %+v", updates[0])
	}
	if updates[1].CallbackQuery == nil || updates[1].CallbackQuery.Data != "verify_sub:123" {
		t.Fatalf("unexpected second update %+v", updates[1])
	}
}

func TestMemberSubscribed(t *testing.T) {
	t.Parallel()

	cases := []struct {
		member Member
		want   bool
	}{
		{Member{Status: StatusMember}, true},
		{Member{Status: StatusAdministrator}, true},
		{Member{Status: StatusCreator}, true},
		{Member{Status: StatusLeft}, false},
		{Member{Status: StatusKicked}, false},
		{Member{Status: StatusRestricted, IsMember: true}, true},
		{Member{Status: StatusRestricted}, false},
	}
	for _, tc := range cases {
		if got := tc.member.Subscribed(); got != tc.want {
			t.Fatalf("%+v: expected %v, got %v", tc.member, tc.want, got)
		}
	}
}

func TestMessageMediaPicksLargestPhoto(t *testing.T) {
	t.Parallel()

	msg := &Message{Photo: []PhotoSize{{FileID: "small"}, {FileID: "large"}}}
	media := msg.Media()
	if media == nil || media.Kind != KindPhoto || media.FileID != "large" {
		t.Fatalf("unexpected media %+v", media)
	}
	if (&Message{Text: "hi"}).Media() != nil {
		t.Fatalf("expected nil media for text")
	}
}

func TestGetUpdatesOutlivesRequestTimeout(t *testing.T) {
	hold := 150 * time.Millisecond
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(hold):
		case <-r.Context().Done():
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if strings.HasSuffix(r.URL.Path, "/getUpdates") {
			_, _ = io.WriteString(w, `{"ok":true,"result":[]}`)
			return
		}
		_, _ = io.WriteString(w, `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"bot"}}`)
	}))
	t.Cleanup(srv.Close)
	client := NewTelegramClient("TOKEN", WithBaseURL(srv.URL), WithRequestTimeout(50*time.Millisecond))

	updates, err := client.GetUpdates(context.Background(), 0, time.Second)
	if err != nil {
		t.Fatalf("expected idle poll to succeed, got %v", err)
	}
	if len(updates) != 0 {
		t.Fatalf("expected no updates, got %d", len(updates))
	}

	if _, errMe := client.GetMe(context.Background()); !errkind.Is(errMe, errkind.Transport) {
		t.Fatalf("expected transport timeout for getMe, got %v", errMe)
	}
}
