package broadcast

import (
	"context"
	"strings"
	"testing"

	"github.com/ibrohim2505/prokinobot/internal/errkind"
	"github.com/ibrohim2505/prokinobot/internal/flow"
	"github.com/ibrohim2505/prokinobot/internal/messenger"
	"github.com/ibrohim2505/prokinobot/internal/messenger/messengertest"
	"github.com/ibrohim2505/prokinobot/internal/session"
)

func TestParseButtonsAccepts(t *testing.T) {
	t.Parallel()

	got, err := ParseButtons("Kanal - https://t.me/prokino\n\n  Bot - tg://resolve?domain=x  ")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(got) != 2 || got[0].Label != "Kanal" || got[1].URL != "tg://resolve?domain=x" {
		t.Fatalf("unexpected buttons %+v", got)
	}
	got, _ = ParseButtons("Sayt - https://kino-uz.com/a-b")
	if got[0].URL != "https://kino-uz.com/a-b" {
		t.Fatalf("expected split on the first dash, got %+v", got)
	}
}

func TestParseButtonsRejects(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"too many lines": strings.Repeat("a - https://x\n", 6),
		"missing dash":   "Kanal https://t.me/x",
		"empty label":    " - https://t.me/x",
		"empty url":      "Kanal - ",
		"bad scheme":     "Kanal - ftp://x",
		"long label":     strings.Repeat("a", 65) + " - https://x",
	}
	for name, input := range cases {
		if _, err := ParseButtons(input); !errkind.Is(err, errkind.Validation) {
			t.Fatalf("%s: expected validation error, got %v", name, err)
		}
	}
	if _, err := ParseButtons(strings.Repeat("a", 64) + " - https://x"); err != nil {
		t.Fatalf("expected 64-character label to pass, got %v", err)
	}
}

func TestSkipKeywords(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"skip", " SKIP ", "yo'q", "o'tkazish"} {
		if !IsSkip(in) {
			t.Fatalf("expected %q to skip", in)
		}
	}
	if IsSkip("skip it") {
		t.Fatalf("expected partial match not to skip")
	}
}

func TestSendCountsFailures(t *testing.T) {
	t.Parallel()

	for _, concurrency := range []int{1, 4} {
		fake := messengertest.New()
		fake.FailChats[2] = true
		engine := NewEngine(fake, concurrency)

		report := engine.Send(context.Background(), Job{Kind: messenger.KindText, Caption: "hello"}, []int64{1, 2, 3})
		if report != (Report{Success: 2, Failed: 1, Total: 3}) {
			t.Fatalf("concurrency %d: unexpected report %+v", concurrency, report)
		}
		if len(fake.SentTo(1)) != 1 || len(fake.SentTo(3)) != 1 {
			t.Fatalf("concurrency %d: expected recipients 1 and 3 to receive", concurrency)
		}
	}
}

func TestSendEmpty(t *testing.T) {
	t.Parallel()

	report := NewEngine(messengertest.New(), 0).Send(context.Background(), Job{Caption: "x"}, nil)
	if report != (Report{}) {
		t.Fatalf("expected empty report, got %+v", report)
	}
}

type staticRecipients []int64

func (s staticRecipients) ListUserIDs(context.Context) ([]int64, error) { return s, nil }

func TestComposeFlowEndToEnd(t *testing.T) {
	t.Parallel()

	fake := messengertest.New()
	fake.FailChats[20] = true
	f := NewComposeFlow(NewEngine(fake, 2), staticRecipients{10, 20, 30})
	ctx := context.Background()

	fields, _, err := f.Begin(ctx, 1, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	s := session.FlowSession{UserID: 1, Kind: session.KindBroadcast, Fields: fields}

	if _, err := f.Step(ctx, s, flow.Event{UserID: 1, Media: &messenger.Media{Kind: messenger.KindPhoto, FileID: "p1"}}); !errkind.Is(err, errkind.Validation) {
		t.Fatalf("expected caption to be required, got %v", err)
	}
	tr, err := f.Step(ctx, s, flow.Event{UserID: 1, Text: "Yangi kino!", Media: &messenger.Media{Kind: messenger.KindPhoto, FileID: "p1"}})
	if err != nil {
		t.Fatalf("content: %v", err)
	}
	s.Fields, s.Step = tr.Fields, tr.Step

	if _, err := f.Step(ctx, s, flow.Event{UserID: 1, Text: "Kanal https://t.me/x"}); !errkind.Is(err, errkind.Validation) {
		t.Fatalf("expected bad buttons to re-prompt, got %v", err)
	}
	tr, err = f.Step(ctx, s, flow.Event{UserID: 1, Text: "Kanal - https://t.me/x"})
	if err != nil {
		t.Fatalf("buttons: %v", err)
	}
	s.Fields, s.Step = tr.Fields, tr.Step
	ready := s.Fields.(session.BroadcastFields)
	if ready.State != session.BroadcastReady || ready.FileID != "p1" || ready.Caption != "Yangi kino!" || len(ready.Buttons) != 1 {
		t.Fatalf("unexpected ready fields %+v", ready)
	}
	if preview := tr.Replies[0]; preview.Kind != messenger.KindPhoto || len(preview.Keyboard) != 1 {
		t.Fatalf("unexpected preview %+v", preview)
	}

	tr, err = f.Step(ctx, s, flow.Event{UserID: 1, Action: CallbackReenterButtons})
	if err != nil || tr.Fields.(session.BroadcastFields).State != session.BroadcastCollectingButtons {
		t.Fatalf("expected re-enter to return to buttons, got %+v %v", tr, err)
	}
	if tr.Fields.(session.BroadcastFields).Caption != "Yangi kino!" {
		t.Fatalf("expected content to survive re-enter")
	}

	tr, err = f.Step(ctx, s, flow.Event{UserID: 1, Action: CallbackSend})
	if err != nil || !tr.Done {
		t.Fatalf("send: %+v %v", tr, err)
	}
	if !strings.Contains(tr.Replies[0].Text, "Jami: 3") || !strings.Contains(tr.Replies[0].Text, "Muvaffaqiyatli: 2") || !strings.Contains(tr.Replies[0].Text, "Xatolik: 1") {
		t.Fatalf("unexpected report text %q", tr.Replies[0].Text)
	}
}

func TestComposeFlowCancel(t *testing.T) {
	t.Parallel()

	f := NewComposeFlow(NewEngine(messengertest.New(), 1), staticRecipients{1})
	s := session.FlowSession{UserID: 1, Kind: session.KindBroadcast, Fields: session.BroadcastFields{State: session.BroadcastCollectingButtons, Caption: "x"}}
	tr, err := f.Step(context.Background(), s, flow.Event{UserID: 1, Action: CallbackCancel})
	if err != nil || !tr.Done {
		t.Fatalf("expected cancel to finish, got %+v %v", tr, err)
	}
}
