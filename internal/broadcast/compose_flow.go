package broadcast

import (
	"context"
	"fmt"

	"github.com/ibrohim2505/prokinobot/internal/errkind"
	"github.com/ibrohim2505/prokinobot/internal/flow"
	"github.com/ibrohim2505/prokinobot/internal/messenger"
	"github.com/ibrohim2505/prokinobot/internal/permissions"
	"github.com/ibrohim2505/prokinobot/internal/session"
)

// Callback data of the compose controls.
const (
	CallbackSend           = "broadcast_send"
	CallbackReenterButtons = "broadcast_reenter_buttons"
	CallbackCancel         = "broadcast_cancel"
)

// Recipients enumerates the users a broadcast goes to.
type Recipients interface {
	ListUserIDs(ctx context.Context) ([]int64, error)
}

// ComposeFlow collects content and buttons and sends the job on confirmation.
type ComposeFlow struct {
	engine     *Engine
	recipients Recipients
}

func NewComposeFlow(engine *Engine, recipients Recipients) *ComposeFlow {
	return &ComposeFlow{engine: engine, recipients: recipients}
}

func (f *ComposeFlow) Kind() session.Kind { return session.KindBroadcast }

func (f *ComposeFlow) Capability() string { return permissions.Broadcast }

func cancelKeyboard() messenger.Keyboard {
	return messenger.Keyboard{{{Text: "❌ Bekor qilish", CallbackData: CallbackCancel}}}
}

func controlsKeyboard() messenger.Keyboard {
	return messenger.Keyboard{
		{{Text: "✅ Yuborish", CallbackData: CallbackSend}},
		{{Text: "🔁 Tugmalarni qayta kiritish", CallbackData: CallbackReenterButtons}},
		{{Text: "❌ Bekor qilish", CallbackData: CallbackCancel}},
	}
}

func buttonsPrompt() messenger.Payload {
	return messenger.TextPayload("Har bir qatorda: <code>Matn - https://link</code> formatida yozing.\nTugmalar kerak bo'lmasa, <b>skip</b> deb yozing.", cancelKeyboard())
}

func (f *ComposeFlow) Begin(context.Context, int64, session.Fields) (session.Fields, []messenger.Payload, error) {
	text := "📢 <b>Broadcast rejimi</b>\n\n1️⃣ Matn, rasm, video yoki hujjat yuboring.\n2️⃣ Istasangiz tugmalarni qo'shing (Matn - https://link).\n3️⃣ Tasdiqlang va bot barcha foydalanuvchilarga yuboradi."
	return session.BroadcastFields{State: session.BroadcastCollectingContent}, []messenger.Payload{messenger.TextPayload(text, cancelKeyboard())}, nil
}

func (f *ComposeFlow) Step(ctx context.Context, s session.FlowSession, ev flow.Event) (flow.Transition, error) {
	fields, _ := s.Fields.(session.BroadcastFields)
	if ev.Action == CallbackCancel {
		return flow.Transition{Done: true, Replies: []messenger.Payload{messenger.TextPayload("❌ Broadcast bekor qilindi.", nil)}}, nil
	}
	switch fields.State {
	case session.BroadcastCollectingContent:
		return f.collectContent(fields, ev)
	case session.BroadcastCollectingButtons:
		return f.collectButtons(fields, ev)
	case session.BroadcastReady:
		return f.ready(ctx, fields, ev)
	default:
		return flow.Transition{}, fmt.Errorf("broadcast: unexpected state %q", fields.State)
	}
}

func (f *ComposeFlow) collectContent(fields session.BroadcastFields, ev flow.Event) (flow.Transition, error) {
	if ev.Action != "" {
		return flow.Transition{}, errkind.New(errkind.Validation, "broadcast.content", "❌ Avval xabarni yuboring.")
	}
	kind := messenger.KindText
	var fileID string
	if m := ev.Media; m != nil {
		switch m.Kind {
		case messenger.KindPhoto, messenger.KindVideo, messenger.KindDocument:
			kind, fileID = m.Kind, m.FileID
		default:
			return flow.Transition{}, errkind.New(errkind.Validation, "broadcast.content", "❌ Iltimos, matn, rasm, video yoki hujjat yuboring!")
		}
	}
	caption := ev.TrimmedText()
	if caption == "" {
		return flow.Transition{}, errkind.New(errkind.Validation, "broadcast.content", "❌ Xabarga matn (caption) kiriting. Rasm/video uchun izoh yozing.")
	}
	fields.ContentKind = string(kind)
	fields.FileID = fileID
	fields.Caption = caption
	fields.State = session.BroadcastCollectingButtons
	return flow.Transition{
		Fields:  fields,
		Step:    1,
		Replies: []messenger.Payload{messenger.TextPayload("✅ Xabar qabul qilindi! Endi tugmalarni kiriting.", nil), buttonsPrompt()},
	}, nil
}

func (f *ComposeFlow) collectButtons(fields session.BroadcastFields, ev flow.Event) (flow.Transition, error) {
	text := ev.TrimmedText()
	if ev.Media != nil || text == "" {
		return flow.Transition{}, errkind.New(errkind.Validation, "broadcast.buttons", "❌ Tugma ma'lumotini matn ko'rinishida yuboring yoki 'skip' deb yozing.")
	}
	var buttons []session.ButtonSpec
	if !IsSkip(text) {
		parsed, err := ParseButtons(text)
		if err != nil {
			return flow.Transition{}, err
		}
		buttons = parsed
	}
	fields.Buttons = buttons
	fields.State = session.BroadcastReady
	return flow.Transition{
		Fields: fields,
		Step:   2,
		Replies: []messenger.Payload{
			JobFromFields(fields).Payload(),
			messenger.TextPayload("📢 Xabar yuborishga tayyor. Tugmalardan birini tanlang:", controlsKeyboard()),
		},
	}, nil
}

func (f *ComposeFlow) ready(ctx context.Context, fields session.BroadcastFields, ev flow.Event) (flow.Transition, error) {
	switch ev.Action {
	case CallbackReenterButtons:
		fields.Buttons = nil
		fields.State = session.BroadcastCollectingButtons
		return flow.Transition{Fields: fields, Step: 1, Replies: []messenger.Payload{buttonsPrompt()}}, nil
	case CallbackSend:
		recipients, err := f.recipients.ListUserIDs(ctx)
		if err != nil {
			return flow.Transition{}, err
		}
		report := f.engine.Send(ctx, JobFromFields(fields), recipients)
		text := fmt.Sprintf("✅ Xabar yuborildi!\n\n👥 Jami: %d\n✅ Muvaffaqiyatli: %d\n❌ Xatolik: %d", report.Total, report.Success, report.Failed)
		return flow.Transition{Done: true, Replies: []messenger.Payload{messenger.TextPayload(text, nil)}}, nil
	default:
		return flow.Transition{}, errkind.New(errkind.Validation, "broadcast.ready", "📢 Xabar allaqachon tayyor. '✅ Yuborish' tugmasini bosing yoki '❌ Bekor qilish'ni tanlang.")
	}
}
