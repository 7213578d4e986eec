package content

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"unicode/utf8"

	"github.com/ibrohim2505/prokinobot/internal/errkind"
	"github.com/ibrohim2505/prokinobot/internal/flow"
	"github.com/ibrohim2505/prokinobot/internal/messenger"
	"github.com/ibrohim2505/prokinobot/internal/permissions"
	"github.com/ibrohim2505/prokinobot/internal/session"
)

const maxTextField = 200

// Movie-add steps.
const (
	stepMedia = iota
	stepName
	stepGenre
	stepCode
)

// MovieAddFlow collects media, name, genre and code, then publishes the item.
type MovieAddFlow struct {
	publisher *Publisher
}

// NewMovieAddFlow constructs the flow.
func NewMovieAddFlow(publisher *Publisher) *MovieAddFlow {
	return &MovieAddFlow{publisher: publisher}
}

func (f *MovieAddFlow) Kind() session.Kind { return session.KindMovieAdd }

func (f *MovieAddFlow) Capability() string { return permissions.Movies }

func (f *MovieAddFlow) Begin(context.Context, int64, session.Fields) (session.Fields, []messenger.Payload, error) {
	if _, err := RequireBaseChannel(); err != nil {
		return nil, nil, err
	}
	return session.MovieAddFields{}, prompt("🎬 Kino videosini yuboring.\n\nBekor qilish: /cancel"), nil
}

func (f *MovieAddFlow) Step(ctx context.Context, s session.FlowSession, ev flow.Event) (flow.Transition, error) {
	fields, _ := s.Fields.(session.MovieAddFields)
	switch s.Step {
	case stepMedia:
		if ev.Media == nil || (ev.Media.Kind != messenger.KindVideo && ev.Media.Kind != messenger.KindDocument) {
			return flow.Transition{}, errkind.New(errkind.Validation, "movie_add.media", "❌ Iltimos, video yoki fayl yuboring.")
		}
		fields.MediaKind = string(ev.Media.Kind)
		fields.FileID = ev.Media.FileID
		fields.DurationSeconds = ev.Media.Duration
		return flow.Transition{Fields: fields, Step: stepName, Replies: prompt("📝 Kino nomini yuboring.")}, nil

	case stepName:
		name, err := requiredText(ev, "movie_add.name", "❌ Kino nomini matn ko'rinishida yuboring.")
		if err != nil {
			return flow.Transition{}, err
		}
		fields.Name = name
		return flow.Transition{Fields: fields, Step: stepGenre, Replies: prompt("🎭 Kino janrini yuboring.")}, nil

	case stepGenre:
		genre, err := requiredText(ev, "movie_add.genre", "❌ Janrni matn ko'rinishida yuboring.")
		if err != nil {
			return flow.Transition{}, err
		}
		fields.Genre = genre
		next, errNext := f.publisher.Registry().NextCode(ctx)
		if errNext != nil {
			return flow.Transition{}, errNext
		}
		text := fmt.Sprintf("🔢 Kino kodini yuboring (%d-%d).\n\nTavsiya: <code>%d</code>", MinCode, MaxCode, next)
		return flow.Transition{Fields: fields, Step: stepCode, Replies: prompt(text)}, nil

	case stepCode:
		n, err := ParseNumericCode(ev.TrimmedText())
		if err != nil {
			return flow.Transition{}, err
		}
		code := strconv.Itoa(n)
		exists, errExists := f.publisher.Registry().CodeExists(ctx, code)
		if errExists != nil {
			return flow.Transition{}, errExists
		}
		if exists {
			return flow.Transition{}, f.codeTaken(ctx, code)
		}
		published, errPublish := f.publisher.Publish(ctx, Draft{
			Code:            code,
			MediaKind:       messenger.ContentKind(fields.MediaKind),
			FileID:          fields.FileID,
			Name:            fields.Name,
			Genre:           fields.Genre,
			DurationSeconds: fields.DurationSeconds,
		})
		if errkind.Is(errPublish, errkind.Conflict) {
			return flow.Transition{}, f.codeTaken(ctx, code)
		}
		if errPublish != nil {
			return flow.Transition{}, errPublish
		}
		text := fmt.Sprintf("✅ Kino qo'shildi!\n\n🎬 %s\n🔢 Kod: <code>%s</code>\n📢 Kanal: <code>%d</code>\n🆔 Xabar: <code>%d</code>",
			html.EscapeString(fields.Name), code, published.ChannelID, published.MessageID)
		return flow.Transition{Done: true, Replies: prompt(text)}, nil

	default:
		return flow.Transition{}, fmt.Errorf("movie_add: unknown step %d", s.Step)
	}
}

func (f *MovieAddFlow) codeTaken(ctx context.Context, code string) error {
	next, err := f.publisher.Registry().NextCode(ctx)
	if err != nil {
		return err
	}
	return errkind.New(errkind.Conflict, "movie_add.code", fmt.Sprintf("❌ %s kodi band. Bo'sh kod: <code>%d</code>", code, next))
}

func requiredText(ev flow.Event, op, msg string) (string, error) {
	text := ev.TrimmedText()
	if text == "" || ev.Media != nil {
		return "", errkind.New(errkind.Validation, op, msg)
	}
	if utf8.RuneCountInString(text) > maxTextField {
		return "", errkind.New(errkind.Validation, op, fmt.Sprintf("❌ Matn %d belgidan oshmasin.", maxTextField))
	}
	return text, nil
}

func prompt(text string) []messenger.Payload {
	return []messenger.Payload{messenger.TextPayload(text, nil)}
}
