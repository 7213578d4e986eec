package content

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/ibrohim2505/prokinobot/internal/errkind"
	"github.com/ibrohim2505/prokinobot/internal/messenger"
	"github.com/ibrohim2505/prokinobot/internal/models"
	"github.com/ibrohim2505/prokinobot/internal/settings"
	log "github.com/sirupsen/logrus"
)

const maxGenerateAttempts = 5

// Draft is a content item that has not been posted yet.
type Draft struct {
	Code            string
	MediaKind       messenger.ContentKind
	FileID          string
	Name            string
	Genre           string
	DurationSeconds int
}

// Published is the result of a successful publish.
type Published struct {
	Item      models.ContentItem
	ChannelID int64
	MessageID int
}

// Publisher posts drafts to the origin channel and records them in the registry.
type Publisher struct {
	registry *Registry
	msg      messenger.Messenger
}

// NewPublisher constructs a Publisher.
func NewPublisher(registry *Registry, msg messenger.Messenger) *Publisher {
	return &Publisher{registry: registry, msg: msg}
}

// Registry returns the registry the publisher writes to.
func (p *Publisher) Registry() *Registry { return p.registry }

// RequireBaseChannel returns the origin channel or a Validation error when unset.
func RequireBaseChannel() (settings.BaseChannel, error) {
	ch, ok := settings.LoadBaseChannel()
	if !ok {
		return settings.BaseChannel{}, errkind.New(errkind.Validation, "content.base_channel", "⚠️ Avval asosiy kanalni sozlang: /setchannel")
	}
	return ch, nil
}

// Publish posts the draft and stores the item. The code must already be validated.
func (p *Publisher) Publish(ctx context.Context, d Draft) (Published, error) {
	ch, err := RequireBaseChannel()
	if err != nil {
		return Published{}, err
	}
	if exists, errExists := p.registry.CodeExists(ctx, d.Code); errExists != nil {
		return Published{}, errExists
	} else if exists {
		return Published{}, errkind.Wrapf(errkind.Conflict, "content.publish", ErrCodeTaken, "❌ %s kodi band.", d.Code)
	}

	button, hasButton := settings.LoadChannelButton()
	payload := messenger.Payload{
		Kind:      d.MediaKind,
		FileID:    d.FileID,
		Text:      Caption(d, button, hasButton),
		ParseMode: "HTML",
	}
	if hasButton {
		payload.Keyboard = PromoKeyboard(button)
	}
	ref, errSend := p.msg.SendContent(ctx, ch.ChatID, payload)
	if errSend != nil {
		return Published{}, errkind.Wrapf(errkind.Transport, "content.publish", errSend, "❌ Kanalga yuborib bo'lmadi. Bot kanalda admin ekanini tekshiring.")
	}

	item := models.ContentItem{
		Code:            d.Code,
		OriginChannelID: ch.ChatID,
		OriginMessageID: ref.MessageID,
	}
	if name := strings.TrimSpace(d.Name); name != "" {
		item.Name = &name
	}
	if genre := strings.TrimSpace(d.Genre); genre != "" {
		item.Genre = &genre
	}
	if d.DurationSeconds > 0 {
		duration := d.DurationSeconds
		item.DurationSeconds = &duration
	}
	if errCreate := p.registry.Create(ctx, &item); errCreate != nil {
		log.WithError(errCreate).WithFields(log.Fields{"code": d.Code, "message_id": ref.MessageID}).Error("content posted but not recorded")
		return Published{}, errCreate
	}
	log.WithFields(log.Fields{"code": item.Code, "channel_id": ch.ChatID, "message_id": ref.MessageID}).Info("content published")
	return Published{Item: item, ChannelID: ch.ChatID, MessageID: ref.MessageID}, nil
}

// QuickAdd publishes media under a freshly generated code.
func (p *Publisher) QuickAdd(ctx context.Context, media messenger.Media, name string) (Published, error) {
	if media.Kind != messenger.KindVideo && media.Kind != messenger.KindDocument {
		return Published{}, errkind.New(errkind.Validation, "content.quick_add", "❌ Faqat video yoki fayl qabul qilinadi.")
	}
	for attempt := 0; attempt < maxGenerateAttempts; attempt++ {
		code, errGen := GenerateCode()
		if errGen != nil {
			return Published{}, errGen
		}
		published, err := p.Publish(ctx, Draft{
			Code:            code,
			MediaKind:       media.Kind,
			FileID:          media.FileID,
			Name:            name,
			DurationSeconds: media.Duration,
		})
		if errkind.Is(err, errkind.Conflict) {
			continue
		}
		return published, err
	}
	return Published{}, errkind.New(errkind.Conflict, "content.quick_add", "❌ Bo'sh kod topilmadi, qaytadan urinib ko'ring.")
}

// Caption renders the channel post text of a draft.
func Caption(d Draft, button settings.ChannelButton, withButton bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🎬 <b>Nomi:</b> %s\n", html.EscapeString(orUnknown(d.Name)))
	fmt.Fprintf(&b, "🎭 <b>Janri:</b> %s\n", html.EscapeString(orUnknown(d.Genre)))
	fmt.Fprintf(&b, "⏱ <b>Davomiyligi:</b> %s\n", FormatDuration(d.DurationSeconds))
	fmt.Fprintf(&b, "🔢 <b>Kod:</b> <code>%s</code>", html.EscapeString(d.Code))
	if withButton && strings.TrimSpace(button.Text) != "" {
		fmt.Fprintf(&b, "\n\n%s", html.EscapeString(button.Text))
	}
	return b.String()
}

// FormatDuration renders seconds as "X soat Y daqiqa", "Y daqiqa" or "Noma'lum".
func FormatDuration(seconds int) string {
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	switch {
	case seconds <= 0:
		return "Noma'lum"
	case hours > 0:
		return fmt.Sprintf("%d soat %d daqiqa", hours, minutes)
	case minutes > 0:
		return fmt.Sprintf("%d daqiqa", minutes)
	default:
		return "Noma'lum"
	}
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "Noma'lum"
	}
	return s
}

// PromoKeyboard renders the promo button.
func PromoKeyboard(button settings.ChannelButton) messenger.Keyboard {
	return messenger.Keyboard{{{Text: button.Text, URL: button.URL}}}
}
