package channels

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"strings"

	"github.com/ibrohim2505/prokinobot/internal/errkind"
	"github.com/ibrohim2505/prokinobot/internal/flow"
	"github.com/ibrohim2505/prokinobot/internal/messenger"
	"github.com/ibrohim2505/prokinobot/internal/models"
	"github.com/ibrohim2505/prokinobot/internal/permissions"
	"github.com/ibrohim2505/prokinobot/internal/session"
	log "github.com/sirupsen/logrus"
)

// Store is the subset of the store the flow needs.
type Store interface {
	ListChannelRequirements(ctx context.Context) ([]models.ChannelRequirement, error)
	CreateChannelRequirement(ctx context.Context, req *models.ChannelRequirement) error
	DeleteChannelRequirement(ctx context.Context, id uint64) error
}

// ConfigFlow adds one channel requirement.
type ConfigFlow struct {
	store Store
	msg   messenger.Messenger
	botID int64
}

// NewConfigFlow constructs the flow. botID is used to check the bot is an admin of
// checkable channels.
func NewConfigFlow(store Store, msg messenger.Messenger, botID int64) *ConfigFlow {
	return &ConfigFlow{store: store, msg: msg, botID: botID}
}

func (f *ConfigFlow) Kind() session.Kind { return session.KindChannelConfig }

func (f *ConfigFlow) Capability() string { return permissions.Channels }

func (f *ConfigFlow) Begin(_ context.Context, _ int64, initial session.Fields) (session.Fields, []messenger.Payload, error) {
	fields, _ := initial.(session.ChannelConfigFields)
	if fields.Class == "" {
		fields.Class = models.VerificationCheckable
		fields.Required = true
	}
	var text string
	switch fields.Class {
	case models.VerificationCheckable:
		text = "📢 Kanaldan xabar forward qiling yoki @username / ID yuboring.\n\nYopiq kanal uchun ikkinchi qatorda taklif havolasini yuboring.\n\n⚠️ Bot kanalda admin bo'lishi kerak."
	case models.VerificationRequestOnly:
		text = "🔐 So'rovli kanal taklif havolasini yuboring:\n<code>Nomi | https://t.me/+xxxx</code>"
	case models.VerificationExternalLink:
		text = "🔗 Havolani yuboring:\n<code>Nomi | https://example.com</code>\n\nYoki Instagram username / profil havolasi."
	default:
		return nil, nil, errkind.New(errkind.Validation, "channel_config.begin", "unknown verification class "+fields.Class)
	}
	return fields, []messenger.Payload{messenger.TextPayload(text+"\n\nBekor qilish: /cancel", nil)}, nil
}

func (f *ConfigFlow) Step(ctx context.Context, s session.FlowSession, ev flow.Event) (flow.Transition, error) {
	fields, _ := s.Fields.(session.ChannelConfigFields)
	var (
		req *models.ChannelRequirement
		err error
	)
	switch fields.Class {
	case models.VerificationCheckable:
		req, err = f.checkable(ctx, ev)
	case models.VerificationRequestOnly:
		req, err = requestOnly(ev.TrimmedText())
	case models.VerificationExternalLink:
		req, err = externalLink(ev.TrimmedText())
	default:
		err = fmt.Errorf("channel_config: unknown class %q", fields.Class)
	}
	if err != nil {
		return flow.Transition{}, err
	}
	req.Required = fields.Required
	req.VerificationClass = fields.Class

	if errCreate := f.store.CreateChannelRequirement(ctx, req); errCreate != nil {
		if errkind.Is(errCreate, errkind.Conflict) {
			return flow.Transition{}, errkind.New(errkind.Conflict, "channel_config.create", "⚠️ Bu kanal allaqachon qo'shilgan.")
		}
		return flow.Transition{}, errCreate
	}
	log.WithFields(log.Fields{"user_id": ev.UserID, "target": req.Target, "class": req.VerificationClass}).Info("channel requirement added")
	text := fmt.Sprintf("✅ Qo'shildi: <b>%s</b>\n🆔 <code>%s</code>", html.EscapeString(req.DisplayName), html.EscapeString(req.Target))
	return flow.Transition{Done: true, Replies: []messenger.Payload{messenger.TextPayload(text, nil)}}, nil
}

func (f *ConfigFlow) checkable(ctx context.Context, ev flow.Event) (*models.ChannelRequirement, error) {
	lines := strings.Split(ev.TrimmedText(), "\n")
	var target, inviteURL string
	if fc := ev.ForwardedChat; fc != nil {
		target = strconv.FormatInt(fc.ID, 10)
		if len(lines) > 0 && IsInviteLink(lines[0]) {
			inviteURL = strings.TrimSpace(lines[0])
		}
	} else {
		first := strings.TrimSpace(lines[0])
		if len(lines) > 1 && IsInviteLink(lines[1]) {
			inviteURL = strings.TrimSpace(lines[1])
		}
		switch {
		case first == "":
			return nil, errkind.New(errkind.Validation, "channel_config.checkable", "❌ Kanal xabarini forward qiling yoki @username yuboring.")
		case IsInviteLink(first):
			return nil, errkind.New(errkind.Validation, "channel_config.checkable", "❌ Yopiq havola tekshirib bo'lmaydi. Kanal ID sini yuboring yoki uni so'rovli kanal sifatida qo'shing.")
		default:
			if _, errParse := strconv.ParseInt(first, 10, 64); errParse == nil {
				target = first
			} else if name, ok := PublicUsername(first); ok {
				target = "@" + name
			} else {
				return nil, errkind.New(errkind.Validation, "channel_config.checkable", "❌ Noto'g'ri format. @username, ID yoki t.me/username yuboring.")
			}
		}
	}

	chat, errChat := f.msg.GetChat(ctx, target)
	if errChat != nil {
		return nil, errkind.Wrapf(errkind.Validation, "channel_config.checkable", errChat, "❌ Kanal topilmadi. Bot kanalga qo'shilganini tekshiring.")
	}
	if chat.Type == messenger.ChatPrivate {
		return nil, errkind.New(errkind.Validation, "channel_config.checkable", "❌ Bu kanal emas.")
	}
	if f.botID != 0 {
		member, errMember := f.msg.GetChatMember(ctx, strconv.FormatInt(chat.ID, 10), f.botID)
		if errMember != nil || (member.Status != messenger.StatusAdministrator && member.Status != messenger.StatusCreator) {
			return nil, errkind.New(errkind.Validation, "channel_config.checkable", "❌ Bot kanalda admin emas. Avval botni admin qiling.")
		}
	}
	req := &models.ChannelRequirement{
		Target:      strconv.FormatInt(chat.ID, 10),
		DisplayName: chat.DisplayName(),
		Username:    chat.Username,
		URL:         inviteURL,
	}
	return req, nil
}

// splitLabel splits "Label | value"; without a separator the label is empty.
func splitLabel(text string) (label, value string) {
	if idx := strings.Index(text, "|"); idx >= 0 {
		return strings.TrimSpace(text[:idx]), strings.TrimSpace(text[idx+1:])
	}
	return "", strings.TrimSpace(text)
}

func requestOnly(text string) (*models.ChannelRequirement, error) {
	label, link := splitLabel(text)
	if !IsInviteLink(link) {
		return nil, errkind.New(errkind.Validation, "channel_config.request_only", "❌ Taklif havolasi t.me/+ yoki t.me/joinchat/ ko'rinishida bo'lishi kerak.")
	}
	if !strings.Contains(link, "://") {
		link = "https://" + link
	}
	if label == "" {
		label = "🔐 Kanal"
	}
	return &models.ChannelRequirement{Target: link, DisplayName: label, URL: link}, nil
}

func externalLink(text string) (*models.ChannelRequirement, error) {
	label, value := splitLabel(text)
	if profile, username, ok := NormalizeInstagram(value); ok && (label == "" || strings.Contains(strings.ToLower(value), "instagram.com")) {
		if label == "" {
			label = "📸 Instagram"
		}
		return &models.ChannelRequirement{Target: profile, DisplayName: label, Username: username, URL: profile}, nil
	}
	if label == "" || !ValidExternalURL(value) {
		return nil, errkind.New(errkind.Validation, "channel_config.external_link", "❌ Format: <code>Nomi | https://example.com</code>")
	}
	return &models.ChannelRequirement{Target: value, DisplayName: label, URL: value}, nil
}
