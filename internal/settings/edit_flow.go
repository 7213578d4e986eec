package settings

import (
	"context"
	"fmt"
	"html"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/ibrohim2505/prokinobot/internal/errkind"
	"github.com/ibrohim2505/prokinobot/internal/flow"
	"github.com/ibrohim2505/prokinobot/internal/messenger"
	"github.com/ibrohim2505/prokinobot/internal/permissions"
	"github.com/ibrohim2505/prokinobot/internal/session"
	log "github.com/sirupsen/logrus"
)

// Edit targets.
const (
	TargetStartMessage        = "start_message"
	TargetSubscriptionMessage = "subscription_message"
	TargetPremiumDescription  = "premium_description"
	TargetPremiumCard         = "premium_card"
	TargetPremiumPrices       = "premium_prices"
	TargetPromoText           = "promo_text"
	TargetPromoURL            = "promo_url"
	TargetBaseChannel         = "base_channel"
)

const maxTextLength = 4000

type editTarget struct {
	capability string
	prompt     func() string
	apply      func(f *EditFlow, ctx context.Context, ev flow.Event) (string, error)
}

var editTargets = map[string]editTarget{
	TargetStartMessage: {
		capability: permissions.AnyAdmin,
		prompt: func() string {
			return "📝 <b>/start xabarini tahrirlash</b>\n\nJoriy xabar:\n<pre>" + html.EscapeString(LoadStartMessage()) + "</pre>\n\nO'zgaruvchilar: {first_name}, {last_name}, {full_name}, {username}, {user_id}, {premium_hint}"
		},
		apply: func(f *EditFlow, ctx context.Context, ev flow.Event) (string, error) {
			text, err := longText(ev)
			if err != nil {
				return "", err
			}
			return "✅ /start xabari yangilandi.", f.svc.SetStartMessage(ctx, text)
		},
	},
	TargetSubscriptionMessage: {
		capability: permissions.Channels,
		prompt: func() string {
			return "📝 Majburiy obuna xabarini yuboring.\n\nJoriy xabar:\n<pre>" + html.EscapeString(LoadSubscription().Message) + "</pre>"
		},
		apply: func(f *EditFlow, ctx context.Context, ev flow.Event) (string, error) {
			text, err := longText(ev)
			if err != nil {
				return "", err
			}
			return "✅ Obuna xabari yangilandi.", f.svc.UpdateSubscription(ctx, func(s *Subscription) { s.Message = text })
		},
	},
	TargetPremiumDescription: {
		capability: permissions.Premium,
		prompt:     func() string { return "📝 Premium tavsifini yuboring." },
		apply: func(f *EditFlow, ctx context.Context, ev flow.Event) (string, error) {
			text, err := longText(ev)
			if err != nil {
				return "", err
			}
			return "✅ Premium tavsifi yangilandi.", f.svc.UpdatePremium(ctx, func(p *Premium) { p.Description = text })
		},
	},
	TargetPremiumCard: {
		capability: permissions.Premium,
		prompt:     func() string { return "💳 To'lov kartasi ma'lumotini yuboring." },
		apply: func(f *EditFlow, ctx context.Context, ev flow.Event) (string, error) {
			text, err := longText(ev)
			if err != nil {
				return "", err
			}
			return "✅ Karta ma'lumoti yangilandi.", f.svc.UpdatePremium(ctx, func(p *Premium) { p.CardInfo = text })
		},
	},
	TargetPremiumPrices: {
		capability: permissions.Premium,
		prompt: func() string {
			return "💰 Narxlarni har bir qatorda <code>oy: summa</code> ko'rinishida yuboring:\n<code>1: 12000\n3: 36000</code>"
		},
		apply: func(f *EditFlow, ctx context.Context, ev flow.Event) (string, error) {
			prices, err := ParsePrices(ev.TrimmedText())
			if err != nil {
				return "", err
			}
			return "✅ Narxlar yangilandi.", f.svc.UpdatePremium(ctx, func(p *Premium) {
				for months, amount := range prices {
					p.Prices[strconv.Itoa(months)] = amount
				}
			})
		},
	},
	TargetPromoText: {
		capability: permissions.Movies,
		prompt:     func() string { return "🔘 Yangi tugma matnini yuboring." },
		apply: func(f *EditFlow, ctx context.Context, ev flow.Event) (string, error) {
			text := ev.TrimmedText()
			if text == "" || utf8.RuneCountInString(text) > 64 {
				return "", errkind.New(errkind.Validation, "settings.promo_text", "❌ Tugma matni 1 dan 64 belgigacha bo'lishi kerak.")
			}
			return "✅ Tugma matni yangilandi.", f.svc.UpdateChannelButton(ctx, func(b *ChannelButton) { b.Text = text })
		},
	},
	TargetPromoURL: {
		capability: permissions.Movies,
		prompt:     func() string { return "🔗 Tugma havolasini yuboring (https://t.me/...)." },
		apply: func(f *EditFlow, ctx context.Context, ev flow.Event) (string, error) {
			url := ev.TrimmedText()
			if !strings.HasPrefix(url, "https://t.me/") || len(url) <= len("https://t.me/") {
				return "", errkind.New(errkind.Validation, "settings.promo_url", "❌ Havola https://t.me/ bilan boshlanishi kerak.")
			}
			return "✅ Tugma havolasi yangilandi.", f.svc.UpdateChannelButton(ctx, func(b *ChannelButton) {
				b.URL = url
				b.Enabled = true
			})
		},
	},
	TargetBaseChannel: {
		capability: permissions.Channels,
		prompt: func() string {
			return "📢 Asosiy kanaldan xabar forward qiling yoki kanal @username / ID sini yuboring.\n\n⚠️ Bot kanalda admin bo'lishi kerak."
		},
		apply: (*EditFlow).applyBaseChannel,
	},
}

// ChatLookup resolves chats and the bot's membership in them.
type ChatLookup interface {
	GetChat(ctx context.Context, chat string) (messenger.Chat, error)
	GetChatMember(ctx context.Context, chat string, userID int64) (messenger.Member, error)
}

// EditFlow replaces one setting with a single text input.
type EditFlow struct {
	svc   *Service
	chats ChatLookup
	botID int64
}

func NewEditFlow(svc *Service, chats ChatLookup, botID int64) *EditFlow {
	return &EditFlow{svc: svc, chats: chats, botID: botID}
}

func (f *EditFlow) Kind() session.Kind { return session.KindSettingEdit }

// Capability is the fallback when no target is known.
func (f *EditFlow) Capability() string { return permissions.Admins }

// CapabilityFor returns the capability that guards the edited setting.
func (f *EditFlow) CapabilityFor(fields session.Fields) string {
	if edit, ok := fields.(session.SettingEditFields); ok {
		if target, found := editTargets[edit.Target]; found {
			return target.capability
		}
	}
	return f.Capability()
}

func (f *EditFlow) Begin(_ context.Context, _ int64, initial session.Fields) (session.Fields, []messenger.Payload, error) {
	edit, _ := initial.(session.SettingEditFields)
	target, ok := editTargets[edit.Target]
	if !ok {
		return nil, nil, errkind.New(errkind.Validation, "settings.edit", "unknown setting "+edit.Target)
	}
	return edit, []messenger.Payload{messenger.TextPayload(target.prompt()+"\n\nBekor qilish: /cancel", nil)}, nil
}

func (f *EditFlow) Step(ctx context.Context, s session.FlowSession, ev flow.Event) (flow.Transition, error) {
	edit, _ := s.Fields.(session.SettingEditFields)
	target, ok := editTargets[edit.Target]
	if !ok {
		return flow.Transition{}, fmt.Errorf("settings: unknown edit target %q", edit.Target)
	}
	done, err := target.apply(f, ctx, ev)
	if err != nil {
		return flow.Transition{}, err
	}
	log.WithFields(log.Fields{"user_id": ev.UserID, "setting": edit.Target}).Info("setting updated")
	return flow.Transition{Done: true, Replies: []messenger.Payload{messenger.TextPayload(done, nil)}}, nil
}

func (f *EditFlow) applyBaseChannel(ctx context.Context, ev flow.Event) (string, error) {
	ref := ev.TrimmedText()
	if fc := ev.ForwardedChat; fc != nil {
		ref = strconv.FormatInt(fc.ID, 10)
	}
	if ref == "" {
		return "", errkind.New(errkind.Validation, "settings.base_channel", "❌ Kanal xabarini forward qiling yoki @username yuboring.")
	}
	ref = strings.TrimPrefix(strings.TrimPrefix(ref, "https://t.me/"), "t.me/")
	if _, errParse := strconv.ParseInt(ref, 10, 64); errParse != nil && !strings.HasPrefix(ref, "@") {
		ref = "@" + ref
	}
	chat, errChat := f.chats.GetChat(ctx, ref)
	if errChat != nil || chat.Type != messenger.ChatChannel {
		return "", errkind.New(errkind.Validation, "settings.base_channel", "❌ Kanal topilmadi.")
	}
	if f.botID != 0 {
		member, errMember := f.chats.GetChatMember(ctx, strconv.FormatInt(chat.ID, 10), f.botID)
		if errMember != nil || (member.Status != messenger.StatusAdministrator && member.Status != messenger.StatusCreator) {
			return "", errkind.New(errkind.Validation, "settings.base_channel", "❌ Bot kanalda admin emas.")
		}
	}
	base := BaseChannel{ChatID: chat.ID, Title: chat.DisplayName(), Username: chat.Username}
	if err := f.svc.SetBaseChannel(ctx, base); err != nil {
		return "", err
	}
	return fmt.Sprintf("✅ Asosiy kanal: <b>%s</b> (<code>%d</code>)", html.EscapeString(base.Title), base.ChatID), nil
}

func longText(ev flow.Event) (string, error) {
	text := ev.TrimmedText()
	if ev.Media != nil || text == "" {
		return "", errkind.New(errkind.Validation, "settings.text", "❌ Matn yuboring.")
	}
	if utf8.RuneCountInString(text) > maxTextLength {
		return "", errkind.New(errkind.Validation, "settings.text", "❌ Matn juda uzun.")
	}
	return text, nil
}

// ParsePrices parses "months: amount" lines. Only plan durations are accepted.
func ParsePrices(text string) (map[int]int64, error) {
	out := map[int]int64{}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		monthsText, amountText, found := strings.Cut(line, ":")
		if !found {
			return nil, errkind.New(errkind.Validation, "settings.prices", "❌ Format: <code>oy: summa</code>")
		}
		months, errMonths := strconv.Atoi(strings.TrimSpace(monthsText))
		amount, errAmount := strconv.ParseInt(strings.ReplaceAll(strings.TrimSpace(amountText), " ", ""), 10, 64)
		if errMonths != nil || errAmount != nil || amount <= 0 || !slices.Contains(PlanMonths, months) {
			return nil, errkind.New(errkind.Validation, "settings.prices", "❌ Noto'g'ri qator: "+html.EscapeString(line))
		}
		out[months] = amount
	}
	if len(out) == 0 {
		return nil, errkind.New(errkind.Validation, "settings.prices", "❌ Kamida bitta narx yuboring.")
	}
	return out, nil
}
