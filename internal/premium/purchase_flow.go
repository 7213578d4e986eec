package premium

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/ibrohim2505/prokinobot/internal/errkind"
	"github.com/ibrohim2505/prokinobot/internal/flow"
	"github.com/ibrohim2505/prokinobot/internal/messenger"
	"github.com/ibrohim2505/prokinobot/internal/models"
	"github.com/ibrohim2505/prokinobot/internal/session"
	"github.com/ibrohim2505/prokinobot/internal/settings"
)

// User-side actions carried in "userprem:<action>:<value>".
const (
	userPlan    = "plan"
	userConfirm = "confirm"
	userBack    = "back"
	userCancel  = "cancel"
)

const inactiveText = "Premium obuna hozir faol emas."

// PendingText answers a user whose receipt is still under review.
const PendingText = "⏳ Chekingiz tekshirilmoqda. Admin tasdiqlashini kuting."

// UserCallback builds the callback data of a purchase button.
func UserCallback(action string, value int) string {
	return UserCallbackPrefix + action + ":" + strconv.Itoa(value)
}

func parseUserCallback(data string) (action string, value int, ok bool) {
	rest, found := strings.CutPrefix(data, UserCallbackPrefix)
	if !found {
		return "", 0, false
	}
	action, valueText, _ := strings.Cut(rest, ":")
	value, _ = strconv.Atoi(valueText)
	return action, value, action != ""
}

// PurchaseFlow walks a user through plan selection and receipt upload.
type PurchaseFlow struct {
	svc *Service
}

func NewPurchaseFlow(svc *Service) *PurchaseFlow {
	return &PurchaseFlow{svc: svc}
}

func (f *PurchaseFlow) Kind() session.Kind { return session.KindPremium }

func (f *PurchaseFlow) Capability() string { return "" }

// Begin refuses to start while premium is inactive or the user has a pending request.
func (f *PurchaseFlow) Begin(ctx context.Context, userID int64, _ session.Fields) (session.Fields, []messenger.Payload, error) {
	cfg := settings.LoadPremium()
	if !cfg.Active {
		return nil, nil, errkind.New(errkind.Validation, "premium.begin", inactiveText)
	}
	pending, err := f.svc.Pending(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	if pending {
		return nil, nil, errkind.New(errkind.Conflict, "premium.begin", PendingText)
	}
	return session.PremiumFields{State: session.PremiumAwaitingPlan}, []messenger.Payload{plansPayload(cfg)}, nil
}

func (f *PurchaseFlow) Step(ctx context.Context, s session.FlowSession, ev flow.Event) (flow.Transition, error) {
	fields, _ := s.Fields.(session.PremiumFields)
	cfg := settings.LoadPremium()
	if !cfg.Active {
		return flow.Transition{Done: true, Replies: []messenger.Payload{messenger.TextPayload(inactiveText, nil)}}, nil
	}

	action, value, isAction := parseUserCallback(ev.Action)
	if isAction {
		switch action {
		case userCancel:
			return flow.Transition{Done: true, Replies: []messenger.Payload{messenger.TextPayload("❌ Premium obuna jarayoni bekor qilindi.", nil)}}, nil
		case userBack:
			return flow.Transition{Fields: session.PremiumFields{State: session.PremiumAwaitingPlan}, Step: 0, Replies: []messenger.Payload{plansPayload(cfg)}}, nil
		}
	}

	switch fields.State {
	case session.PremiumAwaitingPlan:
		if !isAction || action != userPlan {
			return flow.Transition{}, errkind.New(errkind.Validation, "premium.plan", "👆 Tariflardan birini tanlang.")
		}
		amount, ok := planPrice(cfg, value)
		if !ok {
			return flow.Transition{}, errkind.New(errkind.Validation, "premium.plan", "❌ Bunday tarif yo'q.")
		}
		next := session.PremiumFields{State: session.PremiumPlanSelected, Months: value, Amount: amount}
		text := fmt.Sprintf("💳 <b>%s tarifi</b>\n\nNarx: %s\n\nDavom etish uchun \"Tasdiqlash\" tugmasini bosing.", PlanLabel(value), FormatAmount(amount))
		kb := messenger.Keyboard{
			{{Text: "✅ Tasdiqlash", CallbackData: UserCallback(userConfirm, value)}},
			{{Text: "◀️ Orqaga", CallbackData: UserCallback(userBack, 0)}},
		}
		return flow.Transition{Fields: next, Step: 1, Replies: []messenger.Payload{messenger.TextPayload(text, kb)}}, nil

	case session.PremiumPlanSelected:
		if !isAction || action != userConfirm {
			return flow.Transition{}, errkind.New(errkind.Validation, "premium.confirm", "👆 \"Tasdiqlash\" yoki \"Orqaga\" tugmasini bosing.")
		}
		fields.State = session.PremiumAwaitingReceipt
		card := strings.TrimSpace(cfg.CardInfo)
		if card == "" {
			card = "Admin bilan bog'laning."
		}
		text := fmt.Sprintf("✅ <b>Tarif tasdiqlandi</b>\n\nTarif: %s\nSumma: %s\n💳 To'lov uchun karta: %s\n\nTo'lovni amalga oshirgach, chekni PDF yoki skrinshot ko'rinishida shu chatga yuboring.\nChek yuborilgach, admin tasdiqlashini kuting.",
			PlanLabel(fields.Months), FormatAmount(fields.Amount), card)
		kb := messenger.Keyboard{
			{{Text: "◀️ Tariflar", CallbackData: UserCallback(userBack, 0)}},
			{{Text: "❌ Bekor qilish", CallbackData: UserCallback(userCancel, 0)}},
		}
		return flow.Transition{Fields: fields, Step: 2, Replies: []messenger.Payload{messenger.TextPayload(text, kb)}}, nil

	case session.PremiumAwaitingReceipt:
		kind, fileID, ok := receipt(ev.Media)
		if !ok {
			return flow.Transition{}, errkind.New(errkind.Validation, "premium.receipt", "📎 Iltimos, to'lov chekini PDF yoki skrinshot ko'rinishida yuboring.")
		}
		req := &models.PremiumRequest{
			RequesterID:     ev.UserID,
			RequesterChatID: ev.ChatID,
			FirstName:       ev.From.FirstName,
			Username:        ev.From.Username,
			PlanLabel:       PlanLabel(fields.Months),
			DurationMonths:  fields.Months,
			Amount:          fields.Amount,
			ReceiptFileID:   fileID,
			ReceiptKind:     kind,
		}
		if err := f.svc.Submit(ctx, req); err != nil {
			return flow.Transition{}, err
		}
		return flow.Transition{Done: true, Replies: []messenger.Payload{messenger.TextPayload("✅ Chek qabul qilindi!\n\nChek tekshirilmoqda, admin tasdiqlashini kuting.", nil)}}, nil

	default:
		return flow.Transition{}, fmt.Errorf("premium: unexpected state %q", fields.State)
	}
}

func planPrice(cfg settings.Premium, months int) (int64, bool) {
	if !slices.Contains(settings.PlanMonths, months) {
		return 0, false
	}
	return cfg.Price(months)
}

// receipt accepts a photo, or a document that is an image or a PDF.
func receipt(m *messenger.Media) (kind, fileID string, ok bool) {
	if m == nil || m.FileID == "" {
		return "", "", false
	}
	switch m.Kind {
	case messenger.KindPhoto:
		return models.ReceiptKindPhoto, m.FileID, true
	case messenger.KindDocument:
		mime := strings.ToLower(m.MimeType)
		if strings.HasPrefix(mime, "image/") || mime == "application/pdf" {
			return models.ReceiptKindDocument, m.FileID, true
		}
	}
	return "", "", false
}

func plansPayload(cfg settings.Premium) messenger.Payload {
	parts := []string{"💎 <b>Premium obuna tariflari</b>"}
	if desc := strings.TrimSpace(cfg.Description); desc != "" {
		parts = append(parts, desc)
	}
	parts = append(parts, "Quyidagi tariflardan birini tanlang:")

	kb := make(messenger.Keyboard, 0, len(settings.PlanMonths)+1)
	for _, months := range settings.PlanMonths {
		amount, _ := cfg.Price(months)
		kb = append(kb, []messenger.Button{{Text: PlanLabel(months) + " - " + FormatAmount(amount), CallbackData: UserCallback(userPlan, months)}})
	}
	kb = append(kb, []messenger.Button{{Text: "❌ Bekor qilish", CallbackData: UserCallback(userCancel, 0)}})
	return messenger.TextPayload(strings.Join(parts, "\n\n"), kb)
}
