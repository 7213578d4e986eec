// Package premium runs the premium purchase wizard and the admin decision on submitted
// receipts.
package premium

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"

	"github.com/ibrohim2505/prokinobot/internal/directory"
	"github.com/ibrohim2505/prokinobot/internal/errkind"
	"github.com/ibrohim2505/prokinobot/internal/messenger"
	"github.com/ibrohim2505/prokinobot/internal/models"
	"github.com/ibrohim2505/prokinobot/internal/permissions"
	log "github.com/sirupsen/logrus"
)

// Callback prefixes.
const (
	UserCallbackPrefix     = "userprem:"
	DecisionCallbackPrefix = "premreq:"
)

// Decision actions.
const (
	ActionApprove = "approve"
	ActionReject  = "reject"
	ActionPartial = "partial"
)

// AlreadyReviewedText answers a decision on a request that is no longer pending.
const AlreadyReviewedText = "Bu chek allaqachon ko'rib chiqilgan"

// ErrAlreadyReviewed is wrapped in the Conflict error of a late decision.
var ErrAlreadyReviewed = errors.New("premium request already reviewed")

type outcome struct {
	status      string
	label       string
	userMessage string
}

var outcomes = map[string]outcome{
	ActionApprove: {models.PremiumStatusApproved, "✅ Tasdiqlandi", "✅ Chekingiz tasdiqlandi! Premium faollashtirilishi haqida admin bilan bog'lanamiz."},
	ActionReject:  {models.PremiumStatusRejected, "❌ Rad etildi", "❌ Chekingiz rad etildi. Iltimos, to'lovni qayta tekshirib, yangidan yuboring."},
	ActionPartial: {models.PremiumStatusPartial, "⚠️ To'liq emas", "⚠️ To'lov to'liq emas. Iltimos, qolgan summani to'lab, yangi chek yuboring."},
}

// StatusLabel returns the display label of a request status.
func StatusLabel(status string) string {
	for _, o := range outcomes {
		if o.status == status {
			return o.label
		}
	}
	return "⏳ Kutilmoqda"
}

// Store is the subset of the store premium needs.
type Store interface {
	CreatePremiumRequest(ctx context.Context, req *models.PremiumRequest) error
	GetPremiumRequest(ctx context.Context, id uint64) (*models.PremiumRequest, error)
	TransitionPremiumRequest(ctx context.Context, id uint64, from, to string, decidedBy int64) (bool, error)
	PendingPremiumRequestFor(ctx context.Context, requesterID int64) (*models.PremiumRequest, error)
}

// Admins lists who reviews receipts.
type Admins interface {
	Require(ctx context.Context, id int64, capability string) error
	AdminsWith(ctx context.Context, capability string) ([]directory.Account, error)
	ListAdmins(ctx context.Context) ([]directory.Account, error)
}

// Service creates requests, notifies reviewers and applies decisions.
type Service struct {
	store  Store
	admins Admins
	msg    messenger.Messenger
}

// NewService constructs a Service.
func NewService(store Store, admins Admins, msg messenger.Messenger) *Service {
	return &Service{store: store, admins: admins, msg: msg}
}

// Pending reports whether userID has a request awaiting a decision.
func (s *Service) Pending(ctx context.Context, userID int64) (bool, error) {
	_, err := s.store.PendingPremiumRequestFor(ctx, userID)
	if errkind.Is(err, errkind.NotFound) {
		return false, nil
	}
	return err == nil, err
}

// Submit stores a pending request and notifies the reviewers.
func (s *Service) Submit(ctx context.Context, req *models.PremiumRequest) error {
	req.Status = models.PremiumStatusPending
	if err := s.store.CreatePremiumRequest(ctx, req); err != nil {
		return err
	}
	log.WithFields(log.Fields{"request_id": req.ID, "user_id": req.RequesterID, "months": req.DurationMonths}).Info("premium request submitted")
	s.Notify(ctx, req)
	return nil
}

// Notify sends the receipt to every admin holding premium, or every admin when none
// does. It returns the number of admins reached.
func (s *Service) Notify(ctx context.Context, req *models.PremiumRequest) int {
	reviewers, err := s.admins.AdminsWith(ctx, permissions.Premium)
	if err == nil && len(reviewers) == 0 {
		reviewers, err = s.admins.ListAdmins(ctx)
	}
	if err != nil {
		log.WithError(err).WithField("request_id", req.ID).Warn("list premium reviewers failed")
		return 0
	}
	if len(reviewers) == 0 {
		log.WithField("request_id", req.ID).Warn("no admin to review premium request")
		return 0
	}

	payload := receiptPayload(req, "")
	payload.Keyboard = DecisionKeyboard(req.ID)
	reached := 0
	for _, admin := range reviewers {
		if _, errSend := s.msg.SendContent(ctx, admin.UserID, payload); errSend != nil {
			log.WithError(errSend).WithFields(log.Fields{"request_id": req.ID, "admin": admin.UserID}).Warn("notify premium reviewer failed")
			continue
		}
		reached++
	}
	return reached
}

// Decided is the result of a successful decision.
type Decided struct {
	Request *models.PremiumRequest
	Label   string
}

// Decide applies action to request id on behalf of actor. The status change is a
// compare-and-swap from pending; a request that was already decided yields a Conflict
// error wrapping ErrAlreadyReviewed and nothing is changed. controls is the admin message
// carrying the decision buttons; it is re-rendered without them.
func (s *Service) Decide(ctx context.Context, actor int64, id uint64, action string, controls messenger.MessageRef) (Decided, error) {
	if err := s.admins.Require(ctx, actor, permissions.Premium); err != nil {
		return Decided{}, err
	}
	o, ok := outcomes[action]
	if !ok {
		return Decided{}, errkind.New(errkind.Validation, "premium.decide", "unknown action "+action)
	}
	req, errGet := s.store.GetPremiumRequest(ctx, id)
	if errGet != nil {
		if errkind.Is(errGet, errkind.NotFound) {
			s.stripControls(ctx, controls, nil)
			return Decided{}, errkind.Wrapf(errkind.NotFound, "premium.decide", errGet, "So'rov topilmadi")
		}
		return Decided{}, errGet
	}

	swapped, errSwap := s.store.TransitionPremiumRequest(ctx, id, models.PremiumStatusPending, o.status, actor)
	if errSwap != nil {
		return Decided{}, errSwap
	}
	if !swapped {
		if current, errReload := s.store.GetPremiumRequest(ctx, id); errReload == nil {
			req = current
		}
		s.stripControls(ctx, controls, req)
		log.WithFields(log.Fields{"request_id": id, "admin": actor, "status": req.Status}).Info("premium decision ignored: already reviewed")
		return Decided{}, errkind.Wrapf(errkind.Conflict, "premium.decide", ErrAlreadyReviewed, AlreadyReviewedText)
	}

	req.Status = o.status
	req.DecidedBy = &actor
	if _, errSend := s.msg.SendContent(ctx, req.RequesterChatID, messenger.TextPayload(o.userMessage, nil)); errSend != nil {
		log.WithError(errSend).WithField("request_id", id).Warn("notify premium requester failed")
	}
	s.stripControls(ctx, controls, req)
	log.WithFields(log.Fields{"request_id": id, "admin": actor, "status": o.status}).Info("premium request decided")
	return Decided{Request: req, Label: o.label}, nil
}

func (s *Service) stripControls(ctx context.Context, controls messenger.MessageRef, req *models.PremiumRequest) {
	if controls.MessageID == 0 {
		return
	}
	var payload messenger.Payload
	if req != nil {
		payload = receiptPayload(req, StatusLabel(req.Status))
	} else {
		payload = messenger.TextPayload("So'rov topilmadi", nil)
	}
	payload.Keyboard = messenger.Keyboard{}
	if err := s.msg.EditMessage(ctx, controls, payload); err != nil {
		log.WithError(err).WithField("request_id", requestID(req)).Debug("strip premium controls failed")
	}
}

func requestID(req *models.PremiumRequest) uint64 {
	if req == nil {
		return 0
	}
	return req.ID
}

// DecisionKeyboard renders the approve, reject and partial controls for request id.
func DecisionKeyboard(id uint64) messenger.Keyboard {
	idText := strconv.FormatUint(id, 10)
	return messenger.Keyboard{
		{
			{Text: "✅ Tasdiqlash", CallbackData: DecisionCallbackPrefix + ActionApprove + ":" + idText},
			{Text: "❌ Rad etish", CallbackData: DecisionCallbackPrefix + ActionReject + ":" + idText},
		},
		{{Text: "⚠️ To'lov to'liq emas", CallbackData: DecisionCallbackPrefix + ActionPartial + ":" + idText}},
	}
}

// ParseDecision parses "premreq:<action>:<id>".
func ParseDecision(data string) (action string, id uint64, ok bool) {
	rest, found := strings.CutPrefix(data, DecisionCallbackPrefix)
	if !found {
		return "", 0, false
	}
	action, idText, found := strings.Cut(rest, ":")
	if !found {
		return "", 0, false
	}
	id, err := strconv.ParseUint(idText, 10, 64)
	if err != nil {
		return "", 0, false
	}
	return action, id, true
}

func receiptPayload(req *models.PremiumRequest, status string) messenger.Payload {
	kind := messenger.KindDocument
	if req.ReceiptKind == models.ReceiptKindPhoto {
		kind = messenger.KindPhoto
	}
	return messenger.Payload{Kind: kind, FileID: req.ReceiptFileID, Text: RequestCaption(req, status), ParseMode: "HTML"}
}

// RequestCaption renders the reviewer caption of a request.
func RequestCaption(req *models.PremiumRequest, status string) string {
	if status == "" {
		status = StatusLabel(models.PremiumStatusPending)
	}
	name := html.EscapeString(req.FirstName)
	if req.Username != "" {
		name += " (@" + html.EscapeString(req.Username) + ")"
	}
	if name == "" {
		name = "—"
	}
	duration := "—"
	if req.DurationMonths > 0 {
		duration = fmt.Sprintf("%d oy", req.DurationMonths)
	}
	label := req.PlanLabel
	if label == "" {
		label = "—"
	}
	return fmt.Sprintf("🧾 <b>Premium to'lov so'rovi</b>\n\nChek ID: #%d\n👤 Foydalanuvchi: %s\n🆔 ID: <code>%d</code>\nTarif: %s\nMuddat: %s\nSumma: %s\nHolat: %s",
		req.ID, name, req.RequesterID, html.EscapeString(label), duration, FormatAmount(req.Amount), status)
}

// FormatAmount renders an amount with space-separated thousands, e.g. "12 000 so'm".
func FormatAmount(amount int64) string {
	if amount <= 0 {
		return "—"
	}
	digits := strconv.FormatInt(amount, 10)
	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	return b.String() + " so'm"
}

// PlanLabel names a plan.
func PlanLabel(months int) string {
	return strconv.Itoa(months) + " oy"
}
