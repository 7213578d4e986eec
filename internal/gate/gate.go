// Package gate decides whether a user may receive content based on the configured
// channel requirements.
package gate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/ibrohim2505/prokinobot/internal/channels"
	"github.com/ibrohim2505/prokinobot/internal/messenger"
	"github.com/ibrohim2505/prokinobot/internal/models"
	"github.com/ibrohim2505/prokinobot/internal/session"
	"github.com/ibrohim2505/prokinobot/internal/settings"
	log "github.com/sirupsen/logrus"
)

// RecheckPrefix prefixes the callback data of the recheck button.
const RecheckPrefix = "verify_sub:"

const (
	recheckLabel    = "✅ Tekshirish"
	infoText        = "📌 Quyidagi kanallarimizga ham qo'shiling:"
	stillBlocked    = "❌ Siz hali barcha kanallarga obuna bo'lmadingiz!"
	fallbackJoinURL = "https://t.me/"
)

// RecheckData returns the callback data that rechecks and delivers code.
func RecheckData(code string) string {
	return RecheckPrefix + code
}

// Requirements lists the channel requirements in display order.
type Requirements interface {
	ListChannelRequirements(ctx context.Context) ([]models.ChannelRequirement, error)
}

// AdminChecker answers whether a user bypasses the gate.
type AdminChecker interface {
	IsAdmin(ctx context.Context, id int64) (bool, error)
}

// Deliverer delivers a content item after the gate allows it.
type Deliverer interface {
	Deliver(ctx context.Context, chatID int64, code string) (messenger.MessageRef, error)
}

// Gate is the subscription gate.
type Gate struct {
	reqs      Requirements
	admins    AdminChecker
	members   messenger.Messenger
	markers   session.GateMarkers
	deliverer Deliverer
}

// New constructs a Gate.
func New(reqs Requirements, admins AdminChecker, msg messenger.Messenger, markers session.GateMarkers, deliverer Deliverer) *Gate {
	return &Gate{reqs: reqs, admins: admins, members: msg, markers: markers, deliverer: deliverer}
}

// Decision is the result of evaluating the requirements for one user.
type Decision struct {
	Allowed bool
	// Unsatisfied holds the checkable entries the user is not a member of.
	Unsatisfied []models.ChannelRequirement
	// Unverifiable holds the request-only and external-link entries.
	Unverifiable []models.ChannelRequirement
	// Bypassed is set for admins and a disabled gate.
	Bypassed bool
}

// Signature identifies the set of unverifiable entries shown to a user.
func (d Decision) Signature() string {
	if len(d.Unverifiable) == 0 {
		return ""
	}
	targets := make([]string, 0, len(d.Unverifiable))
	for _, req := range d.Unverifiable {
		targets = append(targets, req.Target)
	}
	sum := sha256.Sum256([]byte(strings.Join(targets, "\n")))
	return hex.EncodeToString(sum[:])
}

// Evaluate checks userID against the required entries. Membership lookup failures count
// as unsatisfied.
func (g *Gate) Evaluate(ctx context.Context, userID int64) (Decision, error) {
	isAdmin, errAdmin := g.admins.IsAdmin(ctx, userID)
	if errAdmin != nil {
		return Decision{}, errAdmin
	}
	if isAdmin || !settings.LoadSubscription().Enabled {
		return Decision{Allowed: true, Bypassed: true}, nil
	}
	all, errList := g.reqs.ListChannelRequirements(ctx)
	if errList != nil {
		return Decision{}, errList
	}

	var decision Decision
	for _, req := range all {
		if !req.Required {
			continue
		}
		if channels.EffectiveClass(req) != models.VerificationCheckable {
			decision.Unverifiable = append(decision.Unverifiable, req)
			continue
		}
		if !g.subscribed(ctx, req, userID) {
			decision.Unsatisfied = append(decision.Unsatisfied, req)
		}
	}
	decision.Allowed = len(decision.Unsatisfied) == 0
	return decision, nil
}

func (g *Gate) subscribed(ctx context.Context, req models.ChannelRequirement, userID int64) bool {
	member, err := g.members.GetChatMember(ctx, req.Target, userID)
	if err != nil {
		log.WithError(err).WithFields(log.Fields{"channel": req.Target, "user_id": userID}).Warn("membership check failed")
		return false
	}
	return member.Subscribed()
}

// Result reports what Request or Recheck did.
type Result struct {
	Blocked bool
	// Delivered is the copied content when the gate allowed it.
	Delivered messenger.MessageRef
	// Prompt is the blocking or informational prompt that was sent.
	Prompt *messenger.MessageRef
	// NothingPending is set by Recheck when no code is known.
	NothingPending bool
}

// Request evaluates the gate for code and either delivers it or shows the blocking prompt.
func (g *Gate) Request(ctx context.Context, userID, chatID int64, code string) (Result, error) {
	decision, err := g.Evaluate(ctx, userID)
	if err != nil {
		return Result{}, err
	}
	if !decision.Allowed {
		return g.block(ctx, userID, chatID, code, decision)
	}

	var result Result
	if sig := decision.Signature(); sig != "" {
		shown, errShown := g.markers.ShownSignature(ctx, userID)
		if errShown != nil {
			log.WithError(errShown).WithField("user_id", userID).Warn("read shown signature failed")
		}
		if shown != sig {
			ref, errSend := g.members.SendContent(ctx, chatID, messenger.TextPayload(infoText, entryButtons(decision.Unverifiable)))
			if errSend != nil {
				log.WithError(errSend).WithField("user_id", userID).Warn("informational prompt failed")
			} else {
				result.Prompt = &ref
				if errSet := g.markers.SetShownSignature(ctx, userID, sig); errSet != nil {
					log.WithError(errSet).WithField("user_id", userID).Warn("store shown signature failed")
				}
			}
		}
	}
	delivered, errDeliver := g.deliverer.Deliver(ctx, chatID, code)
	if errDeliver != nil {
		return result, errDeliver
	}
	result.Delivered = delivered
	return result, nil
}

func (g *Gate) block(ctx context.Context, userID, chatID int64, code string, decision Decision) (Result, error) {
	if errSet := g.markers.SetPendingCode(ctx, userID, code); errSet != nil {
		return Result{}, errSet
	}
	ref, errSend := g.members.SendContent(ctx, chatID, blockPayload(decision, code))
	if errSend != nil {
		return Result{Blocked: true}, errSend
	}
	log.WithFields(log.Fields{"user_id": userID, "code": code, "missing": len(decision.Unsatisfied)}).Debug("delivery blocked by subscription gate")
	return Result{Blocked: true, Prompt: &ref}, nil
}

// Recheck re-evaluates the checkable entries after the user pressed the recheck button
// on prompt. An empty code falls back to the pending marker. When the user is still
// blocked the prompt is redrawn and the returned alert text is non-empty.
func (g *Gate) Recheck(ctx context.Context, userID, chatID int64, code string, prompt messenger.MessageRef) (Result, string, error) {
	if code == "" {
		pending, errPending := g.markers.PendingCode(ctx, userID)
		if errPending != nil {
			return Result{}, "", errPending
		}
		code = pending
	}
	if code == "" {
		return Result{NothingPending: true}, "", nil
	}

	decision, err := g.Evaluate(ctx, userID)
	if err != nil {
		return Result{}, "", err
	}
	if !decision.Allowed {
		if prompt.MessageID != 0 {
			if errEdit := g.members.EditMessage(ctx, prompt, blockPayload(decision, code)); errEdit != nil {
				log.WithError(errEdit).WithField("user_id", userID).Debug("redraw gate prompt failed")
			}
		}
		return Result{Blocked: true, Prompt: &prompt}, stillBlocked, nil
	}

	if prompt.MessageID != 0 {
		if errDelete := g.members.DeleteMessage(ctx, prompt); errDelete != nil {
			log.WithError(errDelete).WithField("user_id", userID).Debug("delete gate prompt failed")
		}
	}
	delivered, errDeliver := g.deliverer.Deliver(ctx, chatID, code)
	if errDeliver != nil {
		return Result{}, "", errDeliver
	}
	if errClear := g.markers.ClearGate(ctx, userID); errClear != nil {
		log.WithError(errClear).WithField("user_id", userID).Warn("clear gate markers failed")
	}
	return Result{Delivered: delivered}, "", nil
}

func blockPayload(decision Decision, code string) messenger.Payload {
	kb := entryButtons(decision.Unsatisfied)
	kb = append(kb, entryButtons(decision.Unverifiable)...)
	kb = append(kb, []messenger.Button{{Text: recheckLabel, CallbackData: RecheckData(code)}})
	return messenger.TextPayload(settings.LoadSubscription().Message, kb)
}

func entryButtons(reqs []models.ChannelRequirement) messenger.Keyboard {
	kb := make(messenger.Keyboard, 0, len(reqs))
	for i, req := range reqs {
		url := channels.JoinURL(req)
		if url == "" {
			url = fallbackJoinURL + strings.TrimPrefix(req.Target, "@")
		}
		label := strings.TrimSpace(req.DisplayName)
		if label == "" {
			label = "📢 Kanal " + strconv.Itoa(i+1)
		}
		kb = append(kb, []messenger.Button{{Text: label, URL: url}})
	}
	return kb
}
