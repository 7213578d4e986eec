package bot

import (
	"context"
	"strconv"
	"strings"

	"github.com/ibrohim2505/prokinobot/internal/broadcast"
	"github.com/ibrohim2505/prokinobot/internal/errkind"
	"github.com/ibrohim2505/prokinobot/internal/flow"
	"github.com/ibrohim2505/prokinobot/internal/gate"
	"github.com/ibrohim2505/prokinobot/internal/messenger"
	"github.com/ibrohim2505/prokinobot/internal/models"
	"github.com/ibrohim2505/prokinobot/internal/permissions"
	"github.com/ibrohim2505/prokinobot/internal/premium"
	"github.com/ibrohim2505/prokinobot/internal/session"
	"github.com/ibrohim2505/prokinobot/internal/settings"
	log "github.com/sirupsen/logrus"
)

const (
	codeMissingText = "❌ Kod topilmadi. Kino kodini qayta yuboring."
	promoNeedsURL   = "Avval tugma havolasini kiriting."
)

// toggleCapability guards the on/off switches of the admin menus.
var toggleCapability = map[string]string{
	toggleSubscription: permissions.Channels,
	togglePremium:      permissions.Premium,
	togglePromo:        permissions.Movies,
}

var toggleMenu = map[string]MenuID{
	toggleSubscription: MenuChannels,
	togglePremium:      MenuPremium,
	togglePromo:        MenuMovies,
}

func isFlowCallback(data string) bool {
	return strings.HasPrefix(data, premium.UserCallbackPrefix) ||
		data == broadcast.CallbackSend ||
		data == broadcast.CallbackReenterButtons ||
		data == broadcast.CallbackCancel
}

func (r *Router) handleCallback(ctx context.Context, cb *messenger.CallbackQuery) {
	r.touchUser(ctx, cb.From)
	ev := flow.Event{UserID: cb.From.ID, ChatID: cb.From.ID, From: cb.From, Action: cb.Data}
	if cb.Message != nil {
		ev.ChatID = cb.Message.Chat.ID
		ev.Message = cb.Message.Ref()
	}

	var (
		answer string
		alert  bool
	)
	switch data := cb.Data; {
	case strings.HasPrefix(data, gate.RecheckPrefix):
		answer, alert = r.recheck(ctx, ev, strings.TrimPrefix(data, gate.RecheckPrefix))
	case strings.HasPrefix(data, premium.DecisionCallbackPrefix):
		answer, alert = r.decide(ctx, ev)
	case isFlowCallback(data):
		answer, alert = r.flowCallback(ctx, ev)
	case data == CallbackPremiumOpen:
		r.startFlow(ctx, ev, session.KindPremium, session.PremiumFields{})
	case strings.HasPrefix(data, adminPrefix):
		answer, alert = r.adminCallback(ctx, ev, strings.Split(strings.TrimPrefix(data, adminPrefix), ":"))
	default:
		answer = staleButtonText
	}

	if errAnswer := r.msg.AnswerCallback(ctx, cb.ID, answer, alert); errAnswer != nil {
		logger(ctx).WithError(errAnswer).Debug("answer callback failed")
	}
}

func (r *Router) recheck(ctx context.Context, ev flow.Event, code string) (string, bool) {
	res, alertText, err := r.gate.Recheck(ctx, ev.UserID, ev.ChatID, code, ev.Message)
	if err != nil {
		r.fail(ctx, ev.ChatID, err)
		return "", false
	}
	if res.NothingPending {
		return codeMissingText, true
	}
	if alertText != "" {
		return alertText, true
	}
	return "", false
}

func (r *Router) decide(ctx context.Context, ev flow.Event) (string, bool) {
	action, id, ok := premium.ParseDecision(ev.Action)
	if !ok {
		return staleButtonText, true
	}
	decided, err := r.premium.Decide(ctx, ev.UserID, id, action, ev.Message)
	if err != nil {
		switch errkind.KindOf(err) {
		case errkind.Permission:
			return deniedText, true
		case errkind.Conflict, errkind.NotFound, errkind.Validation:
			return userMessage(err), true
		default:
			logger(ctx).WithError(err).WithField("request_id", id).Error("premium decision failed")
			return genericFailureText, true
		}
	}
	return decided.Label, false
}

func (r *Router) flowCallback(ctx context.Context, ev flow.Event) (string, bool) {
	out, err := r.engine.Dispatch(ctx, ev)
	if err != nil {
		r.fail(ctx, ev.ChatID, err)
		return "", false
	}
	if out.Status == flow.StatusNoSession {
		return expiredFlowText, true
	}
	if out.Status == flow.StatusRejected && out.Err != nil {
		// Rejected button presses are answered inline.
		return userMessage(out.Err), true
	}
	r.send(ctx, ev.ChatID, out.Replies...)
	return "", false
}

func (r *Router) adminCallback(ctx context.Context, ev flow.Event, parts []string) (string, bool) {
	arg := func(i int) string {
		if i < len(parts) {
			return parts[i]
		}
		return ""
	}
	switch parts[0] {
	case verbMenu:
		return r.renderMenu(ctx, ev, MenuID(arg(1)), parts[min(2, len(parts)):])

	case verbFlow:
		return r.menuFlow(ctx, ev, arg(1), arg(2), arg(3))

	case verbToggle:
		return r.toggle(ctx, ev, arg(1))

	case verbPerm:
		targetID, errParse := strconv.ParseInt(arg(1), 10, 64)
		if errParse != nil {
			return staleButtonText, true
		}
		granted, err := r.directory.Toggle(ctx, ev.UserID, targetID, arg(2))
		if err != nil {
			return userMessage(err), true
		}
		r.renderMenu(ctx, ev, MenuAdmin, []string{arg(1)})
		if granted {
			return "✅ Huquq berildi", false
		}
		return "❌ Huquq olindi", false

	case verbAdminDel:
		targetID, errParse := strconv.ParseInt(arg(1), 10, 64)
		if errParse != nil {
			return staleButtonText, true
		}
		if err := r.directory.RemoveAdmin(ctx, ev.UserID, targetID); err != nil {
			return userMessage(err), true
		}
		r.renderMenu(ctx, ev, MenuAdmins, nil)
		return "🗑 Admin o'chirildi", false

	case verbChanDel:
		if err := r.directory.Require(ctx, ev.UserID, permissions.Channels); err != nil {
			return userMessage(err), true
		}
		id, errParse := strconv.ParseUint(arg(1), 10, 64)
		if errParse != nil {
			return staleButtonText, true
		}
		if err := r.store.DeleteChannelRequirement(ctx, id); err != nil {
			if !errkind.Is(err, errkind.NotFound) {
				logger(ctx).WithError(err).Error("delete channel requirement failed")
				return genericFailureText, true
			}
		} else {
			logger(ctx).WithField("requirement_id", id).Info("channel requirement removed")
		}
		r.renderMenu(ctx, ev, MenuChannels, nil)
		return "🗑 Kanal o'chirildi", false

	default:
		return staleButtonText, true
	}
}

// menuFlow starts a flow from an admin menu button.
func (r *Router) menuFlow(ctx context.Context, ev flow.Event, name, a, b string) (string, bool) {
	var (
		kind    session.Kind
		initial session.Fields
	)
	switch name {
	case flowMovie:
		kind, initial = session.KindMovieAdd, session.MovieAddFields{}
	case flowBroadcast:
		kind, initial = session.KindBroadcast, session.BroadcastFields{}
	case flowAdminAdd:
		kind, initial = session.KindAdminAdd, session.AdminAddFields{}
	case flowChannel:
		kind, initial = session.KindChannelConfig, session.ChannelConfigFields{Class: a, Required: b != "0"}
	case flowEdit:
		kind, initial = session.KindSettingEdit, session.SettingEditFields{Target: a}
	case flowLookup:
		kind, initial = session.KindMovieLookup, session.MovieLookupFields{Action: a}
	default:
		return staleButtonText, true
	}
	out, err := r.engine.Start(ctx, ev.UserID, kind, initial)
	if err != nil {
		if errkind.Is(err, errkind.Permission) {
			return deniedText, true
		}
		r.fail(ctx, ev.ChatID, err)
		return "", false
	}
	r.send(ctx, ev.ChatID, out.Replies...)
	return "", false
}

func (r *Router) toggle(ctx context.Context, ev flow.Event, target string) (string, bool) {
	capability, ok := toggleCapability[target]
	if !ok {
		return staleButtonText, true
	}
	if err := r.directory.Require(ctx, ev.UserID, capability); err != nil {
		return userMessage(err), true
	}
	var (
		err   error
		state bool
	)
	switch target {
	case toggleSubscription:
		err = r.settings.UpdateSubscription(ctx, func(s *settings.Subscription) {
			s.Enabled = !s.Enabled
			state = s.Enabled
		})
	case togglePremium:
		err = r.settings.UpdatePremium(ctx, func(p *settings.Premium) {
			p.Active = !p.Active
			state = p.Active
		})
	case togglePromo:
		current, enabled := settings.LoadChannelButton()
		if !enabled && strings.TrimSpace(current.URL) == "" {
			return promoNeedsURL, true
		}
		err = r.settings.UpdateChannelButton(ctx, func(b *settings.ChannelButton) {
			b.Enabled = !enabled
			state = b.Enabled
		})
	}
	if err != nil {
		logger(ctx).WithError(err).WithField("toggle", target).Error("toggle failed")
		return genericFailureText, true
	}
	logger(ctx).WithFields(log.Fields{"toggle": target, "enabled": state}).Info("setting toggled")
	r.renderMenu(ctx, ev, toggleMenu[target], nil)
	return onOff(state), false
}

// renderMenu shows menu id in place of the callback message, or as a new message when
// there is none. A non-empty result is the denial or failure text for the caller.
func (r *Router) renderMenu(ctx context.Context, ev flow.Event, id MenuID, args []string) (string, bool) {
	capability, known := menuCapability[id]
	if !known {
		return staleButtonText, true
	}
	viewer, isAdmin, err := r.viewer(ctx, ev)
	if err != nil {
		logger(ctx).WithError(err).Error("load admin failed")
		return genericFailureText, true
	}
	if !isAdmin {
		return notAdminText, true
	}
	if capability != "" && !viewer.Has(capability) {
		return deniedText, true
	}

	view := View{Viewer: viewer}
	switch id {
	case MenuStats:
		view.Stats, err = r.store.Stats(ctx, r.now())
	case MenuChannels:
		view.Requirements, err = r.store.ListChannelRequirements(ctx)
	case MenuAdmins:
		view.Admins, err = r.directory.ListAdmins(ctx)
	case MenuMovieList:
		view.Content, err = r.store.ListRecentContent(ctx, recentContentLimit)
	case MenuPremiumStats:
		view.PremiumStats, err = r.store.PremiumStats(ctx)
	case MenuPremiumUsers:
		view.PremiumRequests, err = r.store.ListPremiumRequests(ctx, models.PremiumStatusApproved, premiumUsersLimit)
	case MenuPremiumPayments:
		view.PremiumRequests, err = r.store.ListPremiumRequests(ctx, "", premiumPaymentsLimit)
	case MenuAdmin:
		targetID, errParse := strconv.ParseInt(firstArg(args), 10, 64)
		if errParse != nil {
			return staleButtonText, true
		}
		view.Target, err = r.directory.Get(ctx, targetID)
	}
	if err != nil {
		if errkind.Is(err, errkind.NotFound) {
			return userMessage(err), true
		}
		logger(ctx).WithError(err).WithField("menu", id).Error("load menu data failed")
		return genericFailureText, true
	}

	payload := r.menus.Build(id, view)
	if ev.Message.MessageID != 0 {
		if errEdit := r.msg.EditMessage(ctx, ev.Message, payload); errEdit == nil {
			return "", false
		}
	}
	r.send(ctx, ev.ChatID, payload)
	return "", false
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
