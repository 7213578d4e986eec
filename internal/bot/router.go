package bot

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ibrohim2505/prokinobot/internal/content"
	"github.com/ibrohim2505/prokinobot/internal/directory"
	"github.com/ibrohim2505/prokinobot/internal/errkind"
	"github.com/ibrohim2505/prokinobot/internal/flow"
	"github.com/ibrohim2505/prokinobot/internal/gate"
	"github.com/ibrohim2505/prokinobot/internal/messenger"
	"github.com/ibrohim2505/prokinobot/internal/models"
	"github.com/ibrohim2505/prokinobot/internal/permissions"
	"github.com/ibrohim2505/prokinobot/internal/premium"
	"github.com/ibrohim2505/prokinobot/internal/session"
	"github.com/ibrohim2505/prokinobot/internal/settings"
	"github.com/ibrohim2505/prokinobot/internal/store"
	log "github.com/sirupsen/logrus"
)

const (
	genericFailureText = "❌ Xatolik yuz berdi. Birozdan so'ng qayta urinib ko'ring."
	deniedText         = "⛔️ Sizda bu amal uchun ruxsat yo'q."
	cancelledText      = "❌ Jarayon bekor qilindi."
	nothingToCancel    = "Bekor qilinadigan jarayon yo'q."
	sendCodeText       = "🎬 Kino kodini yuboring."
	expiredFlowText    = "⌛️ Jarayon muddati tugagan. Qaytadan boshlang."
	staleButtonText    = "❌ Bu tugma eskirgan."
)

// Deps are the collaborators of a Router.
type Deps struct {
	Store     store.Store
	Messenger messenger.Messenger
	Directory *directory.Directory
	Engine    *flow.Engine
	Gate      *gate.Gate
	Publisher *content.Publisher
	Premium   *premium.Service
	Settings  *settings.Service
}

// Router handles one update at a time. The Dispatcher serializes updates per user.
type Router struct {
	store     store.Store
	msg       messenger.Messenger
	directory *directory.Directory
	engine    *flow.Engine
	gate      *gate.Gate
	publisher *content.Publisher
	registry  *content.Registry
	premium   *premium.Service
	settings  *settings.Service
	menus     MenuBuilder
	now       func() time.Time
}

// NewRouter constructs a Router.
func NewRouter(d Deps) *Router {
	r := &Router{
		store:     d.Store,
		msg:       d.Messenger,
		directory: d.Directory,
		engine:    d.Engine,
		gate:      d.Gate,
		publisher: d.Publisher,
		premium:   d.Premium,
		settings:  d.Settings,
		now:       time.Now,
	}
	if d.Publisher != nil {
		r.registry = d.Publisher.Registry()
	}
	return r
}

type ctxKey struct{}

func withLogger(ctx context.Context, entry *log.Entry) context.Context {
	return context.WithValue(ctx, ctxKey{}, entry)
}

func logger(ctx context.Context) *log.Entry {
	if entry, ok := ctx.Value(ctxKey{}).(*log.Entry); ok {
		return entry
	}
	return log.NewEntry(log.StandardLogger())
}

// Handle implements Handler.
func (r *Router) Handle(ctx context.Context, upd messenger.Update) {
	entry := log.WithFields(log.Fields{
		"event_id":  uuid.NewString(),
		"update_id": upd.UpdateID,
		"user_id":   UpdateUserID(upd),
	})
	ctx = withLogger(ctx, entry)
	started := r.now()

	switch {
	case upd.CallbackQuery != nil:
		r.handleCallback(ctx, upd.CallbackQuery)
	case upd.Message != nil:
		r.handleMessage(ctx, upd.Message)
	default:
		return
	}
	entry.WithField("elapsed", r.now().Sub(started).String()).Debug("update handled")
}

func (r *Router) touchUser(ctx context.Context, u messenger.User) {
	errUpsert := r.store.UpsertUser(ctx, &models.User{
		UserID:       u.ID,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		Username:     u.Username,
		LanguageCode: u.LanguageCode,
		LastActiveAt: r.now().UTC(),
	})
	if errUpsert != nil {
		logger(ctx).WithError(errUpsert).Warn("user upsert failed")
	}
}

func messageEvent(m *messenger.Message) flow.Event {
	text := m.Text
	if text == "" {
		text = m.Caption
	}
	return flow.Event{
		UserID:        m.From.ID,
		ChatID:        m.Chat.ID,
		From:          *m.From,
		Text:          text,
		Media:         m.Media(),
		Message:       m.Ref(),
		ForwardedUser: m.ForwardedUser(),
		ForwardedChat: m.ForwardedChat(),
	}
}

// parseCommand splits "/name@bot args" into its name and arguments.
func parseCommand(text string) (name, args string) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", ""
	}
	head, rest, _ := strings.Cut(text[1:], " ")
	head, _, _ = strings.Cut(head, "@")
	return strings.ToLower(head), strings.TrimSpace(rest)
}

func (r *Router) handleMessage(ctx context.Context, m *messenger.Message) {
	if m.From == nil || m.From.IsBot || m.Chat.Type != messenger.ChatPrivate {
		return
	}
	r.touchUser(ctx, *m.From)
	ev := messageEvent(m)
	cmd, args := parseCommand(m.Text)

	if cmd == "cancel" {
		r.cancel(ctx, ev)
		return
	}
	out, err := r.engine.Dispatch(ctx, ev)
	if err != nil {
		r.fail(ctx, ev.ChatID, err)
		return
	}
	if out.Status != flow.StatusNoSession {
		logger(ctx).WithFields(log.Fields{"flow": out.Kind, "status": out.Status.String()}).Debug("flow event")
		r.send(ctx, ev.ChatID, out.Replies...)
		return
	}

	switch {
	case cmd != "":
		r.command(ctx, ev, cmd, args)
	case ev.Media != nil:
		r.handleMedia(ctx, ev)
	default:
		r.handleText(ctx, ev)
	}
}

func (r *Router) cancel(ctx context.Context, ev flow.Event) {
	had, err := r.engine.Cancel(ctx, ev.UserID)
	if err != nil {
		r.fail(ctx, ev.ChatID, err)
		return
	}
	if !had {
		r.reply(ctx, ev.ChatID, nothingToCancel)
		return
	}
	r.reply(ctx, ev.ChatID, cancelledText)
}

// handleMedia covers media sent outside any flow: admins with the movies capability
// add content, users with a pending premium request are told to wait.
func (r *Router) handleMedia(ctx context.Context, ev flow.Event) {
	isMovie := ev.Media.Kind == messenger.KindVideo || ev.Media.Kind == messenger.KindDocument
	if isMovie {
		canAdd, err := r.directory.HasCapability(ctx, ev.UserID, permissions.Movies)
		if err != nil {
			r.fail(ctx, ev.ChatID, err)
			return
		}
		if canAdd {
			r.addMovie(ctx, ev)
			return
		}
	}
	if ev.Media.Kind == messenger.KindPhoto || ev.Media.Kind == messenger.KindDocument {
		pending, err := r.premium.Pending(ctx, ev.UserID)
		if err != nil {
			logger(ctx).WithError(err).Warn("premium pending lookup failed")
		}
		if pending {
			r.reply(ctx, ev.ChatID, premium.PendingText)
			return
		}
	}
	r.reply(ctx, ev.ChatID, sendCodeText)
}

// addMovie publishes media with a caption under a generated code, or starts the
// movie-add flow with the media as its first answer.
func (r *Router) addMovie(ctx context.Context, ev flow.Event) {
	if name := ev.TrimmedText(); name != "" {
		published, err := r.publisher.QuickAdd(ctx, *ev.Media, name)
		if err != nil {
			r.fail(ctx, ev.ChatID, err)
			return
		}
		r.reply(ctx, ev.ChatID, "✅ Kino qo'shildi!\n\n🔢 Kod: <code>"+published.Item.Code+"</code>")
		return
	}
	if _, err := r.engine.Start(ctx, ev.UserID, session.KindMovieAdd, session.MovieAddFields{}); err != nil {
		r.fail(ctx, ev.ChatID, err)
		return
	}
	out, err := r.engine.Dispatch(ctx, ev)
	if err != nil {
		r.fail(ctx, ev.ChatID, err)
		return
	}
	r.send(ctx, ev.ChatID, out.Replies...)
}

func (r *Router) handleText(ctx context.Context, ev flow.Event) {
	text := ev.TrimmedText()
	if text == "" {
		return
	}
	if !content.LooksLikeCode(text) && !isNumeric(text) {
		r.reply(ctx, ev.ChatID, sendCodeText)
		return
	}
	code, err := content.ValidateUserCode(text)
	if err != nil {
		r.fail(ctx, ev.ChatID, err)
		return
	}
	r.requestCode(ctx, ev, code)
}

func (r *Router) requestCode(ctx context.Context, ev flow.Event, code string) {
	res, err := r.gate.Request(ctx, ev.UserID, ev.ChatID, code)
	if err != nil {
		r.fail(ctx, ev.ChatID, err)
		return
	}
	logger(ctx).WithFields(log.Fields{"code": code, "blocked": res.Blocked}).Debug("code requested")
}

func isNumeric(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return s != ""
}

// startFlow starts kind and sends its first prompt. Begin errors are shown to the user.
func (r *Router) startFlow(ctx context.Context, ev flow.Event, kind session.Kind, initial session.Fields) bool {
	out, err := r.engine.Start(ctx, ev.UserID, kind, initial)
	if err != nil {
		r.fail(ctx, ev.ChatID, err)
		return false
	}
	r.send(ctx, ev.ChatID, out.Replies...)
	return true
}

func (r *Router) send(ctx context.Context, chatID int64, payloads ...messenger.Payload) {
	for _, p := range payloads {
		if _, err := r.msg.SendContent(ctx, chatID, p); err != nil {
			logger(ctx).WithError(err).WithField("chat_id", chatID).Warn("reply failed")
		}
	}
}

func (r *Router) reply(ctx context.Context, chatID int64, text string) {
	r.send(ctx, chatID, messenger.TextPayload(text, nil))
}

// userMessage maps an error to the text shown in chat.
func userMessage(err error) string {
	switch errkind.KindOf(err) {
	case errkind.Permission:
		return deniedText
	case errkind.Forbidden:
		return errkind.Message(err, "⛔️ Superadminni o'zgartirib bo'lmaydi.")
	case errkind.NotFound:
		return errkind.Message(err, "❌ Topilmadi.")
	case errkind.Conflict:
		return errkind.Message(err, "⚠️ Allaqachon mavjud.")
	case errkind.Validation:
		return errkind.Message(err, "❌ Noto'g'ri qiymat, qaytadan urinib ko'ring.")
	case errkind.Transport:
		return errkind.Message(err, genericFailureText)
	default:
		return genericFailureText
	}
}

func (r *Router) fail(ctx context.Context, chatID int64, err error) {
	switch errkind.KindOf(err) {
	case errkind.Persistence, errkind.Unknown:
		logger(ctx).WithError(err).Error("update failed")
	case errkind.Transport:
		logger(ctx).WithError(err).Warn("update failed")
	default:
		logger(ctx).WithError(err).Debug("update rejected")
	}
	r.reply(ctx, chatID, userMessage(err))
}
