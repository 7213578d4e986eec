package bot

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"strings"

	"github.com/ibrohim2505/prokinobot/internal/content"
	"github.com/ibrohim2505/prokinobot/internal/directory"
	"github.com/ibrohim2505/prokinobot/internal/errkind"
	"github.com/ibrohim2505/prokinobot/internal/flow"
	"github.com/ibrohim2505/prokinobot/internal/messenger"
	"github.com/ibrohim2505/prokinobot/internal/permissions"
	"github.com/ibrohim2505/prokinobot/internal/session"
	"github.com/ibrohim2505/prokinobot/internal/settings"
)

const (
	userHelpText = "❓ <b>Yordam</b>\n\n" +
		"Kinoni olish uchun kino kodini yuboring.\n" +
		"Kod faqat raqamlardan iborat va 1 dan 10000 gacha bo'lishi kerak.\n" +
		"Masalan: <code>1</code>, <code>21</code>, <code>137</code>, <code>5000</code>\n\n" +
		"/search <i>nomi</i> - Kinoni nomi bo'yicha qidirish"
	adminHelpText = "❓ <b>Yordam</b>\n\n" +
		"♻️ <b>Admin buyruqlari:</b>\n" +
		"/start - Botni ishga tushirish\n" +
		"/admin - Admin panel\n" +
		"/setchannel - Baza kanalini sozlash\n" +
		"/stats - Statistika\n" +
		"/movie <i>kod</i> - Kino ma'lumotlari\n" +
		"/delmovie <i>kod</i> - Kinoni o'chirish\n" +
		"/cancel - Jarayonni bekor qilish\n" +
		"/help - Yordam\n\n" +
		"📝 Kino qo'shish uchun kinoni botga yuboring. Izoh bilan yuborilsa, kod avtomatik beriladi."
	premiumHintText = "💎 Premium kontentga ega bo'lish uchun <b>\"💎 Premium obuna\"</b> tugmasidan foydalaning."
	notAdminText    = "❌ Sizda admin huquqi yo'q!"
	searchLimitText = "🔎 Qidiruv uchun kamida 2 ta harf yozing: /search <i>nomi</i>"
)

func (r *Router) command(ctx context.Context, ev flow.Event, name, args string) {
	switch name {
	case "start":
		r.start(ctx, ev, args)
	case "help":
		r.help(ctx, ev)
	case "admin":
		r.menuCommand(ctx, ev, MenuPanel)
	case "stats":
		r.menuCommand(ctx, ev, MenuStats)
	case "movie":
		r.movieInfo(ctx, ev, args)
	case "delmovie":
		r.deleteMovie(ctx, ev, args)
	case "setchannel":
		r.startFlow(ctx, ev, session.KindSettingEdit, session.SettingEditFields{Target: settings.TargetBaseChannel})
	case "search":
		r.search(ctx, ev, args)
	case "premium":
		r.startFlow(ctx, ev, session.KindPremium, session.PremiumFields{})
	default:
		r.reply(ctx, ev.ChatID, sendCodeText)
	}
}

// RenderStartMessage fills the /start template placeholders for user.
func RenderStartMessage(template string, user messenger.User, premiumActive bool) string {
	fullName := user.FullName()
	if fullName == "" && user.Username != "" {
		fullName = "@" + user.Username
	}
	username := ""
	if user.Username != "" {
		username = "@" + user.Username
	}
	userID := ""
	if user.ID != 0 {
		userID = strconv.FormatInt(user.ID, 10)
	}
	hint := ""
	if premiumActive {
		hint = premiumHintText
	}
	return strings.NewReplacer(
		"{first_name}", html.EscapeString(user.FirstName),
		"{last_name}", html.EscapeString(user.LastName),
		"{full_name}", html.EscapeString(fullName),
		"{username}", html.EscapeString(username),
		"{user_id}", userID,
		"{premium_hint}", hint,
	).Replace(template)
}

func (r *Router) start(ctx context.Context, ev flow.Event, args string) {
	isAdmin, err := r.directory.IsAdmin(ctx, ev.UserID)
	if err != nil {
		r.fail(ctx, ev.ChatID, err)
		return
	}
	if isAdmin {
		r.menuCommand(ctx, ev, MenuPanel)
	} else {
		text := RenderStartMessage(settings.LoadStartMessage(), ev.From, settings.LoadPremium().Active)
		r.send(ctx, ev.ChatID, messenger.TextPayload(text, r.menus.UserKeyboard()))
	}
	// Deep links carry a code: t.me/<bot>?start=<code>.
	if code, errCode := content.ValidateUserCode(args); args != "" && errCode == nil {
		r.requestCode(ctx, ev, code)
	}
}

func (r *Router) help(ctx context.Context, ev flow.Event) {
	isAdmin, err := r.directory.IsAdmin(ctx, ev.UserID)
	if err != nil {
		r.fail(ctx, ev.ChatID, err)
		return
	}
	if isAdmin {
		r.reply(ctx, ev.ChatID, adminHelpText)
		return
	}
	r.reply(ctx, ev.ChatID, userHelpText)
}

// menuCommand sends menu id as a new message.
func (r *Router) menuCommand(ctx context.Context, ev flow.Event, id MenuID) {
	ev.Message = messenger.MessageRef{}
	if answer, _ := r.renderMenu(ctx, ev, id, nil); answer != "" {
		r.reply(ctx, ev.ChatID, answer)
	}
}

func (r *Router) requireMovies(ctx context.Context, ev flow.Event) bool {
	if err := r.directory.Require(ctx, ev.UserID, permissions.Movies); err != nil {
		r.fail(ctx, ev.ChatID, err)
		return false
	}
	return true
}

func (r *Router) movieInfo(ctx context.Context, ev flow.Event, args string) {
	if !r.requireMovies(ctx, ev) {
		return
	}
	if args == "" {
		r.reply(ctx, ev.ChatID, "Foydalanish: /movie <i>kod</i>")
		return
	}
	item, err := r.registry.Get(ctx, args)
	if err != nil {
		r.fail(ctx, ev.ChatID, err)
		return
	}
	var b strings.Builder
	fmt.Fprintf(&b, "🎬 <b>%s</b>\n", html.EscapeString(deref(item.Name, "Noma'lum")))
	fmt.Fprintf(&b, "🎭 Janr: %s\n", html.EscapeString(deref(item.Genre, "Noma'lum")))
	if item.DurationSeconds != nil {
		fmt.Fprintf(&b, "⏱ Davomiyligi: %s\n", content.FormatDuration(*item.DurationSeconds))
	}
	fmt.Fprintf(&b, "🔢 Kod: <code>%s</code>\n📢 Kanal: <code>%d</code>\n🆔 Xabar: <code>%d</code>\n📅 Qo'shilgan: %s",
		item.Code, item.OriginChannelID, item.OriginMessageID, item.CreatedAt.Format("2006-01-02 15:04"))
	r.reply(ctx, ev.ChatID, b.String())
}

func (r *Router) deleteMovie(ctx context.Context, ev flow.Event, args string) {
	if !r.requireMovies(ctx, ev) {
		return
	}
	if args == "" {
		r.reply(ctx, ev.ChatID, "Foydalanish: /delmovie <i>kod</i>")
		return
	}
	if err := r.registry.Delete(ctx, args); err != nil {
		r.fail(ctx, ev.ChatID, err)
		return
	}
	logger(ctx).WithField("code", args).Info("content deleted")
	r.reply(ctx, ev.ChatID, content.DeletedText(args))
}

func (r *Router) search(ctx context.Context, ev flow.Event, query string) {
	if len([]rune(query)) < content.MinSearchLength {
		r.reply(ctx, ev.ChatID, searchLimitText)
		return
	}
	items, err := r.registry.Search(ctx, query)
	if err != nil {
		r.fail(ctx, ev.ChatID, err)
		return
	}
	r.reply(ctx, ev.ChatID, content.SearchResultsText(items))
}

func deref(s *string, fallback string) string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return fallback
	}
	return *s
}

// viewer returns the admin account of the event sender; a non-admin yields false.
func (r *Router) viewer(ctx context.Context, ev flow.Event) (directory.Account, bool, error) {
	account, err := r.directory.Get(ctx, ev.UserID)
	if errkind.Is(err, errkind.NotFound) {
		return directory.Account{}, false, nil
	}
	if err != nil {
		return directory.Account{}, false, err
	}
	return account, true, nil
}
