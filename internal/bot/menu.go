package bot

import (
	"fmt"
	"html"
	"strconv"
	"strings"

	"github.com/ibrohim2505/prokinobot/internal/channels"
	"github.com/ibrohim2505/prokinobot/internal/content"
	"github.com/ibrohim2505/prokinobot/internal/directory"
	"github.com/ibrohim2505/prokinobot/internal/messenger"
	"github.com/ibrohim2505/prokinobot/internal/models"
	"github.com/ibrohim2505/prokinobot/internal/permissions"
	"github.com/ibrohim2505/prokinobot/internal/premium"
	"github.com/ibrohim2505/prokinobot/internal/session"
	"github.com/ibrohim2505/prokinobot/internal/settings"
	"github.com/ibrohim2505/prokinobot/internal/store"
)

// MenuID names an admin menu.
type MenuID string

const (
	MenuPanel    MenuID = "panel"
	MenuMovies   MenuID = "movies"
	MenuChannels MenuID = "channels"
	MenuAdmins   MenuID = "admins"
	MenuAdmin    MenuID = "admin"
	MenuPremium  MenuID = "premium"
	MenuSettings MenuID = "settings"
	MenuStats    MenuID = "stats"

	MenuMovieList       MenuID = "movie_list"
	MenuPremiumStats    MenuID = "premium_stats"
	MenuPremiumUsers    MenuID = "premium_users"
	MenuPremiumPayments MenuID = "premium_payments"
)

// Admin callback data is "adm:<verb>[:<arg>...]".
const (
	adminPrefix = "adm:"

	verbMenu     = "menu"
	verbFlow     = "flow"
	verbToggle   = "toggle"
	verbPerm     = "perm"
	verbAdminDel = "admdel"
	verbChanDel  = "chdel"

	// Toggle targets.
	toggleSubscription = "subscription"
	togglePremium      = "premium"
	togglePromo        = "promo"

	// Flow names started from menus.
	flowMovie     = "movie"
	flowBroadcast = "broadcast"
	flowAdminAdd  = "admin_add"
	flowChannel   = "channel"
	flowEdit      = "edit"
	flowLookup    = "lookup"

	// CallbackPremiumOpen starts the premium purchase flow for a user.
	CallbackPremiumOpen = "premium_open"
)

func adminData(verb string, args ...string) string {
	if len(args) == 0 {
		return adminPrefix + verb
	}
	return adminPrefix + verb + ":" + strings.Join(args, ":")
}

func menuData(id MenuID, args ...string) string {
	return adminData(verbMenu, append([]string{string(id)}, args...)...)
}

// menuCapability is the capability needed to open a menu; "" means any admin.
var menuCapability = map[MenuID]string{
	MenuPanel:    "",
	MenuStats:    "",
	MenuMovies:   permissions.Movies,
	MenuChannels: permissions.Channels,
	MenuAdmins:   permissions.Admins,
	MenuAdmin:    permissions.Admins,
	MenuPremium:  permissions.Premium,
	MenuSettings: "",

	MenuMovieList:       permissions.Movies,
	MenuPremiumStats:    permissions.Premium,
	MenuPremiumUsers:    permissions.Premium,
	MenuPremiumPayments: permissions.Premium,
}

// Row limits of the list views.
const (
	recentContentLimit   = 10
	premiumUsersLimit    = 20
	premiumPaymentsLimit = 10
)

type panelSection struct {
	menu       MenuID
	capability string
	label      string
	data       string
}

var panelSections = []panelSection{
	{menu: MenuMovies, capability: permissions.Movies, label: "🎬 Kino boshqaruvi"},
	{menu: MenuChannels, capability: permissions.Channels, label: "📺 Kanal boshqaruvi"},
	{capability: permissions.Broadcast, label: "📢 Xabar yuborish", data: adminData(verbFlow, flowBroadcast)},
	{menu: MenuPremium, capability: permissions.Premium, label: "💎 Premium boshqaruvi"},
	{menu: MenuAdmins, capability: permissions.Admins, label: "👑 Admin boshqaruvi"},
	{menu: MenuSettings, capability: permissions.AnyAdmin, label: "⚙️ Bot sozlamalari"},
}

// View is the data a menu is rendered from.
type View struct {
	Viewer       directory.Account
	Admins       []directory.Account
	Target       directory.Account
	Requirements []models.ChannelRequirement
	Stats        store.Stats

	Content         []models.ContentItem
	PremiumRequests []models.PremiumRequest
	PremiumStats    store.PremiumStats
}

// MenuBuilder renders every admin menu from the current settings and the viewer's
// capabilities.
type MenuBuilder struct{}

// Build renders menu id.
func (MenuBuilder) Build(id MenuID, v View) messenger.Payload {
	var (
		text string
		kb   messenger.Keyboard
	)
	switch id {
	case MenuPanel:
		text = "👑 <b>Admin Panel</b>\n\nKerakli bo'limni tanlang:"
		kb = append(kb, []messenger.Button{{Text: "📊 Statistika", CallbackData: menuData(MenuStats)}})
		for _, section := range panelSections {
			if !v.Viewer.Has(section.capability) {
				continue
			}
			data := section.data
			if data == "" {
				data = menuData(section.menu)
			}
			kb = append(kb, []messenger.Button{{Text: section.label, CallbackData: data}})
		}
		return messenger.TextPayload(text, kb)

	case MenuStats:
		text = statsText(v.Stats)

	case MenuMovies:
		button, enabled := settings.LoadChannelButton()
		text = "🎬 <b>Kino boshqaruvi</b>\n\n" + baseChannelLine() +
			"\n🔘 Promo tugma: " + onOff(enabled) + "\n📝 Tugma matni: " + html.EscapeString(button.Text)
		kb = messenger.Keyboard{
			{{Text: "➕ Kino qo'shish", CallbackData: adminData(verbFlow, flowMovie)}},
			{
				{Text: "📋 Ro'yxat", CallbackData: menuData(MenuMovieList)},
				{Text: "🔎 Qidirish", CallbackData: adminData(verbFlow, flowLookup, session.LookupSearch)},
				{Text: "🗑 O'chirish", CallbackData: adminData(verbFlow, flowLookup, session.LookupDelete)},
			},
			{{Text: toggleLabel("Promo tugma", enabled), CallbackData: adminData(verbToggle, togglePromo)}},
			{
				{Text: "✏️ Tugma matni", CallbackData: adminData(verbFlow, flowEdit, settings.TargetPromoText)},
				{Text: "🔗 Tugma havolasi", CallbackData: adminData(verbFlow, flowEdit, settings.TargetPromoURL)},
			},
		}

	case MenuChannels:
		sub := settings.LoadSubscription()
		var b strings.Builder
		b.WriteString("📺 <b>Kanal boshqaruvi</b>\n\n")
		b.WriteString(baseChannelLine())
		b.WriteString("\n🔒 Majburiy obuna: " + onOff(sub.Enabled) + "\n\n")
		if len(v.Requirements) == 0 {
			b.WriteString("Kanallar qo'shilmagan.")
		}
		for i, req := range v.Requirements {
			fmt.Fprintf(&b, "%d. %s %s", i+1, classEmoji(channels.EffectiveClass(req)), html.EscapeString(req.DisplayName))
			if !req.Required {
				b.WriteString(" (ixtiyoriy)")
			}
			b.WriteString("\n")
			kb = append(kb, []messenger.Button{{Text: "🗑 " + req.DisplayName, CallbackData: adminData(verbChanDel, strconv.FormatUint(req.ID, 10))}})
		}
		text = b.String()
		kb = append(kb,
			[]messenger.Button{
				{Text: "➕ Kanal", CallbackData: adminData(verbFlow, flowChannel, models.VerificationCheckable, "1")},
				{Text: "➕ Ixtiyoriy kanal", CallbackData: adminData(verbFlow, flowChannel, models.VerificationCheckable, "0")},
			},
			[]messenger.Button{
				{Text: "🔐 So'rovli kanal", CallbackData: adminData(verbFlow, flowChannel, models.VerificationRequestOnly, "1")},
				{Text: "🔗 Havola / Instagram", CallbackData: adminData(verbFlow, flowChannel, models.VerificationExternalLink, "1")},
			},
			[]messenger.Button{{Text: toggleLabel("Majburiy obuna", sub.Enabled), CallbackData: adminData(verbToggle, toggleSubscription)}},
			[]messenger.Button{
				{Text: "📝 Obuna xabari", CallbackData: adminData(verbFlow, flowEdit, settings.TargetSubscriptionMessage)},
				{Text: "🗄 Baza kanal", CallbackData: adminData(verbFlow, flowEdit, settings.TargetBaseChannel)},
			},
		)

	case MenuAdmins:
		var b strings.Builder
		b.WriteString("👑 <b>Adminlar</b>\n\n")
		for _, account := range v.Admins {
			name := accountName(account)
			if account.IsSuperAdmin {
				fmt.Fprintf(&b, "👑 %s (<code>%d</code>)\n", html.EscapeString(name), account.UserID)
				continue
			}
			fmt.Fprintf(&b, "👮 %s (<code>%d</code>)\n", html.EscapeString(name), account.UserID)
			kb = append(kb, []messenger.Button{{Text: "👮 " + name, CallbackData: menuData(MenuAdmin, strconv.FormatInt(account.UserID, 10))}})
		}
		text = b.String()
		kb = append(kb, []messenger.Button{{Text: "➕ Admin qo'shish", CallbackData: adminData(verbFlow, flowAdminAdd)}})

	case MenuAdmin:
		id := strconv.FormatInt(v.Target.UserID, 10)
		text = fmt.Sprintf("👮 <b>%s</b>\n🆔 <code>%d</code>\n\nHuquqlarni yoqing yoki o'chiring:", html.EscapeString(accountName(v.Target)), v.Target.UserID)
		for _, def := range permissions.Definitions() {
			label := def.Emoji + " " + def.Label + ": " + onOff(v.Target.Has(def.Key))
			kb = append(kb, []messenger.Button{{Text: label, CallbackData: adminData(verbPerm, id, def.Key)}})
		}
		kb = append(kb,
			[]messenger.Button{{Text: "🗑 Adminni o'chirish", CallbackData: adminData(verbAdminDel, id)}},
			[]messenger.Button{{Text: "⬅️ Orqaga", CallbackData: menuData(MenuAdmins)}},
		)
		return messenger.TextPayload(text, kb)

	case MenuPremium:
		p := settings.LoadPremium()
		var b strings.Builder
		b.WriteString("💎 <b>Premium boshqaruvi</b>\n\n")
		b.WriteString("Holat: " + onOff(p.Active) + "\n")
		b.WriteString("💳 Karta: " + html.EscapeString(orDash(p.CardInfo)) + "\n\n")
		for _, months := range settings.PlanMonths {
			price, _ := p.Price(months)
			fmt.Fprintf(&b, "• %s: %s\n", premium.PlanLabel(months), premium.FormatAmount(price))
		}
		text = b.String()
		kb = messenger.Keyboard{
			{{Text: toggleLabel("Premium", p.Active), CallbackData: adminData(verbToggle, togglePremium)}},
			{
				{Text: "📝 Tavsif", CallbackData: adminData(verbFlow, flowEdit, settings.TargetPremiumDescription)},
				{Text: "💳 Karta", CallbackData: adminData(verbFlow, flowEdit, settings.TargetPremiumCard)},
			},
			{{Text: "💰 Narxlar", CallbackData: adminData(verbFlow, flowEdit, settings.TargetPremiumPrices)}},
			{
				{Text: "📊 Statistika", CallbackData: menuData(MenuPremiumStats)},
				{Text: "👥 Foydalanuvchilar", CallbackData: menuData(MenuPremiumUsers)},
				{Text: "🧾 To'lovlar", CallbackData: menuData(MenuPremiumPayments)},
			},
		}

	case MenuMovieList:
		text = content.RecentText(v.Content)
		kb = messenger.Keyboard{{{Text: "⬅️ Orqaga", CallbackData: menuData(MenuMovies)}}}

	case MenuPremiumStats:
		text = premiumStatsText(v.PremiumStats)
		kb = messenger.Keyboard{{{Text: "⬅️ Orqaga", CallbackData: menuData(MenuPremium)}}}

	case MenuPremiumUsers:
		text = premiumUsersText(v.PremiumRequests)
		kb = messenger.Keyboard{{{Text: "⬅️ Orqaga", CallbackData: menuData(MenuPremium)}}}

	case MenuPremiumPayments:
		text = premiumPaymentsText(v.PremiumRequests)
		kb = messenger.Keyboard{{{Text: "⬅️ Orqaga", CallbackData: menuData(MenuPremium)}}}

	case MenuSettings:
		text = "⚙️ <b>Bot sozlamalari</b>\n\n/start xabari:\n<pre>" + html.EscapeString(settings.LoadStartMessage()) + "</pre>"
		kb = messenger.Keyboard{
			{{Text: "✏️ /start xabarini tahrirlash", CallbackData: adminData(verbFlow, flowEdit, settings.TargetStartMessage)}},
		}

	default:
		text = "❌ Noma'lum bo'lim."
	}
	kb = append(kb, []messenger.Button{{Text: "⬅️ Bosh menyu", CallbackData: menuData(MenuPanel)}})
	return messenger.TextPayload(text, kb)
}

// UserKeyboard is attached to the /start greeting of regular users.
func (MenuBuilder) UserKeyboard() messenger.Keyboard {
	if !settings.LoadPremium().Active {
		return nil
	}
	return messenger.Keyboard{{{Text: "💎 Premium obuna", CallbackData: CallbackPremiumOpen}}}
}

func statsText(s store.Stats) string {
	var b strings.Builder
	b.WriteString("📊 <b>Statistika</b>\n\n")
	b.WriteString("👥 <b>Foydalanuvchilar</b>\n")
	fmt.Fprintf(&b, "• Jami: %d\n• Yangi (bugun): %d\n• Faol (bugun): %d\n\n", s.Users, s.NewToday, s.ActiveToday)
	b.WriteString("🎬 <b>Kinolar</b>\n")
	fmt.Fprintf(&b, "• Jami kinolar: %d\n\n", s.ContentItems)
	b.WriteString("⚙️ <b>Tizim</b>\n")
	fmt.Fprintf(&b, "• Adminlar: %d\n• Majburiy obuna kanallari: %d\n• Kutilayotgan premium cheklar: %d\n", s.Admins, s.Channels, s.PendingPremium)
	b.WriteString("• " + baseChannelLine())
	return b.String()
}

func premiumStatsText(s store.PremiumStats) string {
	var b strings.Builder
	b.WriteString("📊 <b>Premium statistika</b>\n\n")
	fmt.Fprintf(&b, "• Jami cheklar: %d\n", s.Total)
	for _, status := range premiumStatuses {
		fmt.Fprintf(&b, "• %s: %d\n", statusLabel(status), s.ByStatus[status])
	}
	fmt.Fprintf(&b, "\n👥 Premium foydalanuvchilar: %d\n💰 Tasdiqlangan to'lovlar: %s", s.ApprovedUsers, premium.FormatAmount(s.ApprovedAmount))
	return b.String()
}

// premiumUsersText lists approved requests with the end of the paid period.
func premiumUsersText(reqs []models.PremiumRequest) string {
	var b strings.Builder
	b.WriteString("👥 <b>Premium foydalanuvchilar</b>\n\n")
	if len(reqs) == 0 {
		b.WriteString("Hozircha premium foydalanuvchilar yo'q.")
		return b.String()
	}
	for i, req := range reqs {
		expires := req.UpdatedAt.AddDate(0, req.DurationMonths, 0).Format("2006-01-02")
		fmt.Fprintf(&b, "%d. %s - %s (tugash: %s)\n", i+1, html.EscapeString(requesterName(req)), html.EscapeString(req.PlanLabel), expires)
	}
	return b.String()
}

func premiumPaymentsText(reqs []models.PremiumRequest) string {
	var b strings.Builder
	b.WriteString("🧾 <b>So'nggi to'lovlar</b>\n\n")
	if len(reqs) == 0 {
		b.WriteString("Hali to'lovlar qayd etilmagan.")
		return b.String()
	}
	for _, req := range reqs {
		fmt.Fprintf(&b, "• %s / %s - %s\n  %s, %s\n",
			premium.FormatAmount(req.Amount), html.EscapeString(req.PlanLabel), statusLabel(req.Status),
			html.EscapeString(requesterName(req)), req.CreatedAt.Format("2006-01-02 15:04"))
	}
	return b.String()
}

var premiumStatuses = []string{
	models.PremiumStatusPending,
	models.PremiumStatusApproved,
	models.PremiumStatusRejected,
	models.PremiumStatusPartial,
}

func statusLabel(status string) string {
	switch status {
	case models.PremiumStatusPending:
		return "⏳ Kutilmoqda"
	case models.PremiumStatusApproved:
		return "✅ Tasdiqlangan"
	case models.PremiumStatusRejected:
		return "❌ Rad etilgan"
	case models.PremiumStatusPartial:
		return "⚠️ To'liq emas"
	default:
		return status
	}
}

func requesterName(req models.PremiumRequest) string {
	name := strings.TrimSpace(req.FirstName)
	if name == "" {
		name = "Noma'lum"
	}
	if req.Username != "" {
		name += " (@" + req.Username + ")"
	}
	return name
}

func baseChannelLine() string {
	ch, ok := settings.LoadBaseChannel()
	if !ok {
		return "🗄 Baza kanal: sozlanmagan"
	}
	return fmt.Sprintf("🗄 Baza kanal: %s (<code>%d</code>)", html.EscapeString(ch.Title), ch.ChatID)
}

func classEmoji(class string) string {
	switch class {
	case models.VerificationRequestOnly:
		return "🔐"
	case models.VerificationExternalLink:
		return "🔗"
	default:
		return "📢"
	}
}

func accountName(a directory.Account) string {
	switch {
	case a.DisplayName != "":
		return a.DisplayName
	case a.Username != "":
		return "@" + a.Username
	default:
		return strconv.FormatInt(a.UserID, 10)
	}
}

func onOff(on bool) string {
	if on {
		return "✅"
	}
	return "❌"
}

func toggleLabel(name string, on bool) string {
	if on {
		return "🔴 " + name + "ni o'chirish"
	}
	return "🟢 " + name + "ni yoqish"
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "—"
	}
	return s
}
