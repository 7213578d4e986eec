package settings

// Setting keys and defaults.
const (
	// BaseChannelKey holds the origin channel content items are posted to.
	BaseChannelKey = "BASE_CHANNEL"
	// ChannelButtonKey holds the promo button attached to posted and delivered content.
	ChannelButtonKey = "CHANNEL_BUTTON"
	// SubscriptionKey holds the gate toggle and the prompt shown to blocked users.
	SubscriptionKey = "SUBSCRIPTION"
	// StartMessageKey holds the /start template.
	StartMessageKey = "START_MESSAGE"
	// PremiumKey holds the premium plan settings.
	PremiumKey = "PREMIUM"

	// DefaultSubscriptionMessage is shown above the channel buttons of a blocked user.
	DefaultSubscriptionMessage = "❗️ Botdan foydalanish uchun quyidagi kanallarga obuna bo'ling:"
	// DefaultStartMessage is used until an admin sets a template.
	DefaultStartMessage = "👋 Assalomu alaykum, {first_name}!\n\n🎬 Kino kodini yuboring.{premium_hint}"
	// DefaultPremiumDescription describes premium until an admin sets a text.
	DefaultPremiumDescription = "💎 Premium obuna bilan majburiy obunasiz foydalaning."
	// DefaultChannelButtonText labels the promo button.
	DefaultChannelButtonText = "📢 Kanalga o'tish"
)

// PlanMonths lists the premium plan durations in display order.
var PlanMonths = []int{1, 3, 6, 12}

// DefaultPrices are the plan prices used until an admin sets them.
var DefaultPrices = map[int]int64{1: 12000, 3: 36000, 6: 60000, 12: 110000}
