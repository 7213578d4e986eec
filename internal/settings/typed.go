package settings

import (
	"strconv"
	"strings"
)

// BaseChannel is the channel content items are posted to.
type BaseChannel struct {
	ChatID   int64  `json:"chat_id"`
	Title    string `json:"title"`
	Username string `json:"username,omitempty"`
}

// ChannelButton is the promo button attached to content.
type ChannelButton struct {
	Enabled bool   `json:"enabled"`
	Text    string `json:"text"`
	URL     string `json:"url"`
}

// Subscription configures the gate.
type Subscription struct {
	Enabled bool   `json:"enabled"`
	Message string `json:"message"`
}

// Premium configures the premium plans.
type Premium struct {
	Active      bool             `json:"active"`
	Description string           `json:"description"`
	Prices      map[string]int64 `json:"prices"` // Plan months as string key.
	CardInfo    string           `json:"card_info"`
}

// LoadBaseChannel returns the configured origin channel.
func LoadBaseChannel() (BaseChannel, bool) {
	var out BaseChannel
	if !decode(BaseChannelKey, &out) || out.ChatID == 0 {
		return BaseChannel{}, false
	}
	return out, true
}

// LoadChannelButton returns the promo button; ok is false when it is disabled or incomplete.
func LoadChannelButton() (ChannelButton, bool) {
	var out ChannelButton
	if !decode(ChannelButtonKey, &out) {
		return ChannelButton{Text: DefaultChannelButtonText}, false
	}
	if strings.TrimSpace(out.Text) == "" {
		out.Text = DefaultChannelButtonText
	}
	return out, out.Enabled && strings.TrimSpace(out.URL) != ""
}

// LoadSubscription returns the gate settings. The gate is enabled unless turned off.
func LoadSubscription() Subscription {
	out := Subscription{Enabled: true, Message: DefaultSubscriptionMessage}
	decode(SubscriptionKey, &out)
	if strings.TrimSpace(out.Message) == "" {
		out.Message = DefaultSubscriptionMessage
	}
	return out
}

// LoadStartMessage returns the /start template.
func LoadStartMessage() string {
	var out string
	if !decode(StartMessageKey, &out) || strings.TrimSpace(out) == "" {
		return DefaultStartMessage
	}
	return out
}

// LoadPremium returns the premium settings with defaults applied.
func LoadPremium() Premium {
	out := Premium{Description: DefaultPremiumDescription}
	decode(PremiumKey, &out)
	if strings.TrimSpace(out.Description) == "" {
		out.Description = DefaultPremiumDescription
	}
	if out.Prices == nil {
		out.Prices = map[string]int64{}
	}
	for _, months := range PlanMonths {
		key := strconv.Itoa(months)
		if out.Prices[key] <= 0 {
			out.Prices[key] = DefaultPrices[months]
		}
	}
	return out
}

// Price returns the price of a plan.
func (p Premium) Price(months int) (int64, bool) {
	price, ok := p.Prices[strconv.Itoa(months)]
	return price, ok && price > 0
}
