package config

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	// Chat request parameters
	MaxTokens          = 1000
	DefaultTemperature = 0.7

	// Proactive messages are written with this much recent history.
	ProactiveHistoryWindow = 6

	// Built-in personality and tag cache
	BuiltinCacheDuration = 10 * time.Minute

	// Notifications
	NotificationBodyLen = 100
	NotificationIcon    = "🤖"

	// Telegram limits
	MaxTelegramMessageLen = 4096
	MaxCaptionLen         = 1024

	// Conversation view
	MessagesPerView     = 10
	PersonalitiesPerRow = 2
	DiscoverPageSize    = 8

	// Custom personality avatars
	MaxAvatarBytes = 5 * 1024 * 1024

	// Registry warm-up at start
	WarmupTimeout = 15 * time.Second
)

// TemperatureOptions offered in the settings menu.
var TemperatureOptions = []decimal.Decimal{
	decimal.RequireFromString("0.3"),
	decimal.RequireFromString("0.7"),
	decimal.RequireFromString("1.0"),
	decimal.RequireFromString("1.3"),
}

// ImageKeywords hint that a reply will carry a generated image.
var ImageKeywords = []string{"create", "generate", "make", "draw", "show", "picture", "image", "photo"}

// SelfImageKeywords hint that the user asks for a picture of the personality itself.
var SelfImageKeywords = []string{"look like", "selfie", "yourself", "what you look", "see you", "picture of you", "image of you"}
