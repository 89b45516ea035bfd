package telegram

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-telegram/bot"
	"github.com/set-night/companionbot/internal/domain"
)

// Callback data of the notification buttons.
const (
	CallbackNotifyOpen  = "nopen:"
	CallbackNotifyAllow = "nperm:allow"
	CallbackNotifyDeny  = "nperm:deny"
)

type notificationKey struct {
	owner int64
	tag   string
}

type shownNotification struct {
	messageID int
	timer     *time.Timer
}

// Notifications shows notifications as alerting chat messages that delete
// themselves after a TTL. A newer notification with the same tag replaces
// the older one.
type Notifications struct {
	bot *bot.Bot
	ttl time.Duration

	mu    sync.Mutex
	shown map[notificationKey]*shownNotification
}

func NewNotifications(b *bot.Bot, ttl time.Duration) *Notifications {
	return &Notifications{
		bot:   b,
		ttl:   ttl,
		shown: make(map[notificationKey]*shownNotification),
	}
}

func (n *Notifications) Show(ctx context.Context, owner int64, notification domain.Notification) error {
	key := notificationKey{owner: owner, tag: notification.Tag}
	n.mu.Lock()
	previous := n.shown[key]
	delete(n.shown, key)
	n.mu.Unlock()
	if previous != nil {
		previous.timer.Stop()
		DeleteMessage(ctx, n.bot, owner, previous.messageID)
	}

	params := &bot.SendMessageParams{
		ChatID: owner,
		Text:   fmt.Sprintf("%s %s\n%s", notification.Icon, notification.Title, notification.Body),
	}
	if notification.PersonalityID != "" {
		params.ReplyMarkup = InlineKeyboard(ButtonRow(
			InlineButton("Open", CallbackNotifyOpen+notification.PersonalityID),
		))
	}
	msg, err := n.bot.SendMessage(ctx, params)
	if err != nil {
		return fmt.Errorf("send notification: %w", err)
	}

	shown := &shownNotification{messageID: msg.ID}
	shown.timer = time.AfterFunc(n.ttl, func() { n.dismiss(key, shown) })

	n.mu.Lock()
	n.shown[key] = shown
	n.mu.Unlock()
	return nil
}

// RequestPermission asks with an inline prompt; the answer arrives as a
// callback. Only private chats can be notified.
func (n *Notifications) RequestPermission(ctx context.Context, owner int64) (domain.Permission, error) {
	if owner < 0 {
		return domain.PermissionUnsupported, nil
	}
	_, err := n.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: owner,
		Text:   "🔔 Allow notifications when your companions message you while you are away?",
		ReplyMarkup: InlineKeyboard(ButtonRow(
			InlineButton("✅ Allow", CallbackNotifyAllow),
			InlineButton("🚫 Deny", CallbackNotifyDeny),
		)),
	})
	if err != nil {
		return domain.PermissionUnset, fmt.Errorf("send permission prompt: %w", err)
	}
	return domain.PermissionUnset, nil
}

// Close deletes notifications that are still on screen.
func (n *Notifications) Close() {
	n.mu.Lock()
	pending := n.shown
	n.shown = make(map[notificationKey]*shownNotification)
	n.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for key, shown := range pending {
		if shown.timer.Stop() {
			DeleteMessage(ctx, n.bot, key.owner, shown.messageID)
		}
	}
}

func (n *Notifications) dismiss(key notificationKey, shown *shownNotification) {
	n.mu.Lock()
	if n.shown[key] == shown {
		delete(n.shown, key)
	}
	n.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	DeleteMessage(ctx, n.bot, key.owner, shown.messageID)
}
