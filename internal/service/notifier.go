package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/set-night/companionbot/internal/config"
	"github.com/set-night/companionbot/internal/domain"
)

// NotificationPlatform shows notifications and asks the owner for permission.
type NotificationPlatform interface {
	Show(ctx context.Context, owner int64, n domain.Notification) error
	// RequestPermission returns PermissionUnset when the answer arrives
	// later through Notifier.ResolvePermission.
	RequestPermission(ctx context.Context, owner int64) (domain.Permission, error)
}

// FocusChecker reports whether the owner is currently looking at the chat.
type FocusChecker interface {
	Focused(owner int64) bool
}

// Notifier presents transient notifications when the owner allows them and
// is away.
type Notifier struct {
	prefs    *PreferenceService
	focus    FocusChecker
	platform NotificationPlatform
	now      func() time.Time

	mu        sync.Mutex
	requested map[int64]bool
}

func NewNotifier(prefs *PreferenceService, focus FocusChecker, platform NotificationPlatform) *Notifier {
	return &Notifier{
		prefs:     prefs,
		focus:     focus,
		platform:  platform,
		now:       time.Now,
		requested: make(map[int64]bool),
	}
}

// Present shows n if notifications are enabled, permission is granted and
// the owner is not focused. Failures are logged only.
func (n *Notifier) Present(ctx context.Context, owner int64, notification domain.Notification) {
	prefs, err := n.prefs.Get(ctx, owner)
	if err != nil {
		slog.Warn("failed to load notification preference", "owner", owner, "error", err)
		return
	}
	if !prefs.Notifications.Allows(n.focus.Focused(owner)) {
		return
	}
	if notification.Icon == "" {
		notification.Icon = config.NotificationIcon
	}
	if err := n.platform.Show(ctx, owner, notification); err != nil {
		slog.Warn("failed to show notification", "owner", owner, "tag", notification.Tag, "error", err)
	}
}

// Notify presents the standard notification for a new assistant message.
func (n *Notifier) Notify(ctx context.Context, owner int64, p domain.Personality, msg domain.Message) {
	n.Present(ctx, owner, MessageNotification(p, msg, n.now()))
}

// MessageNotification builds the notification for an assistant message.
func MessageNotification(p domain.Personality, msg domain.Message, at time.Time) domain.Notification {
	action := "replied"
	if msg.IsProactive {
		action = "reached out to you!"
	}
	body := msg.Content
	if utf8.RuneCountInString(body) > config.NotificationBodyLen {
		body = string([]rune(body)[:config.NotificationBodyLen]) + "..."
	}
	if body == "" && msg.Image != "" {
		body = "📷 Image"
	}
	return domain.Notification{
		Title:         fmt.Sprintf("%s %s %s", p.Glyph(), p.Name, action),
		Body:          body,
		Icon:          config.NotificationIcon,
		Tag:           fmt.Sprintf("message-%s-%d", p.ID, at.UnixMilli()),
		PersonalityID: p.ID,
	}
}

// RequestPermission asks the platform once and mirrors a definite answer.
func (n *Notifier) RequestPermission(ctx context.Context, owner int64) (domain.Permission, error) {
	n.mu.Lock()
	n.requested[owner] = true
	n.mu.Unlock()

	perm, err := n.platform.RequestPermission(ctx, owner)
	if err != nil {
		slog.Warn("permission request failed", "owner", owner, "error", err)
		perm = domain.PermissionDenied
	}
	if perm == domain.PermissionUnset {
		return perm, nil
	}
	return perm, n.ResolvePermission(ctx, owner, perm)
}

// ResolvePermission records the owner's answer. Granting also enables
// notifications and greets the owner.
func (n *Notifier) ResolvePermission(ctx context.Context, owner int64, perm domain.Permission) error {
	prefs, err := n.prefs.Update(ctx, owner, func(p *domain.Preferences) {
		p.Notifications.Permission = perm
		if perm == domain.PermissionGranted {
			p.Notifications.Enabled = true
		}
	})
	if err != nil {
		return fmt.Errorf("save permission: %w", err)
	}
	if prefs.Notifications.Permission == domain.PermissionGranted {
		n.Present(ctx, owner, domain.Notification{
			Title: "Notifications Enabled! 🔔",
			Body:  "You'll now receive notifications when AI companions message you.",
			Tag:   "welcome",
		})
	}
	return nil
}

// Toggle flips the notification preference. Enabling without permission
// asks for it instead.
func (n *Notifier) Toggle(ctx context.Context, owner int64) (domain.NotificationPreference, error) {
	prefs, err := n.prefs.Get(ctx, owner)
	if err != nil {
		return prefs.Notifications, err
	}

	if !prefs.Notifications.Enabled && prefs.Notifications.Permission != domain.PermissionGranted {
		if _, err := n.RequestPermission(ctx, owner); err != nil {
			return prefs.Notifications, err
		}
		prefs, err = n.prefs.Get(ctx, owner)
		return prefs.Notifications, err
	}

	prefs, err = n.prefs.Update(ctx, owner, func(p *domain.Preferences) {
		p.Notifications.Enabled = !p.Notifications.Enabled
	})
	if err != nil {
		return prefs.Notifications, err
	}
	if prefs.Notifications.Enabled {
		n.Present(ctx, owner, domain.Notification{
			Title: "Notifications Re-enabled! 🔔",
			Body:  "You'll receive notifications from your AI companions again.",
			Tag:   "re-enabled",
		})
	}
	return prefs.Notifications, nil
}

// EnsurePermission runs on an owner's first interaction: a stored
// "enabled" preference without an answer triggers one request.
func (n *Notifier) EnsurePermission(ctx context.Context, owner int64) {
	n.mu.Lock()
	done := n.requested[owner]
	n.mu.Unlock()
	if done {
		return
	}

	prefs, err := n.prefs.Get(ctx, owner)
	if err != nil {
		slog.Warn("failed to load notification preference", "owner", owner, "error", err)
		return
	}
	if !prefs.Notifications.Enabled || prefs.Notifications.Permission != domain.PermissionUnset {
		n.mu.Lock()
		n.requested[owner] = true
		n.mu.Unlock()
		return
	}
	if _, err := n.RequestPermission(ctx, owner); err != nil {
		slog.Warn("failed to request notification permission", "owner", owner, "error", err)
	}
}
