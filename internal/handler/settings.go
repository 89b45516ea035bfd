package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/set-night/companionbot/internal/config"
	"github.com/set-night/companionbot/internal/domain"
	tg "github.com/set-night/companionbot/internal/telegram"
	"github.com/shopspring/decimal"
)

func (h *Handler) handleSettings(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	owner, ok := h.privateOwner(ctx, b)
	if !ok {
		return
	}
	h.sendSettings(ctx, b, owner, 0)
}

func (h *Handler) handleSettingsButton(ctx context.Context, b *bot.Bot, update *models.Update) {
	answer(ctx, b, update, "")
	owner, ok := h.privateOwner(ctx, b)
	if !ok {
		return
	}
	_, messageID, _ := callbackMessage(update)
	h.sendSettings(ctx, b, owner, messageID)
}

// sendSettings renders the settings panel, editing messageID in place when
// it is non-zero.
func (h *Handler) sendSettings(ctx context.Context, b *bot.Bot, owner int64, messageID int) {
	prefs, err := h.prefs.Get(ctx, owner)
	if err != nil {
		h.logError(err, "load preferences", owner)
		h.sendText(ctx, owner, "❌ Could not load settings. Please try again.", nil)
		return
	}
	pid, selected := h.view.Selected(owner)

	notifyStatus := "❌ Off"
	switch {
	case prefs.Notifications.Permission == domain.PermissionUnsupported:
		notifyStatus = "🚫 Unsupported"
	case prefs.Notifications.Permission == domain.PermissionDenied:
		notifyStatus = "🚫 Blocked"
	case prefs.Notifications.Enabled && prefs.Notifications.Permission == domain.PermissionGranted:
		notifyStatus = "✅ On"
	}
	proactiveStatus := "❌ Off"
	if prefs.ProactiveEnabled {
		proactiveStatus = "✅ On"
	}

	var sb strings.Builder
	sb.WriteString("⚙️ *Settings*\n\n")
	fmt.Fprintf(&sb, "🔔 Notifications: *%s*\n", notifyStatus)
	fmt.Fprintf(&sb, "💬 Proactive messages: *%s*\n", proactiveStatus)
	fmt.Fprintf(&sb, "🌡 Temperature: *%s*\n", prefs.Temperature.StringFixed(1))
	if prefs.Notifications.Permission == domain.PermissionDenied {
		sb.WriteString("\n_You declined notifications. Toggle them to be asked again._\n")
	}

	var current domain.Personality
	custom := false
	if selected {
		current = h.registry.Resolve(ctx, owner, pid)
		custom = h.registry.IsCustom(ctx, owner, pid)
		fmt.Fprintf(&sb, "\n%s Current conversation: *%s*\n", current.Glyph(), tg.EscapeMarkdown(current.Name))
	}

	var rows [][]models.InlineKeyboardButton
	rows = append(rows,
		tg.ButtonRow(tg.InlineButton("🔔 Notifications: "+notifyStatus, cbToggleNotify)),
		tg.ButtonRow(tg.InlineButton("💬 Proactive: "+proactiveStatus, cbToggleProactive)),
		tg.ButtonRow(tg.InlineButton("🌡 Temperature", cbTemperatureMenu)),
	)
	if selected {
		if prefs.ProactiveEnabled {
			rows = append(rows, tg.ButtonRow(tg.InlineButton("✨ Trigger proactive message", cbTrigger)))
		}
		if custom {
			rows = append(rows,
				tg.ButtonRow(
					tg.InlineButton("✏️ Edit", cbEdit+pid),
					tg.InlineButton("🖼 Avatar", cbAvatar+pid),
				),
				tg.ButtonRow(
					tg.InlineButton("🌍 Publish", cbPublish+pid),
					tg.InlineButton("🗑 Delete", cbDelete+pid),
				),
			)
		}
		rows = append(rows, tg.ButtonRow(tg.InlineButton("🧹 Delete this conversation", cbDeleteConv)))
	}
	rows = append(rows, tg.ButtonRow(tg.InlineButton("💣 Clear all conversations", cbClearAll)))
	if selected {
		rows = append(rows, tg.ButtonRow(tg.InlineButton("⬅️ Back to chat", cbSelect+pid)))
	} else {
		rows = append(rows, tg.ButtonRow(tg.InlineButton("⬅️ Back", cbBack)))
	}

	markup := tg.InlineKeyboard(rows...)
	if messageID != 0 {
		if err := tg.EditText(ctx, b, owner, messageID, sb.String(), markup); err == nil {
			return
		}
	}
	h.sendText(ctx, owner, sb.String(), markup)
}

func (h *Handler) handleToggleNotify(ctx context.Context, b *bot.Bot, update *models.Update) {
	owner, ok := h.privateOwner(ctx, b)
	if !ok {
		answer(ctx, b, update, "")
		return
	}
	pref, err := h.notifier.Toggle(ctx, owner)
	if err != nil {
		answer(ctx, b, update, "❌ Could not update notifications")
		h.logError(err, "toggle notifications", owner)
		return
	}
	switch {
	case pref.Permission == domain.PermissionUnset:
		answer(ctx, b, update, "🔔 Please answer the permission prompt")
	case pref.Enabled:
		answer(ctx, b, update, "🔔 Notifications on")
	default:
		answer(ctx, b, update, "🔕 Notifications off")
	}
	_, messageID, _ := callbackMessage(update)
	h.sendSettings(ctx, b, owner, messageID)
}

func (h *Handler) handleToggleProactive(ctx context.Context, b *bot.Bot, update *models.Update) {
	owner, ok := h.privateOwner(ctx, b)
	if !ok {
		answer(ctx, b, update, "")
		return
	}
	prefs, err := h.prefs.Update(ctx, owner, func(p *domain.Preferences) {
		p.ProactiveEnabled = !p.ProactiveEnabled
	})
	if err != nil {
		answer(ctx, b, update, "❌ Could not update proactive messages")
		h.logError(err, "toggle proactive", owner)
		return
	}
	if prefs.ProactiveEnabled {
		answer(ctx, b, update, "💬 Proactive messages on")
	} else {
		answer(ctx, b, update, "💬 Proactive messages off")
	}
	h.reconcile(ctx, owner)
	_, messageID, _ := callbackMessage(update)
	h.sendSettings(ctx, b, owner, messageID)
}

// handleTrigger asks for a proactive message right away. The reply is
// rendered by DeliverProactive.
func (h *Handler) handleTrigger(ctx context.Context, b *bot.Bot, update *models.Update) {
	owner, ok := h.privateOwner(ctx, b)
	if !ok {
		answer(ctx, b, update, "")
		return
	}
	answer(ctx, b, update, "✨ Asking for a message...")

	stop := tg.StartAction(ctx, b, owner, models.ChatActionTyping)
	msg, err := h.scheduler.Trigger(ctx, owner)
	stop()
	switch {
	case errors.Is(err, domain.ErrNoPersonalitySelected):
		h.sendText(ctx, owner, "👆 Open a conversation first.", nil)
	case errors.Is(err, domain.ErrProactiveDisabled):
		h.sendText(ctx, owner, "💬 Proactive messages are turned off.", nil)
	case err != nil:
		h.logError(err, "trigger proactive", owner)
		h.sendText(ctx, owner, "❌ Could not get a proactive message. Please try again.", nil)
	case msg == nil:
		h.sendText(ctx, owner, "🤷 The conversation changed while waiting, so the message was discarded.", nil)
	}
}

func (h *Handler) handleTemperatureMenu(ctx context.Context, b *bot.Bot, update *models.Update) {
	answer(ctx, b, update, "")
	chatID, messageID, ok := callbackMessage(update)
	if !ok {
		return
	}

	buttons := make([]models.InlineKeyboardButton, 0, len(config.TemperatureOptions))
	for _, t := range config.TemperatureOptions {
		buttons = append(buttons, tg.InlineButton(t.StringFixed(1), cbTemperature+t.StringFixed(1)))
	}
	rows := tg.Grid(buttons, 2)
	rows = append(rows, tg.ButtonRow(tg.InlineButton("⬅️ Back", cbSettings)))

	_ = tg.EditText(ctx, b, chatID, messageID,
		"🌡 *Choose a temperature:*\n\nLow: more focused replies\nHigh: more creative replies",
		tg.InlineKeyboard(rows...))
}

func (h *Handler) handleTemperature(ctx context.Context, b *bot.Bot, update *models.Update) {
	owner, ok := h.privateOwner(ctx, b)
	if !ok {
		answer(ctx, b, update, "")
		return
	}
	t, err := decimal.NewFromString(strings.TrimPrefix(update.CallbackQuery.Data, cbTemperature))
	if err != nil {
		answer(ctx, b, update, "")
		return
	}
	if err := h.prefs.SetTemperature(ctx, owner, t); err != nil {
		answer(ctx, b, update, "❌ Could not save temperature")
		h.logError(err, "set temperature", owner)
		return
	}
	answer(ctx, b, update, "🌡 Temperature "+t.StringFixed(1))
	_, messageID, _ := callbackMessage(update)
	h.sendSettings(ctx, b, owner, messageID)
}

func (h *Handler) handleDeleteConversation(ctx context.Context, b *bot.Bot, update *models.Update) {
	answer(ctx, b, update, "")
	owner, ok := h.privateOwner(ctx, b)
	if !ok {
		return
	}
	pid, selected := h.view.Selected(owner)
	if !selected {
		return
	}
	p := h.registry.Resolve(ctx, owner, pid)
	h.confirm(ctx, b, update,
		fmt.Sprintf("🧹 Delete the whole conversation with *%s*? This cannot be undone.", tg.EscapeMarkdown(p.Name)),
		cbDeleteConvConfirm)
}

func (h *Handler) handleDeleteConversationConfirm(ctx context.Context, b *bot.Bot, update *models.Update) {
	owner, ok := h.privateOwner(ctx, b)
	if !ok {
		answer(ctx, b, update, "")
		return
	}
	pid, selected := h.view.Selected(owner)
	if !selected {
		answer(ctx, b, update, "This conversation is no longer open.")
		return
	}
	if err := h.conversations.Clear(ctx, owner, pid); err != nil {
		answer(ctx, b, update, "❌ Could not delete the conversation")
		h.logError(err, "delete conversation", owner)
		return
	}
	answer(ctx, b, update, "🧹 Conversation deleted")
	h.view.Back(owner)
	h.reconcile(ctx, owner)
	h.sendListView(ctx, owner)
}

func (h *Handler) handleClearAll(ctx context.Context, b *bot.Bot, update *models.Update) {
	answer(ctx, b, update, "")
	h.confirm(ctx, b, update, "💣 Delete *all* conversations? This cannot be undone.", cbClearAllConfirm)
}

func (h *Handler) handleClearAllConfirm(ctx context.Context, b *bot.Bot, update *models.Update) {
	owner, ok := h.privateOwner(ctx, b)
	if !ok {
		answer(ctx, b, update, "")
		return
	}
	if err := h.conversations.ClearAll(ctx, owner); err != nil {
		answer(ctx, b, update, "❌ Could not clear conversations")
		h.logError(err, "clear conversations", owner)
		return
	}
	answer(ctx, b, update, "💣 All conversations deleted")
	h.view.Back(owner)
	h.reconcile(ctx, owner)
	h.sendListView(ctx, owner)
}

// confirm replaces the callback's message with a yes/no question.
func (h *Handler) confirm(ctx context.Context, b *bot.Bot, update *models.Update, question, yes string) {
	chatID, messageID, ok := callbackMessage(update)
	if !ok {
		return
	}
	markup := tg.InlineKeyboard(tg.ButtonRow(
		tg.InlineButton("✅ Yes", yes),
		tg.InlineButton("✖️ No", cbSettings),
	))
	if err := tg.EditText(ctx, b, chatID, messageID, question, markup); err != nil {
		h.sendText(ctx, chatID, question, markup)
	}
}
