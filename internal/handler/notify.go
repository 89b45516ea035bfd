package handler

import (
	"context"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/set-night/companionbot/internal/domain"
	tg "github.com/set-night/companionbot/internal/telegram"
)

// handleNotificationOpen focuses the conversation a notification came from.
func (h *Handler) handleNotificationOpen(ctx context.Context, b *bot.Bot, update *models.Update) {
	answer(ctx, b, update, "")
	owner, ok := h.privateOwner(ctx, b)
	if !ok {
		return
	}
	if chatID, messageID, ok := callbackMessage(update); ok {
		tg.DeleteMessage(ctx, b, chatID, messageID)
	}
	h.openConversation(ctx, b, owner, strings.TrimPrefix(update.CallbackQuery.Data, tg.CallbackNotifyOpen))
}

// handlePermissionAnswer records the answer to the notification prompt.
func (h *Handler) handlePermissionAnswer(ctx context.Context, b *bot.Bot, update *models.Update) {
	owner, ok := h.privateOwner(ctx, b)
	if !ok {
		answer(ctx, b, update, "")
		return
	}

	perm := domain.PermissionDenied
	text := "🔕 Notifications are off. You can turn them on later in /settings."
	if update.CallbackQuery.Data == tg.CallbackNotifyAllow {
		perm = domain.PermissionGranted
		text = "🔔 Notifications are on. You'll hear from your companions while you are away."
	}
	if err := h.notifier.ResolvePermission(ctx, owner, perm); err != nil {
		answer(ctx, b, update, "❌ Could not save your answer")
		h.logError(err, "resolve notification permission", owner)
		return
	}
	answer(ctx, b, update, "")
	if chatID, messageID, ok := callbackMessage(update); ok {
		_ = tg.EditText(ctx, b, chatID, messageID, text, nil)
	}
}
