package handler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/set-night/companionbot/internal/config"
	"github.com/set-night/companionbot/internal/middleware"
	"github.com/set-night/companionbot/internal/service"
	"github.com/set-night/companionbot/internal/telegram"
)

// Handler holds all dependencies needed by command and callback handlers.
type Handler struct {
	bot           *bot.Bot
	cfg           *config.Config
	registry      *service.RegistryService
	conversations *service.ConversationService
	chat          *service.ChatService
	scheduler     *service.Scheduler
	notifier      *service.Notifier
	prefs         *service.PreferenceService
	view          *service.ViewService
	avatars       *service.AvatarService
	opsLogger     *telegram.OpsLogger

	inputs   *inputState
	inFlight sync.Map
	// discover holds the last directory query per owner for paging.
	discover sync.Map
}

// Deps contains all dependencies required to construct a Handler.
type Deps struct {
	Bot           *bot.Bot
	Cfg           *config.Config
	Registry      *service.RegistryService
	Conversations *service.ConversationService
	Chat          *service.ChatService
	Scheduler     *service.Scheduler
	Notifier      *service.Notifier
	Prefs         *service.PreferenceService
	View          *service.ViewService
	Avatars       *service.AvatarService
	OpsLogger     *telegram.OpsLogger
}

// New creates a new Handler from the provided dependencies.
func New(deps Deps) *Handler {
	return &Handler{
		bot:           deps.Bot,
		cfg:           deps.Cfg,
		registry:      deps.Registry,
		conversations: deps.Conversations,
		chat:          deps.Chat,
		scheduler:     deps.Scheduler,
		notifier:      deps.Notifier,
		prefs:         deps.Prefs,
		view:          deps.View,
		avatars:       deps.Avatars,
		opsLogger:     deps.OpsLogger,
		inputs:        newInputState(),
	}
}

// OnFirstSeen runs the first-load work for an owner: its synthetic user id,
// the one-time notification permission request and the proactive timer.
func (h *Handler) OnFirstSeen(ctx context.Context, owner *middleware.Owner) {
	if !owner.Private {
		return
	}
	if _, created, err := h.prefs.EnsureUserID(ctx, owner.ID); err != nil {
		h.logError(err, "create user id", owner.ID)
	} else if created {
		h.opsLogger.LogRegistration(owner.ID, owner.Name, owner.Username)
	}
	h.notifier.EnsurePermission(ctx, owner.ID)
	h.reconcile(ctx, owner.ID)
}

// answer acknowledges a callback query, optionally with a toast.
func answer(ctx context.Context, b *bot.Bot, update *models.Update, text string) {
	_, _ = b.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: update.CallbackQuery.ID,
		Text:            text,
	})
}

// callbackMessage returns the chat and message a button belongs to.
func callbackMessage(update *models.Update) (int64, int, bool) {
	if update.CallbackQuery == nil {
		return 0, 0, false
	}
	msg := update.CallbackQuery.Message.Message
	if msg == nil {
		return 0, 0, false
	}
	return msg.Chat.ID, msg.ID, true
}

// privateOwner returns the owner of a private chat, telling group chats
// that the bot only works in private.
func (h *Handler) privateOwner(ctx context.Context, b *bot.Bot) (int64, bool) {
	owner := middleware.GetOwner(ctx)
	if owner == nil {
		return 0, false
	}
	if !owner.Private {
		_, _ = b.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: owner.ID,
			Text:   "💬 I only chat in private messages. Open a direct chat with me to start.",
		})
		return 0, false
	}
	return owner.ID, true
}

// reconcile re-arms or disarms the proactive timer after a state change.
func (h *Handler) reconcile(ctx context.Context, owner int64) {
	if err := h.scheduler.Reconcile(ctx, owner); err != nil {
		h.logError(err, "reconcile proactive timer", owner)
	}
}

func (h *Handler) sendText(ctx context.Context, chatID int64, text string, markup *models.InlineKeyboardMarkup) {
	if _, err := telegram.SendText(ctx, h.bot, chatID, text, telegram.SendOptions{Silent: true, Markup: markup}); err != nil {
		h.logError(err, "send message", chatID)
	}
}

func (h *Handler) logError(err error, where string, owner int64) {
	slog.Error("handler error", "where", where, "owner", owner, "error", err)
	h.opsLogger.LogError(err, fmt.Sprintf("%s (owner %d)", where, owner))
}
