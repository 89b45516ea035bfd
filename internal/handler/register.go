package handler

import (
	"context"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/set-night/companionbot/internal/middleware"
	"github.com/set-night/companionbot/internal/telegram"
)

// Callback data.
const (
	cbSelect        = "sel:"
	cbBack          = "back"
	cbRevert        = "rev:"
	cbRevertConfirm = "revok:"
	cbDismiss       = "dismiss"

	cbSettings          = "settings"
	cbToggleNotify      = "set:notify"
	cbToggleProactive   = "set:proactive"
	cbTrigger           = "set:trigger"
	cbTemperatureMenu   = "set:temp"
	cbTemperature       = "temp:"
	cbDeleteConv        = "set:delconv"
	cbDeleteConvConfirm = "set:delconv_ok"
	cbClearAll          = "set:clearall"
	cbClearAllConfirm   = "set:clearall_ok"

	cbEdit            = "pedit:"
	cbEditField       = "field:"
	cbDelete          = "pdel:"
	cbDeleteConfirm   = "pdelok:"
	cbAvatar          = "pavatar:"
	cbPublish         = "ppub:"
	cbCreate          = "pcreate"
	cbSkipEmoji       = "skip_emoji"
	cbDiscoverPage    = "dpage:"
	cbDiscoverTag     = "dtag:"
	cbDiscoverSearch  = "dsearch"
	cbImport          = "imp:"
	cbShowPersonality = "pshow:"
)

// Register registers all command and callback handlers on the bot instance.
func (h *Handler) Register() {
	// Commands
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/start", bot.MatchTypePrefix, h.handleStart)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/list", bot.MatchTypePrefix, h.handleList)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/settings", bot.MatchTypePrefix, h.handleSettings)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/create", bot.MatchTypePrefix, h.handleCreate)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/edit", bot.MatchTypePrefix, h.handleEdit)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/delete", bot.MatchTypePrefix, h.handleDelete)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/avatar", bot.MatchTypePrefix, h.handleAvatar)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/publish", bot.MatchTypePrefix, h.handlePublish)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/discover", bot.MatchTypePrefix, h.handleDiscover)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/tags", bot.MatchTypePrefix, h.handleTags)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/mine", bot.MatchTypePrefix, h.handleMine)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/cancel", bot.MatchTypePrefix, h.handleCancel)

	// Conversation callbacks
	h.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, cbSelect, bot.MatchTypePrefix, h.handleSelect)
	h.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, cbBack, bot.MatchTypeExact, h.handleBack)
	h.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, cbRevert, bot.MatchTypePrefix, h.handleRevert)
	h.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, cbRevertConfirm, bot.MatchTypePrefix, h.handleRevertConfirm)
	h.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, cbDismiss, bot.MatchTypeExact, h.handleDismiss)

	// Settings callbacks
	h.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, cbSettings, bot.MatchTypeExact, h.handleSettingsButton)
	h.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, cbToggleNotify, bot.MatchTypeExact, h.handleToggleNotify)
	h.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, cbToggleProactive, bot.MatchTypeExact, h.handleToggleProactive)
	h.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, cbTrigger, bot.MatchTypeExact, h.handleTrigger)
	h.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, cbTemperatureMenu, bot.MatchTypeExact, h.handleTemperatureMenu)
	h.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, cbTemperature, bot.MatchTypePrefix, h.handleTemperature)
	h.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, cbDeleteConv, bot.MatchTypeExact, h.handleDeleteConversation)
	h.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, cbDeleteConvConfirm, bot.MatchTypeExact, h.handleDeleteConversationConfirm)
	h.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, cbClearAll, bot.MatchTypeExact, h.handleClearAll)
	h.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, cbClearAllConfirm, bot.MatchTypeExact, h.handleClearAllConfirm)

	// Personality callbacks
	h.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, cbEdit, bot.MatchTypePrefix, h.handleEditButton)
	h.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, cbEditField, bot.MatchTypePrefix, h.handleEditField)
	h.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, cbDelete, bot.MatchTypePrefix, h.handleDeleteButton)
	h.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, cbDeleteConfirm, bot.MatchTypePrefix, h.handleDeleteConfirm)
	h.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, cbAvatar, bot.MatchTypePrefix, h.handleAvatarButton)
	h.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, cbPublish, bot.MatchTypePrefix, h.handlePublishButton)
	h.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, cbCreate, bot.MatchTypeExact, h.handleCreateButton)
	h.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, cbSkipEmoji, bot.MatchTypeExact, h.handleSkipEmoji)

	// Discovery callbacks
	h.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, cbDiscoverPage, bot.MatchTypePrefix, h.handleDiscoverPage)
	h.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, cbDiscoverTag, bot.MatchTypePrefix, h.handleDiscoverTag)
	h.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, cbDiscoverSearch, bot.MatchTypeExact, h.handleDiscoverSearch)
	h.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, cbShowPersonality, bot.MatchTypePrefix, h.handleShowPersonality)
	h.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, cbImport, bot.MatchTypePrefix, h.handleImport)

	// Notification callbacks
	h.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, telegram.CallbackNotifyOpen, bot.MatchTypePrefix, h.handleNotificationOpen)
	h.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, telegram.CallbackNotifyAllow, bot.MatchTypeExact, h.handlePermissionAnswer)
	h.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, telegram.CallbackNotifyDeny, bot.MatchTypeExact, h.handlePermissionAnswer)

	h.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, telegram.CallbackNoop, bot.MatchTypeExact, h.handleNoop)

	// Free text, photos and documents go through the default handler set in main.go
}

// handleNoop is a no-op callback handler used for pagination indicators and other
// non-interactive inline buttons. It simply acknowledges the callback query.
func (h *Handler) handleNoop(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.CallbackQuery != nil {
		answer(ctx, b, update, "")
	}
}

// HandleDefault routes updates no command matched: answers to pending
// forms first, then chat messages to the open conversation.
func (h *Handler) HandleDefault(ctx context.Context, b *bot.Bot, update *models.Update) {
	msg := update.Message
	if msg == nil || (msg.Text != "" && msg.Text[0] == '/') {
		return
	}
	o := middleware.GetOwner(ctx)
	if o == nil || !o.Private {
		return
	}
	owner := o.ID

	if pending, ok := h.inputs.get(owner); ok {
		h.handleInput(ctx, b, owner, pending, msg)
		return
	}
	h.handleChatMessage(ctx, b, owner, msg)
}
