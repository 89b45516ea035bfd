package handler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/set-night/companionbot/internal/config"
	"github.com/set-night/companionbot/internal/domain"
	"github.com/set-night/companionbot/internal/service"
	tg "github.com/set-night/companionbot/internal/telegram"
)

func (h *Handler) handleSelect(ctx context.Context, b *bot.Bot, update *models.Update) {
	answer(ctx, b, update, "")
	owner, ok := h.privateOwner(ctx, b)
	if !ok {
		return
	}
	h.openConversation(ctx, b, owner, strings.TrimPrefix(update.CallbackQuery.Data, cbSelect))
}

// openConversation switches the view to a personality and renders it.
func (h *Handler) openConversation(ctx context.Context, b *bot.Bot, owner int64, pid string) {
	h.inputs.clear(owner)
	h.view.Select(owner, pid)
	h.reconcile(ctx, owner)
	h.sendConversationView(ctx, owner, pid)

	if !h.cfg.OpeningMessages {
		return
	}
	msgs, err := h.conversations.Messages(ctx, owner, pid)
	if err != nil || len(msgs) > 0 {
		return
	}

	stop := tg.StartAction(ctx, b, owner, models.ChatActionTyping)
	opening, err := h.chat.Opening(ctx, owner, pid)
	stop()
	if err != nil {
		// Not a foreground request; the owner can simply start typing.
		h.logError(err, "opening message", owner)
		return
	}
	if opening != nil {
		h.renderMessage(ctx, owner, h.registry.Resolve(ctx, owner, pid), -1, *opening)
	}
}

// sendConversationView renders the header and the most recent messages.
func (h *Handler) sendConversationView(ctx context.Context, owner int64, pid string) {
	p := h.registry.Resolve(ctx, owner, pid)
	msgs, err := h.conversations.Messages(ctx, owner, pid)
	if err != nil {
		h.logError(err, "load conversation", owner)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s *%s*", p.Glyph(), tg.EscapeMarkdown(p.Name))
	if !p.Builtin && h.registry.IsCustom(ctx, owner, pid) {
		sb.WriteString(" · ✨ Custom")
		if p.IsPublic() {
			sb.WriteString(" · 🌍 Public")
		}
	}
	if p.Description != "" {
		fmt.Fprintf(&sb, "\n_%s_", tg.EscapeMarkdown(p.Description))
	}
	if p.Scenario != "" {
		fmt.Fprintf(&sb, "\n\n🎭 %s", tg.EscapeMarkdown(p.Scenario))
	}
	if len(msgs) == 0 {
		fmt.Fprintf(&sb, "\n\nStart a conversation with %s! 💬\nType a message below to begin chatting.\n"+
			"💡 Try: \"Hello!\" • \"How are you?\" • \"Tell me about yourself\" • \"Draw me a picture\"",
			tg.EscapeMarkdown(p.Name))
	} else if hidden := len(msgs) - config.MessagesPerView; hidden > 0 {
		fmt.Fprintf(&sb, "\n\n… %d earlier messages", hidden)
	}

	if p.Image != "" {
		if _, err := tg.SendImage(ctx, h.bot, owner, p.Image, sb.String(), tg.SendOptions{Silent: true}); err == nil {
			sb.Reset()
		}
	}
	if sb.Len() > 0 {
		h.sendText(ctx, owner, sb.String(), nil)
	}

	start := max(0, len(msgs)-config.MessagesPerView)
	for i := start; i < len(msgs); i++ {
		h.renderMessage(ctx, owner, p, i, msgs[i])
	}

	footer := "✍️ Type a message to chat."
	if detail, failed := h.view.Error(owner); failed {
		footer = "⚠️ " + tg.EscapeMarkdown(detail)
	}
	h.sendText(ctx, owner, footer, conversationKeyboard())
}

func conversationKeyboard() *models.InlineKeyboardMarkup {
	return tg.InlineKeyboard(tg.ButtonRow(
		tg.InlineButton("⬅️ Back", cbBack),
		tg.InlineButton("⚙️ Settings", cbSettings),
	))
}

// renderMessage sends one transcript entry silently. index < 0 omits the
// revert button.
func (h *Handler) renderMessage(ctx context.Context, owner int64, p domain.Personality, index int, m domain.Message) {
	if m.Role == domain.RoleUser {
		var markup *models.InlineKeyboardMarkup
		if index >= 0 && len(revertData(cbRevertConfirm, p.ID, index)) <= maxCallbackData {
			markup = tg.InlineKeyboard(tg.ButtonRow(tg.InlineButton("↩️ Revert", revertData(cbRevert, p.ID, index))))
		}
		if _, err := tg.SendText(ctx, h.bot, owner, "🧑 "+m.Content, tg.SendOptions{Silent: true, Plain: true, Markup: markup}); err != nil {
			h.logError(err, "render user message", owner)
		}
		return
	}

	var sb strings.Builder
	speaker := p
	if m.Personality != "" && m.Personality != p.ID {
		speaker = h.registry.Resolve(ctx, owner, m.Personality)
	}
	fmt.Fprintf(&sb, "%s *%s*", speaker.Glyph(), tg.EscapeMarkdown(speaker.Name))
	if m.IsProactive {
		sb.WriteString(" · 💬 Proactive")
	}
	sb.WriteString("\n")
	sb.WriteString(m.Content)
	if m.ImagePrompt != "" {
		fmt.Fprintf(&sb, "\n\n🎨 _%s_", tg.EscapeMarkdown(m.ImagePrompt))
	}

	if m.Image != "" {
		_, err := tg.SendImage(ctx, h.bot, owner, m.Image, sb.String(), tg.SendOptions{Silent: true})
		if err == nil {
			return
		}
		h.logError(err, "render image", owner)
	}
	h.sendText(ctx, owner, sb.String(), nil)
}

// handleChatMessage sends free text to the open conversation.
func (h *Handler) handleChatMessage(ctx context.Context, b *bot.Bot, owner int64, msg *models.Message) {
	pid, ok := h.view.Selected(owner)
	if !ok {
		h.sendText(ctx, owner, "👆 Pick a personality to chat with first.", nil)
		h.sendListView(ctx, owner)
		return
	}
	if msg.Text == "" {
		h.sendText(ctx, owner, "💬 I can only read text messages in a conversation. Use /avatar to set a personality picture.", nil)
		return
	}

	if _, busy := h.inFlight.LoadOrStore(owner, struct{}{}); busy {
		h.sendText(ctx, owner, "⏳ Please wait for the reply to your previous message.", nil)
		return
	}
	defer h.inFlight.Delete(owner)

	action := models.ChatActionTyping
	var status *models.Message
	if service.WantsImage(msg.Text) {
		action = models.ChatActionUploadPhoto
		status, _ = tg.SendText(ctx, b, owner, "🎨 Generating image...", tg.SendOptions{Silent: true, Plain: true})
	}
	stop := tg.StartAction(ctx, b, owner, action)
	reply, err := h.chat.Send(ctx, owner, pid, msg.Text)
	stop()
	if status != nil {
		tg.DeleteMessage(ctx, b, owner, status.ID)
	}

	if err != nil {
		if errors.Is(err, domain.ErrEmptyMessage) {
			return
		}
		h.logError(err, "chat", owner)
		detail, _ := h.view.Error(owner)
		h.sendText(ctx, owner, "⚠️ "+tg.EscapeMarkdown(detail), conversationKeyboard())
		return
	}
	h.renderMessage(ctx, owner, h.registry.Resolve(ctx, owner, pid), -1, *reply)
}

func (h *Handler) handleRevert(ctx context.Context, b *bot.Bot, update *models.Update) {
	answer(ctx, b, update, "")
	chatID, messageID, ok := callbackMessage(update)
	if !ok {
		return
	}
	pid, index, err := parseRevertData(update.CallbackQuery.Data, cbRevert)
	if err != nil {
		return
	}
	_, _ = b.EditMessageReplyMarkup(ctx, &bot.EditMessageReplyMarkupParams{
		ChatID:    chatID,
		MessageID: messageID,
		ReplyMarkup: tg.InlineKeyboard(
			tg.ButtonRow(tg.InlineButton("Delete this message and revert the conversation to this point?", tg.CallbackNoop)),
			tg.ButtonRow(
				tg.InlineButton("✅ Yes", revertData(cbRevertConfirm, pid, index)),
				tg.InlineButton("✖️ No", cbDismiss),
			),
		),
	})
}

func (h *Handler) handleRevertConfirm(ctx context.Context, b *bot.Bot, update *models.Update) {
	owner, ok := h.privateOwner(ctx, b)
	if !ok {
		answer(ctx, b, update, "")
		return
	}
	pid, index, err := parseRevertData(update.CallbackQuery.Data, cbRevertConfirm)
	if err == nil {
		err = h.revert(ctx, owner, pid, index)
	}
	switch {
	case errors.Is(err, errStaleRevert):
		answer(ctx, b, update, "This message is no longer in the conversation.")
		return
	case err != nil:
		answer(ctx, b, update, "❌ Could not revert")
		h.logError(err, "revert conversation", owner)
		return
	}
	answer(ctx, b, update, "↩️ Reverted")

	if chatID, messageID, ok := callbackMessage(update); ok {
		tg.DeleteMessage(ctx, b, chatID, messageID)
	}
	if selected, ok := h.view.Selected(owner); ok && selected == pid {
		h.sendConversationView(ctx, owner, pid)
	}
}

// errStaleRevert means a revert button points at a message that has since
// moved or been removed.
var errStaleRevert = errors.New("revert target is no longer a user message")

// Telegram rejects callback data longer than this many bytes.
const maxCallbackData = 64

// revertData encodes a revert callback as prefix + "<pid>:<index>".
func revertData(prefix, pid string, index int) string {
	return prefix + pid + ":" + strconv.Itoa(index)
}

func parseRevertData(data, prefix string) (string, int, error) {
	rest, ok := strings.CutPrefix(data, prefix)
	sep := strings.LastIndexByte(rest, ':')
	if !ok || sep <= 0 {
		return "", 0, fmt.Errorf("malformed revert data %q", data)
	}
	index, err := strconv.Atoi(rest[sep+1:])
	if err != nil || index < 0 {
		return "", 0, fmt.Errorf("malformed revert index in %q", data)
	}
	return rest[:sep], index, nil
}

// revert drops the user message at index of pid's conversation and
// everything after it. The conversation open right now does not matter.
func (h *Handler) revert(ctx context.Context, owner int64, pid string, index int) error {
	msgs, err := h.conversations.Messages(ctx, owner, pid)
	if err != nil {
		return err
	}
	if index >= len(msgs) || msgs[index].Role != domain.RoleUser {
		return errStaleRevert
	}
	return h.conversations.Truncate(ctx, owner, pid, index)
}

// handleDismiss removes the keyboard of a prompt the owner declined.
func (h *Handler) handleDismiss(ctx context.Context, b *bot.Bot, update *models.Update) {
	answer(ctx, b, update, "")
	if chatID, messageID, ok := callbackMessage(update); ok {
		_, _ = b.EditMessageReplyMarkup(ctx, &bot.EditMessageReplyMarkupParams{
			ChatID:      chatID,
			MessageID:   messageID,
			ReplyMarkup: &models.InlineKeyboardMarkup{InlineKeyboard: [][]models.InlineKeyboardButton{}},
		})
	}
}

// DeliverProactive renders a proactive message in the open conversation.
func (h *Handler) DeliverProactive(ctx context.Context, owner int64, p domain.Personality, msg domain.Message) {
	if pid, ok := h.view.Selected(owner); !ok || pid != p.ID {
		return
	}
	h.renderMessage(ctx, owner, p, -1, msg)
}

var _ service.ProactiveSink = (*Handler)(nil)
