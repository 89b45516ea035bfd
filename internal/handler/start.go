package handler

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/set-night/companionbot/internal/config"
	"github.com/set-night/companionbot/internal/domain"
	"github.com/set-night/companionbot/internal/middleware"
	tg "github.com/set-night/companionbot/internal/telegram"
)

const previewLen = 50

func (h *Handler) handleStart(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	owner, ok := h.privateOwner(ctx, b)
	if !ok {
		return
	}

	name := "there"
	if o := middleware.GetOwner(ctx); o != nil && o.Name != "" {
		name = o.Name
	}

	welcome := fmt.Sprintf(
		"👋 Hi, *%s*!\n\n"+
			"I'm your private AI companion. Pick a personality below and start chatting. "+
			"Companions may also reach out to you on their own when you've been away.\n\n"+
			"📋 *Commands:*\n"+
			"/list - Your conversations\n"+
			"/create - Create a personality\n"+
			"/discover - Browse public personalities\n"+
			"/tags - Browse by tag\n"+
			"/mine - Personalities you published\n"+
			"/settings - Notifications, proactive messages and more",
		tg.EscapeMarkdown(name),
	)
	h.sendText(ctx, owner, welcome, nil)
	h.view.Back(owner)
	h.reconcile(ctx, owner)
	h.sendListView(ctx, owner)
}

func (h *Handler) handleList(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	owner, ok := h.privateOwner(ctx, b)
	if !ok {
		return
	}
	h.view.Back(owner)
	h.reconcile(ctx, owner)
	h.sendListView(ctx, owner)
}

func (h *Handler) handleBack(ctx context.Context, b *bot.Bot, update *models.Update) {
	answer(ctx, b, update, "")
	owner, ok := h.privateOwner(ctx, b)
	if !ok {
		return
	}
	h.view.Back(owner)
	h.reconcile(ctx, owner)
	h.sendListView(ctx, owner)
}

// sendListView renders every personality with a preview of its conversation.
func (h *Handler) sendListView(ctx context.Context, owner int64) {
	all, err := h.registry.ListAll(ctx, owner)
	if err != nil {
		h.logError(err, "list personalities", owner)
		h.sendText(ctx, owner, "❌ Could not load personalities. Please try again.", nil)
		return
	}
	summaries, err := h.conversations.Summaries(ctx, owner)
	if err != nil {
		h.logError(err, "conversation summaries", owner)
	}

	var sb strings.Builder
	sb.WriteString("💬 *Your companions*\n")
	if len(summaries) > 0 {
		sb.WriteString("\n*Recent:*\n")
		for _, s := range summaries {
			p := h.registry.Resolve(ctx, owner, s.PersonalityID)
			fmt.Fprintf(&sb, "%s *%s* · %s\n", p.Glyph(), tg.EscapeMarkdown(p.Name), tg.EscapeMarkdown(preview(s.Last)))
		}
	}
	if len(all) == 0 {
		sb.WriteString("\nNo personalities available right now. Create one with /create.")
	}

	buttons := make([]models.InlineKeyboardButton, 0, len(all))
	for _, p := range all {
		label := fmt.Sprintf("%s %s", p.Glyph(), p.Name)
		if !p.Builtin {
			label += " ✨"
		}
		buttons = append(buttons, tg.InlineButton(label, cbSelect+p.ID))
	}
	rows := tg.Grid(buttons, config.PersonalitiesPerRow)
	rows = append(rows, tg.ButtonRow(
		tg.InlineButton("➕ Create", cbCreate),
		tg.InlineButton("🌍 Discover", cbDiscoverPage+"0"),
		tg.InlineButton("⚙️ Settings", cbSettings),
	))

	h.sendText(ctx, owner, sb.String(), tg.InlineKeyboard(rows...))
}

// preview is the one-line summary of the last message in a conversation.
func preview(m domain.Message) string {
	text := m.Content
	if text == "" && m.Image != "" {
		text = "📷 Image"
	}
	text = tg.Truncate(strings.ReplaceAll(text, "\n", " "), previewLen)
	if m.Role == domain.RoleUser {
		return "You: " + text
	}
	return text
}
