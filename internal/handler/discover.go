package handler

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/set-night/companionbot/internal/config"
	"github.com/set-night/companionbot/internal/domain"
	tg "github.com/set-night/companionbot/internal/telegram"
)

const discoverDescriptionLen = 80

type discoverQuery struct {
	filter domain.PublicFilter
	page   int
}

// handleDiscover browses the public directory. "/discover <words>" searches.
func (h *Handler) handleDiscover(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	owner, ok := h.privateOwner(ctx, b)
	if !ok {
		return
	}
	var search string
	if _, rest, found := strings.Cut(update.Message.Text, " "); found {
		search = strings.TrimSpace(rest)
	}
	h.sendDiscover(ctx, owner, domain.PublicFilter{Search: search}, 0, 0)
}

func (h *Handler) handleDiscoverPage(ctx context.Context, b *bot.Bot, update *models.Update) {
	answer(ctx, b, update, "")
	owner, ok := h.privateOwner(ctx, b)
	if !ok {
		return
	}
	page, err := strconv.Atoi(strings.TrimPrefix(update.CallbackQuery.Data, cbDiscoverPage))
	if err != nil {
		return
	}
	var filter domain.PublicFilter
	if q, ok := h.discover.Load(owner); ok && page > 0 {
		filter = q.(discoverQuery).filter
	}
	_, messageID, _ := callbackMessage(update)
	h.sendDiscover(ctx, owner, filter, page, messageID)
}

func (h *Handler) handleDiscoverTag(ctx context.Context, b *bot.Bot, update *models.Update) {
	answer(ctx, b, update, "")
	owner, ok := h.privateOwner(ctx, b)
	if !ok {
		return
	}
	tag := strings.TrimPrefix(update.CallbackQuery.Data, cbDiscoverTag)
	h.sendDiscover(ctx, owner, domain.PublicFilter{Tags: []string{tag}}, 0, 0)
}

func (h *Handler) handleDiscoverSearch(ctx context.Context, b *bot.Bot, update *models.Update) {
	answer(ctx, b, update, "")
	owner, ok := h.privateOwner(ctx, b)
	if !ok {
		return
	}
	h.inputs.set(owner, &pendingInput{kind: inputSearch})
	h.sendText(ctx, owner, "🔎 What are you looking for? Send a few words, or /cancel.", nil)
}

// sendDiscover renders one page of public personalities, editing
// messageID in place when it is non-zero.
func (h *Handler) sendDiscover(ctx context.Context, owner int64, filter domain.PublicFilter, page, messageID int) {
	list, err := h.registry.Discover(ctx, filter)
	if err != nil {
		h.logError(err, "discover personalities", owner)
		h.sendText(ctx, owner, "❌ Could not load public personalities. Please try again.", nil)
		return
	}
	h.discover.Store(owner, discoverQuery{filter: filter, page: page})

	var title strings.Builder
	title.WriteString("🌍 *Public personalities*")
	if filter.Search != "" {
		fmt.Fprintf(&title, " matching \"%s\"", tg.EscapeMarkdown(filter.Search))
	}
	if len(filter.Tags) > 0 {
		fmt.Fprintf(&title, " tagged %s", tg.EscapeMarkdown(strings.Join(filter.Tags, ", ")))
	}
	h.sendPersonalityPage(ctx, owner, title.String(), list, page, messageID, true)
}

// sendPersonalityPage lists personalities with a button to open each one.
func (h *Handler) sendPersonalityPage(ctx context.Context, owner int64, title string, list []domain.Personality, page, messageID int, paged bool) {
	if len(list) == 0 {
		h.sendText(ctx, owner, title+"\n\nNothing found. Try /tags or a different search.", nil)
		return
	}

	totalPages := (len(list) + config.DiscoverPageSize - 1) / config.DiscoverPageSize
	page = min(max(page, 0), totalPages-1)
	items := list[page*config.DiscoverPageSize : min(len(list), (page+1)*config.DiscoverPageSize)]

	var sb strings.Builder
	sb.WriteString(title)
	sb.WriteString("\n\n")
	buttons := make([]models.InlineKeyboardButton, 0, len(items))
	for _, p := range items {
		fmt.Fprintf(&sb, "%s *%s*", p.Glyph(), tg.EscapeMarkdown(p.Name))
		if p.Description != "" {
			fmt.Fprintf(&sb, " · %s", tg.EscapeMarkdown(tg.Truncate(p.Description, discoverDescriptionLen)))
		}
		sb.WriteString("\n")
		buttons = append(buttons, tg.InlineButton(fmt.Sprintf("%s %s", p.Glyph(), p.Name), cbShowPersonality+p.ID))
	}

	rows := tg.Grid(buttons, config.PersonalitiesPerRow)
	if paged && totalPages > 1 {
		rows = append(rows, tg.PaginationRow(page, totalPages, cbDiscoverPage))
	}
	if paged {
		rows = append(rows, tg.ButtonRow(
			tg.InlineButton("🔎 Search", cbDiscoverSearch),
			tg.InlineButton("⬅️ Back", cbBack),
		))
	} else {
		rows = append(rows, tg.ButtonRow(tg.InlineButton("⬅️ Back", cbBack)))
	}

	markup := tg.InlineKeyboard(rows...)
	if messageID != 0 {
		if err := tg.EditText(ctx, h.bot, owner, messageID, sb.String(), markup); err == nil {
			return
		}
	}
	h.sendText(ctx, owner, sb.String(), markup)
}

func (h *Handler) handleTags(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	owner, ok := h.privateOwner(ctx, b)
	if !ok {
		return
	}
	tags, err := h.registry.Tags(ctx)
	if err != nil {
		h.logError(err, "load tags", owner)
		h.sendText(ctx, owner, "❌ Could not load tags. Please try again.", nil)
		return
	}
	if len(tags) == 0 {
		h.sendText(ctx, owner, "No tags yet.", nil)
		return
	}

	categories := make([]string, 0, len(tags))
	for c := range tags {
		categories = append(categories, c)
	}
	slices.Sort(categories)

	var sb strings.Builder
	sb.WriteString("🏷 *Browse by tag*\n")
	var buttons []models.InlineKeyboardButton
	for _, c := range categories {
		fmt.Fprintf(&sb, "\n*%s:* %s", tg.EscapeMarkdown(c), tg.EscapeMarkdown(strings.Join(tags[c], ", ")))
		for _, t := range tags[c] {
			if len(cbDiscoverTag)+len(t) > maxCallbackData {
				continue
			}
			buttons = append(buttons, tg.InlineButton(t, cbDiscoverTag+t))
		}
	}
	h.sendText(ctx, owner, sb.String(), tg.InlineKeyboard(tg.Grid(buttons, 3)...))
}

// handleMine lists the personalities the owner has published.
func (h *Handler) handleMine(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	owner, ok := h.privateOwner(ctx, b)
	if !ok {
		return
	}
	list, err := h.registry.ByCreator(ctx, owner)
	if err != nil {
		h.logError(err, "published personalities", owner)
		h.sendText(ctx, owner, "❌ Could not load your published personalities. Please try again.", nil)
		return
	}
	if len(list) == 0 {
		h.sendText(ctx, owner, "You haven't published anything yet. Open a custom personality's settings to publish it.", nil)
		return
	}
	h.sendPersonalityPage(ctx, owner, "📤 *Your published personalities*", list, 0, 0, false)
}

func (h *Handler) handleShowPersonality(ctx context.Context, b *bot.Bot, update *models.Update) {
	answer(ctx, b, update, "")
	owner, ok := h.privateOwner(ctx, b)
	if !ok {
		return
	}
	id := strings.TrimPrefix(update.CallbackQuery.Data, cbShowPersonality)
	p, found := h.registry.Discovered(id)
	if !found {
		h.sendText(ctx, owner, "This listing has expired. Run /discover again.", nil)
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s *%s*\n", p.Glyph(), tg.EscapeMarkdown(p.Name))
	if p.Description != "" {
		fmt.Fprintf(&sb, "\n%s\n", tg.EscapeMarkdown(p.Description))
	}
	if p.Scenario != "" {
		fmt.Fprintf(&sb, "\n🎭 %s\n", tg.EscapeMarkdown(p.Scenario))
	}
	if len(p.Tags) > 0 {
		fmt.Fprintf(&sb, "\n🏷 %s", tg.EscapeMarkdown(strings.Join(p.Tags, ", ")))
	}

	page := 0
	if q, ok := h.discover.Load(owner); ok {
		page = q.(discoverQuery).page
	}
	markup := tg.InlineKeyboard(tg.ButtonRow(
		tg.InlineButton("📥 Add to my personalities", cbImport+p.ID),
		tg.InlineButton("⬅️ Back", cbDiscoverPage+strconv.Itoa(page)),
	))
	if p.Image != "" {
		if _, err := tg.SendImage(ctx, b, owner, p.Image, sb.String(), tg.SendOptions{Silent: true, Markup: markup}); err == nil {
			return
		}
	}
	h.sendText(ctx, owner, sb.String(), markup)
}

func (h *Handler) handleImport(ctx context.Context, b *bot.Bot, update *models.Update) {
	owner, ok := h.privateOwner(ctx, b)
	if !ok {
		answer(ctx, b, update, "")
		return
	}
	p, found := h.registry.Discovered(strings.TrimPrefix(update.CallbackQuery.Data, cbImport))
	if !found {
		answer(ctx, b, update, "This listing has expired. Run /discover again.")
		return
	}
	saved, err := h.registry.Import(ctx, owner, p)
	if err != nil {
		answer(ctx, b, update, "❌ Could not add it")
		h.replyRegistryError(ctx, owner, err, "import personality")
		return
	}
	answer(ctx, b, update, "📥 Added")
	h.openConversation(ctx, b, owner, saved.ID)
}
