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
)

// editableFields lists what /edit can change, in button order.
var editableFields = []struct {
	key, label string
}{
	{"name", "📛 Name"},
	{"description", "📝 Description"},
	{"prompt", "🧠 Prompt"},
	{"scenario", "🎭 Scenario"},
	{"emoji", "😀 Emoji"},
	{"tags", "🏷 Tags"},
}

func (h *Handler) handleCreate(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	if owner, ok := h.privateOwner(ctx, b); ok {
		h.startCreate(ctx, owner)
	}
}

func (h *Handler) handleCreateButton(ctx context.Context, b *bot.Bot, update *models.Update) {
	answer(ctx, b, update, "")
	if owner, ok := h.privateOwner(ctx, b); ok {
		h.startCreate(ctx, owner)
	}
}

func (h *Handler) startCreate(ctx context.Context, owner int64) {
	h.inputs.set(owner, &pendingInput{kind: inputCreateName})
	h.sendText(ctx, owner, "✨ *New personality*\n\nWhat is its name?\n\n/cancel to stop.", nil)
}

func (h *Handler) handleSkipEmoji(ctx context.Context, b *bot.Bot, update *models.Update) {
	answer(ctx, b, update, "")
	owner, ok := h.privateOwner(ctx, b)
	if !ok {
		return
	}
	pending, ok := h.inputs.get(owner)
	if !ok || pending.kind != inputCreateEmoji {
		return
	}
	h.finishCreate(ctx, b, owner, pending.draft)
}

func (h *Handler) finishCreate(ctx context.Context, b *bot.Bot, owner int64, draft domain.Personality) {
	saved, err := h.registry.Save(ctx, owner, draft)
	if err != nil {
		h.replyRegistryError(ctx, owner, err, "create personality")
		return
	}
	h.inputs.clear(owner)
	h.sendText(ctx, owner, fmt.Sprintf("✅ %s *%s* is ready!", saved.Glyph(), tg.EscapeMarkdown(saved.Name)), nil)
	h.openConversation(ctx, b, owner, saved.ID)
}

func (h *Handler) handleCancel(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	owner, ok := h.privateOwner(ctx, b)
	if !ok {
		return
	}
	if _, pending := h.inputs.get(owner); !pending {
		h.sendText(ctx, owner, "Nothing to cancel.", nil)
		return
	}
	h.inputs.clear(owner)
	h.sendText(ctx, owner, "✖️ Cancelled.", nil)
}

// targetCustom picks the custom personality a command acts on: the open
// conversation when it is custom, otherwise one chosen from a keyboard.
func (h *Handler) targetCustom(ctx context.Context, owner int64, prefix, verb string) (string, bool) {
	if pid, ok := h.view.Selected(owner); ok && h.registry.IsCustom(ctx, owner, pid) {
		return pid, true
	}
	customs, err := h.registry.Customs(ctx, owner)
	if err != nil {
		h.logError(err, "load custom personalities", owner)
		h.sendText(ctx, owner, "❌ Could not load your personalities. Please try again.", nil)
		return "", false
	}
	if len(customs) == 0 {
		h.sendText(ctx, owner, "You have no custom personalities yet. Create one with /create.", nil)
		return "", false
	}
	buttons := make([]models.InlineKeyboardButton, 0, len(customs))
	for _, p := range customs {
		buttons = append(buttons, tg.InlineButton(fmt.Sprintf("%s %s", p.Glyph(), p.Name), prefix+p.ID))
	}
	h.sendText(ctx, owner, fmt.Sprintf("Which personality do you want to %s?", verb),
		tg.InlineKeyboard(tg.Grid(buttons, config.PersonalitiesPerRow)...))
	return "", false
}

func (h *Handler) handleEdit(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	owner, ok := h.privateOwner(ctx, b)
	if !ok {
		return
	}
	if pid, ok := h.targetCustom(ctx, owner, cbEdit, "edit"); ok {
		h.sendEditMenu(ctx, owner, pid)
	}
}

func (h *Handler) handleEditButton(ctx context.Context, b *bot.Bot, update *models.Update) {
	answer(ctx, b, update, "")
	if owner, ok := h.privateOwner(ctx, b); ok {
		h.sendEditMenu(ctx, owner, strings.TrimPrefix(update.CallbackQuery.Data, cbEdit))
	}
}

func (h *Handler) sendEditMenu(ctx context.Context, owner int64, pid string) {
	if !h.registry.IsCustom(ctx, owner, pid) {
		h.sendText(ctx, owner, "🔒 Built-in personalities cannot be changed.", nil)
		return
	}
	p := h.registry.Resolve(ctx, owner, pid)

	var sb strings.Builder
	fmt.Fprintf(&sb, "✏️ *Editing %s %s*\n\n", p.Glyph(), tg.EscapeMarkdown(p.Name))
	fmt.Fprintf(&sb, "📝 %s\n", tg.EscapeMarkdown(orDash(p.Description)))
	fmt.Fprintf(&sb, "🎭 %s\n", tg.EscapeMarkdown(orDash(p.Scenario)))
	fmt.Fprintf(&sb, "🏷 %s\n", tg.EscapeMarkdown(orDash(strings.Join(p.Tags, ", "))))
	fmt.Fprintf(&sb, "\n🧠 Prompt:\n%s", tg.EscapeMarkdown(tg.Truncate(p.Prompt, 1500)))

	buttons := make([]models.InlineKeyboardButton, 0, len(editableFields))
	for _, f := range editableFields {
		buttons = append(buttons, tg.InlineButton(f.label, cbEditField+f.key+":"+pid))
	}
	rows := tg.Grid(buttons, 2)
	rows = append(rows, tg.ButtonRow(tg.InlineButton("⬅️ Settings", cbSettings)))
	h.sendText(ctx, owner, sb.String(), tg.InlineKeyboard(rows...))
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func (h *Handler) handleEditField(ctx context.Context, b *bot.Bot, update *models.Update) {
	answer(ctx, b, update, "")
	owner, ok := h.privateOwner(ctx, b)
	if !ok {
		return
	}
	field, pid, found := strings.Cut(strings.TrimPrefix(update.CallbackQuery.Data, cbEditField), ":")
	if !found {
		return
	}
	p := h.registry.Resolve(ctx, owner, pid)
	h.inputs.set(owner, &pendingInput{kind: inputEditField, draft: p, field: field})

	hint := "Send the new value, or /cancel."
	if field == "tags" {
		hint = "Send tags separated by commas, or /cancel."
	}
	h.sendText(ctx, owner, fmt.Sprintf("✏️ New *%s* for %s:\n\n%s", field, tg.EscapeMarkdown(p.Name), hint), nil)
}

// applyField sets one editable field from free text.
func applyField(p *domain.Personality, field, value string) {
	switch field {
	case "name":
		p.Name = value
	case "description":
		p.Description = value
	case "prompt":
		p.Prompt = value
	case "scenario":
		p.Scenario = value
	case "emoji":
		p.Emoji = value
	case "tags":
		p.Tags = strings.Split(value, ",")
	}
}

func (h *Handler) handleDelete(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	owner, ok := h.privateOwner(ctx, b)
	if !ok {
		return
	}
	if pid, ok := h.targetCustom(ctx, owner, cbDelete, "delete"); ok {
		h.askDelete(ctx, owner, pid)
	}
}

func (h *Handler) handleDeleteButton(ctx context.Context, b *bot.Bot, update *models.Update) {
	answer(ctx, b, update, "")
	if owner, ok := h.privateOwner(ctx, b); ok {
		h.askDelete(ctx, owner, strings.TrimPrefix(update.CallbackQuery.Data, cbDelete))
	}
}

func (h *Handler) askDelete(ctx context.Context, owner int64, pid string) {
	p := h.registry.Resolve(ctx, owner, pid)
	h.sendText(ctx, owner,
		fmt.Sprintf("🗑 Delete %s *%s*? Your conversation with it is kept.", p.Glyph(), tg.EscapeMarkdown(p.Name)),
		tg.InlineKeyboard(tg.ButtonRow(
			tg.InlineButton("✅ Delete", cbDeleteConfirm+pid),
			tg.InlineButton("✖️ Keep", cbDismiss),
		)))
}

func (h *Handler) handleDeleteConfirm(ctx context.Context, b *bot.Bot, update *models.Update) {
	owner, ok := h.privateOwner(ctx, b)
	if !ok {
		answer(ctx, b, update, "")
		return
	}
	pid := strings.TrimPrefix(update.CallbackQuery.Data, cbDeleteConfirm)
	err := h.registry.Delete(ctx, owner, pid)
	switch {
	case errors.Is(err, domain.ErrBuiltinImmutable):
		answer(ctx, b, update, "🔒 Built-in personalities cannot be deleted")
		return
	case errors.Is(err, domain.ErrPersonalityNotFound):
		answer(ctx, b, update, "Already deleted")
		return
	case err != nil:
		answer(ctx, b, update, "❌ Could not delete")
		h.logError(err, "delete personality", owner)
		return
	}
	answer(ctx, b, update, "🗑 Deleted")
	if chatID, messageID, ok := callbackMessage(update); ok {
		tg.DeleteMessage(ctx, b, chatID, messageID)
	}
	h.reconcile(ctx, owner)
	if pid, ok := h.view.Selected(owner); ok {
		h.sendConversationView(ctx, owner, pid)
		return
	}
	h.sendListView(ctx, owner)
}

func (h *Handler) handleAvatar(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	owner, ok := h.privateOwner(ctx, b)
	if !ok {
		return
	}
	if pid, ok := h.targetCustom(ctx, owner, cbAvatar, "set an avatar for"); ok {
		h.askAvatar(ctx, owner, pid)
	}
}

func (h *Handler) handleAvatarButton(ctx context.Context, b *bot.Bot, update *models.Update) {
	answer(ctx, b, update, "")
	if owner, ok := h.privateOwner(ctx, b); ok {
		h.askAvatar(ctx, owner, strings.TrimPrefix(update.CallbackQuery.Data, cbAvatar))
	}
}

func (h *Handler) askAvatar(ctx context.Context, owner int64, pid string) {
	p := h.registry.Resolve(ctx, owner, pid)
	h.inputs.set(owner, &pendingInput{kind: inputAvatar, draft: p})
	h.sendText(ctx, owner, fmt.Sprintf(
		"🖼 Send a photo, an image file (up to %d MB) or a link to use as the avatar of *%s*.\n\n/cancel to stop.",
		config.MaxAvatarBytes>>20, tg.EscapeMarkdown(p.Name)), nil)
}

// avatarFromMessage turns an upload or a link into an image reference.
// Uploads are validated before they are downloaded.
func (h *Handler) avatarFromMessage(ctx context.Context, b *bot.Bot, msg *models.Message) (string, error) {
	switch {
	case len(msg.Photo) > 0:
		photo := msg.Photo[len(msg.Photo)-1]
		if err := h.avatars.Validate(int64(photo.FileSize), "image/jpeg"); err != nil {
			return "", err
		}
		data, err := tg.DownloadFile(ctx, b, photo.FileID, config.MaxAvatarBytes)
		if err != nil {
			return "", err
		}
		return h.avatars.DataURL("image/jpeg", data)
	case msg.Document != nil:
		if err := h.avatars.Validate(int64(msg.Document.FileSize), msg.Document.MimeType); err != nil {
			return "", err
		}
		data, err := tg.DownloadFile(ctx, b, msg.Document.FileID, config.MaxAvatarBytes)
		if err != nil {
			return "", err
		}
		return h.avatars.DataURL(msg.Document.MimeType, data)
	case msg.Text != "":
		return h.avatars.Resolve(ctx, msg.Text)
	}
	return "", domain.ErrNotAnImage
}

func (h *Handler) handlePublish(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	owner, ok := h.privateOwner(ctx, b)
	if !ok {
		return
	}
	if pid, ok := h.targetCustom(ctx, owner, cbPublish, "publish"); ok {
		h.publish(ctx, owner, pid)
	}
}

func (h *Handler) handlePublishButton(ctx context.Context, b *bot.Bot, update *models.Update) {
	answer(ctx, b, update, "")
	if owner, ok := h.privateOwner(ctx, b); ok {
		h.publish(ctx, owner, strings.TrimPrefix(update.CallbackQuery.Data, cbPublish))
	}
}

func (h *Handler) publish(ctx context.Context, owner int64, pid string) {
	p, err := h.registry.Publish(ctx, owner, pid)
	if err != nil {
		h.replyRegistryError(ctx, owner, err, "publish personality")
		return
	}
	h.opsLogger.LogPublish(owner, p.ID, p.Name)
	h.sendText(ctx, owner, fmt.Sprintf("🌍 %s *%s* is now public. Others can find it with /discover.",
		p.Glyph(), tg.EscapeMarkdown(p.Name)), nil)
}

// handleInput continues the form the owner has open.
func (h *Handler) handleInput(ctx context.Context, b *bot.Bot, owner int64, pending *pendingInput, msg *models.Message) {
	if pending.kind == inputAvatar {
		h.saveAvatar(ctx, b, owner, pending, msg)
		return
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		h.sendText(ctx, owner, "Please send text, or /cancel.", nil)
		return
	}

	switch pending.kind {
	case inputCreateName:
		pending.draft.Name = text
		pending.kind = inputCreateDescription
		h.sendText(ctx, owner, fmt.Sprintf("📝 Describe *%s* in one sentence.", tg.EscapeMarkdown(text)), nil)
	case inputCreateDescription:
		pending.draft.Description = text
		pending.kind = inputCreatePrompt
		h.sendText(ctx, owner, fmt.Sprintf(
			"🧠 Now the prompt: how should *%s* think, talk and behave?", tg.EscapeMarkdown(pending.draft.Name)), nil)
	case inputCreatePrompt:
		pending.draft.Prompt = text
		pending.kind = inputCreateEmoji
		h.sendText(ctx, owner, "😀 Finally, send an emoji for it.",
			tg.InlineKeyboard(tg.ButtonRow(tg.InlineButton("Skip", cbSkipEmoji))))
	case inputCreateEmoji:
		pending.draft.Emoji = tg.Truncate(text, 8)
		h.finishCreate(ctx, b, owner, pending.draft)
		return
	case inputEditField:
		draft := pending.draft
		applyField(&draft, pending.field, text)
		saved, err := h.registry.Save(ctx, owner, draft)
		if err != nil {
			h.replyRegistryError(ctx, owner, err, "edit personality")
			return
		}
		h.inputs.clear(owner)
		h.sendText(ctx, owner, fmt.Sprintf("✅ Saved %s *%s*.", saved.Glyph(), tg.EscapeMarkdown(saved.Name)), nil)
		h.sendEditMenu(ctx, owner, saved.ID)
		return
	case inputSearch:
		h.inputs.clear(owner)
		h.sendDiscover(ctx, owner, domain.PublicFilter{Search: text}, 0, 0)
		return
	}
	h.inputs.set(owner, pending)
}

func (h *Handler) saveAvatar(ctx context.Context, b *bot.Bot, owner int64, pending *pendingInput, msg *models.Message) {
	ref, err := h.avatarFromMessage(ctx, b, msg)
	switch {
	case errors.Is(err, domain.ErrImageTooLarge):
		h.sendText(ctx, owner, fmt.Sprintf("❌ Image size must be less than %dMB", config.MaxAvatarBytes>>20), nil)
		return
	case errors.Is(err, domain.ErrNotAnImage):
		h.sendText(ctx, owner, "❌ Please select an image file", nil)
		return
	case err != nil:
		h.logError(err, "load avatar", owner)
		h.sendText(ctx, owner, "❌ Could not load that image. Please try another one.", nil)
		return
	}

	p, err := h.registry.SetAvatar(ctx, owner, pending.draft.ID, ref)
	if err != nil {
		h.replyRegistryError(ctx, owner, err, "set avatar")
		return
	}
	h.inputs.clear(owner)
	if _, err := tg.SendImage(ctx, b, owner, p.Image,
		fmt.Sprintf("✅ New avatar for *%s*", tg.EscapeMarkdown(p.Name)), tg.SendOptions{Silent: true}); err != nil {
		h.sendText(ctx, owner, "✅ Avatar saved.", nil)
	}
}

// replyRegistryError explains a failed registry change to the owner.
func (h *Handler) replyRegistryError(ctx context.Context, owner int64, err error, where string) {
	switch {
	case errors.Is(err, domain.ErrInvalidPersonality):
		h.sendText(ctx, owner, "❌ "+tg.EscapeMarkdown(err.Error()), nil)
	case errors.Is(err, domain.ErrBuiltinImmutable):
		h.sendText(ctx, owner, "🔒 Built-in personalities cannot be changed.", nil)
	case errors.Is(err, domain.ErrPersonalityNotFound):
		h.inputs.clear(owner)
		h.sendText(ctx, owner, "❌ That personality no longer exists.", nil)
	default:
		h.logError(err, where, owner)
		h.sendText(ctx, owner, "❌ Something went wrong. Please try again.", nil)
	}
}
