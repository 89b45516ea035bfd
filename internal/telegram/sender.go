package telegram

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

const (
	MaxMessageLen = 4096
	MaxCaptionLen = 1024
)

// SendOptions tune how a message is delivered.
type SendOptions struct {
	// Silent messages arrive without sound; only notifications alert.
	Silent bool
	// Markup is attached to the last part.
	Markup *models.InlineKeyboardMarkup
	// Plain disables Markdown parsing.
	Plain bool
}

// SendText sends a potentially long message, splitting it into parts if
// needed. Falls back to plain text if Markdown parsing fails.
func SendText(ctx context.Context, b *bot.Bot, chatID int64, text string, opts SendOptions) (*models.Message, error) {
	if !opts.Plain {
		text = FixMarkdown(text)
	}
	parts := SplitMessage(text, MaxMessageLen)

	var last *models.Message
	for i, part := range parts {
		params := &bot.SendMessageParams{
			ChatID:              chatID,
			Text:                part,
			DisableNotification: opts.Silent,
		}
		if !opts.Plain {
			params.ParseMode = models.ParseModeMarkdownV1
		}
		if i == len(parts)-1 && opts.Markup != nil {
			params.ReplyMarkup = opts.Markup
		}

		msg, err := b.SendMessage(ctx, params)
		if err != nil && params.ParseMode != "" {
			slog.Warn("markdown send failed, falling back to plain text", "error", err)
			params.ParseMode = ""
			msg, err = b.SendMessage(ctx, params)
		}
		if err != nil {
			return nil, fmt.Errorf("send message: %w", err)
		}
		last = msg
	}
	return last, nil
}

// EditText replaces the text and keyboard of an earlier message.
func EditText(ctx context.Context, b *bot.Bot, chatID int64, messageID int, text string, markup *models.InlineKeyboardMarkup) error {
	text = Truncate(FixMarkdown(text), MaxMessageLen)

	params := &bot.EditMessageTextParams{
		ChatID:    chatID,
		MessageID: messageID,
		Text:      text,
		ParseMode: models.ParseModeMarkdownV1,
	}
	if markup != nil {
		params.ReplyMarkup = markup
	}
	if _, err := b.EditMessageText(ctx, params); err != nil {
		params.ParseMode = ""
		_, err = b.EditMessageText(ctx, params)
		return err
	}
	return nil
}

// SendImage sends an inline data URL or a web link as a photo. Text that
// does not fit into a caption follows as a separate message.
func SendImage(ctx context.Context, b *bot.Bot, chatID int64, image, text string, opts SendOptions) (*models.Message, error) {
	var photo models.InputFile
	if IsDataURL(image) {
		mimeType, data, err := DecodeDataURL(image)
		if err != nil {
			return nil, fmt.Errorf("decode image: %w", err)
		}
		photo = &models.InputFileUpload{Filename: "image" + extensionFor(mimeType), Data: bytes.NewReader(data)}
	} else {
		photo = &models.InputFileString{Data: image}
	}

	caption := text
	if len([]rune(caption)) > MaxCaptionLen {
		caption = ""
	}
	params := &bot.SendPhotoParams{
		ChatID:              chatID,
		Photo:               photo,
		Caption:             caption,
		DisableNotification: opts.Silent,
	}
	// With an overflowing caption the keyboard goes with the follow-up text.
	if opts.Markup != nil && (caption != "" || text == "") {
		params.ReplyMarkup = opts.Markup
	}

	msg, err := b.SendPhoto(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("send photo: %w", err)
	}
	if caption == "" && text != "" {
		return SendText(ctx, b, chatID, text, opts)
	}
	return msg, nil
}

// StartAction repeats a chat action such as "typing..." every 4 seconds
// until the returned cancel function is called.
func StartAction(ctx context.Context, b *bot.Bot, chatID int64, action models.ChatAction) context.CancelFunc {
	ctx, cancel := context.WithCancel(ctx)
	send := func() {
		_, _ = b.SendChatAction(ctx, &bot.SendChatActionParams{ChatID: chatID, Action: action})
	}
	go func() {
		ticker := time.NewTicker(4 * time.Second)
		defer ticker.Stop()
		send()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				send()
			}
		}
	}()
	return cancel
}

// DeleteMessage removes a message, logging failures only.
func DeleteMessage(ctx context.Context, b *bot.Bot, chatID int64, messageID int) {
	if _, err := b.DeleteMessage(ctx, &bot.DeleteMessageParams{ChatID: chatID, MessageID: messageID}); err != nil {
		slog.Debug("failed to delete message", "chat_id", chatID, "message_id", messageID, "error", err)
	}
}
