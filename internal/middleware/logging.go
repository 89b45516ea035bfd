package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// Logging returns middleware that logs update processing time.
func Logging() bot.Middleware {
	return func(next bot.HandlerFunc) bot.HandlerFunc {
		return func(ctx context.Context, b *bot.Bot, update *models.Update) {
			start := time.Now()

			updateType := "unknown"
			switch {
			case update.Message != nil:
				updateType = "message"
			case update.CallbackQuery != nil:
				updateType = "callback_query"
			}
			var chatID, userID int64
			chat, from := chatOf(update)
			if chat != nil {
				chatID = chat.ID
			}
			if from != nil {
				userID = from.ID
			}

			next(ctx, b, update)

			slog.Debug("update processed",
				"update_id", update.ID,
				"type", updateType,
				"chat_id", chatID,
				"user_id", userID,
				"duration", time.Since(start),
			)
		}
	}
}
