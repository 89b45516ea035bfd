package middleware

import "github.com/go-telegram/bot/models"

// chatOf returns the chat an update belongs to and its sender.
func chatOf(update *models.Update) (*models.Chat, *models.User) {
	switch {
	case update.Message != nil:
		return &update.Message.Chat, update.Message.From
	case update.CallbackQuery != nil:
		if msg := update.CallbackQuery.Message.Message; msg != nil {
			return &msg.Chat, &update.CallbackQuery.From
		}
		return nil, &update.CallbackQuery.From
	}
	return nil, nil
}
