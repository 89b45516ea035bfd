package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-telegram/bot"
	"github.com/set-night/companionbot/internal/config"
)

// OpsLogger forwards operational events to topics of an admin chat.
type OpsLogger struct {
	bot *bot.Bot
	cfg *config.Config
}

func NewOpsLogger(b *bot.Bot, cfg *config.Config) *OpsLogger {
	return &OpsLogger{bot: b, cfg: cfg}
}

type LogType string

const (
	LogTypeError        LogType = "error"
	LogTypeRegistration LogType = "registration"
	LogTypePublish      LogType = "publish"
)

func (l *OpsLogger) Log(logType LogType, message string) {
	if l == nil || l.cfg.LogTelegramChatID == 0 {
		return
	}
	topicID := l.topicID(logType)
	if topicID == 0 {
		return
	}

	if len([]rune(message)) > MaxMessageLen {
		message = string([]rune(message)[:MaxMessageLen-20]) + "\n\n... (truncated)"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := l.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:          l.cfg.LogTelegramChatID,
		Text:            message,
		ParseMode:       "Markdown",
		MessageThreadID: topicID,
	})
	if err != nil {
		slog.Error("failed to send telegram log", "type", logType, "error", err)
	}
}

func (l *OpsLogger) LogError(err error, where string) {
	msg := fmt.Sprintf("❌ *Error*\n\n*Context:* %s\n*Error:* `%s`\n*Time:* %s",
		where, err.Error(), time.Now().Format("2006-01-02 15:04:05"))
	l.Log(LogTypeError, msg)
}

// LogRegistration reports an owner seen for the first time.
func (l *OpsLogger) LogRegistration(owner int64, name, username string) {
	msg := fmt.Sprintf("👤 *New Chat*\n\n*ID:* `%d`\n*Name:* %s", owner, EscapeMarkdown(name))
	if username != "" {
		msg += "\n*Username:* @" + EscapeMarkdown(username)
	}
	l.Log(LogTypeRegistration, msg)
}

func (l *OpsLogger) LogPublish(owner int64, personalityID, name string) {
	msg := fmt.Sprintf("🌍 *Personality Published*\n\n*Owner:* `%d`\n*ID:* `%s`\n*Name:* %s",
		owner, personalityID, EscapeMarkdown(name))
	l.Log(LogTypePublish, msg)
}

func (l *OpsLogger) topicID(logType LogType) int {
	switch logType {
	case LogTypeError:
		return l.cfg.LogTopicError
	case LogTypeRegistration:
		return l.cfg.LogTopicRegistration
	case LogTypePublish:
		return l.cfg.LogTopicPublish
	default:
		return 0
	}
}
