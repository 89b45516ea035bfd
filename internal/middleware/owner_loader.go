package middleware

import (
	"context"
	"sync"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

type ctxKey string

const OwnerKey ctxKey = "owner"

// Owner is the chat whose state an update operates on.
type Owner struct {
	ID       int64
	Private  bool
	Name     string
	Username string
}

// GetOwner extracts the owner from context.
func GetOwner(ctx context.Context) *Owner {
	o, ok := ctx.Value(OwnerKey).(*Owner)
	if !ok {
		return nil
	}
	return o
}

// Toucher records that an owner is looking at the chat.
type Toucher interface {
	Touch(owner int64)
}

// FirstSeenFunc runs once per owner per process before its first update is handled.
type FirstSeenFunc func(ctx context.Context, owner *Owner)

// OwnerLoader returns middleware that puts the owner into context, marks
// it present and runs first-load work.
func OwnerLoader(presence Toucher, firstSeen FirstSeenFunc) bot.Middleware {
	var (
		mu   sync.Mutex
		seen = make(map[int64]bool)
	)
	return func(next bot.HandlerFunc) bot.HandlerFunc {
		return func(ctx context.Context, b *bot.Bot, update *models.Update) {
			chat, from := chatOf(update)
			if chat == nil {
				next(ctx, b, update)
				return
			}

			owner := &Owner{
				ID:      chat.ID,
				Private: chat.Type == models.ChatTypePrivate,
			}
			if from != nil {
				owner.Name = from.FirstName
				owner.Username = from.Username
			}
			ctx = context.WithValue(ctx, OwnerKey, owner)
			presence.Touch(owner.ID)

			mu.Lock()
			first := !seen[owner.ID]
			seen[owner.ID] = true
			mu.Unlock()
			if first && firstSeen != nil {
				firstSeen(ctx, owner)
			}

			next(ctx, b, update)
		}
	}
}
