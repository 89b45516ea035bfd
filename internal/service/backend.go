package service

import (
	"context"
	"time"

	"github.com/set-night/companionbot/internal/companion"
	"github.com/set-night/companionbot/internal/domain"
)

// Backend is the part of the companion API the services depend on.
// *companion.Client implements it.
type Backend interface {
	Personalities(ctx context.Context) ([]domain.Personality, error)
	PublicPersonalities(ctx context.Context, filter domain.PublicFilter) ([]domain.Personality, error)
	UserPersonalities(ctx context.Context, userID string) ([]domain.Personality, error)
	Tags(ctx context.Context) (domain.TagTaxonomy, error)
	Publish(ctx context.Context, p domain.Personality, creatorID string) (*domain.Personality, error)
	Chat(ctx context.Context, req companion.ChatRequest) (*companion.Reply, error)
	ProactiveMessage(ctx context.Context, req companion.ProactiveRequest) (*companion.Reply, error)
	OpeningMessage(ctx context.Context, req companion.OpeningRequest) (*companion.Reply, error)
	ShouldSendProactive(ctx context.Context, personalityID string, lastMessage time.Time) (bool, error)
}

var _ Backend = (*companion.Client)(nil)

// assistantMessage turns a backend reply into a stored message.
func assistantMessage(reply *companion.Reply, personalityID string, at time.Time) domain.Message {
	used := reply.PersonalityUsed
	if used == "" {
		used = personalityID
	}
	return domain.Message{
		Role:        domain.RoleAssistant,
		Content:     reply.Response,
		Timestamp:   at,
		Personality: used,
		Image:       reply.Image,
		ImagePrompt: reply.ImagePrompt,
	}
}
