package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/set-night/companionbot/internal/companion"
	"github.com/set-night/companionbot/internal/config"
	"github.com/set-night/companionbot/internal/domain"
)

// GenericChatError is shown when the backend gives no detail.
const GenericChatError = "Failed to get response. Please try again."

// ChatService sends the owner's messages to the backend and records the replies.
type ChatService struct {
	backend       Backend
	conversations *ConversationService
	registry      *RegistryService
	prefs         *PreferenceService
	view          *ViewService
	notifier      *Notifier
	now           func() time.Time
}

func NewChatService(
	backend Backend,
	conversations *ConversationService,
	registry *RegistryService,
	prefs *PreferenceService,
	view *ViewService,
	notifier *Notifier,
) *ChatService {
	return &ChatService{
		backend:       backend,
		conversations: conversations,
		registry:      registry,
		prefs:         prefs,
		view:          view,
		notifier:      notifier,
		now:           time.Now,
	}
}

// Send appends the user's text, asks the backend for a reply and appends it.
// On failure the error is kept in the view state and the user message stays.
func (s *ChatService) Send(ctx context.Context, owner int64, personalityID, text string) (*domain.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, domain.ErrEmptyMessage
	}

	s.view.ClearError(owner)
	userMsg := domain.Message{Role: domain.RoleUser, Content: text, Timestamp: s.now()}
	if _, err := s.conversations.Append(ctx, owner, personalityID, userMsg); err != nil {
		slog.Error("failed to persist user message", "owner", owner, "personality", personalityID, "error", err)
	}

	history, err := s.conversations.Messages(ctx, owner, personalityID)
	if err != nil {
		s.view.SetError(owner, GenericChatError)
		return nil, err
	}
	customs, customPrompt := s.customContext(ctx, owner, personalityID)
	prefs, err := s.prefs.Get(ctx, owner)
	if err != nil {
		slog.Warn("failed to load preferences", "owner", owner, "error", err)
	}

	reply, err := s.backend.Chat(ctx, companion.ChatRequest{
		Messages:            companion.ToChatMessages(history),
		Personality:         personalityID,
		CustomPersonalities: customs,
		CustomPrompt:        customPrompt,
		IsFirstMessage:      len(history) == 1,
		MaxTokens:           config.MaxTokens,
		Temperature:         temperature(prefs),
	})
	if err != nil {
		detail := companion.Detail(err)
		if detail == "" {
			detail = GenericChatError
		}
		s.view.SetError(owner, detail)
		return nil, fmt.Errorf("chat: %w", err)
	}

	msg, err := s.conversations.Append(ctx, owner, personalityID, assistantMessage(reply, personalityID, s.now()))
	if err != nil {
		slog.Error("failed to persist assistant message", "owner", owner, "personality", personalityID, "error", err)
	}
	s.view.ClearError(owner)
	s.notifier.Notify(ctx, owner, s.registry.Resolve(ctx, owner, personalityID), msg)
	return &msg, nil
}

// Opening asks the personality to start an empty conversation. It returns
// nil when the conversation already has messages.
func (s *ChatService) Opening(ctx context.Context, owner int64, personalityID string) (*domain.Message, error) {
	existing, err := s.conversations.Messages(ctx, owner, personalityID)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return nil, nil
	}

	customs, customPrompt := s.customContext(ctx, owner, personalityID)
	prefs, err := s.prefs.Get(ctx, owner)
	if err != nil {
		slog.Warn("failed to load preferences", "owner", owner, "error", err)
	}

	reply, err := s.backend.OpeningMessage(ctx, companion.OpeningRequest{
		Messages:            []companion.ChatMessage{},
		Personality:         personalityID,
		CustomPersonalities: customs,
		CustomPrompt:        customPrompt,
		MaxTokens:           config.MaxTokens,
		Temperature:         temperature(prefs),
	})
	if err != nil {
		return nil, fmt.Errorf("opening message: %w", err)
	}

	// The owner may have written something while the request was in flight.
	if current, err := s.conversations.Messages(ctx, owner, personalityID); err == nil && len(current) > 0 {
		return nil, nil
	}
	msg, err := s.conversations.Append(ctx, owner, personalityID, assistantMessage(reply, personalityID, s.now()))
	if err != nil {
		slog.Error("failed to persist opening message", "owner", owner, "personality", personalityID, "error", err)
	}
	return &msg, nil
}

func (s *ChatService) customContext(ctx context.Context, owner int64, personalityID string) ([]domain.Personality, string) {
	customs, err := s.registry.Customs(ctx, owner)
	if err != nil {
		slog.Warn("failed to load custom personalities", "owner", owner, "error", err)
		return []domain.Personality{}, ""
	}
	return customs, customPrompt(customs, personalityID)
}

// WantsImage reports whether text is likely to produce a generated image.
func WantsImage(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range slices.Concat(config.ImageKeywords, config.SelfImageKeywords) {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func customPrompt(customs []domain.Personality, personalityID string) string {
	if i := indexOf(customs, personalityID); i >= 0 {
		return customs[i].Prompt
	}
	return ""
}

func temperature(prefs domain.Preferences) float64 {
	if prefs.Temperature.IsZero() {
		return config.DefaultTemperature
	}
	return prefs.Temperature.InexactFloat64()
}
