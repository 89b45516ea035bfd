package companion

import "github.com/set-night/companionbot/internal/domain"

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatRequest struct {
	Messages            []ChatMessage        `json:"messages"`
	Personality         string               `json:"personality"`
	CustomPersonalities []domain.Personality `json:"custom_personalities"`
	CustomPrompt        string               `json:"custom_prompt,omitempty"`
	IsFirstMessage      bool                 `json:"is_first_message,omitempty"`
	MaxTokens           int                  `json:"max_tokens"`
	Temperature         float64              `json:"temperature"`
}

type ProactiveRequest struct {
	Personality          string               `json:"personality"`
	CustomPersonalities  []domain.Personality `json:"custom_personalities"`
	CustomPrompt         string               `json:"custom_prompt,omitempty"`
	ConversationHistory  []ChatMessage        `json:"conversation_history"`
	TimeSinceLastMessage int                  `json:"time_since_last_message"`
}

type OpeningRequest struct {
	Messages            []ChatMessage        `json:"messages"`
	Personality         string               `json:"personality"`
	CustomPersonalities []domain.Personality `json:"custom_personalities"`
	CustomPrompt        string               `json:"custom_prompt"`
	MaxTokens           int                  `json:"max_tokens"`
	Temperature         float64              `json:"temperature"`
}

// Reply is the shared response shape of chat, proactive and opening requests.
type Reply struct {
	Response        string `json:"response"`
	PersonalityUsed string `json:"personality_used"`
	Image           string `json:"image,omitempty"`
	ImagePrompt     string `json:"image_prompt,omitempty"`
}

type PublishRequest struct {
	domain.Personality
	CreatorID string `json:"creator_id"`
}

// ToChatMessages converts stored messages to the wire shape.
func ToChatMessages(msgs []domain.Message) []ChatMessage {
	out := make([]ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, ChatMessage{Role: string(m.Role), Content: m.Content})
	}
	return out
}
