package domain

import "time"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role        Role      `json:"role"`
	Content     string    `json:"content"`
	Timestamp   time.Time `json:"timestamp"`
	Personality string    `json:"personality,omitempty"`
	Image       string    `json:"image,omitempty"`
	ImagePrompt string    `json:"imagePrompt,omitempty"`
	IsProactive bool      `json:"isProactive,omitempty"`
}

// ConversationSummary is one row of the personality list view.
type ConversationSummary struct {
	PersonalityID string
	Count         int
	Last          Message
}
