package domain

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// DefaultEmoji is used when a custom personality has no glyph.
const DefaultEmoji = "👤"

type Visibility string

const (
	VisibilityPrivate Visibility = "private"
	VisibilityPublic  Visibility = "public"
)

// Personality is a named behavior profile a conversation is held with.
// Built-ins come from the backend and are never persisted locally.
type Personality struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Emoji       string     `json:"emoji,omitempty"`
	Image       string     `json:"customImage,omitempty"`
	Prompt      string     `json:"prompt,omitempty"`
	Scenario    string     `json:"scenario,omitempty"`
	Gender      string     `json:"gender,omitempty"`
	Visibility  Visibility `json:"visibility,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
	CreatorID   string     `json:"creator_id,omitempty"`
	Builtin     bool       `json:"-"`
}

// NewCustomID returns an identifier for a user-authored personality.
func NewCustomID(now time.Time) string {
	return fmt.Sprintf("custom_%d", now.UnixMilli())
}

// Glyph returns the emoji shown next to the personality name.
func (p *Personality) Glyph() string {
	if p.Emoji != "" {
		return p.Emoji
	}
	if e, ok := builtinEmojis[p.ID]; ok {
		return e
	}
	return "👩‍💼"
}

func (p *Personality) IsPublic() bool {
	return p.Visibility == VisibilityPublic
}

// Normalize fills defaults and cleans the tag set.
func (p *Personality) Normalize() {
	p.ID = strings.TrimSpace(p.ID)
	p.Name = strings.TrimSpace(p.Name)
	p.Prompt = strings.TrimSpace(p.Prompt)
	if p.Emoji == "" {
		p.Emoji = DefaultEmoji
	}
	if p.Visibility == "" {
		p.Visibility = VisibilityPrivate
	}

	tags := make([]string, 0, len(p.Tags))
	for _, t := range p.Tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || slices.Contains(tags, t) {
			continue
		}
		tags = append(tags, t)
	}
	p.Tags = tags
}

// Validate checks a custom personality before it is saved or loaded.
func (p *Personality) Validate() error {
	switch {
	case p.ID == "":
		return fmt.Errorf("%w: id is empty", ErrInvalidPersonality)
	case p.Name == "":
		return fmt.Errorf("%w: name is empty", ErrInvalidPersonality)
	case p.Prompt == "":
		return fmt.Errorf("%w: prompt is empty", ErrInvalidPersonality)
	}
	if p.Visibility != VisibilityPrivate && p.Visibility != VisibilityPublic {
		return fmt.Errorf("%w: unknown visibility %q", ErrInvalidPersonality, p.Visibility)
	}
	return nil
}

// Fallback describes an identifier nothing in the registry matches.
func Fallback(id string) Personality {
	return Personality{ID: id, Name: id}
}

var builtinEmojis = map[string]string{
	"lover":       "💕",
	"therapist":   "🧠",
	"best_friend": "👯‍♀️",
	"fantasy_rpg": "🧚‍♀️",
	"neutral":     "👩‍💼",
}

// PublicFilter narrows the public personality directory.
type PublicFilter struct {
	Search string
	Gender string
	Tags   []string
}

// TagTaxonomy maps a category to its tags.
type TagTaxonomy map[string][]string
