package service

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/set-night/companionbot/internal/domain"
	"github.com/set-night/companionbot/internal/repository"
)

// ConversationListener is called after a conversation of owner changed.
type ConversationListener func(ctx context.Context, owner int64, personalityID string)

type transcripts struct {
	conversations map[string][]domain.Message
	lastTimes     map[string]time.Time
}

// ConversationService owns the per-personality message sequences of every
// owner. Mutations are serialised and mirrored to the state store.
type ConversationService struct {
	state *repository.StateStore
	now   func() time.Time

	mu        sync.Mutex
	loaded    map[int64]*transcripts
	listeners []ConversationListener
}

func NewConversationService(state *repository.StateStore) *ConversationService {
	return &ConversationService{
		state:  state,
		now:    time.Now,
		loaded: make(map[int64]*transcripts),
	}
}

// OnChange registers a listener for conversation mutations.
func (s *ConversationService) OnChange(l ConversationListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// Append adds msg to the end of the personality's conversation. A zero
// timestamp is stamped with the current time.
func (s *ConversationService) Append(ctx context.Context, owner int64, personalityID string, msg domain.Message) (domain.Message, error) {
	s.mu.Lock()
	t, err := s.load(ctx, owner)
	if err != nil {
		s.mu.Unlock()
		return msg, err
	}

	if msg.Timestamp.IsZero() {
		msg.Timestamp = s.now()
	}
	conv := t.conversations[personalityID]
	if n := len(conv); n > 0 && msg.Timestamp.Before(conv[n-1].Timestamp) {
		msg.Timestamp = conv[n-1].Timestamp
	}
	t.conversations[personalityID] = append(conv, msg)
	t.touch(personalityID)

	err = s.persist(ctx, owner, t)
	s.mu.Unlock()

	s.notify(ctx, owner, personalityID)
	return msg, err
}

// Truncate keeps messages [0, upto). Out of range indexes are clamped.
func (s *ConversationService) Truncate(ctx context.Context, owner int64, personalityID string, upto int) error {
	s.mu.Lock()
	t, err := s.load(ctx, owner)
	if err != nil {
		s.mu.Unlock()
		return err
	}

	conv := t.conversations[personalityID]
	upto = max(0, min(upto, len(conv)))
	t.conversations[personalityID] = conv[:upto:upto]
	t.touch(personalityID)

	err = s.persist(ctx, owner, t)
	s.mu.Unlock()

	s.notify(ctx, owner, personalityID)
	return err
}

// Clear removes one conversation and its last-message time.
func (s *ConversationService) Clear(ctx context.Context, owner int64, personalityID string) error {
	s.mu.Lock()
	t, err := s.load(ctx, owner)
	if err != nil {
		s.mu.Unlock()
		return err
	}

	delete(t.conversations, personalityID)
	delete(t.lastTimes, personalityID)

	err = s.persist(ctx, owner, t)
	s.mu.Unlock()

	s.notify(ctx, owner, personalityID)
	return err
}

// ClearAll removes every conversation of owner.
func (s *ConversationService) ClearAll(ctx context.Context, owner int64) error {
	s.mu.Lock()
	var touched []string
	if t, ok := s.loaded[owner]; ok {
		for id := range t.conversations {
			touched = append(touched, id)
		}
	}
	s.loaded[owner] = &transcripts{
		conversations: make(map[string][]domain.Message),
		lastTimes:     make(map[string]time.Time),
	}
	err := s.state.ClearConversations(ctx, owner)
	s.mu.Unlock()

	if err != nil {
		return fmt.Errorf("clear conversations: %w", err)
	}
	for _, id := range touched {
		s.notify(ctx, owner, id)
	}
	return nil
}

// Messages returns a copy of the conversation.
func (s *ConversationService) Messages(ctx context.Context, owner int64, personalityID string) ([]domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.load(ctx, owner)
	if err != nil {
		return nil, err
	}
	return slices.Clone(t.conversations[personalityID]), nil
}

// Recent returns at most n trailing messages.
func (s *ConversationService) Recent(ctx context.Context, owner int64, personalityID string, n int) ([]domain.Message, error) {
	msgs, err := s.Messages(ctx, owner, personalityID)
	if err != nil {
		return nil, err
	}
	if len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	return msgs, nil
}

func (s *ConversationService) LastMessageTime(ctx context.Context, owner int64, personalityID string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.load(ctx, owner)
	if err != nil {
		return time.Time{}, false, err
	}
	last, ok := t.lastTimes[personalityID]
	return last, ok, nil
}

// Summaries lists non-empty conversations, most recent first.
func (s *ConversationService) Summaries(ctx context.Context, owner int64) ([]domain.ConversationSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.load(ctx, owner)
	if err != nil {
		return nil, err
	}

	out := make([]domain.ConversationSummary, 0, len(t.conversations))
	for id, conv := range t.conversations {
		if len(conv) == 0 {
			continue
		}
		out = append(out, domain.ConversationSummary{
			PersonalityID: id,
			Count:         len(conv),
			Last:          conv[len(conv)-1],
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Last.Timestamp.Equal(out[j].Last.Timestamp) {
			return out[i].PersonalityID < out[j].PersonalityID
		}
		return out[i].Last.Timestamp.After(out[j].Last.Timestamp)
	})
	return out, nil
}

// load must be called with s.mu held.
func (s *ConversationService) load(ctx context.Context, owner int64) (*transcripts, error) {
	if t, ok := s.loaded[owner]; ok {
		return t, nil
	}

	conversations, err := s.state.Conversations(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("load conversations: %w", err)
	}
	if conversations == nil {
		conversations = make(map[string][]domain.Message)
	}
	t := &transcripts{
		conversations: conversations,
		lastTimes:     make(map[string]time.Time, len(conversations)),
	}
	// Stored last-message times are a mirror; the transcript wins.
	for id := range conversations {
		t.touch(id)
	}
	s.loaded[owner] = t
	return t, nil
}

func (s *ConversationService) persist(ctx context.Context, owner int64, t *transcripts) error {
	if err := s.state.SaveConversations(ctx, owner, t.conversations); err != nil {
		return fmt.Errorf("save conversations: %w", err)
	}
	if err := s.state.SaveLastMessageTimes(ctx, owner, t.lastTimes); err != nil {
		return fmt.Errorf("save last message times: %w", err)
	}
	return nil
}

func (s *ConversationService) notify(ctx context.Context, owner int64, personalityID string) {
	s.mu.Lock()
	listeners := slices.Clone(s.listeners)
	s.mu.Unlock()

	for _, l := range listeners {
		l(ctx, owner, personalityID)
	}
}

// touch recomputes the last-message time of one personality.
func (t *transcripts) touch(personalityID string) {
	conv := t.conversations[personalityID]
	if len(conv) == 0 {
		delete(t.conversations, personalityID)
		delete(t.lastTimes, personalityID)
		return
	}
	t.lastTimes[personalityID] = conv[len(conv)-1].Timestamp
}
