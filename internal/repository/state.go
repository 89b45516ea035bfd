package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/set-night/companionbot/internal/domain"
)

// Keys of the per-owner state blobs.
const (
	KeyConversations       = "conversations"
	KeyLastMessageTimes    = "last_message_times"
	KeyCustomPersonalities = "custom_personalities"
	KeyPreferences         = "preferences"
	KeyUserID              = "user_id"
)

// StateStore is the typed persistence adapter over a KV. Every value is
// stored inside a versioned envelope and upgraded on load.
type StateStore struct {
	kv KV
}

func NewStateStore(kv KV) *StateStore {
	return &StateStore{kv: kv}
}

func (s *StateStore) Conversations(ctx context.Context, owner int64) (map[string][]domain.Message, error) {
	out := make(map[string][]domain.Message)
	if _, err := s.load(ctx, owner, KeyConversations, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *StateStore) SaveConversations(ctx context.Context, owner int64, conversations map[string][]domain.Message) error {
	return s.save(ctx, owner, KeyConversations, conversations)
}

func (s *StateStore) LastMessageTimes(ctx context.Context, owner int64) (map[string]time.Time, error) {
	out := make(map[string]time.Time)
	if _, err := s.load(ctx, owner, KeyLastMessageTimes, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *StateStore) SaveLastMessageTimes(ctx context.Context, owner int64, times map[string]time.Time) error {
	return s.save(ctx, owner, KeyLastMessageTimes, times)
}

// ClearConversations removes all transcripts and their timestamps.
func (s *StateStore) ClearConversations(ctx context.Context, owner int64) error {
	return s.kv.Delete(ctx, owner, KeyConversations, KeyLastMessageTimes)
}

// CustomPersonalities returns the owner's personalities. Entries that fail
// validation are skipped so one bad record does not hide the others.
func (s *StateStore) CustomPersonalities(ctx context.Context, owner int64) ([]domain.Personality, error) {
	var stored []domain.Personality
	if _, err := s.load(ctx, owner, KeyCustomPersonalities, &stored); err != nil {
		return nil, err
	}

	out := make([]domain.Personality, 0, len(stored))
	for _, p := range stored {
		p.Normalize()
		if err := p.Validate(); err != nil {
			slog.Warn("skipping stored personality", "owner", owner, "id", p.ID, "error", err)
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *StateStore) SaveCustomPersonalities(ctx context.Context, owner int64, personalities []domain.Personality) error {
	for i := range personalities {
		if err := personalities[i].Validate(); err != nil {
			return fmt.Errorf("save personalities: %w", err)
		}
	}
	return s.save(ctx, owner, KeyCustomPersonalities, personalities)
}

// Preferences returns stored preferences or defaults when none exist yet.
func (s *StateStore) Preferences(ctx context.Context, owner int64, defaults domain.Preferences) (domain.Preferences, error) {
	prefs := defaults
	found, err := s.load(ctx, owner, KeyPreferences, &prefs)
	if err != nil {
		return defaults, err
	}
	if !found {
		return defaults, nil
	}
	if prefs.Temperature.IsZero() {
		prefs.Temperature = defaults.Temperature
	}
	if prefs.Notifications.Permission == "" {
		prefs.Notifications.Permission = domain.PermissionUnset
	}
	return prefs, nil
}

func (s *StateStore) SavePreferences(ctx context.Context, owner int64, prefs domain.Preferences) error {
	return s.save(ctx, owner, KeyPreferences, prefs)
}

// UserID returns the owner's synthetic identifier, creating it on first
// use. created reports whether it was just created.
func (s *StateStore) UserID(ctx context.Context, owner int64) (id string, created bool, err error) {
	found, err := s.load(ctx, owner, KeyUserID, &id)
	if err != nil {
		return "", false, err
	}
	if found && id != "" {
		return id, false, nil
	}

	id = uuid.NewString()
	if err := s.save(ctx, owner, KeyUserID, id); err != nil {
		return "", false, err
	}
	return id, true, nil
}

func (s *StateStore) load(ctx context.Context, owner int64, key string, dst any) (bool, error) {
	raw, found, err := s.kv.Get(ctx, owner, key)
	if err != nil {
		return false, fmt.Errorf("load %s: %w", key, err)
	}
	if !found {
		return false, nil
	}

	payload, err := decodeEnvelope(key, raw)
	if err != nil {
		return false, fmt.Errorf("load %s: %w", key, err)
	}
	if err := json.Unmarshal(payload, dst); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (s *StateStore) save(ctx context.Context, owner int64, key string, value any) error {
	raw, err := encodeEnvelope(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := s.kv.Put(ctx, owner, key, raw); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}
