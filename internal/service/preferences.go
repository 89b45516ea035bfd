package service

import (
	"context"
	"sync"

	"github.com/set-night/companionbot/internal/domain"
	"github.com/set-night/companionbot/internal/repository"
	"github.com/shopspring/decimal"
)

// PreferenceService caches per-owner preferences in memory and mirrors every
// change to the state store.
type PreferenceService struct {
	state    *repository.StateStore
	defaults domain.Preferences

	mu      sync.Mutex
	cache   map[int64]domain.Preferences
	userIDs map[int64]string
}

func NewPreferenceService(state *repository.StateStore, defaults domain.Preferences) *PreferenceService {
	return &PreferenceService{
		state:    state,
		defaults: defaults,
		cache:    make(map[int64]domain.Preferences),
		userIDs:  make(map[int64]string),
	}
}

func (s *PreferenceService) Get(ctx context.Context, owner int64) (domain.Preferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(ctx, owner)
}

// Update applies fn to the owner's preferences and persists the result.
func (s *PreferenceService) Update(ctx context.Context, owner int64, fn func(*domain.Preferences)) (domain.Preferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prefs, err := s.getLocked(ctx, owner)
	if err != nil {
		return prefs, err
	}
	fn(&prefs)
	s.cache[owner] = prefs
	if err := s.state.SavePreferences(ctx, owner, prefs); err != nil {
		return prefs, err
	}
	return prefs, nil
}

func (s *PreferenceService) ProactiveEnabled(ctx context.Context, owner int64) (bool, error) {
	prefs, err := s.Get(ctx, owner)
	if err != nil {
		return false, err
	}
	return prefs.ProactiveEnabled, nil
}

func (s *PreferenceService) SetProactiveEnabled(ctx context.Context, owner int64, enabled bool) error {
	_, err := s.Update(ctx, owner, func(p *domain.Preferences) {
		p.ProactiveEnabled = enabled
	})
	return err
}

func (s *PreferenceService) SetTemperature(ctx context.Context, owner int64, t decimal.Decimal) error {
	_, err := s.Update(ctx, owner, func(p *domain.Preferences) {
		p.Temperature = t
	})
	return err
}

// UserID returns the synthetic identifier the backend knows this owner by.
func (s *PreferenceService) UserID(ctx context.Context, owner int64) (string, error) {
	id, _, err := s.EnsureUserID(ctx, owner)
	return id, err
}

// EnsureUserID is UserID that also reports whether the identifier was
// created by this call.
func (s *PreferenceService) EnsureUserID(ctx context.Context, owner int64) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.userIDs[owner]; ok {
		return id, false, nil
	}
	id, created, err := s.state.UserID(ctx, owner)
	if err != nil {
		return "", false, err
	}
	s.userIDs[owner] = id
	return id, created, nil
}

func (s *PreferenceService) getLocked(ctx context.Context, owner int64) (domain.Preferences, error) {
	if prefs, ok := s.cache[owner]; ok {
		return prefs, nil
	}
	prefs, err := s.state.Preferences(ctx, owner, s.defaults)
	if err != nil {
		return s.defaults, err
	}
	s.cache[owner] = prefs
	return prefs, nil
}
