package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/set-night/companionbot/internal/domain"
	"github.com/set-night/companionbot/internal/repository"
	"golang.org/x/sync/errgroup"
)

// Selection is the part of the view state the registry resets.
type Selection interface {
	Selected(owner int64) (string, bool)
	Select(owner int64, personalityID string)
}

// RegistryService merges the backend's built-in personalities with each
// owner's custom set.
type RegistryService struct {
	backend   Backend
	state     *repository.StateStore
	prefs     *PreferenceService
	selection Selection
	cache     *PersonalityCache
	defaultID string
	now       func() time.Time

	mu         sync.Mutex
	custom     map[int64][]domain.Personality
	discovered map[string]domain.Personality
}

func NewRegistryService(
	backend Backend,
	state *repository.StateStore,
	prefs *PreferenceService,
	selection Selection,
	cache *PersonalityCache,
	defaultID string,
) *RegistryService {
	return &RegistryService{
		backend:    backend,
		state:      state,
		prefs:      prefs,
		selection:  selection,
		cache:      cache,
		defaultID:  defaultID,
		now:        time.Now,
		custom:     make(map[int64][]domain.Personality),
		discovered: make(map[string]domain.Personality),
	}
}

// Warm fills the built-in and tag caches concurrently.
func (s *RegistryService) Warm(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := s.Builtins(ctx)
		return err
	})
	g.Go(func() error {
		_, err := s.Tags(ctx)
		return err
	})
	return g.Wait()
}

func (s *RegistryService) Builtins(ctx context.Context) ([]domain.Personality, error) {
	if cached := s.cache.Personalities(); cached != nil {
		return cached, nil
	}

	list, err := s.backend.Personalities(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch personalities: %w", err)
	}
	for i := range list {
		list[i].Builtin = true
	}
	s.cache.SetPersonalities(list)
	return list, nil
}

// Customs returns a copy of the owner's custom personalities in insertion order.
func (s *RegistryService) Customs(ctx context.Context, owner int64) ([]domain.Personality, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.loadLocked(ctx, owner)
	if err != nil {
		return nil, err
	}
	return slices.Clone(list), nil
}

// ListAll returns built-ins first, then the owner's customs. When the
// backend is unreachable only the customs are returned.
func (s *RegistryService) ListAll(ctx context.Context, owner int64) ([]domain.Personality, error) {
	builtins, err := s.Builtins(ctx)
	if err != nil {
		slog.Error("failed to load built-in personalities", "error", err)
	}
	customs, err := s.Customs(ctx, owner)
	if err != nil {
		return nil, err
	}

	out := make([]domain.Personality, 0, len(builtins)+len(customs))
	out = append(out, builtins...)
	return append(out, customs...), nil
}

// Resolve never fails: unknown identifiers yield a fallback named after the id.
func (s *RegistryService) Resolve(ctx context.Context, owner int64, id string) domain.Personality {
	all, err := s.ListAll(ctx, owner)
	if err != nil {
		slog.Warn("failed to list personalities", "owner", owner, "error", err)
	}
	for _, p := range all {
		if p.ID == id {
			return p
		}
	}
	return domain.Fallback(id)
}

func (s *RegistryService) IsCustom(ctx context.Context, owner int64, id string) bool {
	customs, err := s.Customs(ctx, owner)
	if err != nil {
		return false
	}
	return slices.ContainsFunc(customs, func(p domain.Personality) bool { return p.ID == id })
}

// Save validates p and upserts it by id. An empty id creates a new custom
// personality.
func (s *RegistryService) Save(ctx context.Context, owner int64, p domain.Personality) (domain.Personality, error) {
	p.Normalize()
	p.Builtin = false
	if s.isBuiltin(ctx, p.ID) {
		return p, domain.ErrBuiltinImmutable
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.loadLocked(ctx, owner)
	if err != nil {
		return p, err
	}
	if p.ID == "" {
		p.ID = s.newID(list)
	}
	if err := p.Validate(); err != nil {
		return p, err
	}

	next := slices.Clone(list)
	if i := indexOf(next, p.ID); i >= 0 {
		next[i] = p
	} else {
		next = append(next, p)
	}
	if err := s.state.SaveCustomPersonalities(ctx, owner, next); err != nil {
		return p, fmt.Errorf("save personality: %w", err)
	}
	s.custom[owner] = next
	return p, nil
}

// Delete removes a custom personality. If its conversation is open the
// selection falls back to the default personality; the transcript is kept.
func (s *RegistryService) Delete(ctx context.Context, owner int64, id string) error {
	if s.isBuiltin(ctx, id) {
		return domain.ErrBuiltinImmutable
	}

	s.mu.Lock()
	list, err := s.loadLocked(ctx, owner)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	i := indexOf(list, id)
	if i < 0 {
		s.mu.Unlock()
		return domain.ErrPersonalityNotFound
	}
	next := slices.Delete(slices.Clone(list), i, i+1)
	err = s.state.SaveCustomPersonalities(ctx, owner, next)
	if err == nil {
		s.custom[owner] = next
	}
	s.mu.Unlock()

	if err != nil {
		return fmt.Errorf("delete personality: %w", err)
	}
	if selected, ok := s.selection.Selected(owner); ok && selected == id {
		s.selection.Select(owner, s.defaultID)
	}
	return nil
}

// SetAvatar stores an image reference on a custom personality.
func (s *RegistryService) SetAvatar(ctx context.Context, owner int64, id, ref string) (domain.Personality, error) {
	p, err := s.findCustom(ctx, owner, id)
	if err != nil {
		return p, err
	}
	p.Image = ref
	return s.Save(ctx, owner, p)
}

// Publish shares a custom personality in the public directory under the
// owner's synthetic user id and marks the local copy public.
func (s *RegistryService) Publish(ctx context.Context, owner int64, id string) (domain.Personality, error) {
	p, err := s.findCustom(ctx, owner, id)
	if err != nil {
		return p, err
	}
	userID, err := s.prefs.UserID(ctx, owner)
	if err != nil {
		return p, err
	}

	p.Visibility = domain.VisibilityPublic
	p.CreatorID = userID
	if _, err := s.backend.Publish(ctx, p, userID); err != nil {
		return p, fmt.Errorf("publish personality: %w", err)
	}
	return s.Save(ctx, owner, p)
}

// Discover searches the public directory. Results are remembered so they
// can be imported by id.
func (s *RegistryService) Discover(ctx context.Context, filter domain.PublicFilter) ([]domain.Personality, error) {
	list, err := s.backend.PublicPersonalities(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("discover personalities: %w", err)
	}
	s.remember(list)
	return list, nil
}

// ByCreator lists what the owner has published.
func (s *RegistryService) ByCreator(ctx context.Context, owner int64) ([]domain.Personality, error) {
	userID, err := s.prefs.UserID(ctx, owner)
	if err != nil {
		return nil, err
	}
	list, err := s.backend.UserPersonalities(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("user personalities: %w", err)
	}
	s.remember(list)
	return list, nil
}

func (s *RegistryService) Tags(ctx context.Context) (domain.TagTaxonomy, error) {
	if cached := s.cache.Tags(); cached != nil {
		return cached, nil
	}
	tags, err := s.backend.Tags(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch tags: %w", err)
	}
	s.cache.SetTags(tags)
	return tags, nil
}

// Discovered returns a public personality seen by Discover or ByCreator.
func (s *RegistryService) Discovered(id string) (domain.Personality, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.discovered[id]
	return p, ok
}

// Import copies a public personality into the owner's custom set.
func (s *RegistryService) Import(ctx context.Context, owner int64, p domain.Personality) (domain.Personality, error) {
	p.ID = ""
	p.Visibility = domain.VisibilityPrivate
	if p.Prompt == "" {
		p.Prompt = p.Description
	}
	return s.Save(ctx, owner, p)
}

func (s *RegistryService) findCustom(ctx context.Context, owner int64, id string) (domain.Personality, error) {
	customs, err := s.Customs(ctx, owner)
	if err != nil {
		return domain.Personality{}, err
	}
	if i := indexOf(customs, id); i >= 0 {
		return customs[i], nil
	}
	if s.isBuiltin(ctx, id) {
		return domain.Personality{}, domain.ErrBuiltinImmutable
	}
	return domain.Personality{}, domain.ErrPersonalityNotFound
}

func (s *RegistryService) isBuiltin(ctx context.Context, id string) bool {
	if id == "" {
		return false
	}
	builtins, err := s.Builtins(ctx)
	if err != nil {
		return false
	}
	return indexOf(builtins, id) >= 0
}

func (s *RegistryService) remember(list []domain.Personality) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range list {
		s.discovered[p.ID] = p
	}
}

// newID avoids collisions when two personalities are created within the same millisecond.
func (s *RegistryService) newID(existing []domain.Personality) string {
	at := s.now()
	id := domain.NewCustomID(at)
	for indexOf(existing, id) >= 0 {
		at = at.Add(time.Millisecond)
		id = domain.NewCustomID(at)
	}
	return id
}

// loadLocked must be called with s.mu held.
func (s *RegistryService) loadLocked(ctx context.Context, owner int64) ([]domain.Personality, error) {
	if list, ok := s.custom[owner]; ok {
		return list, nil
	}
	list, err := s.state.CustomPersonalities(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("load custom personalities: %w", err)
	}
	s.custom[owner] = list
	return list, nil
}

func indexOf(list []domain.Personality, id string) int {
	return slices.IndexFunc(list, func(p domain.Personality) bool { return p.ID == id })
}
