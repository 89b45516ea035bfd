package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/set-night/companionbot/internal/companion"
	"github.com/set-night/companionbot/internal/domain"
	"github.com/set-night/companionbot/internal/repository"
)

type fakeBackend struct {
	mu sync.Mutex

	builtins    []domain.Personality
	builtinsErr error
	tags        domain.TagTaxonomy
	public      []domain.Personality
	published   []domain.Personality
	creatorIDs  []string

	chatReply *companion.Reply
	chatErr   error
	chatReqs  []companion.ChatRequest

	openingReply *companion.Reply
	openingErr   error

	proactiveReply *companion.Reply
	proactiveErr   error
	proactiveReqs  []companion.ProactiveRequest
	onProactive    func()

	shouldSend  bool
	shouldErr   error
	shouldCalls int
	onShould    func()
}

func (f *fakeBackend) Personalities(context.Context) ([]domain.Personality, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.builtinsErr != nil {
		return nil, f.builtinsErr
	}
	out := make([]domain.Personality, len(f.builtins))
	copy(out, f.builtins)
	return out, nil
}

func (f *fakeBackend) PublicPersonalities(context.Context, domain.PublicFilter) ([]domain.Personality, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.public, nil
}

func (f *fakeBackend) UserPersonalities(_ context.Context, userID string) ([]domain.Personality, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Personality
	for _, p := range f.published {
		if p.CreatorID == userID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeBackend) Tags(context.Context) (domain.TagTaxonomy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tags, nil
}

func (f *fakeBackend) Publish(_ context.Context, p domain.Personality, creatorID string) (*domain.Personality, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, p)
	f.creatorIDs = append(f.creatorIDs, creatorID)
	return &p, nil
}

func (f *fakeBackend) Chat(_ context.Context, req companion.ChatRequest) (*companion.Reply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chatReqs = append(f.chatReqs, req)
	return f.chatReply, f.chatErr
}

func (f *fakeBackend) ProactiveMessage(_ context.Context, req companion.ProactiveRequest) (*companion.Reply, error) {
	f.mu.Lock()
	f.proactiveReqs = append(f.proactiveReqs, req)
	hook, reply, err := f.onProactive, f.proactiveReply, f.proactiveErr
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	return reply, err
}

func (f *fakeBackend) OpeningMessage(context.Context, companion.OpeningRequest) (*companion.Reply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.openingReply, f.openingErr
}

func (f *fakeBackend) ShouldSendProactive(context.Context, string, time.Time) (bool, error) {
	f.mu.Lock()
	f.shouldCalls++
	hook, should, err := f.onShould, f.shouldSend, f.shouldErr
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	return should, err
}

func (f *fakeBackend) proactiveCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.proactiveReqs)
}

func (f *fakeBackend) shouldCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.shouldCalls
}

type fakePlatform struct {
	mu         sync.Mutex
	shown      []domain.Notification
	showErr    error
	permission domain.Permission
	permErr    error
	requests   int
}

func (p *fakePlatform) Show(_ context.Context, _ int64, n domain.Notification) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.showErr != nil {
		return p.showErr
	}
	p.shown = append(p.shown, n)
	return nil
}

func (p *fakePlatform) RequestPermission(context.Context, int64) (domain.Permission, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests++
	return p.permission, p.permErr
}

func (p *fakePlatform) Shown() []domain.Notification {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.Notification(nil), p.shown...)
}

type fakeFocus struct {
	mu      sync.Mutex
	focused bool
}

func (f *fakeFocus) Focused(int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.focused
}

func (f *fakeFocus) set(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.focused = v
}

type recordingSink struct {
	mu   sync.Mutex
	msgs []domain.Message
}

func (s *recordingSink) DeliverProactive(_ context.Context, _ int64, _ domain.Personality, msg domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
}

type testEnv struct {
	backend       *fakeBackend
	kv            *repository.MemoryKV
	state         *repository.StateStore
	prefs         *PreferenceService
	view          *ViewService
	focus         *fakeFocus
	platform      *fakePlatform
	notifier      *Notifier
	registry      *RegistryService
	conversations *ConversationService
	chat          *ChatService
	scheduler     *Scheduler
	sink          *recordingSink
}

const testOwner int64 = 42

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	e := &testEnv{
		backend: &fakeBackend{
			builtins: []domain.Personality{
				{ID: "lover", Name: "Lover", Emoji: "💕"},
				{ID: "best_friend", Name: "Best Friend", Emoji: "👯‍♀️"},
			},
			tags: domain.TagTaxonomy{"mood": {"calm", "cheerful"}},
		},
		kv:       repository.NewMemoryKV(),
		focus:    &fakeFocus{},
		platform: &fakePlatform{permission: domain.PermissionGranted},
		sink:     &recordingSink{},
	}
	e.state = repository.NewStateStore(e.kv)
	e.prefs = NewPreferenceService(e.state, domain.DefaultPreferences(0.7))
	e.view = NewViewService()
	e.notifier = NewNotifier(e.prefs, e.focus, e.platform)
	e.registry = NewRegistryService(e.backend, e.state, e.prefs, e.view, NewPersonalityCache(time.Minute), "best_friend")
	e.conversations = NewConversationService(e.state)
	e.chat = NewChatService(e.backend, e.conversations, e.registry, e.prefs, e.view, e.notifier)
	e.scheduler = NewScheduler(e.backend, e.conversations, e.registry, e.prefs, e.view, e.notifier, time.Hour)
	e.scheduler.SetSink(e.sink)
	t.Cleanup(e.scheduler.Stop)
	return e
}

// grantNotifications stores an enabled, granted preference for owner.
func (e *testEnv) grantNotifications(t *testing.T, owner int64) {
	t.Helper()
	_, err := e.prefs.Update(context.Background(), owner, func(p *domain.Preferences) {
		p.Notifications = domain.NotificationPreference{Enabled: true, Permission: domain.PermissionGranted}
	})
	if err != nil {
		t.Fatal(err)
	}
}
