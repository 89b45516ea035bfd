package handler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path"
	"sync"
	"testing"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/set-night/companionbot/internal/companion"
	"github.com/set-night/companionbot/internal/config"
	"github.com/set-night/companionbot/internal/domain"
	"github.com/set-night/companionbot/internal/middleware"
	"github.com/set-night/companionbot/internal/repository"
	"github.com/set-night/companionbot/internal/service"
	"github.com/set-night/companionbot/internal/telegram"
	"github.com/stretchr/testify/require"
)

const testOwner int64 = 42

type apiCall struct {
	method string
	fields map[string]string
}

// fakeTelegram answers Bot API calls and records them.
type fakeTelegram struct {
	mu     sync.Mutex
	calls  []apiCall
	nextID int
}

func (f *fakeTelegram) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	method := path.Base(r.URL.Path)
	fields := make(map[string]string)
	if err := r.ParseMultipartForm(1 << 20); err == nil {
		for k, v := range r.MultipartForm.Value {
			if len(v) > 0 {
				fields[k] = v[0]
			}
		}
	}

	f.mu.Lock()
	f.calls = append(f.calls, apiCall{method: method, fields: fields})
	f.nextID++
	id := f.nextID
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch method {
	case "answerCallbackQuery", "deleteMessage":
		fmt.Fprint(w, `{"ok":true,"result":true}`)
	default:
		fmt.Fprintf(w, `{"ok":true,"result":{"message_id":%d,"date":0,"chat":{"id":%d,"type":"private"}}}`, id, testOwner)
	}
}

// sent returns the text of every sendMessage call.
func (f *fakeTelegram) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		if c.method == "sendMessage" {
			out = append(out, c.fields["text"])
		}
	}
	return out
}

func (f *fakeTelegram) callbackAnswers() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		if c.method == "answerCallbackQuery" {
			out = append(out, c.fields["text"])
		}
	}
	return out
}

// stubBackend serves a fixed built-in set and nothing else.
type stubBackend struct {
	builtins []domain.Personality
}

func (s *stubBackend) Personalities(context.Context) ([]domain.Personality, error) {
	return s.builtins, nil
}

func (s *stubBackend) PublicPersonalities(context.Context, domain.PublicFilter) ([]domain.Personality, error) {
	return nil, nil
}

func (s *stubBackend) UserPersonalities(context.Context, string) ([]domain.Personality, error) {
	return nil, nil
}

func (s *stubBackend) Tags(context.Context) (domain.TagTaxonomy, error) {
	return domain.TagTaxonomy{}, nil
}

func (s *stubBackend) Publish(_ context.Context, p domain.Personality, _ string) (*domain.Personality, error) {
	return &p, nil
}

func (s *stubBackend) Chat(context.Context, companion.ChatRequest) (*companion.Reply, error) {
	return &companion.Reply{Response: "ok"}, nil
}

func (s *stubBackend) ProactiveMessage(context.Context, companion.ProactiveRequest) (*companion.Reply, error) {
	return &companion.Reply{Response: "ping"}, nil
}

func (s *stubBackend) OpeningMessage(context.Context, companion.OpeningRequest) (*companion.Reply, error) {
	return &companion.Reply{Response: "hello"}, nil
}

func (s *stubBackend) ShouldSendProactive(context.Context, string, time.Time) (bool, error) {
	return false, nil
}

type testEnv struct {
	h             *Handler
	b             *bot.Bot
	api           *fakeTelegram
	registry      *service.RegistryService
	conversations *service.ConversationService
	view          *service.ViewService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	api := &fakeTelegram{}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	b, err := bot.New("123:test", bot.WithSkipGetMe(), bot.WithServerURL(srv.URL))
	require.NoError(t, err)

	cfg := &config.Config{DefaultPersonality: "lover"}
	backend := &stubBackend{builtins: []domain.Personality{
		{ID: "lover", Name: "Lover", Builtin: true},
		{ID: "mentor", Name: "Mentor", Builtin: true},
	}}

	state := repository.NewStateStore(repository.NewMemoryKV())
	view := service.NewViewService()
	prefs := service.NewPreferenceService(state, domain.DefaultPreferences(config.DefaultTemperature))
	conversations := service.NewConversationService(state)
	registry := service.NewRegistryService(backend, state, prefs, view,
		service.NewPersonalityCache(time.Minute), cfg.DefaultPersonality)
	scheduler := service.NewScheduler(backend, conversations, registry, prefs, view, nil, time.Hour)
	t.Cleanup(scheduler.Stop)

	h := New(Deps{
		Bot:           b,
		Cfg:           cfg,
		Registry:      registry,
		Conversations: conversations,
		Scheduler:     scheduler,
		Prefs:         prefs,
		View:          view,
		OpsLogger:     telegram.NewOpsLogger(b, cfg),
	})
	return &testEnv{h: h, b: b, api: api, registry: registry, conversations: conversations, view: view}
}

// ownerCtx marks ctx as coming from the test owner's private chat.
func ownerCtx() context.Context {
	return context.WithValue(context.Background(), middleware.OwnerKey, &middleware.Owner{ID: testOwner, Private: true})
}

func callbackUpdate(data string) *models.Update {
	return &models.Update{CallbackQuery: &models.CallbackQuery{
		ID:   "cb",
		Data: data,
		Message: models.MaybeInaccessibleMessage{
			Type:    models.MaybeInaccessibleMessageTypeMessage,
			Message: &models.Message{ID: 7, Chat: models.Chat{ID: testOwner}},
		},
	}}
}

// seedTranscript appends n messages alternating user and assistant.
func seedTranscript(t *testing.T, env *testEnv, pid string, n int) {
	t.Helper()
	for i := range n {
		role := domain.RoleUser
		if i%2 == 1 {
			role = domain.RoleAssistant
		}
		_, err := env.conversations.Append(context.Background(), testOwner, pid,
			domain.Message{Role: role, Content: fmt.Sprintf("%s %d", pid, i)})
		require.NoError(t, err)
	}
}
