package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/set-night/companionbot/internal/companion"
	"github.com/set-night/companionbot/internal/config"
	"github.com/set-night/companionbot/internal/domain"
)

// ProactiveSink renders a proactive message in the owner's chat.
type ProactiveSink interface {
	DeliverProactive(ctx context.Context, owner int64, p domain.Personality, msg domain.Message)
}

type timerKey struct {
	owner         int64
	personalityID string
}

// proactiveTimer is the cancellable handle of one polling loop.
type proactiveTimer struct {
	key    timerKey
	cancel context.CancelFunc
	once   sync.Once
}

func (t *proactiveTimer) stop() {
	t.once.Do(t.cancel)
}

// Scheduler polls the backend for the open conversation of each owner and
// appends a proactive message when the backend decides it is time.
type Scheduler struct {
	backend       Backend
	conversations *ConversationService
	registry      *RegistryService
	prefs         *PreferenceService
	view          *ViewService
	notifier      *Notifier
	interval      time.Duration
	now           func() time.Time

	root       context.Context
	rootCancel context.CancelFunc
	wg         sync.WaitGroup

	mu      sync.Mutex
	timers  map[timerKey]*proactiveTimer
	sink    ProactiveSink
	stopped bool
}

func NewScheduler(
	backend Backend,
	conversations *ConversationService,
	registry *RegistryService,
	prefs *PreferenceService,
	view *ViewService,
	notifier *Notifier,
	interval time.Duration,
) *Scheduler {
	root, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		backend:       backend,
		conversations: conversations,
		registry:      registry,
		prefs:         prefs,
		view:          view,
		notifier:      notifier,
		interval:      interval,
		now:           time.Now,
		root:          root,
		rootCancel:    cancel,
		timers:        make(map[timerKey]*proactiveTimer),
	}
	conversations.OnChange(func(ctx context.Context, owner int64, _ string) {
		if err := s.Reconcile(ctx, owner); err != nil {
			slog.Warn("failed to reconcile proactive timer", "owner", owner, "error", err)
		}
	})
	return s
}

// SetSink sets where delivered proactive messages are rendered.
func (s *Scheduler) SetSink(sink ProactiveSink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sink = sink
}

// Reconcile arms a timer for the owner's open conversation when proactive
// messaging is enabled and the conversation has a last-message time, and
// disarms every other timer of the owner. A timer that is already armed
// keeps running.
func (s *Scheduler) Reconcile(ctx context.Context, owner int64) error {
	pid, want, err := s.wanted(ctx, owner)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, t := range s.timers {
		if key.owner == owner && (!want || key.personalityID != pid) {
			t.stop()
			delete(s.timers, key)
		}
	}
	key := timerKey{owner: owner, personalityID: pid}
	if want && !s.stopped && s.timers[key] == nil {
		s.arm(key)
	}
	return nil
}

// wanted reports the personality whose timer should run for owner.
func (s *Scheduler) wanted(ctx context.Context, owner int64) (string, bool, error) {
	pid, ok := s.view.Selected(owner)
	if !ok {
		return "", false, nil
	}
	enabled, err := s.prefs.ProactiveEnabled(ctx, owner)
	if err != nil || !enabled {
		return pid, false, err
	}
	_, known, err := s.conversations.LastMessageTime(ctx, owner, pid)
	return pid, known, err
}

// Armed reports the personality whose timer is running for owner.
func (s *Scheduler) Armed(owner int64) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.timers {
		if key.owner == owner {
			return key.personalityID, true
		}
	}
	return "", false
}

// Disarm cancels the owner's timer. Safe to call repeatedly.
func (s *Scheduler) Disarm(owner int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, t := range s.timers {
		if key.owner == owner {
			t.stop()
			delete(s.timers, key)
		}
	}
}

// Stop cancels all timers and waits for in-flight polls to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	for key, t := range s.timers {
		t.stop()
		delete(s.timers, key)
	}
	s.mu.Unlock()

	s.rootCancel()
	s.wg.Wait()
}

// Trigger requests one proactive message for the open conversation without
// asking the backend whether it is time.
func (s *Scheduler) Trigger(ctx context.Context, owner int64) (*domain.Message, error) {
	pid, ok := s.view.Selected(owner)
	if !ok {
		return nil, domain.ErrNoPersonalitySelected
	}
	enabled, err := s.prefs.ProactiveEnabled(ctx, owner)
	if err != nil {
		return nil, err
	}
	if !enabled {
		return nil, domain.ErrProactiveDisabled
	}

	return s.deliver(ctx, owner, pid, func(ctx context.Context) bool {
		return s.selectedAndEnabled(ctx, owner, pid)
	})
}

// arm must be called with s.mu held.
func (s *Scheduler) arm(key timerKey) {
	ctx, cancel := context.WithCancel(s.root)
	t := &proactiveTimer{key: key, cancel: cancel}
	s.timers[key] = t

	s.wg.Add(1)
	go s.run(ctx, t)
}

func (s *Scheduler) run(ctx context.Context, t *proactiveTimer) {
	defer s.wg.Done()

	s.poll(ctx, t)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.poll(ctx, t)
		}
	}
}

// poll re-reads the state at fire time; nothing captured at arm time is trusted.
func (s *Scheduler) poll(ctx context.Context, t *proactiveTimer) {
	owner, pid := t.key.owner, t.key.personalityID

	last, ok := s.gate(ctx, t)
	if !ok {
		return
	}
	should, err := s.backend.ShouldSendProactive(ctx, pid, last)
	if err != nil {
		if ctx.Err() == nil {
			slog.Warn("proactive check failed", "owner", owner, "personality", pid, "error", err)
		}
		return
	}
	if !should {
		return
	}

	_, err = s.deliver(ctx, owner, pid, func(ctx context.Context) bool {
		_, ok := s.gate(ctx, t)
		return ok
	})
	if err != nil && ctx.Err() == nil {
		slog.Warn("proactive message failed", "owner", owner, "personality", pid, "error", err)
	}
}

// gate reports whether t may still act and returns the last-message time.
func (s *Scheduler) gate(ctx context.Context, t *proactiveTimer) (time.Time, bool) {
	if ctx.Err() != nil {
		return time.Time{}, false
	}
	s.mu.Lock()
	current := s.timers[t.key] == t
	s.mu.Unlock()
	if !current {
		return time.Time{}, false
	}

	owner, pid := t.key.owner, t.key.personalityID
	if !s.selectedAndEnabled(ctx, owner, pid) {
		return time.Time{}, false
	}
	last, known, err := s.conversations.LastMessageTime(ctx, owner, pid)
	if err != nil {
		slog.Warn("failed to read last message time", "owner", owner, "personality", pid, "error", err)
		return time.Time{}, false
	}
	return last, known
}

func (s *Scheduler) selectedAndEnabled(ctx context.Context, owner int64, pid string) bool {
	if selected, ok := s.view.Selected(owner); !ok || selected != pid {
		return false
	}
	enabled, err := s.prefs.ProactiveEnabled(ctx, owner)
	return err == nil && enabled
}

// deliver requests a proactive message and appends it if still checks
// out once the reply has arrived.
func (s *Scheduler) deliver(ctx context.Context, owner int64, pid string, still func(context.Context) bool) (*domain.Message, error) {
	history, err := s.conversations.Recent(ctx, owner, pid, config.ProactiveHistoryWindow)
	if err != nil {
		return nil, err
	}
	minutes := 0
	if last, known, err := s.conversations.LastMessageTime(ctx, owner, pid); err == nil && known {
		minutes = int(s.now().Sub(last) / time.Minute)
	}
	customs, err := s.registry.Customs(ctx, owner)
	if err != nil {
		return nil, err
	}

	reply, err := s.backend.ProactiveMessage(ctx, companion.ProactiveRequest{
		Personality:          pid,
		CustomPersonalities:  customs,
		CustomPrompt:         customPrompt(customs, pid),
		ConversationHistory:  companion.ToChatMessages(history),
		TimeSinceLastMessage: minutes,
	})
	if err != nil {
		return nil, fmt.Errorf("proactive message: %w", err)
	}
	if !still(ctx) {
		slog.Info("discarding proactive message", "owner", owner, "personality", pid)
		return nil, nil
	}

	msg := assistantMessage(reply, pid, s.now())
	msg.IsProactive = true
	msg, err = s.conversations.Append(ctx, owner, pid, msg)
	if err != nil {
		slog.Error("failed to persist proactive message", "owner", owner, "personality", pid, "error", err)
	}

	p := s.registry.Resolve(ctx, owner, pid)
	s.notifier.Notify(ctx, owner, p, msg)

	s.mu.Lock()
	sink := s.sink
	s.mu.Unlock()
	if sink != nil {
		sink.DeliverProactive(ctx, owner, p, msg)
	}
	return &msg, nil
}
