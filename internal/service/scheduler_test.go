package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/set-night/companionbot/internal/companion"
	"github.com/set-night/companionbot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// track registers a timer handle without starting its goroutine so polls
// can be driven synchronously.
func track(s *Scheduler, owner int64, pid string) *proactiveTimer {
	key := timerKey{owner: owner, personalityID: pid}
	t := &proactiveTimer{key: key, cancel: func() {}}
	s.mu.Lock()
	s.timers[key] = t
	s.mu.Unlock()
	return t
}

func seedLover(t *testing.T, e *testEnv, at time.Time) {
	t.Helper()
	_, err := e.conversations.Append(context.Background(), testOwner, "lover", msg(domain.RoleUser, "hi", at))
	require.NoError(t, err)
	e.view.Select(testOwner, "lover")
}

func TestSchedulerPollAppendsProactiveMessage(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	seedLover(t, e, t0)

	sentAt := t0.Add(3 * time.Hour)
	e.scheduler.now = func() time.Time { return sentAt }
	e.backend.shouldSend = true
	e.backend.proactiveReply = &companion.Reply{Response: "I was thinking about you", PersonalityUsed: "lover"}

	e.scheduler.poll(ctx, track(e.scheduler, testOwner, "lover"))

	msgs, err := e.conversations.Messages(ctx, testOwner, "lover")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, domain.RoleAssistant, msgs[1].Role)
	assert.True(t, msgs[1].IsProactive)
	assert.Equal(t, "I was thinking about you", msgs[1].Content)

	last, ok, err := e.conversations.LastMessageTime(ctx, testOwner, "lover")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, last.Equal(sentAt))

	require.Len(t, e.backend.proactiveReqs, 1)
	req := e.backend.proactiveReqs[0]
	assert.Equal(t, "lover", req.Personality)
	assert.Equal(t, 180, req.TimeSinceLastMessage)
	assert.Equal(t, []companion.ChatMessage{{Role: "user", Content: "hi"}}, req.ConversationHistory)
	assert.Len(t, e.sink.msgs, 1)
}

func TestSchedulerPollSkipsWhenBackendSaysNo(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	seedLover(t, e, time.Now())

	e.scheduler.poll(ctx, track(e.scheduler, testOwner, "lover"))

	assert.Equal(t, 1, e.backend.shouldCallCount())
	assert.Zero(t, e.backend.proactiveCalls())
}

func TestSchedulerDiscardsResultAfterDisable(t *testing.T) {
	tests := []struct {
		name  string
		setup func(e *testEnv, disable func())
	}{
		{
			name:  "disabled during should_send check",
			setup: func(e *testEnv, disable func()) { e.backend.onShould = disable },
		},
		{
			name:  "disabled during proactive request",
			setup: func(e *testEnv, disable func()) { e.backend.onProactive = disable },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			e := newTestEnv(t)
			seedLover(t, e, time.Now().Add(-time.Hour))
			e.backend.shouldSend = true
			e.backend.proactiveReply = &companion.Reply{Response: "hello?", PersonalityUsed: "lover"}
			tt.setup(e, func() {
				require.NoError(t, e.prefs.SetProactiveEnabled(ctx, testOwner, false))
			})

			e.scheduler.poll(ctx, track(e.scheduler, testOwner, "lover"))

			msgs, err := e.conversations.Messages(ctx, testOwner, "lover")
			require.NoError(t, err)
			assert.Len(t, msgs, 1)
			assert.Empty(t, e.sink.msgs)
		})
	}
}

func TestSchedulerDiscardsResultAfterLeavingConversation(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	seedLover(t, e, time.Now().Add(-time.Hour))
	e.backend.shouldSend = true
	e.backend.proactiveReply = &companion.Reply{Response: "hello?"}
	e.backend.onProactive = func() { e.view.Back(testOwner) }

	e.scheduler.poll(ctx, track(e.scheduler, testOwner, "lover"))

	msgs, err := e.conversations.Messages(ctx, testOwner, "lover")
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestSchedulerStaleHandleIsNoop(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	seedLover(t, e, time.Now())
	e.backend.shouldSend = true

	stale := &proactiveTimer{key: timerKey{owner: testOwner, personalityID: "lover"}, cancel: func() {}}
	e.scheduler.poll(ctx, stale)

	assert.Zero(t, e.backend.shouldCallCount())
}

func TestSchedulerPollErrorKeepsTimer(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	seedLover(t, e, time.Now())
	e.backend.shouldErr = errors.New("connection refused")

	e.scheduler.poll(ctx, track(e.scheduler, testOwner, "lover"))

	pid, ok := e.scheduler.Armed(testOwner)
	assert.True(t, ok)
	assert.Equal(t, "lover", pid)
}

func TestSchedulerReconcileArmsAndDisarms(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ctx := context.Background()
	e := newTestEnv(t)
	seedLover(t, e, time.Now())

	require.NoError(t, e.scheduler.Reconcile(ctx, testOwner))
	pid, ok := e.scheduler.Armed(testOwner)
	require.True(t, ok)
	assert.Equal(t, "lover", pid)
	// Arming polls right away.
	require.Eventually(t, func() bool { return e.backend.shouldCallCount() >= 1 }, time.Second, 5*time.Millisecond)

	e.view.Back(testOwner)
	require.NoError(t, e.scheduler.Reconcile(ctx, testOwner))
	_, ok = e.scheduler.Armed(testOwner)
	assert.False(t, ok, "leaving the conversation disarms")

	e.view.Select(testOwner, "lover")
	require.NoError(t, e.scheduler.Reconcile(ctx, testOwner))
	require.NoError(t, e.prefs.SetProactiveEnabled(ctx, testOwner, false))
	require.NoError(t, e.scheduler.Reconcile(ctx, testOwner))
	_, ok = e.scheduler.Armed(testOwner)
	assert.False(t, ok, "disabling disarms")

	require.NoError(t, e.prefs.SetProactiveEnabled(ctx, testOwner, true))
	require.NoError(t, e.scheduler.Reconcile(ctx, testOwner))
	_, ok = e.scheduler.Armed(testOwner)
	require.True(t, ok)
	require.NoError(t, e.conversations.Clear(ctx, testOwner, "lover"))
	_, ok = e.scheduler.Armed(testOwner)
	assert.False(t, ok, "clearing the conversation disarms")

	e.scheduler.Disarm(testOwner)
	e.scheduler.Stop()
	e.scheduler.Stop()
}

func TestSchedulerNoTimerWithoutHistory(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	e.view.Select(testOwner, "lover")

	require.NoError(t, e.scheduler.Reconcile(ctx, testOwner))
	_, ok := e.scheduler.Armed(testOwner)
	assert.False(t, ok)
}

func TestSchedulerTriggerBypassesIdleCheck(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	seedLover(t, e, time.Now())
	e.backend.proactiveReply = &companion.Reply{Response: "surprise!", PersonalityUsed: "lover"}

	got, err := e.scheduler.Trigger(ctx, testOwner)
	require.NoError(t, err)
	require.NotNil(t, got)
	// should_send is false, so only the manual path can have produced it.
	assert.True(t, got.IsProactive)

	msgs, err := e.conversations.Messages(ctx, testOwner, "lover")
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}

func TestSchedulerTriggerPreconditions(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)

	_, err := e.scheduler.Trigger(ctx, testOwner)
	assert.ErrorIs(t, err, domain.ErrNoPersonalitySelected)

	e.view.Select(testOwner, "lover")
	require.NoError(t, e.prefs.SetProactiveEnabled(ctx, testOwner, false))
	_, err = e.scheduler.Trigger(ctx, testOwner)
	assert.ErrorIs(t, err, domain.ErrProactiveDisabled)
}
