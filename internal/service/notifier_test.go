package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/set-night/companionbot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifierPresentsOnlyWhenAllowed(t *testing.T) {
	for _, enabled := range []bool{true, false} {
		for _, perm := range []domain.Permission{domain.PermissionGranted, domain.PermissionDenied, domain.PermissionUnset, domain.PermissionUnsupported} {
			for _, focused := range []bool{true, false} {
				name := fmt.Sprintf("enabled=%v/permission=%s/focused=%v", enabled, perm, focused)
				t.Run(name, func(t *testing.T) {
					ctx := context.Background()
					e := newTestEnv(t)
					_, err := e.prefs.Update(ctx, testOwner, func(p *domain.Preferences) {
						p.Notifications = domain.NotificationPreference{Enabled: enabled, Permission: perm}
					})
					require.NoError(t, err)
					e.focus.set(focused)

					e.notifier.Present(ctx, testOwner, domain.Notification{Title: "t", Body: "b", Tag: "x"})

					want := enabled && perm == domain.PermissionGranted && !focused
					if want {
						assert.Len(t, e.platform.Shown(), 1)
					} else {
						assert.Empty(t, e.platform.Shown())
					}
				})
			}
		}
	}
}

func TestNotifierSwallowsPlatformErrors(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	e.grantNotifications(t, testOwner)
	e.platform.showErr = errors.New("bot was blocked by the user")

	assert.NotPanics(t, func() {
		e.notifier.Present(ctx, testOwner, domain.Notification{Title: "t"})
	})
}

func TestMessageNotification(t *testing.T) {
	at := time.UnixMilli(1714564800123)
	p := domain.Personality{ID: "lover", Name: "Lover", Emoji: "💕"}

	n := MessageNotification(p, domain.Message{Content: "hey"}, at)
	assert.Equal(t, "💕 Lover replied", n.Title)
	assert.Equal(t, "hey", n.Body)
	assert.Equal(t, "message-lover-1714564800123", n.Tag)
	assert.Equal(t, "lover", n.PersonalityID)

	long := strings.Repeat("ж", 150)
	n = MessageNotification(p, domain.Message{Content: long, IsProactive: true}, at)
	assert.Equal(t, "💕 Lover reached out to you!", n.Title)
	assert.Equal(t, strings.Repeat("ж", 100)+"...", n.Body)
}

func TestNotifierToggle(t *testing.T) {
	ctx := context.Background()

	t.Run("disabled without permission asks for it", func(t *testing.T) {
		e := newTestEnv(t)
		_, err := e.prefs.Update(ctx, testOwner, func(p *domain.Preferences) {
			p.Notifications = domain.NotificationPreference{Enabled: false, Permission: domain.PermissionUnset}
		})
		require.NoError(t, err)

		got, err := e.notifier.Toggle(ctx, testOwner)
		require.NoError(t, err)
		assert.Equal(t, 1, e.platform.requests)
		assert.True(t, got.Enabled)
		assert.Equal(t, domain.PermissionGranted, got.Permission)
	})

	t.Run("enabled and granted turns off then on", func(t *testing.T) {
		e := newTestEnv(t)
		e.grantNotifications(t, testOwner)

		got, err := e.notifier.Toggle(ctx, testOwner)
		require.NoError(t, err)
		assert.False(t, got.Enabled)

		got, err = e.notifier.Toggle(ctx, testOwner)
		require.NoError(t, err)
		assert.True(t, got.Enabled)
		assert.Zero(t, e.platform.requests)
		require.Len(t, e.platform.Shown(), 1)
		assert.Equal(t, "re-enabled", e.platform.Shown()[0].Tag)
	})

	t.Run("pending answer resolves later", func(t *testing.T) {
		e := newTestEnv(t)
		e.platform.permission = domain.PermissionUnset
		_, err := e.prefs.Update(ctx, testOwner, func(p *domain.Preferences) {
			p.Notifications.Enabled = false
		})
		require.NoError(t, err)

		got, err := e.notifier.Toggle(ctx, testOwner)
		require.NoError(t, err)
		assert.False(t, got.Enabled)

		require.NoError(t, e.notifier.ResolvePermission(ctx, testOwner, domain.PermissionDenied))
		prefs, err := e.prefs.Get(ctx, testOwner)
		require.NoError(t, err)
		assert.Equal(t, domain.PermissionDenied, prefs.Notifications.Permission)
		assert.False(t, prefs.Notifications.Enabled)
	})
}

func TestNotifierRequestPermissionErrorMeansDenied(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	e.platform.permErr = errors.New("forbidden")

	perm, err := e.notifier.RequestPermission(ctx, testOwner)
	require.NoError(t, err)
	assert.Equal(t, domain.PermissionDenied, perm)

	prefs, err := e.prefs.Get(ctx, testOwner)
	require.NoError(t, err)
	assert.Equal(t, domain.PermissionDenied, prefs.Notifications.Permission)
}

func TestNotifierEnsurePermissionAsksOnce(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	e.platform.permission = domain.PermissionUnset

	e.notifier.EnsurePermission(ctx, testOwner)
	e.notifier.EnsurePermission(ctx, testOwner)
	assert.Equal(t, 1, e.platform.requests)

	other := testOwner + 1
	_, err := e.prefs.Update(ctx, other, func(p *domain.Preferences) {
		p.Notifications.Enabled = false
	})
	require.NoError(t, err)
	e.notifier.EnsurePermission(ctx, other)
	assert.Equal(t, 1, e.platform.requests, "disabled preference is not prompted")
}

func TestNotifierPermissionPersists(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)

	require.NoError(t, e.notifier.ResolvePermission(ctx, testOwner, domain.PermissionGranted))

	reloaded := NewPreferenceService(e.state, domain.DefaultPreferences(0.7))
	prefs, err := reloaded.Get(ctx, testOwner)
	require.NoError(t, err)
	assert.Equal(t, domain.PermissionGranted, prefs.Notifications.Permission)
	assert.True(t, prefs.Notifications.Enabled)
}
