package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/set-night/companionbot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func custom(name string) domain.Personality {
	return domain.Personality{Name: name, Description: name + " persona", Prompt: "You are " + name}
}

func TestRegistryListAllOrder(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	tick := time.UnixMilli(1000)
	e.registry.now = func() time.Time { tick = tick.Add(time.Millisecond); return tick }

	a, err := e.registry.Save(ctx, testOwner, custom("Zed"))
	require.NoError(t, err)
	b, err := e.registry.Save(ctx, testOwner, custom("Amy"))
	require.NoError(t, err)

	all, err := e.registry.ListAll(ctx, testOwner)
	require.NoError(t, err)
	ids := make([]string, 0, len(all))
	for _, p := range all {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []string{"lover", "best_friend", a.ID, b.ID}, ids)
	assert.True(t, all[0].Builtin)
	assert.False(t, all[2].Builtin)
}

func TestRegistryListAllWithoutBackend(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	e.backend.builtinsErr = errors.New("backend down")

	saved, err := e.registry.Save(ctx, testOwner, custom("Solo"))
	require.NoError(t, err)

	all, err := e.registry.ListAll(ctx, testOwner)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, saved.ID, all[0].ID)
}

func TestRegistryResolveFallsBack(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)

	assert.Equal(t, "Lover", e.registry.Resolve(ctx, testOwner, "lover").Name)

	p := e.registry.Resolve(ctx, testOwner, "ghost_42")
	assert.Equal(t, "ghost_42", p.ID)
	assert.Equal(t, "ghost_42", p.Name)
}

func TestRegistrySaveUpserts(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)

	p, err := e.registry.Save(ctx, testOwner, custom("Mira"))
	require.NoError(t, err)
	assert.Regexp(t, `^custom_\d+$`, p.ID)
	assert.Equal(t, domain.DefaultEmoji, p.Emoji)
	assert.Equal(t, domain.VisibilityPrivate, p.Visibility)

	p.Description = "updated"
	_, err = e.registry.Save(ctx, testOwner, p)
	require.NoError(t, err)

	customs, err := e.registry.Customs(ctx, testOwner)
	require.NoError(t, err)
	require.Len(t, customs, 1)
	assert.Equal(t, "updated", customs[0].Description)
	assert.True(t, e.registry.IsCustom(ctx, testOwner, p.ID))
	assert.False(t, e.registry.IsCustom(ctx, testOwner, "lover"))
}

func TestRegistrySaveRejects(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)

	_, err := e.registry.Save(ctx, testOwner, domain.Personality{Name: "no prompt"})
	assert.ErrorIs(t, err, domain.ErrInvalidPersonality)

	_, err = e.registry.Save(ctx, testOwner, domain.Personality{ID: "lover", Name: "x", Prompt: "y"})
	assert.ErrorIs(t, err, domain.ErrBuiltinImmutable)
}

func TestRegistrySaveSameMillisecond(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	fixed := time.UnixMilli(5000)
	e.registry.now = func() time.Time { return fixed }

	a, err := e.registry.Save(ctx, testOwner, custom("A"))
	require.NoError(t, err)
	b, err := e.registry.Save(ctx, testOwner, custom("B"))
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestRegistryDeleteSelectedResetsToDefault(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)

	p, err := e.registry.Save(ctx, testOwner, custom("Temp"))
	require.NoError(t, err)
	e.view.Select(testOwner, p.ID)

	// No conversation exists for p.
	require.NoError(t, e.registry.Delete(ctx, testOwner, p.ID))

	selected, ok := e.view.Selected(testOwner)
	require.True(t, ok)
	assert.Equal(t, "best_friend", selected)
	assert.False(t, e.registry.IsCustom(ctx, testOwner, p.ID))
}

func TestRegistryDeleteOtherKeepsSelection(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)

	p, err := e.registry.Save(ctx, testOwner, custom("Temp"))
	require.NoError(t, err)
	e.view.Select(testOwner, "lover")

	require.NoError(t, e.registry.Delete(ctx, testOwner, p.ID))
	selected, _ := e.view.Selected(testOwner)
	assert.Equal(t, "lover", selected)

	assert.ErrorIs(t, e.registry.Delete(ctx, testOwner, p.ID), domain.ErrPersonalityNotFound)
	assert.ErrorIs(t, e.registry.Delete(ctx, testOwner, "lover"), domain.ErrBuiltinImmutable)
}

func TestRegistryPublishAndByCreator(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)

	p, err := e.registry.Save(ctx, testOwner, custom("Sage"))
	require.NoError(t, err)

	published, err := e.registry.Publish(ctx, testOwner, p.ID)
	require.NoError(t, err)
	assert.True(t, published.IsPublic())

	userID, err := e.prefs.UserID(ctx, testOwner)
	require.NoError(t, err)
	assert.Equal(t, []string{userID}, e.backend.creatorIDs)

	mine, err := e.registry.ByCreator(ctx, testOwner)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, p.ID, mine[0].ID)

	_, err = e.registry.Publish(ctx, testOwner, "lover")
	assert.ErrorIs(t, err, domain.ErrBuiltinImmutable)
}

func TestRegistryDiscoverAndImport(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	e.backend.public = []domain.Personality{{
		ID: "pub_1", Name: "Nomad", Description: "travels", Prompt: "You travel",
		Visibility: domain.VisibilityPublic, CreatorID: "someone", Tags: []string{"Travel"},
	}}

	found, err := e.registry.Discover(ctx, domain.PublicFilter{Search: "nomad"})
	require.NoError(t, err)
	require.Len(t, found, 1)

	src, ok := e.registry.Discovered("pub_1")
	require.True(t, ok)

	imported, err := e.registry.Import(ctx, testOwner, src)
	require.NoError(t, err)
	assert.NotEqual(t, "pub_1", imported.ID)
	assert.Equal(t, domain.VisibilityPrivate, imported.Visibility)
	assert.Equal(t, []string{"travel"}, imported.Tags)
	assert.True(t, e.registry.IsCustom(ctx, testOwner, imported.ID))
}

func TestRegistryWarmFillsCaches(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)

	require.NoError(t, e.registry.Warm(ctx))
	assert.Len(t, e.registry.cache.Personalities(), 2)
	assert.Equal(t, []string{"calm", "cheerful"}, e.registry.cache.Tags()["mood"])
}

func TestRegistrySetAvatar(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)

	p, err := e.registry.Save(ctx, testOwner, custom("Pic"))
	require.NoError(t, err)

	got, err := e.registry.SetAvatar(ctx, testOwner, p.ID, "https://example.com/a.png")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/a.png", got.Image)
}
