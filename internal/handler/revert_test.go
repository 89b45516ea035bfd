package handler

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRevertData(t *testing.T) {
	pid, index, err := parseRevertData(revertData(cbRevertConfirm, "custom_1700000000000", 4), cbRevertConfirm)
	require.NoError(t, err)
	assert.Equal(t, "custom_1700000000000", pid)
	assert.Equal(t, 4, index)

	for _, data := range []string{"revok:", "revok:2", "revok::2", "revok:lover:x", "revok:lover:-1", "rev:lover:2"} {
		_, _, err := parseRevertData(data, cbRevertConfirm)
		assert.Error(t, err, data)
	}
}

func TestHandleRevertConfirmTargetsButtonConversation(t *testing.T) {
	env := newTestEnv(t)
	ctx := ownerCtx()
	seedTranscript(t, env, "lover", 4)
	seedTranscript(t, env, "mentor", 4)
	env.view.Select(testOwner, "mentor")

	env.h.handleRevertConfirm(ctx, env.b, callbackUpdate(revertData(cbRevertConfirm, "lover", 2)))

	lover, err := env.conversations.Messages(context.Background(), testOwner, "lover")
	require.NoError(t, err)
	require.Len(t, lover, 2)
	assert.Equal(t, "lover 1", lover[1].Content)

	mentor, err := env.conversations.Messages(context.Background(), testOwner, "mentor")
	require.NoError(t, err)
	assert.Len(t, mentor, 4)

	assert.Equal(t, []string{"↩️ Reverted"}, env.api.callbackAnswers())
	// mentor is still open, so the lover transcript is not re-rendered over it.
	assert.Empty(t, env.api.sent())
}

func TestHandleRevertConfirmRerendersOpenConversation(t *testing.T) {
	env := newTestEnv(t)
	seedTranscript(t, env, "mentor", 4)
	env.view.Select(testOwner, "mentor")

	env.h.handleRevertConfirm(ownerCtx(), env.b, callbackUpdate(revertData(cbRevertConfirm, "mentor", 2)))

	mentor, err := env.conversations.Messages(context.Background(), testOwner, "mentor")
	require.NoError(t, err)
	assert.Len(t, mentor, 2)

	sent := env.api.sent()
	require.NotEmpty(t, sent)
	assert.Contains(t, sent[0], "Mentor")
}

func TestHandleRevertConfirmRejectsStaleIndex(t *testing.T) {
	tests := []struct {
		name  string
		index int
	}{
		{"assistant message", 1},
		{"past the end", 9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			seedTranscript(t, env, "lover", 4)
			env.view.Select(testOwner, "lover")

			env.h.handleRevertConfirm(ownerCtx(), env.b, callbackUpdate(revertData(cbRevertConfirm, "lover", tt.index)))

			lover, err := env.conversations.Messages(context.Background(), testOwner, "lover")
			require.NoError(t, err)
			assert.Len(t, lover, 4)

			answers := env.api.callbackAnswers()
			require.Len(t, answers, 1)
			assert.True(t, strings.HasPrefix(answers[0], "This message is no longer"))
		})
	}
}

func TestRevertAfterClearIsStale(t *testing.T) {
	env := newTestEnv(t)
	seedTranscript(t, env, "lover", 2)
	require.NoError(t, env.conversations.Clear(context.Background(), testOwner, "lover"))
	seedTranscript(t, env, "lover", 1)

	err := env.h.revert(context.Background(), testOwner, "lover", 1)
	assert.ErrorIs(t, err, errStaleRevert)

	require.NoError(t, env.h.revert(context.Background(), testOwner, "lover", 0))
	msgs, err := env.conversations.Messages(context.Background(), testOwner, "lover")
	require.NoError(t, err)
	assert.Empty(t, msgs)
}
