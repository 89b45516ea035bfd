package telegram

import (
	"testing"

	"github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaginationRow(t *testing.T) {
	first := PaginationRow(0, 3, "dpage:")
	require.Len(t, first, 2)
	assert.Equal(t, "1/3", first[0].Text)
	assert.Equal(t, "dpage:1", first[1].CallbackData)

	middle := PaginationRow(1, 3, "dpage:")
	require.Len(t, middle, 3)
	assert.Equal(t, "dpage:0", middle[0].CallbackData)
	assert.Equal(t, CallbackNoop, middle[1].CallbackData)

	last := PaginationRow(2, 3, "dpage:")
	require.Len(t, last, 2)
	assert.Equal(t, "dpage:1", last[0].CallbackData)
}

func TestGrid(t *testing.T) {
	var buttons []models.InlineKeyboardButton
	for _, label := range []string{"a", "b", "c", "d", "e"} {
		buttons = append(buttons, InlineButton(label, label))
	}

	rows := Grid(buttons, 2)
	require.Len(t, rows, 3)
	assert.Len(t, rows[0], 2)
	assert.Len(t, rows[2], 1)
	assert.Equal(t, "e", rows[2][0].Text)
}
