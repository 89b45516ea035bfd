package telegram

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeDataURL(t *testing.T) {
	mimeType, data, err := DecodeDataURL("data:image/png;base64,aGVsbG8=")
	require.NoError(t, err)
	assert.Equal(t, "image/png", mimeType)
	assert.Equal(t, []byte("hello"), data)
	assert.Equal(t, ".png", extensionFor(mimeType))

	for _, bad := range []string{
		"https://example.com/a.png",
		"data:image/png,aGVsbG8=",
		"data:image/png;base64",
		"data:image/png;base64,!!!",
	} {
		_, _, err := DecodeDataURL(bad)
		assert.Error(t, err, bad)
	}
}

func TestIsDataURL(t *testing.T) {
	assert.True(t, IsDataURL("data:image/jpeg;base64,AAAA"))
	assert.False(t, IsDataURL("https://example.com/a.jpg"))
}
