package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/set-night/companionbot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAvatarValidate(t *testing.T) {
	s := NewAvatarService(5 * 1024 * 1024)

	tests := []struct {
		name        string
		size        int64
		contentType string
		want        error
	}{
		{"small jpeg", 200 * 1024, "image/jpeg", nil},
		{"exactly the limit", 5 * 1024 * 1024, "image/png", nil},
		{"too large", 5*1024*1024 + 1, "image/png", domain.ErrImageTooLarge},
		{"pdf", 1024, "application/pdf", domain.ErrNotAnImage},
		{"garbage type", 1024, ";;", domain.ErrNotAnImage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Validate(tt.size, tt.contentType)
			if tt.want == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}
}

func TestAvatarDataURL(t *testing.T) {
	s := NewAvatarService(16)

	got, err := s.DataURL("image/png", []byte("png"))
	require.NoError(t, err)
	assert.Equal(t, "data:image/png;base64,cG5n", got)

	_, err = s.DataURL("image/png", make([]byte, 17))
	assert.ErrorIs(t, err, domain.ErrImageTooLarge)
}

func TestAvatarResolve(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/cat.png", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("png"))
	})
	mux.HandleFunc("/profile", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<html><head><meta property="og:image" content="/img/avatar.jpg"></head></html>`))
	})
	mux.HandleFunc("/plain", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body>nothing here</body></html>`))
	})
	mux.HandleFunc("/doc", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ctx := context.Background()
	s := NewAvatarService(5 * 1024 * 1024)

	got, err := s.Resolve(ctx, srv.URL+"/cat.png")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/cat.png", got)

	got, err = s.Resolve(ctx, srv.URL+"/profile")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/img/avatar.jpg", got)

	_, err = s.Resolve(ctx, srv.URL+"/plain")
	assert.ErrorIs(t, err, domain.ErrNotAnImage)

	_, err = s.Resolve(ctx, srv.URL+"/doc")
	assert.ErrorIs(t, err, domain.ErrNotAnImage)

	_, err = s.Resolve(ctx, "ftp://example.com/a.png")
	assert.ErrorIs(t, err, domain.ErrNotAnImage)
}
