package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/set-night/companionbot/internal/domain"
)

// maxPageBytes bounds how much of an HTML page is parsed for its preview image.
const maxPageBytes = 2 << 20

// AvatarService validates personality avatars and resolves page links to
// their preview image.
type AvatarService struct {
	httpClient *http.Client
	maxBytes   int64
}

func NewAvatarService(maxBytes int64) *AvatarService {
	return &AvatarService{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		maxBytes:   maxBytes,
	}
}

// Validate rejects uploads that are not images or are too large.
func (s *AvatarService) Validate(size int64, contentType string) error {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil || !strings.HasPrefix(mediaType, "image/") {
		return domain.ErrNotAnImage
	}
	if size > s.maxBytes {
		return domain.ErrImageTooLarge
	}
	return nil
}

// DataURL validates an uploaded image and encodes it inline.
func (s *AvatarService) DataURL(contentType string, data []byte) (string, error) {
	if err := s.Validate(int64(len(data)), contentType); err != nil {
		return "", err
	}
	return fmt.Sprintf("data:%s;base64,%s", contentType, base64.StdEncoding.EncodeToString(data)), nil
}

// Resolve accepts a direct image link or a web page with an og:image and
// returns the image URL.
func (s *AvatarService) Resolve(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: not a web link", domain.ErrNotAnImage)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch avatar: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch avatar: status %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "image/") {
		if err := s.Validate(resp.ContentLength, contentType); err != nil {
			return "", err
		}
		return u.String(), nil
	}
	if !strings.HasPrefix(contentType, "text/html") {
		return "", domain.ErrNotAnImage
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", fmt.Errorf("parse page: %w", err)
	}

	var image string
	doc.Find(`meta[property="og:image"], meta[name="twitter:image"]`).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		image = strings.TrimSpace(sel.AttrOr("content", ""))
		return image == ""
	})
	if image == "" {
		return "", fmt.Errorf("%w: page has no preview image", domain.ErrNotAnImage)
	}

	ref, err := url.Parse(image)
	if err != nil {
		return "", fmt.Errorf("%w: bad preview image link", domain.ErrNotAnImage)
	}
	return u.ResolveReference(ref).String(), nil
}
