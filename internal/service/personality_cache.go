package service

import (
	"sync"
	"time"

	"github.com/set-night/companionbot/internal/domain"
)

// PersonalityCache keeps the backend's built-in personalities and tag
// taxonomy for a fixed duration.
type PersonalityCache struct {
	mu            sync.RWMutex
	personalities []domain.Personality
	cachedAt      time.Time
	tags          domain.TagTaxonomy
	tagsCachedAt  time.Time
	ttl           time.Duration
}

func NewPersonalityCache(ttl time.Duration) *PersonalityCache {
	return &PersonalityCache{ttl: ttl}
}

func (c *PersonalityCache) Personalities() []domain.Personality {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.personalities == nil || time.Since(c.cachedAt) > c.ttl {
		return nil
	}
	return c.personalities
}

func (c *PersonalityCache) SetPersonalities(personalities []domain.Personality) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.personalities = personalities
	c.cachedAt = time.Now()
}

func (c *PersonalityCache) Tags() domain.TagTaxonomy {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.tags == nil || time.Since(c.tagsCachedAt) > c.ttl {
		return nil
	}
	return c.tags
}

func (c *PersonalityCache) SetTags(tags domain.TagTaxonomy) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tags = tags
	c.tagsCachedAt = time.Now()
}
