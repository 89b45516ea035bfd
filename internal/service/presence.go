package service

import (
	"sync"
	"time"
)

// Presence approximates "the window is focused": an owner who interacted
// within the window is considered to be looking at the chat.
type Presence struct {
	window time.Duration
	now    func() time.Time

	mu   sync.RWMutex
	last map[int64]time.Time
}

func NewPresence(window time.Duration) *Presence {
	return &Presence{
		window: window,
		now:    time.Now,
		last:   make(map[int64]time.Time),
	}
}

func (p *Presence) Touch(owner int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.last[owner] = p.now()
}

func (p *Presence) Focused(owner int64) bool {
	p.mu.RLock()
	last, ok := p.last[owner]
	p.mu.RUnlock()
	return ok && p.now().Sub(last) < p.window
}
