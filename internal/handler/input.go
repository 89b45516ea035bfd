package handler

import (
	"sync"

	"github.com/set-night/companionbot/internal/domain"
)

type inputKind int

const (
	inputCreateName inputKind = iota + 1
	inputCreateDescription
	inputCreatePrompt
	inputCreateEmoji
	inputEditField
	inputAvatar
	inputSearch
)

// pendingInput is a multi-step form waiting for the owner's next message.
type pendingInput struct {
	kind  inputKind
	draft domain.Personality
	field string
}

type inputState struct {
	mu      sync.Mutex
	pending map[int64]*pendingInput
}

func newInputState() *inputState {
	return &inputState{pending: make(map[int64]*pendingInput)}
}

func (s *inputState) get(owner int64) (*pendingInput, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[owner]
	return p, ok
}

func (s *inputState) set(owner int64, p *pendingInput) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[owner] = p
}

func (s *inputState) clear(owner int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, owner)
}
