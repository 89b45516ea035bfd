package service

import "sync"

// ViewService tracks which conversation each owner is looking at and the
// error of the last foreground request.
type ViewService struct {
	mu       sync.RWMutex
	selected map[int64]string
	errs     map[int64]string
}

func NewViewService() *ViewService {
	return &ViewService{
		selected: make(map[int64]string),
		errs:     make(map[int64]string),
	}
}

// Selected reports the open conversation. false means the list view.
func (v *ViewService) Selected(owner int64) (string, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	id, ok := v.selected[owner]
	return id, ok
}

func (v *ViewService) Select(owner int64, personalityID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if personalityID == "" {
		delete(v.selected, owner)
	} else {
		v.selected[owner] = personalityID
	}
	delete(v.errs, owner)
}

// Back returns the owner to the list view.
func (v *ViewService) Back(owner int64) {
	v.Select(owner, "")
}

func (v *ViewService) SetError(owner int64, msg string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.errs[owner] = msg
}

func (v *ViewService) ClearError(owner int64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.errs, owner)
}

func (v *ViewService) Error(owner int64) (string, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	msg, ok := v.errs[owner]
	return msg, ok
}
