package utils

import (
	"sync"

	"github.com/lumenlang/dap-adapter/constants"
)

// StateManager records the session's current top-level state under a
// coarse lock, the same shape as a status flag guarded end-to-end by
// one RWMutex, now typed against constants.SessionState instead of a
// bare string so an invalid state name can't be set by a typo.
type StateManager struct {
	lock  sync.RWMutex
	state constants.SessionState
}

func NewStateManager() *StateManager {
	return &StateManager{
		state: constants.Birth,
	}
}

func (s *StateManager) Set(state constants.SessionState) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.state = state
}

func (s *StateManager) Get() constants.SessionState {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.state
}

func (s *StateManager) Is(states ...constants.SessionState) bool {
	s.lock.RLock()
	defer s.lock.RUnlock()
	for _, st := range states {
		if s.state == st {
			return true
		}
	}
	return false
}
