package oauth

import "sync"

// MemorySessionStore is an in-process one-shot session slot. Put overwrites
// any pending pair; PullAndClear consumes it atomically so a replayed callback
// finds the slot empty.
type MemorySessionStore struct {
	mu       sync.Mutex
	state    string
	verifier string
	set      bool
}

// NewMemorySessionStore constructs an empty slot.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{}
}

// Put stores a {state, verifier} pair, replacing any pending one.
func (s *MemorySessionStore) Put(state, verifier string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	s.verifier = verifier
	s.set = true
}

// PullAndClear returns and clears the stored pair in one step.
func (s *MemorySessionStore) PullAndClear() (string, string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, verifier, ok := s.state, s.verifier, s.set
	s.state, s.verifier, s.set = "", "", false
	return state, verifier, ok
}
