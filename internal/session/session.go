package session

import (
	"sync"

	"github.com/sells-group/access-cli/internal/access"
)

// State is the cached outcome of the last aggregation in a session.
type State struct {
	Population      access.Population
	Infrastructures map[string]access.Infrastructure
	Result          *access.Result
	TravelMode      string
}

// Ready reports whether an aggregation has been stored.
func (st State) Ready() bool {
	return st.Result != nil
}

// Session is a handle to one user's cached state. Changes made through the
// handle are visible to later Get calls immediately.
type Session struct {
	ID   string
	User string

	mu    sync.RWMutex
	state State
}

// Snapshot returns the current state. The returned value shares slices with
// the session; treat it as read-only.
func (s *Session) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Set replaces the cached state.
func (s *Session) Set(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = st
}

// Update applies fn to the state under the session lock.
func (s *Session) Update(fn func(*State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.state)
}

// Commit is a no-op; state is written through on Set and Update.
func (s *Session) Commit() error {
	return nil
}
