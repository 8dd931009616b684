// Package session keeps the last multi-criteria computation per user session
// so that follow-up statistics and scenario queries can reuse it.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrNotFound is returned for unknown or expired sessions. Callers should
// create a new session rather than retry.
var ErrNotFound = eris.New("session not found")

// Defaults for the idle sweep.
const (
	DefaultIdleTimeout   = 24 * time.Hour
	DefaultSweepInterval = time.Hour
)

// Observer receives session lifecycle counts.
type Observer interface {
	SessionsActive(n int)
	SessionsEvicted(n int)
}

type nopObserver struct{}

func (nopObserver) SessionsActive(int)  {}
func (nopObserver) SessionsEvicted(int) {}

type key struct {
	user string
	id   string
}

type entry struct {
	session    *Session
	lastAccess time.Time
}

// Store is a concurrent-safe, per-user session cache with idle expiration.
type Store struct {
	mu          sync.Mutex
	sessions    map[key]*entry
	idleTimeout time.Duration
	now         func() time.Time
	newID       func() string
	observer    Observer
}

// Option configures a Store.
type Option func(*Store)

// WithIdleTimeout sets how long a session may stay unused before eviction.
func WithIdleTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.idleTimeout = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithIDGenerator overrides session id generation.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) {
		s.newID = gen
	}
}

// WithObserver sets the telemetry sink.
func WithObserver(o Observer) Option {
	return func(s *Store) {
		if o != nil {
			s.observer = o
		}
	}
}

// NewStore creates an empty Store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		sessions:    make(map[key]*entry),
		idleTimeout: DefaultIdleTimeout,
		now:         time.Now,
		newID:       uuid.NewString,
		observer:    nopObserver{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewSession creates an empty session for user and returns its id. The id
// never collides with another live session of the same user.
func (s *Store) NewSession(user string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		id := s.newID()
		k := key{user: user, id: id}
		if _, ok := s.sessions[k]; ok {
			continue
		}
		s.sessions[k] = &entry{
			session:    &Session{ID: id, User: user},
			lastAccess: s.now(),
		}
		s.observer.SessionsActive(len(s.sessions))
		return id
	}
}

// Get returns the session handle and refreshes its idle timer.
func (s *Store) Get(user, id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[key{user: user, id: id}]
	if !ok {
		return nil, eris.Wrapf(ErrNotFound, "session: %s", id)
	}
	e.lastAccess = s.now()
	return e.session, nil
}

// Has reports whether the session exists. It does not refresh the idle timer.
func (s *Store) Has(user, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.sessions[key{user: user, id: id}]
	return ok
}

// Remove deletes a session.
func (s *Store) Remove(user, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key{user: user, id: id}
	if _, ok := s.sessions[k]; !ok {
		return eris.Wrapf(ErrNotFound, "session: %s", id)
	}
	delete(s.sessions, k)
	s.observer.SessionsActive(len(s.sessions))
	return nil
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sweep evicts sessions idle for longer than the idle timeout and returns the
// number evicted. A session whose handle is currently locked by a reader or
// writer is kept until the next pass.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	evicted := 0
	for k, e := range s.sessions {
		if now.Sub(e.lastAccess) <= s.idleTimeout {
			continue
		}
		if !e.session.mu.TryLock() {
			continue
		}
		delete(s.sessions, k)
		e.session.mu.Unlock()
		evicted++
	}

	if evicted > 0 {
		s.observer.SessionsEvicted(evicted)
		s.observer.SessionsActive(len(s.sessions))
	}
	return evicted
}

// Run sweeps every interval until ctx is done.
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				zap.L().Info("session: evicted idle sessions",
					zap.Int("evicted", n),
					zap.Int("remaining", s.Len()),
				)
			}
		}
	}
}
