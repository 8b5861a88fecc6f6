package session

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ZanzyTHEbar/vpr-analytics/internal/filter"
	"github.com/ZanzyTHEbar/vpr-analytics/internal/types"
)

// ErrNotFound is returned for unknown or expired session ids
var ErrNotFound = errors.New("session not found")

// Session is the public view of one client's filter selection
type Session struct {
	ID        string            `json:"id"`
	Filters   types.FilterState `json:"filters"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

type entry struct {
	selector  *filter.Selector
	createdAt time.Time
	lastSeen  time.Time
}

// Store keeps one filter Selector per client. Sessions idle for longer than
// the TTL are dropped.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*entry
	ttl      time.Duration
	now      func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

// NewStore creates a session store and starts its cleanup loop
func NewStore(ttl time.Duration) *Store {
	s := &Store{
		sessions: make(map[string]*entry),
		ttl:      ttl,
		now:      time.Now,
		stop:     make(chan struct{}),
	}

	interval := ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	go s.cleanup(interval)

	return s
}

// Create opens a session holding the default filter state
func (s *Store) Create() Session {
	now := s.now()
	id := uuid.New().String()
	e := &entry{
		selector:  filter.NewSelector(filter.DefaultState()),
		createdAt: now,
		lastSeen:  now,
	}

	s.mu.Lock()
	s.sessions[id] = e
	s.mu.Unlock()

	return e.view(id, now)
}

// Get returns a session and refreshes its idle timer
func (s *Store) Get(id string) (Session, error) {
	e, seen, err := s.touch(id)
	if err != nil {
		return Session{}, err
	}
	return e.view(id, seen), nil
}

// Selector returns the live selector for a session
func (s *Store) Selector(id string) (*filter.Selector, error) {
	e, _, err := s.touch(id)
	if err != nil {
		return nil, err
	}
	return e.selector, nil
}

// Update merges a partial filter change into the session's selector
func (s *Store) Update(id string, patch types.FilterPatch) (Session, error) {
	e, seen, err := s.touch(id)
	if err != nil {
		return Session{}, err
	}
	e.selector.Update(patch)
	return e.view(id, seen), nil
}

// Delete removes a session. Deleting an unknown id is not an error.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// Len returns the number of live sessions
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Close stops the cleanup loop
func (s *Store) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *Store) touch(id string) (*entry, time.Time, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[id]
	if !ok {
		return nil, time.Time{}, ErrNotFound
	}
	if now.Sub(e.lastSeen) > s.ttl {
		delete(s.sessions, id)
		return nil, time.Time{}, ErrNotFound
	}
	e.lastSeen = now
	return e, now, nil
}

// removeExpired drops idle sessions and returns how many were removed
func (s *Store) removeExpired() int {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, e := range s.sessions {
		if now.Sub(e.lastSeen) > s.ttl {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

func (s *Store) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			if n := s.removeExpired(); n > 0 {
				slog.Debug("Expired filter sessions removed", "count", n)
			}
		}
	}
}

func (e *entry) view(id string, seen time.Time) Session {
	return Session{
		ID:        id,
		Filters:   e.selector.State(),
		CreatedAt: e.createdAt,
		UpdatedAt: seen,
	}
}
