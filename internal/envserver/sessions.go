package envserver

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/signalsfoundry/junctionbox-simulator/internal/sim/episode"
)

// EventType indicates what kind of change happened in the registry.
type EventType int

const (
	EventSessionOpened EventType = iota
	EventSessionClosed
)

// Event is emitted to subscribers when a session opens or closes.
type Event struct {
	Type      EventType
	SessionID string
	// Active is the number of open sessions after the change.
	Active int
}

// Session owns one environment. Calls on the environment are serialised by
// the session's mutex; different sessions run in parallel.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu  sync.Mutex
	env *episode.Environment
}

// NewSession wraps env under id.
func NewSession(id string, env *episode.Environment) *Session {
	return &Session{ID: id, CreatedAt: time.Now().UTC(), env: env}
}

// Do runs fn with exclusive access to the session's environment.
func (s *Session) Do(fn func(env *episode.Environment) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.env)
}

// SessionRegistry is an in-memory, thread-safe index of open sessions.
type SessionRegistry struct {
	mu sync.RWMutex

	sessions map[string]*Session
	max      int

	subs   map[int]func(Event)
	nextID int
}

// NewSessionRegistry constructs an empty registry. maxSessions <= 0 means
// unlimited.
func NewSessionRegistry(maxSessions int) *SessionRegistry {
	return &SessionRegistry{
		sessions: make(map[string]*Session),
		max:      maxSessions,
		subs:     make(map[int]func(Event)),
	}
}

// Add registers a new session. It fails if the id is taken or the registry
// is full.
func (r *SessionRegistry) Add(s *Session) error {
	r.mu.Lock()
	if _, exists := r.sessions[s.ID]; exists {
		r.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrSessionExists, s.ID)
	}
	if r.max > 0 && len(r.sessions) >= r.max {
		r.mu.Unlock()
		return fmt.Errorf("%w: %d open", ErrSessionLimit, r.max)
	}
	r.sessions[s.ID] = s
	event := Event{Type: EventSessionOpened, SessionID: s.ID, Active: len(r.sessions)}
	subs := r.snapshotSubs()
	r.mu.Unlock()

	// Notify subscribers outside the lock to avoid deadlocks.
	for _, sub := range subs {
		sub(event)
	}
	return nil
}

// Get returns the session with the given id.
func (r *SessionRegistry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSessionNotFound, id)
	}
	return s, nil
}

// Remove drops a session and notifies subscribers.
func (r *SessionRegistry) Remove(id string) error {
	r.mu.Lock()
	if _, ok := r.sessions[id]; !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrSessionNotFound, id)
	}
	delete(r.sessions, id)
	event := Event{Type: EventSessionClosed, SessionID: id, Active: len(r.sessions)}
	subs := r.snapshotSubs()
	r.mu.Unlock()

	for _, sub := range subs {
		sub(event)
	}
	return nil
}

// Len returns the number of open sessions.
func (r *SessionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// IDs returns the open session ids in sorted order.
func (r *SessionRegistry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Subscribe registers a callback for registry events. It returns an
// unsubscribe function.
func (r *SessionRegistry) Subscribe(fn func(Event)) (unsubscribe func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	r.subs[id] = fn

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.subs, id)
	}
}

// snapshotSubs must be called with r.mu held. Subscribers run in
// registration order.
func (r *SessionRegistry) snapshotSubs() []func(Event) {
	keys := make([]int, 0, len(r.subs))
	for k := range r.subs {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	out := make([]func(Event), 0, len(keys))
	for _, k := range keys {
		out = append(out, r.subs[k])
	}
	return out
}
