package conversation

import (
	"container/list"
	"sync"
)

// DefaultSession is used when a caller does not name a session.
const DefaultSession = "default"

// DefaultMaxSessions bounds how many histories a Store keeps.
const DefaultMaxSessions = 1000

// Store hands out one History per session id. Sessions never share state.
// Once maxSessions is reached the least recently used session is evicted.
type Store struct {
	mu          sync.Mutex
	sessions    map[string]*list.Element
	order       *list.List // front is most recently used
	maxTurns    int
	maxSessions int
}

type entry struct {
	id      string
	history *History
}

// NewStore creates a Store whose histories keep at most maxTurns turns and
// which holds at most maxSessions sessions (DefaultMaxSessions if <= 0).
func NewStore(maxTurns, maxSessions int) *Store {
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	return &Store{
		sessions:    make(map[string]*list.Element),
		order:       list.New(),
		maxTurns:    maxTurns,
		maxSessions: maxSessions,
	}
}

// Session returns the history for id, creating it on first use.
func (s *Store) Session(id string) *History {
	if id == "" {
		id = DefaultSession
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if el, ok := s.sessions[id]; ok {
		s.order.MoveToFront(el)
		return el.Value.(*entry).history //nolint:forcetypeassert // only *entry is stored
	}

	h := NewHistory(s.maxTurns)
	s.sessions[id] = s.order.PushFront(&entry{id: id, history: h})
	for s.order.Len() > s.maxSessions {
		oldest := s.order.Back()
		s.order.Remove(oldest)
		delete(s.sessions, oldest.Value.(*entry).id) //nolint:forcetypeassert // only *entry is stored
	}
	return h
}

// Reset drops a session's history.
func (s *Store) Reset(id string) {
	if id == "" {
		id = DefaultSession
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if el, ok := s.sessions[id]; ok {
		s.order.Remove(el)
		delete(s.sessions, id)
	}
}

// Len reports how many sessions are held.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
