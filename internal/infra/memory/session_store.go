package memory

import (
	"sync"

	"trivia-service/internal/app"
)

// SessionStore is an in-memory implementation of app.SessionRepository.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*app.Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*app.Session),
	}
}

// Put registers session as the active one for its game, replacing any previous session.
func (s *SessionStore) Put(session *app.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.GameID()] = session
}

// Replace swaps in next if old is still the registered session for its game.
func (s *SessionStore) Replace(old, next *app.Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.sessions[old.GameID()]; !ok || current != old {
		return false
	}
	s.sessions[next.GameID()] = next
	return true
}

func (s *SessionStore) Get(gameID string) (*app.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[gameID]
	return session, ok
}

func (s *SessionStore) Delete(gameID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, gameID)
}

func (s *SessionStore) All() []*app.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*app.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, session)
	}
	return out
}
