package redis

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"trivia-service/internal/app"
)

// SessionStore is a Redis-aware implementation of app.SessionRepository.
// Sessions live in a local map so the in-process broadcaster keeps working; Redis
// holds a liveness marker per game naming its active session.
type SessionStore struct {
	client   *redis.Client
	ttl      time.Duration
	mu       sync.RWMutex
	sessions map[string]*app.Session
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{
		client:   client,
		ttl:      ttl,
		sessions: make(map[string]*app.Session),
	}
}

func (s *SessionStore) Put(session *app.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.GameID()] = session
	// best-effort liveness marker
	_ = s.client.Set(context.Background(), s.key(session.GameID()), session.ID(), s.ttl).Err()
}

func (s *SessionStore) Replace(old, next *app.Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.sessions[old.GameID()]; !ok || current != old {
		return false
	}
	s.sessions[next.GameID()] = next
	_ = s.client.Set(context.Background(), s.key(next.GameID()), next.ID(), s.ttl).Err()
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
	if _, ok := s.sessions[gameID]; !ok {
		return
	}
	delete(s.sessions, gameID)
	_ = s.client.Del(context.Background(), s.key(gameID)).Err()
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

// Touch refreshes the liveness marker of every local game.
func (s *SessionStore) Touch(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.sessions) == 0 || s.ttl <= 0 {
		return nil
	}
	pipe := s.client.Pipeline()
	for gameID := range s.sessions {
		pipe.Expire(ctx, s.key(gameID), s.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *SessionStore) key(gameID string) string {
	return "trivia:session:" + gameID
}
