package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"trivia-service/internal/domain"
)

// Store keeps users and scores in process memory. It implements app.UserRepository
// and app.ScoreRepository for deployments without Postgres.
type Store struct {
	mu     sync.RWMutex
	users  map[string]domain.User
	names  map[string]string // lower-cased username -> id
	scores []domain.ScoreRecord
}

func NewStore() *Store {
	return &Store{
		users: make(map[string]domain.User),
		names: make(map[string]string),
	}
}

func (s *Store) CreateUser(_ context.Context, user domain.User) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(user.Username)
	if _, ok := s.names[key]; ok {
		return domain.User{}, domain.ErrUsernameTaken
	}
	s.users[user.ID] = user
	s.names[key] = user.ID
	return user, nil
}

func (s *Store) UserByID(_ context.Context, id string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[id]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return user, nil
}

func (s *Store) UserByUsername(_ context.Context, username string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.names[strings.ToLower(username)]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return s.users[id], nil
}

func (s *Store) UpdateDisplayName(_ context.Context, id, displayName string) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	user.DisplayName = displayName
	user.UpdatedAt = time.Now().UTC()
	s.users[id] = user
	return user, nil
}

func (s *Store) InsertScore(_ context.Context, record domain.ScoreRecord) (domain.ScoreRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[record.UserID]
	if !ok {
		return domain.ScoreRecord{}, domain.ErrUserNotFound
	}
	user.TotalPoints += record.Score
	s.users[user.ID] = user
	s.scores = append(s.scores, record)
	return record, nil
}

func (s *Store) ScoresByUser(_ context.Context, userID string) ([]domain.ScoreRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []domain.ScoreRecord{}
	for i := len(s.scores) - 1; i >= 0; i-- {
		if s.scores[i].UserID == userID {
			out = append(out, s.scores[i])
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *Store) RecentScores(_ context.Context, limit int) ([]domain.ScoreWithUser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]domain.ScoreRecord, 0, len(s.scores))
	for i := len(s.scores) - 1; i >= 0; i-- {
		all = append(all, s.scores[i])
	}
	sortNewestFirst(all)
	if len(all) > limit {
		all = all[:limit]
	}

	out := make([]domain.ScoreWithUser, 0, len(all))
	for _, record := range all {
		user := s.users[record.UserID]
		out = append(out, domain.ScoreWithUser{
			ScoreRecord: record,
			Username:    user.Username,
			DisplayName: user.DisplayName,
		})
	}
	return out, nil
}

func (s *Store) Leaderboard(_ context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	played := make(map[string]int)
	for _, record := range s.scores {
		played[record.UserID]++
	}

	entries := make([]domain.LeaderboardEntry, 0, len(s.users))
	for _, user := range s.users {
		entries = append(entries, domain.LeaderboardEntry{
			UserID:      user.ID,
			Username:    user.Username,
			DisplayName: user.DisplayName,
			TotalPoints: user.TotalPoints,
			GamesPlayed: played[user.ID],
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].TotalPoints != entries[j].TotalPoints {
			return entries[i].TotalPoints > entries[j].TotalPoints
		}
		return entries[i].Username < entries[j].Username
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries, nil
}

func (s *Store) ClearScores(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := int64(len(s.scores))
	s.scores = nil
	for id, user := range s.users {
		user.TotalPoints = 0
		s.users[id] = user
	}
	return n, nil
}

// sortNewestFirst orders by creation time; records already in reverse insertion order keep it on ties.
func sortNewestFirst(records []domain.ScoreRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
}
