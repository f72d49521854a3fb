package app

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"trivia-service/internal/domain"
)

// ScoreRepository stores finished games. InsertScore also credits the score to the
// owner's total points.
type ScoreRepository interface {
	InsertScore(ctx context.Context, record domain.ScoreRecord) (domain.ScoreRecord, error)
	ScoresByUser(ctx context.Context, userID string) ([]domain.ScoreRecord, error)
	RecentScores(ctx context.Context, limit int) ([]domain.ScoreWithUser, error)
	Leaderboard(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error)
	ClearScores(ctx context.Context) (int64, error)
}

const (
	DefaultRecentLimit      = 5
	DefaultLeaderboardLimit = 10
	maxListLimit            = 100
	recentGamesOnProfile    = 10
	topCategoriesOnProfile  = 3
	speedDemonSeconds       = 120
)

// ProfileService records scores and derives leaderboards and profile statistics.
// It is the ScoreReporter of finished games.
type ProfileService struct {
	users  UserRepository
	scores ScoreRepository
	now    func() time.Time
	log    logrus.FieldLogger
}

func NewProfileService(users UserRepository, scores ScoreRepository, log logrus.FieldLogger) *ProfileService {
	return &ProfileService{users: users, scores: scores, now: time.Now, log: log}
}

// SaveScore validates and stores a finished game for an existing user.
func (s *ProfileService) SaveScore(ctx context.Context, record domain.ScoreRecord) (domain.ScoreRecord, error) {
	record = record.Normalize()
	if err := record.Validate(); err != nil {
		return domain.ScoreRecord{}, err
	}
	if _, err := s.users.UserByID(ctx, record.UserID); err != nil {
		return domain.ScoreRecord{}, err
	}

	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = s.now().UTC()
	}
	saved, err := s.scores.InsertScore(ctx, record)
	if err != nil {
		return domain.ScoreRecord{}, fmt.Errorf("failed to save score: %w", err)
	}
	return saved, nil
}

// UserScores returns a user's games, newest first.
func (s *ProfileService) UserScores(ctx context.Context, userID string) ([]domain.ScoreRecord, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", domain.ErrInvalidUser)
	}
	return s.scores.ScoresByUser(ctx, userID)
}

func (s *ProfileService) RecentScores(ctx context.Context, limit int) ([]domain.ScoreWithUser, error) {
	return s.scores.RecentScores(ctx, clampLimit(limit, DefaultRecentLimit))
}

func (s *ProfileService) Leaderboard(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	return s.scores.Leaderboard(ctx, clampLimit(limit, DefaultLeaderboardLimit))
}

// ClearScores deletes every stored score and resets total points.
func (s *ProfileService) ClearScores(ctx context.Context) (int64, error) {
	n, err := s.scores.ClearScores(ctx)
	if err != nil {
		return 0, err
	}
	s.log.WithField("deleted", n).Warn("all scores cleared")
	return n, nil
}

// Stats aggregates a user's score history for the profile page.
func (s *ProfileService) Stats(ctx context.Context, userID string) (domain.ProfileStats, error) {
	user, err := s.users.UserByID(ctx, userID)
	if err != nil {
		return domain.ProfileStats{}, err
	}
	scores, err := s.scores.ScoresByUser(ctx, userID)
	if err != nil {
		return domain.ProfileStats{}, err
	}

	stats := BuildProfileStats(scores)
	stats.User = &user
	return stats, nil
}

// BuildProfileStats computes profile statistics from scores ordered newest first.
// A game's score counts as its number of correct answers; since harder questions award
// more than one point, ratios are capped at 100%.
func BuildProfileStats(scores []domain.ScoreRecord) domain.ProfileStats {
	stats := domain.ProfileStats{
		TotalGames:          len(scores),
		TopCategories:       []domain.Performance{},
		DifficultyBreakdown: []domain.Performance{},
		RecentGames:         []domain.ScoreRecord{},
	}

	categories := newTally()
	difficulties := newTally()
	fastGame := false
	for _, sc := range scores {
		stats.TotalQuestions += sc.TotalQuestions
		stats.CorrectAnswers += sc.Score
		if sc.Score >= sc.TotalQuestions {
			stats.PerfectGames++
		}
		if sc.TimeTaken > 0 && sc.TimeTaken < speedDemonSeconds {
			fastGame = true
		}
		categories.add(sc.Category, sc.Score, sc.TotalQuestions)
		difficulties.add(sc.Difficulty, sc.Score, sc.TotalQuestions)
	}

	if stats.TotalQuestions > 0 {
		stats.Accuracy = math.Min(100, math.Round(float64(stats.CorrectAnswers)/float64(stats.TotalQuestions)*1000)/10)
	}
	stats.Level = stats.TotalGames/10 + 1

	top := categories.performances()
	sort.SliceStable(top, func(i, j int) bool { return top[i].Percentage > top[j].Percentage })
	if len(top) > topCategoriesOnProfile {
		top = top[:topCategoriesOnProfile]
	}
	stats.TopCategories = top

	breakdown := difficulties.performances()
	sort.SliceStable(breakdown, func(i, j int) bool {
		return difficultyRank(breakdown[i].Name) < difficultyRank(breakdown[j].Name)
	})
	stats.DifficultyBreakdown = breakdown

	n := len(scores)
	if n > recentGamesOnProfile {
		n = recentGamesOnProfile
	}
	stats.RecentGames = append(stats.RecentGames, scores[:n]...)

	stats.Badges = badges(stats, len(categories.order), fastGame)
	return stats
}

func badges(stats domain.ProfileStats, categoriesPlayed int, fastGame bool) []domain.Badge {
	games := stats.TotalGames
	return []domain.Badge{
		{Title: "Trivia Master", Description: "Reach Level 10", Progress: progress(games, 100), Completed: games >= 100},
		{Title: "Perfect Score", Description: "Get all questions right", Progress: flag(stats.PerfectGames > 0), Completed: stats.PerfectGames > 0},
		{Title: "Rising Star", Description: "Play 5 games", Progress: progress(games, 5), Completed: games >= 5},
		{Title: "Speed Demon", Description: "Complete a game in under 2 minutes", Progress: flag(fastGame), Completed: fastGame},
		{Title: "Knowledge Seeker", Description: "Play in 5 different categories", Progress: progress(categoriesPlayed, 5), Completed: categoriesPlayed >= 5},
		{Title: "Dedicated Player", Description: "Play 10 games", Progress: progress(games, 10), Completed: games >= 10},
	}
}

func progress(n, goal int) int {
	p := n * 100 / goal
	if p > 100 {
		return 100
	}
	return p
}

func flag(done bool) int {
	if done {
		return 100
	}
	return 0
}

func difficultyRank(name string) int {
	switch domain.Difficulty(name) {
	case domain.DifficultyEasy:
		return 0
	case domain.DifficultyMedium:
		return 1
	case domain.DifficultyHard:
		return 2
	}
	return 3
}

// tally sums correct/total per key, remembering first-seen order.
type tally struct {
	order []string
	sums  map[string]*domain.Performance
}

func newTally() *tally {
	return &tally{sums: make(map[string]*domain.Performance)}
}

func (t *tally) add(name string, correct, total int) {
	p, ok := t.sums[name]
	if !ok {
		p = &domain.Performance{Name: name}
		t.sums[name] = p
		t.order = append(t.order, name)
	}
	p.Correct += correct
	p.Total += total
}

func (t *tally) performances() []domain.Performance {
	out := make([]domain.Performance, 0, len(t.order))
	for _, name := range t.order {
		p := *t.sums[name]
		p.Percentage = min(100, Percentage(p.Correct, p.Total))
		out = append(out, p)
	}
	return out
}

func clampLimit(limit, def int) int {
	if limit <= 0 {
		return def
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
