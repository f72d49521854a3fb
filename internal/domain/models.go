package domain

import (
	"fmt"
	"strings"
	"time"
)

// User is a registered player. The password hash never leaves the server.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	DisplayName  string    `json:"display_name,omitempty"`
	AvatarURL    string    `json:"avatar_url,omitempty"`
	PasswordHash string    `json:"-"`
	TotalPoints  int       `json:"total_points"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ScoreRecord is a persisted game result.
type ScoreRecord struct {
	ID             string    `json:"id,omitempty"`
	UserID         string    `json:"user_id"`
	Category       string    `json:"category"`
	Difficulty     string    `json:"difficulty"`
	Score          int       `json:"score"`
	TotalQuestions int       `json:"total_questions"`
	TimeTaken      int       `json:"time_taken"`
	CreatedAt      time.Time `json:"created_at"`
}

// Normalize fills the defaults used when a client omits category or difficulty.
func (r ScoreRecord) Normalize() ScoreRecord {
	if strings.TrimSpace(r.Category) == "" {
		r.Category = MixedCategory
	}
	if strings.TrimSpace(r.Difficulty) == "" {
		r.Difficulty = string(DifficultyMedium)
	}
	return r
}

// Validate checks a record before it is stored.
func (r ScoreRecord) Validate() error {
	switch {
	case r.UserID == "":
		return fmt.Errorf("%w: user id is required", ErrInvalidScore)
	case r.TotalQuestions < 1:
		return fmt.Errorf("%w: total_questions must be positive", ErrInvalidScore)
	case r.Score < 0:
		return fmt.Errorf("%w: score must not be negative", ErrInvalidScore)
	case r.TimeTaken < 0:
		return fmt.Errorf("%w: time_taken must not be negative", ErrInvalidScore)
	}
	return nil
}

// ScoreWithUser is a score joined with its owner's public profile.
type ScoreWithUser struct {
	ScoreRecord
	Username    string `json:"username"`
	DisplayName string `json:"display_name,omitempty"`
}

// LeaderboardEntry ranks users by accumulated points.
type LeaderboardEntry struct {
	Rank        int    `json:"rank"`
	UserID      string `json:"user_id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name,omitempty"`
	TotalPoints int    `json:"total_points"`
	GamesPlayed int    `json:"games_played"`
}

// Category is an OpenTDB question category.
type Category struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// QuestionCount holds the per-difficulty totals of a category.
type QuestionCount struct {
	Total  int `json:"total_question_count"`
	Easy   int `json:"total_easy_question_count"`
	Medium int `json:"total_medium_question_count"`
	Hard   int `json:"total_hard_question_count"`
}

// CategoryCount pairs a category id with its question totals.
type CategoryCount struct {
	CategoryID int           `json:"categoryId"`
	Count      QuestionCount `json:"count"`
}

// CategoryWithCount is one entry of the category overview. Error is set when its count could not be loaded.
type CategoryWithCount struct {
	ID    int           `json:"id"`
	Name  string        `json:"name"`
	Count QuestionCount `json:"count"`
	Error string        `json:"error,omitempty"`
}

// Performance is a correct/total aggregate with its rounded percentage.
type Performance struct {
	Name       string `json:"name"`
	Correct    int    `json:"correct"`
	Total      int    `json:"total"`
	Percentage int    `json:"percentage"`
}

// Badge is an achievement shown on the profile page.
type Badge struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Progress    int    `json:"progress"`
	Completed   bool   `json:"completed"`
}

// ProfileStats aggregates a user's score history.
type ProfileStats struct {
	User                *User         `json:"user"`
	TotalGames          int           `json:"total_games"`
	TotalQuestions      int           `json:"total_questions"`
	CorrectAnswers      int           `json:"correct_answers"`
	Accuracy            float64       `json:"accuracy"`
	PerfectGames        int           `json:"perfect_games"`
	Level               int           `json:"level"`
	TopCategories       []Performance `json:"top_categories"`
	DifficultyBreakdown []Performance `json:"difficulty_breakdown"`
	Badges              []Badge       `json:"badges"`
	RecentGames         []ScoreRecord `json:"recent_games"`
}
