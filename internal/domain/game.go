package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// AnyOption is the configuration value meaning "do not filter".
const AnyOption = "any"

// MixedCategory labels scores whose category could not be determined.
const MixedCategory = "Mixed"

const (
	DefaultAmount = 10
	MaxAmount     = 50
)

// Difficulty is the OpenTDB difficulty level of a question.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Valid reports whether d is one of the known levels.
func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// Award returns the points granted for answering a question of this difficulty correctly.
func (d Difficulty) Award() int {
	switch d {
	case DifficultyEasy:
		return 1
	case DifficultyMedium:
		return 2
	case DifficultyHard:
		return 3
	}
	return 0
}

// QuestionType is the answer format of a question.
type QuestionType string

const (
	QuestionTypeMultiple QuestionType = "multiple"
	QuestionTypeBoolean  QuestionType = "boolean"
)

// Valid reports whether t is one of the known formats.
func (t QuestionType) Valid() bool {
	return t == QuestionTypeMultiple || t == QuestionTypeBoolean
}

// Question is a single trivia record with entity-decoded text.
type Question struct {
	Type             QuestionType `json:"type"`
	Difficulty       Difficulty   `json:"difficulty"`
	Category         string       `json:"category"`
	Question         string       `json:"question"`
	CorrectAnswer    string       `json:"correct_answer"`
	IncorrectAnswers []string     `json:"incorrect_answers"`
}

// Validate checks the fields the game flow depends on.
func (q Question) Validate() error {
	switch {
	case !q.Type.Valid():
		return fmt.Errorf("%w: unknown type %q", ErrMalformedQuestion, q.Type)
	case !q.Difficulty.Valid():
		return fmt.Errorf("%w: unknown difficulty %q", ErrMalformedQuestion, q.Difficulty)
	case strings.TrimSpace(q.Question) == "":
		return fmt.Errorf("%w: empty question text", ErrMalformedQuestion)
	case q.CorrectAnswer == "":
		return fmt.Errorf("%w: empty correct answer", ErrMalformedQuestion)
	case len(q.IncorrectAnswers) == 0:
		return fmt.Errorf("%w: no incorrect answers", ErrMalformedQuestion)
	}
	return nil
}

// QuestionQuery is the outbound request to the question source. Zero values are omitted.
type QuestionQuery struct {
	Amount     int
	Category   int
	Difficulty Difficulty
	Type       QuestionType
}

// GameConfig is read once when a game starts and never changes for that session.
type GameConfig struct {
	Amount     int    `json:"amount"`
	Category   string `json:"category"`
	Difficulty string `json:"difficulty"`
	Type       string `json:"type"`
}

// ParseGameConfig validates raw request parameters. Empty values take their defaults.
func ParseGameConfig(amount, category, difficulty, qtype string) (GameConfig, error) {
	cfg := GameConfig{
		Amount:     DefaultAmount,
		Category:   AnyOption,
		Difficulty: AnyOption,
		Type:       string(QuestionTypeMultiple),
	}

	if amount != "" {
		n, err := strconv.Atoi(amount)
		if err != nil || n < 1 || n > MaxAmount {
			return GameConfig{}, fmt.Errorf("%w: amount must be between 1 and %d", ErrInvalidGameConfig, MaxAmount)
		}
		cfg.Amount = n
	}

	if category != "" && category != AnyOption {
		id, err := strconv.Atoi(category)
		if err != nil || id <= 0 {
			return GameConfig{}, fmt.Errorf("%w: category must be %q or a numeric id", ErrInvalidGameConfig, AnyOption)
		}
		cfg.Category = strconv.Itoa(id)
	}

	if difficulty != "" && difficulty != AnyOption {
		if !Difficulty(difficulty).Valid() {
			return GameConfig{}, fmt.Errorf("%w: unknown difficulty %q", ErrInvalidGameConfig, difficulty)
		}
		cfg.Difficulty = difficulty
	}

	if qtype != "" {
		if qtype != AnyOption && !QuestionType(qtype).Valid() {
			return GameConfig{}, fmt.Errorf("%w: unknown type %q", ErrInvalidGameConfig, qtype)
		}
		cfg.Type = qtype
	}
	return cfg, nil
}

// Query converts the configuration into a source request, dropping "any" values.
func (c GameConfig) Query() QuestionQuery {
	q := QuestionQuery{Amount: c.Amount}
	if q.Amount <= 0 {
		q.Amount = DefaultAmount
	}
	if c.Category != "" && c.Category != AnyOption {
		q.Category, _ = strconv.Atoi(c.Category)
	}
	if c.Difficulty != "" && c.Difficulty != AnyOption {
		q.Difficulty = Difficulty(c.Difficulty)
	}
	if c.Type != AnyOption {
		q.Type = QuestionType(c.Type)
	}
	return q
}

// Phase is the top-level state of a game session.
type Phase string

const (
	PhaseLoading    Phase = "loading"
	PhaseError      Phase = "error"
	PhaseInProgress Phase = "in_progress"
	PhaseFinished   Phase = "finished"
)

// PersistenceStatus tracks the best-effort score save of a finished session.
type PersistenceStatus string

const (
	PersistenceIdle      PersistenceStatus = "idle"
	PersistencePending   PersistenceStatus = "pending"
	PersistenceSucceeded PersistenceStatus = "succeeded"
	PersistenceFailed    PersistenceStatus = "failed"
)

// RoundView is the client-facing state of the current question.
type RoundView struct {
	Category       string   `json:"category"`
	Difficulty     string   `json:"difficulty"`
	Type           string   `json:"type"`
	Question       string   `json:"question"`
	Answers        []string `json:"answers"`
	Award          int      `json:"award"`
	Answered       bool     `json:"answered"`
	SelectedAnswer string   `json:"selectedAnswer"`
	CorrectAnswer  string   `json:"correctAnswer,omitempty"` // revealed once answered
	Correct        bool     `json:"correct"`
	TimeLeft       int      `json:"timeLeft"`
}

// GameResult summarizes a finished session.
type GameResult struct {
	Score            int    `json:"score"`
	MaxPossibleScore int    `json:"maxPossibleScore"`
	Percentage       int    `json:"percentage"`
	TotalQuestions   int    `json:"totalQuestions"`
	Category         string `json:"category"`
	Difficulty       string `json:"difficulty"`
	TimeTaken        int    `json:"timeTaken"`
}

// SessionSnapshot is an immutable copy of a session's state.
type SessionSnapshot struct {
	GameID             string            `json:"gameId"`
	SessionID          string            `json:"sessionId"`
	Version            uint64            `json:"version"`
	Phase              Phase             `json:"phase"`
	Error              string            `json:"error,omitempty"`
	Config             GameConfig        `json:"config"`
	QuestionIndex      int               `json:"questionIndex"`
	TotalQuestions     int               `json:"totalQuestions"`
	Score              int               `json:"score"`
	Round              *RoundView        `json:"round,omitempty"`
	Result             *GameResult       `json:"result,omitempty"`
	Persistence        PersistenceStatus `json:"persistence"`
	PersistenceMessage string            `json:"persistenceMessage,omitempty"`
}

// NewerThan reports whether s supersedes other for the same game.
func (s SessionSnapshot) NewerThan(other SessionSnapshot) bool {
	if s.SessionID != other.SessionID {
		return true
	}
	return s.Version > other.Version
}
