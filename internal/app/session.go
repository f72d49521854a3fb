package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"trivia-service/internal/domain"
)

// SessionOption customizes a Session at construction.
type SessionOption func(*Session)

// WithIdentity sets the player the finished score is reported for.
func WithIdentity(identity Identity) SessionOption {
	return func(s *Session) {
		if identity != nil {
			s.identity = identity
		}
	}
}

// WithShuffler replaces the answer shuffler.
func WithShuffler(shuffle Shuffler) SessionOption {
	return func(s *Session) {
		if shuffle != nil {
			s.shuffle = shuffle
		}
	}
}

// WithCountdownSeconds sets the per-question answer window.
func WithCountdownSeconds(seconds int) SessionOption {
	return func(s *Session) {
		s.countdown = NewCountdown(seconds)
	}
}

// WithClock allows deterministic timestamps in tests.
func WithClock(now func() time.Time) SessionOption {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

// WithNotifier registers a callback invoked with a fresh snapshot after every state change.
// It runs while the session lock is held and must not call back into the session.
func WithNotifier(notify func(domain.SessionSnapshot)) SessionOption {
	return func(s *Session) {
		s.notify = notify
	}
}

type round struct {
	answers  []string
	answered bool
	selected string
}

// Session is the state machine of one play-through: Loading, then Error or InProgress,
// then Finished. All transitions are serialized by mu, and transitions that do not apply
// to the current state are ignored.
type Session struct {
	id       string
	gameID   string
	cfg      domain.GameConfig
	identity Identity
	shuffle  Shuffler
	now      func() time.Time
	notify   func(domain.SessionSnapshot)

	ctx    context.Context
	cancel context.CancelFunc

	mu                 sync.Mutex
	closed             bool
	version            uint64
	phase              domain.Phase
	errMessage         string
	questions          []domain.Question
	current            int
	score              int
	round              round
	countdown          Countdown
	startedAt          time.Time
	lastActivity       time.Time
	result             *domain.GameResult
	persistence        domain.PersistenceStatus
	persistenceMessage string
}

// NewSession creates a session in the Loading phase.
func NewSession(gameID string, cfg domain.GameConfig, opts ...SessionOption) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:          uuid.NewString(),
		gameID:      gameID,
		cfg:         cfg,
		identity:    Anonymous,
		shuffle:     RandomShuffler(),
		now:         time.Now,
		ctx:         ctx,
		cancel:      cancel,
		phase:       domain.PhaseLoading,
		countdown:   NewCountdown(DefaultCountdownSeconds),
		persistence: domain.PersistenceIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.lastActivity = s.now()
	return s
}

func (s *Session) ID() string                { return s.id }
func (s *Session) GameID() string            { return s.gameID }
func (s *Session) Config() domain.GameConfig { return s.cfg }
func (s *Session) Identity() Identity        { return s.identity }

// Context is cancelled when the session is closed.
func (s *Session) Context() context.Context { return s.ctx }

// Phase returns the current top-level state.
func (s *Session) Phase() domain.Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// LastActivity is the time of the most recent state change.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// Resolve applies the outcome of the question fetch. It reports false when the session
// is no longer loading or has been closed, in which case the outcome is discarded.
func (s *Session) Resolve(questions []domain.Question, fetchErr error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.phase != domain.PhaseLoading {
		return false
	}

	if fetchErr == nil {
		fetchErr = validateBatch(questions)
	}
	if fetchErr != nil {
		s.phase = domain.PhaseError
		s.errMessage = loadErrorMessage(fetchErr)
		s.changedLocked()
		return true
	}

	s.questions = append([]domain.Question(nil), questions...)
	s.phase = domain.PhaseInProgress
	s.current = 0
	s.startedAt = s.now()
	s.startRoundLocked()
	s.changedLocked()
	return true
}

// SubmitAnswer resolves the current round. An empty answer means no answer was chosen.
// It reports whether the round changed; repeated submissions are no-ops.
func (s *Session) SubmitAnswer(answer string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.submitLocked(answer) {
		return false
	}
	s.changedLocked()
	return true
}

// Advance moves past an answered round. On the last question the session finishes, and
// if a player identity is present the returned record must be reported exactly once.
func (s *Session) Advance() (bool, *domain.ScoreRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.phase != domain.PhaseInProgress || !s.round.answered {
		return false, nil
	}

	var record *domain.ScoreRecord
	if s.current >= len(s.questions)-1 {
		record = s.finishLocked()
	} else {
		s.current++
		s.startRoundLocked()
	}
	s.changedLocked()
	return true, record
}

// Tick advances the countdown by one second. Reaching zero resolves the round as unanswered.
func (s *Session) Tick() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.phase != domain.PhaseInProgress || s.round.answered || !s.countdown.Armed() {
		return false
	}
	if s.countdown.Tick() {
		s.submitLocked("")
	}
	s.changedLocked()
	return true
}

// CompletePersistence records the outcome of the score report issued on finish.
func (s *Session) CompletePersistence(err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.phase != domain.PhaseFinished || s.persistence != domain.PersistencePending {
		return false
	}
	if err != nil {
		s.persistence = domain.PersistenceFailed
		s.persistenceMessage = "could not save score"
	} else {
		s.persistence = domain.PersistenceSucceeded
		s.persistenceMessage = ""
	}
	s.changedLocked()
	return true
}

// Close abandons the session. Pending continuations become no-ops.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.countdown.Disarm()
	s.cancel()
}

// Closed reports whether the session was abandoned.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() domain.SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) submitLocked(answer string) bool {
	if s.closed || s.phase != domain.PhaseInProgress || s.round.answered {
		return false
	}
	s.round.answered = true
	s.round.selected = answer
	s.countdown.Disarm()

	q := s.questions[s.current]
	if answer != "" && answer == q.CorrectAnswer {
		s.score += q.Difficulty.Award()
	}
	return true
}

func (s *Session) startRoundLocked() {
	s.round = round{answers: s.shuffle(s.questions[s.current])}
	s.countdown.Rearm()
}

func (s *Session) finishLocked() *domain.ScoreRecord {
	s.phase = domain.PhaseFinished
	s.countdown.Disarm()

	maxScore := MaxPossibleScore(s.questions)
	elapsed := s.now().Sub(s.startedAt).Round(time.Second)
	s.result = &domain.GameResult{
		Score:            s.score,
		MaxPossibleScore: maxScore,
		Percentage:       Percentage(s.score, maxScore),
		TotalQuestions:   len(s.questions),
		Category:         s.reportCategoryLocked(),
		Difficulty:       s.reportDifficultyLocked(),
		TimeTaken:        int(elapsed / time.Second),
	}

	userID, ok := s.identity.CurrentUserID()
	if !ok {
		return nil
	}
	s.persistence = domain.PersistencePending
	return &domain.ScoreRecord{
		UserID:         userID,
		Category:       s.result.Category,
		Difficulty:     s.result.Difficulty,
		Score:          s.result.Score,
		TotalQuestions: s.result.TotalQuestions,
		TimeTaken:      s.result.TimeTaken,
	}
}

func (s *Session) reportCategoryLocked() string {
	if len(s.questions) == 0 {
		return domain.MixedCategory
	}
	if c := strings.TrimSpace(s.questions[0].Category); c != "" {
		return c
	}
	return domain.MixedCategory
}

func (s *Session) reportDifficultyLocked() string {
	if s.cfg.Difficulty != "" && s.cfg.Difficulty != domain.AnyOption {
		return s.cfg.Difficulty
	}
	if len(s.questions) > 0 {
		return string(s.questions[0].Difficulty)
	}
	return domain.AnyOption
}

func (s *Session) changedLocked() {
	s.version++
	s.lastActivity = s.now()
	if s.notify != nil {
		s.notify(s.snapshotLocked())
	}
}

func (s *Session) snapshotLocked() domain.SessionSnapshot {
	snap := domain.SessionSnapshot{
		GameID:             s.gameID,
		SessionID:          s.id,
		Version:            s.version,
		Phase:              s.phase,
		Error:              s.errMessage,
		Config:             s.cfg,
		QuestionIndex:      s.current,
		TotalQuestions:     len(s.questions),
		Score:              s.score,
		Persistence:        s.persistence,
		PersistenceMessage: s.persistenceMessage,
	}

	if s.phase == domain.PhaseInProgress {
		q := s.questions[s.current]
		view := &domain.RoundView{
			Category:       q.Category,
			Difficulty:     string(q.Difficulty),
			Type:           string(q.Type),
			Question:       q.Question,
			Answers:        append([]string(nil), s.round.answers...),
			Award:          q.Difficulty.Award(),
			Answered:       s.round.answered,
			SelectedAnswer: s.round.selected,
			TimeLeft:       s.countdown.Left(),
		}
		if s.round.answered {
			view.CorrectAnswer = q.CorrectAnswer
			view.Correct = s.round.selected != "" && s.round.selected == q.CorrectAnswer
		}
		snap.Round = view
	}

	if s.result != nil {
		result := *s.result
		snap.Result = &result
	}
	return snap
}

func validateBatch(questions []domain.Question) error {
	if len(questions) == 0 {
		return domain.ErrNoQuestions
	}
	for _, q := range questions {
		if err := q.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func loadErrorMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrNoQuestions):
		return "No questions are available for the selected options. Try fewer questions or another category."
	case errors.Is(err, domain.ErrMalformedQuestion):
		return "The trivia service returned questions that could not be read."
	case errors.Is(err, context.Canceled):
		return "Loading was cancelled."
	}
	return "Failed to load questions: " + err.Error()
}
