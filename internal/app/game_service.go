package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"trivia-service/internal/domain"
)

var errShuttingDown = errors.New("game service is shutting down")

// SessionRepository abstracts where live game sessions are kept (in-memory, Redis, etc).
type SessionRepository interface {
	Put(session *Session)
	Get(gameID string) (*Session, bool)
	Delete(gameID string)
	All() []*Session
	// Replace registers next only while old is still the active session for its game.
	Replace(old, next *Session) bool
}

// QuestionSource fetches a batch of questions for a new session.
type QuestionSource interface {
	FetchQuestions(ctx context.Context, query domain.QuestionQuery) ([]domain.Question, error)
}

// ScoreReporter persists the result of a finished session.
type ScoreReporter interface {
	SaveScore(ctx context.Context, record domain.ScoreRecord) (domain.ScoreRecord, error)
}

// GameSettings tunes session behavior.
type GameSettings struct {
	CountdownSeconds int
	// TickInterval drives the countdown. Zero disables the background ticker.
	TickInterval  time.Duration
	ReportTimeout time.Duration
	Shuffler      Shuffler
	Clock         func() time.Time
}

// GameService contains the game use cases and owns the async work each session issues.
type GameService struct {
	sessions SessionRepository
	source   QuestionSource
	reporter ScoreReporter
	settings GameSettings
	log      logrus.FieldLogger
	hub      *broadcaster

	mu       sync.Mutex
	closing  bool
	pending  sync.WaitGroup
}

func NewGameService(store SessionRepository, source QuestionSource, reporter ScoreReporter, settings GameSettings, log logrus.FieldLogger) *GameService {
	if settings.CountdownSeconds <= 0 {
		settings.CountdownSeconds = DefaultCountdownSeconds
	}
	if settings.ReportTimeout <= 0 {
		settings.ReportTimeout = 10 * time.Second
	}
	if settings.Shuffler == nil {
		settings.Shuffler = RandomShuffler()
	}
	if settings.Clock == nil {
		settings.Clock = time.Now
	}
	return &GameService{
		sessions: store,
		source:   source,
		reporter: reporter,
		settings: settings,
		log:      log,
		hub:      newBroadcaster(),
	}
}

// Start creates a game in the Loading phase and fetches its questions in the background.
func (s *GameService) Start(_ context.Context, cfg domain.GameConfig, identity Identity) domain.SessionSnapshot {
	gameID := uuid.NewString()
	session := s.newSession(gameID, cfg, identity)
	s.sessions.Put(session)

	snap := session.Snapshot()
	s.hub.publish(gameID, snap)
	s.launchLoad(session)

	s.log.WithFields(logrus.Fields{
		"gameId":     gameID,
		"amount":     cfg.Amount,
		"category":   cfg.Category,
		"difficulty": cfg.Difficulty,
	}).Info("game started")
	return snap
}

// SubmitAnswer resolves the current round. Duplicate or out-of-phase submissions are ignored.
func (s *GameService) SubmitAnswer(_ context.Context, gameID, answer string) (domain.SessionSnapshot, error) {
	session, ok := s.sessions.Get(gameID)
	if !ok {
		return domain.SessionSnapshot{}, domain.ErrSessionNotFound
	}
	session.SubmitAnswer(answer)
	return session.Snapshot(), nil
}

// Advance moves to the next question, or finishes the game and reports the score.
func (s *GameService) Advance(_ context.Context, gameID string) (domain.SessionSnapshot, error) {
	session, ok := s.sessions.Get(gameID)
	if !ok {
		return domain.SessionSnapshot{}, domain.ErrSessionNotFound
	}
	if _, record := session.Advance(); record != nil {
		s.launchReport(session, *record)
	}
	return session.Snapshot(), nil
}

// Restart discards the game's session and starts a new one with the same configuration.
func (s *GameService) Restart(_ context.Context, gameID string) (domain.SessionSnapshot, error) {
	var old, session *Session
	for {
		var ok bool
		old, ok = s.sessions.Get(gameID)
		if !ok {
			return domain.SessionSnapshot{}, domain.ErrSessionNotFound
		}
		session = s.newSession(gameID, old.Config(), old.Identity())
		if s.sessions.Replace(old, session) {
			break
		}
		// the game was left, expired or restarted since the lookup
		session.Close()
	}
	old.Close()

	snap := session.Snapshot()
	s.hub.publish(gameID, snap)
	s.launchLoad(session)

	s.log.WithField("gameId", gameID).Info("game restarted")
	return snap, nil
}

// Snapshot returns the current state of a game.
func (s *GameService) Snapshot(_ context.Context, gameID string) (domain.SessionSnapshot, error) {
	session, ok := s.sessions.Get(gameID)
	if !ok {
		return domain.SessionSnapshot{}, domain.ErrSessionNotFound
	}
	return session.Snapshot(), nil
}

// Subscribe returns a channel that receives every snapshot of a game, across restarts.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *GameService) Subscribe(_ context.Context, gameID string) (<-chan domain.SessionSnapshot, func(), error) {
	session, ok := s.sessions.Get(gameID)
	if !ok {
		return nil, nil, domain.ErrSessionNotFound
	}
	ch, cancel := s.hub.subscribe(gameID, session.Snapshot())
	return ch, cancel, nil
}

// Leave abandons a game. Subscriber channels are closed.
func (s *GameService) Leave(_ context.Context, gameID string) {
	session, ok := s.sessions.Get(gameID)
	if !ok {
		return
	}
	s.drop(session)
}

// ExpireIdle abandons games that have not changed for maxIdle and reports how many were dropped.
func (s *GameService) ExpireIdle(maxIdle time.Duration) int {
	now := s.settings.Clock()
	expired := 0
	for _, session := range s.sessions.All() {
		if now.Sub(session.LastActivity()) < maxIdle {
			continue
		}
		s.drop(session)
		expired++
	}
	if expired > 0 {
		s.log.WithField("count", expired).Info("expired idle games")
	}
	return expired
}

// Wait blocks until in-flight question fetches and score reports have completed.
func (s *GameService) Wait() {
	s.pending.Wait()
}

// Shutdown stops launching background work, abandons every live game and waits for the
// fetches and reports already in flight. Games started afterwards never load.
func (s *GameService) Shutdown() {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()

	for _, session := range s.sessions.All() {
		s.drop(session)
	}
	s.pending.Wait()
}

// track registers a background task unless the service is shutting down.
func (s *GameService) track() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.pending.Add(1)
	return true
}

func (s *GameService) drop(session *Session) {
	session.Close()
	if !s.isActive(session) {
		return
	}
	s.sessions.Delete(session.GameID())
	s.hub.forget(session.GameID())
}

func (s *GameService) newSession(gameID string, cfg domain.GameConfig, identity Identity) *Session {
	return NewSession(gameID, cfg,
		WithIdentity(identity),
		WithShuffler(s.settings.Shuffler),
		WithCountdownSeconds(s.settings.CountdownSeconds),
		WithClock(s.settings.Clock),
		WithNotifier(func(snap domain.SessionSnapshot) {
			s.hub.publish(gameID, snap)
		}),
	)
}

// isActive reports whether session is still the one registered for its game.
// Every async continuation checks it before touching session state.
func (s *GameService) isActive(session *Session) bool {
	current, ok := s.sessions.Get(session.GameID())
	return ok && current == session
}

func (s *GameService) launchLoad(session *Session) {
	if !s.track() {
		s.log.WithField("gameId", session.GameID()).Debug("shutting down, not loading questions")
		s.drop(session)
		return
	}
	go func() {
		defer s.pending.Done()

		logger := s.log.WithFields(logrus.Fields{"gameId": session.GameID(), "sessionId": session.ID()})
		questions, err := s.source.FetchQuestions(session.Context(), session.Config().Query())
		if !s.isActive(session) || session.Closed() {
			logger.Debug("discarding question fetch for abandoned session")
			session.Close()
			return
		}
		if err != nil {
			logger.WithError(err).Warn("question fetch failed")
		}
		if !session.Resolve(questions, err) {
			return
		}
		if session.Phase() == domain.PhaseInProgress {
			s.runCountdown(session)
		}
	}()
}

func (s *GameService) runCountdown(session *Session) {
	if s.settings.TickInterval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(s.settings.TickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if session.Phase() != domain.PhaseInProgress {
					return
				}
				session.Tick()
			case <-session.Context().Done():
				return
			}
		}
	}()
}

// launchReport saves the score without blocking the results view. The save itself is not
// tied to the session context, so leaving right after finishing still records the game;
// only the outcome is discarded.
func (s *GameService) launchReport(session *Session, record domain.ScoreRecord) {
	if !s.track() {
		s.log.WithFields(logrus.Fields{"gameId": session.GameID(), "userId": record.UserID}).Warn("shutting down, score not saved")
		session.CompletePersistence(errShuttingDown)
		return
	}
	go func() {
		defer s.pending.Done()

		ctx, cancel := context.WithTimeout(context.Background(), s.settings.ReportTimeout)
		defer cancel()

		logger := s.log.WithFields(logrus.Fields{"gameId": session.GameID(), "userId": record.UserID})
		_, err := s.reporter.SaveScore(ctx, record)
		if err != nil {
			logger.WithError(err).Warn("could not save score")
		} else {
			logger.WithField("score", record.Score).Info("score saved")
		}

		if !s.isActive(session) {
			logger.Debug("discarding score report outcome for abandoned session")
			return
		}
		session.CompletePersistence(err)
	}()
}
