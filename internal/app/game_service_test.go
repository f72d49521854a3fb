package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trivia-service/internal/app"
	"trivia-service/internal/domain"
)

type sessionMap struct {
	mu       sync.Mutex
	sessions map[string]*app.Session
}

func newSessionMap() *sessionMap {
	return &sessionMap{sessions: make(map[string]*app.Session)}
}

func (m *sessionMap) Put(s *app.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.GameID()] = s
}

func (m *sessionMap) Get(gameID string) (*app.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[gameID]
	return s, ok
}

func (m *sessionMap) Delete(gameID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, gameID)
}

func (m *sessionMap) Replace(old, next *app.Session) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessions[old.GameID()] != old {
		return false
	}
	m.sessions[next.GameID()] = next
	return true
}

func (m *sessionMap) All() []*app.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*app.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

type fetchReply struct {
	questions []domain.Question
	err       error
}

// gatedSource holds every fetch until the test replies to it. It ignores cancellation,
// like a response that was already on the wire.
type gatedSource struct {
	mu    sync.Mutex
	calls []chan fetchReply
}

func (g *gatedSource) FetchQuestions(_ context.Context, _ domain.QuestionQuery) ([]domain.Question, error) {
	reply := make(chan fetchReply, 1)
	g.mu.Lock()
	g.calls = append(g.calls, reply)
	g.mu.Unlock()
	r := <-reply
	return r.questions, r.err
}

func (g *gatedSource) pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

func (g *gatedSource) reply(i int, r fetchReply) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls[i] <- r
}

type staticSource struct {
	questions []domain.Question
	err       error
}

func (s staticSource) FetchQuestions(context.Context, domain.QuestionQuery) ([]domain.Question, error) {
	return s.questions, s.err
}

type recordingReporter struct {
	mu      sync.Mutex
	err     error
	records []domain.ScoreRecord
}

func (r *recordingReporter) SaveScore(_ context.Context, record domain.ScoreRecord) (domain.ScoreRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, record)
	return record, r.err
}

func (r *recordingReporter) saved() []domain.ScoreRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.ScoreRecord(nil), r.records...)
}

func newTestService(source app.QuestionSource, reporter app.ScoreReporter, settings app.GameSettings) (*app.GameService, *logtest.Hook) {
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	if settings.Shuffler == nil {
		settings.Shuffler = app.SeededShuffler(1)
	}
	return app.NewGameService(newSessionMap(), source, reporter, settings, logger), hook
}

func waitForPhase(t *testing.T, svc *app.GameService, gameID string, phase domain.Phase) domain.SessionSnapshot {
	t.Helper()
	var snap domain.SessionSnapshot
	require.Eventually(t, func() bool {
		var err error
		snap, err = svc.Snapshot(context.Background(), gameID)
		return err == nil && snap.Phase == phase
	}, 2*time.Second, 5*time.Millisecond)
	return snap
}

func withCategory(questions []domain.Question, category string) []domain.Question {
	for i := range questions {
		questions[i].Category = category
	}
	return questions
}

func TestRestartDiscardsStaleFetch(t *testing.T) {
	source := &gatedSource{}
	svc, hook := newTestService(source, &recordingReporter{}, app.GameSettings{})
	ctx := context.Background()

	start := svc.Start(ctx, domain.GameConfig{Amount: 2, Category: domain.AnyOption, Difficulty: domain.AnyOption, Type: "multiple"}, app.Anonymous)
	require.Equal(t, domain.PhaseLoading, start.Phase)
	require.Eventually(t, func() bool { return source.pending() == 1 }, time.Second, time.Millisecond)

	updates, cancel, err := svc.Subscribe(ctx, start.GameID)
	require.NoError(t, err)
	defer cancel()

	restarted, err := svc.Restart(ctx, start.GameID)
	require.NoError(t, err)
	require.Equal(t, start.GameID, restarted.GameID)
	require.NotEqual(t, start.SessionID, restarted.SessionID)
	require.Eventually(t, func() bool { return source.pending() == 2 }, time.Second, time.Millisecond)

	source.reply(0, fetchReply{questions: withCategory(buildQuestions(domain.DifficultyEasy, domain.DifficultyEasy), "Old")})
	require.Eventually(t, func() bool {
		for _, e := range hook.AllEntries() {
			if e.Message == "discarding question fetch for abandoned session" {
				return true
			}
		}
		return false
	}, time.Second, time.Millisecond)

	snap, err := svc.Snapshot(ctx, start.GameID)
	require.NoError(t, err)
	require.Equal(t, domain.PhaseLoading, snap.Phase)
	require.Equal(t, restarted.SessionID, snap.SessionID)

	source.reply(1, fetchReply{questions: withCategory(buildQuestions(domain.DifficultyHard, domain.DifficultyHard), "New")})
	snap = waitForPhase(t, svc, start.GameID, domain.PhaseInProgress)
	require.Equal(t, "New", snap.Round.Category)
	svc.Wait()

	cancel()
	for u := range updates {
		if u.Round != nil {
			assert.NotEqual(t, "Old", u.Round.Category)
		}
	}
}

func TestLeaveBeforeFetchCompletes(t *testing.T) {
	source := &gatedSource{}
	svc, _ := newTestService(source, &recordingReporter{}, app.GameSettings{})
	ctx := context.Background()

	start := svc.Start(ctx, domain.GameConfig{Amount: 1, Type: "multiple"}, app.Anonymous)
	require.Eventually(t, func() bool { return source.pending() == 1 }, time.Second, time.Millisecond)

	updates, _, err := svc.Subscribe(ctx, start.GameID)
	require.NoError(t, err)

	svc.Leave(ctx, start.GameID)
	source.reply(0, fetchReply{questions: buildQuestions(domain.DifficultyEasy)})
	svc.Wait()

	_, err = svc.Snapshot(ctx, start.GameID)
	require.ErrorIs(t, err, domain.ErrSessionNotFound)

	// The initial snapshot is buffered, then the channel is closed.
	first, ok := <-updates
	require.True(t, ok)
	require.Equal(t, domain.PhaseLoading, first.Phase)
	_, ok = <-updates
	require.False(t, ok)
}

func TestFetchFailureEntersErrorPhase(t *testing.T) {
	svc, _ := newTestService(staticSource{err: errors.New("connection refused")}, &recordingReporter{}, app.GameSettings{})
	start := svc.Start(context.Background(), domain.GameConfig{Amount: 5}, app.Anonymous)

	snap := waitForPhase(t, svc, start.GameID, domain.PhaseError)
	require.Contains(t, snap.Error, "connection refused")
	require.Nil(t, snap.Round)
}

func TestEmptyBatchEntersErrorPhase(t *testing.T) {
	svc, _ := newTestService(staticSource{}, &recordingReporter{}, app.GameSettings{})
	start := svc.Start(context.Background(), domain.GameConfig{Amount: 5}, app.Anonymous)

	snap := waitForPhase(t, svc, start.GameID, domain.PhaseError)
	require.Contains(t, snap.Error, "No questions")
}

func TestFinishedGameReportsScoreOnce(t *testing.T) {
	reporter := &recordingReporter{}
	svc, _ := newTestService(staticSource{questions: buildQuestions(domain.DifficultyMedium, domain.DifficultyHard)}, reporter, app.GameSettings{})
	ctx := context.Background()

	start := svc.Start(ctx, domain.GameConfig{Amount: 2, Category: domain.AnyOption, Difficulty: domain.AnyOption}, app.UserIdentity("user-1"))
	waitForPhase(t, svc, start.GameID, domain.PhaseInProgress)

	_, err := svc.SubmitAnswer(ctx, start.GameID, "right-0")
	require.NoError(t, err)
	_, err = svc.SubmitAnswer(ctx, start.GameID, "wrong-0-a")
	require.NoError(t, err)
	_, err = svc.Advance(ctx, start.GameID)
	require.NoError(t, err)
	_, err = svc.SubmitAnswer(ctx, start.GameID, "wrong-1-b")
	require.NoError(t, err)

	snap, err := svc.Advance(ctx, start.GameID)
	require.NoError(t, err)
	require.Equal(t, domain.PhaseFinished, snap.Phase)

	// Advancing a finished game is a no-op and must not report twice.
	_, err = svc.Advance(ctx, start.GameID)
	require.NoError(t, err)
	svc.Wait()

	saved := reporter.saved()
	require.Len(t, saved, 1)
	assert.Equal(t, "user-1", saved[0].UserID)
	assert.Equal(t, 2, saved[0].Score)
	assert.Equal(t, 2, saved[0].TotalQuestions)
	assert.Equal(t, "General Knowledge", saved[0].Category)
	assert.Equal(t, "medium", saved[0].Difficulty)

	snap, err = svc.Snapshot(ctx, start.GameID)
	require.NoError(t, err)
	require.Equal(t, domain.PersistenceSucceeded, snap.Persistence)
	require.Equal(t, 40, snap.Result.Percentage)
}

func TestReportFailureIsSurfaced(t *testing.T) {
	reporter := &recordingReporter{err: errors.New("db down")}
	svc, hook := newTestService(staticSource{questions: buildQuestions(domain.DifficultyEasy)}, reporter, app.GameSettings{})
	ctx := context.Background()

	start := svc.Start(ctx, domain.GameConfig{Amount: 1}, app.UserIdentity("user-1"))
	waitForPhase(t, svc, start.GameID, domain.PhaseInProgress)
	_, _ = svc.SubmitAnswer(ctx, start.GameID, "right-0")
	_, _ = svc.Advance(ctx, start.GameID)
	svc.Wait()

	snap, err := svc.Snapshot(ctx, start.GameID)
	require.NoError(t, err)
	require.Equal(t, domain.PhaseFinished, snap.Phase)
	require.Equal(t, domain.PersistenceFailed, snap.Persistence)
	require.Equal(t, "could not save score", snap.PersistenceMessage)
	require.Equal(t, 1, snap.Result.Score)

	var warned bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel && e.Message == "could not save score" {
			warned = true
		}
	}
	require.True(t, warned)
}

func TestAnonymousGameIsNotReported(t *testing.T) {
	reporter := &recordingReporter{}
	svc, _ := newTestService(staticSource{questions: buildQuestions(domain.DifficultyEasy)}, reporter, app.GameSettings{})
	ctx := context.Background()

	start := svc.Start(ctx, domain.GameConfig{Amount: 1}, app.Anonymous)
	waitForPhase(t, svc, start.GameID, domain.PhaseInProgress)
	_, _ = svc.SubmitAnswer(ctx, start.GameID, "")
	snap, _ := svc.Advance(ctx, start.GameID)
	svc.Wait()

	require.Equal(t, domain.PhaseFinished, snap.Phase)
	require.Equal(t, domain.PersistenceIdle, snap.Persistence)
	require.Empty(t, reporter.saved())
}

func TestLeaveAfterFinishStillSavesScore(t *testing.T) {
	reporter := &recordingReporter{}
	svc, _ := newTestService(staticSource{questions: buildQuestions(domain.DifficultyEasy)}, reporter, app.GameSettings{})
	ctx := context.Background()

	start := svc.Start(ctx, domain.GameConfig{Amount: 1}, app.UserIdentity("user-9"))
	waitForPhase(t, svc, start.GameID, domain.PhaseInProgress)
	_, _ = svc.SubmitAnswer(ctx, start.GameID, "right-0")
	_, _ = svc.Advance(ctx, start.GameID)
	svc.Leave(ctx, start.GameID)
	svc.Wait()

	require.Len(t, reporter.saved(), 1)
	_, err := svc.Snapshot(ctx, start.GameID)
	require.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestBackgroundCountdownExpiresRound(t *testing.T) {
	svc, _ := newTestService(staticSource{questions: buildQuestions(domain.DifficultyEasy, domain.DifficultyEasy)}, &recordingReporter{},
		app.GameSettings{CountdownSeconds: 2, TickInterval: 5 * time.Millisecond})
	ctx := context.Background()

	start := svc.Start(ctx, domain.GameConfig{Amount: 2}, app.Anonymous)
	var snap domain.SessionSnapshot
	require.Eventually(t, func() bool {
		snap, _ = svc.Snapshot(ctx, start.GameID)
		return snap.Round != nil && snap.Round.Answered
	}, 2*time.Second, 5*time.Millisecond)

	require.False(t, snap.Round.Correct)
	require.Empty(t, snap.Round.SelectedAnswer)
	require.Equal(t, 0, snap.Round.TimeLeft)
	require.Equal(t, 0, snap.Score)

	snap, err := svc.Advance(ctx, start.GameID)
	require.NoError(t, err)
	require.Equal(t, 1, snap.QuestionIndex)
	require.False(t, snap.Round.Answered)
	require.GreaterOrEqual(t, snap.Round.TimeLeft, 1)

	svc.Leave(ctx, start.GameID)
	svc.Wait()
}

func TestUnknownGame(t *testing.T) {
	svc, _ := newTestService(staticSource{}, &recordingReporter{}, app.GameSettings{})
	ctx := context.Background()

	_, err := svc.SubmitAnswer(ctx, "missing", "x")
	require.ErrorIs(t, err, domain.ErrSessionNotFound)
	_, err = svc.Advance(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrSessionNotFound)
	_, err = svc.Restart(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrSessionNotFound)
	_, _, err = svc.Subscribe(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrSessionNotFound)
	svc.Leave(ctx, "missing")
}

func TestExpireIdle(t *testing.T) {
	var mu sync.Mutex
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}

	svc, _ := newTestService(staticSource{questions: buildQuestions(domain.DifficultyEasy)}, &recordingReporter{}, app.GameSettings{Clock: clock})
	ctx := context.Background()

	idle := svc.Start(ctx, domain.GameConfig{Amount: 1}, app.Anonymous)
	busy := svc.Start(ctx, domain.GameConfig{Amount: 1}, app.Anonymous)
	svc.Wait()

	mu.Lock()
	now = now.Add(10 * time.Minute)
	mu.Unlock()
	_, err := svc.SubmitAnswer(ctx, busy.GameID, "right-0")
	require.NoError(t, err)

	require.Equal(t, 1, svc.ExpireIdle(5*time.Minute))
	_, err = svc.Snapshot(ctx, idle.GameID)
	require.ErrorIs(t, err, domain.ErrSessionNotFound)
	_, err = svc.Snapshot(ctx, busy.GameID)
	require.NoError(t, err)
}

// racingStore runs beforeReplace once, between a restart's lookup and its swap.
type racingStore struct {
	*sessionMap
	beforeReplace func()
}

func (r *racingStore) Replace(old, next *app.Session) bool {
	if f := r.beforeReplace; f != nil {
		r.beforeReplace = nil
		f()
	}
	return r.sessionMap.Replace(old, next)
}

func TestRestartAfterConcurrentLeave(t *testing.T) {
	source := &gatedSource{}
	store := &racingStore{sessionMap: newSessionMap()}
	logger, _ := logtest.NewNullLogger()
	svc := app.NewGameService(store, source, &recordingReporter{}, app.GameSettings{Shuffler: app.SeededShuffler(1)}, logger)
	ctx := context.Background()

	start := svc.Start(ctx, domain.GameConfig{Amount: 1, Type: "multiple"}, app.Anonymous)
	require.Eventually(t, func() bool { return source.pending() == 1 }, time.Second, time.Millisecond)
	updates, _, err := svc.Subscribe(ctx, start.GameID)
	require.NoError(t, err)

	store.beforeReplace = func() { svc.Leave(ctx, start.GameID) }
	_, err = svc.Restart(ctx, start.GameID)
	require.ErrorIs(t, err, domain.ErrSessionNotFound)
	assert.Empty(t, store.All())
	_, err = svc.Snapshot(ctx, start.GameID)
	require.ErrorIs(t, err, domain.ErrSessionNotFound)

	source.reply(0, fetchReply{questions: buildQuestions(domain.DifficultyEasy)})
	svc.Wait()
	assert.Equal(t, 1, source.pending())
	for range updates {
	}
}

func TestShutdownAbandonsGamesAndRefusesNewWork(t *testing.T) {
	source := &gatedSource{}
	svc, _ := newTestService(source, &recordingReporter{}, app.GameSettings{})
	ctx := context.Background()
	cfg := domain.GameConfig{Amount: 1, Type: "multiple"}

	start := svc.Start(ctx, cfg, app.Anonymous)
	require.Eventually(t, func() bool { return source.pending() == 1 }, time.Second, time.Millisecond)
	updates, _, err := svc.Subscribe(ctx, start.GameID)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		svc.Shutdown()
		close(done)
	}()
	for range updates {
	}
	_, err = svc.Snapshot(ctx, start.GameID)
	require.ErrorIs(t, err, domain.ErrSessionNotFound)
	select {
	case <-done:
		t.Fatal("shutdown returned before the in-flight fetch finished")
	default:
	}

	source.reply(0, fetchReply{questions: buildQuestions(domain.DifficultyEasy)})
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown did not return")
	}

	late := svc.Start(ctx, cfg, app.Anonymous)
	_, err = svc.Snapshot(ctx, late.GameID)
	require.ErrorIs(t, err, domain.ErrSessionNotFound)
	assert.Equal(t, 1, source.pending())
	svc.Wait()
}
