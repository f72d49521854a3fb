package app_test

import (
	"context"
	"strings"
	"testing"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trivia-service/internal/app"
	"trivia-service/internal/domain"
	"trivia-service/internal/infra/memory"
)

func newAccountService(t *testing.T) (*app.AccountService, *memory.Store) {
	t.Helper()
	logger, _ := logtest.NewNullLogger()
	store := memory.NewStore()
	return app.NewAccountService(store, logger), store
}

func TestRegisterHashesPassword(t *testing.T) {
	svc, store := newAccountService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, "  quizwhiz ", "hunter22", "")
	require.NoError(t, err)
	assert.Equal(t, "quizwhiz", user.Username)
	assert.Equal(t, "quizwhiz", user.DisplayName)
	assert.NotEmpty(t, user.ID)
	assert.Zero(t, user.TotalPoints)

	stored, err := store.UserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.NotEqual(t, "hunter22", stored.PasswordHash)
	assert.NotEmpty(t, stored.PasswordHash)
}

func TestRegisterRejectsDuplicatesAndBadInput(t *testing.T) {
	svc, _ := newAccountService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "quizwhiz", "hunter22", "Quiz Whiz")
	require.NoError(t, err)

	_, err = svc.Register(ctx, "QuizWhiz", "another1", "")
	require.ErrorIs(t, err, domain.ErrUsernameTaken)

	for _, tc := range []struct{ username, password string }{
		{"ab", "hunter22"},
		{"has space", "hunter22"},
		{"fine_name", "short"},
		{"fine_name", strings.Repeat("a", 73)},
		{strings.Repeat("é", 33), "hunter22"},
	} {
		_, err := svc.Register(ctx, tc.username, tc.password, "")
		assert.ErrorIs(t, err, domain.ErrInvalidUser, "%s/%s", tc.username, tc.password)
	}

	_, err = svc.Register(ctx, "fine_name", strings.Repeat("a", 72), "")
	require.NoError(t, err)
}

func TestRegisterCountsUsernameCharacters(t *testing.T) {
	svc, _ := newAccountService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, "ünïcödé_námé", "hunter22", "")
	require.NoError(t, err)
	assert.Equal(t, "ünïcödé_námé", user.Username)

	_, err = svc.Register(ctx, strings.Repeat("ß", 32), "hunter22", "")
	require.NoError(t, err)
	_, err = svc.Register(ctx, "éé", "hunter22", "")
	require.ErrorIs(t, err, domain.ErrInvalidUser)
}

func TestLogin(t *testing.T) {
	svc, _ := newAccountService(t)
	ctx := context.Background()

	registered, err := svc.Register(ctx, "quizwhiz", "hunter22", "")
	require.NoError(t, err)

	user, err := svc.Login(ctx, "quizwhiz", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, registered.ID, user.ID)

	_, err = svc.Login(ctx, "quizwhiz", "hunter23")
	require.ErrorIs(t, err, domain.ErrInvalidCredentials)

	_, err = svc.Login(ctx, "nobody", "hunter22")
	require.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestUpdateDisplayName(t *testing.T) {
	svc, _ := newAccountService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, "quizwhiz", "hunter22", "")
	require.NoError(t, err)

	updated, err := svc.UpdateDisplayName(ctx, user.ID, "  The Whiz ")
	require.NoError(t, err)
	assert.Equal(t, "The Whiz", updated.DisplayName)

	_, err = svc.UpdateDisplayName(ctx, user.ID, "   ")
	require.ErrorIs(t, err, domain.ErrInvalidUser)

	_, err = svc.UpdateDisplayName(ctx, "missing", "Name")
	require.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestIdentityResolution(t *testing.T) {
	svc, _ := newAccountService(t)
	ctx := context.Background()

	identity, err := svc.Identity(ctx, "")
	require.NoError(t, err)
	_, ok := identity.CurrentUserID()
	assert.False(t, ok)

	user, err := svc.Register(ctx, "quizwhiz", "hunter22", "")
	require.NoError(t, err)
	identity, err = svc.Identity(ctx, user.ID)
	require.NoError(t, err)
	id, ok := identity.CurrentUserID()
	assert.True(t, ok)
	assert.Equal(t, user.ID, id)

	_, err = svc.Identity(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrUserNotFound)
}
