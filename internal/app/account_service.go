package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"trivia-service/internal/domain"
	"trivia-service/internal/security"
)

// UserRepository stores registered players.
type UserRepository interface {
	CreateUser(ctx context.Context, user domain.User) (domain.User, error)
	UserByID(ctx context.Context, id string) (domain.User, error)
	UserByUsername(ctx context.Context, username string) (domain.User, error)
	UpdateDisplayName(ctx context.Context, id, displayName string) (domain.User, error)
}

const (
	minUsernameLen    = 3
	maxUsernameLen    = 32
	minPasswordLen    = 6
	maxPasswordLen    = 72 // bcrypt input limit in bytes
	maxDisplayNameLen = 64
)

// AccountService handles registration, login and profile edits.
type AccountService struct {
	users UserRepository
	now   func() time.Time
	log   logrus.FieldLogger
}

func NewAccountService(users UserRepository, log logrus.FieldLogger) *AccountService {
	return &AccountService{users: users, now: time.Now, log: log}
}

// Register creates an account. The display name defaults to the username.
func (s *AccountService) Register(ctx context.Context, username, password, displayName string) (domain.User, error) {
	username = strings.TrimSpace(username)
	if err := validateUsername(username); err != nil {
		return domain.User{}, err
	}
	if len(password) < minPasswordLen {
		return domain.User{}, fmt.Errorf("%w: password must be at least %d characters", domain.ErrInvalidUser, minPasswordLen)
	}
	if len(password) > maxPasswordLen {
		return domain.User{}, fmt.Errorf("%w: password must be at most %d bytes", domain.ErrInvalidUser, maxPasswordLen)
	}
	displayName, err := normalizeDisplayName(displayName, username)
	if err != nil {
		return domain.User{}, err
	}

	hash, err := security.HashPassword(password)
	if err != nil {
		return domain.User{}, fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.now().UTC()
	user, err := s.users.CreateUser(ctx, domain.User{
		ID:           uuid.NewString(),
		Username:     username,
		DisplayName:  displayName,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return domain.User{}, err
	}

	s.log.WithFields(logrus.Fields{"userId": user.ID, "username": user.Username}).Info("user registered")
	return user, nil
}

// Login checks credentials. Unknown users and wrong passwords are indistinguishable.
func (s *AccountService) Login(ctx context.Context, username, password string) (domain.User, error) {
	user, err := s.users.UserByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, domain.ErrUserNotFound) {
		return domain.User{}, domain.ErrInvalidCredentials
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("failed to get user: %w", err)
	}
	if !security.CheckPassword(password, user.PasswordHash) {
		return domain.User{}, domain.ErrInvalidCredentials
	}
	return user, nil
}

func (s *AccountService) User(ctx context.Context, id string) (domain.User, error) {
	if strings.TrimSpace(id) == "" {
		return domain.User{}, fmt.Errorf("%w: user id is required", domain.ErrInvalidUser)
	}
	return s.users.UserByID(ctx, id)
}

// UpdateDisplayName changes the name shown on leaderboards and score lists.
func (s *AccountService) UpdateDisplayName(ctx context.Context, id, displayName string) (domain.User, error) {
	if strings.TrimSpace(displayName) == "" {
		return domain.User{}, fmt.Errorf("%w: display name is required", domain.ErrInvalidUser)
	}
	name, err := normalizeDisplayName(displayName, "")
	if err != nil {
		return domain.User{}, err
	}
	return s.users.UpdateDisplayName(ctx, id, name)
}

// Identity resolves the player a new game is played for. An empty id plays anonymously.
func (s *AccountService) Identity(ctx context.Context, userID string) (Identity, error) {
	if strings.TrimSpace(userID) == "" {
		return Anonymous, nil
	}
	user, err := s.users.UserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return UserIdentity(user.ID), nil
}

func validateUsername(username string) error {
	if n := utf8.RuneCountInString(username); n < minUsernameLen || n > maxUsernameLen {
		return fmt.Errorf("%w: username must be %d-%d characters", domain.ErrInvalidUser, minUsernameLen, maxUsernameLen)
	}
	for _, r := range username {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && r != '-' && r != '.' {
			return fmt.Errorf("%w: username may only contain letters, digits, '.', '_' and '-'", domain.ErrInvalidUser)
		}
	}
	return nil
}

func normalizeDisplayName(name, fallback string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = fallback
	}
	if len([]rune(name)) > maxDisplayNameLen {
		return "", fmt.Errorf("%w: display name must be at most %d characters", domain.ErrInvalidUser, maxDisplayNameLen)
	}
	return name, nil
}
