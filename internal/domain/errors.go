package domain

import "errors"

var (
	// ErrSessionNotFound is returned when no game is registered under the given ID.
	ErrSessionNotFound = errors.New("game session not found")
	// ErrInvalidGameConfig is returned when game parameters cannot be parsed.
	ErrInvalidGameConfig = errors.New("invalid game configuration")
	// ErrInvalidCategory is returned for a category id that is not a positive integer.
	ErrInvalidCategory = errors.New("invalid category id")
	// ErrNoQuestions indicates the question source returned an empty batch.
	ErrNoQuestions = errors.New("no questions returned")
	// ErrMalformedQuestion indicates a question record failed validation.
	ErrMalformedQuestion = errors.New("malformed question")
	// ErrUserNotFound is returned when a user ID or username does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrUsernameTaken is returned on registration with an existing username.
	ErrUsernameTaken = errors.New("username already taken")
	// ErrInvalidCredentials is returned when a login does not match.
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrInvalidUser indicates registration or profile input failed validation.
	ErrInvalidUser = errors.New("invalid user data")
	// ErrInvalidScore indicates a score record failed validation.
	ErrInvalidScore = errors.New("invalid score record")
)
