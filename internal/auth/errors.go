package auth

import "errors"

var (
	// ErrInvalidCredentials is returned by Login.Attempt for a wrong
	// username or password while attempts remain.
	ErrInvalidCredentials = errors.New("invalid credentials")

	ErrEmptyField       = errors.New("field cannot be empty")
	ErrPasswordMismatch = errors.New("passwords do not match")

	// ErrPromptCancelled is returned by a CredentialSource when the user
	// aborts the prompt.
	ErrPromptCancelled = errors.New("prompt cancelled")
)

const (
	causeMaxAttempts = "maximum attempts exceeded"
	causeCancelled   = "cancelled"
)
