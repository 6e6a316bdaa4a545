package services

import "errors"

var (
	// ErrEmailTaken is returned when registering with an email that
	// already belongs to an account.
	ErrEmailTaken = errors.New("email already registered")

	// ErrInvalidCredentials is returned for any login failure. Callers
	// must not distinguish unknown emails from wrong passwords.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("record not found")
)
