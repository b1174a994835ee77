package auth

import "errors"

var (
	// ErrAuthentication covers bad credentials, unknown email and disabled
	// accounts alike; callers must not be able to tell them apart.
	ErrAuthentication = errors.New("auth: invalid credentials")

	// ErrInvalidToken indicates a token failed verification: bad signature,
	// malformed structure, expiry, wrong purpose or fingerprint mismatch.
	ErrInvalidToken = errors.New("auth: invalid token")

	// ErrSessionNotFound is returned when a session is missing, expired or revoked.
	ErrSessionNotFound = errors.New("auth: session not found")

	// ErrTokenNotFound is returned when a refresh token fails any condition
	// of the rotation gate.
	ErrTokenNotFound = errors.New("auth: refresh token not found")

	// ErrPermissionDenied is returned when an authenticated user lacks a capability.
	ErrPermissionDenied = errors.New("auth: permission denied")

	ErrNotFound      = errors.New("auth: not found")
	ErrAlreadyExists = errors.New("auth: already exists")
	ErrConflict      = errors.New("auth: resource conflict")
	ErrInvalidInput  = errors.New("auth: invalid input")
)
