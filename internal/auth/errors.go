package auth

import "errors"

// Identity resolution failures. All of them surface as 401 at the HTTP
// boundary; callers log the concrete cause.
var (
	ErrNoToken            = errors.New("auth: missing bearer token")
	ErrTokenInvalid       = errors.New("auth: invalid token")
	ErrTokenExpired       = errors.New("auth: token expired")
	ErrUserNotFound       = errors.New("auth: user not found")
	ErrAccountDeactivated = errors.New("auth: account deactivated")
)

// Elevated session failures. Kept distinct so the HTTP layer can emit
// separate machine codes for each.
var (
	ErrElevatedInvalid = errors.New("auth: invalid elevated token")
	ErrElevatedExpired = errors.New("auth: elevated session expired")
)

// ErrEmailTaken is returned by directory implementations on unique-email
// violations.
var ErrEmailTaken = errors.New("auth: email already registered")
