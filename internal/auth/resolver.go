package auth

import (
	"context"
	"errors"
	"strings"
)

const bearerPrefix = "Bearer "

// Resolver turns a request's Authorization header into an Identity. It runs
// on every authenticated route and is the single point where "is this caller
// real" is decided: token verification followed by one fresh directory read.
type Resolver struct {
	codec *Codec
	dir   Directory
}

// NewResolver constructs a Resolver.
func NewResolver(codec *Codec, dir Directory) (*Resolver, error) {
	if codec == nil {
		return nil, errors.New("auth: codec is required")
	}
	if dir == nil {
		return nil, errors.New("auth: directory is required")
	}
	return &Resolver{codec: codec, dir: dir}, nil
}

// Resolve validates the bearer token and loads the current user record.
//
// Failure ladder: ErrNoToken (header absent or not bearer-shaped),
// ErrTokenInvalid / ErrTokenExpired (signature or claim problems),
// ErrUserNotFound (subject deleted after issuance), ErrAccountDeactivated.
// The HTTP layer maps all of them to 401; ErrUserNotFound must be
// indistinguishable from ErrTokenInvalid to the caller so account existence
// never leaks, but the two are logged with separate reasons.
func (r *Resolver) Resolve(ctx context.Context, authorization string) (Identity, error) {
	token, err := extractBearerToken(authorization)
	if err != nil {
		return Identity{}, err
	}
	claims, err := r.codec.VerifySession(token)
	if err != nil {
		return Identity{}, err
	}
	user, err := r.dir.FindByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return Identity{}, ErrUserNotFound
		}
		return Identity{}, err
	}
	if !user.IsActive {
		return Identity{}, ErrAccountDeactivated
	}
	return Identity{User: user, Claims: claims}, nil
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", ErrNoToken
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearerPrefix)) {
		return "", ErrNoToken
	}
	token := strings.TrimSpace(header[len(bearerPrefix):])
	if token == "" {
		return "", ErrNoToken
	}
	return token, nil
}
