package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ElevatedClaims are the fields signed into a step-up token: a short-lived,
// single-purpose credential proving a fresh password re-entry, transmitted
// on its own header separate from the session token.
type ElevatedClaims struct {
	Role     string `json:"role"`
	Elevated bool   `json:"elevated"`
	jwt.RegisteredClaims
}

// ElevatedSession is the issuance result handed back to clients. ExpiresAt
// is RFC3339 for display.
type ElevatedSession struct {
	Token     string    `json:"elevated_token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ElevatedIssuer mints and verifies step-up tokens. Issue must only be
// called after a synchronous, successful re-check of the caller's current
// password in the same request; that precondition belongs to the caller.
type ElevatedIssuer struct {
	codec *Codec
	ttl   time.Duration
}

// NewElevatedIssuer constructs an issuer with the configured short TTL.
func NewElevatedIssuer(codec *Codec, ttl time.Duration) (*ElevatedIssuer, error) {
	if codec == nil {
		return nil, errors.New("auth: codec is required")
	}
	if ttl <= 0 {
		return nil, errors.New("auth: elevated ttl must be greater than zero")
	}
	return &ElevatedIssuer{codec: codec, ttl: ttl}, nil
}

// TTL returns the configured elevated session lifetime.
func (e *ElevatedIssuer) TTL() time.Duration { return e.ttl }

// Issue signs a step-up token for the given user.
func (e *ElevatedIssuer) Issue(userID, role string) (ElevatedSession, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ElevatedSession{}, errors.New("auth: userID is required")
	}
	if !ValidRole(role) {
		return ElevatedSession{}, errors.New("auth: unknown role " + role)
	}
	now := e.codec.now().UTC()
	exp := now.Add(e.ttl)
	claims := ElevatedClaims{
		Role:     role,
		Elevated: true,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(e.codec.secret)
	if err != nil {
		return ElevatedSession{}, err
	}
	return ElevatedSession{Token: signed, ExpiresAt: exp}, nil
}

// Verify checks a step-up token. Expiry is reported as ErrElevatedExpired,
// never as the invalid variant; a missing elevated flag or malformed shape
// is ErrElevatedInvalid. The role check stays with the guard so it can emit
// its own code.
func (e *ElevatedIssuer) Verify(token string) (*ElevatedClaims, error) {
	claims := &ElevatedClaims{}
	if err := e.codec.verify(token, claims); err != nil {
		switch {
		case errors.Is(err, ErrTokenExpired):
			return nil, ErrElevatedExpired
		default:
			return nil, ErrElevatedInvalid
		}
	}
	if !claims.Elevated || strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrElevatedInvalid
	}
	return claims, nil
}
