package auth

import (
	"context"
	"time"
)

// Roles recognized by the authorization core.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// ValidRole reports whether role is one of the recognized roles.
func ValidRole(role string) bool {
	return role == RoleUser || role == RoleAdmin
}

// User is the identity record as consumed by the authorization core. The
// directory owns it; the core reads it fresh on every request and never
// caches it, so role and active-status changes take effect on the very next
// request.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ProfileUpdate carries optional profile fields; nil means leave unchanged.
type ProfileUpdate struct {
	Email *string
	Name  *string
}

// Directory is the external persistence collaborator holding user records.
// Implementations must return ErrUserNotFound for missing rows and
// ErrEmailTaken on unique-email violations; the core is agnostic to the
// storage technology behind these calls.
type Directory interface {
	Create(ctx context.Context, u *User) error
	FindByID(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	List(ctx context.Context, limit, offset int) ([]User, error)
	UpdateProfile(ctx context.Context, id string, upd ProfileUpdate) (*User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	UpdateRole(ctx context.Context, id, role string) (*User, error)
	UpdateStatus(ctx context.Context, id string, active bool) (*User, error)
}
