package account

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound   = errors.New("user not found")
	ErrEmailTaken = errors.New("email already registered")
)

type Repository interface {
	// Create fills ID and CreatedAt. It returns ErrEmailTaken when the email
	// exists in any letter case.
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	Count(ctx context.Context) (int, error)
	List(ctx context.Context, limit, offset int) ([]*User, int, error)
	ListByRoles(ctx context.Context, roles ...string) ([]*User, error)
	TouchLastSeen(ctx context.Context, id uuid.UUID, at time.Time) error
	// ForceAdmin sets role=admin and clears doctor_id.
	ForceAdmin(ctx context.Context, id uuid.UUID) error
	// LockRegistration serializes registrations for the surrounding
	// transaction so that only one caller can become the first user.
	LockRegistration(ctx context.Context) error
}
