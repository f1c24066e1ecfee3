package auth

import (
	"context"

	"github.com/google/uuid"
)

// Roles recognised by the API.
const (
	RoleAdmin        = "admin"
	RoleDoctor       = "doctor"
	RoleNurse        = "nurse"
	RoleReceptionist = "receptionist"
	RolePatient      = "patient"
)

// StaffRoles have direct access to a tenant data document.
var StaffRoles = []string{RoleAdmin, RoleDoctor, RoleNurse, RoleReceptionist}

// IsStaff reports whether role is one of StaffRoles.
func IsStaff(role string) bool {
	for _, r := range StaffRoles {
		if r == role {
			return true
		}
	}
	return false
}

// Identity is the authenticated caller, reloaded from the users table on
// every request.
type Identity struct {
	ID       uuid.UUID
	Email    string
	Name     string
	Role     string
	DoctorID *uuid.UUID
}

func (i *Identity) IsAdmin() bool   { return i.Role == RoleAdmin }
func (i *Identity) IsPatient() bool { return i.Role == RolePatient }
func (i *Identity) IsStaff() bool   { return IsStaff(i.Role) }

type contextKey string

const (
	identityKey contextKey = "identity"
	claimsKey   contextKey = "token_claims"
)

// WithIdentity stores id on ctx.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext returns the caller set by Middleware, or nil.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey).(*Identity)
	return id
}

// WithClaims stores the verified token claims on ctx.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// ClaimsFromContext returns the verified token claims, or nil.
func ClaimsFromContext(ctx context.Context) *Claims {
	c, _ := ctx.Value(claimsKey).(*Claims)
	return c
}
