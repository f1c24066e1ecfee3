package account

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/domain/tenantdata"
	"github.com/clinic/clinic/internal/platform/auth"
)

// User is a stored account. The JSON form is the sanitized view returned to
// clients; the password hash is never serialized.
type User struct {
	ID           uuid.UUID  `json:"id"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	DisplayName  string     `json:"name"`
	Role         string     `json:"role"`
	DoctorID     *uuid.UUID `json:"doctorId"`
	CreatedAt    time.Time  `json:"createdAt"`
	LastSeenAt   *time.Time `json:"lastSeenAt"`
}

func (u *User) Identity() *auth.Identity {
	return &auth.Identity{
		ID:       u.ID,
		Email:    u.Email,
		Name:     u.DisplayName,
		Role:     u.Role,
		DoctorID: u.DoctorID,
	}
}

// DirectoryEntry is the public view of a doctor or admin account.
type DirectoryEntry struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
	Role  string    `json:"role"`
}

// RegisterRequest is the body of POST /auth/register.
type RegisterRequest struct {
	Email          string                     `json:"email"`
	Password       string                     `json:"password"`
	Name           string                     `json:"name"`
	Role           string                     `json:"role"`
	DoctorID       string                     `json:"doctorId"`
	PatientProfile *tenantdata.PatientProfile `json:"patientProfile"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Session is returned by register and login.
type Session struct {
	User  *User  `json:"user"`
	Token string `json:"token"`
}
