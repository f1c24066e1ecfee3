package account

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/domain/tenantdata"
	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/auth"
)

const minPasswordLength = 6

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ProfileStore receives the patient profile captured at registration.
type ProfileStore interface {
	UpsertPatientProfile(ctx context.Context, ownerID uuid.UUID, subj tenantdata.Subject, p tenantdata.PatientProfile) (*tenantdata.PatientProfile, error)
}

type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type Service struct {
	repo        Repository
	profiles    ProfileStore
	tx          Transactor
	tokens      *auth.TokenManager
	revocations auth.RevocationStore
	adminEmail  string
	logger      zerolog.Logger
	now         func() time.Time
}

// NewService wires the account service. revocations may be nil, in which
// case logout only tells the client to drop its token.
func NewService(repo Repository, profiles ProfileStore, tx Transactor, tokens *auth.TokenManager,
	revocations auth.RevocationStore, adminEmail string, logger zerolog.Logger) *Service {
	return &Service{
		repo:        repo,
		profiles:    profiles,
		tx:          tx,
		tokens:      tokens,
		revocations: revocations,
		adminEmail:  normalizeEmail(adminEmail),
		logger:      logger,
		now:         time.Now,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates an account. The first account and the reserved admin
// email become admin; patients must name an existing staff doctor and
// supply a complete profile; every other request creates a doctor.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*Session, error) {
	email := normalizeEmail(req.Email)
	if !emailPattern.MatchString(email) {
		return nil, apperr.BadRequest("invalid-email", "a valid email is required")
	}
	if len(req.Password) < minPasswordLength {
		return nil, apperr.BadRequest("weak-password", "password must have at least 6 characters")
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, apperr.Internal("hash password", err)
	}

	u := &User{
		Email:        email,
		PasswordHash: hash,
		DisplayName:  strings.TrimSpace(req.Name),
		Role:         auth.RoleDoctor,
	}
	var profile *tenantdata.PatientProfile

	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.repo.LockRegistration(ctx); err != nil {
			return err
		}

		if _, err := s.repo.GetByEmail(ctx, email); err == nil {
			return apperr.Conflict("email-taken", "email already registered")
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}

		count, err := s.repo.Count(ctx)
		if err != nil {
			return err
		}

		switch {
		case count == 0 || (s.adminEmail != "" && email == s.adminEmail):
			u.Role = auth.RoleAdmin
		case strings.EqualFold(strings.TrimSpace(req.Role), auth.RolePatient):
			doctorID, p, err := s.validatePatient(ctx, req)
			if err != nil {
				return err
			}
			u.Role = auth.RolePatient
			u.DoctorID = &doctorID
			profile = p
			if u.DisplayName == "" {
				u.DisplayName = strings.TrimSpace(p.Name)
			}
		}
		if u.DisplayName == "" {
			u.DisplayName = strings.SplitN(email, "@", 2)[0]
		}

		if err := s.repo.Create(ctx, u); err != nil {
			if errors.Is(err, ErrEmailTaken) {
				return apperr.Conflict("email-taken", "email already registered")
			}
			return err
		}

		if profile != nil {
			profile.LinkedUserID = u.ID.String()
			if profile.Email == "" {
				profile.Email = email
			}
			subj := tenantdata.Subject{UserID: u.ID.String(), Email: email, CPF: profile.CPF}
			if _, err := s.profiles.UpsertPatientProfile(ctx, *u.DoctorID, subj, *profile); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("user_id", u.ID.String()).
		Str("role", u.Role).
		Msg("user registered")

	return s.issue(u)
}

func (s *Service) validatePatient(ctx context.Context, req RegisterRequest) (uuid.UUID, *tenantdata.PatientProfile, error) {
	raw := strings.TrimSpace(req.DoctorID)
	if raw == "" {
		return uuid.Nil, nil, apperr.BadRequest("doctor-required", "patients must choose a doctor")
	}
	doctorID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, nil, apperr.NotFound("doctor-not-found", "doctor not found")
	}
	doctor, err := s.repo.GetByID(ctx, doctorID)
	if errors.Is(err, ErrNotFound) {
		return uuid.Nil, nil, apperr.NotFound("doctor-not-found", "doctor not found")
	}
	if err != nil {
		return uuid.Nil, nil, err
	}
	if !auth.IsStaff(doctor.Role) {
		return uuid.Nil, nil, apperr.NotFound("doctor-not-found", "doctor not found")
	}

	p := req.PatientProfile
	if p == nil || strings.TrimSpace(p.Name) == "" || strings.TrimSpace(p.CPF) == "" ||
		strings.TrimSpace(p.Phone) == "" || strings.TrimSpace(p.DateOfBirth) == "" {
		return uuid.Nil, nil, apperr.BadRequest("patient-profile-incomplete",
			"name, CPF, phone and date of birth are required")
	}
	if !ValidCPF(p.CPF) {
		return uuid.Nil, nil, apperr.BadRequest("invalid-cpf", "CPF is not valid")
	}

	cp := *p
	return doctorID, &cp, nil
}

// Login verifies credentials. Unknown emails cost the same bcrypt compare as
// a wrong password.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*Session, error) {
	u, err := s.repo.GetByEmail(ctx, normalizeEmail(req.Email))
	if errors.Is(err, ErrNotFound) {
		auth.CheckPassword("", req.Password)
		return nil, apperr.Unauthorized("invalid-credentials", "invalid email or password")
	}
	if err != nil {
		return nil, err
	}
	if !auth.CheckPassword(u.PasswordHash, req.Password) {
		return nil, apperr.Unauthorized("invalid-credentials", "invalid email or password")
	}

	if err := s.selfHeal(ctx, u); err != nil {
		return nil, err
	}
	if err := s.touch(ctx, u); err != nil {
		return nil, err
	}
	return s.issue(u)
}

func (s *Service) issue(u *User) (*Session, error) {
	token, _, err := s.tokens.Issue(u.Identity())
	if err != nil {
		return nil, apperr.Internal("issue token", err)
	}
	return &Session{User: u, Token: token}, nil
}

// LoadIdentity reloads the token subject on every authenticated request,
// repairs the reserved admin account and records liveness.
func (s *Service) LoadIdentity(ctx context.Context, id uuid.UUID) (*auth.Identity, error) {
	u, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.Unauthorized("user-not-found", "user no longer exists")
	}
	if err != nil {
		return nil, err
	}
	if err := s.selfHeal(ctx, u); err != nil {
		return nil, err
	}
	if err := s.touch(ctx, u); err != nil {
		return nil, err
	}
	return u.Identity(), nil
}

// GetIdentity looks a user up without touching liveness.
func (s *Service) GetIdentity(ctx context.Context, id uuid.UUID) (*auth.Identity, error) {
	u, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.NotFound("user-not-found", "user not found")
	}
	if err != nil {
		return nil, err
	}
	return u.Identity(), nil
}

// Me returns the caller's current row.
func (s *Service) Me(ctx context.Context, id uuid.UUID) (*User, error) {
	u, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.Unauthorized("user-not-found", "user no longer exists")
	}
	return u, err
}

// Refresh issues a new token for the caller's current row.
func (s *Service) Refresh(ctx context.Context, id uuid.UUID) (*Session, error) {
	u, err := s.Me(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.issue(u)
}

// Logout revokes the presented token when a revocation store is configured.
func (s *Service) Logout(ctx context.Context, claims *auth.Claims) error {
	if s.revocations == nil || claims == nil || claims.ID == "" || claims.ExpiresAt == nil {
		return nil
	}
	if err := s.revocations.Revoke(ctx, claims.ID, claims.Subject, claims.ExpiresAt.Time); err != nil {
		return apperr.Internal("revoke token", err)
	}
	return nil
}

func (s *Service) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*User, int, error) {
	return s.repo.List(ctx, limit, offset)
}

// Directory lists the accounts patients may pick as their doctor.
func (s *Service) Directory(ctx context.Context) ([]DirectoryEntry, error) {
	users, err := s.repo.ListByRoles(ctx, auth.RoleAdmin, auth.RoleDoctor)
	if err != nil {
		return nil, err
	}
	out := make([]DirectoryEntry, 0, len(users))
	for _, u := range users {
		out = append(out, DirectoryEntry{ID: u.ID, Name: u.DisplayName, Email: u.Email, Role: u.Role})
	}
	return out, nil
}

func (s *Service) selfHeal(ctx context.Context, u *User) error {
	if s.adminEmail == "" || normalizeEmail(u.Email) != s.adminEmail {
		return nil
	}
	if u.Role == auth.RoleAdmin && u.DoctorID == nil {
		return nil
	}
	if err := s.repo.ForceAdmin(ctx, u.ID); err != nil {
		return err
	}
	s.logger.Warn().
		Str("user_id", u.ID.String()).
		Str("previous_role", u.Role).
		Msg("reserved admin account repaired")
	u.Role = auth.RoleAdmin
	u.DoctorID = nil
	return nil
}

func (s *Service) touch(ctx context.Context, u *User) error {
	now := s.now().UTC()
	if err := s.repo.TouchLastSeen(ctx, u.ID, now); err != nil {
		return err
	}
	u.LastSeenAt = &now
	return nil
}
