package emergency

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/domain/tenantdata"
	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/auth"
)

const DefaultPresenceWindow = 120 * time.Second

// ProfileStore reads and writes patient profiles in a doctor's patients
// document.
type ProfileStore interface {
	FindPatientProfile(ctx context.Context, ownerID uuid.UUID, subj tenantdata.Subject) (*tenantdata.PatientProfile, error)
	UpsertPatientProfile(ctx context.Context, ownerID uuid.UUID, subj tenantdata.Subject, p tenantdata.PatientProfile) (*tenantdata.PatientProfile, error)
}

type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type Config struct {
	// PresenceWindow is how recently a patient must have been seen for an
	// open request to be listed to staff.
	PresenceWindow time.Duration
	// VideoBaseURL is the root under which new rooms are minted.
	VideoBaseURL string
}

type Service struct {
	repo     Repository
	profiles ProfileStore
	tx       Transactor
	cfg      Config
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(repo Repository, profiles ProfileStore, tx Transactor, cfg Config, logger zerolog.Logger) *Service {
	if cfg.PresenceWindow <= 0 {
		cfg.PresenceWindow = DefaultPresenceWindow
	}
	if cfg.VideoBaseURL == "" {
		cfg.VideoBaseURL = "https://meet.jit.si"
	}
	cfg.VideoBaseURL = strings.TrimRight(cfg.VideoBaseURL, "/")
	return &Service{repo: repo, profiles: profiles, tx: tx, cfg: cfg, logger: logger, now: time.Now}
}

// Request opens a help request for the calling patient, or refreshes the
// patient's current open request. Status and claim fields are untouched by a
// refresh.
func (s *Service) Request(ctx context.Context, caller *auth.Identity, message string) (*Request, error) {
	req := &Request{
		PatientID:    caller.ID,
		DoctorID:     caller.DoctorID,
		PatientName:  caller.Name,
		PatientEmail: caller.Email,
		Message:      strings.TrimSpace(message),
	}

	if caller.DoctorID != nil {
		profile, err := s.profiles.FindPatientProfile(ctx, *caller.DoctorID, subjectFor(caller.ID, caller.Email, ""))
		if err != nil {
			return nil, err
		}
		if profile != nil {
			req.PatientPhone = profile.Phone
			if req.PatientName == "" {
				req.PatientName = profile.Name
			}
		}
	}

	out, err := s.repo.UpsertOpen(ctx, req)
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("request_id", out.ID.String()).
		Str("patient_id", caller.ID.String()).
		Msg("emergency requested")
	return out, nil
}

// Latest returns the patient's most recent request, or nil when there is none.
func (s *Service) Latest(ctx context.Context, patientID uuid.UUID) (*Request, error) {
	r, err := s.repo.LatestForPatient(ctx, patientID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return r, err
}

// ListActive returns open requests of patients that are still online.
func (s *Service) ListActive(ctx context.Context) ([]*Request, error) {
	since := s.now().Add(-s.cfg.PresenceWindow)
	out, err := s.repo.ListActive(ctx, since)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []*Request{}
	}
	return out, nil
}

// StartVideo claims a request for the calling staff member and assigns the
// video room. The patient's profile is copied into the claiming doctor's
// patients list in the same transaction.
func (s *Service) StartVideo(ctx context.Context, id uuid.UUID, caller *auth.Identity, callURL string) (*Request, error) {
	var out *Request
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		current, err := s.get(ctx, id)
		if err != nil {
			return err
		}
		if current.IsResolved() {
			return apperr.Conflict("already-resolved", "emergency request is already resolved")
		}

		url := strings.TrimSpace(callURL)
		if url == "" && current.VideoCallURL != nil {
			url = *current.VideoCallURL
		}
		if url == "" {
			url = s.roomURL(current.ID.String())
		}

		out, err = s.repo.Claim(ctx, id, Claim{
			DoctorID:    caller.ID,
			DoctorName:  caller.Name,
			DoctorEmail: caller.Email,
			CallURL:     url,
			Provider:    VideoProvider,
			StartedAt:   s.now().UTC(),
		})
		if errors.Is(err, ErrNotFound) {
			// Resolved between the read and the update.
			return apperr.Conflict("already-resolved", "emergency request is already resolved")
		}
		if err != nil {
			return err
		}

		return s.adoptPatient(ctx, out, caller.ID)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("request_id", out.ID.String()).
		Str("doctor_id", caller.ID.String()).
		Msg("emergency claimed")
	return out, nil
}

// adoptPatient upserts the request's patient into the claiming doctor's
// patients document, carrying over what the originally linked doctor knew.
func (s *Service) adoptPatient(ctx context.Context, r *Request, doctorID uuid.UUID) error {
	subj := subjectFor(r.PatientID, r.PatientEmail, "")

	var profile tenantdata.PatientProfile
	if r.DoctorID != nil && *r.DoctorID != doctorID {
		known, err := s.profiles.FindPatientProfile(ctx, *r.DoctorID, subj)
		if err != nil {
			return err
		}
		if known != nil {
			profile = *known
			profile.ID = tenantdata.RecordID{}
			profile.CreatedAt = ""
			profile.UpdatedAt = ""
			subj.CPF = known.CPF
		}
	}

	profile.Overlay(tenantdata.PatientProfile{
		LinkedUserID: r.PatientID.String(),
		Name:         r.PatientName,
		Email:        r.PatientEmail,
		Phone:        r.PatientPhone,
	})

	if _, err := s.profiles.UpsertPatientProfile(ctx, doctorID, subj, profile); err != nil {
		return err
	}
	return nil
}

// Resolve closes a request. Resolving an already resolved request returns it
// unchanged.
func (s *Service) Resolve(ctx context.Context, id uuid.UUID, caller *auth.Identity) (*Request, error) {
	out, err := s.repo.Resolve(ctx, id, caller.ID, s.now().UTC())
	if errors.Is(err, ErrNotFound) {
		current, err := s.get(ctx, id)
		if err != nil {
			return nil, err
		}
		if current.IsResolved() {
			return current, nil
		}
		return nil, apperr.Internal("resolve emergency request", fmt.Errorf("request %s is %s", id, current.Status))
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("request_id", out.ID.String()).
		Str("resolved_by", caller.ID.String()).
		Msg("emergency resolved")
	return out, nil
}

func (s *Service) get(ctx context.Context, id uuid.UUID) (*Request, error) {
	r, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.NotFound("not-found", "emergency request not found")
	}
	return r, err
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// Slug lowercases s and collapses every run of other characters into a
// single dash.
func Slug(s string) string {
	return strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(s), "-"), "-")
}

func (s *Service) roomURL(requestID string) string {
	slug := Slug(requestID)
	if slug == "" {
		slug = fmt.Sprintf("%d", s.now().UnixMilli())
	}
	return s.cfg.VideoBaseURL + "/clinic-emergency-" + slug
}

func subjectFor(userID uuid.UUID, email, cpf string) tenantdata.Subject {
	return tenantdata.Subject{UserID: userID.String(), Email: email, CPF: cpf}
}
