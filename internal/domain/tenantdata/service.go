package tenantdata

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/auth"
)

// UserDirectory resolves user ids to identities without touching liveness.
type UserDirectory interface {
	GetIdentity(ctx context.Context, id uuid.UUID) (*auth.Identity, error)
}

// Transactor runs fn in a single database transaction.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type Service struct {
	repo   Repository
	users  UserDirectory
	tx     Transactor
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(repo Repository, users UserDirectory, tx Transactor, logger zerolog.Logger) *Service {
	return &Service{repo: repo, users: users, tx: tx, logger: logger, now: time.Now}
}

// SetUserDirectory breaks the construction cycle with the account service.
func (s *Service) SetUserDirectory(users UserDirectory) {
	s.users = users
}

// GetAll returns every document the caller may see. Patients get the
// projection of their linked doctor's documents.
func (s *Service) GetAll(ctx context.Context, caller *auth.Identity, requested string) (*Bundle, error) {
	owner, err := ResolveOwner(caller, requested)
	if err != nil {
		return nil, err
	}
	if caller.IsPatient() {
		return s.PatientProjection(ctx, caller)
	}
	return s.repo.GetAll(ctx, owner)
}

func (s *Service) GetType(ctx context.Context, caller *auth.Identity, requested string, t DataType) ([]json.RawMessage, error) {
	owner, err := ResolveOwner(caller, requested)
	if err != nil {
		return nil, err
	}
	if caller.IsPatient() {
		b, err := s.PatientProjection(ctx, caller)
		if err != nil {
			return nil, err
		}
		return b.Get(t), nil
	}
	doc, err := s.repo.Get(ctx, owner, t)
	if err != nil {
		return nil, err
	}
	return doc.Payload, nil
}

// SaveAll replaces each document present in docs, in one transaction.
func (s *Service) SaveAll(ctx context.Context, caller *auth.Identity, requested string, docs map[DataType][]json.RawMessage) ([]DataType, error) {
	owner, err := s.writableOwner(caller, requested)
	if err != nil {
		return nil, err
	}

	var saved []DataType
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		for _, t := range DataTypes {
			payload, ok := docs[t]
			if !ok {
				continue
			}
			if _, err := s.repo.Put(ctx, owner, t, payload); err != nil {
				return err
			}
			saved = append(saved, t)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

func (s *Service) SaveType(ctx context.Context, caller *auth.Identity, requested string, t DataType, payload []json.RawMessage) (*Document, error) {
	owner, err := s.writableOwner(caller, requested)
	if err != nil {
		return nil, err
	}
	return s.repo.Put(ctx, owner, t, payload)
}

func (s *Service) writableOwner(caller *auth.Identity, requested string) (uuid.UUID, error) {
	if caller.IsPatient() {
		return uuid.Nil, apperr.Forbidden("patient-readonly", "patients cannot modify clinic data directly")
	}
	return ResolveOwner(caller, requested)
}

// PatientProjection derives what a patient sees from the linked doctor's
// documents: their own profile, prescriptions and appointments, and never
// medical records.
func (s *Service) PatientProjection(ctx context.Context, caller *auth.Identity) (*Bundle, error) {
	out := NewBundle()
	if caller.DoctorID == nil {
		return out, nil
	}

	all, err := s.repo.GetAll(ctx, *caller.DoctorID)
	if err != nil {
		return nil, err
	}

	self := caller.ID.String()
	out.Patients = filterProfiles(all.Patients, Subject{UserID: self, Email: caller.Email})
	out.Prescriptions = filterByPatient(all.Prescriptions, self)
	out.Appointments = filterByPatient(all.Appointments, self)
	return out, nil
}

func filterProfiles(payload []json.RawMessage, subj Subject) []json.RawMessage {
	profiles, index := decodeProfiles(payload)
	out := []json.RawMessage{}
	for _, m := range PatientMatchers {
		for i := range profiles {
			if m.Match(&profiles[i], subj) {
				out = append(out, payload[index[i]])
			}
		}
		if len(out) > 0 {
			break
		}
	}
	return out
}

func filterByPatient(payload []json.RawMessage, patientID string) []json.RawMessage {
	out := []json.RawMessage{}
	for _, raw := range payload {
		var ref patientRef
		if err := json.Unmarshal(raw, &ref); err != nil {
			continue
		}
		if ref.PatientID.String() == patientID {
			out = append(out, raw)
		}
	}
	return out
}

// decodeProfiles skips entries that are not JSON objects and returns the
// payload index of each decoded profile.
func decodeProfiles(payload []json.RawMessage) ([]PatientProfile, []int) {
	profiles := make([]PatientProfile, 0, len(payload))
	index := make([]int, 0, len(payload))
	for i, raw := range payload {
		var p PatientProfile
		if err := json.Unmarshal(raw, &p); err != nil {
			continue
		}
		profiles = append(profiles, p)
		index = append(index, i)
	}
	return profiles, index
}

// FindPatientProfile returns the profile in owner's patients document that
// belongs to subj, or nil.
func (s *Service) FindPatientProfile(ctx context.Context, ownerID uuid.UUID, subj Subject) (*PatientProfile, error) {
	doc, err := s.repo.Get(ctx, ownerID, Patients)
	if err != nil {
		return nil, err
	}
	profiles, _ := decodeProfiles(doc.Payload)
	if i := MatchPatient(profiles, subj); i >= 0 {
		return &profiles[i], nil
	}
	return nil, nil
}

// UpsertPatientProfile merges incoming into the profile that belongs to subj
// in owner's patients document, or appends it as a new entry.
func (s *Service) UpsertPatientProfile(ctx context.Context, ownerID uuid.UUID, subj Subject, incoming PatientProfile) (*PatientProfile, error) {
	var result PatientProfile
	_, err := s.repo.Mutate(ctx, ownerID, Patients, func(payload []json.RawMessage) ([]json.RawMessage, error) {
		now := s.now().UTC().Format(time.RFC3339)
		profiles, index := decodeProfiles(payload)

		if i := MatchPatient(profiles, subj); i >= 0 {
			merged := profiles[i]
			merged.Overlay(incoming)
			merged.UpdatedAt = now
			raw, err := json.Marshal(merged)
			if err != nil {
				return nil, err
			}
			payload[index[i]] = raw
			result = merged
			return payload, nil
		}

		created := incoming
		if created.ID.IsZero() {
			created.ID = NewRecordID(uuid.NewString())
		}
		if created.CreatedAt == "" {
			created.CreatedAt = now
		}
		created.UpdatedAt = now
		raw, err := json.Marshal(created)
		if err != nil {
			return nil, err
		}
		result = created
		return append(payload, raw), nil
	})
	if err != nil {
		return nil, fmt.Errorf("upsert patient profile: %w", err)
	}
	return &result, nil
}

// RequestAppointment appends a patient's appointment request to the linked
// doctor's appointments document.
func (s *Service) RequestAppointment(ctx context.Context, caller *auth.Identity, req AppointmentRequest) (*Appointment, *DoctorSummary, error) {
	req.Date = strings.TrimSpace(req.Date)
	req.Time = strings.TrimSpace(req.Time)
	if req.Date == "" || req.Time == "" {
		return nil, nil, apperr.BadRequest("invalid-appointment", "date and time are required")
	}
	if caller.DoctorID == nil {
		return nil, nil, apperr.BadRequest("patient-doctor-missing", "patient is not linked to a doctor")
	}

	doctor, err := s.users.GetIdentity(ctx, *caller.DoctorID)
	if err != nil {
		if apperr.HasCode(err, "user-not-found") {
			return nil, nil, apperr.NotFound("doctor-not-found", "linked doctor no longer exists")
		}
		return nil, nil, err
	}
	if !doctor.IsStaff() {
		return nil, nil, apperr.NotFound("doctor-not-found", "linked doctor no longer exists")
	}

	name := caller.Name
	profile, err := s.FindPatientProfile(ctx, doctor.ID, Subject{UserID: caller.ID.String(), Email: caller.Email})
	if err != nil {
		return nil, nil, err
	}
	if profile != nil && profile.Name != "" {
		name = profile.Name
	}

	appt := Appointment{
		ID:          NewRecordID(uuid.NewString()),
		PatientID:   NewRecordID(caller.ID.String()),
		PatientName: name,
		DoctorID:    doctor.ID.String(),
		Date:        req.Date,
		Time:        req.Time,
		Reason:      strings.TrimSpace(req.Reason),
		Notes:       strings.TrimSpace(req.Notes),
		Status:      AppointmentStatusRequested,
		RequestedBy: auth.RolePatient,
		CreatedAt:   s.now().UTC().Format(time.RFC3339),
	}
	raw, err := json.Marshal(appt)
	if err != nil {
		return nil, nil, err
	}

	if _, err := s.repo.Mutate(ctx, doctor.ID, Appointments, func(payload []json.RawMessage) ([]json.RawMessage, error) {
		return append(payload, raw), nil
	}); err != nil {
		return nil, nil, fmt.Errorf("append appointment: %w", err)
	}

	s.logger.Info().
		Str("patient_id", caller.ID.String()).
		Str("doctor_id", doctor.ID.String()).
		Msg("appointment requested")

	return &appt, &DoctorSummary{ID: doctor.ID, Name: doctor.Name, Email: doctor.Email}, nil
}
