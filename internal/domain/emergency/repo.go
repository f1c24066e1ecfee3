package emergency

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("emergency request not found")

type Repository interface {
	// UpsertOpen inserts an open request, or refreshes the patient's existing
	// open request in place (contact fields, message, doctor link).
	UpsertOpen(ctx context.Context, r *Request) (*Request, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Request, error)
	// LatestForPatient returns the most recently updated request of any
	// status, or ErrNotFound.
	LatestForPatient(ctx context.Context, patientID uuid.UUID) (*Request, error)
	// ListActive returns open requests whose patient was seen at or after
	// since, most recently updated first.
	ListActive(ctx context.Context, since time.Time) ([]*Request, error)
	// Claim writes the attending doctor and video fields of an open request.
	// It returns ErrNotFound when no open request has this id.
	Claim(ctx context.Context, id uuid.UUID, c Claim) (*Request, error)
	// Resolve closes an open request. It returns ErrNotFound when no open
	// request has this id.
	Resolve(ctx context.Context, id, by uuid.UUID, at time.Time) (*Request, error)
}
